package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/wenqt/florabot/config"
	"github.com/wenqt/florabot/lib"
	"github.com/wenqt/florabot/lib/broadcast"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, bot *linebot.Client, svc *lib.Service, bcast *broadcast.Broadcaster) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, bot, svc, bcast)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, bot *linebot.Client, svc *lib.Service, bcast *broadcast.Broadcaster) http.Handler {
	ctrl := &controller{log, bot, svc, bcast}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Post("/callback", ctrl.callback)

	r.Route("/admin", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("florabot", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Get("/broadcast", ctrl.triggerBroadcast)
	})

	return r
}

type controller struct {
	log   *zap.Logger
	bot   *linebot.Client
	svc   *lib.Service
	bcast *broadcast.Broadcaster
}

// callback is the webhook entrypoint. ParseRequest verifies the signature
// header against the channel secret before any handler runs; the platform
// redelivers on any non-200.
func (ctrl *controller) callback(w http.ResponseWriter, r *http.Request) {
	events, err := ctrl.bot.ParseRequest(r)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			ctrl.reject(w, http.StatusBadRequest, err)
		} else {
			ctrl.reject(w, http.StatusInternalServerError, err)
		}
		return
	}

	ctx := r.Context()
	for _, ev := range events {
		ctrl.svc.Handle(ctx, lib.MapEvent(ev))
	}
	w.Write([]byte("OK"))
}

// triggerBroadcast runs the broadcast job synchronously, for operational
// testing. The scheduler calls the same code path.
func (ctrl *controller) triggerBroadcast(w http.ResponseWriter, r *http.Request) {
	report := ctrl.bcast.Run(r.Context())
	if report.Err != nil {
		ctrl.reject(w, http.StatusInternalServerError, report.Err)
		return
	}
	ctrl.resolve(w, http.StatusOK, report)
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	}
	w.WriteHeader(status)
	w.Write(b)
}

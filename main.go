package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/wenqt/florabot/app"
	"github.com/wenqt/florabot/config"
	"github.com/wenqt/florabot/lib"
	"github.com/wenqt/florabot/lib/broadcast"
	"github.com/wenqt/florabot/lib/imagecache"
	"github.com/wenqt/florabot/lib/llm"
	"github.com/wenqt/florabot/lib/store"
	"github.com/wenqt/florabot/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	_ = godotenv.Load()

	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(app.NewLineClient),

		fx.Provide(store.NewStore),
		fx.Provide(llm.NewClient),
		fx.Provide(imagecache.NewCache),

		fx.Provide(senders.NewLineSender),
		fx.Provide(senders.NewRegistry),

		fx.Provide(func(c *llm.Client) lib.Completer { return c }),
		fx.Provide(func(s *senders.LineSender) lib.ImageFetcher { return s }),
		fx.Provide(func(s *store.Store) broadcast.SubscriberStore { return s }),
		fx.Provide(func(c *llm.Client) broadcast.ContentSource { return c }),

		fx.Provide(broadcast.NewBroadcaster),
		fx.Provide(broadcast.NewScheduler),

		fx.Provide(lib.NewService),
		fx.Provide(app.NewHTTPServer),

		fx.Invoke(func(*http.Server) {}),
		fx.Invoke(func(*broadcast.Scheduler) {}),
	).Run()
}

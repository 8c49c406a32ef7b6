package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wenqt/florabot/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runBudget bounds one broadcast run; the trigger period is a day, so an
// overlapping invocation is not a concern.
const runBudget = 5 * time.Minute

// Scheduler owns the daily cron trigger. Its lifetime is scoped to the fx
// lifecycle: started after the app comes up, stopped (draining the in-flight
// run) before it goes down.
type Scheduler struct {
	log     *zap.Logger
	cron    *cron.Cron
	enabled bool
}

func NewScheduler(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, b *Broadcaster) (*Scheduler, error) {
	hour, minute, err := cfg.BroadcastTime()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.BroadcastLocation()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		log:     log,
		cron:    cron.New(cron.WithLocation(loc)),
		enabled: cfg.Broadcast.Enabled,
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runBudget)
		defer cancel()
		b.Run(ctx)
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule broadcast at %s: %w", cfg.Broadcast.At, err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !s.enabled {
				log.Sugar().Info("broadcast scheduler is disabled")
				return nil
			}
			log.Sugar().Infow("broadcast scheduler started", "at", cfg.Broadcast.At, "tz", cfg.Broadcast.Timezone)
			s.cron.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := s.cron.Stop()
			select {
			case <-stopped.Done():
				log.Sugar().Info("broadcast scheduler stopped")
			case <-ctx.Done():
				log.Sugar().Warn("broadcast scheduler stop timed out with a run in flight")
			}
			return nil
		},
	})

	return s, nil
}

package mailqueue

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runSweeper schedules the periodic queue sweep and fires one immediately on
// startup so mail stranded by a previous crash goes out without waiting a
// full interval.
func runSweeper(lc fx.Lifecycle, log *zap.SugaredLogger, svc *Service) {
	c := cron.New()
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			spec := fmt.Sprintf("@every %s", svc.cfg.EmailQueue.SweepInterval)
			if _, err := c.AddFunc(spec, func() { svc.Sweep(ctx) }); err != nil {
				return fmt.Errorf("failed to schedule email sweep: %w", err)
			}
			c.Start()
			go svc.Sweep(ctx)
			log.Infow("email sweeper started", "interval", svc.cfg.EmailQueue.SweepInterval)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			stopped := c.Stop()
			select {
			case <-stopped.Done():
			case <-stopCtx.Done():
			}
			log.Infow("email sweeper stopped")
			return nil
		},
	})
}

// Module exposes the email queue via Fx and starts its background sweeper.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(runSweeper),
)

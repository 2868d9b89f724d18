package analytics

import (
	"context"
	"errors"

	"github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/internal/analytics/notify"
	"github.com/smallbiznis/scholara/internal/analytics/queue"
	"github.com/smallbiznis/scholara/internal/analytics/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("analytics.service",
	fx.Provide(notify.NewHub),
	fx.Provide(queue.New),
	fx.Provide(service.NewService),
	fx.Provide(func(svc *service.Service) domain.Service { return svc }),
	fx.Invoke(NewConsumer),
)

// NewConsumer starts the single queue consumer with the application and stops
// it on shutdown. Updates still queued at shutdown are lost.
func NewConsumer(lc fx.Lifecycle, q *queue.Queue, svc domain.Service, log *zap.Logger) {
	log = log.Named("analytics.consumer")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				err := q.Run(ctx, svc.HandleUpdate)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Error("analytics consumer stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			if pending := q.Len(); pending > 0 {
				log.Warn("analytics updates dropped on shutdown", zap.Int("pending", pending))
			}
			return nil
		},
	})
}

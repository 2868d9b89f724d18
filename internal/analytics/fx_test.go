package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/internal/analytics/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type recordingService struct {
	mu      sync.Mutex
	handled []domain.UpdateType
}

func (s *recordingService) ProcessGradingEvent(context.Context, snowflake.ID, domain.GradingInput) (domain.PerformanceData, error) {
	return domain.PerformanceData{}, nil
}

func (s *recordingService) HandleUpdate(_ context.Context, update domain.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handled = append(s.handled, update.Type)
	return nil
}

func (s *recordingService) ListAlerts(context.Context, domain.AlertFilter) ([]domain.PerformanceAlert, error) {
	return nil, nil
}

func (s *recordingService) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handled)
}

func TestConsumerStopsWithApplication(t *testing.T) {
	q := queue.NewQueue(4, 4, nil, zap.NewNop(), nil)
	svc := &recordingService{}

	app := fxtest.New(t,
		fx.Supply(q, zap.NewNop()),
		fx.Provide(func() domain.Service { return svc }),
		fx.Invoke(NewConsumer),
	)
	app.RequireStart()

	require.NoError(t, q.Enqueue(domain.Update{Type: domain.UpdateActivityGraded}))
	require.Eventually(t, func() bool { return svc.count() == 1 }, time.Second, 5*time.Millisecond)

	app.RequireStop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Run(ctx, svc.HandleUpdate)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, queue.ErrAlreadyRunning)
}

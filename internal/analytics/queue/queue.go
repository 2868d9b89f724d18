// Package queue is the in-process analytics update queue. Producers never block:
// a full queue rejects the update with domain.ErrQueueFull. A single consumer
// drains updates in FIFO order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/internal/clock"
	"github.com/smallbiznis/scholara/internal/config"
	obsmetrics "github.com/smallbiznis/scholara/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrAlreadyRunning = errors.New("analytics_queue_already_running")

// Handler processes one update. A returned error sends the update to the dead-letter list.
type Handler func(ctx context.Context, update domain.Update) error

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *obsmetrics.AnalyticsMetrics `optional:"true"`
}

type Queue struct {
	items       chan domain.Update
	log         *zap.Logger
	clock       clock.Clock
	metrics     *obsmetrics.AnalyticsMetrics
	deadLetters *DeadLetters
	running     atomic.Bool
}

func New(p Params) *Queue {
	return NewQueue(p.Config.Analytics.QueueCapacity, p.Config.Analytics.DeadLetterCapacity, p.Clock, p.Log, p.Metrics)
}

func NewQueue(capacity, deadLetterCapacity int, clk clock.Clock, log *zap.Logger, metrics *obsmetrics.AnalyticsMetrics) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		items:       make(chan domain.Update, capacity),
		log:         log.Named("analytics.queue"),
		clock:       clk,
		metrics:     metrics,
		deadLetters: NewDeadLetters(deadLetterCapacity),
	}
}

// Enqueue appends an update to the tail of the queue without blocking.
func (q *Queue) Enqueue(update domain.Update) error {
	select {
	case q.items <- update:
		q.metrics.IncEnqueued(string(update.Type))
		q.metrics.SetQueueDepth(len(q.items))
		return nil
	default:
		q.metrics.IncDropped(string(update.Type), string(CategoryQueueFull))
		q.deadLetter(update, CategoryQueueFull, domain.ErrQueueFull)
		q.log.Warn("analytics queue full, update dropped",
			zap.String("update_type", string(update.Type)),
			zap.String("submission_id", update.Data.SubmissionID.String()),
			zap.Int("capacity", cap(q.items)),
		)
		return domain.ErrQueueFull
	}
}

// Len reports the number of updates waiting for the consumer.
func (q *Queue) Len() int {
	return len(q.items)
}

// Capacity is the configured queue bound.
func (q *Queue) Capacity() int {
	return cap(q.items)
}

func (q *Queue) DeadLetters() *DeadLetters {
	return q.deadLetters
}

// Run consumes updates until ctx is cancelled. Only one Run may be active at a time.
func (q *Queue) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("analytics queue handler is required")
	}
	if !q.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer q.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-q.items:
			q.metrics.SetQueueDepth(len(q.items))
			q.process(ctx, handler, update)
		}
	}
}

func (q *Queue) process(ctx context.Context, handler Handler, update domain.Update) {
	updateType := string(update.Type)
	err := q.safeHandle(ctx, handler, update)
	if err == nil {
		q.metrics.IncProcessed(updateType, "success")
		return
	}

	category := classify(err)
	q.metrics.IncProcessed(updateType, string(category))
	q.deadLetter(update, category, err)
	q.log.Error("analytics update failed",
		zap.String("update_type", updateType),
		zap.String("submission_id", update.Data.SubmissionID.String()),
		zap.String("category", string(category)),
		zap.Error(err),
	)
}

func (q *Queue) safeHandle(ctx context.Context, handler Handler, update domain.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return handler(ctx, update)
}

func (q *Queue) deadLetter(update domain.Update, category Category, err error) {
	size := q.deadLetters.Add(DeadLetter{
		Update:   update,
		Category: category,
		Error:    err.Error(),
		FailedAt: q.clock.Now(),
	})
	q.metrics.SetDeadLetters(size)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("analytics handler panic: %v", e.value)
}

func classify(err error) Category {
	var p *panicError
	switch {
	case errors.As(err, &p):
		return CategoryPanic
	case errors.Is(err, domain.ErrRollupUnavailable):
		return CategoryBreakerOpen
	case errors.Is(err, domain.ErrQueueFull):
		return CategoryQueueFull
	default:
		return CategoryHandlerError
	}
}

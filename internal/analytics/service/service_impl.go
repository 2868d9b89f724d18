package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/internal/analytics/notify"
	"github.com/smallbiznis/scholara/internal/analytics/queue"
	"github.com/smallbiznis/scholara/internal/clock"
	"github.com/smallbiznis/scholara/internal/config"
	"github.com/smallbiznis/scholara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/scholara/internal/observability/metrics"
	"github.com/smallbiznis/scholara/internal/observability/tracing"
	"github.com/smallbiznis/scholara/pkg/db/option"
	"github.com/smallbiznis/scholara/pkg/repository"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const tracerName = "scholara/analytics"

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Queue  *queue.Queue
	Hub    *notify.Hub `optional:"true"`
	Config config.Config

	Metrics          *obsmetrics.Metrics          `optional:"true"`
	AnalyticsMetrics *obsmetrics.AnalyticsMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	queue   *queue.Queue
	hub     *notify.Hub
	breaker *gobreaker.CircuitBreaker[any]

	submissions repository.Repository[domain.Submission]
	unified     repository.Repository[domain.UnifiedPerformance]
	alerts      repository.Repository[domain.PerformanceAlert]

	metrics          *obsmetrics.Metrics
	analyticsMetrics *obsmetrics.AnalyticsMetrics
}

func NewService(p Params) *Service {
	log := p.Log.Named("analytics.service")
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	svc := &Service{
		db:               p.DB,
		log:              log,
		genID:            p.GenID,
		clock:            clk,
		queue:            p.Queue,
		hub:              p.Hub,
		submissions:      repository.ProvideStore[domain.Submission](p.DB),
		unified:          repository.ProvideStore[domain.UnifiedPerformance](p.DB),
		alerts:           repository.ProvideStore[domain.PerformanceAlert](p.DB),
		metrics:          p.Metrics,
		analyticsMetrics: p.AnalyticsMetrics,
	}
	svc.breaker = newRollupBreaker(p.Config.Analytics, log, p.AnalyticsMetrics)
	return svc
}

func newRollupBreaker(cfg config.AnalyticsConfig, log *zap.Logger, metrics *obsmetrics.AnalyticsMetrics) *gobreaker.CircuitBreaker[any] {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "analytics_rollups",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(int(to))
			log.Warn("rollup circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func (s *Service) ProcessGradingEvent(ctx context.Context, submissionID snowflake.ID, input domain.GradingInput) (data domain.PerformanceData, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "analytics.process_grading_event",
		attribute.String("submission_id", submissionID.String()),
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.metrics.RecordGradingEvent(ctx, outcome)
		tracing.End(span, err)
	}()

	if err := validateGradingInput(input); err != nil {
		return domain.PerformanceData{}, err
	}

	submission, err := s.submissions.FindOne(ctx, &domain.Submission{ID: submissionID}, option.WithPreload("Activity", "Student"))
	if err != nil {
		return domain.PerformanceData{}, fmt.Errorf("load submission %s: %w", submissionID, err)
	}
	if submission == nil {
		return domain.PerformanceData{}, domain.ErrSubmissionNotFound
	}

	now := s.clock.Now()
	data = buildPerformanceData(*submission, input, now)

	if err := s.queue.Enqueue(domain.Update{
		Type: domain.UpdateActivityGraded,
		Data: data,
		Metadata: domain.UpdateMetadata{
			TriggeredBy: string(data.GradingType),
			Timestamp:   now,
		},
	}); err != nil {
		// The unified record is still written; the rollups for this event are lost.
		s.log.Warn("analytics update not queued",
			zap.String("submission_id", submissionID.String()),
			zap.Error(err),
		)
	}

	if err := s.unified.Upsert(ctx, unifiedRecord(s.genID.Generate(), data, now), "submission_id"); err != nil {
		return domain.PerformanceData{}, fmt.Errorf("upsert unified performance %s: %w", submissionID, err)
	}

	s.publish(domain.UpdateActivityGraded, data, domain.UpdateMetadata{TriggeredBy: string(data.GradingType), Timestamp: now})
	return data, nil
}

func validateGradingInput(input domain.GradingInput) error {
	if math.IsNaN(input.Score) || math.IsInf(input.Score, 0) || input.Score < 0 {
		return domain.ErrInvalidGrading
	}
	if math.IsNaN(input.MaxScore) || math.IsInf(input.MaxScore, 0) || input.MaxScore < 0 {
		return domain.ErrInvalidGrading
	}
	if !input.GradingType.Valid() {
		return domain.ErrInvalidGrading
	}
	for level, score := range input.BloomsLevelScores {
		if !level.Valid() || math.IsNaN(score) || score < 0 || score > 100 {
			return domain.ErrInvalidGrading
		}
	}
	return nil
}

func buildPerformanceData(sub domain.Submission, input domain.GradingInput, now time.Time) domain.PerformanceData {
	activity := sub.Activity

	maxScore := input.MaxScore
	if maxScore <= 0 {
		maxScore = activity.MaxScore
	}
	declared := domain.BloomsLevel(activity.BloomsLevel)
	timeSpent := timeSpentSeconds(sub)

	return domain.PerformanceData{
		StudentID:         sub.StudentID,
		ActivityID:        sub.ActivityID,
		SubmissionID:      sub.ID,
		Score:             input.Score,
		MaxScore:          maxScore,
		Percentage:        percentage(input.Score, maxScore),
		GradingType:       input.GradingType,
		BloomsLevel:       declared,
		BloomsLevelScores: input.BloomsLevelScores,
		DemonstratedLevel: demonstratedLevel(input.BloomsLevelScores, declared),
		TimeSpent:         timeSpent,
		AttemptCount:      sub.AttemptNumber,
		InteractionCount:  sub.InteractionCount,
		EngagementScore:   engagementScore(timeSpent, sub.InteractionCount, sub.AttemptNumber),
		ClassID:           activity.ClassID,
		SubjectID:         activity.SubjectID,
		TopicID:           activity.TopicID,
		ActivityType:      activity.Type,
		SubmittedAt:       sub.SubmittedAt,
		StartedAt:         sub.StartedAt,
		CompletedAt:       sub.CompletedAt,
		GradedAt:          now,
	}
}

func unifiedRecord(id snowflake.ID, data domain.PerformanceData, now time.Time) *domain.UnifiedPerformance {
	var scores datatypes.JSONMap
	if len(data.BloomsLevelScores) > 0 {
		scores = make(datatypes.JSONMap, len(data.BloomsLevelScores))
		for level, score := range data.BloomsLevelScores {
			scores[string(level)] = score
		}
	}
	return &domain.UnifiedPerformance{
		ID:                id,
		SubmissionID:      data.SubmissionID,
		StudentID:         data.StudentID,
		ActivityID:        data.ActivityID,
		ClassID:           data.ClassID,
		SubjectID:         data.SubjectID,
		TopicID:           data.TopicID,
		ActivityType:      data.ActivityType,
		Score:             data.Score,
		MaxScore:          data.MaxScore,
		Percentage:        data.Percentage,
		GradingType:       string(data.GradingType),
		BloomsLevel:       string(data.BloomsLevel),
		BloomsLevelScores: scores,
		DemonstratedLevel: string(data.DemonstratedLevel),
		TimeSpent:         data.TimeSpent,
		AttemptCount:      data.AttemptCount,
		InteractionCount:  data.InteractionCount,
		EngagementScore:   data.EngagementScore,
		SubmittedAt:       data.SubmittedAt,
		StartedAt:         data.StartedAt,
		CompletedAt:       data.CompletedAt,
		GradedAt:          data.GradedAt,
		UpdatedAt:         now,
	}
}

// HandleUpdate is the queue consumer.
func (s *Service) HandleUpdate(ctx context.Context, update domain.Update) (err error) {
	ctx, span := tracing.Start(ctx, tracerName, "analytics.handle_update",
		attribute.String("update_type", string(update.Type)),
		attribute.String("submission_id", update.Data.SubmissionID.String()),
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.metrics.RecordAnalyticsUpdate(ctx, string(update.Type), outcome)
		tracing.End(span, err)
	}()

	switch update.Type {
	case domain.UpdateActivityGraded:
		return s.processActivityGraded(ctx, update)
	case domain.UpdateBloomsDemonstrated:
		return s.guarded(func() error { return s.updateBloomsProgression(ctx, update.Data) })
	case domain.UpdateThresholdCrossed:
		if err := s.guarded(func() error { return s.recordAlert(ctx, update) }); err != nil {
			return err
		}
		s.publish(update.Type, update.Data, update.Metadata)
		return nil
	case domain.UpdateActivitySubmitted, domain.UpdateLearningPattern:
		s.publish(update.Type, update.Data, update.Metadata)
		return nil
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownUpdateType, update.Type)
	}
}

// processActivityGraded runs every rollup even when an earlier one fails and
// returns the joined failures.
func (s *Service) processActivityGraded(ctx context.Context, update domain.Update) error {
	data := update.Data
	log := logger.WithClass(s.log, data.ClassID.String()).With(
		zap.String("submission_id", data.SubmissionID.String()),
	)

	var errs []error
	steps := []struct {
		name string
		run  func() error
	}{
		{"student_metrics", func() error { return s.updateStudentMetrics(ctx, data) }},
		{"class_performance", func() error { return s.updateClassPerformance(ctx, data) }},
		{"blooms_progression", func() error { return s.updateBloomsProgression(ctx, data) }},
	}
	for _, step := range steps {
		if err := s.guarded(step.run); err != nil {
			log.Warn("analytics rollup failed", zap.String("rollup", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	s.checkThresholds(data, log)
	return errors.Join(errs...)
}

// checkThresholds queues one update per crossed threshold. A rejected update is
// already dead-lettered by the queue, so it does not fail the graded update.
func (s *Service) checkThresholds(data domain.PerformanceData, log *zap.Logger) {
	for _, alert := range thresholdAlerts(data.Percentage) {
		confidence := alert.confidence
		err := s.queue.Enqueue(domain.Update{
			Type: domain.UpdateThresholdCrossed,
			Data: data,
			Metadata: domain.UpdateMetadata{
				TriggeredBy: "threshold_check",
				Timestamp:   s.clock.Now(),
				Confidence:  &confidence,
				Reason:      alert.kind,
			},
		})
		if err != nil {
			log.Warn("threshold update not queued", zap.String("kind", alert.kind), zap.Error(err))
		}
	}
}

// guarded runs a rollup write through the circuit breaker.
func (s *Service) guarded(fn func() error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrRollupUnavailable, err)
	}
	return err
}

func (s *Service) publish(updateType domain.UpdateType, data domain.PerformanceData, meta domain.UpdateMetadata) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(notify.Event{
		Type:     updateType,
		ClassID:  data.ClassID.String(),
		Data:     data,
		Metadata: meta,
	})
}

var _ domain.Service = (*Service)(nil)

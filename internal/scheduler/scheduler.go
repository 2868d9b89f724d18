package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scholara/internal/clock"
	"github.com/smallbiznis/scholara/internal/config"
	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/smallbiznis/scholara/internal/lock"
	obsmetrics "github.com/smallbiznis/scholara/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	jobMaintenance      = "invoice_maintenance"
	jobEnsurePartitions = "ensure_partitions"
	jobArchiveInvoices  = "archive_invoices"
)

type runLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Archive domain.Service
	Policy  *config.PolicyHolder
	Locker  *lock.Locker `optional:"true"`
	Config  Config       `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	archive domain.Service
	policy  *config.PolicyHolder
	locker  runLocker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Archive == nil || p.Policy == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:     p.Log.Named("scheduler"),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		archive: p.Archive,
		policy:  p.Policy,
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next tick picks up the remaining work.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce ensures upcoming partitions exist and then runs the archive pass.
// When a locker is configured and another replica holds the lock, the run is skipped.
func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx := s.withLogContext(parent, jobMaintenance)

	release, acquired, err := s.acquire(ctx)
	if err != nil {
		obsmetrics.Scheduler().IncJobError(jobMaintenance, err)
		s.logSchedulerError(ctx, nil, "scheduler.lock.failed", jobMaintenance, err)
		return fmt.Errorf("%s: %w", jobMaintenance, err)
	}
	if !acquired {
		obsmetrics.Scheduler().IncJobSkipped(jobMaintenance, obsmetrics.SchedulerJobSkipReasonLockHeld)
		s.logger(ctx).Info("scheduler.run.skipped", zap.String("reason", obsmetrics.SchedulerJobSkipReasonLockHeld))
		return nil
	}
	defer release()

	policy := s.policy.Get()

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{jobEnsurePartitions, policy.EnablePartitioning, func(ctx context.Context) error {
			return s.runJob(ctx, jobEnsurePartitions, 2, s.cfg.PartitionTimeout, s.EnsurePartitionsJob)
		}},
		{jobArchiveInvoices, true, func(ctx context.Context) error {
			return s.runJob(ctx, jobArchiveInvoices, policy.BatchSize, s.cfg.ArchiveTimeout, s.ArchiveInvoicesJob)
		}},
	}

	for _, job := range jobs {
		if !job.Enabled {
			obsmetrics.Scheduler().IncJobSkipped(job.Name, obsmetrics.SchedulerJobSkipReasonDisabled)
			continue
		}
		err = errors.Join(err, job.Run(ctx))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// EnsurePartitionsJob creates the quarterly partitions of the current and next year.
func (s *Scheduler) EnsurePartitionsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobEnsurePartitions, 2)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	year := s.clock.Now().UTC().Year()
	var err error
	for _, y := range []int{year, year + 1} {
		if createErr := s.archive.CreatePartitions(ctx, y); createErr != nil {
			s.logSchedulerError(ctx, run, "scheduler.partitions.create_failed", jobEnsurePartitions, createErr, zap.Int("year", y))
			err = errors.Join(err, createErr)
			continue
		}
		run.AddProcessed(1)
	}
	obsmetrics.Scheduler().AddBatchProcessed(jobEnsurePartitions, "years", run.processedCount)
	return err
}

// ArchiveInvoicesJob runs one archive pass with the current file policy.
func (s *Scheduler) ArchiveInvoicesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobArchiveInvoices, s.policy.Get().BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.archive.ArchiveOldInvoices(ctx, nil)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.archive.failed", jobArchiveInvoices, err)
		return err
	}

	run.AddProcessed(len(result.ProcessedPartitions))
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(jobArchiveInvoices, "partitions", len(result.ProcessedPartitions))
	schedMetrics.AddBatchProcessed(jobArchiveInvoices, "archived_rows", int(result.ArchivedCount))
	schedMetrics.AddBatchProcessed(jobArchiveInvoices, "compressed_rows", int(result.CompressedCount))
	schedMetrics.AddBatchProcessed(jobArchiveInvoices, "deleted_rows", int(result.DeletedCount))

	s.logger(ctx).Info("scheduler.archive.completed",
		zap.Int64("archived_count", result.ArchivedCount),
		zap.Int64("compressed_count", result.CompressedCount),
		zap.Int64("deleted_count", result.DeletedCount),
		zap.Strings("processed_partitions", result.ProcessedPartitions),
	)
	return nil
}

// acquire takes the maintenance lock. Without a locker every run proceeds.
func (s *Scheduler) acquire(ctx context.Context) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	token, ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		// The run context may already be cancelled on shutdown.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, s.cfg.LockKey, token); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release_failed", zap.Error(err))
		}
	}, true, nil
}

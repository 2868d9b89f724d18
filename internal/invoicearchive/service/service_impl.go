package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/smallbiznis/scholara/internal/clock"
	"github.com/smallbiznis/scholara/internal/config"
	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/smallbiznis/scholara/internal/invoicearchive/guard"
	"github.com/smallbiznis/scholara/internal/invoicearchive/partition"
	obslogger "github.com/smallbiznis/scholara/internal/observability/logger"
	"github.com/smallbiznis/scholara/internal/observability/metrics"
	"github.com/smallbiznis/scholara/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tracerName = "scholara/invoicearchive"

const (
	opCreatePartitions = "create_partitions"
	opPartitionInfo    = "get_partition_info"
	opArchiveInvoices  = "archive_old_invoices"
	opArchivingStats   = "get_archiving_stats"
)

type Params struct {
	fx.In

	Catalog        domain.Catalog
	Policy         *config.PolicyHolder
	Log            *zap.Logger
	Clock          clock.Clock
	Metrics        *metrics.Metrics        `optional:"true"`
	ArchiveMetrics *metrics.ArchiveMetrics `optional:"true"`
}

type Service struct {
	catalog        domain.Catalog
	policy         *config.PolicyHolder
	log            *zap.Logger
	clock          clock.Clock
	metrics        *metrics.Metrics
	archiveMetrics *metrics.ArchiveMetrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	policy := p.Policy
	if policy == nil {
		policy = config.NewStaticPolicyHolder(domain.DefaultPolicy())
	}
	return &Service{
		catalog:        p.Catalog,
		policy:         policy,
		log:            p.Log.Named("invoicearchive.service"),
		clock:          clk,
		metrics:        p.Metrics,
		archiveMetrics: p.ArchiveMetrics,
	}
}

// CreatePartitions ensures the four quarterly partitions of year exist.
// Existing partitions are left untouched.
func (s *Service) CreatePartitions(ctx context.Context, year int) (err error) {
	ctx, span := tracing.Start(ctx, tracerName, opCreatePartitions, attribute.Int("year", year))
	start := time.Now()
	defer func() {
		s.archiveMetrics.ObserveOperation(opCreatePartitions, time.Since(start), err)
		tracing.End(span, err)
	}()

	if !partition.ValidYear(year) {
		return domain.ErrInvalidYear
	}

	created := 0
	for quarter := 1; quarter <= 4; quarter++ {
		spec := partition.Spec(year, quarter)
		exists, err := s.catalog.PartitionExists(ctx, spec.Name)
		if err != nil {
			return s.fail(ctx, opCreatePartitions, domain.MsgCreatePartitions, err, zap.String("partition", spec.Name))
		}
		if exists {
			continue
		}
		if err := s.catalog.CreatePartition(ctx, spec); err != nil {
			return s.fail(ctx, opCreatePartitions, domain.MsgCreatePartitions, err, zap.String("partition", spec.Name))
		}
		created++
		obslogger.WithPartition(s.log, spec.Name).Info("invoice partition created",
			zap.Time("range_start", spec.RangeStart),
			zap.Time("range_end", spec.RangeEnd),
		)
	}

	s.metrics.RecordPartitionsCreated(ctx, created)
	return nil
}

// GetPartitionInfo lists every live invoice partition with its derived status,
// ordered by partition key.
func (s *Service) GetPartitionInfo(ctx context.Context) (infos []domain.PartitionInfo, err error) {
	ctx, span := tracing.Start(ctx, tracerName, opPartitionInfo)
	start := time.Now()
	defer func() {
		s.archiveMetrics.ObserveOperation(opPartitionInfo, time.Since(start), err)
		tracing.End(span, err)
	}()

	infos, err = s.partitionInfo(ctx, s.policy.Get(), s.clock.Now())
	if err != nil {
		return nil, s.fail(ctx, opPartitionInfo, domain.MsgPartitionInfo, err)
	}
	return infos, nil
}

func (s *Service) partitionInfo(ctx context.Context, policy domain.Policy, now time.Time) ([]domain.PartitionInfo, error) {
	names, err := s.catalog.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]domain.PartitionInfo, 0, len(names))
	for _, name := range names {
		year, quarter, ok := partition.Parse(name)
		if !ok {
			continue
		}
		count, err := s.catalog.CountRows(ctx, name)
		if errors.Is(err, domain.ErrPartitionNotFound) {
			// Dropped between listing and counting.
			s.log.Debug("partition disappeared during introspection", zap.String("partition", name))
			continue
		}
		if err != nil {
			return nil, err
		}
		size, err := s.catalog.RelationSize(ctx, name)
		if err != nil {
			return nil, err
		}
		startDate, endDate, _ := partition.Range(year, quarter)
		infos = append(infos, domain.PartitionInfo{
			PartitionName: name,
			PartitionKey:  partition.Key(year, quarter),
			Year:          year,
			Quarter:       quarter,
			StartDate:     startDate,
			EndDate:       endDate,
			RecordCount:   count,
			TotalSize:     size,
			Status:        partition.Status(policy, endDate, now),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartDate.Before(infos[j].StartDate)
	})
	return infos, nil
}

// ArchiveOldInvoices applies at most one lifecycle transition per partition.
// Transitions already applied stay applied when a later partition fails; the
// run is safe to repeat.
func (s *Service) ArchiveOldInvoices(ctx context.Context, override *domain.PolicyOverride) (result domain.ArchiveResult, err error) {
	ctx, span := tracing.Start(ctx, tracerName, opArchiveInvoices)
	start := time.Now()
	defer func() {
		s.archiveMetrics.ObserveOperation(opArchiveInvoices, time.Since(start), err)
		tracing.End(span, err)
	}()

	policy := s.policy.Get().Merge(override)
	if err := policy.Validate(); err != nil {
		return domain.ArchiveResult{}, err
	}

	now := s.clock.Now()
	infos, err := s.partitionInfo(ctx, policy, now)
	if err != nil {
		return domain.ArchiveResult{}, s.fail(ctx, opArchiveInvoices, domain.MsgArchiveInvoices, err)
	}

	result.ProcessedPartitions = []string{}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return result, s.fail(ctx, opArchiveInvoices, domain.MsgArchiveInvoices, err)
		}
		if err := s.transition(ctx, policy, info, now, &result); err != nil {
			return result, s.fail(ctx, opArchiveInvoices, domain.MsgArchiveInvoices, err,
				zap.String("partition", info.PartitionName),
				zap.Strings("processed_partitions", result.ProcessedPartitions),
			)
		}
	}

	s.log.Info("invoice archiving finished",
		zap.Int64("archived_count", result.ArchivedCount),
		zap.Int64("compressed_count", result.CompressedCount),
		zap.Int64("deleted_count", result.DeletedCount),
		zap.Int("processed_partitions", len(result.ProcessedPartitions)),
	)
	return result, nil
}

func (s *Service) transition(ctx context.Context, policy domain.Policy, info domain.PartitionInfo, now time.Time, result *domain.ArchiveResult) error {
	in := guard.Input{
		AgeMonths: partition.AgeInMonths(info.EndDate, now),
		AgeYears:  partition.AgeInYears(info.EndDate, now),
	}
	if policy.EnableCompression && in.AgeMonths > policy.CompressAfterMonths {
		compressed, err := s.catalog.IsCompressed(ctx, info.PartitionName, domain.CompressibleColumns)
		if err != nil {
			return err
		}
		in.Compressed = compressed
	}

	action := guard.Decide(policy, in)
	log := obslogger.WithPartition(s.log, info.PartitionName).With(
		zap.String("action", string(action)),
		zap.Int("age_months", in.AgeMonths),
	)

	switch action {
	case guard.ActionDelete:
		archive := partition.ArchiveName(info.Year, info.Quarter)
		if err := s.catalog.Drop(ctx, info.PartitionName, archive); err != nil {
			return err
		}
		result.DeletedCount += info.RecordCount
	case guard.ActionCompress:
		log.Info("compressing invoice partition; table is locked until the rewrite finishes")
		if err := s.catalog.Compress(ctx, info.PartitionName, domain.CompressibleColumns); err != nil {
			return err
		}
		result.CompressedCount += info.RecordCount
	case guard.ActionArchive:
		moved, err := s.archive(ctx, info, policy.BatchSize)
		if err != nil {
			return err
		}
		if moved == 0 {
			return nil
		}
		s.archiveMetrics.AddRowsMoved(moved)
		result.ArchivedCount += moved
	default:
		return nil
	}

	result.ProcessedPartitions = append(result.ProcessedPartitions, string(action)+":"+info.PartitionName)
	s.archiveMetrics.IncTransition(string(action))
	s.metrics.RecordPartitionTransition(ctx, string(action))
	log.Info("invoice partition transitioned")
	return nil
}

// archive moves settled rows into the archive twin batch by batch until none are left.
func (s *Service) archive(ctx context.Context, info domain.PartitionInfo, batchSize int) (int64, error) {
	archive := partition.ArchiveName(info.Year, info.Quarter)
	if err := s.catalog.EnsureArchiveTable(ctx, info.PartitionName, archive); err != nil {
		return 0, err
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		moved, err := s.catalog.MoveSettledRows(ctx, info.PartitionName, archive, domain.InFlightStatuses, batchSize)
		if err != nil {
			return total, err
		}
		total += moved
		if moved < int64(batchSize) {
			return total, nil
		}
	}
}

// GetArchivingStats aggregates partition counts and records per status.
func (s *Service) GetArchivingStats(ctx context.Context) (stats domain.ArchivingStats, err error) {
	ctx, span := tracing.Start(ctx, tracerName, opArchivingStats)
	start := time.Now()
	defer func() {
		s.archiveMetrics.ObserveOperation(opArchivingStats, time.Since(start), err)
		tracing.End(span, err)
	}()

	infos, err := s.partitionInfo(ctx, s.policy.Get(), s.clock.Now())
	if err != nil {
		return domain.ArchivingStats{}, s.fail(ctx, opArchivingStats, domain.MsgArchivingStats, err)
	}
	totalSize, err := s.catalog.TotalSize(ctx)
	if err != nil {
		return domain.ArchivingStats{}, s.fail(ctx, opArchivingStats, domain.MsgArchivingStats, err)
	}

	stats = Summarize(infos)
	stats.TotalSize = totalSize

	s.archiveMetrics.SetPartitionCounts(string(domain.PartitionStatusActive), stats.ActivePartitions, stats.ActiveRecords)
	s.archiveMetrics.SetPartitionCounts(string(domain.PartitionStatusArchived), stats.ArchivedPartitions, stats.ArchivedRecords)
	s.archiveMetrics.SetPartitionCounts(string(domain.PartitionStatusCompressed), stats.CompressedPartitions, stats.CompressedRecords)
	return stats, nil
}

// Summarize folds partition infos into stats. TotalSize is left to the caller.
func Summarize(infos []domain.PartitionInfo) domain.ArchivingStats {
	stats := domain.ArchivingStats{TotalPartitions: len(infos)}
	for _, info := range infos {
		switch info.Status {
		case domain.PartitionStatusActive:
			stats.ActivePartitions++
			stats.ActiveRecords += info.RecordCount
		case domain.PartitionStatusArchived:
			stats.ArchivedPartitions++
			stats.ArchivedRecords += info.RecordCount
		case domain.PartitionStatusCompressed:
			stats.CompressedPartitions++
			stats.CompressedRecords += info.RecordCount
		}
		stats.TotalRecords += info.RecordCount

		startDate, endDate := info.StartDate, info.EndDate
		if stats.OldestDate == nil || startDate.Before(*stats.OldestDate) {
			stats.OldestDate = &startDate
		}
		if stats.NewestDate == nil || endDate.After(*stats.NewestDate) {
			stats.NewestDate = &endDate
		}
	}
	return stats
}

func (s *Service) fail(ctx context.Context, op, message string, err error, fields ...zap.Field) error {
	if errors.Is(err, domain.ErrInvalidIdentifier) || errors.Is(err, domain.ErrUnsupportedStore) {
		fields = append(fields, zap.String("error_kind", "configuration"))
	}
	fields = append(fields,
		zap.String("operation", op),
		zap.String("reason", metrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	)
	obslogger.WithContext(ctx, s.log).Error(message, fields...)
	return domain.NewOperationError(op, message, err)
}

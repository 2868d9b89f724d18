package domain

import "context"

// Catalog is the storage-level surface the lifecycle manager drives.
// Implementations must only receive identifiers that passed partition.ValidateIdentifier.
type Catalog interface {
	ListPartitions(ctx context.Context) ([]string, error)
	PartitionExists(ctx context.Context, name string) (bool, error)
	CreatePartition(ctx context.Context, spec PartitionSpec) error
	CountRows(ctx context.Context, name string) (int64, error)
	RelationSize(ctx context.Context, name string) (string, error)
	TotalSize(ctx context.Context) (string, error)

	EnsureArchiveTable(ctx context.Context, live, archive string) error
	// MoveSettledRows moves one batch of rows whose status is not in keep and
	// reports how many rows moved; zero means nothing is left to move.
	MoveSettledRows(ctx context.Context, live, archive string, keep []InvoiceStatus, batchSize int) (int64, error)
	IsCompressed(ctx context.Context, name string, columns []string) (bool, error)
	Compress(ctx context.Context, name string, columns []string) error
	Drop(ctx context.Context, names ...string) error
}

// Service is the partition lifecycle manager.
type Service interface {
	CreatePartitions(ctx context.Context, year int) error
	GetPartitionInfo(ctx context.Context) ([]PartitionInfo, error)
	ArchiveOldInvoices(ctx context.Context, override *PolicyOverride) (ArchiveResult, error)
	GetArchivingStats(ctx context.Context) (ArchivingStats, error)
}

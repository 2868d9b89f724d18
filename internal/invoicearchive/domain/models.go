// Package domain contains the invoice partition lifecycle model.
package domain

import "time"

// PartitionStatus is derived from partition age; it is never stored.
type PartitionStatus string

const (
	PartitionStatusActive     PartitionStatus = "ACTIVE"
	PartitionStatusArchived   PartitionStatus = "ARCHIVED"
	PartitionStatusCompressed PartitionStatus = "COMPRESSED"
)

// InvoiceStatus mirrors the status column of the invoices table.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusSent          InvoiceStatus = "SENT"
	InvoiceStatusViewed        InvoiceStatus = "VIEWED"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

// InFlightStatuses stay in the live partition when it is archived.
var InFlightStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusSent,
	InvoiceStatusViewed,
}

// CompressibleColumns are the large variable-length invoice columns.
var CompressibleColumns = []string{"line_items", "metadata"}

// PartitionInfo describes one quarterly invoice partition.
type PartitionInfo struct {
	PartitionName string          `json:"partition_name"`
	PartitionKey  string          `json:"partition_key"`
	Year          int             `json:"year"`
	Quarter       int             `json:"quarter"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	RecordCount   int64           `json:"record_count"`
	TotalSize     string          `json:"total_size"`
	Status        PartitionStatus `json:"status"`
}

// PartitionSpec is everything the catalog needs to create a partition.
type PartitionSpec struct {
	Name       string
	Parent     string
	RangeStart time.Time
	RangeEnd   time.Time // exclusive
	Indexes    []IndexSpec
}

type IndexSpec struct {
	Name    string
	Columns []string
}

// ArchiveResult summarizes one ArchiveOldInvoices run.
type ArchiveResult struct {
	ArchivedCount       int64    `json:"archived_count"`
	CompressedCount     int64    `json:"compressed_count"`
	DeletedCount        int64    `json:"deleted_count"`
	ProcessedPartitions []string `json:"processed_partitions"`
}

// ArchivingStats aggregates the current partition set.
type ArchivingStats struct {
	TotalPartitions      int        `json:"total_partitions"`
	ActivePartitions     int        `json:"active_partitions"`
	ArchivedPartitions   int        `json:"archived_partitions"`
	CompressedPartitions int        `json:"compressed_partitions"`
	ActiveRecords        int64      `json:"active_records"`
	ArchivedRecords      int64      `json:"archived_records"`
	CompressedRecords    int64      `json:"compressed_records"`
	TotalRecords         int64      `json:"total_records"`
	OldestDate           *time.Time `json:"oldest_date,omitempty"`
	NewestDate           *time.Time `json:"newest_date,omitempty"`
	TotalSize            string     `json:"total_size"`
}

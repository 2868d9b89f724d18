package domain

import "errors"

var (
	ErrInternal          = errors.New("internal_error")
	ErrInvalidPolicy     = errors.New("invalid_archiving_policy")
	ErrInvalidYear       = errors.New("invalid_partition_year")
	ErrInvalidIdentifier = errors.New("invalid_partition_identifier")
	ErrUnsupportedStore  = errors.New("partition_catalog_requires_postgres")
	ErrPartitionNotFound = errors.New("partition_not_found")
)

const (
	MsgCreatePartitions = "Failed to create partitions"
	MsgPartitionInfo    = "Failed to get partition information"
	MsgArchiveInvoices  = "Failed to archive invoices"
	MsgArchivingStats   = "Failed to get archiving statistics"
)

// OperationError is the internal-error signal returned by the lifecycle manager.
// The message is fixed per operation; the store error is kept as the cause.
type OperationError struct {
	Op      string
	Message string
	Err     error
}

func NewOperationError(op, message string, err error) *OperationError {
	return &OperationError{Op: op, Message: message, Err: err}
}

func (e *OperationError) Error() string {
	return e.Message
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return target == ErrInternal
}

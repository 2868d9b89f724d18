package guard

import (
	"errors"

	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
)

// Action is the single lifecycle transition chosen for a partition in one run.
type Action string

const (
	ActionNone     Action = "none"
	ActionDelete   Action = "DELETED"
	ActionCompress Action = "COMPRESSED"
	ActionArchive  Action = "ARCHIVED"
)

var (
	ErrPartitionTooYoung   = errors.New("partition_too_young")
	ErrAlreadyCompressed   = errors.New("partition_already_compressed")
	ErrCompressionOff      = errors.New("partition_compression_disabled")
	ErrPartitionNotExpired = errors.New("partition_not_expired")
	ErrPastArchiveStage    = errors.New("partition_past_archive_stage")
)

// Input is the age and physical state of one partition at decision time.
type Input struct {
	AgeMonths  int
	AgeYears   int
	Compressed bool
}

// Decide applies the lifecycle rules in priority order; the first match wins.
func Decide(policy domain.Policy, in Input) Action {
	if EnsureCanDelete(policy, in) == nil {
		return ActionDelete
	}
	if EnsureCanCompress(policy, in) == nil {
		return ActionCompress
	}
	if EnsureCanArchive(policy, in) == nil {
		return ActionArchive
	}
	return ActionNone
}

func EnsureCanDelete(policy domain.Policy, in Input) error {
	if in.AgeYears <= policy.DeleteAfterYears {
		return ErrPartitionNotExpired
	}
	return nil
}

func EnsureCanCompress(policy domain.Policy, in Input) error {
	if !policy.EnableCompression {
		return ErrCompressionOff
	}
	if in.AgeMonths <= policy.CompressAfterMonths {
		return ErrPartitionTooYoung
	}
	if in.Compressed {
		return ErrAlreadyCompressed
	}
	return nil
}

// EnsureCanArchive admits partitions in the archive stage. Once compression
// owns a partition its rows stay put; a partition with nothing settled left
// simply moves zero rows.
func EnsureCanArchive(policy domain.Policy, in Input) error {
	if in.AgeMonths <= policy.ArchiveAfterMonths {
		return ErrPartitionTooYoung
	}
	if policy.EnableCompression && in.AgeMonths > policy.CompressAfterMonths {
		return ErrPastArchiveStage
	}
	return nil
}

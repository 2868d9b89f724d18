package domain

import "errors"

var (
	ErrSubmissionNotFound = errors.New("submission_not_found")
	ErrInvalidGrading     = errors.New("invalid_grading_input")
	ErrQueueFull          = errors.New("analytics_queue_full")
	ErrRollupUnavailable  = errors.New("analytics_rollup_unavailable")
	ErrUnknownUpdateType  = errors.New("unknown_analytics_update_type")
)

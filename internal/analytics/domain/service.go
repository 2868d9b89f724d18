package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the grading analytics pipeline.
type Service interface {
	// ProcessGradingEvent derives performance data for a graded submission,
	// queues the rollup work and writes the unified record. It does not wait
	// for the queued rollups.
	ProcessGradingEvent(ctx context.Context, submissionID snowflake.ID, input GradingInput) (PerformanceData, error)
	// HandleUpdate processes one queued update. It is the queue consumer.
	HandleUpdate(ctx context.Context, update Update) error
	// ListAlerts returns threshold alerts, newest first.
	ListAlerts(ctx context.Context, filter AlertFilter) ([]PerformanceAlert, error)
}

// AlertFilter narrows ListAlerts. Zero values match everything.
type AlertFilter struct {
	ClassID snowflake.ID
	Kind    string
	Since   time.Time
	Limit   int
}

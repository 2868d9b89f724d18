// Package domain contains the grading analytics model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type BloomsLevel string

const (
	BloomsRemember   BloomsLevel = "REMEMBER"
	BloomsUnderstand BloomsLevel = "UNDERSTAND"
	BloomsApply      BloomsLevel = "APPLY"
	BloomsAnalyze    BloomsLevel = "ANALYZE"
	BloomsEvaluate   BloomsLevel = "EVALUATE"
	BloomsCreate     BloomsLevel = "CREATE"
)

// BloomsLevels lists the taxonomy in its canonical order; ties resolve to the earlier level.
var BloomsLevels = []BloomsLevel{
	BloomsRemember,
	BloomsUnderstand,
	BloomsApply,
	BloomsAnalyze,
	BloomsEvaluate,
	BloomsCreate,
}

func (l BloomsLevel) Valid() bool {
	for _, level := range BloomsLevels {
		if l == level {
			return true
		}
	}
	return false
}

type GradingType string

const (
	GradingTypeAuto   GradingType = "AUTO"
	GradingTypeManual GradingType = "MANUAL"
	GradingTypeAI     GradingType = "AI"
	GradingTypeHybrid GradingType = "HYBRID"
)

func (g GradingType) Valid() bool {
	switch g {
	case GradingTypeAuto, GradingTypeManual, GradingTypeAI, GradingTypeHybrid:
		return true
	default:
		return false
	}
}

type UpdateType string

const (
	UpdateActivitySubmitted  UpdateType = "ACTIVITY_SUBMITTED"
	UpdateActivityGraded     UpdateType = "ACTIVITY_GRADED"
	UpdateBloomsDemonstrated UpdateType = "BLOOMS_LEVEL_DEMONSTRATED"
	UpdateThresholdCrossed   UpdateType = "PERFORMANCE_THRESHOLD_CROSSED"
	UpdateLearningPattern    UpdateType = "LEARNING_PATTERN_DETECTED"
)

const (
	AlertStruggling  = "struggling"
	AlertExceptional = "exceptional"
)

// PerformanceData describes one graded submission. It is the payload of every
// analytics update and the source of every rollup.
type PerformanceData struct {
	StudentID    snowflake.ID `json:"student_id"`
	ActivityID   snowflake.ID `json:"activity_id"`
	SubmissionID snowflake.ID `json:"submission_id"`

	Score       float64     `json:"score"`
	MaxScore    float64     `json:"max_score"`
	Percentage  float64     `json:"percentage"`
	GradingType GradingType `json:"grading_type"`

	BloomsLevel       BloomsLevel             `json:"blooms_level,omitempty"`
	BloomsLevelScores map[BloomsLevel]float64 `json:"blooms_level_scores,omitempty"`
	DemonstratedLevel BloomsLevel             `json:"demonstrated_level,omitempty"`

	TimeSpent        int64   `json:"time_spent"`
	AttemptCount     int     `json:"attempt_count"`
	InteractionCount int     `json:"interaction_count"`
	EngagementScore  float64 `json:"engagement_score"`

	ClassID      snowflake.ID  `json:"class_id"`
	SubjectID    snowflake.ID  `json:"subject_id"`
	TopicID      *snowflake.ID `json:"topic_id,omitempty"`
	ActivityType string        `json:"activity_type"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	GradedAt    time.Time  `json:"graded_at"`
}

// LastActivityAt is the completion time, or the grading time when the
// submission never recorded one.
func (d PerformanceData) LastActivityAt() time.Time {
	if d.CompletedAt != nil {
		return *d.CompletedAt
	}
	return d.GradedAt
}

type UpdateMetadata struct {
	TriggeredBy string    `json:"triggered_by"`
	Timestamp   time.Time `json:"timestamp"`
	Confidence  *float64  `json:"confidence,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Update is one element of the analytics queue.
type Update struct {
	Type     UpdateType      `json:"type"`
	Data     PerformanceData `json:"data"`
	Metadata UpdateMetadata  `json:"metadata"`
}

// GradingInput is what the grader supplies for a submission.
type GradingInput struct {
	Score             float64                 `json:"score"`
	MaxScore          float64                 `json:"max_score"`
	GradingType       GradingType             `json:"grading_type"`
	BloomsLevelScores map[BloomsLevel]float64 `json:"blooms_level_scores,omitempty"`
}

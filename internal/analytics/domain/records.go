package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Student struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ClassID   snowflake.ID `gorm:"not null;index"`
	FullName  string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Student) TableName() string { return "students" }

type Activity struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	ClassID     snowflake.ID  `gorm:"not null;index"`
	SubjectID   snowflake.ID  `gorm:"not null;index"`
	TopicID     *snowflake.ID `gorm:"index"`
	Title       string        `gorm:"type:text;not null"`
	Type        string        `gorm:"column:activity_type;type:text;not null"`
	BloomsLevel string        `gorm:"type:text"`
	MaxScore    float64       `gorm:"not null;default:100"`
	CreatedAt   time.Time     `gorm:"not null"`
}

func (Activity) TableName() string { return "activities" }

type Submission struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ActivityID       snowflake.ID `gorm:"not null;index"`
	StudentID        snowflake.ID `gorm:"not null;index"`
	AttemptNumber    int          `gorm:"not null;default:1"`
	InteractionCount int          `gorm:"not null;default:0"`
	MinutesSpent     *int
	StartedAt        *time.Time
	CompletedAt      *time.Time
	SubmittedAt      time.Time `gorm:"not null"`
	Score            *float64
	GradedAt         *time.Time

	Activity Activity `gorm:"foreignKey:ActivityID"`
	Student  Student  `gorm:"foreignKey:StudentID"`
}

func (Submission) TableName() string { return "submissions" }

// UnifiedPerformance is the per-submission record written synchronously on grading.
type UnifiedPerformance struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	SubmissionID      snowflake.ID `gorm:"not null;uniqueIndex"`
	StudentID         snowflake.ID `gorm:"not null;index"`
	ActivityID        snowflake.ID `gorm:"not null"`
	ClassID           snowflake.ID `gorm:"not null;index"`
	SubjectID         snowflake.ID `gorm:"not null"`
	TopicID           *snowflake.ID
	ActivityType      string            `gorm:"type:text"`
	Score             float64           `gorm:"not null"`
	MaxScore          float64           `gorm:"not null"`
	Percentage        float64           `gorm:"not null"`
	GradingType       string            `gorm:"type:text;not null"`
	BloomsLevel       string            `gorm:"type:text"`
	BloomsLevelScores datatypes.JSONMap `gorm:"type:json"`
	DemonstratedLevel string            `gorm:"type:text"`
	TimeSpent         int64             `gorm:"not null"`
	AttemptCount      int               `gorm:"not null"`
	InteractionCount  int               `gorm:"not null"`
	EngagementScore   float64           `gorm:"not null"`
	SubmittedAt       time.Time         `gorm:"not null"`
	StartedAt         *time.Time
	CompletedAt       *time.Time
	GradedAt          time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (UnifiedPerformance) TableName() string { return "unified_performance" }

type StudentPerformanceMetrics struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	StudentID         snowflake.ID `gorm:"not null;uniqueIndex:ux_student_metrics_student_subject"`
	SubjectID         snowflake.ID `gorm:"not null;uniqueIndex:ux_student_metrics_student_subject"`
	TotalScore        float64      `gorm:"not null"`
	TotalMaxScore     float64      `gorm:"not null"`
	ActivityCount     int64        `gorm:"not null"`
	AverageScore      float64      `gorm:"not null"`
	AveragePercentage float64      `gorm:"not null"`
	TotalTimeSpent    int64        `gorm:"not null"`
	AverageEngagement float64      `gorm:"not null"`
	LastActivityDate  time.Time    `gorm:"not null"`
	CreatedAt         time.Time    `gorm:"not null"`
	UpdatedAt         time.Time    `gorm:"not null"`
}

func (StudentPerformanceMetrics) TableName() string { return "student_performance_metrics" }

type ClassPerformance struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ClassID          snowflake.ID `gorm:"not null;uniqueIndex"`
	AverageGrade     float64      `gorm:"not null"`
	ActivitiesGraded int64        `gorm:"not null"`
	StrugglingCount  int64        `gorm:"not null;default:0"`
	ExceptionalCount int64        `gorm:"not null;default:0"`
	LastUpdated      time.Time    `gorm:"not null"`
	CreatedAt        time.Time    `gorm:"not null"`
}

func (ClassPerformance) TableName() string { return "class_performance" }

type BloomsProgression struct {
	ID                    snowflake.ID      `gorm:"primaryKey"`
	StudentID             snowflake.ID      `gorm:"not null;uniqueIndex:ux_blooms_progression_student_subject"`
	SubjectID             snowflake.ID      `gorm:"not null;uniqueIndex:ux_blooms_progression_student_subject"`
	LevelCounts           datatypes.JSONMap `gorm:"type:json;not null"`
	LastDemonstratedLevel string            `gorm:"type:text;not null"`
	LastActivityDate      time.Time         `gorm:"not null"`
	CreatedAt             time.Time         `gorm:"not null"`
	UpdatedAt             time.Time         `gorm:"not null"`
}

func (BloomsProgression) TableName() string { return "blooms_progression" }

// LevelCount reads one level's occurrence count regardless of how the JSON decoded it.
func (p BloomsProgression) LevelCount(level BloomsLevel) int64 {
	switch v := p.LevelCounts[string(level)].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

type PerformanceAlert struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	StudentID    snowflake.ID `gorm:"not null;index"`
	ClassID      snowflake.ID `gorm:"not null;index"`
	SubjectID    snowflake.ID `gorm:"not null"`
	SubmissionID snowflake.ID `gorm:"not null;uniqueIndex:ux_performance_alerts_submission_kind"`
	Kind         string       `gorm:"type:text;not null;uniqueIndex:ux_performance_alerts_submission_kind"`
	Percentage   float64      `gorm:"not null"`
	Confidence   float64      `gorm:"not null"`
	TriggeredBy  string       `gorm:"type:text;not null"`
	CreatedAt    time.Time    `gorm:"not null"`
}

func (PerformanceAlert) TableName() string { return "performance_alerts" }

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/internal/analytics/queue"
)

type gradingRequest struct {
	Score             *float64                                `json:"score"`
	MaxScore          *float64                                `json:"max_score"`
	GradingType       string                                  `json:"grading_type"`
	BloomsLevelScores map[analyticsdomain.BloomsLevel]float64 `json:"blooms_level_scores"`
}

type performanceAlertResponse struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	ClassID      string    `json:"class_id"`
	SubjectID    string    `json:"subject_id"`
	SubmissionID string    `json:"submission_id"`
	Kind         string    `json:"kind"`
	Percentage   float64   `json:"percentage"`
	Confidence   float64   `json:"confidence"`
	TriggeredBy  string    `json:"triggered_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type deadLettersResponse struct {
	QueueDepth    int                   `json:"queue_depth"`
	QueueCapacity int                   `json:"queue_capacity"`
	Stats         queue.DeadLetterStats `json:"stats"`
	Entries       []queue.DeadLetter    `json:"entries"`
}

func (s *Server) SubmitGrading(c *gin.Context) {
	submissionID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || submissionID == 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req gradingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Score == nil {
		AbortWithError(c, newValidationError("score", "required", "score is required"))
		return
	}
	if req.MaxScore == nil {
		AbortWithError(c, newValidationError("max_score", "required", "max_score is required"))
		return
	}

	data, err := s.analyticsSvc.ProcessGradingEvent(c.Request.Context(), submissionID, analyticsdomain.GradingInput{
		Score:             *req.Score,
		MaxScore:          *req.MaxScore,
		GradingType:       analyticsdomain.GradingType(strings.ToUpper(strings.TrimSpace(req.GradingType))),
		BloomsLevelScores: req.BloomsLevelScores,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("class_id", data.ClassID.String())
	c.JSON(http.StatusAccepted, gin.H{"data": data})
}

func (s *Server) ListPerformanceAlerts(c *gin.Context) {
	classID, err := parseOptionalSnowflakeID(c.Query("class_id"))
	if err != nil {
		AbortWithError(c, newValidationError("class_id", "invalid_class_id", "invalid class_id"))
		return
	}
	since, err := parseOptionalTime(c.Query("since"), false)
	if err != nil {
		AbortWithError(c, newValidationError("since", "invalid_since", "invalid since"))
		return
	}
	limit, err := parseOptionalInt64(c.Query("limit"))
	if err != nil || (limit != nil && *limit <= 0) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	kind := strings.ToLower(strings.TrimSpace(c.Query("kind")))
	switch kind {
	case "", analyticsdomain.AlertStruggling, analyticsdomain.AlertExceptional:
	default:
		AbortWithError(c, newValidationError("kind", "invalid_kind", "kind must be struggling or exceptional"))
		return
	}

	filter := analyticsdomain.AlertFilter{Kind: kind}
	if classID != nil {
		filter.ClassID = *classID
	}
	if since != nil {
		filter.Since = *since
	}
	if limit != nil {
		filter.Limit = int(*limit)
	}

	alerts, err := s.analyticsSvc.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]performanceAlertResponse, 0, len(alerts))
	for _, alert := range alerts {
		resp = append(resp, performanceAlertResponse{
			ID:           alert.ID.String(),
			StudentID:    alert.StudentID.String(),
			ClassID:      alert.ClassID.String(),
			SubjectID:    alert.SubjectID.String(),
			SubmissionID: alert.SubmissionID.String(),
			Kind:         alert.Kind,
			Percentage:   alert.Percentage,
			Confidence:   alert.Confidence,
			TriggeredBy:  alert.TriggeredBy,
			CreatedAt:    alert.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDeadLetters(c *gin.Context) {
	if s.queue == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	deadLetters := s.queue.DeadLetters()
	entries := deadLetters.Snapshot()
	if entries == nil {
		entries = []queue.DeadLetter{}
	}

	c.JSON(http.StatusOK, gin.H{"data": deadLettersResponse{
		QueueDepth:    s.queue.Len(),
		QueueCapacity: s.queue.Capacity(),
		Stats:         deadLetters.Stats(),
		Entries:       entries,
	}})
}

package service

import (
	"math"

	"github.com/smallbiznis/scholara/internal/analytics/domain"
)

const (
	demonstrationThreshold = 70.0

	strugglingBelow       = 60.0
	exceptionalAbove      = 95.0
	strugglingConfidence  = 0.8
	exceptionalConfidence = 0.9
)

// timeSpentSeconds prefers the recorded start/finish pair and falls back to the
// self-reported minutes.
func timeSpentSeconds(sub domain.Submission) int64 {
	if sub.StartedAt != nil && sub.CompletedAt != nil {
		seconds := int64(sub.CompletedAt.Sub(*sub.StartedAt).Seconds())
		if seconds < 0 {
			return 0
		}
		return seconds
	}
	if sub.MinutesSpent != nil && *sub.MinutesSpent > 0 {
		return int64(*sub.MinutesSpent) * 60
	}
	return 0
}

func percentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return score / maxScore * 100
}

// demonstratedLevel picks the highest scoring level at or above the threshold.
// Ties keep the earlier level in taxonomy order.
func demonstratedLevel(scores map[domain.BloomsLevel]float64, declared domain.BloomsLevel) domain.BloomsLevel {
	var (
		best      domain.BloomsLevel
		bestScore float64
	)
	for _, level := range domain.BloomsLevels {
		score, ok := scores[level]
		if !ok || score < demonstrationThreshold {
			continue
		}
		if best == "" || score > bestScore {
			best, bestScore = level, score
		}
	}
	if best != "" {
		return best
	}
	return declared
}

func engagementScore(timeSpent int64, interactionCount, attemptCount int) float64 {
	score := 50.0

	minutes := float64(timeSpent) / 60
	switch {
	case minutes >= 5 && minutes <= 30:
		score += 20
	case minutes > 30:
		score += 10
	}

	switch {
	case interactionCount > 10:
		score += 15
	case interactionCount > 5:
		score += 10
	}

	switch {
	case attemptCount == 1:
		score += 15
	case attemptCount <= 3:
		score += 5
	}

	return math.Max(0, math.Min(100, score))
}

type thresholdAlert struct {
	kind       string
	confidence float64
}

func thresholdAlerts(pct float64) []thresholdAlert {
	var alerts []thresholdAlert
	if pct < strugglingBelow {
		alerts = append(alerts, thresholdAlert{kind: domain.AlertStruggling, confidence: strugglingConfidence})
	}
	if pct > exceptionalAbove {
		alerts = append(alerts, thresholdAlert{kind: domain.AlertExceptional, confidence: exceptionalConfidence})
	}
	return alerts
}

// runningMean folds value into a mean that already covers count-1 samples.
func runningMean(mean float64, count int64, value float64) float64 {
	if count <= 1 {
		return value
	}
	return (mean*float64(count-1) + value) / float64(count)
}

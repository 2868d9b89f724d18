package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Rollups are read-modify-write under a row lock. The create path can lose a
// race against another replica; a duplicate key retries once as an update.
func (s *Service) upsertRollup(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err != nil && db.IsDuplicateKeyErr(err) {
		err = s.db.WithContext(ctx).Transaction(fn)
	}
	return err
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (s *Service) updateStudentMetrics(ctx context.Context, data domain.PerformanceData) error {
	now := s.clock.Now()
	return s.upsertRollup(ctx, func(tx *gorm.DB) error {
		var row domain.StudentPerformanceMetrics
		err := forUpdate(tx).
			Where("student_id = ? AND subject_id = ?", data.StudentID, data.SubjectID).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&domain.StudentPerformanceMetrics{
				ID:                s.genID.Generate(),
				StudentID:         data.StudentID,
				SubjectID:         data.SubjectID,
				TotalScore:        data.Score,
				TotalMaxScore:     data.MaxScore,
				ActivityCount:     1,
				AverageScore:      data.Score,
				AveragePercentage: data.Percentage,
				TotalTimeSpent:    data.TimeSpent,
				AverageEngagement: data.EngagementScore,
				LastActivityDate:  data.LastActivityAt(),
				CreatedAt:         now,
				UpdatedAt:         now,
			}).Error
		}
		if err != nil {
			return err
		}

		mergeStudentMetrics(&row, data)
		row.UpdatedAt = now
		return tx.Save(&row).Error
	})
}

func mergeStudentMetrics(row *domain.StudentPerformanceMetrics, data domain.PerformanceData) {
	row.TotalScore += data.Score
	row.TotalMaxScore += data.MaxScore
	row.ActivityCount++
	row.AverageScore = row.TotalScore / float64(row.ActivityCount)
	row.AveragePercentage = percentage(row.TotalScore, row.TotalMaxScore)
	row.TotalTimeSpent += data.TimeSpent
	row.AverageEngagement = runningMean(row.AverageEngagement, row.ActivityCount, data.EngagementScore)
	row.LastActivityDate = data.LastActivityAt()
}

func (s *Service) updateClassPerformance(ctx context.Context, data domain.PerformanceData) error {
	now := s.clock.Now()
	return s.upsertRollup(ctx, func(tx *gorm.DB) error {
		var row domain.ClassPerformance
		err := forUpdate(tx).Where("class_id = ?", data.ClassID).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&domain.ClassPerformance{
				ID:               s.genID.Generate(),
				ClassID:          data.ClassID,
				AverageGrade:     data.Percentage,
				ActivitiesGraded: 1,
				LastUpdated:      now,
				CreatedAt:        now,
			}).Error
		}
		if err != nil {
			return err
		}

		row.ActivitiesGraded++
		row.AverageGrade = runningMean(row.AverageGrade, row.ActivitiesGraded, data.Percentage)
		row.LastUpdated = now
		return tx.Save(&row).Error
	})
}

// updateBloomsProgression is a no-op when no level was demonstrated.
func (s *Service) updateBloomsProgression(ctx context.Context, data domain.PerformanceData) error {
	level := data.DemonstratedLevel
	if level == "" {
		return nil
	}

	now := s.clock.Now()
	return s.upsertRollup(ctx, func(tx *gorm.DB) error {
		var row domain.BloomsProgression
		err := forUpdate(tx).
			Where("student_id = ? AND subject_id = ?", data.StudentID, data.SubjectID).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&domain.BloomsProgression{
				ID:                    s.genID.Generate(),
				StudentID:             data.StudentID,
				SubjectID:             data.SubjectID,
				LevelCounts:           datatypes.JSONMap{string(level): 1},
				LastDemonstratedLevel: string(level),
				LastActivityDate:      data.LastActivityAt(),
				CreatedAt:             now,
				UpdatedAt:             now,
			}).Error
		}
		if err != nil {
			return err
		}

		counts := make(datatypes.JSONMap, len(domain.BloomsLevels))
		for _, l := range domain.BloomsLevels {
			if n := row.LevelCount(l); n > 0 {
				counts[string(l)] = n
			}
		}
		counts[string(level)] = row.LevelCount(level) + 1

		row.LevelCounts = counts
		row.LastDemonstratedLevel = string(level)
		row.LastActivityDate = data.LastActivityAt()
		row.UpdatedAt = now
		return tx.Save(&row).Error
	})
}

// recordAlert stores a threshold alert once per submission and kind, and bumps
// the class counter for that kind.
func (s *Service) recordAlert(ctx context.Context, update domain.Update) error {
	data := update.Data
	kind := update.Metadata.Reason
	if kind != domain.AlertStruggling && kind != domain.AlertExceptional {
		return errors.New("threshold update without alert kind")
	}
	confidence := 0.0
	if update.Metadata.Confidence != nil {
		confidence = *update.Metadata.Confidence
	}
	createdAt := update.Metadata.Timestamp
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alerts := s.alerts.WithTrx(tx)
		existing, err := alerts.FindOne(ctx, &domain.PerformanceAlert{SubmissionID: data.SubmissionID, Kind: kind})
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		if err := alerts.Create(ctx, &domain.PerformanceAlert{
			ID:           s.genID.Generate(),
			StudentID:    data.StudentID,
			ClassID:      data.ClassID,
			SubjectID:    data.SubjectID,
			SubmissionID: data.SubmissionID,
			Kind:         kind,
			Percentage:   data.Percentage,
			Confidence:   confidence,
			TriggeredBy:  update.Metadata.TriggeredBy,
			CreatedAt:    createdAt,
		}); err != nil {
			return err
		}

		column := "struggling_count"
		if kind == domain.AlertExceptional {
			column = "exceptional_count"
		}
		return tx.Model(&domain.ClassPerformance{}).
			Where("class_id = ?", data.ClassID).
			Updates(map[string]any{
				column:         gorm.Expr(column + " + 1"),
				"last_updated": s.clock.Now(),
			}).Error
	})
}

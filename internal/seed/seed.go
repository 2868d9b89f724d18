// Package seed creates a small demo class so the grading endpoints can be
// exercised against a fresh database.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scholara/internal/analytics/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DemoClassID   snowflake.ID = 1000
	DemoSubjectID snowflake.ID = 2000
)

var demoStudents = []string{"Ada Lovelace", "Alan Turing", "Grace Hopper"}

var demoActivities = []struct {
	Title       string
	Type        string
	BloomsLevel domain.BloomsLevel
	MaxScore    float64
}{
	{"Fractions quiz", "QUIZ", domain.BloomsApply, 20},
	{"Compare two proofs", "ESSAY", domain.BloomsAnalyze, 100},
}

// DemoClass lists the seeded rows. Submissions are ungraded.
type DemoClass struct {
	StudentIDs    []snowflake.ID
	ActivityIDs   []snowflake.ID
	SubmissionIDs []snowflake.ID
}

// EnsureDemoClass seeds the demo class once; later calls return the existing rows.
func EnsureDemoClass(db *gorm.DB, node *snowflake.Node) (DemoClass, error) {
	if db == nil {
		return DemoClass{}, errors.New("seed database handle is required")
	}
	if node == nil {
		return DemoClass{}, errors.New("seed id generator is required")
	}

	ctx := context.Background()
	var demo DemoClass
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := loadDemoClass(ctx, tx)
		if err != nil {
			return err
		}
		if len(existing.StudentIDs) > 0 {
			demo = existing
			return nil
		}

		demo, err = createDemoClass(ctx, tx, node)
		return err
	})
	return demo, err
}

func loadDemoClass(ctx context.Context, tx *gorm.DB) (DemoClass, error) {
	var demo DemoClass
	if err := tx.WithContext(ctx).Model(&domain.Student{}).
		Where("class_id = ?", DemoClassID).
		Order("id").
		Pluck("id", &demo.StudentIDs).Error; err != nil {
		return demo, err
	}
	if len(demo.StudentIDs) == 0 {
		return demo, nil
	}
	if err := tx.WithContext(ctx).Model(&domain.Activity{}).
		Where("class_id = ?", DemoClassID).
		Order("id").
		Pluck("id", &demo.ActivityIDs).Error; err != nil {
		return demo, err
	}
	if err := tx.WithContext(ctx).Model(&domain.Submission{}).
		Where("student_id IN ?", demo.StudentIDs).
		Order("id").
		Pluck("id", &demo.SubmissionIDs).Error; err != nil {
		return demo, err
	}
	return demo, nil
}

func createDemoClass(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (DemoClass, error) {
	var demo DemoClass
	now := time.Now().UTC()

	students := make([]domain.Student, 0, len(demoStudents))
	for _, name := range demoStudents {
		students = append(students, domain.Student{
			ID:        node.Generate(),
			ClassID:   DemoClassID,
			FullName:  name,
			CreatedAt: now,
		})
	}
	if err := tx.WithContext(ctx).Create(&students).Error; err != nil {
		return demo, err
	}

	activities := make([]domain.Activity, 0, len(demoActivities))
	for _, a := range demoActivities {
		activities = append(activities, domain.Activity{
			ID:          node.Generate(),
			ClassID:     DemoClassID,
			SubjectID:   DemoSubjectID,
			Title:       a.Title,
			Type:        a.Type,
			BloomsLevel: string(a.BloomsLevel),
			MaxScore:    a.MaxScore,
			CreatedAt:   now,
		})
	}
	if err := tx.WithContext(ctx).Create(&activities).Error; err != nil {
		return demo, err
	}

	submissions := make([]domain.Submission, 0, len(students)*len(activities))
	for _, student := range students {
		for i, activity := range activities {
			minutes := 15 * (i + 1)
			startedAt := now.Add(-time.Duration(minutes) * time.Minute)
			submissions = append(submissions, domain.Submission{
				ID:               node.Generate(),
				ActivityID:       activity.ID,
				StudentID:        student.ID,
				AttemptNumber:    1,
				InteractionCount: 10 * (i + 1),
				MinutesSpent:     &minutes,
				StartedAt:        &startedAt,
				CompletedAt:      &now,
				SubmittedAt:      now,
			})
		}
	}
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(&submissions).Error; err != nil {
		return demo, err
	}

	for _, s := range students {
		demo.StudentIDs = append(demo.StudentIDs, s.ID)
	}
	for _, a := range activities {
		demo.ActivityIDs = append(demo.ActivityIDs, a.ID)
	}
	for _, s := range submissions {
		demo.SubmissionIDs = append(demo.SubmissionIDs, s.ID)
	}
	return demo, nil
}

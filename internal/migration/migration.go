package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	gomigrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	analyticsdomain "github.com/smallbiznis/scholara/internal/analytics/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations: the range-partitioned
// invoices parent table and the analytics tables.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := gomigrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, gomigrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AnalyticsModels lists the tables the analytics pipeline reads and writes.
func AnalyticsModels() []any {
	return []any{
		&analyticsdomain.Student{},
		&analyticsdomain.Activity{},
		&analyticsdomain.Submission{},
		&analyticsdomain.UnifiedPerformance{},
		&analyticsdomain.StudentPerformanceMetrics{},
		&analyticsdomain.ClassPerformance{},
		&analyticsdomain.BloomsProgression{},
		&analyticsdomain.PerformanceAlert{},
	}
}

// AutoMigrateAnalytics creates the analytics tables on stores without
// SQL migrations. Invoice partitioning is postgres only and is skipped.
func AutoMigrateAnalytics(conn *gorm.DB) error {
	return conn.AutoMigrate(AnalyticsModels()...)
}

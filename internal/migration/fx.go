package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scholara/internal/config"
	"github.com/smallbiznis/scholara/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if err := migrate(conn, log); err != nil {
			return err
		}

		if cfg.SeedDemoData && !cfg.IsProduction() {
			demo, err := seed.EnsureDemoClass(conn, node)
			if err != nil {
				return err
			}
			log.Info("demo class ready",
				zap.String("class_id", seed.DemoClassID.String()),
				zap.Int("submissions", len(demo.SubmissionIDs)),
			)
		}
		return nil
	}),
)

func migrate(conn *gorm.DB, log *zap.Logger) error {
	if conn.Dialector.Name() != "postgres" {
		log.Warn("invoice partitioning requires postgres; migrating analytics tables only",
			zap.String("dialect", conn.Dialector.Name()),
		)
		return AutoMigrateAnalytics(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scholara/internal/clock"
	"github.com/smallbiznis/scholara/internal/config"
	"github.com/smallbiznis/scholara/internal/invoicearchive"
	"github.com/smallbiznis/scholara/internal/lock"
	"github.com/smallbiznis/scholara/internal/observability"
	"github.com/smallbiznis/scholara/internal/scheduler"
	"github.com/smallbiznis/scholara/pkg/db"
	"go.uber.org/fx"
)

// The standalone scheduler runs only the invoice maintenance loop. Run it
// next to API replicas started with SCHEDULER_ENABLED=false.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Decorate(func(cfg observability.Config) observability.Config {
			cfg.Component = observability.ComponentScheduler
			return cfg
		}),
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		invoicearchive.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

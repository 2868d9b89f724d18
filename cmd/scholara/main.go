package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scholara/internal/analytics"
	"github.com/smallbiznis/scholara/internal/clock"
	"github.com/smallbiznis/scholara/internal/config"
	"github.com/smallbiznis/scholara/internal/invoicearchive"
	"github.com/smallbiznis/scholara/internal/lock"
	"github.com/smallbiznis/scholara/internal/migration"
	"github.com/smallbiznis/scholara/internal/observability"
	"github.com/smallbiznis/scholara/internal/ratelimit"
	"github.com/smallbiznis/scholara/internal/scheduler"
	"github.com/smallbiznis/scholara/internal/server"
	"github.com/smallbiznis/scholara/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,

		// Functional Domains
		invoicearchive.Module,
		analytics.Module,
		scheduler.Module,

		ratelimit.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

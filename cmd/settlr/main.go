package main

import (
	"github.com/smallbiznis/settlr/internal/clock"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/migration"
	"github.com/smallbiznis/settlr/internal/observability"
	"github.com/smallbiznis/settlr/internal/scheduler"
	"github.com/smallbiznis/settlr/internal/server"
	"github.com/smallbiznis/settlr/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// Checkout, gateway callbacks and owner queries
		server.Module,

		// Expiry sweep, stale payment watch and outbox relay
		scheduler.Module,
	)
	app.Run()
}

package main

import (
	"github.com/smallbiznis/settlr/internal/clock"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/observability"
	"github.com/smallbiznis/settlr/internal/server"
	"github.com/smallbiznis/settlr/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,

		server.Module,
	)
	app.Run()
}

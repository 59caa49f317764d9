package main

import (
	"github.com/smallbiznis/settlr/internal/clock"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/notification"
	"github.com/smallbiznis/settlr/internal/observability"
	"github.com/smallbiznis/settlr/internal/payment"
	"github.com/smallbiznis/settlr/internal/scheduler"
	"github.com/smallbiznis/settlr/internal/subscription"
	"github.com/smallbiznis/settlr/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		subscription.Module,
		payment.Module,
		notification.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

package subscription

import (
	"github.com/smallbiznis/settlr/internal/subscription/repository"
	"github.com/smallbiznis/settlr/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.ledger",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewLedger),
)

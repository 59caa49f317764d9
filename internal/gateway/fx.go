package gateway

import (
	"github.com/smallbiznis/settlr/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(config.NewMessagesHolder),
	fx.Provide(NewMessageCatalog),
)

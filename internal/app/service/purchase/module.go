package purchase

import (
	"github.com/keymasterhq/keymaster/internal/platform/paddle"
	"go.uber.org/fx"
)

// Module exposes the purchase processor via Fx.
var Module = fx.Options(
	fx.Provide(paddle.NewClient),
	fx.Provide(func(c *paddle.Client) CustomerFetcher { return c }),
	fx.Provide(NewService),
)

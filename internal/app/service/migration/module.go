package migration

import (
	"github.com/keymasterhq/keymaster/internal/platform/revenuecat"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		revenuecat.NewClient,
		func(c *revenuecat.Client) EntitlementFetcher { return c },
		NewService,
	),
)

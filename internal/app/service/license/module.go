package license

import "go.uber.org/fx"

// Module exposes the license service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)

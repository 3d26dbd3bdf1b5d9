package webhook

import "go.uber.org/fx"

// Module exposes the idempotency coordinator via Fx.
var Module = fx.Options(
	fx.Provide(NewCoordinator),
)

package catalog

import "go.uber.org/fx"

// Module wires the catalog and payment method HTTP handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

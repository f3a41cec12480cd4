package chatbot

import "go.uber.org/fx"

// Module wires the chatbot HTTP handler.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

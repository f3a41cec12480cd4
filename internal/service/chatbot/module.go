package chatbot

import "go.uber.org/fx"

// Module provides the chatbot service to Fx.
var Module = fx.Provide(NewService)

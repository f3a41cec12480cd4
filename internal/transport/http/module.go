package http

import (
	"go.uber.org/fx"

	catalogtransport "github.com/Additional-Code/gobady/internal/transport/http/catalog"
	chatbottransport "github.com/Additional-Code/gobady/internal/transport/http/chatbot"
	ordertransport "github.com/Additional-Code/gobady/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	catalogtransport.Module,
	ordertransport.Module,
	chatbottransport.Module,
)

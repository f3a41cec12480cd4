package chatbot

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Additional-Code/gobady/internal/dto"
	"github.com/Additional-Code/gobady/internal/presentation/http/response"
	service "github.com/Additional-Code/gobady/internal/service/chatbot"
	"github.com/Additional-Code/gobady/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/gobady/transport/http/chatbot")

type chatService interface {
	Reply(ctx context.Context, client string, req dto.ChatRequest) (dto.ChatResponse, error)
}

// Handler exposes the storefront assistant over HTTP.
type Handler struct {
	svc chatService
}

// NewHandler constructs a chatbot Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/chatbot", h.reply)
}

func (h *Handler) reply(c echo.Context) error {
	b := response.New(c)

	var payload dto.ChatRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	// RealIP honours X-Forwarded-For only as far as the server's IPExtractor trusts it.
	client := c.RealIP()
	ctx, span := httpTracer.Start(c.Request().Context(), "chatbot.reply")
	span.SetAttributes(attribute.String("client.address", client), attribute.Int("chatbot.history", len(payload.History)))
	defer span.End()

	reply, err := h.svc.Reply(ctx, client, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.Bool("chatbot.cached", reply.Cached))
	return b.WithData(reply).Build()
}

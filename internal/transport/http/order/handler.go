package order

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/gobady/internal/dto"
	"github.com/Additional-Code/gobady/internal/entity"
	"github.com/Additional-Code/gobady/internal/presentation/http/response"
	service "github.com/Additional-Code/gobady/internal/service/order"
	"github.com/Additional-Code/gobady/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/gobady/transport/http/order")

type orderService interface {
	Create(ctx context.Context, req dto.CreateOrderRequest) (*entity.Order, error)
	Get(ctx context.Context, id int64) (*entity.Order, error)
	GetByCode(ctx context.Context, code string) (*entity.Order, error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc orderService
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.GET("/codigo/:code", h.getByCode)
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) getByCode(c echo.Context) error {
	b := response.New(c)
	code := c.Param("code")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByCode", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order, err := h.svc.GetByCode(ctx, code)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(attribute.Int("order.lines", len(payload.Lines)))
	defer span.End()

	order, err := h.svc.Create(ctx, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.String("order.code", order.Code))

	return b.WithStatus(http.StatusCreated).WithData(dto.NewOrderResponse(order)).Build()
}

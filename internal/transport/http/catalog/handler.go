package catalog

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Additional-Code/gobady/internal/dto"
	"github.com/Additional-Code/gobady/internal/entity"
	"github.com/Additional-Code/gobady/internal/presentation/http/response"
	service "github.com/Additional-Code/gobady/internal/service/catalog"
	"github.com/Additional-Code/gobady/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/gobady/transport/http/catalog")

type catalogService interface {
	ListCategories(ctx context.Context) ([]*entity.Category, error)
	GetCategory(ctx context.Context, id int64) (*entity.Category, error)
	SaveCategory(ctx context.Context, id int64, req dto.CategoryRequest) (*entity.Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, search string) ([]*entity.Product, error)
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	Stock(ctx context.Context, id int64) (int, error)
	Quote(ctx context.Context, productID int64, quantity int) (dto.QuoteResponse, error)
	SaveProduct(ctx context.Context, id int64, req dto.ProductRequest) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	SaveTier(ctx context.Context, productID, tierID int64, req dto.TierRequest) (*entity.PriceTier, error)
	DeleteTier(ctx context.Context, id int64) error
	AddMedia(ctx context.Context, productID int64, req dto.MediaRequest) (*entity.MediaAsset, error)
	DeleteMedia(ctx context.Context, id int64) error

	ListPaymentMethods(ctx context.Context) ([]*entity.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, id int64) (*entity.PaymentMethod, error)
	SavePaymentMethod(ctx context.Context, id int64, req dto.PaymentMethodRequest) (*entity.PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, id int64) error
}

// Handler exposes catalog and payment method endpoints over HTTP.
type Handler struct {
	svc catalogService
}

// NewHandler constructs a catalog Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	categories := e.Group("/categories")
	categories.GET("", h.listCategories)
	categories.POST("", h.createCategory)
	categories.GET("/:id", h.getCategory)
	categories.PUT("/:id", h.updateCategory)
	categories.DELETE("/:id", h.deleteCategory)

	products := e.Group("/products")
	products.GET("", h.listProducts)
	products.POST("", h.createProduct)
	products.GET("/:id", h.getProduct)
	products.PUT("/:id", h.updateProduct)
	products.DELETE("/:id", h.deleteProduct)
	products.GET("/:id/stock", h.stock)
	products.GET("/:id/quote", h.quote)
	products.POST("/:id/tiers", h.createTier)
	products.POST("/:id/media", h.addMedia)

	e.PUT("/tiers/:id", h.updateTier)
	e.DELETE("/tiers/:id", h.deleteTier)
	e.DELETE("/media/:id", h.deleteMedia)

	methods := e.Group("/payment-methods")
	methods.GET("", h.listPaymentMethods)
	methods.POST("", h.createPaymentMethod)
	methods.GET("/:id", h.getPaymentMethod)
	methods.PUT("/:id", h.updatePaymentMethod)
	methods.DELETE("/:id", h.deletePaymentMethod)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithField("id"))
	}
	return id, nil
}

func bind(c echo.Context, payload any) error {
	if err := c.Bind(payload); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	return nil
}

func mapSlice[T any, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

func (h *Handler) listCategories(c echo.Context) error {
	b := response.New(c)
	ctx, span := httpTracer.Start(c.Request().Context(), "categories.list")
	defer span.End()

	categories, err := h.svc.ListCategories(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(mapSlice(categories, dto.NewCategoryResponse)).WithMeta("count", len(categories)).Build()
}

func (h *Handler) getCategory(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "categories.get")
	defer span.End()

	category, err := h.svc.GetCategory(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewCategoryResponse(category)).Build()
}

func (h *Handler) createCategory(c echo.Context) error {
	return h.saveCategory(c, 0, http.StatusCreated)
}

func (h *Handler) updateCategory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.saveCategory(c, id, http.StatusOK)
}

func (h *Handler) saveCategory(c echo.Context, id int64, status int) error {
	b := response.New(c)
	var payload dto.CategoryRequest
	if err := bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "categories.save")
	defer span.End()

	category, err := h.svc.SaveCategory(ctx, id, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(status).WithData(dto.NewCategoryResponse(category)).Build()
}

func (h *Handler) deleteCategory(c echo.Context) error {
	return h.remove(c, "categories.delete", h.svc.DeleteCategory)
}

// remove handles every DELETE route: parse the id, call del, answer 204.
func (h *Handler) remove(c echo.Context, spanName string, del func(context.Context, int64) error) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), spanName)
	span.SetAttributes(attribute.Int64("id", id))
	defer span.End()

	if err := del(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) listProducts(c echo.Context) error {
	b := response.New(c)
	search := strings.TrimSpace(c.QueryParam("search"))
	ctx, span := httpTracer.Start(c.Request().Context(), "products.list")
	span.SetAttributes(attribute.String("products.search", search))
	defer span.End()

	products, err := h.svc.ListProducts(ctx, search)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(mapSlice(products, dto.NewProductResponse)).WithMeta("count", len(products)).Build()
}

func (h *Handler) getProduct(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "products.get")
	span.SetAttributes(attribute.Int64("product.id", id))
	defer span.End()

	product, err := h.svc.GetProduct(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewProductResponse(product)).Build()
}

func (h *Handler) createProduct(c echo.Context) error {
	return h.saveProduct(c, 0, http.StatusCreated)
}

func (h *Handler) updateProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.saveProduct(c, id, http.StatusOK)
}

func (h *Handler) saveProduct(c echo.Context, id int64, status int) error {
	b := response.New(c)
	var payload dto.ProductRequest
	if err := bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "products.save")
	defer span.End()

	product, err := h.svc.SaveProduct(ctx, id, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(status).WithData(dto.NewProductResponse(product)).Build()
}

func (h *Handler) deleteProduct(c echo.Context) error {
	return h.remove(c, "products.delete", h.svc.DeleteProduct)
}

func (h *Handler) stock(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "products.stock")
	span.SetAttributes(attribute.Int64("product.id", id))
	defer span.End()

	stock, err := h.svc.Stock(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.StockResponse{ProductID: id, Stock: stock}).Build()
}

func (h *Handler) quote(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	quantity, err := strconv.Atoi(c.QueryParam("quantity"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("quantity must be a whole number", errorbank.WithField("quantity"))).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "products.quote")
	span.SetAttributes(attribute.Int64("product.id", id), attribute.Int("quantity", quantity))
	defer span.End()

	quote, err := h.svc.Quote(ctx, id, quantity)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(quote).Build()
}

func (h *Handler) createTier(c echo.Context) error {
	productID, err := pathID(c)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.saveTier(c, productID, 0, http.StatusCreated)
}

func (h *Handler) updateTier(c echo.Context) error {
	tierID, err := pathID(c)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.saveTier(c, 0, tierID, http.StatusOK)
}

func (h *Handler) saveTier(c echo.Context, productID, tierID int64, status int) error {
	b := response.New(c)
	var payload dto.TierRequest
	if err := bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "tiers.save")
	defer span.End()

	tier, err := h.svc.SaveTier(ctx, productID, tierID, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(status).WithData(dto.NewTierResponse(tier)).Build()
}

func (h *Handler) deleteTier(c echo.Context) error {
	return h.remove(c, "tiers.delete", h.svc.DeleteTier)
}

func (h *Handler) addMedia(c echo.Context) error {
	b := response.New(c)
	productID, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.MediaRequest
	if err := bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "media.add")
	defer span.End()

	media, err := h.svc.AddMedia(ctx, productID, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.NewMediaResponse(media)).Build()
}

func (h *Handler) deleteMedia(c echo.Context) error {
	return h.remove(c, "media.delete", h.svc.DeleteMedia)
}

func (h *Handler) listPaymentMethods(c echo.Context) error {
	b := response.New(c)
	ctx, span := httpTracer.Start(c.Request().Context(), "paymentMethods.list")
	defer span.End()

	methods, err := h.svc.ListPaymentMethods(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(mapSlice(methods, dto.NewPaymentMethodResponse)).WithMeta("count", len(methods)).Build()
}

func (h *Handler) getPaymentMethod(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "paymentMethods.get")
	defer span.End()

	method, err := h.svc.GetPaymentMethod(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewPaymentMethodResponse(method)).Build()
}

func (h *Handler) createPaymentMethod(c echo.Context) error {
	return h.savePaymentMethod(c, 0, http.StatusCreated)
}

func (h *Handler) updatePaymentMethod(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.savePaymentMethod(c, id, http.StatusOK)
}

func (h *Handler) savePaymentMethod(c echo.Context, id int64, status int) error {
	b := response.New(c)
	var payload dto.PaymentMethodRequest
	if err := bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "paymentMethods.save")
	defer span.End()

	method, err := h.svc.SavePaymentMethod(ctx, id, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(status).WithData(dto.NewPaymentMethodResponse(method)).Build()
}

func (h *Handler) deletePaymentMethod(c echo.Context) error {
	return h.remove(c, "paymentMethods.delete", h.svc.DeletePaymentMethod)
}

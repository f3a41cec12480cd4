package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/dto"
	"github.com/Additional-Code/gobady/internal/entity"
	"github.com/Additional-Code/gobady/internal/pricing"
	repo "github.com/Additional-Code/gobady/internal/repository/catalog"
	"github.com/Additional-Code/gobady/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/gobady/service/catalog")

type store interface {
	ListCategories(ctx context.Context) ([]*entity.Category, error)
	GetCategory(ctx context.Context, id int64) (*entity.Category, error)
	SaveCategory(ctx context.Context, category *entity.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, search string) ([]*entity.Product, error)
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	ProductStock(ctx context.Context, id int64) (int, error)
	SaveProduct(ctx context.Context, product *entity.Product, categoryIDs []int64) error
	DeleteProduct(ctx context.Context, id int64) error

	GetTier(ctx context.Context, id int64) (*entity.PriceTier, error)
	SaveTier(ctx context.Context, tier *entity.PriceTier) error
	DeleteTier(ctx context.Context, id int64) error

	AddMedia(ctx context.Context, media *entity.MediaAsset) error
	DeleteMedia(ctx context.Context, id int64) error

	ListPaymentMethods(ctx context.Context) ([]*entity.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, id int64) (*entity.PaymentMethod, error)
	SavePaymentMethod(ctx context.Context, method *entity.PaymentMethod) error
	DeletePaymentMethod(ctx context.Context, id int64) error
}

// Service manages categories, products, price tiers, media references and payment methods.
type Service struct {
	repo   store
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{repo: p.Repository, logger: p.Logger}
}

func (s *Service) fail(span trace.Span, err error, subject, action string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		span.SetStatus(codes.Error, "not found")
		return errorbank.NotFound(subject + " not found")
	case errors.Is(err, repo.ErrDuplicate):
		span.SetStatus(codes.Error, "duplicate")
		return errorbank.Conflict(subject + " already exists")
	case errors.Is(err, repo.ErrInUse):
		span.SetStatus(codes.Error, "in use")
		return errorbank.Conflict(subject + " is referenced by existing orders")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal(fmt.Sprintf("failed to %s %s", action, subject), errorbank.WithCause(err))
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context) ([]*entity.Category, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.ListCategories")
	defer span.End()

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, s.fail(span, err, "categories", "list")
	}
	return categories, nil
}

// GetCategory fetches one category.
func (s *Service) GetCategory(ctx context.Context, id int64) (*entity.Category, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.GetCategory", trace.WithAttributes(attribute.Int64("category.id", id)))
	defer span.End()

	category, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "category", "load")
	}
	return category, nil
}

// SaveCategory creates a category when id is zero and renames it otherwise.
func (s *Service) SaveCategory(ctx context.Context, id int64, req dto.CategoryRequest) (*entity.Category, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.SaveCategory", trace.WithAttributes(attribute.Int64("category.id", id)))
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errorbank.BadRequest("category name is required", errorbank.WithField("name"))
	}
	category := &entity.Category{ID: id, Name: name}
	if err := s.repo.SaveCategory(ctx, category); err != nil {
		return nil, s.fail(span, err, "category", "save")
	}
	return category, nil
}

// DeleteCategory removes a category; products keep existing without it.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.DeleteCategory", trace.WithAttributes(attribute.Int64("category.id", id)))
	defer span.End()

	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return s.fail(span, err, "category", "delete")
	}
	return nil
}

// ListProducts returns products filtered by an optional name or category search.
func (s *Service) ListProducts(ctx context.Context, search string) ([]*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.ListProducts", trace.WithAttributes(attribute.String("catalog.search", search)))
	defer span.End()

	products, err := s.repo.ListProducts(ctx, search)
	if err != nil {
		return nil, s.fail(span, err, "products", "list")
	}
	return products, nil
}

// GetProduct fetches one product with categories, tiers and media.
func (s *Service) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.GetProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "product", "load")
	}
	return product, nil
}

// Stock reports the units available for a product.
func (s *Service) Stock(ctx context.Context, id int64) (int, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.Stock", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	stock, err := s.repo.ProductStock(ctx, id)
	if err != nil {
		return 0, s.fail(span, err, "product", "load")
	}
	return stock, nil
}

// SaveProduct creates a product when id is zero and updates it otherwise, replacing its categories.
func (s *Service) SaveProduct(ctx context.Context, id int64, req dto.ProductRequest) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.SaveProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errorbank.BadRequest("product name is required", errorbank.WithField("name"))
	}
	if req.Stock < 0 {
		return nil, errorbank.BadRequest("stock cannot be negative", errorbank.WithField("stock"))
	}

	product := &entity.Product{ID: id, Name: name, Description: strings.TrimSpace(req.Description), Stock: req.Stock}
	if err := s.repo.SaveProduct(ctx, product, req.CategoryIDs); err != nil {
		if errors.Is(err, repo.ErrUnknownCategory) {
			return nil, errorbank.BadRequest("unknown category", errorbank.WithField("category_ids"))
		}
		return nil, s.fail(span, err, "product", "save")
	}
	return s.GetProduct(ctx, product.ID)
}

// DeleteProduct removes a product that no order references.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.DeleteProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return s.fail(span, err, "product", "delete")
	}
	return nil
}

// Quote prices quantity units of a product without reserving stock.
func (s *Service) Quote(ctx context.Context, productID int64, quantity int) (dto.QuoteResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.Quote", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("quote.quantity", quantity),
	))
	defer span.End()

	if quantity <= 0 {
		return dto.QuoteResponse{}, errorbank.BadRequest("quantity must be greater than zero", errorbank.WithField("quantity"))
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return dto.QuoteResponse{}, s.fail(span, err, "product", "load")
	}
	unit, ok := pricing.Resolve(product.Tiers, quantity)
	if !ok {
		return dto.QuoteResponse{}, errorbank.BadRequest(
			fmt.Sprintf("no valid tier for %s with %d units.", product.Name, quantity),
			errorbank.WithField("quantity"),
		)
	}
	return dto.QuoteResponse{
		ProductID: product.ID,
		Quantity:  quantity,
		UnitPrice: unit,
		Subtotal:  pricing.Subtotal(unit, quantity),
		Available: quantity <= product.Stock,
	}, nil
}

func validateTier(req dto.TierRequest) error {
	if req.MinQuantity < 1 {
		return errorbank.BadRequest("min_quantity must be at least 1", errorbank.WithField("min_quantity"))
	}
	if req.MaxQuantity != nil && *req.MaxQuantity < req.MinQuantity {
		return errorbank.BadRequest("max_quantity cannot be lower than min_quantity", errorbank.WithField("max_quantity"))
	}
	if !req.UnitPrice.IsPositive() {
		return errorbank.BadRequest("unit_price must be greater than zero", errorbank.WithField("unit_price"))
	}
	return nil
}

// overlapping returns the ids of tiers whose range intersects candidate.
func overlapping(tiers []*entity.PriceTier, candidate *entity.PriceTier) []int64 {
	var ids []int64
	for _, t := range tiers {
		if t.ID == candidate.ID {
			continue
		}
		startsBeforeEnd := candidate.MaxQuantity == nil || t.MinQuantity <= *candidate.MaxQuantity
		endsAfterStart := t.MaxQuantity == nil || *t.MaxQuantity >= candidate.MinQuantity
		if startsBeforeEnd && endsAfterStart {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// SaveTier adds a tier to productID when tierID is zero and updates tierID otherwise.
// Overlapping ranges are accepted and logged; pricing keeps the first match by minimum.
func (s *Service) SaveTier(ctx context.Context, productID, tierID int64, req dto.TierRequest) (*entity.PriceTier, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.SaveTier", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int64("tier.id", tierID),
	))
	defer span.End()

	if err := validateTier(req); err != nil {
		return nil, err
	}

	if tierID != 0 {
		existing, err := s.repo.GetTier(ctx, tierID)
		if err != nil {
			return nil, s.fail(span, err, "tier", "load")
		}
		productID = existing.ProductID
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, s.fail(span, err, "product", "load")
	}

	tier := &entity.PriceTier{
		ID:          tierID,
		ProductID:   productID,
		MinQuantity: req.MinQuantity,
		MaxQuantity: req.MaxQuantity,
		UnitPrice:   req.UnitPrice.Round(2),
	}
	if ids := overlapping(product.Tiers, tier); len(ids) > 0 && s.logger != nil {
		s.logger.Warn("price tier overlaps existing tiers",
			zap.Int64("product.id", productID),
			zap.Int64s("overlaps", ids),
		)
	}
	if err := s.repo.SaveTier(ctx, tier); err != nil {
		return nil, s.fail(span, err, "tier", "save")
	}
	return tier, nil
}

// DeleteTier removes a price tier.
func (s *Service) DeleteTier(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.DeleteTier", trace.WithAttributes(attribute.Int64("tier.id", id)))
	defer span.End()

	if err := s.repo.DeleteTier(ctx, id); err != nil {
		return s.fail(span, err, "tier", "delete")
	}
	return nil
}

// AddMedia records a hosted image or video for a product.
func (s *Service) AddMedia(ctx context.Context, productID int64, req dto.MediaRequest) (*entity.MediaAsset, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.AddMedia", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	kind := entity.MediaKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind != entity.MediaImage && kind != entity.MediaVideo {
		return nil, errorbank.BadRequest("kind must be image or video", errorbank.WithField("kind"))
	}
	if err := validateURL(req.URL); err != nil {
		return nil, errorbank.BadRequest("url must be an absolute http(s) address", errorbank.WithField("url"))
	}

	media := &entity.MediaAsset{ProductID: productID, Kind: kind, URL: strings.TrimSpace(req.URL), PublicID: req.PublicID}
	if err := s.repo.AddMedia(ctx, media); err != nil {
		return nil, s.fail(span, err, "product", "attach media to")
	}
	return media, nil
}

// DeleteMedia removes a media reference.
func (s *Service) DeleteMedia(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.DeleteMedia", trace.WithAttributes(attribute.Int64("media.id", id)))
	defer span.End()

	if err := s.repo.DeleteMedia(ctx, id); err != nil {
		return s.fail(span, err, "media", "delete")
	}
	return nil
}

// ListPaymentMethods returns every payment method.
func (s *Service) ListPaymentMethods(ctx context.Context) ([]*entity.PaymentMethod, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.ListPaymentMethods")
	defer span.End()

	methods, err := s.repo.ListPaymentMethods(ctx)
	if err != nil {
		return nil, s.fail(span, err, "payment methods", "list")
	}
	return methods, nil
}

// GetPaymentMethod fetches one payment method.
func (s *Service) GetPaymentMethod(ctx context.Context, id int64) (*entity.PaymentMethod, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.GetPaymentMethod", trace.WithAttributes(attribute.Int64("payment_method.id", id)))
	defer span.End()

	method, err := s.repo.GetPaymentMethod(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "payment method", "load")
	}
	return method, nil
}

// SavePaymentMethod creates a payment method when id is zero and updates it otherwise.
func (s *Service) SavePaymentMethod(ctx context.Context, id int64, req dto.PaymentMethodRequest) (*entity.PaymentMethod, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.SavePaymentMethod", trace.WithAttributes(attribute.Int64("payment_method.id", id)))
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errorbank.BadRequest("payment method name is required", errorbank.WithField("name"))
	}
	if req.QRImageURL != "" {
		if err := validateURL(req.QRImageURL); err != nil {
			return nil, errorbank.BadRequest("qr_image_url must be an absolute http(s) address", errorbank.WithField("qr_image_url"))
		}
	}

	method := &entity.PaymentMethod{
		ID:              id,
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		AccountNumber:   strings.TrimSpace(req.AccountNumber),
		QRImageURL:      req.QRImageURL,
		QRImagePublicID: req.QRImagePublicID,
	}
	if err := s.repo.SavePaymentMethod(ctx, method); err != nil {
		return nil, s.fail(span, err, "payment method", "save")
	}
	return method, nil
}

// DeletePaymentMethod removes a payment method that no order references.
func (s *Service) DeletePaymentMethod(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.DeletePaymentMethod", trace.WithAttributes(attribute.Int64("payment_method.id", id)))
	defer span.End()

	if err := s.repo.DeletePaymentMethod(ctx, id); err != nil {
		return s.fail(span, err, "payment method", "delete")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("not an absolute http url")
	}
	return nil
}

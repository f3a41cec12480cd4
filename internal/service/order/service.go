package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/cache"
	"github.com/Additional-Code/gobady/internal/config"
	"github.com/Additional-Code/gobady/internal/dto"
	"github.com/Additional-Code/gobady/internal/entity"
	"github.com/Additional-Code/gobady/internal/messaging"
	"github.com/Additional-Code/gobady/internal/notification"
	"github.com/Additional-Code/gobady/internal/pricing"
	repo "github.com/Additional-Code/gobady/internal/repository/order"
	"github.com/Additional-Code/gobady/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/gobady/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/gobady/service/order")
)

// EventOrderCreated is the event type header of order confirmations on the bus.
const EventOrderCreated = "order.created"

// commitAttempts bounds how often a build is retried after losing an order code race.
const commitAttempts = 3

const (
	nationalIDLength = 8
	phoneLength      = 9
)

type store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	GetByCode(ctx context.Context, code string) (*entity.Order, error)
}

type notifier interface {
	OrderCreated(ctx context.Context, c notification.Confirmation)
}

// Service encapsulates business logic around orders.
type Service struct {
	repo         store
	cache        cache.Store
	cacheTTL     time.Duration
	logger       *zap.Logger
	publisher    messaging.Client
	messaging    messagingConfig
	notifier     notifier
	surcharge    decimal.Decimal
	codeAttempts int
	newCode      func() string
	created      metric.Int64Counter
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
	Dispatcher *notification.Dispatcher
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return newService(p.Repository, p.Cache, p.Config, p.Logger, p.Publisher, p.Dispatcher)
}

func newService(r store, c cache.Store, cfg config.Config, logger *zap.Logger, publisher messaging.Client, n notifier) *Service {
	created, err := serviceMeter.Int64Counter("orders.created", metric.WithDescription("Orders committed"))
	if err != nil && logger != nil {
		logger.Warn("orders.created counter unavailable", zap.Error(err))
	}
	return &Service{
		repo:      r,
		cache:     c,
		cacheTTL:  cfg.Cache.DefaultTTL,
		logger:    logger,
		publisher: publisher,
		messaging: messagingConfig{
			enabled: cfg.Messaging.Enabled,
			topic:   cfg.Messaging.Kafka.Topic,
		},
		notifier:     n,
		surcharge:    cfg.Orders.ShippingSurcharge,
		codeAttempts: cfg.Orders.CodeAttempts,
		newCode:      randomCode,
		created:      created,
	}
}

func randomCode() string {
	return fmt.Sprintf("%05d", rand.IntN(100000))
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	return s.lookup(ctx, span, fmt.Sprintf("orders:%d", id), func(ctx context.Context) (*entity.Order, error) {
		return s.repo.GetByID(ctx, id)
	})
}

// GetByCode retrieves an order by its public five digit code.
func (s *Service) GetByCode(ctx context.Context, code string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetByCode", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	if !isOrderCode(code) {
		return nil, errorbank.NotFound("order not found")
	}
	return s.lookup(ctx, span, codeCacheKey(code), func(ctx context.Context) (*entity.Order, error) {
		return s.repo.GetByCode(ctx, code)
	})
}

func (s *Service) lookup(ctx context.Context, span trace.Span, key string, load func(context.Context) (*entity.Order, error)) (*entity.Order, error) {
	if order, err := s.getFromCache(ctx, key); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.warn("orders cache read failed", zap.String("key", key), zap.Error(err))
	}

	order, err := load(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, key, order); err != nil {
		s.warn("orders cache write failed", zap.String("key", key), zap.Error(err))
	}
	return order, nil
}

// Create validates a checkout and commits the order, its lines and the stock decrements
// in one transaction. Nothing is written unless every line validates.
func (s *Service) Create(ctx context.Context, req dto.CreateOrderRequest) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.Int("order.lines", len(req.Lines)),
		attribute.Bool("order.inter_regional", req.InterRegional),
	))
	defer span.End()

	if err := validateCustomer(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	var (
		order *entity.Order
		err   error
	)
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		order, err = s.commit(ctx, req)
		if !errors.Is(err, repo.ErrDuplicateCode) {
			break
		}
		s.warn("order code taken concurrently; rebuilding", zap.Int("attempt", attempt))
	}
	if err != nil {
		var appErr *errorbank.AppError
		if errors.As(err, &appErr) {
			span.SetStatus(codes.Error, string(appErr.Kind()))
			return nil, appErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		if errors.Is(err, repo.ErrDuplicateCode) {
			return nil, errorbank.Conflict("could not allocate an order code; please retry.", errorbank.WithCause(err))
		}
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	span.SetAttributes(attribute.String("order.code", order.Code))
	if s.created != nil {
		s.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("inter_regional", order.InterRegional)))
	}
	if err := s.storeInCache(ctx, codeCacheKey(order.Code), order); err != nil {
		s.warn("orders cache write failed", zap.String("order.code", order.Code), zap.Error(err))
	}

	s.notify(ctx, s.confirmation(order))
	return order, nil
}

func (s *Service) commit(ctx context.Context, req dto.CreateOrderRequest) (*entity.Order, error) {
	var order *entity.Order

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		method, err := tx.PaymentMethod(ctx, req.PaymentMethodID)
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.BadRequest(
				fmt.Sprintf("payment method %d does not exist.", req.PaymentMethodID),
				errorbank.WithField("payment_method_id"),
			)
		}
		if err != nil {
			return err
		}

		products, err := tx.LockProducts(ctx, productIDs(req.Lines))
		if err != nil {
			return err
		}

		lines, subtotals, err := priceLines(req.Lines, products)
		if err != nil {
			return err
		}

		code, err := s.allocateCode(ctx, tx)
		if err != nil {
			return err
		}

		order = &entity.Order{
			Code:            code,
			CreatedAt:       time.Now().UTC(),
			Name:            strings.TrimSpace(req.Name),
			Surname:         strings.TrimSpace(req.Surname),
			NationalID:      req.NationalID,
			Phone:           req.Phone,
			Email:           strings.TrimSpace(req.Email),
			InterRegional:   req.InterRegional,
			Department:      req.Department,
			Province:        req.Province,
			District:        req.District,
			Address:         req.Address,
			Total:           pricing.Total(subtotals, s.surcharge, req.InterRegional),
			PaymentMethodID: method.ID,
			PaymentMethod:   method,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		taken := make(map[int64]int, len(lines))
		for i, line := range lines {
			if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				var short *repo.StockError
				if errors.As(err, &short) {
					return insufficientStock(i, line.Product, short.Available)
				}
				if errors.Is(err, repo.ErrInsufficientStock) {
					return insufficientStock(i, line.Product, line.Product.Stock-taken[line.ProductID])
				}
				return err
			}
			taken[line.ProductID] += line.Quantity
			line.OrderID = order.ID
		}
		if err := tx.InsertLines(ctx, lines); err != nil {
			return err
		}
		order.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// priceLines runs the per-line checks in request order and returns the lines with frozen
// unit prices. Repeated products are checked against the stock left by earlier lines.
func priceLines(requested []dto.OrderLineRequest, products map[int64]*entity.Product) ([]*entity.OrderLine, []decimal.Decimal, error) {
	remaining := make(map[int64]int, len(products))
	for id, p := range products {
		remaining[id] = p.Stock
	}

	lines := make([]*entity.OrderLine, 0, len(requested))
	subtotals := make([]decimal.Decimal, 0, len(requested))
	for i, item := range requested {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, nil, errorbank.BadRequest(
				fmt.Sprintf("product %d does not exist.", item.ProductID),
				lineDetails(i, item.ProductID, "product_id"),
			)
		}
		if item.Quantity <= 0 {
			return nil, nil, errorbank.BadRequest(
				fmt.Sprintf("invalid quantity for %s.", product.Name),
				lineDetails(i, item.ProductID, "quantity"),
			)
		}
		if item.Quantity > remaining[item.ProductID] {
			return nil, nil, insufficientStock(i, product, remaining[item.ProductID])
		}
		unit, ok := pricing.Resolve(product.Tiers, item.Quantity)
		if !ok {
			return nil, nil, errorbank.BadRequest(
				fmt.Sprintf("no valid tier for %s with %d units.", product.Name, item.Quantity),
				lineDetails(i, item.ProductID, "quantity"),
			)
		}
		remaining[item.ProductID] -= item.Quantity

		lines = append(lines, &entity.OrderLine{
			ProductID: product.ID,
			Product:   product,
			Quantity:  item.Quantity,
			UnitPrice: unit,
		})
		subtotals = append(subtotals, pricing.Subtotal(unit, item.Quantity))
	}
	return lines, subtotals, nil
}

func (s *Service) allocateCode(ctx context.Context, tx repo.Tx) (string, error) {
	for i := 0; i < s.codeAttempts; i++ {
		code := s.newCode()
		exists, err := tx.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errorbank.Conflict("could not allocate an order code; please retry.")
}

func validateCustomer(req dto.CreateOrderRequest) error {
	if len(req.Lines) == 0 {
		return errorbank.BadRequest("order must contain at least one product.", errorbank.WithField("lines"))
	}
	if req.NationalID != "" && len(req.NationalID) != nationalIDLength {
		return errorbank.BadRequest(
			fmt.Sprintf("national id must be exactly %d characters.", nationalIDLength),
			errorbank.WithField("national_id"),
		)
	}
	if req.Phone != "" && len(req.Phone) != phoneLength {
		return errorbank.BadRequest(
			fmt.Sprintf("phone must be exactly %d characters.", phoneLength),
			errorbank.WithField("phone"),
		)
	}
	required := []struct{ field, value string }{
		{"name", req.Name},
		{"surname", req.Surname},
		{"email", req.Email},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errorbank.BadRequest(r.field+" is required.", errorbank.WithField(r.field))
		}
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		return errorbank.BadRequest("email is not a valid address.", errorbank.WithField("email"))
	}
	return nil
}

func lineDetails(index int, productID int64, field string) errorbank.Option {
	return errorbank.WithDetails(map[string]any{
		"line":       index,
		"product_id": productID,
		"field":      field,
	})
}

func insufficientStock(index int, product *entity.Product, available int) *errorbank.AppError {
	if available < 0 {
		available = 0
	}
	return errorbank.BadRequest(
		fmt.Sprintf("insufficient stock for %s; only %d available.", product.Name, available),
		lineDetails(index, product.ID, "quantity"),
		errorbank.WithDetail("available", available),
	)
}

func productIDs(lines []dto.OrderLineRequest) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func isOrderCode(code string) bool {
	if len(code) != 5 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Service) confirmation(order *entity.Order) notification.Confirmation {
	c := notification.Confirmation{
		EventID:       uuid.NewString(),
		OrderID:       order.ID,
		Code:          order.Code,
		CreatedAt:     order.CreatedAt,
		Name:          order.Name,
		Surname:       order.Surname,
		Email:         order.Email,
		Phone:         order.Phone,
		InterRegional: order.InterRegional,
		Department:    order.Department,
		Province:      order.Province,
		District:      order.District,
		Address:       order.Address,
		Total:         order.Total,
		Lines:         make([]notification.Line, 0, len(order.Lines)),
	}
	if order.PaymentMethod != nil {
		c.PaymentMethod = order.PaymentMethod.Name
	}
	if order.InterRegional {
		c.Surcharge = s.surcharge
	}
	for _, line := range order.Lines {
		item := notification.Line{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal(),
		}
		if line.Product != nil {
			item.ProductName = line.Product.Name
		}
		c.Lines = append(c.Lines, item)
	}
	return c
}

// notify hands the confirmation to the bus when messaging is enabled and otherwise
// sends it in the background. The order is already committed either way.
func (s *Service) notify(ctx context.Context, c notification.Confirmation) {
	if s.messaging.enabled && s.publisher != nil {
		err := s.publishOrderCreated(ctx, c)
		if err == nil {
			return
		}
		s.warn("publish order created failed; sending directly",
			zap.String("order.code", c.Code),
			zap.String("topic", s.messaging.topic),
			zap.Error(err),
		)
	}
	if s.notifier == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go s.notifier.OrderCreated(detached, c)
}

func (s *Service) publishOrderCreated(ctx context.Context, c notification.Confirmation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, messaging.Envelope{
		Key:   []byte(c.Code),
		Value: payload,
		Headers: map[string]string{
			messaging.HeaderEventID:   c.EventID,
			messaging.HeaderEventType: EventOrderCreated,
		},
	})
}

func codeCacheKey(code string) string {
	return "orders:code:" + code
}

func (s *Service) getFromCache(ctx context.Context, key string) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, key string, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, bytes, s.cacheTTL)
}

func (s *Service) warn(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}

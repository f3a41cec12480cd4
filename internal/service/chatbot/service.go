package chatbot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/gobady/internal/cache"
	"github.com/Additional-Code/gobady/internal/config"
	"github.com/Additional-Code/gobady/internal/dto"
	"github.com/Additional-Code/gobady/internal/entity"
	"github.com/Additional-Code/gobady/internal/llm"
	catalogsvc "github.com/Additional-Code/gobady/internal/service/catalog"
	"github.com/Additional-Code/gobady/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/gobady/service/chatbot")
	serviceMeter  = otel.Meter("github.com/Additional-Code/gobady/service/chatbot")
)

const (
	// ApologyReply is returned with a 200 when the generation backend fails.
	ApologyReply = "Lo siento, en este momento no puedo responder tu consulta. Por favor, inténtalo de nuevo en unos minutos."
	// FailureMessage is the client-facing text of unexpected errors.
	FailureMessage = "Lo siento, ocurrió un error inesperado. Por favor, inténtalo más tarde."
	// QuotaMessage is returned once the daily quota is used up.
	QuotaMessage = "daily limit reached; please come back tomorrow."
)

type catalogReader interface {
	ListCategories(ctx context.Context) ([]*entity.Category, error)
	ListProducts(ctx context.Context, search string) ([]*entity.Product, error)
	ListPaymentMethods(ctx context.Context) ([]*entity.PaymentMethod, error)
}

// Service answers store questions behind a per-client gate and a reply cache.
type Service struct {
	gate      cache.Gate
	replies   cache.Store
	catalog   catalogReader
	generator llm.Generator
	sampling  llm.Sampling
	logger    *zap.Logger
	requests  metric.Int64Counter
	latency   metric.Float64Histogram

	replyTTL     time.Duration
	maxMessage   int
	maxReply     int
	historyLimit int
	surcharge    decimal.Decimal
	currency     string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Gate      cache.Gate
	Cache     cache.Store
	Catalog   *catalogsvc.Service
	Generator llm.Generator
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return newService(p.Gate, p.Cache, p.Catalog, p.Generator, p.Config, p.Logger)
}

func newService(gate cache.Gate, replies cache.Store, catalog catalogReader, generator llm.Generator, cfg config.Config, logger *zap.Logger) *Service {
	requests, err := serviceMeter.Int64Counter("chatbot.requests", metric.WithDescription("Chatbot requests by outcome"))
	if err != nil {
		logger.Warn("chatbot.requests counter unavailable", zap.Error(err))
	}
	latency, err := serviceMeter.Float64Histogram("chatbot.generation.duration",
		metric.WithDescription("Time spent waiting on the generation backend"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("chatbot.generation.duration histogram unavailable", zap.Error(err))
	}
	return &Service{
		gate:         gate,
		replies:      replies,
		catalog:      catalog,
		generator:    generator,
		sampling:     llm.SamplingFromConfig(cfg.Chatbot),
		logger:       logger,
		requests:     requests,
		latency:      latency,
		replyTTL:     cfg.Chatbot.ReplyTTL,
		maxMessage:   cfg.Chatbot.MaxMessageLength,
		maxReply:     cfg.Chatbot.MaxReplyLength,
		historyLimit: cfg.Chatbot.HistoryLimit,
		surcharge:    cfg.Orders.ShippingSurcharge,
		currency:     cfg.Orders.CurrencySymbol,
	}
}

func (s *Service) count(ctx context.Context, outcome string) {
	if s.requests != nil {
		s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// Reply answers one message for client. Capacity rejections are 429 errors, backend
// failures degrade to ApologyReply and anything unexpected becomes a 500.
func (s *Service) Reply(ctx context.Context, client string, req dto.ChatRequest) (dto.ChatResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "ChatbotService.Reply")
	defer span.End()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.count(ctx, "invalid")
		return dto.ChatResponse{}, errorbank.BadRequest("message is required", errorbank.WithField("message"))
	}
	if utf8.RuneCountInString(message) > s.maxMessage {
		s.count(ctx, "invalid")
		return dto.ChatResponse{}, errorbank.BadRequest(
			fmt.Sprintf("message is too long; keep it within %d characters or split your question.", s.maxMessage),
			errorbank.WithField("message"),
			errorbank.WithDetail("max_length", s.maxMessage),
		)
	}

	decision, err := s.gate.Admit(ctx, client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gate failed")
		s.logger.Error("chatbot gate failed", zap.String("client", client), zap.Error(err))
		s.count(ctx, "error")
		return dto.ChatResponse{}, errorbank.Internal(FailureMessage, errorbank.WithCause(err))
	}
	switch decision.Verdict {
	case cache.RateLimited:
		s.count(ctx, "rate_limited")
		wait := retrySeconds(decision.RetryAfter)
		return dto.ChatResponse{}, errorbank.TooManyRequests(
			fmt.Sprintf("too many messages; try again in %d seconds.", wait),
			errorbank.WithDetail("retry_after_seconds", wait),
		)
	case cache.QuotaExhausted:
		s.count(ctx, "quota_exhausted")
		return dto.ChatResponse{}, errorbank.TooManyRequests(QuotaMessage, errorbank.WithDetail("reason", "daily_quota"))
	}
	span.SetAttributes(attribute.Int("chatbot.quota.remaining", decision.Remaining))

	key := ReplyCacheKey(message)
	if cached, err := s.replies.Get(ctx, key); err == nil {
		s.count(ctx, "cache_hit")
		return dto.ChatResponse{Reply: string(cached), Cached: true}, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("chatbot cache read failed", zap.Error(err))
	}

	storeContext, err := s.assembleContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context assembly failed")
		s.logger.Error("chatbot context assembly failed", zap.Error(err))
		s.count(ctx, "error")
		return dto.ChatResponse{}, errorbank.Internal(FailureMessage, errorbank.WithCause(err))
	}

	prompt := buildPrompt(storeContext, recentHistory(req.History, s.historyLimit), message, s.maxReply)
	started := time.Now()
	text, err := s.generator.Generate(ctx, prompt, s.sampling)
	if s.latency != nil {
		s.latency.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(attribute.Bool("error", err != nil)))
	}
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err == nil {
			err = llm.ErrEmptyReply
		}
		s.logger.Warn("chatbot generation failed", zap.String("client", client), zap.Error(err))
		s.count(ctx, "fallback")
		return dto.ChatResponse{Reply: ApologyReply}, nil
	}

	text = truncate(text, s.maxReply)
	if err := s.replies.Set(ctx, key, []byte(text), s.replyTTL); err != nil {
		s.logger.Warn("chatbot cache write failed", zap.Error(err))
	}
	s.count(ctx, "generated")
	return dto.ChatResponse{Reply: text}, nil
}

// ReplyCacheKey normalises message and hashes it into the reply cache key.
func ReplyCacheKey(message string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(message))))
	return "chatbot:reply:" + hex.EncodeToString(sum[:])
}

func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// truncate cuts text to limit runes, ending with an ellipsis when it had to cut.
func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}

func recentHistory(history []dto.ChatHistoryEntry, limit int) []dto.ChatHistoryEntry {
	kept := make([]dto.ChatHistoryEntry, 0, len(history))
	for _, entry := range history {
		switch strings.ToLower(entry.Kind) {
		case "welcome", "greeting":
			continue
		}
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	return kept
}

type storeSnapshot struct {
	categories []*entity.Category
	products   []*entity.Product
	methods    []*entity.PaymentMethod
}

func (s *Service) assembleContext(ctx context.Context) (string, error) {
	var snap storeSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.categories, err = s.catalog.ListCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.products, err = s.catalog.ListProducts(gctx, "")
		return err
	})
	g.Go(func() error {
		var err error
		snap.methods, err = s.catalog.ListPaymentMethods(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	return s.renderSnapshot(snap), nil
}

func (s *Service) money(v decimal.Decimal) string {
	return s.currency + " " + v.StringFixed(2)
}

func (s *Service) renderSnapshot(snap storeSnapshot) string {
	var b strings.Builder

	b.WriteString("CATEGORÍAS:\n")
	for _, c := range snap.categories {
		fmt.Fprintf(&b, "- %s\n", c.Name)
	}

	b.WriteString("\nPRODUCTOS:\n")
	for _, p := range snap.products {
		fmt.Fprintf(&b, "- %s", p.Name)
		if len(p.Categories) > 0 {
			names := make([]string, 0, len(p.Categories))
			for _, c := range p.Categories {
				names = append(names, c.Name)
			}
			fmt.Fprintf(&b, " [%s]", strings.Join(names, ", "))
		}
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
		fmt.Fprintf(&b, ". Stock: %d unidades.", p.Stock)
		if len(p.Tiers) > 0 {
			prices := make([]string, 0, len(p.Tiers))
			for _, t := range p.Tiers {
				if t.MaxQuantity == nil {
					prices = append(prices, fmt.Sprintf("desde %d u. %s c/u", t.MinQuantity, s.money(t.UnitPrice)))
				} else {
					prices = append(prices, fmt.Sprintf("%d-%d u. %s c/u", t.MinQuantity, *t.MaxQuantity, s.money(t.UnitPrice)))
				}
			}
			fmt.Fprintf(&b, " Precios: %s.", strings.Join(prices, "; "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nMÉTODOS DE PAGO:\n")
	for _, m := range snap.methods {
		fmt.Fprintf(&b, "- %s", m.Name)
		if m.Description != "" {
			fmt.Fprintf(&b, ": %s", m.Description)
		}
		if m.AccountNumber != "" {
			fmt.Fprintf(&b, " (cuenta %s)", m.AccountNumber)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nENVÍOS: los envíos a provincia tienen un recargo fijo de %s por pedido; las entregas locales no tienen recargo.\n", s.money(s.surcharge))
	return b.String()
}

func buildPrompt(storeContext string, history []dto.ChatHistoryEntry, message string, maxReply int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres el asistente virtual de la tienda Gobady Perú. Responde en español, de forma amable y breve "+
		"(menos de %d caracteres), usando solo la información de la tienda que aparece a continuación. "+
		"Si no tienes el dato, sugiere contactar a la tienda.\n\n", maxReply)
	b.WriteString(storeContext)

	if len(history) > 0 {
		b.WriteString("\nCONVERSACIÓN RECIENTE:\n")
		for _, entry := range history {
			speaker := "Asistente"
			if strings.EqualFold(entry.Role, "user") {
				speaker = "Cliente"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, strings.TrimSpace(entry.Text))
		}
	}

	fmt.Fprintf(&b, "\nCliente: %s\nAsistente:", message)
	return b.String()
}

package chatbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/cache"
	"github.com/Additional-Code/gobady/internal/config"
	"github.com/Additional-Code/gobady/internal/dto"
	"github.com/Additional-Code/gobady/internal/entity"
	"github.com/Additional-Code/gobady/internal/llm"
	"github.com/Additional-Code/gobady/pkg/errorbank"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, _ llm.Sampling) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

type fakeCatalog struct {
	err error
}

func (f *fakeCatalog) ListCategories(context.Context) ([]*entity.Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*entity.Category{{ID: 1, Name: "Herramientas"}}, nil
}

func (f *fakeCatalog) ListProducts(context.Context, string) ([]*entity.Product, error) {
	upTo := 9
	return []*entity.Product{{
		ID:          1,
		Name:        "Widget",
		Description: "Widget de acero",
		Stock:       50,
		Categories:  []*entity.Category{{ID: 1, Name: "Herramientas"}},
		Tiers: []*entity.PriceTier{
			{ID: 1, ProductID: 1, MinQuantity: 1, MaxQuantity: &upTo, UnitPrice: decimal.RequireFromString("10.00")},
			{ID: 2, ProductID: 1, MinQuantity: 10, UnitPrice: decimal.RequireFromString("8.00")},
		},
	}}, nil
}

func (f *fakeCatalog) ListPaymentMethods(context.Context) ([]*entity.PaymentMethod, error) {
	return []*entity.PaymentMethod{{ID: 1, Name: "Yape", AccountNumber: "987654321"}}, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	v, ok := c.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type failingGate struct{}

func (failingGate) Admit(context.Context, string) (cache.Decision, error) {
	return cache.Decision{}, errors.New("redis down")
}

func testConfig() config.Config {
	return config.Config{
		Orders: config.Orders{ShippingSurcharge: decimal.RequireFromString("8.00"), CurrencySymbol: "S/"},
		Chatbot: config.Chatbot{
			RateWindow:       time.Minute,
			RateLimit:        10,
			QuotaPeriod:      24 * time.Hour,
			DailyQuota:       20,
			ReplyTTL:         time.Hour,
			MaxMessageLength: 500,
			MaxReplyLength:   500,
			HistoryLimit:     6,
		},
	}
}

type harness struct {
	svc       *Service
	clock     *fakeClock
	generator *fakeGenerator
	replies   *mapCache
	catalog   *fakeCatalog
}

func newHarness() *harness {
	cfg := testConfig()
	h := &harness{
		clock:     newFakeClock(),
		generator: &fakeGenerator{reply: "Tenemos Widget desde S/ 8.00."},
		replies:   newMapCache(),
		catalog:   &fakeCatalog{},
	}
	gate := cache.NewMemoryGate(cache.LimitsFromConfig(cfg.Chatbot), h.clock.Now)
	h.svc = newService(gate, h.replies, h.catalog, h.generator, cfg, zap.NewNop())
	return h
}

func ask(message string) dto.ChatRequest {
	return dto.ChatRequest{Message: message}
}

func TestReplyValidatesMessage(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.svc.Reply(ctx, "1.1.1.1", ask("   "))
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = h.svc.Reply(ctx, "1.1.1.1", ask(strings.Repeat("a", 501)))
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindBadRequest, appErr.Kind())
	assert.Equal(t, 500, appErr.Details()["max_length"])

	_, err = h.svc.Reply(ctx, "1.1.1.1", ask(strings.Repeat("ñ", 500)))
	require.NoError(t, err)
	assert.Equal(t, 1, h.generator.calls())
}

func TestReplyRateLimitsPerClient(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := h.svc.Reply(ctx, "1.1.1.1", ask("hola"))
		require.NoError(t, err, "request %d", i+1)
		h.clock.Advance(time.Second)
	}

	_, err := h.svc.Reply(ctx, "1.1.1.1", ask("hola"))
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindTooManyRequests, appErr.Kind())
	assert.Equal(t, 50, appErr.Details()["retry_after_seconds"])
	assert.Equal(t, 429, appErr.StatusCode())

	_, err = h.svc.Reply(ctx, "2.2.2.2", ask("hola"))
	require.NoError(t, err, "other clients are unaffected")

	h.clock.Advance(50 * time.Second)
	_, err = h.svc.Reply(ctx, "1.1.1.1", ask("hola"))
	require.NoError(t, err, "earliest request left the window")
}

func TestReplyEnforcesDailyQuota(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if i > 0 && i%10 == 0 {
			h.clock.Advance(61 * time.Second)
		}
		_, err := h.svc.Reply(ctx, "1.1.1.1", ask("hola"))
		require.NoError(t, err, "request %d", i+1)
	}

	h.clock.Advance(61 * time.Second)
	_, err := h.svc.Reply(ctx, "1.1.1.1", ask("hola"))
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindTooManyRequests, appErr.Kind())
	assert.Equal(t, QuotaMessage, appErr.Message())

	h.clock.Advance(24 * time.Hour)
	_, err = h.svc.Reply(ctx, "1.1.1.1", ask("hola"))
	require.NoError(t, err)
}

func TestReplyIsCachedCaseAndWhitespaceInsensitive(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.svc.Reply(ctx, "1.1.1.1", ask("Hola"))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := h.svc.Reply(ctx, "1.1.1.1", ask("  HOLA "))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, 1, h.generator.calls())
	assert.Equal(t, ReplyCacheKey("hola"), ReplyCacheKey(" HOLA  "))
}

func TestReplyCachesWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Cache = config.Cache{Driver: "noop", DefaultTTL: time.Minute}
	components, err := cache.New(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)

	generator := &fakeGenerator{reply: "El Widget cuesta S/ 10.00 c/u."}
	svc := newService(components.Gate, components.Store, &fakeCatalog{}, generator, cfg, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Reply(ctx, "1.1.1.1", ask("Precio del Widget?"))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Reply(ctx, "1.1.1.1", ask("  precio del widget?  "))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, 1, generator.calls())
}

func TestReplyCacheHitStillCountsAgainstGate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := h.svc.Reply(ctx, "1.1.1.1", ask("hola"))
		require.NoError(t, err)
	}
	_, err := h.svc.Reply(ctx, "1.1.1.1", ask("hola"))
	assert.True(t, errorbank.IsKind(err, errorbank.KindTooManyRequests))
	assert.Equal(t, 1, h.generator.calls())
}

func TestReplyFallsBackToApologyWithoutCaching(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "backend error", err: errors.New("upstream 503")},
		{name: "empty reply", reply: "   "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.generator.reply = tc.reply
			h.generator.err = tc.err

			resp, err := h.svc.Reply(context.Background(), "1.1.1.1", ask("hola"))
			require.NoError(t, err)
			assert.Equal(t, ApologyReply, resp.Reply)
			assert.False(t, resp.Cached)

			_, err = h.svc.Reply(context.Background(), "1.1.1.1", ask("hola"))
			require.NoError(t, err)
			assert.Equal(t, 2, h.generator.calls(), "apology must not be cached")
		})
	}
}

func TestReplyTruncatesLongAnswers(t *testing.T) {
	h := newHarness()
	h.generator.reply = strings.Repeat("á", 600)

	resp, err := h.svc.Reply(context.Background(), "1.1.1.1", ask("hola"))
	require.NoError(t, err)
	runes := []rune(resp.Reply)
	assert.Len(t, runes, 500)
	assert.True(t, strings.HasSuffix(resp.Reply, "..."))
}

func TestReplyPromptCarriesStoreContextAndRecentHistory(t *testing.T) {
	h := newHarness()
	req := dto.ChatRequest{Message: "¿Cuánto cuesta el widget?"}
	req.History = append(req.History, dto.ChatHistoryEntry{Role: "bot", Text: "¡Bienvenido!", Kind: "welcome"})
	for i := 1; i <= 8; i++ {
		role := "user"
		if i%2 == 0 {
			role = "bot"
		}
		req.History = append(req.History, dto.ChatHistoryEntry{Role: role, Text: "turno " + string(rune('0'+i))})
	}

	_, err := h.svc.Reply(context.Background(), "1.1.1.1", req)
	require.NoError(t, err)

	prompt := h.generator.lastPrompt()
	assert.Contains(t, prompt, "Widget [Herramientas]")
	assert.Contains(t, prompt, "1-9 u. S/ 10.00 c/u")
	assert.Contains(t, prompt, "desde 10 u. S/ 8.00 c/u")
	assert.Contains(t, prompt, "Yape (cuenta 987654321)")
	assert.Contains(t, prompt, "recargo fijo de S/ 8.00")
	assert.NotContains(t, prompt, "Bienvenido")
	assert.NotContains(t, prompt, "turno 1")
	assert.NotContains(t, prompt, "turno 2")
	assert.Contains(t, prompt, "Cliente: turno 3")
	assert.Contains(t, prompt, "Asistente: turno 8")
	assert.True(t, strings.HasSuffix(prompt, "Cliente: ¿Cuánto cuesta el widget?\nAsistente:"))
}

func TestReplyUnexpectedFailuresAreInternal(t *testing.T) {
	t.Run("context assembly", func(t *testing.T) {
		h := newHarness()
		h.catalog.err = errors.New("db gone")

		_, err := h.svc.Reply(context.Background(), "1.1.1.1", ask("hola"))
		require.Error(t, err)
		appErr := errorbank.From(err)
		assert.Equal(t, errorbank.KindInternal, appErr.Kind())
		assert.Equal(t, FailureMessage, appErr.Message())
		assert.Zero(t, h.generator.calls())
	})

	t.Run("gate", func(t *testing.T) {
		h := newHarness()
		h.svc.gate = failingGate{}

		_, err := h.svc.Reply(context.Background(), "1.1.1.1", ask("hola"))
		assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))
	})
}

func TestReplyTreatsCacheErrorsAsMiss(t *testing.T) {
	h := newHarness()
	h.replies.err = errors.New("cache offline")

	resp, err := h.svc.Reply(context.Background(), "1.1.1.1", ask("hola"))
	require.NoError(t, err)
	assert.Equal(t, "Tenemos Widget desde S/ 8.00.", resp.Reply)
	assert.False(t, resp.Cached)
}

func TestRecentHistory(t *testing.T) {
	history := []dto.ChatHistoryEntry{
		{Role: "bot", Text: "hola", Kind: "Greeting"},
		{Role: "user", Text: "  "},
		{Role: "user", Text: "a"},
		{Role: "bot", Text: "b"},
	}
	got := recentHistory(history, 6)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "b", got[1].Text)
}

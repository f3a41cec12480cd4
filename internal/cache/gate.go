package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Additional-Code/gobady/internal/config"
)

// Verdict is the outcome of a gate check.
type Verdict int

const (
	// Admitted means the request may proceed and has been counted.
	Admitted Verdict = iota
	// RateLimited means the sliding window is full.
	RateLimited
	// QuotaExhausted means the per-period quota is used up.
	QuotaExhausted
)

// Decision is returned by Gate.Admit.
type Decision struct {
	Verdict    Verdict
	RetryAfter time.Duration
	Remaining  int
}

// Allowed reports whether the request was admitted.
func (d Decision) Allowed() bool { return d.Verdict == Admitted }

// Limits configures a Gate.
type Limits struct {
	Namespace   string
	Window      time.Duration
	PerWindow   int
	QuotaPeriod time.Duration
	Quota       int
}

// LimitsFromConfig derives the chatbot gate limits.
func LimitsFromConfig(cfg config.Chatbot) Limits {
	return Limits{
		Namespace:   "chatbot",
		Window:      cfg.RateWindow,
		PerWindow:   cfg.RateLimit,
		QuotaPeriod: cfg.QuotaPeriod,
		Quota:       cfg.DailyQuota,
	}
}

// Gate applies a sliding-window rate limit followed by a fixed-period quota per client key.
// A rejected request consumes neither the window nor the quota.
type Gate interface {
	Admit(ctx context.Context, client string) (Decision, error)
}

// ErrEmptyClient is returned when no client key is supplied.
var ErrEmptyClient = errors.New("gate client key is required")

// gateScript performs the whole check-and-record step atomically on the server.
// Times are in milliseconds. Returns {verdict, wait, remaining}.
var gateScript = goredis.NewScript(`
local rate_key = KEYS[1]
local quota_key = KEYS[2]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local per_window = tonumber(ARGV[3])
local period = tonumber(ARGV[4])
local quota = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', rate_key, '-inf', now - window)
if redis.call('ZCARD', rate_key) >= per_window then
	local oldest = redis.call('ZRANGE', rate_key, 0, 0, 'WITHSCORES')
	local wait = window
	if oldest[2] then
		wait = window - (now - tonumber(oldest[2]))
	end
	return {1, wait, 0}
end

local used = tonumber(redis.call('GET', quota_key) or '0')
if used >= quota then
	local ttl = redis.call('PTTL', quota_key)
	if ttl < 0 then
		ttl = period
	end
	return {2, ttl, 0}
end

redis.call('ZADD', rate_key, now, ARGV[6])
redis.call('PEXPIRE', rate_key, window)
used = redis.call('INCR', quota_key)
if used == 1 then
	redis.call('PEXPIRE', quota_key, period)
end
return {0, 0, quota - used}
`)

type redisGate struct {
	client goredis.UniversalClient
	limits Limits
	now    func() time.Time
}

// NewRedisGate builds a Gate shared by every process using the same redis.
func NewRedisGate(client goredis.UniversalClient, limits Limits, now func() time.Time) Gate {
	if now == nil {
		now = time.Now
	}
	return &redisGate{client: client, limits: limits, now: now}
}

func (g *redisGate) Admit(ctx context.Context, client string) (Decision, error) {
	if client == "" {
		return Decision{}, ErrEmptyClient
	}
	keys := []string{
		g.limits.Namespace + ":rate:" + client,
		g.limits.Namespace + ":quota:" + client,
	}
	res, err := gateScript.Run(ctx, g.client, keys,
		g.now().UnixMilli(),
		g.limits.Window.Milliseconds(),
		g.limits.PerWindow,
		g.limits.QuotaPeriod.Milliseconds(),
		g.limits.Quota,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, errors.New("unexpected gate script reply")
	}
	return Decision{
		Verdict:    Verdict(res[0]),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  int(res[2]),
	}, nil
}

type memoryClient struct {
	hits    []time.Time
	used    int
	resetAt time.Time
}

type memoryGate struct {
	mu      sync.Mutex
	limits  Limits
	now     func() time.Time
	clients map[string]*memoryClient
}

// NewMemoryGate builds a Gate local to this process.
func NewMemoryGate(limits Limits, now func() time.Time) Gate {
	if now == nil {
		now = time.Now
	}
	return &memoryGate{limits: limits, now: now, clients: make(map[string]*memoryClient)}
}

func (g *memoryGate) Admit(_ context.Context, client string) (Decision, error) {
	if client == "" {
		return Decision{}, ErrEmptyClient
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	state, ok := g.clients[client]
	if !ok {
		state = &memoryClient{}
		g.clients[client] = state
	}

	cutoff := now.Add(-g.limits.Window)
	kept := state.hits[:0]
	for _, hit := range state.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	state.hits = kept

	if len(state.hits) >= g.limits.PerWindow {
		return Decision{Verdict: RateLimited, RetryAfter: g.limits.Window - now.Sub(state.hits[0])}, nil
	}

	if !state.resetAt.IsZero() && !now.Before(state.resetAt) {
		state.used = 0
		state.resetAt = time.Time{}
	}
	if state.used >= g.limits.Quota {
		return Decision{Verdict: QuotaExhausted, RetryAfter: state.resetAt.Sub(now)}, nil
	}

	state.hits = append(state.hits, now)
	state.used++
	if state.used == 1 {
		state.resetAt = now.Add(g.limits.QuotaPeriod)
	}
	g.sweep(now, client)

	return Decision{Verdict: Admitted, Remaining: g.limits.Quota - state.used}, nil
}

// sweep drops idle clients once the table grows large.
func (g *memoryGate) sweep(now time.Time, keep string) {
	if len(g.clients) < 4096 {
		return
	}
	cutoff := now.Add(-g.limits.Window)
	for key, state := range g.clients {
		if key == keep {
			continue
		}
		idle := len(state.hits) == 0 || !state.hits[len(state.hits)-1].After(cutoff)
		if idle && !now.Before(state.resetAt) {
			delete(g.clients, key)
		}
	}
}

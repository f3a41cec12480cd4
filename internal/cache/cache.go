package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
)

// Store represents a generic byte cache with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrCacheMiss indicates the key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

// Components groups the cache-backed dependencies handed to the Fx graph.
type Components struct {
	fx.Out

	Store Store
	Gate  Gate
}

// Module provides the cache store and the request gate to the Fx graph.
var Module = fx.Provide(New)

// New initialises the configured cache backend (redis or noop). Without redis the
// store and the gate fall back to process memory.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Components, error) {
	limits := LimitsFromConfig(cfg.Chatbot)

	switch cfg.Cache.Driver {
	case "noop":
		if logger != nil {
			logger.Info("redis disabled; using in-memory store and gate")
		}
		return Components{
			Store: NewMemoryStore(cfg.Cache.DefaultTTL, time.Now),
			Gate:  NewMemoryGate(limits, time.Now),
		}, nil
	case "redis":
		client := newRedisClient(lc, cfg.Cache, logger)
		return Components{
			Store: &redisStore{client: client, defaultTTL: cfg.Cache.DefaultTTL},
			Gate:  NewRedisGate(client, limits, time.Now),
		}, nil
	default:
		return Components{}, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

type redisStore struct {
	client     goredis.UniversalClient
	defaultTTL time.Duration
}

// NewRedisStore wraps an existing redis client as a Store.
func NewRedisStore(client goredis.UniversalClient, defaultTTL time.Duration) Store {
	return &redisStore{client: client, defaultTTL: defaultTTL}
}

func newRedisClient(lc fx.Lifecycle, cfg config.Cache, logger *zap.Logger) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			if logger != nil {
				logger.Info("redis cache connected", zap.String("addr", cfg.Redis.Addr))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if logger != nil {
				logger.Info("closing redis cache")
			}
			return client.Close()
		},
	})

	return client
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrCacheMiss
	}
	res, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

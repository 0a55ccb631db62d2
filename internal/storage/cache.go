package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Divas-Gupta30/kgqa/internal/kg"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

const (
	cacheKeyPrefix  = "kgqa:search:"
	defaultCacheTTL = 10 * time.Minute
	cacheOpTimeout  = 2 * time.Second
)

// RedisConfig.Addr is either host:port or a redis:// or rediss:// URL.
// Password and DB, when set, override the values carried by a URL.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func redisOptions(cfg RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Addr}
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	return opts, nil
}

// NewRedisClient connects to Redis. When the address is unusable or the
// server does not answer, nil is returned and callers run without a cache.
func NewRedisClient(ctx context.Context, cfg RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	log := logger.FromContext(ctx)
	opts, err := redisOptions(cfg)
	if err != nil {
		log.Warn("Invalid Redis address, searching without cache", "error", err)
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Failed to connect to Redis, searching without cache", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	log.Info("Connected to Redis cache", "addr", opts.Addr, "db", opts.DB)
	return client
}

// CacheObserver is told about cache lookups.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

type nopObserver struct{}

func (nopObserver) CacheHit()  {}
func (nopObserver) CacheMiss() {}

// CachedRetriever serves repeated searches from Redis. Errors, empty results
// and results missing a failed strategy are never cached. A Redis failure
// falls through to the wrapped retriever.
type CachedRetriever struct {
	next     Retriever
	client   *redis.Client
	ttl      time.Duration
	observer CacheObserver
}

type CacheOption func(*CachedRetriever)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedRetriever) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheObserver(o CacheObserver) CacheOption {
	return func(c *CachedRetriever) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCachedRetriever wraps next. A nil client returns next unchanged.
func NewCachedRetriever(next Retriever, client *redis.Client, opts ...CacheOption) Retriever {
	if client == nil {
		return next
	}
	c := &CachedRetriever{next: next, client: client, ttl: defaultCacheTTL, observer: nopObserver{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedRetriever) Search(ctx context.Context, keywords string, maxResults int) ([]kg.Row, error) {
	log := logger.FromContext(ctx)
	key := cacheKey(keywords, maxResults)

	if rows, ok := c.lookup(ctx, key); ok {
		c.observer.CacheHit()
		log.Debug("Search served from cache", "keywords", keywords, "results", len(rows))
		return rows, nil
	}
	c.observer.CacheMiss()

	rows, partial, err := c.searchNext(ctx, keywords, maxResults)
	if err != nil || len(rows) == 0 {
		return rows, err
	}
	if partial {
		log.Debug("Not caching partial search results", "keywords", keywords)
		return rows, nil
	}
	if err := c.store(ctx, key, rows); err != nil {
		log.Warn("Failed to cache search results", "error", err)
	}
	return rows, nil
}

func (c *CachedRetriever) searchNext(ctx context.Context, keywords string, maxResults int) ([]kg.Row, bool, error) {
	if ss, ok := c.next.(strategySearcher); ok {
		return ss.searchStrategies(ctx, keywords, maxResults)
	}
	rows, err := c.next.Search(ctx, keywords, maxResults)
	return rows, false, err
}

func (c *CachedRetriever) lookup(ctx context.Context, key string) ([]kg.Row, bool) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.FromContext(ctx).Warn("Cache lookup failed", "error", err)
		}
		return nil, false
	}
	var rows []kg.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		logger.FromContext(ctx).Warn("Dropping unreadable cache entry", "key", key, "error", err)
		return nil, false
	}
	return rows, true
}

func (c *CachedRetriever) store(ctx context.Context, key string, rows []kg.Row) error {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func cacheKey(keywords string, maxResults int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", maxResults, keywords)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

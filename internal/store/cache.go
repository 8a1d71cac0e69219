package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/metrics"
	"github.com/youchews/youchews-api/internal/model"
)

const catalogKeyPrefix = "youchews:catalog:"

// RedisOptions configures the cache connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis creates a Redis client and checks the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "redis: ping")
	}
	return rdb, nil
}

// CachedStore wraps a Store with a read-through Redis cache for
// QueryNearby. Boxes are snapped outward to a grid of 1/keyScale degrees,
// so the cached rows are a superset of what the exact box would return and
// nearby searches share entries. Cache failures fall through to the store.
type CachedStore struct {
	Store
	rdb      *redis.Client
	ttl      time.Duration
	keyScale float64
}

// NewCachedStore wraps next. A keyScale <= 0 defaults to 1000 (about 110 m).
func NewCachedStore(next Store, rdb *redis.Client, ttl time.Duration, keyScale int) *CachedStore {
	if keyScale <= 0 {
		keyScale = 1000
	}
	return &CachedStore{Store: next, rdb: rdb, ttl: ttl, keyScale: float64(keyScale)}
}

func (c *CachedStore) QueryNearby(ctx context.Context, bounds *geom.Bounds) ([]model.Restaurant, error) {
	key, snapped := c.snap(bounds)
	log := zap.L().With(zap.String("key", key))

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rows []model.Restaurant
		jerr := json.Unmarshal(raw, &rows)
		if jerr == nil {
			metrics.RecordCacheLookup("hit")
			return rows, nil
		}
		log.Warn("store: discarding undecodable cache entry", zap.Error(jerr))
		metrics.RecordCacheLookup("error")
	case errors.Is(err, redis.Nil):
		metrics.RecordCacheLookup("miss")
	default:
		log.Warn("store: catalog cache read failed", zap.Error(err))
		metrics.RecordCacheLookup("error")
	}

	rows, err := c.Store.QueryNearby(ctx, snapped)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(rows)
	if err != nil {
		log.Warn("store: encode cache entry", zap.Error(err))
		return rows, nil
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn("store: catalog cache write failed", zap.Error(err))
	}
	return rows, nil
}

// Invalidate removes every cached catalog entry and returns the number of
// keys deleted.
func (c *CachedStore) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	iter := c.rdb.Scan(ctx, 0, catalogKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.rdb.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, eris.Wrap(err, "redis: delete catalog key")
		}
		deleted += n
	}
	return deleted, eris.Wrap(iter.Err(), "redis: scan catalog keys")
}

func (c *CachedStore) ImportRestaurants(ctx context.Context, rows []model.Restaurant, mode ImportMode) (int64, error) {
	n, err := c.Store.ImportRestaurants(ctx, rows, mode)
	if err != nil {
		return n, err
	}
	if _, err := c.Invalidate(ctx); err != nil {
		zap.L().Warn("store: catalog cache invalidation failed", zap.Error(err))
	}
	return n, nil
}

// snap returns the cache key for bounds and the grid-aligned box to query.
func (c *CachedStore) snap(bounds *geom.Bounds) (string, *geom.Bounds) {
	if bounds == nil {
		return catalogKeyPrefix + "all", nil
	}
	minX := math.Floor(bounds.Min(0) * c.keyScale)
	minY := math.Floor(bounds.Min(1) * c.keyScale)
	maxX := math.Ceil(bounds.Max(0) * c.keyScale)
	maxY := math.Ceil(bounds.Max(1) * c.keyScale)

	key := fmt.Sprintf("%s%g:%.0f:%.0f:%.0f:%.0f", catalogKeyPrefix, c.keyScale, minX, minY, maxX, maxY)
	snapped := geom.NewBounds(geom.XY).Set(
		minX/c.keyScale, minY/c.keyScale,
		maxX/c.keyScale, maxY/c.keyScale,
	)
	return key, snapped
}

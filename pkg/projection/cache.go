package projection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/observability"
)

// CachedStore is a read-through Redis cache in front of a ViewStore.
// Upserts write the new row through; a read only fills a missing key, so a
// reader holding an older row never overwrites one written by Upsert.
// Redis failures degrade to direct reads.
type CachedStore struct {
	ViewStore
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	metrics *observability.Metrics
	logger  *logrus.Logger
}

// NewCachedStore wraps next with a Redis cache
func NewCachedStore(next ViewStore, client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *logrus.Logger) *CachedStore {
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedStore{
		ViewStore: next,
		client:    client,
		ttl:       ttl,
		prefix:    "warden:view:",
		metrics:   metrics,
		logger:    logger,
	}
}

func (c *CachedStore) Get(ctx context.Context, id string) (View, error) {
	key := c.prefix + id

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v View
		if jsonErr := json.Unmarshal(data, &v); jsonErr == nil {
			c.metrics.CacheHitsTotal.WithLabelValues("view").Inc()
			return v, nil
		}
	case err != redis.Nil:
		c.logger.WithError(err).Warn("view cache read failed")
	}
	c.metrics.CacheMissesTotal.WithLabelValues("view").Inc()

	v, err := c.ViewStore.Get(ctx, id)
	if err != nil {
		return View{}, err
	}

	c.fill(ctx, v)
	return v, nil
}

// fill caches v unless the key is already set
func (c *CachedStore) fill(ctx context.Context, v View) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.SetNX(ctx, c.prefix+v.ID, encoded, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("view cache write failed")
	}
}

// store overwrites the cached row; on failure the key is dropped instead
func (c *CachedStore) store(ctx context.Context, v View) {
	encoded, err := json.Marshal(v)
	if err == nil {
		err = c.client.Set(ctx, c.prefix+v.ID, encoded, c.ttl).Err()
	}
	if err != nil {
		c.logger.WithError(err).WithField("service_account_id", v.ID).Warn("view cache write failed")
		c.invalidate(ctx, v.ID)
	}
}

func (c *CachedStore) Upsert(ctx context.Context, v View) (bool, error) {
	written, err := c.ViewStore.Upsert(ctx, v)
	if err != nil {
		return false, err
	}
	if written {
		c.store(ctx, v)
	}
	return written, nil
}

func (c *CachedStore) Reset(ctx context.Context) error {
	if err := c.ViewStore.Reset(ctx); err != nil {
		return err
	}

	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		c.invalidate(ctx, iter.Val()[len(c.prefix):])
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("view cache scan failed")
	}
	return nil
}

func (c *CachedStore) invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.prefix+id).Err(); err != nil {
		c.logger.WithError(err).WithField("service_account_id", id).Warn("view cache invalidation failed")
	}
}

package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariefcatur/orderstream/internal/catalog"
	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedProducts is a read-through cache in front of a catalog.Repository.
// Every write through it, and every Invalidate call, drops the affected
// entries. A failing Redis never fails a call; it only costs a storage read.
type CachedProducts struct {
	repo catalog.Repository
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
}

func NewCachedProducts(repo catalog.Repository, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedProducts {
	if ttl <= 0 {
		ttl = TTLProduct
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedProducts{repo: repo, rdb: rdb, ttl: ttl, log: log}
}

func (c *CachedProducts) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	key := productKey(id)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return orders.Product{}, catalog.ErrNotFound
		}
		var p orders.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
		c.log.Warn("cached product unreadable, using storage", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("redis get failed, using storage", zap.String("key", key), zap.Error(err))
	}

	p, err := c.repo.GetProduct(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		if err := c.rdb.Set(ctx, key, notFoundMarker, TTLNotFound).Err(); err != nil {
			c.log.Warn("cache notfound failed", zap.String("key", key), zap.Error(err))
		}
		return orders.Product{}, err
	}
	if err != nil {
		return orders.Product{}, err
	}
	c.store(ctx, key, p)
	return p, nil
}

func (c *CachedProducts) ListProducts(ctx context.Context) ([]orders.Product, error) {
	data, err := c.rdb.Get(ctx, KeyProductsAll).Bytes()
	switch {
	case err == nil:
		var ps []orders.Product
		if err := json.Unmarshal(data, &ps); err == nil {
			return ps, nil
		}
		c.log.Warn("cached product list unreadable, using storage")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("redis get failed, using storage", zap.String("key", KeyProductsAll), zap.Error(err))
	}

	ps, err := c.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, KeyProductsAll, ps)
	return ps, nil
}

// Paged and low-stock reads are not cached.
func (c *CachedProducts) ListProductsPaged(ctx context.Context, page orders.Page) ([]orders.Product, int, error) {
	return c.repo.ListProductsPaged(ctx, page)
}

func (c *CachedProducts) LowStockProducts(ctx context.Context, threshold int) ([]orders.Product, error) {
	return c.repo.LowStockProducts(ctx, threshold)
}

func (c *CachedProducts) CreateProduct(ctx context.Context, p *orders.Product) error {
	if err := c.repo.CreateProduct(ctx, p); err != nil {
		return err
	}
	c.Invalidate(ctx, p.ID)
	return nil
}

func (c *CachedProducts) UpdateProduct(ctx context.Context, p *orders.Product) error {
	err := c.repo.UpdateProduct(ctx, p)
	c.Invalidate(ctx, p.ID)
	return err
}

func (c *CachedProducts) DeleteProduct(ctx context.Context, id int64) error {
	err := c.repo.DeleteProduct(ctx, id)
	c.Invalidate(ctx, id)
	return err
}

// Invalidate drops the per-product entries and the full list.
func (c *CachedProducts) Invalidate(ctx context.Context, productIDs ...int64) {
	keys := make([]string, 0, len(productIDs)+1)
	for _, id := range productIDs {
		keys = append(keys, productKey(id))
	}
	keys = append(keys, KeyProductsAll)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *CachedProducts) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("marshal for cache failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

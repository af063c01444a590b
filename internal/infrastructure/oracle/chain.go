package oracle

import (
	"context"
	"log"
	"time"

	"agent-wallet.backend/internal/domain/entities"
)

// Result is the outcome of a price lookup. Available=false means every
// source failed and nothing usable was cached; callers decide how to react
// (the policy engine fails closed).
type Result struct {
	Available   bool
	Observation *entities.PriceObservation
	Freshness   entities.PriceFreshness
}

// Chain queries sources in configured order and serves from the shared
// cache. The first source that answers wins; later sources are fallbacks.
type Chain struct {
	sources []Source
	cache   *Cache
	// staleMax bounds how old a cached observation may be and still be
	// served when all sources are down.
	staleMax time.Duration
	now      func() time.Time
}

// NewChain creates an oracle chain over the given sources.
func NewChain(sources []Source, cache *Cache, staleMax time.Duration) *Chain {
	return &Chain{
		sources:  sources,
		cache:    cache,
		staleMax: staleMax,
		now:      time.Now,
	}
}

// GetPrice returns the price for an asset, refreshing through the source
// chain when the cache has expired.
func (c *Chain) GetPrice(ctx context.Context, asset string) Result {
	if obs, fresh := c.cache.Get(asset); fresh {
		return c.result(obs)
	}

	obs, err := c.cache.Refresh(asset, func() (*entities.PriceObservation, error) {
		return c.fetchFirst(ctx, asset)
	})
	if err == nil && obs != nil {
		return c.result(obs)
	}

	// Every source failed. Serve the last cached value if it is not past
	// the stale bound.
	if obs, _ := c.cache.Get(asset); obs != nil {
		if c.now().Sub(obs.ObservedAt) < c.staleMax {
			return c.result(obs)
		}
		return Result{Available: false, Observation: obs, Freshness: entities.PriceStale}
	}

	return Result{Available: false}
}

func (c *Chain) fetchFirst(ctx context.Context, asset string) (*entities.PriceObservation, error) {
	var lastErr error
	for _, src := range c.sources {
		obs, err := src.FetchPrice(ctx, asset)
		if err != nil {
			log.Printf("⚠️ Price source %s failed for %s: %v", src.Name(), asset, err)
			lastErr = err
			continue
		}
		return obs, nil
	}
	return nil, lastErr
}

func (c *Chain) result(obs *entities.PriceObservation) Result {
	return Result{
		Available:   true,
		Observation: obs,
		Freshness:   obs.FreshnessAt(c.now()),
	}
}

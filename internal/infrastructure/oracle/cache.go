package oracle

import (
	"sync"
	"time"

	"agent-wallet.backend/internal/domain/entities"
)

// Cache holds the most recent observation per asset. All sources share one
// cache so a fallback source refreshes the same entry the primary wrote.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entities.PriceObservation
	// inflight serializes refreshes per asset: concurrent readers of an
	// expired entry trigger a single upstream fetch.
	inflight map[string]*refreshCall

	ttl time.Duration
	now func() time.Time
}

type refreshCall struct {
	done chan struct{}
	obs  *entities.PriceObservation
	err  error
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries:  make(map[string]*entities.PriceObservation),
		inflight: make(map[string]*refreshCall),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the cached observation and whether it is within TTL. An
// expired entry is still returned so callers can serve AGING/STALE data
// when every source is down.
func (c *Cache) Get(asset string) (*entities.PriceObservation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obs, ok := c.entries[asset]
	if !ok {
		return nil, false
	}
	return obs, c.now().Sub(obs.ObservedAt) < c.ttl
}

// Put stores an observation.
func (c *Cache) Put(obs *entities.PriceObservation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[obs.Asset] = obs
}

// Refresh runs fetch under single-flight: if another goroutine is already
// refreshing the asset, the caller waits for that result instead of issuing
// its own upstream request.
func (c *Cache) Refresh(asset string, fetch func() (*entities.PriceObservation, error)) (*entities.PriceObservation, error) {
	c.mu.Lock()
	if call, ok := c.inflight[asset]; ok {
		c.mu.Unlock()
		<-call.done
		return call.obs, call.err
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight[asset] = call
	c.mu.Unlock()

	call.obs, call.err = fetch()

	c.mu.Lock()
	if call.err == nil && call.obs != nil {
		c.entries[asset] = call.obs
	}
	delete(c.inflight, asset)
	c.mu.Unlock()

	close(call.done)
	return call.obs, call.err
}

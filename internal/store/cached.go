package store

import (
	"context"
	"sync"
	"time"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// DefaultCacheTTL bounds the staleness window between a rule edit and the
// dispatcher observing it.
const DefaultCacheTTL = 5 * time.Second

// Cached wraps a Store with a TTL cache over the dispatch-time read paths
// (ListPacks, ListRules). Writes pass through and invalidate. All other
// methods delegate untouched.
type Cached struct {
	Store

	ttl time.Duration

	mu       sync.RWMutex
	packs    []types.Pack
	rules    []types.Rule
	cachedAt time.Time
	valid    bool
}

// NewCached wraps s with a read cache. A zero ttl uses DefaultCacheTTL.
func NewCached(s Store, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{Store: s, ttl: ttl}
}

func (c *Cached) cached() ([]types.Pack, []types.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || time.Since(c.cachedAt) > c.ttl {
		return nil, nil, false
	}
	packs := make([]types.Pack, len(c.packs))
	copy(packs, c.packs)
	rules := make([]types.Rule, len(c.rules))
	copy(rules, c.rules)
	return packs, rules, true
}

func (c *Cached) refresh(ctx context.Context) ([]types.Pack, []types.Rule, error) {
	packs, err := c.Store.ListPacks(ctx)
	if err != nil {
		return nil, nil, err
	}
	rules, err := c.Store.ListRules(ctx)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	c.packs = packs
	c.rules = rules
	c.cachedAt = time.Now()
	c.valid = true
	c.mu.Unlock()
	return packs, rules, nil
}

// ListPacks serves from cache within the TTL window.
func (c *Cached) ListPacks(ctx context.Context) ([]types.Pack, error) {
	if packs, _, ok := c.cached(); ok {
		return packs, nil
	}
	packs, _, err := c.refresh(ctx)
	return packs, err
}

// ListRules serves from cache within the TTL window.
func (c *Cached) ListRules(ctx context.Context) ([]types.Rule, error) {
	if _, rules, ok := c.cached(); ok {
		return rules, nil
	}
	_, rules, err := c.refresh(ctx)
	return rules, err
}

// Invalidate drops the cache. Called after writes.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.packs = nil
	c.rules = nil
	c.mu.Unlock()
}

func (c *Cached) PutPack(ctx context.Context, pack types.Pack) error {
	err := c.Store.PutPack(ctx, pack)
	c.Invalidate()
	return err
}

func (c *Cached) DeprecatePack(ctx context.Context, id string) error {
	err := c.Store.DeprecatePack(ctx, id)
	c.Invalidate()
	return err
}

func (c *Cached) PutRule(ctx context.Context, rule types.Rule) error {
	err := c.Store.PutRule(ctx, rule)
	c.Invalidate()
	return err
}

func (c *Cached) DeleteRule(ctx context.Context, id string) error {
	err := c.Store.DeleteRule(ctx, id)
	c.Invalidate()
	return err
}

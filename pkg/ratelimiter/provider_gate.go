package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ProviderGate bounds the number of in-flight calls per provider.
// Acquire blocks until a slot frees up or the caller's context expires,
// so a request queued behind a saturated provider times out on its own
// deadline rather than failing outright.
type ProviderGate struct {
	defaultLimit int64
	limits       map[string]int64

	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

// NewProviderGate creates a gate with per-provider ceilings. Providers
// absent from limits use defaultLimit.
func NewProviderGate(defaultLimit int, limits map[string]int) *ProviderGate {
	if defaultLimit < 1 {
		defaultLimit = 1
	}
	g := &ProviderGate{
		defaultLimit: int64(defaultLimit),
		limits:       make(map[string]int64, len(limits)),
		gates:        make(map[string]*semaphore.Weighted),
	}
	for provider, n := range limits {
		if n > 0 {
			g.limits[provider] = int64(n)
		}
	}
	return g
}

// Limit returns the concurrency ceiling for the given provider.
func (g *ProviderGate) Limit(provider string) int {
	if n, ok := g.limits[provider]; ok {
		return int(n)
	}
	return int(g.defaultLimit)
}

// Acquire claims one slot for the provider, blocking until one is free or
// ctx is done. On success the caller must call Release exactly once.
func (g *ProviderGate) Acquire(ctx context.Context, provider string) error {
	return g.gate(provider).Acquire(ctx, 1)
}

// Release frees a slot previously claimed with Acquire.
func (g *ProviderGate) Release(provider string) {
	g.gate(provider).Release(1)
}

func (g *ProviderGate) gate(provider string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sem, ok := g.gates[provider]; ok {
		return sem
	}
	limit := g.defaultLimit
	if n, ok := g.limits[provider]; ok {
		limit = n
	}
	sem := semaphore.NewWeighted(limit)
	g.gates[provider] = sem
	return sem
}

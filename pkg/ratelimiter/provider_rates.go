package ratelimiter

import "sync"

// ProviderRates bounds the request rate per provider with token buckets,
// complementing ProviderGate: the gate caps how many calls are in flight,
// the rates cap how fast new calls may start. A rate of zero means the
// provider is not rate limited.
type ProviderRates struct {
	defaultRate float64
	burst       int
	rates       map[string]float64

	mu      sync.Mutex
	buckets map[string]RateLimiter
}

// NewProviderRates creates rate limits with per-provider overrides.
// Providers absent from rates use defaultRate; burst is the bucket
// capacity shared by all providers.
func NewProviderRates(defaultRate float64, burst int, rates map[string]float64) *ProviderRates {
	if burst < 1 {
		burst = 1
	}
	r := &ProviderRates{
		defaultRate: defaultRate,
		burst:       burst,
		rates:       make(map[string]float64, len(rates)),
		buckets:     make(map[string]RateLimiter),
	}
	for provider, rate := range rates {
		if rate > 0 {
			r.rates[provider] = rate
		}
	}
	return r
}

// Allow reports whether a request to the provider may start right now.
func (r *ProviderRates) Allow(provider string) bool {
	rate := r.defaultRate
	if override, ok := r.rates[provider]; ok {
		rate = override
	}
	if rate <= 0 {
		return true
	}

	r.mu.Lock()
	bucket, ok := r.buckets[provider]
	if !ok {
		bucket = NewTokenBucket(rate, r.burst)
		r.buckets[provider] = bucket
	}
	r.mu.Unlock()

	return bucket.Allow()
}

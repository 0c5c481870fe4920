package ratelimiter

// RateLimiter is the interface for request rate limiting.
// Allow returns true if a request may proceed right now, false otherwise.
type RateLimiter interface {
	Allow() bool
}

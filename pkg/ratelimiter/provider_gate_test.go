package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestProviderGateLimits(t *testing.T) {
	g := NewProviderGate(4, map[string]int{"openai": 2})
	if got := g.Limit("openai"); got != 2 {
		t.Errorf("Limit(openai) = %d, want 2", got)
	}
	if got := g.Limit("unlisted"); got != 4 {
		t.Errorf("Limit(unlisted) = %d, want default 4", got)
	}
}

func TestProviderGateBlocksAtCeiling(t *testing.T) {
	g := NewProviderGate(1, nil)
	ctx := context.Background()

	if err := g.Acquire(ctx, "p"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// The second caller must time out on its own deadline.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(short, "p"); err == nil {
		t.Fatal("Expected a deadline error while the gate is full")
	}

	g.Release("p")
	if err := g.Acquire(ctx, "p"); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	g.Release("p")
}

func TestProviderGatesAreIndependent(t *testing.T) {
	g := NewProviderGate(1, nil)
	ctx := context.Background()

	if err := g.Acquire(ctx, "a"); err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	// Saturating provider a must not block provider b.
	if err := g.Acquire(ctx, "b"); err != nil {
		t.Fatalf("Acquire(b) error = %v", err)
	}
	g.Release("a")
	g.Release("b")
}

func TestProviderGateFloorsDefaultLimit(t *testing.T) {
	g := NewProviderGate(0, nil)
	if got := g.Limit("p"); got != 1 {
		t.Errorf("A non-positive default should floor to 1, got %d", got)
	}
}

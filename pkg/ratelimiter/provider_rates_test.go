package ratelimiter

import (
	"testing"
	"time"
)

func TestTokenBucketConsumesBurstThenRefills(t *testing.T) {
	tb := NewTokenBucket(50, 2)
	if !tb.Allow() || !tb.Allow() {
		t.Fatal("A full bucket must grant its burst capacity")
	}
	if tb.Allow() {
		t.Fatal("An empty bucket must deny until tokens refill")
	}

	deadline := time.Now().Add(time.Second)
	for !tb.Allow() {
		if time.Now().After(deadline) {
			t.Fatal("Bucket did not refill within a second at 50 tokens/s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProviderRatesUnlimitedByDefault(t *testing.T) {
	r := NewProviderRates(0, 4, nil)
	for i := 0; i < 100; i++ {
		if !r.Allow("p") {
			t.Fatalf("Allow() = false on call %d, a zero rate must never limit", i)
		}
	}
}

func TestProviderRatesAppliesOverride(t *testing.T) {
	r := NewProviderRates(0, 1, map[string]float64{"slow": 0.001})

	if !r.Allow("slow") {
		t.Fatal("The first request must drain the initial burst token")
	}
	if r.Allow("slow") {
		t.Fatal("A drained bucket at 0.001/s must deny the second request")
	}
	// Providers without an override keep the unlimited default.
	if !r.Allow("other") {
		t.Fatal("Allow(other) = false, default rate 0 must not limit")
	}
}

func TestProviderRatesFloorsBurst(t *testing.T) {
	r := NewProviderRates(1, 0, nil)
	if !r.Allow("p") {
		t.Fatal("A non-positive burst must floor to 1 token, not zero")
	}
}

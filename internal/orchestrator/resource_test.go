package orchestrator

import (
	"testing"
	"time"

	"github.com/meywd/benchforge/internal/config"
)

func testResources() *ResourceManager {
	return NewResourceManager(config.ResourcesConfig{
		Default: config.ResourceBudget{MaxConcurrency: 4, MaxDuration: config.Duration(time.Hour)},
		Orgs: map[string]config.ResourceBudget{
			"org-big": {MaxConcurrency: 16, MaxDuration: config.Duration(8 * time.Hour)},
		},
	})
}

func TestBudgetFallsBackToDefault(t *testing.T) {
	m := testResources()
	if got := m.Budget("org-big").MaxConcurrency; got != 16 {
		t.Errorf("Configured org should get its own budget, got %d", got)
	}
	if got := m.Budget("org-unknown").MaxConcurrency; got != 4 {
		t.Errorf("Unknown org should get the default budget, got %d", got)
	}
}

func TestReserveGrantsAtMostAvailable(t *testing.T) {
	m := testResources()

	first, err := m.Reserve("org-1", 3)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if first.Concurrency != 3 {
		t.Errorf("Expected the full ask of 3, got %d", first.Concurrency)
	}
	if first.MaxDuration != time.Hour {
		t.Errorf("Expected the budget duration, got %v", first.MaxDuration)
	}

	// Only 1 slot remains of the default budget of 4.
	second, err := m.Reserve("org-1", 3)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if second.Concurrency != 1 {
		t.Errorf("Expected a reduced grant of 1, got %d", second.Concurrency)
	}

	if _, err := m.Reserve("org-1", 1); err == nil {
		t.Fatal("Expected an error once the budget is exhausted")
	}

	first.Release()
	second.Release()
	if got := m.InUse("org-1"); got != 0 {
		t.Errorf("Expected all slots returned, got %d in use", got)
	}
}

func TestReserveDefaultsWantToBudget(t *testing.T) {
	m := testResources()
	r, err := m.Reserve("org-1", 0)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if r.Concurrency != 4 {
		t.Errorf("A zero ask should take the whole budget, got %d", r.Concurrency)
	}
	r.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := testResources()
	r, err := m.Reserve("org-1", 2)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	r.Release()
	r.Release()
	if got := m.InUse("org-1"); got != 0 {
		t.Errorf("Double release corrupted accounting: %d in use", got)
	}
}

func TestOrganizationsAreIsolated(t *testing.T) {
	m := testResources()
	if _, err := m.Reserve("org-1", 4); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	// org-1 is full, org-2 must still get its own budget.
	r, err := m.Reserve("org-2", 4)
	if err != nil {
		t.Fatalf("Reserve() for a second org error = %v", err)
	}
	if r.Concurrency != 4 {
		t.Errorf("Expected 4 for an untouched org, got %d", r.Concurrency)
	}
}

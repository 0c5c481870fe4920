package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
)

// fakeExecutions is an in-memory ExecutionStore.
type fakeExecutions struct {
	byID map[string]*models.ExecutionResult
}

func newFakeExecutions() *fakeExecutions {
	return &fakeExecutions{byID: make(map[string]*models.ExecutionResult)}
}

func (f *fakeExecutions) CreateExecution(ctx context.Context, r *models.ExecutionResult) error {
	f.byID[r.ID] = r
	return nil
}

func (f *fakeExecutions) GetExecution(ctx context.Context, id string) (*models.ExecutionResult, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (f *fakeExecutions) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionResult, error) {
	var out []*models.ExecutionResult
	for _, r := range f.byID {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeExecutions) Aggregate(ctx context.Context, q AggregationQuery) ([]AggregationBucket, error) {
	return nil, nil
}

// fakeScores is an in-memory ScoreStore.
type fakeScores struct {
	byID map[string]*models.ExecutionScore
}

func newFakeScores() *fakeScores {
	return &fakeScores{byID: make(map[string]*models.ExecutionScore)}
}

func (f *fakeScores) CreateScore(ctx context.Context, s *models.ExecutionScore) error {
	f.byID[s.ID] = s
	return nil
}

func (f *fakeScores) GetScore(ctx context.Context, id string) (*models.ExecutionScore, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (f *fakeScores) GetScoreByExecution(ctx context.Context, executionID string) (*models.ExecutionScore, error) {
	for _, s := range f.byID {
		if s.ExecutionID == executionID {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeScores) ListScores(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionScore, error) {
	var out []*models.ExecutionScore
	for _, s := range f.byID {
		out = append(out, s)
	}
	return out, nil
}

// fakeBenchmarks is an in-memory BenchmarkStore.
type fakeBenchmarks struct {
	defs map[string]*models.BenchmarkDefinition
	runs map[string]*models.BenchmarkRun
}

func newFakeBenchmarks() *fakeBenchmarks {
	return &fakeBenchmarks{
		defs: make(map[string]*models.BenchmarkDefinition),
		runs: make(map[string]*models.BenchmarkRun),
	}
}

func (f *fakeBenchmarks) CreateDefinition(ctx context.Context, def *models.BenchmarkDefinition) error {
	f.defs[def.ID] = def
	return nil
}

func (f *fakeBenchmarks) GetDefinition(ctx context.Context, id string) (*models.BenchmarkDefinition, error) {
	def, ok := f.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return def, nil
}

func (f *fakeBenchmarks) CreateRun(ctx context.Context, run *models.BenchmarkRun) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeBenchmarks) UpdateRun(ctx context.Context, run *models.BenchmarkRun) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeBenchmarks) GetRun(ctx context.Context, id string) (*models.BenchmarkRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run, nil
}

func (f *fakeBenchmarks) ListRuns(ctx context.Context, filter BenchmarkFilter) ([]*models.BenchmarkRun, error) {
	var out []*models.BenchmarkRun
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

// failingSeries always errors, to prove derived writes are best-effort.
type failingSeries struct {
	calls int
}

func (f *failingSeries) RecordExecutionPoint(ctx context.Context, r *models.ExecutionResult) error {
	f.calls++
	return errors.New("mongo unavailable")
}

func (f *failingSeries) RecordScorePoint(ctx context.Context, s *models.ExecutionScore, r *models.ExecutionResult) error {
	f.calls++
	return errors.New("mongo unavailable")
}

func (f *failingSeries) Query(ctx context.Context, q TimeSeriesQuery) ([]TimeSeriesPoint, error) {
	return nil, errors.New("mongo unavailable")
}

// mapCache is an in-memory Cache with hit counting.
type mapCache struct {
	data map[string][]byte
	hits int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

// mapBlobs is an in-memory BlobStore.
type mapBlobs struct {
	data map[string][]byte
}

func newMapBlobs() *mapBlobs {
	return &mapBlobs{data: make(map[string][]byte)}
}

func (b *mapBlobs) PutResultPayload(ctx context.Context, key string, payload []byte) error {
	b.data[key] = payload
	return nil
}

func (b *mapBlobs) GetResultPayload(ctx context.Context, key string) ([]byte, error) {
	raw, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

func storeLogger() *logger.Logger {
	return logger.New("ResultStoreTest", "", "")
}

func terminalExecution(id string) *models.ExecutionResult {
	now := time.Now()
	return &models.ExecutionResult{
		ID:        id,
		TaskID:    "task-1",
		ModelID:   "model-1",
		Status:    models.ExecutionStatusCompleted,
		StartedAt: now.Add(-time.Second),
		EndedAt:   now,
		Duration:  time.Second,
	}
}

func TestSaveExecutionRejectsNonTerminalStatus(t *testing.T) {
	s := New(newFakeExecutions(), newFakeScores(), newFakeBenchmarks(), nil, nil, nil, storeLogger())

	r := terminalExecution("e1")
	r.Status = models.ExecutionStatusRunning
	if err := s.SaveExecution(context.Background(), r); err == nil {
		t.Fatal("Expected an error persisting a running execution")
	}
}

func TestSaveExecutionSwallowsTimeSeriesFailure(t *testing.T) {
	series := &failingSeries{}
	exec := newFakeExecutions()
	s := New(exec, newFakeScores(), newFakeBenchmarks(), series, nil, nil, storeLogger())

	if err := s.SaveExecution(context.Background(), terminalExecution("e1")); err != nil {
		t.Fatalf("Time-series failure must not fail the save: %v", err)
	}
	if series.calls != 1 {
		t.Errorf("Expected the time-series write to be attempted, got %d calls", series.calls)
	}
	if _, ok := exec.byID["e1"]; !ok {
		t.Error("Relational write should have happened")
	}
}

func TestSaveScoreRequiresCompletedOwner(t *testing.T) {
	exec := newFakeExecutions()
	s := New(exec, newFakeScores(), newFakeBenchmarks(), nil, nil, nil, storeLogger())

	failed := terminalExecution("e1")
	failed.Status = models.ExecutionStatusFailed
	if err := s.SaveExecution(context.Background(), failed); err != nil {
		t.Fatalf("SaveExecution() error = %v", err)
	}

	err := s.SaveScore(context.Background(), &models.ExecutionScore{ID: "s1", ExecutionID: "e1"})
	if err == nil {
		t.Fatal("Expected an error scoring a failed execution")
	}

	if err := s.SaveScore(context.Background(), &models.ExecutionScore{ID: "s2", ExecutionID: "missing"}); err == nil {
		t.Fatal("Expected an error for a score with no owning execution")
	}
}

func TestSaveScoreAcceptsCompletedOwner(t *testing.T) {
	scores := newFakeScores()
	s := New(newFakeExecutions(), scores, newFakeBenchmarks(), nil, nil, nil, storeLogger())

	if err := s.SaveExecution(context.Background(), terminalExecution("e1")); err != nil {
		t.Fatalf("SaveExecution() error = %v", err)
	}
	if err := s.SaveScore(context.Background(), &models.ExecutionScore{ID: "s1", ExecutionID: "e1", OverallScore: 90}); err != nil {
		t.Fatalf("SaveScore() error = %v", err)
	}
	if _, ok := scores.byID["s1"]; !ok {
		t.Error("Score was not persisted")
	}
}

func TestGetExecutionIsCacheFirst(t *testing.T) {
	cache := newMapCache()
	exec := newFakeExecutions()
	s := New(exec, newFakeScores(), newFakeBenchmarks(), nil, nil, cache, storeLogger())

	if err := s.SaveExecution(context.Background(), terminalExecution("e1")); err != nil {
		t.Fatalf("SaveExecution() error = %v", err)
	}

	// First read misses the cache and fills it.
	if _, err := s.GetExecution(context.Background(), "e1"); err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if cache.hits != 0 {
		t.Errorf("First read should miss the cache, got %d hits", cache.hits)
	}

	// Second read is served from the cache even if the backing row vanishes.
	delete(exec.byID, "e1")
	got, err := s.GetExecution(context.Background(), "e1")
	if err != nil {
		t.Fatalf("GetExecution() after cache fill error = %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("Second read should hit the cache, got %d hits", cache.hits)
	}
	if got.ID != "e1" {
		t.Errorf("Cache returned the wrong record: %+v", got)
	}
}

func TestUpdateRunInvalidatesCachedRun(t *testing.T) {
	cache := newMapCache()
	s := New(newFakeExecutions(), newFakeScores(), newFakeBenchmarks(), nil, nil, cache, storeLogger())

	run := &models.BenchmarkRun{ID: "r1", Status: models.BenchmarkStatusRunning}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if _, err := s.GetRun(context.Background(), "r1"); err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}

	run.Status = models.BenchmarkStatusCompleted
	if err := s.UpdateRun(context.Background(), run, nil); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}

	got, err := s.GetRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRun() after update error = %v", err)
	}
	if got.Status != models.BenchmarkStatusCompleted {
		t.Errorf("Stale cache entry survived the update: %s", got.Status)
	}
}

func TestUpdateRunStoresPayloadAndSetsResultKey(t *testing.T) {
	blobs := newMapBlobs()
	s := New(newFakeExecutions(), newFakeScores(), newFakeBenchmarks(), nil, blobs, nil, storeLogger())

	run := &models.BenchmarkRun{ID: "r1", Status: models.BenchmarkStatusCompleted}
	payload := map[string]interface{}{"executions": []string{"e1", "e2"}}
	if err := s.UpdateRun(context.Background(), run, payload); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}
	if run.ResultKey != "benchmark-results/r1.json" {
		t.Fatalf("Unexpected result key %q", run.ResultKey)
	}

	raw, err := s.GetRunPayload(context.Background(), run)
	if err != nil {
		t.Fatalf("GetRunPayload() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Stored payload is not valid JSON: %v", err)
	}
	if _, ok := decoded["executions"]; !ok {
		t.Errorf("Payload content lost: %s", raw)
	}
}

func TestGetRunPayloadWithoutKey(t *testing.T) {
	s := New(newFakeExecutions(), newFakeScores(), newFakeBenchmarks(), nil, newMapBlobs(), nil, storeLogger())
	if _, err := s.GetRunPayload(context.Background(), &models.BenchmarkRun{ID: "r1"}); err == nil {
		t.Fatal("Expected an error for a run without a stored payload")
	}
}

func TestQueryTimeSeriesWithoutStore(t *testing.T) {
	s := New(newFakeExecutions(), newFakeScores(), newFakeBenchmarks(), nil, nil, nil, storeLogger())
	if _, err := s.QueryTimeSeries(context.Background(), TimeSeriesQuery{Metric: "score"}); err == nil {
		t.Fatal("Expected an error when no time-series store is configured")
	}
}

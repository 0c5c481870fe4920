package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meywd/benchforge/internal/config"
	"github.com/meywd/benchforge/internal/executor"
	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/internal/notifier"
	"github.com/meywd/benchforge/internal/orchestrator"
	"github.com/meywd/benchforge/internal/provider"
	"github.com/meywd/benchforge/internal/resultstore"
	"github.com/meywd/benchforge/internal/scoring"
	"github.com/meywd/benchforge/pkg/logger"
	"github.com/meywd/benchforge/pkg/ratelimiter"
)

// memBackend backs the API tests with an in-memory relational store.
type memBackend struct {
	mu          sync.Mutex
	executions  map[string]*models.ExecutionResult
	scores      map[string]*models.ExecutionScore
	definitions map[string]*models.BenchmarkDefinition
	runs        map[string]*models.BenchmarkRun
}

func newMemBackend() *memBackend {
	return &memBackend{
		executions:  make(map[string]*models.ExecutionResult),
		scores:      make(map[string]*models.ExecutionScore),
		definitions: make(map[string]*models.BenchmarkDefinition),
		runs:        make(map[string]*models.BenchmarkRun),
	}
}

func (b *memBackend) CreateExecution(ctx context.Context, r *models.ExecutionResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executions[r.ID] = r
	return nil
}

func (b *memBackend) GetExecution(ctx context.Context, id string) (*models.ExecutionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.executions[id]
	if !ok {
		return nil, resultstore.ErrNotFound
	}
	return r, nil
}

func (b *memBackend) ListExecutions(ctx context.Context, f resultstore.ExecutionFilter) ([]*models.ExecutionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []*models.ExecutionResult{}
	for _, r := range b.executions {
		out = append(out, r)
	}
	return out, nil
}

func (b *memBackend) Aggregate(ctx context.Context, q resultstore.AggregationQuery) ([]resultstore.AggregationBucket, error) {
	return []resultstore.AggregationBucket{}, nil
}

func (b *memBackend) CreateScore(ctx context.Context, s *models.ExecutionScore) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scores[s.ID] = s
	return nil
}

func (b *memBackend) GetScore(ctx context.Context, id string) (*models.ExecutionScore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.scores[id]
	if !ok {
		return nil, resultstore.ErrNotFound
	}
	return s, nil
}

func (b *memBackend) GetScoreByExecution(ctx context.Context, executionID string) (*models.ExecutionScore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.scores {
		if s.ExecutionID == executionID {
			return s, nil
		}
	}
	return nil, resultstore.ErrNotFound
}

func (b *memBackend) ListScores(ctx context.Context, f resultstore.ExecutionFilter) ([]*models.ExecutionScore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []*models.ExecutionScore{}
	for _, s := range b.scores {
		out = append(out, s)
	}
	return out, nil
}

func (b *memBackend) CreateDefinition(ctx context.Context, def *models.BenchmarkDefinition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.definitions[def.ID] = def
	return nil
}

func (b *memBackend) GetDefinition(ctx context.Context, id string) (*models.BenchmarkDefinition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	def, ok := b.definitions[id]
	if !ok {
		return nil, resultstore.ErrNotFound
	}
	return def, nil
}

func (b *memBackend) CreateRun(ctx context.Context, run *models.BenchmarkRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := *run
	b.runs[run.ID] = &copied
	return nil
}

func (b *memBackend) UpdateRun(ctx context.Context, run *models.BenchmarkRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := *run
	b.runs[run.ID] = &copied
	return nil
}

func (b *memBackend) GetRun(ctx context.Context, id string) (*models.BenchmarkRun, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, ok := b.runs[id]
	if !ok {
		return nil, resultstore.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (b *memBackend) ListRuns(ctx context.Context, f resultstore.BenchmarkFilter) ([]*models.BenchmarkRun, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []*models.BenchmarkRun{}
	for _, run := range b.runs {
		copied := *run
		out = append(out, &copied)
	}
	return out, nil
}

type echoInvoker struct{}

func (echoInvoker) Invoke(ctx context.Context, req *provider.ChatRequest) (*models.ModelResponse, error) {
	return &models.ModelResponse{Content: "42", Usage: models.TokenUsage{TotalTokens: 5}}, nil
}

type apiTasks struct{}

func (apiTasks) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return &models.Task{
		ID:             taskID,
		Category:       models.CategoryGeneral,
		Prompt:         "What is 6 x 7?",
		ExpectedOutput: "42",
	}, nil
}

func newTestRouter(t *testing.T, health map[string]HealthCheckFunc) (*gin.Engine, *memBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.New("APITest", "", "")

	backend := newMemBackend()
	store := resultstore.New(backend, backend, backend, nil, nil, nil, log)

	registry := provider.NewRegistry()
	registry.Register("test", echoInvoker{})
	exec := executor.New(registry, ratelimiter.NewProviderGate(4, nil), nil, apiTasks{}, time.Minute, log)
	engine := scoring.New(scoring.LexicalSimilarity, nil, nil, 4, log)

	cfg := config.EngineConfig{
		Executor:     config.ExecutorConfig{DefaultTimeout: config.Duration(time.Minute), MaxAttempts: 1, BaseDelay: config.Duration(time.Millisecond), MaxDelay: config.Duration(time.Millisecond), BackoffMultiplier: 2},
		Orchestrator: config.OrchestratorConfig{BatchSize: 4, ProgressInterval: 1, SchedulerTick: config.Duration(time.Hour)},
		Resources:    config.ResourcesConfig{Default: config.ResourceBudget{MaxConcurrency: 4, MaxDuration: config.Duration(time.Minute)}},
	}
	orch := orchestrator.New(store, exec, engine, apiTasks{}, orchestrator.NewResourceManager(cfg.Resources), notifier.NopNotifier{}, cfg, log)

	router := gin.New()
	RegisterRoutes(router, NewAPI(orch, store, health, log))
	return router, backend
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func waitForStoredTerminalRun(t *testing.T, backend *memBackend) *models.BenchmarkRun {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		backend.mu.Lock()
		for _, run := range backend.runs {
			if run.Status.IsTerminal() {
				copied := *run
				backend.mu.Unlock()
				return &copied
			}
		}
		backend.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Run never reached a terminal status")
	return nil
}

func TestCreateBenchmarkEndpoint(t *testing.T) {
	router, backend := newTestRouter(t, nil)

	body := `{
		"name": "smoke-suite",
		"organizationID": "org-1",
		"userID": "user-1",
		"taskConfigs": [{"taskID": "task-1"}],
		"modelConfigs": [{"providerID": "test", "modelID": "model-1"}]
	}`
	w := doRequest(router, http.MethodPost, "/api/v1/benchmarks", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created models.BenchmarkDefinition
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if created.ID == "" {
		t.Error("Created definition should carry a generated ID")
	}

	run := waitForStoredTerminalRun(t, backend)
	if run.Status != models.BenchmarkStatusCompleted {
		t.Errorf("Immediate benchmark should complete, got %s", run.Status)
	}

	// The definition is retrievable afterwards.
	w = doRequest(router, http.MethodGet, "/api/v1/benchmarks/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 fetching the definition, got %d", w.Code)
	}
}

func TestCreateBenchmarkRejectsMalformedJSON(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/benchmarks", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestCreateBenchmarkRejectsInvalidDefinition(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/benchmarks", `{"name": "no-tasks", "modelConfigs": [{"providerID": "test", "modelID": "m"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for a definition without tasks, got %d", w.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := doRequest(router, http.MethodGet, "/api/v1/runs/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
}

func TestPauseUnknownRunConflicts(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/runs/missing/pause", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", w.Code)
	}
}

func TestGetRunReturnsStoredRun(t *testing.T) {
	router, backend := newTestRouter(t, nil)
	backend.runs["r1"] = &models.BenchmarkRun{ID: "r1", Status: models.BenchmarkStatusCompleted}

	w := doRequest(router, http.MethodGet, "/api/v1/runs/r1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var status struct {
		Run models.BenchmarkRun `json:"run"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if status.Run.Status != models.BenchmarkStatusCompleted {
		t.Errorf("Expected the stored run, got %+v", status.Run)
	}
}

func TestListExecutionsEndpoint(t *testing.T) {
	router, backend := newTestRouter(t, nil)
	backend.executions["e1"] = &models.ExecutionResult{ID: "e1", Status: models.ExecutionStatusCompleted}

	w := doRequest(router, http.MethodGet, "/api/v1/executions?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body struct {
		Executions []models.ExecutionResult `json:"executions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if len(body.Executions) != 1 {
		t.Errorf("Expected 1 execution, got %d", len(body.Executions))
	}
}

func TestTimeSeriesWithoutBackendIsBadRequest(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := doRequest(router, http.MethodGet, "/api/v1/metrics/timeseries?metric=score", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without a time-series store, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	healthy := map[string]HealthCheckFunc{
		"mysql": func(ctx context.Context) error { return nil },
		"redis": func(ctx context.Context) error { return nil },
	}
	router, _ := newTestRouter(t, healthy)
	if w := doRequest(router, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("Expected 200 when all checks pass, got %d", w.Code)
	}

	unhealthy := map[string]HealthCheckFunc{
		"mysql": func(ctx context.Context) error { return nil },
		"kafka": func(ctx context.Context) error { return errors.New("broker unreachable") },
	}
	router, _ = newTestRouter(t, unhealthy)
	w := doRequest(router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 when a check fails, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "broker unreachable") {
		t.Errorf("Failure reason should be reported: %s", w.Body.String())
	}
}

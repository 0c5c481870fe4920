package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/internal/orchestrator"
	"github.com/meywd/benchforge/internal/resultstore"
	"github.com/meywd/benchforge/pkg/logger"
)

// API provides HTTP handlers for the benchmark engine.
type API struct {
	orchestrator *orchestrator.Orchestrator
	store        *resultstore.ResultStore
	health       map[string]HealthCheckFunc
	logger       *logger.Logger
}

// HealthCheckFunc probes one backing service.
type HealthCheckFunc func(ctx context.Context) error

// NewAPI creates a new API handler.
func NewAPI(orch *orchestrator.Orchestrator, store *resultstore.ResultStore, health map[string]HealthCheckFunc, logger *logger.Logger) *API {
	return &API{
		orchestrator: orch,
		store:        store,
		health:       health,
		logger:       logger,
	}
}

// CreateBenchmarkHandler validates and creates a benchmark definition.
func (a *API) CreateBenchmarkHandler(c *gin.Context) {
	var def models.BenchmarkDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	created, err := a.orchestrator.CreateBenchmark(c.Request.Context(), &def)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetBenchmarkHandler returns one benchmark definition by ID.
func (a *API) GetBenchmarkHandler(c *gin.Context) {
	def, err := a.store.GetDefinition(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Benchmark not found"})
		return
	}
	c.JSON(http.StatusOK, def)
}

// StartRunHandler starts a new run of an existing definition.
func (a *API) StartRunHandler(c *gin.Context) {
	runID, err := a.orchestrator.StartRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// GetRunHandler returns the current status of a run, live or historical.
func (a *API) GetRunHandler(c *gin.Context) {
	status, err := a.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListRunsHandler lists runs filtered by query parameters.
func (a *API) ListRunsHandler(c *gin.Context) {
	filter := resultstore.BenchmarkFilter{
		OrganizationID: c.Query("organization_id"),
		DefinitionID:   c.Query("definition_id"),
		Limit:          intQuery(c, "limit", 50),
		Offset:         intQuery(c, "offset", 0),
	}
	for _, s := range splitQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, models.BenchmarkStatus(s))
	}

	runs, err := a.store.ListRuns(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// PauseRunHandler requests a pause at the next batch boundary.
func (a *API) PauseRunHandler(c *gin.Context) {
	if err := a.orchestrator.Pause(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "pausing"})
}

// ResumeRunHandler resumes a paused run.
func (a *API) ResumeRunHandler(c *gin.Context) {
	if err := a.orchestrator.Resume(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "resuming"})
}

// CancelRunHandler cancels a live run.
func (a *API) CancelRunHandler(c *gin.Context) {
	if err := a.orchestrator.CancelRun(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// GetExecutionHandler returns one execution result by ID.
func (a *API) GetExecutionHandler(c *gin.Context) {
	result, err := a.store.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetExecutionScoreHandler returns the latest score for an execution.
func (a *API) GetExecutionScoreHandler(c *gin.Context) {
	score, err := a.store.GetScoreByExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Score not found"})
		return
	}
	c.JSON(http.StatusOK, score)
}

// ListExecutionsHandler lists execution results filtered by query
// parameters.
func (a *API) ListExecutionsHandler(c *gin.Context) {
	filter := executionFilterFromQuery(c)
	results, err := a.store.ListExecutions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list executions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": results})
}

// ListScoresHandler lists scores for executions matching the filter.
func (a *API) ListScoresHandler(c *gin.Context) {
	filter := executionFilterFromQuery(c)
	scores, err := a.store.ListScores(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scores"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}

// TimeSeriesHandler returns bucketed metric points.
func (a *API) TimeSeriesHandler(c *gin.Context) {
	query := resultstore.TimeSeriesQuery{
		Metric:      resultstore.Metric(c.Query("metric")),
		Granularity: resultstore.Granularity(c.DefaultQuery("granularity", "hour")),
		From:        timeQuery(c, "from"),
		To:          timeQuery(c, "to"),
	}
	tags := map[string]string{}
	for _, key := range []string{"task_id", "provider_id", "model_id", "organization_id", "status"} {
		if v := c.Query(key); v != "" {
			tags[key] = v
		}
	}
	if len(tags) > 0 {
		query.Tags = tags
	}

	points, err := a.store.QueryTimeSeries(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

// AggregateHandler returns grouped statistics over executions.
func (a *API) AggregateHandler(c *gin.Context) {
	query := resultstore.AggregationQuery{
		Metric:     resultstore.Metric(c.Query("metric")),
		Dimensions: splitQuery(c, "group_by"),
		Filter:     executionFilterFromQuery(c),
	}
	buckets, err := a.store.Aggregate(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

// HealthHandler reports the health of every backing service.
func (a *API) HealthHandler(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range a.health {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = gin.H{"healthy": false, "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = gin.H{"healthy": true}
		}
	}
	c.JSON(status, gin.H{"checks": checks})
}

func executionFilterFromQuery(c *gin.Context) resultstore.ExecutionFilter {
	filter := resultstore.ExecutionFilter{
		BenchmarkID:    c.Query("benchmark_id"),
		OrganizationID: c.Query("organization_id"),
		TaskIDs:        splitQuery(c, "task_id"),
		ProviderIDs:    splitQuery(c, "provider_id"),
		ModelIDs:       splitQuery(c, "model_id"),
		From:           timeQuery(c, "from"),
		To:             timeQuery(c, "to"),
		Limit:          intQuery(c, "limit", 50),
		Offset:         intQuery(c, "offset", 0),
		Descending:     c.DefaultQuery("order", "desc") == "desc",
	}
	for _, s := range splitQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, models.ExecutionStatus(s))
	}
	return filter
}

func splitQuery(c *gin.Context, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

func timeQuery(c *gin.Context, key string) time.Time {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

package resultstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
)

// ResultStore is the durable persistence facade over the relational store,
// the time-series store, the blob store, and the shared cache.
//
// Writes are transactional per logical unit: the primary relational write
// is fatal on failure, while the derived time-series point is best-effort
// (logged and swallowed). The cache is explicitly invalidated on every
// write; cache reads are an optimization and never the source of truth.
type ResultStore struct {
	executions ExecutionStore
	scores     ScoreStore
	benchmarks BenchmarkStore
	series     TimeSeriesStore
	blobs      BlobStore
	cache      Cache
	logger     *logger.Logger
}

// New creates a ResultStore. series, blobs, and cache may be nil, in which
// case the corresponding derived writes are skipped.
func New(executions ExecutionStore, scores ScoreStore, benchmarks BenchmarkStore, series TimeSeriesStore, blobs BlobStore, cache Cache, log *logger.Logger) *ResultStore {
	return &ResultStore{
		executions: executions,
		scores:     scores,
		benchmarks: benchmarks,
		series:     series,
		blobs:      blobs,
		cache:      cache,
		logger:     log,
	}
}

func executionCacheKey(id string) string { return "execution:" + id }
func scoreCacheKey(id string) string     { return "score:" + id }
func runCacheKey(id string) string       { return "benchmark_run:" + id }

// SaveExecution persists a terminal execution result. The relational write
// must succeed; the time-series point is derived and best-effort.
func (s *ResultStore) SaveExecution(ctx context.Context, result *models.ExecutionResult) error {
	if !result.Status.IsTerminal() {
		return fmt.Errorf("refusing to persist non-terminal execution %s (status %s)", result.ID, result.Status)
	}
	if err := s.executions.CreateExecution(ctx, result); err != nil {
		return fmt.Errorf("persist execution %s: %w", result.ID, err)
	}
	s.invalidate(ctx, executionCacheKey(result.ID))

	if s.series != nil {
		if err := s.series.RecordExecutionPoint(ctx, result); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "timeseries_error"}).
				WithPayload(map[string]interface{}{"executionID": result.ID}).
				Warn("Best-effort time-series write failed for execution")
		}
	}
	return nil
}

// SaveScore persists an execution score. The owning execution must exist
// with status completed; an Execution Score may only exist for a completed
// Execution Result.
func (s *ResultStore) SaveScore(ctx context.Context, score *models.ExecutionScore) error {
	owner, err := s.GetExecution(ctx, score.ExecutionID)
	if err != nil {
		return fmt.Errorf("load owning execution %s: %w", score.ExecutionID, err)
	}
	if owner.Status != models.ExecutionStatusCompleted {
		return fmt.Errorf("execution %s has status %s; scores require completed", owner.ID, owner.Status)
	}

	if err := s.scores.CreateScore(ctx, score); err != nil {
		return fmt.Errorf("persist score %s: %w", score.ID, err)
	}
	s.invalidate(ctx, scoreCacheKey(score.ID))

	if s.series != nil {
		if err := s.series.RecordScorePoint(ctx, score, owner); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "timeseries_error"}).
				WithPayload(map[string]interface{}{"scoreID": score.ID}).
				Warn("Best-effort time-series write failed for score")
		}
	}
	return nil
}

// GetExecution looks up an execution by ID, cache-first.
func (s *ResultStore) GetExecution(ctx context.Context, id string) (*models.ExecutionResult, error) {
	if s.cache != nil {
		var cached models.ExecutionResult
		if hit, err := s.cache.Get(ctx, executionCacheKey(id), &cached); err == nil && hit {
			return &cached, nil
		}
	}
	result, err := s.executions.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, executionCacheKey(id), result); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "cache_error"}).Debug("Cache fill failed")
		}
	}
	return result, nil
}

// GetScore looks up a score by ID, cache-first.
func (s *ResultStore) GetScore(ctx context.Context, id string) (*models.ExecutionScore, error) {
	if s.cache != nil {
		var cached models.ExecutionScore
		if hit, err := s.cache.Get(ctx, scoreCacheKey(id), &cached); err == nil && hit {
			return &cached, nil
		}
	}
	score, err := s.scores.GetScore(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, scoreCacheKey(id), score); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "cache_error"}).Debug("Cache fill failed")
		}
	}
	return score, nil
}

// GetScoreByExecution returns the latest score for an execution.
func (s *ResultStore) GetScoreByExecution(ctx context.Context, executionID string) (*models.ExecutionScore, error) {
	return s.scores.GetScoreByExecution(ctx, executionID)
}

// ListExecutions returns executions matching the filter.
func (s *ResultStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionResult, error) {
	return s.executions.ListExecutions(ctx, filter)
}

// ListScores returns scores matching the filter.
func (s *ResultStore) ListScores(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionScore, error) {
	return s.scores.ListScores(ctx, filter)
}

// Aggregate returns grouped statistics over executions.
func (s *ResultStore) Aggregate(ctx context.Context, query AggregationQuery) ([]AggregationBucket, error) {
	return s.executions.Aggregate(ctx, query)
}

// QueryTimeSeries returns bucketed metric points.
func (s *ResultStore) QueryTimeSeries(ctx context.Context, query TimeSeriesQuery) ([]TimeSeriesPoint, error) {
	if s.series == nil {
		return nil, fmt.Errorf("no time-series store configured")
	}
	return s.series.Query(ctx, query)
}

// SaveDefinition persists an immutable benchmark definition.
func (s *ResultStore) SaveDefinition(ctx context.Context, def *models.BenchmarkDefinition) error {
	if err := s.benchmarks.CreateDefinition(ctx, def); err != nil {
		return fmt.Errorf("persist benchmark definition %s: %w", def.ID, err)
	}
	return nil
}

// GetDefinition retrieves a benchmark definition by ID.
func (s *ResultStore) GetDefinition(ctx context.Context, id string) (*models.BenchmarkDefinition, error) {
	return s.benchmarks.GetDefinition(ctx, id)
}

// CreateRun persists a new benchmark run row.
func (s *ResultStore) CreateRun(ctx context.Context, run *models.BenchmarkRun) error {
	if err := s.benchmarks.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("persist benchmark run %s: %w", run.ID, err)
	}
	s.invalidate(ctx, runCacheKey(run.ID))
	return nil
}

// UpdateRun updates an existing benchmark run. When the run is terminal and
// a full result payload is supplied, the payload is written to the object
// store first and referenced from the row.
func (s *ResultStore) UpdateRun(ctx context.Context, run *models.BenchmarkRun, payload interface{}) error {
	if payload != nil && s.blobs != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode result payload for run %s: %w", run.ID, err)
		}
		key := "benchmark-results/" + run.ID + ".json"
		if err := s.blobs.PutResultPayload(ctx, key, raw); err != nil {
			return fmt.Errorf("store result payload for run %s: %w", run.ID, err)
		}
		run.ResultKey = key
	}
	if err := s.benchmarks.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update benchmark run %s: %w", run.ID, err)
	}
	s.invalidate(ctx, runCacheKey(run.ID))
	return nil
}

// GetRun retrieves a benchmark run by ID, cache-first.
func (s *ResultStore) GetRun(ctx context.Context, id string) (*models.BenchmarkRun, error) {
	if s.cache != nil {
		var cached models.BenchmarkRun
		if hit, err := s.cache.Get(ctx, runCacheKey(id), &cached); err == nil && hit {
			return &cached, nil
		}
	}
	run, err := s.benchmarks.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, runCacheKey(id), run); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "cache_error"}).Debug("Cache fill failed")
		}
	}
	return run, nil
}

// ListRuns returns benchmark runs matching the filter.
func (s *ResultStore) ListRuns(ctx context.Context, filter BenchmarkFilter) ([]*models.BenchmarkRun, error) {
	return s.benchmarks.ListRuns(ctx, filter)
}

// GetRunPayload retrieves the full result payload referenced by a run.
func (s *ResultStore) GetRunPayload(ctx context.Context, run *models.BenchmarkRun) ([]byte, error) {
	if run.ResultKey == "" {
		return nil, fmt.Errorf("run %s has no result payload", run.ID)
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("no blob store configured")
	}
	return s.blobs.GetResultPayload(ctx, run.ResultKey)
}

func (s *ResultStore) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "cache_error"}).Warn("Cache invalidation failed")
	}
}

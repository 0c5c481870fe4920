package resultstore

import (
	"context"
	"time"

	"github.com/meywd/benchforge/internal/models"
)

// Metric names a coarse numeric series or aggregation subject.
type Metric string

const (
	MetricExecutionCount Metric = "execution_count"
	MetricSuccessRate    Metric = "success_rate"
	MetricErrorRate      Metric = "error_rate"
	MetricAvgDuration    Metric = "avg_duration"
	MetricTokenUsage     Metric = "token_usage"
	MetricAvgScore       Metric = "avg_score"
)

// Granularity is the bucket width of a time-series query.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
	GranularityWeek   Granularity = "week"
	GranularityMonth  Granularity = "month"
)

// ExecutionFilter narrows list queries over execution records.
// Multi-value fields are equality filters ORed within the field and
// ANDed across fields.
type ExecutionFilter struct {
	BenchmarkID    string
	OrganizationID string
	TaskIDs        []string
	ProviderIDs    []string
	ModelIDs       []string
	Statuses       []models.ExecutionStatus
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
	OrderBy        string // column name; defaults to started_at
	Descending     bool
}

// BenchmarkFilter narrows list queries over benchmark runs.
type BenchmarkFilter struct {
	OrganizationID string
	DefinitionID   string
	Statuses       []models.BenchmarkStatus
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

// TimeSeriesPoint is one bucketed sample of a metric.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Count     int64     `json:"count"`
}

// TimeSeriesQuery selects bucketed points for one metric.
type TimeSeriesQuery struct {
	Metric      Metric
	Granularity Granularity
	From        time.Time
	To          time.Time
	Tags        map[string]string // optional tag filters (task/provider/model/organization/status)
}

// AggregationQuery returns grouped statistics for one metric.
type AggregationQuery struct {
	Metric     Metric
	Dimensions []string // group-by columns: task_id, provider_id, model_id, status
	Filter     ExecutionFilter
}

// AggregationBucket is one group of an aggregation result.
type AggregationBucket struct {
	Keys    map[string]string `json:"keys"`
	Count   int64             `json:"count"`
	Average float64           `json:"average"`
	Min     float64           `json:"min"`
	Max     float64           `json:"max"`
}

// ExecutionStore persists execution result rows. Stored rows are immutable.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, result *models.ExecutionResult) error
	GetExecution(ctx context.Context, id string) (*models.ExecutionResult, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionResult, error)
	Aggregate(ctx context.Context, query AggregationQuery) ([]AggregationBucket, error)
}

// ScoreStore persists execution score rows (with child criterion rows).
type ScoreStore interface {
	CreateScore(ctx context.Context, score *models.ExecutionScore) error
	GetScore(ctx context.Context, id string) (*models.ExecutionScore, error)
	GetScoreByExecution(ctx context.Context, executionID string) (*models.ExecutionScore, error)
	ListScores(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionScore, error)
}

// BenchmarkStore persists benchmark definitions and runs.
type BenchmarkStore interface {
	CreateDefinition(ctx context.Context, def *models.BenchmarkDefinition) error
	GetDefinition(ctx context.Context, id string) (*models.BenchmarkDefinition, error)
	CreateRun(ctx context.Context, run *models.BenchmarkRun) error
	UpdateRun(ctx context.Context, run *models.BenchmarkRun) error
	GetRun(ctx context.Context, id string) (*models.BenchmarkRun, error)
	ListRuns(ctx context.Context, filter BenchmarkFilter) ([]*models.BenchmarkRun, error)
}

// TimeSeriesStore records coarse numeric points tagged by execution
// dimensions. Writes are best-effort: callers log and swallow failures.
type TimeSeriesStore interface {
	RecordExecutionPoint(ctx context.Context, result *models.ExecutionResult) error
	RecordScorePoint(ctx context.Context, score *models.ExecutionScore, result *models.ExecutionResult) error
	Query(ctx context.Context, query TimeSeriesQuery) ([]TimeSeriesPoint, error)
}

// BlobStore holds large benchmark-level result payloads referenced by key.
type BlobStore interface {
	PutResultPayload(ctx context.Context, key string, payload []byte) error
	GetResultPayload(ctx context.Context, key string) ([]byte, error)
}

// Cache is the shared point-lookup cache. Reads are an optimization only:
// correctness-sensitive logic must never rely on a cache hit.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context, keys ...string) error
}

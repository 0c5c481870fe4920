package resultstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meywd/benchforge/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a point lookup matches no row.
var ErrNotFound = errors.New("record not found")

// GormStore implements ExecutionStore, ScoreStore, and BenchmarkStore on a
// relational database through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore on the given database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the engine's relational schema.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&ExecutionRecord{},
		&ScoreRecord{},
		&CriterionScoreRecord{},
		&BenchmarkDefinitionRecord{},
		&BenchmarkRunRecord{},
	)
}

// CreateExecution inserts one execution result row.
func (s *GormStore) CreateExecution(ctx context.Context, result *models.ExecutionResult) error {
	rec, err := toExecutionRecord(result)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetExecution retrieves an execution result by ID.
func (s *GormStore) GetExecution(ctx context.Context, id string) (*models.ExecutionResult, error) {
	var rec ExecutionRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromExecutionRecord(&rec)
}

// ListExecutions retrieves execution results matching the filter, paginated.
func (s *GormStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionResult, error) {
	q := applyExecutionFilter(s.db.WithContext(ctx).Model(&ExecutionRecord{}), filter)

	order := "started_at"
	if filter.OrderBy != "" {
		order = filter.OrderBy
	}
	if filter.Descending {
		order += " DESC"
	}
	q = q.Order(order)

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var recs []ExecutionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	results := make([]*models.ExecutionResult, 0, len(recs))
	for i := range recs {
		r, err := fromExecutionRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// aggregatable maps a metric to the SQL expression aggregated per group.
var aggregatable = map[Metric]string{
	MetricExecutionCount: "1",
	MetricAvgDuration:    "duration_ms",
	MetricAvgScore: "(SELECT overall_score FROM execution_scores " +
		"WHERE execution_scores.execution_id = executions.id ORDER BY version DESC LIMIT 1)",
}

var groupableDimensions = map[string]bool{
	"task_id":     true,
	"provider_id": true,
	"model_id":    true,
	"status":      true,
}

// Aggregate returns grouped count/average/min/max statistics over
// executions for one of the fixed aggregation metrics.
func (s *GormStore) Aggregate(ctx context.Context, query AggregationQuery) ([]AggregationBucket, error) {
	expr, ok := aggregatable[query.Metric]
	if !ok {
		return nil, fmt.Errorf("metric %q does not support aggregation", query.Metric)
	}
	for _, d := range query.Dimensions {
		if !groupableDimensions[d] {
			return nil, fmt.Errorf("unknown aggregation dimension %q", d)
		}
	}

	selects := make([]string, 0, len(query.Dimensions)+4)
	selects = append(selects, query.Dimensions...)
	selects = append(selects,
		"COUNT(*) AS bucket_count",
		fmt.Sprintf("AVG(%s) AS bucket_avg", expr),
		fmt.Sprintf("MIN(%s) AS bucket_min", expr),
		fmt.Sprintf("MAX(%s) AS bucket_max", expr),
	)

	q := applyExecutionFilter(s.db.WithContext(ctx).Model(&ExecutionRecord{}), query.Filter).
		Select(strings.Join(selects, ", "))
	if len(query.Dimensions) > 0 {
		q = q.Group(strings.Join(query.Dimensions, ", "))
	}

	rows, err := q.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []AggregationBucket
	for rows.Next() {
		keyDest := make([]interface{}, len(query.Dimensions))
		keys := make([]string, len(query.Dimensions))
		for i := range keyDest {
			keyDest[i] = &keys[i]
		}
		var count int64
		var avg, min, max float64
		dest := append(keyDest, &count, &avg, &min, &max)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		bucket := AggregationBucket{
			Keys:    make(map[string]string, len(query.Dimensions)),
			Count:   count,
			Average: avg,
			Min:     min,
			Max:     max,
		}
		for i, d := range query.Dimensions {
			bucket.Keys[d] = keys[i]
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}

// CreateScore inserts one score row together with its criterion rows.
func (s *GormStore) CreateScore(ctx context.Context, score *models.ExecutionScore) error {
	rec, err := toScoreRecord(score)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetScore retrieves a score by its own ID.
func (s *GormStore) GetScore(ctx context.Context, id string) (*models.ExecutionScore, error) {
	var rec ScoreRecord
	err := s.db.WithContext(ctx).Preload("Criteria").First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromScoreRecord(&rec)
}

// GetScoreByExecution retrieves the latest score version for an execution.
func (s *GormStore) GetScoreByExecution(ctx context.Context, executionID string) (*models.ExecutionScore, error) {
	var rec ScoreRecord
	err := s.db.WithContext(ctx).Preload("Criteria").
		Where("execution_id = ?", executionID).
		Order("version DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromScoreRecord(&rec)
}

// ListScores retrieves scores whose owning executions match the filter.
func (s *GormStore) ListScores(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionScore, error) {
	sub := applyExecutionFilter(s.db.Model(&ExecutionRecord{}).Select("id"), filter)

	q := s.db.WithContext(ctx).Preload("Criteria").
		Where("execution_id IN (?)", sub).
		Order("scored_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var recs []ScoreRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	scores := make([]*models.ExecutionScore, 0, len(recs))
	for i := range recs {
		sc, err := fromScoreRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		scores = append(scores, sc)
	}
	return scores, nil
}

// CreateDefinition inserts one benchmark definition row.
func (s *GormStore) CreateDefinition(ctx context.Context, def *models.BenchmarkDefinition) error {
	rec, err := toDefinitionRecord(def)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetDefinition retrieves a benchmark definition by ID.
func (s *GormStore) GetDefinition(ctx context.Context, id string) (*models.BenchmarkDefinition, error) {
	var rec BenchmarkDefinitionRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromDefinitionRecord(&rec)
}

// CreateRun inserts one benchmark run row.
func (s *GormStore) CreateRun(ctx context.Context, run *models.BenchmarkRun) error {
	rec, err := toRunRecord(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// UpdateRun updates a benchmark run row's mutable fields.
func (s *GormStore) UpdateRun(ctx context.Context, run *models.BenchmarkRun) error {
	rec, err := toRunRecord(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&BenchmarkRunRecord{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":     rec.Status,
			"progress":   rec.Progress,
			"metrics":    rec.Metrics,
			"by_task":    rec.ByTask,
			"by_model":   rec.ByModel,
			"result_key": rec.ResultKey,
			"error":      rec.Error,
			"ended_at":   rec.EndedAt,
		}).Error
}

// GetRun retrieves a benchmark run by ID.
func (s *GormStore) GetRun(ctx context.Context, id string) (*models.BenchmarkRun, error) {
	var rec BenchmarkRunRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRunRecord(&rec)
}

// ListRuns retrieves benchmark runs matching the filter, newest first.
func (s *GormStore) ListRuns(ctx context.Context, filter BenchmarkFilter) ([]*models.BenchmarkRun, error) {
	q := s.db.WithContext(ctx).Model(&BenchmarkRunRecord{}).Order("started_at DESC")
	if filter.DefinitionID != "" {
		q = q.Where("definition_id = ?", filter.DefinitionID)
	}
	if filter.OrganizationID != "" {
		q = q.Where("definition_id IN (?)",
			s.db.Model(&BenchmarkDefinitionRecord{}).Select("id").Where("organization_id = ?", filter.OrganizationID))
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(filter.Statuses))
	}
	if !filter.From.IsZero() {
		q = q.Where("started_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("started_at < ?", filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var recs []BenchmarkRunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	runs := make([]*models.BenchmarkRun, 0, len(recs))
	for i := range recs {
		r, err := fromRunRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func applyExecutionFilter(q *gorm.DB, filter ExecutionFilter) *gorm.DB {
	if filter.BenchmarkID != "" {
		q = q.Where("benchmark_id = ?", filter.BenchmarkID)
	}
	if filter.OrganizationID != "" {
		q = q.Where("organization_id = ?", filter.OrganizationID)
	}
	if len(filter.TaskIDs) > 0 {
		q = q.Where("task_id IN ?", filter.TaskIDs)
	}
	if len(filter.ProviderIDs) > 0 {
		q = q.Where("provider_id IN ?", filter.ProviderIDs)
	}
	if len(filter.ModelIDs) > 0 {
		q = q.Where("model_id IN ?", filter.ModelIDs)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}
	if !filter.From.IsZero() {
		q = q.Where("started_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("started_at < ?", filter.To)
	}
	return q
}

func statusStrings(statuses []models.BenchmarkStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

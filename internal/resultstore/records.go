package resultstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meywd/benchforge/internal/models"
	"gorm.io/datatypes"
)

// ExecutionRecord is the relational row for one execution result.
// Nested response/error/context payloads are stored as JSON columns.
type ExecutionRecord struct {
	ID             string `gorm:"primaryKey;size:36"`
	TaskID         string `gorm:"index;size:64;not null"`
	ProviderID     string `gorm:"index;size:64;not null"`
	ModelID        string `gorm:"index;size:128;not null"`
	BenchmarkID    string `gorm:"index;size:36"`
	OrganizationID string `gorm:"index;size:64"`
	UserID         string `gorm:"size:64"`
	Environment    string `gorm:"size:32"`

	Status     string `gorm:"index;size:20;not null"`
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMs int64
	Response   datatypes.JSON
	Error      datatypes.JSON
	Metrics    datatypes.JSON

	CreatedAt time.Time
}

func (ExecutionRecord) TableName() string {
	return "executions"
}

// ScoreRecord is the relational row for one execution score. Criterion
// details live in child rows.
type ScoreRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	ExecutionID  string `gorm:"index;size:36;not null"`
	TaskID       string `gorm:"index;size:64;not null"`
	Version      int    `gorm:"not null;default:1"`
	OverallScore float64
	Confidence   float64
	Feedback     datatypes.JSON
	ScoredAt     time.Time
	CreatedAt    time.Time

	Criteria []CriterionScoreRecord `gorm:"foreignKey:ScoreID"`
}

func (ScoreRecord) TableName() string {
	return "execution_scores"
}

// CriterionScoreRecord is the child row for one criterion's score.
type CriterionScoreRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ScoreID     string `gorm:"index;size:36;not null"`
	CriterionID string `gorm:"size:64;not null"`
	Score       float64
	MaxScore    float64
	Weight      float64
	Feedback    string `gorm:"size:1024"`
	Evidence    string `gorm:"size:2048"`
	Confidence  float64
}

func (CriterionScoreRecord) TableName() string {
	return "criterion_scores"
}

// BenchmarkDefinitionRecord is the relational row for an immutable
// benchmark definition.
type BenchmarkDefinitionRecord struct {
	ID             string `gorm:"primaryKey;size:36"`
	Name           string `gorm:"size:255;not null"`
	Description    string `gorm:"size:1024"`
	OrganizationID string `gorm:"index;size:64"`
	UserID         string `gorm:"size:64"`
	Environment    string `gorm:"size:32"`
	TaskConfigs    datatypes.JSON
	ModelConfigs   datatypes.JSON
	Priority       int
	TimeoutMs      int64
	RetryPolicy    datatypes.JSON
	Schedule       datatypes.JSON
	CreatedAt      time.Time
}

func (BenchmarkDefinitionRecord) TableName() string {
	return "benchmark_definitions"
}

// BenchmarkRunRecord is the relational row for one benchmark run. The full
// per-execution result payload lives in the object store under ResultKey.
type BenchmarkRunRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	DefinitionID string `gorm:"index;size:36;not null"`
	Status       string `gorm:"index;size:32;not null"`
	Progress     datatypes.JSON
	Metrics      datatypes.JSON
	ByTask       datatypes.JSON
	ByModel      datatypes.JSON
	ResultKey    string `gorm:"size:255"`
	Error        string `gorm:"size:1024"`
	StartedAt    time.Time
	EndedAt      time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (BenchmarkRunRecord) TableName() string {
	return "benchmark_runs"
}

// --- converters between domain types and rows ---

func toExecutionRecord(r *models.ExecutionResult) (*ExecutionRecord, error) {
	rec := &ExecutionRecord{
		ID:             r.ID,
		TaskID:         r.TaskID,
		ProviderID:     r.ProviderID,
		ModelID:        r.ModelID,
		BenchmarkID:    r.Context.BenchmarkID,
		OrganizationID: r.Context.OrganizationID,
		UserID:         r.Context.UserID,
		Environment:    r.Context.Environment,
		Status:         string(r.Status),
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		DurationMs:     r.Duration.Milliseconds(),
	}
	var err error
	if rec.Metrics, err = marshalJSON(r.Metrics); err != nil {
		return nil, err
	}
	if r.Response != nil {
		if rec.Response, err = marshalJSON(r.Response); err != nil {
			return nil, err
		}
	}
	if r.Error != nil {
		if rec.Error, err = marshalJSON(r.Error); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func fromExecutionRecord(rec *ExecutionRecord) (*models.ExecutionResult, error) {
	r := &models.ExecutionResult{
		ID:         rec.ID,
		TaskID:     rec.TaskID,
		ProviderID: rec.ProviderID,
		ModelID:    rec.ModelID,
		Context: models.ExecutionContext{
			BenchmarkID:    rec.BenchmarkID,
			OrganizationID: rec.OrganizationID,
			UserID:         rec.UserID,
			Environment:    rec.Environment,
		},
		Status:    models.ExecutionStatus(rec.Status),
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Duration:  time.Duration(rec.DurationMs) * time.Millisecond,
	}
	if len(rec.Response) > 0 {
		r.Response = &models.ModelResponse{}
		if err := json.Unmarshal(rec.Response, r.Response); err != nil {
			return nil, fmt.Errorf("decode response column: %w", err)
		}
	}
	if len(rec.Error) > 0 {
		r.Error = &models.ErrorDescriptor{}
		if err := json.Unmarshal(rec.Error, r.Error); err != nil {
			return nil, fmt.Errorf("decode error column: %w", err)
		}
	}
	if len(rec.Metrics) > 0 {
		if err := json.Unmarshal(rec.Metrics, &r.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics column: %w", err)
		}
	}
	return r, nil
}

func toScoreRecord(s *models.ExecutionScore) (*ScoreRecord, error) {
	fb, err := marshalJSON(s.Feedback)
	if err != nil {
		return nil, err
	}
	rec := &ScoreRecord{
		ID:           s.ID,
		ExecutionID:  s.ExecutionID,
		TaskID:       s.TaskID,
		Version:      s.Version,
		OverallScore: s.OverallScore,
		Confidence:   s.Confidence,
		Feedback:     fb,
		ScoredAt:     s.ScoredAt,
	}
	for _, c := range s.Criteria {
		rec.Criteria = append(rec.Criteria, CriterionScoreRecord{
			ScoreID:     s.ID,
			CriterionID: c.CriterionID,
			Score:       c.Score,
			MaxScore:    c.MaxScore,
			Weight:      c.Weight,
			Feedback:    c.Feedback,
			Evidence:    c.Evidence,
			Confidence:  c.Confidence,
		})
	}
	return rec, nil
}

func fromScoreRecord(rec *ScoreRecord) (*models.ExecutionScore, error) {
	s := &models.ExecutionScore{
		ID:           rec.ID,
		ExecutionID:  rec.ExecutionID,
		TaskID:       rec.TaskID,
		Version:      rec.Version,
		OverallScore: rec.OverallScore,
		Confidence:   rec.Confidence,
		ScoredAt:     rec.ScoredAt,
	}
	if len(rec.Feedback) > 0 {
		if err := json.Unmarshal(rec.Feedback, &s.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback column: %w", err)
		}
	}
	for _, c := range rec.Criteria {
		s.Criteria = append(s.Criteria, models.CriterionScore{
			CriterionID: c.CriterionID,
			Score:       c.Score,
			MaxScore:    c.MaxScore,
			Weight:      c.Weight,
			Feedback:    c.Feedback,
			Evidence:    c.Evidence,
			Confidence:  c.Confidence,
		})
	}
	return s, nil
}

func toDefinitionRecord(d *models.BenchmarkDefinition) (*BenchmarkDefinitionRecord, error) {
	rec := &BenchmarkDefinitionRecord{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		OrganizationID: d.OrganizationID,
		UserID:         d.UserID,
		Environment:    d.Environment,
		Priority:       d.Priority,
		TimeoutMs:      d.Timeout.Milliseconds(),
		CreatedAt:      d.CreatedAt,
	}
	var err error
	if rec.TaskConfigs, err = marshalJSON(d.TaskConfigs); err != nil {
		return nil, err
	}
	if rec.ModelConfigs, err = marshalJSON(d.ModelConfigs); err != nil {
		return nil, err
	}
	if rec.RetryPolicy, err = marshalJSON(d.RetryPolicy); err != nil {
		return nil, err
	}
	if d.Schedule != nil {
		if rec.Schedule, err = marshalJSON(d.Schedule); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func fromDefinitionRecord(rec *BenchmarkDefinitionRecord) (*models.BenchmarkDefinition, error) {
	d := &models.BenchmarkDefinition{
		ID:             rec.ID,
		Name:           rec.Name,
		Description:    rec.Description,
		OrganizationID: rec.OrganizationID,
		UserID:         rec.UserID,
		Environment:    rec.Environment,
		Priority:       rec.Priority,
		Timeout:        time.Duration(rec.TimeoutMs) * time.Millisecond,
		CreatedAt:      rec.CreatedAt,
	}
	if err := json.Unmarshal(rec.TaskConfigs, &d.TaskConfigs); err != nil {
		return nil, fmt.Errorf("decode task configs column: %w", err)
	}
	if err := json.Unmarshal(rec.ModelConfigs, &d.ModelConfigs); err != nil {
		return nil, fmt.Errorf("decode model configs column: %w", err)
	}
	if len(rec.RetryPolicy) > 0 {
		if err := json.Unmarshal(rec.RetryPolicy, &d.RetryPolicy); err != nil {
			return nil, fmt.Errorf("decode retry policy column: %w", err)
		}
	}
	if len(rec.Schedule) > 0 {
		d.Schedule = &models.Schedule{}
		if err := json.Unmarshal(rec.Schedule, d.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule column: %w", err)
		}
	}
	return d, nil
}

func toRunRecord(r *models.BenchmarkRun) (*BenchmarkRunRecord, error) {
	rec := &BenchmarkRunRecord{
		ID:           r.ID,
		DefinitionID: r.DefinitionID,
		Status:       string(r.Status),
		ResultKey:    r.ResultKey,
		Error:        r.Error,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
	}
	var err error
	if rec.Progress, err = marshalJSON(r.Progress); err != nil {
		return nil, err
	}
	if rec.Metrics, err = marshalJSON(r.Metrics); err != nil {
		return nil, err
	}
	if len(r.ByTask) > 0 {
		if rec.ByTask, err = marshalJSON(r.ByTask); err != nil {
			return nil, err
		}
	}
	if len(r.ByModel) > 0 {
		if rec.ByModel, err = marshalJSON(r.ByModel); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func fromRunRecord(rec *BenchmarkRunRecord) (*models.BenchmarkRun, error) {
	r := &models.BenchmarkRun{
		ID:           rec.ID,
		DefinitionID: rec.DefinitionID,
		Status:       models.BenchmarkStatus(rec.Status),
		ResultKey:    rec.ResultKey,
		Error:        rec.Error,
		StartedAt:    rec.StartedAt,
		EndedAt:      rec.EndedAt,
	}
	if len(rec.Progress) > 0 {
		if err := json.Unmarshal(rec.Progress, &r.Progress); err != nil {
			return nil, fmt.Errorf("decode progress column: %w", err)
		}
	}
	if len(rec.Metrics) > 0 {
		if err := json.Unmarshal(rec.Metrics, &r.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics column: %w", err)
		}
	}
	if len(rec.ByTask) > 0 {
		if err := json.Unmarshal(rec.ByTask, &r.ByTask); err != nil {
			return nil, fmt.Errorf("decode by-task column: %w", err)
		}
	}
	if len(rec.ByModel) > 0 {
		if err := json.Unmarshal(rec.ByModel, &r.ByModel); err != nil {
			return nil, fmt.Errorf("decode by-model column: %w", err)
		}
	}
	return r, nil
}

func marshalJSON(v interface{}) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode JSON column: %w", err)
	}
	return datatypes.JSON(b), nil
}

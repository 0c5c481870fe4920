package taskbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meywd/benchforge/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrTaskNotFound is returned when no task exists for an ID.
var ErrTaskNotFound = errors.New("task not found")

// TaskBank reads immutable task content by ID. Tasks are owned by the test
// bank; the engine only consumes them.
type TaskBank interface {
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
}

// taskRecord is the relational shape of a task row.
type taskRecord struct {
	ID             string         `gorm:"primaryKey;size:64"`
	Name           string         `gorm:"size:255"`
	Category       string         `gorm:"size:32;index"`
	Prompt         string         `gorm:"type:text"`
	ExpectedOutput string         `gorm:"type:text"`
	Criteria       datatypes.JSON `gorm:"type:json"`
}

func (taskRecord) TableName() string { return "tasks" }

// GormTaskBank implements TaskBank on a MySQL table.
type GormTaskBank struct {
	db *gorm.DB
}

// NewGormTaskBank creates a GormTaskBank.
func NewGormTaskBank(db *gorm.DB) *GormTaskBank {
	return &GormTaskBank{db: db}
}

// AutoMigrate creates the tasks table.
func (b *GormTaskBank) AutoMigrate() error {
	return b.db.AutoMigrate(&taskRecord{})
}

// GetTask loads a task by ID.
func (b *GormTaskBank) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var rec taskRecord
	err := b.db.WithContext(ctx).First(&rec, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:             rec.ID,
		Name:           rec.Name,
		Category:       models.TaskCategory(rec.Category),
		Prompt:         rec.Prompt,
		ExpectedOutput: rec.ExpectedOutput,
	}
	if len(rec.Criteria) > 0 {
		if err := json.Unmarshal(rec.Criteria, &task.Criteria); err != nil {
			return nil, fmt.Errorf("decode criteria for task %s: %w", taskID, err)
		}
	}
	return task, nil
}

// PutTask inserts or replaces a task row. Used by seeders and tests.
func (b *GormTaskBank) PutTask(ctx context.Context, task *models.Task) error {
	raw, err := json.Marshal(task.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria for task %s: %w", task.ID, err)
	}
	rec := taskRecord{
		ID:             task.ID,
		Name:           task.Name,
		Category:       string(task.Category),
		Prompt:         task.Prompt,
		ExpectedOutput: task.ExpectedOutput,
		Criteria:       datatypes.JSON(raw),
	}
	return b.db.WithContext(ctx).Save(&rec).Error
}

package models

import (
	"time"
)

// BenchmarkStatus 定义了一次基准测试运行的生命周期状态。
// 状态机: pending → scheduled → running ⇄ paused → 终态。
type BenchmarkStatus string

const (
	BenchmarkStatusPending             BenchmarkStatus = "pending"
	BenchmarkStatusScheduled           BenchmarkStatus = "scheduled"
	BenchmarkStatusRunning             BenchmarkStatus = "running"
	BenchmarkStatusPaused              BenchmarkStatus = "paused"
	BenchmarkStatusCompleted           BenchmarkStatus = "completed"
	BenchmarkStatusCompletedWithErrors BenchmarkStatus = "completed_with_errors"
	BenchmarkStatusFailed              BenchmarkStatus = "failed"
	BenchmarkStatusCancelled           BenchmarkStatus = "cancelled"
)

// IsTerminal 报告该状态是否为终态。
func (s BenchmarkStatus) IsTerminal() bool {
	switch s {
	case BenchmarkStatusCompleted, BenchmarkStatusCompletedWithErrors, BenchmarkStatusFailed, BenchmarkStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskConfig 是基准测试定义中对单个任务的引用配置。
type TaskConfig struct {
	TaskID string  `json:"taskID"`
	Weight float64 `json:"weight,omitempty"` // 任务在汇总中的权重，缺省为 1
}

// ModelConfig 是基准测试定义中的一个 provider+model 组合。
type ModelConfig struct {
	ProviderID string          `json:"providerID"`
	ModelID    string          `json:"modelID"`
	Config     ExecutionConfig `json:"config"`
}

// ScheduleType 定义了调度触发方式。
type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate" // 立即执行
	ScheduleOnce      ScheduleType = "scheduled" // 未来单次执行
	ScheduleRecurring ScheduleType = "recurring" // 周期执行
)

// Schedule 描述了基准测试的调度配置。
type Schedule struct {
	Type       ScheduleType   `json:"type"`
	StartAt    time.Time      `json:"startAt,omitempty"`    // scheduled 类型的触发时间
	Interval   time.Duration  `json:"interval,omitempty"`   // recurring 类型的间隔
	DaysOfWeek []time.Weekday `json:"daysOfWeek,omitempty"` // 可选：限定周几触发
	DayOfMonth int            `json:"dayOfMonth,omitempty"` // 可选：限定每月几号触发
}

// BenchmarkDefinition 是一份命名的、组织/用户范围内的工作声明，
// 创建后不可变；重新提交会产生新的定义。
type BenchmarkDefinition struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	OrganizationID string        `json:"organizationID"`
	UserID         string        `json:"userID"`
	Environment    string        `json:"environment"`
	TaskConfigs    []TaskConfig  `json:"taskConfigs"`
	ModelConfigs   []ModelConfig `json:"modelConfigs"`
	Priority       int           `json:"priority"`
	Timeout        time.Duration `json:"timeout"`
	RetryPolicy    RetryPolicy   `json:"retryPolicy"`
	Schedule       *Schedule     `json:"schedule,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// TotalExecutions 返回任务配置与模型配置的叉积大小。
func (d *BenchmarkDefinition) TotalExecutions() int {
	return len(d.TaskConfigs) * len(d.ModelConfigs)
}

// BenchmarkProgress 是运行过程中的进度计数器。
// 不变量: Completed+Failed+Cancelled+Running+Pending == Total。
type BenchmarkProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
}

// AggregateMetrics 是一次运行完成后的汇总指标。
type AggregateMetrics struct {
	SuccessRate     float64       `json:"successRate"`
	AverageDuration time.Duration `json:"averageDuration"`
	AverageScore    float64       `json:"averageScore"`
	TotalTokens     int           `json:"totalTokens"`
	EstimatedCost   float64       `json:"estimatedCost"`
}

// GroupMetrics 是按任务或按模型分组的汇总。
type GroupMetrics struct {
	Key             string        `json:"key"` // 任务 ID 或 provider/model
	Executions      int           `json:"executions"`
	SuccessRate     float64       `json:"successRate"`
	AverageScore    float64       `json:"averageScore"`
	AverageDuration time.Duration `json:"averageDuration"`
}

// BenchmarkRun 是对一份定义的一次执行的有状态聚合。
type BenchmarkRun struct {
	ID           string            `json:"id"`
	DefinitionID string            `json:"definitionID"`
	Status       BenchmarkStatus   `json:"status"`
	Progress     BenchmarkProgress `json:"progress"`
	StartedAt    time.Time         `json:"startedAt"`
	EndedAt      time.Time         `json:"endedAt"`
	Metrics      AggregateMetrics  `json:"metrics"`
	ByTask       []GroupMetrics    `json:"byTask,omitempty"`
	ByModel      []GroupMetrics    `json:"byModel,omitempty"`
	ResultKey    string            `json:"resultKey,omitempty"` // 对象存储中完整结果载荷的键
	Error        string            `json:"error,omitempty"`
}

// EstimatedCompletion 根据已观测到的平均单次执行时长外推完成时间。
// 没有足够观测数据时返回零值。
func (r *BenchmarkRun) EstimatedCompletion(now time.Time) time.Time {
	done := r.Progress.Completed + r.Progress.Failed + r.Progress.Cancelled
	remaining := r.Progress.Total - done
	if done == 0 || remaining <= 0 {
		return time.Time{}
	}
	avg := now.Sub(r.StartedAt) / time.Duration(done)
	return now.Add(avg * time.Duration(remaining))
}

package models

import "time"

// NotificationType 定义了基准测试生命周期事件的类型。
type NotificationType string

const (
	NotifyBenchmarkCreated   NotificationType = "benchmark_created"
	NotifyBenchmarkProgress  NotificationType = "benchmark_progress"
	NotifyBenchmarkCompleted NotificationType = "benchmark_completed"
	NotifyBenchmarkFailed    NotificationType = "benchmark_failed"
	NotifyBenchmarkPaused    NotificationType = "benchmark_paused"
	NotifyBenchmarkResumed   NotificationType = "benchmark_resumed"
	NotifyBenchmarkCancelled NotificationType = "benchmark_cancelled"
)

// Notification 是一条发往外部通知通道的生命周期事件。
// 发送是 fire-and-forget 的：通知失败绝不能使触发它的编排操作失败。
type Notification struct {
	Type           NotificationType       `json:"type"`
	BenchmarkID    string                 `json:"benchmarkID"`
	OrganizationID string                 `json:"organizationID"`
	UserID         string                 `json:"userID"`
	Message        string                 `json:"message"`
	Data           map[string]interface{} `json:"data,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

package models

import (
	"time"
)

// ExecutionStatus 定义了单次执行的几种可能状态。
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
)

// IsTerminal 报告该状态是否为终态。
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// RetryPolicy 定义了执行失败后的重试策略。
type RetryPolicy struct {
	MaxAttempts       int           `json:"maxAttempts"`       // 最大尝试次数（含首次）
	BaseDelay         time.Duration `json:"baseDelay"`         // 初始延迟
	MaxDelay          time.Duration `json:"maxDelay"`          // 延迟上限
	BackoffMultiplier float64       `json:"backoffMultiplier"` // 指数退避系数
	RetryableErrors   []string      `json:"retryableErrors"`   // 视为可重试的错误码集合
}

// IsRetryable 判断给定错误码是否在可重试集合内。
func (p RetryPolicy) IsRetryable(code string) bool {
	for _, c := range p.RetryableErrors {
		if c == code {
			return true
		}
	}
	return false
}

// SamplingParams 是传递给模型的采样参数。
type SamplingParams struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
}

// ExecutionConfig 是单次调用的执行配置。
type ExecutionConfig struct {
	Sampling SamplingParams         `json:"sampling"`
	Custom   map[string]interface{} `json:"custom,omitempty"` // 供应商自定义参数
}

// ExecutionContext 携带基准测试范围的上下文信息。
type ExecutionContext struct {
	BenchmarkID    string `json:"benchmarkID"`
	OrganizationID string `json:"organizationID"`
	UserID         string `json:"userID"`
	Environment    string `json:"environment"`
}

// ExecutionRequest 是一次调用的全部输入，由编排器创建，执行器消费，
// 创建后不再被修改。
type ExecutionRequest struct {
	ID          string           `json:"id"`
	TaskID      string           `json:"taskID"`
	ProviderID  string           `json:"providerID"`
	ModelID     string           `json:"modelID"`
	Config      ExecutionConfig  `json:"config"`
	Context     ExecutionContext `json:"context"`
	Priority    int              `json:"priority"`
	Timeout     time.Duration    `json:"timeout"`     // 本次请求自身的超时
	RetryPolicy RetryPolicy      `json:"retryPolicy"` // 失败时的重试策略
	CreatedAt   time.Time        `json:"createdAt"`
}

// TokenUsage 记录一次调用的 token 消耗。
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ModelResponse 是模型调用成功后的归一化响应。
type ModelResponse struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finishReason"`
	Usage        TokenUsage `json:"usage"`
}

// ErrorDescriptor 是模型调用失败时的错误描述。
type ErrorDescriptor struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ExecutionMetrics 记录一次执行的性能指标。
type ExecutionMetrics struct {
	LatencyMs       int64   `json:"latencyMs"`       // 端到端延迟（毫秒）
	TokensPerSecond float64 `json:"tokensPerSecond"` // 生成速率
	RetryCount      int     `json:"retryCount"`      // 实际发生的重试次数
}

// ExecutionResult 是一次调用结果的记录。
// 由执行器在调用开始时创建（status=running），完成时恰好一次地
// 写入终态，此后不可变。
type ExecutionResult struct {
	ID         string           `json:"id"` // 与请求 ID 相同
	TaskID     string           `json:"taskID"`
	ProviderID string           `json:"providerID"`
	ModelID    string           `json:"modelID"`
	Context    ExecutionContext `json:"context"`

	Status    ExecutionStatus  `json:"status"`
	StartedAt time.Time        `json:"startedAt"`
	EndedAt   time.Time        `json:"endedAt"`
	Duration  time.Duration    `json:"duration"`
	Response  *ModelResponse   `json:"response,omitempty"` // 成功时填充
	Error     *ErrorDescriptor `json:"error,omitempty"`    // 失败时填充
	Metrics   ExecutionMetrics `json:"metrics"`
}

package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/meywd/benchforge/internal/models"
)

// 标准化的调用错误码。transient 类错误按重试策略可重试，
// permanent 类错误立即终止。
const (
	ErrCodeRateLimit      = "RATE_LIMIT"
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeAuth           = "AUTH_FAILED"
	ErrCodeUnknown        = "UNKNOWN"
)

// Message 是归一化聊天请求中的一轮对话。
type Message struct {
	Role    string `json:"role"` // "system" / "user" / "assistant"
	Content string `json:"content"`
}

// ChatRequest 是发往模型调用能力的归一化请求。
type ChatRequest struct {
	ModelID  string                 `json:"modelID"`
	Messages []Message              `json:"messages"`
	Sampling models.SamplingParams  `json:"sampling"`
	Custom   map[string]interface{} `json:"custom,omitempty"`
}

// InvocationError 是模型调用失败时抛出的类型化错误，
// 携带标准化错误码和可重试标志。
type InvocationError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("provider invocation failed: %s: %s", e.Code, e.Message)
}

// AsInvocationError 从错误链中提取 InvocationError。
// 无法识别的错误被归一化为不可重试的 UNKNOWN。
func AsInvocationError(err error) *InvocationError {
	var ie *InvocationError
	if errors.As(err, &ie) {
		return ie
	}
	return &InvocationError{Code: ErrCodeUnknown, Message: err.Error(), Retryable: false}
}

// Invoker 定义了所有模型调用客户端必须实现的通用接口。
// 供应商相关的请求/响应转换由实现方负责，执行器只依赖这个窄契约。
type Invoker interface {
	Invoke(ctx context.Context, req *ChatRequest) (*models.ModelResponse, error)
}

// Registry 按 provider ID 维护已注册的调用客户端。
type Registry struct {
	invokers map[string]Invoker
}

// NewRegistry 创建一个空的 Registry。
func NewRegistry() *Registry {
	return &Registry{invokers: make(map[string]Invoker)}
}

// Register 注册一个 provider 的调用客户端，重复注册会覆盖。
func (r *Registry) Register(providerID string, inv Invoker) {
	r.invokers[providerID] = inv
}

// Get 按 provider ID 查找调用客户端。
func (r *Registry) Get(providerID string) (Invoker, error) {
	inv, ok := r.invokers[providerID]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
	return inv, nil
}

// Providers 返回所有已注册的 provider ID。
func (r *Registry) Providers() []string {
	ids := make([]string, 0, len(r.invokers))
	for id := range r.invokers {
		ids = append(ids, id)
	}
	return ids
}

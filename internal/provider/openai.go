package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/meywd/benchforge/internal/config"
	"github.com/meywd/benchforge/internal/models"
)

// OpenAIClient 通过 OpenAI 兼容的 chat completions 接口调用模型。
// 多数托管与自建推理服务都暴露这套接口，因此同一个客户端可以覆盖
// 多家供应商，仅 baseURL 和密钥不同。
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient 根据供应商配置创建一个客户端。
func NewOpenAIClient(cfg config.ProviderConfig) *OpenAIClient {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg)}
}

// Invoke 发送一次 chat completion 请求并归一化响应。
func (c *OpenAIClient) Invoke(ctx context.Context, req *ChatRequest) (*models.ModelResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	temperature := float32(req.Sampling.Temperature)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.ModelID,
		Messages:    messages,
		Temperature: &temperature,
		TopP:        float32(req.Sampling.TopP),
		MaxTokens:   req.Sampling.MaxTokens,
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &InvocationError{Code: ErrCodeUnknown, Message: "provider returned no choices"}
	}

	return &models.ModelResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: models.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// normalizeError 将 SDK 的错误归一化为 InvocationError。
// 上下文中断原样透传，由调用方判定超时还是取消。
func normalizeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, err.Error())
	}
	return &InvocationError{Code: ErrCodeNetwork, Message: err.Error(), Retryable: true}
}

// statusError 将 HTTP 状态码映射为标准化错误码。
func statusError(status int, msg string) *InvocationError {
	switch {
	case status == http.StatusTooManyRequests:
		return &InvocationError{Code: ErrCodeRateLimit, Message: msg, Retryable: true}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &InvocationError{Code: ErrCodeAuth, Message: msg}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &InvocationError{Code: ErrCodeTimeout, Message: msg, Retryable: true}
	case status >= 500:
		return &InvocationError{Code: ErrCodeNetwork, Message: msg, Retryable: true}
	case status >= 400:
		return &InvocationError{Code: ErrCodeInvalidRequest, Message: msg}
	default:
		return &InvocationError{Code: ErrCodeUnknown, Message: msg}
	}
}

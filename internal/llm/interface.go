// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的AI提供者")

// FailureReason 标识提供者调用失败的类别
//
// 分类在提供者适配层完成（HTTP状态码+错误体），上层编排只按类别决策，
// 不对错误文本做子串匹配。
type FailureReason string

const (
	ReasonQuotaExhausted    FailureReason = "quota_exhausted"    // 429 / 配额用尽
	ReasonInvalidCredential FailureReason = "invalid_credential" // 401/403 / 密钥失效
	ReasonBadRequest        FailureReason = "bad_request"        // 请求本身有问题
	ReasonUnavailable       FailureReason = "unavailable"        // 服务端暂时不可用
	ReasonUnknown           FailureReason = "unknown"
)

// APIError 提供者调用的结构化错误
type APIError struct {
	Provider   string
	StatusCode int
	Reason     FailureReason
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API错误(%d/%s): %s", e.Provider, e.StatusCode, e.Reason, e.Message)
}

// Retryable 判断错误是否应轮换凭证后重试
func (e *APIError) Retryable() bool {
	return e.Reason == ReasonQuotaExhausted || e.Reason == ReasonInvalidCredential
}

// ReasonOf 提取错误的失败类别，非 APIError 返回 ReasonUnknown
func ReasonOf(err error) FailureReason {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ReasonUnknown
}

// IsRetryable 判断错误是否应轮换凭证后重试
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// ClassifyStatus 根据HTTP状态码与错误体推断失败类别
func ClassifyStatus(statusCode int, body string) FailureReason {
	switch statusCode {
	case 429:
		return ReasonQuotaExhausted
	case 401, 403:
		return ReasonInvalidCredential
	case 400:
		// Gemini 对无效密钥也可能返回400，错误体中带标记
		if containsAny(body, "API_KEY_INVALID", "API key expired", "expired") {
			return ReasonInvalidCredential
		}
		return ReasonBadRequest
	case 500, 502, 503, 504:
		return ReasonUnavailable
	default:
		if containsAny(body, "RESOURCE_EXHAUSTED", "rate limit") {
			return ReasonQuotaExhausted
		}
		return ReasonUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// 请求参数标准化
type CompletionRequest struct {
	Prompt       string                 `json:"prompt"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	MaxTokens    int                    `json:"max_tokens,omitempty"`
	Temperature  float32                `json:"temperature,omitempty"`
	TopP         float32                `json:"top_p,omitempty"`
	Model        string                 `json:"model,omitempty"`
	StopWords    []string               `json:"stop_words,omitempty"`
	ExtraParams  map[string]interface{} `json:"extra_params,omitempty"`
}

// 响应结构标准化
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Provider 定义所有LLM提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的模型列表
	GetSupportedModels() []string

	// 文本生成
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// 注册表和工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	provider := factory()
	err := provider.Initialize(config)
	return provider, err
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}

// GetSupportedModelsForProvider 获取指定提供商支持的模型列表
func GetSupportedModelsForProvider(name string) []string {
	factory, exists := providers[name]
	if !exists {
		return []string{}
	}

	provider := factory()
	return provider.GetSupportedModels()
}

// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/PaperStudioMCP/internal/config"
	"github.com/Corphon/PaperStudioMCP/internal/credential"
	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/llm"
	"github.com/Corphon/PaperStudioMCP/internal/utils"

	gocache "github.com/patrickmn/go-cache"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// LLMService 统一的文本生成入口
//
// 持有凭证池：生成调用失败且类别为配额/密钥时轮换凭证重试，
// 重试次数以池大小为上限，其他类别的错误立即上抛。
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	defaultModel  string
	isReady       bool
	readyState    string

	pool  *credential.Pool
	cache *gocache.Cache
}

// NewLLMService 创建LLM服务并从配置初始化提供商
func NewLLMService(pool *credential.Pool) *LLMService {
	service := &LLMService{
		pool:       pool,
		cache:      gocache.New(30*time.Minute, 10*time.Minute),
		readyState: "Uninitialized",
	}

	if err := service.initProvider(); err != nil {
		// 返回未就绪服务而不是错误，密钥可在运行时补配
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
	}

	return service
}

// initProvider 用凭证池当前密钥构建提供商实例
func (s *LLMService) initProvider() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("无法获取配置")
	}

	providerName := cfg.LLMProvider
	if providerName == "" {
		providerName = "google"
	}

	apiKey, err := s.pool.Current(credential.CapabilityText)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = "API key not configured"
		s.providerMutex.Unlock()
		return err
	}

	providerConfig := map[string]string{"api_key": apiKey}
	for k, v := range cfg.LLMConfig {
		if k != "api_key" {
			providerConfig[k] = v
		}
	}

	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = fmt.Sprintf("Initialization failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	s.provider = provider
	s.providerName = providerName
	s.defaultModel = cfg.LLMConfig["default_model"]
	s.isReady = true
	s.readyState = "Ready"
	s.providerMutex.Unlock()

	return nil
}

// IsReady 返回服务是否已就绪
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetReadyState 返回服务就绪状态描述
func (s *LLMService) GetReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if s.provider != nil && s.isReady {
		return "Ready"
	}
	if s.pool.Size(credential.CapabilityText) == 0 {
		return "API key not configured"
	}
	return s.readyState
}

// GetProviderStatus 返回服务是否就绪以及可读描述
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "LLM服务实例未初始化"
	}
	if s.IsReady() {
		return true, "Ready"
	}
	return false, s.GetReadyState()
}

// GetProviderName 返回当前提供商名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// UpdateProvider 切换LLM提供商
func (s *LLMService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	s.provider = provider
	s.providerName = providerName
	s.defaultModel = providerConfig["default_model"]
	s.isReady = true
	s.readyState = "Ready"
	s.providerMutex.Unlock()

	// 旧提供商的结果不再可比，清空缓存
	s.cache.Flush()

	return nil
}

// ReloadCredentials 凭证池更新后重建提供商
func (s *LLMService) ReloadCredentials() error {
	return s.initProvider()
}

// generateCacheKey 生成缓存键
func (s *LLMService) generateCacheKey(prompt, systemPrompt, model string) string {
	s.providerMutex.RLock()
	providerName := s.providerName
	s.providerMutex.RUnlock()

	hashInput := fmt.Sprintf("%s:::%s:::%s:::%s", prompt, systemPrompt, model, providerName)
	return fmt.Sprintf("%x", md5.Sum([]byte(hashInput)))
}

// CompleteText 带凭证轮换重试的文本生成
//
// 最多尝试池大小次；配额/密钥类错误轮换后重试，
// 其他错误立即返回。全部尝试失败返回配额/密钥错误。
func (s *LLMService) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.providerMutex.RLock()
	ready := s.isReady && s.provider != nil
	s.providerMutex.RUnlock()

	if !ready {
		return nil, fmt.Errorf("%w: %s", ErrLLMNotReady, s.GetReadyState())
	}

	if req.Model == "" {
		req.Model = s.defaultModel
	}

	maxAttempts := s.pool.Size(credential.CapabilityText)
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	logger := utils.GetLogger()
	metrics := utils.GetMetricsCollector()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.providerMutex.RLock()
		provider := s.provider
		s.providerMutex.RUnlock()

		start := time.Now()
		resp, err := provider.CompleteText(ctx, req)
		metrics.RecordHistogram("llm.request_ms", time.Since(start).Milliseconds())

		if err == nil {
			metrics.IncrementCounter("llm.requests_ok")
			return resp, nil
		}

		lastErr = err

		if !llm.IsRetryable(err) {
			metrics.IncrementCounter("llm.requests_failed")
			return nil, err
		}

		metrics.IncrementCounter("llm.credential_rotations")
		logger.Warnf("第 %d/%d 次生成调用失败(%s)，轮换凭证后重试: %v",
			attempt, maxAttempts, llm.ReasonOf(err), err)

		s.pool.Rotate(credential.CapabilityText)
		if initErr := s.initProvider(); initErr != nil {
			logger.Errorf("轮换后重建提供商失败: %v", initErr)
		}
	}

	metrics.IncrementCounter("llm.requests_exhausted")
	return nil, apperrors.NewQuotaError(
		fmt.Sprintf("全部 %d 个凭证均不可用", maxAttempts), lastErr)
}

// CompletePlainText 返回纯文本结果的便捷包装
func (s *LLMService) CompletePlainText(ctx context.Context, prompt, systemPrompt string, temperature float32) (string, error) {
	resp, err := s.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Temperature:  temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CreateStructuredCompletion 请求JSON输出并解析到目标结构
func (s *LLMService) CreateStructuredCompletion(ctx context.Context, prompt, systemPrompt string, outputSchema interface{}) error {
	model := s.defaultModel
	cacheKey := s.generateCacheKey(prompt, systemPrompt, model)

	// 命中缓存直接反序列化
	if cached, found := s.cache.Get(cacheKey); found {
		if json.Unmarshal(cached.([]byte), outputSchema) == nil {
			utils.GetLogger().Debugf("结构化生成命中缓存: %s", cacheKey[:8])
			return nil
		}
		s.cache.Delete(cacheKey)
	}

	// 修改系统提示以请求特定格式
	structuredSystemPrompt := systemPrompt
	if structuredSystemPrompt != "" {
		structuredSystemPrompt += "\n\n"
	}
	structuredSystemPrompt += "Return your response in valid JSON format, following the provided output schema, without adding explanations or preambles."

	resp, err := s.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: structuredSystemPrompt,
		Temperature:  0.3,
		Model:        model,
	})
	if err != nil {
		return err
	}

	if err := ParseStructured(resp.Text, outputSchema); err != nil {
		return err
	}

	// 缓存解析后的规范JSON而非原始返回
	if data, err := json.Marshal(outputSchema); err == nil {
		s.cache.Set(cacheKey, data, gocache.DefaultExpiration)
	}

	return nil
}

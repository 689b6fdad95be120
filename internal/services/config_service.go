// internal/services/config_service.go
package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/PaperStudioMCP/internal/config"
	"github.com/Corphon/PaperStudioMCP/internal/credential"
)

// ConfigService 运行时配置与凭证管理
//
// 密钥更新同时写入凭证池和配置文件，LLM服务在更新后重建提供商。
type ConfigService struct {
	pool *credential.Pool
	llm  *LLMService

	// 配置变更历史
	changeHistory []ConfigChangeRecord
	mu            sync.RWMutex
}

// ConfigChangeRecord 配置变更记录
type ConfigChangeRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	Section   string      `json:"section"`
	Detail    interface{} `json:"detail,omitempty"`
}

// NewConfigService 创建配置服务实例
func NewConfigService(pool *credential.Pool, llm *LLMService) *ConfigService {
	return &ConfigService{
		pool:          pool,
		llm:           llm,
		changeHistory: make([]ConfigChangeRecord, 0, 100),
	}
}

// GetCurrentConfig 获取当前配置
func (s *ConfigService) GetCurrentConfig() *config.AppConfig {
	return config.GetCurrentConfig()
}

// SetupCredentials 配置生成、语音与图像密钥
//
// 空参数保留原值；至少要提供一项。
func (s *ConfigService) SetupCredentials(geminiKeys []string, sarvamKey, imageKey string) error {
	if len(geminiKeys) == 0 && sarvamKey == "" && imageKey == "" {
		return errors.New("没有提供任何密钥")
	}

	if err := config.UpdateCredentials(geminiKeys, sarvamKey, imageKey); err != nil {
		return err
	}

	if len(geminiKeys) > 0 {
		s.pool.Set(credential.CapabilityText, geminiKeys)
		if s.llm != nil {
			if err := s.llm.ReloadCredentials(); err != nil {
				return fmt.Errorf("密钥已保存但提供商重建失败: %w", err)
			}
		}
	}
	if sarvamKey != "" {
		s.pool.Set(credential.CapabilitySpeech, []string{sarvamKey})
	}
	if imageKey != "" {
		s.pool.Set(credential.CapabilityImage, []string{imageKey})
	}

	s.recordChange("credentials", map[string]int{
		"gemini_keys": len(geminiKeys),
	})

	return nil
}

// CredentialStatus 各能力的密钥状态（不含密钥本身）
func (s *ConfigService) CredentialStatus() map[string]interface{} {
	return map[string]interface{}{
		"gemini_keys":       s.pool.Size(credential.CapabilityText),
		"gemini_active":     s.pool.Index(credential.CapabilityText) + 1,
		"sarvam_configured": s.pool.Size(credential.CapabilitySpeech) > 0,
		"image_configured":  s.pool.Size(credential.CapabilityImage) > 0,
	}
}

// UpdateLLMConfig 更新LLM提供商和配置
func (s *ConfigService) UpdateLLMConfig(provider string, configMap map[string]string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}

	if _, ok := configMap["default_model"]; !ok {
		switch provider {
		case "google":
			configMap["default_model"] = "gemini-2.0-flash"
		case "openrouter":
			configMap["default_model"] = "google/gemini-2.0-flash-exp:free"
		}
	}

	if err := config.UpdateLLMConfig(provider, configMap); err != nil {
		return err
	}

	s.recordChange("llm_provider", provider)

	if s.llm != nil {
		return s.llm.ReloadCredentials()
	}
	return nil
}

// SetDebugMode 设置调试模式
func (s *ConfigService) SetDebugMode(enabled bool) error {
	if err := config.SetDebugMode(enabled); err != nil {
		return err
	}
	s.recordChange("debug_mode", enabled)
	return nil
}

// GetChangeHistory 获取最近的配置变更记录
func (s *ConfigService) GetChangeHistory(limit int) []ConfigChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.changeHistory) {
		limit = len(s.changeHistory)
	}

	history := make([]ConfigChangeRecord, limit)
	copy(history, s.changeHistory[len(s.changeHistory)-limit:])

	return history
}

func (s *ConfigService) recordChange(section string, detail interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.changeHistory) >= 1000 {
		s.changeHistory = s.changeHistory[1:]
	}

	s.changeHistory = append(s.changeHistory, ConfigChangeRecord{
		Timestamp: time.Now(),
		Section:   section,
		Detail:    detail,
	})
}

// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`

	// 凭证池与媒体后端配置
	GeminiKeys  []string `json:"gemini_keys,omitempty"`
	SarvamKey   string   `json:"sarvam_key,omitempty"`
	TTSEndpoint string   `json:"tts_endpoint,omitempty"`
	ImageAPIKey string   `json:"image_api_key,omitempty"`
	FFmpegBin   string   `json:"ffmpeg_bin"`
	FFprobeBin  string   `json:"ffprobe_bin"`
}

// Config 存储应用配置
type Config struct {
	Port        string
	DataDir     string
	LogDir      string
	DebugMode   bool
	GeminiKeys  []string
	SarvamKey   string
	TTSEndpoint string
	ImageAPIKey string
	FFmpegBin   string
	FFprobeBin  string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DataDir:     getEnvPath("DATA_DIR", "data"),
		LogDir:      getEnvPath("LOG_DIR", "logs"),
		DebugMode:   getEnvBool("DEBUG_MODE", true),
		GeminiKeys:  loadGeminiKeys(),
		SarvamKey:   getEnv("SARVAM_API_KEY", ""),
		TTSEndpoint: getEnv("SARVAM_TTS_ENDPOINT", ""),
		ImageAPIKey: getEnv("IMAGE_API_KEY", ""),
		FFmpegBin:   getEnv("FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:  getEnv("FFPROBE_BIN", "ffprobe"),
	}

	if len(config.GeminiKeys) == 0 {
		// 只记录警告，不返回错误；密钥可通过接口再配置
		log.Println("警告: 未设置 Gemini API 密钥，需通过 /api/keys/setup 配置后才能使用生成功能")
	}

	return config, nil
}

// loadGeminiKeys 读取 GEMINI_API_KEY_1..N 组成密钥池，兼容单个 GEMINI_API_KEY
func loadGeminiKeys() []string {
	var keys []string
	for i := 1; ; i++ {
		v := os.Getenv("GEMINI_API_KEY_" + strconv.Itoa(i))
		if v == "" {
			break
		}
		keys = append(keys, v)
	}
	if len(keys) == 0 {
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	// 加载基础配置
	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:        baseConfig.Port,
		DataDir:     baseConfig.DataDir,
		LogDir:      baseConfig.LogDir,
		DebugMode:   baseConfig.DebugMode,
		LLMProvider: "google", // 默认使用 Gemini
		LLMConfig: map[string]string{
			"default_model": "gemini-2.0-flash",
		},
		GeminiKeys:  baseConfig.GeminiKeys,
		SarvamKey:   baseConfig.SarvamKey,
		TTSEndpoint: baseConfig.TTSEndpoint,
		ImageAPIKey: baseConfig.ImageAPIKey,
		FFmpegBin:   baseConfig.FFmpegBin,
		FFprobeBin:  baseConfig.FFprobeBin,
	}

	// 尝试从文件加载已保存的配置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 合并配置：保留文件中的密钥设置，但使用最新的基础配置
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode
				savedConfig.FFmpegBin = baseConfig.FFmpegBin
				savedConfig.FFprobeBin = baseConfig.FFprobeBin

				// 环境变量中的密钥优先于文件中的空值
				if len(savedConfig.GeminiKeys) == 0 {
					savedConfig.GeminiKeys = baseConfig.GeminiKeys
				}
				if savedConfig.SarvamKey == "" {
					savedConfig.SarvamKey = baseConfig.SarvamKey
				}
				if savedConfig.TTSEndpoint == "" {
					savedConfig.TTSEndpoint = baseConfig.TTSEndpoint
				}
				if savedConfig.ImageAPIKey == "" {
					savedConfig.ImageAPIKey = baseConfig.ImageAPIKey
				}

				currentConfig = &savedConfig
			}
		}
	}

	// 保存初始配置到文件
	return SaveConfig()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return &AppConfig{
			Port:        baseConfig.Port,
			DataDir:     baseConfig.DataDir,
			LogDir:      baseConfig.LogDir,
			DebugMode:   baseConfig.DebugMode,
			LLMProvider: "google",
			LLMConfig:   map[string]string{},
			GeminiKeys:  baseConfig.GeminiKeys,
			SarvamKey:   baseConfig.SarvamKey,
			TTSEndpoint: baseConfig.TTSEndpoint,
			ImageAPIKey: baseConfig.ImageAPIKey,
			FFmpegBin:   baseConfig.FFmpegBin,
			FFprobeBin:  baseConfig.FFprobeBin,
		}
	}

	// 返回配置的副本
	configCopy := *currentConfig
	return &configCopy
}

// UpdateLLMConfig 更新LLM配置
func UpdateLLMConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = config

	return SaveConfig()
}

// UpdateCredentials 更新凭证池与媒体后端密钥，空参数保留原值
func UpdateCredentials(geminiKeys []string, sarvamKey, imageKey string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	if len(geminiKeys) > 0 {
		currentConfig.GeminiKeys = geminiKeys
	}
	if sarvamKey != "" {
		currentConfig.SarvamKey = sarvamKey
	}
	if imageKey != "" {
		currentConfig.ImageAPIKey = imageKey
	}

	return SaveConfig()
}

// SetDebugMode 设置调试模式并持久化
func SetDebugMode(enabled bool) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.DebugMode = enabled
	return SaveConfig()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	// 确保目录存在
	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	// 序列化并保存
	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}

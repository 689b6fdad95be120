// internal/api/router.go
package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/Corphon/PaperStudioMCP/internal/config"
	"github.com/Corphon/PaperStudioMCP/internal/di"
	"github.com/Corphon/PaperStudioMCP/internal/services"
	"github.com/Corphon/PaperStudioMCP/internal/storage"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 确保临时目录存在
	os.MkdirAll("temp", 0755)

	// 获取依赖注入容器
	container := di.GetContainer()

	// ✅ 只从容器获取服务，不再创建新实例
	paperService, ok := container.Get("paper").(*services.PaperService)
	if !ok {
		return nil, fmt.Errorf("论文服务未正确初始化")
	}

	mindmapService, ok := container.Get("mindmap").(*services.MindmapService)
	if !ok {
		return nil, fmt.Errorf("思维导图服务未正确初始化")
	}

	podcastService, ok := container.Get("podcast").(*services.PodcastService)
	if !ok {
		return nil, fmt.Errorf("播客服务未正确初始化")
	}

	storyService, ok := container.Get("story").(*services.StoryService)
	if !ok {
		return nil, fmt.Errorf("叙事服务未正确初始化")
	}

	ttsService, ok := container.Get("tts").(*services.TTSService)
	if !ok {
		return nil, fmt.Errorf("语音合成服务未正确初始化")
	}

	imageService, ok := container.Get("image").(*services.ImageService)
	if !ok {
		return nil, fmt.Errorf("图像服务未正确初始化")
	}

	videoService, ok := container.Get("video").(*services.VideoService)
	if !ok {
		return nil, fmt.Errorf("视频服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	configService, ok := container.Get("config").(*services.ConfigService)
	if !ok {
		return nil, fmt.Errorf("配置服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	lockManager, ok := container.Get("locks").(*services.LockManager)
	if !ok {
		return nil, fmt.Errorf("锁管理器未正确初始化")
	}

	store, ok := container.Get("workspace").(storage.WorkspaceStore)
	if !ok {
		return nil, fmt.Errorf("工作区存储未正确初始化")
	}

	// ✅ 创建API处理器 - 只传递从容器获取的服务
	handler := NewHandler(
		paperService,
		mindmapService,
		podcastService,
		storyService,
		ttsService,
		imageService,
		videoService,
		progressService,
		configService,
		llmService,
		lockManager,
		store,
	)

	// 创建路由
	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// HTTPS重定向（生产环境）
	if !cfg.DebugMode {
		r.Use(func(c *gin.Context) {
			if c.Request.Header.Get("X-Forwarded-Proto") != "https" {
				c.Redirect(http.StatusPermanentRedirect,
					"https://"+c.Request.Host+c.Request.URL.Path)
				return
			}
			c.Next()
		})
	}

	// WebSocket 任务进度
	r.GET("/ws/tasks/:id", handler.TaskWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		// ===============================
		// 思维导图相关路由
		// ===============================
		mindmapGroup := api.Group("/mindmap")
		{
			mindmapGroup.GET("/health", handler.GetHealth)
			mindmapGroup.POST("/generate", GenerationRateLimit(), handler.GenerateMindmap)
			mindmapGroup.POST("/generate-upload", GenerationRateLimit(), handler.GenerateMindmapFromUpload)
			mindmapGroup.POST("/validate-url", handler.ValidateArxivURL)
		}

		// ===============================
		// 论文相关路由
		// ===============================
		papersGroup := api.Group("/papers")
		{
			papersGroup.POST("/fetch", FetchRateLimit(), handler.FetchPaper)
			papersGroup.GET("", handler.ListPapers)
			papersGroup.GET("/:id", handler.GetPaper)
			papersGroup.DELETE("/:id", handler.DeletePaper)
		}

		// ===============================
		// 凭证管理路由
		// ===============================
		keysGroup := api.Group("/keys")
		{
			keysGroup.POST("/setup", handler.SetupKeys)
			keysGroup.GET("/status", handler.GetKeysStatus)
		}

		// ===============================
		// LLM配置相关路由
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/models", handler.GetLLMModels)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}

		// ===============================
		// 播客管线路由
		// ===============================
		podcastGroup := api.Group("/podcast/:id")
		{
			podcastGroup.POST("/script", GenerationRateLimit(), handler.GeneratePodcastScript)
			podcastGroup.GET("/script", handler.GetPodcastScript)
			podcastGroup.POST("/audio", GenerationRateLimit(), handler.GeneratePodcastAudio)
			podcastGroup.GET("/audio/:file", handler.GetPodcastAudioFile)
			podcastGroup.GET("/status", handler.GetPodcastStatus)
		}

		// ===============================
		// 叙事视频管线路由
		// ===============================
		storyGroup := api.Group("/storytelling/:id")
		{
			storyGroup.POST("/script", GenerationRateLimit(), handler.GenerateStoryScript)
			storyGroup.GET("/script", handler.GetStoryScript)
			storyGroup.POST("/images", GenerationRateLimit(), handler.GenerateStoryImages)
			storyGroup.POST("/audio", GenerationRateLimit(), handler.GenerateStoryAudio)
			storyGroup.POST("/video", GenerationRateLimit(), handler.AssembleStoryVideo)
			storyGroup.GET("/video", handler.GetStoryVideo)
			storyGroup.GET("/images/:file", handler.GetStoryImageFile)
			storyGroup.GET("/status", handler.GetStoryStatus)
		}

		// ===============================
		// 配置健康相关路由
		// ===============================
		configGroup := api.Group("/config")
		{
			configGroup.GET("/health", handler.GetConfigHealth)
			configGroup.GET("/metrics", handler.GetConfigMetrics)
			configGroup.GET("/history", handler.GetConfigHistory)
			configGroup.PUT("/debug", handler.SetDebugMode)
		}

		// 调试路由
		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

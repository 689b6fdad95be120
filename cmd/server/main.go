// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/PaperStudioMCP/internal/api"
	"github.com/Corphon/PaperStudioMCP/internal/config"
	"github.com/Corphon/PaperStudioMCP/internal/credential"
	"github.com/Corphon/PaperStudioMCP/internal/di"
	"github.com/Corphon/PaperStudioMCP/internal/services"
	"github.com/Corphon/PaperStudioMCP/internal/storage"
	"github.com/Corphon/PaperStudioMCP/internal/utils"
	"github.com/gin-gonic/gin"

	// 注册LLM提供商
	_ "github.com/Corphon/PaperStudioMCP/internal/llm/providers/google"
	_ "github.com/Corphon/PaperStudioMCP/internal/llm/providers/openrouter"
)

func main() {
	log.Println("🚀 启动 PaperStudioMCP 服务器...")

	// 1. 首先加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 2. 创建必要的目录
	createDirectories(baseConfig)
	log.Println("✅ 目录结构创建完成")

	// 3. 初始化配置系统
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("初始化配置系统失败: %v", err)
	}
	log.Println("✅ 配置系统初始化完成")

	// 4. 初始化日志
	if err := utils.InitLogger(filepath.Join(baseConfig.LogDir, "server.log")); err != nil {
		log.Printf("⚠️ 初始化文件日志失败，退回标准输出: %v", err)
	}

	// 5. 初始化所有服务（按依赖顺序）
	if err := initServices(baseConfig); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	container := di.GetContainer()
	log.Printf("✅ 所有服务初始化完成，服务数量: %d", len(container.GetNames()))

	// 6. 设置路由（只获取服务，不创建）
	if err := performHealthCheck(); err != nil {
		log.Printf("⚠️ 服务健康检查警告: %v", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}
	log.Println("✅ 路由设置完成")

	// 7. 启动服务器
	log.Printf("🌐 服务器启动在端口 %s", baseConfig.Port)
	log.Printf("🔗 健康检查: http://localhost:%s/api/mindmap/health", baseConfig.Port)

	setupGracefulShutdown(router, baseConfig.Port)
}

// initServices 按依赖顺序构建服务并注册到容器
func initServices(cfg *config.Config) error {
	container := di.GetContainer()

	// 凭证池：环境变量里的密钥先入池，之后可通过 /api/keys/setup 更新
	pool := credential.NewPool()
	pool.Set(credential.CapabilityText, cfg.GeminiKeys)
	if cfg.SarvamKey != "" {
		pool.Set(credential.CapabilitySpeech, []string{cfg.SarvamKey})
	}
	if cfg.ImageAPIKey != "" {
		pool.Set(credential.CapabilityImage, []string{cfg.ImageAPIKey})
	}
	container.Register("credentials", pool)

	// 存储层
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	workspaceStore := storage.NewWorkspaceStore(fileStorage)
	container.Register("storage", fileStorage)
	container.Register("workspace", workspaceStore)

	// LLM与生成服务
	llmService := services.NewLLMService(pool)
	container.Register("llm", llmService)
	container.Register("mindmap", services.NewMindmapService(llmService))
	container.Register("podcast", services.NewPodcastService(llmService))
	container.Register("story", services.NewStoryService(llmService))

	// 论文获取
	arxivService := services.NewArxivService()
	uploadService := services.NewUploadService()
	container.Register("arxiv", arxivService)
	container.Register("upload", uploadService)
	container.Register("paper", services.NewPaperService(arxivService, uploadService, workspaceStore))

	// 媒体后端
	container.Register("tts", services.NewTTSService(pool, cfg.TTSEndpoint))
	imageService, err := services.NewImageService(pool, filepath.Join(cfg.DataDir, ".image_cache"))
	if err != nil {
		return fmt.Errorf("初始化图像服务失败: %w", err)
	}
	container.Register("image", imageService)
	container.Register("video", services.NewVideoService(cfg.FFmpegBin, cfg.FFprobeBin))

	// 编排支撑
	container.Register("progress", services.NewProgressService())
	container.Register("locks", services.NewLockManager())
	container.Register("config", services.NewConfigService(pool, llmService))

	return nil
}

// 健康检查函数
func performHealthCheck() error {
	container := di.GetContainer()

	// 检查关键服务是否已注册
	criticalServices := []string{"llm", "paper", "config", "workspace"}

	for _, serviceName := range criticalServices {
		if service := container.Get(serviceName); service == nil {
			return fmt.Errorf("关键服务未注册: %s", serviceName)
		}
	}

	log.Println("✅ 服务健康检查通过")
	return nil
}

// 优雅关闭函数
func setupGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// 在新的 goroutine 中启动服务器
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")

	// 给定超时时间关闭服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ 服务器强制关闭: %v", err)
	}

	log.Println("✅ 服务器优雅关闭完成")
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "papers"),
		filepath.Join(cfg.DataDir, "podcasts"),
		filepath.Join(cfg.DataDir, "storytelling"),
		filepath.Join(cfg.DataDir, ".image_cache"),
		"temp",
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}
}

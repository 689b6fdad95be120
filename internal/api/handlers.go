// internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/llm"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/services"
	"github.com/Corphon/PaperStudioMCP/internal/storage"
	"github.com/Corphon/PaperStudioMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

// 上传论文的大小上限
const maxUploadBytes = 20 << 20

// Handler 处理API请求
type Handler struct {
	// 核心服务
	PaperService    *services.PaperService    // 论文获取与缓存
	MindmapService  *services.MindmapService  // 提纲生成
	PodcastService  *services.PodcastService  // 播客脚本生成
	StoryService    *services.StoryService    // 叙事视频脚本生成
	TTSService      *services.TTSService      // 语音合成
	ImageService    *services.ImageService    // 场景图像生成
	VideoService    *services.VideoService    // 视频装配
	ProgressService *services.ProgressService // 进度跟踪服务
	ConfigService   *services.ConfigService   // 配置服务
	LLMService      *services.LLMService      // LLM服务
	LockManager     *services.LockManager     // 论文级别锁
	Store           storage.WorkspaceStore    // 工作区存储
	Response        *ResponseHelper           // 响应助手
	Metrics         *utils.APIMetrics         // 运行指标
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewHandler 创建API处理器
func NewHandler(
	paperService *services.PaperService,
	mindmapService *services.MindmapService,
	podcastService *services.PodcastService,
	storyService *services.StoryService,
	ttsService *services.TTSService,
	imageService *services.ImageService,
	videoService *services.VideoService,
	progressService *services.ProgressService,
	configService *services.ConfigService,
	llmService *services.LLMService,
	lockManager *services.LockManager,
	store storage.WorkspaceStore) *Handler {

	return &Handler{
		PaperService:    paperService,
		MindmapService:  mindmapService,
		PodcastService:  podcastService,
		StoryService:    storyService,
		TTSService:      ttsService,
		ImageService:    imageService,
		VideoService:    videoService,
		ProgressService: progressService,
		ConfigService:   configService,
		LLMService:      llmService,
		LockManager:     lockManager,
		Store:           store,
		Response:        NewResponseHelper(),
		Metrics:         utils.NewAPIMetrics(),
	}
}

// ========================================
// 思维导图
// ========================================

// GetHealth 服务健康检查
func (h *Handler) GetHealth(c *gin.Context) {
	ready, state := h.LLMService.GetProviderStatus()

	health := gin.H{
		"status":       "ok",
		"llm_ready":    ready,
		"llm_state":    state,
		"llm_provider": h.LLMService.GetProviderName(),
		"credentials":  h.ConfigService.CredentialStatus(),
		"timestamp":    time.Now().Format(time.RFC3339),
	}
	if !ready {
		health["status"] = "degraded"
	}

	h.Response.Success(c, health)
}

// GenerateMindmap 从arXiv链接生成思维导图
func (h *Handler) GenerateMindmap(c *gin.Context) {
	var req struct {
		ArxivURL        string `json:"arxiv_url" binding:"required"`
		ComplexityLevel string `json:"complexity_level"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Minute)
	defer cancel()

	paper, err := h.PaperService.FetchFromArxiv(ctx, req.ArxivURL)
	if err != nil {
		h.Response.FromAppError(c, err, "获取论文失败")
		return
	}

	h.renderMindmapResponse(c, ctx, paper, req.ComplexityLevel)
}

// GenerateMindmapFromUpload 从上传的PDF/LaTeX文件生成思维导图
func (h *Handler) GenerateMindmapFromUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.Response.BadRequest(c, "获取上传文件失败", err.Error())
		return
	}

	if file.Size > maxUploadBytes {
		h.Response.BadRequest(c, "文件过大", fmt.Sprintf("上限 %d MB", maxUploadBytes>>20))
		return
	}

	src, err := file.Open()
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "读取上传文件失败", err.Error())
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "读取上传文件失败", err.Error())
		return
	}

	paper, err := h.PaperService.SaveUploaded(file.Filename, c.PostForm("title"), data)
	if err != nil {
		h.Response.FromAppError(c, err, "处理上传论文失败")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Minute)
	defer cancel()

	h.renderMindmapResponse(c, ctx, paper, c.PostForm("complexity_level"))
}

// renderMindmapResponse 生成提纲并渲染为Mermaid思维导图
func (h *Handler) renderMindmapResponse(c *gin.Context, ctx context.Context, paper *models.Paper, complexity string) {
	outline, err := h.MindmapService.GenerateOutline(ctx, paper, complexity)
	if err != nil {
		h.Response.FromAppError(c, err, "生成提纲失败")
		return
	}

	mindmap := services.RenderMindmap(outline)
	if !services.ValidateMindmap(mindmap) {
		h.Response.Error(c, http.StatusBadGateway, ErrorScriptInvalid,
			"渲染的思维导图未通过校验", "请重试或降低复杂度")
		return
	}

	h.Response.Success(c, gin.H{
		"paper_id":   paper.ID,
		"title":      paper.Title,
		"mindmap":    mindmap,
		"outline":    outline,
		"node_count": services.CountMindmapNodes(mindmap),
	}, "思维导图生成成功")
}

// ValidateArxivURL 校验arXiv链接并提取论文ID
func (h *Handler) ValidateArxivURL(c *gin.Context) {
	var req struct {
		ArxivURL string `json:"arxiv_url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	arxivID, err := h.PaperService.ValidateURL(req.ArxivURL)
	if err != nil {
		h.Response.Success(c, gin.H{
			"valid":  false,
			"reason": err.Error(),
		})
		return
	}

	h.Response.Success(c, gin.H{
		"valid":    true,
		"arxiv_id": arxivID,
	})
}

// ========================================
// 论文
// ========================================

// FetchPaper 获取并缓存论文
func (h *Handler) FetchPaper(c *gin.Context) {
	var req struct {
		ArxivURL string `json:"arxiv_url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	paper, err := h.PaperService.FetchFromArxiv(ctx, req.ArxivURL)
	if err != nil {
		h.Response.FromAppError(c, err, "获取论文失败")
		return
	}

	h.Response.Success(c, paper, "论文获取成功")
}

// GetPaper 获取已缓存的论文记录
func (h *Handler) GetPaper(c *gin.Context) {
	paperID := c.Param("id")

	paper, err := h.PaperService.Get(paperID)
	if err != nil {
		h.Response.NotFound(c, "论文", "论文ID: "+paperID)
		return
	}

	h.Response.Success(c, paper, "论文记录获取成功")
}

// ListPapers 列出已缓存的论文与各自已有的产品工作区
func (h *Handler) ListPapers(c *gin.Context) {
	papers, err := h.Store.ListPapers()
	if err != nil {
		h.Response.InternalError(c, "读取论文列表失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{
		"papers": papers,
		"count":  len(papers),
	})
}

// DeletePaper 删除论文缓存及其全部产品工作区
//
// 持论文写锁执行，避免删到正在生成的工作区。
func (h *Handler) DeletePaper(c *gin.Context) {
	paperID := c.Param("id")

	err := h.LockManager.ExecuteWithPaperLock(paperID, func() error {
		return h.Store.DeletePaper(paperID)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.Response.NotFound(c, "论文", "论文ID: "+paperID)
			return
		}
		h.Response.InternalError(c, "删除论文失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"paper_id": paperID}, "论文及其工作区已删除")
}

// ========================================
// 凭证管理
// ========================================

// SetupKeys 配置Gemini密钥池与媒体后端密钥
func (h *Handler) SetupKeys(c *gin.Context) {
	var req struct {
		GeminiKeys []string `json:"gemini_keys"`
		SarvamKey  string   `json:"sarvam_key"`
		ImageKey   string   `json:"image_key"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	if len(req.GeminiKeys) == 0 && req.SarvamKey == "" && req.ImageKey == "" {
		h.Response.Error(c, http.StatusBadRequest, ErrorAPIKeyMissing,
			"未提供任何密钥", "至少需要一个 gemini_keys、sarvam_key 或 image_key")
		return
	}

	if err := h.ConfigService.SetupCredentials(req.GeminiKeys, req.SarvamKey, req.ImageKey); err != nil {
		h.Response.InternalError(c, "保存凭证失败", err.Error())
		return
	}

	h.Response.Success(c, h.ConfigService.CredentialStatus(), "凭证配置成功")
}

// GetKeysStatus 查询凭证配置状态（不回显密钥本身）
func (h *Handler) GetKeysStatus(c *gin.Context) {
	h.Response.Success(c, h.ConfigService.CredentialStatus())
}

// ========================================
// LLM配置
// ========================================

// GetLLMStatus 获取LLM服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	ready, state := h.LLMService.GetProviderStatus()

	h.Response.Success(c, gin.H{
		"ready":     ready,
		"state":     state,
		"provider":  h.LLMService.GetProviderName(),
		"providers": llm.ListProviders(),
	})
}

// GetLLMModels 获取指定提供商支持的模型列表
func (h *Handler) GetLLMModels(c *gin.Context) {
	provider := c.DefaultQuery("provider", h.LLMService.GetProviderName())

	modelList := llm.GetSupportedModelsForProvider(provider)
	if len(modelList) == 0 {
		h.Response.BadRequest(c, "未知的LLM提供商", provider)
		return
	}

	h.Response.Success(c, gin.H{
		"provider": provider,
		"models":   modelList,
	})
}

// UpdateLLMConfig 更新LLM提供商配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	if err := h.ConfigService.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, "更新LLM配置失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{
		"provider": req.Provider,
	}, "LLM配置已更新")
}

// ========================================
// 播客管线
// ========================================

// GeneratePodcastScript 生成师生对话播客脚本
func (h *Handler) GeneratePodcastScript(c *gin.Context) {
	paperID := c.Param("id")

	var req struct {
		NumExchanges    int    `json:"num_exchanges"`
		Language        string `json:"language"`
		ComplexityLevel string `json:"complexity_level"`
	}
	// body可以整体缺省，全部字段走默认值
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "请求参数错误", err.Error())
			return
		}
	}

	paper, err := h.PaperService.Get(paperID)
	if err != nil {
		h.Response.NotFound(c, "论文", "论文ID: "+paperID)
		return
	}

	ws := h.loadPodcastWorkspace(paperID)
	if !models.CanAdvancePodcast(ws.Stage, models.StageScriptGenerated) {
		h.Response.Error(c, http.StatusConflict, ErrorStageConflict,
			"当前阶段无法生成脚本", fmt.Sprintf("当前阶段: %s", ws.Stage))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Minute)
	defer cancel()

	var script *models.PodcastScript
	err = h.LockManager.ExecuteWithPaperLock(paperID, func() error {
		var genErr error
		script, genErr = h.PodcastService.GenerateScript(ctx, paper, req.NumExchanges, req.Language, req.ComplexityLevel)
		if genErr != nil {
			// 配额/密钥问题换脚本也救不回来，直接上抛
			if apperrors.IsQuotaError(genErr) {
				return genErr
			}
			// 生成内容不可用时退回保底脚本，管线不中断
			utils.GetLogger().Warnf("播客脚本生成失败，使用保底脚本: %v", genErr)
			script = h.PodcastService.FallbackScript(paper, req.Language)
		}

		ws.Script = script
		ws.Stage = models.StageScriptGenerated
		ws.AudioFiles = nil // 脚本重做后旧音频作废
		return h.Store.SavePodcast(ws)
	})
	if err != nil {
		h.Response.FromAppError(c, err, "生成播客脚本失败")
		return
	}

	h.Response.Created(c, gin.H{
		"paper_id":   paperID,
		"stage":      ws.Stage,
		"turn_count": script.TurnCount(),
		"script":     script,
	}, "播客脚本生成成功")
}

// GetPodcastScript 获取已生成的播客脚本
func (h *Handler) GetPodcastScript(c *gin.Context) {
	paperID := c.Param("id")

	ws, err := h.Store.LoadPodcast(paperID)
	if err != nil || ws.Script == nil {
		h.Response.NotFound(c, "脚本", "论文ID: "+paperID)
		return
	}

	h.Response.Success(c, ws.Script, "播客脚本获取成功")
}

// GeneratePodcastAudio 为播客脚本逐回合合成语音（后台任务）
func (h *Handler) GeneratePodcastAudio(c *gin.Context) {
	paperID := c.Param("id")

	if !h.TTSService.IsConfigured() {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorTTSUnavailable,
			"语音合成服务未配置", "请先通过 /api/keys/setup 配置 sarvam_key")
		return
	}

	ws := h.loadPodcastWorkspace(paperID)
	if ws.Script == nil || !models.CanAdvancePodcast(ws.Stage, models.StageAudioGenerated) {
		h.Response.Error(c, http.StatusConflict, ErrorStageConflict,
			"尚未生成播客脚本", fmt.Sprintf("当前阶段: %s", ws.Stage))
		return
	}

	taskID := fmt.Sprintf("podcast_audio_%s_%d", sanitizeTaskComponent(paperID), time.Now().UnixNano())
	tracker := h.ProgressService.CreateTracker(taskID)

	go h.runPodcastAudioTask(paperID, ws, tracker)

	h.Response.Accepted(c, gin.H{
		"task_id":  taskID,
		"paper_id": paperID,
	})
}

// runPodcastAudioTask 播客音频合成的后台执行体
func (h *Handler) runPodcastAudioTask(paperID string, ws *models.PodcastWorkspace, tracker *services.ProgressTracker) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	err := h.LockManager.ExecuteWithPaperLock(paperID, func() error {
		mediaDir, err := h.Store.MediaDir(storage.ProductPodcast, paperID)
		if err != nil {
			return err
		}

		chunks := services.ChunkForTTS(ws.Script.Turns, 30)
		total := len(chunks)
		tracker.UpdateStage(models.StageScriptGenerated, 5, fmt.Sprintf("开始合成 %d 段语音", total))

		var files []string
		var segments [][]byte
		failed := 0
		for i, chunk := range chunks {
			audio, ok := h.TTSService.Synthesize(ctx, chunk.Text, chunk.Role, ws.Script.Language)
			if !ok {
				failed++
				continue
			}

			filename := fmt.Sprintf("segment_%03d.wav", i)
			if err := os.WriteFile(filepath.Join(mediaDir, filename), audio, 0644); err != nil {
				utils.GetLogger().Errorf("写入音频分段失败: %v", err)
				failed++
				continue
			}

			files = append(files, filename)
			segments = append(segments, audio)
			tracker.UpdateProgress(5+85*(i+1)/total, fmt.Sprintf("已合成 %d/%d 段", i+1, total))
		}

		if len(segments) == 0 {
			return fmt.Errorf("全部 %d 段语音合成失败", total)
		}

		combined, err := services.ConcatWAV(segments)
		if err != nil {
			return fmt.Errorf("拼接完整播客音频失败: %w", err)
		}
		if err := os.WriteFile(filepath.Join(mediaDir, "podcast.wav"), combined, 0644); err != nil {
			return fmt.Errorf("写入完整播客音频失败: %w", err)
		}
		files = append(files, "podcast.wav")

		ws.AudioFiles = files
		ws.Stage = models.StageAudioGenerated
		if err := h.Store.SavePodcast(ws); err != nil {
			return err
		}

		h.Metrics.RecordMediaGeneration("podcast_audio", len(segments), failed)
		utils.GetLogger().Stagef(storage.ProductPodcast, paperID, string(models.StageAudioGenerated),
			"播客音频合成完成，%d 段成功，%d 段失败", len(segments), failed)
		tracker.UpdateStage(models.StageAudioGenerated, 100,
			fmt.Sprintf("语音合成完成，%d 段成功，%d 段失败", len(segments), failed))
		return nil
	})

	if err != nil {
		tracker.Fail(err.Error())
		return
	}
	tracker.Complete("播客音频已生成")
}

// GetPodcastAudioFile 下载播客音频文件
func (h *Handler) GetPodcastAudioFile(c *gin.Context) {
	h.serveMediaFile(c, storage.ProductPodcast, c.Param("id"), c.Param("file"))
}

// GetPodcastStatus 查询播客管线状态
func (h *Handler) GetPodcastStatus(c *gin.Context) {
	paperID := c.Param("id")
	ws := h.loadPodcastWorkspace(paperID)

	h.Response.Success(c, gin.H{
		"paper_id":    paperID,
		"stage":       ws.Stage,
		"turn_count":  ws.Script.TurnCount(),
		"audio_files": ws.AudioFiles,
		"updated_at":  ws.UpdatedAt,
	})
}

// ========================================
// 叙事视频管线
// ========================================

// GenerateStoryScript 生成叙事视频分场景脚本
func (h *Handler) GenerateStoryScript(c *gin.Context) {
	paperID := c.Param("id")

	var req struct {
		VideoDuration   int    `json:"video_duration"`
		Style           string `json:"style"`
		ComplexityLevel string `json:"complexity_level"`
		Voice           string `json:"voice"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "请求参数错误", err.Error())
			return
		}
	}

	paper, err := h.PaperService.Get(paperID)
	if err != nil {
		h.Response.NotFound(c, "论文", "论文ID: "+paperID)
		return
	}

	ws := h.loadStoryWorkspace(paperID)
	if !models.CanAdvanceStory(ws.Stage, models.StageScriptGenerated) {
		h.Response.Error(c, http.StatusConflict, ErrorStageConflict,
			"当前阶段无法生成脚本", fmt.Sprintf("当前阶段: %s", ws.Stage))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Minute)
	defer cancel()

	var script *models.NarrativeScript
	err = h.LockManager.ExecuteWithPaperLock(paperID, func() error {
		var genErr error
		script, genErr = h.StoryService.GenerateScript(ctx, paper, req.VideoDuration, req.Style, req.ComplexityLevel)
		if genErr != nil {
			return genErr
		}

		script.TotalDuration = services.RefineDurations(script.Scenes)

		ws.Script = script
		ws.Stage = models.StageScriptGenerated
		ws.Voice = req.Voice
		// 脚本重做后下游产物全部作废
		ws.ImageFiles = nil
		ws.AudioFiles = nil
		ws.VideoFile = ""
		return h.Store.SaveStory(ws)
	})
	if err != nil {
		h.Response.FromAppError(c, err, "生成叙事脚本失败")
		return
	}

	h.Response.Created(c, gin.H{
		"paper_id":       paperID,
		"stage":          ws.Stage,
		"scene_count":    script.SceneCount(),
		"total_duration": script.TotalDuration,
		"script":         script,
	}, "叙事脚本生成成功")
}

// GetStoryScript 获取已生成的叙事脚本
func (h *Handler) GetStoryScript(c *gin.Context) {
	paperID := c.Param("id")

	ws, err := h.Store.LoadStory(paperID)
	if err != nil || ws.Script == nil {
		h.Response.NotFound(c, "脚本", "论文ID: "+paperID)
		return
	}

	h.Response.Success(c, ws.Script, "叙事脚本获取成功")
}

// GenerateStoryImages 为每个场景生成图像（后台任务）
func (h *Handler) GenerateStoryImages(c *gin.Context) {
	paperID := c.Param("id")

	ws := h.loadStoryWorkspace(paperID)
	if ws.Script == nil || !models.CanAdvanceStory(ws.Stage, models.StageImagesGenerated) {
		h.Response.Error(c, http.StatusConflict, ErrorStageConflict,
			"尚未生成叙事脚本", fmt.Sprintf("当前阶段: %s", ws.Stage))
		return
	}

	taskID := fmt.Sprintf("story_images_%s_%d", sanitizeTaskComponent(paperID), time.Now().UnixNano())
	tracker := h.ProgressService.CreateTracker(taskID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
		defer cancel()

		err := h.LockManager.ExecuteWithPaperLock(paperID, func() error {
			mediaDir, err := h.Store.MediaDir(storage.ProductStory, paperID)
			if err != nil {
				return err
			}

			tracker.UpdateStage(models.StageScriptGenerated, 5,
				fmt.Sprintf("开始生成 %d 张场景图像", ws.Script.SceneCount()))

			files, result := h.ImageService.GenerateBatch(ctx, ws.Script.Scenes, mediaDir)

			ws.ImageFiles = files
			ws.Stage = models.StageImagesGenerated
			if err := h.Store.SaveStory(ws); err != nil {
				return err
			}

			h.Metrics.RecordMediaGeneration("story_images", len(result.Succeeded), len(result.Failed))
			message := fmt.Sprintf("图像生成完成，%d 张", len(result.Succeeded))
			if !result.AllSucceeded() {
				message = fmt.Sprintf("图像生成完成，%d 张外部生成，%d 张退回占位图",
					len(result.Succeeded)-len(result.Failed), len(result.Failed))
			}
			tracker.UpdateStage(models.StageImagesGenerated, 100, message)
			return nil
		})

		if err != nil {
			tracker.Fail(err.Error())
			return
		}
		tracker.Complete("场景图像已生成")
	}()

	h.Response.Accepted(c, gin.H{
		"task_id":  taskID,
		"paper_id": paperID,
	})
}

// GenerateStoryAudio 为每个场景合成旁白语音（后台任务）
func (h *Handler) GenerateStoryAudio(c *gin.Context) {
	paperID := c.Param("id")

	if !h.TTSService.IsConfigured() {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorTTSUnavailable,
			"语音合成服务未配置", "请先通过 /api/keys/setup 配置 sarvam_key")
		return
	}

	ws := h.loadStoryWorkspace(paperID)
	if ws.Script == nil || !models.CanAdvanceStory(ws.Stage, models.StageAudioGenerated) {
		h.Response.Error(c, http.StatusConflict, ErrorStageConflict,
			"尚未生成场景图像", fmt.Sprintf("当前阶段: %s", ws.Stage))
		return
	}

	taskID := fmt.Sprintf("story_audio_%s_%d", sanitizeTaskComponent(paperID), time.Now().UnixNano())
	tracker := h.ProgressService.CreateTracker(taskID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
		defer cancel()

		err := h.LockManager.ExecuteWithPaperLock(paperID, func() error {
			mediaDir, err := h.Store.MediaDir(storage.ProductStory, paperID)
			if err != nil {
				return err
			}

			total := ws.Script.SceneCount()
			tracker.UpdateStage(models.StageImagesGenerated, 5, fmt.Sprintf("开始合成 %d 段旁白", total))

			var files []string
			failed := 0
			for i, scene := range ws.Script.Scenes {
				filename := fmt.Sprintf("narration_%02d.wav", i+1)
				outPath := filepath.Join(mediaDir, filename)

				if ok := h.TTSService.SynthesizeLongText(ctx, scene.Narration, outPath, ws.Voice, "en", 500); !ok {
					failed++
					continue
				}

				files = append(files, filename)
				tracker.UpdateProgress(5+90*(i+1)/total, fmt.Sprintf("已合成 %d/%d 段旁白", i+1, total))
			}

			if len(files) == 0 {
				return fmt.Errorf("全部 %d 段旁白合成失败", total)
			}

			ws.AudioFiles = files
			ws.Stage = models.StageAudioGenerated
			if err := h.Store.SaveStory(ws); err != nil {
				return err
			}

			h.Metrics.RecordMediaGeneration("story_audio", len(files), failed)
			tracker.UpdateStage(models.StageAudioGenerated, 100,
				fmt.Sprintf("旁白合成完成，%d 段成功，%d 段失败", len(files), failed))
			return nil
		})

		if err != nil {
			tracker.Fail(err.Error())
			return
		}
		tracker.Complete("场景旁白已生成")
	}()

	h.Response.Accepted(c, gin.H{
		"task_id":  taskID,
		"paper_id": paperID,
	})
}

// AssembleStoryVideo 把场景图像和旁白装配为最终视频（后台任务）
func (h *Handler) AssembleStoryVideo(c *gin.Context) {
	paperID := c.Param("id")

	ws := h.loadStoryWorkspace(paperID)
	if ws.Script == nil || !models.CanAdvanceStory(ws.Stage, models.StageVideoGenerated) {
		h.Response.Error(c, http.StatusConflict, ErrorStageConflict,
			"尚未生成场景旁白", fmt.Sprintf("当前阶段: %s", ws.Stage))
		return
	}

	backgroundMusic := c.Query("background_music")
	titleCard := c.DefaultQuery("title_card", "true") == "true"

	// 交叉淡化时长（秒），不传用默认值，负值关闭
	var transition float64
	if raw := c.Query("transition"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.Response.BadRequest(c, "transition 必须是数字")
			return
		}
		transition = parsed
	}

	taskID := fmt.Sprintf("story_video_%s_%d", sanitizeTaskComponent(paperID), time.Now().UnixNano())
	tracker := h.ProgressService.CreateTracker(taskID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		started := time.Now()
		err := h.LockManager.ExecuteWithPaperLock(paperID, func() error {
			tracker.UpdateStage(models.StageAudioGenerated, 5, "开始装配视频")

			imagePaths := make([]string, 0, len(ws.ImageFiles))
			for _, f := range ws.ImageFiles {
				imagePaths = append(imagePaths, h.Store.MediaPath(storage.ProductStory, paperID, f))
			}
			audioPaths := make([]string, 0, len(ws.AudioFiles))
			for _, f := range ws.AudioFiles {
				audioPaths = append(audioPaths, h.Store.MediaPath(storage.ProductStory, paperID, f))
			}

			outPath := h.Store.MediaPath(storage.ProductStory, paperID, "video.mp4")
			opts := services.AssembleOptions{
				BackgroundMusic: backgroundMusic,
				TitleCard:       titleCard,
				Transition:      transition,
				Width:           1280,
				Height:          720,
			}

			if err := h.VideoService.AssembleVideo(ctx, ws.Script, imagePaths, audioPaths, outPath, opts); err != nil {
				return err
			}

			ws.VideoFile = "video.mp4"
			ws.Stage = models.StageVideoGenerated
			if err := h.Store.SaveStory(ws); err != nil {
				return err
			}

			h.Metrics.RecordPipelineStage("storytelling", string(models.StageVideoGenerated), time.Since(started))
			utils.GetLogger().Stagef(storage.ProductStory, paperID, string(models.StageVideoGenerated),
				"叙事视频装配完成，共 %d 个场景", len(ws.Script.Scenes))
			tracker.UpdateStage(models.StageVideoGenerated, 100, "视频装配完成")
			return nil
		})

		if err != nil {
			tracker.Fail(err.Error())
			return
		}
		tracker.Complete("视频已生成")
	}()

	h.Response.Accepted(c, gin.H{
		"task_id":  taskID,
		"paper_id": paperID,
	})
}

// GetStoryVideo 下载最终视频文件
func (h *Handler) GetStoryVideo(c *gin.Context) {
	paperID := c.Param("id")

	ws := h.loadStoryWorkspace(paperID)
	if ws.VideoFile == "" {
		h.Response.NotFound(c, "视频", "论文ID: "+paperID)
		return
	}

	h.serveMediaFile(c, storage.ProductStory, paperID, ws.VideoFile)
}

// GetStoryImageFile 下载场景图像文件
func (h *Handler) GetStoryImageFile(c *gin.Context) {
	h.serveMediaFile(c, storage.ProductStory, c.Param("id"), c.Param("file"))
}

// GetStoryStatus 查询叙事视频管线状态
func (h *Handler) GetStoryStatus(c *gin.Context) {
	paperID := c.Param("id")
	ws := h.loadStoryWorkspace(paperID)

	h.Response.Success(c, gin.H{
		"paper_id":    paperID,
		"stage":       ws.Stage,
		"scene_count": ws.Script.SceneCount(),
		"image_files": ws.ImageFiles,
		"audio_files": ws.AudioFiles,
		"video_file":  ws.VideoFile,
		"updated_at":  ws.UpdatedAt,
	})
}

// ========================================
// 任务进度 WebSocket
// ========================================

// TaskWebSocket 订阅任务进度的 WebSocket 端点
func (h *Handler) TaskWebSocket(c *gin.Context) {
	taskID := c.Param("id")

	tracker, exists := h.ProgressService.GetTracker(taskID)
	if !exists {
		h.Response.NotFound(c, "任务", "任务ID: "+taskID)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Errorf("WebSocket 升级失败: %v", err)
		return
	}

	client := &WebSocketClient{
		conn:      &WebSocketConnWrapper{Conn: conn},
		taskID:    taskID,
		send:      make(chan []byte, 64),
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}

	wsManager.register <- client

	go client.writePump()
	go client.readPump()

	// 转发进度更新，终态后关闭连接
	go func() {
		updates := tracker.Subscribe()
		defer tracker.Unsubscribe(updates)

		for update := range updates {
			client.SendMessage(map[string]interface{}{
				"type":     "progress",
				"task_id":  taskID,
				"progress": update.Progress,
				"stage":    update.Stage,
				"message":  update.Message,
				"status":   update.Status,
			})

			if update.Status == "completed" || update.Status == "failed" {
				time.Sleep(100 * time.Millisecond) // 给写循环时间刷出终态消息
				client.Close()
				return
			}
		}
	}()
}

// GetWebSocketStatus 获取 WebSocket 连接状态（调试用）
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	status := wsManager.GetStatus()
	status["ping_timeout_seconds"] = int(wsManager.pingTimeout.Seconds())
	status["timestamp"] = time.Now().Format(time.RFC3339)

	c.JSON(http.StatusOK, status)
}

// ========================================
// 配置健康与指标
// ========================================

// GetConfigHealth 配置健康检查
func (h *Handler) GetConfigHealth(c *gin.Context) {
	cfg := h.ConfigService.GetCurrentConfig()
	ready, state := h.LLMService.GetProviderStatus()

	issues := []string{}
	if cfg == nil {
		issues = append(issues, "配置未加载")
	}
	if !ready {
		issues = append(issues, "LLM服务未就绪: "+state)
	}
	if !h.TTSService.IsConfigured() {
		issues = append(issues, "语音合成密钥未配置")
	}

	if len(issues) > 0 {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorConfigUnhealthy,
			"配置存在问题", strings.Join(issues, "; "))
		return
	}

	h.Response.Success(c, gin.H{
		"healthy":  true,
		"provider": h.LLMService.GetProviderName(),
	})
}

// GetConfigMetrics 获取运行指标
func (h *Handler) GetConfigMetrics(c *gin.Context) {
	h.Response.Success(c, utils.GetMetricsCollector().GetMetrics())
}

// GetConfigHistory 获取最近的配置变更记录
func (h *Handler) GetConfigHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.Response.BadRequest(c, "limit 必须是非负整数")
			return
		}
		limit = parsed
	}

	history := h.ConfigService.GetChangeHistory(limit)
	h.Response.Success(c, gin.H{
		"history": history,
		"count":   len(history),
	})
}

// SetDebugMode 开关调试模式并持久化
func (h *Handler) SetDebugMode(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	if err := h.ConfigService.SetDebugMode(*req.Enabled); err != nil {
		h.Response.InternalError(c, "更新调试模式失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"debug_mode": *req.Enabled}, "调试模式已更新")
}

// ========================================
// 内部辅助
// ========================================

// loadPodcastWorkspace 加载播客工作区，不存在时返回空记录
func (h *Handler) loadPodcastWorkspace(paperID string) *models.PodcastWorkspace {
	ws, err := h.Store.LoadPodcast(paperID)
	if err != nil {
		return &models.PodcastWorkspace{PaperID: paperID, Stage: models.StageNone}
	}
	return ws
}

// loadStoryWorkspace 加载叙事视频工作区，不存在时返回空记录
func (h *Handler) loadStoryWorkspace(paperID string) *models.StoryWorkspace {
	ws, err := h.Store.LoadStory(paperID)
	if err != nil {
		return &models.StoryWorkspace{PaperID: paperID, Stage: models.StageNone}
	}
	return ws
}

// serveMediaFile 校验文件名后下发媒体文件
func (h *Handler) serveMediaFile(c *gin.Context, product, paperID, filename string) {
	// 拒绝路径穿越
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		h.Response.BadRequest(c, "非法的文件名", filename)
		return
	}

	path := h.Store.MediaPath(product, paperID, filename)
	if _, err := os.Stat(path); err != nil {
		h.Response.NotFound(c, "file", "文件: "+filename)
		return
	}

	c.File(path)
}

// sanitizeTaskComponent 把论文ID转成可安全嵌入任务ID的形式
func sanitizeTaskComponent(paperID string) string {
	return strings.ReplaceAll(paperID, "/", "_")
}

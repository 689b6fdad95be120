// internal/services/image_service.go
package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Corphon/PaperStudioMCP/internal/credential"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/utils"

	"github.com/fogleman/gg"
)

const imageGenEndpoint = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0"

// gradientPalette 渐变两端的颜色
type gradientPalette struct {
	Keywords []string
	Top      [3]float64
	Bottom   [3]float64
}

// 关键词调色板，按序匹配，首个命中生效
var palettes = []gradientPalette{
	{Keywords: []string{"brain", "neural", "ai", "intelligence"}, Top: [3]float64{0.16, 0.24, 0.62}, Bottom: [3]float64{0.47, 0.18, 0.62}},
	{Keywords: []string{"justice", "legal", "law", "court"}, Top: [3]float64{0.72, 0.55, 0.12}, Bottom: [3]float64{0.42, 0.30, 0.05}},
	{Keywords: []string{"graph", "data", "chart", "statistics"}, Top: [3]float64{0.04, 0.45, 0.48}, Bottom: [3]float64{0.02, 0.23, 0.30}},
	{Keywords: []string{"world", "map", "global", "earth"}, Top: [3]float64{0.10, 0.35, 0.65}, Bottom: [3]float64{0.08, 0.48, 0.33}},
	{Keywords: []string{"future", "science", "quantum", "space"}, Top: [3]float64{0.40, 0.15, 0.60}, Bottom: [3]float64{0.78, 0.30, 0.55}},
}

var defaultPalette = gradientPalette{
	Top:    [3]float64{0.85, 0.50, 0.25},
	Bottom: [3]float64{0.55, 0.20, 0.30},
}

// imageCacheEntry 缓存sidecar的内容
type imageCacheEntry struct {
	Prompt    string `json:"prompt"`
	ImagePath string `json:"image_path"`
	Provider  string `json:"provider"`
}

// ImageService 场景图像生成
//
// 永不失败契约：后端不可用或出错时退回程序生成的渐变占位图，
// 调用方总能拿到一张可用的图像。
type ImageService struct {
	pool     *credential.Pool
	cacheDir string
	client   *http.Client
}

// NewImageService 创建图像服务，cacheDir 下存放 <md5>.png 和同名sidecar
func NewImageService(pool *credential.Pool, cacheDir string) (*ImageService, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("创建图像缓存目录失败: %w", err)
	}
	return &ImageService{
		pool:     pool,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Generate 生成一张场景图像写入 outPath，返回实际使用的提供方
//
// 顺序：缓存 -> 外部后端 -> 渐变占位图。
func (s *ImageService) Generate(ctx context.Context, prompt, outPath string, width, height int) string {
	logger := utils.GetLogger()

	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}

	hash := fmt.Sprintf("%x", md5.Sum([]byte(prompt)))
	cachedImage := filepath.Join(s.cacheDir, hash+".png")
	sidecar := filepath.Join(s.cacheDir, hash+".json")

	// 缓存命中：sidecar与图像都在才算
	if entry := s.loadSidecar(sidecar); entry != nil {
		if data, err := os.ReadFile(cachedImage); err == nil {
			if err := os.WriteFile(outPath, data, 0644); err == nil {
				logger.Debugf("图像缓存命中: %s", hash[:8])
				return entry.Provider
			}
		}
	}

	provider := "placeholder"
	data, err := s.generateExternal(ctx, prompt)
	if err != nil {
		if s.pool.Size(credential.CapabilityImage) > 0 {
			logger.Warnf("外部图像后端失败，退回占位图: %v", err)
		}
		data, err = s.renderPlaceholder(prompt, width, height)
		if err != nil {
			// 占位图渲染也失败时写一个最小的空图像是没有意义的，记录后返回
			logger.Errorf("占位图渲染失败: %v", err)
			return provider
		}
	} else {
		provider = "huggingface"
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		logger.Errorf("写入图像失败: %v", err)
		return provider
	}

	// 写入缓存，失败不影响结果
	if err := os.WriteFile(cachedImage, data, 0644); err == nil {
		entry := imageCacheEntry{Prompt: prompt, ImagePath: cachedImage, Provider: provider}
		if encoded, err := json.MarshalIndent(entry, "", "  "); err == nil {
			os.WriteFile(sidecar, encoded, 0644)
		}
	}

	return provider
}

func (s *ImageService) loadSidecar(path string) *imageCacheEntry {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entry imageCacheEntry
	if json.Unmarshal(data, &entry) != nil {
		return nil
	}
	return &entry
}

// generateExternal 调用外部文生图后端
func (s *ImageService) generateExternal(ctx context.Context, prompt string) ([]byte, error) {
	apiKey, err := s.pool.Current(credential.CapabilityImage)
	if err != nil {
		return nil, err
	}

	requestBody, err := json.Marshal(map[string]string{"inputs": prompt})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", imageGenEndpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("图像后端返回状态 %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("图像后端返回空数据")
	}

	return data, nil
}

// renderPlaceholder 按提示词关键词渲染渐变占位图
func (s *ImageService) renderPlaceholder(prompt string, width, height int) ([]byte, error) {
	palette := paletteFor(prompt)

	dc := gg.NewContext(width, height)

	grad := gg.NewLinearGradient(0, 0, 0, float64(height))
	grad.AddColorStop(0, floatColor(palette.Top))
	grad.AddColorStop(1, floatColor(palette.Bottom))
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	// 半透明圆环增加层次
	dc.SetRGBA(1, 1, 1, 0.08)
	dc.SetLineWidth(float64(height) / 40)
	cx, cy := float64(width)*0.75, float64(height)*0.3
	for r := float64(height) / 8; r < float64(height)/2; r += float64(height) / 8 {
		dc.DrawCircle(cx, cy, r)
		dc.Stroke()
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func floatColor(c [3]float64) color.Color {
	return color.RGBA{
		R: uint8(c[0] * 255),
		G: uint8(c[1] * 255),
		B: uint8(c[2] * 255),
		A: 255,
	}
}

func paletteFor(prompt string) gradientPalette {
	lower := strings.ToLower(prompt)
	for _, p := range palettes {
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				return p
			}
		}
	}
	return defaultPalette
}

// GenerateBatch 为每个场景生成图像，返回图像文件名与结构化批结果
//
// 占位图也算成功（永不失败契约）；Failed 记录退回占位图的后端失败，
// 用于观测而非中断管线。
func (s *ImageService) GenerateBatch(ctx context.Context, scenes []models.Scene, dir string) ([]string, *models.BatchResult) {
	result := &models.BatchResult{Failed: make(map[int]string)}
	files := make([]string, 0, len(scenes))

	for i := range scenes {
		filename := fmt.Sprintf("scene_%02d.png", scenes[i].SceneNumber)
		outPath := filepath.Join(dir, filename)

		provider := s.Generate(ctx, ScenePrompt(&scenes[i]), outPath, 1280, 720)

		files = append(files, filename)
		result.Succeeded = append(result.Succeeded, i)

		if provider == "placeholder" && s.pool.Size(credential.CapabilityImage) > 0 {
			result.Failed[i] = "外部后端失败，已退回占位图"
		}
	}

	return files, result
}

// internal/services/image_service_test.go
package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Corphon/PaperStudioMCP/internal/credential"
	"github.com/Corphon/PaperStudioMCP/internal/models"
)

func newTestImageService(t *testing.T) *ImageService {
	t.Helper()
	svc, err := NewImageService(credential.NewPool(), filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("创建图像服务失败: %v", err)
	}
	return svc
}

func TestGeneratePlaceholderWithoutCredentials(t *testing.T) {
	svc := newTestImageService(t)
	outPath := filepath.Join(t.TempDir(), "scene.png")

	provider := svc.Generate(context.Background(), "a glowing neural network", outPath, 320, 180)

	if provider != "placeholder" {
		t.Errorf("无凭证时应使用占位图, 实际 %q", provider)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("占位图未写入: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("输出不是PNG格式")
	}
}

func TestGenerateUsesCache(t *testing.T) {
	svc := newTestImageService(t)
	dir := t.TempDir()

	first := filepath.Join(dir, "first.png")
	second := filepath.Join(dir, "second.png")

	if p := svc.Generate(context.Background(), "quantum computing visual", first, 320, 180); p != "placeholder" {
		t.Fatalf("首次生成应为占位图, 实际 %q", p)
	}
	if p := svc.Generate(context.Background(), "quantum computing visual", second, 320, 180); p != "placeholder" {
		t.Errorf("缓存命中应返回缓存的提供方, 实际 %q", p)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("读取首次输出失败: %v", err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("读取二次输出失败: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("同一提示词的两次生成应来自缓存且字节一致")
	}
}

func TestPaletteFor(t *testing.T) {
	neural := paletteFor("a neural network diagram")
	legal := paletteFor("Justice system reform")
	fallback := paletteFor("nothing matches here")

	if neural.Top == fallback.Top {
		t.Errorf("命中关键词应使用专属调色板")
	}
	if legal.Top == neural.Top {
		t.Errorf("不同关键词应命中不同调色板")
	}
	if fallback.Top != defaultPalette.Top {
		t.Errorf("无关键词应使用默认调色板")
	}
}

func TestGenerateBatch(t *testing.T) {
	svc := newTestImageService(t)
	dir := t.TempDir()

	scenes := []models.Scene{
		{SceneNumber: 1, VisualDescription: "opening shot", VisualStyle: models.StyleEducational},
		{SceneNumber: 2, VisualDescription: "closing shot", VisualStyle: models.StyleEducational},
	}

	files, result := svc.GenerateBatch(context.Background(), scenes, dir)

	if len(files) != 2 {
		t.Fatalf("应生成2个文件, 实际 %d", len(files))
	}
	if files[0] != "scene_01.png" || files[1] != "scene_02.png" {
		t.Errorf("文件名不符合约定: %v", files)
	}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("图像文件缺失 %s: %v", f, err)
		}
	}

	// 占位图也算成功；无图像凭证时不记为后端失败
	if !result.AllSucceeded() {
		t.Errorf("占位图批次应全部成功: %+v", result)
	}
	if len(result.Failed) != 0 {
		t.Errorf("无凭证时不应记录后端失败: %v", result.Failed)
	}
}

// internal/storage/workspace_store_test.go
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/PaperStudioMCP/internal/models"
)

func newTestStore(t *testing.T) WorkspaceStore {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	return NewWorkspaceStore(fs)
}

func TestPaperRoundTrip(t *testing.T) {
	store := newTestStore(t)

	paper := &models.Paper{
		ID:       "1706.03762",
		Source:   models.PaperSourceArxiv,
		ArxivID:  "1706.03762",
		Title:    "Attention Is All You Need",
		Abstract: "The dominant sequence transduction models...",
		Authors:  []string{"Ashish Vaswani"},
	}

	if err := store.SavePaper(paper); err != nil {
		t.Fatalf("保存论文失败: %v", err)
	}

	loaded, err := store.LoadPaper("1706.03762")
	if err != nil {
		t.Fatalf("读取论文失败: %v", err)
	}
	if loaded.Title != paper.Title || loaded.ArxivID != paper.ArxivID {
		t.Errorf("读回的论文不一致: %+v", loaded)
	}
	if len(loaded.Authors) != 1 || loaded.Authors[0] != "Ashish Vaswani" {
		t.Errorf("作者字段丢失: %v", loaded.Authors)
	}
}

func TestSavePaperRequiresID(t *testing.T) {
	store := newTestStore(t)

	if err := store.SavePaper(&models.Paper{}); err == nil {
		t.Errorf("缺ID的论文应拒绝保存")
	}
	if err := store.SavePaper(nil); err == nil {
		t.Errorf("nil论文应拒绝保存")
	}
}

func TestPodcastWorkspaceRoundTrip(t *testing.T) {
	store := newTestStore(t)

	ws := &models.PodcastWorkspace{
		PaperID: "2301.12345",
		Stage:   models.StageScriptGenerated,
		Script: &models.PodcastScript{
			PaperID:  "2301.12345",
			Title:    "Some Paper",
			Language: "en",
			Turns: []models.DialogueTurn{
				{Role: models.RoleTeacher, Text: "Hello."},
				{Role: models.RoleStudent, Text: "Hi."},
			},
		},
	}

	before := time.Now()
	if err := store.SavePodcast(ws); err != nil {
		t.Fatalf("保存播客工作区失败: %v", err)
	}
	if ws.UpdatedAt.Before(before) {
		t.Errorf("保存应刷新更新时间")
	}

	loaded, err := store.LoadPodcast("2301.12345")
	if err != nil {
		t.Fatalf("读取播客工作区失败: %v", err)
	}
	if loaded.Stage != models.StageScriptGenerated {
		t.Errorf("阶段 = %q", loaded.Stage)
	}
	if loaded.Script == nil || len(loaded.Script.Turns) != 2 {
		t.Errorf("脚本读回不完整: %+v", loaded.Script)
	}
}

func TestStoryWorkspaceRoundTrip(t *testing.T) {
	store := newTestStore(t)

	ws := &models.StoryWorkspace{
		PaperID:    "2301.12345",
		Stage:      models.StageImagesGenerated,
		ImageFiles: []string{"scene_01.png", "scene_02.png"},
		Voice:      "female",
		Script: &models.NarrativeScript{
			PaperID: "2301.12345",
			Scenes: []models.Scene{
				{SceneNumber: 1, Narration: "a", Duration: 10},
			},
		},
	}

	if err := store.SaveStory(ws); err != nil {
		t.Fatalf("保存叙事工作区失败: %v", err)
	}

	loaded, err := store.LoadStory("2301.12345")
	if err != nil {
		t.Fatalf("读取叙事工作区失败: %v", err)
	}
	if len(loaded.ImageFiles) != 2 || loaded.Voice != "female" {
		t.Errorf("工作区读回不完整: %+v", loaded)
	}
}

func TestLoadMissingWorkspace(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.LoadPodcast("no-such-paper"); err == nil {
		t.Errorf("不存在的工作区应返回错误")
	}
}

func TestOldStyleIDSanitized(t *testing.T) {
	store := newTestStore(t)

	// 旧式arXiv编号（含斜杠）不应被当成子目录
	ws := &models.PodcastWorkspace{PaperID: "cs/0112017", Stage: models.StageNone}
	if err := store.SavePodcast(ws); err != nil {
		t.Fatalf("保存旧式编号工作区失败: %v", err)
	}

	loaded, err := store.LoadPodcast("cs/0112017")
	if err != nil {
		t.Fatalf("读取旧式编号工作区失败: %v", err)
	}
	if loaded.PaperID != "cs/0112017" {
		t.Errorf("记录中的编号应保持原样: %q", loaded.PaperID)
	}
}

func TestMediaDirAndPath(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	store := NewWorkspaceStore(fs)

	dir, err := store.MediaDir(ProductStory, "2301.12345")
	if err != nil {
		t.Fatalf("创建媒体目录失败: %v", err)
	}
	if !strings.HasPrefix(dir, fs.BaseDir) {
		t.Errorf("媒体目录应在存储根下: %q", dir)
	}

	path := store.MediaPath(ProductStory, "2301.12345", "video.mp4")
	if path != filepath.Join(dir, "video.mp4") {
		t.Errorf("媒体文件路径 = %q, 期望在 %q 下", path, dir)
	}
}

func TestListPapers(t *testing.T) {
	store := newTestStore(t)

	if papers, err := store.ListPapers(); err != nil || papers != nil {
		t.Fatalf("空存储应返回空列表, 实际 %v, %v", papers, err)
	}

	if err := store.SavePaper(&models.Paper{ID: "2301.00001", Title: "First"}); err != nil {
		t.Fatalf("保存论文失败: %v", err)
	}
	if err := store.SavePaper(&models.Paper{ID: "2301.00002", Title: "Second"}); err != nil {
		t.Fatalf("保存论文失败: %v", err)
	}
	if err := store.SavePodcast(&models.PodcastWorkspace{
		PaperID: "2301.00001",
		Stage:   models.StageScriptGenerated,
	}); err != nil {
		t.Fatalf("保存播客工作区失败: %v", err)
	}

	papers, err := store.ListPapers()
	if err != nil {
		t.Fatalf("列出论文失败: %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("应列出2篇论文, 实际 %d", len(papers))
	}

	byID := make(map[string]models.PaperSummary, len(papers))
	for _, p := range papers {
		byID[p.PaperID] = p
	}

	first, ok := byID["2301.00001"]
	if !ok || first.Title != "First" {
		t.Fatalf("第一篇论文缺失或标题错误: %+v", first)
	}
	if len(first.Products) != 1 || first.Products[0] != ProductPodcast {
		t.Errorf("第一篇应带播客工作区: %v", first.Products)
	}
	if second := byID["2301.00002"]; len(second.Products) != 0 {
		t.Errorf("第二篇不应有产品工作区: %v", second.Products)
	}
}

func TestDeletePaper(t *testing.T) {
	store := newTestStore(t)

	paperID := "2301.00003"
	if err := store.SavePaper(&models.Paper{ID: paperID, Title: "Doomed"}); err != nil {
		t.Fatalf("保存论文失败: %v", err)
	}
	if err := store.SavePodcast(&models.PodcastWorkspace{
		PaperID: paperID,
		Stage:   models.StageScriptGenerated,
	}); err != nil {
		t.Fatalf("保存播客工作区失败: %v", err)
	}

	mediaPath := store.MediaPath(ProductPodcast, paperID, "podcast.wav")
	if err := os.WriteFile(mediaPath, []byte("RIFF"), 0644); err != nil {
		t.Fatalf("写入媒体文件失败: %v", err)
	}

	if err := store.DeletePaper(paperID); err != nil {
		t.Fatalf("删除论文失败: %v", err)
	}

	if _, err := store.LoadPaper(paperID); err == nil {
		t.Errorf("删除后论文记录不应还能读到")
	}
	if _, err := os.Stat(mediaPath); !os.IsNotExist(err) {
		t.Errorf("删除后媒体文件不应存在")
	}
	if _, err := store.LoadPodcast(paperID); err == nil {
		t.Errorf("删除后工作区不应还能读到")
	}
}

func TestDeletePaperMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.DeletePaper("2301.99999")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("不存在的论文应返回 os.ErrNotExist, 实际 %v", err)
	}
}

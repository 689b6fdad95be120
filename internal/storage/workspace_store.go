// internal/storage/workspace_store.go
package storage

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Corphon/PaperStudioMCP/internal/models"
)

// WorkspaceStore 管线工作区记录的读写接口
//
// 上层编排只依赖这个接口，文件布局是实现细节。
type WorkspaceStore interface {
	SavePaper(paper *models.Paper) error
	LoadPaper(paperID string) (*models.Paper, error)
	ListPapers() ([]models.PaperSummary, error)

	// DeletePaper 删除论文记录与它的全部产品工作区；
	// 什么都不存在时包装 os.ErrNotExist 返回
	DeletePaper(paperID string) error

	SavePodcast(ws *models.PodcastWorkspace) error
	LoadPodcast(paperID string) (*models.PodcastWorkspace, error)

	SaveStory(ws *models.StoryWorkspace) error
	LoadStory(paperID string) (*models.StoryWorkspace, error)

	// MediaDir 返回某产品某论文的媒体文件目录（绝对路径），目录会被创建
	MediaDir(product, paperID string) (string, error)

	// MediaPath 返回媒体目录下某个文件的绝对路径，不做存在性检查
	MediaPath(product, paperID, filename string) string
}

// 产品目录名
const (
	ProductPodcast = "podcasts"
	ProductStory   = "storytelling"
	paperDir       = "papers"
	recordFile     = "record.json"
)

// fileWorkspaceStore 基于 FileStorage 的实现
type fileWorkspaceStore struct {
	fs *FileStorage
}

// NewWorkspaceStore 创建文件工作区存储
func NewWorkspaceStore(fs *FileStorage) WorkspaceStore {
	return &fileWorkspaceStore{fs: fs}
}

// sanitizeID 把论文ID转成安全的目录名（arXiv旧式ID含 "/"）
func sanitizeID(paperID string) string {
	return strings.ReplaceAll(paperID, "/", "_")
}

func (s *fileWorkspaceStore) SavePaper(paper *models.Paper) error {
	if paper == nil || paper.ID == "" {
		return fmt.Errorf("论文记录缺少ID")
	}
	return s.fs.SaveJSONFile(paperDir, sanitizeID(paper.ID)+".json", paper)
}

func (s *fileWorkspaceStore) LoadPaper(paperID string) (*models.Paper, error) {
	var paper models.Paper
	if err := s.fs.LoadJSONFile(paperDir, sanitizeID(paperID)+".json", &paper); err != nil {
		return nil, err
	}
	return &paper, nil
}

func (s *fileWorkspaceStore) ListPapers() ([]models.PaperSummary, error) {
	if !s.fs.DirExists(paperDir) {
		return nil, nil
	}

	files, err := s.fs.ListFiles(paperDir)
	if err != nil {
		return nil, err
	}

	// 产品目录名 -> 已有工作区的论文目录集合
	workspaces := make(map[string]map[string]bool)
	for _, product := range []string{ProductPodcast, ProductStory} {
		if !s.fs.DirExists(product) {
			continue
		}
		dirs, err := s.fs.ListDirs(product)
		if err != nil {
			continue
		}
		set := make(map[string]bool, len(dirs))
		for _, d := range dirs {
			set[d] = true
		}
		workspaces[product] = set
	}

	var papers []models.PaperSummary
	for _, f := range files {
		if !strings.HasSuffix(f, ".json") {
			continue
		}

		var paper models.Paper
		if err := s.fs.LoadJSONFile(paperDir, f, &paper); err != nil {
			continue
		}

		summary := models.PaperSummary{PaperID: paper.ID, Title: paper.Title}
		for _, product := range []string{ProductPodcast, ProductStory} {
			if workspaces[product][sanitizeID(paper.ID)] {
				summary.Products = append(summary.Products, product)
			}
		}
		papers = append(papers, summary)
	}

	return papers, nil
}

func (s *fileWorkspaceStore) DeletePaper(paperID string) error {
	recordName := sanitizeID(paperID) + ".json"

	deleted := false
	if s.fs.FileExists(paperDir, recordName) {
		if err := s.fs.DeleteFile(paperDir, recordName); err != nil {
			return err
		}
		deleted = true
	}

	for _, product := range []string{ProductPodcast, ProductStory} {
		dir := productPath(product, paperID)
		if !s.fs.DirExists(dir) {
			continue
		}
		if err := s.fs.DeleteDir(dir); err != nil {
			return err
		}
		deleted = true
	}

	if !deleted {
		return fmt.Errorf("论文 %s: %w", paperID, os.ErrNotExist)
	}

	return nil
}

func (s *fileWorkspaceStore) SavePodcast(ws *models.PodcastWorkspace) error {
	if ws == nil || ws.PaperID == "" {
		return fmt.Errorf("播客工作区缺少论文ID")
	}
	ws.UpdatedAt = time.Now()
	return s.fs.SaveJSONFile(productPath(ProductPodcast, ws.PaperID), recordFile, ws)
}

func (s *fileWorkspaceStore) LoadPodcast(paperID string) (*models.PodcastWorkspace, error) {
	var ws models.PodcastWorkspace
	if err := s.fs.LoadJSONFile(productPath(ProductPodcast, paperID), recordFile, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *fileWorkspaceStore) SaveStory(ws *models.StoryWorkspace) error {
	if ws == nil || ws.PaperID == "" {
		return fmt.Errorf("叙事视频工作区缺少论文ID")
	}
	ws.UpdatedAt = time.Now()
	return s.fs.SaveJSONFile(productPath(ProductStory, ws.PaperID), recordFile, ws)
}

func (s *fileWorkspaceStore) LoadStory(paperID string) (*models.StoryWorkspace, error) {
	var ws models.StoryWorkspace
	if err := s.fs.LoadJSONFile(productPath(ProductStory, paperID), recordFile, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *fileWorkspaceStore) MediaDir(product, paperID string) (string, error) {
	dir := s.fs.FullPath(productPath(product, paperID), "")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建媒体目录失败: %w", err)
	}
	return dir, nil
}

func (s *fileWorkspaceStore) MediaPath(product, paperID, filename string) string {
	return s.fs.FullPath(productPath(product, paperID), filename)
}

func productPath(product, paperID string) string {
	return product + "/" + sanitizeID(paperID)
}

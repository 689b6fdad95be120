// internal/services/paper_service.go
package services

import (
	"context"
	"time"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/storage"
	"github.com/Corphon/PaperStudioMCP/internal/utils"

	gocache "github.com/patrickmn/go-cache"
)

// PaperService 论文记录的统一入口：获取、上传、读取
//
// 内存缓存只是文件存储前的加速层，进程重启后从磁盘恢复。
type PaperService struct {
	arxiv  *ArxivService
	upload *UploadService
	store  storage.WorkspaceStore
	cache  *gocache.Cache
}

// NewPaperService 创建论文服务
func NewPaperService(arxiv *ArxivService, upload *UploadService, store storage.WorkspaceStore) *PaperService {
	return &PaperService{
		arxiv:  arxiv,
		upload: upload,
		store:  store,
		cache:  gocache.New(time.Hour, 15*time.Minute),
	}
}

// FetchFromArxiv 按链接或编号获取论文：缓存 -> 磁盘 -> arXiv
func (s *PaperService) FetchFromArxiv(ctx context.Context, rawURL string) (*models.Paper, error) {
	arxivID, err := ExtractArxivID(rawURL)
	if err != nil {
		return nil, err
	}

	if paper := s.lookup(arxivID); paper != nil {
		return paper, nil
	}

	paper, err := s.arxiv.FetchMetadata(ctx, arxivID)
	if err != nil {
		return nil, err
	}

	if err := s.arxiv.FetchContent(ctx, paper); err != nil {
		return nil, err
	}

	if err := s.store.SavePaper(paper); err != nil {
		return nil, err
	}
	s.cache.Set(paper.ID, paper, gocache.DefaultExpiration)

	utils.GetLogger().Infof("论文已获取: %s (%s, %d 字符正文)", paper.ID, paper.Title, len(paper.Content))

	return paper, nil
}

// SaveUploaded 处理上传文件并持久化论文记录
func (s *PaperService) SaveUploaded(filename, title string, data []byte) (*models.Paper, error) {
	paper, err := s.upload.ProcessUpload(filename, title, data)
	if err != nil {
		return nil, err
	}

	if err := s.store.SavePaper(paper); err != nil {
		return nil, err
	}
	s.cache.Set(paper.ID, paper, gocache.DefaultExpiration)

	utils.GetLogger().Infof("上传论文已保存: %s (%s)", paper.ID, paper.Title)

	return paper, nil
}

// Get 读取论文记录，不存在时返回 NotFound
func (s *PaperService) Get(paperID string) (*models.Paper, error) {
	if paper := s.lookup(paperID); paper != nil {
		return paper, nil
	}
	return nil, apperrors.NewNotFoundError("论文不存在: "+paperID, nil)
}

func (s *PaperService) lookup(paperID string) *models.Paper {
	if cached, found := s.cache.Get(paperID); found {
		return cached.(*models.Paper)
	}

	paper, err := s.store.LoadPaper(paperID)
	if err != nil {
		return nil
	}
	s.cache.Set(paperID, paper, gocache.DefaultExpiration)
	return paper
}

// ValidateURL 只校验链接能否识别出 arXiv 编号
func (s *PaperService) ValidateURL(rawURL string) (string, error) {
	return ExtractArxivID(rawURL)
}

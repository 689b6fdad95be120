// internal/services/arxiv_service.go
package services

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/utils"

	"github.com/ledongthuc/pdf"
)

const arxivAPIBase = "http://export.arxiv.org/api/query"

// 识别 arXiv 链接或裸编号；同时兼容新式(2301.12345)与旧式(cs/0112017)编号
var (
	arxivURLPattern    = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/([0-9]{4}\.[0-9]{4,5})(?:v[0-9]+)?`)
	arxivOldURLPattern = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/([a-z-]+(?:\.[A-Z]{2})?/[0-9]{7})`)
	arxivBareIDPattern = regexp.MustCompile(`^([0-9]{4}\.[0-9]{4,5})(?:v[0-9]+)?$`)
	arxivOldIDPattern  = regexp.MustCompile(`^[a-z-]+(?:\.[A-Z]{2})?/[0-9]{7}$`)
)

// ArxivService 负责从 arXiv 获取论文元数据与正文
type ArxivService struct {
	client *http.Client
}

// NewArxivService 创建 arXiv 获取服务
func NewArxivService() *ArxivService {
	return &ArxivService{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// ExtractArxivID 从链接或裸编号中提取 arXiv 编号
func ExtractArxivID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", apperrors.NewValidationError("arXiv链接为空", nil)
	}

	if m := arxivURLPattern.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}
	if m := arxivOldURLPattern.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}
	if m := arxivBareIDPattern.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}
	if arxivOldIDPattern.MatchString(input) {
		return input, nil
	}

	return "", apperrors.NewValidationError(
		fmt.Sprintf("无法从 %q 中识别 arXiv 编号", input), nil)
}

// atom API 响应结构
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
		Type  string `xml:"type,attr"`
	} `xml:"link"`
}

// FetchMetadata 调用 arXiv export API 获取论文元数据
func (s *ArxivService) FetchMetadata(ctx context.Context, arxivID string) (*models.Paper, error) {
	query := url.Values{}
	query.Set("id_list", arxivID)
	query.Set("max_results", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", arxivAPIBase+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewFetchError("请求 arXiv API 失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewFetchError(
			fmt.Sprintf("arXiv API 返回状态 %d", resp.StatusCode), nil)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, apperrors.NewFetchError("解析 arXiv API 响应失败", err)
	}

	if len(feed.Entries) == 0 {
		return nil, apperrors.NewNotFoundError(
			fmt.Sprintf("arXiv 上不存在编号 %s", arxivID), nil)
	}

	entry := feed.Entries[0]

	// API 对未知编号可能返回没有标题的占位条目
	title := collapseWhitespace(entry.Title)
	if title == "" || strings.HasPrefix(entry.ID, "http://arxiv.org/api/errors") {
		return nil, apperrors.NewNotFoundError(
			fmt.Sprintf("arXiv 上不存在编号 %s", arxivID), nil)
	}

	paper := &models.Paper{
		ID:        arxivID,
		Source:    models.PaperSourceArxiv,
		ArxivID:   arxivID,
		Title:     title,
		Abstract:  collapseWhitespace(entry.Summary),
		Published: entry.Published,
		CreatedAt: time.Now(),
	}

	for _, a := range entry.Authors {
		paper.Authors = append(paper.Authors, a.Name)
	}
	for _, c := range entry.Categories {
		paper.Categories = append(paper.Categories, c.Term)
	}
	for _, l := range entry.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			paper.PDFURL = l.Href
			break
		}
	}
	if paper.PDFURL == "" {
		paper.PDFURL = "https://arxiv.org/pdf/" + arxivID
	}

	return paper, nil
}

// FetchContent 下载PDF并提取正文文本，填充到论文记录
func (s *ArxivService) FetchContent(ctx context.Context, paper *models.Paper) error {
	tmpFile, err := os.CreateTemp("", "arxiv-*.pdf")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := s.downloadTo(ctx, paper.PDFURL, tmpFile); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	text, err := ExtractPDFText(tmpPath)
	if err != nil {
		// PDF解析失败时退回摘要，管线仍可工作
		utils.GetLogger().Warnf("论文 %s 的PDF解析失败，退回使用摘要: %v", paper.ID, err)
		paper.Content = paper.Abstract
		return nil
	}

	paper.Content = text
	return nil
}

func (s *ArxivService) downloadTo(ctx context.Context, fileURL string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NewFetchError("下载PDF失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewFetchError(
			fmt.Sprintf("下载PDF返回状态 %d", resp.StatusCode), nil)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return apperrors.NewFetchError("写入PDF失败", err)
	}

	return nil
}

// ExtractPDFText 逐页提取PDF纯文本
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开PDF失败: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("提取PDF文本失败: %w", err)
	}
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("读取PDF文本失败: %w", err)
	}

	text := collapseWhitespace(buf.String())
	if text == "" {
		return "", fmt.Errorf("PDF中没有可提取的文本")
	}

	return text, nil
}

// ExtractPDFMetadata 读取PDF文档属性（Info字典）里的标题与作者
//
// 属性缺失或文档损坏时返回空串，调用方自行退回启发式。
func ExtractPDFMetadata(path string) (title, author string) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return "", ""
	}

	return strings.TrimSpace(info.Key("Title").Text()),
		strings.TrimSpace(info.Key("Author").Text())
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

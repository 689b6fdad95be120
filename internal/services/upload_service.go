// internal/services/upload_service.go
package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"

	"github.com/google/uuid"
)

// UploadService 处理用户上传的论文文件（PDF或LaTeX源码）
type UploadService struct{}

// NewUploadService 创建上传处理服务
func NewUploadService() *UploadService {
	return &UploadService{}
}

// ProcessUpload 解析上传文件，生成带UUID的论文记录
//
// 类型判定优先看文件内容（%PDF魔数），再看扩展名。
func (s *UploadService) ProcessUpload(filename, title string, data []byte) (*models.Paper, error) {
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("上传文件为空", nil)
	}

	paper := &models.Paper{
		ID:        uuid.New().String(),
		Source:    models.PaperSourceUpload,
		Title:     strings.TrimSpace(title),
		CreatedAt: time.Now(),
	}

	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")) || ext == ".pdf":
		if err := s.fillFromPDF(paper, data); err != nil {
			return nil, err
		}
	case ext == ".tex" || ext == ".latex" || looksLikeLaTeX(data):
		s.fillFromLaTeX(paper, data)
	default:
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("不支持的文件类型: %s，仅接受PDF与LaTeX", filename), nil)
	}

	if !paper.HasContent() {
		return nil, apperrors.NewValidationError("文件中没有可提取的文本", nil)
	}

	if paper.Title == "" {
		paper.Title = "Untitled Paper"
	}

	return paper, nil
}

func (s *UploadService) fillFromPDF(paper *models.Paper, data []byte) error {
	tmpFile, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	tmpFile.Close()

	text, err := ExtractPDFText(tmpPath)
	if err != nil {
		return apperrors.NewParseError("PDF解析失败", err)
	}

	paper.Content = text

	metaTitle, metaAuthor := ExtractPDFMetadata(tmpPath)
	applyPDFMetadata(paper, metaTitle, metaAuthor, text)

	return nil
}

// applyPDFMetadata 文档属性优先填充元数据，标题再退回正文首行启发式
//
// 用户在请求里给的标题始终优先于文档属性。
func applyPDFMetadata(paper *models.Paper, metaTitle, metaAuthor, text string) {
	if paper.Title == "" {
		if metaTitle != "" {
			paper.Title = collapseWhitespace(metaTitle)
		} else {
			paper.Title = firstLineHeuristic(text)
		}
	}

	if len(paper.Authors) == 0 && metaAuthor != "" {
		paper.Authors = splitAuthorNames(metaAuthor)
	}
}

// splitAuthorNames 拆分属性里的作者串，常见分隔是逗号、分号或 and
func splitAuthorNames(raw string) []string {
	var names []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }) {
		for _, name := range strings.Split(part, " and ") {
			name = collapseWhitespace(name)
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

func (s *UploadService) fillFromLaTeX(paper *models.Paper, data []byte) {
	src := string(data)

	if paper.Title == "" {
		if m := latexTitlePattern.FindStringSubmatch(src); m != nil {
			paper.Title = collapseWhitespace(StripLaTeX(m[1]))
		}
	}
	if m := latexAuthorPattern.FindStringSubmatch(src); m != nil {
		raw := StripLaTeX(m[1])
		for _, name := range strings.Split(raw, " and ") {
			name = collapseWhitespace(name)
			if name != "" {
				paper.Authors = append(paper.Authors, name)
			}
		}
	}
	if m := latexAbstractPattern.FindStringSubmatch(src); m != nil {
		paper.Abstract = collapseWhitespace(StripLaTeX(m[1]))
	}

	paper.Content = StripLaTeX(src)
}

var (
	latexTitlePattern    = regexp.MustCompile(`\\title\s*\{([^{}]*(?:\{[^{}]*\}[^{}]*)*)\}`)
	latexAuthorPattern   = regexp.MustCompile(`\\author\s*\{([^{}]*(?:\{[^{}]*\}[^{}]*)*)\}`)
	latexAbstractPattern = regexp.MustCompile(`(?s)\\begin\{abstract\}(.*?)\\end\{abstract\}`)

	latexCommentPattern = regexp.MustCompile(`(?m)(^|[^\\])%.*$`)
	latexDisplayMath    = regexp.MustCompile(`(?s)\\\[.*?\\\]|\$\$.*?\$\$`)
	latexInlineMath     = regexp.MustCompile(`\$[^$]*\$|\\\([^)]*\\\)`)
	latexEnvMarker      = regexp.MustCompile(`\\(?:begin|end)\s*\{[^{}]*\}`)
	// 保留参数文本的命令（章节标题、强调等）
	latexUnwrapCommand = regexp.MustCompile(`\\(?:section|subsection|subsubsection|paragraph|textbf|textit|emph|underline|texttt|title|author)\*?\s*\{([^{}]*)\}`)
	latexAnyCommand    = regexp.MustCompile(`\\[a-zA-Z]+\*?(?:\[[^\]]*\])?(?:\{[^{}]*\})?`)
)

// StripLaTeX 把LaTeX源码剥成纯文本
//
// 顺序：注释 -> 数学环境 -> 保留参数的命令 -> 环境标记 -> 其余命令。
// 这是启发式展开而非TeX解析，嵌套超过一层的参数会丢失。
func StripLaTeX(src string) string {
	text := latexCommentPattern.ReplaceAllString(src, "$1")
	text = latexDisplayMath.ReplaceAllString(text, " ")
	text = latexInlineMath.ReplaceAllString(text, " ")

	// 反复展开直到不再变化，处理命令包命令的情况
	for i := 0; i < 5; i++ {
		next := latexUnwrapCommand.ReplaceAllString(text, " $1 ")
		if next == text {
			break
		}
		text = next
	}

	text = latexEnvMarker.ReplaceAllString(text, " ")
	text = latexAnyCommand.ReplaceAllString(text, " ")
	text = strings.NewReplacer("{", " ", "}", " ", "~", " ", "\\\\", " ").Replace(text)

	return collapseWhitespace(text)
}

func looksLikeLaTeX(data []byte) bool {
	head := data
	if len(head) > 2048 {
		head = head[:2048]
	}
	return bytes.Contains(head, []byte(`\documentclass`)) || bytes.Contains(head, []byte(`\begin{document}`))
}

// firstLineHeuristic 取文本开头第一段非空内容作为标题候选
func firstLineHeuristic(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	// 正文已折叠为单行时截取前若干词
	words := strings.Fields(text)
	if len(words) > 12 {
		words = words[:12]
	}
	return strings.Join(words, " ")
}

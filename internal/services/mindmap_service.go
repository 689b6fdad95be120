// internal/services/mindmap_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/utils"
)

// 提示词长度上限，超出部分截断
const outlinePaperTextLimit = 15000

// MindmapService 论文大纲合成与思维导图生成
type MindmapService struct {
	llm *LLMService
}

// NewMindmapService 创建思维导图服务
func NewMindmapService(llm *LLMService) *MindmapService {
	return &MindmapService{llm: llm}
}

// GenerateOutline 单次结构化生成论文大纲
//
// 本方法不做内部重试，凭证轮换由LLM服务层完成。
func (s *MindmapService) GenerateOutline(ctx context.Context, paper *models.Paper, complexity string) (*models.Outline, error) {
	if !paper.HasContent() {
		return nil, apperrors.NewValidationError("论文正文为空，无法生成大纲", nil)
	}

	text := TruncateRunes(paper.Content, outlinePaperTextLimit)

	prompt := fmt.Sprintf(`Analyze this research paper and create a structured outline.

Paper title: %s

Paper content:
%s

Create an outline with EXACTLY these 4 sections: introduction, methodology, results, conclusions.
Each section must contain 3-5 key points.
Each key point must be 1-4 words long. Use short noun phrases, never full sentences.
%s

Output schema:
{
  "title": "short paper title",
  "introduction": ["key point", ...],
  "methodology": ["key point", ...],
  "results": ["key point", ...],
  "conclusions": ["key point", ...]
}`, paper.Title, text, complexityInstruction(complexity))

	var outline models.Outline
	if err := s.llm.CreateStructuredCompletion(ctx, prompt,
		"You are an expert at distilling research papers into concise structured outlines.", &outline); err != nil {
		return nil, err
	}

	cleanOutline(&outline)

	if err := validateOutline(&outline, paper.Title); err != nil {
		return nil, err
	}

	utils.GetLogger().Infof("论文 %s 的大纲已生成，共 %d 个要点", paper.ID, outline.TotalPoints())

	return &outline, nil
}

func complexityInstruction(complexity string) string {
	switch complexity {
	case "easy":
		return "Use simple everyday vocabulary suitable for a general audience."
	case "advanced":
		return "Use precise technical terminology from the paper's field."
	default:
		return "Balance accessibility with technical accuracy."
	}
}

// cleanOutline 规整要点：去空白、超过4个词时截断、丢弃空项
func cleanOutline(o *models.Outline) {
	o.Title = collapseWhitespace(o.Title)

	clean := func(points []string) []string {
		out := make([]string, 0, len(points))
		for _, p := range points {
			p = collapseWhitespace(p)
			if p == "" {
				continue
			}
			words := strings.Fields(p)
			if len(words) > 4 {
				words = words[:4]
			}
			out = append(out, strings.Join(words, " "))
		}
		return out
	}

	o.Introduction = clean(o.Introduction)
	o.Methodology = clean(o.Methodology)
	o.Results = clean(o.Results)
	o.Conclusions = clean(o.Conclusions)
}

// validateOutline 字段层面的校验，缺失时报出具体字段
func validateOutline(o *models.Outline, fallbackTitle string) error {
	if o.Title == "" {
		if fallbackTitle == "" {
			return apperrors.NewSchemaError("大纲缺少 title 字段", nil)
		}
		o.Title = fallbackTitle
	}

	for _, name := range models.SectionNames() {
		if len(o.Section(name)) == 0 {
			return apperrors.NewSchemaError(
				fmt.Sprintf("大纲的 %s 部分没有任何要点", name), nil)
		}
	}

	return nil
}

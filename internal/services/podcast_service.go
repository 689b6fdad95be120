// internal/services/podcast_service.go
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/utils"
)

const (
	podcastPaperTextLimit = 3000
	// 单个回合的词数上限，超出的回合在TTS前拆分
	maxTurnWords = 30
)

// PodcastService 师生对话播客脚本的生成与整理
type PodcastService struct {
	llm *LLMService
}

// NewPodcastService 创建播客服务
func NewPodcastService(llm *LLMService) *PodcastService {
	return &PodcastService{llm: llm}
}

// GenerateScript 生成师生两角色的播客对话脚本
func (s *PodcastService) GenerateScript(ctx context.Context, paper *models.Paper, numExchanges int, language, complexity string) (*models.PodcastScript, error) {
	if !paper.HasContent() {
		return nil, apperrors.NewValidationError("论文正文为空，无法生成播客脚本", nil)
	}

	if numExchanges <= 0 {
		numExchanges = 6
	}
	if language == "" {
		language = "en"
	}
	if complexity == "" {
		complexity = "medium"
	}

	text := TruncateRunes(paper.Content, podcastPaperTextLimit)

	prompt := buildDialoguePrompt(paper.Title, text, numExchanges, language, complexity)

	raw, err := s.llm.CompletePlainText(ctx, prompt,
		"You write natural-sounding educational podcast dialogues.", 0.7)
	if err != nil {
		return nil, err
	}

	turns := ParseDialogue(raw)
	if len(turns) == 0 {
		return nil, apperrors.NewGenerationError("模型没有返回任何可用的对话回合", nil)
	}

	script := &models.PodcastScript{
		PaperID:    paper.ID,
		Title:      paper.Title,
		Language:   language,
		Complexity: complexity,
		Turns:      turns,
		CreatedAt:  time.Now(),
	}

	utils.GetLogger().Infof("论文 %s 的播客脚本已生成，共 %d 个回合", paper.ID, len(turns))

	return script, nil
}

func buildDialoguePrompt(title, text string, numExchanges int, language, complexity string) string {
	var complexityBlock string
	switch complexity {
	case "easy":
		complexityBlock = "Use simple language a high-school student would understand. Avoid jargon entirely; explain ideas with everyday analogies."
	case "advanced":
		complexityBlock = "Use precise technical terminology. The student asks sharp, graduate-level questions and the teacher answers with full rigor."
	default:
		complexityBlock = "Balance accessibility with technical depth. Define technical terms briefly when they first appear."
	}

	languageBlock := ""
	if language != "en" {
		languageBlock = fmt.Sprintf("\nWrite the entire dialogue in the language with ISO code %q.", language)
	}

	return fmt.Sprintf(`Create an educational podcast dialogue between a Teacher and a Student about this research paper.

Paper title: %s

Paper content:
%s

Requirements:
- Exactly %d exchanges (one exchange = one Teacher line followed by one Student line).
- Every line starts with "Teacher:" or "Student:" and nothing else.
- Each line is 20-30 words. Never exceed 30 words per line.
- %s%s
- No stage directions, no markdown, no numbering.`,
		title, text, numExchanges, complexityBlock, languageBlock)
}

var (
	dialogueLinePattern = regexp.MustCompile(`^(Teacher|Student)\s*[:：]\s*(.+)$`)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
)

// ParseDialogue 按 "Teacher:"/"Student:" 前缀解析对话，其他行丢弃
func ParseDialogue(raw string) []models.DialogueTurn {
	var turns []models.DialogueTurn

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := dialogueLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		role := models.RoleTeacher
		if m[1] == "Student" {
			role = models.RoleStudent
		}

		text := CleanDialogueText(m[2])
		if text == "" {
			continue
		}

		turns = append(turns, models.DialogueTurn{Role: role, Text: text})
	}

	return turns
}

// CleanDialogueText 清洗单个回合：去引号和markdown痕迹，超过30词截断
func CleanDialogueText(text string) string {
	text = markdownLinkPattern.ReplaceAllString(text, "$1")
	text = strings.NewReplacer(
		`"`, "", "“", "", "”", "",
		"*", "", "_", "", "`", "",
	).Replace(text)
	text = collapseWhitespace(text)

	words := strings.Fields(text)
	if len(words) > maxTurnWords {
		words = words[:maxTurnWords]
	}

	return strings.Join(words, " ")
}

// ChunkForTTS 把超长回合拆成同角色的多个片段
//
// 每个片段不超过 maxWords 个词，片段数为 ceil(词数/maxWords)。
func ChunkForTTS(turns []models.DialogueTurn, maxWords int) []models.DialogueTurn {
	if maxWords <= 0 {
		maxWords = maxTurnWords
	}

	var out []models.DialogueTurn
	for _, turn := range turns {
		words := strings.Fields(turn.Text)
		if len(words) == 0 {
			continue
		}

		for start := 0; start < len(words); start += maxWords {
			end := start + maxWords
			if end > len(words) {
				end = len(words)
			}
			out = append(out, models.DialogueTurn{
				Role: turn.Role,
				Text: strings.Join(words[start:end], " "),
			})
		}
	}

	return out
}

// FallbackScript 模型不可用时基于摘要的保底对话
func (s *PodcastService) FallbackScript(paper *models.Paper, language string) *models.PodcastScript {
	summary := paper.Abstract
	if summary == "" {
		summary = paper.Content
	}
	words := strings.Fields(summary)
	if len(words) > maxTurnWords {
		words = words[:maxTurnWords]
	}

	return &models.PodcastScript{
		PaperID:    paper.ID,
		Title:      paper.Title,
		Language:   language,
		Complexity: "medium",
		Turns: []models.DialogueTurn{
			{Role: models.RoleTeacher, Text: "Today we look at the paper " + CleanDialogueText(paper.Title)},
			{Role: models.RoleStudent, Text: "What is it about?"},
			{Role: models.RoleTeacher, Text: CleanDialogueText(strings.Join(words, " "))},
		},
		CreatedAt: time.Now(),
	}
}

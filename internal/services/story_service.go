// internal/services/story_service.go
package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/utils"
)

const storyPaperTextLimit = 8000

// 场景数边界：视频时长每15秒一个场景，最少5个最多15个
const (
	minScenes = 5
	maxScenes = 15
)

// StoryService 叙事视频脚本的合成与整理
type StoryService struct {
	llm *LLMService
}

// NewStoryService 创建叙事脚本服务
func NewStoryService(llm *LLMService) *StoryService {
	return &StoryService{llm: llm}
}

// SceneCountFor 根据目标时长计算场景数
func SceneCountFor(videoDuration int) int {
	n := videoDuration / 15
	if n < minScenes {
		n = minScenes
	}
	if n > maxScenes {
		n = maxScenes
	}
	return n
}

// GenerateScript 生成叙事视频脚本
func (s *StoryService) GenerateScript(ctx context.Context, paper *models.Paper, videoDuration int, style, complexity string) (*models.NarrativeScript, error) {
	if !paper.HasContent() {
		return nil, apperrors.NewValidationError("论文正文为空，无法生成叙事脚本", nil)
	}

	if videoDuration <= 0 {
		videoDuration = 120
	}
	if style == "" {
		style = models.StyleEducational
	}

	sceneCount := SceneCountFor(videoDuration)

	text := TruncateRunes(paper.Content, storyPaperTextLimit)

	prompt := fmt.Sprintf(`Create a narrated video script that tells the story of this research paper.

Paper title: %s

Paper content:
%s

Requirements:
- Exactly %d scenes, numbered 1 to %d without gaps.
- Style: %s. %s
- %s
- Narration is spoken text only: no markdown, no URLs, no citations.
- visual_description describes a single still image for the scene.

Output schema:
{
  "scenes": [
    {
      "scene_number": 1,
      "duration": 15,
      "narration": "...",
      "visual_description": "...",
      "visual_style": "%s",
      "text_overlay": "short overlay text or empty",
      "transition": "fade"
    }
  ]
}`,
		paper.Title, text, sceneCount, sceneCount,
		style, styleInstruction(style), complexityInstruction(complexity), style)

	var result struct {
		Scenes []models.Scene `json:"scenes"`
	}
	if err := s.llm.CreateStructuredCompletion(ctx, prompt,
		"You are a science communicator who turns research papers into compelling short videos.", &result); err != nil {
		return nil, err
	}

	if len(result.Scenes) == 0 {
		return nil, apperrors.NewSchemaError("脚本中没有任何场景", nil)
	}

	cleanScenes(result.Scenes, style)

	if err := validateSceneNumbering(result.Scenes); err != nil {
		return nil, err
	}

	script := &models.NarrativeScript{
		PaperID:   paper.ID,
		Title:     paper.Title,
		Style:     style,
		Scenes:    result.Scenes,
		CreatedAt: time.Now(),
	}
	script.TotalDuration = RefineDurations(script.Scenes)

	utils.GetLogger().Infof("论文 %s 的叙事脚本已生成: %d 个场景，总时长 %.0f 秒",
		paper.ID, len(script.Scenes), script.TotalDuration)

	return script, nil
}

func styleInstruction(style string) string {
	switch style {
	case models.StyleDramatic:
		return "Build tension scene by scene; narration uses vivid, emotionally charged language."
	case models.StyleDocumentary:
		return "Neutral, authoritative narration in the manner of a nature documentary."
	case models.StyleMinimalist:
		return "Short sparse sentences; visuals are clean, abstract, and uncluttered."
	default:
		return "Clear explanatory narration that builds understanding step by step."
	}
}

// 旁白允许的字符；其余字符在清洗时丢弃
var narrationAllowedPattern = regexp.MustCompile(`[^a-zA-Z0-9\s.,!?;:'\-()%]`)

var urlPattern = regexp.MustCompile(`https?://\S+|www\.\S+`)

// 口播前展开的常见缩写
var abbreviationReplacer = strings.NewReplacer(
	"e.g.", "for example",
	"i.e.", "that is",
	"etc.", "and so on",
	"vs.", "versus",
	"Fig.", "Figure",
	"fig.", "figure",
	"Eq.", "Equation",
	"et al.", "and colleagues",
)

// cleanScenes 场景级清洗：去markdown痕迹、过滤异常字符、补默认值
func cleanScenes(scenes []models.Scene, style string) {
	for i := range scenes {
		sc := &scenes[i]

		sc.Narration = CleanNarration(sc.Narration)
		sc.VisualDescription = collapseWhitespace(
			narrationAllowedPattern.ReplaceAllString(sc.VisualDescription, " "))
		sc.TextOverlay = collapseWhitespace(
			narrationAllowedPattern.ReplaceAllString(sc.TextOverlay, " "))

		if sc.Duration <= 0 {
			sc.Duration = 15
		}
		if sc.VisualStyle == "" {
			sc.VisualStyle = style
		}
		if sc.VisualDescription == "" {
			sc.VisualDescription = "Abstract scientific illustration related to the paper topic"
		}
		if sc.Transition == "" {
			sc.Transition = "fade"
		}
	}
}

// CleanNarration 旁白文本的口播整理：缩写展开、去URL、去markdown
func CleanNarration(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = abbreviationReplacer.Replace(text)
	text = strings.NewReplacer("*", "", "_", "", "#", "", "`", "").Replace(text)
	text = narrationAllowedPattern.ReplaceAllString(text, " ")
	return collapseWhitespace(text)
}

// validateSceneNumbering 场景必须从1开始连续编号
func validateSceneNumbering(scenes []models.Scene) error {
	for i, sc := range scenes {
		if sc.SceneNumber != i+1 {
			return apperrors.NewSchemaError(
				fmt.Sprintf("场景编号不连续: 第 %d 个场景的 scene_number 为 %d", i+1, sc.SceneNumber), nil)
		}
		if sc.Narration == "" {
			return apperrors.NewSchemaError(
				fmt.Sprintf("场景 %d 的 narration 为空", sc.SceneNumber), nil)
		}
	}
	return nil
}

// RefineDurations 按旁白词数重算每个场景的时长，返回总时长
//
// 口播速度按每秒2.5词估算，预留1.5倍余量，下限10秒。
func RefineDurations(scenes []models.Scene) float64 {
	total := 0.0
	for i := range scenes {
		words := len(strings.Fields(scenes[i].Narration))
		d := math.Round(1.5 * float64(words) / 2.5)
		if d < 10 {
			d = 10
		}
		scenes[i].Duration = d
		total += d
	}
	return total
}

// ScenePrompt 拼装场景的图像生成提示词
func ScenePrompt(scene *models.Scene) string {
	styleModifier := ""
	switch scene.VisualStyle {
	case models.StyleDramatic:
		styleModifier = "dramatic lighting, cinematic composition, "
	case models.StyleDocumentary:
		styleModifier = "photorealistic, documentary photography style, "
	case models.StyleMinimalist:
		styleModifier = "minimalist flat design, generous negative space, "
	default:
		styleModifier = "clean educational illustration, "
	}

	return styleModifier + scene.VisualDescription + ", 16:9 aspect ratio, high resolution"
}

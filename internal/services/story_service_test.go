// internal/services/story_service_test.go
package services

import (
	"strings"
	"testing"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"
)

func TestSceneCountFor(t *testing.T) {
	tests := []struct {
		duration int
		want     int
	}{
		{30, 5}, // 下限
		{60, 5}, // 下限
		{75, 5},
		{90, 6},
		{120, 8},
		{180, 12},
		{225, 15}, // 上限
		{600, 15}, // 上限
	}

	for _, tt := range tests {
		if got := SceneCountFor(tt.duration); got != tt.want {
			t.Errorf("SceneCountFor(%d) = %d, 期望 %d", tt.duration, got, tt.want)
		}
	}
}

func TestRefineDurations(t *testing.T) {
	scenes := []models.Scene{
		{SceneNumber: 1, Narration: strings.TrimSpace(strings.Repeat("word ", 50)), Duration: 15},
		{SceneNumber: 2, Narration: "tiny", Duration: 15},
	}

	total := RefineDurations(scenes)

	// 50词: round(1.5*50/2.5) = 30秒；1词低于下限取10秒
	if scenes[0].Duration != 30 {
		t.Errorf("场景1时长 = %.0f, 期望 30", scenes[0].Duration)
	}
	if scenes[1].Duration != 10 {
		t.Errorf("场景2时长 = %.0f, 期望下限 10", scenes[1].Duration)
	}
	if total != 40 {
		t.Errorf("总时长 = %.0f, 期望 40", total)
	}
}

func TestCleanNarration(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"去URL", "Read more at https://arxiv.org/abs/1706.03762 for details", "Read more at for details"},
		{"缩写展开", "Models like BERT, e.g. large ones, dominate", "Models like BERT, for example large ones, dominate"},
		{"去markdown", "The *transformer* uses `attention`", "The transformer uses attention"},
		{"过滤异常字符", "cost is $5 €3 and 40%", "cost is 5 3 and 40%"},
		{"折叠空白", "a   b\t c", "a b c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanNarration(tt.input); got != tt.want {
				t.Errorf("CleanNarration(%q) = %q, 期望 %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateSceneNumbering(t *testing.T) {
	ok := []models.Scene{
		{SceneNumber: 1, Narration: "a"},
		{SceneNumber: 2, Narration: "b"},
		{SceneNumber: 3, Narration: "c"},
	}
	if err := validateSceneNumbering(ok); err != nil {
		t.Errorf("连续编号不应报错: %v", err)
	}

	gap := []models.Scene{
		{SceneNumber: 1, Narration: "a"},
		{SceneNumber: 3, Narration: "b"},
	}
	if err := validateSceneNumbering(gap); err == nil {
		t.Errorf("编号断档应报错")
	} else if !apperrors.IsSchemaError(err) {
		t.Errorf("编号断档应为schema错误, 实际 %v", err)
	}

	empty := []models.Scene{{SceneNumber: 1, Narration: ""}}
	if err := validateSceneNumbering(empty); !apperrors.IsSchemaError(err) {
		t.Errorf("空旁白应为schema错误, 实际 %v", err)
	}
}

func TestScenePrompt(t *testing.T) {
	scene := &models.Scene{
		VisualStyle:       models.StyleDramatic,
		VisualDescription: "a neural network glowing in the dark",
	}

	prompt := ScenePrompt(scene)

	if !strings.HasPrefix(prompt, "dramatic lighting") {
		t.Errorf("提示词应带风格前缀: %q", prompt)
	}
	if !strings.Contains(prompt, scene.VisualDescription) {
		t.Errorf("提示词应包含场景描述: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "16:9 aspect ratio, high resolution") {
		t.Errorf("提示词应带固定后缀: %q", prompt)
	}
}

func TestScenePromptDefaultStyle(t *testing.T) {
	prompt := ScenePrompt(&models.Scene{VisualDescription: "desc"})

	if !strings.HasPrefix(prompt, "clean educational illustration") {
		t.Errorf("未知风格应使用默认前缀: %q", prompt)
	}
}

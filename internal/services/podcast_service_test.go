// internal/services/podcast_service_test.go
package services

import (
	"strings"
	"testing"

	"github.com/Corphon/PaperStudioMCP/internal/models"
)

func TestParseDialogue(t *testing.T) {
	raw := `Here is the dialogue you requested:

Teacher: Welcome everyone, today we discuss attention mechanisms.
Student: Why do we need attention at all?
(they pause thoughtfully)
Teacher：Because recurrence processes tokens one at a time.
1. This numbered line is noise.
Student : It handles long-range dependencies better.
`

	turns := ParseDialogue(raw)

	if len(turns) != 4 {
		t.Fatalf("应解析出4个回合，实际 %d: %+v", len(turns), turns)
	}

	wantRoles := []string{models.RoleTeacher, models.RoleStudent, models.RoleTeacher, models.RoleStudent}
	for i, want := range wantRoles {
		if turns[i].Role != want {
			t.Errorf("回合 %d 角色 = %q, 期望 %q", i, turns[i].Role, want)
		}
	}

	if turns[2].Text != "Because recurrence processes tokens one at a time." {
		t.Errorf("全角冒号行解析错误: %q", turns[2].Text)
	}
}

func TestParseDialogueDiscardsGarbage(t *testing.T) {
	raw := "I'm sorry, I cannot help with that.\n\nSome prose without any speaker prefix."

	if turns := ParseDialogue(raw); len(turns) != 0 {
		t.Errorf("无角色前缀的文本应解析为空, 实际 %+v", turns)
	}
}

func TestCleanDialogueText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"去除引号", `"quoted speech"`, "quoted speech"},
		{"去除中文引号", "“你好” world", "你好 world"},
		{"去除markdown强调", "this is *really* _important_", "this is really important"},
		{"markdown链接保留文字", "see [the paper](https://arxiv.org/abs/1706.03762) here", "see the paper here"},
		{"折叠空白", "too    many   spaces", "too many spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanDialogueText(tt.input); got != tt.want {
				t.Errorf("CleanDialogueText(%q) = %q, 期望 %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanDialogueTextWordCap(t *testing.T) {
	input := strings.TrimSpace(strings.Repeat("word ", 50))
	got := CleanDialogueText(input)

	if n := len(strings.Fields(got)); n != 30 {
		t.Errorf("超过30词应截断, 实际 %d 词", n)
	}
}

func TestChunkForTTS(t *testing.T) {
	turns := []models.DialogueTurn{
		{Role: models.RoleTeacher, Text: strings.TrimSpace(strings.Repeat("alpha ", 70))},
		{Role: models.RoleStudent, Text: "short reply"},
		{Role: models.RoleTeacher, Text: "   "},
	}

	chunks := ChunkForTTS(turns, 30)

	// 70词按30词拆成3段，短回合1段，空回合丢弃
	if len(chunks) != 4 {
		t.Fatalf("期望4个片段, 实际 %d: %+v", len(chunks), chunks)
	}

	for i := 0; i < 3; i++ {
		if chunks[i].Role != models.RoleTeacher {
			t.Errorf("片段 %d 应保持原角色", i)
		}
		if n := len(strings.Fields(chunks[i].Text)); n > 30 {
			t.Errorf("片段 %d 有 %d 词，超过上限", i, n)
		}
	}
	if n := len(strings.Fields(chunks[2].Text)); n != 10 {
		t.Errorf("末段应为余下的10词, 实际 %d", n)
	}
	if chunks[3].Text != "short reply" || chunks[3].Role != models.RoleStudent {
		t.Errorf("短回合应原样保留: %+v", chunks[3])
	}
}

func TestFallbackScript(t *testing.T) {
	svc := NewPodcastService(nil)
	paper := &models.Paper{
		ID:       "1706.03762",
		Title:    "Attention Is All You Need",
		Abstract: strings.TrimSpace(strings.Repeat("summary ", 60)),
	}

	script := svc.FallbackScript(paper, "en")

	if script.PaperID != paper.ID || script.Title != paper.Title {
		t.Errorf("保底脚本应携带论文信息: %+v", script)
	}
	if len(script.Turns) != 3 {
		t.Fatalf("保底脚本应有3个回合, 实际 %d", len(script.Turns))
	}
	if script.Turns[0].Role != models.RoleTeacher || script.Turns[1].Role != models.RoleStudent {
		t.Errorf("保底脚本角色顺序错误: %+v", script.Turns)
	}
	for i, turn := range script.Turns {
		if n := len(strings.Fields(turn.Text)); n > 30 {
			t.Errorf("回合 %d 有 %d 词，超过上限", i, n)
		}
	}
}

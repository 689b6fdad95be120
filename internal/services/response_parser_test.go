// internal/services/response_parser_test.go
package services

import (
	"strings"
	"testing"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
)

func TestExtractJSONFromFencedBlock(t *testing.T) {
	raw := "Here is the outline you asked for:\n```json\n{\"title\": \"Attention Is All You Need\"}\n```\nLet me know if you need changes."

	got := ExtractJSON(raw)
	if got != `{"title": "Attention Is All You Need"}` {
		t.Errorf("围栏JSON提取失败，得到: %q", got)
	}
}

func TestExtractJSONBalancedBraces(t *testing.T) {
	// 字符串值里的大括号不应干扰配平
	raw := `preamble {"a": "value with } inside", "b": {"c": 1}} trailing noise`

	got := ExtractJSON(raw)
	if got != `{"a": "value with } inside", "b": {"c": 1}}` {
		t.Errorf("大括号配平提取失败，得到: %q", got)
	}
}

func TestExtractJSONArray(t *testing.T) {
	raw := "The scenes are: [{\"scene_number\": 1}, {\"scene_number\": 2}] as requested."

	got := ExtractJSON(raw)
	if !strings.HasPrefix(got, "[") || !strings.HasSuffix(got, "]") {
		t.Errorf("数组提取失败，得到: %q", got)
	}
}

func TestExtractJSONEscapedQuotes(t *testing.T) {
	raw := `{"text": "he said \"hello\" loudly"}`

	got := ExtractJSON(raw)
	if got != raw {
		t.Errorf("转义引号不应截断提取，得到: %q", got)
	}
}

func TestParseStructuredSuccess(t *testing.T) {
	var out struct {
		Title string `json:"title"`
	}

	raw := "```json\n{\"title\": \"BERT\"}\n```"
	if err := ParseStructured(raw, &out); err != nil {
		t.Fatalf("ParseStructured 失败: %v", err)
	}
	if out.Title != "BERT" {
		t.Errorf("解析结果错误，得到 %q", out.Title)
	}
}

func TestParseStructuredReturnsParseError(t *testing.T) {
	var out struct {
		Title string `json:"title"`
	}

	err := ParseStructured("I cannot produce JSON for this request.", &out)
	if err == nil {
		t.Fatal("无JSON输入应返回错误")
	}
	if !apperrors.IsParseError(err) {
		t.Errorf("错误类别应为解析错误，得到: %v", err)
	}
}

func TestParseStructuredTruncatesRawInError(t *testing.T) {
	var out struct{}

	longGarbage := strings.Repeat("x", 2000)
	err := ParseStructured(longGarbage, &out)
	if err == nil {
		t.Fatal("垃圾输入应返回错误")
	}
	if len(err.Error()) > 600 {
		t.Errorf("错误消息应截断原始输出，长度 %d", len(err.Error()))
	}
}

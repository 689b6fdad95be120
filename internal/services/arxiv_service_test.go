// internal/services/arxiv_service_test.go
package services

import (
	"testing"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
)

func TestExtractArxivID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"摘要页链接", "https://arxiv.org/abs/1706.03762", "1706.03762"},
		{"PDF链接", "https://arxiv.org/pdf/1706.03762", "1706.03762"},
		{"带版本号的链接", "https://arxiv.org/abs/2301.12345v2", "2301.12345"},
		{"5位编号", "https://arxiv.org/abs/2301.12345", "2301.12345"},
		{"无协议前缀", "arxiv.org/abs/1706.03762", "1706.03762"},
		{"裸编号", "1706.03762", "1706.03762"},
		{"带版本的裸编号", "2301.12345v3", "2301.12345"},
		{"旧式编号链接", "https://arxiv.org/abs/cs/0112017", "cs/0112017"},
		{"旧式裸编号", "cs/0112017", "cs/0112017"},
		{"前后空白", "  1706.03762  ", "1706.03762"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractArxivID(tt.input)
			if err != nil {
				t.Fatalf("ExtractArxivID(%q) 报错: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ExtractArxivID(%q) = %q, 期望 %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractArxivIDRejectsInvalid(t *testing.T) {
	invalid := []string{
		"",
		"https://example.com/paper.pdf",
		"not an id at all",
		"12345",
		"https://arxiv.org/list/cs.AI/recent",
	}

	for _, input := range invalid {
		if got, err := ExtractArxivID(input); err == nil {
			t.Errorf("ExtractArxivID(%q) 应报错, 实际返回 %q", input, got)
		} else if !apperrors.IsValidationError(err) {
			t.Errorf("ExtractArxivID(%q) 应为校验错误, 实际 %v", input, err)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a  b", "a b"},
		{"  leading and trailing  ", "leading and trailing"},
		{"line\nbreaks\tand\ttabs", "line breaks and tabs"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := collapseWhitespace(tt.input); got != tt.want {
			t.Errorf("collapseWhitespace(%q) = %q, 期望 %q", tt.input, got, tt.want)
		}
	}
}

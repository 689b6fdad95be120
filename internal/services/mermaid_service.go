// internal/services/mermaid_service.go
package services

import (
	"strings"

	"github.com/Corphon/PaperStudioMCP/internal/models"
)

// Mermaid mindmap 渲染：纯函数，不做任何IO

// 各部分的展示名与图标
var sectionDisplay = map[string]struct {
	Label string
	Icon  string
}{
	"introduction": {"Introduction", "fa fa-lightbulb"},
	"methodology":  {"Methodology", "fa fa-cogs"},
	"results":      {"Results", "fa fa-chart-bar"},
	"conclusions":  {"Conclusions", "fa fa-flag-checkered"},
}

var mermaidUnsafeReplacer = strings.NewReplacer(
	`"`, "'",
	"\n", " ",
	"\r", " ",
	"(", "",
	")", "",
	"[", "",
	"]", "",
	"{", "",
	"}", "",
	"<", "",
	">", "",
	"`", "",
	"#", "No.",
	"&", "and",
)

// SanitizeMermaidLabel 清洗节点文本，去掉会破坏mermaid语法的字符
//
// 超过100个字符的标签截断到97个字符加省略号。
func SanitizeMermaidLabel(text string) string {
	text = mermaidUnsafeReplacer.Replace(text)
	text = collapseWhitespace(text)

	if len(text) > 100 {
		text = strings.TrimSpace(text[:97]) + "..."
	}

	return text
}

// RenderMindmap 把大纲渲染为mermaid mindmap源码
//
// 部分顺序固定，空的部分整体省略。
func RenderMindmap(outline *models.Outline) string {
	title := SanitizeMermaidLabel(outline.Title)
	if title == "" {
		title = "Research Paper"
	}

	var b strings.Builder
	b.WriteString("mindmap\n")
	b.WriteString("  root((" + title + "))\n")

	for _, name := range models.SectionNames() {
		points := outline.Section(name)
		if len(points) == 0 {
			continue
		}

		display := sectionDisplay[name]
		b.WriteString("    " + display.Label + "\n")
		b.WriteString("      ::icon(" + display.Icon + ")\n")

		for _, point := range points {
			label := SanitizeMermaidLabel(point)
			if label == "" {
				continue
			}
			b.WriteString("      " + label + "\n")
		}
	}

	return b.String()
}

// ValidateMindmap 校验渲染结果是否为结构良好的mindmap
func ValidateMindmap(src string) bool {
	trimmed := strings.TrimSpace(src)
	if !strings.HasPrefix(trimmed, "mindmap") {
		return false
	}
	if !strings.Contains(trimmed, "root((") {
		return false
	}

	// 括号必须逐行配平
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.Count(line, "(") != strings.Count(line, ")") {
			return false
		}
	}

	return true
}

// CountMindmapNodes 统计mindmap中的节点数（根与图标行除外）
func CountMindmapNodes(src string) int {
	count := 0
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "mindmap" {
			continue
		}
		if strings.HasPrefix(trimmed, "root((") || strings.HasPrefix(trimmed, "::icon") {
			continue
		}
		count++
	}
	return count
}

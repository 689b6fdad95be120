// internal/models/outline.go
package models

// Outline 论文大纲：固定四个部分，每部分若干个1-4词的要点
//
// 字段名与模型返回的JSON键一致，部分顺序在渲染时固定为
// introduction -> methodology -> results -> conclusions。
type Outline struct {
	Title        string   `json:"title"`
	Introduction []string `json:"introduction"`
	Methodology  []string `json:"methodology"`
	Results      []string `json:"results"`
	Conclusions  []string `json:"conclusions"`
}

// SectionNames 渲染时的固定部分顺序
func SectionNames() []string {
	return []string{"introduction", "methodology", "results", "conclusions"}
}

// Section 按名称取部分要点
func (o *Outline) Section(name string) []string {
	switch name {
	case "introduction":
		return o.Introduction
	case "methodology":
		return o.Methodology
	case "results":
		return o.Results
	case "conclusions":
		return o.Conclusions
	default:
		return nil
	}
}

// TotalPoints 全部要点数量，用于响应元数据
func (o *Outline) TotalPoints() int {
	total := 0
	for _, name := range SectionNames() {
		total += len(o.Section(name))
	}
	return total
}

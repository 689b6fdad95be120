// internal/models/paper.go
package models

import "time"

// 论文来源
const (
	PaperSourceArxiv  = "arxiv"
	PaperSourceUpload = "upload"
)

// Paper 论文记录：元数据 + 提取的正文文本
type Paper struct {
	ID         string    `json:"id"` // arXiv编号或上传时分配的UUID
	Source     string    `json:"source"`
	ArxivID    string    `json:"arxiv_id,omitempty"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors,omitempty"`
	Abstract   string    `json:"abstract,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	Published  string    `json:"published,omitempty"`
	PDFURL     string    `json:"pdf_url,omitempty"`
	Content    string    `json:"content"` // 提取后的纯文本
	CreatedAt  time.Time `json:"created_at"`
}

// HasContent 判断正文是否可用于生成
func (p *Paper) HasContent() bool {
	return p != nil && len(p.Content) > 0
}

// PaperSummary 论文列表项，带该论文已有的产品工作区
type PaperSummary struct {
	PaperID  string   `json:"paper_id"`
	Title    string   `json:"title,omitempty"`
	Products []string `json:"products,omitempty"`
}

// internal/models/narrative.go
package models

import "time"

// 视频叙事风格
const (
	StyleEducational = "educational"
	StyleDramatic    = "dramatic"
	StyleDocumentary = "documentary"
	StyleMinimalist  = "minimalist"
)

// Scene 视频中的一个场景
type Scene struct {
	SceneNumber       int     `json:"scene_number"`
	Duration          float64 `json:"duration"` // 秒
	Narration         string  `json:"narration"`
	VisualDescription string  `json:"visual_description"`
	VisualStyle       string  `json:"visual_style"`
	TextOverlay       string  `json:"text_overlay,omitempty"`
	Transition        string  `json:"transition,omitempty"`
}

// NarrativeScript 叙事视频脚本
type NarrativeScript struct {
	PaperID       string    `json:"paper_id"`
	Title         string    `json:"title"`
	Style         string    `json:"style"`
	TotalDuration float64   `json:"total_duration"`
	Scenes        []Scene   `json:"scenes"`
	CreatedAt     time.Time `json:"created_at"`
}

// SceneCount 场景总数
func (s *NarrativeScript) SceneCount() int {
	if s == nil {
		return 0
	}
	return len(s.Scenes)
}

// internal/models/dialogue.go
package models

import "time"

// 对话角色
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// DialogueTurn 播客中的一个发言回合
type DialogueTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// PodcastScript 师生两角色的播客脚本
type PodcastScript struct {
	PaperID    string         `json:"paper_id"`
	Title      string         `json:"title"`
	Language   string         `json:"language"`
	Complexity string         `json:"complexity"`
	Turns      []DialogueTurn `json:"turns"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TurnCount 回合总数
func (s *PodcastScript) TurnCount() int {
	if s == nil {
		return 0
	}
	return len(s.Turns)
}

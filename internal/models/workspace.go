// internal/models/workspace.go
package models

import "time"

// Stage 管线阶段，显式记录，不从字段是否存在反推
type Stage string

const (
	StageNone            Stage = ""
	StageScriptGenerated Stage = "script_generated"
	StageImagesGenerated Stage = "images_generated"
	StageAudioGenerated  Stage = "audio_generated"
	StageVideoGenerated  Stage = "video_generated"
)

// podcastOrder / storyOrder 各产品的合法阶段顺序
var (
	podcastOrder = []Stage{StageNone, StageScriptGenerated, StageAudioGenerated}
	storyOrder   = []Stage{StageNone, StageScriptGenerated, StageImagesGenerated, StageAudioGenerated, StageVideoGenerated}
)

func stageIndex(order []Stage, s Stage) int {
	for i, v := range order {
		if v == s {
			return i
		}
	}
	return -1
}

// CanAdvancePodcast 判断播客工作区能否从 from 推进到 to
//
// 允许原地重做（to == from 的上一阶段重新生成即覆盖），
// 不允许跳过前置阶段。
func CanAdvancePodcast(from, to Stage) bool {
	return canAdvance(podcastOrder, from, to)
}

// CanAdvanceStory 判断叙事视频工作区能否从 from 推进到 to
func CanAdvanceStory(from, to Stage) bool {
	return canAdvance(storyOrder, from, to)
}

func canAdvance(order []Stage, from, to Stage) bool {
	fi, ti := stageIndex(order, from), stageIndex(order, to)
	if fi < 0 || ti < 0 {
		return false
	}
	// 目标阶段最多比当前阶段领先一步；回到已完成阶段视为重做
	return ti <= fi+1
}

// PodcastWorkspace 播客管线的落盘工作区记录
type PodcastWorkspace struct {
	PaperID    string         `json:"paper_id"`
	Stage      Stage          `json:"stage"`
	Script     *PodcastScript `json:"script,omitempty"`
	AudioFiles []string       `json:"audio_files,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// StoryWorkspace 叙事视频管线的落盘工作区记录
type StoryWorkspace struct {
	PaperID    string           `json:"paper_id"`
	Stage      Stage            `json:"stage"`
	Script     *NarrativeScript `json:"script,omitempty"`
	ImageFiles []string         `json:"image_files,omitempty"`
	AudioFiles []string         `json:"audio_files,omitempty"`
	VideoFile  string           `json:"video_file,omitempty"`
	Voice      string           `json:"voice,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// BatchResult 批处理的结构化结果：成功与失败分列
type BatchResult struct {
	Succeeded []int          `json:"succeeded"`        // 成功的序号（从0开始）
	Failed    map[int]string `json:"failed,omitempty"` // 序号 -> 失败原因
}

// AllSucceeded 是否全部成功
func (r *BatchResult) AllSucceeded() bool {
	return len(r.Failed) == 0
}

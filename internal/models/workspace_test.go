// internal/models/workspace_test.go
package models

import "testing"

func TestCanAdvancePodcast(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"初始生成脚本", StageNone, StageScriptGenerated, true},
		{"脚本后生成音频", StageScriptGenerated, StageAudioGenerated, true},
		{"跳过脚本直接生成音频", StageNone, StageAudioGenerated, false},
		{"音频后重做脚本", StageAudioGenerated, StageScriptGenerated, true},
		{"原地重做脚本", StageScriptGenerated, StageScriptGenerated, true},
		{"播客不存在图像阶段", StageScriptGenerated, StageImagesGenerated, false},
		{"播客不存在视频阶段", StageAudioGenerated, StageVideoGenerated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdvancePodcast(tt.from, tt.to); got != tt.want {
				t.Errorf("CanAdvancePodcast(%q, %q) = %v, 期望 %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanAdvanceStory(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"初始生成脚本", StageNone, StageScriptGenerated, true},
		{"脚本后生成图像", StageScriptGenerated, StageImagesGenerated, true},
		{"图像后生成音频", StageImagesGenerated, StageAudioGenerated, true},
		{"音频后装配视频", StageAudioGenerated, StageVideoGenerated, true},
		{"跳过图像直接生成音频", StageScriptGenerated, StageAudioGenerated, false},
		{"跳过音频直接装配视频", StageImagesGenerated, StageVideoGenerated, false},
		{"初始直接装配视频", StageNone, StageVideoGenerated, false},
		{"视频后重做图像", StageVideoGenerated, StageImagesGenerated, true},
		{"未知阶段", Stage("bogus"), StageScriptGenerated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdvanceStory(tt.from, tt.to); got != tt.want {
				t.Errorf("CanAdvanceStory(%q, %q) = %v, 期望 %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestBatchResultAllSucceeded(t *testing.T) {
	r := &BatchResult{Succeeded: []int{0, 1, 2}}
	if !r.AllSucceeded() {
		t.Error("无失败项时 AllSucceeded 应为 true")
	}

	r.Failed = map[int]string{1: "backend unavailable"}
	if r.AllSucceeded() {
		t.Error("存在失败项时 AllSucceeded 应为 false")
	}
}

func TestScriptCountsOnNil(t *testing.T) {
	var podcast *PodcastScript
	if podcast.TurnCount() != 0 {
		t.Error("nil 播客脚本的回合数应为0")
	}

	var narrative *NarrativeScript
	if narrative.SceneCount() != 0 {
		t.Error("nil 叙事脚本的场景数应为0")
	}
}

// internal/services/video_service_test.go
package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"
)

func TestAssembleVideoCountMismatch(t *testing.T) {
	svc := NewVideoService("", "")
	dir := t.TempDir()
	outPath := filepath.Join(dir, "video.mp4")

	script := &models.NarrativeScript{
		Title: "Test",
		Scenes: []models.Scene{
			{SceneNumber: 1, Narration: "a", Duration: 10},
			{SceneNumber: 2, Narration: "b", Duration: 10},
		},
	}

	err := svc.AssembleVideo(context.Background(), script,
		[]string{"one.png"}, []string{"one.wav", "two.wav"}, outPath, AssembleOptions{})

	if !apperrors.IsAssemblyError(err) {
		t.Fatalf("数量不一致应返回装配错误, 实际 %v", err)
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Errorf("前置校验失败时不应产生任何文件")
	}
}

func TestAssembleVideoEmptyScenes(t *testing.T) {
	svc := NewVideoService("", "")

	err := svc.AssembleVideo(context.Background(),
		&models.NarrativeScript{Title: "Empty"}, nil, nil,
		filepath.Join(t.TempDir(), "video.mp4"), AssembleOptions{})

	if !apperrors.IsAssemblyError(err) {
		t.Fatalf("零场景应返回装配错误, 实际 %v", err)
	}
}

func TestClampTransition(t *testing.T) {
	durations := []float64{10, 8, 12}

	if got := clampTransition(0, durations); got != defaultTransition {
		t.Errorf("未指定时应取默认值, 实际 %.3f", got)
	}
	if got := clampTransition(-1, durations); got != 0 {
		t.Errorf("负值应关闭交叉淡化, 实际 %.3f", got)
	}
	if got := clampTransition(2, durations); got != 2 {
		t.Errorf("合法值应保留, 实际 %.3f", got)
	}
	// 淡化不能超过最短片段的一半
	if got := clampTransition(6, durations); got != 4 {
		t.Errorf("超长淡化应收敛到最短片段的一半, 实际 %.3f", got)
	}
}

func TestBuildCrossfadeFilter(t *testing.T) {
	filter := buildCrossfadeFilter([]float64{10, 8, 12}, 1)

	// 第一次转场在 10-1=9 秒，第二次在 9+8-1=16 秒
	wantParts := []string{
		"[0:v][1:v]xfade=transition=fade:duration=1.000:offset=9.000[v1]",
		"[0:a][1:a]acrossfade=d=1.000[a1]",
		"[v1][2:v]xfade=transition=fade:duration=1.000:offset=16.000[vout]",
		"[a1][2:a]acrossfade=d=1.000[aout]",
	}
	for _, part := range wantParts {
		if !strings.Contains(filter, part) {
			t.Errorf("滤镜链缺少 %q:\n%s", part, filter)
		}
	}
	if strings.HasSuffix(filter, ";") {
		t.Errorf("滤镜链不应以分号结尾: %s", filter)
	}
}

func TestBuildCrossfadeFilterTwoClips(t *testing.T) {
	filter := buildCrossfadeFilter([]float64{5, 5}, 0.5)

	if !strings.Contains(filter, "xfade=transition=fade:duration=0.500:offset=4.500[vout]") {
		t.Errorf("两段片段应直接输出到终点标签:\n%s", filter)
	}
	if !strings.Contains(filter, "acrossfade=d=0.500[aout]") {
		t.Errorf("音频应交叉淡化到终点标签:\n%s", filter)
	}
}

func TestBuildMusicFilter(t *testing.T) {
	filter := buildMusicFilter(60)

	// 背景音乐两端都要有淡入淡出，旁白轨不衰减
	for _, part := range []string{
		"volume=0.2",
		"atrim=0:60.000",
		"afade=t=in:st=0:d=2",
		"afade=t=out:st=57.000:d=3",
		"amix=inputs=2:duration=first",
	} {
		if !strings.Contains(filter, part) {
			t.Errorf("混音滤镜缺少 %q:\n%s", part, filter)
		}
	}
}

func TestBuildMusicFilterShortVideo(t *testing.T) {
	// 视频不足3秒时淡出从0开始
	if filter := buildMusicFilter(2); !strings.Contains(filter, "afade=t=out:st=0.000:d=3") {
		t.Errorf("短视频淡出起点应收敛到0:\n%s", filter)
	}
}

func TestEscapeDrawText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain text", "plain text"},
		{"it's here", `it\'s here`},
		{"ratio 50%", `ratio 50\%`},
		{"a:b", `a\:b`},
		{`back\slash`, `back\\slash`},
	}

	for _, tt := range tests {
		if got := escapeDrawText(tt.input); got != tt.want {
			t.Errorf("escapeDrawText(%q) = %q, 期望 %q", tt.input, got, tt.want)
		}
	}
}

func TestTailLines(t *testing.T) {
	input := "l1\nl2\nl3\nl4\nl5"

	if got := tailLines(input, 2); got != "l4\nl5" {
		t.Errorf("tailLines = %q, 期望最后两行", got)
	}
	if got := tailLines(input, 10); got != input {
		t.Errorf("行数不足时应原样返回: %q", got)
	}
}

func TestNewVideoServiceDefaults(t *testing.T) {
	svc := NewVideoService("", "")
	if svc.ffmpegBin != "ffmpeg" || svc.ffprobeBin != "ffprobe" {
		t.Errorf("空路径应使用PATH中的默认命令: %s %s", svc.ffmpegBin, svc.ffprobeBin)
	}

	custom := NewVideoService("/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffprobe")
	if !strings.HasPrefix(custom.ffmpegBin, "/opt/") {
		t.Errorf("自定义路径应保留: %s", custom.ffmpegBin)
	}
}

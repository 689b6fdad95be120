// internal/services/video_service.go
package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/utils"
)

// VideoService 用外部 ffmpeg/ffprobe 装配最终视频
type VideoService struct {
	ffmpegBin  string
	ffprobeBin string
}

// NewVideoService 创建视频装配服务
func NewVideoService(ffmpegBin, ffprobeBin string) *VideoService {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &VideoService{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin}
}

// 场景间交叉淡化的默认时长（秒）
const defaultTransition = 1.0

// AssembleOptions 装配选项
type AssembleOptions struct {
	BackgroundMusic string  // 背景音乐文件路径，空则不加
	TitleCard       bool    // 是否在片头加标题卡
	Transition      float64 // 场景间交叉淡化时长（秒），0取默认值，负值关闭
	Width           int
	Height          int
}

// AssembleVideo 把场景图像与旁白音频装配成视频
//
// 前置条件：场景、图像、音频三者数量一致，否则在动任何文件前
// 返回装配错误。每个场景的时长由其音频实际时长决定，音频探测
// 失败时退回脚本时长。产物先写临时文件再原子重命名。
func (v *VideoService) AssembleVideo(ctx context.Context, script *models.NarrativeScript, imagePaths, audioPaths []string, outPath string, opts AssembleOptions) error {
	logger := utils.GetLogger()

	if len(script.Scenes) != len(imagePaths) || len(script.Scenes) != len(audioPaths) {
		return apperrors.NewAssemblyError(
			fmt.Sprintf("场景(%d)、图像(%d)、音频(%d)数量不一致",
				len(script.Scenes), len(imagePaths), len(audioPaths)), nil)
	}
	if len(script.Scenes) == 0 {
		return apperrors.NewAssemblyError("没有场景可装配", nil)
	}

	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}

	workDir, err := os.MkdirTemp("", "assemble-*")
	if err != nil {
		return fmt.Errorf("创建装配工作目录失败: %w", err)
	}
	defer os.RemoveAll(workDir)

	// 逐场景生成片段
	var clips []string
	var durations []float64
	for i := range script.Scenes {
		scene := &script.Scenes[i]

		duration := v.probeDuration(ctx, audioPaths[i])
		if duration <= 0 {
			duration = scene.Duration
			logger.Warnf("场景 %d 的音频时长探测失败，退回脚本时长 %.0f 秒", scene.SceneNumber, duration)
		}

		clip := filepath.Join(workDir, fmt.Sprintf("clip_%02d.mp4", scene.SceneNumber))
		if err := v.renderSceneClip(ctx, imagePaths[i], audioPaths[i], clip, duration, scene.TextOverlay, opts); err != nil {
			return apperrors.NewAssemblyError(
				fmt.Sprintf("渲染场景 %d 失败", scene.SceneNumber), err)
		}
		clips = append(clips, clip)
		durations = append(durations, duration)
	}

	// 标题卡放在最前
	if opts.TitleCard {
		titleClip := filepath.Join(workDir, "title.mp4")
		if err := v.renderTitleCard(ctx, script.Title, titleClip, opts); err != nil {
			logger.Warnf("标题卡渲染失败，跳过: %v", err)
		} else {
			clips = append([]string{titleClip}, clips...)
			durations = append([]float64{titleCardDuration}, durations...)
		}
	}

	joined := filepath.Join(workDir, "joined.mp4")
	if err := v.concatClips(ctx, clips, durations, clampTransition(opts.Transition, durations), joined); err != nil {
		return apperrors.NewAssemblyError("拼接场景失败", err)
	}

	final := joined
	if opts.BackgroundMusic != "" {
		mixed := filepath.Join(workDir, "mixed.mp4")
		if err := v.mixBackgroundMusic(ctx, joined, opts.BackgroundMusic, mixed); err != nil {
			logger.Warnf("背景音乐混音失败，使用无背景音乐版本: %v", err)
		} else {
			final = mixed
		}
	}

	// 原子落盘：同目录临时文件 + 重命名
	tempOut := outPath + ".tmp"
	if err := copyFile(final, tempOut); err != nil {
		return fmt.Errorf("拷贝产物失败: %w", err)
	}
	if err := os.Rename(tempOut, outPath); err != nil {
		os.Remove(tempOut)
		return fmt.Errorf("移动产物失败: %w", err)
	}

	logger.Infof("视频装配完成: %s (%d 个场景)", outPath, len(script.Scenes))

	return nil
}

// probeDuration 用 ffprobe 读取媒体时长（秒），失败返回0
func (v *VideoService) probeDuration(ctx context.Context, path string) float64 {
	cmd := exec.CommandContext(ctx, v.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}

	return duration
}

// renderSceneClip 静止图像 + 旁白音频 -> 单场景片段
func (v *VideoService) renderSceneClip(ctx context.Context, imagePath, audioPath, outPath string, duration float64, overlay string, opts AssembleOptions) error {
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		opts.Width, opts.Height, opts.Width, opts.Height)

	if overlay != "" {
		filter += fmt.Sprintf(",drawtext=text='%s':fontcolor=white:fontsize=%d:box=1:boxcolor=black@0.5:boxborderw=12:x=(w-text_w)/2:y=h-th-60",
			escapeDrawText(overlay), opts.Height/18)
	}

	args := []string{
		"-y",
		"-loop", "1",
		"-t", fmt.Sprintf("%.3f", duration),
		"-i", imagePath,
		"-i", audioPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		outPath,
	}

	return v.runFFmpeg(ctx, args)
}

// 标题卡固定时长（秒）
const titleCardDuration = 3.0

// renderTitleCard 纯色背景 + 标题文字的片头，带静音音轨保证拼接一致
func (v *VideoService) renderTitleCard(ctx context.Context, title, outPath string, opts AssembleOptions) error {
	filter := fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=%d:x=(w-text_w)/2:y=(h-text_h)/2",
		escapeDrawText(title), opts.Height/14)

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x101828:s=%dx%d:d=%.0f", opts.Width, opts.Height, titleCardDuration),
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-vf", filter,
		"-t", fmt.Sprintf("%.0f", titleCardDuration),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		outPath,
	}

	return v.runFFmpeg(ctx, args)
}

// clampTransition 归一化交叉淡化时长
//
// 0取默认值，负值关闭；淡化不能长于最短片段的一半，否则
// xfade 的偏移会叠到前一个转场里。
func clampTransition(transition float64, durations []float64) float64 {
	if transition == 0 {
		transition = defaultTransition
	}
	if transition < 0 {
		return 0
	}
	for _, d := range durations {
		if transition > d/2 {
			transition = d / 2
		}
	}
	return transition
}

// concatClips 按场景顺序拼接片段，相邻片段交叉淡化过渡
//
// transition为0时退化为 concat demuxer 直拼（无重编码）。
func (v *VideoService) concatClips(ctx context.Context, clips []string, durations []float64, transition float64, outPath string) error {
	if len(clips) == 1 {
		return copyFile(clips[0], outPath)
	}
	if transition <= 0 {
		return v.concatClipsDirect(ctx, clips, outPath)
	}

	args := []string{"-y"}
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}
	args = append(args,
		"-filter_complex", buildCrossfadeFilter(durations, transition),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		outPath,
	)

	return v.runFFmpeg(ctx, args)
}

// buildCrossfadeFilter 构造 xfade/acrossfade 滤镜链
//
// 第 i 次转场的偏移 = 前序输出时长 - transition，每次交叠
// 都让总时长缩短一个 transition。
func buildCrossfadeFilter(durations []float64, transition float64) string {
	var b strings.Builder

	offset := durations[0] - transition
	prevV, prevA := "[0:v]", "[0:a]"

	for i := 1; i < len(durations); i++ {
		vOut := fmt.Sprintf("[v%d]", i)
		aOut := fmt.Sprintf("[a%d]", i)
		if i == len(durations)-1 {
			vOut, aOut = "[vout]", "[aout]"
		}

		b.WriteString(fmt.Sprintf("%s[%d:v]xfade=transition=fade:duration=%.3f:offset=%.3f%s;",
			prevV, i, transition, offset, vOut))
		b.WriteString(fmt.Sprintf("%s[%d:a]acrossfade=d=%.3f%s;",
			prevA, i, transition, aOut))

		prevV, prevA = vOut, aOut
		offset += durations[i] - transition
	}

	return strings.TrimSuffix(b.String(), ";")
}

// concatClipsDirect 用 concat demuxer 无重编码直拼
func (v *VideoService) concatClipsDirect(ctx context.Context, clips []string, outPath string) error {
	listPath := filepath.Join(filepath.Dir(outPath), "concat.txt")

	var list strings.Builder
	for _, clip := range clips {
		list.WriteString("file '" + clip + "'\n")
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return fmt.Errorf("写入拼接清单失败: %w", err)
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}

	return v.runFFmpeg(ctx, args)
}

// mixBackgroundMusic 背景音乐循环补齐、压低音量、两端淡入淡出后混入
func (v *VideoService) mixBackgroundMusic(ctx context.Context, videoPath, musicPath, outPath string) error {
	duration := v.probeDuration(ctx, videoPath)
	if duration <= 0 {
		return fmt.Errorf("无法探测视频时长")
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", buildMusicFilter(duration),
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-t", fmt.Sprintf("%.3f", duration),
		outPath,
	}

	return v.runFFmpeg(ctx, args)
}

// buildMusicFilter 构造背景音乐混音滤镜：压到0.2音量，剪到正片长度，
// 开头2秒淡入、结尾3秒淡出，旁白轨不衰减
func buildMusicFilter(duration float64) string {
	fadeStart := duration - 3
	if fadeStart < 0 {
		fadeStart = 0
	}

	return fmt.Sprintf(
		"[1:a]volume=0.2,atrim=0:%.3f,afade=t=in:st=0:d=2,afade=t=out:st=%.3f:d=3[bg];[0:a][bg]amix=inputs=2:duration=first[aout]",
		duration, fadeStart)
}

func (v *VideoService) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, v.ffmpegBin, args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg 执行失败: %w\n%s", err, tailLines(stderr.String(), 10))
	}

	return nil
}

// escapeDrawText 转义 drawtext 滤镜的特殊字符
func escapeDrawText(text string) string {
	return strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	).Replace(text)
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

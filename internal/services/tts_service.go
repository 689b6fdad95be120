// internal/services/tts_service.go
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Corphon/PaperStudioMCP/internal/credential"
	"github.com/Corphon/PaperStudioMCP/internal/models"
	"github.com/Corphon/PaperStudioMCP/internal/utils"
)

const (
	sarvamTTSEndpoint = "https://api.sarvam.ai/text-to-speech"
	// 单次合成的字符上限（按rune计数），超出直接截断
	ttsMaxChars = 500
)

// 角色/性别到发音人的映射
var voiceMap = map[string]string{
	models.RoleTeacher: "abhilash",
	models.RoleStudent: "anushka",
	"male":             "abhilash",
	"female":           "anushka",
}

// ISO语言码到服务端语言码的映射
var languageMap = map[string]string{
	"en": "en-IN",
	"hi": "hi-IN",
	"ta": "ta-IN",
	"te": "te-IN",
	"bn": "bn-IN",
	"mr": "mr-IN",
	"gu": "gu-IN",
	"kn": "kn-IN",
	"ml": "ml-IN",
	"pa": "pa-IN",
	"od": "od-IN",
}

// TTSService 语音合成适配层
//
// 软失败契约：合成失败只记日志并返回 false，调用方决定跳过或降级，
// 管线不因个别片段失败而中断。
type TTSService struct {
	pool     *credential.Pool
	client   *http.Client
	endpoint string
}

// NewTTSService 创建语音合成服务，endpoint为空时使用官方地址
func NewTTSService(pool *credential.Pool, endpoint string) *TTSService {
	if endpoint == "" {
		endpoint = sarvamTTSEndpoint
	}
	return &TTSService{
		pool:     pool,
		client:   &http.Client{Timeout: 60 * time.Second},
		endpoint: endpoint,
	}
}

// VoiceFor 返回角色对应的发音人，未知角色用默认女声
func VoiceFor(roleOrGender string) string {
	if v, ok := voiceMap[strings.ToLower(roleOrGender)]; ok {
		return v
	}
	return "anushka"
}

// LanguageCodeFor 返回服务端语言码
func LanguageCodeFor(lang string) string {
	if v, ok := languageMap[strings.ToLower(lang)]; ok {
		return v
	}
	return "en-IN"
}

// IsConfigured 是否已配置语音密钥
func (s *TTSService) IsConfigured() bool {
	return s.pool.Size(credential.CapabilitySpeech) > 0
}

// Synthesize 合成单段语音，返回WAV数据与是否成功
func (s *TTSService) Synthesize(ctx context.Context, text, roleOrGender, lang string) ([]byte, bool) {
	logger := utils.GetLogger()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	text = TruncateRunes(text, ttsMaxChars)

	apiKey, err := s.pool.Current(credential.CapabilitySpeech)
	if err != nil {
		logger.Warnf("语音合成跳过: %v", err)
		return nil, false
	}

	requestBody := map[string]interface{}{
		"inputs":               []string{text},
		"target_language_code": LanguageCodeFor(lang),
		"speaker":              VoiceFor(roleOrGender),
		"model":                "bulbul:v2",
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		logger.Errorf("语音合成请求序列化失败: %v", err)
		return nil, false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		logger.Errorf("语音合成请求构建失败: %v", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-subscription-key", apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warnf("语音合成请求失败: %v", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warnf("语音合成服务返回状态 %d", resp.StatusCode)
		return nil, false
	}

	var response struct {
		Audios []string `json:"audios"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		logger.Warnf("语音合成响应解析失败: %v", err)
		return nil, false
	}

	if len(response.Audios) == 0 {
		logger.Warnf("语音合成服务没有返回音频")
		return nil, false
	}

	audio, err := base64.StdEncoding.DecodeString(response.Audios[0])
	if err != nil {
		logger.Warnf("语音合成音频解码失败: %v", err)
		return nil, false
	}

	return audio, true
}

// SynthesizeLongText 分段合成长文本并拼接写入目标文件
//
// 句边界切分，每段不超过 maxChunk 字符；任一段成功即算成功。
func (s *TTSService) SynthesizeLongText(ctx context.Context, text, outPath, roleOrGender, lang string, maxChunk int) bool {
	logger := utils.GetLogger()

	if maxChunk <= 0 || maxChunk > ttsMaxChars {
		maxChunk = ttsMaxChars
	}

	chunks := SplitTextForTTS(text, maxChunk)
	if len(chunks) == 0 {
		return false
	}

	var segments [][]byte
	for i, chunk := range chunks {
		audio, ok := s.Synthesize(ctx, chunk, roleOrGender, lang)
		if !ok {
			logger.Warnf("长文本第 %d/%d 段合成失败，跳过", i+1, len(chunks))
			continue
		}
		segments = append(segments, audio)
	}

	if len(segments) == 0 {
		return false
	}

	merged, err := ConcatWAV(segments)
	if err != nil {
		logger.Errorf("音频拼接失败: %v", err)
		return false
	}

	if err := os.WriteFile(outPath, merged, 0644); err != nil {
		logger.Errorf("写入音频文件失败: %v", err)
		return false
	}

	return true
}

// SplitTextForTTS 按句边界切分文本，每段不超过 maxChunk 个字符
//
// 长度统一按rune计数，保证印地语等多字节文本不会被切成非法UTF-8。
func SplitTextForTTS(text string, maxChunk int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentRunes := 0

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		currentRunes = 0
	}

	for _, sentence := range splitSentences(text) {
		// 单句超长时在rune边界硬切
		for utf8.RuneCountInString(sentence) > maxChunk {
			flush()
			head := TruncateRunes(sentence, maxChunk)
			chunks = append(chunks, strings.TrimSpace(head))
			sentence = sentence[len(head):]
		}

		n := utf8.RuneCountInString(sentence)
		if currentRunes+n+1 > maxChunk && currentRunes > 0 {
			flush()
		}

		if currentRunes > 0 {
			current.WriteString(" ")
			currentRunes++
		}
		current.WriteString(sentence)
		currentRunes += n
	}

	flush()

	return chunks
}

// TruncateRunes 在rune边界截断文本，多字节字符不会被截成半个
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}

	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}

	return s
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// ConcatWAV 拼接多段WAV音频
//
// 要求各段采样格式一致；取第一段的头，数据块直接相连，
// 重写RIFF与data块的长度字段。
func ConcatWAV(segments [][]byte) ([]byte, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("没有音频段可拼接")
	}
	if len(segments) == 1 {
		return segments[0], nil
	}

	const headerSize = 44

	var dataSize uint32
	for i, seg := range segments {
		if len(seg) < headerSize || !bytes.HasPrefix(seg, []byte("RIFF")) {
			return nil, fmt.Errorf("第 %d 段不是有效的WAV数据", i+1)
		}
		dataSize += uint32(len(seg) - headerSize)
	}

	out := make([]byte, 0, headerSize+int(dataSize))
	out = append(out, segments[0][:headerSize]...)
	for _, seg := range segments {
		out = append(out, seg[headerSize:]...)
	}

	// RIFF块长度 = 文件长 - 8；data块长度在偏移40
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	binary.LittleEndian.PutUint32(out[40:44], dataSize)

	return out, nil
}

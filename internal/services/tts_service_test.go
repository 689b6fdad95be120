// internal/services/tts_service_test.go
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Corphon/PaperStudioMCP/internal/credential"
)

func TestVoiceFor(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{"teacher", "abhilash"},
		{"student", "anushka"},
		{"male", "abhilash"},
		{"female", "anushka"},
		{"Teacher", "abhilash"}, // 大小写不敏感
		{"narrator", "anushka"}, // 未知角色用默认
		{"", "anushka"},
	}

	for _, tt := range tests {
		if got := VoiceFor(tt.role); got != tt.want {
			t.Errorf("VoiceFor(%q) = %q, 期望 %q", tt.role, got, tt.want)
		}
	}
}

func TestLanguageCodeFor(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"en", "en-IN"},
		{"hi", "hi-IN"},
		{"TA", "ta-IN"},
		{"fr", "en-IN"}, // 不支持的语言回落到英语
		{"", "en-IN"},
	}

	for _, tt := range tests {
		if got := LanguageCodeFor(tt.lang); got != tt.want {
			t.Errorf("LanguageCodeFor(%q) = %q, 期望 %q", tt.lang, got, tt.want)
		}
	}
}

func TestSynthesizeWithoutCredentials(t *testing.T) {
	svc := NewTTSService(credential.NewPool(), "")

	if svc.IsConfigured() {
		t.Fatalf("空凭证池不应视为已配置")
	}

	audio, ok := svc.Synthesize(context.Background(), "hello world", "teacher", "en")
	if ok || audio != nil {
		t.Errorf("无凭证时合成应软失败, 实际 ok=%v audio=%v", ok, audio)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	pool := credential.NewPool()
	pool.Set(credential.CapabilitySpeech, []string{"test-key"})
	svc := NewTTSService(pool, "")

	if _, ok := svc.Synthesize(context.Background(), "   ", "teacher", "en"); ok {
		t.Errorf("空文本合成应返回失败")
	}
}

func TestSynthesizeTruncatesLongTextOnRuneBoundary(t *testing.T) {
	wantAudio := makeWAV([]byte{1, 2, 3, 4})

	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-subscription-key"); got != "test-key" {
			t.Errorf("密钥头 = %q, 期望 test-key", got)
		}

		var body struct {
			Inputs []string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		if len(body.Inputs) == 1 {
			received = body.Inputs[0]
		}

		json.NewEncoder(w).Encode(map[string][]string{
			"audios": {base64.StdEncoding.EncodeToString(wantAudio)},
		})
	}))
	defer server.Close()

	pool := credential.NewPool()
	pool.Set(credential.CapabilitySpeech, []string{"test-key"})
	svc := NewTTSService(pool, server.URL)

	// 600个字符的印地语文本，超出单次合成上限
	text := strings.Repeat("परिणाम", 100)

	audio, ok := svc.Synthesize(context.Background(), text, "teacher", "hi")
	if !ok {
		t.Fatalf("合成应成功")
	}
	if !bytes.Equal(audio, wantAudio) {
		t.Errorf("返回音频与服务端不一致")
	}

	if !utf8.ValidString(received) {
		t.Fatalf("发往服务端的文本不是合法UTF-8: %q", received)
	}
	if n := utf8.RuneCountInString(received); n != 500 {
		t.Errorf("截断后应剩500个字符, 实际 %d", n)
	}
	if received != TruncateRunes(text, 500) {
		t.Errorf("截断应保留原文前500个字符")
	}
}

func TestSplitTextForTTS(t *testing.T) {
	text := "First sentence here. Second sentence follows! Third one asks? Fourth closes."
	chunks := SplitTextForTTS(text, 50)

	if len(chunks) == 0 {
		t.Fatalf("切分结果不应为空")
	}
	for i, chunk := range chunks {
		if len(chunk) > 50 {
			t.Errorf("片段 %d 长度 %d 超过上限: %q", i, len(chunk), chunk)
		}
	}
	if joined := strings.Join(chunks, " "); joined != text {
		t.Errorf("句边界切分不应丢失内容:\n%q\n%q", joined, text)
	}
}

func TestSplitTextForTTSHardSplit(t *testing.T) {
	// 无标点的超长句子只能硬切
	text := strings.Repeat("a", 120)
	chunks := SplitTextForTTS(text, 50)

	if len(chunks) != 3 {
		t.Fatalf("120字符按50硬切应得3段, 实际 %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 50 {
			t.Errorf("片段 %d 长度 %d 超过上限", i, len(chunk))
		}
	}
}

func TestSplitTextForTTSKeepsDevanagariIntact(t *testing.T) {
	// 无标点的长印地语文本只能硬切，切点必须落在rune边界上
	text := strings.Repeat("परिणाम", 100)
	chunks := SplitTextForTTS(text, 500)

	if len(chunks) != 2 {
		t.Fatalf("600个字符按500硬切应得2段, 实际 %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Fatalf("片段 %d 不是合法UTF-8: %q", i, chunk)
		}
		if n := utf8.RuneCountInString(chunk); n > 500 {
			t.Errorf("片段 %d 有 %d 个字符, 超过上限", i, n)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("硬切不应丢失内容")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"短文本原样返回", "hello", 10, "hello"},
		{"等长文本原样返回", "hello", 5, "hello"},
		{"ASCII截断", "hello world", 5, "hello"},
		{"多字节文本按字符截断", "हिंदी भाषा", 5, "हिंदी"},
		{"上限为零返回空串", "hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateRunes(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, 期望 %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("截断结果不是合法UTF-8: %q", got)
			}
		})
	}
}

func TestSplitTextForTTSEmpty(t *testing.T) {
	if chunks := SplitTextForTTS("   ", 100); chunks != nil {
		t.Errorf("空白文本应返回nil, 实际 %v", chunks)
	}
}

// makeWAV 构造一个最小可用的WAV段：44字节头 + 指定数据
func makeWAV(data []byte) []byte {
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(data)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], 22050)
	binary.LittleEndian.PutUint32(header[28:32], 44100)
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(data)))
	return append(header, data...)
}

func TestConcatWAV(t *testing.T) {
	seg1 := makeWAV([]byte{1, 2, 3, 4})
	seg2 := makeWAV([]byte{5, 6})
	seg3 := makeWAV([]byte{7, 8, 9, 10, 11, 12})

	out, err := ConcatWAV([][]byte{seg1, seg2, seg3})
	if err != nil {
		t.Fatalf("拼接失败: %v", err)
	}

	wantData := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if !bytes.Equal(out[44:], wantData) {
		t.Errorf("数据块拼接错误: %v", out[44:])
	}
	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(len(out)-8) {
		t.Errorf("RIFF块长度 = %d, 期望 %d", got, len(out)-8)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(wantData)) {
		t.Errorf("data块长度 = %d, 期望 %d", got, len(wantData))
	}
}

func TestConcatWAVSingleSegment(t *testing.T) {
	seg := makeWAV([]byte{1, 2, 3})

	out, err := ConcatWAV([][]byte{seg})
	if err != nil {
		t.Fatalf("单段拼接失败: %v", err)
	}
	if !bytes.Equal(out, seg) {
		t.Errorf("单段应原样返回")
	}
}

func TestConcatWAVRejectsInvalidSegment(t *testing.T) {
	if _, err := ConcatWAV(nil); err == nil {
		t.Errorf("空输入应报错")
	}
	if _, err := ConcatWAV([][]byte{makeWAV([]byte{1}), []byte("not a wav")}); err == nil {
		t.Errorf("非WAV段应报错")
	}
}

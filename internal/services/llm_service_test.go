// internal/services/llm_service_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Corphon/PaperStudioMCP/internal/config"
	"github.com/Corphon/PaperStudioMCP/internal/credential"
	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/Corphon/PaperStudioMCP/internal/llm"
)

// fakeProviderState 跨提供商实例共享的行为控制
//
// 凭证轮换会重建提供商实例，统计必须放在实例之外。
type fakeProviderState struct {
	mu        sync.Mutex
	calls     int
	response  string
	err       error
	failFirst int // 前N次调用返回err，之后成功
}

func (s *fakeProviderState) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeProvider struct {
	state *fakeProviderState
}

func (p *fakeProvider) Initialize(config map[string]string) error { return nil }
func (p *fakeProvider) GetName() string                           { return "fake" }
func (p *fakeProvider) GetSupportedModels() []string              { return []string{"fake-model"} }

func (p *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	p.state.calls++
	if p.state.err != nil && (p.state.failFirst == 0 || p.state.calls <= p.state.failFirst) {
		return nil, p.state.err
	}
	return &llm.CompletionResponse{Text: p.state.response, ProviderName: "fake"}, nil
}

// newFakeLLMService 注册fake提供商并构建就绪的服务
func newFakeLLMService(t *testing.T, state *fakeProviderState, keys []string) *LLMService {
	t.Helper()

	llm.Register("fake", func() llm.Provider {
		return &fakeProvider{state: state}
	})

	if err := config.InitConfig(t.TempDir()); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}
	if err := config.UpdateLLMConfig("fake", map[string]string{"default_model": "fake-model"}); err != nil {
		t.Fatalf("切换提供商失败: %v", err)
	}

	pool := credential.NewPool()
	pool.Set(credential.CapabilityText, keys)

	svc := NewLLMService(pool)
	if !svc.IsReady() {
		t.Fatalf("服务应已就绪: %s", svc.GetReadyState())
	}
	return svc
}

func TestCompleteTextSuccess(t *testing.T) {
	state := &fakeProviderState{response: "hello from the model"}
	svc := newFakeLLMService(t, state, []string{"key-1"})

	resp, err := svc.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if resp.Text != "hello from the model" {
		t.Errorf("响应文本 = %q", resp.Text)
	}
	if state.callCount() != 1 {
		t.Errorf("成功时应只调用1次, 实际 %d", state.callCount())
	}
}

func TestCompleteTextRotatesOnQuotaError(t *testing.T) {
	state := &fakeProviderState{
		err: &llm.APIError{Provider: "fake", StatusCode: 429, Reason: llm.ReasonQuotaExhausted, Message: "quota"},
	}
	svc := newFakeLLMService(t, state, []string{"key-1", "key-2", "key-3"})

	_, err := svc.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})

	if !apperrors.IsQuotaError(err) {
		t.Fatalf("凭证耗尽应返回配额错误, 实际 %v", err)
	}
	// 每个凭证各尝试一次
	if state.callCount() != 3 {
		t.Errorf("3个凭证应尝试3次, 实际 %d", state.callCount())
	}
}

func TestCompleteTextNoRetryOnBadRequest(t *testing.T) {
	apiErr := &llm.APIError{Provider: "fake", StatusCode: 400, Reason: llm.ReasonBadRequest, Message: "bad prompt"}
	state := &fakeProviderState{err: apiErr}
	svc := newFakeLLMService(t, state, []string{"key-1", "key-2", "key-3"})

	_, err := svc.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})

	var got *llm.APIError
	if !errors.As(err, &got) || got.Reason != llm.ReasonBadRequest {
		t.Fatalf("请求类错误应原样上抛, 实际 %v", err)
	}
	if state.callCount() != 1 {
		t.Errorf("不可重试错误不应轮换, 实际尝试 %d 次", state.callCount())
	}
}

func TestCompleteTextRecoversAfterRotation(t *testing.T) {
	// 第一个凭证失效，轮换后的第二个凭证可用
	state := &fakeProviderState{
		err:       &llm.APIError{Provider: "fake", StatusCode: 401, Reason: llm.ReasonInvalidCredential, Message: "bad key"},
		failFirst: 1,
		response:  "recovered",
	}
	svc := newFakeLLMService(t, state, []string{"key-1", "key-2"})

	resp, err := svc.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("轮换到可用凭证后应成功: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("响应文本 = %q", resp.Text)
	}
}

func TestCompleteTextNotReady(t *testing.T) {
	llm.Register("fake", func() llm.Provider {
		return &fakeProvider{state: &fakeProviderState{}}
	})
	if err := config.InitConfig(t.TempDir()); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	// 空凭证池，服务无法就绪
	svc := NewLLMService(credential.NewPool())
	if svc.IsReady() {
		t.Fatalf("无凭证的服务不应就绪")
	}

	_, err := svc.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, ErrLLMNotReady) {
		t.Errorf("未就绪时应返回ErrLLMNotReady, 实际 %v", err)
	}
}

func TestCreateStructuredCompletionCachesResult(t *testing.T) {
	state := &fakeProviderState{response: `{"title": "Cached Paper"}`}
	svc := newFakeLLMService(t, state, []string{"key-1"})

	var first, second struct {
		Title string `json:"title"`
	}

	if err := svc.CreateStructuredCompletion(context.Background(), "prompt", "system", &first); err != nil {
		t.Fatalf("结构化生成失败: %v", err)
	}
	if err := svc.CreateStructuredCompletion(context.Background(), "prompt", "system", &second); err != nil {
		t.Fatalf("缓存命中路径失败: %v", err)
	}

	if first.Title != "Cached Paper" || second.Title != "Cached Paper" {
		t.Errorf("解析结果错误: %+v %+v", first, second)
	}
	if state.callCount() != 1 {
		t.Errorf("第二次调用应命中缓存, 实际请求 %d 次", state.callCount())
	}
}

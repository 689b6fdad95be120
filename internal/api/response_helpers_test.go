// internal/api/response_helpers_test.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/gin-gonic/gin"
)

func recordResponse(t *testing.T, fn func(c *gin.Context)) (*httptest.ResponseRecorder, *APIResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/test", nil)

	fn(c)

	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法JSON: %v\n%s", err, w.Body.String())
	}
	return w, &resp
}

func TestSuccessResponse(t *testing.T) {
	rh := NewResponseHelper()

	w, resp := recordResponse(t, func(c *gin.Context) {
		rh.Success(c, map[string]string{"key": "value"}, "完成")
	})

	if w.Code != http.StatusOK {
		t.Errorf("状态码 = %d", w.Code)
	}
	if !resp.Success || resp.Message != "完成" {
		t.Errorf("响应结构错误: %+v", resp)
	}
	if resp.Error != nil {
		t.Errorf("成功响应不应带错误字段")
	}
}

func TestAcceptedDefaultMessage(t *testing.T) {
	rh := NewResponseHelper()

	w, resp := recordResponse(t, func(c *gin.Context) {
		rh.Accepted(c, map[string]string{"task_id": "t1"})
	})

	if w.Code != http.StatusAccepted {
		t.Errorf("状态码 = %d", w.Code)
	}
	if resp.Message == "" {
		t.Errorf("202响应应带默认提示")
	}
}

func TestFromAppErrorMapping(t *testing.T) {
	rh := NewResponseHelper()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"校验错误", apperrors.NewValidationError("参数不合法", nil), http.StatusBadRequest, ErrorBadRequest},
		{"未找到", apperrors.NewNotFoundError("论文不存在", nil), http.StatusNotFound, ErrorNotFound},
		{"阶段冲突", apperrors.NewConflictError("需要先生成脚本", nil), http.StatusConflict, ErrorStageConflict},
		{"获取失败", apperrors.NewFetchError("arXiv不可达", nil), http.StatusBadGateway, ErrorPaperFetchFailed},
		{"解析失败", apperrors.NewParseError("模型输出不是JSON", nil), http.StatusBadGateway, ErrorScriptParseFailed},
		{"结构不合法", apperrors.NewSchemaError("缺少场景", nil), http.StatusBadGateway, ErrorScriptInvalid},
		{"配额耗尽", apperrors.NewQuotaError("凭证全部不可用", nil), http.StatusServiceUnavailable, ErrorQuotaExhausted},
		{"装配失败", apperrors.NewAssemblyError("数量不一致", nil), http.StatusConflict, ErrorVideoAssemblyFailed},
		{"生成失败", apperrors.NewGenerationError("模型没有返回结果", nil), http.StatusBadGateway, ErrorGenerationFailed},
		{"未分类错误", errors.New("something broke"), http.StatusInternalServerError, ErrorInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := recordResponse(t, func(c *gin.Context) {
				rh.FromAppError(c, tt.err, "操作失败")
			})

			if w.Code != tt.wantStatus {
				t.Errorf("状态码 = %d, 期望 %d", w.Code, tt.wantStatus)
			}
			if resp.Success {
				t.Errorf("错误响应不应标记成功")
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("错误码 = %+v, 期望 %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		input string
		safe  bool
	}{
		{"普通错误信息", true},
		{"invalid api_key provided", false},
		{"Bearer abc123 rejected", false},
		{"missing api-subscription-key header", false},
		{"生成超时", true},
	}

	for _, tt := range tests {
		got := sanitizeErrorMessage(tt.input)
		if tt.safe && got != tt.input {
			t.Errorf("安全信息不应被改写: %q -> %q", tt.input, got)
		}
		if !tt.safe && got != "An internal error occurred" {
			t.Errorf("敏感信息应被替换: %q -> %q", tt.input, got)
		}
	}
}

func TestNotFoundResourceCodes(t *testing.T) {
	rh := NewResponseHelper()

	tests := []struct {
		resource string
		wantCode string
	}{
		{"论文", ErrorPaperNotFound},
		{"脚本", ErrorScriptNotFound},
		{"音频", ErrorAudioNotFound},
		{"视频", ErrorVideoNotFound},
		{"任务", ErrorTaskNotFound},
		{"别的东西", "RESOURCE_NOT_FOUND"},
	}

	for _, tt := range tests {
		w, resp := recordResponse(t, func(c *gin.Context) {
			rh.NotFound(c, tt.resource)
		})

		if w.Code != http.StatusNotFound {
			t.Errorf("状态码 = %d", w.Code)
		}
		if resp.Error == nil || resp.Error.Code != tt.wantCode {
			t.Errorf("资源 %q 的错误码 = %+v, 期望 %s", tt.resource, resp.Error, tt.wantCode)
		}
	}
}

// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"

	// 论文相关错误
	ErrorPaperNotFound    = "PAPER_NOT_FOUND"
	ErrorPaperFetchFailed = "PAPER_FETCH_FAILED"
	ErrorInvalidArxivURL  = "INVALID_ARXIV_URL"

	// 脚本生成相关错误
	ErrorScriptNotFound    = "SCRIPT_NOT_FOUND"
	ErrorScriptParseFailed = "SCRIPT_PARSE_FAILED"
	ErrorScriptInvalid     = "SCRIPT_INVALID"
	ErrorGenerationFailed  = "GENERATION_FAILED"

	// 管线阶段相关错误
	ErrorStageConflict = "STAGE_CONFLICT"
	ErrorTaskNotFound  = "TASK_NOT_FOUND"

	// 媒体生成相关错误
	ErrorAudioNotFound       = "AUDIO_NOT_FOUND"
	ErrorVideoNotFound       = "VIDEO_NOT_FOUND"
	ErrorImageNotFound       = "IMAGE_NOT_FOUND"
	ErrorTTSUnavailable      = "TTS_UNAVAILABLE"
	ErrorVideoAssemblyFailed = "VIDEO_ASSEMBLY_FAILED"
	ErrorPartialFailure      = "PARTIAL_FAILURE"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
	ErrorQuotaExhausted        = "QUOTA_EXHAUSTED"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"
	ErrorFileNotFound     = "FILE_NOT_FOUND"

	// 配置健康相关
	ErrorConfigUnhealthy = "CONFIG_UNHEALTHY"
	ErrorAPIKeyMissing   = "API_KEY_MISSING"
)

// internal/api/response_helpers.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/PaperStudioMCP/internal/errors"
	"github.com/gin-gonic/gin"
)

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	} else {
		response.Message = "资源创建成功"
	}

	c.JSON(http.StatusCreated, response)
}

// Accepted 202响应，用于已入队的后台任务
func (rh *ResponseHelper) Accepted(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	} else {
		response.Message = "任务已开始，请订阅进度更新"
	}

	c.JSON(http.StatusAccepted, response)
}

// sanitizeErrorMessage removes sensitive information from error messages
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "api-subscription-key", "secret", "token", "bearer"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}

	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	response := &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	message := resource + "不存在"
	code := ErrorNotFound
	if resource != "" {
		code = rh.getResourceNotFoundCode(resource)
	}
	rh.Error(c, http.StatusNotFound, code, message, details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// Forbidden 403错误响应
func (rh *ResponseHelper) Forbidden(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusForbidden, ErrorForbidden, message, details...)
}

// FromAppError 按应用错误分类映射为HTTP响应
//
// 分类不命中时退回500，fallbackMessage作为兜底描述。
func (rh *ResponseHelper) FromAppError(c *gin.Context, err error, fallbackMessage string) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		rh.InternalError(c, fallbackMessage, err.Error())
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		rh.Error(c, http.StatusBadRequest, ErrorBadRequest, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeNotFound:
		rh.Error(c, http.StatusNotFound, ErrorNotFound, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeConflict:
		rh.Error(c, http.StatusConflict, ErrorStageConflict, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeFetch:
		rh.Error(c, http.StatusBadGateway, ErrorPaperFetchFailed, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeParse:
		rh.Error(c, http.StatusBadGateway, ErrorScriptParseFailed, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeSchema:
		rh.Error(c, http.StatusBadGateway, ErrorScriptInvalid, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeQuota:
		rh.Error(c, http.StatusServiceUnavailable, ErrorQuotaExhausted, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeAssembly:
		rh.Error(c, http.StatusConflict, ErrorVideoAssemblyFailed, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypePartial:
		rh.Error(c, http.StatusMultiStatus, ErrorPartialFailure, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeGeneration:
		rh.Error(c, http.StatusBadGateway, ErrorGenerationFailed, appErr.Message, detailOf(appErr))
	case apperrors.ErrorTypeTimeout:
		rh.Error(c, http.StatusRequestTimeout, ErrorInternalError, appErr.Message, detailOf(appErr))
	default:
		rh.InternalError(c, appErr.Message, detailOf(appErr))
	}
}

func detailOf(appErr *apperrors.AppError) string {
	if appErr.Err != nil {
		return appErr.Err.Error()
	}
	return appErr.Code
}

// FileResponse 文件下载响应
func (rh *ResponseHelper) FileResponse(c *gin.Context, content string, filename string, contentType string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.String(http.StatusOK, content)
}

// DownloadResponse 下载响应（强制下载）
func (rh *ResponseHelper) DownloadResponse(c *gin.Context, content string, filename string, contentType string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Length", fmt.Sprintf("%d", len(content)))
	c.String(http.StatusOK, content)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	if requestID := c.GetString("request_id"); requestID != "" {
		return requestID
	}
	return ""
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "论文", "paper":
		return ErrorPaperNotFound
	case "脚本", "script":
		return ErrorScriptNotFound
	case "音频", "audio":
		return ErrorAudioNotFound
	case "视频", "video":
		return ErrorVideoNotFound
	case "图像", "image":
		return ErrorImageNotFound
	case "任务", "task":
		return ErrorTaskNotFound
	case "文件", "file":
		return ErrorFileNotFound
	default:
		return "RESOURCE_NOT_FOUND"
	}
}

// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"

	// 管线错误类型
	ErrorTypeFetch      ErrorType = "fetch_error"               // 外部来源获取失败
	ErrorTypeParse      ErrorType = "parse_error"               // 模型返回无法解析为结构化数据
	ErrorTypeSchema     ErrorType = "schema_error"              // 解析成功但缺少必需字段
	ErrorTypeQuota      ErrorType = "quota_or_credential_error" // 配额耗尽或密钥失效
	ErrorTypeAssembly   ErrorType = "assembly_error"            // 视频装配前置条件失败
	ErrorTypePartial    ErrorType = "partial_failure"           // 批处理部分成功
	ErrorTypeGeneration ErrorType = "generation_error"          // 模型生成内容不可用
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewFetchError 创建来源获取错误
func NewFetchError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeFetch, message, originalError)
}

// NewParseError 创建结构化解析错误
func NewParseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeParse, message, originalError)
}

// NewSchemaError 创建结构校验错误
func NewSchemaError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSchema, message, originalError)
}

// NewQuotaError 创建配额/密钥错误
func NewQuotaError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeQuota, message, originalError)
}

// NewAssemblyError 创建装配错误
func NewAssemblyError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAssembly, message, originalError)
}

// NewGenerationError 创建生成内容错误
func NewGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeGeneration, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsParseError 检查是否为解析错误
func IsParseError(err error) bool {
	return hasType(err, ErrorTypeParse)
}

// IsSchemaError 检查是否为结构校验错误
func IsSchemaError(err error) bool {
	return hasType(err, ErrorTypeSchema)
}

// IsQuotaError 检查是否为配额/密钥错误
func IsQuotaError(err error) bool {
	return hasType(err, ErrorTypeQuota)
}

// IsAssemblyError 检查是否为装配错误
func IsAssemblyError(err error) bool {
	return hasType(err, ErrorTypeAssembly)
}

func hasType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeFetch:
		return "FETCH_ERROR"
	case ErrorTypeParse:
		return "PARSE_ERROR"
	case ErrorTypeSchema:
		return "SCHEMA_ERROR"
	case ErrorTypeQuota:
		return "QUOTA_OR_CREDENTIAL_ERROR"
	case ErrorTypeAssembly:
		return "ASSEMBLY_ERROR"
	case ErrorTypePartial:
		return "PARTIAL_FAILURE"
	case ErrorTypeGeneration:
		return "GENERATION_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}

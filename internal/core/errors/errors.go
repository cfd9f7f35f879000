// Package errors 提供统一的错误处理机制
//
// 设计原则：
// 1. 所有错误都可以通过 errors.Is() 和 errors.As() 进行类型检查
// 2. 错误码用于协议回复、日志分类和重试判断
// 3. 支持错误链（error wrapping）
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 错误码定义
const (
	// 请求错误
	CodeInvalidParam   ErrorCode = "INVALID_PARAM"
	CodeInvalidAddress ErrorCode = "INVALID_ADDRESS"
	CodeInvalidConfig  ErrorCode = "INVALID_CONFIG"
	CodeInvalidData    ErrorCode = "INVALID_DATA"
	CodeNotFound       ErrorCode = "NOT_FOUND"

	// 通道状态错误
	CodeNotConnected         ErrorCode = "NOT_CONNECTED"
	CodePresenceNotSupported ErrorCode = "PRESENCE_NOT_SUPPORTED"
	CodePublishNotAllowed    ErrorCode = "PUBLISH_NOT_ALLOWED"
	CodeChannelShutdown      ErrorCode = "CHANNEL_SHUTDOWN"
	CodeAlreadyInitialized   ErrorCode = "ALREADY_INITIALIZED"
	CodeStreamOverflow       ErrorCode = "STREAM_OVERFLOW"

	// 传输错误
	CodeTransportError  ErrorCode = "TRANSPORT_ERROR"
	CodeSubscribeFailed ErrorCode = "SUBSCRIBE_FAILED"
	CodeProtocolError   ErrorCode = "PROTOCOL_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT"

	// 权限错误
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeRateLimited  ErrorCode = "RATE_LIMITED"

	// 系统错误
	CodeInternal      ErrorCode = "INTERNAL_ERROR"
	CodeStorageError  ErrorCode = "STORAGE_ERROR"
	CodeServiceClosed ErrorCode = "SERVICE_CLOSED"
)

// Error 统一错误类型
type Error struct {
	Code    ErrorCode // 错误码
	Message string    // 错误消息
	Cause   error     // 原始错误
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New 创建新错误
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf 创建格式化错误
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf 格式化包装错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// GetCode 从错误中提取错误码，非 *Error 返回 CodeInternal
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode 检查错误链中是否有指定错误码
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Is 重导出 errors.Is
var Is = errors.Is

// As 重导出 errors.As
var As = errors.As

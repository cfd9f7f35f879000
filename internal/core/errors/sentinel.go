package errors

// 预定义哨兵错误（用于 errors.Is 比较）
var (
	ErrInvalidAddress       = New(CodeInvalidAddress, "invalid channel address")
	ErrInvalidConfig        = New(CodeInvalidConfig, "invalid channel config")
	ErrInvalidData          = New(CodeInvalidData, "invalid data")
	ErrNotFound             = New(CodeNotFound, "not found")
	ErrNotConnected         = New(CodeNotConnected, "not connected")
	ErrPresenceNotSupported = New(CodePresenceNotSupported, "presence is not supported on this channel")
	ErrPublishNotAllowed    = New(CodePublishNotAllowed, "publishing is not allowed on this channel")
	ErrChannelShutdown      = New(CodeChannelShutdown, "channel is shut down")
	ErrAlreadyInitialized   = New(CodeAlreadyInitialized, "channel already initialized")
	ErrStreamOverflow       = New(CodeStreamOverflow, "stream consumer fell behind")
	ErrTransportError       = New(CodeTransportError, "transport error")
	ErrSubscribeFailed      = New(CodeSubscribeFailed, "subscribe failed")
	ErrProtocolError        = New(CodeProtocolError, "protocol error")
	ErrTimeout              = New(CodeTimeout, "operation timeout")
	ErrUnauthorized         = New(CodeUnauthorized, "unauthorized")
	ErrForbidden            = New(CodeForbidden, "forbidden")
	ErrRateLimited          = New(CodeRateLimited, "rate limit exceeded")
	ErrInternal             = New(CodeInternal, "internal error")
	ErrServiceClosed        = New(CodeServiceClosed, "service closed")
)

// IsRetryable 检查错误是否值得调用方重新订阅
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeTransportError, CodeNotConnected, CodeRateLimited, CodeStreamOverflow:
		return true
	default:
		return false
	}
}

// IsChannelFatal 检查错误是否会终止整个通道（而非单个数据流）
func IsChannelFatal(err error) bool {
	switch GetCode(err) {
	case CodeInvalidAddress, CodeInvalidConfig, CodeSubscribeFailed, CodeChannelShutdown, CodeForbidden, CodeUnauthorized:
		return true
	default:
		return false
	}
}

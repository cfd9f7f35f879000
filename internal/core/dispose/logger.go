package dispose

import "sync/atomic"

// LogFunc 日志输出函数，level 取 debug/warn/error
type LogFunc func(level string, format string, args ...interface{})

// dispose 不能依赖 log 包，由 log.Configure 注入输出
var logHook atomic.Pointer[LogFunc]

// SetLogger 设置日志输出，nil 表示静默
func SetLogger(fn LogFunc) {
	if fn == nil {
		logHook.Store(nil)
		return
	}
	logHook.Store(&fn)
}

func logf(level, format string, args ...interface{}) {
	if fn := logHook.Load(); fn != nil {
		(*fn)(level, format, args...)
	}
}

func debugf(format string, args ...interface{}) { logf("debug", format, args...) }
func warnf(format string, args ...interface{})  { logf("warn", format, args...) }
func errorf(format string, args ...interface{}) { logf("error", format, args...) }

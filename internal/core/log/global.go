package log

// Debugf 使用默认 Logger 记录调试日志
func Debugf(format string, args ...interface{}) {
	Default().Debugf(format, args...)
}

// Infof 使用默认 Logger 记录信息日志
func Infof(format string, args ...interface{}) {
	Default().Infof(format, args...)
}

// Warnf 使用默认 Logger 记录警告日志
func Warnf(format string, args ...interface{}) {
	Default().Warnf(format, args...)
}

// Errorf 使用默认 Logger 记录错误日志
func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}


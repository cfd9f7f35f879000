// Package log 基于 logrus 的日志接口，全局默认 Logger 由 Configure 替换
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"live-core/internal/core/dispose"

	"github.com/sirupsen/logrus"
)

// Logger 日志接口
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// Config 日志配置
type Config struct {
	Level  string `json:"level" yaml:"level"`   // debug/info/warn/error
	Format string `json:"format" yaml:"format"` // text/json
	Output string `json:"output" yaml:"output"` // stdout/stderr/file/discard
	File   string `json:"file" yaml:"file"`

	// Fields 附加到每条日志的固定字段，例如节点 ID
	Fields map[string]interface{} `json:"-" yaml:"-"`
}

// ParseLevel 解析日志级别，未知级别返回 info
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func openOutput(cfg Config) (io.Writer, io.Closer, error) {
	if cfg.File == "" && cfg.Output != "file" {
		switch cfg.Output {
		case "stdout":
			return os.Stdout, nil, nil
		case "discard":
			return io.Discard, nil, nil
		default:
			return os.Stderr, nil, nil
		}
	}
	if cfg.File == "" {
		return nil, nil, fmt.Errorf("log output is file but no file path configured")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
	}
	return f, f, nil
}

// New 按配置创建 Logger，返回的 io.Closer 用于关闭日志文件（可能为 nil）
func New(cfg Config) (Logger, io.Closer, error) {
	out, closer, err := openOutput(cfg)
	if err != nil {
		return nil, nil, err
	}

	l := logrus.New()
	l.SetLevel(ParseLevel(cfg.Level))
	l.SetOutput(out)
	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	entry := logrus.NewEntry(l)
	if len(cfg.Fields) > 0 {
		entry = entry.WithFields(logrus.Fields(cfg.Fields))
	}
	return &logrusLogger{entry: entry}, closer, nil
}

// Configure 按配置替换默认 Logger，并把 dispose 包的日志接入
//
// 上一次 Configure 打开的日志文件由调用方通过返回的 Closer 关闭。
func Configure(cfg Config) (io.Closer, error) {
	logger, closer, err := New(cfg)
	if err != nil {
		return nil, err
	}
	SetDefault(logger)
	dispose.SetLogger(func(level string, format string, args ...interface{}) {
		l := Default()
		switch level {
		case "debug":
			l.Debugf(format, args...)
		case "warn":
			l.Warnf(format, args...)
		case "error":
			l.Errorf(format, args...)
		default:
			l.Infof(format, args...)
		}
	})
	return closer, nil
}

type logrusLogger struct {
	entry *logrus.Entry
}

// FromLogrus 包装已有的 logrus.Logger
func FromLogrus(l *logrus.Logger) Logger {
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// nopLogger 静默日志
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{})              {}
func (nopLogger) Infof(string, ...interface{})               {}
func (nopLogger) Warnf(string, ...interface{})               {}
func (nopLogger) Errorf(string, ...interface{})              {}
func (n nopLogger) WithField(string, interface{}) Logger     { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger { return n }

// Nop 返回不输出任何内容的 Logger
func Nop() Logger {
	return nopLogger{}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = nopLogger{}
)

// Default 获取默认 Logger，未配置前静默
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault 设置默认 Logger，nil 恢复为静默
func SetDefault(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Package logger builds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志配置，由 config.LoggingConfig 映射而来。
type Options struct {
	Level      string
	Format     string // text | json
	File       string // 为空时只写 Console
	MaxSizeMB  int
	MaxBackups int
	Console    io.Writer
}

// New 创建 slog.Logger；File 非空时同时写入滚动日志文件。
// 返回的 close 函数负责关闭文件句柄。
func New(opts Options) (*slog.Logger, func() error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var w io.Writer = console
	closeFn := func() error { return nil }
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    positiveOr(opts.MaxSizeMB, 10),
			MaxBackups: positiveOr(opts.MaxBackups, 5),
			MaxAge:     30,
			Compress:   true,
		}
		w = io.MultiWriter(console, rotator)
		closeFn = rotator.Close
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: true,
	}
	var handler slog.Handler
	if strings.ToLower(opts.Format) == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler), closeFn
}

// ParseLevel 解析日志级别字符串，未知值回落到 info。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard 返回丢弃所有输出的 logger，供测试和未配置的组件使用。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

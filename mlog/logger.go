package mlog

import (
	"strings"
)

type Logger interface {
	Trace(v ...any)
	Debug(v ...any)
	Info(v ...any)
	Notice(v ...any)
	Warn(v ...any)
	Error(v ...any)
	Fatal(v ...any)

	Tracef(format string, v ...any)
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Noticef(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)
}

var logger Logger

func SetLogger(l Logger) {
	logger = l
}

// UseFileLogger 日志写入 path/logName.log, 按大小滚动
func UseFileLogger(path string, logName string, level Level, stdOut bool) error {
	l, err := newZapLogger(path, logName, level, stdOut)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

func UseStdLogger(level Level) error {
	SetLogger(newStdLogger(level, nil))
	return nil
}

// Sync 刷新并关闭当前日志
func Sync() error {
	if s, ok := logger.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

type Level uint32

const (
	FatalLevel Level = iota
	ErrorLevel
	WarnLevel
	NoticeLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

// ParseLevel 未知的级别按info处理
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "fatal":
		return FatalLevel
	case "error":
		return ErrorLevel
	case "warn", "warning":
		return WarnLevel
	case "notice":
		return NoticeLevel
	case "debug":
		return DebugLevel
	case "trace":
		return TraceLevel
	}
	return InfoLevel
}

func getLevelTag(level Level) string {
	switch level {
	case FatalLevel:
		return "[fatal] "
	case ErrorLevel:
		return "[error] "
	case WarnLevel:
		return "[warn] "
	case NoticeLevel:
		return "[notice] "
	case InfoLevel:
		return "[info] "
	case DebugLevel:
		return "[debug] "
	case TraceLevel:
		return "[trace] "
	}
	return ""
}

func Trace(a ...any) {
	if logger == nil {
		return
	}
	logger.Trace(a...)
}

func Tracef(format string, a ...any) {
	if logger == nil {
		return
	}
	logger.Tracef(format, a...)
}

func Debug(a ...any) {
	if logger == nil {
		return
	}
	logger.Debug(a...)
}

func Debugf(format string, a ...any) {
	if logger == nil {
		return
	}
	logger.Debugf(format, a...)
}

func Info(a ...any) {
	if logger == nil {
		return
	}
	logger.Info(a...)
}

func Infof(format string, a ...any) {
	if logger == nil {
		return
	}
	logger.Infof(format, a...)
}

func Notice(a ...any) {
	if logger == nil {
		return
	}
	logger.Notice(a...)
}

func Noticef(format string, a ...any) {
	if logger == nil {
		return
	}
	logger.Noticef(format, a...)
}

func Warn(a ...any) {
	if logger == nil {
		return
	}
	logger.Warn(a...)
}

func Warnf(format string, a ...any) {
	if logger == nil {
		return
	}
	logger.Warnf(format, a...)
}

func Error(a ...any) {
	if logger == nil {
		return
	}
	logger.Error(a...)
}

func Errorf(format string, a ...any) {
	if logger == nil {
		return
	}
	logger.Errorf(format, a...)
}

func Fatal(a ...any) {
	if logger == nil {
		return
	}
	logger.Fatal(a...)
}

func Fatalf(format string, a ...any) {
	if logger == nil {
		return
	}
	logger.Fatalf(format, a...)
}

package mlog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// stdLogger 基于标准库log, 同步输出
type stdLogger struct {
	level Level
	ll    *log.Logger
}

func newStdLogger(level Level, w io.Writer) *stdLogger {
	if w == nil {
		w = os.Stdout
	}
	return &stdLogger{
		level: level,
		ll:    log.New(w, "", log.Ldate|log.Lmicroseconds),
	}
}

func (l *stdLogger) IsLevelEnabled(level Level) bool {
	return l.level >= level
}

func (l *stdLogger) Log(level Level, args ...any) {
	if l.IsLevelEnabled(level) {
		l.ll.Println(getLevelTag(level) + fmt.Sprint(args...))
	}
}

func (l *stdLogger) Logf(level Level, format string, args ...any) {
	if l.IsLevelEnabled(level) {
		l.ll.Println(getLevelTag(level) + fmt.Sprintf(format, args...))
	}
}

func (l *stdLogger) Trace(v ...any)                 { l.Log(TraceLevel, v...) }
func (l *stdLogger) Tracef(format string, v ...any) { l.Logf(TraceLevel, format, v...) }
func (l *stdLogger) Debug(v ...any)                 { l.Log(DebugLevel, v...) }
func (l *stdLogger) Debugf(format string, v ...any) { l.Logf(DebugLevel, format, v...) }
func (l *stdLogger) Info(v ...any)                  { l.Log(InfoLevel, v...) }
func (l *stdLogger) Infof(format string, v ...any)  { l.Logf(InfoLevel, format, v...) }
func (l *stdLogger) Notice(v ...any)                { l.Log(NoticeLevel, v...) }
func (l *stdLogger) Noticef(format string, v ...any) {
	l.Logf(NoticeLevel, format, v...)
}
func (l *stdLogger) Warn(v ...any)                  { l.Log(WarnLevel, v...) }
func (l *stdLogger) Warnf(format string, v ...any)  { l.Logf(WarnLevel, format, v...) }
func (l *stdLogger) Error(v ...any)                 { l.Log(ErrorLevel, v...) }
func (l *stdLogger) Errorf(format string, v ...any) { l.Logf(ErrorLevel, format, v...) }

func (l *stdLogger) Fatal(v ...any) {
	l.Log(FatalLevel, v...)
	os.Exit(1)
}

func (l *stdLogger) Fatalf(format string, v ...any) {
	l.Logf(FatalLevel, format, v...)
	os.Exit(1)
}

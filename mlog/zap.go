package mlog

import (
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 100
	maxLogBackups = 10
)

// zapLogger 文件日志, lumberjack负责滚动
type zapLogger struct {
	level Level
	sugar *zap.SugaredLogger
	sink  *lumberjack.Logger
}

func newZapLogger(logpath, logName string, level Level, stdOut bool) (*zapLogger, error) {
	// 默认使用当前路径
	if len(logpath) == 0 {
		logpath = "."
	}
	if err := os.MkdirAll(logpath, 0755); err != nil {
		return nil, err
	}
	sink := &lumberjack.Logger{
		Filename:   filepath.Join(logpath, genLogName(logName)),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		LocalTime:  true,
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	ws := zapcore.AddSync(sink)
	if stdOut {
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.Lock(os.Stdout))
	}
	// 级别在外层过滤
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, zapcore.DebugLevel)
	return &zapLogger{
		level: level,
		sugar: zap.New(core).Sugar(),
		sink:  sink,
	}, nil
}

func genLogName(logName string) string {
	if logName == "" {
		logName = "mlog"
	}
	return logName + ".log"
}

func (l *zapLogger) IsLevelEnabled(level Level) bool {
	return l.level >= level
}

func (l *zapLogger) log(level Level, format string, args []any) {
	if !l.IsLevelEnabled(level) {
		return
	}
	switch level {
	case TraceLevel, DebugLevel:
		l.sugar.Logf(zapcore.DebugLevel, format, args...)
	case InfoLevel, NoticeLevel:
		l.sugar.Logf(zapcore.InfoLevel, format, args...)
	case WarnLevel:
		l.sugar.Logf(zapcore.WarnLevel, format, args...)
	case ErrorLevel:
		l.sugar.Logf(zapcore.ErrorLevel, format, args...)
	case FatalLevel:
		l.sugar.Logf(zapcore.FatalLevel, format, args...)
	}
}

func (l *zapLogger) Trace(v ...any)                  { l.log(TraceLevel, "", v) }
func (l *zapLogger) Tracef(format string, v ...any)  { l.log(TraceLevel, format, v) }
func (l *zapLogger) Debug(v ...any)                  { l.log(DebugLevel, "", v) }
func (l *zapLogger) Debugf(format string, v ...any)  { l.log(DebugLevel, format, v) }
func (l *zapLogger) Info(v ...any)                   { l.log(InfoLevel, "", v) }
func (l *zapLogger) Infof(format string, v ...any)   { l.log(InfoLevel, format, v) }
func (l *zapLogger) Notice(v ...any)                 { l.log(NoticeLevel, "", v) }
func (l *zapLogger) Noticef(format string, v ...any) { l.log(NoticeLevel, format, v) }
func (l *zapLogger) Warn(v ...any)                   { l.log(WarnLevel, "", v) }
func (l *zapLogger) Warnf(format string, v ...any)   { l.log(WarnLevel, format, v) }
func (l *zapLogger) Error(v ...any)                  { l.log(ErrorLevel, "", v) }
func (l *zapLogger) Errorf(format string, v ...any)  { l.log(ErrorLevel, format, v) }
func (l *zapLogger) Fatal(v ...any)                  { l.log(FatalLevel, "", v) }
func (l *zapLogger) Fatalf(format string, v ...any)  { l.log(FatalLevel, format, v) }

func (l *zapLogger) Sync() error {
	err := l.sugar.Sync()
	return multierr.Append(err, l.sink.Close())
}

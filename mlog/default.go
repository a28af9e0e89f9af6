package mlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultDirMode    os.FileMode = 0755
	defaultMaxSizeMB              = 100
	defaultMaxBackups             = 10
)

type loggerImp struct {
	path   string
	file   *lumberjack.Logger
	zl     *zap.Logger
	sugar  *zap.SugaredLogger
	level  Level
	stdOut bool
}

func newDefaultLogger(logpath, logName string, level Level, stdOut bool) (*loggerImp, error) {
	// 默认使用当前路径
	if len(logpath) == 0 {
		logpath = "."
	}
	if err := os.MkdirAll(logpath, defaultDirMode); err != nil {
		return nil, err
	}
	rotate := &lumberjack.Logger{
		Filename:   filepath.Join(logpath, genLogName(logName)),
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		LocalTime:  true,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	// 级别在mlog这一层过滤, zap全部放行
	enabler := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(rotate), enabler),
	}
	if stdOut {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), enabler))
	}
	zl := zap.New(zapcore.NewTee(cores...))

	return &loggerImp{
		path:   logpath,
		file:   rotate,
		zl:     zl,
		sugar:  zl.Sugar(),
		level:  level,
		stdOut: stdOut,
	}, nil
}

func (me *loggerImp) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = me.zl.Sync()
		if err := me.file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "mlog close file error %v\n", err)
		}
	}()
}

func (me *loggerImp) Trace(args ...interface{}) {
	if me.IsLevelEnabled(TraceLevel) {
		me.sugar.Debug(getLevelTag(TraceLevel) + fmt.Sprint(args...))
	}
}

func (me *loggerImp) Tracef(format string, args ...interface{}) {
	if me.IsLevelEnabled(TraceLevel) {
		me.sugar.Debug(getLevelTag(TraceLevel) + fmt.Sprintf(format, args...))
	}
}

func (me *loggerImp) Debug(args ...interface{}) {
	if me.IsLevelEnabled(DebugLevel) {
		me.sugar.Debug(args...)
	}
}

func (me *loggerImp) Debugf(format string, args ...interface{}) {
	if me.IsLevelEnabled(DebugLevel) {
		me.sugar.Debugf(format, args...)
	}
}

func (me *loggerImp) Info(args ...interface{}) {
	if me.IsLevelEnabled(InfoLevel) {
		me.sugar.Info(args...)
	}
}

func (me *loggerImp) Infof(format string, args ...interface{}) {
	if me.IsLevelEnabled(InfoLevel) {
		me.sugar.Infof(format, args...)
	}
}

func (me *loggerImp) Notice(args ...interface{}) {
	if me.IsLevelEnabled(NoticeLevel) {
		me.sugar.Info(getLevelTag(NoticeLevel) + fmt.Sprint(args...))
	}
}

func (me *loggerImp) Noticef(format string, args ...interface{}) {
	if me.IsLevelEnabled(NoticeLevel) {
		me.sugar.Info(getLevelTag(NoticeLevel) + fmt.Sprintf(format, args...))
	}
}

func (me *loggerImp) Warn(args ...interface{}) {
	if me.IsLevelEnabled(WarnLevel) {
		me.sugar.Warn(args...)
	}
}

func (me *loggerImp) Warnf(format string, args ...interface{}) {
	if me.IsLevelEnabled(WarnLevel) {
		me.sugar.Warnf(format, args...)
	}
}

func (me *loggerImp) Error(args ...interface{}) {
	if me.IsLevelEnabled(ErrorLevel) {
		me.sugar.Error(args...)
	}
}

func (me *loggerImp) Errorf(format string, args ...interface{}) {
	if me.IsLevelEnabled(ErrorLevel) {
		me.sugar.Errorf(format, args...)
	}
}

// Fatal 写完日志后 zap 会退出进程
func (me *loggerImp) Fatal(args ...interface{}) {
	me.sugar.Fatal(args...)
}

func (me *loggerImp) Fatalf(format string, args ...interface{}) {
	me.sugar.Fatalf(format, args...)
}

func (me *loggerImp) IsLevelEnabled(level Level) bool {
	return me.level >= level
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

func genLogName(logName string) string {
	if logName == "" {
		logName = "mlog"
	}
	return logName + ".log"
}

package logger

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level 日志级别
type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// Field 结构化日志字段
type Field = zap.Field

// Logger 对zap的简单封装
type Logger struct {
	l     *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

var std atomic.Pointer[Logger]

func init() {
	std.Store(New(os.Stderr, InfoLevel))
}

// New 创建写入out的日志器
func New(out io.Writer, level Level) *Logger {
	if out == nil {
		out = os.Stderr
	}
	atom := zap.NewAtomicLevelAt(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), atom)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{l: l, sugar: l.Sugar(), level: atom}
}

// NewProductionRotateByTime 按天切割的日志文件，保留7天
func NewProductionRotateByTime(filename string) io.Writer {
	w, err := rotatelogs.New(
		filename+".%Y%m%d",
		rotatelogs.WithLinkName(filename),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		Default().Errorf("rotatelogs init failed, fallback to stderr: %v", err)
		return os.Stderr
	}
	return w
}

// NewProductionRotateBySize 按大小切割的日志文件
func NewProductionRotateBySize(filename string, maxSizeMB int) io.Writer {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

// Default 返回全局日志器
func Default() *Logger {
	return std.Load()
}

// ReplaceDefault 替换全局日志器
func ReplaceDefault(l *Logger) {
	if l != nil {
		std.Store(l)
	}
}

// SetLevel 修改全局日志器级别
func SetLevel(level Level) {
	Default().SetLevel(level)
}

// ParseLevel 解析配置中的级别字符串，未知值返回Info
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func Sync() error {
	return Default().Sync()
}

func (lg *Logger) SetLevel(level Level) { lg.level.SetLevel(level) }
func (lg *Logger) Level() Level         { return lg.level.Level() }
func (lg *Logger) Sync() error          { return lg.l.Sync() }

// Named 返回带模块名的子日志器，与父日志器共享级别
func (lg *Logger) Named(name string) *Logger {
	l := lg.l.Named(name)
	return &Logger{l: l, sugar: l.Sugar(), level: lg.level}
}

// With 返回附带固定字段的子日志器
func (lg *Logger) With(fields ...Field) *Logger {
	l := lg.l.With(fields...)
	return &Logger{l: l, sugar: l.Sugar(), level: lg.level}
}

func (lg *Logger) Debug(args ...interface{})                 { lg.sugar.Debug(args...) }
func (lg *Logger) Info(args ...interface{})                  { lg.sugar.Info(args...) }
func (lg *Logger) Warn(args ...interface{})                  { lg.sugar.Warn(args...) }
func (lg *Logger) Error(args ...interface{})                 { lg.sugar.Error(args...) }
func (lg *Logger) Debugf(format string, args ...interface{}) { lg.sugar.Debugf(format, args...) }
func (lg *Logger) Infof(format string, args ...interface{})  { lg.sugar.Infof(format, args...) }
func (lg *Logger) Warnf(format string, args ...interface{})  { lg.sugar.Warnf(format, args...) }
func (lg *Logger) Errorf(format string, args ...interface{}) { lg.sugar.Errorf(format, args...) }

func Debug(args ...interface{})                 { Default().sugar.Debug(args...) }
func Info(args ...interface{})                  { Default().sugar.Info(args...) }
func Warn(args ...interface{})                  { Default().sugar.Warn(args...) }
func Error(args ...interface{})                 { Default().sugar.Error(args...) }
func Debugf(format string, args ...interface{}) { Default().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Default().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Default().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Default().sugar.Errorf(format, args...) }

// 常用字段构造
var (
	String = zap.String
	Uint32 = zap.Uint32
	Int    = zap.Int
	Err    = zap.Error
)

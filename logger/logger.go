package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of the log
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// LogFormat defines the output format of the log
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Logger is the interface for logging SQL and internal messages
type Logger interface {
	SetLevel(level LogLevel)
	SetFormat(format LogFormat)
	SetOutput(w io.Writer)
	WithFields(fields map[string]any) Logger
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	SQL(sql string, duration time.Duration, args ...any)
}

// Config describes where and how log lines are written.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ParseLevel maps a level name to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "silent", "off":
		return LogLevelSilent
	case "error":
		return LogLevelError
	case "warn", "warning":
		return LogLevelWarn
	case "debug":
		return LogLevelDebug
	}
	return LogLevelInfo
}

// zapLogger implements Logger on top of zap. Settings are applied by
// rebuilding the core so derived loggers keep their fields.
type zapLogger struct {
	level  zap.AtomicLevel
	format LogFormat
	writer zapcore.WriteSyncer
	file   io.Writer
	fields map[string]any
	sugar  *zap.SugaredLogger
}

// NewStdLogger creates a text logger writing to stdout at info level.
func NewStdLogger() Logger {
	l := &zapLogger{
		level:  zap.NewAtomicLevelAt(zapcore.InfoLevel),
		format: LogFormatText,
		writer: zapcore.Lock(os.Stdout),
		fields: make(map[string]any),
	}
	l.build()
	return l
}

// New creates a logger from cfg. A non-empty File adds a rotating JSON
// output next to the console one.
func New(cfg Config) Logger {
	l := NewStdLogger().(*zapLogger)
	if cfg.Format != "" {
		l.format = LogFormat(strings.ToLower(cfg.Format))
	}
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(1, cfg.MaxSize),
			MaxBackups: max(0, cfg.MaxBackups),
			MaxAge:     max(0, cfg.MaxAge),
			Compress:   cfg.Compress,
		}
	}
	l.SetLevel(ParseLevel(cfg.Level))
	l.build()
	return l
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	l := NewStdLogger()
	l.SetLevel(LogLevelSilent)
	return l
}

func (l *zapLogger) build() {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var enc zapcore.Encoder
	if l.format == LogFormatJSON {
		enc = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		textCfg := encoderCfg
		textCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		textCfg.ConsoleSeparator = " "
		enc = zapcore.NewConsoleEncoder(textCfg)
	}

	core := zapcore.NewCore(enc, l.writer, l.level)
	if l.file != nil {
		core = zapcore.NewTee(core, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(l.file), l.level))
	}

	zl := zap.New(core)
	if l.format != LogFormatJSON {
		zl = zl.Named("JORM")
	}
	args := make([]any, 0, len(l.fields)*2)
	for k, v := range l.fields {
		args = append(args, k, v)
	}
	l.sugar = zl.Sugar().With(args...)
}

func (l *zapLogger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelSilent:
		l.level.SetLevel(zapcore.FatalLevel + 1)
	case LogLevelError:
		l.level.SetLevel(zapcore.ErrorLevel)
	case LogLevelWarn:
		l.level.SetLevel(zapcore.WarnLevel)
	case LogLevelDebug:
		l.level.SetLevel(zapcore.DebugLevel)
	default:
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

func (l *zapLogger) SetFormat(format LogFormat) {
	l.format = format
	l.build()
}

func (l *zapLogger) SetOutput(w io.Writer) {
	l.writer = zapcore.AddSync(w)
	l.build()
}

func (l *zapLogger) WithFields(fields map[string]any) Logger {
	nl := &zapLogger{
		level:  l.level,
		format: l.format,
		writer: l.writer,
		file:   l.file,
		fields: make(map[string]any, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	for k, v := range fields {
		nl.fields[k] = v
	}
	nl.build()
	return nl
}

func (l *zapLogger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *zapLogger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *zapLogger) Warn(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *zapLogger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

func (l *zapLogger) SQL(sql string, duration time.Duration, args ...any) {
	if l.format == LogFormatJSON {
		l.sugar.Infow("SQL", "sql", sql, "duration", duration.String(), "args", args)
		return
	}
	l.sugar.Infof("[%v] %s | args: %v", duration, sql, args)
}

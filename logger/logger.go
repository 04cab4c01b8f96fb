// Package logger is the engine's levelled logger.  It keeps the small
// Info/Infof/Error/Errorf surface main and the CLI use and hands the
// underlying zap logger to packages that log structured fields.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error.  Empty means info.
	Level string

	// Format is "console" or "json".  Empty means console.
	Format string

	// File, when set, also writes JSON lines to a rotating file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Output replaces stderr for the console core.  Used by tests.
	Output io.Writer
}

// Logger is safe for concurrent use.  SetLevel may be called at any time.
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	var out io.Writer = os.Stderr
	if opts.Output != nil {
		out = opts.Output
	}
	enc, err := encoder(opts.Format)
	if err != nil {
		return nil, err
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), level)}

	if opts.File != "" {
		file := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
		fileEnc, _ := encoder("json")
		cores = append(cores, zapcore.NewCore(fileEnc, file, level))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
	return wrap(z, level), nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return wrap(zap.NewNop(), zap.NewAtomicLevel())
}

func wrap(z *zap.Logger, level zap.AtomicLevel) *Logger {
	return &Logger{
		zap:   z,
		sugar: z.WithOptions(zap.AddCallerSkip(1)).Sugar(),
		level: level,
	}
}

func encoder(format string) (zapcore.Encoder, error) {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	switch format {
	case "", "console":
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	case "json":
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	}
	return nil, fmt.Errorf("logger: unknown format %q", format)
}

// Zap returns the structured logger, for the coordinator and providers.
func (l *Logger) Zap() *zap.Logger { return l.zap }

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level zapcore.Level) { l.level.SetLevel(level) }

// Level returns the current minimum level.
func (l *Logger) Level() zapcore.Level { return l.level.Level() }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.zap.Sync() }

// Debug logs msg at debug level.
func (l *Logger) Debug(msg string) { l.sugar.Debug(msg) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

// Info logs msg at info level.
func (l *Logger) Info(msg string) { l.sugar.Info(msg) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) { l.sugar.Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.sugar.Warnf(format, args...) }

// Error logs msg at error level.
func (l *Logger) Error(msg string) { l.sugar.Error(msg) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Package logging provides the platform-wide structured logging interface
// and its zap-backed implementation. Components depend on the Logger
// interface defined here; direct use of go.uber.org/zap is confined to this
// package so the underlying library can be swapped without touching
// pipeline code.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a typed key-value pair attached to a log entry. A concrete
// struct rather than variadic interface{} keeps the API explicit and lets
// the zap implementation avoid reflection for the common types.
type Field struct {
	Key   string
	Value interface{}
}

// String constructs a Field with a string value.
func String(key, val string) Field { return Field{Key: key, Value: val} }

// Int constructs a Field with an int value.
func Int(key string, val int) Field { return Field{Key: key, Value: val} }

// Int64 constructs a Field with an int64 value.
func Int64(key string, val int64) Field { return Field{Key: key, Value: val} }

// Float64 constructs a Field with a float64 value.
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }

// Bool constructs a Field with a bool value.
func Bool(key string, val bool) Field { return Field{Key: key, Value: val} }

// Duration constructs a Field with a time.Duration value.
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }

// Err constructs a Field that captures an error under the canonical key
// "error". If err is nil the field value is the string "<nil>".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any constructs a Field with an arbitrary value.
func Any(key string, val interface{}) Field { return Field{Key: key, Value: val} }

// Logger is the platform-wide structured logging contract. All components
// receive a Logger via constructor injection so implementations can be
// swapped (NewNopLogger in tests) without code changes.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs the message and then exits the process. Reserve for
	// startup failures; never call in pipeline or request paths.
	Fatal(msg string, fields ...Field)

	// With returns a child Logger that includes the supplied fields in
	// every subsequent log entry. The parent is not mutated.
	With(fields ...Field) Logger

	// Named returns a child Logger whose name is appended to the parent's
	// with a period separator (e.g., "worker" → "worker.kafka").
	Named(name string) Logger
}

// LogConfig carries the parameters required to construct a Logger.
type LogConfig struct {
	// Level is the minimum severity emitted: "debug", "info", "warn",
	// "error". Unrecognised values fall back to "info".
	Level string `yaml:"level" json:"level"`

	// Format selects the encoding: "json" for aggregation pipelines,
	// "console" for human-readable local output.
	Format string `yaml:"format" json:"format"`

	// OutputPaths lists URLs or file paths to write entries to; "stdout"
	// and "stderr" are special values. Defaults to ["stdout"].
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`

	// ErrorOutputPaths lists destinations for internal zap errors.
	// Defaults to ["stderr"].
	ErrorOutputPaths []string `yaml:"error_output_paths" json:"error_output_paths"`
}

type zapLogger struct {
	z *zap.Logger
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case float64:
			out = append(out, zap.Float64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZapFields(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZapFields(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZapFields(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, toZapFields(fields)...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, toZapFields(fields)...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(toZapFields(fields)...)}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "warn", "WARN":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger constructs a Logger backed by zap according to cfg, applying
// defaults for any unset field. Returns an error if zap fails to build the
// underlying logger (e.g., an output path that cannot be opened).
func NewLogger(cfg LogConfig) (Logger, error) {
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	var encCfg zapcore.EncoderConfig
	var encoding string
	switch cfg.Format {
	case "console":
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	default:
		encCfg = zap.NewProductionEncoderConfig()
		encoding = "json"
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	}

	z, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logging: failed to build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// NewLoggerFromCore constructs a Logger from an existing zapcore.Core,
// primarily for tests with observed logs.
func NewLoggerFromCore(core zapcore.Core) Logger {
	return &zapLogger{z: zap.New(core, zap.AddCallerSkip(1))}
}

type nopLogger struct{}

func (nopLogger) Debug(_ string, _ ...Field) {}
func (nopLogger) Info(_ string, _ ...Field)  {}
func (nopLogger) Warn(_ string, _ ...Field)  {}
func (nopLogger) Error(_ string, _ ...Field) {}
func (nopLogger) Fatal(_ string, _ ...Field) {}
func (n nopLogger) With(_ ...Field) Logger   { return n }
func (n nopLogger) Named(_ string) Logger    { return n }

// NewNopLogger returns a Logger that discards all entries. Intended for
// unit tests and benchmarks.
func NewNopLogger() Logger { return nopLogger{} }

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = nopLogger{}
)

// SetDefault replaces the process-wide default Logger. Call once during
// startup before any goroutines that use Default() are started.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the process-wide default Logger. Constructor injection is
// preferred; Default exists for code that cannot receive one.
func Default() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	return l
}

package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

// global helper -> Logger method -> emit
const callerSkip = 3

type Logger interface {
	Debug(ctx context.Context, msg string, fields ...zap.Field)
	Info(ctx context.Context, msg string, fields ...zap.Field)
	Warn(ctx context.Context, msg string, fields ...zap.Field)
	Error(ctx context.Context, msg string, fields ...zap.Field)
	Fatal(ctx context.Context, msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Sync() error
}

// LoggerComponent owns the process zap logger and installs itself as the global Logger on start.
type LoggerComponent struct {
	*core.BaseComponent
	config *LoggingConfig
	zl     *zap.Logger
	closer func() error
}

func NewLoggerComponent(cfg *LoggingConfig) *LoggerComponent {
	return &LoggerComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_LOGGING),
		config:        cfg,
	}
}

func (lc *LoggerComponent) Start(ctx context.Context) error {
	if err := lc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	level, err := parseLevel(lc.config.Level)
	if err != nil {
		return err
	}
	ws, closer, err := lc.buildWriteSyncer()
	if err != nil {
		return fmt.Errorf("build log writer: %w", err)
	}
	lc.closer = closer
	lc.zl = zap.New(
		zapcore.NewCore(buildEncoder(lc.config.Format), ws, level),
		zap.AddCaller(),
		zap.AddCallerSkip(callerSkip),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	SetGlobalLogger(lc)
	// framework internals (lifecycle, hooks) log through zap.L()
	zap.ReplaceGlobals(lc.zl.WithOptions(zap.AddCallerSkip(-callerSkip)))
	lc.zl.Info("logger started",
		zap.String("level", level.String()),
		zap.String("format", lc.config.Format),
		zap.String("output", lc.config.Output))
	return nil
}

func (lc *LoggerComponent) Stop(ctx context.Context) error {
	if lc.zl != nil {
		_ = lc.zl.Sync()
	}
	if lc.closer != nil {
		_ = lc.closer()
	}
	return lc.BaseComponent.Stop(ctx)
}

func (lc *LoggerComponent) HealthCheck() error {
	if err := lc.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	if lc.zl == nil {
		return fmt.Errorf("zap logger is not initialized")
	}
	return nil
}

// Zap exposes the underlying logger, e.g. for the gorm bridge.
func (lc *LoggerComponent) Zap() *zap.Logger { return lc.zl }

func (lc *LoggerComponent) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	emit(lc.zl, ctx, zapcore.DebugLevel, msg, fields)
}
func (lc *LoggerComponent) Info(ctx context.Context, msg string, fields ...zap.Field) {
	emit(lc.zl, ctx, zapcore.InfoLevel, msg, fields)
}
func (lc *LoggerComponent) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	emit(lc.zl, ctx, zapcore.WarnLevel, msg, fields)
}
func (lc *LoggerComponent) Error(ctx context.Context, msg string, fields ...zap.Field) {
	emit(lc.zl, ctx, zapcore.ErrorLevel, msg, fields)
}
func (lc *LoggerComponent) Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	emit(lc.zl, ctx, zapcore.FatalLevel, msg, fields)
}

func (lc *LoggerComponent) With(fields ...zap.Field) Logger {
	if lc.zl == nil {
		return lc
	}
	return &zapLogger{zl: lc.zl.With(fields...)}
}

func (lc *LoggerComponent) Sync() error {
	if lc.zl == nil {
		return nil
	}
	return lc.zl.Sync()
}

// zapLogger is the child returned by With.
type zapLogger struct{ zl *zap.Logger }

func (l *zapLogger) Debug(ctx context.Context, msg string, f ...zap.Field) {
	emit(l.zl, ctx, zapcore.DebugLevel, msg, f)
}
func (l *zapLogger) Info(ctx context.Context, msg string, f ...zap.Field) {
	emit(l.zl, ctx, zapcore.InfoLevel, msg, f)
}
func (l *zapLogger) Warn(ctx context.Context, msg string, f ...zap.Field) {
	emit(l.zl, ctx, zapcore.WarnLevel, msg, f)
}
func (l *zapLogger) Error(ctx context.Context, msg string, f ...zap.Field) {
	emit(l.zl, ctx, zapcore.ErrorLevel, msg, f)
}
func (l *zapLogger) Fatal(ctx context.Context, msg string, f ...zap.Field) {
	emit(l.zl, ctx, zapcore.FatalLevel, msg, f)
}
func (l *zapLogger) With(fields ...zap.Field) Logger { return &zapLogger{zl: l.zl.With(fields...)} }
func (l *zapLogger) Sync() error                     { return l.zl.Sync() }

func emit(zl *zap.Logger, ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if zl == nil {
		return
	}
	ce := zl.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(append(traceFields(ctx, fields), fields...)...)
}

// traceFields pulls ids from the active otel span. An id already present in fields wins.
func traceFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	for _, f := range fields {
		if f.Key == consts.KEY_TraceID {
			return nil
		}
	}
	return []zap.Field{
		zap.String(consts.KEY_TraceID, sc.TraceID().String()),
		zap.String(consts.KEY_SpanID, sc.SpanID().String()),
	}
}

func buildEncoder(format string) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if strings.EqualFold(format, "console") {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func (lc *LoggerComponent) buildWriteSyncer() (zapcore.WriteSyncer, func() error, error) {
	switch strings.ToLower(lc.config.Output) {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), nil, nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil, nil
	case "file":
		fc := lc.config.FileConfig
		if fc == nil {
			return nil, nil, fmt.Errorf("file_config is required when output is file")
		}
		if err := os.MkdirAll(fc.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		return lc.fileSyncer(filepath.Join(fc.Dir, fc.Filename+".log"))
	default:
		return lc.fileSyncer(lc.config.Output)
	}
}

func (lc *LoggerComponent) fileSyncer(path string) (zapcore.WriteSyncer, func() error, error) {
	if rc := lc.config.RotateConfig; rc != nil && rc.Enabled {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rc.MaxSizeMB,
			MaxBackups: rc.MaxBackups,
			MaxAge:     rc.MaxAgeDays,
			Compress:   rc.Compress,
			LocalTime:  true,
		}
		return zapcore.AddSync(lj), lj.Close, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(f), f.Close, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return l, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

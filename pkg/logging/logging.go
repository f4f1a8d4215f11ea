package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const Project = "comicdl"

type Config struct {
	Level  string
	Format string // console or json
	File   string // empty logs to stderr
}

var levels = map[string]zapcore.Level{
	"panic": zapcore.PanicLevel,
	"fatal": zapcore.FatalLevel,
	"error": zapcore.ErrorLevel,
	"warn":  zapcore.WarnLevel,
	"info":  zapcore.InfoLevel,
	"debug": zapcore.DebugLevel,
}

// New builds a logger writing to w.
func New(w zapcore.WriteSyncer, cfg Config) *zap.SugaredLogger {
	level, ok := levels[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.999Z07:00"))
	}

	var enc zapcore.Encoder
	switch cfg.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encoderCfg)
	default:
		if cfg.File == "" {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(enc, w, level)
	return zap.New(core).WithOptions(
		zap.Fields(zap.String("project", Project)),
		zap.AddCaller(),
	).Sugar()
}

// Open builds a logger for cfg, creating the log file when one is set.
// The returned func flushes and closes it.
func Open(cfg Config) (*zap.SugaredLogger, func(), error) {
	if cfg.File == "" {
		l := New(zapcore.Lock(os.Stderr), cfg)
		return l, func() { _ = l.Sync() }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	l := New(zapcore.AddSync(f), cfg)
	return l, func() {
		_ = l.Sync()
		f.Close()
	}, nil
}

// Nop discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// LogIfError logs err at error level when it is non-nil and returns it.
func LogIfError(logger *zap.SugaredLogger, err error, msg string, keysAndValues ...any) error {
	if err != nil {
		logger.With("error", err).Errorw(msg, keysAndValues...)
	}
	return err
}

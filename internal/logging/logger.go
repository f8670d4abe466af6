// Package logging builds the process-wide structured logger (§2 Logger /
// request-id context), grounded on the ambient-stack decision to carry
// zap and lumberjack forward from the rest of the retrieval pack even
// though the teacher itself has no logging dependency.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how the logger writes.
type Config struct {
	Path  string // defaults to ~/.ongarde/proxy.log
	Debug bool
}

// New builds a *zap.Logger writing JSON lines to a rotating log file and,
// in debug mode, also to stderr.
func New(cfg Config) (*zap.Logger, error) {
	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	level := zap.InfoLevel
	if cfg.Debug {
		level = zap.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level)
	if cfg.Debug {
		stderrCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), level)
		core = zapcore.NewTee(core, stderrCore)
	}

	return zap.New(core, zap.AddCaller()), nil
}

// WithRequest returns a child logger carrying the per-request correlation
// id (the request's scan_id).
func WithRequest(log *zap.Logger, scanID string) *zap.Logger {
	return log.With(zap.String("scan_id", scanID))
}

// internal/logger/logger.go
//
// Structured JSON logger (Zap + Lumberjack).
//
// Context
// -------
// The binder service writes request and lifecycle events as JSON to
// `<dir>/binder.log`.  Rotation, compression, and retention are handled by
// Lumberjack.  When Tee is set, or when no directory is configured, the same
// events go to stdout through a console encoder.
//
// Usage
// -----
//
//	log, err := logger.New(logger.Options{Dir: cfg.Log.Dir, Tee: cfg.Log.Tee})
//	if err != nil { … }
//	defer log.Sync()
//	log.Info("listening", zap.String("addr", addr))
//
// Notes
// -----
//   - Zap core uses ISO-8601 timestamps and lowercase levels.
//   - The result is installed with zap.ReplaceGlobals, so zap.L() works in
//     packages that are not handed a logger.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	Dir   string // log directory; empty logs to stdout only
	Tee   bool   // also write to stdout when Dir is set
	Level string // debug, info, warn, error; empty means info
}

// New builds the process logger and installs it as the zap global.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		lv, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		level = lv
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	var (
		cores   []zapcore.Core
		errSink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	)

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create %s: %w", opts.Dir, err)
		}
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "binder.log"),
			MaxSize:    50, // MB
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileSink, level))
		errSink = fileSink
	}

	if opts.Dir == "" || opts.Tee {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.ErrorOutput(errSink),
	)
	zap.ReplaceGlobals(z)

	z.Info("logger online", zap.String("dir", opts.Dir), zap.Bool("tee", opts.Tee), zap.Stringer("level", level))
	return z, nil
}

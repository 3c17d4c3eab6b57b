// Package logging is snapwatch's structured logging setup: zap cores
// for console and an optional rotated log file.
package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls Init. Zero value: info level, human-readable encoder,
// and no output at all, since both Console and FilePath are unset.
type Config struct {
	Level       string // "debug","info","warn","error"
	FilePath    string // e.g. ".snapwatch/snapwatch.log"; empty disables file logging
	MaxSizeMB   int    // per rotated file, defaults to 10 if unset
	MaxBackups  int    // defaults to 5 if unset
	MaxAgeDays  int    // defaults to 14 if unset
	JSON        bool   // console encoder if false
	Console     bool   // also log to stdout
	Development bool   // zap development mode (stacktraces for warn+)
}

var L *zap.Logger
var S *zap.SugaredLogger

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func fileCore(cfg Config, enc zapcore.Encoder, lvl zapcore.Level) zapcore.Core {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}
	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 14
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	})
	return zapcore.NewCore(enc, w, lvl)
}

func Init(cfg Config) (func(), error) {
	level := parseLevel(cfg.Level)

	// encoders
	jsonEncCfg := zap.NewProductionEncoderConfig()
	jsonEncCfg.TimeKey = "ts"
	jsonEncCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	jsonEncCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	jsonEnc := zapcore.NewJSONEncoder(jsonEncCfg)

	consoleEncCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("15:04:05"))
	}
	consoleEnc := zapcore.NewConsoleEncoder(consoleEncCfg)

	var cores []zapcore.Core

	// file core
	if cfg.FilePath != "" {
		enc := jsonEnc
		if !cfg.JSON {
			enc = consoleEnc
		}
		cores = append(cores, fileCore(cfg, enc, level))
	}

	// console core
	if cfg.Console {
		w := zapcore.AddSync(os.Stdout)
		enc := consoleEnc
		if cfg.JSON {
			enc = jsonEnc
		}
		cores = append(cores, zapcore.NewCore(enc, w, level))
	}

	core := zapcore.NewTee(cores...)
	var opts []zap.Option
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zap.WarnLevel))
	} else {
		opts = append(opts, zap.AddStacktrace(zap.ErrorLevel))
	}
	opts = append(opts, zap.AddCaller())

	L = zap.New(core, opts...)
	S = L.Sugar()

	cleanup := func() {
		_ = L.Sync()
	}
	return cleanup, nil
}

// With returns the global logger scoped with the given fields. Init
// must run first.
func With(fields ...zap.Field) *zap.Logger {
	if L == nil {
		panic("logging.Init must be called before logging.With")
	}
	return L.With(fields...)
}

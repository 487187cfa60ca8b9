package main

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/lazywasm/config"
	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/jsapi"
	"github.com/wippyai/lazywasm/native"
)

// newLogger builds the process logger from the consolidated config.
func newLogger(cfg config.Config, w io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel.String)
	if err != nil {
		return nil, err
	}

	var enc zapcore.Encoder
	switch cfg.LogFormat.String {
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.TimeKey = ""
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat.String)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core), nil
}

// installLogger routes every package logger to l.
func installLogger(l *zap.Logger) {
	engine.SetLogger(l.Named("engine"))
	native.SetLogger(l.Named("native"))
	jsapi.SetLogger(l.Named("jsapi"))
}

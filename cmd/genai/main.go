package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Hunselvm/genai/internal/cli"
	"github.com/Hunselvm/genai/internal/config"
	"github.com/Hunselvm/genai/internal/telemetry"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	cfg := config.Load()

	logger, err := buildLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	shutdown, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:    "genai",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   true,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, sugar)
	if err != nil {
		sugar.Fatalw("tracing setup failed", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			sugar.Warnw("tracing shutdown failed", "error", err)
		}
	}()

	root := cli.New(cfg, sugar)
	if err := root.Execute(); err != nil {
		sugar.Errorw("command failed", "error", err)
		os.Exit(1)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(parsed)
	zapCfg.Encoding = "console"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stderr"}
	return zapCfg.Build()
}

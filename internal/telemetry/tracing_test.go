package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupTracingDisabled(t *testing.T) {
	for _, exporter := range []string{"", "none", "  NONE  "} {
		shutdown, err := SetupTracing(context.Background(), TraceConfig{
			ServiceName: "genai",
			Exporter:    exporter,
		}, nil)
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupTracingRejectsUnknownExporter(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName: "genai",
		Exporter:    "jaeger",
	}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported trace exporter")
}

func TestSetupTracingRequiresOTLPEndpoint(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName: "genai",
		Exporter:    "otlp",
	}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires endpoint")
}

func TestSetupTracingStdout(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName:    "genai",
		ServiceVersion: "test",
		Environment:    "ci",
		Exporter:       "stdout",
		SampleRatio:    0.5,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

package observability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("SIM_TRACING_ENABLED", "")
	t.Setenv("SIM_TRACING_EXPORTER", "")
	t.Setenv("SIM_TRACING_SAMPLE_RATIO", "2")
	cfg := TracingConfigFromEnv()
	if cfg.Enabled || cfg.Exporter != "stderr" || cfg.ServiceName != "natmobile" || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	t.Setenv("SIM_TRACING_ENABLED", "TRUE")
	t.Setenv("SIM_TRACING_SAMPLE_RATIO", "0.25")
	cfg = TracingConfigFromEnv()
	if !cfg.Enabled || cfg.SampleRatio != 0.25 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingFileExporterWritesSpans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "natmobile-test",
		Exporter:    "file",
		File:        path,
		SampleRatio: 1,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "scenario.run")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected span output in %s", path)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
	_, err = InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "file"}, nil)
	if err == nil {
		t.Fatalf("expected error for file exporter without a path")
	}
}

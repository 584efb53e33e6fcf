package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_PROTOCOL", "OTEL_EXPORTER_OTLP_HEADERS",
		"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_TRACES_SAMPLER", "OTEL_TRACES_SAMPLER_ARG",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadFromEnv()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "allreduce", cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, 1.0, cfg.SampleRatio)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "TRUE")
	t.Setenv("OTEL_SERVICE_NAME", "radtree")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer abc, X-Scope=prod")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_SAMPLER", "traceidratio")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg := LoadFromEnv()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "radtree", cfg.ServiceName)
	assert.Equal(t, "http://collector:4317", cfg.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc", "X-Scope": "prod"}, cfg.Headers)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 0.25, cfg.SampleRatio)
}

func TestParsePairs(t *testing.T) {
	assert.Nil(t, parsePairs(""))
	assert.Equal(t, map[string]string{"a": "1"}, parsePairs("a=1"))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, parsePairs("a=1,b=2"))
	// Entries without '=' are skipped.
	assert.Equal(t, map[string]string{"a": "1"}, parsePairs("a=1,malformed"))
}

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.False(t, Enabled())
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartRun_WithoutInit(t *testing.T) {
	ctx, span := StartRun(context.Background(), "tree", 1024, 4)
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

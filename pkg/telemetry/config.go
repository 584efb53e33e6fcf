// Package telemetry provides OpenTelemetry tracing for reduction runs.
//
// Configuration follows the standard OTEL_* environment variables; tracing
// stays off unless OTEL_ENABLED=true, in which case one span per reduction
// run is exported over OTLP; the distribute and accumulate phases get no
// spans of their own.
package telemetry

import (
	"os"
	"strconv"
	"strings"
)

// Config holds OpenTelemetry configuration loaded from the environment.
type Config struct {
	// Enabled turns tracing on; loaded from OTEL_ENABLED.
	Enabled bool

	// ServiceName identifies this process; loaded from OTEL_SERVICE_NAME,
	// defaults to "allreduce".
	ServiceName string

	// ServiceVersion is loaded from OTEL_SERVICE_VERSION.
	ServiceVersion string

	// Endpoint is the OTLP collector endpoint; loaded from
	// OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Protocol selects grpc or http/protobuf; loaded from
	// OTEL_EXPORTER_OTLP_PROTOCOL, defaults to grpc.
	Protocol string

	// Headers carries exporter headers such as authentication tokens;
	// loaded from OTEL_EXPORTER_OTLP_HEADERS as "k1=v1,k2=v2".
	Headers map[string]string

	// Insecure disables TLS; loaded from OTEL_EXPORTER_OTLP_INSECURE.
	Insecure bool

	// SampleRatio applies trace-id ratio sampling; loaded from
	// OTEL_TRACES_SAMPLER_ARG when OTEL_TRACES_SAMPLER=traceidratio,
	// defaults to sampling everything.
	SampleRatio float64
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	cfg := &Config{
		Enabled:        strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true"),
		ServiceName:    envOr("OTEL_SERVICE_NAME", "allreduce"),
		ServiceVersion: envOr("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Headers:        parsePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:       strings.EqualFold(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"), "true"),
		SampleRatio:    1.0,
	}

	if os.Getenv("OTEL_TRACES_SAMPLER") == "traceidratio" {
		if ratio, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64); err == nil {
			cfg.SampleRatio = ratio
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parsePairs(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	pairs := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		pairs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return pairs
}

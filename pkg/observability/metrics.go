package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics builds the gateway instruments on a Prometheus-backed
// meter provider. The exporter registers with the default Prometheus
// registry, so promhttp serves everything recorded here.
func InitMetrics(cfg MetricsConfig) (*GatewayMetrics, error) {
	if !cfg.Enabled {
		return &GatewayMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter(cfg.Namespace)
	ns := cfg.Namespace + "_"

	httpRequests, err := meter.Int64Counter(
		ns+"http_requests_total",
		metric.WithDescription("HTTP requests by method, path and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		ns+"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	gatewayRequests, err := meter.Int64Counter(
		ns+"gateway_requests_total",
		metric.WithDescription("Completion requests by client protocol, provider and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway requests counter: %w", err)
	}

	pipelineDuration, err := meter.Float64Histogram(
		ns+"pipeline_duration_seconds",
		metric.WithDescription("Pipeline run duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline duration histogram: %w", err)
	}

	shortcuts, err := meter.Int64Counter(
		ns+"shortcuts_total",
		metric.WithDescription("Requests answered locally by a pipeline step"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create shortcuts counter: %w", err)
	}

	redactions, err := meter.Int64Counter(
		ns+"redactions_total",
		metric.WithDescription("Redacted values by kind (secret, pii)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redactions counter: %w", err)
	}

	muxMatches, err := meter.Int64Counter(
		ns+"mux_matches_total",
		metric.WithDescription("Routing rule matches by matcher type"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mux matches counter: %w", err)
	}

	alerts, err := meter.Int64Counter(
		ns+"alerts_total",
		metric.WithDescription("Alerts raised by severity"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create alerts counter: %w", err)
	}

	return &GatewayMetrics{
		httpRequests:     httpRequests,
		httpDuration:     httpDuration,
		gatewayRequests:  gatewayRequests,
		pipelineDuration: pipelineDuration,
		shortcuts:        shortcuts,
		redactions:       redactions,
		muxMatches:       muxMatches,
		alerts:           alerts,
	}, nil
}

package observability

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records gateway activity. Implementations must be safe for
// concurrent use and tolerate partial initialization.
type Metrics interface {
	// RecordHTTPRequest is called by the HTTP middleware for every
	// request, gateway and management API alike.
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)

	// RecordGatewayRequest counts one completion exchange.
	RecordGatewayRequest(ctx context.Context, client, provider string, err error)

	// RecordPipelineRun measures one engine pass. A non-empty
	// shortcutStep means that step answered locally.
	RecordPipelineRun(ctx context.Context, pipeline string, duration time.Duration, shortcutStep string)

	// RecordRedactions counts values hidden from the upstream.
	RecordRedactions(ctx context.Context, kind string, count int)

	// RecordMuxMatch counts which matcher type routed a request.
	RecordMuxMatch(ctx context.Context, matcher string)

	// RecordAlert counts raised alerts by severity.
	RecordAlert(ctx context.Context, severity string)
}

// GatewayMetrics is the Prometheus-backed Metrics implementation. The
// zero value records nothing, which is what a disabled config yields.
type GatewayMetrics struct {
	httpRequests     metric.Int64Counter
	httpDuration     metric.Float64Histogram
	gatewayRequests  metric.Int64Counter
	pipelineDuration metric.Float64Histogram
	shortcuts        metric.Int64Counter
	redactions       metric.Int64Counter
	muxMatches       metric.Int64Counter
	alerts           metric.Int64Counter
}

func (m *GatewayMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}

	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", strconv.Itoa(status)),
	))
	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	))
}

func (m *GatewayMetrics) RecordGatewayRequest(ctx context.Context, client, provider string, err error) {
	if m == nil || m.gatewayRequests == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client", client),
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

func (m *GatewayMetrics) RecordPipelineRun(ctx context.Context, pipeline string, duration time.Duration, shortcutStep string) {
	if m == nil || m.pipelineDuration == nil {
		return
	}

	m.pipelineDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("pipeline", pipeline),
	))
	if shortcutStep != "" && m.shortcuts != nil {
		m.shortcuts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step", shortcutStep),
		))
	}
}

func (m *GatewayMetrics) RecordRedactions(ctx context.Context, kind string, count int) {
	if m == nil || m.redactions == nil || count <= 0 {
		return
	}
	m.redactions.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

func (m *GatewayMetrics) RecordMuxMatch(ctx context.Context, matcher string) {
	if m == nil || m.muxMatches == nil {
		return
	}
	m.muxMatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("matcher", matcher),
	))
}

func (m *GatewayMetrics) RecordAlert(ctx context.Context, severity string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", severity),
	))
}

// SetGlobalMetrics installs the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return NoopMetrics{}
	}
	return globalMetrics
}

package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer provider, the span recorder and the metric
// instruments for one process.
type Manager struct {
	mu             sync.RWMutex
	config         Config
	tracerProvider trace.TracerProvider
	metrics        Metrics
	recorder       *SpanRecorder
}

// NewManager creates a manager for the given configuration. Initialize
// must run before traffic.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// Initialize builds the tracer provider and metric instruments and
// installs them globally.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Tracing.Enabled {
		m.recorder = NewSpanRecorder(m.config.Tracing.MaxSpans)
	}

	tp, err := InitGlobalTracer(ctx, m.config.Tracing, m.recorder)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	metrics, err := InitMetrics(m.config.Metrics)
	if err != nil {
		return err
	}
	m.metrics = metrics

	SetGlobalMetrics(m.metrics)
	return nil
}

// GetTracer returns a named tracer, no-op before Initialize.
func (m *Manager) GetTracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// GetMetrics returns the metrics recorder, never nil.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return NoopMetrics{}
	}
	return m.metrics
}

// Spans returns the span recorder, nil when tracing is disabled.
func (m *Manager) Spans() *SpanRecorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recorder
}

// MetricsEndpoint returns the configured metrics path.
func (m *Manager) MetricsEndpoint() string {
	if m.config.Metrics.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.config.Metrics.Endpoint
}

// MetricsEnabled reports whether the metrics endpoint should be served.
func (m *Manager) MetricsEnabled() bool {
	return m.config.Metrics.Enabled
}

// Shutdown flushes and stops the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if spt, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return spt.Shutdown(ctx)
	}
	return nil
}

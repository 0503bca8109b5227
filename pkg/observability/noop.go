package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards every recording. Used when observability is
// disabled or not yet initialized.
type NoopMetrics struct{}

func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration) {}
func (NoopMetrics) RecordGatewayRequest(context.Context, string, string, error)           {}
func (NoopMetrics) RecordPipelineRun(context.Context, string, time.Duration, string)      {}
func (NoopMetrics) RecordRedactions(context.Context, string, int)                         {}
func (NoopMetrics) RecordMuxMatch(context.Context, string)                                {}
func (NoopMetrics) RecordAlert(context.Context, string)                                   {}

var _ Metrics = NoopMetrics{}

// NoopManager returns a manager whose tracer and metrics do nothing.
// Safe to use without calling Initialize.
func NoopManager() *Manager {
	return &Manager{
		tracerProvider: noop.NewTracerProvider(),
		metrics:        NoopMetrics{},
	}
}

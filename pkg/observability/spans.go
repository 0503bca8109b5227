package observability

import (
	"context"
	"strings"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanRecorder is a SpanExporter that retains the most recent gateway
// spans in memory so they can be inspected without an external
// collector. Safe for concurrent use.
type SpanRecorder struct {
	mu       sync.RWMutex
	spans    map[string]*RecordedSpan
	order    []string
	maxSpans int
}

// RecordedSpan is the captured form of one finished span.
type RecordedSpan struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Name         string            `json:"name"`
	StartTime    int64             `json:"start_time_unix_nano"`
	EndTime      int64             `json:"end_time_unix_nano"`
	DurationMs   float64           `json:"duration_ms"`
	Attributes   map[string]string `json:"attributes"`
	Status       string            `json:"status"`
	StatusMsg    string            `json:"status_message,omitempty"`
}

// NewSpanRecorder creates a recorder retaining up to maxSpans spans.
func NewSpanRecorder(maxSpans int) *SpanRecorder {
	if maxSpans <= 0 {
		maxSpans = DefaultMaxSpans
	}
	return &SpanRecorder{
		spans:    make(map[string]*RecordedSpan),
		maxSpans: maxSpans,
	}
}

// ExportSpans implements sdktrace.SpanExporter. Only gateway and
// pipeline spans are kept; instrumentation from libraries is dropped.
func (r *SpanRecorder) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, span := range spans {
		if !capturable(span.Name()) {
			continue
		}

		rec := convertSpan(span)
		if _, exists := r.spans[rec.SpanID]; !exists {
			r.order = append(r.order, rec.SpanID)
		}
		r.spans[rec.SpanID] = rec

		for len(r.order) > r.maxSpans {
			delete(r.spans, r.order[0])
			r.order = r.order[1:]
		}
	}
	return nil
}

func capturable(name string) bool {
	return strings.HasPrefix(name, "gateway.") || strings.HasPrefix(name, "pipeline.")
}

func convertSpan(span sdktrace.ReadOnlySpan) *RecordedSpan {
	start := span.StartTime().UnixNano()
	end := span.EndTime().UnixNano()

	rec := &RecordedSpan{
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Name:       span.Name(),
		StartTime:  start,
		EndTime:    end,
		DurationMs: float64(end-start) / 1e6,
		Attributes: make(map[string]string),
		Status:     span.Status().Code.String(),
		StatusMsg:  span.Status().Description,
	}
	if span.Parent().HasSpanID() {
		rec.ParentSpanID = span.Parent().SpanID().String()
	}
	for _, attr := range span.Attributes() {
		rec.Attributes[string(attr.Key)] = attr.Value.Emit()
	}
	return rec
}

// Shutdown implements sdktrace.SpanExporter.
func (r *SpanRecorder) Shutdown(context.Context) error {
	r.Clear()
	return nil
}

// Spans returns the retained spans, oldest first.
func (r *SpanRecorder) Spans() []*RecordedSpan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*RecordedSpan, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.spans[id])
	}
	return out
}

// ByTrace returns all retained spans belonging to one trace.
func (r *SpanRecorder) ByTrace(traceID string) []*RecordedSpan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*RecordedSpan
	for _, id := range r.order {
		if span := r.spans[id]; span.TraceID == traceID {
			out = append(out, span)
		}
	}
	return out
}

// ByName returns all retained spans with the given name.
func (r *SpanRecorder) ByName(name string) []*RecordedSpan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*RecordedSpan
	for _, id := range r.order {
		if span := r.spans[id]; span.Name == name {
			out = append(out, span)
		}
	}
	return out
}

// Clear drops all retained spans.
func (r *SpanRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = make(map[string]*RecordedSpan)
	r.order = nil
}

// Count returns the number of retained spans.
func (r *SpanRecorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spans)
}

var _ sdktrace.SpanExporter = (*SpanRecorder)(nil)

package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestGatewayMetricsZeroValueIsSafe(t *testing.T) {
	ctx := context.Background()
	metrics := &GatewayMetrics{}

	metrics.RecordHTTPRequest(ctx, http.MethodPost, "/openai/v1/chat/completions", 200, 100*time.Millisecond)
	metrics.RecordGatewayRequest(ctx, "cline", "openai", nil)
	metrics.RecordPipelineRun(ctx, "input", 5*time.Millisecond, "")
	metrics.RecordRedactions(ctx, "secret", 3)
	metrics.RecordMuxMatch(ctx, "catch_all")
	metrics.RecordAlert(ctx, "critical")
}

func TestNoopMetricsSatisfiesInterface(t *testing.T) {
	ctx := context.Background()
	var metrics Metrics = NoopMetrics{}

	metrics.RecordHTTPRequest(ctx, http.MethodGet, "/health", 200, time.Millisecond)
	metrics.RecordGatewayRequest(ctx, "continue", "anthropic", context.Canceled)
	metrics.RecordPipelineRun(ctx, "output", time.Millisecond, "secret-unredaction")
}

func TestGlobalMetricsFallsBackToNoop(t *testing.T) {
	SetGlobalMetrics(nil)
	t.Cleanup(func() { SetGlobalMetrics(nil) })

	if got := GetGlobalMetrics(); got == nil {
		t.Fatal("GetGlobalMetrics returned nil")
	}

	SetGlobalMetrics(NoopMetrics{})
	if _, ok := GetGlobalMetrics().(NoopMetrics); !ok {
		t.Errorf("GetGlobalMetrics = %T, want NoopMetrics", GetGlobalMetrics())
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()

	if cfg.Tracing.ServiceName != DefaultServiceName {
		t.Errorf("ServiceName = %q, want %q", cfg.Tracing.ServiceName, DefaultServiceName)
	}
	if cfg.Tracing.SamplingRate != DefaultSamplingRate {
		t.Errorf("SamplingRate = %f, want %f", cfg.Tracing.SamplingRate, DefaultSamplingRate)
	}
	if cfg.Tracing.MaxSpans != DefaultMaxSpans {
		t.Errorf("MaxSpans = %d, want %d", cfg.Tracing.MaxSpans, DefaultMaxSpans)
	}
	if cfg.Metrics.Endpoint != DefaultMetricsPath {
		t.Errorf("Endpoint = %q, want %q", cfg.Metrics.Endpoint, DefaultMetricsPath)
	}
	if cfg.Metrics.Namespace != DefaultNamespace {
		t.Errorf("Namespace = %q, want %q", cfg.Metrics.Namespace, DefaultNamespace)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "disabled sections skip validation",
			cfg:  Config{Tracing: TracingConfig{SamplingRate: 7}},
		},
		{
			name:    "sampling rate out of range",
			cfg:     Config{Tracing: TracingConfig{Enabled: true, SamplingRate: 1.5}},
			wantErr: true,
		},
		{
			name:    "negative max spans",
			cfg:     Config{Tracing: TracingConfig{Enabled: true, SamplingRate: 1, MaxSpans: -1}},
			wantErr: true,
		},
		{
			name:    "metrics enabled without endpoint",
			cfg:     Config{Metrics: MetricsConfig{Enabled: true}},
			wantErr: true,
		},
		{
			name: "valid enabled config",
			cfg: Config{
				Tracing: TracingConfig{Enabled: true, SamplingRate: 0.5, MaxSpans: 100},
				Metrics: MetricsConfig{Enabled: true, Endpoint: "/metrics", Namespace: "codegate"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSpanRecorderCapturesGatewaySpans(t *testing.T) {
	rec := NewSpanRecorder(10)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), SpanUpstreamCall)
	span.End()

	_, noise := tracer.Start(context.Background(), "library.internal")
	noise.End()

	if rec.Count() != 1 {
		t.Fatalf("Count = %d, want 1", rec.Count())
	}
	captured := rec.ByName(SpanUpstreamCall)
	if len(captured) != 1 {
		t.Fatalf("ByName(%q) returned %d spans, want 1", SpanUpstreamCall, len(captured))
	}
	if captured[0].TraceID == "" || captured[0].SpanID == "" {
		t.Error("captured span missing trace or span id")
	}

	byTrace := rec.ByTrace(captured[0].TraceID)
	if len(byTrace) != 1 {
		t.Errorf("ByTrace returned %d spans, want 1", len(byTrace))
	}
}

func TestSpanRecorderEvictsOldest(t *testing.T) {
	rec := NewSpanRecorder(2)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracer := tp.Tracer("test")
	var first string
	for i := 0; i < 3; i++ {
		_, span := tracer.Start(context.Background(), SpanPipelineInput)
		if i == 0 {
			first = span.SpanContext().SpanID().String()
		}
		span.End()
	}

	if rec.Count() != 2 {
		t.Fatalf("Count = %d, want 2", rec.Count())
	}
	for _, span := range rec.Spans() {
		if span.SpanID == first {
			t.Error("oldest span survived eviction")
		}
	}

	rec.Clear()
	if rec.Count() != 0 {
		t.Errorf("Count after Clear = %d, want 0", rec.Count())
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{
		Tracing: TracingConfig{Enabled: true, SamplingRate: 1, ServiceName: "codegate-test", MaxSpans: 16},
	})
	t.Cleanup(func() { SetGlobalMetrics(nil) })

	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if m.Spans() == nil {
		t.Fatal("Spans() = nil with tracing enabled")
	}
	if m.GetMetrics() == nil {
		t.Fatal("GetMetrics() = nil")
	}

	_, span := m.GetTracer("test").Start(ctx, SpanHTTPRequest)
	span.End()

	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := m.Spans().Count(); got != 1 {
		t.Errorf("recorded spans after shutdown = %d, want 1", got)
	}
}

func TestNoopManagerIsUsableUninitialized(t *testing.T) {
	m := NoopManager()

	_, span := m.GetTracer("test").Start(context.Background(), SpanHTTPRequest)
	span.End()

	m.GetMetrics().RecordMuxMatch(context.Background(), "provider")
	if m.Spans() != nil {
		t.Error("NoopManager should have no span recorder")
	}
}

type capturingMetrics struct {
	mu     sync.Mutex
	method string
	path   string
	status int
}

func (c *capturingMetrics) RecordHTTPRequest(_ context.Context, method, path string, status int, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.method, c.path, c.status = method, path, status
}

func (c *capturingMetrics) RecordGatewayRequest(context.Context, string, string, error)      {}
func (c *capturingMetrics) RecordPipelineRun(context.Context, string, time.Duration, string) {}
func (c *capturingMetrics) RecordRedactions(context.Context, string, int)                    {}
func (c *capturingMetrics) RecordMuxMatch(context.Context, string)                           {}
func (c *capturingMetrics) RecordAlert(context.Context, string)                              {}

func TestHTTPMiddlewareRecordsStatusAndSpan(t *testing.T) {
	rec := NewSpanRecorder(10)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	metrics := &capturingMetrics{}
	handler := HTTPMiddleware(tp.Tracer("test"), metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream failed"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/anthropic/v1/messages", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if metrics.status != http.StatusBadGateway {
		t.Errorf("recorded status = %d, want %d", metrics.status, http.StatusBadGateway)
	}
	if metrics.path != "/anthropic/v1/messages" {
		t.Errorf("recorded path = %q", metrics.path)
	}

	spans := rec.ByName(SpanHTTPRequest)
	if len(spans) != 1 {
		t.Fatalf("captured %d spans, want 1", len(spans))
	}
	if got := spans[0].Attributes[AttrHTTPStatusCode]; got != strconv.Itoa(http.StatusBadGateway) {
		t.Errorf("span status attribute = %q, want %q", got, strconv.Itoa(http.StatusBadGateway))
	}
	if _, ok := spans[0].Attributes[AttrErrorType]; !ok {
		t.Error("5xx response should carry an error attribute")
	}
}

func TestHTTPMiddlewareDefaultsToOK(t *testing.T) {
	metrics := &capturingMetrics{}
	handler := HTTPMiddleware(nil, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if metrics.status != http.StatusOK {
		t.Errorf("recorded status = %d, want %d", metrics.status, http.StatusOK)
	}
}

func TestHTTPMiddlewarePreservesFlusher(t *testing.T) {
	handler := HTTPMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer lost http.Flusher")
		}
		_, _ = w.Write([]byte("data: chunk\n\n"))
		flusher.Flush()
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/openai/v1/chat/completions", nil))

	if !rr.Flushed {
		t.Error("flush did not reach the underlying writer")
	}
}

func TestResponseWriterWritesHeaderOnce(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	w.WriteHeader(http.StatusNotFound)
	w.WriteHeader(http.StatusOK)

	if w.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want %d", w.statusCode, http.StatusNotFound)
	}
	if rr.Code != http.StatusNotFound {
		t.Errorf("recorder code = %d, want %d", rr.Code, http.StatusNotFound)
	}

	n, err := w.Write([]byte("gone"))
	if err != nil || n != 4 {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	if w.bytesWritten != 4 {
		t.Errorf("bytesWritten = %d, want 4", w.bytesWritten)
	}
}

package observability

const (
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"
	AttrErrorType        = "error.type"

	AttrClientType   = "gateway.client"
	AttrProviderType = "gateway.provider"
	AttrWorkspace    = "gateway.workspace"
	AttrModel        = "gateway.model"

	SpanHTTPRequest    = "gateway.http_request"
	SpanUpstreamCall   = "gateway.upstream_call"
	SpanPipelineInput  = "pipeline.input"
	SpanPipelineOutput = "pipeline.output"

	DefaultServiceName  = "codegate"
	DefaultMetricsPath  = "/metrics"
	DefaultNamespace    = "codegate"
	DefaultSamplingRate = 1.0
	DefaultMaxSpans     = 1000
)

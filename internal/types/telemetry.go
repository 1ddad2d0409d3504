package types

// CloudWatch metric names and dimensions. Publishers use these constants so
// dashboards and alarms keep working across releases.
const (
	MetricAPILatency       = "APILatency"
	MetricAPIRequestCount  = "APIRequestCount"
	MetricBatchProcessed   = "BatchProcessed"
	MetricBatchSkipped     = "BatchSkipped"
	MetricBatchFailed      = "BatchFailed"
	MetricBatchDuration    = "BatchDuration"
	MetricSnapOutcome      = "SnapOutcome"
	MetricProviderFailure  = "RoadProviderFailure"
	MetricAuditPublishFail = "AuditPublishFailure"

	DimEndpoint   = "Endpoint"
	DimMethod     = "Method"
	DimStatus     = "Status"
	DimCategory   = "Category"
	DimSnapMethod = "SnapMethod"
	DimProvider   = "Provider"

	MetricNamespace = "OverrideAPI"
)

package types

// ItemStatus is the per-item classification reported back to callers.
type ItemStatus string

const (
	StatusSuccess  ItemStatus = "success"
	StatusSkipped  ItemStatus = "skipped"
	StatusFailed   ItemStatus = "failed"
	StatusNotFound ItemStatus = "not_found"
)

// Counted returns which aggregate bucket the status falls into.
// not_found items count as failures.
func (s ItemStatus) Counted() ItemStatus {
	if s == StatusNotFound {
		return StatusFailed
	}
	return s
}

// DetailOrigin echoes the source row in detailed responses.
type DetailOrigin struct {
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	Bearing       float64  `json:"bearing"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
	SpeedLimit    *float64 `json:"speed_limit,omitempty"`
	OverrideValue *float64 `json:"override_value,omitempty"`
}

// DetailSnap describes the road match that produced the final point.
type DetailSnap struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	WayID    *int64  `json:"way_id,omitempty"`
	WayName  string  `json:"way_name,omitempty"`
	Provider string  `json:"provider,omitempty"`
	RadiusM  float64 `json:"radius_m,omitempty"`
}

// BatchDetail is the structured per-item entry of a detailed report.
// Exactly one of ClusterID and PointID is set.
type BatchDetail struct {
	ClusterID          RecordID      `json:"cluster_id,omitempty"`
	PointID            string        `json:"point_id,omitempty"`
	Status             ItemStatus    `json:"status"`
	Method             SnapMethod    `json:"method,omitempty"`
	Message            string        `json:"message"`
	Original           *DetailOrigin `json:"original,omitempty"`
	FinalInserted      *GeoPoint     `json:"final_inserted,omitempty"`
	FinalBearing       *float64      `json:"final_bearing,omitempty"`
	Snapped            *DetailSnap   `json:"snapped,omitempty"`
	Extrapolated       *GeoPoint     `json:"extrapolated,omitempty"`
	ExistingOverrideID *int64        `json:"existing_override_id,omitempty"`
	Inserted           bool          `json:"inserted"`
}

// BatchSummary lists the identifiers that landed in each bucket.
type BatchSummary struct {
	TotalRequested int      `json:"total_requested"`
	ProcessedCount int      `json:"processed_count"`
	SkippedCount   int      `json:"skipped_count"`
	FailedCount    int      `json:"failed_count"`
	ProcessedIDs   []string `json:"processed_ids"`
	SkippedIDs     []string `json:"skipped_ids"`
	FailedIDs      []string `json:"failed_ids"`
}

// BatchReport is the response envelope shared by all override endpoints.
// Details holds one entry per input item, in input order: a plain message
// string, or a BatchDetail when the caller asked for detailed output.
type BatchReport struct {
	Success        bool          `json:"success"`
	Message        string        `json:"message"`
	ProcessedCount int           `json:"processed_count"`
	SkippedCount   int           `json:"skipped_count"`
	FailedCount    int           `json:"failed_count"`
	Details        []any         `json:"details"`
	Summary        *BatchSummary `json:"summary,omitempty"`
	BatchID        string        `json:"batch_id,omitempty"`
	Error          string        `json:"error,omitempty"`
	RequestID      string        `json:"request_id,omitempty"`
}

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Category selects one of the override pipelines.
type Category string

const (
	CategoryCluster   Category = "cluster"
	CategoryViolation Category = "violation"
	CategoryStopSign  Category = "stop_sign"
)

// SnapMethod classifies how the final point of an outcome was produced.
type SnapMethod string

const (
	MethodSnapped             SnapMethod = "snapped"
	MethodExtrapolatedNoMatch SnapMethod = "extrapolated_no_match"
	MethodHeadingRejected     SnapMethod = "heading_rejected"
	MethodSnapFailed          SnapMethod = "snap_failed"
	MethodDuplicateSkipped    SnapMethod = "duplicate_skipped"
)

const (
	// OverrideTypeSentinel is the only value accepted in an item's "type" field.
	OverrideTypeSentinel = "OVERRIDE_VALUE"
	// DefaultOverrideType is written when the source row carries no type.
	DefaultOverrideType = "OVERRIDE"
	// OverrideSourceManual is the provenance tag of rows written by this service.
	OverrideSourceManual = "MANUAL"
)

// RecordID identifies a cluster or a point component. Callers send these as
// JSON numbers or strings; both decode to the same canonical text.
type RecordID string

// UnmarshalJSON accepts a JSON string or number.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

// MarshalJSON emits canonical integers as numbers and everything else
// (including "007") as strings, so identifiers round-trip unchanged.
func (id RecordID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int64(); ok && strconv.FormatInt(n, 10) == string(id) {
		return []byte(string(id)), nil
	}
	return json.Marshal(string(id))
}

// Int64 reports the identifier as an integer when it is one.
func (id RecordID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String implements fmt.Stringer.
func (id RecordID) String() string {
	return string(id)
}

// SourceRecord is one unit of work as returned by the store's batch fetch.
type SourceRecord struct {
	ID             RecordID
	RowID          RecordID
	Point          GeoPoint
	HeadingDeg     float64
	CountryCode    string
	Accuracy       *float64
	SpeedLimitRead *float64
	ExpectedValue  *float64
	OverrideType   string
	OverrideValue  *float64
}

// SourceBatch is the store's answer to a batch fetch: the authoritative rows
// plus the ids it already classified as failed or skipped.
type SourceBatch struct {
	Records        []SourceRecord
	ProcessedCount int
	FailedCount    int
	SkippedCount   int
	FailedIDs      []RecordID
	SkippedIDs     []RecordID
}

// SnapOutcome is the result of running the decision policy for one record.
type SnapOutcome struct {
	ID                 RecordID   `json:"id"`
	Original           GeoPoint   `json:"original"`
	OriginalHeadingDeg float64    `json:"original_heading_deg"`
	Final              GeoPoint   `json:"final"`
	FinalHeadingDeg    float64    `json:"final_heading_deg"`
	Method             SnapMethod `json:"method"`
	WayID              *int64     `json:"way_id,omitempty"`
	WayName            string     `json:"way_name,omitempty"`
	Provider           string     `json:"provider,omitempty"`
	RadiusM            float64    `json:"radius_m,omitempty"`
	HeadingDiffDeg     *float64   `json:"heading_diff_deg,omitempty"`
	ExistingOverrideID *int64     `json:"existing_override_id,omitempty"`
	Message            string     `json:"message"`
}

// DuplicateCheck is the store's verdict on whether an active override already
// covers a corrected point.
type DuplicateCheck struct {
	Duplicate  bool
	ExistingID *int64
}

// OverrideRow is the finalized record handed to the store for persistence.
type OverrideRow struct {
	Category       Category
	ID             RecordID
	RowID          RecordID
	Point          GeoPoint
	HeadingDeg     float64
	Accuracy       *float64
	SpeedLimitRead *float64
	OverrideType   string
	OverrideValue  *float64
	ExpectedValue  *float64
	Source         string
}

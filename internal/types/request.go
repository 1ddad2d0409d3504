package types

import (
	"fmt"
	"strings"
)

const pointKeyPrefix = "trips_"

// ClusterBatchRequest is the body of POST /api/create-cluster-override.
type ClusterBatchRequest struct {
	ClusterIDs []ClusterItem `json:"cluster_ids" validate:"required,min=1,dive"`
	Detailed   bool          `json:"detailed,omitempty"`
}

// ClusterItem names one cluster and, optionally, the value to force on it.
type ClusterItem struct {
	ClusterID          RecordID `json:"cluster_id" validate:"record_id,ne=0"`
	Type               *string  `json:"type,omitempty" validate:"omitempty,eq=OVERRIDE_VALUE"`
	OverrideValue      *float64 `json:"override_value,omitempty"`
	OverrideValueAlias *float64 `json:"OVERRIDE_VALUE,omitempty"`
}

// Value returns the requested override value; OVERRIDE_VALUE wins when both
// spellings are present.
func (c ClusterItem) Value() *float64 {
	return firstNonNil(c.OverrideValueAlias, c.OverrideValue)
}

// PointBatchRequest is the body of the violation and stop-sign endpoints.
type PointBatchRequest struct {
	PointIDs []PointItem `json:"point_ids" validate:"required,min=1,dive"`
	Detailed bool        `json:"detailed,omitempty"`
}

// PointItem identifies one trip event.
type PointItem struct {
	TSPName            string   `json:"tsp_name" validate:"required,record_id"`
	TripID             RecordID `json:"trip_id" validate:"record_id"`
	EventIndex         RecordID `json:"event_index" validate:"record_id"`
	Type               *string  `json:"type,omitempty" validate:"omitempty,eq=OVERRIDE_VALUE"`
	OverrideValue      *float64 `json:"override_value,omitempty"`
	OverrideValueAlias *float64 `json:"OVERRIDE_VALUE,omitempty"`
}

// PointKey returns the store key trips_<tsp>::<trip>::<event>. A tsp name that
// already carries the trips_ prefix is used as is.
func (p PointItem) PointKey() string {
	tsp := strings.TrimSpace(p.TSPName)
	if !strings.HasPrefix(tsp, pointKeyPrefix) {
		tsp = pointKeyPrefix + tsp
	}
	return fmt.Sprintf("%s::%s::%s", tsp, p.TripID, p.EventIndex)
}

// Value returns the requested override value; OVERRIDE_VALUE wins when both
// spellings are present.
func (p PointItem) Value() *float64 {
	return firstNonNil(p.OverrideValueAlias, p.OverrideValue)
}

func firstNonNil(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

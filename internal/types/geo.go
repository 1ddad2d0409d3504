package types

import (
	"fmt"
	"math"
)

// Coordinate bounds for WGS84 points.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the point is finite and inside the WGS84 bounds.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || p.Lat < MinLat || p.Lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat,
			fmt.Sprintf("latitude %v outside [%v, %v]", p.Lat, MinLat, MaxLat), nil)
	}
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) || p.Lon < MinLon || p.Lon > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon,
			fmt.Sprintf("longitude %v outside [%v, %v]", p.Lon, MinLon, MaxLon), nil)
	}
	return nil
}

// String renders the point with six decimals, roughly 0.1 m precision.
func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// ValidateHeading rejects headings that cannot be normalized.
func ValidateHeading(h float64) error {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return NewAppError(ErrCodeValidationInvalidHeading, fmt.Sprintf("heading %v is not finite", h), nil)
	}
	return nil
}

// RoadWay is one road returned by a radius query against the road graph:
// an ordered polyline plus its free-form tags.
type RoadWay struct {
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Geometry []GeoPoint        `json:"geometry"`
}

// Name returns the display name of the way, falling back to its ref tag.
func (w RoadWay) Name() string {
	if n := w.Tags["name"]; n != "" {
		return n
	}
	return w.Tags["ref"]
}

// RoadMatch is the best road position found for a query point.
type RoadMatch struct {
	Point          GeoPoint `json:"point"`
	RoadHeadingDeg float64  `json:"road_heading_deg"`
	Provider       string   `json:"provider"`
	WayID          *int64   `json:"way_id,omitempty"`
	WayName        string   `json:"way_name,omitempty"`
	RadiusM        float64  `json:"radius_m"`
	DistanceM      float64  `json:"distance_m"`
}

// Package geo holds the pure geometry used by the road-snapping engine:
// headings, great-circle dead reckoning, point-to-segment projection and
// one-way resolution from road tags. Nothing here performs I/O.
package geo

import (
	"math"
	"strings"

	"github.com/satyaLM/override-api/internal/types"
)

// EarthRadiusM is the mean Earth radius used for spherical calculations.
const EarthRadiusM = 6371e3

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// NormalizeHeading wraps any heading into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// Bearing returns the initial great-circle heading from a to b in [0, 360).
func Bearing(a, b types.GeoPoint) float64 {
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	dLambda := toRad(b.Lon - a.Lon)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return NormalizeHeading(toDeg(math.Atan2(y, x)))
}

// SignedAngleDiff returns the rotation from heading a to heading b in
// (-180, 180]. Positive values are clockwise.
func SignedAngleDiff(a, b float64) float64 {
	d := NormalizeHeading(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

// AngleDiff returns the smallest absolute angle between two headings, in
// [0, 180].
func AngleDiff(a, b float64) float64 {
	return math.Abs(SignedAngleDiff(a, b))
}

// Destination moves distanceM meters from p along headingDeg on a sphere.
func Destination(p types.GeoPoint, headingDeg, distanceM float64) types.GeoPoint {
	brng := toRad(NormalizeHeading(headingDeg))
	lat1 := toRad(p.Lat)
	lon1 := toRad(p.Lon)
	delta := distanceM / EarthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	lon := toDeg(lon2)
	// Keep longitudes in [-180, 180] after crossing the antimeridian.
	if lon > 180 || lon < -180 {
		lon = math.Mod(lon+540, 360) - 180
	}
	return types.GeoPoint{Lat: toDeg(lat2), Lon: lon}
}

// Extrapolate dead-reckons distanceM meters along the reverse of headingDeg.
// An observation reported with a heading was made after passing the sign, so
// the sign itself lies behind the observer.
func Extrapolate(p types.GeoPoint, headingDeg, distanceM float64) types.GeoPoint {
	return Destination(p, headingDeg+180, distanceM)
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b types.GeoPoint) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// SegmentProjection is the closest point of a segment to a query point.
type SegmentProjection struct {
	DistanceM float64
	// T is the position of Point along the segment, clamped to [0, 1].
	T     float64
	Point types.GeoPoint
}

// DistanceToSegment projects p onto segment ab using an equirectangular
// approximation centered on p. Accurate to well under a meter at the few
// hundred meter scale the locator searches.
func DistanceToSegment(p, a, b types.GeoPoint) SegmentProjection {
	cosLat := math.Cos(toRad(p.Lat))
	project := func(q types.GeoPoint) (float64, float64) {
		return toRad(q.Lon-p.Lon) * cosLat * EarthRadiusM, toRad(q.Lat-p.Lat) * EarthRadiusM
	}

	ax, ay := project(a)
	bx, by := project(b)
	dx, dy := bx-ax, by-ay

	t := 0.0
	if lenSq := dx*dx + dy*dy; lenSq > 0 {
		t = (-ax*dx - ay*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}

	cx, cy := ax+t*dx, ay+t*dy
	return SegmentProjection{
		DistanceM: math.Hypot(cx, cy),
		T:         t,
		Point: types.GeoPoint{
			Lat: a.Lat + (b.Lat-a.Lat)*t,
			Lon: a.Lon + (b.Lon-a.Lon)*t,
		},
	}
}

// Direction is the travel direction permitted on a way relative to the order
// of its geometry.
type Direction int

const (
	Both Direction = iota
	Forward
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "both"
	}
}

// Headings lists the travel headings allowed on a segment whose geometric
// bearing is segmentBearing. The forward heading comes first.
func (d Direction) Headings(segmentBearing float64) []float64 {
	fwd := NormalizeHeading(segmentBearing)
	rev := NormalizeHeading(segmentBearing + 180)
	switch d {
	case Forward:
		return []float64{fwd}
	case Reverse:
		return []float64{rev}
	default:
		return []float64{fwd, rev}
	}
}

// ResolveOneway classifies a way from its OSM-style tags. Unknown or missing
// values are treated as two-way.
func ResolveOneway(tags map[string]string) Direction {
	oneway := strings.ToLower(strings.TrimSpace(tags["oneway"]))
	junction := strings.ToLower(strings.TrimSpace(tags["junction"]))

	switch oneway {
	case "yes", "1", "true":
		return Forward
	case "-1", "reverse":
		return Reverse
	case "no", "0", "false":
		return Both
	}
	if junction == "roundabout" || junction == "circular" {
		return Forward
	}
	return Both
}

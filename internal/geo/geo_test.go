package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaLM/override-api/internal/types"
)

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{359.5, 359.5},
		{360, 0},
		{-90, 270},
		{725, 5},
		{-720, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeHeading(tt.in), 1e-9, "NormalizeHeading(%v)", tt.in)
	}
}

func TestBearing_CardinalDirections(t *testing.T) {
	origin := types.GeoPoint{Lat: 0, Lon: 0}

	assert.InDelta(t, 0, Bearing(origin, types.GeoPoint{Lat: 1, Lon: 0}), 1e-9)
	assert.InDelta(t, 90, Bearing(origin, types.GeoPoint{Lat: 0, Lon: 1}), 1e-9)
	assert.InDelta(t, 180, Bearing(origin, types.GeoPoint{Lat: -1, Lon: 0}), 1e-9)
	assert.InDelta(t, 270, Bearing(origin, types.GeoPoint{Lat: 0, Lon: -1}), 1e-9)
}

func TestAngleDiff_Properties(t *testing.T) {
	assert.Equal(t, 0.0, AngleDiff(123, 123))
	assert.Equal(t, 180.0, AngleDiff(0, 180))
	assert.InDelta(t, 20, AngleDiff(350, 10), 1e-9)
	assert.InDelta(t, 20, AngleDiff(10, 350), 1e-9)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		a := rng.Float64()*1440 - 720
		b := rng.Float64()*1440 - 720
		d := AngleDiff(a, b)
		assert.GreaterOrEqual(t, d, 0.0)
		assert.LessOrEqual(t, d, 180.0)
		assert.InDelta(t, d, AngleDiff(b, a), 1e-9)
	}
}

func TestSignedAngleDiff(t *testing.T) {
	assert.InDelta(t, 20, SignedAngleDiff(350, 10), 1e-9)
	assert.InDelta(t, -20, SignedAngleDiff(10, 350), 1e-9)
	assert.Equal(t, 180.0, SignedAngleDiff(0, 180))
	assert.Equal(t, 180.0, SignedAngleDiff(180, 0))

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		d := SignedAngleDiff(rng.Float64()*360, rng.Float64()*360)
		assert.Greater(t, d, -180.0)
		assert.LessOrEqual(t, d, 180.0)
	}
}

func TestExtrapolate_BearingBackReproducesHeading(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		origin := types.GeoPoint{
			Lat: rng.Float64()*160 - 80,
			Lon: rng.Float64()*358 - 179,
		}
		heading := rng.Float64() * 360

		candidate := Extrapolate(origin, heading, 50)
		back := Bearing(candidate, origin)

		assert.InDelta(t, 0, AngleDiff(heading, back), 1e-2,
			"origin=%v heading=%v back=%v", origin, heading, back)
		assert.InDelta(t, 50, Haversine(origin, candidate), 1e-3)
	}
}

func TestExtrapolate_MovesBehindObserver(t *testing.T) {
	origin := types.GeoPoint{Lat: 12.9716, Lon: 77.5946}

	// Heading north: the dead-reckoned point lies to the south.
	p := Extrapolate(origin, 0, 50)
	assert.Less(t, p.Lat, origin.Lat)
	assert.InDelta(t, origin.Lon, p.Lon, 1e-9)

	// 50 m is roughly 0.00045 degrees of latitude.
	assert.InDelta(t, 50.0/EarthRadiusM*180/math.Pi, origin.Lat-p.Lat, 1e-9)
}

func TestDestination_WrapsAntimeridian(t *testing.T) {
	p := Destination(types.GeoPoint{Lat: 0, Lon: 179.9999}, 90, 100)
	require.NoError(t, p.Validate())
	assert.Less(t, p.Lon, -179.99)
}

func TestDistanceToSegment(t *testing.T) {
	a := types.GeoPoint{Lat: 0, Lon: 0}
	b := types.GeoPoint{Lat: 0, Lon: 0.001}

	t.Run("interior projection", func(t *testing.T) {
		p := types.GeoPoint{Lat: 0.0001, Lon: 0.0005}
		proj := DistanceToSegment(p, a, b)

		assert.InDelta(t, 0.5, proj.T, 1e-6)
		assert.InDelta(t, 0.0005, proj.Point.Lon, 1e-9)
		assert.InDelta(t, 0, proj.Point.Lat, 1e-12)
		assert.InDelta(t, Haversine(p, proj.Point), proj.DistanceM, 0.05)
	})

	t.Run("clamped before start", func(t *testing.T) {
		p := types.GeoPoint{Lat: 0, Lon: -0.001}
		proj := DistanceToSegment(p, a, b)

		assert.Equal(t, 0.0, proj.T)
		assert.Equal(t, a, proj.Point)
		assert.InDelta(t, Haversine(p, a), proj.DistanceM, 0.05)
	})

	t.Run("clamped past end", func(t *testing.T) {
		proj := DistanceToSegment(types.GeoPoint{Lat: 0, Lon: 0.002}, a, b)
		assert.Equal(t, 1.0, proj.T)
		assert.Equal(t, b, proj.Point)
	})

	t.Run("degenerate segment", func(t *testing.T) {
		p := types.GeoPoint{Lat: 0.0001, Lon: 0}
		proj := DistanceToSegment(p, a, a)
		assert.Equal(t, 0.0, proj.T)
		assert.Equal(t, a, proj.Point)
		assert.InDelta(t, Haversine(p, a), proj.DistanceM, 0.05)
	})
}

func TestResolveOneway(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want Direction
	}{
		{"nil tags", nil, Both},
		{"no oneway tag", map[string]string{"highway": "primary"}, Both},
		{"yes", map[string]string{"oneway": "yes"}, Forward},
		{"one", map[string]string{"oneway": "1"}, Forward},
		{"true uppercase", map[string]string{"oneway": "TRUE"}, Forward},
		{"minus one", map[string]string{"oneway": "-1"}, Reverse},
		{"reverse", map[string]string{"oneway": "reverse"}, Reverse},
		{"roundabout", map[string]string{"junction": "roundabout"}, Forward},
		{"circular", map[string]string{"junction": "circular"}, Forward},
		{"roundabout explicitly two-way", map[string]string{"junction": "roundabout", "oneway": "no"}, Both},
		{"unknown value", map[string]string{"oneway": "alternating"}, Both},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveOneway(tt.tags))
		})
	}
}

func TestDirection_Headings(t *testing.T) {
	assert.Equal(t, []float64{30}, Forward.Headings(30))
	assert.Equal(t, []float64{210}, Reverse.Headings(30))
	assert.Equal(t, []float64{300, 120}, Both.Headings(300))
	assert.Equal(t, "both", Both.String())
}

package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"googlemaps.github.io/maps"

	"github.com/satyaLM/override-api/internal/geo"
	"github.com/satyaLM/override-api/internal/types"
)

// googleProbeDistanceM is the length of the two-point path sent to
// snapToRoads. The second point lets us read the road heading off the snapped
// pair.
const googleProbeDistanceM = 20.0

// roadsAPI is the subset of *maps.Client used here.
type roadsAPI interface {
	SnapToRoad(ctx context.Context, r *maps.SnapToRoadRequest) (*maps.SnapToRoadResponse, error)
}

// GoogleRoadsConfig holds the configuration for a GoogleRoadsClient.
type GoogleRoadsConfig struct {
	APIKey     string
	BaseURL    string // override for tests
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// GoogleRoadsClient snaps points with the Google Maps Roads API.
type GoogleRoadsClient struct {
	api    roadsAPI
	logger *slog.Logger
}

// NewGoogleRoadsClient creates a GoogleRoadsClient backed by maps.Client.
func NewGoogleRoadsClient(cfg GoogleRoadsConfig) (*GoogleRoadsClient, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(cfg.APIKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, maps.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google maps client: %w", err)
	}
	return newGoogleRoadsClient(client, cfg.Logger), nil
}

func newGoogleRoadsClient(api roadsAPI, logger *slog.Logger) *GoogleRoadsClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleRoadsClient{api: api, logger: logger.With("provider", "google_roads")}
}

// Name identifies the provider in metrics and logs.
func (c *GoogleRoadsClient) Name() string { return "google_roads" }

// SnapPoint snaps p and a probe point ahead of it along headingDeg. The snapped
// origin is the match; the bearing between the two snapped points is the road
// heading. Matches farther than radiusM from p are discarded.
func (c *GoogleRoadsClient) SnapPoint(ctx context.Context, p types.GeoPoint, headingDeg, radiusM float64) (*types.RoadMatch, error) {
	probe := geo.Destination(p, headingDeg, googleProbeDistanceM)
	resp, err := c.api.SnapToRoad(ctx, &maps.SnapToRoadRequest{
		Path: []maps.LatLng{
			{Lat: p.Lat, Lng: p.Lon},
			{Lat: probe.Lat, Lng: probe.Lon},
		},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamRoadProvider, "google roads request failed", err)
	}

	var origin, ahead *types.GeoPoint
	for _, sp := range resp.SnappedPoints {
		if sp.OriginalIndex == nil {
			continue
		}
		pt := types.GeoPoint{Lat: sp.Location.Lat, Lon: sp.Location.Lng}
		switch *sp.OriginalIndex {
		case 0:
			if origin == nil {
				origin = &pt
			}
		case 1:
			if ahead == nil {
				ahead = &pt
			}
		}
	}
	if origin == nil {
		return nil, nil
	}

	dist := geo.Haversine(p, *origin)
	if dist > radiusM {
		c.logger.DebugContext(ctx, "google roads match outside radius",
			"distance_m", dist, "radius_m", radiusM)
		return nil, nil
	}

	heading := headingDeg
	if ahead != nil && geo.Haversine(*origin, *ahead) >= 1 {
		heading = geo.Bearing(*origin, *ahead)
	}

	return &types.RoadMatch{
		Point:          *origin,
		RoadHeadingDeg: heading,
		Provider:       c.Name(),
		RadiusM:        radiusM,
		DistanceM:      dist,
	}, nil
}

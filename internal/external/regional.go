package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/satyaLM/override-api/internal/types"
)

// RegionalSnapConfig holds the configuration for a RegionalSnapClient.
type RegionalSnapConfig struct {
	// Name labels the provider in logs and metrics, e.g. "usa_snap".
	Name      string
	BaseURL   string
	UserAgent string
	Logger    *slog.Logger
}

// regionalSnapResponse is the single-match payload of a regional snap service.
// Missing lat/lon means the service found no road.
type regionalSnapResponse struct {
	Lat     *float64        `json:"lat"`
	Lon     *float64        `json:"lon"`
	Bearing *float64        `json:"bearing"`
	WayID   *types.RecordID `json:"way_id"`
	WayName *string         `json:"way_name"`
}

// RegionalSnapClient calls a region-specific snapping service that returns
// one best road position per query.
type RegionalSnapClient struct {
	base    *BaseClient
	name    string
	baseURL string
	logger  *slog.Logger
}

// NewRegionalSnapClient creates a RegionalSnapClient.
func NewRegionalSnapClient(httpClient *http.Client, cfg RegionalSnapConfig) *RegionalSnapClient {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "OverrideAPI/1.0"
	}
	name := cfg.Name
	if name == "" {
		name = "regional_snap"
	}
	return NewRegionalSnapClientWithBase(NewBaseClient(httpClient, name, NoRetryPolicy(), userAgent), cfg)
}

// NewRegionalSnapClientWithBase creates a RegionalSnapClient around a
// pre-configured BaseClient.
func NewRegionalSnapClientWithBase(base *BaseClient, cfg RegionalSnapConfig) *RegionalSnapClient {
	name := cfg.Name
	if name == "" {
		name = "regional_snap"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RegionalSnapClient{
		base:    base,
		name:    name,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger.With("provider", name),
	}
}

// BreakerState reports the provider's circuit breaker state.
func (c *RegionalSnapClient) BreakerState() gobreaker.State { return c.base.BreakerState() }

// Name identifies the provider in metrics and logs.
func (c *RegionalSnapClient) Name() string { return c.name }

// SnapPoint asks the service for the road position nearest p within radiusM.
// It returns nil without error when the service reports no match.
func (c *RegionalSnapClient) SnapPoint(ctx context.Context, p types.GeoPoint, headingDeg, radiusM float64) (*types.RoadMatch, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', 8, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', 8, 64))
	q.Set("bearing", strconv.FormatFloat(headingDeg, 'f', 1, 64))
	q.Set("radius", strconv.FormatFloat(radiusM, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to create %s request", c.name), err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(c.name, resp)
	}

	var body regionalSnapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed,
			fmt.Sprintf("failed to decode %s response", c.name), err)
	}
	if body.Lat == nil || body.Lon == nil {
		return nil, nil
	}

	match := &types.RoadMatch{
		Point:          types.GeoPoint{Lat: *body.Lat, Lon: *body.Lon},
		RoadHeadingDeg: headingDeg,
		Provider:       c.name,
		RadiusM:        radiusM,
	}
	if err := match.Point.Validate(); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed,
			fmt.Sprintf("%s returned an invalid point", c.name), err)
	}
	if body.Bearing != nil {
		match.RoadHeadingDeg = *body.Bearing
	}
	if body.WayID != nil {
		if id, ok := body.WayID.Int64(); ok {
			match.WayID = &id
		}
	}
	if body.WayName != nil {
		match.WayName = *body.WayName
	}

	c.logger.DebugContext(ctx, "regional snap matched",
		"radius_m", radiusM,
		"point", match.Point.String(),
	)
	return match, nil
}

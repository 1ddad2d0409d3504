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

// overpassAPIBase is the public Overpass interpreter endpoint.
const overpassAPIBase = "https://overpass-api.de/api/interpreter"

// OverpassConfig holds the configuration for an OverpassClient.
type OverpassConfig struct {
	BaseURL string // defaults to overpassAPIBase
	// ServerTimeoutSec is the [timeout:N] setting sent with each query.
	ServerTimeoutSec int
	UserAgent        string
	Logger           *slog.Logger
}

// overpassResponse is the subset of the Overpass JSON output we read.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []*overpassNode   `json:"geometry"`
}

type overpassNode struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OverpassClient queries OpenStreetMap highways around a point.
type OverpassClient struct {
	base          *BaseClient
	baseURL       string
	serverTimeout int
	logger        *slog.Logger
}

// NewOverpassClient creates an OverpassClient. The httpClient timeout bounds
// each query; the locator applies its own per-call deadline as well.
func NewOverpassClient(httpClient *http.Client, cfg OverpassConfig) *OverpassClient {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "OverrideAPI/1.0"
	}
	base := NewBaseClient(httpClient, "overpass", NoRetryPolicy(), userAgent)
	return NewOverpassClientWithBase(base, cfg)
}

// NewOverpassClientWithBase creates an OverpassClient around a pre-configured
// BaseClient.
func NewOverpassClientWithBase(base *BaseClient, cfg OverpassConfig) *OverpassClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = overpassAPIBase
	}
	timeout := cfg.ServerTimeoutSec
	if timeout <= 0 {
		timeout = 30
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OverpassClient{
		base:          base,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		serverTimeout: timeout,
		logger:        logger.With("provider", "overpass"),
	}
}

// BreakerState reports the provider's circuit breaker state.
func (c *OverpassClient) BreakerState() gobreaker.State { return c.base.BreakerState() }

// Name identifies the provider in metrics and logs.
func (c *OverpassClient) Name() string { return "overpass" }

// buildQuery renders the Overpass QL for all highway ways within radiusM.
func (c *OverpassClient) buildQuery(p types.GeoPoint, radiusM float64) string {
	return fmt.Sprintf("[out:json][timeout:%d];way(around:%s,%.8f,%.8f)[highway];out geom tags;",
		c.serverTimeout, strconv.FormatFloat(radiusM, 'f', -1, 64), p.Lat, p.Lon)
}

// NearbyWays returns every highway within radiusM of p that has tags and at
// least two geometry points. An empty slice means nothing was found.
func (c *OverpassClient) NearbyWays(ctx context.Context, p types.GeoPoint, radiusM float64) ([]types.RoadWay, error) {
	form := url.Values{"data": {c.buildQuery(p, radiusM)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Overpass request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("overpass", resp)
	}

	var body overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed, "failed to decode Overpass response", err)
	}

	ways := make([]types.RoadWay, 0, len(body.Elements))
	for _, el := range body.Elements {
		if el.Tags == nil {
			continue
		}
		geometry := make([]types.GeoPoint, 0, len(el.Geometry))
		for _, n := range el.Geometry {
			if n == nil {
				continue
			}
			geometry = append(geometry, types.GeoPoint{Lat: n.Lat, Lon: n.Lon})
		}
		if len(geometry) < 2 {
			continue
		}
		ways = append(ways, types.RoadWay{ID: el.ID, Tags: el.Tags, Geometry: geometry})
	}

	c.logger.DebugContext(ctx, "overpass query complete",
		"radius_m", radiusM,
		"elements", len(body.Elements),
		"ways", len(ways),
	)
	return ways, nil
}

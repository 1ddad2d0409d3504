// Package snap finds the road position that corresponds to a noisy GPS
// observation and decides whether that position should replace the
// dead-reckoned point.
package snap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satyaLM/override-api/internal/geo"
	"github.com/satyaLM/override-api/internal/types"
)

// WaySource returns raw road geometry around a point. It backs the generic
// search.
type WaySource interface {
	Name() string
	NearbyWays(ctx context.Context, p types.GeoPoint, radiusM float64) ([]types.RoadWay, error)
}

// PointSnapper returns one road position per query. A nil match with a nil
// error means the provider found nothing.
type PointSnapper interface {
	Name() string
	SnapPoint(ctx context.Context, p types.GeoPoint, headingDeg, radiusM float64) (*types.RoadMatch, error)
}

// SpecializedProvider is a PointSnapper restricted to a set of countries.
type SpecializedProvider struct {
	Countries []string
	Snapper   PointSnapper
}

// Serves reports whether country (ISO alpha-3, case-insensitive) is handled.
func (s SpecializedProvider) Serves(country string) bool {
	for _, c := range s.Countries {
		if strings.EqualFold(strings.TrimSpace(c), country) {
			return true
		}
	}
	return false
}

// Config controls the search schedule.
type Config struct {
	InitialRadiusM  float64
	MaxRadiusM      float64
	GrowthFactor    float64
	RetryDelay      time.Duration
	ProviderTimeout time.Duration
}

// DefaultConfig returns the production search schedule.
func DefaultConfig() Config {
	return Config{
		InitialRadiusM:  50,
		MaxRadiusM:      200,
		GrowthFactor:    1.5,
		RetryDelay:      2 * time.Second,
		ProviderTimeout: 15 * time.Second,
	}
}

// Radii lists the search radii in order: InitialRadiusM growing by
// GrowthFactor while it stays within MaxRadiusM.
func (c Config) Radii() []float64 {
	if c.InitialRadiusM <= 0 || c.MaxRadiusM < c.InitialRadiusM {
		return nil
	}
	radii := []float64{c.InitialRadiusM}
	if c.GrowthFactor <= 1 {
		return radii
	}
	for r := c.InitialRadiusM * c.GrowthFactor; r <= c.MaxRadiusM; r *= c.GrowthFactor {
		radii = append(radii, r)
	}
	return radii
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithClock replaces the clock used for retry delays.
func WithClock(clock clockwork.Clock) LocatorOption {
	return func(l *Locator) { l.clock = clock }
}

// WithMetrics records provider attempts.
func WithMetrics(m *Metrics) LocatorOption {
	return func(l *Locator) { l.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LocatorOption {
	return func(l *Locator) { l.logger = logger }
}

// Locator finds the best road position near a point. It holds no per-call
// state and is safe for concurrent use.
type Locator struct {
	cfg         Config
	radii       []float64
	generic     WaySource
	specialized []SpecializedProvider
	clock       clockwork.Clock
	metrics     *Metrics
	logger      *slog.Logger
}

// NewLocator creates a Locator. specialized providers are consulted in order
// before the generic source for the countries they serve.
func NewLocator(cfg Config, generic WaySource, specialized []SpecializedProvider, opts ...LocatorOption) *Locator {
	l := &Locator{
		cfg:         cfg,
		radii:       cfg.Radii(),
		generic:     generic,
		specialized: specialized,
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the best road match for p, or nil when no provider produced
// one within the schedule. The error is non-nil only for invalid input or when
// ctx is done.
func (l *Locator) Locate(ctx context.Context, p types.GeoPoint, desiredHeadingDeg float64, country string) (*types.RoadMatch, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := types.ValidateHeading(desiredHeadingDeg); err != nil {
		return nil, err
	}
	heading := geo.NormalizeHeading(desiredHeadingDeg)
	logger := types.LoggerFromContext(ctx, l.logger)

	for _, sp := range l.specialized {
		if !sp.Serves(country) {
			continue
		}
		if m := l.trySpecialized(ctx, logger, sp.Snapper, p, heading); m != nil {
			return m, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if l.generic == nil {
		return nil, nil
	}

	for i, radius := range l.radii {
		m, err := l.searchGeneric(ctx, logger, p, heading, radius)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil && m != nil {
			return m, nil
		}
		if i < len(l.radii)-1 {
			if err := l.wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	logger.DebugContext(ctx, "no road within max radius",
		"point", p.String(),
		"max_radius_m", l.cfg.MaxRadiusM,
	)
	return nil, nil
}

// trySpecialized makes the single best-effort call to a specialized provider
// at the maximum radius. Any failure yields nil.
func (l *Locator) trySpecialized(ctx context.Context, logger *slog.Logger, sp PointSnapper, p types.GeoPoint, heading float64) *types.RoadMatch {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ProviderTimeout)
	defer cancel()

	start := l.clock.Now()
	m, err := sp.SnapPoint(callCtx, p, heading, l.cfg.MaxRadiusM)
	elapsed := l.clock.Since(start)

	switch {
	case err != nil:
		l.metrics.observeAttempt(sp.Name(), outcomeError, elapsed)
		logger.WarnContext(ctx, "specialized provider failed, falling back",
			"provider", sp.Name(), "error", err)
		return nil
	case m == nil:
		l.metrics.observeAttempt(sp.Name(), outcomeEmpty, elapsed)
		logger.DebugContext(ctx, "specialized provider found no road, falling back", "provider", sp.Name())
		return nil
	case m.Point.Validate() != nil || types.ValidateHeading(m.RoadHeadingDeg) != nil:
		l.metrics.observeAttempt(sp.Name(), outcomeInvalid, elapsed)
		logger.WarnContext(ctx, "specialized provider returned an invalid match, falling back", "provider", sp.Name())
		return nil
	}

	l.metrics.observeAttempt(sp.Name(), outcomeMatch, elapsed)
	match := *m
	match.RoadHeadingDeg = geo.NormalizeHeading(match.RoadHeadingDeg)
	if match.Provider == "" {
		match.Provider = sp.Name()
	}
	if match.RadiusM == 0 {
		match.RadiusM = l.cfg.MaxRadiusM
	}
	if match.DistanceM == 0 {
		match.DistanceM = geo.Haversine(p, match.Point)
	}
	l.metrics.observeMatch(match.RadiusM)
	return &match
}

func (l *Locator) searchGeneric(ctx context.Context, logger *slog.Logger, p types.GeoPoint, heading, radius float64) (*types.RoadMatch, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ProviderTimeout)
	defer cancel()

	name := l.generic.Name()
	start := l.clock.Now()
	ways, err := l.generic.NearbyWays(callCtx, p, radius)
	elapsed := l.clock.Since(start)
	if err != nil {
		l.metrics.observeAttempt(name, outcomeError, elapsed)
		logger.WarnContext(ctx, "road query failed, widening radius",
			"provider", name, "radius_m", radius, "error", err)
		return nil, err
	}

	m := NearestOnWays(p, heading, ways)
	if m == nil {
		l.metrics.observeAttempt(name, outcomeEmpty, elapsed)
		logger.DebugContext(ctx, "no roads in radius", "provider", name, "radius_m", radius)
		return nil, nil
	}

	l.metrics.observeAttempt(name, outcomeMatch, elapsed)
	l.metrics.observeMatch(radius)
	m.Provider = name
	m.RadiusM = radius
	logger.DebugContext(ctx, "road matched",
		"provider", name,
		"radius_m", radius,
		"distance_m", m.DistanceM,
		"way_id", *m.WayID,
	)
	return m, nil
}

// wait blocks for RetryDelay on the locator's clock or until ctx is done.
func (l *Locator) wait(ctx context.Context) error {
	if l.cfg.RetryDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(l.cfg.RetryDelay):
		return nil
	}
}

// NearestOnWays projects p onto every segment of every way and returns the
// closest projection, or nil when no way has at least two points. A strictly
// smaller distance replaces the current best, so ties keep the first segment.
// The road heading is whichever travel direction the way allows that lies
// closest to desiredHeadingDeg.
func NearestOnWays(p types.GeoPoint, desiredHeadingDeg float64, ways []types.RoadWay) *types.RoadMatch {
	var best *types.RoadMatch
	for _, way := range ways {
		if len(way.Geometry) < 2 {
			continue
		}
		dir := geo.ResolveOneway(way.Tags)
		for i := 0; i < len(way.Geometry)-1; i++ {
			a, b := way.Geometry[i], way.Geometry[i+1]
			proj := geo.DistanceToSegment(p, a, b)
			if best != nil && proj.DistanceM >= best.DistanceM {
				continue
			}
			wayID := way.ID
			best = &types.RoadMatch{
				Point:          proj.Point,
				RoadHeadingDeg: closestHeading(dir.Headings(geo.Bearing(a, b)), desiredHeadingDeg),
				WayID:          &wayID,
				WayName:        way.Name(),
				DistanceM:      proj.DistanceM,
			}
		}
	}
	return best
}

// closestHeading picks the candidate nearest desired; ties keep the first.
func closestHeading(candidates []float64, desired float64) float64 {
	best := candidates[0]
	for _, h := range candidates[1:] {
		if geo.AngleDiff(h, desired) < geo.AngleDiff(best, desired) {
			best = h
		}
	}
	return best
}

package snap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/satyaLM/override-api/internal/geo"
	"github.com/satyaLM/override-api/internal/types"
)

// RoadLocator is the road lookup used by Policy.
type RoadLocator interface {
	Locate(ctx context.Context, p types.GeoPoint, desiredHeadingDeg float64, country string) (*types.RoadMatch, error)
}

// PolicyConfig holds the decision thresholds.
type PolicyConfig struct {
	ExtrapolationDistanceM float64
	HeadingToleranceDeg    float64
	// DefaultCountry is used when a record carries no country code.
	DefaultCountry string
}

// DefaultPolicyConfig returns the production thresholds.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ExtrapolationDistanceM: 50,
		HeadingToleranceDeg:    45,
		DefaultCountry:         "IND",
	}
}

// Policy turns a source record into a snap outcome. It is stateless.
type Policy struct {
	cfg     PolicyConfig
	locator RoadLocator
	logger  *slog.Logger
}

// NewPolicy creates a Policy.
func NewPolicy(cfg PolicyConfig, locator RoadLocator, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{cfg: cfg, locator: locator, logger: logger}
}

// Decide dead-reckons the record, looks for a road at the candidate point and
// accepts the road position only when its heading agrees with the record's
// heading within tolerance.
func (p *Policy) Decide(ctx context.Context, rec types.SourceRecord) types.SnapOutcome {
	out := types.SnapOutcome{
		ID:                 rec.ID,
		Original:           rec.Point,
		OriginalHeadingDeg: rec.HeadingDeg,
		Final:              rec.Point,
		FinalHeadingDeg:    rec.HeadingDeg,
	}
	if err := validateRecord(rec); err != nil {
		out.Method = types.MethodSnapFailed
		out.Message = err.Error()
		return out
	}

	heading := geo.NormalizeHeading(rec.HeadingDeg)
	candidate := geo.Extrapolate(rec.Point, heading, p.cfg.ExtrapolationDistanceM)
	out.Final = candidate
	out.FinalHeadingDeg = heading

	country := rec.CountryCode
	if country == "" {
		country = p.cfg.DefaultCountry
	}

	match, err := p.locator.Locate(ctx, candidate, heading, country)
	if err != nil {
		out.Method = types.MethodSnapFailed
		out.Message = err.Error()
		types.LoggerFromContext(ctx, p.logger).WarnContext(ctx, "road lookup failed",
			"id", rec.ID.String(), "error", err)
		return out
	}
	if match == nil {
		out.Method = types.MethodExtrapolatedNoMatch
		out.Message = "no road found, using extrapolated point"
		return out
	}

	diff := geo.AngleDiff(heading, match.RoadHeadingDeg)
	out.HeadingDiffDeg = &diff
	out.WayID = match.WayID
	out.WayName = match.WayName
	out.Provider = match.Provider
	out.RadiusM = match.RadiusM

	if diff <= p.cfg.HeadingToleranceDeg {
		out.Method = types.MethodSnapped
		out.Final = match.Point
		out.FinalHeadingDeg = geo.NormalizeHeading(match.RoadHeadingDeg)
		out.Message = fmt.Sprintf("snapped to road at %.1fm radius", match.RadiusM)
		return out
	}

	out.Method = types.MethodHeadingRejected
	out.Message = fmt.Sprintf("road heading differs by %.1f° (tolerance %.1f°), using extrapolated point",
		diff, p.cfg.HeadingToleranceDeg)
	return out
}

// Extrapolate returns the dead-reckoned outcome without consulting any road
// provider.
func (p *Policy) Extrapolate(rec types.SourceRecord) types.SnapOutcome {
	out := types.SnapOutcome{
		ID:                 rec.ID,
		Original:           rec.Point,
		OriginalHeadingDeg: rec.HeadingDeg,
		Final:              rec.Point,
		FinalHeadingDeg:    rec.HeadingDeg,
	}
	if err := validateRecord(rec); err != nil {
		out.Method = types.MethodSnapFailed
		out.Message = err.Error()
		return out
	}
	heading := geo.NormalizeHeading(rec.HeadingDeg)
	out.Method = types.MethodExtrapolatedNoMatch
	out.Final = geo.Extrapolate(rec.Point, heading, p.cfg.ExtrapolationDistanceM)
	out.FinalHeadingDeg = heading
	out.Message = "extrapolated point"
	return out
}

func validateRecord(rec types.SourceRecord) error {
	if err := rec.Point.Validate(); err != nil {
		return err
	}
	return types.ValidateHeading(rec.HeadingDeg)
}

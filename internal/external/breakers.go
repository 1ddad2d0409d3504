package external

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"
)

type breakerReporter interface {
	Name() string
	BreakerState() gobreaker.State
}

// BreakerProbe is an optional health probe that fails while any provider
// circuit is open. Snapping still degrades to dead reckoning in that state, so
// the service stays available.
type BreakerProbe struct {
	mu        sync.Mutex
	providers []breakerReporter
}

func (p *BreakerProbe) add(r breakerReporter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.providers = append(p.providers, r)
}

// Name satisfies core.HealthProbe.
func (p *BreakerProbe) Name() string { return "road_providers" }

// Optional marks the probe as non-critical.
func (p *BreakerProbe) Optional() bool { return true }

// Check satisfies core.HealthProbe.
func (p *BreakerProbe) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var open []string
	for _, r := range p.providers {
		if r.BreakerState() == gobreaker.StateOpen {
			open = append(open, r.Name())
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("circuit open: %s", strings.Join(open, ", "))
	}
	return nil
}

package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole health check; probes still running at
// the deadline are reported as timed out.
const healthCheckTimeout = 2 * time.Second

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthProbe checks one dependency of the service.
type HealthProbe interface {
	// Name identifies the component in the response ("database", "road_cache").
	Name() string
	// Check must honor the context deadline.
	Check(ctx context.Context) error
}

// OptionalProbe is implemented by probes whose dependency the service can run
// without. A failing optional probe degrades the status but keeps 200.
type OptionalProbe interface {
	HealthProbe
	Optional() bool
}

type componentStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every registered probe concurrently and answers 503 when a
// required dependency is down or did not answer within healthCheckTimeout.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: statusHealthy, Version: s.Config.Build.Version}

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	// done is buffered so probes finishing after the deadline never block.
	type result struct {
		idx     int
		err     error
		latency time.Duration
	}
	done := make(chan result, len(probes))
	for i, probe := range probes {
		go func() {
			start := time.Now()
			err := runProbe(ctx, probe)
			done <- result{idx: i, err: err, latency: time.Since(start)}
		}()
	}

	results := make([]*result, len(probes))
collect:
	for range probes {
		select {
		case res := <-done:
			results[res.idx] = &res
		case <-ctx.Done():
			break collect
		}
	}

	resp.Components = make(map[string]componentStatus, len(probes))
	code := http.StatusOK
	for i, probe := range probes {
		cs := componentStatus{Status: statusHealthy}
		switch res := results[i]; {
		case res == nil:
			cs = componentStatus{Status: statusUnhealthy, Message: "health check timed out", LatencyMs: healthCheckTimeout.Milliseconds()}
		case res.err != nil:
			cs = componentStatus{Status: statusUnhealthy, Message: res.err.Error(), LatencyMs: res.latency.Milliseconds()}
		default:
			cs.LatencyMs = res.latency.Milliseconds()
		}
		resp.Components[probe.Name()] = cs

		if cs.Status == statusHealthy {
			continue
		}
		if isOptional(probe) {
			if resp.Status == statusHealthy {
				resp.Status = statusDegraded
			}
			continue
		}
		resp.Status = statusUnhealthy
		code = http.StatusServiceUnavailable
	}

	JSON(w, r, code, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("probe panicked: %v", rec)
		}
	}()
	return p.Check(ctx)
}

func isOptional(p HealthProbe) bool {
	op, ok := p.(OptionalProbe)
	return ok && op.Optional()
}

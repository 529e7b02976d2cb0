// Package health derives pull-based health, readiness and liveness reports
// from the model lifecycle, the metrics accumulator and a device probe.
// Nothing is cached: every query reads current state, so an orchestrator
// polling /health always sees the live picture.
package health

import (
	"context"

	"inferd/internal/config"
	"inferd/internal/device"
	"inferd/internal/engine"
	"inferd/internal/metrics"
	"inferd/pkg/types"
)

// Status strings reported in HealthResponse.Status.
const (
	StatusLoading  = "loading"
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// LowMemoryThresholdMB is the free-memory floor below which a warning is
// attached to otherwise-healthy reports.
const LowMemoryThresholdMB = 1024

// degradedMinWindow is the minimum number of recent requests before an
// all-failure window counts as degraded. Below it a single early failure
// would flap the status.
const degradedMinWindow = 5

// stateSource is the slice of engine.Loader the checker needs.
type stateSource interface {
	State() engine.ModelState
}

// metricsSource yields the accumulator snapshot.
type metricsSource interface {
	Snapshot() metrics.Snapshot
}

// Checker answers the health, readiness and liveness queries.
type Checker struct {
	cfg    *config.Config
	state  stateSource
	acc    metricsSource
	prober device.Prober
}

// NewChecker wires a checker over the loader, accumulator and device probe.
func NewChecker(cfg *config.Config, state stateSource, acc metricsSource, prober device.Prober) *Checker {
	return &Checker{cfg: cfg, state: state, acc: acc, prober: prober}
}

// Health derives the full report. Status precedence: failed beats
// everything, then loading, then degraded, then ready.
func (c *Checker) Health(ctx context.Context) types.HealthResponse {
	st := c.state.State()
	snap := c.acc.Snapshot()

	resp := types.HealthResponse{
		ModelID:     c.cfg.ModelID,
		ModelLoaded: st.Phase == engine.PhaseReady,
		ModelReady:  st.Phase == engine.PhaseReady,
	}
	if st.LoadDuration > 0 {
		resp.ModelLoadTimeSeconds = st.LoadDuration.Seconds()
	}

	info := c.prober.Probe(ctx)
	if info.Available {
		resp.Device = &types.DeviceHealth{
			Name:              info.Name,
			MemoryAllocatedMB: info.UsedMB,
			MemoryFreeMB:      info.FreeMB,
			MemoryTotalMB:     info.TotalMB,
		}
	}

	switch st.Phase {
	case engine.PhaseFailed:
		resp.Status = StatusFailed
		resp.LastError = st.LastError
	case engine.PhaseReady:
		resp.Status = StatusReady
		if degraded(snap) {
			resp.Status = StatusDegraded
			resp.Warnings = append(resp.Warnings, "all recent requests failed")
		}
		if info.Available && info.FreeMB < LowMemoryThresholdMB {
			resp.Status = StatusDegraded
			resp.Warnings = append(resp.Warnings, "free device memory below 1024 MB")
		}
	default:
		resp.Status = StatusLoading
	}
	return resp
}

// Readiness reports whether the worker should receive traffic. It flips to
// ready exactly once, when the load completes; a degraded window does not
// pull the worker out of rotation.
func (c *Checker) Readiness() types.ReadinessResponse {
	st := c.state.State()
	switch st.Phase {
	case engine.PhaseReady:
		return types.ReadinessResponse{Ready: true, Message: "model loaded and serving"}
	case engine.PhaseFailed:
		return types.ReadinessResponse{Ready: false, Message: "model loading failed"}
	default:
		return types.ReadinessResponse{Ready: false, Message: "model is loading"}
	}
}

// Liveness reports process liveness: false only in the terminal failed
// state, where a restart is the only way forward. Loading and degraded
// workers are alive.
func (c *Checker) Liveness() types.LivenessResponse {
	if c.state.State().Phase == engine.PhaseFailed {
		return types.LivenessResponse{Alive: false, Message: "model loading failed, restart required"}
	}
	return types.LivenessResponse{Alive: true, Message: "worker process is running"}
}

// Metrics assembles the cumulative JSON counters payload.
func (c *Checker) Metrics(ctx context.Context) types.MetricsResponse {
	st := c.state.State()
	snap := c.acc.Snapshot()

	resp := types.MetricsResponse{
		RequestsTotal:        snap.RequestsTotal,
		FailuresTotal:        snap.FailuresTotal,
		FailuresByType:       snap.FailuresByType,
		AvgLatencyMs:         float64(snap.AvgLatency.Microseconds()) / 1000.0,
		P50LatencyMs:         float64(snap.P50Latency.Microseconds()) / 1000.0,
		P95LatencyMs:         float64(snap.P95Latency.Microseconds()) / 1000.0,
		TokensGeneratedTotal: snap.TokensGeneratedTotal,
		ModelLoaded:          st.Phase == engine.PhaseReady,
		UptimeSeconds:        int64(snap.Uptime.Seconds()),
	}
	if st.LoadDuration > 0 {
		resp.ModelLoadTimeSeconds = st.LoadDuration.Seconds()
	}
	if info := c.prober.Probe(ctx); info.Available {
		resp.GPUMemoryAllocatedMB = info.UsedMB
		resp.GPUMemoryFreeMB = info.FreeMB
		resp.GPUMemoryTotalMB = info.TotalMB
	}
	return resp
}

// degraded holds when the rolling window is saturated with failures.
func degraded(s metrics.Snapshot) bool {
	return s.RecentCount >= degradedMinWindow && s.RecentFailures == s.RecentCount
}

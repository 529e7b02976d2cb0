// Package metrics accumulates process-wide request counters and a bounded
// window of recent latencies. The pipeline writes after every request;
// health and metrics queries read concurrently via Snapshot.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindowSize bounds the rolling latency window.
const DefaultWindowSize = 64

// Outcome is one finished request as seen by the accumulator.
type Outcome struct {
	Duration        time.Duration
	TokensGenerated int
	// ErrType is empty on success, otherwise the stable classified type
	// string (e.g. "ValidationError").
	ErrType string
}

type windowEntry struct {
	dur    time.Duration
	failed bool
}

// Accumulator is safe for one writer per request and any number of
// concurrent Snapshot readers.
type Accumulator struct {
	mu       sync.Mutex
	requests uint64
	failures uint64
	byType   map[string]uint64
	tokens   uint64
	window   []windowEntry
	next     int
	count    int
	start    time.Time
}

// NewAccumulator creates an accumulator with the given window size
// (DefaultWindowSize when n <= 0).
func NewAccumulator(n int) *Accumulator {
	if n <= 0 {
		n = DefaultWindowSize
	}
	return &Accumulator{
		byType: make(map[string]uint64),
		window: make([]windowEntry, n),
		start:  time.Now(),
	}
}

// Record folds one outcome into the counters and the rolling window. O(1).
func (a *Accumulator) Record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests++
	failed := o.ErrType != ""
	if failed {
		a.failures++
		a.byType[o.ErrType]++
	} else {
		a.tokens += uint64(o.TokensGenerated)
	}
	a.window[a.next] = windowEntry{dur: o.Duration, failed: failed}
	a.next = (a.next + 1) % len(a.window)
	if a.count < len(a.window) {
		a.count++
	}
}

// Snapshot is a read-only copy of the accumulated state.
type Snapshot struct {
	RequestsTotal        uint64
	FailuresTotal        uint64
	FailuresByType       map[string]uint64
	TokensGeneratedTotal uint64
	AvgLatency           time.Duration
	P50Latency           time.Duration
	P95Latency           time.Duration
	// RecentCount and RecentFailures describe the rolling window; health
	// derivation treats an all-failure window as a degraded signal.
	RecentCount    int
	RecentFailures int
	Uptime         time.Duration
}

// Snapshot copies the current counters and computes window statistics.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		RequestsTotal:        a.requests,
		FailuresTotal:        a.failures,
		FailuresByType:       make(map[string]uint64, len(a.byType)),
		TokensGeneratedTotal: a.tokens,
		RecentCount:          a.count,
		Uptime:               time.Since(a.start),
	}
	for k, v := range a.byType {
		s.FailuresByType[k] = v
	}
	if a.count == 0 {
		return s
	}
	durs := make([]time.Duration, 0, a.count)
	var sum time.Duration
	for i := 0; i < a.count; i++ {
		e := a.window[i]
		durs = append(durs, e.dur)
		sum += e.dur
		if e.failed {
			s.RecentFailures++
		}
	}
	sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
	s.AvgLatency = sum / time.Duration(a.count)
	s.P50Latency = durs[percentileIndex(len(durs), 50)]
	s.P95Latency = durs[percentileIndex(len(durs), 95)]
	return s
}

func percentileIndex(n, pct int) int {
	idx := n*pct/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}

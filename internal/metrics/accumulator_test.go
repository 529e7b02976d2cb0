package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestRecordCountsSuccessAndFailure(t *testing.T) {
	a := NewAccumulator(8)
	a.Record(Outcome{Duration: 10 * time.Millisecond, TokensGenerated: 5})
	a.Record(Outcome{Duration: 20 * time.Millisecond, ErrType: "ValidationError"})
	a.Record(Outcome{Duration: 30 * time.Millisecond, ErrType: "ValidationError"})
	a.Record(Outcome{Duration: 40 * time.Millisecond, ErrType: "TimeoutError"})

	s := a.Snapshot()
	if s.RequestsTotal != 4 {
		t.Fatalf("requests=%d", s.RequestsTotal)
	}
	if s.FailuresTotal != 3 {
		t.Fatalf("failures=%d", s.FailuresTotal)
	}
	if s.FailuresByType["ValidationError"] != 2 || s.FailuresByType["TimeoutError"] != 1 {
		t.Fatalf("by type: %v", s.FailuresByType)
	}
	if s.TokensGeneratedTotal != 5 {
		t.Fatalf("tokens=%d", s.TokensGeneratedTotal)
	}
	if s.RecentCount != 4 || s.RecentFailures != 3 {
		t.Fatalf("window: count=%d failures=%d", s.RecentCount, s.RecentFailures)
	}
}

func TestWindowIsBounded(t *testing.T) {
	a := NewAccumulator(4)
	for i := 0; i < 10; i++ {
		a.Record(Outcome{Duration: time.Duration(i) * time.Millisecond})
	}
	s := a.Snapshot()
	if s.RecentCount != 4 {
		t.Fatalf("window count=%d, want 4", s.RecentCount)
	}
	if s.RequestsTotal != 10 {
		t.Fatalf("requests=%d", s.RequestsTotal)
	}
}

func TestLatencyStatistics(t *testing.T) {
	a := NewAccumulator(10)
	for _, ms := range []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		a.Record(Outcome{Duration: time.Duration(ms) * time.Millisecond})
	}
	s := a.Snapshot()
	if s.AvgLatency != 55*time.Millisecond {
		t.Fatalf("avg=%v", s.AvgLatency)
	}
	if s.P50Latency != 50*time.Millisecond {
		t.Fatalf("p50=%v", s.P50Latency)
	}
	if s.P95Latency != 90*time.Millisecond {
		t.Fatalf("p95=%v", s.P95Latency)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	a := NewAccumulator(0)
	s := a.Snapshot()
	if s.RequestsTotal != 0 || s.RecentCount != 0 || s.AvgLatency != 0 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	a := NewAccumulator(4)
	a.Record(Outcome{ErrType: "InternalError"})
	s := a.Snapshot()
	s.FailuresByType["InternalError"] = 99
	if a.Snapshot().FailuresByType["InternalError"] != 1 {
		t.Fatalf("snapshot map aliases internal state")
	}
}

func TestConcurrentRecordAndSnapshot(t *testing.T) {
	a := NewAccumulator(16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.Record(Outcome{Duration: time.Millisecond})
				_ = a.Snapshot()
			}
		}()
	}
	wg.Wait()
	if got := a.Snapshot().RequestsTotal; got != 800 {
		t.Fatalf("requests=%d, want 800", got)
	}
}

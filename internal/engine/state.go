package engine

import "time"

// Phase is the model lifecycle phase. Transitions are monotonic
// (uninitialized -> loading -> ready | failed) except failed -> loading,
// which only an explicit bounded reload may take.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLoading       Phase = "loading"
	PhaseReady         Phase = "ready"
	PhaseFailed        Phase = "failed"
)

// ModelState records load progress, device placement and timing. It is
// owned by the Loader; readers get copies and can never observe a torn
// update.
type ModelState struct {
	Phase           Phase
	Device          string
	LoadStartedAt   time.Time
	LoadCompletedAt time.Time
	LoadDuration    time.Duration
	LastError       string
}

package engine

import (
	"context"
	"time"

	"inferd/internal/metrics"
)

// admission serializes accelerator access: a bounded FIFO queue feeding a
// single in-flight generation slot. Overlapping generation calls against one
// device context are never issued.
type admission struct {
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
	maxWait time.Duration
}

func newAdmission(depth int, maxWait time.Duration) *admission {
	if depth <= 0 {
		depth = 1
	}
	if maxWait <= 0 {
		// time.NewTimer(0) fires immediately and would reject every
		// request as TooBusy.
		maxWait = 30 * time.Second
	}
	return &admission{
		genCh:   make(chan struct{}, 1),
		queueCh: make(chan struct{}, depth),
		maxWait: maxWait,
	}
}

// acquire reserves a queue slot and then the in-flight slot. Returns a
// release func to be deferred. Overflow or waiting past maxWait yields
// TooBusy.
func (a *admission) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(a.maxWait)
	defer timer.Stop()
	select {
	case a.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, ErrTooBusy()
	}

	acquired := false
	defer func() {
		if !acquired {
			<-a.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(a.maxWait)
	defer timer2.Stop()
	select {
	case a.genCh <- struct{}{}:
		acquired = true
		metrics.GenerationStarted()
		return func() {
			metrics.GenerationFinished()
			<-a.genCh
			<-a.queueCh
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, ErrTooBusy()
	}
}

// queueLen reports how many requests currently hold queue slots.
func (a *admission) queueLen() int { return len(a.queueCh) }

// inflight reports whether a generation currently holds the device slot.
func (a *admission) inflight() int { return len(a.genCh) }

package engine

import (
	"context"
	"testing"
	"time"
)

func TestAdmissionSingleSlot(t *testing.T) {
	a := newAdmission(4, time.Second)
	release, err := a.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if a.inflight() != 1 {
		t.Fatalf("inflight=%d, want 1", a.inflight())
	}
	release()
	if a.inflight() != 0 || a.queueLen() != 0 {
		t.Fatalf("slots not released: inflight=%d queue=%d", a.inflight(), a.queueLen())
	}
}

func TestAdmissionZeroWaitDoesNotRejectIdle(t *testing.T) {
	// A non-positive wait must not arm an already-fired timer and turn
	// every request into TooBusy while the device sits idle.
	a := newAdmission(4, 0)
	release, err := a.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire on idle admission: %v", err)
	}
	release()
}

func TestAdmissionWaitTimesOut(t *testing.T) {
	a := newAdmission(4, 20*time.Millisecond)
	release, err := a.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := a.acquire(context.Background()); !IsTooBusy(err) {
		t.Fatalf("expected TooBusy after wait timeout, got %v", err)
	}
	// The failed waiter must have given its queue slot back.
	if a.queueLen() != 1 {
		t.Fatalf("queue slot leaked: queueLen=%d", a.queueLen())
	}
}

func TestAdmissionQueueOverflow(t *testing.T) {
	a := newAdmission(1, 20*time.Millisecond)
	release, err := a.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	// The holder occupies the only queue slot; later callers cannot even
	// enter the queue and time out.
	waiting := make(chan error, 1)
	go func() {
		_, err := a.acquire(context.Background())
		waiting <- err
	}()
	time.Sleep(5 * time.Millisecond)

	// Third caller finds the queue full and times out.
	if _, err := a.acquire(context.Background()); !IsTooBusy(err) {
		t.Fatalf("expected TooBusy on overflow, got %v", err)
	}
	if err := <-waiting; !IsTooBusy(err) {
		t.Fatalf("queued waiter: %v", err)
	}
}

func TestAdmissionHonorsContextCancellation(t *testing.T) {
	a := newAdmission(4, time.Minute)
	release, err := a.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.acquire(ctx)
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("acquire did not observe cancellation")
	}
}

func TestAdmissionPassesSlotToWaiter(t *testing.T) {
	a := newAdmission(4, time.Second)
	release, err := a.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		r, err := a.acquire(context.Background())
		if err == nil {
			r()
		}
		got <- err
	}()
	time.Sleep(5 * time.Millisecond)
	release()
	if err := <-got; err != nil {
		t.Fatalf("waiter never got the slot: %v", err)
	}
}

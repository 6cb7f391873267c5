// SPDX-License-Identifier: MIT

package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ManuGH/embywatch/internal/emby"
	"github.com/ManuGH/embywatch/internal/log"
)

// countingFetch records every invocation and signals each run on a channel.
type countingFetch struct {
	mu    sync.Mutex
	calls int
	err   error
	ran   chan struct{}
}

func newCountingFetch() *countingFetch {
	return &countingFetch{ran: make(chan struct{}, 64)}
}

func (f *countingFetch) fetch(_ context.Context) (int, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	err := f.err
	f.mu.Unlock()

	select {
	case f.ran <- struct{}{}:
	default:
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (f *countingFetch) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *countingFetch) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitRun(t *testing.T, f *countingFetch) {
	t.Helper()
	select {
	case <-f.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a poll run")
	}
}

// startCoordinator runs c in the background and returns a stop function that
// cancels the loop and waits for it to exit.
func startCoordinator[T any](t *testing.T, c *Coordinator[T]) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Run(ctx); err != nil {
			t.Errorf("Run() returned error: %v", err)
		}
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("poll loop did not stop")
		}
	}
}

func TestCoordinatorFetchesImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newCountingFetch()
	c := New("sessions", time.Hour, f.fetch)

	stop := startCoordinator(t, c)
	defer stop()

	waitRun(t, f)

	data, at, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected snapshot after first run")
	}
	if data != 1 {
		t.Errorf("snapshot data = %d, want 1", data)
	}
	if at.IsZero() {
		t.Error("expected non-zero snapshot time")
	}
	if err := c.LastError(); err != nil {
		t.Errorf("LastError() = %v, want nil", err)
	}
}

func TestCoordinatorTicksOnInterval(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newCountingFetch()
	c := New("sessions", 10*time.Millisecond, f.fetch)

	stop := startCoordinator(t, c)
	defer stop()

	for i := 0; i < 3; i++ {
		waitRun(t, f)
	}
	if got := f.count(); got < 3 {
		t.Errorf("fetch count = %d, want at least 3", got)
	}
}

func TestCoordinatorRequestRefresh(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newCountingFetch()
	c := New("library", time.Hour, f.fetch)

	stop := startCoordinator(t, c)
	defer stop()

	waitRun(t, f)

	c.RequestRefresh()
	waitRun(t, f)

	if got := f.count(); got < 2 {
		t.Errorf("fetch count = %d, want at least 2 after refresh", got)
	}
}

func TestCoordinatorRequestRefreshNeverBlocks(t *testing.T) {
	f := newCountingFetch()
	c := New("sessions", time.Hour, f.fetch)

	// No Run loop is draining the channel; repeated requests must coalesce.
	for i := 0; i < 10; i++ {
		c.RequestRefresh()
	}
}

func TestCoordinatorKeepsLastSnapshotOnError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newCountingFetch()
	c := New("sessions", time.Hour, f.fetch)

	stop := startCoordinator(t, c)
	defer stop()

	waitRun(t, f)
	first, _, ok := c.Snapshot()
	if !ok || first != 1 {
		t.Fatalf("snapshot = %d, %v; want 1, true", first, ok)
	}

	fetchErr := errors.New("upstream unreachable")
	f.setErr(fetchErr)
	c.RequestRefresh()
	waitRun(t, f)

	data, _, ok := c.Snapshot()
	if !ok || data != first {
		t.Errorf("snapshot after error = %d, %v; want retained %d, true", data, ok, first)
	}
	if err := c.LastError(); !errors.Is(err, fetchErr) {
		t.Errorf("LastError() = %v, want %v", err, fetchErr)
	}

	f.setErr(nil)
	c.RequestRefresh()
	waitRun(t, f)

	if err := c.LastError(); err != nil {
		t.Errorf("LastError() after recovery = %v, want nil", err)
	}
	data, _, _ = c.Snapshot()
	if data == first {
		t.Error("expected fresh snapshot after recovery")
	}
}

func TestCoordinatorAuthLatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newCountingFetch()
	f.setErr(emby.ErrAuth)
	c := New("sessions", 10*time.Millisecond, f.fetch)

	stop := startCoordinator(t, c)
	defer stop()

	waitRun(t, f)
	if !c.AuthLatched() {
		t.Fatal("expected auth latch after ErrAuth")
	}

	// Latched runs must not hit the fetch function again.
	calls := f.count()
	time.Sleep(50 * time.Millisecond)
	if got := f.count(); got != calls {
		t.Errorf("fetch count while latched = %d, want %d", got, calls)
	}

	if _, _, ok := c.Snapshot(); ok {
		t.Error("expected no snapshot, every fetch failed")
	}

	f.setErr(nil)
	c.Rearm()
	waitRun(t, f)

	if c.AuthLatched() {
		t.Error("expected latch cleared after Rearm")
	}
	if _, _, ok := c.Snapshot(); !ok {
		t.Error("expected snapshot after rearmed fetch")
	}
}

func TestCoordinatorNotifiesSubscribersInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newCountingFetch()
	c := New("sessions", time.Hour, f.fetch)

	var mu sync.Mutex
	var order []string
	var runID string
	c.Subscribe(func(ctx context.Context, data int) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "first")
		runID = log.RunIDFromContext(ctx)
	})
	c.Subscribe(func(_ context.Context, data int) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "second")
		if data != 1 {
			t.Errorf("subscriber data = %d, want 1", data)
		}
	})

	stop := startCoordinator(t, c)
	defer stop()

	waitRun(t, f)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscribers notified %d times, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "first" || order[1] != "second" {
		t.Errorf("notification order = %v, want [first second]", order)
	}
	if runID == "" {
		t.Error("expected run id on subscriber context")
	}
}

func TestCoordinatorSetInterval(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newCountingFetch()
	c := New("sessions", time.Hour, f.fetch)

	stop := startCoordinator(t, c)
	defer stop()

	waitRun(t, f)

	c.SetInterval(10 * time.Millisecond)
	if got := c.Interval(); got != 10*time.Millisecond {
		t.Fatalf("Interval() = %v, want 10ms", got)
	}

	// The rescheduled ticker must drive further fetches.
	waitRun(t, f)
	waitRun(t, f)
}

func TestCoordinatorSetIntervalIgnoresInvalid(t *testing.T) {
	f := newCountingFetch()
	c := New("sessions", time.Minute, f.fetch)

	c.SetInterval(0)
	c.SetInterval(-time.Second)

	if got := c.Interval(); got != time.Minute {
		t.Errorf("Interval() = %v, want unchanged 1m", got)
	}
}

func TestCoordinatorRearmWithoutLatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newCountingFetch()
	c := New("sessions", time.Hour, f.fetch)

	stop := startCoordinator(t, c)
	defer stop()

	waitRun(t, f)

	// Rearm on an unlatched coordinator still requests a refresh.
	c.Rearm()
	waitRun(t, f)

	if got := f.count(); got < 2 {
		t.Errorf("fetch count = %d, want at least 2", got)
	}
}

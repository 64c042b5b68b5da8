package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingAction(count *atomic.Int64) Action {
	return func(context.Context, *domain.TimeEvent) error {
		count.Add(1)
		return nil
	}
}

func waitForCount(t *testing.T, count *atomic.Int64, want int64) {
	t.Helper()
	require.Eventually(t, func() bool { return count.Load() == want },
		time.Second, 2*time.Millisecond, "want %d firings, got %d", want, count.Load())
}

func TestOnceEventFiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	tm := newTestManager(newFakeGateway(), clk)

	var fired atomic.Int64
	id, err := tm.RegisterOnceEvent(ctx, "harvest", 2, 0, countingAction(&fired), EventOptions{})
	require.NoError(t, err)

	tickThrough(tm, clk, 3)

	waitForCount(t, &fired, 1)
	_, ok := tm.store.get(id)
	assert.False(t, ok, "fired one-shot must leave the event map")
	assert.Zero(t, tm.Stats().Buckets)

	// Further ticking must not re-fire.
	tickThrough(tm, clk, 5)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), fired.Load())
}

func TestPeriodicEventCadence(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	tm := newTestManager(newFakeGateway(), clk)

	var fired atomic.Int64
	id, err := tm.RegisterPeriodicEvent(ctx, "refresh", 5, countingAction(&fired), EventOptions{})
	require.NoError(t, err)

	// 12 seconds of ticking: firings land at t=5 and t=10, exactly two.
	tickThrough(tm, clk, 12)

	waitForCount(t, &fired, 2)
	en, ok := tm.store.get(id)
	require.True(t, ok, "periodic events survive firing")
	assert.Equal(t, t0+10_000, en.event.LastExecutionMs)
}

func TestPeriodicCatchupSnapsToNow(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	tm := newTestManager(newFakeGateway(), clk)

	var fired atomic.Int64
	_, err := tm.RegisterPeriodicEvent(ctx, "refresh", 5, countingAction(&fired), EventOptions{})
	require.NoError(t, err)

	// Simulate a long stall: one tick after 60 s of silence fires once,
	// not twelve times.
	clk.advance(60)
	tm.runTick(ctx, clk.now())

	waitForCount(t, &fired, 1)
	tickThrough(tm, clk, 4)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), fired.Load(), "no backlog replay within the next interval")
}

func TestPauseResumeRoundTripTiming(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	tm := newTestManager(newFakeGateway(), clk)

	var fired atomic.Int64
	id, err := tm.RegisterOnceEvent(ctx, "harvest", 30, 0, countingAction(&fired), EventOptions{})
	require.NoError(t, err)

	// Pause with 10 s remaining, idle 100 s, resume: must fire ~10 s
	// after the resume, not immediately and not after 110 s.
	tickThrough(tm, clk, 20)
	require.True(t, tm.PauseEvent(ctx, id))

	tickThrough(tm, clk, 100)
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, fired.Load(), "paused event must not fire")

	require.True(t, tm.ResumeEvent(ctx, id))
	tickThrough(tm, clk, 9)
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, fired.Load(), "resumed event must not fire early")

	tickThrough(tm, clk, 1)
	waitForCount(t, &fired, 1)
}

func TestCronEventKeepsGridAcrossFirings(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	tm := newTestManager(newFakeGateway(), clk)

	var fired atomic.Int64
	id, err := tm.RegisterCronEvent(ctx, "calendar.day", t0, 10, countingAction(&fired), EventOptions{})
	require.NoError(t, err)

	tickThrough(tm, clk, 35)

	waitForCount(t, &fired, 3) // t0+10, t0+20, t0+30
	en, ok := tm.store.get(id)
	require.True(t, ok, "cron events re-arm instead of completing")
	assert.Equal(t, t0+40_000, en.event.ExecuteAtMs)
}

func TestPerPlayerBatchesRunSequentially(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	tm := newTestManager(newFakeGateway(), clk)

	var order []string
	done := make(chan struct{})
	slowThenRecord := func(name string, d time.Duration) Action {
		return func(context.Context, *domain.TimeEvent) error {
			time.Sleep(d)
			order = append(order, name) // safe: same-player actions are sequential
			if len(order) == 2 {
				close(done)
			}
			return nil
		}
	}

	// Same execute time, same player: must run one after the other even
	// though the first is slow.
	_, err := tm.RegisterOnceEvent(ctx, "first", 1, 0, slowThenRecord("first", 30*time.Millisecond),
		EventOptions{PlayerID: "p1"})
	require.NoError(t, err)
	_, err = tm.RegisterOnceEvent(ctx, "second", 1, 0, slowThenRecord("second", 0),
		EventOptions{PlayerID: "p1"})
	require.NoError(t, err)

	tickThrough(tm, clk, 1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("player batch did not complete")
	}
	assert.Len(t, order, 2)
}

func TestPerPlayerOrderingHoldsAcrossTicks(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	tm := newTestManager(newFakeGateway(), clk)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	started := make(chan struct{})
	release := make(chan struct{})
	_, err := tm.RegisterOnceEvent(ctx, "slow", 1, 0, func(context.Context, *domain.TimeEvent) error {
		close(started)
		<-release
		record("slow")
		return nil
	}, EventOptions{PlayerID: "p1"})
	require.NoError(t, err)
	_, err = tm.RegisterOnceEvent(ctx, "after", 2, 0, func(context.Context, *domain.TimeEvent) error {
		record("after")
		return nil
	}, EventOptions{PlayerID: "p1"})
	require.NoError(t, err)

	// The second event comes due on a later tick while the first action
	// is still running; it must queue behind it, not interleave.
	tickThrough(tm, clk, 2)
	<-started
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	require.Empty(t, order, "later firing must wait for the running one")
	mu.Unlock()

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"slow", "after"}, order)
	mu.Unlock()
}

func TestActionFailureDoesNotStopTick(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	tm := newTestManager(newFakeGateway(), clk)

	var fired atomic.Int64
	_, err := tm.RegisterOnceEvent(ctx, "bad", 1, 0, func(context.Context, *domain.TimeEvent) error {
		return errors.New("boom")
	}, EventOptions{})
	require.NoError(t, err)
	_, err = tm.RegisterOnceEvent(ctx, "panicky", 1, 0, func(context.Context, *domain.TimeEvent) error {
		panic("boom")
	}, EventOptions{})
	require.NoError(t, err)
	_, err = tm.RegisterOnceEvent(ctx, "good", 2, 0, countingAction(&fired), EventOptions{})
	require.NoError(t, err)

	tickThrough(tm, clk, 3)
	waitForCount(t, &fired, 1)
}

func TestDurableFiringMarksCompletedBeforeRemoval(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	tm := newTestManager(gw, clk)

	var fired atomic.Int64
	id, err := tm.RegisterOnceEvent(ctx, "harvest", 1, 0, countingAction(&fired), EventOptions{Persistent: true})
	require.NoError(t, err)

	tickThrough(tm, clk, 2)
	waitForCount(t, &fired, 1)

	rec, ok := gw.get(id)
	require.True(t, ok)
	assert.Equal(t, domain.EventCompleted, rec.Status)
}

func TestSnapshotSweepRewritesDurableEvents(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	tm := newTestManager(gw, clk)

	id, err := tm.RegisterOnceEvent(ctx, "harvest", 60, 0, noopAction, EventOptions{Persistent: true})
	require.NoError(t, err)

	// Wipe the durable record to simulate a missed write, then sweep.
	require.NoError(t, gw.DeleteByID(ctx, nil, id))
	tm.snapshotSweep(ctx)

	rec, ok := gw.get(id)
	require.True(t, ok)
	assert.Equal(t, domain.EventActive, rec.Status)
}

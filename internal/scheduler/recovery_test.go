package scheduler

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func durableOnce(id string, executeAtMs int64, actionType string) domain.TimeEvent {
	return domain.TimeEvent{
		ID:          id,
		Type:        domain.EventOnce,
		Name:        id,
		ExecuteAtMs: executeAtMs,
		Status:      domain.EventActive,
		ActionType:  actionType,
		Metadata:    json.RawMessage(`{}`),
		Persistent:  true,
	}
}

func TestRecoverReplaysMissedOnceEvents(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	gw.records["missed"] = durableOnce("missed", t0-30_000, "test.fire")

	tm := newTestManager(gw, clk)
	var fired atomic.Int64
	tm.RegisterAction("test.fire", countingAction(&fired))

	require.NoError(t, tm.Recover(ctx))

	assert.Equal(t, int64(1), fired.Load(), "missed event fires synchronously during recovery")
	rec, _ := gw.get("missed")
	assert.Equal(t, domain.EventCompleted, rec.Status)
	_, inMemory := tm.store.get("missed")
	assert.False(t, inMemory)

	// Ticking afterwards must not re-fire it.
	tickThrough(tm, clk, 5)
	assert.Equal(t, int64(1), fired.Load())
}

func TestRecoverRehydratesFutureOnceEvents(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	gw.records["future"] = durableOnce("future", t0+10_000, "test.fire")

	tm := newTestManager(gw, clk)
	var fired atomic.Int64
	tm.RegisterAction("test.fire", countingAction(&fired))

	require.NoError(t, tm.Recover(ctx))
	require.Zero(t, fired.Load(), "future event must not fire during recovery")
	assert.Equal(t, 1, tm.Stats().Buckets)

	tickThrough(tm, clk, 9)
	assert.Zero(t, fired.Load())
	tickThrough(tm, clk, 1)
	waitForCount(t, &fired, 1)
}

func TestRecoverPeriodicEvents(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	gw.records["refresh"] = domain.TimeEvent{
		ID:              "refresh",
		Type:            domain.EventPeriodic,
		Name:            "refresh",
		IntervalSec:     5,
		LastExecutionMs: t0 - 3_000,
		Status:          domain.EventActive,
		ActionType:      "test.fire",
		Persistent:      true,
	}
	gw.records["stale"] = domain.TimeEvent{
		ID:          "stale",
		Type:        domain.EventPeriodic,
		Name:        "stale",
		IntervalSec: 60,
		Status:      domain.EventActive,
		ActionType:  "test.fire",
		Persistent:  true,
	}

	tm := newTestManager(gw, clk)
	var fired atomic.Int64
	tm.RegisterAction("test.fire", countingAction(&fired))

	require.NoError(t, tm.Recover(ctx))
	assert.Equal(t, 2, tm.Stats().PeriodicEvents)

	// "refresh" keeps its stored lastExecution and is due 2 s in;
	// "stale" had none, so it resets to now and waits a full interval.
	tickThrough(tm, clk, 3)
	waitForCount(t, &fired, 1)

	en, _ := tm.store.get("stale")
	assert.Equal(t, t0, en.event.LastExecutionMs)
}

func TestRecoverPausedEvents(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	gw.records["paused"] = domain.TimeEvent{
		ID:          "paused",
		Type:        domain.EventOnce,
		Name:        "paused",
		ExecuteAtMs: t0 - 60_000,
		Status:      domain.EventPaused,
		PausedAtMs:  t0 - 70_000,
		RemainingMs: 10_000,
		ActionType:  "test.fire",
		Persistent:  true,
	}

	tm := newTestManager(gw, clk)
	var fired atomic.Int64
	tm.RegisterAction("test.fire", countingAction(&fired))

	require.NoError(t, tm.Recover(ctx))

	stats := tm.Stats()
	assert.Equal(t, 1, stats.PausedEvents)
	assert.Zero(t, stats.Buckets, "paused events rehydrate without a bucket")

	// The pause snapshot survives the restart: resume waits RemainingMs.
	tickThrough(tm, clk, 50)
	require.Zero(t, fired.Load())

	require.True(t, tm.ResumeEvent(ctx, "paused"))
	tickThrough(tm, clk, 10)
	waitForCount(t, &fired, 1)
}

func durableCron(id string, startAtMs, intervalSec, executeAtMs int64, actionType string) domain.TimeEvent {
	return domain.TimeEvent{
		ID:          id,
		Type:        domain.EventCron,
		Name:        id,
		StartAtMs:   startAtMs,
		IntervalSec: intervalSec,
		ExecuteAtMs: executeAtMs,
		Status:      domain.EventActive,
		ActionType:  actionType,
		Metadata:    json.RawMessage(`{}`),
		Persistent:  true,
	}
}

func TestRegisterThenRecoverReplaysMissedCronFiring(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	// Grid anchored 55 s ago with a 30 s interval: the t0-25s instant
	// came due while the process was down.
	gw.records["calendar.day"] = durableCron("calendar.day", t0-55_000, 30, t0-25_000, "calendar.day")

	tm := newTestManager(gw, clk)
	var fired atomic.Int64
	tm.RegisterAction("calendar.day", countingAction(&fired))

	// Standing events are registered at boot; the registration must adopt
	// the stored record rather than overwrite its due time.
	_, err := tm.RegisterCronEvent(ctx, "calendar.day", t0-55_000, 30, countingAction(&fired),
		EventOptions{Persistent: true, ActionType: "calendar.day"})
	require.NoError(t, err)
	require.Zero(t, fired.Load())

	require.NoError(t, tm.Recover(ctx))

	assert.Equal(t, int64(1), fired.Load(), "missed grid instant replays despite prior registration")
	en, ok := tm.store.get("calendar.day")
	require.True(t, ok)
	assert.Equal(t, t0+5_000, en.event.ExecuteAtMs)

	// The next firing lands on the grid, with no double entry.
	tickThrough(tm, clk, 5)
	waitForCount(t, &fired, 2)
	assert.Equal(t, 1, tm.Stats().Buckets)
}

func TestRegisterAfterRecoverKeepsPeriodicBacklog(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	gw.records["roster"] = domain.TimeEvent{
		ID:              "roster",
		Type:            domain.EventPeriodic,
		Name:            "roster",
		IntervalSec:     5,
		LastExecutionMs: t0 - 3_000,
		Status:          domain.EventActive,
		ActionType:      "roster",
		Persistent:      true,
	}

	tm := newTestManager(gw, clk)
	var fired atomic.Int64
	tm.RegisterAction("roster", countingAction(&fired))
	require.NoError(t, tm.Recover(ctx))

	_, err := tm.RegisterPeriodicEvent(ctx, "roster", 5, countingAction(&fired),
		EventOptions{Persistent: true, ActionType: "roster"})
	require.NoError(t, err)

	en, ok := tm.store.get("roster")
	require.True(t, ok)
	assert.Equal(t, t0-3_000, en.event.LastExecutionMs, "registration adopts the stored cadence")
	rec, _ := gw.get("roster")
	assert.Equal(t, t0-3_000, rec.LastExecutionMs, "durable record is not overwritten")

	// Due 2 s in, on the recovered cadence.
	tickThrough(tm, clk, 3)
	waitForCount(t, &fired, 1)
}

func TestRecoverUnknownActionTypeLeftDormant(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	gw.records["orphan"] = durableOnce("orphan", t0-5_000, "retired.subsystem")

	tm := newTestManager(gw, clk)
	require.NoError(t, tm.Recover(ctx))

	_, inMemory := tm.store.get("orphan")
	assert.False(t, inMemory)
	rec, ok := gw.get("orphan")
	require.True(t, ok)
	assert.Equal(t, domain.EventActive, rec.Status, "dormant record is left untouched")
}

func TestRecoverCronSnapsForward(t *testing.T) {
	ctx := context.Background()
	clk := newSimClock(t0)
	gw := newFakeGateway()
	gw.records["calendar.day"] = domain.TimeEvent{
		ID:          "calendar.day",
		Type:        domain.EventCron,
		Name:        "calendar.day",
		ExecuteAtMs: t0 - 25_000,
		IntervalSec: 30,
		StartAtMs:   t0 - 55_000,
		Status:      domain.EventActive,
		ActionType:  "test.fire",
		Persistent:  true,
	}

	tm := newTestManager(gw, clk)
	var fired atomic.Int64
	tm.RegisterAction("test.fire", countingAction(&fired))

	require.NoError(t, tm.Recover(ctx))
	assert.Equal(t, int64(1), fired.Load(), "missed grid instant fires once on recovery")

	en, ok := tm.store.get("calendar.day")
	require.True(t, ok)
	// Grid: t0-55s + k*30s; smallest instant after t0 is t0+5s.
	assert.Equal(t, t0+5_000, en.event.ExecuteAtMs)
}

package scheduler

import (
	"context"
	"time"

	"github.com/ironhaven/worldserver/internal/clock"
	"github.com/ironhaven/worldserver/internal/domain"
)

// Start launches the tick loop and the snapshot sweep. The first tick is
// delayed until the next wall-clock second boundary so buckets line up
// with whole seconds; after that the ticker free-runs at the configured
// interval. Call Recover before Start.
func (tm *TimeManager) Start(ctx context.Context) {
	go func() {
		defer close(tm.doneCh)

		select {
		case <-time.After(clock.NextSecondBoundary(time.Now())):
		case <-ctx.Done():
			return
		case <-tm.stopCh:
			return
		}

		ticker := time.NewTicker(tm.tickInterval)
		defer ticker.Stop()
		sweep := time.NewTicker(tm.snapshotPeriod)
		defer sweep.Stop()

		tm.logger.Info("tick loop started", "interval", tm.tickInterval)
		tm.runTick(ctx, tm.now())

		for {
			select {
			case <-ctx.Done():
				tm.logger.Info("tick loop stopped", "reason", "context cancelled")
				return
			case <-tm.stopCh:
				tm.logger.Info("tick loop stopped", "reason", "shutdown")
				return
			case <-ticker.C:
				tm.runTick(ctx, tm.now())
			case <-sweep.C:
				tm.snapshotSweep(ctx)
			}
		}
	}()
}

// Shutdown stops the tick loop and waits for it to exit.
func (tm *TimeManager) Shutdown() {
	tm.stopOnce.Do(func() { close(tm.stopCh) })
	<-tm.doneCh
}

// runTick executes one evaluation pass: the periodic phase first, then
// the one-shot phase. nowMs must be a whole-second value. Exported to the
// package's tests via the simulated clock; production calls come only
// from the loop goroutine.
func (tm *TimeManager) runTick(ctx context.Context, nowMs int64) {
	tm.periodicPhase(ctx, nowMs)
	tm.oneShotPhase(ctx, nowMs)
}

// periodicPhase fires every periodic event that is at least one interval
// past its last execution. Backlog is not replayed: however far behind an
// event is, it fires at most once per tick and its lastExecution snaps to
// now.
func (tm *TimeManager) periodicPhase(ctx context.Context, nowMs int64) {
	var fired []*entry

	tm.mu.Lock()
	for _, en := range tm.store.periodic {
		secondsSince := (nowMs - en.event.LastExecutionMs) / 1000
		if secondsSince >= en.event.IntervalSec {
			en.event.LastExecutionMs = nowMs
			fired = append(fired, en)
		}
	}
	tm.mu.Unlock()

	for _, en := range fired {
		if en.event.Persistent {
			tm.persist(ctx, "persist.status", en.event.Name, func(ctx context.Context) error {
				return tm.repo.UpdateStatus(ctx, tm.db, en.event.ID, domain.EventActive, nowMs)
			})
		}
		tm.dispatch(ctx, en)
	}
}

// oneShotPhase drains the due buckets and fires the results. Global
// events dispatch immediately in drain order; per-player firings are
// appended to that player's work queue and drained by one goroutine per
// player, so two effects for the same player never interleave, even when
// a slow action from one tick is still running as the next tick fires.
// Players remain independent units of work.
//
// Durable events are marked completed in the gateway before removal from
// memory: a crash between the two steps re-fires the event on recovery
// only if the completed mark was lost, giving at-least-once semantics.
func (tm *TimeManager) oneShotPhase(ctx context.Context, nowMs int64) {
	tm.mu.Lock()
	due := tm.store.drainDue(nowMs)
	tm.mu.Unlock()

	if len(due) == 0 {
		return
	}

	var global []*entry
	for _, en := range due {
		if en.event.PlayerID != "" {
			tm.enqueuePlayerFiring(ctx, en.event.PlayerID, playerFiring{en: en, nowMs: nowMs})
		} else {
			global = append(global, en)
		}
	}

	for _, en := range global {
		tm.completeAndDispatch(ctx, en, nowMs, false)
	}
}

// playerFiring is one due event plus the tick instant it fired at, which
// cron re-arming needs even when the action runs a tick later.
type playerFiring struct {
	en    *entry
	nowMs int64
}

// enqueuePlayerFiring appends to the player's work queue and starts a
// drain goroutine unless one is already running. The goroutine exits only
// after seeing the queue empty under the lock, so a firing enqueued while
// it runs is picked up rather than stranded.
func (tm *TimeManager) enqueuePlayerFiring(ctx context.Context, playerID string, f playerFiring) {
	tm.mu.Lock()
	queue, running := tm.playerWork[playerID]
	tm.playerWork[playerID] = append(queue, f)
	tm.mu.Unlock()

	if running {
		return
	}
	go tm.drainPlayerWork(ctx, playerID)
}

func (tm *TimeManager) drainPlayerWork(ctx context.Context, playerID string) {
	for {
		tm.mu.Lock()
		queue := tm.playerWork[playerID]
		if len(queue) == 0 {
			delete(tm.playerWork, playerID)
			tm.mu.Unlock()
			return
		}
		f := queue[0]
		tm.playerWork[playerID] = queue[1:]
		tm.mu.Unlock()

		tm.completeAndDispatch(ctx, f.en, f.nowMs, true)
	}
}

// completeAndDispatch marks a fired one-shot durable event completed,
// re-arms cron events onto their next grid instant, and invokes the
// action. When await is false the action runs in its own goroutine.
func (tm *TimeManager) completeAndDispatch(ctx context.Context, en *entry, nowMs int64, await bool) {
	switch {
	case en.event.Type == domain.EventCron:
		next := nextGridInstant(en.event.StartAtMs, en.event.IntervalSec, nowMs)
		tm.mu.Lock()
		en.event.ExecuteAtMs = next
		tm.store.addOnce(en)
		tm.mu.Unlock()
		if en.event.Persistent {
			tm.persist(ctx, "persist.reschedule", en.event.Name, func(ctx context.Context) error {
				return tm.repo.UpdateExecuteTime(ctx, tm.db, en.event.ID, next)
			})
		}
	case en.event.Persistent:
		en.event.Status = domain.EventCompleted
		tm.persist(ctx, "persist.status", en.event.Name, func(ctx context.Context) error {
			return tm.repo.UpdateStatus(ctx, tm.db, en.event.ID, domain.EventCompleted, 0)
		})
	default:
		en.event.Status = domain.EventCompleted
	}

	if await {
		tm.invoke(ctx, en)
	} else {
		tm.dispatch(ctx, en)
	}
}

// dispatch runs an action as an independent unit of concurrency; the tick
// never blocks on a global action.
func (tm *TimeManager) dispatch(ctx context.Context, en *entry) {
	go tm.invoke(ctx, en)
}

// invoke calls the action with panic and error containment: one failing
// event must not stop the tick or affect other events.
func (tm *TimeManager) invoke(ctx context.Context, en *entry) {
	if en.action == nil {
		tm.logger.Warn("event has no action", "event", en.event.Name, "action_type", en.event.ActionType)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			tm.logger.Error("event action panicked", "event", en.event.Name, "panic", r)
		}
	}()
	if err := en.action(ctx, en.event); err != nil {
		tm.logger.Error("event action failed", "event", en.event.Name, "error", err)
	}
}

// snapshotSweep re-writes the status and metadata of every durable event
// still tracked in memory. Best-effort defense against missed
// per-operation writes.
func (tm *TimeManager) snapshotSweep(ctx context.Context) {
	tm.mu.Lock()
	var durable []*domain.TimeEvent
	for _, en := range tm.store.once {
		if en.event.Persistent {
			snapshot := *en.event
			durable = append(durable, &snapshot)
		}
	}
	for _, en := range tm.store.periodic {
		if en.event.Persistent {
			snapshot := *en.event
			durable = append(durable, &snapshot)
		}
	}
	tm.mu.Unlock()

	for _, event := range durable {
		tm.persist(ctx, "persist.snapshot", event.Name, func(ctx context.Context) error {
			return tm.repo.Create(ctx, tm.db, event)
		})
	}
	if len(durable) > 0 {
		tm.logger.Debug("snapshot sweep complete", "events", len(durable))
	}
}

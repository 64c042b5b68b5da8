package scheduler

import (
	"context"
	"fmt"

	"github.com/ironhaven/worldserver/internal/clock"
	"github.com/ironhaven/worldserver/internal/domain"
)

// Recover rebuilds the in-memory event store from the durable gateway.
// It runs exactly once, after all actions are registered and before the
// tick loop starts.
//
// Active one-shot records whose execute time elapsed while the process
// was down are treated as missed: their reconstructed action runs
// immediately and synchronously, in load order, and the record is marked
// completed. Future one-shots and periodic records are rehydrated; paused
// records enter the id map only, so they cannot fire until resumed.
func (tm *TimeManager) Recover(ctx context.Context) error {
	nowMs := tm.now()

	active, err := tm.repo.GetActive(ctx, tm.db)
	if err != nil {
		return fmt.Errorf("load active events: %w", err)
	}
	paused, err := tm.repo.GetPaused(ctx, tm.db)
	if err != nil {
		return fmt.Errorf("load paused events: %w", err)
	}

	var rehydrated, replayed, dormant int
	for i := range active {
		event := active[i]
		action, ok := tm.lookupAction(event.ActionType)
		if !ok {
			tm.logger.Warn("unknown action type, leaving event dormant",
				"event", event.Name, "action_type", event.ActionType)
			dormant++
			continue
		}

		switch event.Type {
		case domain.EventPeriodic:
			if event.LastExecutionMs == 0 {
				// Missed backlog is deliberately reset rather than
				// replayed as a catch-up burst.
				event.LastExecutionMs = nowMs
			}
			tm.mu.Lock()
			tm.store.addPeriodic(&entry{event: &event, action: action})
			tm.mu.Unlock()
			rehydrated++

		case domain.EventCron:
			// A missed grid instant snaps forward; the grid itself is
			// anchored by StartAtMs so no drift accumulates.
			event.ExecuteAtMs = clock.RoundMs(event.ExecuteAtMs)
			en := &entry{event: &event, action: action}
			if event.ExecuteAtMs <= nowMs {
				tm.invoke(ctx, en)
				replayed++
				event.ExecuteAtMs = nextGridInstant(event.StartAtMs, event.IntervalSec, nowMs)
				tm.persist(ctx, "persist.reschedule", event.Name, func(ctx context.Context) error {
					return tm.repo.UpdateExecuteTime(ctx, tm.db, event.ID, event.ExecuteAtMs)
				})
			}
			tm.mu.Lock()
			tm.store.addOnce(en)
			tm.mu.Unlock()
			rehydrated++

		default: // once
			event.ExecuteAtMs = clock.RoundMs(event.ExecuteAtMs)
			en := &entry{event: &event, action: action}
			if event.ExecuteAtMs <= nowMs {
				tm.invoke(ctx, en)
				replayed++
				event.Status = domain.EventCompleted
				tm.persist(ctx, "persist.status", event.Name, func(ctx context.Context) error {
					return tm.repo.UpdateStatus(ctx, tm.db, event.ID, domain.EventCompleted, 0)
				})
				continue
			}
			tm.mu.Lock()
			tm.store.addOnce(en)
			tm.mu.Unlock()
			rehydrated++
		}
	}

	for i := range paused {
		event := paused[i]
		action, ok := tm.lookupAction(event.ActionType)
		if !ok {
			tm.logger.Warn("unknown action type on paused event",
				"event", event.Name, "action_type", event.ActionType)
			dormant++
			continue
		}
		// Into the id map only, never a bucket: the pause snapshot
		// (RemainingMs) survives until an explicit resume.
		tm.mu.Lock()
		tm.store.once[event.ID] = &entry{event: &event, action: action}
		tm.mu.Unlock()
		rehydrated++
	}

	tm.logger.Info("recovery complete",
		"rehydrated", rehydrated, "replayed", replayed, "dormant", dormant)
	return nil
}

func (tm *TimeManager) lookupAction(actionType string) (Action, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	action, ok := tm.actions[actionType]
	return action, ok
}

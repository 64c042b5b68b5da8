package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/infra"
	"github.com/ironhaven/worldserver/internal/ledger"
	"github.com/ironhaven/worldserver/internal/repository"
	"github.com/ironhaven/worldserver/internal/scheduler"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActionMiningComplete is the scheduler action discriminator for mining
// cycle completion, registered at startup so recovery can reconstruct
// in-flight cycles.
const ActionMiningComplete = "mining.complete"

// MiningService runs resource-gathering cycles: a player commits workers
// for a fixed duration and is credited the yield when the cycle's durable
// scheduler event fires.
type MiningService struct {
	pool   *pgxpool.Pool
	engine *ledger.Engine
	outbox repository.OutboxRepository
	tm     *scheduler.TimeManager
	hub    *infra.WSHub
	yield  domain.Resources // per worker per cycle
	logger *slog.Logger
}

// NewMiningService creates a MiningService.
func NewMiningService(
	pool *pgxpool.Pool,
	engine *ledger.Engine,
	outbox repository.OutboxRepository,
	tm *scheduler.TimeManager,
	hub *infra.WSHub,
	yield domain.Resources,
	logger *slog.Logger,
) *MiningService {
	return &MiningService{
		pool:   pool,
		engine: engine,
		outbox: outbox,
		tm:     tm,
		hub:    hub,
		yield:  yield,
		logger: logger.With("component", "mining"),
	}
}

// RegisterActions installs the recovery handlers. Must run before the
// time manager's Recover call.
func (s *MiningService) RegisterActions() {
	s.tm.RegisterAction(ActionMiningComplete, s.completeCycle)
}

type miningMeta struct {
	PlayerID    string `json:"playerId"`
	Workers     int64  `json:"workers"`
	DurationSec int64  `json:"durationSec"`
}

// MiningTask describes an in-flight cycle as reported back to the client.
type MiningTask struct {
	TaskID      string `json:"task_id"`
	Workers     int64  `json:"workers"`
	DurationSec int64  `json:"duration_sec"`
	RemainingMs int64  `json:"remaining_ms"`
}

// StartCycle commits workers to a mining cycle lasting durationSec. The
// cycle survives restarts: completion rides a durable one-shot event.
func (s *MiningService) StartCycle(ctx context.Context, playerID uuid.UUID, worldID string, workers, durationSec int64) (*MiningTask, error) {
	if workers <= 0 {
		return nil, domain.ErrValidation("workers must be positive")
	}
	if durationSec <= 0 {
		return nil, domain.ErrValidation("duration must be positive")
	}

	meta, _ := json.Marshal(miningMeta{
		PlayerID:    playerID.String(),
		Workers:     workers,
		DurationSec: durationSec,
	})

	taskID, err := s.tm.RegisterOnceEvent(ctx, "mining.cycle", durationSec, 0, s.completeCycle, scheduler.EventOptions{
		PlayerID:   playerID.String(),
		WorldID:    worldID,
		Persistent: true,
		ActionType: ActionMiningComplete,
		Metadata:   meta,
	})
	if err != nil {
		return nil, err
	}

	return &MiningTask{
		TaskID:      taskID,
		Workers:     workers,
		DurationSec: durationSec,
		RemainingMs: durationSec * 1000,
	}, nil
}

// ReassignWorkers changes the worker count of an in-flight cycle.
// Increasing the count scales the elapsed progress by oldWorkers/newWorkers,
// so the extra hands speed up only the remaining work; decreasing keeps
// elapsed progress as-is. The cycle is re-registered under a new task id
// so the durable record always matches the in-memory schedule.
func (s *MiningService) ReassignWorkers(ctx context.Context, playerID uuid.UUID, taskID string, newWorkers int64) (*MiningTask, error) {
	if newWorkers <= 0 {
		return nil, domain.ErrValidation("workers must be positive")
	}

	event, ok := s.tm.Event(taskID)
	if !ok || event.PlayerID != playerID.String() {
		return nil, domain.ErrNotFound("mining task", taskID)
	}
	remaining, ok := s.tm.RemainingTime(taskID)
	if !ok || remaining <= 0 {
		return nil, domain.ErrConflict("mining cycle already completing")
	}

	var meta miningMeta
	if err := json.Unmarshal(event.Metadata, &meta); err != nil {
		return nil, domain.ErrInternal("decode task metadata", err)
	}
	if meta.Workers == newWorkers {
		return nil, domain.ErrValidation("worker count unchanged")
	}

	newRemaining := rebalanceRemaining(meta.DurationSec*1000, remaining, meta.Workers, newWorkers)

	if !s.tm.CancelEvent(ctx, taskID) {
		return nil, domain.ErrConflict("mining cycle already completing")
	}

	newMeta, _ := json.Marshal(miningMeta{
		PlayerID:    meta.PlayerID,
		Workers:     newWorkers,
		DurationSec: meta.DurationSec,
	})
	delaySec := (newRemaining + 999) / 1000
	if delaySec < 1 {
		delaySec = 1
	}
	newTaskID, err := s.tm.RegisterOnceEvent(ctx, "mining.cycle", delaySec, 0, s.completeCycle, scheduler.EventOptions{
		PlayerID:   event.PlayerID,
		WorldID:    event.WorldID,
		Persistent: true,
		ActionType: ActionMiningComplete,
		Metadata:   newMeta,
	})
	if err != nil {
		return nil, err
	}

	if err := s.outbox.Insert(ctx, s.pool, domain.NewMiningReassignedEvent(playerID, taskID, newTaskID, newWorkers)); err != nil {
		s.logger.Error("reassign outbox insert failed", "task", newTaskID, "error", err)
	}
	s.hub.PublishToPlayer(playerID.String(), string(domain.EventMiningReassigned), map[string]interface{}{
		"task_id":      newTaskID,
		"workers":      newWorkers,
		"remaining_ms": delaySec * 1000,
	})

	return &MiningTask{
		TaskID:      newTaskID,
		Workers:     newWorkers,
		DurationSec: meta.DurationSec,
		RemainingMs: delaySec * 1000,
	}, nil
}

// completeCycle fires when a cycle's scheduler event comes due. It credits
// the yield through the ledger and notifies the player over the hub.
func (s *MiningService) completeCycle(ctx context.Context, event *domain.TimeEvent) error {
	var meta miningMeta
	if err := json.Unmarshal(event.Metadata, &meta); err != nil {
		return fmt.Errorf("decode mining metadata: %w", err)
	}
	playerID, err := uuid.Parse(meta.PlayerID)
	if err != nil {
		return fmt.Errorf("parse player id: %w", err)
	}

	yield := domain.ResourceDelta{
		Wood:  s.yield.Wood * meta.Workers,
		Stone: s.yield.Stone * meta.Workers,
		Gold:  s.yield.Gold * meta.Workers,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, updated, err := s.engine.ExecuteCredit(ctx, tx, ledger.EntryParams{
		PlayerID:      playerID,
		Type:          domain.TxMiningYield,
		Delta:         yield,
		SourceEventID: event.ID,
		Metadata:      event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("credit yield: %w", err)
	}

	grant := domain.Resources{Wood: yield.Wood, Stone: yield.Stone, Gold: yield.Gold}
	if err := s.outbox.Insert(ctx, tx, domain.NewMiningCompletedEvent(playerID, event.ID, grant)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.hub.PublishToPlayer(meta.PlayerID, string(domain.EventMiningCompleted), map[string]interface{}{
		"task_id":   event.ID,
		"yield":     grant,
		"resources": updated.Resources,
	})
	s.logger.Info("mining cycle completed", "task", event.ID, "player", meta.PlayerID, "workers", meta.Workers)
	return nil
}

// rebalanceRemaining recomputes the remaining time of a cycle after a
// worker count change. Elapsed progress is scaled by oldWorkers/newWorkers
// on an increase and left unchanged on a decrease.
func rebalanceRemaining(totalMs, remainingMs, oldWorkers, newWorkers int64) int64 {
	if remainingMs > totalMs {
		remainingMs = totalMs
	}
	elapsed := totalMs - remainingMs
	if newWorkers > oldWorkers {
		elapsed = elapsed * oldWorkers / newWorkers
	}
	return totalMs - elapsed
}

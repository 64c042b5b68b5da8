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

// Scheduler action discriminators owned by recruitment.
const (
	ActionRecruitComplete = "recruitment.complete"
	ActionRecruitRefresh  = "recruitment.refresh"
)

// RecruitCosts is the per-unit price of recruitment.
type RecruitCosts struct {
	Wood       int64
	Gold       int64
	SecPerUnit int64
}

// RecruitmentService trains units: the cost is charged up front through
// the ledger and the units arrive when the durable training event fires.
// A periodic event refreshes the world's recruit roster.
type RecruitmentService struct {
	pool    *pgxpool.Pool
	engine  *ledger.Engine
	outbox  repository.OutboxRepository
	tm      *scheduler.TimeManager
	hub     *infra.WSHub
	costs   RecruitCosts
	worldID string
	logger  *slog.Logger
}

// NewRecruitmentService creates a RecruitmentService.
func NewRecruitmentService(
	pool *pgxpool.Pool,
	engine *ledger.Engine,
	outbox repository.OutboxRepository,
	tm *scheduler.TimeManager,
	hub *infra.WSHub,
	costs RecruitCosts,
	worldID string,
	logger *slog.Logger,
) *RecruitmentService {
	return &RecruitmentService{
		pool:    pool,
		engine:  engine,
		outbox:  outbox,
		tm:      tm,
		hub:     hub,
		costs:   costs,
		worldID: worldID,
		logger:  logger.With("component", "recruitment"),
	}
}

// RegisterActions installs the recovery handlers. Must run before the
// time manager's Recover call.
func (s *RecruitmentService) RegisterActions() {
	s.tm.RegisterAction(ActionRecruitComplete, s.completeTraining)
	s.tm.RegisterAction(ActionRecruitRefresh, s.refreshRoster)
}

// StartRosterRefresh registers the periodic roster refresh. Idempotent
// across restarts: the event is keyed by name.
func (s *RecruitmentService) StartRosterRefresh(ctx context.Context, intervalSec int64) error {
	_, err := s.tm.RegisterPeriodicEvent(ctx, "recruitment.roster", intervalSec, s.refreshRoster, scheduler.EventOptions{
		WorldID:    s.worldID,
		Persistent: true,
		ActionType: ActionRecruitRefresh,
	})
	return err
}

type recruitMeta struct {
	PlayerID string `json:"playerId"`
	Units    int64  `json:"units"`
}

// RecruitmentOrder describes a started training order.
type RecruitmentOrder struct {
	TaskID      string           `json:"task_id"`
	Units       int64            `json:"units"`
	DurationSec int64            `json:"duration_sec"`
	Cost        domain.Resources `json:"cost"`
	Resources   domain.Resources `json:"resources"`
}

// StartRecruitment charges the training cost and schedules unit delivery.
// The spend and the durable event registration are not atomic with each
// other; the spend commits first so a crash in between costs the player
// nothing on recovery replay (the event simply never existed).
func (s *RecruitmentService) StartRecruitment(ctx context.Context, playerID uuid.UUID, units int64) (*RecruitmentOrder, error) {
	if units <= 0 {
		return nil, domain.ErrValidation("units must be positive")
	}

	cost := domain.ResourceDelta{
		Wood: s.costs.Wood * units,
		Gold: s.costs.Gold * units,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	_, updated, err := s.engine.ExecuteSpend(ctx, tx, ledger.EntryParams{
		PlayerID: playerID,
		Type:     domain.TxRecruitmentCost,
		Delta:    cost,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	durationSec := s.costs.SecPerUnit * units
	meta, _ := json.Marshal(recruitMeta{PlayerID: playerID.String(), Units: units})
	taskID, err := s.tm.RegisterOnceEvent(ctx, "recruitment.order", durationSec, 0, s.completeTraining, scheduler.EventOptions{
		PlayerID:   playerID.String(),
		WorldID:    s.worldID,
		Persistent: true,
		ActionType: ActionRecruitComplete,
		Metadata:   meta,
	})
	if err != nil {
		return nil, err
	}

	return &RecruitmentOrder{
		TaskID:      taskID,
		Units:       units,
		DurationSec: durationSec,
		Cost:        domain.Resources{Wood: cost.Wood, Gold: cost.Gold},
		Resources:   updated.Resources,
	}, nil
}

func (s *RecruitmentService) completeTraining(ctx context.Context, event *domain.TimeEvent) error {
	var meta recruitMeta
	if err := json.Unmarshal(event.Metadata, &meta); err != nil {
		return fmt.Errorf("decode recruitment metadata: %w", err)
	}
	playerID, err := uuid.Parse(meta.PlayerID)
	if err != nil {
		return fmt.Errorf("parse player id: %w", err)
	}

	if err := s.outbox.Insert(ctx, s.pool, domain.NewRecruitmentCompletedEvent(playerID, event.ID, meta.Units)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	s.hub.PublishToPlayer(meta.PlayerID, string(domain.EventRecruitmentCompleted), map[string]interface{}{
		"task_id": event.ID,
		"units":   meta.Units,
	})
	s.logger.Info("recruitment completed", "task", event.ID, "player", meta.PlayerID, "units", meta.Units)
	return nil
}

func (s *RecruitmentService) refreshRoster(ctx context.Context, event *domain.TimeEvent) error {
	if err := s.outbox.Insert(ctx, s.pool, domain.NewRecruitmentRefreshedEvent(s.worldID)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	s.hub.PublishToWorld(s.worldID, string(domain.EventRecruitmentRefreshed), map[string]string{
		"world_id": s.worldID,
	})
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ironhaven/worldserver/internal/clock"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/infra"
	"github.com/ironhaven/worldserver/internal/ledger"
	"github.com/ironhaven/worldserver/internal/repository"
	"github.com/ironhaven/worldserver/internal/scheduler"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActionCalendarDay is the scheduler action discriminator for the world
// day-change event.
const ActionCalendarDay = "calendar.day"

// CalendarService owns the world clock: day k starts at
// epochMs + k*dayLengthSec. The day change rides a grid-aligned cron
// event, so pauses and restarts never shift the day boundaries.
type CalendarService struct {
	pool         *pgxpool.Pool
	engine       *ledger.Engine
	players      repository.PlayerRepository
	outbox       repository.OutboxRepository
	tm           *scheduler.TimeManager
	hub          *infra.WSHub
	worldID      string
	epochMs      int64
	dayLengthSec int64
	upkeepGold   int64
	logger       *slog.Logger
}

// NewCalendarService creates a CalendarService. A zero epoch anchors the
// calendar at the current whole second.
func NewCalendarService(
	pool *pgxpool.Pool,
	engine *ledger.Engine,
	players repository.PlayerRepository,
	outbox repository.OutboxRepository,
	tm *scheduler.TimeManager,
	hub *infra.WSHub,
	worldID string,
	epochMs, dayLengthSec, upkeepGold int64,
	logger *slog.Logger,
) *CalendarService {
	if epochMs == 0 {
		epochMs = clock.RoundMs(clock.NowMs())
	}
	return &CalendarService{
		pool:         pool,
		engine:       engine,
		players:      players,
		outbox:       outbox,
		tm:           tm,
		hub:          hub,
		worldID:      worldID,
		epochMs:      clock.RoundMs(epochMs),
		dayLengthSec: dayLengthSec,
		upkeepGold:   upkeepGold,
		logger:       logger.With("component", "calendar"),
	}
}

// RegisterActions installs the recovery handler. Must run before the time
// manager's Recover call.
func (s *CalendarService) RegisterActions() {
	s.tm.RegisterAction(ActionCalendarDay, s.dayChange)
}

// Start registers the day-change cron event. Keyed by name, so restarts
// re-adopt the durable record instead of stacking duplicates.
func (s *CalendarService) Start(ctx context.Context) error {
	_, err := s.tm.RegisterCronEvent(ctx, "calendar.day", s.epochMs, s.dayLengthSec, s.dayChange, scheduler.EventOptions{
		WorldID:    s.worldID,
		Persistent: true,
		ActionType: ActionCalendarDay,
	})
	return err
}

// CalendarState is the client-facing view of the world clock.
type CalendarState struct {
	WorldID      string `json:"world_id"`
	Day          int64  `json:"day"`
	DayLengthSec int64  `json:"day_length_sec"`
	NextDayAtMs  int64  `json:"next_day_at_ms"`
}

// State reports the current world day and the next boundary.
func (s *CalendarService) State() CalendarState {
	day := s.dayAt(clock.NowMs())
	return CalendarState{
		WorldID:      s.worldID,
		Day:          day,
		DayLengthSec: s.dayLengthSec,
		NextDayAtMs:  s.epochMs + (day+1)*s.dayLengthSec*1000,
	}
}

func (s *CalendarService) dayAt(nowMs int64) int64 {
	if nowMs <= s.epochMs {
		return 0
	}
	return (nowMs - s.epochMs) / (s.dayLengthSec * 1000)
}

// dayChange fires on each day boundary: charges every player the daily
// upkeep (clamped, never blocking the day change) and broadcasts the new
// day to the world room and the event feed.
func (s *CalendarService) dayChange(ctx context.Context, event *domain.TimeEvent) error {
	day := s.dayAt(event.ExecuteAtMs)

	players, err := s.players.ListByWorld(ctx, s.pool, s.worldID)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}

	charged := 0
	for i := range players {
		if err := s.chargeUpkeep(ctx, &players[i]); err != nil {
			s.logger.Error("upkeep charge failed", "player", players[i].ID, "day", day, "error", err)
			continue
		}
		charged++
	}

	if err := s.outbox.Insert(ctx, s.pool, domain.NewDayAdvancedEvent(s.worldID, day)); err != nil {
		s.logger.Error("day outbox insert failed", "day", day, "error", err)
	}
	s.hub.PublishToWorld(s.worldID, string(domain.EventDayAdvanced), map[string]interface{}{
		"world_id": s.worldID,
		"day":      day,
	})

	s.logger.Info("world day advanced", "day", day, "players_charged", charged)
	return nil
}

func (s *CalendarService) chargeUpkeep(ctx context.Context, player *domain.Player) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, _, err = s.engine.ExecuteUpkeep(ctx, tx, ledger.EntryParams{
		PlayerID: player.ID,
		Type:     domain.TxCalendarUpkeep,
		Delta:    domain.ResourceDelta{Gold: s.upkeepGold},
	})
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

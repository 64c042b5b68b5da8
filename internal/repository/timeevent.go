package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/jackc/pgx/v5"
)

type timeEventRepo struct{}

// NewTimeEventRepository returns a pgx-backed TimeEventRepository.
func NewTimeEventRepository() TimeEventRepository {
	return &timeEventRepo{}
}

const timeEventColumns = `
	id, type, name, execute_at_ms, interval_sec, last_execution_ms, start_at_ms,
	status, paused_at_ms, remaining_ms, player_id, world_id, action_type,
	metadata, persistent, created_at, updated_at`

func (r *timeEventRepo) Create(ctx context.Context, db DBTX, e *domain.TimeEvent) error {
	_, err := db.Exec(ctx, `
		INSERT INTO time_events
		  (id, type, name, execute_at_ms, interval_sec, last_execution_ms, start_at_ms,
		   status, paused_at_ms, remaining_ms, player_id, world_id, action_type,
		   metadata, persistent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
		  type = EXCLUDED.type,
		  name = EXCLUDED.name,
		  execute_at_ms = EXCLUDED.execute_at_ms,
		  interval_sec = EXCLUDED.interval_sec,
		  last_execution_ms = EXCLUDED.last_execution_ms,
		  start_at_ms = EXCLUDED.start_at_ms,
		  status = EXCLUDED.status,
		  paused_at_ms = EXCLUDED.paused_at_ms,
		  remaining_ms = EXCLUDED.remaining_ms,
		  player_id = EXCLUDED.player_id,
		  world_id = EXCLUDED.world_id,
		  action_type = EXCLUDED.action_type,
		  metadata = EXCLUDED.metadata,
		  persistent = EXCLUDED.persistent,
		  updated_at = now()`,
		e.ID, string(e.Type), e.Name, e.ExecuteAtMs, e.IntervalSec, e.LastExecutionMs,
		e.StartAtMs, string(e.Status), e.PausedAtMs, e.RemainingMs,
		nullIfEmpty(e.PlayerID), nullIfEmpty(e.WorldID), e.ActionType,
		ensureJSON(e.Metadata), e.Persistent,
	)
	if err != nil {
		return fmt.Errorf("insert time event: %w", err)
	}
	return nil
}

func (r *timeEventRepo) GetActive(ctx context.Context, db DBTX) ([]domain.TimeEvent, error) {
	return r.listByStatus(ctx, db, domain.EventActive)
}

func (r *timeEventRepo) GetPaused(ctx context.Context, db DBTX) ([]domain.TimeEvent, error) {
	return r.listByStatus(ctx, db, domain.EventPaused)
}

func (r *timeEventRepo) listByStatus(ctx context.Context, db DBTX, status domain.TimeEventStatus) ([]domain.TimeEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT `+timeEventColumns+`
		FROM time_events WHERE status = $1
		ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list time events by status: %w", err)
	}
	defer rows.Close()
	return scanTimeEvents(rows)
}

func (r *timeEventRepo) GetByID(ctx context.Context, db DBTX, id string) (*domain.TimeEvent, error) {
	row := db.QueryRow(ctx, `
		SELECT `+timeEventColumns+`
		FROM time_events WHERE id = $1`, id)
	e, err := scanTimeEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *timeEventRepo) UpdateStatus(ctx context.Context, db DBTX, id string, status domain.TimeEventStatus, lastExecutionMs int64) error {
	_, err := db.Exec(ctx, `
		UPDATE time_events
		SET status = $1,
		    last_execution_ms = CASE WHEN $2 > 0 THEN $2 ELSE last_execution_ms END,
		    updated_at = now()
		WHERE id = $3`, string(status), lastExecutionMs, id)
	if err != nil {
		return fmt.Errorf("update time event status: %w", err)
	}
	return nil
}

func (r *timeEventRepo) PauseEvent(ctx context.Context, db DBTX, id string, pausedAtMs, remainingMs int64) error {
	_, err := db.Exec(ctx, `
		UPDATE time_events
		SET status = 'paused', paused_at_ms = $1, remaining_ms = $2, updated_at = now()
		WHERE id = $3`, pausedAtMs, remainingMs, id)
	if err != nil {
		return fmt.Errorf("pause time event: %w", err)
	}
	return nil
}

func (r *timeEventRepo) ResumeEvent(ctx context.Context, db DBTX, id string, executeAtMs int64) error {
	_, err := db.Exec(ctx, `
		UPDATE time_events
		SET status = 'active', execute_at_ms = $1, paused_at_ms = 0, remaining_ms = 0,
		    updated_at = now()
		WHERE id = $2`, executeAtMs, id)
	if err != nil {
		return fmt.Errorf("resume time event: %w", err)
	}
	return nil
}

func (r *timeEventRepo) UpdateExecuteTime(ctx context.Context, db DBTX, id string, executeAtMs int64) error {
	_, err := db.Exec(ctx, `
		UPDATE time_events SET execute_at_ms = $1, updated_at = now() WHERE id = $2`,
		executeAtMs, id)
	if err != nil {
		return fmt.Errorf("update time event execute time: %w", err)
	}
	return nil
}

func (r *timeEventRepo) DeleteByID(ctx context.Context, db DBTX, id string) error {
	_, err := db.Exec(ctx, `DELETE FROM time_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time event: %w", err)
	}
	return nil
}

func (r *timeEventRepo) CleanupOlderThan(ctx context.Context, db DBTX, days int) (int64, error) {
	tag, err := db.Exec(ctx, `
		DELETE FROM time_events
		WHERE status IN ('completed', 'cancelled')
		  AND updated_at < now() - make_interval(days => $1)`, days)
	if err != nil {
		return 0, fmt.Errorf("cleanup time events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *timeEventRepo) ListByPlayer(ctx context.Context, db DBTX, playerID string) ([]domain.TimeEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT `+timeEventColumns+`
		FROM time_events WHERE player_id = $1
		ORDER BY created_at DESC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list time events by player: %w", err)
	}
	defer rows.Close()
	return scanTimeEvents(rows)
}

func scanTimeEvents(rows pgx.Rows) ([]domain.TimeEvent, error) {
	var events []domain.TimeEvent
	for rows.Next() {
		e, err := scanTimeEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanTimeEvent(row pgx.Row) (*domain.TimeEvent, error) {
	var e domain.TimeEvent
	var eventType, status string
	var playerID, worldID *string
	err := row.Scan(&e.ID, &eventType, &e.Name, &e.ExecuteAtMs, &e.IntervalSec,
		&e.LastExecutionMs, &e.StartAtMs, &status, &e.PausedAtMs, &e.RemainingMs,
		&playerID, &worldID, &e.ActionType, &e.Metadata, &e.Persistent,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan time event: %w", err)
	}
	e.Type = domain.TimeEventType(eventType)
	e.Status = domain.TimeEventStatus(status)
	if playerID != nil {
		e.PlayerID = *playerID
	}
	if worldID != nil {
		e.WorldID = *worldID
	}
	return &e, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ensureJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return raw
}

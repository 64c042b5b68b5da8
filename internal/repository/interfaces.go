package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TimeEventRepository is the durable gateway for scheduler events. The
// time manager calls it to survive restarts but never depends on it for
// in-process timing decisions: every operation is best-effort from the
// scheduler's point of view, and failures are logged rather than
// propagated into the tick loop.
type TimeEventRepository interface {
	// Create inserts a durable event record, overwriting any prior
	// record with the same id (named periodic singletons reuse their
	// name as the id across restarts).
	Create(ctx context.Context, db DBTX, event *domain.TimeEvent) error

	// GetActive returns all records with status = active.
	GetActive(ctx context.Context, db DBTX) ([]domain.TimeEvent, error)

	// GetPaused returns all records with status = paused.
	GetPaused(ctx context.Context, db DBTX) ([]domain.TimeEvent, error)

	// GetByID returns a single record, or nil if absent.
	GetByID(ctx context.Context, db DBTX, id string) (*domain.TimeEvent, error)

	// UpdateStatus sets the record status and, for periodic events,
	// patches last_execution_ms.
	UpdateStatus(ctx context.Context, db DBTX, id string, status domain.TimeEventStatus, lastExecutionMs int64) error

	// PauseEvent captures the pause snapshot server-side.
	PauseEvent(ctx context.Context, db DBTX, id string, pausedAtMs, remainingMs int64) error

	// ResumeEvent clears the pause snapshot and stores the recomputed
	// execute time.
	ResumeEvent(ctx context.Context, db DBTX, id string, executeAtMs int64) error

	// UpdateExecuteTime re-homes a rescheduled event.
	UpdateExecuteTime(ctx context.Context, db DBTX, id string, executeAtMs int64) error

	// DeleteByID removes a record outright.
	DeleteByID(ctx context.Context, db DBTX, id string) error

	// CleanupOlderThan purges completed and cancelled records older
	// than the given number of days. Returns the number removed.
	CleanupOlderThan(ctx context.Context, db DBTX, days int) (int64, error)

	// ListByPlayer returns all records scoped to a player, newest first.
	ListByPlayer(ctx context.Context, db DBTX, playerID string) ([]domain.TimeEvent, error)
}

// PlayerRepository provides access to players.
type PlayerRepository interface {
	// FindByID returns a player by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Player, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the player.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Player, error)

	// Create inserts a new player.
	Create(ctx context.Context, db DBTX, player *domain.Player) error

	// UpdateResources atomically adjusts stockpile columns using
	// server-side arithmetic with dynamic SET clauses.
	UpdateResources(ctx context.Context, tx pgx.Tx, playerID uuid.UUID, delta domain.ResourceDelta) (*domain.Player, error)

	// ListByWorld returns all players in a world.
	ListByWorld(ctx context.Context, db DBTX, worldID string) ([]domain.Player, error)
}

// TransactionRepository provides access to resource_transactions.
type TransactionRepository interface {
	// Insert creates a new ledger entry with stockpile snapshot. Returns the inserted row.
	Insert(ctx context.Context, db DBTX, tx *domain.Transaction) (*domain.Transaction, error)

	// ListByPlayer returns ledger entries for a player, newest first.
	ListByPlayer(ctx context.Context, db DBTX, playerID uuid.UUID, limit int) ([]domain.Transaction, error)
}

// OutboxRepository provides access to the world_event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the
	// state change it describes).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRow, error)

	// MarkPublished stamps events as published.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// AuthUserRepository provides access to auth_users.
type AuthUserRepository interface {
	// FindByEmail returns an auth user by email, or nil if absent.
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.AuthUser, error)

	// Create inserts a new auth user.
	Create(ctx context.Context, db DBTX, user *domain.AuthUser) error
}

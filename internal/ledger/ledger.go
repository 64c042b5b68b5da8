package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Engine provides the foundational resource ledger operations:
//  1. LockPlayerForUpdate — row-level pessimistic lock
//  2. PostEntry — atomic stockpile update + append-only insert + outbox event
//
// Every stockpile mutation in the system flows through PostEntry, so the
// resource_transactions table is a complete audit trail of the world economy.
type Engine struct {
	players      repository.PlayerRepository
	transactions repository.TransactionRepository
	outbox       repository.OutboxRepository
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(
	players repository.PlayerRepository,
	transactions repository.TransactionRepository,
	outbox repository.OutboxRepository,
) *Engine {
	return &Engine{
		players:      players,
		transactions: transactions,
		outbox:       outbox,
	}
}

// EntryParams describes a single ledger posting. The delta is applied
// server-side; SourceEventID links the entry back to the scheduler event
// that produced it, when there is one.
type EntryParams struct {
	PlayerID      uuid.UUID
	Type          domain.TransactionType
	Delta         domain.ResourceDelta
	SourceEventID string
	Metadata      json.RawMessage
}

// LockPlayerForUpdate acquires a row-level lock and returns the player.
// Must be called within a transaction.
func (e *Engine) LockPlayerForUpdate(ctx context.Context, tx pgx.Tx, playerID uuid.UUID) (*domain.Player, error) {
	player, err := e.players.LockForUpdate(ctx, tx, playerID)
	if err != nil {
		return nil, fmt.Errorf("lock player: %w", err)
	}
	if player == nil {
		return nil, domain.ErrNotFound("player", playerID.String())
	}
	return player, nil
}

// PostEntry atomically updates the player's stockpile and appends a ledger
// entry carrying the post-update snapshot.
//
// Steps:
//  1. Update stockpile columns using server-side arithmetic (dynamic SET clauses)
//  2. Insert the transaction with the post-update snapshot
//  3. Insert the outbox event
//
// All 3 steps run within the caller's transaction.
func (e *Engine) PostEntry(ctx context.Context, tx pgx.Tx, params EntryParams) (*domain.Transaction, *domain.Player, error) {
	updated, err := e.players.UpdateResources(ctx, tx, params.PlayerID, params.Delta)
	if err != nil {
		return nil, nil, fmt.Errorf("update resources: %w", err)
	}

	entry, err := e.transactions.Insert(ctx, tx, &domain.Transaction{
		ID:            uuid.New(),
		PlayerID:      params.PlayerID,
		Type:          params.Type,
		Wood:          params.Delta.Wood,
		Stone:         params.Delta.Stone,
		Gold:          params.Delta.Gold,
		WoodAfter:     updated.Wood,
		StoneAfter:    updated.Stone,
		GoldAfter:     updated.Gold,
		SourceEventID: strPtr(params.SourceEventID),
		Metadata:      ensureMeta(params.Metadata),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewTransactionPostedEvent(entry)); err != nil {
		return nil, nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return entry, updated, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ensureMeta(m json.RawMessage) json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage(`{}`)
	}
	return m
}

func mergeMeta(base json.RawMessage, extra map[string]interface{}) json.RawMessage {
	merged := make(map[string]interface{})
	if len(base) > 0 {
		_ = json.Unmarshal(base, &merged)
	}
	for k, v := range extra {
		merged[k] = v
	}
	out, _ := json.Marshal(merged)
	return out
}

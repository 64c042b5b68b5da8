package ledger

import (
	"context"
	"fmt"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ExecuteCredit adds resources to a player's stockpile. Used for mining
// yields, recruitment refreshes and the starting allocation; credits
// cannot fail on balance, only on persistence.
func (e *Engine) ExecuteCredit(ctx context.Context, tx pgx.Tx, params EntryParams) (*domain.Transaction, *domain.Player, error) {
	if params.Delta.Wood < 0 || params.Delta.Stone < 0 || params.Delta.Gold < 0 {
		return nil, nil, domain.ErrValidation("credit deltas must be non-negative")
	}
	if !params.Delta.HasWoodDelta() && !params.Delta.HasStoneDelta() && !params.Delta.HasGoldDelta() {
		return nil, nil, domain.ErrValidation("credit requires at least one resource")
	}

	if _, err := e.LockPlayerForUpdate(ctx, tx, params.PlayerID); err != nil {
		return nil, nil, fmt.Errorf("credit: %w", err)
	}

	entry, updated, err := e.PostEntry(ctx, tx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("credit post: %w", err)
	}
	return entry, updated, nil
}

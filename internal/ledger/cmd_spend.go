package ledger

import (
	"context"
	"fmt"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ExecuteSpend deducts resources from a player's stockpile, refusing the
// whole posting if any single resource would go negative. The delta is
// given as positive costs; the posted entry carries the negated values.
func (e *Engine) ExecuteSpend(ctx context.Context, tx pgx.Tx, params EntryParams) (*domain.Transaction, *domain.Player, error) {
	cost := params.Delta
	if cost.Wood < 0 || cost.Stone < 0 || cost.Gold < 0 {
		return nil, nil, domain.ErrValidation("spend costs must be non-negative")
	}
	if !cost.HasWoodDelta() && !cost.HasStoneDelta() && !cost.HasGoldDelta() {
		return nil, nil, domain.ErrValidation("spend requires at least one resource")
	}

	player, err := e.LockPlayerForUpdate(ctx, tx, params.PlayerID)
	if err != nil {
		return nil, nil, fmt.Errorf("spend: %w", err)
	}

	if player.Wood < cost.Wood || player.Stone < cost.Stone || player.Gold < cost.Gold {
		return nil, nil, domain.ErrInsufficientResources()
	}

	params.Delta = domain.ResourceDelta{Wood: -cost.Wood, Stone: -cost.Stone, Gold: -cost.Gold}
	entry, updated, err := e.PostEntry(ctx, tx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("spend post: %w", err)
	}
	return entry, updated, nil
}

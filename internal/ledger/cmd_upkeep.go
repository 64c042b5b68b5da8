package ledger

import (
	"context"
	"fmt"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ExecuteUpkeep deducts the daily upkeep, clamping each resource at zero
// instead of refusing. The calendar charges every player once per world
// day; a poor player simply runs dry rather than blocking the day change.
// The actually-charged amounts are recorded in the entry metadata.
func (e *Engine) ExecuteUpkeep(ctx context.Context, tx pgx.Tx, params EntryParams) (*domain.Transaction, *domain.Player, error) {
	cost := params.Delta
	if cost.Wood < 0 || cost.Stone < 0 || cost.Gold < 0 {
		return nil, nil, domain.ErrValidation("upkeep costs must be non-negative")
	}

	player, err := e.LockPlayerForUpdate(ctx, tx, params.PlayerID)
	if err != nil {
		return nil, nil, fmt.Errorf("upkeep: %w", err)
	}

	charged := domain.ResourceDelta{
		Wood:  min64(cost.Wood, player.Wood),
		Stone: min64(cost.Stone, player.Stone),
		Gold:  min64(cost.Gold, player.Gold),
	}
	params.Metadata = mergeMeta(params.Metadata, map[string]interface{}{
		"requestedWood":  cost.Wood,
		"requestedStone": cost.Stone,
		"requestedGold":  cost.Gold,
	})

	params.Delta = domain.ResourceDelta{Wood: -charged.Wood, Stone: -charged.Stone, Gold: -charged.Gold}
	entry, updated, err := e.PostEntry(ctx, tx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("upkeep post: %w", err)
	}
	return entry, updated, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

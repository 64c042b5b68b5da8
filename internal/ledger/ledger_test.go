package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayers struct {
	rows map[uuid.UUID]*domain.Player
}

func (f *fakePlayers) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Player, error) {
	return f.rows[id], nil
}

func (f *fakePlayers) LockForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Player, error) {
	return f.rows[id], nil
}

func (f *fakePlayers) Create(_ context.Context, _ repository.DBTX, p *domain.Player) error {
	f.rows[p.ID] = p
	return nil
}

func (f *fakePlayers) UpdateResources(_ context.Context, _ pgx.Tx, id uuid.UUID, delta domain.ResourceDelta) (*domain.Player, error) {
	p := f.rows[id]
	p.Wood += delta.Wood
	p.Stone += delta.Stone
	p.Gold += delta.Gold
	return p, nil
}

func (f *fakePlayers) ListByWorld(_ context.Context, _ repository.DBTX, worldID string) ([]domain.Player, error) {
	var out []domain.Player
	for _, p := range f.rows {
		if p.WorldID == worldID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeTransactions struct {
	entries []domain.Transaction
}

func (f *fakeTransactions) Insert(_ context.Context, _ repository.DBTX, tx *domain.Transaction) (*domain.Transaction, error) {
	f.entries = append(f.entries, *tx)
	return tx, nil
}

func (f *fakeTransactions) ListByPlayer(_ context.Context, _ repository.DBTX, playerID uuid.UUID, _ int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, e := range f.entries {
		if e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeOutbox struct {
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, _ repository.DBTX, _ int) ([]domain.OutboxRow, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, _ repository.DBTX, _ []int64) error {
	return nil
}

func newTestEngine(p *domain.Player) (*Engine, *fakePlayers, *fakeTransactions, *fakeOutbox) {
	players := &fakePlayers{rows: map[uuid.UUID]*domain.Player{p.ID: p}}
	transactions := &fakeTransactions{}
	outbox := &fakeOutbox{}
	return NewEngine(players, transactions, outbox), players, transactions, outbox
}

func testPlayer(wood, stone, gold int64) *domain.Player {
	return &domain.Player{
		ID:        uuid.New(),
		Resources: domain.Resources{Wood: wood, Stone: stone, Gold: gold},
		WorldID:   "midgard",
	}
}

func TestExecuteCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("credits stockpile and appends entry", func(t *testing.T) {
		player := testPlayer(100, 0, 0)
		engine, _, transactions, outbox := newTestEngine(player)

		entry, updated, err := engine.ExecuteCredit(ctx, nil, EntryParams{
			PlayerID:      player.ID,
			Type:          domain.TxMiningYield,
			Delta:         domain.ResourceDelta{Wood: 40, Stone: 15},
			SourceEventID: "mining-evt-1",
		})
		require.NoError(t, err)

		assert.Equal(t, int64(140), updated.Wood)
		assert.Equal(t, int64(15), updated.Stone)
		assert.Equal(t, int64(140), entry.WoodAfter)
		require.NotNil(t, entry.SourceEventID)
		assert.Equal(t, "mining-evt-1", *entry.SourceEventID)
		assert.Len(t, transactions.entries, 1)
		assert.Len(t, outbox.drafts, 1)
		assert.Equal(t, domain.EventTransactionPosted, outbox.drafts[0].EventType)
	})

	t.Run("rejects negative delta", func(t *testing.T) {
		player := testPlayer(0, 0, 0)
		engine, _, _, _ := newTestEngine(player)

		_, _, err := engine.ExecuteCredit(ctx, nil, EntryParams{
			PlayerID: player.ID,
			Type:     domain.TxMiningYield,
			Delta:    domain.ResourceDelta{Wood: -5},
		})
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	})

	t.Run("rejects empty delta", func(t *testing.T) {
		player := testPlayer(0, 0, 0)
		engine, _, _, _ := newTestEngine(player)

		_, _, err := engine.ExecuteCredit(ctx, nil, EntryParams{
			PlayerID: player.ID,
			Type:     domain.TxMiningYield,
		})
		require.Error(t, err)
	})
}

func TestExecuteSpend(t *testing.T) {
	ctx := context.Background()

	t.Run("debits all three columns", func(t *testing.T) {
		player := testPlayer(100, 50, 30)
		engine, _, transactions, _ := newTestEngine(player)

		entry, updated, err := engine.ExecuteSpend(ctx, nil, EntryParams{
			PlayerID: player.ID,
			Type:     domain.TxRecruitmentCost,
			Delta:    domain.ResourceDelta{Wood: 60, Stone: 20, Gold: 10},
		})
		require.NoError(t, err)

		assert.Equal(t, int64(40), updated.Wood)
		assert.Equal(t, int64(30), updated.Stone)
		assert.Equal(t, int64(20), updated.Gold)
		assert.Equal(t, int64(-60), entry.Wood, "posted delta is negated")
		assert.Len(t, transactions.entries, 1)
	})

	t.Run("refuses when any resource is short", func(t *testing.T) {
		player := testPlayer(100, 5, 30)
		engine, _, transactions, _ := newTestEngine(player)

		_, _, err := engine.ExecuteSpend(ctx, nil, EntryParams{
			PlayerID: player.ID,
			Type:     domain.TxBuildingCost,
			Delta:    domain.ResourceDelta{Wood: 10, Stone: 20},
		})
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "INSUFFICIENT_RESOURCES", appErr.Code)
		assert.Empty(t, transactions.entries, "refused spend posts nothing")
		assert.Equal(t, int64(100), player.Wood, "stockpile untouched")
	})

	t.Run("unknown player", func(t *testing.T) {
		player := testPlayer(0, 0, 0)
		engine, _, _, _ := newTestEngine(player)

		_, _, err := engine.ExecuteSpend(ctx, nil, EntryParams{
			PlayerID: uuid.New(),
			Type:     domain.TxBuildingCost,
			Delta:    domain.ResourceDelta{Wood: 1},
		})
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "NOT_FOUND", appErr.Code)
	})
}

func TestExecuteUpkeep(t *testing.T) {
	ctx := context.Background()

	t.Run("clamps at zero instead of refusing", func(t *testing.T) {
		player := testPlayer(3, 0, 100)
		engine, _, transactions, _ := newTestEngine(player)

		entry, updated, err := engine.ExecuteUpkeep(ctx, nil, EntryParams{
			PlayerID: player.ID,
			Type:     domain.TxCalendarUpkeep,
			Delta:    domain.ResourceDelta{Wood: 10, Stone: 10, Gold: 10},
		})
		require.NoError(t, err)

		assert.Equal(t, int64(0), updated.Wood)
		assert.Equal(t, int64(0), updated.Stone)
		assert.Equal(t, int64(90), updated.Gold)
		assert.Equal(t, int64(-3), entry.Wood)
		assert.Equal(t, int64(0), entry.Stone)

		var meta map[string]interface{}
		require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
		assert.Equal(t, float64(10), meta["requestedWood"])
		assert.Len(t, transactions.entries, 1)
	})
}

func TestMergeMeta(t *testing.T) {
	t.Run("nil base with extras", func(t *testing.T) {
		result := mergeMeta(nil, map[string]interface{}{"taskId": "m1"})
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(result, &m))
		assert.Equal(t, "m1", m["taskId"])
	})

	t.Run("extras overwrite base", func(t *testing.T) {
		base := json.RawMessage(`{"taskId":"old","keep":true}`)
		result := mergeMeta(base, map[string]interface{}{"taskId": "new"})
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(result, &m))
		assert.Equal(t, "new", m["taskId"])
		assert.Equal(t, true, m["keep"])
	})
}

func TestStrPtr(t *testing.T) {
	p := strPtr("mining-evt-1")
	require.NotNil(t, p)
	assert.Equal(t, "mining-evt-1", *p)
	assert.Nil(t, strPtr(""))
}

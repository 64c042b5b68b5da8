package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type playerRepo struct{}

// NewPlayerRepository returns a pgx-backed PlayerRepository.
func NewPlayerRepository() PlayerRepository {
	return &playerRepo{}
}

func (r *playerRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Player, error) {
	row := db.QueryRow(ctx, `
		SELECT id, wood, stone, gold, world_id, created_at, updated_at
		FROM players WHERE id = $1`, id)
	return scanPlayer(row)
}

func (r *playerRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Player, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, wood, stone, gold, world_id, created_at, updated_at
		FROM players WHERE id = $1 FOR UPDATE`, id)
	return scanPlayer(row)
}

func (r *playerRepo) Create(ctx context.Context, db DBTX, player *domain.Player) error {
	_, err := db.Exec(ctx, `
		INSERT INTO players (id, wood, stone, gold, world_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		player.ID,
		infra.Int64ToNumeric(player.Wood),
		infra.Int64ToNumeric(player.Stone),
		infra.Int64ToNumeric(player.Gold),
		player.WorldID,
		player.CreatedAt,
		player.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

// UpdateResources uses server-side arithmetic with dynamic SET clauses so
// concurrent adjustments never read-modify-write stale values.
func (r *playerRepo) UpdateResources(ctx context.Context, tx pgx.Tx, playerID uuid.UUID, delta domain.ResourceDelta) (*domain.Player, error) {
	setClauses := []string{"updated_at = now()"}
	args := []interface{}{}
	argIdx := 1

	if delta.HasWoodDelta() {
		setClauses = append(setClauses, fmt.Sprintf("wood = wood + $%d", argIdx))
		args = append(args, infra.Int64ToNumeric(delta.Wood))
		argIdx++
	}
	if delta.HasStoneDelta() {
		setClauses = append(setClauses, fmt.Sprintf("stone = stone + $%d", argIdx))
		args = append(args, infra.Int64ToNumeric(delta.Stone))
		argIdx++
	}
	if delta.HasGoldDelta() {
		setClauses = append(setClauses, fmt.Sprintf("gold = gold + $%d", argIdx))
		args = append(args, infra.Int64ToNumeric(delta.Gold))
		argIdx++
	}

	args = append(args, playerID)
	query := fmt.Sprintf(`
		UPDATE players SET %s
		WHERE id = $%d
		RETURNING id, wood, stone, gold, world_id, created_at, updated_at`,
		strings.Join(setClauses, ", "), argIdx)

	row := tx.QueryRow(ctx, query, args...)
	return scanPlayer(row)
}

func (r *playerRepo) ListByWorld(ctx context.Context, db DBTX, worldID string) ([]domain.Player, error) {
	rows, err := db.Query(ctx, `
		SELECT id, wood, stone, gold, world_id, created_at, updated_at
		FROM players WHERE world_id = $1 ORDER BY created_at`, worldID)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	var woodNum, stoneNum, goldNum pgtype.Numeric
	err := row.Scan(&p.ID, &woodNum, &stoneNum, &goldNum, &p.WorldID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan player: %w", err)
	}

	var convErr error
	p.Wood, convErr = infra.NumericToInt64(woodNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert wood: %w", convErr)
	}
	p.Stone, convErr = infra.NumericToInt64(stoneNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert stone: %w", convErr)
	}
	p.Gold, convErr = infra.NumericToInt64(goldNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert gold: %w", convErr)
	}

	return &p, nil
}

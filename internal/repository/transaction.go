package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/jackc/pgx/v5"
)

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

const transactionColumns = `
	id, player_id, type, wood, stone, gold, wood_after, stone_after, gold_after,
	source_event_id, metadata, created_at`

func (r *transactionRepo) Insert(ctx context.Context, db DBTX, tx *domain.Transaction) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO resource_transactions
		  (id, player_id, type, wood, stone, gold, wood_after, stone_after, gold_after,
		   source_event_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+transactionColumns,
		tx.ID, tx.PlayerID, string(tx.Type),
		tx.Wood, tx.Stone, tx.Gold,
		tx.WoodAfter, tx.StoneAfter, tx.GoldAfter,
		tx.SourceEventID, ensureJSON(tx.Metadata),
	)
	return scanTransaction(row)
}

func (r *transactionRepo) ListByPlayer(ctx context.Context, db DBTX, playerID uuid.UUID, limit int) ([]domain.Transaction, error) {
	rows, err := db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM resource_transactions
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var txType string
	err := row.Scan(&tx.ID, &tx.PlayerID, &txType,
		&tx.Wood, &tx.Stone, &tx.Gold,
		&tx.WoodAfter, &tx.StoneAfter, &tx.GoldAfter,
		&tx.SourceEventID, &tx.Metadata, &tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Type = domain.TransactionType(txType)
	return &tx, nil
}

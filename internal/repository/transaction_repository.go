package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
	"github.com/fairyhunter13/loyalty-points-engine/pkg/database"
)

// TransactionRepository provides data access for the points ledger using pgx.
// The ledger is append-only: there is no update or delete.
type TransactionRepository struct {
	pool database.TxQuerier
}

// NewTransactionRepository creates a new TransactionRepository with the given pool.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// NewTransactionRepositoryWithPool creates a new TransactionRepository with a custom pool interface.
// This is primarily used for testing.
func NewTransactionRepositoryWithPool(pool database.TxQuerier) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Insert appends a ledger entry within the caller's transaction.
func (r *TransactionRepository) Insert(ctx context.Context, tx database.TxQuerier, txn *model.Transaction) error {
	query := `INSERT INTO loyalty_transactions
		(id, account_id, type, points_amount, source, order_id, multiplier, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		txn.ID,
		txn.AccountID,
		string(txn.Type),
		txn.PointsAmount,
		txn.Source,
		txn.OrderID,
		txn.Multiplier,
		txn.Description,
		txn.CreatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("insert %s transaction: %w", txn.Type, err))
	}
	return nil
}

// ListByAccount retrieves up to limit ledger entries for an account, newest first.
// On success, returns an empty slice (not nil) when no entries exist.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
	query := `SELECT id, account_id, type, points_amount, source, order_id, multiplier, description, created_at
		FROM loyalty_transactions WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", accountID, err)
	}
	defer rows.Close()

	txns := []model.Transaction{}
	for rows.Next() {
		var t model.Transaction
		var txnType string
		if err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&txnType,
			&t.PointsAmount,
			&t.Source,
			&t.OrderID,
			&t.Multiplier,
			&t.Description,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = model.TransactionType(txnType)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

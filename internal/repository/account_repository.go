package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
	"github.com/fairyhunter13/loyalty-points-engine/internal/service"
	"github.com/fairyhunter13/loyalty-points-engine/pkg/database"
)

const accountColumns = `id, customer_id, program_id, current_points, total_earned, total_redeemed,
	total_expired, current_tier_id, expiry_date, active, created_at, updated_at`

// AccountRepository provides data access for loyalty accounts using pgx.
type AccountRepository struct {
	pool database.TxQuerier
}

// NewAccountRepository creates a new AccountRepository with the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// NewAccountRepositoryWithPool creates a new AccountRepository with a custom pool interface.
// This is primarily used for testing.
func NewAccountRepositoryWithPool(pool database.TxQuerier) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Insert stores a newly enrolled account.
// Returns service.ErrAccountExists if the customer already has an account in the program.
func (r *AccountRepository) Insert(ctx context.Context, account *model.Account) error {
	query := `INSERT INTO loyalty_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.CustomerID,
		account.ProgramID,
		account.CurrentPoints,
		account.TotalEarned,
		account.TotalRedeemed,
		account.TotalExpired,
		account.CurrentTierID,
		account.ExpiryDate,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return service.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByCustomer retrieves an account without locking it.
// Returns nil, nil if the account is not found (service layer handles this).
func (r *AccountRepository) GetByCustomer(ctx context.Context, customerID string, programID int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM loyalty_accounts WHERE customer_id = $1 AND program_id = $2`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, customerID, programID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account %s/%d: %w", customerID, programID, err)
	}
	return account, nil
}

// GetForUpdate retrieves an account with a row lock (SELECT FOR UPDATE).
// The lock is held until the transaction completes, which serializes
// concurrent operations on the same account.
// Returns service.ErrAccountNotFound if the account doesn't exist.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, customerID string, programID int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM loyalty_accounts
		WHERE customer_id = $1 AND program_id = $2 FOR UPDATE`

	account, err := scanAccount(tx.QueryRow(ctx, query, customerID, programID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrAccountNotFound
		}
		return nil, classify(fmt.Errorf("get account for update %s/%d: %w", customerID, programID, err))
	}
	return account, nil
}

// GetByIDForUpdate is GetForUpdate keyed by account ID.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM loyalty_accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrAccountNotFound
		}
		return nil, classify(fmt.Errorf("get account for update %s: %w", id, err))
	}
	return account, nil
}

// UpdateBalance writes the balance, totals, tier and expiry of a locked account.
// Must be called within a transaction after GetForUpdate.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx database.TxQuerier, account *model.Account) error {
	query := `UPDATE loyalty_accounts
		SET current_points = $2, total_earned = $3, total_redeemed = $4, total_expired = $5,
			current_tier_id = $6, expiry_date = $7, updated_at = $8
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		account.ID,
		account.CurrentPoints,
		account.TotalEarned,
		account.TotalRedeemed,
		account.TotalExpired,
		account.CurrentTierID,
		account.ExpiryDate,
		account.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("update balance for %s: %w", account.ID, err))
	}
	if tag.RowsAffected() == 0 {
		return service.ErrAccountNotFound
	}
	return nil
}

// SetActive flips the soft-deactivation flag.
// Returns service.ErrAccountNotFound if the account doesn't exist.
func (r *AccountRepository) SetActive(ctx context.Context, customerID string, programID int64, active bool) error {
	query := `UPDATE loyalty_accounts SET active = $3, updated_at = now()
		WHERE customer_id = $1 AND program_id = $2`

	tag, err := r.pool.Exec(ctx, query, customerID, programID, active)
	if err != nil {
		return classify(fmt.Errorf("set active for %s/%d: %w", customerID, programID, err))
	}
	if tag.RowsAffected() == 0 {
		return service.ErrAccountNotFound
	}
	return nil
}

// ListExpiredIDs returns up to limit IDs of accounts holding points past
// their expiry date, ordered by ID and starting after the given ID.
// On success, returns an empty slice (not nil) when nothing is due.
func (r *AccountRepository) ListExpiredIDs(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM loyalty_accounts
		WHERE expiry_date < $1 AND current_points > 0 AND id > $2
		ORDER BY id LIMIT $3`

	rows, err := r.pool.Query(ctx, query, now, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired accounts: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired accounts: %w", err)
	}
	return ids, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.CustomerID,
		&a.ProgramID,
		&a.CurrentPoints,
		&a.TotalEarned,
		&a.TotalRedeemed,
		&a.TotalExpired,
		&a.CurrentTierID,
		&a.ExpiryDate,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// classify marks concurrency failures with service.ErrConflict so the
// service retries the whole transaction.
func classify(err error) error {
	if database.IsConflict(err) {
		return fmt.Errorf("%w: %w", service.ErrConflict, err)
	}
	return err
}

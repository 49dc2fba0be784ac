package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
	"github.com/fairyhunter13/loyalty-points-engine/internal/service"
	"github.com/fairyhunter13/loyalty-points-engine/pkg/database"
)

// ProgramRepository provides data access for programs and tiers using pgx.
type ProgramRepository struct {
	pool database.TxQuerier
}

// NewProgramRepository creates a new ProgramRepository with the given pool.
func NewProgramRepository(pool *pgxpool.Pool) *ProgramRepository {
	return &ProgramRepository{pool: pool}
}

// NewProgramRepositoryWithPool creates a new ProgramRepository with a custom pool interface.
// This is primarily used for testing.
func NewProgramRepositoryWithPool(pool database.TxQuerier) *ProgramRepository {
	return &ProgramRepository{pool: pool}
}

// Insert stores a program and sets its generated ID and creation time.
func (r *ProgramRepository) Insert(ctx context.Context, tx database.TxQuerier, program *model.Program) error {
	query := `INSERT INTO loyalty_programs
		(name, points_per_currency, minimum_spend_for_points, points_expiry_days, bonus_multipliers, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := tx.QueryRow(ctx, query,
		program.Name,
		program.PointsPerCurrency,
		program.MinimumSpendForPoints,
		program.PointsExpiryDays,
		program.BonusMultipliers,
		program.Active,
	).Scan(&program.ID, &program.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert program %s: %w", program.Name, err)
	}
	return nil
}

// GetByID retrieves a program by its ID.
// Returns nil, nil if the program is not found (service layer handles this).
func (r *ProgramRepository) GetByID(ctx context.Context, id int64) (*model.Program, error) {
	query := `SELECT id, name, points_per_currency, minimum_spend_for_points, points_expiry_days,
		bonus_multipliers, active, created_at
		FROM loyalty_programs WHERE id = $1`

	var p model.Program
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.PointsPerCurrency,
		&p.MinimumSpendForPoints,
		&p.PointsExpiryDays,
		&p.BonusMultipliers,
		&p.Active,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get program %d: %w", id, err)
	}
	return &p, nil
}

// LockForUpdate takes a row lock on the program for the rest of the transaction.
// Returns service.ErrProgramNotFound if the program doesn't exist.
func (r *ProgramRepository) LockForUpdate(ctx context.Context, tx database.TxQuerier, id int64) error {
	var locked int64
	err := tx.QueryRow(ctx, `SELECT id FROM loyalty_programs WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrProgramNotFound
		}
		return classify(fmt.Errorf("lock program %d: %w", id, err))
	}
	return nil
}

// SetActive flips the program's active flag.
// Returns service.ErrProgramNotFound if the program doesn't exist.
func (r *ProgramRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE loyalty_programs SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return classify(fmt.Errorf("set active for program %d: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return service.ErrProgramNotFound
	}
	return nil
}

// InsertTier stores a tier and sets its generated ID and creation time.
func (r *ProgramRepository) InsertTier(ctx context.Context, tx database.TxQuerier, tier *model.Tier) error {
	query := `INSERT INTO loyalty_tiers
		(program_id, name, min_points_required, points_multiplier, discount_percentage)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := tx.QueryRow(ctx, query,
		tier.ProgramID,
		tier.Name,
		tier.MinPointsRequired,
		tier.PointsMultiplier,
		tier.DiscountPercentage,
	).Scan(&tier.ID, &tier.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert tier %s: %w", tier.Name, err)
	}
	return nil
}

// ListTiers retrieves a program's tiers in ascending threshold order.
// On success, returns an empty slice (not nil) when the program has no tiers.
func (r *ProgramRepository) ListTiers(ctx context.Context, programID int64) ([]model.Tier, error) {
	query := `SELECT id, program_id, name, min_points_required, points_multiplier, discount_percentage, created_at
		FROM loyalty_tiers WHERE program_id = $1
		ORDER BY min_points_required, id`

	rows, err := r.pool.Query(ctx, query, programID)
	if err != nil {
		return nil, fmt.Errorf("list tiers for program %d: %w", programID, err)
	}
	defer rows.Close()

	tiers := []model.Tier{}
	for rows.Next() {
		var t model.Tier
		if err := rows.Scan(
			&t.ID,
			&t.ProgramID,
			&t.Name,
			&t.MinPointsRequired,
			&t.PointsMultiplier,
			&t.DiscountPercentage,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tier rows: %w", err)
	}
	return tiers, nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/loyalty-points-engine/internal/loyalty"
	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

// ProgramService manages loyalty programs and their append-only tier tables.
type ProgramService struct {
	pool        TxBeginner
	programRepo ProgramRepositoryInterface
}

// NewProgramService creates a new ProgramService.
func NewProgramService(pool *pgxpool.Pool, programRepo ProgramRepositoryInterface) *ProgramService {
	return &ProgramService{pool: pool, programRepo: programRepo}
}

// NewProgramServiceWithTxBeginner creates a ProgramService with a custom TxBeginner.
// Primarily used for testing.
func NewProgramServiceWithTxBeginner(pool TxBeginner, programRepo ProgramRepositoryInterface) *ProgramService {
	return &ProgramService{pool: pool, programRepo: programRepo}
}

// CreateProgram stores a program with its initial tiers in one transaction.
// Returns ErrTierThreshold if two tiers share a threshold.
func (s *ProgramService) CreateProgram(ctx context.Context, req *model.CreateProgramRequest) (*model.ProgramResponse, error) {
	if req == nil || req.PointsPerCurrency == nil || len(req.Tiers) == 0 {
		return nil, ErrInvalidRequest
	}
	for source := range req.BonusMultipliers {
		if !source.Earnable() {
			return nil, ErrInvalidSource
		}
	}
	if !loyalty.Representable(*req.PointsPerCurrency, 12, 4) || !req.PointsPerCurrency.IsPositive() ||
		!loyalty.Representable(req.MinimumSpendForPoints, 14, 2) || req.MinimumSpendForPoints.IsNegative() {
		return nil, ErrInvalidAmount
	}

	tiers := make([]model.Tier, 0, len(req.Tiers))
	for i := range req.Tiers {
		tier, err := tierFromRequest(&req.Tiers[i])
		if err != nil {
			return nil, err
		}
		// Request order is the insertion order used for tie-breaks.
		tier.ID = int64(i)
		tiers = append(tiers, tier)
	}
	tiers = loyalty.SortTiers(tiers)
	if len(loyalty.DuplicateThresholds(tiers)) > 0 {
		return nil, ErrTierThreshold
	}

	program := &model.Program{
		Name:                  req.Name,
		PointsPerCurrency:     *req.PointsPerCurrency,
		MinimumSpendForPoints: req.MinimumSpendForPoints,
		PointsExpiryDays:      req.PointsExpiryDays,
		BonusMultipliers:      req.BonusMultipliers,
		Active:                true,
	}
	if program.BonusMultipliers == nil {
		program.BonusMultipliers = map[model.Source]decimal.Decimal{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.programRepo.Insert(ctx, tx, program); err != nil {
		return nil, fmt.Errorf("insert program: %w", err)
	}
	for i := range tiers {
		tiers[i].ProgramID = program.ID
		if err := s.programRepo.InsertTier(ctx, tx, &tiers[i]); err != nil {
			return nil, fmt.Errorf("insert tier %s: %w", tiers[i].Name, err)
		}
	}

	if err := commit(ctx, tx); err != nil {
		return nil, err
	}
	observeOperation("create_program", nil)

	return &model.ProgramResponse{Program: *program, Tiers: tiers}, nil
}

// GetProgram returns a program with its tiers in ascending threshold order.
func (s *ProgramService) GetProgram(ctx context.Context, id int64) (*model.ProgramResponse, error) {
	program, tiers, err := loadProgram(ctx, s.programRepo, id)
	if err != nil {
		return nil, err
	}
	return &model.ProgramResponse{Program: *program, Tiers: tiers}, nil
}

// AppendTier adds a tier above the program's current highest tier.
// Existing tiers are never modified since historical transactions reference them.
func (s *ProgramService) AppendTier(ctx context.Context, programID int64, req *model.CreateTierRequest) (*model.Tier, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	tier, err := tierFromRequest(req)
	if err != nil {
		return nil, err
	}
	tier.ProgramID = programID

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes appends so two writers cannot both pass the threshold check.
	if err := s.programRepo.LockForUpdate(ctx, tx, programID); err != nil {
		return nil, err
	}

	existing, err := s.programRepo.ListTiers(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	for _, t := range existing {
		if tier.MinPointsRequired.LessThanOrEqual(t.MinPointsRequired) {
			return nil, ErrTierThreshold
		}
	}

	if err := s.programRepo.InsertTier(ctx, tx, &tier); err != nil {
		return nil, fmt.Errorf("insert tier: %w", err)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}
	observeOperation("append_tier", nil)
	return &tier, nil
}

// DeactivateProgram stops enrollments and points movements in a program.
// Balances and ledgers stay readable.
func (s *ProgramService) DeactivateProgram(ctx context.Context, id int64) error {
	err := s.programRepo.SetActive(ctx, id, false)
	observeOperation("deactivate_program", err)
	if err != nil {
		if errors.Is(err, ErrProgramNotFound) {
			return ErrProgramNotFound
		}
		return fmt.Errorf("deactivate program: %w", err)
	}
	return nil
}

func tierFromRequest(req *model.CreateTierRequest) (model.Tier, error) {
	if req.PointsMultiplier == nil {
		return model.Tier{}, ErrInvalidRequest
	}
	if req.MinPointsRequired.IsNegative() ||
		req.PointsMultiplier.LessThan(decimal.NewFromInt(1)) ||
		req.DiscountPercentage.IsNegative() ||
		req.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return model.Tier{}, ErrInvalidAmount
	}
	// Thresholds are compared in memory before they are stored, so they
	// must survive storage unrounded.
	if !loyalty.PointsRepresentable(req.MinPointsRequired) ||
		!loyalty.Representable(*req.PointsMultiplier, 8, 4) ||
		!loyalty.Representable(req.DiscountPercentage, 5, 2) {
		return model.Tier{}, ErrInvalidAmount
	}
	return model.Tier{
		Name:               req.Name,
		MinPointsRequired:  req.MinPointsRequired,
		PointsMultiplier:   *req.PointsMultiplier,
		DiscountPercentage: req.DiscountPercentage,
	}, nil
}

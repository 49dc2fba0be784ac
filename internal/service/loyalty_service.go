package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/loyalty-points-engine/internal/loyalty"
	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
	"github.com/fairyhunter13/loyalty-points-engine/pkg/database"
)

// AccountRepositoryInterface defines the interface for loyalty account data access.
type AccountRepositoryInterface interface {
	Insert(ctx context.Context, account *model.Account) error
	GetByCustomer(ctx context.Context, customerID string, programID int64) (*model.Account, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, customerID string, programID int64) (*model.Account, error)
	GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Account, error)
	UpdateBalance(ctx context.Context, tx database.TxQuerier, account *model.Account) error
	SetActive(ctx context.Context, customerID string, programID int64, active bool) error
	ListExpiredIDs(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// ProgramRepositoryInterface defines the interface for program and tier data access.
type ProgramRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, program *model.Program) error
	GetByID(ctx context.Context, id int64) (*model.Program, error)
	LockForUpdate(ctx context.Context, tx database.TxQuerier, id int64) error
	InsertTier(ctx context.Context, tx database.TxQuerier, tier *model.Tier) error
	ListTiers(ctx context.Context, programID int64) ([]model.Tier, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// TransactionRepositoryInterface defines the interface for ledger data access.
type TransactionRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, txn *model.Transaction) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error)
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Options tunes LoyaltyService behavior.
type Options struct {
	Retry        RetryPolicy
	HistoryLimit int
	Now          func() time.Time
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

func (o Options) withDefaults() Options {
	if o.Retry.MaxAttempts == 0 {
		o.Retry = DefaultRetryPolicy
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// LoyaltyService provides accrual, redemption and read operations on loyalty accounts.
type LoyaltyService struct {
	pool        TxBeginner
	accountRepo AccountRepositoryInterface
	programRepo ProgramRepositoryInterface
	txnRepo     TransactionRepositoryInterface
	opts        Options
}

// NewLoyaltyService creates a new LoyaltyService with the given pool and repositories.
func NewLoyaltyService(pool *pgxpool.Pool, accountRepo AccountRepositoryInterface, programRepo ProgramRepositoryInterface, txnRepo TransactionRepositoryInterface, opts Options) *LoyaltyService {
	return NewLoyaltyServiceWithTxBeginner(pool, accountRepo, programRepo, txnRepo, opts)
}

// NewLoyaltyServiceWithTxBeginner creates a LoyaltyService with a custom TxBeginner.
// Primarily used for testing.
func NewLoyaltyServiceWithTxBeginner(pool TxBeginner, accountRepo AccountRepositoryInterface, programRepo ProgramRepositoryInterface, txnRepo TransactionRepositoryInterface, opts Options) *LoyaltyService {
	return &LoyaltyService{
		pool:        pool,
		accountRepo: accountRepo,
		programRepo: programRepo,
		txnRepo:     txnRepo,
		opts:        opts.withDefaults(),
	}
}

// Enroll creates a customer's account in the program's base tier.
// Returns ErrAccountExists if the customer is already enrolled.
func (s *LoyaltyService) Enroll(ctx context.Context, req *model.EnrollRequest) (*model.Account, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	customerID := model.NormalizeCustomerID(req.CustomerID)
	if customerID == "" {
		return nil, ErrInvalidRequest
	}

	program, tiers, err := loadProgram(ctx, s.programRepo, req.ProgramID)
	if err != nil {
		return nil, err
	}
	if !program.Active {
		return nil, ErrProgramInactive
	}

	now := s.opts.Now()
	account := &model.Account{
		ID:            uuid.New(),
		CustomerID:    customerID,
		ProgramID:     program.ID,
		CurrentPoints: decimal.Zero,
		TotalEarned:   decimal.Zero,
		TotalRedeemed: decimal.Zero,
		TotalExpired:  decimal.Zero,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if base := loyalty.ResolveTier(tiers, decimal.Zero); base != nil {
		account.CurrentTierID = &base.ID
	}

	err = s.accountRepo.Insert(ctx, account)
	observeOperation("enroll", err)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// EarnPoints credits points for a qualifying spend and promotes the account
// to the highest tier its new balance qualifies for. Spend below the
// program's minimum is a no-op that writes nothing.
func (s *LoyaltyService) EarnPoints(ctx context.Context, req *model.EarnRequest) (*model.EarnResult, error) {
	if req == nil || req.SpendAmount == nil {
		return nil, ErrInvalidRequest
	}
	promo := decimal.NewFromInt(1)
	if req.PromoMultiplier != nil {
		promo = *req.PromoMultiplier
	}
	if req.SpendAmount.IsNegative() || req.SpendAmount.GreaterThan(model.MaxSpendAmount) || !promo.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !req.Source.Earnable() {
		return nil, ErrInvalidSource
	}
	normalized := *req
	normalized.CustomerID = model.NormalizeCustomerID(req.CustomerID)
	req = &normalized

	program, tiers, err := loadProgram(ctx, s.programRepo, req.ProgramID)
	if err != nil {
		return nil, err
	}
	if !program.Active {
		return nil, ErrProgramInactive
	}

	var result *model.EarnResult
	err = retryOnConflict(ctx, s.opts.Retry, "earn", func(ctx context.Context) error {
		var err error
		result, err = s.earn(ctx, program, tiers, req, promo)
		return err
	})
	observeOperation("earn", err)
	if err != nil {
		return nil, err
	}

	addPoints(pointsEarned, result.PointsEarned)
	if result.TierUpgraded {
		tierUpgrades.WithLabelValues(result.NewTier.Name).Inc()
	}
	return result, nil
}

func (s *LoyaltyService) earn(ctx context.Context, program *model.Program, tiers []model.Tier, req *model.EarnRequest, promo decimal.Decimal) (*model.EarnResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	account, err := s.lockActiveAccount(ctx, tx, req.CustomerID, req.ProgramID)
	if err != nil {
		return nil, err
	}

	current := loyalty.FindTier(tiers, account.CurrentTierID)
	accrual, err := loyalty.CalculatePoints(*program, current, *req.SpendAmount, req.Source, promo)
	if err != nil {
		return nil, domainError(err)
	}
	now := s.opts.Now()
	if accrual.Points.IsZero() {
		return &model.EarnResult{
			PointsEarned: decimal.Zero,
			NewBalance:   loyalty.AvailablePoints(*account, now),
			NewTier:      current,
		}, nil
	}

	// A refreshed expiry date must not revive points that already lapsed.
	if loyalty.Expired(*account, now) {
		if lapsed := loyalty.ApplyExpiry(account); lapsed.IsPositive() {
			if err := s.txnRepo.Insert(ctx, tx, expiredTransaction(account.ID, lapsed, *account.ExpiryDate, now)); err != nil {
				return nil, fmt.Errorf("insert expired transaction: %w", err)
			}
			addPoints(pointsExpired, lapsed)
		}
	}

	if err := loyalty.ValidateAccrual(*account, accrual.Points); err != nil {
		return nil, domainError(err)
	}
	loyalty.ApplyEarn(account, accrual.Points)
	if expiry := loyalty.NextExpiry(*program, now); expiry != nil {
		account.ExpiryDate = expiry
	}

	resolved := loyalty.ResolveTier(tiers, account.CurrentPoints)
	upgraded := loyalty.IsUpgrade(current, resolved)
	if upgraded {
		account.CurrentTierID = &resolved.ID
	}
	account.UpdatedAt = now

	if err := s.accountRepo.UpdateBalance(ctx, tx, account); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	earned := &model.Transaction{
		ID:           uuid.New(),
		AccountID:    account.ID,
		Type:         model.TransactionEarned,
		PointsAmount: accrual.Points,
		Source:       string(req.Source),
		OrderID:      req.OrderID,
		Multiplier:   accrual.Multiplier,
		Description:  fmt.Sprintf("Earned %s points from %s", accrual.Points.StringFixed(model.PointsPrecision), req.Source),
		CreatedAt:    now,
	}
	if err := s.txnRepo.Insert(ctx, tx, earned); err != nil {
		return nil, fmt.Errorf("insert earned transaction: %w", err)
	}

	if upgraded {
		upgrade := &model.Transaction{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Type:         model.TransactionTierUpgrade,
			PointsAmount: decimal.Zero,
			Source:       string(model.SourceTierProgression),
			OrderID:      req.OrderID,
			Multiplier:   resolved.PointsMultiplier,
			Description:  fmt.Sprintf("Upgraded to %s tier", resolved.Name),
			CreatedAt:    now,
		}
		if err := s.txnRepo.Insert(ctx, tx, upgrade); err != nil {
			return nil, fmt.Errorf("insert tier upgrade transaction: %w", err)
		}
	}

	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	result := &model.EarnResult{
		PointsEarned: accrual.Points,
		NewBalance:   account.CurrentPoints,
		TierUpgraded: upgraded,
		NewTier:      current,
	}
	if upgraded {
		result.NewTier = resolved
	}
	return result, nil
}

// RedeemPoints debits points all-or-nothing.
// Returns ErrInsufficientPoints when the available balance cannot cover the amount.
func (s *LoyaltyService) RedeemPoints(ctx context.Context, req *model.RedeemRequest) (*model.RedeemResult, error) {
	if req == nil || req.PointsAmount == nil {
		return nil, ErrInvalidRequest
	}
	if !req.PointsAmount.IsPositive() || !loyalty.PointsRepresentable(*req.PointsAmount) {
		return nil, ErrInvalidAmount
	}
	if !req.RedemptionType.Valid() {
		return nil, ErrInvalidRedemptionType
	}
	if req.Source != "" && !req.Source.Valid() {
		return nil, ErrInvalidSource
	}
	normalized := *req
	normalized.CustomerID = model.NormalizeCustomerID(req.CustomerID)
	req = &normalized

	program, err := s.programRepo.GetByID(ctx, req.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("get program: %w", err)
	}
	if program == nil {
		return nil, ErrProgramNotFound
	}
	if !program.Active {
		return nil, ErrProgramInactive
	}

	var result *model.RedeemResult
	err = retryOnConflict(ctx, s.opts.Retry, "redeem", func(ctx context.Context) error {
		var err error
		result, err = s.redeem(ctx, req)
		return err
	})
	observeOperation("redeem", err)
	if err != nil {
		return nil, err
	}

	addPoints(pointsRedeemed, result.PointsRedeemed)
	return result, nil
}

func (s *LoyaltyService) redeem(ctx context.Context, req *model.RedeemRequest) (*model.RedeemResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	account, err := s.lockActiveAccount(ctx, tx, req.CustomerID, req.ProgramID)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	amount := *req.PointsAmount
	if err := loyalty.ValidateRedemption(*account, amount, req.RedemptionType, now); err != nil {
		return nil, domainError(err)
	}
	if err := loyalty.ApplyRedeem(account, amount); err != nil {
		return nil, domainError(err)
	}
	account.UpdatedAt = now

	if err := s.accountRepo.UpdateBalance(ctx, tx, account); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	description := fmt.Sprintf("Redeemed %s points for %s", amount.StringFixed(model.PointsPrecision), req.RedemptionType)
	if req.Source != "" {
		description += " via " + string(req.Source)
	}
	redeemed := &model.Transaction{
		ID:           uuid.New(),
		AccountID:    account.ID,
		Type:         model.TransactionRedeemed,
		PointsAmount: amount,
		Source:       string(req.RedemptionType),
		OrderID:      req.OrderID,
		Multiplier:   decimal.NewFromInt(1),
		Description:  description,
		CreatedAt:    now,
	}
	if err := s.txnRepo.Insert(ctx, tx, redeemed); err != nil {
		return nil, fmt.Errorf("insert redeemed transaction: %w", err)
	}

	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	return &model.RedeemResult{
		PointsRedeemed: amount,
		NewBalance:     account.CurrentPoints,
	}, nil
}

// GetAccount returns the account's balance, tier and most recent ledger entries.
func (s *LoyaltyService) GetAccount(ctx context.Context, customerID string, programID int64) (*model.AccountSummary, error) {
	customerID = model.NormalizeCustomerID(customerID)
	account, err := s.accountRepo.GetByCustomer(ctx, customerID, programID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	tiers, err := s.programRepo.ListTiers(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}

	txns, err := s.txnRepo.ListByAccount(ctx, account.ID, s.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	return &model.AccountSummary{
		CustomerID:         account.CustomerID,
		ProgramID:          account.ProgramID,
		CurrentPoints:      account.CurrentPoints,
		TotalEarned:        account.TotalEarned,
		TotalRedeemed:      account.TotalRedeemed,
		TotalExpired:       account.TotalExpired,
		Tier:               loyalty.FindTier(tiers, account.CurrentTierID),
		ExpiryDate:         account.ExpiryDate,
		Active:             account.Active,
		RecentTransactions: txns,
	}, nil
}

// ListTransactions returns up to limit ledger entries, newest first.
// A non-positive limit falls back to the configured history limit.
func (s *LoyaltyService) ListTransactions(ctx context.Context, customerID string, programID int64, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = s.opts.HistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	customerID = model.NormalizeCustomerID(customerID)

	account, err := s.accountRepo.GetByCustomer(ctx, customerID, programID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	txns, err := s.txnRepo.ListByAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

// DeactivateAccount soft-deactivates an account. Its balance and ledger are kept.
func (s *LoyaltyService) DeactivateAccount(ctx context.Context, customerID string, programID int64) error {
	err := s.accountRepo.SetActive(ctx, model.NormalizeCustomerID(customerID), programID, false)
	observeOperation("deactivate", err)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("deactivate account: %w", err)
	}
	return nil
}

func (s *LoyaltyService) lockActiveAccount(ctx context.Context, tx database.TxQuerier, customerID string, programID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetForUpdate(ctx, tx, customerID, programID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account for update: %w", err)
	}
	if !account.Active {
		return nil, ErrAccountInactive
	}
	return account, nil
}

// loadProgram returns the program and its tiers sorted for ResolveTier.
func loadProgram(ctx context.Context, repo ProgramRepositoryInterface, programID int64) (*model.Program, []model.Tier, error) {
	program, err := repo.GetByID(ctx, programID)
	if err != nil {
		return nil, nil, fmt.Errorf("get program: %w", err)
	}
	if program == nil {
		return nil, nil, ErrProgramNotFound
	}

	tiers, err := repo.ListTiers(ctx, programID)
	if err != nil {
		return nil, nil, fmt.Errorf("list tiers: %w", err)
	}
	tiers = loyalty.SortTiers(tiers)
	if dups := loyalty.DuplicateThresholds(tiers); len(dups) > 0 {
		log.Warn().
			Int64("program_id", programID).
			Strs("tiers", dups).
			Msg("tiers share a threshold, later-inserted tier wins")
	}
	return program, tiers, nil
}

func expiredTransaction(accountID uuid.UUID, points decimal.Decimal, expiry, now time.Time) *model.Transaction {
	return &model.Transaction{
		ID:           uuid.New(),
		AccountID:    accountID,
		Type:         model.TransactionExpired,
		PointsAmount: points,
		Source:       string(model.SourceExpiration),
		Multiplier:   decimal.NewFromInt(1),
		Description:  fmt.Sprintf("%s points expired on %s", points.StringFixed(model.PointsPrecision), expiry.Format(time.DateOnly)),
		CreatedAt:    now,
	}
}

func commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		if database.IsConflict(err) {
			return fmt.Errorf("commit: %w: %w", ErrConflict, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// domainError maps loyalty package errors onto the service taxonomy.
func domainError(err error) error {
	switch {
	case errors.Is(err, loyalty.ErrInsufficientPoints):
		return ErrInsufficientPoints
	case errors.Is(err, loyalty.ErrUnknownSource):
		return ErrInvalidSource
	case errors.Is(err, loyalty.ErrUnknownRedemptionType):
		return ErrInvalidRedemptionType
	case errors.Is(err, loyalty.ErrNegativeSpend),
		errors.Is(err, loyalty.ErrInvalidPromoMultiplier),
		errors.Is(err, loyalty.ErrNonPositiveAmount),
		errors.Is(err, loyalty.ErrPointsPrecision),
		errors.Is(err, loyalty.ErrPointsOverflow):
		return ErrInvalidAmount
	default:
		return err
	}
}

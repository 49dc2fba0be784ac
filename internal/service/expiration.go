package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/fairyhunter13/loyalty-points-engine/internal/loyalty"
	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

// SweeperOptions tunes the expiration sweeper.
type SweeperOptions struct {
	BatchSize int
	// RatePerSecond caps how many accounts are expired per second. Zero means unlimited.
	RatePerSecond float64
	Retry         RetryPolicy
}

// ExpirationSweeper zeroes balances whose expiry date has passed.
type ExpirationSweeper struct {
	pool        TxBeginner
	accountRepo AccountRepositoryInterface
	txnRepo     TransactionRepositoryInterface
	limiter     *rate.Limiter
	batchSize   int
	retry       RetryPolicy

	// lastSweep holds the unix nanos of the last sweep that ran to completion.
	lastSweep atomic.Int64
}

// NewExpirationSweeper creates a new ExpirationSweeper.
func NewExpirationSweeper(pool *pgxpool.Pool, accountRepo AccountRepositoryInterface, txnRepo TransactionRepositoryInterface, opts SweeperOptions) *ExpirationSweeper {
	return NewExpirationSweeperWithTxBeginner(pool, accountRepo, txnRepo, opts)
}

// NewExpirationSweeperWithTxBeginner creates an ExpirationSweeper with a custom TxBeginner.
// Primarily used for testing.
func NewExpirationSweeperWithTxBeginner(pool TxBeginner, accountRepo AccountRepositoryInterface, txnRepo TransactionRepositoryInterface, opts SweeperOptions) *ExpirationSweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &ExpirationSweeper{
		pool:        pool,
		accountRepo: accountRepo,
		txnRepo:     txnRepo,
		limiter:     limiter,
		batchSize:   opts.BatchSize,
		retry:       opts.Retry,
	}
}

// ProcessExpirations expires every account whose expiry date is before now
// and which still holds points. Each account is expired in its own
// transaction; a failure on one account is logged and counted without
// stopping the sweep. Running it twice for the same now expires nothing
// the second time.
func (s *ExpirationSweeper) ProcessExpirations(ctx context.Context, now time.Time) (*model.ExpirationResult, error) {
	result := &model.ExpirationResult{TotalPointsExpired: decimal.Zero}

	after := uuid.Nil
	for {
		ids, err := s.accountRepo.ListExpiredIDs(ctx, now, after, s.batchSize)
		if err != nil {
			observeOperation("expire", err)
			return result, fmt.Errorf("list expired accounts: %w", err)
		}

		for _, id := range ids {
			if err := s.limiter.Wait(ctx); err != nil {
				return result, err
			}

			var expired decimal.Decimal
			err := retryOnConflict(ctx, s.retry, "expire", func(ctx context.Context) error {
				var err error
				expired, err = s.expireAccount(ctx, id, now)
				return err
			})
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return result, err
				}
				result.Failed++
				observeOperation("expire", err)
				log.Error().Err(err).Str("account_id", id.String()).Msg("failed to expire account points")
				continue
			}
			if expired.IsPositive() {
				result.AccountsAffected++
				result.TotalPointsExpired = result.TotalPointsExpired.Add(expired)
				addPoints(pointsExpired, expired)
				observeOperation("expire", nil)
			}
		}

		if len(ids) < s.batchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	s.lastSweep.Store(time.Now().UnixNano())
	return result, nil
}

// LastSweep returns when a sweep last ran to completion, or the zero time.
func (s *ExpirationSweeper) LastSweep() time.Time {
	nanos := s.lastSweep.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (s *ExpirationSweeper) expireAccount(ctx context.Context, id uuid.UUID, now time.Time) (decimal.Decimal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get account for update: %w", err)
	}

	// Re-checked under the row lock: a concurrent earn may have refreshed the
	// expiry date, or another sweep may already have zeroed the balance.
	if !loyalty.Expired(*account, now) || !account.CurrentPoints.IsPositive() {
		return decimal.Zero, nil
	}

	expiry := *account.ExpiryDate
	expired := loyalty.ApplyExpiry(account)
	account.UpdatedAt = now

	if err := s.accountRepo.UpdateBalance(ctx, tx, account); err != nil {
		return decimal.Zero, fmt.Errorf("update balance: %w", err)
	}
	if err := s.txnRepo.Insert(ctx, tx, expiredTransaction(account.ID, expired, expiry, now)); err != nil {
		return decimal.Zero, fmt.Errorf("insert expired transaction: %w", err)
	}
	if err := commit(ctx, tx); err != nil {
		return decimal.Zero, err
	}
	return expired, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *ExpirationSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("expiration sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiration sweeper stopped")
			return
		case <-ticker.C:
			start := time.Now()
			result, err := s.ProcessExpirations(ctx, start)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("expiration sweep aborted")
			}
			log.Info().
				Int("accounts_affected", result.AccountsAffected).
				Str("points_expired", result.TotalPointsExpired.String()).
				Int("failed", result.Failed).
				Dur("took", time.Since(start)).
				Msg("expiration sweep finished")
		}
	}
}

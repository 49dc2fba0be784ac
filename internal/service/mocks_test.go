package service

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
	"github.com/fairyhunter13/loyalty-points-engine/pkg/database"
)

// mockTx is a mock implementation of pgx.Tx for testing transactions.
// Writes staged through stage() only become visible on Commit.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error

	mu     sync.Mutex
	staged []func()
	done   bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitFn != nil {
		if err := m.commitFn(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, apply := range m.staged {
		apply()
	}
	m.staged = nil
	m.done = true
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	m.mu.Lock()
	m.staged = nil
	done := m.done
	m.done = true
	m.mu.Unlock()
	if done {
		return pgx.ErrTxClosed
	}
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

func stage(tx database.TxQuerier, apply func()) {
	m := tx.(*mockTx)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = append(m.staged, apply)
}

// mockTxBeginner is a mock implementation of TxBeginner.
type mockTxBeginner struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
	begins  int
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	m.begins++
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}

// mockAccountRepository is a mock implementation of AccountRepositoryInterface.
type mockAccountRepository struct {
	insertFn           func(ctx context.Context, account *model.Account) error
	getByCustomerFn    func(ctx context.Context, customerID string, programID int64) (*model.Account, error)
	getForUpdateFn     func(ctx context.Context, tx database.TxQuerier, customerID string, programID int64) (*model.Account, error)
	getByIDForUpdateFn func(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Account, error)
	updateBalanceFn    func(ctx context.Context, tx database.TxQuerier, account *model.Account) error
	setActiveFn        func(ctx context.Context, customerID string, programID int64, active bool) error
	listExpiredIDsFn   func(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

func (m *mockAccountRepository) Insert(ctx context.Context, account *model.Account) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, account)
	}
	return nil
}

func (m *mockAccountRepository) GetByCustomer(ctx context.Context, customerID string, programID int64) (*model.Account, error) {
	if m.getByCustomerFn != nil {
		return m.getByCustomerFn(ctx, customerID, programID)
	}
	return nil, nil
}

func (m *mockAccountRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, customerID string, programID int64) (*model.Account, error) {
	if m.getForUpdateFn != nil {
		return m.getForUpdateFn(ctx, tx, customerID, programID)
	}
	return nil, ErrAccountNotFound
}

func (m *mockAccountRepository) GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Account, error) {
	if m.getByIDForUpdateFn != nil {
		return m.getByIDForUpdateFn(ctx, tx, id)
	}
	return nil, ErrAccountNotFound
}

func (m *mockAccountRepository) UpdateBalance(ctx context.Context, tx database.TxQuerier, account *model.Account) error {
	if m.updateBalanceFn != nil {
		return m.updateBalanceFn(ctx, tx, account)
	}
	return nil
}

func (m *mockAccountRepository) SetActive(ctx context.Context, customerID string, programID int64, active bool) error {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, customerID, programID, active)
	}
	return nil
}

func (m *mockAccountRepository) ListExpiredIDs(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if m.listExpiredIDsFn != nil {
		return m.listExpiredIDsFn(ctx, now, after, limit)
	}
	return []uuid.UUID{}, nil
}

// mockProgramRepository is a mock implementation of ProgramRepositoryInterface.
type mockProgramRepository struct {
	insertFn        func(ctx context.Context, tx database.TxQuerier, program *model.Program) error
	getByIDFn       func(ctx context.Context, id int64) (*model.Program, error)
	lockForUpdateFn func(ctx context.Context, tx database.TxQuerier, id int64) error
	insertTierFn    func(ctx context.Context, tx database.TxQuerier, tier *model.Tier) error
	listTiersFn     func(ctx context.Context, programID int64) ([]model.Tier, error)
	setActiveFn     func(ctx context.Context, id int64, active bool) error
}

func (m *mockProgramRepository) Insert(ctx context.Context, tx database.TxQuerier, program *model.Program) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, program)
	}
	return nil
}

func (m *mockProgramRepository) GetByID(ctx context.Context, id int64) (*model.Program, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProgramRepository) LockForUpdate(ctx context.Context, tx database.TxQuerier, id int64) error {
	if m.lockForUpdateFn != nil {
		return m.lockForUpdateFn(ctx, tx, id)
	}
	return nil
}

func (m *mockProgramRepository) InsertTier(ctx context.Context, tx database.TxQuerier, tier *model.Tier) error {
	if m.insertTierFn != nil {
		return m.insertTierFn(ctx, tx, tier)
	}
	return nil
}

func (m *mockProgramRepository) ListTiers(ctx context.Context, programID int64) ([]model.Tier, error) {
	if m.listTiersFn != nil {
		return m.listTiersFn(ctx, programID)
	}
	return []model.Tier{}, nil
}

func (m *mockProgramRepository) SetActive(ctx context.Context, id int64, active bool) error {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, id, active)
	}
	return nil
}

// mockTransactionRepository is a mock implementation of TransactionRepositoryInterface.
type mockTransactionRepository struct {
	insertFn        func(ctx context.Context, tx database.TxQuerier, txn *model.Transaction) error
	listByAccountFn func(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error)
}

func (m *mockTransactionRepository) Insert(ctx context.Context, tx database.TxQuerier, txn *model.Transaction) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, txn)
	}
	return nil
}

func (m *mockTransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
	if m.listByAccountFn != nil {
		return m.listByAccountFn(ctx, accountID, limit)
	}
	return []model.Transaction{}, nil
}

// memStore backs the mock repositories with committed in-memory state, so a
// test can assert on what a transaction left behind.
type memStore struct {
	mu       sync.Mutex
	program  model.Program
	tiers    []model.Tier
	accounts map[uuid.UUID]model.Account
	txns     []model.Transaction
}

func newMemStore(program model.Program, tiers []model.Tier) *memStore {
	return &memStore{
		program:  program,
		tiers:    tiers,
		accounts: map[uuid.UUID]model.Account{},
	}
}

func (s *memStore) put(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *memStore) account(id uuid.UUID) model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) transactions() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Transaction(nil), s.txns...)
}

func (s *memStore) find(customerID string, programID int64) (model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.CustomerID == customerID && a.ProgramID == programID {
			return a, true
		}
	}
	return model.Account{}, false
}

func (s *memStore) accountRepo() *mockAccountRepository {
	return &mockAccountRepository{
		insertFn: func(ctx context.Context, account *model.Account) error {
			if _, ok := s.find(account.CustomerID, account.ProgramID); ok {
				return ErrAccountExists
			}
			s.put(*account)
			return nil
		},
		getByCustomerFn: func(ctx context.Context, customerID string, programID int64) (*model.Account, error) {
			a, ok := s.find(customerID, programID)
			if !ok {
				return nil, nil
			}
			return &a, nil
		},
		getForUpdateFn: func(ctx context.Context, tx database.TxQuerier, customerID string, programID int64) (*model.Account, error) {
			a, ok := s.find(customerID, programID)
			if !ok {
				return nil, ErrAccountNotFound
			}
			return &a, nil
		},
		getByIDForUpdateFn: func(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Account, error) {
			s.mu.Lock()
			a, ok := s.accounts[id]
			s.mu.Unlock()
			if !ok {
				return nil, ErrAccountNotFound
			}
			return &a, nil
		},
		updateBalanceFn: func(ctx context.Context, tx database.TxQuerier, account *model.Account) error {
			snapshot := *account
			stage(tx, func() { s.put(snapshot) })
			return nil
		},
		setActiveFn: func(ctx context.Context, customerID string, programID int64, active bool) error {
			a, ok := s.find(customerID, programID)
			if !ok {
				return ErrAccountNotFound
			}
			a.Active = active
			s.put(a)
			return nil
		},
		listExpiredIDsFn: func(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			ids := []uuid.UUID{}
			for id, a := range s.accounts {
				if a.ExpiryDate != nil && a.ExpiryDate.Before(now) && a.CurrentPoints.IsPositive() &&
					bytes.Compare(id[:], after[:]) > 0 {
					ids = append(ids, id)
				}
			}
			sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
			if len(ids) > limit {
				ids = ids[:limit]
			}
			return ids, nil
		},
	}
}

func (s *memStore) programRepo() *mockProgramRepository {
	return &mockProgramRepository{
		getByIDFn: func(ctx context.Context, id int64) (*model.Program, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if id != s.program.ID {
				return nil, nil
			}
			p := s.program
			return &p, nil
		},
		listTiersFn: func(ctx context.Context, programID int64) ([]model.Tier, error) {
			if programID != s.program.ID {
				return []model.Tier{}, nil
			}
			return append([]model.Tier(nil), s.tiers...), nil
		},
		setActiveFn: func(ctx context.Context, id int64, active bool) error {
			if id != s.program.ID {
				return ErrProgramNotFound
			}
			s.mu.Lock()
			s.program.Active = active
			s.mu.Unlock()
			return nil
		},
	}
}

func (s *memStore) txnRepo() *mockTransactionRepository {
	return &mockTransactionRepository{
		insertFn: func(ctx context.Context, tx database.TxQuerier, txn *model.Transaction) error {
			snapshot := *txn
			stage(tx, func() {
				s.mu.Lock()
				defer s.mu.Unlock()
				s.txns = append(s.txns, snapshot)
			})
			return nil
		},
		listByAccountFn: func(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			out := []model.Transaction{}
			for i := len(s.txns) - 1; i >= 0 && len(out) < limit; i-- {
				if s.txns[i].AccountID == accountID {
					out = append(out, s.txns[i])
				}
			}
			return out, nil
		},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func int64Ptr(i int64) *int64 {
	return &i
}

func timePtr(t time.Time) *time.Time {
	return &t
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testProgram() model.Program {
	return model.Program{
		ID:                    1,
		Name:                  "Coffee Club",
		PointsPerCurrency:     dec("1.0"),
		MinimumSpendForPoints: dec("10"),
		PointsExpiryDays:      365,
		BonusMultipliers:      map[model.Source]decimal.Decimal{model.SourceBirthday: dec("2")},
		Active:                true,
	}
}

func testTiers() []model.Tier {
	return []model.Tier{
		{ID: 1, ProgramID: 1, Name: "Bronze", MinPointsRequired: dec("0"), PointsMultiplier: dec("1.0")},
		{ID: 2, ProgramID: 1, Name: "Silver", MinPointsRequired: dec("1000"), PointsMultiplier: dec("1.25"), DiscountPercentage: dec("5")},
		{ID: 3, ProgramID: 1, Name: "Gold", MinPointsRequired: dec("5000"), PointsMultiplier: dec("1.5"), DiscountPercentage: dec("10")},
		{ID: 4, ProgramID: 1, Name: "Platinum", MinPointsRequired: dec("10000"), PointsMultiplier: dec("2.0"), DiscountPercentage: dec("15")},
	}
}

// testAccount returns an active account with a consistent ledger: the whole
// balance was earned.
func testAccount(customerID string, points string, tierID int64) model.Account {
	return model.Account{
		ID:            uuid.New(),
		CustomerID:    customerID,
		ProgramID:     1,
		CurrentPoints: dec(points),
		TotalEarned:   dec(points),
		TotalRedeemed: decimal.Zero,
		TotalExpired:  decimal.Zero,
		CurrentTierID: int64Ptr(tierID),
		ExpiryDate:    timePtr(testNow.AddDate(0, 6, 0)),
		Active:        true,
		CreatedAt:     testNow.AddDate(-1, 0, 0),
		UpdatedAt:     testNow.AddDate(0, -1, 0),
	}
}

func testOptions() Options {
	return Options{
		Retry: RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		Now:   func() time.Time { return testNow },
	}
}

func newTestLoyaltyService(store *memStore) (*LoyaltyService, *mockTxBeginner) {
	beginner := &mockTxBeginner{}
	svc := NewLoyaltyServiceWithTxBeginner(beginner, store.accountRepo(), store.programRepo(), store.txnRepo(), testOptions())
	return svc, beginner
}

// Package memstore is an in-process ledger store. It gives every test its own
// isolated ledger and backs the API when STORE_DRIVER=memory.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bankadmin/ledger/internal/ledger"
)

type Store struct {
	mu        sync.Mutex
	locks     map[int64]chan struct{}
	accounts  map[int64]*ledger.Account
	byNumber  map[string]int64
	customers map[int64]int64 // customer id -> user id
	entries   []*ledger.Transaction

	nextAccountID int64
	nextEntryID   int64
	now           func() time.Time
}

func New() *Store {
	return &Store{
		locks:     make(map[int64]chan struct{}),
		accounts:  make(map[int64]*ledger.Account),
		byNumber:  make(map[string]int64),
		customers: make(map[int64]int64),
		now:       time.Now,
	}
}

// AddCustomer registers a customer profile for a user.
func (s *Store) AddCustomer(customerID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers[customerID] = userID
}

func (s *Store) GetAccount(_ context.Context, id int64) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	cp := *acc

	return &cp, nil
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*ledger.Account, error) {
	s.mu.Lock()
	id, ok := s.byNumber[number]
	s.mu.Unlock()

	if !ok {
		return nil, ledger.ErrNotFound
	}

	return s.GetAccount(ctx, id)
}

func (s *Store) ListAccounts(_ context.Context, customerID int64) ([]*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ledger.Account

	for _, acc := range s.accounts {
		if acc.CustomerID != customerID {
			continue
		}

		cp := *acc
		out = append(out, &cp)
	}

	slices.SortFunc(out, func(a, b *ledger.Account) int { return cmp.Compare(a.ID, b.ID) })

	return out, nil
}

func (s *Store) CustomerForUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for customerID, uid := range s.customers {
		if uid == userID {
			return customerID, nil
		}
	}

	return 0, ledger.ErrNoCustomerProfile
}

func (s *Store) ListTransactions(_ context.Context, accountID int64) ([]*ledger.Transaction, error) {
	return s.collect(func(tx *ledger.Transaction) bool { return tx.AccountID == accountID }), nil
}

func (s *Store) ListCustomerTransactions(_ context.Context, customerID int64) ([]*ledger.Transaction, error) {
	s.mu.Lock()
	owned := make(map[int64]bool)

	for id, acc := range s.accounts {
		if acc.CustomerID == customerID {
			owned[id] = true
		}
	}
	s.mu.Unlock()

	return s.collect(func(tx *ledger.Transaction) bool { return owned[tx.AccountID] }), nil
}

// collect returns matching entries, most recent first. Entry ids grow with
// commit order, so reversing the log is enough.
func (s *Store) collect(match func(*ledger.Transaction) bool) []*ledger.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ledger.Transaction

	for i := len(s.entries) - 1; i >= 0; i-- {
		if !match(s.entries[i]) {
			continue
		}

		cp := *s.entries[i]
		out = append(out, &cp)
	}

	return out
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Begin(ctx context.Context) (ledger.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, err)
	}

	return &unit{
		store:    s,
		held:     make(map[int64]*ledger.Account),
		created:  make(map[int64]bool),
		balances: make(map[int64]decimal.Decimal),
	}, nil
}

func (s *Store) lockFor(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[id] = l
	}

	return l
}

// unit stages writes and applies them on Commit. Account locks are held from
// LockAccount until the unit ends.
type unit struct {
	store    *Store
	held     map[int64]*ledger.Account
	created  map[int64]bool
	balances map[int64]decimal.Decimal
	entries  []*ledger.Transaction
	done     bool
}

var _ ledger.UnitOfWork = (*unit)(nil)

func (u *unit) LockAccount(ctx context.Context, id int64) (*ledger.Account, error) {
	if u.done {
		return nil, errUnitDone
	}

	if acc, ok := u.held[id]; ok {
		cp := *acc

		return &cp, nil
	}

	l := u.store.lockFor(id)

	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, ctx.Err())
	}

	acc, err := u.store.GetAccount(ctx, id)
	if err != nil {
		<-l

		return nil, err
	}

	u.held[id] = acc
	cp := *acc

	return &cp, nil
}

func (u *unit) CreateAccount(_ context.Context, account *ledger.Account) error {
	if u.done {
		return errUnitDone
	}

	s := u.store

	s.mu.Lock()
	if _, ok := s.customers[account.CustomerID]; !ok {
		s.mu.Unlock()

		return ledger.ErrNoCustomerProfile
	}

	if _, ok := s.byNumber[account.Number]; ok {
		s.mu.Unlock()

		return fmt.Errorf("account number %s already taken", account.Number)
	}

	s.nextAccountID++
	account.ID = s.nextAccountID
	account.CreatedAt = s.now()
	s.mu.Unlock()

	// The new row is invisible to others until commit, so it needs no lock.
	cp := *account
	u.held[account.ID] = &cp
	u.created[account.ID] = true

	return nil
}

func (u *unit) UpdateBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	if u.done {
		return errUnitDone
	}

	acc, ok := u.held[id]
	if !ok {
		return fmt.Errorf("account %d is not locked by this unit", id)
	}

	if balance.IsNegative() {
		return fmt.Errorf("account %d: balance cannot be negative", id)
	}

	acc.Balance = balance
	u.balances[id] = balance

	return nil
}

func (u *unit) AppendTransaction(_ context.Context, tx *ledger.Transaction) error {
	if u.done {
		return errUnitDone
	}

	if _, ok := u.held[tx.AccountID]; !ok {
		return fmt.Errorf("account %d is not locked by this unit", tx.AccountID)
	}

	if !tx.Amount.IsPositive() {
		return fmt.Errorf("entry amount must be positive")
	}

	s := u.store

	s.mu.Lock()
	s.nextEntryID++
	tx.ID = s.nextEntryID
	tx.CreatedAt = s.now()
	s.mu.Unlock()

	cp := *tx
	u.entries = append(u.entries, &cp)

	return nil
}

func (u *unit) SumTransactions(_ context.Context, accountID int64) (decimal.Decimal, int, error) {
	if _, ok := u.held[accountID]; !ok {
		return decimal.Zero, 0, fmt.Errorf("account %d is not locked by this unit", accountID)
	}

	s := u.store

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := decimal.Zero
	n := 0

	for _, log := range [][]*ledger.Transaction{s.entries, u.entries} {
		for _, tx := range log {
			if tx.AccountID != accountID {
				continue
			}

			sum = sum.Add(tx.SignedAmount())
			n++
		}
	}

	return sum, n, nil
}

func (u *unit) Commit() error {
	if u.done {
		return errUnitDone
	}

	s := u.store

	s.mu.Lock()
	for id := range u.created {
		acc := *u.held[id]
		s.accounts[id] = &acc
		s.byNumber[acc.Number] = id
	}

	for id, balance := range u.balances {
		s.accounts[id].Balance = balance
	}

	// Entry ids were handed out in append order; keep the log sorted by id
	// when concurrent units commit out of order.
	s.entries = append(s.entries, u.entries...)
	slices.SortStableFunc(s.entries, func(a, b *ledger.Transaction) int { return cmp.Compare(a.ID, b.ID) })
	s.mu.Unlock()

	u.release()

	return nil
}

func (u *unit) Rollback() error {
	if u.done {
		return nil
	}

	u.release()

	return nil
}

func (u *unit) release() {
	u.done = true

	for id := range u.held {
		if u.created[id] {
			continue
		}

		<-u.store.lockFor(id)
	}
}

var errUnitDone = fmt.Errorf("%w: unit of work already finished", ledger.ErrStoreUnavailable)

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*Account, error)
	ListAccounts(ctx context.Context, customerID int64) ([]*Account, error)
	CustomerForUser(ctx context.Context, userID int64) (int64, error)

	ListTransactions(ctx context.Context, accountID int64) ([]*Transaction, error)
	ListCustomerTransactions(ctx context.Context, customerID int64) ([]*Transaction, error)

	Ping(ctx context.Context) error
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork is one atomic ledger mutation. Rows returned by LockAccount stay
// locked against other units until Commit or Rollback. Rollback after Commit
// is a no-op.
type UnitOfWork interface {
	LockAccount(ctx context.Context, id int64) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	AppendTransaction(ctx context.Context, tx *Transaction) error
	SumTransactions(ctx context.Context, accountID int64) (decimal.Decimal, int, error)
	Commit() error
	Rollback() error
}

type Service struct {
	repo    Repository
	numbers NumberGenerator
	events  Publisher
}

// NewService wires the ledger core. A nil publisher disables events.
func NewService(repo Repository, numbers NumberGenerator, events Publisher) *Service {
	if events == nil {
		events = noopPublisher{}
	}

	return &Service{
		repo:    repo,
		numbers: numbers,
		events:  events,
	}
}

// Ping reports whether the ledger store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Resolve loads an account by internal id and checks the caller may act on it.
// Employees may act on any account; customers only on their own.
func (s *Service) Resolve(ctx context.Context, caller Caller, accountID int64) (Handle, error) {
	acc, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return Handle{}, err
	}

	if err := s.authorize(ctx, caller, acc.CustomerID); err != nil {
		return Handle{}, err
	}

	return Handle{account: *acc}, nil
}

func (s *Service) authorize(ctx context.Context, caller Caller, customerID int64) error {
	if caller.IsEmployee() {
		return nil
	}

	own, err := s.repo.CustomerForUser(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, ErrNoCustomerProfile) {
			return ErrForbidden
		}

		return fmt.Errorf("resolving customer: %w", err)
	}

	if own != customerID {
		return ErrForbidden
	}

	return nil
}

// LookupByNumber finds a transfer destination. Only number, type and balance
// are disclosed since the caller usually does not own the account.
func (s *Service) LookupByNumber(ctx context.Context, number string) (*AccountSummary, error) {
	acc, err := s.repo.GetAccountByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	return &AccountSummary{
		Number:  acc.Number,
		Type:    acc.Type,
		Balance: acc.Balance,
	}, nil
}

// ListAccounts returns the accounts of the caller's customer profile. Employees
// act on behalf of the given customer instead.
func (s *Service) ListAccounts(ctx context.Context, caller Caller, customerID int64) ([]*Account, error) {
	id, err := s.customerFor(ctx, caller, customerID)
	if err != nil {
		return nil, err
	}

	return s.repo.ListAccounts(ctx, id)
}

// customerFor picks the customer an operation targets: the caller's own
// profile for customers, the requested one for employees.
func (s *Service) customerFor(ctx context.Context, caller Caller, requested int64) (int64, error) {
	if caller.IsEmployee() {
		if requested <= 0 {
			return 0, ErrNoCustomerProfile
		}

		return requested, nil
	}

	return s.repo.CustomerForUser(ctx, caller.UserID)
}

// History returns the account's ledger entries, most recent first.
func (s *Service) History(ctx context.Context, h Handle) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, h.ID())
}

// CustomerHistory returns entries across all accounts of a customer, most
// recent first. Employees only.
func (s *Service) CustomerHistory(ctx context.Context, caller Caller, customerID int64) ([]*Transaction, error) {
	if !caller.IsEmployee() {
		return nil, ErrForbidden
	}

	accounts, err := s.repo.ListAccounts(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing customer accounts: %w", err)
	}

	if len(accounts) == 0 {
		return nil, ErrNotFound
	}

	return s.repo.ListCustomerTransactions(ctx, customerID)
}

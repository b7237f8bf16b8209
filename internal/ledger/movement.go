package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MovementParams struct {
	Amount      decimal.Decimal
	Description string
}

// Movement is the outcome of a deposit or withdrawal.
type Movement struct {
	Transaction *Transaction
	Balance     decimal.Decimal
}

type TransferParams struct {
	DestinationNumber string
	Amount            decimal.Decimal
	Description       string
}

// TransferResult holds both legs. Only the source balance is reported; the
// destination usually belongs to someone else.
type TransferResult struct {
	Debit         *Transaction
	Credit        *Transaction
	SourceBalance decimal.Decimal
}

func (s *Service) Deposit(ctx context.Context, h Handle, params MovementParams) (*Movement, error) {
	return s.move(ctx, h, params, KindDeposit, DirectionCredit, "Deposit")
}

// Withdraw debits the account. The balance check runs against the locked row,
// so concurrent withdrawals cannot both pass it.
func (s *Service) Withdraw(ctx context.Context, h Handle, params MovementParams) (*Movement, error) {
	return s.move(ctx, h, params, KindWithdrawal, DirectionDebit, "Withdrawal")
}

func (s *Service) move(
	ctx context.Context,
	h Handle,
	params MovementParams,
	kind Kind,
	dir Direction,
	defaultDescription string,
) (*Movement, error) {
	if err := ValidateAmount(params.Amount); err != nil {
		return nil, err
	}

	uow, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning %s: %w", kind, err)
	}
	defer uow.Rollback()

	acc, err := uow.LockAccount(ctx, h.ID())
	if err != nil {
		return nil, fmt.Errorf("locking account: %w", err)
	}

	entry := &Transaction{
		AccountID:   acc.ID,
		Kind:        kind,
		Direction:   dir,
		Amount:      params.Amount,
		Description: orDefault(params.Description, defaultDescription),
	}
	if err := apply(ctx, uow, acc, entry); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("committing %s: %w", kind, err)
	}

	slog.Info("ledger entry posted",
		"kind", kind,
		"account_id", acc.ID,
		"transaction_id", entry.ID,
		"amount", entry.Amount.StringFixed(Scale),
	)

	s.publish(ctx, entry)

	return &Movement{Transaction: entry, Balance: acc.Balance}, nil
}

// Transfer moves money from the handle's account to the account with the given
// number. Both legs are written in one unit of work and share a correlation id.
func (s *Service) Transfer(ctx context.Context, h Handle, params TransferParams) (*TransferResult, error) {
	if err := ValidateAmount(params.Amount); err != nil {
		return nil, err
	}

	if params.DestinationNumber == h.account.Number {
		return nil, ErrSameAccount
	}

	dest, err := s.repo.GetAccountByNumber(ctx, params.DestinationNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrDestinationNotFound
		}

		return nil, fmt.Errorf("resolving destination: %w", err)
	}

	if dest.ID == h.ID() {
		return nil, ErrSameAccount
	}

	uow, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transfer: %w", err)
	}
	defer uow.Rollback()

	locked, err := lockAccounts(ctx, uow, h.ID(), dest.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrDestinationNotFound
		}

		return nil, err
	}

	src, dst := locked[h.ID()], locked[dest.ID]
	correlation := uuid.New()

	debit := &Transaction{
		AccountID:     src.ID,
		Kind:          KindTransfer,
		Direction:     DirectionDebit,
		Amount:        params.Amount,
		Description:   orDefault(params.Description, "Transfer to "+dst.Number),
		CorrelationID: &correlation,
	}
	if err := apply(ctx, uow, src, debit); err != nil {
		return nil, err
	}

	credit := &Transaction{
		AccountID:     dst.ID,
		Kind:          KindTransfer,
		Direction:     DirectionCredit,
		Amount:        params.Amount,
		Description:   orDefault(params.Description, "Transfer from "+src.Number),
		CorrelationID: &correlation,
	}
	if err := apply(ctx, uow, dst, credit); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}

	slog.Info("transfer posted",
		"correlation_id", correlation,
		"source_account_id", src.ID,
		"destination_account_id", dst.ID,
		"amount", params.Amount.StringFixed(Scale),
	)

	s.publish(ctx, debit, credit)

	return &TransferResult{
		Debit:         debit,
		Credit:        credit,
		SourceBalance: src.Balance,
	}, nil
}

// apply books entry against a locked account: it updates the balance in the
// unit of work, appends the entry and mirrors the new balance into acc.
func apply(ctx context.Context, uow UnitOfWork, acc *Account, entry *Transaction) error {
	balance := acc.Balance.Add(entry.SignedAmount())

	if balance.IsNegative() {
		return ErrInsufficientFunds
	}

	if balance.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: balance would exceed %s", ErrInvalidAmount, maxAmount.String())
	}

	if err := uow.UpdateBalance(ctx, acc.ID, balance); err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}

	if err := uow.AppendTransaction(ctx, entry); err != nil {
		return fmt.Errorf("appending %s entry: %w", entry.Kind, err)
	}

	acc.Balance = balance

	return nil
}

// lockAccounts locks every distinct id in ascending order so that units
// touching the same accounts cannot deadlock each other.
func lockAccounts(ctx context.Context, uow UnitOfWork, ids ...int64) (map[int64]*Account, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	locked := make(map[int64]*Account, len(ordered))

	for _, id := range ordered {
		acc, err := uow.LockAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("locking account %d: %w", id, err)
		}

		locked[id] = acc
	}

	return locked, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}

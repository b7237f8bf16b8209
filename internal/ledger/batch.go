package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Posting is one line of a back-office batch.
type Posting struct {
	Row           int
	AccountNumber string
	Kind          Kind
	Amount        decimal.Decimal
	Description   string
}

type BatchResult struct {
	Transactions []*Transaction
}

// PostBatch books all postings in file order inside a single unit of work.
// The first failing row aborts the batch and nothing is applied.
func (s *Service) PostBatch(ctx context.Context, caller Caller, postings []Posting) (*BatchResult, error) {
	if !caller.IsEmployee() {
		return nil, ErrForbidden
	}

	if len(postings) == 0 {
		return &BatchResult{}, nil
	}

	for _, p := range postings {
		if p.Kind != KindDeposit && p.Kind != KindWithdrawal {
			return nil, &PostingError{Row: p.Row, Err: fmt.Errorf("%w: %q", ErrInvalidKind, p.Kind)}
		}

		if err := ValidateAmount(p.Amount); err != nil {
			return nil, &PostingError{Row: p.Row, Err: err}
		}
	}

	ids := make(map[string]int64)

	for _, p := range postings {
		if _, ok := ids[p.AccountNumber]; ok {
			continue
		}

		acc, err := s.repo.GetAccountByNumber(ctx, p.AccountNumber)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &PostingError{Row: p.Row, Err: ErrNotFound}
			}

			return nil, fmt.Errorf("resolving account %s: %w", p.AccountNumber, err)
		}

		ids[p.AccountNumber] = acc.ID
	}

	uow, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning batch: %w", err)
	}
	defer uow.Rollback()

	all := make([]int64, 0, len(ids))
	for _, id := range ids {
		all = append(all, id)
	}

	locked, err := lockAccounts(ctx, uow, all...)
	if err != nil {
		return nil, err
	}

	entries := make([]*Transaction, 0, len(postings))

	for _, p := range postings {
		acc := locked[ids[p.AccountNumber]]

		entry := &Transaction{
			AccountID: acc.ID,
			Kind:      p.Kind,
			Amount:    p.Amount,
		}

		if p.Kind == KindDeposit {
			entry.Direction = DirectionCredit
			entry.Description = orDefault(p.Description, "Deposit")
		} else {
			entry.Direction = DirectionDebit
			entry.Description = orDefault(p.Description, "Withdrawal")
		}

		if err := apply(ctx, uow, acc, entry); err != nil {
			return nil, &PostingError{Row: p.Row, Err: err}
		}

		entries = append(entries, entry)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}

	slog.Info("batch posted", "postings", len(entries), "accounts", len(locked))

	s.publish(ctx, entries...)

	return &BatchResult{Transactions: entries}, nil
}

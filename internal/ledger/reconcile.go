package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type Reconciliation struct {
	AccountID int64
	Balance   decimal.Decimal
	LedgerSum decimal.Decimal
	Entries   int
	Balanced  bool
}

// Reconcile compares the stored balance with the signed sum of the account's
// ledger entries. The row is locked so no posting can land in between.
func (s *Service) Reconcile(ctx context.Context, h Handle) (*Reconciliation, error) {
	uow, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning reconciliation: %w", err)
	}
	defer uow.Rollback()

	acc, err := uow.LockAccount(ctx, h.ID())
	if err != nil {
		return nil, fmt.Errorf("locking account: %w", err)
	}

	sum, n, err := uow.SumTransactions(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("summing entries: %w", err)
	}

	return &Reconciliation{
		AccountID: acc.ID,
		Balance:   acc.Balance,
		LedgerSum: sum,
		Entries:   n,
		Balanced:  acc.Balance.Equal(sum),
	}, nil
}

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

type OpenParams struct {
	CustomerID     int64 // employees only; customers always open for themselves
	Type           AccountType
	InitialDeposit decimal.Decimal
}

type Opened struct {
	Handle  Handle
	Deposit *Transaction // nil without an initial deposit
}

// Open creates an account with a zero balance and, when an initial deposit is
// given, books it as the account's first deposit in the same unit of work.
func (s *Service) Open(ctx context.Context, caller Caller, params OpenParams) (*Opened, error) {
	if !params.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccountType, params.Type)
	}

	if err := validateOpeningDeposit(params.InitialDeposit); err != nil {
		return nil, err
	}

	customerID, err := s.customerFor(ctx, caller, params.CustomerID)
	if err != nil {
		return nil, err
	}

	uow, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning account opening: %w", err)
	}
	defer uow.Rollback()

	acc := &Account{
		Number:     s.numbers.Next(),
		CustomerID: customerID,
		Type:       params.Type,
		Balance:    decimal.Zero,
	}
	if err := uow.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	var deposit *Transaction

	if params.InitialDeposit.IsPositive() {
		deposit = &Transaction{
			AccountID:   acc.ID,
			Kind:        KindDeposit,
			Direction:   DirectionCredit,
			Amount:      params.InitialDeposit,
			Description: "Initial deposit",
		}
		if err := apply(ctx, uow, acc, deposit); err != nil {
			return nil, err
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("committing account opening: %w", err)
	}

	slog.Info("account opened",
		"account_id", acc.ID,
		"customer_id", acc.CustomerID,
		"type", acc.Type,
		"initial_deposit", params.InitialDeposit.StringFixed(Scale),
	)

	if deposit != nil {
		s.publish(ctx, deposit)
	}

	return &Opened{Handle: Handle{account: *acc}, Deposit: deposit}, nil
}

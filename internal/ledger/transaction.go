package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the business operation that produced a ledger entry.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindTransfer   Kind = "transfer"
)

// Direction tells whether an entry added to or removed from the balance.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Transaction is an immutable ledger entry affecting exactly one account.
// Amount is always positive; the sign comes from Direction.
type Transaction struct {
	ID            int64
	AccountID     int64
	Kind          Kind
	Direction     Direction
	Amount        decimal.Decimal
	Description   string
	CorrelationID *uuid.UUID // shared by both legs of a transfer
	CreatedAt     time.Time
}

// SignedAmount returns the entry's effect on the account balance.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}

	return t.Amount
}

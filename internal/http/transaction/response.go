package transaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/bankadmin/ledger/internal/ledger"
)

// TransactionResponse renders a ledger entry. Amount is unsigned; Direction
// tells whether it was credited or debited.
type TransactionResponse struct {
	ID            int64            `json:"id"`
	AccountID     int64            `json:"account_id"`
	Kind          ledger.Kind      `json:"transaction_type"`
	Direction     ledger.Direction `json:"direction"`
	Amount        string           `json:"amount"`
	Description   string           `json:"description"`
	CorrelationID *uuid.UUID       `json:"correlation_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

type movementResponse struct {
	Message     string              `json:"message"`
	Transaction TransactionResponse `json:"transaction"`
	Balance     string              `json:"balance"`
}

type transferResponse struct {
	Message string              `json:"message"`
	Debit   TransactionResponse `json:"debit"`
	Credit  TransactionResponse `json:"credit"`
	Balance string              `json:"balance"`
}

func ToResponse(tx *ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            tx.ID,
		AccountID:     tx.AccountID,
		Kind:          tx.Kind,
		Direction:     tx.Direction,
		Amount:        tx.Amount.StringFixed(ledger.Scale),
		Description:   tx.Description,
		CorrelationID: tx.CorrelationID,
		CreatedAt:     tx.CreatedAt,
	}
}

func ToResponseList(txs []*ledger.Transaction) []TransactionResponse {
	resp := make([]TransactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = ToResponse(tx)
	}

	return resp
}

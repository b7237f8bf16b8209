package account

import (
	"time"

	"github.com/bankadmin/ledger/internal/http/transaction"
	"github.com/bankadmin/ledger/internal/ledger"
)

type accountResponse struct {
	ID            int64              `json:"id"`
	AccountNumber string             `json:"account_number"`
	CustomerID    int64              `json:"customer_id"`
	AccountType   ledger.AccountType `json:"account_type"`
	Balance       string             `json:"balance"`
	CreatedAt     time.Time          `json:"created_at"`
}

type summaryResponse struct {
	AccountNumber string             `json:"account_number"`
	AccountType   ledger.AccountType `json:"account_type"`
	Balance       string             `json:"balance"`
}

type openResponse struct {
	Message        string                           `json:"message"`
	Account        accountResponse                  `json:"account"`
	InitialDeposit *transaction.TransactionResponse `json:"initial_deposit,omitempty"`
}

type reconciliationResponse struct {
	AccountID int64  `json:"account_id"`
	Balance   string `json:"balance"`
	LedgerSum string `json:"ledger_sum"`
	Entries   int    `json:"entries"`
	Balanced  bool   `json:"balanced"`
}

func toResponse(acc ledger.Account) accountResponse {
	return accountResponse{
		ID:            acc.ID,
		AccountNumber: acc.Number,
		CustomerID:    acc.CustomerID,
		AccountType:   acc.Type,
		Balance:       acc.Balance.StringFixed(ledger.Scale),
		CreatedAt:     acc.CreatedAt,
	}
}

func toResponseList(accounts []*ledger.Account) []accountResponse {
	out := make([]accountResponse, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, toResponse(*acc))
	}

	return out
}

package transaction

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bankadmin/ledger/internal/http/respond"
	"github.com/bankadmin/ledger/internal/ledger"
)

type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/deposit", h.deposit)
	r.Post("/withdraw", h.withdraw)
	r.Post("/transfer", h.transfer)
	r.Get("/customer/{customerId}", h.customerHistory)
	r.Get("/{accountId}", h.history)
}

type movementRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

type transferRequest struct {
	AccountID           int64           `json:"account_id" validate:"required,gt=0"`
	TargetAccountNumber string          `json:"target_account_number" validate:"required,max=32"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description" validate:"max=255"`
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Deposit, "Deposit successful", "deposit")
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Withdraw, "Withdrawal successful", "withdrawal")
}

type moveFunc func(ctx context.Context, h ledger.Handle, params ledger.MovementParams) (*ledger.Movement, error)

func (h *Handler) move(w http.ResponseWriter, r *http.Request, fn moveFunc, message, action string) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	var req movementRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	acc, err := h.svc.Resolve(r.Context(), caller, req.AccountID)
	if err != nil {
		respond.ServiceError(w, r, err, action)
		return
	}

	res, err := fn(r.Context(), acc, ledger.MovementParams{
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respond.ServiceError(w, r, err, action)
		return
	}

	respond.JSON(w, http.StatusOK, movementResponse{
		Message:     message,
		Transaction: ToResponse(res.Transaction),
		Balance:     res.Balance.StringFixed(ledger.Scale),
	})
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	src, err := h.svc.Resolve(r.Context(), caller, req.AccountID)
	if err != nil {
		respond.ServiceError(w, r, err, "transfer")
		return
	}

	res, err := h.svc.Transfer(r.Context(), src, ledger.TransferParams{
		DestinationNumber: req.TargetAccountNumber,
		Amount:            req.Amount,
		Description:       req.Description,
	})
	if err != nil {
		respond.ServiceError(w, r, err, "transfer")
		return
	}

	respond.JSON(w, http.StatusOK, transferResponse{
		Message: "Transfer successful",
		Debit:   ToResponse(res.Debit),
		Credit:  ToResponse(res.Credit),
		Balance: res.SourceBalance.StringFixed(ledger.Scale),
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	id, ok := respond.PathID(w, chi.URLParam(r, "accountId"), "account id")
	if !ok {
		return
	}

	acc, err := h.svc.Resolve(r.Context(), caller, id)
	if err != nil {
		respond.ServiceError(w, r, err, "list transactions")
		return
	}

	txs, err := h.svc.History(r.Context(), acc)
	if err != nil {
		respond.ServiceError(w, r, err, "list transactions")
		return
	}

	respond.JSON(w, http.StatusOK, ToResponseList(txs))
}

func (h *Handler) customerHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	id, ok := respond.PathID(w, chi.URLParam(r, "customerId"), "customer id")
	if !ok {
		return
	}

	txs, err := h.svc.CustomerHistory(r.Context(), caller, id)
	if err != nil {
		respond.ServiceError(w, r, err, "list customer transactions")
		return
	}

	respond.JSON(w, http.StatusOK, ToResponseList(txs))
}

package account

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bankadmin/ledger/internal/http/respond"
	"github.com/bankadmin/ledger/internal/http/transaction"
	"github.com/bankadmin/ledger/internal/ledger"
)

type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.open)
	r.Get("/", h.list)
	r.Get("/by-number/{number}", h.getByNumber)
	r.Get("/{id}", h.get)
	r.Get("/{id}/reconciliation", h.reconcile)
}

type openAccountRequest struct {
	CustomerID     int64           `json:"customer_id" validate:"omitempty,gt=0"`
	AccountType    string          `json:"account_type" validate:"required,oneof=savings current"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	var req openAccountRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	opened, err := h.svc.Open(r.Context(), caller, ledger.OpenParams{
		CustomerID:     req.CustomerID,
		Type:           ledger.AccountType(req.AccountType),
		InitialDeposit: req.InitialDeposit,
	})
	if err != nil {
		respond.ServiceError(w, r, err, "open account")
		return
	}

	resp := openResponse{
		Message: "Account created successfully",
		Account: toResponse(opened.Handle.Account()),
	}

	if opened.Deposit != nil {
		resp.InitialDeposit = new(transaction.ToResponse(opened.Deposit))
	}

	respond.JSON(w, http.StatusCreated, resp)
}

// list serves the caller's own accounts. Employees pass ?customer_id=.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	var customerID int64

	if s := r.URL.Query().Get("customer_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			respond.Error(w, http.StatusBadRequest, "invalid_request", "invalid customer_id")
			return
		}

		customerID = id
	}

	accounts, err := h.svc.ListAccounts(r.Context(), caller, customerID)
	if err != nil {
		respond.ServiceError(w, r, err, "list accounts")
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(accounts))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	id, ok := respond.PathID(w, chi.URLParam(r, "id"), "account id")
	if !ok {
		return
	}

	acc, err := h.svc.Resolve(r.Context(), caller, id)
	if err != nil {
		respond.ServiceError(w, r, err, "get account")
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(acc.Account()))
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	if _, ok := respond.Caller(w, r); !ok {
		return
	}

	summary, err := h.svc.LookupByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		respond.ServiceError(w, r, err, "lookup account")
		return
	}

	respond.JSON(w, http.StatusOK, summaryResponse{
		AccountNumber: summary.Number,
		AccountType:   summary.Type,
		Balance:       summary.Balance.StringFixed(ledger.Scale),
	})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	id, ok := respond.PathID(w, chi.URLParam(r, "id"), "account id")
	if !ok {
		return
	}

	acc, err := h.svc.Resolve(r.Context(), caller, id)
	if err != nil {
		respond.ServiceError(w, r, err, "reconcile account")
		return
	}

	rec, err := h.svc.Reconcile(r.Context(), acc)
	if err != nil {
		respond.ServiceError(w, r, err, "reconcile account")
		return
	}

	respond.JSON(w, http.StatusOK, reconciliationResponse{
		AccountID: rec.AccountID,
		Balance:   rec.Balance.StringFixed(ledger.Scale),
		LedgerSum: rec.LedgerSum.StringFixed(ledger.Scale),
		Entries:   rec.Entries,
		Balanced:  rec.Balanced,
	})
}

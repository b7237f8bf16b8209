package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bankadmin/ledger/internal/auth"
	ledgerHttp "github.com/bankadmin/ledger/internal/http"
	"github.com/bankadmin/ledger/internal/http/account"
	"github.com/bankadmin/ledger/internal/http/posting"
	"github.com/bankadmin/ledger/internal/http/transaction"
	"github.com/bankadmin/ledger/internal/importer"
	"github.com/bankadmin/ledger/internal/importer/postingcsv"
	"github.com/bankadmin/ledger/internal/ledger"
	"github.com/bankadmin/ledger/internal/ledger/memstore"
)

const secret = "router-test-secret"

var (
	employee = ledger.Caller{UserID: 1, Role: ledger.RoleEmployee}
	alice    = ledger.Caller{UserID: 10, Role: ledger.RoleCustomer}
	bob      = ledger.Caller{UserID: 20, Role: ledger.RoleCustomer}
)

type counterNumbers struct{ n atomic.Int64 }

func (c *counterNumbers) Next() string { return strconv.FormatInt(5000+c.n.Add(1), 10) }

func newRouter(repo ledger.Repository) http.Handler {
	svc := ledger.NewService(repo, &counterNumbers{}, nil)

	return ledgerHttp.New(
		ledgerHttp.Options{Timeout: 5 * time.Second, AllowedOrigins: []string{"http://localhost:3000"}},
		auth.NewVerifier(secret),
		svc,
		account.NewHandler(svc),
		transaction.NewHandler(svc),
		posting.NewHandler(importer.NewService(postingcsv.NewParser()), svc),
	)
}

func newMemRouter() http.Handler {
	st := memstore.New()
	st.AddCustomer(1, alice.UserID)
	st.AddCustomer(2, bob.UserID)

	return newRouter(st)
}

func token(t *testing.T, caller ledger.Caller) string {
	t.Helper()

	tok, err := auth.Sign(secret, caller, time.Hour)
	require.NoError(t, err)

	return tok
}

func do(t *testing.T, h http.Handler, caller *ledger.Caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)

		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *caller))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

type openedAccount struct {
	Account struct {
		ID            int64  `json:"id"`
		AccountNumber string `json:"account_number"`
		Balance       string `json:"balance"`
	} `json:"account"`
	InitialDeposit *struct {
		Kind        string `json:"transaction_type"`
		Description string `json:"description"`
	} `json:"initial_deposit"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func openAccount(t *testing.T, h http.Handler, caller ledger.Caller, initial string) openedAccount {
	t.Helper()

	rec := do(t, h, &caller, http.MethodPost, "/api/v1/accounts", map[string]any{
		"account_type":    "current",
		"initial_deposit": initial,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	return decode[openedAccount](t, rec)
}

func TestRouter_Health(t *testing.T) {
	rec := do(t, newMemRouter(), nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RequiresToken(t *testing.T) {
	rec := do(t, newMemRouter(), nil, http.MethodGet, "/api/v1/accounts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_OpenAndList(t *testing.T) {
	h := newMemRouter()

	opened := openAccount(t, h, alice, "25.5")
	assert.Equal(t, "25.50", opened.Account.Balance)
	require.NotNil(t, opened.InitialDeposit)
	assert.Equal(t, "Initial deposit", opened.InitialDeposit.Description)

	rec := do(t, h, &alice, http.MethodGet, "/api/v1/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, h, &bob, http.MethodGet, "/api/v1/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))

	rec = do(t, h, &employee, http.MethodGet, "/api/v1/accounts?customer_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, h, &alice, http.MethodPost, "/api/v1/accounts", map[string]any{"account_type": "checking"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[errorBody](t, rec).Error)

	stranger := ledger.Caller{UserID: 99, Role: ledger.RoleCustomer}
	rec = do(t, h, &stranger, http.MethodPost, "/api/v1/accounts", map[string]any{"account_type": "savings"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AccountAccess(t *testing.T) {
	h := newMemRouter()
	opened := openAccount(t, h, alice, "10")
	path := fmt.Sprintf("/api/v1/accounts/%d", opened.Account.ID)

	assert.Equal(t, http.StatusOK, do(t, h, &alice, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, &employee, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, &bob, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, &alice, http.MethodGet, "/api/v1/accounts/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, &alice, http.MethodGet, "/api/v1/accounts/abc", nil).Code)

	rec := do(t, h, &bob, http.MethodGet, "/api/v1/accounts/by-number/"+opened.Account.AccountNumber, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	summary := decode[map[string]any](t, rec)
	assert.Equal(t, opened.Account.AccountNumber, summary["account_number"])
	assert.NotContains(t, summary, "id")

	rec = do(t, h, &alice, http.MethodGet, path+"/reconciliation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["balanced"])
}

func TestRouter_MoneyMovement(t *testing.T) {
	h := newMemRouter()
	a := openAccount(t, h, alice, "0")
	b := openAccount(t, h, bob, "0")

	type testCase struct {
		name       string
		caller     ledger.Caller
		path       string
		body       map[string]any
		wantStatus int
		wantError  string
		wantBal    string
	}

	tests := []testCase{
		{
			name:       "deposit",
			caller:     alice,
			path:       "/api/v1/transactions/deposit",
			body:       map[string]any{"account_id": a.Account.ID, "amount": "50"},
			wantStatus: http.StatusOK,
			wantBal:    "50.00",
		},
		{
			name:       "numeric amount",
			caller:     alice,
			path:       "/api/v1/transactions/withdraw",
			body:       map[string]any{"account_id": a.Account.ID, "amount": 30},
			wantStatus: http.StatusOK,
			wantBal:    "20.00",
		},
		{
			name:       "overdraft",
			caller:     alice,
			path:       "/api/v1/transactions/withdraw",
			body:       map[string]any{"account_id": a.Account.ID, "amount": "999"},
			wantStatus: http.StatusBadRequest,
			wantError:  "insufficient_funds",
		},
		{
			name:       "missing amount",
			caller:     alice,
			path:       "/api/v1/transactions/deposit",
			body:       map[string]any{"account_id": a.Account.ID},
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
		},
		{
			name:       "missing account id",
			caller:     alice,
			path:       "/api/v1/transactions/deposit",
			body:       map[string]any{"amount": "1"},
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
		},
		{
			name:       "foreign account",
			caller:     bob,
			path:       "/api/v1/transactions/withdraw",
			body:       map[string]any{"account_id": a.Account.ID, "amount": "1"},
			wantStatus: http.StatusForbidden,
			wantError:  "forbidden",
		},
		{
			name:   "transfer",
			caller: alice,
			path:   "/api/v1/transactions/transfer",
			body: map[string]any{
				"account_id":            a.Account.ID,
				"target_account_number": b.Account.AccountNumber,
				"amount":                "20",
			},
			wantStatus: http.StatusOK,
			wantBal:    "0.00",
		},
		{
			name:   "transfer to same account",
			caller: bob,
			path:   "/api/v1/transactions/transfer",
			body: map[string]any{
				"account_id":            b.Account.ID,
				"target_account_number": b.Account.AccountNumber,
				"amount":                "10",
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "same_account",
		},
		{
			name:   "transfer to unknown account",
			caller: bob,
			path:   "/api/v1/transactions/transfer",
			body: map[string]any{
				"account_id":            b.Account.ID,
				"target_account_number": "0000",
				"amount":                "10",
			},
			wantStatus: http.StatusNotFound,
			wantError:  "destination_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, &tt.caller, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode[errorBody](t, rec).Error)
				return
			}

			assert.Equal(t, tt.wantBal, decode[map[string]any](t, rec)["balance"])
		})
	}

	rec := do(t, h, &bob, http.MethodGet, fmt.Sprintf("/api/v1/transactions/%d", b.Account.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	history := decode[[]map[string]any](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "transfer", history[0]["transaction_type"])
	assert.Equal(t, "credit", history[0]["direction"])
	assert.Equal(t, "20.00", history[0]["amount"])

	rec = do(t, h, &bob, http.MethodGet, "/api/v1/transactions/customer/1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, &employee, http.MethodGet, "/api/v1/transactions/customer/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 3)
}

func upload(t *testing.T, h http.Handler, caller ledger.Caller, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "postings.csv")
	require.NoError(t, err)

	_, err = io.Copy(fw, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/postings/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, caller))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestRouter_ImportPostings(t *testing.T) {
	h := newMemRouter()
	a := openAccount(t, h, alice, "10")
	number := a.Account.AccountNumber

	rec := upload(t, h, alice, "account_number;kind;amount\n"+number+";deposit;5\n")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = upload(t, h, employee, "account_number;kind;amount\n"+number+";deposit;5\n"+number+";withdrawal;100\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	failed := decode[errorBody](t, rec)
	assert.Equal(t, "insufficient_funds", failed.Error)
	assert.Contains(t, failed.Message, "row 3")

	rec = upload(t, h, employee, "kind;amount\ndeposit;5\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_file", decode[errorBody](t, rec).Error)

	rec = upload(t, h, employee, "account_number,kind,amount,description\n"+number+",deposit,5,Branch\n")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["posted"])

	rec = do(t, h, &alice, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", a.Account.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "15.00", decode[map[string]any](t, rec)["balance"])
}

func TestRouter_StoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().GetAccount(gomock.Any(), int64(1)).
		Return(&ledger.Account{ID: 1, Number: "A1", CustomerID: 1, Type: ledger.AccountTypeCurrent}, nil)
	repo.EXPECT().Begin(gomock.Any()).
		Return(nil, fmt.Errorf("%w: connection refused", ledger.ErrStoreUnavailable))

	rec := do(t, newRouter(repo), &employee, http.MethodPost, "/api/v1/transactions/deposit", map[string]any{
		"account_id": 1,
		"amount":     "5",
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "store_unavailable", decode[errorBody](t, rec).Error)
}

func TestRouter_UnexpectedErrorIsOpaque(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().GetAccount(gomock.Any(), int64(1)).
		Return(nil, fmt.Errorf("pq: relation \"accounts\" does not exist"))

	rec := do(t, newRouter(repo), &employee, http.MethodGet, "/api/v1/accounts/1", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestRouter_HealthUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().Ping(gomock.Any()).Return(ledger.ErrStoreUnavailable)

	rec := do(t, newRouter(repo), nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

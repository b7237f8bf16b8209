// Package respond holds the JSON plumbing shared by the HTTP handlers: body
// decoding with validation, response encoding and the mapping from ledger
// errors to status codes.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/bankadmin/ledger/internal/auth"
	"github.com/bankadmin/ledger/internal/importer"
	"github.com/bankadmin/ledger/internal/ledger"
)

// RetryAfter is advertised with 503 responses, in seconds.
const RetryAfter = "1"

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: code, Message: message})
}

// Caller returns the authenticated caller, answering 401 when the request
// did not pass through the auth middleware.
func Caller(w http.ResponseWriter, r *http.Request) (ledger.Caller, bool) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized", "access denied")
	}

	return caller, ok
}

// PathID parses a positive integer URL parameter, answering 400 otherwise.
func PathID(w http.ResponseWriter, raw, name string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return 0, false
	}

	return id, true
}

// Decode reads a JSON body into dst and runs its validate tags. Failures are
// written as 400 and reported with ok == false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		Error(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return false
	}

	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}

	return strings.Join(msgs, "; ")
}

// ServiceError maps a ledger error to its status. Unexpected errors are
// logged with the request id and answered with a generic 500.
func ServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var perr *ledger.PostingError
	if errors.As(err, &perr) {
		status, code, msg := classify(perr.Err)
		if status != http.StatusInternalServerError {
			Error(w, status, code, fmt.Sprintf("row %d: %s", perr.Row, msg))
			return
		}
	}

	status, code, msg := classify(err)

	switch status {
	case http.StatusServiceUnavailable:
		slog.Warn("ledger store unavailable",
			"action", action,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		w.Header().Set("Retry-After", RetryAfter)
	case http.StatusInternalServerError:
		slog.Error("internal server error during "+action,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}

	Error(w, status, code, msg)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable", "the ledger is temporarily unavailable, retry later"
	case errors.Is(err, ledger.ErrDestinationNotFound):
		return http.StatusNotFound, "destination_not_found", "destination account not found"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found", "account not found"
	case errors.Is(err, ledger.ErrNoCustomerProfile):
		return http.StatusNotFound, "not_found", "customer profile not found"
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden, "forbidden", "access denied"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusBadRequest, "insufficient_funds", "insufficient funds"
	case errors.Is(err, ledger.ErrSameAccount):
		return http.StatusBadRequest, "same_account", "source and destination accounts are the same"
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidAccountType),
		errors.Is(err, ledger.ErrInvalidKind):
		return http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, importer.ErrMissingHeader),
		errors.Is(err, importer.ErrMissingColumn),
		errors.Is(err, importer.ErrUnknownFormat):
		return http.StatusBadRequest, "invalid_file", err.Error()
	}

	return http.StatusInternalServerError, "internal_error", "internal server error"
}

package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("account not found")
	ErrForbidden           = errors.New("not allowed to act on account")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSameAccount         = errors.New("source and destination accounts are the same")
	ErrDestinationNotFound = errors.New("destination account not found")
	ErrInvalidAccountType  = errors.New("invalid account type")
	ErrInvalidKind         = errors.New("invalid posting kind")
	ErrNoCustomerProfile   = errors.New("customer profile not found")

	// ErrStoreUnavailable marks a unit of work the store could not complete.
	// Nothing was applied, so the operation may be retried.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

// PostingError reports which row of a batch aborted it.
type PostingError struct {
	Row int
	Err error
}

func (e *PostingError) Error() string {
	return fmt.Sprintf("posting row %d: %v", e.Row, e.Err)
}

func (e *PostingError) Unwrap() error {
	return e.Err
}

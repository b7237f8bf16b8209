package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is the product an account was opened as.
type AccountType string

const (
	AccountTypeSavings AccountType = "savings"
	AccountTypeCurrent AccountType = "current"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeSavings, AccountTypeCurrent:
		return true
	}

	return false
}

// Account is a customer account holding a non-negative balance.
type Account struct {
	ID         int64
	Number     string
	CustomerID int64
	Type       AccountType
	Balance    decimal.Decimal
	CreatedAt  time.Time
}

// AccountSummary is what a caller may learn about an account it does not own.
type AccountSummary struct {
	Number  string
	Type    AccountType
	Balance decimal.Decimal
}

// Handle is an account the caller has been authorized to act on.
// Only Service.Resolve and Service.Open produce one.
type Handle struct {
	account Account
}

// Account returns the account snapshot taken at resolution time.
// The balance may be stale; money movements re-read it under lock.
func (h Handle) Account() Account { return h.account }

// ID returns the internal account id.
func (h Handle) ID() int64 { return h.account.ID }

// Role is the privilege level of an authenticated caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
)

// Caller is an authenticated user acting on the ledger.
type Caller struct {
	UserID int64
	Role   Role
}

// IsEmployee reports whether the caller bypasses ownership checks.
func (c Caller) IsEmployee() bool { return c.Role == RoleEmployee }

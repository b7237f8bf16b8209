package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits stored for money.
const Scale = 2

// maxAmount is the first value that no longer fits NUMERIC(15,2).
var maxAmount = decimal.New(1, 13)

// ValidateAmount checks that d is a positive money amount the store can hold.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}

	if !d.Equal(d.Round(Scale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, Scale)
	}

	if d.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, maxAmount.String())
	}

	return nil
}

// ParseAmount parses a decimal string such as "1234.50" and validates it.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}

	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}

	return d, nil
}

func validateOpeningDeposit(d decimal.Decimal) error {
	if d.IsZero() {
		return nil
	}

	if d.IsNegative() {
		return fmt.Errorf("%w: initial deposit cannot be negative", ErrInvalidAmount)
	}

	return ValidateAmount(d)
}

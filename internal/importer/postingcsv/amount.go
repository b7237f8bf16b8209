package postingcsv

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bankadmin/ledger/internal/ledger"
)

// parseAmount accepts "1234.56" as well as the European "1.234,56" that
// spreadsheets in comma-decimal locales export.
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)

	if strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	}

	return ledger.ParseAmount(clean)
}

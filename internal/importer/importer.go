package importer

import (
	"errors"
	"io"

	"github.com/bankadmin/ledger/internal/ledger"
)

// Format names a batch file layout.
type Format string

const (
	FormatCSV Format = "csv"
)

var (
	ErrUnknownFormat = errors.New("unknown batch format")
	ErrMissingHeader = errors.New("missing header row")
	ErrMissingColumn = errors.New("missing required column")
)

type Importer interface {
	Parse(r io.Reader) ([]ledger.Posting, error)
}

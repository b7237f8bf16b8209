package importer

import (
	"fmt"
	"io"

	"github.com/bankadmin/ledger/internal/ledger"
)

type Service struct {
	importers map[Format]Importer
}

func NewService(csv Importer) *Service {
	return &Service{
		importers: map[Format]Importer{
			FormatCSV: csv,
		},
	}
}

// Import parses a batch file. An empty format means CSV.
func (s *Service) Import(format Format, r io.Reader) ([]ledger.Posting, error) {
	if format == "" {
		format = FormatCSV
	}

	imp, ok := s.importers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	return imp.Parse(r)
}

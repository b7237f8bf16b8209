package postingcsv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	enc "github.com/bankadmin/ledger/internal/encoding"
	"github.com/bankadmin/ledger/internal/importer"
	"github.com/bankadmin/ledger/internal/ledger"
)

const (
	colAccount     = "account_number"
	colKind        = "kind"
	colAmount      = "amount"
	colDescription = "description"
)

var requiredCols = []string{colAccount, colKind, colAmount}

// Parser reads posting batches: a header row naming account_number, kind,
// amount and optionally description, in any order, followed by one posting
// per row. Fields are separated by ';' or ','.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

var _ importer.Importer = (*Parser)(nil)

func (p *Parser) Parse(r io.Reader) ([]ledger.Posting, error) {
	utf8r, charset, err := enc.ToUTF8(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	br := bufio.NewReader(utf8r)

	comma, err := sniffComma(br)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	cols, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	var postings []ledger.Posting

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		line, _ := reader.FieldPos(0)

		if blank(row) {
			continue
		}

		posting, err := parseRow(cols, row, line)
		if err != nil {
			return nil, err
		}

		postings = append(postings, posting)
	}

	slog.Debug("parsed posting batch", "charset", charset, "postings", len(postings))

	return postings, nil
}

// sniffComma picks the separator that occurs more often in the first line.
func sniffComma(br *bufio.Reader) (rune, error) {
	for n := 64; ; n *= 2 {
		head, err := br.Peek(n)
		if i := strings.IndexByte(string(head), '\n'); i >= 0 {
			head = head[:i]
		} else if err == nil {
			continue
		}

		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return 0, fmt.Errorf("read header: %w", err)
		}

		if strings.Count(string(head), ",") > strings.Count(string(head), ";") {
			return ',', nil
		}

		return ';', nil
	}
}

// colIndex maps lower-cased column names to their index in the row.
type colIndex map[string]int

func readHeader(reader *csv.Reader) (colIndex, error) {
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, importer.ErrMissingHeader
		}

		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		if blank(row) {
			continue
		}

		cols := make(colIndex)

		for i, cell := range row {
			if name := strings.ToLower(strings.TrimSpace(cell)); name != "" {
				cols[name] = i
			}
		}

		for _, name := range requiredCols {
			if _, ok := cols[name]; !ok {
				return nil, fmt.Errorf("%w: %s", importer.ErrMissingColumn, name)
			}
		}

		return cols, nil
	}
}

func parseRow(cols colIndex, row []string, line int) (ledger.Posting, error) {
	number := cellValue(row, cols[colAccount])
	if number == "" {
		return ledger.Posting{}, &ledger.PostingError{Row: line, Err: ledger.ErrNotFound}
	}

	kind, err := parseKind(cellValue(row, cols[colKind]))
	if err != nil {
		return ledger.Posting{}, &ledger.PostingError{Row: line, Err: err}
	}

	amount, err := parseAmount(cellValue(row, cols[colAmount]))
	if err != nil {
		return ledger.Posting{}, &ledger.PostingError{Row: line, Err: err}
	}

	desc := ""
	if idx, ok := cols[colDescription]; ok {
		desc = cellValue(row, idx)
	}

	return ledger.Posting{
		Row:           line,
		AccountNumber: number,
		Kind:          kind,
		Amount:        amount,
		Description:   desc,
	}, nil
}

func parseKind(s string) (ledger.Kind, error) {
	switch k := ledger.Kind(strings.ToLower(s)); k {
	case ledger.KindDeposit, ledger.KindWithdrawal:
		return k, nil
	}

	return "", fmt.Errorf("%w: %q", ledger.ErrInvalidKind, s)
}

// cellValue safely gets a trimmed cell value from a row.
func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}

	return true
}

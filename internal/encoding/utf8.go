// Package encoding normalises uploaded text files to UTF-8. Back-office
// exports arrive from spreadsheets in whatever charset the workstation uses.
package encoding

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	xenc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Charset names the encoding a stream was decoded from.
type Charset string

const (
	UTF8        Charset = "UTF-8"
	UTF16LE     Charset = "UTF-16LE"
	UTF16BE     Charset = "UTF-16BE"
	Windows1252 Charset = "windows-1252"
	ISO88599    Charset = "ISO-8859-9"
	ISO885915   Charset = "ISO-8859-15"
)

const sniffLen = 4096

var boms = []struct {
	prefix  []byte
	charset Charset
}{
	{[]byte{0xEF, 0xBB, 0xBF}, UTF8},
	{[]byte{0xFF, 0xFE}, UTF16LE},
	{[]byte{0xFE, 0xFF}, UTF16BE},
}

var decoders = map[Charset]xenc.Encoding{
	UTF16LE:     unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	UTF16BE:     unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	Windows1252: charmap.Windows1252,
	ISO88599:    charmap.ISO8859_9,
	ISO885915:   charmap.ISO8859_15,
}

// ToUTF8 wraps r in a reader that yields UTF-8 and reports the charset it
// decoded from. A UTF-8 BOM is dropped. Unknown single-byte input is read as
// Windows-1252.
func ToUTF8(r io.Reader) (io.Reader, Charset, error) {
	br := bufio.NewReaderSize(r, sniffLen)

	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, "", fmt.Errorf("sniffing input: %w", err)
	}

	charset, bomLen := sniff(head)

	if charset == UTF8 {
		if _, err := br.Discard(bomLen); err != nil {
			return nil, "", fmt.Errorf("skipping byte order mark: %w", err)
		}

		return br, UTF8, nil
	}

	return transform.NewReader(br, decoders[charset].NewDecoder()), charset, nil
}

func sniff(head []byte) (Charset, int) {
	for _, b := range boms {
		if bytes.HasPrefix(head, b.prefix) {
			return b.charset, len(b.prefix)
		}
	}

	if utf8.Valid(head) {
		return UTF8, 0
	}

	res, err := chardet.NewTextDetector().DetectBest(head)
	if err != nil {
		return Windows1252, 0
	}

	switch c := Charset(res.Charset); c {
	case UTF8:
		// A multi-byte rune cut at the sniff boundary fails utf8.Valid.
		return UTF8, 0
	case "ISO-8859-1":
		return Windows1252, 0
	case UTF16LE, UTF16BE, Windows1252, ISO88599, ISO885915:
		return c, 0
	}

	return Windows1252, 0
}

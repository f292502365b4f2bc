package parser

import (
	"bufio"
	"bytes"
	"context"
	"io"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/table"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sniffDelimiters are tried, in order, when no delimiter is configured.
var sniffDelimiters = []byte{',', ';', '\t', '|'}

// CSVLoader reads delimited text. The first record is the header. Quoted
// fields may span lines.
type CSVLoader struct {
	cfg Config
}

// NewCSVLoader creates a CSV loader.
func NewCSVLoader(cfg Config) *CSVLoader {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &CSVLoader{cfg: cfg}
}

// Load implements Loader.
func (l *CSVLoader) Load(ctx context.Context, r io.Reader) (*table.Table, error) {
	reader := bufio.NewReaderSize(r, l.cfg.BufferSize)

	header, err := readRecord(reader)
	if err != nil && err != io.EOF {
		return nil, perrors.Wrap(err, perrors.CodeParseFailed, "cannot read CSV header")
	}
	header = bytes.TrimPrefix(trimLineEnding(header), utf8BOM)
	if len(bytes.TrimSpace(header)) == 0 {
		return nil, perrors.NoColumns()
	}

	delim := l.cfg.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(header)
	}
	scanner := NewCSVScanner(delim)

	headerFields := scanner.ScanLine(sanitizeUTF8(header))
	columns := make([]string, len(headerFields))
	for i, f := range headerFields {
		columns[i] = string(bytes.TrimSpace(f))
	}

	var rows [][]string
	line := 1
	for err != io.EOF {
		if cerr := canceled(ctx, FormatCSV); cerr != nil {
			return nil, cerr
		}
		if l.cfg.limitReached(len(rows)) {
			break
		}

		var rec []byte
		rec, err = readRecord(reader)
		if err != nil && err != io.EOF {
			return nil, perrors.ParseError("csv", line, err)
		}
		line++

		rec = trimLineEnding(rec)
		if len(bytes.TrimSpace(rec)) == 0 {
			continue
		}

		fields := scanner.ScanLine(sanitizeUTF8(rec))
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = string(f)
		}
		rows = append(rows, row)
	}

	return table.FromStrings(columns, rows), nil
}

// readRecord reads one logical record. Lines are joined while a quoted
// field is still open.
func readRecord(r *bufio.Reader) ([]byte, error) {
	rec, err := r.ReadBytes('\n')
	for err == nil && bytes.Count(rec, []byte{'"'})%2 == 1 {
		var more []byte
		more, err = r.ReadBytes('\n')
		rec = append(rec, more...)
	}
	if err == io.EOF && len(rec) > 0 {
		return rec, io.EOF
	}
	return rec, err
}

// sniffDelimiter picks the candidate occurring most often outside quotes.
func sniffDelimiter(header []byte) byte {
	counts := make(map[byte]int, len(sniffDelimiters))
	inQuotes := false
	for _, c := range header {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}

	best := byte(',')
	for _, d := range sniffDelimiters {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// trimLineEnding removes trailing \n and \r characters.
func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

// Package table models a raw, schema-less event table.
//
// A Table is an ordered set of named columns over rows of heterogeneous
// cells. Cells are one of: nil, string, int64, float64, bool or time.Time.
// The mining engine never mutates a Table it is handed; it works on Clone.
package table

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Table is a column/row addressable collection of cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New builds a table from column names and rows. Rows shorter than the
// header are padded with nil; longer rows are truncated. Inputs are copied.
func New(columns []string, rows [][]any) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		rows:    make([][]any, len(rows)),
	}
	for i, c := range t.columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
	for i, r := range rows {
		row := make([]any, len(columns))
		copy(row, r)
		t.rows[i] = row
	}
	return t
}

// FromStrings is a convenience constructor for all-string tables.
func FromStrings(columns []string, rows [][]string) *Table {
	cells := make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = v
		}
		cells[i] = row
	}
	return New(columns, cells)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// ColumnIndex returns the position of the first column named name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Cell returns the cell at (row, col).
func (t *Table) Cell(row, col int) any {
	return t.rows[row][col]
}

// Row returns a copy of a row.
func (t *Table) Row(i int) []any {
	return append([]any(nil), t.rows[i]...)
}

// Clone returns a deep copy of the table structure. Cells are immutable
// values so they are shared.
func (t *Table) Clone() *Table {
	return New(t.columns, t.rows)
}

// Rename returns a copy with columns renamed according to mapping.
// Columns absent from mapping keep their names.
func (t *Table) Rename(mapping map[string]string) *Table {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		if n, ok := mapping[c]; ok {
			cols[i] = n
		} else {
			cols[i] = c
		}
	}
	return New(cols, t.rows)
}

// Fingerprint returns a content hash identifying the table. Two tables with
// the same columns and cell values share a fingerprint.
func (t *Table) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(len(t.columns)))
	h.Write(buf[:])
	for _, c := range t.columns {
		writeString(h, c)
	}

	binary.LittleEndian.PutUint64(buf[:], uint64(len(t.rows)))
	h.Write(buf[:])
	for _, r := range t.rows {
		for _, v := range r {
			writeCell(h, v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

type byteWriter interface {
	Write(p []byte) (int, error)
}

func writeString(w byteWriter, s string) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
	w.Write(buf[:])
	w.Write([]byte(s))
}

func writeCell(w byteWriter, v any) {
	var buf [8]byte
	switch x := v.(type) {
	case nil:
		w.Write([]byte{0})
	case string:
		w.Write([]byte{1})
		writeString(w, x)
	case int64:
		w.Write([]byte{2})
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
		w.Write(buf[:])
	case float64:
		w.Write([]byte{3})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		w.Write(buf[:])
	case bool:
		if x {
			w.Write([]byte{4, 1})
		} else {
			w.Write([]byte{4, 0})
		}
	case time.Time:
		w.Write([]byte{5})
		binary.LittleEndian.PutUint64(buf[:], uint64(x.UnixNano()))
		w.Write(buf[:])
	default:
		w.Write([]byte{6})
		writeString(w, fmt.Sprint(x))
	}
}

// String renders a cell as text. nil renders as the empty string.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// IsBlank reports whether a cell is nil or whitespace-only text.
func IsBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	default:
		return false
	}
}

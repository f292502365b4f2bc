package parser

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/table"
)

// JSONLoader reads a JSON array of objects or newline-delimited JSON through
// DuckDB's read_json_auto. Object keys become columns.
type JSONLoader struct {
	cfg    Config
	format Format
}

// NewJSONLoader creates a JSON loader for FormatJSON or FormatJSONL.
func NewJSONLoader(cfg Config, format Format) *JSONLoader {
	return &JSONLoader{cfg: cfg, format: format}
}

// Load implements Loader. DuckDB reads from a path, so the input is spooled
// to a temporary file unless it already is one.
func (l *JSONLoader) Load(ctx context.Context, r io.Reader) (*table.Table, error) {
	path, cleanup, err := spool(r, "processlens-*.json")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeSourceFailed, "cannot open DuckDB")
	}
	defer db.Close()

	query := fmt.Sprintf(`SELECT * FROM read_json_auto('%s', format='%s', maximum_object_size=33554432)`,
		escapePath(path), l.duckFormat())
	if l.cfg.MaxRows > 0 {
		query += fmt.Sprintf(" LIMIT %d", l.cfg.MaxRows)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		if cerr := canceled(ctx, l.format); cerr != nil {
			return nil, cerr
		}
		return nil, perrors.Wrap(err, perrors.CodeParseFailed, "cannot read JSON").
			WithContext("format", l.format.String())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeParseFailed, "cannot read JSON columns")
	}
	if len(columns) == 0 {
		return nil, perrors.NoColumns()
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, perrors.ParseError(l.format.String(), len(data)+1, err)
		}
		for i, v := range values {
			values[i] = plainValue(v)
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.Wrap(err, perrors.CodeParseFailed, "cannot read JSON rows")
	}

	return table.New(columns, data), nil
}

func (l *JSONLoader) duckFormat() string {
	if l.format == FormatJSONL {
		return "newline_delimited"
	}
	return "auto"
}

// plainValue narrows DuckDB scan results to the cell types the table uses.
func plainValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, float64, time.Time:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// spool returns a file path holding the contents of r.
func spool(r io.Reader, pattern string) (string, func(), error) {
	if f, ok := r.(*os.File); ok {
		return f.Name(), func() {}, nil
	}
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, perrors.Wrap(err, perrors.CodeSourceFailed, "cannot create temporary file")
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, perrors.Wrap(err, perrors.CodeSourceFailed, "cannot spool input")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, perrors.Wrap(err, perrors.CodeSourceFailed, "cannot spool input")
	}
	return tmp.Name(), cleanup, nil
}

// escapePath escapes a path for DuckDB SQL.
func escapePath(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

package parser

import (
	"bytes"
	"context"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/table"
)

// ParquetLoader reads a Parquet file through Apache Arrow. String, integer,
// float, boolean and timestamp columns keep their Go types; anything else is
// rendered with Arrow's value formatting. Nulls become nil.
type ParquetLoader struct {
	cfg   Config
	alloc memory.Allocator
}

// NewParquetLoader creates a Parquet loader.
func NewParquetLoader(cfg Config) *ParquetLoader {
	return &ParquetLoader{cfg: cfg, alloc: memory.DefaultAllocator}
}

// Load implements Loader. Parquet needs random access, so a reader that is
// not an io.ReaderAt and io.Seeker is buffered in memory first.
func (l *ParquetLoader) Load(ctx context.Context, r io.Reader) (*table.Table, error) {
	src, ok := r.(interface {
		io.ReaderAt
		io.ReadSeeker
	})
	if !ok {
		buf, err := io.ReadAll(r)
		if err != nil {
			return nil, perrors.Wrap(err, perrors.CodeSourceFailed, "cannot read parquet input")
		}
		src = bytes.NewReader(buf)
	}

	pq, err := file.NewParquetReader(src)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeInvalidFormat, "cannot open parquet file")
	}
	defer pq.Close()

	reader, err := pqarrow.NewFileReader(pq, pqarrow.ArrowReadProperties{
		Parallel:  true,
		BatchSize: 8192,
	}, l.alloc)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeInvalidFormat, "cannot create arrow reader")
	}

	tbl, err := reader.ReadTable(ctx)
	if err != nil {
		if cerr := canceled(ctx, FormatParquet); cerr != nil {
			return nil, cerr
		}
		return nil, perrors.Wrap(err, perrors.CodeParseFailed, "cannot read parquet table")
	}
	defer tbl.Release()

	schema := tbl.Schema()
	columns := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		columns[i] = f.Name
	}
	if len(columns) == 0 {
		return nil, perrors.NoColumns()
	}

	var rows [][]any
	tr := array.NewTableReader(tbl, 8192)
	defer tr.Release()
	for tr.Next() {
		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			if l.cfg.limitReached(len(rows)) {
				return table.New(columns, rows), nil
			}
			row := make([]any, rec.NumCols())
			for c := range row {
				row[c] = arrowValue(rec.Column(c), i)
			}
			rows = append(rows, row)
		}
	}
	return table.New(columns, rows), nil
}

// arrowValue converts element i of col to a plain Go value.
func arrowValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Boolean:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	default:
		return col.ValueStr(i)
	}
}

// Package parser loads event log tables from CSV, TSV, XLSX, Parquet, JSON
// and XES files.
//
// Every loader produces a *table.Table whose first row is the header. Cell
// values keep the type the format provides (strings for text formats, typed
// values for Parquet and JSON, time.Time for XLSX date cells); interpretation is left to the normalizer.
package parser

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/table"
)

// Loader reads a whole table from r.
type Loader interface {
	Load(ctx context.Context, r io.Reader) (*table.Table, error)
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatXLSX
	FormatParquet
	FormatJSON
	FormatJSONL
	FormatXES
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatTSV:
		return "tsv"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	case FormatJSON:
		return "json"
	case FormatJSONL:
		return "jsonl"
	case FormatXES:
		return "xes"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv", "txt":
		return FormatCSV
	case "tsv", "tab":
		return FormatTSV
	case "xlsx", "xlsm", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	case "json":
		return FormatJSON
	case "jsonl", "ndjson":
		return FormatJSONL
	case "xes":
		return FormatXES
	default:
		return FormatUnknown
	}
}

// DetectFormat guesses the format from a file name, looking through a
// trailing .gz.
func DetectFormat(path string) Format {
	return ParseFormat(filepath.Ext(StripCompression(path)))
}

// Config holds loader settings.
type Config struct {
	// Delimiter is the CSV field delimiter. Zero sniffs it from the header.
	Delimiter byte

	// BufferSize is the read buffer for line-oriented formats.
	BufferSize int

	// Sheet is the XLSX sheet to read. Empty reads the first sheet.
	Sheet string

	// MaxRows stops loading after this many data rows. Zero means no limit.
	MaxRows int

	// Location is the zone of date cells that carry no offset (XLSX). Nil
	// means UTC.
	Location *time.Location
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 64 * 1024,
	}
}

// NewLoader creates a loader for format.
func NewLoader(format Format, cfg Config) (Loader, error) {
	switch format {
	case FormatCSV:
		return NewCSVLoader(cfg), nil
	case FormatTSV:
		cfg.Delimiter = '\t'
		return NewCSVLoader(cfg), nil
	case FormatXLSX:
		return NewXLSXLoader(cfg), nil
	case FormatParquet:
		return NewParquetLoader(cfg), nil
	case FormatJSON, FormatJSONL:
		return NewJSONLoader(cfg, format), nil
	case FormatXES:
		return NewXESLoader(cfg), nil
	default:
		return nil, perrors.New(perrors.CodeInvalidFormat, "unsupported input format").
			WithContext("format", format.String())
	}
}

// Load reads a local file, choosing the loader from its extension.
func Load(ctx context.Context, path string, cfg Config) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.FileNotFound(path)
		}
		return nil, perrors.Wrap(err, perrors.CodeSourceFailed, "cannot open file").
			WithContext("path", path)
	}
	defer f.Close()

	return LoadReader(ctx, path, f, cfg)
}

// LoadReader reads r with the loader matching name's extension. Gzip input
// (name ending in .gz) is decompressed on the fly.
func LoadReader(ctx context.Context, name string, r io.Reader, cfg Config) (*table.Table, error) {
	format := DetectFormat(name)
	loader, err := NewLoader(format, cfg)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeInvalidFormat, "cannot load file").
			WithContext("path", name)
	}

	if IsGzip(name) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, perrors.Wrap(err, perrors.CodeInvalidFormat, "invalid gzip stream").
				WithContext("path", name)
		}
		defer zr.Close()
		r = zr
	}
	return loader.Load(ctx, r)
}

// IsGzip reports whether name indicates gzip compression.
func IsGzip(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gz")
}

// StripCompression removes a trailing .gz from name.
func StripCompression(name string) string {
	if IsGzip(name) {
		return name[:len(name)-3]
	}
	return name
}

// limitReached reports whether n data rows satisfy cfg.MaxRows.
func (c Config) limitReached(n int) bool {
	return c.MaxRows > 0 && n >= c.MaxRows
}

func canceled(ctx context.Context, format Format) error {
	select {
	case <-ctx.Done():
		return perrors.Wrap(ctx.Err(), perrors.CodeContextCanceled, "load canceled").
			WithContext("format", format.String())
	default:
		return nil
	}
}

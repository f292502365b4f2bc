package parser

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/table"
)

// XLSXLoader reads one worksheet of an Excel workbook. Cells are read raw;
// numeric cells with a date or time number format become time.Time in the
// configured location, everything else stays text.
type XLSXLoader struct {
	cfg Config
}

// NewXLSXLoader creates an XLSX loader.
func NewXLSXLoader(cfg Config) *XLSXLoader {
	return &XLSXLoader{cfg: cfg}
}

// xlsxRow is a data row and its 1-based sheet row number.
type xlsxRow struct {
	num   int
	cells []string
}

// Load implements Loader.
func (l *XLSXLoader) Load(ctx context.Context, r io.Reader) (*table.Table, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeInvalidFormat, "cannot open workbook")
	}
	defer xl.Close()

	sheet, err := l.sheetName(xl)
	if err != nil {
		return nil, err
	}

	header, raw, err := l.readRows(ctx, xl, sheet)
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}
	if len(columns) == 0 {
		return nil, perrors.NoColumns().WithContext("sheet", sheet)
	}

	dates := newDateCells(xl, sheet, l.cfg.Location)
	data := make([][]any, len(raw))
	for i, row := range raw {
		cells := make([]any, len(row.cells))
		for c, v := range row.cells {
			cells[c] = dates.value(c+1, row.num, v)
		}
		data[i] = cells
	}
	return table.New(columns, data), nil
}

// readRows streams the header and the non-empty data rows of sheet.
func (l *XLSXLoader) readRows(ctx context.Context, xl *excelize.File, sheet string) ([]string, []xlsxRow, error) {
	rows, err := xl.Rows(sheet)
	if err != nil {
		return nil, nil, perrors.Wrap(err, perrors.CodeParseFailed, "cannot read sheet").
			WithContext("sheet", sheet)
	}
	defer rows.Close()

	opts := excelize.Options{RawCellValue: true}
	if !rows.Next() {
		return nil, nil, perrors.NoColumns().WithContext("sheet", sheet)
	}
	header, err := rows.Columns(opts)
	if err != nil {
		return nil, nil, perrors.ParseError("xlsx", 1, err)
	}

	var data []xlsxRow
	rowNum := 1
	for rows.Next() {
		if cerr := canceled(ctx, FormatXLSX); cerr != nil {
			return nil, nil, cerr
		}
		if l.cfg.limitReached(len(data)) {
			break
		}
		rowNum++

		cells, err := rows.Columns(opts)
		if err != nil {
			return nil, nil, perrors.ParseError("xlsx", rowNum, err)
		}
		if isEmptyRow(cells) {
			continue
		}
		data = append(data, xlsxRow{num: rowNum, cells: cells})
	}
	if err := rows.Error(); err != nil {
		return nil, nil, perrors.Wrap(err, perrors.CodeParseFailed, "cannot read sheet").
			WithContext("sheet", sheet)
	}
	return header, data, nil
}

// sheetName returns the configured sheet or the first one.
func (l *XLSXLoader) sheetName(xl *excelize.File) (string, error) {
	sheets := xl.GetSheetList()
	if l.cfg.Sheet != "" {
		for _, s := range sheets {
			if s == l.cfg.Sheet {
				return s, nil
			}
		}
		return "", perrors.New(perrors.CodeInvalidFormat, "sheet not found").
			WithContext("sheet", l.cfg.Sheet).
			WithContext("available", strings.Join(sheets, ", "))
	}
	if len(sheets) == 0 {
		return "", perrors.New(perrors.CodeInvalidFormat, "workbook has no sheets")
	}
	return sheets[0], nil
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// dateCells converts serial date cells of one sheet. Styles are looked up
// once per style index.
type dateCells struct {
	xl       *excelize.File
	sheet    string
	loc      *time.Location
	date1904 bool
	styles   map[int]bool
}

func newDateCells(xl *excelize.File, sheet string, loc *time.Location) *dateCells {
	if loc == nil {
		loc = time.UTC
	}
	d := &dateCells{xl: xl, sheet: sheet, loc: loc, styles: make(map[int]bool)}
	if props, err := xl.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

// value returns the cell at col, row as time.Time when it is a serial number
// under a date format, and as its raw text otherwise.
func (d *dateCells) value(col, row int, raw string) any {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || serial < 0 {
		return raw
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	idx, err := d.xl.GetCellStyle(d.sheet, axis)
	if err != nil || !d.isDateStyle(idx) {
		return raw
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return raw
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), d.loc)
}

func (d *dateCells) isDateStyle(idx int) bool {
	if is, ok := d.styles[idx]; ok {
		return is
	}
	is := false
	if style, err := d.xl.GetStyle(idx); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			is = isDateFormatCode(*style.CustomNumFmt)
		} else {
			is = isBuiltinDateFormat(style.NumFmt)
		}
	}
	d.styles[idx] = is
	return is
}

// isBuiltinDateFormat reports whether a built-in number format id shows a
// date or time, including the CJK locale ids.
func isBuiltinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom format code has date or time
// tokens outside quoted literals, escapes and bracketed sections.
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			inBracket = ch != ']'
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		case ch == '\\':
			i++
		default:
			switch ch | 0x20 {
			case 'y', 'm', 'd', 'h', 's':
				return true
			}
		}
	}
	return false
}

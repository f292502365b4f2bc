// Package timeparse parses timestamps written in heterogeneous formats.
//
// A single column may mix ISO-8601, slash/dash/dot separated numeric dates
// and month-name forms. Ambiguous numeric dates such as 03/04/2024 are read
// day-first unless the parser is configured otherwise; a date that cannot be
// day-first (04/25/2024) falls back to month-first.
package timeparse

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp indicates a value that matches no supported format.
var ErrInvalidTimestamp = errors.New("invalid timestamp format")

// Textual layouts tried after the numeric fast path.
var textLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
	time.UnixDate,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"January 2, 2006 15:04:05",
	"January 2, 2006",
	"2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04",
	"2 Jan 2006",
	"2 January 2006 15:04:05",
	"2 January 2006",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006 15:04",
	"02-Jan-2006",
	"2006-Jan-02",
}

// Clock layouts for the time-of-day part following a numeric date.
var clockLayouts = []string{
	"15:04:05Z07:00",
	"15:04:05Z0700",
	"15:04:05 Z07:00",
	"15:04:05 -0700",
	"15:04:05 MST",
	"15:04:05",
	"15:04Z07:00",
	"15:04 -0700",
	"15:04",
	"3:04:05 PM",
	"3:04:05PM",
	"3:04 PM",
	"3:04PM",
	"15",
}

// Parser converts cell values to instants.
type Parser struct {
	dayFirst bool
	loc      *time.Location
}

// Option configures a Parser.
type Option func(*Parser)

// WithDayFirst sets whether ambiguous numeric dates are read day-first.
func WithDayFirst(dayFirst bool) Option {
	return func(p *Parser) { p.dayFirst = dayFirst }
}

// WithLocation sets the zone assumed for values without an explicit offset.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// New creates a day-first parser assuming UTC for zone-less values.
func New(opts ...Option) *Parser {
	p := &Parser{dayFirst: true, loc: time.UTC}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseCell parses a table cell. time.Time cells are returned unchanged;
// strings are parsed; everything else is invalid.
func (p *Parser) ParseCell(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, ErrInvalidTimestamp
		}
		return x, nil
	case string:
		return p.Parse(x)
	case []byte:
		return p.Parse(string(x))
	default:
		return time.Time{}, ErrInvalidTimestamp
	}
}

// Parse parses a single textual timestamp.
func (p *Parser) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}

	if t, ok := p.parseNumericDate(s); ok {
		return t, nil
	}

	for _, layout := range textLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

// parseNumericDate handles "<date>[T| ]<clock>" where date has three numeric
// fields separated by '-', '/' or '.'.
func (p *Parser) parseNumericDate(s string) (time.Time, bool) {
	datePart, clockPart := splitDateClock(s)

	fields, ok := splitDateFields(datePart)
	if !ok {
		return time.Time{}, false
	}

	var year, month, day int
	if len(fields[0]) == 4 {
		// Year-first is never ambiguous.
		year, month, day = atoi(fields[0]), atoi(fields[1]), atoi(fields[2])
	} else {
		if len(fields[2]) != 4 && len(fields[2]) != 2 {
			return time.Time{}, false
		}
		year = atoi(fields[2])
		if len(fields[2]) == 2 {
			year = expandYear(year)
		}
		a, b := atoi(fields[0]), atoi(fields[1])
		day, month, ok = resolveDayMonth(a, b, p.dayFirst)
		if !ok {
			return time.Time{}, false
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	hour, minute, second, nsec := 0, 0, 0, 0
	loc := p.loc
	if clockPart != "" {
		clock, ok := parseClock(clockPart)
		if !ok {
			return time.Time{}, false
		}
		hour, minute, second, nsec = clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond()
		if hasZone(clockPart) {
			loc = clock.Location()
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc)
	// time.Date normalizes out-of-range days (31 Feb); reject those.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// resolveDayMonth orders two leading date fields. The preferred reading is
// used when valid; otherwise the swapped reading is tried.
func resolveDayMonth(a, b int, dayFirst bool) (day, month int, ok bool) {
	first := func(d, m int) bool { return d >= 1 && d <= 31 && m >= 1 && m <= 12 }
	if dayFirst {
		if first(a, b) {
			return a, b, true
		}
		if first(b, a) {
			return b, a, true
		}
		return 0, 0, false
	}
	if first(b, a) {
		return b, a, true
	}
	if first(a, b) {
		return a, b, true
	}
	return 0, 0, false
}

func splitDateClock(s string) (string, string) {
	if i := strings.IndexAny(s, "T "); i > 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

func splitDateFields(s string) ([]string, bool) {
	var sep byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' || c == '/' || c == '.' {
			sep = c
			break
		}
	}
	if sep == 0 {
		return nil, false
	}
	fields := strings.Split(s, string(sep))
	if len(fields) != 3 {
		return nil, false
	}
	for _, f := range fields {
		if f == "" || len(f) > 4 || !isDigits(f) {
			return nil, false
		}
	}
	return fields, true
}

// parseClock matches s against clockLayouts. Meridiem markers are
// case-insensitive.
func parseClock(s string) (time.Time, bool) {
	s = strings.ToUpper(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// hasZone reports whether a clock string carries an explicit zone.
func hasZone(s string) bool {
	if strings.HasSuffix(s, "Z") {
		return true
	}
	// An offset sign after the seconds field.
	if i := strings.LastIndexAny(s, "+-"); i > 0 {
		return true
	}
	upper := strings.ToUpper(s)
	return strings.HasSuffix(upper, " UTC") || strings.HasSuffix(upper, " GMT")
}

func expandYear(y int) int {
	if y < 69 {
		return 2000 + y
	}
	return 1900 + y
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

package timeparse

import (
	"testing"
	"time"
)

func TestParse_MixedFormats(t *testing.T) {
	p := New()
	utc := func(y int, m time.Month, d, hh, mm, ss int) time.Time {
		return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
	}

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-05", utc(2024, 1, 5, 0, 0, 0)},
		{"2024-01-05 10:30:00", utc(2024, 1, 5, 10, 30, 0)},
		{"2024-01-05T10:30:00Z", utc(2024, 1, 5, 10, 30, 0)},
		{"2024/01/05 10:30", utc(2024, 1, 5, 10, 30, 0)},
		{"03/04/2024", utc(2024, 4, 3, 0, 0, 0)},
		{"03/04/2024 08:15:00", utc(2024, 4, 3, 8, 15, 0)},
		{"04/25/2024", utc(2024, 4, 25, 0, 0, 0)},
		{"25-12-2023 23:59", utc(2023, 12, 25, 23, 59, 0)},
		{"01.02.2023", utc(2023, 2, 1, 0, 0, 0)},
		{"5/1/24", utc(2024, 1, 5, 0, 0, 0)},
		{"Jan 2, 2006", utc(2006, 1, 2, 0, 0, 0)},
		{"2 January 2006", utc(2006, 1, 2, 0, 0, 0)},
		{"02-Jan-2006 15:04:05", utc(2006, 1, 2, 15, 4, 5)},
		{"03/04/2024 3:04 PM", utc(2024, 4, 3, 15, 4, 0)},
		{"  2024-01-05  ", utc(2024, 1, 5, 0, 0, 0)},
	}

	for _, tt := range tests {
		got, err := p.Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParse_Offsets(t *testing.T) {
	p := New()
	got, err := p.Parse("2024-01-05T10:30:00.250+02:00")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 1, 5, 8, 30, 0, 250_000_000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	tests := map[string]time.Time{
		"2024-01-05 10:00:00 +0100":  time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC),
		"2024-01-05 10:00 -0200":     time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC),
		"2024-01-05 10:00:00 +01:00": time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC),
	}
	for in, want := range tests {
		got, err := p.Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParse_Meridiem(t *testing.T) {
	p := New()
	for _, in := range []string{"2024-01-05 3:30 pm", "2024-01-05 3:30:00 PM", "2024-01-05 3:30pm"} {
		got, err := p.Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): %v", in, err)
			continue
		}
		if got.Hour() != 15 || got.Minute() != 30 {
			t.Errorf("Parse(%q) = %v", in, got)
		}
	}
}

func TestParse_MonthFirst(t *testing.T) {
	p := New(WithDayFirst(false))
	got, err := p.Parse("03/04/2024")
	if err != nil {
		t.Fatal(err)
	}
	if got.Month() != time.March || got.Day() != 4 {
		t.Errorf("month-first parse = %v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	p := New()
	for _, in := range []string{
		"",
		"   ",
		"not a date",
		"2024-13-01",
		"31/02/2024",
		"32/13/2024",
		"12345",
		"2024-01-05 25:99",
	} {
		if _, err := p.Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestParseCell(t *testing.T) {
	p := New()
	ts := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

	if got, err := p.ParseCell(ts); err != nil || !got.Equal(ts) {
		t.Errorf("time.Time cell: got %v, %v", got, err)
	}
	if _, err := p.ParseCell(time.Time{}); err == nil {
		t.Error("zero time should be invalid")
	}
	if _, err := p.ParseCell(nil); err == nil {
		t.Error("nil should be invalid")
	}
	if _, err := p.ParseCell(int64(5)); err == nil {
		t.Error("integers are not timestamps")
	}
	if _, err := p.ParseCell("2020-06-01 12:00:00"); err != nil {
		t.Errorf("string cell: %v", err)
	}
}

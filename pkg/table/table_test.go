package table

import (
	"math"
	"testing"
	"time"
)

func TestNew_CopiesAndPads(t *testing.T) {
	rows := [][]any{{"1", "a"}, {"2"}}
	tbl := New([]string{"case", "act"}, rows)

	rows[0][0] = "changed"
	if tbl.Cell(0, 0) != "1" {
		t.Error("table should not share row storage with the caller")
	}
	if tbl.Cell(1, 1) != nil {
		t.Errorf("short row should be padded with nil, got %v", tbl.Cell(1, 1))
	}
	if tbl.NumRows() != 2 || tbl.NumColumns() != 2 {
		t.Errorf("unexpected shape %dx%d", tbl.NumRows(), tbl.NumColumns())
	}
}

func TestColumnIndex_FirstDuplicateWins(t *testing.T) {
	tbl := FromStrings([]string{"id", "x", "id"}, nil)
	i, ok := tbl.ColumnIndex("id")
	if !ok || i != 0 {
		t.Errorf("ColumnIndex(id) = %d, %v", i, ok)
	}
	if _, ok := tbl.ColumnIndex("missing"); ok {
		t.Error("missing column should not be found")
	}
}

func TestRename_LeavesOriginalUntouched(t *testing.T) {
	tbl := FromStrings([]string{"Case", "Task", "Other"}, [][]string{{"1", "a", "x"}})
	renamed := tbl.Rename(map[string]string{"Case": "case_id", "Task": "activity"})

	want := []string{"case_id", "activity", "Other"}
	got := renamed.Columns()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("renamed columns = %v, want %v", got, want)
		}
	}
	if tbl.Columns()[0] != "Case" {
		t.Error("Rename mutated the source table")
	}
	if renamed.Cell(0, 2) != "x" {
		t.Error("untouched columns must keep their values")
	}
}

func TestFingerprint(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := New([]string{"a", "b"}, [][]any{{"x", int64(1)}, {ts, nil}})
	b := New([]string{"a", "b"}, [][]any{{"x", int64(1)}, {ts, nil}})
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal tables should share a fingerprint")
	}

	c := New([]string{"a", "b"}, [][]any{{"x", "1"}, {ts, nil}})
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("int64(1) and \"1\" should hash differently")
	}

	d := New([]string{"b", "a"}, [][]any{{"x", int64(1)}, {ts, nil}})
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("column names must be part of the fingerprint")
	}
}

func TestString_AndIsBlank(t *testing.T) {
	cases := []struct {
		in    any
		want  string
		blank bool
	}{
		{nil, "", true},
		{"  ", "  ", true},
		{"abc", "abc", false},
		{int64(42), "42", false},
		{1.5, "1.5", false},
		{true, "true", false},
		{math.NaN(), "NaN", true},
	}
	for _, tc := range cases {
		if got := String(tc.in); got != tc.want {
			t.Errorf("String(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if got := IsBlank(tc.in); got != tc.blank {
			t.Errorf("IsBlank(%v) = %v, want %v", tc.in, got, tc.blank)
		}
	}
}

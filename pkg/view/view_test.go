package view

import (
	"reflect"
	"testing"

	"github.com/logflow/processlens/pkg/community"
	"github.com/logflow/processlens/pkg/dfg"
	perrors "github.com/logflow/processlens/pkg/errors"
)

func fixture(t *testing.T) (*dfg.Graph, *community.Partition) {
	t.Helper()
	g := dfg.FromEdges(nil, []dfg.Edge{
		{From: "A", To: "B", Weight: 3},
		{From: "B", To: "C", Weight: 2},
		{From: "B", To: "D", Weight: 1},
		{From: "C", To: "C", Weight: 1},
	})
	p, err := community.NewPartition(map[int][]string{0: {"A", "B"}, 1: {"C"}, 2: {"D"}})
	if err != nil {
		t.Fatal(err)
	}
	return g, p
}

func TestProject_AllIsIdentity(t *testing.T) {
	g, p := fixture(t)
	v, err := Project(g, p, All)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Graph.Equal(g) {
		t.Error("ALL view should equal the input graph")
	}
	if !v.Partition.Equal(p) {
		t.Error("ALL view should keep the full partition")
	}
}

func TestProject_Subprocess(t *testing.T) {
	g, p := fixture(t)

	v, err := Project(g, p, Subprocess(0))
	if err != nil {
		t.Fatal(err)
	}
	want := []dfg.Edge{{From: "A", To: "B", Weight: 3}}
	if got := v.Graph.Edges(); !reflect.DeepEqual(got, want) {
		t.Errorf("edges = %v, want %v", got, want)
	}
	if got := v.Partition.Map(); !reflect.DeepEqual(got, map[int][]string{0: {"A", "B"}}) {
		t.Errorf("sub-partition = %v", got)
	}

	v, err = Project(g, p, Subprocess(1))
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Graph.Edges(); !reflect.DeepEqual(got, []dfg.Edge{{From: "C", To: "C", Weight: 1}}) {
		t.Errorf("self-loop should be kept, got %v", got)
	}
	if s := v.Stats(); s.Activities != 1 || s.Edges != 1 || s.Communities != 1 || s.Transitions != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	if g.NumEdges() != 4 || p.Len() != 3 {
		t.Error("projection modified its inputs")
	}
}

func TestProject_UnknownID(t *testing.T) {
	g, p := fixture(t)

	v, err := Project(g, p, Subprocess(42))
	if v != nil || !perrors.IsCode(err, perrors.CodeCommunityNotFound) {
		t.Fatalf("Project(42) = %v, %v", v, err)
	}

	v, err = ProjectOrAll(g, p, Subprocess(42))
	if err == nil {
		t.Error("ProjectOrAll should still report the failure")
	}
	if !v.Selection.IsAll() || !v.Graph.Equal(g) {
		t.Error("ProjectOrAll should fall back to the whole view")
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		in      string
		want    Selection
		wantErr bool
	}{
		{"ALL", All, false},
		{"all", All, false},
		{"", All, false},
		{" 3 ", Subprocess(3), false},
		{"0", Subprocess(0), false},
		{"-1", Selection{}, true},
		{"first", Selection{}, true},
	}
	for _, tt := range tests {
		got, err := ParseSelection(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSelection(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSelection(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if All.String() != "ALL" || Subprocess(2).String() != "2" {
		t.Error("String() mismatch")
	}
}

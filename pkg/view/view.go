// Package view projects a mined graph onto the whole process or onto one
// subprocess.
package view

import (
	"strconv"
	"strings"

	"github.com/logflow/processlens/pkg/community"
	"github.com/logflow/processlens/pkg/dfg"
	perrors "github.com/logflow/processlens/pkg/errors"
)

// Selection names what to project: the whole process or a community id.
type Selection struct {
	id  int
	all bool
}

// All selects the whole process.
var All = Selection{all: true}

// Subprocess selects community id.
func Subprocess(id int) Selection {
	return Selection{id: id}
}

// IsAll reports whether s selects the whole process.
func (s Selection) IsAll() bool { return s.all }

// ID returns the selected community id. It is meaningless for All.
func (s Selection) ID() int { return s.id }

func (s Selection) String() string {
	if s.all {
		return "ALL"
	}
	return strconv.Itoa(s.id)
}

// ParseSelection reads "ALL" (any case) or a non-negative community id.
func ParseSelection(s string) (Selection, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") || s == "" {
		return All, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return Selection{}, perrors.New(perrors.CodeValidationFailed, "selection must be ALL or a community id").
			WithContext("selection", s)
	}
	return Subprocess(id), nil
}

// View is a projected graph with the partition restricted to it.
type View struct {
	Selection Selection
	Graph     *dfg.Graph
	Partition *community.Partition
}

// Stats summarizes a view.
type Stats struct {
	Activities  int   `json:"activities"`
	Edges       int   `json:"edges"`
	Communities int   `json:"communities"`
	Transitions int64 `json:"transitions"`
}

// Stats returns node, edge and community counts of v.
func (v *View) Stats() Stats {
	return Stats{
		Activities:  v.Graph.NumNodes(),
		Edges:       v.Graph.NumEdges(),
		Communities: v.Partition.Len(),
		Transitions: v.Graph.TotalWeight(),
	}
}

// Project returns the view for sel. All returns g and p themselves. A
// subprocess returns the subgraph induced by its members and a partition
// holding only that community. An unknown or empty id is a
// CodeCommunityNotFound error. Inputs are never modified.
func Project(g *dfg.Graph, p *community.Partition, sel Selection) (*View, error) {
	if sel.all {
		return &View{Selection: sel, Graph: g, Partition: p}, nil
	}
	sub, ok := p.Restrict(sel.id)
	if !ok {
		return nil, perrors.CommunityNotFound(sel.id)
	}
	members, _ := sub.Members(sel.id)
	return &View{Selection: sel, Graph: g.Induced(members), Partition: sub}, nil
}

// ProjectOrAll is Project that falls back to the whole view when sel cannot
// be projected. The error is returned alongside the fallback so the caller
// can warn about it.
func ProjectOrAll(g *dfg.Graph, p *community.Partition, sel Selection) (*View, error) {
	v, err := Project(g, p, sel)
	if err != nil {
		return &View{Selection: All, Graph: g, Partition: p}, err
	}
	return v, nil
}

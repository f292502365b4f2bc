package community

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/logflow/processlens/pkg/dfg"
	perrors "github.com/logflow/processlens/pkg/errors"
)

// scenario is A->B x3, B->C x2, B->D x1.
func scenario() *dfg.Graph {
	return dfg.FromEdges(nil, []dfg.Edge{
		{From: "A", To: "B", Weight: 3},
		{From: "B", To: "C", Weight: 2},
		{From: "B", To: "D", Weight: 1},
	})
}

// threeCliques is three 4-cliques with internal weight 5 chained by
// weight-1 bridges c0_3-c1_0 and c1_3-c2_0.
func threeCliques() *dfg.Graph {
	var edges []dfg.Edge
	for c := 0; c < 3; c++ {
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				edges = append(edges, dfg.Edge{
					From:   fmt.Sprintf("c%d_%d", c, i),
					To:     fmt.Sprintf("c%d_%d", c, j),
					Weight: 5,
				})
			}
		}
	}
	edges = append(edges,
		dfg.Edge{From: "c0_3", To: "c1_0", Weight: 1},
		dfg.Edge{From: "c1_3", To: "c2_0", Weight: 1},
	)
	return dfg.FromEdges(nil, edges)
}

func TestDecompose_Scenario(t *testing.T) {
	tests := []struct {
		resolution float64
		want       map[int][]string
	}{
		{0.5, map[int][]string{0: {"A", "B", "C", "D"}}},
		{1.0, map[int][]string{0: {"A", "B", "C", "D"}}},
		{1.5, map[int][]string{0: {"A", "B"}, 1: {"C"}, 2: {"D"}}},
		{3.0, map[int][]string{0: {"A"}, 1: {"B"}, 2: {"C"}, 3: {"D"}}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("r=%.1f", tt.resolution), func(t *testing.T) {
			p, err := Decompose(scenario(), tt.resolution)
			if err != nil {
				t.Fatalf("Decompose: %v", err)
			}
			if got := p.Map(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("partition = %v, want %v", got, tt.want)
			}
			if p.Resolution() != tt.resolution {
				t.Errorf("Resolution() = %v", p.Resolution())
			}
		})
	}
}

func TestDecompose_CompleteAndDisjoint(t *testing.T) {
	g := threeCliques()
	for _, r := range []float64{0.1, 0.5, 1, 2, 3, 10} {
		p, err := Decompose(g, r)
		if err != nil {
			t.Fatalf("r=%v: %v", r, err)
		}
		seen := make(map[string]int)
		for _, id := range p.IDs() {
			members, _ := p.Members(id)
			if len(members) == 0 {
				t.Errorf("r=%v: community %d is empty", r, id)
			}
			for _, m := range members {
				seen[m]++
			}
		}
		for _, n := range g.Nodes() {
			if seen[n] != 1 {
				t.Errorf("r=%v: %s appears in %d communities", r, n, seen[n])
			}
		}
		if len(seen) != g.NumNodes() {
			t.Errorf("r=%v: partition has %d labels, graph %d", r, len(seen), g.NumNodes())
		}
		for a, id := range p.Index() {
			members, _ := p.Members(id)
			found := false
			for _, m := range members {
				found = found || m == a
			}
			if !found {
				t.Errorf("r=%v: index maps %s to %d but it is not a member", r, a, id)
			}
		}
	}
}

func TestDecompose_ResolutionMonotonic(t *testing.T) {
	g := threeCliques()
	tests := []struct {
		resolution float64
		want       int
	}{
		{0.01, 1},
		{0.1, 3},
		{1, 3},
		{3, 3},
		{10, 12},
	}

	prev := 0
	for _, tt := range tests {
		p, err := Decompose(g, tt.resolution)
		if err != nil {
			t.Fatalf("r=%v: %v", tt.resolution, err)
		}
		if p.Len() != tt.want {
			t.Errorf("r=%v: %d communities, want %d (%s)", tt.resolution, p.Len(), tt.want, p)
		}
		if p.Len() < prev {
			t.Errorf("r=%v: community count dropped from %d to %d", tt.resolution, prev, p.Len())
		}
		prev = p.Len()
	}
}

func TestDecompose_CliquesStayTogether(t *testing.T) {
	p, err := Decompose(threeCliques(), 1)
	if err != nil {
		t.Fatal(err)
	}
	for c := 0; c < 3; c++ {
		first, _ := p.CommunityOf(fmt.Sprintf("c%d_0", c))
		for i := 1; i < 4; i++ {
			if id, _ := p.CommunityOf(fmt.Sprintf("c%d_%d", c, i)); id != first {
				t.Errorf("c%d_%d split from its clique", c, i)
			}
		}
	}
}

func TestDecompose_Deterministic(t *testing.T) {
	g := threeCliques()
	first, err := Decompose(g, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		p, _ := Decompose(g, 1)
		if !p.Equal(first) {
			t.Fatalf("run %d: %s != %s", i, p, first)
		}
	}
}

func TestDecompose_Degenerate(t *testing.T) {
	p, err := Decompose(dfg.Empty(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 0 {
		t.Errorf("empty graph gave %d communities", p.Len())
	}

	edgeless := dfg.FromEdges([]string{"b", "a", "c"}, nil)
	p, err = Decompose(edgeless, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := map[int][]string{0: {"a"}, 1: {"b"}, 2: {"c"}}
	if got := p.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("edgeless partition = %v, want %v", got, want)
	}

	loopOnly := dfg.FromEdges(nil, []dfg.Edge{{From: "x", To: "x", Weight: 4}})
	p, err = Decompose(loopOnly, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 1 {
		t.Errorf("single self-loop node gave %d communities", p.Len())
	}
}

func TestDecompose_InvalidResolution(t *testing.T) {
	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Decompose(scenario(), r)
		if !perrors.IsCode(err, perrors.CodeInvalidResolution) {
			t.Errorf("r=%v: expected invalid resolution error, got %v", r, err)
		}
	}
}

func TestModularity(t *testing.T) {
	g := scenario()

	all, _ := NewPartition(map[int][]string{0: {"A", "B", "C", "D"}})
	if q := Modularity(g, all, 1); math.Abs(q) > 1e-12 {
		t.Errorf("single community Q = %v, want 0", q)
	}

	// Singletons: -sum(a_i^2) with a = 3/12, 6/12, 2/12, 1/12.
	singles, _ := NewPartition(map[int][]string{0: {"A"}, 1: {"B"}, 2: {"C"}, 3: {"D"}})
	want := -(9.0 + 36 + 4 + 1) / 144
	if q := Modularity(g, singles, 1); math.Abs(q-want) > 1e-12 {
		t.Errorf("singleton Q = %v, want %v", q, want)
	}

	p, err := Decompose(g, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if q := Modularity(g, p, 1.5); math.Abs(q-p.Modularity()) > 1e-12 {
		t.Errorf("recorded Q %v != recomputed %v", p.Modularity(), q)
	}
	if p.Modularity() <= Modularity(g, singles, 1.5) {
		t.Errorf("merging should improve on singletons")
	}
}

func TestModularity_SelfLoops(t *testing.T) {
	// A lone self-loop: L = m, D = 2m, so Q = 1 - resolution.
	g := dfg.FromEdges(nil, []dfg.Edge{{From: "x", To: "x", Weight: 3}})
	p, _ := NewPartition(map[int][]string{0: {"x"}})
	if q := Modularity(g, p, 1); math.Abs(q) > 1e-12 {
		t.Errorf("Q = %v, want 0", q)
	}
	if q := Modularity(g, p, 0.5); math.Abs(q-0.5) > 1e-12 {
		t.Errorf("Q = %v, want 0.5", q)
	}
}

func TestDecompose_ReverseEdgesCombine(t *testing.T) {
	// a<->b both ways is one undirected edge of weight 4.
	g := dfg.FromEdges(nil, []dfg.Edge{
		{From: "a", To: "b", Weight: 2},
		{From: "b", To: "a", Weight: 2},
		{From: "c", To: "d", Weight: 4},
	})
	p, err := Decompose(g, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := map[int][]string{0: {"a", "b"}, 1: {"c", "d"}}
	if got := p.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("partition = %v, want %v", got, want)
	}
}

func TestDecompose_ZeroGainStops(t *testing.T) {
	// n2 joining {n1, n3} gains exactly 6/17 - 3.4*(6/34)*(20/34) = 0.
	g := dfg.FromEdges(nil, []dfg.Edge{
		{From: "n0", To: "n0", Weight: 2},
		{From: "n0", To: "n1", Weight: 4},
		{From: "n1", To: "n3", Weight: 5},
		{From: "n2", To: "n1", Weight: 4},
		{From: "n3", To: "n2", Weight: 2},
	})
	p, err := Decompose(g, 1.7)
	if err != nil {
		t.Fatal(err)
	}
	want := map[int][]string{0: {"n1", "n3"}, 1: {"n0"}, 2: {"n2"}}
	if got := p.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("partition = %v, want %v", got, want)
	}
}

func TestDecompose_EqualGainsUseIndexOrder(t *testing.T) {
	g := dfg.FromEdges(nil, []dfg.Edge{
		{From: "n3", To: "n5", Weight: 4},
		{From: "n4", To: "n5", Weight: 5},
		{From: "n4", To: "n3", Weight: 1},
		{From: "n1", To: "n5", Weight: 6},
		{From: "n3", To: "n5", Weight: 4},
	})
	p, err := Decompose(g, 1.3)
	if err != nil {
		t.Fatal(err)
	}
	want := map[int][]string{0: {"n1", "n3", "n5"}, 1: {"n4"}}
	if got := p.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("partition = %v, want %v", got, want)
	}
}

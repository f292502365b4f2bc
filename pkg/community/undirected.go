package community

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/logflow/processlens/pkg/dfg"
)

// undirected is the symmetrized DFG. Node ids are the indices of the sorted
// activity labels. Self-loop weights live in loops since simple graphs do
// not allow self edges.
type undirected struct {
	g     *simple.WeightedUndirectedGraph
	loops []float64
	n     int
}

func newUndirected(d *dfg.Graph) *undirected {
	n := d.NumNodes()
	u := &undirected{
		g:     simple.NewWeightedUndirectedGraph(0, 0),
		loops: make([]float64, n),
		n:     n,
	}
	for i := 0; i < n; i++ {
		u.g.AddNode(simple.Node(int64(i)))
	}
	for _, e := range d.Edges() {
		from, _ := d.NodeIndex(e.From)
		to, _ := d.NodeIndex(e.To)
		w := float64(e.Weight)
		if from == to {
			u.loops[from] += w
			continue
		}
		if prev := u.g.WeightedEdge(int64(from), int64(to)); prev != nil {
			w += prev.Weight()
		}
		u.g.SetWeightedEdge(u.g.NewWeightedEdge(simple.Node(int64(from)), simple.Node(int64(to)), w))
	}
	return u
}

// weight returns the undirected weight between distinct nodes i and j.
func (u *undirected) weight(i, j int) float64 {
	if e := u.g.WeightedEdge(int64(i), int64(j)); e != nil {
		return e.Weight()
	}
	return 0
}

// neighbors returns the distinct neighbours of i in ascending order.
func (u *undirected) neighbors(i int) []int {
	it := u.g.From(int64(i))
	out := make([]int, 0, it.Len())
	for it.Next() {
		out = append(out, int(it.Node().ID()))
	}
	sort.Ints(out)
	return out
}

// degree is the weighted degree of i with its self-loop counted twice.
func (u *undirected) degree(i int) float64 {
	k := 2 * u.loops[i]
	for _, j := range u.neighbors(i) {
		k += u.weight(i, j)
	}
	return k
}

// totalWeight is m, the sum of undirected edge weights including loops.
func (u *undirected) totalWeight() float64 {
	var m float64
	edges := u.g.WeightedEdges()
	for edges.Next() {
		m += edges.WeightedEdge().Weight()
	}
	for _, l := range u.loops {
		m += l
	}
	return m
}

func (u *undirected) modularity(groups [][]int, resolution float64) float64 {
	m := u.totalWeight()
	if m == 0 {
		return 0
	}
	var q float64
	for _, members := range groups {
		in := make(map[int]bool, len(members))
		for _, i := range members {
			in[i] = true
		}
		var inner, deg float64
		for _, i := range members {
			inner += u.loops[i]
			deg += u.degree(i)
			for _, j := range u.neighbors(i) {
				if in[j] && j > i {
					inner += u.weight(i, j)
				}
			}
		}
		q += inner/m - resolution*(deg/(2*m))*(deg/(2*m))
	}
	return q
}

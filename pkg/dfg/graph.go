// Package dfg provides the directly-follows graph of an event log.
//
// Nodes are activity labels. An edge a->b carries the number of times b
// immediately followed a within the same case. Self-loops are kept. Every
// edge present has weight >= 1.
package dfg

import (
	"sort"
)

// Edge is a weighted directly-follows relation.
type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Weight int64  `json:"weight"`
}

type arc struct {
	from, to string
}

// Graph is an immutable directly-follows graph. Use Build or FromEdges to
// create one.
type Graph struct {
	nodes []string
	index map[string]int
	edges map[arc]int64

	// events per activity
	activityCount map[string]int64
	// start/end count the cases beginning or ending with an activity.
	start map[string]int64
	end   map[string]int64
}

func newGraph() *Graph {
	return &Graph{
		index:         make(map[string]int),
		edges:         make(map[arc]int64),
		activityCount: make(map[string]int64),
		start:         make(map[string]int64),
		end:           make(map[string]int64),
	}
}

// Empty returns a graph with no nodes.
func Empty() *Graph {
	return newGraph()
}

// FromEdges builds a graph from explicit nodes and edges. Edge endpoints are
// added as nodes; repeated edges accumulate; non-positive weights are
// ignored so the weight >= 1 invariant holds.
func FromEdges(nodes []string, edges []Edge) *Graph {
	g := newGraph()
	for _, n := range nodes {
		g.addNode(n)
	}
	for _, e := range edges {
		if e.Weight <= 0 {
			continue
		}
		g.addNode(e.From)
		g.addNode(e.To)
		g.edges[arc{e.From, e.To}] += e.Weight
	}
	g.seal()
	return g
}

func (g *Graph) addNode(n string) {
	if _, ok := g.index[n]; ok {
		return
	}
	g.index[n] = -1
	g.nodes = append(g.nodes, n)
}

// seal sorts the nodes and fixes their indices.
func (g *Graph) seal() {
	sort.Strings(g.nodes)
	for i, n := range g.nodes {
		g.index[n] = i
	}
}

// Nodes returns the activity labels in lexicographic order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// NumNodes returns the number of activities.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the number of distinct directed edges.
func (g *Graph) NumEdges() int { return len(g.edges) }

// HasNode reports whether label is a node.
func (g *Graph) HasNode(label string) bool {
	_, ok := g.index[label]
	return ok
}

// NodeIndex returns the position of label in Nodes.
func (g *Graph) NodeIndex(label string) (int, bool) {
	i, ok := g.index[label]
	return i, ok
}

// Weight returns the weight of from->to.
func (g *Graph) Weight(from, to string) (int64, bool) {
	w, ok := g.edges[arc{from, to}]
	return w, ok
}

// Edges returns all edges ordered by (From, To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for a, w := range g.edges {
		out = append(out, Edge{From: a.from, To: a.to, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// TotalWeight returns the sum of all edge weights.
func (g *Graph) TotalWeight() int64 {
	var total int64
	for _, w := range g.edges {
		total += w
	}
	return total
}

// ActivityCount returns the number of events labelled activity.
func (g *Graph) ActivityCount(activity string) int64 {
	return g.activityCount[activity]
}

// StartActivities returns how many cases start with each activity.
func (g *Graph) StartActivities() map[string]int64 {
	return copyCounts(g.start)
}

// EndActivities returns how many cases end with each activity.
func (g *Graph) EndActivities() map[string]int64 {
	return copyCounts(g.end)
}

// Induced returns the subgraph over the given nodes. Edges with an endpoint
// outside the set are dropped; labels that are not nodes are ignored.
// Occurrence and start/end counts are restricted to the kept nodes.
func (g *Graph) Induced(nodes []string) *Graph {
	keep := make(map[string]bool, len(nodes))
	sub := newGraph()
	for _, n := range nodes {
		if g.HasNode(n) && !keep[n] {
			keep[n] = true
			sub.addNode(n)
		}
	}
	for a, w := range g.edges {
		if keep[a.from] && keep[a.to] {
			sub.edges[a] = w
		}
	}
	for n := range keep {
		if c, ok := g.activityCount[n]; ok {
			sub.activityCount[n] = c
		}
		if c, ok := g.start[n]; ok {
			sub.start[n] = c
		}
		if c, ok := g.end[n]; ok {
			sub.end[n] = c
		}
	}
	sub.seal()
	return sub
}

// Equal reports whether two graphs have the same nodes, edges and weights.
func (g *Graph) Equal(other *Graph) bool {
	if g.NumNodes() != other.NumNodes() || g.NumEdges() != other.NumEdges() {
		return false
	}
	for i, n := range g.nodes {
		if other.nodes[i] != n {
			return false
		}
	}
	for a, w := range g.edges {
		if other.edges[a] != w {
			return false
		}
	}
	return true
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

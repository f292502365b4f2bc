// Package community splits a directly-follows graph into subprocesses by
// greedy modularity maximization (Clauset-Newman-Moore).
//
// The directed graph is first collapsed to an undirected weighted graph:
// a->b and b->a add up to one edge and self-loops are kept. Every node
// starts in its own community; the pair of communities with the largest
// modularity gain is merged until no merge gains anything.
//
// The result is deterministic. Communities are indexed by sorted activity
// label, candidate merges with equal gain are taken in index order, and the
// final ids are ordered by size (largest first) then by smallest member.
package community

import (
	"container/heap"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/logflow/processlens/pkg/dfg"
	perrors "github.com/logflow/processlens/pkg/errors"
)

// DefaultResolution is the neutral resolution.
const DefaultResolution = 1.0

// Options configures Decompose.
type Options struct {
	Logger zerolog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the logger for merge statistics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Decompose partitions the activities of g. Larger resolutions favor more,
// smaller communities. A non-positive or non-finite resolution is rejected.
// An empty graph yields an empty partition; a graph without edges yields one
// singleton community per activity.
func Decompose(g *dfg.Graph, resolution float64, opts ...Option) (*Partition, error) {
	o := Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	if !validResolution(resolution) {
		return nil, perrors.InvalidResolution(resolution)
	}
	if g == nil || g.NumNodes() == 0 {
		return fromOrdered(nil, 0, resolution), nil
	}

	nodes := g.Nodes()
	u := newUndirected(g)
	m := newMerger(u, resolution)
	merges := m.run()

	groups := make([][]string, 0, len(nodes))
	for c, alive := range m.alive {
		if !alive {
			continue
		}
		members := make([]string, len(m.members[c]))
		for i, n := range m.members[c] {
			members[i] = nodes[n]
		}
		sort.Strings(members)
		groups = append(groups, members)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return groups[i][0] < groups[j][0]
	})

	q := u.modularity(indexGroups(g, groups), resolution)
	o.Logger.Debug().
		Int("activities", len(nodes)).
		Int("merges", merges).
		Int("communities", len(groups)).
		Float64("resolution", resolution).
		Float64("modularity", q).
		Msg("decomposed graph")

	return fromOrdered(groups, q, resolution), nil
}

// Modularity computes Q of p on g at the given resolution:
//
//	Q = sum over communities c of L_c/m - resolution * (D_c / 2m)^2
//
// where m is the total undirected weight, L_c the weight inside c and D_c
// the summed degree of c. A self-loop counts once in L_c and twice in D_c.
// Activities of g missing from p are treated as singletons.
func Modularity(g *dfg.Graph, p *Partition, resolution float64) float64 {
	if g == nil || g.NumNodes() == 0 {
		return 0
	}
	var groups [][]string
	seen := make(map[string]bool)
	for _, id := range p.IDs() {
		members, _ := p.Members(id)
		groups = append(groups, members)
		for _, a := range members {
			seen[a] = true
		}
	}
	for _, a := range g.Nodes() {
		if !seen[a] {
			groups = append(groups, []string{a})
		}
	}
	return newUndirected(g).modularity(indexGroups(g, groups), resolution)
}

func validResolution(r float64) bool {
	return r > 0 && !math.IsNaN(r) && !math.IsInf(r, 0)
}

// indexGroups converts label groups to node index groups, skipping labels
// that are not nodes of g.
func indexGroups(g *dfg.Graph, groups [][]string) [][]int {
	out := make([][]int, 0, len(groups))
	for _, members := range groups {
		var ids []int
		for _, a := range members {
			if i, ok := g.NodeIndex(a); ok {
				ids = append(ids, i)
			}
		}
		out = append(out, ids)
	}
	return out
}

// merger holds the CNM state. dq[i][j] is the gain of merging communities i
// and j and exists only while they share an edge. a[i] is the fraction of
// edge ends attached to community i.
type merger struct {
	resolution float64
	m          float64
	dq         []map[int]float64
	a          []float64
	members    [][]int
	alive      []bool
	queue      mergeQueue
}

func newMerger(u *undirected, resolution float64) *merger {
	n := u.n
	mg := &merger{
		resolution: resolution,
		m:          u.totalWeight(),
		dq:         make([]map[int]float64, n),
		a:          make([]float64, n),
		members:    make([][]int, n),
		alive:      make([]bool, n),
	}
	for i := 0; i < n; i++ {
		mg.dq[i] = make(map[int]float64)
		mg.members[i] = []int{i}
		mg.alive[i] = true
	}
	if mg.m == 0 {
		return mg
	}

	for i := 0; i < n; i++ {
		mg.a[i] = u.degree(i) / (2 * mg.m)
	}
	for i := 0; i < n; i++ {
		for _, j := range u.neighbors(i) {
			if j <= i {
				continue
			}
			d := u.weight(i, j)/mg.m - 2*resolution*mg.a[i]*mg.a[j]
			mg.dq[i][j] = d
			mg.dq[j][i] = d
			mg.queue = append(mg.queue, newCandidate(d, i, j))
		}
	}
	heap.Init(&mg.queue)
	return mg
}

// run merges until the best available gain is not positive within
// gainTolerance and returns the number of merges. Stale queue entries are
// skipped on pop.
func (mg *merger) run() int {
	merges := 0
	for mg.queue.Len() > 0 {
		c := heap.Pop(&mg.queue).(candidate)
		if !mg.alive[c.u] || !mg.alive[c.v] {
			continue
		}
		if cur, ok := mg.dq[c.u][c.v]; !ok || cur != c.dq {
			continue
		}
		if c.level <= 0 {
			break
		}
		mg.merge(c.u, c.v)
		merges++
	}
	return merges
}

// merge folds community u into v (u < v): v survives and keeps its index,
// u is retired. The gains of every community adjacent to either are updated.
func (mg *merger) merge(u, v int) {
	rowU, rowV := mg.dq[u], mg.dq[v]

	var adjacent []int
	for w := range rowU {
		if w != v {
			adjacent = append(adjacent, w)
		}
	}
	for w := range rowV {
		if _, shared := rowU[w]; !shared && w != u {
			adjacent = append(adjacent, w)
		}
	}
	sort.Ints(adjacent)

	updated := make(map[int]float64, len(adjacent))
	for _, w := range adjacent {
		duw, inU := rowU[w]
		dvw, inV := rowV[w]
		var d float64
		switch {
		case inU && inV:
			d = duw + dvw
		case inV:
			d = dvw - 2*mg.resolution*mg.a[u]*mg.a[w]
		default:
			d = duw - 2*mg.resolution*mg.a[v]*mg.a[w]
		}
		updated[w] = d
	}

	for _, w := range adjacent {
		d := updated[w]
		delete(mg.dq[w], u)
		mg.dq[w][v] = d
		x, y := v, w
		if y < x {
			x, y = y, x
		}
		heap.Push(&mg.queue, newCandidate(d, x, y))
	}
	mg.dq[v] = updated
	mg.dq[u] = nil

	mg.a[v] += mg.a[u]
	mg.a[u] = 0
	mg.members[v] = append(mg.members[v], mg.members[u]...)
	mg.members[u] = nil
	mg.alive[u] = false
}

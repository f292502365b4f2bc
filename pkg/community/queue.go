package community

import "math"

// gainTolerance is the resolution at which gains are compared. Incremental
// updates leave residue near 1e-17, so gains within it are equal.
const gainTolerance = 1e-12

// candidate is a possible merge of community u into community v (u < v) with
// modularity gain dq. level is dq in units of gainTolerance.
type candidate struct {
	dq    float64
	level int64
	u, v  int
}

func newCandidate(dq float64, u, v int) candidate {
	return candidate{dq: dq, level: int64(math.Round(dq / gainTolerance)), u: u, v: v}
}

// mergeQueue is a max-heap of candidates for container/heap. Equal levels are
// ordered by the smaller u, then the smaller v, so the merge order does not
// depend on map iteration or rounding.
type mergeQueue []candidate

func (q mergeQueue) Len() int { return len(q) }

func (q mergeQueue) Less(i, j int) bool {
	if q[i].level != q[j].level {
		return q[i].level > q[j].level
	}
	if q[i].u != q[j].u {
		return q[i].u < q[j].u
	}
	return q[i].v < q[j].v
}

func (q mergeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *mergeQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *mergeQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

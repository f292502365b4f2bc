package community

import (
	"fmt"
	"sort"
	"strings"
)

// Partition maps community ids to sorted activity labels. The inverse
// activity index is built together with the groups and never changes on its
// own. A Partition is immutable.
type Partition struct {
	groups     map[int][]string
	ids        []int
	index      map[string]int
	modularity float64
	resolution float64
}

// NewPartition builds a partition from explicit groups. Members are sorted;
// an activity listed in two groups is an error.
func NewPartition(groups map[int][]string) (*Partition, error) {
	p := &Partition{
		groups: make(map[int][]string, len(groups)),
		index:  make(map[string]int),
	}
	for id, members := range groups {
		sorted := append([]string(nil), members...)
		sort.Strings(sorted)
		for _, m := range sorted {
			if prev, dup := p.index[m]; dup {
				return nil, fmt.Errorf("activity %q in communities %d and %d", m, prev, id)
			}
			p.index[m] = id
		}
		p.groups[id] = sorted
		p.ids = append(p.ids, id)
	}
	sort.Ints(p.ids)
	return p, nil
}

// fromOrdered assigns ids 0..n-1 in slice order. Groups are already sorted
// and disjoint.
func fromOrdered(groups [][]string, modularity, resolution float64) *Partition {
	p := &Partition{
		groups:     make(map[int][]string, len(groups)),
		ids:        make([]int, len(groups)),
		index:      make(map[string]int),
		modularity: modularity,
		resolution: resolution,
	}
	for id, members := range groups {
		p.groups[id] = members
		p.ids[id] = id
		for _, m := range members {
			p.index[m] = id
		}
	}
	return p
}

// Len returns the number of communities.
func (p *Partition) Len() int { return len(p.ids) }

// NumActivities returns the number of partitioned activities.
func (p *Partition) NumActivities() int { return len(p.index) }

// IDs returns the community ids in ascending order.
func (p *Partition) IDs() []int {
	return append([]int(nil), p.ids...)
}

// Members returns the sorted labels of community id.
func (p *Partition) Members(id int) ([]string, bool) {
	m, ok := p.groups[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), m...), true
}

// CommunityOf returns the community id of an activity.
func (p *Partition) CommunityOf(activity string) (int, bool) {
	id, ok := p.index[activity]
	return id, ok
}

// Map returns a copy of the id -> members mapping.
func (p *Partition) Map() map[int][]string {
	out := make(map[int][]string, len(p.groups))
	for id, m := range p.groups {
		out[id] = append([]string(nil), m...)
	}
	return out
}

// Index returns a copy of the activity -> id mapping.
func (p *Partition) Index() map[string]int {
	out := make(map[string]int, len(p.index))
	for a, id := range p.index {
		out[a] = id
	}
	return out
}

// Modularity returns the modularity score recorded at decomposition time.
func (p *Partition) Modularity() float64 { return p.modularity }

// Resolution returns the resolution used to produce the partition.
func (p *Partition) Resolution() float64 { return p.resolution }

// Restrict returns a partition holding only community id, keeping the id.
func (p *Partition) Restrict(id int) (*Partition, bool) {
	members, ok := p.groups[id]
	if !ok || len(members) == 0 {
		return nil, false
	}
	sub := &Partition{
		groups:     map[int][]string{id: members},
		ids:        []int{id},
		index:      make(map[string]int, len(members)),
		modularity: p.modularity,
		resolution: p.resolution,
	}
	for _, m := range members {
		sub.index[m] = id
	}
	return sub, true
}

// Equal reports whether two partitions have the same ids and members.
func (p *Partition) Equal(other *Partition) bool {
	if p.Len() != other.Len() {
		return false
	}
	for id, m := range p.groups {
		o, ok := other.groups[id]
		if !ok || len(o) != len(m) {
			return false
		}
		for i := range m {
			if m[i] != o[i] {
				return false
			}
		}
	}
	return true
}

// String renders the partition as "0:[a b] 1:[c]".
func (p *Partition) String() string {
	parts := make([]string, len(p.ids))
	for i, id := range p.ids {
		parts[i] = fmt.Sprintf("%d:[%s]", id, strings.Join(p.groups[id], " "))
	}
	return strings.Join(parts, " ")
}

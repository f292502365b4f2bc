package dfg

import (
	"github.com/logflow/processlens/pkg/eventlog"
)

// Build discovers the directly-follows graph of a canonical log.
// Algorithm:
//  1. Every activity observed in any case becomes a node
//  2. For each case, each consecutive event pair (a, b) adds 1 to a->b
//  3. The first and last activity of each case are counted as start/end
//
// A nil or empty log yields an empty graph.
func Build(log *eventlog.Log) *Graph {
	g := newGraph()
	if log == nil {
		return g
	}

	for _, c := range log.Cases {
		events := c.Events
		if len(events) == 0 {
			continue
		}

		g.start[events[0].Activity]++
		g.end[events[len(events)-1].Activity]++

		for i := 0; i < len(events); i++ {
			activity := events[i].Activity
			g.addNode(activity)
			g.activityCount[activity]++

			if i < len(events)-1 {
				g.edges[arc{activity, events[i+1].Activity}]++
			}
		}
	}

	g.seal()
	return g
}

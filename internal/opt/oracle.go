package opt

import "beamsched/internal/graph"

// DistanceTable is the compressed view of the graph the search runs on:
// shortest-path distances from the start node and every reward node to
// every reachable reward node. It is read-only once built.
type DistanceTable struct {
	targets []graph.NodeID
	slots   map[graph.NodeID]int
	rows    map[graph.NodeID]map[graph.NodeID]int
}

// NewDistanceTable runs one single-source expansion per reward node plus
// the start node. Zero-reward nodes are kept as waypoints but never appear
// as targets.
func NewDistanceTable(g *graph.Graph, start graph.NodeID) *DistanceTable {
	t := &DistanceTable{
		targets: g.RewardNodes(),
		slots:   map[graph.NodeID]int{},
		rows:    map[graph.NodeID]map[graph.NodeID]int{},
	}
	for i, n := range t.targets {
		t.slots[n] = i
	}
	sources := append([]graph.NodeID{start}, t.targets...)
	for _, src := range sources {
		if _, done := t.rows[src]; done {
			continue
		}
		all := g.AllDistances(src)
		row := make(map[graph.NodeID]int, len(t.targets))
		for _, dst := range t.targets {
			if d, ok := all[dst]; ok && dst != src {
				row[dst] = d
			}
		}
		t.rows[src] = row
	}
	return t
}

// Distance reports the travel time between two table nodes. A node is at
// distance 0 from itself; unreachable pairs report false.
func (t *DistanceTable) Distance(from, to graph.NodeID) (int, bool) {
	if from == to {
		return 0, true
	}
	d, ok := t.rows[from][to]
	return d, ok
}

// Targets returns the reward nodes in slot order.
func (t *DistanceTable) Targets() []graph.NodeID { return t.targets }

// Slot maps a reward node to its dense index.
func (t *DistanceTable) Slot(n graph.NodeID) (int, bool) {
	s, ok := t.slots[n]
	return s, ok
}

func (t *DistanceTable) Len() int { return len(t.targets) }

// Reachable counts the reward nodes other than src reachable from it.
func (t *DistanceTable) Reachable(src graph.NodeID) int {
	return len(t.rows[src])
}

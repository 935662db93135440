// Package graph holds the static location graph the scheduler searches over.
package graph

import (
	"errors"
	"fmt"
)

// NodeID is an index into the graph's node vectors. IDs are dense and
// assigned in insertion order, so they are stable for the life of a Graph.
type NodeID int

// Neighbor is one adjacency entry.
type Neighbor struct {
	Weight int
	Node   NodeID
}

// Edge is an undirected edge by node name, used to build a Graph in one go.
type Edge struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Weight int    `json:"weight" yaml:"weight"`
}

var ErrNonPositiveWeight = errors.New("graph: edge weight must be positive")

// Graph is an undirected weighted graph with a non-negative reward per node.
type Graph struct {
	names  []string
	index  map[string]NodeID
	adj    [][]Neighbor
	reward []int
	// weight shared by every edge, or 0 once two edges differ
	uniform int
	mixed   bool
}

func New() *Graph {
	return &Graph{index: map[string]NodeID{}}
}

// Build creates a graph from an edge list. Unlike AddEdge it reports bad
// weights as errors instead of panicking.
func Build(edges []Edge) (*Graph, error) {
	g := New()
	for i, e := range edges {
		if e.Weight <= 0 {
			return nil, fmt.Errorf("edge %d (%s-%s) weight %d: %w", i, e.From, e.To, e.Weight, ErrNonPositiveWeight)
		}
		g.AddEdge(g.AddNode(e.From), g.AddNode(e.To), e.Weight)
	}
	return g, nil
}

// AddNode returns the id for name, creating the node if needed.
func (g *Graph) AddNode(name string) NodeID {
	if id, ok := g.index[name]; ok {
		return id
	}
	id := NodeID(len(g.names))
	g.names = append(g.names, name)
	g.index[name] = id
	g.adj = append(g.adj, nil)
	g.reward = append(g.reward, 0)
	return id
}

// AddEdge adds an undirected edge. Adding an existing edge again keeps the
// lighter weight. Unknown nodes and non-positive weights panic.
func (g *Graph) AddEdge(a, b NodeID, weight int) {
	g.mustHave(a)
	g.mustHave(b)
	if weight <= 0 {
		panic(fmt.Sprintf("graph: AddEdge(%d, %d) with weight %d", a, b, weight))
	}
	if a == b {
		return
	}
	if g.setWeight(a, b, weight) {
		g.setWeight(b, a, weight)
	} else {
		g.adj[a] = append(g.adj[a], Neighbor{Weight: weight, Node: b})
		g.adj[b] = append(g.adj[b], Neighbor{Weight: weight, Node: a})
	}
	// a lowered duplicate can leave mixed set; that only costs the BFS fast path
	g.trackWeight(weight)
}

// setWeight lowers an existing a->b entry and reports whether one existed.
func (g *Graph) setWeight(a, b NodeID, weight int) bool {
	for i, nb := range g.adj[a] {
		if nb.Node == b {
			if weight < nb.Weight {
				g.adj[a][i].Weight = weight
			}
			return true
		}
	}
	return false
}

func (g *Graph) trackWeight(w int) {
	switch {
	case g.mixed:
	case g.uniform == 0:
		g.uniform = w
	case g.uniform != w:
		g.mixed = true
	}
}

func (g *Graph) mustHave(n NodeID) {
	if n < 0 || int(n) >= len(g.names) {
		panic(fmt.Sprintf("graph: unknown node %d", n))
	}
}

// Neighbors returns the adjacency list of n. The slice is owned by the graph.
func (g *Graph) Neighbors(n NodeID) []Neighbor {
	g.mustHave(n)
	return g.adj[n]
}

// Degree is the number of distinct neighbors of n.
func (g *Graph) Degree(n NodeID) int {
	g.mustHave(n)
	return len(g.adj[n])
}

// Vertices returns every node id in insertion order.
func (g *Graph) Vertices() []NodeID {
	out := make([]NodeID, len(g.names))
	for i := range out {
		out[i] = NodeID(i)
	}
	return out
}

func (g *Graph) Len() int { return len(g.names) }

func (g *Graph) Lookup(name string) (NodeID, bool) {
	id, ok := g.index[name]
	return id, ok
}

func (g *Graph) Name(n NodeID) string {
	g.mustHave(n)
	return g.names[n]
}

// SetReward sets the per-tick reward n releases once activated.
func (g *Graph) SetReward(n NodeID, v int) {
	g.mustHave(n)
	if v < 0 {
		panic(fmt.Sprintf("graph: negative reward %d for node %s", v, g.names[n]))
	}
	g.reward[n] = v
}

func (g *Graph) Reward(n NodeID) int {
	g.mustHave(n)
	return g.reward[n]
}

// RewardNodes returns the nodes with a positive reward, in id order.
func (g *Graph) RewardNodes() []NodeID {
	var out []NodeID
	for i, r := range g.reward {
		if r > 0 {
			out = append(out, NodeID(i))
		}
	}
	return out
}

// UniformWeight reports the single weight shared by all edges, if any.
func (g *Graph) UniformWeight() (int, bool) {
	return g.uniform, !g.mixed && g.uniform > 0
}

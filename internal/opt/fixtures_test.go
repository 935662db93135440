package opt

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"beamsched/internal/graph"
)

const valveSample = `
AA 0 -> DD II BB
BB 13 -> CC AA
CC 2 -> DD BB
DD 20 -> CC AA EE
EE 3 -> FF DD
FF 0 -> EE GG
GG 0 -> FF HH
HH 22 -> GG
II 0 -> AA JJ
JJ 21 -> II
`

// valveProblem parses "NAME reward -> neighbours" lines with unit edges.
func valveProblem(t *testing.T, horizon, agents int) Problem {
	t.Helper()
	var edges []graph.Edge
	rewards := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(valveSample), "\n") {
		head, tail, ok := strings.Cut(line, "->")
		require.True(t, ok, line)
		f := strings.Fields(head)
		require.Len(t, f, 2, line)
		r, err := strconv.Atoi(f[1])
		require.NoError(t, err)
		rewards[f[0]] = r
		for _, nb := range strings.Fields(tail) {
			edges = append(edges, graph.Edge{From: f[0], To: nb, Weight: 1})
		}
	}
	p, err := NewProblem(edges, rewards, "AA", horizon, agents)
	require.NoError(t, err)
	return p
}

var sixEdges = []graph.Edge{
	{From: "A", To: "B", Weight: 1},
	{From: "B", To: "C", Weight: 2},
	{From: "B", To: "D", Weight: 3},
	{From: "A", To: "E", Weight: 1},
	{From: "E", To: "F", Weight: 1},
}

var sixRewards = map[string]int{"B": 13, "C": 2, "D": 20}

func sixProblem(t *testing.T, horizon, agents int) Problem {
	t.Helper()
	p, err := NewProblem(sixEdges, sixRewards, "A", horizon, agents)
	require.NoError(t, err)
	return p
}

func node(t *testing.T, p Problem, name string) graph.NodeID {
	t.Helper()
	id, ok := p.Graph.Lookup(name)
	require.True(t, ok, name)
	return id
}

func exact() Config { return Config{} }

package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorers(t *testing.T) {
	p := sixProblem(t, 6, 1)
	tab := NewDistanceTable(p.Graph, p.Start)
	env := ScoreEnv{Tick: 0, Horizon: 6, Graph: p.Graph, Table: tab}
	root := newBranch(p.Start, 1, tab.Len())

	assert.Equal(t, 0.0, RawScorer{}.Score(env, root))
	assert.Equal(t, 0.0, ProjectedScorer{}.Score(env, root))
	// B 13*(6-2) + C 2*(6-4) + D 20*(6-5)
	assert.Equal(t, 76.0, DiscountedScorer{}.Score(env, root))

	b := root.clone()
	slot, _ := tab.Slot(node(t, p, "B"))
	b.Activated.set(slot)
	b.Reward, b.Rate = 13, 13
	b.Agents[0] = Agent{Node: node(t, p, "B"), Moving: true, Dest: node(t, p, "D"), Arrival: 5}
	env.Tick = 3
	assert.Equal(t, 13.0, RawScorer{}.Score(env, b))
	assert.Equal(t, 52.0, ProjectedScorer{}.Score(env, b))
	// C is five ticks past D, too late; D activates at 5
	assert.Equal(t, 72.0, DiscountedScorer{}.Score(env, b))

	b.Agents[0].Parked = true
	b.Agents[0].Moving = false
	assert.Equal(t, 52.0, DiscountedScorer{}.Score(env, b), "parked agents reach nothing")
}

func TestVisitPenaltyScorer(t *testing.T) {
	p := sixProblem(t, 6, 1)
	tab := NewDistanceTable(p.Graph, p.Start)
	env := ScoreEnv{Horizon: 6, Graph: p.Graph, Table: tab}
	b := newBranch(p.Start, 1, tab.Len())
	b.Reward = 10
	b.Visits[0], b.Visits[1] = 3, 1

	s := VisitPenaltyScorer{Base: RawScorer{}, Penalty: 1.5}
	assert.Equal(t, 7.0, s.Score(env, b))
	assert.Equal(t, "visit-penalty", s.Name())
}

func TestScorerByName(t *testing.T) {
	for _, name := range ScorerNames() {
		s, err := ScorerByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
	s, err := ScorerByName("")
	require.NoError(t, err)
	assert.Equal(t, "discounted", s.Name())

	_, err = ScorerByName("greedy")
	require.ErrorIs(t, err, ErrBadConfig)
}

package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewards(bs []*Branch) []int {
	out := make([]int, len(bs))
	for i, b := range bs {
		out[i] = b.Reward
	}
	return out
}

func candidates(n int) []*Branch {
	out := make([]*Branch, n)
	for i := range out {
		out[i] = &Branch{Activated: newNodeSet(1), Reward: i}
	}
	return out
}

func TestPruneMidpoint(t *testing.T) {
	cands := candidates(5)
	got, st := prune(cands, []float64{0, 10, 4, 6, 9}, 3)
	assert.Equal(t, []int{1, 3, 4}, rewards(got))
	assert.Equal(t, pruneStats{rounds: 1}, st)
}

func TestPruneRepeatsUntilUnderCeiling(t *testing.T) {
	cands := candidates(6)
	got, st := prune(cands, []float64{0, 8, 6, 7, 9, 10}, 2)
	// 0..10 keeps >=5, then 6..10 keeps >=8, then 8..10 keeps >=9
	assert.Equal(t, []int{4, 5}, rewards(got))
	assert.Equal(t, 3, st.rounds)
}

func TestPruneCollapse(t *testing.T) {
	cands := candidates(4)
	cands[2].Reward = 99
	got, st := prune(cands, []float64{5, 5, 5, 5}, 2)
	require.Len(t, got, 1)
	assert.Equal(t, 99, got[0].Reward)
	assert.Equal(t, 1, st.collapses)
}

func TestPruneCollapseTieKeepsFirst(t *testing.T) {
	cands := candidates(3)
	for _, c := range cands {
		c.Reward = 7
	}
	got, _ := prune(cands, []float64{1, 1, 1}, 1)
	require.Len(t, got, 1)
	assert.Same(t, cands[0], got[0])
}

func TestPruneTruncatesWhenNothingDrops(t *testing.T) {
	// the midpoint of two adjacent floats rounds down to the lower one
	lo, hi := 1.0, math.Nextafter(1, 2)
	cands := candidates(4)
	got, st := prune(cands, []float64{lo, hi, lo, hi}, 3)
	assert.Equal(t, []int{1, 3, 0}, rewards(got))
	assert.Equal(t, 1, st.truncations)
}

func TestMergeDuplicates(t *testing.T) {
	p := sixProblem(t, 6, 1)
	tab := NewDistanceTable(p.Graph, p.Start)
	a := newBranch(p.Start, 1, tab.Len())
	a.Reward = 3
	other := newBranch(node(t, p, "B"), 1, tab.Len())
	b := a.clone()
	b.Reward = 7
	b.Visits[0] = 2 // visits are not part of the state

	got, merged := mergeDuplicates([]*Branch{a, other, b})
	require.Len(t, got, 2)
	assert.Equal(t, 1, merged)
	assert.Equal(t, 7, got[0].Reward)
	assert.Same(t, other, got[1])
}

func TestChunks(t *testing.T) {
	assert.Equal(t, []chunk{{0, 4}, {4, 7}, {7, 10}}, chunks(10, 3))
	assert.Equal(t, []chunk{{0, 1}, {1, 2}}, chunks(2, 8))
	assert.Equal(t, []chunk{{0, 5}}, chunks(5, 0))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "pruning", phasePruning.String())
	assert.Equal(t, "phase(9)", phase(9).String())
}

func TestAdvanceEmptyFrontierIsInvariant(t *testing.T) {
	p := sixProblem(t, 6, 1)
	tab := NewDistanceTable(p.Graph, p.Start)
	bm := &beam{exp: newExpander(p, tab, 0), scorer: RawScorer{}}
	_, _, err := bm.advance(nil, 1)
	require.ErrorIs(t, err, ErrInvariant)
}

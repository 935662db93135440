package opt

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beamsched/internal/graph"
)

func TestSearchSingleReward(t *testing.T) {
	edges := []graph.Edge{{From: "A", To: "B", Weight: 1}, {From: "B", To: "C", Weight: 2}}
	const reward, dist = 5, 3
	for h := 0; h <= 9; h++ {
		p, err := NewProblem(edges, map[string]int{"C": reward}, "A", h, 1)
		require.NoError(t, err)
		res, err := Search(context.Background(), p, exact())
		require.NoError(t, err)
		want := max(0, reward*(h-dist-1))
		assert.Equal(t, want, res.Reward, "horizon %d", h)
	}
}

func TestSearchSixNode(t *testing.T) {
	one, err := Search(context.Background(), sixProblem(t, 6, 1), exact())
	require.NoError(t, err)
	assert.Equal(t, 54, one.Reward)
	assert.Equal(t, []string{"B", "C"}, one.Activated)

	two, err := Search(context.Background(), sixProblem(t, 6, 2), exact())
	require.NoError(t, err)
	assert.Equal(t, 74, two.Reward)
	assert.Equal(t, []string{"B", "C", "D"}, two.Activated)
}

func TestSearchHorizonAndAgentMonotone(t *testing.T) {
	wantOne := []int{0, 0, 0, 13, 26, 39, 54, 85, 118, 151, 184}
	wantTwo := []int{0, 0, 0, 13, 26, 41, 74, 109, 144, 179, 214}
	for h := 0; h <= 10; h++ {
		one, err := Search(context.Background(), sixProblem(t, h, 1), exact())
		require.NoError(t, err)
		two, err := Search(context.Background(), sixProblem(t, h, 2), exact())
		require.NoError(t, err)
		assert.Equal(t, wantOne[h], one.Reward, "one agent, horizon %d", h)
		assert.Equal(t, wantTwo[h], two.Reward, "two agents, horizon %d", h)
		assert.GreaterOrEqual(t, two.Reward, one.Reward)
		if h > 0 {
			assert.GreaterOrEqual(t, one.Reward, wantOne[h-1])
		}
	}
}

func TestSearchPrunedMatchesExact(t *testing.T) {
	for _, tc := range []struct {
		agents, ceiling int
	}{
		{1, 2},
		{2, 3},
	} {
		for h := 0; h <= 10; h++ {
			want, err := Search(context.Background(), sixProblem(t, h, tc.agents), exact())
			require.NoError(t, err)
			cfg := DefaultConfig()
			cfg.Ceiling = tc.ceiling
			got, err := Search(context.Background(), sixProblem(t, h, tc.agents), cfg)
			require.NoError(t, err)
			assert.Equal(t, want.Reward, got.Reward, "agents %d horizon %d", tc.agents, h)
			assert.LessOrEqual(t, got.Metrics.FinalFrontier, tc.ceiling)
		}
	}
}

func TestSearchValveSample(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	cfg := DefaultConfig()
	cfg.Ceiling = 500
	one, err := Search(context.Background(), valveProblem(t, 30, 1), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1651, one.Reward)
	assert.Positive(t, one.Metrics.PruneRounds)

	cfg.Ceiling = 5000
	cfg.Workers = 4
	two, err := Search(context.Background(), valveProblem(t, 26, 2), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1707, two.Reward)
	assert.Equal(t, []string{"BB", "CC", "DD", "EE", "HH", "JJ"}, slices.Sorted(slices.Values(two.Activated)))
}

func TestSearchIdempotentAcrossWorkers(t *testing.T) {
	p := valveProblem(t, 20, 2)
	cfg := DefaultConfig()
	cfg.Ceiling = 300
	first, err := Search(context.Background(), p, cfg)
	require.NoError(t, err)
	again, err := Search(context.Background(), p, cfg)
	require.NoError(t, err)
	cfg.Workers = 3
	parallel, err := Search(context.Background(), p, cfg)
	require.NoError(t, err)

	assert.Equal(t, first.Reward, again.Reward)
	assert.Equal(t, first.Reward, parallel.Reward)
	assert.Equal(t, first.Best, parallel.Best)
	assert.Equal(t, first.Metrics.Snapshots, parallel.Metrics.Snapshots)
}

func TestSearchDuplicatesDoNotChangeResult(t *testing.T) {
	merged, err := Search(context.Background(), sixProblem(t, 8, 2), exact())
	require.NoError(t, err)
	kept, err := Search(context.Background(), sixProblem(t, 8, 2), Config{KeepDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, merged.Reward, kept.Reward)
	assert.Zero(t, kept.Metrics.Merged)
	assert.GreaterOrEqual(t, kept.Metrics.PeakFrontier, merged.Metrics.PeakFrontier)
}

func TestSearchZeroHorizon(t *testing.T) {
	res, err := Search(context.Background(), sixProblem(t, 0, 3), DefaultConfig())
	require.NoError(t, err)
	assert.Zero(t, res.Reward)
	assert.Empty(t, res.Activated)
	assert.Len(t, res.Best.Agents, 3)
}

func TestSearchObserver(t *testing.T) {
	var reports []TickReport
	cfg := exact()
	cfg.Observer = func(r TickReport) {
		r.Best.Reward = -1 // mutating the copy must not leak back
		reports = append(reports, r)
	}
	res, err := Search(context.Background(), sixProblem(t, 6, 1), cfg)
	require.NoError(t, err)
	require.Len(t, reports, 6)
	for i, r := range reports {
		assert.Equal(t, i+1, r.Tick)
		assert.Positive(t, r.Frontier)
	}
	assert.Equal(t, 54, res.Reward)
	require.Len(t, res.Metrics.Snapshots, 6)
	assert.Equal(t, 54, res.Metrics.Snapshots[5].BestReward)
}

func TestSearchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Search(ctx, sixProblem(t, 6, 1), exact())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSearchRejectsBadInput(t *testing.T) {
	p := sixProblem(t, 6, 1)

	bad := p
	bad.Agents = 0
	_, err := Search(context.Background(), bad, exact())
	assert.ErrorIs(t, err, ErrNoAgents)

	bad = p
	bad.Horizon = -1
	_, err = Search(context.Background(), bad, exact())
	assert.ErrorIs(t, err, ErrNegativeHorizon)

	_, err = Search(context.Background(), Problem{}, exact())
	assert.ErrorIs(t, err, ErrNoGraph)

	_, err = Search(context.Background(), p, Config{Ceiling: -1})
	assert.ErrorIs(t, err, ErrBadConfig)

	_, err = NewProblem(sixEdges, sixRewards, "Q", 6, 1)
	assert.ErrorIs(t, err, ErrUnknownStart)

	_, err = NewProblem(sixEdges, map[string]int{"B": -2}, "A", 6, 1)
	assert.ErrorIs(t, err, ErrNegativeReward)

	_, err = NewProblem([]graph.Edge{{From: "A", To: "B", Weight: -1}}, nil, "A", 6, 1)
	assert.ErrorIs(t, err, graph.ErrNonPositiveWeight)
}

func TestSearchUnreachableRewardIgnored(t *testing.T) {
	rw := map[string]int{"B": 13, "C": 2, "D": 20, "Z": 1000}
	p, err := NewProblem(sixEdges, rw, "A", 6, 1)
	require.NoError(t, err)
	res, err := Search(context.Background(), p, exact())
	require.NoError(t, err)
	assert.Equal(t, 54, res.Reward)
}

func TestRecordMetrics(t *testing.T) {
	for i := 0; i < recentRuns+5; i++ {
		RecordMetrics("t_metrics", string(rune('a'+i%26))+string(rune('0'+i/26)), Metrics{BestReward: i, Snapshots: []TickSnapshot{{Tick: 1}}})
	}
	got := GetMetrics("t_metrics")
	assert.Len(t, got, recentRuns)
	for _, m := range got {
		assert.Nil(t, m.Snapshots)
	}
	assert.Empty(t, GetMetrics("t_none"))
}

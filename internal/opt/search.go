package opt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("beamsched/opt")

// TickSnapshot records the frontier after one tick.
type TickSnapshot struct {
	Tick       int  `json:"tick"`
	Frontier   int  `json:"frontier"`
	Expanded   int  `json:"expanded"`
	Pruned     bool `json:"pruned"`
	BestReward int  `json:"bestReward"`
}

// Metrics summarises one search.
type Metrics struct {
	Ticks         int            `json:"ticks"`
	Expanded      int            `json:"expanded"`
	Merged        int            `json:"merged"`
	PeakFrontier  int            `json:"peakFrontier"`
	FinalFrontier int            `json:"finalFrontier"`
	PruneRounds   int            `json:"pruneRounds"`
	Collapses     int            `json:"collapses"`
	Truncations   int            `json:"truncations"`
	BestReward    int            `json:"bestReward"`
	Scorer        string         `json:"scorer"`
	Duration      time.Duration  `json:"duration"`
	Snapshots     []TickSnapshot `json:"snapshots,omitempty"`
}

// Result is the outcome of Search.
type Result struct {
	Reward    int      `json:"reward"`
	Best      Branch   `json:"-"`
	Activated []string `json:"activated"` // node names in slot order
	Metrics   Metrics  `json:"metrics"`
}

// Search runs ticks 1..p.Horizon and returns the best accumulated reward
// found. With cfg.Ceiling == 0 the search is exhaustive. ctx is checked
// between ticks only.
func Search(ctx context.Context, p Problem, cfg Config) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	scorer := cfg.scorer()
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	ctx, span := tracer.Start(ctx, "opt.Search",
		trace.WithAttributes(
			attribute.Int("search.horizon", p.Horizon),
			attribute.Int("search.agents", p.Agents),
			attribute.Int("search.nodes", p.Graph.Len()),
			attribute.Int("search.ceiling", cfg.Ceiling),
			attribute.String("search.scorer", scorer.Name()),
		),
	)
	defer span.End()

	started := time.Now()
	table := NewDistanceTable(p.Graph, p.Start)
	bm := &beam{
		exp:     newExpander(p, table, cfg.ThrashFactor),
		env:     ScoreEnv{Horizon: p.Horizon, Graph: p.Graph, Table: table},
		scorer:  scorer,
		ceiling: cfg.Ceiling,
		workers: cfg.Workers,
		merge:   !cfg.KeepDuplicates,
	}
	log.Debug("search started",
		slog.Int("horizon", p.Horizon),
		slog.Int("agents", p.Agents),
		slog.Int("targets", table.Len()),
		slog.Int("reachable", table.Reachable(p.Start)),
	)

	m := Metrics{Scorer: scorer.Name(), PeakFrontier: 1}
	frontier := []*Branch{newBranch(p.Start, p.Agents, table.Len())}
	for tick := 1; tick <= p.Horizon; tick++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context canceled")
			m.Duration = time.Since(started)
			return Result{Metrics: m}, err
		}
		next, st, err := bm.advance(frontier, tick)
		if err != nil {
			err = fmt.Errorf("tick %d %s: %w", tick, bm.phase, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.Duration = time.Since(started)
			return Result{Metrics: m}, err
		}
		frontier = next
		best := bestOf(frontier)

		m.Ticks = tick
		m.Expanded += st.expanded
		m.Merged += st.merged
		m.PeakFrontier = max(m.PeakFrontier, st.expanded-st.merged)
		m.PruneRounds += st.pruneRounds
		m.Collapses += st.collapses
		m.Truncations += st.truncations
		m.Snapshots = append(m.Snapshots, TickSnapshot{
			Tick:       tick,
			Frontier:   len(frontier),
			Expanded:   st.expanded,
			Pruned:     st.pruned,
			BestReward: best.Reward,
		})
		log.Debug("tick",
			slog.Int("tick", tick),
			slog.Int("frontier", len(frontier)),
			slog.Bool("pruned", st.pruned),
			slog.Int("best", best.Reward),
		)
		if cfg.Observer != nil {
			cfg.Observer(TickReport{Tick: tick, Frontier: len(frontier), Pruned: st.pruned, Best: best.Clone()})
		}
	}

	bm.phase = phaseFinalizing
	best := bestOf(frontier)
	res := Result{Reward: best.Reward, Best: best.Clone()}
	for slot, n := range table.Targets() {
		if best.Activated.has(slot) {
			res.Activated = append(res.Activated, p.Graph.Name(n))
		}
	}
	m.BestReward = best.Reward
	m.FinalFrontier = len(frontier)
	m.Duration = time.Since(started)
	res.Metrics = m

	span.SetAttributes(
		attribute.Int("search.reward", res.Reward),
		attribute.Int("search.peak_frontier", m.PeakFrontier),
	)
	log.Debug("search finished",
		slog.Int("reward", res.Reward),
		slog.Int("peak_frontier", m.PeakFrontier),
		slog.Duration("took", m.Duration),
	)
	return res, nil
}

// bestOf returns the highest-reward branch, the earliest one on a tie.
func bestOf(frontier []*Branch) *Branch {
	best := frontier[0]
	for _, b := range frontier[1:] {
		if b.Reward > best.Reward {
			best = b
		}
	}
	return best
}

package opt

import (
	"fmt"
	"sort"

	"beamsched/internal/graph"
)

// ScoreEnv is what a Scorer may look at besides the branch itself. Tick is
// the tick whose expansion produced the candidates.
type ScoreEnv struct {
	Tick    int
	Horizon int
	Graph   *graph.Graph
	Table   *DistanceTable
}

// Scorer ranks candidates when the frontier has to be pruned. Higher is
// better. Implementations must be safe for concurrent use.
type Scorer interface {
	Name() string
	Score(env ScoreEnv, b *Branch) float64
}

// RawScorer ranks by reward already banked.
type RawScorer struct{}

func (RawScorer) Name() string { return "raw" }

func (RawScorer) Score(_ ScoreEnv, b *Branch) float64 { return float64(b.Reward) }

// ProjectedScorer adds what the current rate will bank by the horizon.
type ProjectedScorer struct{}

func (ProjectedScorer) Name() string { return "projected" }

func (ProjectedScorer) Score(env ScoreEnv, b *Branch) float64 {
	return float64(projected(env, b))
}

func projected(env ScoreEnv, b *Branch) int {
	left := env.Horizon - env.Tick
	if left < 0 {
		left = 0
	}
	return b.Reward + b.Rate*left
}

// DiscountedScorer is the projected score plus, for every node still off,
// its reward times the ticks that would remain if the closest non-parked
// agent went straight there and activated it.
type DiscountedScorer struct{}

func (DiscountedScorer) Name() string { return "discounted" }

func (DiscountedScorer) Score(env ScoreEnv, b *Branch) float64 {
	total := projected(env, b)
	for slot, x := range env.Table.Targets() {
		if b.Activated.has(slot) {
			continue
		}
		best := 0
		for _, a := range b.Agents {
			if a.Parked {
				continue
			}
			eta, ok := earliestActivation(env, a, x)
			if !ok {
				continue
			}
			if left := env.Horizon - eta; left > best {
				best = left
			}
		}
		total += env.Graph.Reward(x) * best
	}
	return float64(total)
}

// earliestActivation is the soonest tick at which a could turn x on.
func earliestActivation(env ScoreEnv, a Agent, x graph.NodeID) (int, bool) {
	if a.Moving {
		d, ok := env.Table.Distance(a.Dest, x)
		return a.Arrival + d, ok
	}
	d, ok := env.Table.Distance(a.Node, x)
	return env.Tick + 1 + d, ok
}

// VisitPenaltyScorer subtracts Penalty for every repeated arrival at a
// reward node from the Base score.
type VisitPenaltyScorer struct {
	Base    Scorer
	Penalty float64
}

func (s VisitPenaltyScorer) Name() string { return "visit-penalty" }

func (s VisitPenaltyScorer) Score(env ScoreEnv, b *Branch) float64 {
	base := s.Base
	if base == nil {
		base = DiscountedScorer{}
	}
	repeats := 0
	for _, v := range b.Visits {
		if v > 1 {
			repeats += int(v) - 1
		}
	}
	return base.Score(env, b) - s.Penalty*float64(repeats)
}

var scorers = map[string]func() Scorer{
	"raw":           func() Scorer { return RawScorer{} },
	"projected":     func() Scorer { return ProjectedScorer{} },
	"discounted":    func() Scorer { return DiscountedScorer{} },
	"visit-penalty": func() Scorer { return VisitPenaltyScorer{Base: DiscountedScorer{}, Penalty: 1} },
}

// ScorerByName resolves a scorer from configuration. The empty name is the
// default scorer.
func ScorerByName(name string) (Scorer, error) {
	if name == "" {
		return DiscountedScorer{}, nil
	}
	mk, ok := scorers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown scorer %q (have %v)", ErrBadConfig, name, ScorerNames())
	}
	return mk(), nil
}

// ScorerNames lists the names ScorerByName accepts.
func ScorerNames() []string {
	names := make([]string, 0, len(scorers))
	for n := range scorers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

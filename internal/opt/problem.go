package opt

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"beamsched/internal/graph"
)

var (
	ErrNoGraph         = errors.New("opt: problem has no graph")
	ErrUnknownStart    = errors.New("opt: unknown start node")
	ErrNoAgents        = errors.New("opt: agent count must be positive")
	ErrNegativeHorizon = errors.New("opt: horizon must be >= 0")
	ErrNegativeReward  = errors.New("opt: reward must be >= 0")
	ErrBadConfig       = errors.New("opt: invalid search config")
	// ErrInvariant marks a broken search invariant. It is never retried.
	ErrInvariant = errors.New("opt: search invariant violated")
)

// Problem is one search instance.
type Problem struct {
	Graph   *graph.Graph
	Start   graph.NodeID
	Horizon int // ticks, searched from 1 to Horizon inclusive
	Agents  int
}

// NewProblem builds the graph from an edge list, applies rewards by node
// name and resolves the start node. Reward names that appear in no edge
// become isolated nodes, which the search treats as unreachable.
func NewProblem(edges []graph.Edge, rewards map[string]int, start string, horizon, agents int) (Problem, error) {
	g, err := graph.Build(edges)
	if err != nil {
		return Problem{}, err
	}
	names := make([]string, 0, len(rewards))
	for name := range rewards {
		names = append(names, name)
	}
	sort.Strings(names) // stable node ids for a given document
	for _, name := range names {
		v := rewards[name]
		if v < 0 {
			return Problem{}, fmt.Errorf("node %s reward %d: %w", name, v, ErrNegativeReward)
		}
		g.SetReward(g.AddNode(name), v)
	}
	id, ok := g.Lookup(start)
	if !ok {
		return Problem{}, fmt.Errorf("%w: %q", ErrUnknownStart, start)
	}
	p := Problem{Graph: g, Start: id, Horizon: horizon, Agents: agents}
	return p, p.Validate()
}

// Validate rejects configuration errors before any tick runs.
func (p Problem) Validate() error {
	if p.Graph == nil {
		return ErrNoGraph
	}
	if p.Start < 0 || int(p.Start) >= p.Graph.Len() {
		return fmt.Errorf("%w: id %d", ErrUnknownStart, p.Start)
	}
	if p.Agents <= 0 {
		return fmt.Errorf("%w: got %d", ErrNoAgents, p.Agents)
	}
	if p.Horizon < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeHorizon, p.Horizon)
	}
	return nil
}

// Observer receives one report per tick. Nothing it does feeds back into
// the search.
type Observer func(TickReport)

// TickReport is the per-tick diagnostic view of the frontier. Best is a
// copy of the highest-reward branch.
type TickReport struct {
	Tick     int
	Frontier int
	Pruned   bool
	Best     Branch
}

// Config tunes the beam. The zero value is an exact search: no ceiling, no
// anti-thrash rule, one worker, duplicate merging on.
type Config struct {
	// Ceiling is the frontier size that triggers pruning; 0 disables pruning.
	Ceiling int `mapstructure:"ceiling"`
	// Scorer ranks candidates when pruning; nil means DiscountedScorer.
	Scorer Scorer `mapstructure:"-"`
	// ThrashFactor caps arrivals per node at degree*ThrashFactor; 0 disables.
	ThrashFactor int `mapstructure:"thrashFactor"`
	// KeepDuplicates turns off merging of branches with the same state.
	KeepDuplicates bool `mapstructure:"keepDuplicates"`
	// Workers is the number of goroutines used to expand and score a tick.
	Workers  int          `mapstructure:"workers"`
	Observer Observer     `mapstructure:"-"`
	Logger   *slog.Logger `mapstructure:"-"`
}

// DefaultConfig is the tuned setting used by the service and the CLI.
func DefaultConfig() Config {
	return Config{
		Ceiling:      100000,
		ThrashFactor: 2,
		Workers:      1,
	}
}

func (c Config) validate() error {
	if c.Ceiling < 0 {
		return fmt.Errorf("%w: ceiling %d", ErrBadConfig, c.Ceiling)
	}
	if c.ThrashFactor < 0 {
		return fmt.Errorf("%w: thrashFactor %d", ErrBadConfig, c.ThrashFactor)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrBadConfig, c.Workers)
	}
	return nil
}

func (c Config) scorer() Scorer {
	if c.Scorer == nil {
		return DiscountedScorer{}
	}
	return c.Scorer
}

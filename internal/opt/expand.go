package opt

import (
	"fmt"

	"beamsched/internal/graph"
)

type actionKind uint8

const (
	actContinue actionKind = iota // in flight, keep going
	actHold                       // park for the rest of the search
	actActivate
	actCommit
)

type action struct {
	kind    actionKind
	node    graph.NodeID
	slot    int
	arrival int
}

func (a action) claims() bool { return a.kind == actActivate || a.kind == actCommit }

var (
	continueOnly = []action{{kind: actContinue}}
	holdOnly     = []action{{kind: actHold}}
)

// expander enumerates the successors of one branch for one tick.
type expander struct {
	g          *graph.Graph
	table      *DistanceTable
	horizon    int
	visitLimit []int // per slot; 0 means unlimited
}

func newExpander(p Problem, table *DistanceTable, thrashFactor int) *expander {
	e := &expander{
		g:          p.Graph,
		table:      table,
		horizon:    p.Horizon,
		visitLimit: make([]int, table.Len()),
	}
	if thrashFactor > 0 {
		for slot, n := range table.Targets() {
			e.visitLimit[slot] = p.Graph.Degree(n) * thrashFactor
		}
	}
	return e
}

// step resolves arrivals due at tick, banks one tick of reward and returns
// every legal combination of agent actions as new branches. b is not
// modified. The result is never empty: Hold is always available.
func (e *expander) step(b *Branch, tick int) ([]*Branch, error) {
	base := b.clone()
	for i := range base.Agents {
		a := &base.Agents[i]
		if !a.Moving {
			continue
		}
		if a.Arrival < tick {
			return nil, fmt.Errorf("%w: agent bound for %s missed arrival tick %d (now %d)",
				ErrInvariant, e.g.Name(a.Dest), a.Arrival, tick)
		}
		if a.Arrival == tick {
			*a = Agent{Node: a.Dest, Parked: a.Parked}
			if slot, ok := e.table.Slot(a.Node); ok {
				base.visit(slot)
			}
		}
	}
	sortAgents(base.Agents)
	base.Reward += base.Rate

	// nodes that already have an agent on the way
	claimed := newNodeSet(e.table.Len())
	options := make([][]action, len(base.Agents))
	idle := false
	for i, a := range base.Agents {
		switch {
		case a.Moving:
			options[i] = continueOnly
			if slot, ok := e.table.Slot(a.Dest); ok {
				claimed.set(slot)
			}
		case a.Parked:
			options[i] = holdOnly
		default:
			options[i] = e.options(base, a, tick)
			idle = true
		}
	}
	if !idle {
		return []*Branch{base}, nil
	}

	var out []*Branch
	picks := make([]int, len(base.Agents))
	var walk func(i int) error
	walk = func(i int) error {
		if i == len(base.Agents) {
			nb, err := e.apply(base, options, picks)
			if err != nil {
				return err
			}
			out = append(out, nb)
			return nil
		}
		first := 0
		if i > 0 && interchangeable(base.Agents[i-1], base.Agents[i]) {
			// identical agents pick in non-decreasing order, so each
			// assignment is generated once rather than once per permutation
			first = picks[i-1]
		}
		for k := first; k < len(options[i]); k++ {
			act := options[i][k]
			if act.claims() {
				if claimed.has(act.slot) {
					continue
				}
				claimed.set(act.slot)
			}
			picks[i] = k
			err := walk(i + 1)
			if act.claims() {
				claimed.clear(act.slot)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return nil, err
	}
	return out, nil
}

// options lists what an idle agent may do this tick: hold, activate the
// node it stands on, or commit to any unactivated reward node it can reach
// early enough to still earn something before the horizon.
func (e *expander) options(b *Branch, a Agent, tick int) []action {
	opts := []action{{kind: actHold}}
	if slot, ok := e.table.Slot(a.Node); ok && !b.Activated.has(slot) {
		opts = append(opts, action{kind: actActivate, node: a.Node, slot: slot})
	}
	for slot, target := range e.table.Targets() {
		if target == a.Node || b.Activated.has(slot) {
			continue
		}
		d, ok := e.table.Distance(a.Node, target)
		if !ok || tick+d >= e.horizon {
			continue
		}
		if limit := e.visitLimit[slot]; limit > 0 && int(b.Visits[slot]) > limit {
			continue
		}
		opts = append(opts, action{kind: actCommit, node: target, slot: slot, arrival: tick + d})
	}
	return opts
}

func (e *expander) apply(base *Branch, options [][]action, picks []int) (*Branch, error) {
	nb := base.clone()
	for i, k := range picks {
		act := options[i][k]
		ag := &nb.Agents[i]
		switch act.kind {
		case actHold:
			ag.Parked = true
		case actActivate:
			if nb.Activated.has(act.slot) {
				return nil, fmt.Errorf("%w: %s activated twice", ErrInvariant, e.g.Name(act.node))
			}
			nb.Activated.set(act.slot)
			nb.Rate += e.g.Reward(act.node)
		case actCommit:
			if ag.Moving {
				return nil, fmt.Errorf("%w: agent at %s given a second move", ErrInvariant, e.g.Name(ag.Node))
			}
			ag.Moving, ag.Dest, ag.Arrival = true, act.node, act.arrival
		}
	}
	sortAgents(nb.Agents)
	return nb, nil
}

func interchangeable(a, b Agent) bool {
	return a == b && !a.Moving && !a.Parked
}

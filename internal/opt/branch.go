package opt

import (
	"encoding/binary"
	"math"
	"sort"

	"beamsched/internal/graph"
)

// Agent is one mobile worker inside a Branch. An agent that is not Moving
// is idle at Node and must pick an action on the next tick unless Parked.
type Agent struct {
	Node    graph.NodeID
	Moving  bool
	Dest    graph.NodeID // valid while Moving
	Arrival int          // tick at which Dest is reached, valid while Moving
	Parked  bool         // chose Hold; never acts again
}

func (a Agent) less(b Agent) bool {
	switch {
	case a.Node != b.Node:
		return a.Node < b.Node
	case a.Moving != b.Moving:
		return !a.Moving
	case a.Dest != b.Dest:
		return a.Dest < b.Dest
	case a.Arrival != b.Arrival:
		return a.Arrival < b.Arrival
	default:
		return !a.Parked && b.Parked
	}
}

// sortAgents keeps agents in canonical order. Agents are interchangeable,
// so two branches that differ only by agent order are the same schedule.
func sortAgents(agents []Agent) {
	sort.Slice(agents, func(i, j int) bool { return agents[i].less(agents[j]) })
}

// Branch is one candidate partial schedule. Branches are never mutated
// after they join a frontier; successors are built from a clone.
type Branch struct {
	Activated nodeSet
	Reward    int // accumulated so far
	Rate      int // reward released per tick by the activated nodes
	Agents    []Agent
	Visits    []uint8 // arrivals per reward slot
}

func newBranch(start graph.NodeID, agents, slots int) *Branch {
	b := &Branch{
		Activated: newNodeSet(slots),
		Agents:    make([]Agent, agents),
		Visits:    make([]uint8, slots),
	}
	for i := range b.Agents {
		b.Agents[i] = Agent{Node: start}
	}
	return b
}

func (b *Branch) clone() *Branch {
	return &Branch{
		Activated: b.Activated.clone(),
		Reward:    b.Reward,
		Rate:      b.Rate,
		Agents:    append([]Agent(nil), b.Agents...),
		Visits:    append([]uint8(nil), b.Visits...),
	}
}

// Clone returns a deep copy that shares nothing with b.
func (b *Branch) Clone() Branch { return *b.clone() }

// IsActivated reports whether the reward node in slot has been turned on.
func (b *Branch) IsActivated(slot int) bool { return b.Activated.has(slot) }

// ActivatedCount is the number of nodes turned on.
func (b *Branch) ActivatedCount() int { return b.Activated.count() }

func (b *Branch) visit(slot int) {
	if b.Visits[slot] < math.MaxUint8 {
		b.Visits[slot]++
	}
}

// stateKey identifies the schedule position of b: what is on and where
// every agent is headed. Reward and visit counts are left out so that
// equivalent branches collide and the richer one can be kept.
func (b *Branch) stateKey() string {
	buf := make([]byte, 0, 8*len(b.Activated)+12*len(b.Agents))
	for _, w := range b.Activated {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	for _, a := range b.Agents {
		buf = binary.AppendUvarint(buf, uint64(a.Node))
		flags := uint64(0)
		if a.Moving {
			flags |= 1
		}
		if a.Parked {
			flags |= 2
		}
		buf = binary.AppendUvarint(buf, flags)
		if a.Moving {
			buf = binary.AppendUvarint(buf, uint64(a.Dest))
			buf = binary.AppendUvarint(buf, uint64(a.Arrival))
		}
	}
	return string(buf)
}

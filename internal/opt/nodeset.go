package opt

import "math/bits"

// nodeSet is a bitset over reward-node slots (see DistanceTable.Slot).
type nodeSet []uint64

func newNodeSet(n int) nodeSet { return make(nodeSet, (n+63)/64) }

func (s nodeSet) has(i int) bool { return s[i/64]&(1<<(uint(i)%64)) != 0 }

func (s nodeSet) set(i int) { s[i/64] |= 1 << (uint(i) % 64) }

func (s nodeSet) clear(i int) { s[i/64] &^= 1 << (uint(i) % 64) }

func (s nodeSet) count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s nodeSet) clone() nodeSet { return append(nodeSet(nil), s...) }

package opt

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

type phase int

const (
	phaseExpanding phase = iota
	phaseScoring
	phasePruning
	phaseAdvancing
	phaseFinalizing
)

func (p phase) String() string {
	switch p {
	case phaseExpanding:
		return "expanding"
	case phaseScoring:
		return "scoring"
	case phasePruning:
		return "pruning"
	case phaseAdvancing:
		return "advancing"
	case phaseFinalizing:
		return "finalizing"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// beam owns the frontier controller: expand every branch by one tick,
// merge equivalent states, and cut the frontier back under the ceiling.
type beam struct {
	exp     *expander
	env     ScoreEnv
	scorer  Scorer
	ceiling int
	workers int
	merge   bool
	phase   phase
}

type tickStats struct {
	expanded    int
	merged      int
	pruned      bool
	pruneRounds int
	collapses   int
	truncations int
}

// advance moves the frontier from tick-1 to tick.
func (bm *beam) advance(frontier []*Branch, tick int) ([]*Branch, tickStats, error) {
	var st tickStats
	bm.phase = phaseExpanding
	next, err := bm.expand(frontier, tick)
	if err != nil {
		return nil, st, err
	}
	st.expanded = len(next)
	if bm.merge {
		next, st.merged = mergeDuplicates(next)
	}
	if bm.ceiling > 0 && len(next) > bm.ceiling {
		bm.phase = phaseScoring
		env := bm.env
		env.Tick = tick
		scores, err := bm.score(env, next)
		if err != nil {
			return nil, st, err
		}
		bm.phase = phasePruning
		var ps pruneStats
		next, ps = prune(next, scores, bm.ceiling)
		st.pruned = true
		st.pruneRounds, st.collapses, st.truncations = ps.rounds, ps.collapses, ps.truncations
	}
	if len(next) == 0 {
		return nil, st, fmt.Errorf("%w: empty frontier", ErrInvariant)
	}
	bm.phase = phaseAdvancing
	return next, st, nil
}

type chunk struct{ lo, hi int }

// chunks splits n items into at most w contiguous ranges.
func chunks(n, w int) []chunk {
	if w < 1 {
		w = 1
	}
	if w > n {
		w = n
	}
	out := make([]chunk, 0, w)
	size, rem := n/w, n%w
	lo := 0
	for i := 0; i < w; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		out = append(out, chunk{lo, hi})
		lo = hi
	}
	return out
}

func (bm *beam) expand(frontier []*Branch, tick int) ([]*Branch, error) {
	if bm.workers <= 1 || len(frontier) < 2*bm.workers {
		var out []*Branch
		for _, b := range frontier {
			succ, err := bm.exp.step(b, tick)
			if err != nil {
				return nil, err
			}
			out = append(out, succ...)
		}
		return out, nil
	}
	parts := chunks(len(frontier), bm.workers)
	results := make([][]*Branch, len(parts))
	var g errgroup.Group
	for i, c := range parts {
		g.Go(func() error {
			for _, b := range frontier[c.lo:c.hi] {
				succ, err := bm.exp.step(b, tick)
				if err != nil {
					return err
				}
				results[i] = append(results[i], succ...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]*Branch, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (bm *beam) score(env ScoreEnv, cands []*Branch) ([]float64, error) {
	scores := make([]float64, len(cands))
	if bm.workers <= 1 || len(cands) < 2*bm.workers {
		for i, b := range cands {
			scores[i] = bm.scorer.Score(env, b)
		}
		return scores, nil
	}
	var g errgroup.Group
	for _, c := range chunks(len(cands), bm.workers) {
		g.Go(func() error {
			for i := c.lo; i < c.hi; i++ {
				scores[i] = bm.scorer.Score(env, cands[i])
			}
			return nil
		})
	}
	return scores, g.Wait()
}

// mergeDuplicates collapses branches with the same stateKey into the
// position of the first one seen, keeping the higher reward.
func mergeDuplicates(in []*Branch) ([]*Branch, int) {
	seen := make(map[string]int, len(in))
	out := in[:0]
	merged := 0
	for _, b := range in {
		k := b.stateKey()
		if i, ok := seen[k]; ok {
			merged++
			if b.Reward > out[i].Reward {
				out[i] = b
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, b)
	}
	return out, merged
}

type pruneStats struct {
	rounds      int
	collapses   int
	truncations int
}

// prune cuts cands down to at most ceiling entries using scores, which is
// indexed like cands. Each round drops everything below the midpoint of the
// current score range. When all scores are equal the single best by reward
// survives; when a round drops nothing the best ceiling by score survive.
func prune(cands []*Branch, scores []float64, ceiling int) ([]*Branch, pruneStats) {
	var st pruneStats
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	for len(idx) > ceiling {
		st.rounds++
		lo, hi := scores[idx[0]], scores[idx[0]]
		for _, i := range idx[1:] {
			lo = min(lo, scores[i])
			hi = max(hi, scores[i])
		}
		if lo == hi {
			best := idx[0]
			for _, i := range idx[1:] {
				if cands[i].Reward > cands[best].Reward {
					best = i
				}
			}
			idx = []int{best}
			st.collapses++
			break
		}
		mid := lo + (hi-lo)/2
		kept := make([]int, 0, len(idx))
		for _, i := range idx {
			if scores[i] >= mid {
				kept = append(kept, i)
			}
		}
		if len(kept) == len(idx) {
			sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
			idx = idx[:ceiling]
			st.truncations++
			break
		}
		idx = kept
	}
	out := make([]*Branch, len(idx))
	for j, i := range idx {
		out[j] = cands[i]
	}
	return out, st
}

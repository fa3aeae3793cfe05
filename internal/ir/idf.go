package ir

// Dominance frontiers, computed with the Cytron et al. algorithm over
// the dominator tree:
//
// Ron Cytron et al. 1991. Efficiently computing SSA form and the control
// dependence graph. http://doi.acm.org/10.1145/115372.115320
//
// The iterated frontier is the phi-placement primitive used by memory
// promotion: given the blocks defining a cell and the blocks where its
// value is live on entry, it yields the blocks needing phi-nodes.

import (
	"sort"
)

// DomFrontier maps each reachable block to its dominance frontier. The
// inner slice is conceptually a set and may contain duplicates.
type DomFrontier struct {
	dt        *DomTree
	frontiers map[*Block][]*Block
}

// BuildDomFrontier computes the dominance frontier of every reachable
// block of the dominator tree's function.
func BuildDomFrontier(dt *DomTree) *DomFrontier {
	df := &DomFrontier{dt: dt, frontiers: make(map[*Block][]*Block)}
	df.build(dt.fn.Entry())
	return df
}

// build visits the dominator subtree rooted at u in postorder.
func (df *DomFrontier) build(u *Block) {
	for _, child := range df.dt.Children(u) {
		df.build(child)
	}
	for _, v := range u.Succs {
		if df.dt.Idom(v) != u {
			df.frontiers[u] = append(df.frontiers[u], v)
		}
	}
	for _, w := range df.dt.Children(u) {
		for _, v := range df.frontiers[w] {
			if df.dt.Idom(v) != u {
				df.frontiers[u] = append(df.frontiers[u], v)
			}
		}
	}
}

// Frontier returns the dominance frontier of b.
func (df *DomFrontier) Frontier(b *Block) []*Block { return df.frontiers[b] }

// Iterated computes the iterated dominance frontier of the defining
// blocks, restricted to blocks where the value is live on entry. The
// result is sorted by block number so phi insertion order is
// deterministic.
func (df *DomFrontier) Iterated(defs []*Block, liveIn map[*Block]bool) []*Block {
	defSet := make(map[*Block]bool, len(defs))
	worklist := make([]*Block, 0, len(defs))
	for _, b := range defs {
		if !defSet[b] {
			defSet[b] = true
			worklist = append(worklist, b)
		}
	}

	inserted := make(map[*Block]bool)
	var result []*Block
	for len(worklist) > 0 {
		u := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, v := range df.frontiers[u] {
			if inserted[v] || !liveIn[v] {
				continue
			}
			inserted[v] = true
			result = append(result, v)
			if !defSet[v] {
				worklist = append(worklist, v)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result
}

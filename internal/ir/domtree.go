package ir

// Dominator tree
//
// There are some general dominator definitions:
// * Dominators: a dom b if all paths from entry to block b include a
// * Strict Dominators: a sdom b if a dom b and a != b
// * Immediate Dominators: a idom b if a sdom b and there is no block c
//   such that a sdom c sdom b
//
// The tree is computed with the iterative dataflow algorithm over
// dominator sets; it is quadratic in the worst case but the functions
// this optimizer sees are small. Only blocks reachable from the entry
// participate; an unreachable block dominates nothing and is dominated
// by nothing.

import (
	"fmt"
	"sort"
)

type DomTree struct {
	fn        *Function
	doms      map[*Block]map[*Block]bool
	idom      map[*Block]*Block
	children  map[*Block][]*Block
	reachable map[*Block]bool
}

// BuildDomTree computes the dominator tree of fn. The CFG and block
// numbering must be up to date.
func BuildDomTree(fn *Function) *DomTree {
	dt := &DomTree{
		fn:        fn,
		doms:      make(map[*Block]map[*Block]bool),
		idom:      make(map[*Block]*Block),
		children:  make(map[*Block][]*Block),
		reachable: make(map[*Block]bool),
	}

	entry := fn.Entry()
	dt.markReachable(entry)

	var order []*Block
	for _, b := range fn.Blocks {
		if dt.reachable[b] {
			order = append(order, b)
		}
	}

	dt.doms[entry] = map[*Block]bool{entry: true}
	all := make(map[*Block]bool, len(order))
	for _, b := range order {
		all[b] = true
	}
	for _, b := range order {
		if b == entry {
			continue
		}
		full := make(map[*Block]bool, len(all))
		for k := range all {
			full[k] = true
		}
		dt.doms[b] = full
	}

	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if b == entry {
				continue
			}
			newdom := dt.intersectPreds(b)
			newdom[b] = true
			if len(newdom) != len(dt.doms[b]) {
				dt.doms[b] = newdom
				changed = true
			}
		}
	}

	dt.buildTree(order)
	return dt
}

func (dt *DomTree) markReachable(b *Block) {
	if dt.reachable[b] {
		return
	}
	dt.reachable[b] = true
	if b.Term == nil {
		return
	}
	for _, s := range b.Term.Targets() {
		dt.markReachable(s)
	}
}

// intersectPreds intersects the dominator sets of b's reachable
// predecessors.
func (dt *DomTree) intersectPreds(b *Block) map[*Block]bool {
	var result map[*Block]bool
	for _, pred := range b.Preds {
		if !dt.reachable[pred] {
			continue
		}
		pd := dt.doms[pred]
		if result == nil {
			result = make(map[*Block]bool, len(pd))
			for k := range pd {
				result[k] = true
			}
			continue
		}
		for k := range result {
			if !pd[k] {
				delete(result, k)
			}
		}
	}
	if result == nil {
		result = make(map[*Block]bool)
	}
	return result
}

// buildTree derives idoms and ordered child lists from the dominator
// sets. The immediate dominator of b is its strict dominator with the
// largest dominator set.
func (dt *DomTree) buildTree(order []*Block) {
	for _, b := range order {
		if b == dt.fn.Entry() {
			continue
		}
		var idom *Block
		for d := range dt.doms[b] {
			if d == b {
				continue
			}
			if idom == nil || len(dt.doms[d]) > len(dt.doms[idom]) {
				idom = d
			}
		}
		dt.idom[b] = idom
		if idom != nil {
			dt.children[idom] = append(dt.children[idom], b)
		}
	}
	for _, kids := range dt.children {
		sort.Slice(kids, func(i, j int) bool { return kids[i].Index < kids[j].Index })
	}
}

// Reachable reports whether b is reachable from the entry block.
func (dt *DomTree) Reachable(b *Block) bool { return dt.reachable[b] }

// Idom returns b's immediate dominator, nil for the entry block and for
// unreachable blocks.
func (dt *DomTree) Idom(b *Block) *Block { return dt.idom[b] }

// Children returns the blocks immediately dominated by b, ordered by
// block number.
func (dt *DomTree) Children(b *Block) []*Block { return dt.children[b] }

// Dominates reports whether a dominates b. Every block dominates itself.
// Unreachable blocks neither dominate nor are dominated.
func (dt *DomTree) Dominates(a, b *Block) bool {
	if a == b {
		return dt.reachable[a]
	}
	if !dt.reachable[b] {
		return false
	}
	return dt.doms[b][a]
}

// InstDominates reports whether instruction a dominates instruction b,
// respecting intra-block ordering. An instruction does not dominate
// itself.
func (dt *DomTree) InstDominates(a, b Instruction) bool {
	ba, bb := a.Parent(), b.Parent()
	if ba == nil || bb == nil {
		panic("ir: dominance query on a detached instruction")
	}
	if ba == bb {
		return ba.position(a) < ba.position(b)
	}
	return dt.Dominates(ba, bb)
}

// ValueDominates reports whether the definition of v dominates
// instruction at. Values that are not instructions (parameters,
// constants, markers) dominate everything.
func (dt *DomTree) ValueDominates(v Value, at Instruction) bool {
	def, ok := v.(Instruction)
	if !ok {
		return true
	}
	return dt.InstDominates(def, at)
}

// VerifyDominance checks that in reachable code every instruction
// operand is dominated by its definition; phi operands must dominate the
// matching predecessor's terminator instead. Function.Verify runs this
// as its final step.
func (dt *DomTree) VerifyDominance() error {
	for _, b := range dt.fn.Blocks {
		if !dt.reachable[b] {
			continue
		}
		for _, instr := range b.Instrs {
			if phi, ok := instr.(*Phi); ok {
				for _, inc := range phi.Incomings {
					def, isInstr := inc.Val.(Instruction)
					if !isInstr {
						continue
					}
					if !dt.reachable[inc.Pred] {
						continue
					}
					if !dt.Dominates(def.Parent(), inc.Pred) {
						return fmt.Errorf("phi %s operand %s does not dominate predecessor %s",
							phi.Name(), inc.Val.Name(), inc.Pred.Label)
					}
				}
				continue
			}
			for _, slot := range instr.Operands() {
				if !dt.ValueDominates(*slot, instr) {
					return fmt.Errorf("use of %s in block %s is not dominated by its definition",
						(*slot).Name(), b.Label)
				}
			}
		}
		if b.Term != nil {
			for _, slot := range b.Term.Operands() {
				if !dt.ValueDominates(*slot, b.Term) {
					return fmt.Errorf("use of %s in terminator of block %s is not dominated by its definition",
						(*slot).Name(), b.Label)
				}
			}
		}
	}
	return nil
}

package ir

// Memory-to-register promotion
//
// Rewrites stack cells (allocas) accessed only through loads and stores
// into SSA values, inserting phi-nodes at iterated-dominance-frontier
// join points and renaming the current cell value along a CFG walk.
//
// Cited papers:
//
// Ron Cytron et al. 1991. Efficiently computing SSA form and the control
// dependence graph. http://doi.acm.org/10.1145/115372.115320
//
// Two fast paths handle the common shapes without phi insertion: a cell
// written by a single store, and a cell whose accesses all live in one
// block. Either may decline or succeed only partially, in which case the
// cell falls through to the general algorithm.

import (
	"fmt"
	"sort"
)

// IsAllocaPromotable reports whether the cell is safe to promote: every
// user is a load of the allocated type, or a store of a value of the
// allocated type into the cell. A store of the cell itself (its address
// escaping as data) disqualifies it, as does any other kind of user.
func IsAllocaPromotable(a *Alloca) bool {
	for _, user := range a.Users() {
		switch u := user.(type) {
		case *Load:
			if !SameType(u.Type(), a.Allocated) {
				return false
			}
		case *Store:
			if u.Val == Value(a) {
				return false // address stored as a value
			}
			if !SameType(u.Val.Type(), a.Allocated) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// allocaInfo summarizes one cell's users.
type allocaInfo struct {
	definingBlocks []*Block // one entry per store
	usingBlocks    []*Block // one entry per load

	onlyStore          *Store // the unique store, when len(definingBlocks) == 1
	onlyBlock          *Block
	onlyUsedInOneBlock bool
}

func (ai *allocaInfo) analyze(a *Alloca) {
	ai.onlyUsedInOneBlock = true
	for _, user := range a.Users() {
		switch u := user.(type) {
		case *Store:
			ai.definingBlocks = append(ai.definingBlocks, u.Parent())
			ai.onlyStore = u
			ai.noteBlock(u.Parent())
		case *Load:
			ai.usingBlocks = append(ai.usingBlocks, u.Parent())
			ai.noteBlock(u.Parent())
		}
	}
}

func (ai *allocaInfo) noteBlock(b *Block) {
	if ai.onlyBlock == nil {
		ai.onlyBlock = b
	} else if ai.onlyBlock != b {
		ai.onlyUsedInOneBlock = false
	}
}

// largeBlockInfo lazily numbers the interesting instructions (loads from
// and stores to cells) of a block, so the fast paths can compare
// intra-block positions without rescanning a large block per query.
type largeBlockInfo struct {
	indexes map[Instruction]int
}

func newLargeBlockInfo() *largeBlockInfo {
	return &largeBlockInfo{indexes: make(map[Instruction]int)}
}

func isInterestingInstruction(instr Instruction) bool {
	switch in := instr.(type) {
	case *Load:
		_, ok := in.Addr.(*Alloca)
		return ok
	case *Store:
		_, ok := in.Addr.(*Alloca)
		return ok
	}
	return false
}

// index returns instr's position among its block's interesting
// instructions, scanning and caching the whole block on a miss.
func (lbi *largeBlockInfo) index(instr Instruction) int {
	if idx, ok := lbi.indexes[instr]; ok {
		return idx
	}
	n := 0
	for _, cand := range instr.Parent().Instrs {
		if isInterestingInstruction(cand) {
			lbi.indexes[cand] = n
			n++
		}
	}
	idx, ok := lbi.indexes[instr]
	if !ok {
		panic(fmt.Sprintf("ir: %s is not an interesting instruction", instr))
	}
	return idx
}

func (lbi *largeBlockInfo) forget(instr Instruction) {
	delete(lbi.indexes, instr)
}

// phiKey identifies an inserted phi by (block number, cell index).
type phiKey struct {
	blockIndex  int
	allocaIndex int
}

// promoter carries the state of one promotion run.
type promoter struct {
	fn *Function
	dt *DomTree

	allocas      []*Alloca
	allocaLookup map[*Alloca]int
	versions     []int

	newPhis     map[phiKey]*Phi
	phiToAlloca map[*Phi]int

	visited map[*Block]bool
}

// PromoteAllocas promotes the given cells in place. Every cell must pass
// IsAllocaPromotable and belong to the same function as dt; violating
// either is a programmer error.
func PromoteAllocas(allocas []*Alloca, dt *DomTree) {
	if len(allocas) == 0 {
		return
	}
	fn := dt.fn
	for _, a := range allocas {
		if a.Parent() == nil || a.Parent().Parent() != fn {
			panic(fmt.Sprintf("ir: alloca %s is not part of @%s", a.Name(), fn.Name))
		}
		if !IsAllocaPromotable(a) {
			panic(fmt.Sprintf("ir: alloca %s is not promotable", a.Name()))
		}
	}
	pm := &promoter{
		fn:           fn,
		dt:           dt,
		allocas:      allocas,
		allocaLookup: make(map[*Alloca]int),
		newPhis:      make(map[phiKey]*Phi),
		phiToAlloca:  make(map[*Phi]int),
		visited:      make(map[*Block]bool),
	}
	pm.run()
}

type pendingAlloca struct {
	alloca *Alloca
	info   *allocaInfo
}

func (pm *promoter) run() {
	lbi := newLargeBlockInfo()

	var pending []pendingAlloca
	for _, a := range pm.allocas {
		if len(a.Users()) == 0 {
			// never read or written
			Erase(a)
			continue
		}

		info := &allocaInfo{}
		info.analyze(a)

		if len(info.definingBlocks) == 1 && pm.rewriteSingleStore(a, info, lbi) {
			continue
		}
		if info.onlyUsedInOneBlock && pm.promoteSingleBlock(a, info, lbi) {
			continue
		}
		pending = append(pending, pendingAlloca{alloca: a, info: info})
	}
	if len(pending) == 0 {
		return
	}

	// The index is only consulted by the fast paths; the general phase
	// works on whole blocks.
	lbi = nil

	pm.allocas = pm.allocas[:0]
	for i, pa := range pending {
		pm.allocas = append(pm.allocas, pa.alloca)
		pm.allocaLookup[pa.alloca] = i
	}
	pm.versions = make([]int, len(pending))

	df := BuildDomFrontier(pm.dt)
	for i, pa := range pending {
		defBlocks := make(map[*Block]bool)
		for _, b := range pa.info.definingBlocks {
			defBlocks[b] = true
		}
		liveIn := pm.computeLiveIn(pa.alloca, pa.info, defBlocks)
		for _, b := range df.Iterated(pa.info.definingBlocks, liveIn) {
			pm.queuePhiNode(b, i)
		}
	}

	pm.rename()
	pm.cleanup()
}

// rewriteSingleStore handles a cell with exactly one store: every load
// dominated by the store reads the stored value directly. Loads the
// store does not dominate are recorded as residual using-blocks and the
// cell falls through to the general path.
func (pm *promoter) rewriteSingleStore(a *Alloca, info *allocaInfo, lbi *largeBlockInfo) bool {
	store := info.onlyStore
	sv := store.Val
	_, svIsInstr := sv.(Instruction)
	storeBlock := store.Parent()
	storeIndex := -1

	info.usingBlocks = nil
	for _, user := range append([]Instruction(nil), a.Users()...) {
		ld, ok := user.(*Load)
		if !ok {
			continue // the store itself
		}
		if ld.Parent() == storeBlock {
			// same block: the load must come after the store, or it
			// observes whatever the cell held beforehand
			if storeIndex < 0 {
				storeIndex = lbi.index(store)
			}
			if lbi.index(ld) < storeIndex {
				info.usingBlocks = append(info.usingBlocks, storeBlock)
				continue
			}
		} else if svIsInstr && !pm.dt.Dominates(storeBlock, ld.Parent()) {
			// non-instruction values are available everywhere, so the
			// block-dominance test only applies to instruction values
			info.usingBlocks = append(info.usingBlocks, ld.Parent())
			continue
		}
		repl := sv
		if repl == Value(ld) {
			// a load feeding its own store only happens in unreachable code
			repl = NewPoison(ld.Type())
		}
		ReplaceAllUses(ld, repl)
		lbi.forget(ld)
		Erase(ld)
	}

	if len(info.usingBlocks) > 0 {
		return false
	}
	lbi.forget(store)
	Erase(store)
	Erase(a)
	return true
}

// promoteSingleBlock handles a cell whose loads and stores all live in
// one block: each load reads the nearest preceding store's value.
func (pm *promoter) promoteSingleBlock(a *Alloca, info *allocaInfo, lbi *largeBlockInfo) bool {
	type indexedStore struct {
		index int
		store *Store
	}
	var stores []indexedStore
	for _, user := range a.Users() {
		if st, ok := user.(*Store); ok {
			stores = append(stores, indexedStore{index: lbi.index(st), store: st})
		}
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].index < stores[j].index })

	for _, user := range append([]Instruction(nil), a.Users()...) {
		ld, ok := user.(*Load)
		if !ok {
			continue
		}
		ldIndex := lbi.index(ld)
		i := sort.Search(len(stores), func(i int) bool { return stores[i].index >= ldIndex })
		if i == 0 {
			if len(stores) == 0 {
				// never stored: the load sees an unspecified value
				ReplaceAllUses(ld, NewUndef(ld.Type()))
				lbi.forget(ld)
				Erase(ld)
				continue
			}
			// A load ahead of every store may still observe a value
			// stored on a later loop iteration; leave the cell to the
			// general path.
			return false
		}
		repl := stores[i-1].store.Val
		if repl == Value(ld) {
			repl = NewPoison(ld.Type())
		}
		ReplaceAllUses(ld, repl)
		lbi.forget(ld)
		Erase(ld)
	}

	for _, st := range stores {
		lbi.forget(st.store)
		Erase(st.store)
	}
	Erase(a)
	return true
}

// computeLiveIn returns the blocks on entry to which the cell's value is
// live: blocks from which a load is reachable without an intervening
// store.
func (pm *promoter) computeLiveIn(a *Alloca, info *allocaInfo, defBlocks map[*Block]bool) map[*Block]bool {
	worklist := make([]*Block, 0, len(info.usingBlocks))
	seen := make(map[*Block]bool)
	for _, b := range info.usingBlocks {
		if !seen[b] {
			seen[b] = true
			worklist = append(worklist, b)
		}
	}

	// A using block that stores before its first load redefines the
	// value before using it and is not live-in.
	for i := 0; i < len(worklist); {
		b := worklist[i]
		if !defBlocks[b] {
			i++
			continue
		}
		storeFirst := false
		for _, instr := range b.Instrs {
			if st, ok := instr.(*Store); ok && st.Addr == Value(a) {
				storeFirst = true
				break
			}
			if ld, ok := instr.(*Load); ok && ld.Addr == Value(a) {
				break
			}
		}
		if storeFirst {
			worklist[i] = worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			continue
		}
		i++
	}

	liveIn := make(map[*Block]bool)
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if liveIn[b] {
			continue
		}
		liveIn[b] = true
		for _, pred := range b.Preds {
			if defBlocks[pred] {
				continue
			}
			worklist = append(worklist, pred)
		}
	}
	return liveIn
}

// queuePhiNode inserts an empty phi for the cell at the head of b,
// unless one is already registered for (b, cell).
func (pm *promoter) queuePhiNode(b *Block, allocaIdx int) bool {
	key := phiKey{blockIndex: b.Index, allocaIndex: allocaIdx}
	if _, ok := pm.newPhis[key]; ok {
		return false
	}
	a := pm.allocas[allocaIdx]
	version := pm.versions[allocaIdx]
	pm.versions[allocaIdx]++

	phi := NewPhi(fmt.Sprintf("%s.%d", a.name, version), a.Allocated, len(b.Preds))
	b.PrependPhi(phi)
	pm.newPhis[key] = phi
	pm.phiToAlloca[phi] = allocaIdx
	return true
}

type renamePassData struct {
	bb     *Block
	pred   *Block
	values []Value
}

// rename walks the CFG from the entry block, threading the current value
// of each cell, replacing loads with it and recording stores into it.
func (pm *promoter) rename() {
	entryVals := make([]Value, len(pm.allocas))
	for i, a := range pm.allocas {
		entryVals[i] = NewUndef(a.Allocated)
	}
	worklist := []renamePassData{{bb: pm.fn.Entry(), pred: nil, values: entryVals}}
	for len(worklist) > 0 {
		rpd := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		worklist = pm.renamePass(rpd.bb, rpd.pred, rpd.values, worklist)
	}
}

func (pm *promoter) renamePass(bb, pred *Block, incomingVals []Value, worklist []renamePassData) []renamePassData {
	for {
		// Fill the phis this pass inserted in bb with the values arriving
		// from pred. This runs once per incoming edge; the phis inserted
		// here all share the same operand count before the update, which
		// tells them apart from pre-existing phis.
		if pred != nil && len(bb.Instrs) > 0 {
			if apn, ok := bb.Instrs[0].(*Phi); ok {
				if _, inserted := pm.phiToAlloca[apn]; inserted {
					numEdges := 0
					for _, s := range pred.Succs {
						if s == bb {
							numEdges++
						}
					}
					want := len(apn.Incomings)
					for _, instr := range bb.Instrs {
						phi, ok := instr.(*Phi)
						if !ok {
							break
						}
						idx, inserted := pm.phiToAlloca[phi]
						if !inserted || len(phi.Incomings) != want {
							break
						}
						for e := 0; e < numEdges; e++ {
							phi.AddIncoming(incomingVals[idx], pred)
						}
						incomingVals[idx] = phi
					}
				}
			}
		}

		// The body is rewritten exactly once; phi updates above still run
		// on every incoming edge.
		if pm.visited[bb] {
			return worklist
		}
		pm.visited[bb] = true

		for _, instr := range append([]Instruction(nil), bb.Instrs...) {
			switch in := instr.(type) {
			case *Load:
				a, ok := in.Addr.(*Alloca)
				if !ok {
					continue
				}
				idx, promoted := pm.allocaLookup[a]
				if !promoted {
					continue
				}
				ReplaceAllUses(in, incomingVals[idx])
				Erase(in)
			case *Store:
				a, ok := in.Addr.(*Alloca)
				if !ok {
					continue
				}
				idx, promoted := pm.allocaLookup[a]
				if !promoted {
					continue
				}
				incomingVals[idx] = in.Val
				Erase(in)
			}
		}

		if len(bb.Succs) == 0 {
			return worklist
		}

		// Continue into the first successor directly; queue the other
		// distinct successors with their own copy of the current values.
		seen := map[*Block]bool{bb.Succs[0]: true}
		for _, s := range bb.Succs[1:] {
			if seen[s] {
				continue
			}
			seen[s] = true
			vals := append([]Value(nil), incomingVals...)
			worklist = append(worklist, renamePassData{bb: s, pred: bb, values: vals})
		}
		pred = bb
		bb = bb.Succs[0]
	}
}

// cleanup erases the promoted cells, simplifies trivial phis, and
// completes phis whose missing predecessors were never reached.
func (pm *promoter) cleanup() {
	// Residual users can only live in code the renamer never reached.
	for _, a := range pm.allocas {
		for _, user := range append([]Instruction(nil), a.Users()...) {
			switch u := user.(type) {
			case *Load:
				ReplaceAllUses(u, NewPoison(a.Allocated))
				Erase(u)
			case *Store:
				Erase(u)
			}
		}
		Erase(a)
	}

	keys := pm.sortedPhiKeys()

	// Simplifying one phi can expose another, so iterate to a fixpoint
	// in registry order.
	for changed := true; changed; {
		changed = false
		for _, key := range keys {
			phi, ok := pm.newPhis[key]
			if !ok {
				continue
			}
			if pm.simplifyPhi(phi) {
				delete(pm.newPhis, key)
				changed = true
			}
		}
	}

	pm.fillMissingPreds(keys)
}

func (pm *promoter) sortedPhiKeys() []phiKey {
	keys := make([]phiKey, 0, len(pm.newPhis))
	for key := range pm.newPhis {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].blockIndex != keys[j].blockIndex {
			return keys[i].blockIndex < keys[j].blockIndex
		}
		return keys[i].allocaIndex < keys[j].allocaIndex
	})
	return keys
}

// simplifyPhi removes a phi whose incoming values (ignoring self-edges)
// collapse to undef or to a single value. Structurally identical phis
// are never unified: the surviving value might not be def-reachable from
// the other phi's block.
func (pm *promoter) simplifyPhi(phi *Phi) bool {
	var val Value
	sawUndef := false
	for _, inc := range phi.Incomings {
		if inc.Val == Value(phi) {
			continue
		}
		if IsUndef(inc.Val) {
			sawUndef = true
			continue
		}
		if val == nil {
			val = inc.Val
			continue
		}
		if inc.Val != val {
			return false
		}
	}

	if val == nil {
		ReplaceAllUses(phi, NewUndef(phi.Type()))
		Erase(phi)
		return true
	}
	if sawUndef && !pm.dt.ValueDominates(val, phi) {
		// Folding through undef would materialize a use of val above its
		// definition.
		return false
	}
	ReplaceAllUses(phi, val)
	Erase(phi)
	return true
}

// fillMissingPreds appends poison entries for predecessors the renamer
// never walked: those edges come from unreachable blocks.
func (pm *promoter) fillMissingPreds(keys []phiKey) {
	byBlock := make(map[*Block][]*Phi)
	var blocks []*Block
	for _, key := range keys {
		phi, ok := pm.newPhis[key]
		if !ok {
			continue
		}
		b := phi.Parent()
		if _, seen := byBlock[b]; !seen {
			blocks = append(blocks, b)
		}
		byBlock[b] = append(byBlock[b], phi)
	}

	for _, b := range blocks {
		phis := byBlock[b]
		want := len(phis[0].Incomings)
		if want == len(b.Preds) {
			continue
		}
		missing := missingPreds(b, phis[0])
		for _, phi := range phis {
			if len(phi.Incomings) != want {
				continue
			}
			for _, pred := range missing {
				phi.AddIncoming(NewPoison(phi.Type()), pred)
			}
		}
	}
}

// missingPreds returns the multiset difference between b's predecessors
// and the phi's incoming blocks, matching by block number.
func missingPreds(b *Block, phi *Phi) []*Block {
	preds := append([]*Block(nil), b.Preds...)
	sort.Slice(preds, func(i, j int) bool { return preds[i].Index < preds[j].Index })

	have := make([]*Block, 0, len(phi.Incomings))
	for _, inc := range phi.Incomings {
		have = append(have, inc.Pred)
	}
	sort.Slice(have, func(i, j int) bool { return have[i].Index < have[j].Index })

	var missing []*Block
	i, j := 0, 0
	for i < len(preds) {
		if j < len(have) && preds[i].Index == have[j].Index {
			i++
			j++
			continue
		}
		missing = append(missing, preds[i])
		i++
	}
	return missing
}

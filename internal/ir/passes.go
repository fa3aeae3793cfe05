package ir

// IR optimization passes and the pipeline driving them.

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("sable.ir")

// Pass represents a single optimization transformation.
type Pass interface {
	Name() string
	Description() string
	Apply(fn *Function) bool // reports whether changes were made
}

// Pipeline manages the sequence of optimization passes.
type Pipeline struct {
	passes []Pass
}

// NewPipeline creates a pipeline with the default passes.
func NewPipeline() *Pipeline {
	p := &Pipeline{}
	p.AddPass(&PromoteMemory{})
	p.AddPass(&DeadCodeElimination{})
	return p
}

// AddPass appends a pass to the pipeline.
func (p *Pipeline) AddPass(pass Pass) {
	p.passes = append(p.passes, pass)
}

// Run executes all passes on the function.
func (p *Pipeline) Run(fn *Function) {
	log.Infof("running %d passes on @%s", len(p.passes), fn.Name)
	for _, pass := range p.passes {
		changed := pass.Apply(fn)
		if changed {
			log.Infof("%s: changed @%s", pass.Name(), fn.Name)
		} else {
			log.Debugf("%s: no changes in @%s", pass.Name(), fn.Name)
		}
	}
}

// PromoteMemory rewrites promotable stack cells into SSA values.
type PromoteMemory struct{}

func (pm *PromoteMemory) Name() string { return "Memory Promotion" }

func (pm *PromoteMemory) Description() string {
	return "Promotes stack cells accessed only by loads and stores into SSA values"
}

// Apply scans the entry block for promotable allocas and promotes them,
// repeating until a sweep finds none. Promotion does not currently
// expose new allocas, but the loop is cheap.
func (pm *PromoteMemory) Apply(fn *Function) bool {
	changed := false
	for {
		var allocas []*Alloca
		for _, instr := range fn.Entry().Instrs {
			if a, ok := instr.(*Alloca); ok && IsAllocaPromotable(a) {
				allocas = append(allocas, a)
			}
		}
		if len(allocas) == 0 {
			break
		}
		log.Debugf("promoting %d allocas in @%s", len(allocas), fn.Name)
		dt := BuildDomTree(fn)
		PromoteAllocas(allocas, dt)
		changed = true
	}
	return changed
}

// DeadCodeElimination removes unreachable blocks and unused pure
// instructions.
type DeadCodeElimination struct{}

func (dce *DeadCodeElimination) Name() string { return "Dead Code Elimination" }

func (dce *DeadCodeElimination) Description() string {
	return "Removes unreachable basic blocks and unused instructions"
}

func (dce *DeadCodeElimination) Apply(fn *Function) bool {
	changed := dce.eliminateDeadBlocks(fn)
	if dce.eliminateDeadInstructions(fn) {
		changed = true
	}
	return changed
}

// eliminateDeadBlocks removes blocks not reachable from the entry.
func (dce *DeadCodeElimination) eliminateDeadBlocks(fn *Function) bool {
	reachable := make(map[*Block]bool)
	dce.markReachable(fn.Entry(), reachable)
	if len(reachable) == len(fn.Blocks) {
		return false
	}

	// Phis in surviving blocks drop the incomings that arrive over dead
	// edges.
	for _, b := range fn.Blocks {
		if !reachable[b] {
			continue
		}
		for _, instr := range b.Instrs {
			phi, ok := instr.(*Phi)
			if !ok {
				break
			}
			kept := phi.Incomings[:0]
			for _, inc := range phi.Incomings {
				if reachable[inc.Pred] {
					kept = append(kept, inc)
				} else {
					removeUse(inc.Val, phi)
				}
			}
			phi.Incomings = kept
		}
	}

	// Values defined in dead blocks can only be used from other dead
	// code; poison any stragglers so erasure stays consistent.
	for _, b := range fn.Blocks {
		if reachable[b] {
			continue
		}
		for _, instr := range append([]Instruction(nil), b.Instrs...) {
			if r, ok := instr.(userTracked); ok && len(r.Users()) > 0 {
				if v, isVal := instr.(Value); isVal {
					ReplaceAllUses(v, NewPoison(v.Type()))
				}
			}
			Erase(instr)
		}
		if b.Term != nil {
			Erase(b.Term)
		}
	}

	kept := fn.Blocks[:0]
	for _, b := range fn.Blocks {
		if reachable[b] {
			kept = append(kept, b)
		}
	}
	fn.Blocks = kept
	fn.Renumber()
	fn.RecomputeCFG()
	return true
}

func (dce *DeadCodeElimination) markReachable(b *Block, reachable map[*Block]bool) {
	if reachable[b] {
		return
	}
	reachable[b] = true
	if b.Term == nil {
		return
	}
	for _, s := range b.Term.Targets() {
		dce.markReachable(s, reachable)
	}
}

// eliminateDeadInstructions removes pure instructions whose results are
// never used, iterating since removing one use can kill another value.
func (dce *DeadCodeElimination) eliminateDeadInstructions(fn *Function) bool {
	changed := false
	for again := true; again; {
		again = false
		for _, b := range fn.Blocks {
			for i := len(b.Instrs) - 1; i >= 0; i-- {
				instr := b.Instrs[i]
				if !dce.isPure(instr) {
					continue
				}
				if r, ok := instr.(userTracked); ok && len(r.Users()) == 0 {
					Erase(instr)
					again = true
					changed = true
				}
			}
		}
	}
	return changed
}

// isPure reports whether the instruction has no side effects and can be
// dropped when unused. Stores and terminators are never pure; loads are
// pure here because the IR has no volatile accesses.
func (dce *DeadCodeElimination) isPure(instr Instruction) bool {
	switch instr.(type) {
	case *Load, *BinOp, *Phi, *Alloca:
		return true
	}
	return false
}

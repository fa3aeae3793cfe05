package ir

// Construction and mutation of functions, blocks, and instructions.
// Mutation keeps the per-value user lists consistent: every operand slot
// of an instruction contributes one entry to the operand's user list.

import (
	"fmt"
)

// NewFunction creates an empty function. The first block added becomes
// the entry block.
func NewFunction(name string, ret Type, params ...*Param) *Function {
	return &Function{Name: name, Params: params, Return: ret}
}

// NewBlock appends a new empty block to the function.
func (f *Function) NewBlock(label string) *Block {
	b := &Block{Label: label, Index: len(f.Blocks), parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the function's entry block.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Renumber assigns the stable block numbering by forward iteration.
func (f *Function) Renumber() {
	for i, b := range f.Blocks {
		b.Index = i
	}
}

// RecomputeCFG rebuilds predecessor and successor lists from the block
// terminators. Both lists carry one entry per edge, so a terminator with
// duplicate targets contributes duplicate entries.
func (f *Function) RecomputeCFG() {
	for _, b := range f.Blocks {
		b.Preds = nil
		b.Succs = nil
	}
	for _, b := range f.Blocks {
		if b.Term == nil {
			continue
		}
		for _, t := range b.Term.Targets() {
			b.Succs = append(b.Succs, t)
			t.Preds = append(t.Preds, b)
		}
	}
}

// addUse records user as using v, when v tracks its users.
func addUse(v Value, user Instruction) {
	if r, ok := v.(userTracked); ok {
		r.addUser(user)
	}
}

// removeUse drops one use entry of v by user.
func removeUse(v Value, user Instruction) {
	if r, ok := v.(userTracked); ok {
		r.removeUser(user)
	}
}

// registerOperands wires the use lists for every operand slot of instr.
func registerOperands(instr Instruction) {
	for _, slot := range instr.Operands() {
		if *slot != nil {
			addUse(*slot, instr)
		}
	}
}

// append adds a non-terminator instruction at the end of the block.
func (b *Block) append(instr Instruction) {
	instr.setParent(b)
	registerOperands(instr)
	b.Instrs = append(b.Instrs, instr)
}

// setTerm installs the block terminator.
func (b *Block) setTerm(t Terminator) {
	if b.Term != nil {
		panic(fmt.Sprintf("ir: block %s already has a terminator", b.Label))
	}
	t.setParent(b)
	registerOperands(t)
	b.Term = t
}

// NewAlloca appends an alloca for one cell of the allocated type.
func (b *Block) NewAlloca(name string, allocated Type) *Alloca {
	a := &Alloca{Allocated: allocated}
	a.name = name
	a.typ = &PtrType{Elem: allocated}
	b.append(a)
	return a
}

// NewLoad appends a load from addr, which must have pointer type.
func (b *Block) NewLoad(name string, addr Value) *Load {
	pt, ok := addr.Type().(*PtrType)
	if !ok {
		panic(fmt.Sprintf("ir: load from non-pointer %s", addr.Name()))
	}
	l := &Load{Addr: addr}
	l.name = name
	l.typ = pt.Elem
	b.append(l)
	return l
}

// NewStore appends a store of val to addr.
func (b *Block) NewStore(addr, val Value) *Store {
	s := &Store{Addr: addr, Val: val}
	b.append(s)
	return s
}

// NewBinOp appends a binary instruction whose result type is typ.
func (b *Block) NewBinOp(name, op string, typ Type, x, y Value) *BinOp {
	bin := &BinOp{Op: op, X: x, Y: y}
	bin.name = name
	bin.typ = typ
	b.append(bin)
	return bin
}

// NewPhi creates a detached phi-node with capacity reserved for the
// expected number of incoming edges. It is inserted with PrependPhi and
// filled with AddIncoming.
func NewPhi(name string, typ Type, capacity int) *Phi {
	p := &Phi{Incomings: make([]Incoming, 0, capacity)}
	p.name = name
	p.typ = typ
	return p
}

// PrependPhi inserts a phi-node at the head of the block.
func (b *Block) PrependPhi(p *Phi) {
	p.setParent(b)
	registerOperands(p)
	b.Instrs = append([]Instruction{p}, b.Instrs...)
}

// AppendPhi adds a phi-node at the end of the block's current
// instruction list; the caller keeps phis grouped at the block head.
func (b *Block) AppendPhi(p *Phi) {
	b.append(p)
}

// AddIncoming appends one (value, predecessor) pair to the phi.
func (p *Phi) AddIncoming(v Value, pred *Block) {
	p.Incomings = append(p.Incomings, Incoming{Val: v, Pred: pred})
	if v != nil {
		addUse(v, p)
	}
}

// SetIncomingValue replaces the value of the i-th incoming pair,
// keeping use lists consistent. Used to patch forward references.
func (p *Phi) SetIncomingValue(i int, v Value) {
	if old := p.Incomings[i].Val; old != nil {
		removeUse(old, p)
	}
	p.Incomings[i].Val = v
	if v != nil {
		addUse(v, p)
	}
}

// SetRet installs a return terminator; v may be nil for void.
func (b *Block) SetRet(v Value) *Ret {
	r := &Ret{Val: v}
	b.setTerm(r)
	return r
}

// SetBr installs a conditional branch terminator.
func (b *Block) SetBr(cond Value, then, els *Block) *Br {
	br := &Br{Cond: cond, Then: then, Else: els}
	b.setTerm(br)
	return br
}

// SetJump installs an unconditional jump terminator.
func (b *Block) SetJump(to *Block) *Jump {
	j := &Jump{To: to}
	b.setTerm(j)
	return j
}

// SetSwitch installs a switch terminator.
func (b *Block) SetSwitch(cond Value, def *Block, cases []SwitchCase) *Switch {
	s := &Switch{Cond: cond, Default: def, Cases: cases}
	b.setTerm(s)
	return s
}

// ReplaceAllUses rewrites every operand slot holding old to repl and
// moves the use entries over. old must be a user-tracked value.
func ReplaceAllUses(old, repl Value) {
	if old == repl {
		return
	}
	r, ok := old.(userTracked)
	if !ok {
		panic("ir: ReplaceAllUses on a value without a use list")
	}
	for _, user := range r.takeUsers() {
		for _, slot := range user.Operands() {
			if *slot == old {
				*slot = repl
				break
			}
		}
		addUse(repl, user)
	}
}

// Erase removes instr from its block and unregisters its operand uses.
// A result-producing instruction must have no remaining users.
func Erase(instr Instruction) {
	if r, ok := instr.(userTracked); ok && len(r.Users()) > 0 {
		panic(fmt.Sprintf("ir: erasing %s which still has users", instr))
	}
	b := instr.Parent()
	if b == nil {
		panic("ir: erasing a detached instruction")
	}
	for _, slot := range instr.Operands() {
		if *slot != nil {
			removeUse(*slot, instr)
		}
	}
	if instr == Instruction(b.Term) {
		b.Term = nil
		instr.setParent(nil)
		return
	}
	for i, cand := range b.Instrs {
		if cand == instr {
			b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
			instr.setParent(nil)
			return
		}
	}
	panic(fmt.Sprintf("ir: instruction %s not found in block %s", instr, b.Label))
}

// position returns instr's index within its block; the terminator sorts
// after every listed instruction.
func (b *Block) position(instr Instruction) int {
	if instr == Instruction(b.Term) {
		return len(b.Instrs)
	}
	for i, cand := range b.Instrs {
		if cand == instr {
			return i
		}
	}
	panic(fmt.Sprintf("ir: instruction %s not found in block %s", instr, b.Label))
}

// Verify checks structural invariants: terminator presence, phi arity
// against predecessor counts, operand presence, and that in reachable
// code every use is dominated by its definition.
func (f *Function) Verify() error {
	if len(f.Blocks) == 0 {
		return fmt.Errorf("function @%s has no blocks", f.Name)
	}
	if len(f.Entry().Preds) != 0 {
		return fmt.Errorf("entry block %s has predecessors", f.Entry().Label)
	}
	for _, b := range f.Blocks {
		if b.Term == nil {
			return fmt.Errorf("block %s has no terminator", b.Label)
		}
		sawNonPhi := false
		for _, instr := range b.Instrs {
			if p, ok := instr.(*Phi); ok {
				if sawNonPhi {
					return fmt.Errorf("phi %s after non-phi instruction in block %s", p.Name(), b.Label)
				}
				if len(p.Incomings) != len(b.Preds) {
					return fmt.Errorf("phi %s in block %s has %d incomings for %d predecessors",
						p.Name(), b.Label, len(p.Incomings), len(b.Preds))
				}
			} else {
				sawNonPhi = true
			}
			for _, slot := range instr.Operands() {
				if *slot == nil {
					return fmt.Errorf("nil operand on %s in block %s", instr, b.Label)
				}
			}
		}
	}
	return BuildDomTree(f).VerifyDominance()
}

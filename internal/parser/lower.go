// Package parser lowers the textual IR grammar into ir.Function values,
// resolving value names and block labels and verifying the result.
package parser

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"

	"sable/grammar"
	"sable/internal/errors"
	"sable/internal/ir"
)

var intTypeRE = regexp.MustCompile(`^i([0-9]+)$`)

// LowerModule lowers every function of a parsed module. Functions with
// diagnostics are still returned when structurally usable; callers
// should treat any error-level diagnostic as fatal.
func LowerModule(m *grammar.Module) ([]*ir.Function, []errors.Diagnostic) {
	var fns []*ir.Function
	var diags []errors.Diagnostic
	for _, f := range m.Funcs {
		fn, ds := LowerFunc(f)
		diags = append(diags, ds...)
		if fn != nil {
			fns = append(fns, fn)
		}
	}
	return fns, diags
}

// LowerFunc lowers one parsed function.
func LowerFunc(f *grammar.Func) (*ir.Function, []errors.Diagnostic) {
	lo := &lowerer{
		defs:   make(map[string]ir.Value),
		blocks: make(map[string]*ir.Block),
	}
	fn := lo.lower(f)
	return fn, lo.diags
}

type lowerer struct {
	fn     *ir.Function
	defs   map[string]ir.Value
	blocks map[string]*ir.Block
	diags  []errors.Diagnostic
	fixups []phiFixup
}

// phiFixup patches a phi incoming whose value name was not yet defined
// when the phi was lowered (loop-carried references).
type phiFixup struct {
	phi  *ir.Phi
	slot int
	name string
	pos  lexer.Position
}

func (lo *lowerer) errorf(pos lexer.Position, code, format string, args ...interface{}) {
	lo.diags = append(lo.diags, errors.Diagnostic{
		Level:    errors.Error,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Position: errors.Position{Filename: pos.Filename, Line: pos.Line, Column: pos.Column},
	})
}

func (lo *lowerer) lower(f *grammar.Func) *ir.Function {
	ret := ir.Type(&ir.VoidType{})
	if f.Return != "" {
		ret = lo.typeOf(f.Return, f.Pos)
	}

	params := make([]*ir.Param, 0, len(f.Params))
	for _, p := range f.Params {
		param := ir.NewParam(p.Name, lo.typeOf(p.Type, f.Pos))
		params = append(params, param)
		lo.define(p.Name, param, f.Pos)
	}
	lo.fn = ir.NewFunction(f.Name, ret, params...)

	for _, bd := range f.Blocks {
		if _, dup := lo.blocks[bd.Label]; dup {
			lo.errorf(bd.Pos, errors.ErrorDuplicateLabel, "duplicate block label %s", bd.Label)
			continue
		}
		lo.blocks[bd.Label] = lo.fn.NewBlock(bd.Label)
	}

	for _, bd := range f.Blocks {
		lo.lowerBlock(lo.blocks[bd.Label], bd)
	}

	for _, fix := range lo.fixups {
		v, ok := lo.defs[fix.name]
		if !ok {
			lo.errorf(fix.pos, errors.ErrorUndefinedValue, "undefined value %%%s", fix.name)
			v = ir.NewPoison(fix.phi.Type())
		}
		fix.phi.SetIncomingValue(fix.slot, v)
	}

	lo.fn.Renumber()
	lo.fn.RecomputeCFG()
	if len(lo.diags) == 0 {
		if err := lo.fn.Verify(); err != nil {
			lo.errorf(f.Pos, errors.ErrorVerifyFailed, "function @%s failed verification: %s", f.Name, err)
		}
	}
	return lo.fn
}

func (lo *lowerer) lowerBlock(b *ir.Block, bd *grammar.BlockDef) {
	for _, in := range bd.Instrs {
		if b.Term != nil {
			lo.errorf(in.Pos, errors.ErrorMisplacedInstruction,
				"instruction after terminator in block %s", b.Label)
			return
		}
		switch {
		case in.Assign != nil:
			lo.lowerAssign(b, in.Pos, in.Assign)
		case in.Store != nil:
			typ := lo.typeOf(in.Store.Type, in.Pos)
			addr := lo.pointerOperand(in.Store.Addr, "store")
			if addr == nil {
				continue
			}
			b.NewStore(addr, lo.operand(in.Store.Val, typ))
		case in.Ret != nil:
			if in.Ret.Void {
				b.SetRet(nil)
			} else {
				typ := lo.typeOf(in.Ret.Type, in.Pos)
				b.SetRet(lo.operand(in.Ret.Val, typ))
			}
		case in.Br != nil:
			cond := lo.operand(in.Br.Cond, &ir.IntType{Bits: 1})
			then := lo.target(in.Br.Then, in.Pos)
			els := lo.target(in.Br.Else, in.Pos)
			if then == nil || els == nil {
				continue
			}
			b.SetBr(cond, then, els)
		case in.Jump != nil:
			to := lo.target(in.Jump.To, in.Pos)
			if to == nil {
				continue
			}
			b.SetJump(to)
		case in.Switch != nil:
			typ := lo.typeOf(in.Switch.Type, in.Pos)
			cond := lo.operand(in.Switch.Cond, typ)
			def := lo.target(in.Switch.Default, in.Pos)
			if def == nil {
				continue
			}
			cases := make([]ir.SwitchCase, 0, len(in.Switch.Cases))
			bad := false
			for _, arm := range in.Switch.Cases {
				target := lo.target(arm.Target, in.Pos)
				if target == nil {
					bad = true
					break
				}
				cases = append(cases, ir.SwitchCase{Val: ir.NewConst(typ, arm.Val), Target: target})
			}
			if bad {
				continue
			}
			b.SetSwitch(cond, def, cases)
		}
	}
	if b.Term == nil {
		lo.errorf(bd.Pos, errors.ErrorMissingTerminator, "block %s has no terminator", b.Label)
	}
}

func (lo *lowerer) lowerAssign(b *ir.Block, pos lexer.Position, as *grammar.Assign) {
	if _, dup := lo.defs[as.Name]; dup {
		lo.errorf(pos, errors.ErrorDuplicateValue, "value %%%s is defined twice", as.Name)
		return
	}
	switch {
	case as.Alloca != nil:
		lo.define(as.Name, b.NewAlloca(as.Name, lo.typeOf(as.Alloca.Type, pos)), pos)
	case as.Load != nil:
		typ := lo.typeOf(as.Load.Type, pos)
		addr := lo.pointerOperand(as.Load.Addr, "load")
		if addr == nil {
			lo.define(as.Name, ir.NewPoison(typ), pos)
			return
		}
		lo.define(as.Name, b.NewLoad(as.Name, addr), pos)
	case as.Phi != nil:
		typ := lo.typeOf(as.Phi.Type, pos)
		phi := ir.NewPhi(as.Name, typ, len(as.Phi.Edges))
		b.AppendPhi(phi)
		for i, edge := range as.Phi.Edges {
			pred := lo.target(edge.Pred, pos)
			if pred == nil {
				return
			}
			if edge.Val.Name != nil {
				if v, ok := lo.defs[*edge.Val.Name]; ok {
					phi.AddIncoming(v, pred)
				} else {
					phi.AddIncoming(nil, pred)
					lo.fixups = append(lo.fixups, phiFixup{phi: phi, slot: i, name: *edge.Val.Name, pos: edge.Val.Pos})
				}
				continue
			}
			phi.AddIncoming(lo.operand(edge.Val, typ), pred)
		}
		lo.define(as.Name, phi, pos)
	case as.Bin != nil:
		opType := lo.typeOf(as.Bin.Type, pos)
		resType := opType
		switch as.Bin.Op {
		case "icmp_eq", "icmp_ne", "icmp_lt", "icmp_le", "icmp_gt", "icmp_ge":
			resType = &ir.IntType{Bits: 1}
		}
		x := lo.operand(as.Bin.X, opType)
		y := lo.operand(as.Bin.Y, opType)
		lo.define(as.Name, b.NewBinOp(as.Name, as.Bin.Op, resType, x, y), pos)
	}
}

func (lo *lowerer) define(name string, v ir.Value, pos lexer.Position) {
	if _, dup := lo.defs[name]; dup {
		lo.errorf(pos, errors.ErrorDuplicateValue, "value %%%s is defined twice", name)
		return
	}
	lo.defs[name] = v
}

// operand resolves an operand, materializing constants and markers at
// the expected type.
func (lo *lowerer) operand(op *grammar.Operand, typ ir.Type) ir.Value {
	switch {
	case op.Undef:
		return ir.NewUndef(typ)
	case op.Poison:
		return ir.NewPoison(typ)
	case op.Int != nil:
		return ir.NewConst(typ, *op.Int)
	case op.Name != nil:
		if v, ok := lo.defs[*op.Name]; ok {
			return v
		}
		lo.errorf(op.Pos, errors.ErrorUndefinedValue, "undefined value %%%s", *op.Name)
		return ir.NewPoison(typ)
	}
	panic("parser: empty operand")
}

// pointerOperand resolves an operand that must name a pointer-typed
// value, as load and store addresses do.
func (lo *lowerer) pointerOperand(op *grammar.Operand, what string) ir.Value {
	if op.Name == nil {
		lo.errorf(op.Pos, errors.ErrorTypeMismatch, "%s address must be a named value", what)
		return nil
	}
	v, ok := lo.defs[*op.Name]
	if !ok {
		lo.errorf(op.Pos, errors.ErrorUndefinedValue, "undefined value %%%s", *op.Name)
		return nil
	}
	if _, isPtr := v.Type().(*ir.PtrType); !isPtr {
		lo.errorf(op.Pos, errors.ErrorTypeMismatch, "%s address %%%s is not a pointer", what, *op.Name)
		return nil
	}
	return v
}

func (lo *lowerer) target(label string, pos lexer.Position) *ir.Block {
	b, ok := lo.blocks[label]
	if !ok {
		lo.errorf(pos, errors.ErrorUnknownLabel, "unknown block label %s", label)
		return nil
	}
	return b
}

func (lo *lowerer) typeOf(name string, pos lexer.Position) ir.Type {
	if m := intTypeRE.FindStringSubmatch(name); m != nil {
		bits, err := strconv.Atoi(m[1])
		if err == nil && bits > 0 {
			return &ir.IntType{Bits: bits}
		}
	}
	if name == "void" {
		return &ir.VoidType{}
	}
	lo.errorf(pos, errors.ErrorUnknownType, "unknown type %s", name)
	return &ir.IntType{Bits: 32}
}

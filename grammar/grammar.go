package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Grammar of the sable textual IR (.sir files):
//
//	func @max(i32 %a, i32 %b) i32 {
//	entry:
//	  %r = alloca i32
//	  %c = icmp_gt i32 %a, %b
//	  br %c, then, else
//	then:
//	  store i32 %a, %r
//	  jump done
//	else:
//	  store i32 %b, %r
//	  jump done
//	done:
//	  %v = load i32, %r
//	  ret i32 %v
//	}

type Module struct {
	Funcs []*Func `@@*`
}

type Func struct {
	Pos    lexer.Position
	Name   string      `"func" "@" @Ident "("`
	Params []*ParamDef `[ @@ { "," @@ } ] ")"`
	Return string      `[ @Ident ]`
	Blocks []*BlockDef `"{" @@* "}"`
}

type ParamDef struct {
	Type string `@Ident`
	Name string `"%" @Ident`
}

type BlockDef struct {
	Pos    lexer.Position
	Label  string   `@Ident ":"`
	Instrs []*Instr `@@*`
}

type Instr struct {
	Pos    lexer.Position
	Assign *Assign   `  @@`
	Store  *StoreOp  `| @@`
	Ret    *RetOp    `| @@`
	Br     *BrOp     `| @@`
	Jump   *JumpOp   `| @@`
	Switch *SwitchOp `| @@`
}

type Assign struct {
	Name   string      `"%" @Ident "="`
	Alloca *AllocaExpr `( @@`
	Load   *LoadExpr   `| @@`
	Phi    *PhiExpr    `| @@`
	Bin    *BinExpr    `| @@ )`
}

type AllocaExpr struct {
	Type string `"alloca" @Ident`
}

type LoadExpr struct {
	Type string   `"load" @Ident ","`
	Addr *Operand `@@`
}

type PhiExpr struct {
	Type  string     `"phi" @Ident`
	Edges []*PhiEdge `@@ { "," @@ }`
}

type PhiEdge struct {
	Val  *Operand `"[" @@ ","`
	Pred string   `@Ident "]"`
}

type BinExpr struct {
	Op   string   `@("add" | "sub" | "mul" | "div" | "and" | "or" | "xor" | "icmp_eq" | "icmp_ne" | "icmp_lt" | "icmp_le" | "icmp_gt" | "icmp_ge")`
	Type string   `@Ident`
	X    *Operand `@@ ","`
	Y    *Operand `@@`
}

type StoreOp struct {
	Type string   `"store" @Ident`
	Val  *Operand `@@ ","`
	Addr *Operand `@@`
}

type RetOp struct {
	Void bool     `"ret" ( @"void"`
	Type string   `| @Ident`
	Val  *Operand `  @@ )`
}

type BrOp struct {
	Cond *Operand `"br" @@ ","`
	Then string   `@Ident ","`
	Else string   `@Ident`
}

type JumpOp struct {
	To string `"jump" @Ident`
}

type SwitchOp struct {
	Type    string     `"switch" @Ident`
	Cond    *Operand   `@@ ","`
	Default string     `@Ident`
	Cases   []*CaseArm `"[" [ @@ { "," @@ } ] "]"`
}

type CaseArm struct {
	Val    int64  `@Integer ":"`
	Target string `@Ident`
}

type Operand struct {
	Pos    lexer.Position
	Undef  bool    `  @"undef"`
	Poison bool    `| @"poison"`
	Name   *string `| "%" @Ident`
	Int    *int64  `| @Integer`
}

package ir

// Pretty-printing for IR functions. Output is deterministic: blocks in
// function order, phi incomings in operand order.

import (
	"fmt"
	"strings"
)

// Printer renders IR to text.
type Printer struct {
	output strings.Builder
}

// NewPrinter creates a new IR printer.
func NewPrinter() *Printer {
	return &Printer{}
}

// Print returns the string representation of a function.
func Print(fn *Function) string {
	p := NewPrinter()
	p.printFunction(fn)
	return p.output.String()
}

func (p *Printer) write(format string, args ...interface{}) {
	p.output.WriteString(fmt.Sprintf(format, args...))
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.write(format, args...)
	p.output.WriteString("\n")
}

func (p *Printer) printFunction(fn *Function) {
	sig := fmt.Sprintf("func @%s(", fn.Name)
	for i, param := range fn.Params {
		if i > 0 {
			sig += ", "
		}
		sig += fmt.Sprintf("%s %s", param.Type(), param.Name())
	}
	sig += ")"
	if fn.Return != nil {
		if _, void := fn.Return.(*VoidType); !void {
			sig += " " + fn.Return.String()
		}
	}
	p.writeLine("%s {", sig)

	for _, block := range fn.Blocks {
		p.printBlock(block)
	}

	p.writeLine("}")
}

func (p *Printer) printBlock(block *Block) {
	if len(block.Preds) > 0 {
		labels := make([]string, len(block.Preds))
		for i, pred := range block.Preds {
			labels[i] = pred.Label
		}
		p.writeLine("%s: ; preds: %s", block.Label, strings.Join(labels, ", "))
	} else {
		p.writeLine("%s:", block.Label)
	}

	for _, instr := range block.Instrs {
		p.writeLine("  %s", instr)
	}
	if block.Term != nil {
		p.writeLine("  %s", block.Term)
	}
}

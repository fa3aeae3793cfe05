// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"sable/grammar"
	"sable/internal/errors"
	"sable/internal/ir"
	"sable/internal/parser"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sable <file.sir>")
		os.Exit(1)
	}

	path := os.Args[1]
	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	module, err := grammar.Parse(path, string(source))
	if err != nil {
		grammar.ReportParseError(string(source), err)
		os.Exit(1)
	}

	fns, diags := parser.LowerModule(module)
	if len(diags) > 0 {
		reporter := errors.NewReporter(path, string(source))
		for _, diag := range diags {
			fmt.Fprint(os.Stderr, reporter.Format(diag))
		}
		os.Exit(1)
	}

	for _, fn := range fns {
		fmt.Print(ir.Print(fn))
	}

	color.Green("Parsed %s", path)
}

// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"sable/grammar"
	"sable/internal/errors"
	"sable/internal/ir"
	"sable/internal/parser"
)

func main() {
	noOpt := flag.Bool("no-opt", false, "print the IR without running the optimization pipeline")
	verbose := flag.Int("v", 0, "logging verbosity (0 = quiet)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: sable-cli [flags] <file.sir>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	commonlog.Configure(*verbose, nil)

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

	pipeline := ir.NewPipeline()
	for _, fn := range fns {
		if !*noOpt {
			pipeline.Run(fn)
		}
		fmt.Print(ir.Print(fn))
	}
}

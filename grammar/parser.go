package grammar

import (
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"

	"sable/internal/errors"
)

// Parse parses IR source text into the grammar AST.
func Parse(path, source string) (*Module, error) {
	parser, err := participle.Build[Module](
		participle.Lexer(SIRLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}

	module, err := parser.ParseString(path, source)
	if err != nil {
		return nil, err
	}
	return module, nil
}

// ParseFile parses an IR source file into the grammar AST.
func ParseFile(path string) (*Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	module, err := Parse(path, string(source))
	if err != nil {
		ReportParseError(string(source), err)
		return nil, err
	}
	return module, nil
}

// ReportParseError prints a parse failure as a sable diagnostic.
func ReportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return
	}
	pos := pe.Position()
	reporter := errors.NewReporter(pos.Filename, src)
	fmt.Fprint(os.Stderr, reporter.Format(errors.Diagnostic{
		Level:    errors.Error,
		Code:     errors.ErrorSyntax,
		Message:  pe.Message(),
		Position: errors.Position{Filename: pos.Filename, Line: pos.Line, Column: pos.Column},
	}))
}

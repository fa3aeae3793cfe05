package errors

// Diagnostics for the sable toolchain. A diagnostic renders as one
// header line in compiler convention (file:line:col: level[code]:
// message) followed by the offending source line with a caret
// underline, then any notes. The same renderer serves parse errors and
// lowering diagnostics.

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level represents the severity of a diagnostic
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Position locates a diagnostic in source text
type Position struct {
	Filename string
	Line     int
	Column   int
}

// Diagnostic is one reportable finding: a coded message anchored to a
// source position, optionally with an underline length and notes.
type Diagnostic struct {
	Level    Level
	Code     string
	Message  string
	Position Position
	Length   int
	Notes    []string
}

// Reporter renders diagnostics against the source text they refer to.
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a reporter for one source file.
func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, lines: strings.Split(source, "\n")}
}

// Format renders a single diagnostic.
func (r *Reporter) Format(d Diagnostic) string {
	var out strings.Builder

	tag := string(d.Level)
	if d.Code != "" {
		tag = fmt.Sprintf("%s[%s]", d.Level, d.Code)
	}
	fmt.Fprintf(&out, "%s:%d:%d: %s: %s\n",
		r.filename, d.Position.Line, d.Position.Column, r.paint(d.Level)(tag), d.Message)

	if line, ok := r.sourceLine(d.Position.Line); ok {
		fmt.Fprintf(&out, "    %s\n", line)
		fmt.Fprintf(&out, "    %s\n", underline(line, d.Position.Column, d.Length))
	}
	for _, note := range d.Notes {
		fmt.Fprintf(&out, "  note: %s\n", note)
	}
	return out.String()
}

func (r *Reporter) sourceLine(n int) (string, bool) {
	if n < 1 || n > len(r.lines) {
		return "", false
	}
	return r.lines[n-1], true
}

// paint picks the color for the level tag.
func (r *Reporter) paint(level Level) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow).SprintFunc()
	case Note:
		return color.New(color.FgCyan).SprintFunc()
	}
	return color.New(color.FgRed, color.Bold).SprintFunc()
}

// underline builds a caret marker aligned under the source column. Tabs
// in the prefix are carried over so the caret lines up in terminals.
func underline(line string, column, length int) string {
	if column < 1 {
		column = 1
	}
	if length < 1 {
		length = 1
	}
	pad := make([]byte, 0, column-1)
	for i := 0; i < column-1; i++ {
		if i < len(line) && line[i] == '\t' {
			pad = append(pad, '\t')
		} else {
			pad = append(pad, ' ')
		}
	}
	carets := color.New(color.FgRed, color.Bold).SprintFunc()(strings.Repeat("^", length))
	return string(pad) + carets
}

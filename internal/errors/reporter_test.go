package errors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func plainFormat(t *testing.T, r *Reporter, d Diagnostic) string {
	t.Helper()
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()
	return r.Format(d)
}

func TestFormatHeaderAndCaret(t *testing.T) {
	source := "func @oops() i32 {\nentry:\n  ret i32 %ghost\n}"
	r := NewReporter("oops.sir", source)

	out := plainFormat(t, r, Diagnostic{
		Level:    Error,
		Code:     ErrorUndefinedValue,
		Message:  "undefined value %ghost",
		Position: Position{Filename: "oops.sir", Line: 3, Column: 11},
	})

	if !strings.Contains(out, "oops.sir:3:11: error[E0001]: undefined value %ghost") {
		t.Errorf("missing header line:\n%s", out)
	}
	if !strings.Contains(out, "  ret i32 %ghost") {
		t.Errorf("missing source line:\n%s", out)
	}
	caretLine := "    " + strings.Repeat(" ", 10) + "^"
	if !strings.Contains(out, caretLine) {
		t.Errorf("caret not aligned under column 11:\n%s", out)
	}
}

func TestFormatNotesAndLength(t *testing.T) {
	r := NewReporter("dup.sir", "%x = add i32 1, 2")

	out := plainFormat(t, r, Diagnostic{
		Level:    Error,
		Code:     ErrorDuplicateValue,
		Message:  "value %x is defined twice",
		Position: Position{Filename: "dup.sir", Line: 1, Column: 1},
		Length:   2,
		Notes:    []string{"the first definition wins"},
	})

	if !strings.Contains(out, "^^") {
		t.Errorf("underline should span the region length:\n%s", out)
	}
	if !strings.Contains(out, "note: the first definition wins") {
		t.Errorf("notes should be rendered:\n%s", out)
	}
}

func TestFormatOutOfRangeLine(t *testing.T) {
	r := NewReporter("short.sir", "ret void")

	out := plainFormat(t, r, Diagnostic{
		Level:    Error,
		Code:     ErrorSyntax,
		Message:  "unexpected end of input",
		Position: Position{Filename: "short.sir", Line: 99, Column: 1},
	})

	if !strings.Contains(out, "short.sir:99:1: error[E0009]: unexpected end of input") {
		t.Errorf("header should still render without a source line:\n%s", out)
	}
	if strings.Contains(out, "^") {
		t.Errorf("no caret without a source line:\n%s", out)
	}
}

func TestUnderlineKeepsTabs(t *testing.T) {
	got := underline("\tret i32 %v", 2, 1)
	if !strings.HasPrefix(got, "\t") {
		t.Errorf("tab prefix should be preserved, got %q", got)
	}
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/grammar"
	"sable/internal/errors"
	"sable/internal/ir"
)

func lowerSource(t *testing.T, source string) ([]*ir.Function, []errors.Diagnostic) {
	t.Helper()
	module, err := grammar.Parse("test.sir", source)
	require.NoError(t, err)
	return LowerModule(module)
}

const maxSource = `
func @max(i32 %a, i32 %b) i32 {
entry:
  %r = alloca i32
  %c = icmp_gt i32 %a, %b
  br %c, then, else
then:
  store i32 %a, %r
  jump done
else:
  store i32 %b, %r
  jump done
done:
  %v = load i32, %r
  ret i32 %v
}
`

func TestLowerMax(t *testing.T) {
	fns, diags := lowerSource(t, maxSource)
	require.Empty(t, diags)
	require.Len(t, fns, 1)

	fn := fns[0]
	assert.Equal(t, "max", fn.Name)
	require.Len(t, fn.Blocks, 4)
	require.NoError(t, fn.Verify())

	entry := fn.Entry()
	_, isAlloca := entry.Instrs[0].(*ir.Alloca)
	assert.True(t, isAlloca, "first entry instruction should be the cell")
	br, isBr := entry.Term.(*ir.Br)
	require.True(t, isBr)
	assert.Equal(t, "then", br.Then.Label)

	done := fn.Blocks[3]
	assert.Len(t, done.Preds, 2)
}

func TestLowerAndPromoteMax(t *testing.T) {
	fns, diags := lowerSource(t, maxSource)
	require.Empty(t, diags)

	fn := fns[0]
	ir.NewPipeline().Run(fn)

	out := ir.Print(fn)
	assert.NotContains(t, out, "alloca")
	assert.NotContains(t, out, "load")
	assert.NotContains(t, out, "store")
	assert.Contains(t, out, "%r.0 = phi i32 [ %a, then ], [ %b, else ]")
	assert.Contains(t, out, "ret i32 %r.0")
}

func TestLowerLoopPhiFixup(t *testing.T) {
	source := `
func @count(i32 %n) i32 {
entry:
  jump header
header:
  %i = phi i32 [ 0, entry ], [ %next, body ]
  %c = icmp_lt i32 %i, %n
  br %c, body, done
body:
  %next = add i32 %i, 1
  jump header
done:
  ret i32 %i
}
`
	fns, diags := lowerSource(t, source)
	require.Empty(t, diags)

	fn := fns[0]
	require.NoError(t, fn.Verify())

	header := fn.Blocks[1]
	phi, ok := header.Instrs[0].(*ir.Phi)
	require.True(t, ok)
	require.Len(t, phi.Incomings, 2)

	next, isBin := phi.Incomings[1].Val.(*ir.BinOp)
	require.True(t, isBin, "the forward reference should resolve to the add")
	assert.Equal(t, "add", next.Op)
	assert.Equal(t, ir.Value(phi), next.X, "the add should read the phi")
}

func TestLowerUndefinedValue(t *testing.T) {
	source := `
func @oops() i32 {
entry:
  ret i32 %ghost
}
`
	_, diags := lowerSource(t, source)
	require.Len(t, diags, 1)
	assert.Equal(t, errors.ErrorUndefinedValue, diags[0].Code)
}

func TestLowerDuplicateLabel(t *testing.T) {
	source := `
func @twice() i32 {
entry:
  ret i32 0
entry:
  ret i32 1
}
`
	_, diags := lowerSource(t, source)
	require.NotEmpty(t, diags)
	assert.Equal(t, errors.ErrorDuplicateLabel, diags[0].Code)
}

func TestLowerUnknownLabel(t *testing.T) {
	source := `
func @lost() i32 {
entry:
  jump nowhere
}
`
	_, diags := lowerSource(t, source)
	require.NotEmpty(t, diags)
	assert.Equal(t, errors.ErrorUnknownLabel, diags[0].Code)
}

func TestLowerMissingTerminator(t *testing.T) {
	source := `
func @open() i32 {
entry:
  %x = add i32 1, 2
}
`
	_, diags := lowerSource(t, source)
	require.NotEmpty(t, diags)
	assert.Equal(t, errors.ErrorMissingTerminator, diags[0].Code)
}

func TestLowerNonPointerAddress(t *testing.T) {
	source := `
func @badaddr(i32 %a) i32 {
entry:
  %v = load i32, %a
  ret i32 %v
}
`
	_, diags := lowerSource(t, source)
	require.NotEmpty(t, diags)
	assert.Equal(t, errors.ErrorTypeMismatch, diags[0].Code)
}

func TestLowerSwitchDuplicateTargets(t *testing.T) {
	source := `
func @dispatch(i32 %k, i32 %x) i32 {
entry:
  %c = alloca i32
  store i32 %x, %c
  switch i32 %k, other [ 1: merge, 2: merge ]
merge:
  %r = load i32, %c
  ret i32 %r
other:
  ret i32 0
}
`
	fns, diags := lowerSource(t, source)
	require.Empty(t, diags)

	fn := fns[0]
	merge := fn.Blocks[1]
	assert.Len(t, merge.Preds, 2, "duplicate switch targets are separate edges")

	ir.NewPipeline().Run(fn)
	out := ir.Print(fn)
	assert.NotContains(t, out, "load")
	assert.Contains(t, out, "ret i32 %x")
}

func TestPrintParsePrintRoundTrip(t *testing.T) {
	fns, diags := lowerSource(t, maxSource)
	require.Empty(t, diags)
	first := ir.Print(fns[0])

	again, diags := lowerSource(t, first)
	require.Empty(t, diags)
	second := ir.Print(again[0])
	assert.Equal(t, first, second)
}

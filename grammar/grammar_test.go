package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxSource = `
; returns the larger of two values
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

func TestParseMax(t *testing.T) {
	module, err := Parse("max.sir", maxSource)
	require.NoError(t, err)
	require.Len(t, module.Funcs, 1)

	fn := module.Funcs[0]
	assert.Equal(t, "max", fn.Name)
	assert.Equal(t, "i32", fn.Return)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "a", fn.Params[0].Name)
	require.Len(t, fn.Blocks, 4)

	entry := fn.Blocks[0]
	assert.Equal(t, "entry", entry.Label)
	require.Len(t, entry.Instrs, 3)
	require.NotNil(t, entry.Instrs[0].Assign)
	assert.NotNil(t, entry.Instrs[0].Assign.Alloca)
	require.NotNil(t, entry.Instrs[2].Br)
	assert.Equal(t, "then", entry.Instrs[2].Br.Then)
}

func TestParsePhiAndSwitch(t *testing.T) {
	source := `
func @spin(i32 %n, i32 %k) i32 {
entry:
  switch i32 %k, fall [ 1: header, 2: header ]
header:
  %i = phi i32 [ 0, entry ], [ %next, header ], [ undef, fall ]
  %next = add i32 %i, 1
  jump header
fall:
  ret i32 poison
}
`
	module, err := Parse("spin.sir", source)
	require.NoError(t, err)

	fn := module.Funcs[0]
	require.Len(t, fn.Blocks, 3)

	sw := fn.Blocks[0].Instrs[0].Switch
	require.NotNil(t, sw)
	assert.Equal(t, "fall", sw.Default)
	require.Len(t, sw.Cases, 2)
	assert.Equal(t, int64(2), sw.Cases[1].Val)
	assert.Equal(t, "header", sw.Cases[1].Target)

	phi := fn.Blocks[1].Instrs[0].Assign.Phi
	require.NotNil(t, phi)
	require.Len(t, phi.Edges, 3)
	assert.True(t, phi.Edges[2].Val.Undef)
	require.NotNil(t, phi.Edges[1].Val.Name)
	assert.Equal(t, "next", *phi.Edges[1].Val.Name)

	ret := fn.Blocks[2].Instrs[0].Ret
	require.NotNil(t, ret)
	assert.True(t, ret.Val.Poison)
}

func TestParseVoidReturn(t *testing.T) {
	source := `
func @nothing() {
entry:
  ret void
}
`
	module, err := Parse("nothing.sir", source)
	require.NoError(t, err)
	ret := module.Funcs[0].Blocks[0].Instrs[0].Ret
	require.NotNil(t, ret)
	assert.True(t, ret.Void)
}

func TestParseError(t *testing.T) {
	_, err := Parse("bad.sir", "func @broken( {")
	assert.Error(t, err)
}

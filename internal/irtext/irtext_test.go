package irtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irobfus/internal/ir"
)

const straightLineSrc = `
module demo

func internal @addone(i32 %x) -> i32 {
entry:
  %slot = alloca i32
  store i32 %x, %slot
  %v = load i32, %slot
  %r = add i32 %v, 1
  ret i32 %r
}

annotate @addone "flatten"
`

func TestParseStraightLineFunction(t *testing.T) {
	m, err := Parse("demo.irtext", straightLineSrc)
	require.NoError(t, err)
	require.Equal(t, "demo", m.Name)

	fn := m.FuncByName("addone")
	require.NotNil(t, fn)
	assert.Equal(t, ir.LinkageInternal, fn.Linkage)
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "x", fn.Params[0].Name())

	require.Len(t, fn.Blocks, 1)
	entry := fn.Entry()
	require.Len(t, entry.Instrs, 5)

	_, ok := entry.Instrs[0].(*ir.Alloca)
	assert.True(t, ok, "first instruction should be an alloca")
	_, ok = entry.Instrs[1].(*ir.Store)
	assert.True(t, ok, "second instruction should be a store")
	_, ok = entry.Instrs[2].(*ir.Load)
	assert.True(t, ok, "third instruction should be a load")

	ret, ok := entry.Term().(*ir.Ret)
	require.True(t, ok, "block should terminate with ret")
	require.NotNil(t, ret.Val)

	require.Len(t, m.Annotations, 1)
	assert.Same(t, fn, m.Annotations[0].Target)
	assert.Equal(t, "flatten", m.Annotations[0].Text)
}

const branchingSrc = `
module demo

func external @max(i32 %a, i32 %b) -> i32 {
entry:
  %cmp = icmp sgt i32 %a, %b
  br %cmp, label then, label else
then:
  ret i32 %a
else:
  ret i32 %b
}
`

func TestParseBranchingFunction(t *testing.T) {
	m, err := Parse("demo.irtext", branchingSrc)
	require.NoError(t, err)

	fn := m.FuncByName("max")
	require.NotNil(t, fn)
	assert.Equal(t, ir.LinkageExternal, fn.Linkage)
	require.Len(t, fn.Blocks, 3)

	entry := fn.Entry()
	cond, ok := entry.Term().(*ir.CondBr)
	require.True(t, ok, "entry should terminate with a conditional branch")
	assert.Equal(t, "then", cond.True.Name)
	assert.Equal(t, "else", cond.False.Name)

	assert.ElementsMatch(t, []*ir.BasicBlock{cond.True, cond.False}, entry.Succs)
}

const callSrc = `
module demo

func external @twice(i32 %x) -> i32 {
entry:
  %a = call @inc(%x)
  %b = call @inc(%a)
  ret i32 %b
}

func internal @inc(i32 %x) -> i32 {
entry:
  %r = add i32 %x, 1
  ret i32 %r
}
`

func TestParseCallsBetweenFunctionsDeclaredInAnyOrder(t *testing.T) {
	m, err := Parse("demo.irtext", callSrc)
	require.NoError(t, err)

	twice := m.FuncByName("twice")
	require.NotNil(t, twice)
	inc := m.FuncByName("inc")
	require.NotNil(t, inc)

	var calls []*ir.Call
	for _, instr := range twice.Entry().Instrs {
		if c, ok := instr.(*ir.Call); ok {
			calls = append(calls, c)
		}
	}
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Same(t, inc, c.Callee)
	}
}

func TestParseRejectsUndefinedValue(t *testing.T) {
	_, err := Parse("demo.irtext", `
module demo
func external @bad() -> i32 {
entry:
  ret i32 %missing
}
`)
	assert.Error(t, err)
}

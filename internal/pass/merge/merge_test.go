package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irobfus/internal/errors"
	"irobfus/internal/ir"
)

// buildFooBar builds spec.md scenario 4's pair: `static int foo(int)`
// returning its argument unchanged, and `static void bar(int)` that
// discards it, each annotated function-merge and each called exactly
// once from a shared caller.
func buildFooBar(t *testing.T) (*ir.Module, *ir.Function, *ir.Function, *ir.Function) {
	t.Helper()

	foo := ir.NewFunction("foo", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I32}})
	foo.Linkage = ir.LinkageInternal
	fEntry := foo.NewBlock("entry")
	fEntry.SetTerm(ir.NewRet(foo.Params[0]))

	bar := ir.NewFunction("bar", &ir.FuncType{Ret: ir.Void, Params: []ir.Type{ir.I32}})
	bar.Linkage = ir.LinkageInternal
	bEntry := bar.NewBlock("entry")
	bEntry.SetTerm(ir.NewRet(nil))

	caller := ir.NewFunction("caller", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I32}})
	cEntry := caller.NewBlock("entry")
	cb := ir.NewBuilder(caller)
	cb.SetBlock(cEntry)
	r := cb.Call("foo.call", foo, caller.Params[0])
	cb.Call("bar.call", bar, caller.Params[0])
	cb.Ret(r)

	m := &ir.Module{
		Name:      "m",
		Functions: []*ir.Function{foo, bar, caller},
		Annotations: []*ir.AnnotationEntry{
			{Target: foo, Text: "function-merge"},
			{Target: bar, Text: "function-merge"},
		},
	}
	foo.AddMetadata(ir.AnnotationMetadataKind, "function-merge")
	bar.AddMetadata(ir.AnnotationMetadataKind, "function-merge")

	return m, foo, bar, caller
}

func TestMergeFusesEligibleFunctionsAndRewritesCallSites(t *testing.T) {
	m, foo, bar, caller := buildFooBar(t)

	changed, err := Run(m)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Nil(t, m.FuncByName("foo"))
	assert.Nil(t, m.FuncByName("bar"))

	merged := m.FuncByName("merged")
	require.NotNil(t, merged)
	assert.Equal(t, ir.LinkageInternal, merged.Linkage)
	// i32 selector, (i32* + i32) for foo, (void* + i32) for bar.
	require.Len(t, merged.Sig.Params, 5)
	_, isVoid := merged.Sig.Ret.(*ir.VoidType)
	assert.True(t, isVoid)

	var calls []*ir.Call
	for _, instr := range caller.Entry().Instrs {
		if c, ok := instr.(*ir.Call); ok {
			calls = append(calls, c)
		}
	}
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Same(t, merged, c.Callee)
	}

	for _, e := range m.Annotations {
		assert.NotSame(t, foo, e.Target)
		assert.NotSame(t, bar, e.Target)
	}
}

func TestMergeRequiresAtLeastTwoEligibleFunctions(t *testing.T) {
	foo := ir.NewFunction("foo", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I32}})
	foo.Linkage = ir.LinkageInternal
	entry := foo.NewBlock("entry")
	entry.SetTerm(ir.NewRet(foo.Params[0]))
	foo.AddMetadata(ir.AnnotationMetadataKind, "function-merge")

	m := &ir.Module{Name: "m", Functions: []*ir.Function{foo}}

	changed, err := Run(m)
	assert.False(t, changed)
	require.Error(t, err)

	var te *errors.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, errors.ErrorTooFewFunctions, te.Code)
}

// TestMergeKeepsFunctionsStillReferencedByInvoke covers the invoke-erasure
// deferral: a function with an invoke user survives merging (rewritten
// calls and all) rather than being deleted out from under it.
func TestMergeKeepsFunctionsStillReferencedByInvoke(t *testing.T) {
	m, foo, _, _ := buildFooBar(t)

	invokeCaller := ir.NewFunction("invoker", &ir.FuncType{Ret: ir.Void})
	entry := invokeCaller.NewBlock("entry")
	normal := invokeCaller.NewBlock("normal")
	unwind := invokeCaller.NewBlock("unwind")
	inv := ir.NewInvoke("", foo, []ir.Value{ir.NewConstInt(ir.I32, 1)}, normal, unwind)
	entry.Append(inv)
	ib := ir.NewBuilder(invokeCaller)
	ib.SetBlock(normal)
	ib.Ret(nil)
	ib.SetBlock(unwind)
	ib.Ret(nil)
	m.Functions = append(m.Functions, invokeCaller)

	changed, err := Run(m)
	require.NoError(t, err)
	require.True(t, changed)

	assert.NotNil(t, m.FuncByName("foo"), "foo must survive: still referenced by an invoke")
	assert.Nil(t, m.FuncByName("bar"))
}

package bogusswitch

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irobfus/internal/ir"
	"irobfus/internal/passbase"
)

// buildSwitcher builds spec scenario 2/3's 4-case switch: case 11, 22, 33,
// default, with two upstream stores per case value so the 0.5 remap
// fraction has something to pick from.
func buildSwitcher(t *testing.T) (*ir.Function, *ir.Switch, map[int64]*ir.BasicBlock, map[int64][2]*ir.Store) {
	t.Helper()
	fn := ir.NewFunction("switcher", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I32}})
	b := ir.NewBuilder(fn)

	entry := fn.NewBlock("entry")
	case11 := fn.NewBlock("case11")
	case22 := fn.NewBlock("case22")
	case33 := fn.NewBlock("default33")
	defaultBlk := fn.NewBlock("defaultBlk")

	b.SetBlock(entry)
	caseVar := b.Alloca("caseVar", ir.I32)
	b.Store(caseVar, fn.Params[0])
	sel := b.Load("sel", ir.I32, caseVar)
	sw := b.Switch(sel, defaultBlk,
		ir.SwitchCase{Val: 11, Target: case11},
		ir.SwitchCase{Val: 22, Target: case22},
		ir.SwitchCase{Val: 33, Target: case33},
	)

	b.SetBlock(case11)
	b.Ret(ir.NewConstInt(ir.I32, 0))
	b.SetBlock(case22)
	b.Ret(ir.NewConstInt(ir.I32, 22))
	b.SetBlock(case33)
	b.Ret(ir.NewConstInt(ir.I32, 999))
	b.SetBlock(defaultBlk)
	b.Ret(ir.NewConstInt(ir.I32, 888))

	stores := map[int64][2]*ir.Store{}
	for _, v := range []int64{11, 22, 33} {
		a := fn.NewBlock("")
		b.SetBlock(a)
		sa := ir.NewStore(caseVar, ir.NewConstInt(ir.I32, v))
		a.Append(sa)
		b.Jump(entry)

		c := fn.NewBlock("")
		b.SetBlock(c)
		sc := ir.NewStore(caseVar, ir.NewConstInt(ir.I32, v))
		c.Append(sc)
		b.Jump(entry)

		stores[v] = [2]*ir.Store{sa, sc}
	}

	targets := map[int64]*ir.BasicBlock{11: case11, 22: case22, 33: case33}
	return fn, sw, targets, stores
}

func TestInflateSwitchDuplicatesCeilFraction(t *testing.T) {
	fn, sw, targets, _ := buildSwitcher(t)
	fn.AddMetadata(ir.AnnotationMetadataKind, "bogus-switch")
	before := len(fn.Blocks)

	m := &ir.Module{Name: "m", Functions: []*ir.Function{fn}}
	res := passbase.RunOnModule(Pass(rand.New(rand.NewSource(1))), m)

	require.Empty(t, res.Errors)
	require.Contains(t, res.Changed, "switcher")

	// ceil(3 cases * 0.7) == 3: every case gets duplicated.
	assert.Equal(t, 6, len(sw.Cases))
	assert.Equal(t, before+3, len(fn.Blocks))

	for _, c := range sw.Cases[3:] {
		assert.True(t, c.Val >= 3, "duplicate case value %d should avoid colliding with existing 11/22/33", c.Val)
	}

	orig := map[int64]*ir.BasicBlock{11: targets[11], 22: targets[22], 33: targets[33]}
	for i, c := range sw.Cases[:3] {
		origVal := []int64{11, 22, 33}[i]
		dup := sw.Cases[3+i]
		origTarget := orig[origVal]
		dupTarget := dup.Target

		require.NotSame(t, origTarget, dupTarget)
		origRet, ok := origTarget.Term().(*ir.Ret)
		require.True(t, ok)
		dupRet, ok := dupTarget.Term().(*ir.Ret)
		require.True(t, ok)
		assert.Equal(t, origRet.Val.(*ir.ConstInt).Val, dupRet.Val.(*ir.ConstInt).Val,
			"duplicate of case %d should return the same value as its original", origVal)
	}
}

func TestInflateSwitchRemapsHalfTheUpstreamStores(t *testing.T) {
	fn, sw, _, stores := buildSwitcher(t)
	fn.AddMetadata(ir.AnnotationMetadataKind, "bogus-switch")

	m := &ir.Module{Name: "m", Functions: []*ir.Function{fn}}
	res := passbase.RunOnModule(Pass(rand.New(rand.NewSource(7))), m)
	require.Empty(t, res.Errors)

	for i, v := range []int64{11, 22, 33} {
		dupVal := sw.Cases[3+i].Val
		pair := stores[v]
		remapped := pair[0].Val.(*ir.ConstInt).Val == dupVal
		untouched := pair[1].Val.(*ir.ConstInt).Val == v
		assert.True(t, remapped, "first store for case %d should be remapped to %d, got %d", v, dupVal, pair[0].Val.(*ir.ConstInt).Val)
		assert.True(t, untouched, "second store for case %d should be left at %d", v, v)
	}
}

func TestSwitchWithoutLoadBackedConditionIsSkipped(t *testing.T) {
	fn := ir.NewFunction("nocasevar", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I32}})
	b := ir.NewBuilder(fn)
	entry := fn.NewBlock("entry")
	c1 := fn.NewBlock("c1")
	def := fn.NewBlock("def")

	b.SetBlock(entry)
	// Condition comes straight from the parameter, not a load: no case
	// variable is discoverable.
	b.Switch(fn.Params[0], def, ir.SwitchCase{Val: 1, Target: c1})

	b.SetBlock(c1)
	b.Ret(ir.NewConstInt(ir.I32, 1))
	b.SetBlock(def)
	b.Ret(ir.NewConstInt(ir.I32, 0))

	fn.AddMetadata(ir.AnnotationMetadataKind, "bogus-switch")
	m := &ir.Module{Name: "m", Functions: []*ir.Function{fn}}
	res := passbase.RunOnModule(Pass(rand.New(rand.NewSource(1))), m)

	require.Contains(t, res.Errors, "nocasevar")
	assert.NotContains(t, res.Changed, "nocasevar")
}

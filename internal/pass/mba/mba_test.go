package mba

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irobfus/internal/ir"
	"irobfus/internal/passbase"
)

// interp evaluates a straight-line (no branches) instruction sequence
// ending at result, given bindings for its free values. MBA's
// replacement sequences never branch, so this is sufficient to check
// that the pass emits what it claims to, rather than duplicating the
// catalogue's formulas as separate Go reference functions.
func interp(bb *ir.BasicBlock, result *ir.Register, env map[ir.Value]int64) int64 {
	vals := map[*ir.Register]int64{}
	lookup := func(v ir.Value) int64 {
		if c, ok := v.(*ir.ConstInt); ok {
			return int64(uint32(c.Val))
		}
		if n, ok := env[v]; ok {
			return n
		}
		if r, ok := v.(*ir.Register); ok {
			if n, ok := vals[r]; ok {
				return n
			}
		}
		panic("interp: unbound value")
	}
	for _, instr := range bb.Instrs {
		switch i := instr.(type) {
		case *ir.BinOp:
			x, y := lookup(i.X), lookup(i.Y)
			var r int64
			switch i.Op {
			case ir.Add:
				r = x + y
			case ir.Sub:
				r = x - y
			case ir.And:
				r = x & y
			case ir.Or:
				r = x | y
			case ir.Xor:
				r = x ^ y
			case ir.Shl:
				r = x << uint(y)
			case ir.LShr:
				r = int64(uint32(x) >> uint(y))
			case ir.AShr:
				r = int64(int32(uint32(x)) >> uint(y))
			}
			vals[i.Res] = int64(uint32(r))
		case *ir.ICmp:
			x, y := lookup(i.X), lookup(i.Y)
			var r int64
			switch i.Pred {
			case ir.EQ:
				if uint32(x) == uint32(y) {
					r = 1
				}
			case ir.NE:
				if uint32(x) != uint32(y) {
					r = 1
				}
			case ir.SGT:
				if int32(uint32(x)) > int32(uint32(y)) {
					r = 1
				}
			case ir.UGE:
				if uint32(x) >= uint32(y) {
					r = 1
				}
			}
			vals[i.Res] = r
		}
		if instr.Result() == result {
			return vals[result]
		}
	}
	panic("interp: result register never defined")
}

func buildXCmp(t *testing.T, pred ir.ICmpPred) (*ir.Function, *ir.BasicBlock, *ir.ICmp) {
	t.Helper()
	fn := ir.NewFunction("f", &ir.FuncType{Ret: ir.I1, Params: []ir.Type{ir.I32}})
	b := ir.NewBuilder(fn)
	bb := fn.NewBlock("entry")
	b.SetBlock(bb)
	cmp := ir.NewICmp(fn.FreshName("c"), pred, fn.Params[0], ir.NewConstInt(ir.I32, 0))
	bb.Append(cmp)
	b.Ret(cmp.Res)
	return fn, bb, cmp
}

func buildAdd(t *testing.T) (*ir.Function, *ir.BasicBlock, *ir.BinOp) {
	t.Helper()
	fn := ir.NewFunction("f", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I32, ir.I32}})
	b := ir.NewBuilder(fn)
	bb := fn.NewBlock("entry")
	b.SetBlock(bb)
	add := ir.NewBinOp(fn.FreshName("s"), ir.Add, fn.Params[0], fn.Params[1])
	bb.Append(add)
	b.Ret(add.Res)
	return fn, bb, add
}

func TestXSgtZeroVariants(t *testing.T) {
	cases := []int32{-2147483648, -1000000, -2, -1, 0, 1, 2, 1000000, 2147483647}
	variants := []func(*ir.BasicBlock, *ir.ICmp, int) *ir.Register{emitXSgtZeroV1, emitXSgtZeroV2}
	for variant, emit := range variants {
		for _, x := range cases {
			fn, bb, cmp := buildXCmp(t, ir.SGT)
			res := emit(bb, cmp, 32)
			got := interp(bb, res, map[ir.Value]int64{ir.Value(fn.Params[0]): int64(uint32(x))})
			want := int64(0)
			if x > 0 {
				want = 1
			}
			assert.Equal(t, want, got, "variant %d, x=%d", variant, x)
		}
	}
}

func TestXEqZeroVariants(t *testing.T) {
	cases := []int32{-2147483648, -1, 0, 1, 42, 2147483647}
	variants := []func(*ir.BasicBlock, *ir.ICmp, int) *ir.Register{emitXEqZeroV1, emitXEqZeroV2}
	for variant, emit := range variants {
		for _, x := range cases {
			fn, bb, cmp := buildXCmp(t, ir.EQ)
			res := emit(bb, cmp, 32)
			got := interp(bb, res, map[ir.Value]int64{ir.Value(fn.Params[0]): int64(uint32(x))})
			want := int64(0)
			if x == 0 {
				want = 1
			}
			assert.Equal(t, want, got, "variant %d, x=%d", variant, x)
		}
	}
}

func TestAddVariants(t *testing.T) {
	cases := [][2]int32{{0, 0}, {1, 1}, {-1, 1}, {100, -50}, {2147483647, 1}, {-2147483648, -1}}
	variants := []func(*ir.BasicBlock, *ir.BinOp) *ir.Register{emitAddV1, emitAddV2}
	for variant, emit := range variants {
		for _, c := range cases {
			fn, bb, add := buildAdd(t)
			res := emit(bb, add)
			env := map[ir.Value]int64{
				ir.Value(fn.Params[0]): int64(uint32(c[0])),
				ir.Value(fn.Params[1]): int64(uint32(c[1])),
			}
			got := interp(bb, res, env)
			want := int64(uint32(c[0] + c[1]))
			assert.Equal(t, want, got, "variant %d, x=%d y=%d", variant, c[0], c[1])
		}
	}
}

func TestPassRewritesAnnotatedFunctionsOnly(t *testing.T) {
	fnTagged, _, _ := buildXCmp(t, ir.SGT)
	fnTagged.AddMetadata(ir.AnnotationMetadataKind, "mba")
	fnPlain, _, _ := buildXCmp(t, ir.SGT)

	m := &ir.Module{Name: "m", Functions: []*ir.Function{fnTagged, fnPlain}}
	p := Pass(rand.New(rand.NewSource(1)))

	res := passbase.RunOnModule(p, m)
	require.Contains(t, res.Changed, "f")
	assert.Len(t, res.Changed, 1)
}

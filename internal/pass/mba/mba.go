// Package mba replaces simple integer predicates and additions with
// algebraically equivalent bit-twiddling expressions chosen at random
// from a small catalogue that mba_test.go checks at boundary and sampled
// values.
//
// The x>0 variants follow the shift/xor/sub skeleton of
// original_source/pass/mba/MBA.cpp's insertXsgtZeroMBA/_V2, adjusted per
// spec.md's catalogue: the original shifts x-1, which wraps to INT_MAX
// at x = INT_MIN and misreports x>0 there; this package shifts x itself
// and ANDs in an explicit x≠0 check instead, matching spec.md's "∧ x ≠
// 0" conjunct. x==0 and x+y have no original-source counterpart
// (MBA.cpp only covers x>0) and are new identities, chosen for being
// mechanically verifiable rather than merely plausible (see mba_test.go).
package mba

import (
	"math/rand"

	"github.com/tliron/commonlog"

	"irobfus/internal/ir"
	"irobfus/internal/passbase"
)

var log = commonlog.GetLogger("mba")

// knownWidths are the bit widths the x>0 catalogue supports; any other
// width is left untouched (spec requires skip, not error).
var knownWidths = map[int]bool{32: true, 64: true}

// Pass builds the mba passbase.Pass, drawing variant choices from rng.
// rng must never be nil; callers inject a seeded *rand.Rand so pipeline
// runs are reproducible (spec.md §5) — this package never touches
// math/rand's global source.
func Pass(rng *rand.Rand) passbase.Pass {
	return passbase.Pass{
		Name: "mba",
		Tag:  "mba",
		Run: func(fn *ir.Function) (bool, error) {
			return run(fn, rng)
		},
	}
}

func run(fn *ir.Function, rng *rand.Rand) (bool, error) {
	changed := false
	for _, bb := range fn.Blocks {
		for _, instr := range append([]ir.Instruction(nil), bb.Instrs...) {
			switch c := instr.(type) {
			case *ir.ICmp:
				if ok, err := rewriteICmp(fn, bb, c, rng); err != nil {
					return changed, err
				} else if ok {
					changed = true
				}
			case *ir.BinOp:
				if ok := rewriteAdd(fn, bb, c, rng); ok {
					changed = true
				}
			}
		}
	}
	if changed {
		ir.BuildUses(fn)
	}
	return changed, nil
}

func rewriteICmp(fn *ir.Function, bb *ir.BasicBlock, c *ir.ICmp, rng *rand.Rand) (bool, error) {
	width, ok := ir.Bits(c.X.Type())
	if !ok || !isZeroConst(c.Y) {
		return false, nil
	}
	switch c.Pred {
	case ir.SGT:
		if !knownWidths[width] {
			log.Debugf("%s: skipping x>0 rewrite, unsupported width i%d", fn.Name, width)
			return false, nil
		}
		variant := rng.Intn(2)
		var res *ir.Register
		if variant == 0 {
			res = emitXSgtZeroV1(bb, c, width)
		} else {
			res = emitXSgtZeroV2(bb, c, width)
		}
		spliceReplace(bb, c, res)
		return true, nil
	case ir.EQ:
		variant := rng.Intn(2)
		var res *ir.Register
		if variant == 0 {
			res = emitXEqZeroV1(bb, c, width)
		} else {
			res = emitXEqZeroV2(bb, c, width)
		}
		spliceReplace(bb, c, res)
		return true, nil
	default:
		return false, nil
	}
}

func rewriteAdd(fn *ir.Function, bb *ir.BasicBlock, b *ir.BinOp, rng *rand.Rand) bool {
	if b.Op != ir.Add {
		return false
	}
	variant := rng.Intn(2)
	var res *ir.Register
	if variant == 0 {
		res = emitAddV1(bb, b)
	} else {
		res = emitAddV2(bb, b)
	}
	spliceReplace(bb, b, res)
	return true
}

func isZeroConst(v ir.Value) bool {
	c, ok := v.(*ir.ConstInt)
	return ok && c.Val == 0
}

// spliceReplace rewrites old's uses to res and removes old from bb. The
// emit* helpers have already inserted the instructions that produce res
// immediately before old.
func spliceReplace(bb *ir.BasicBlock, old ir.Instruction, res *ir.Register) {
	oldReg := old.Result()
	if oldReg != nil {
		for _, user := range append([]ir.Instruction(nil), oldReg.Uses...) {
			user.RewriteOperands(func(v ir.Value) ir.Value {
				if v == ir.Value(oldReg) {
					return res
				}
				return v
			})
		}
	}
	bb.Remove(old)
}

// -- x>0 --

// sgtZeroS is spec.md's S parameter for the x>0 V2 substitution: the
// shift that brings x's sign bit down to bit 15, which is 16 for 32-bit
// operands but 48 (not width/2) for 64-bit ones.
var sgtZeroS = map[int]int64{32: 16, 64: 48}

func emitXSgtZeroV1(bb *ir.BasicBlock, c *ir.ICmp, width int) *ir.Register {
	fn := bb.Parent
	it := c.X.Type().(*ir.IntType)
	one := ir.NewConstInt(it, 1)
	two := ir.NewConstInt(it, 2)
	three := ir.NewConstInt(it, 3)
	shiftAmt := ir.NewConstInt(it, int64(width-1))
	zero := ir.NewConstInt(it, 0)

	// lshr(x, W-1), not ashr(x-1, W-1): the latter (the original pass's
	// formula) wraps x-1 to INT_MAX at x = INT_MIN and misreports x>0.
	shr := ir.NewBinOp(fn.FreshName("mba.lshr"), ir.LShr, c.X, shiftAmt)
	xor1 := ir.NewBinOp(fn.FreshName("mba.xor"), ir.Xor, shr.Res, one)
	xor2 := ir.NewBinOp(fn.FreshName("mba.xor"), ir.Xor, xor1.Res, two)
	sub3 := ir.NewBinOp(fn.FreshName("mba.sub"), ir.Sub, three, xor2.Res)
	eq0 := ir.NewICmp(fn.FreshName("mba.eq"), ir.EQ, sub3.Res, zero)
	neZero := ir.NewICmp(fn.FreshName("mba.ne"), ir.NE, c.X, zero)
	and := ir.NewBinOp(fn.FreshName("mba.and"), ir.And, eq0.Res, neZero.Res)

	// eq0 alone is also true at x = 0 (lshr(0, W-1) == 0, same as every
	// positive x); the "∧ x ≠ 0" conjunct rules that case back out.
	bb.InsertBefore(c, shr, xor1, xor2, sub3, eq0, neZero, and)
	return and.Res
}

func emitXSgtZeroV2(bb *ir.BasicBlock, c *ir.ICmp, width int) *ir.Register {
	fn := bb.Parent
	it := c.X.Type().(*ir.IntType)
	s := sgtZeroS[width]
	shiftAmt1 := ir.NewConstInt(it, s)
	xorConst := ir.NewConstInt(it, int64(0xCFD00FAA)&((1<<uint(width))-1))
	shiftAmt2 := ir.NewConstInt(it, int64(width-1)-s-1)
	mask := ir.NewConstInt(it, 2)
	zero := ir.NewConstInt(it, 0)

	// lshr(x, S), not lshr(-(1-x), S): the negation trick (the original
	// pass's formula) computes x-1 under the hood, which wraps at
	// x = INT_MIN the same way V1's x-1 did.
	shifted1 := ir.NewBinOp(fn.FreshName("mba.lshr"), ir.LShr, c.X, shiftAmt1)
	xored := ir.NewBinOp(fn.FreshName("mba.xor"), ir.Xor, shifted1.Res, xorConst)
	shifted2 := ir.NewBinOp(fn.FreshName("mba.lshr"), ir.LShr, xored.Res, shiftAmt2)
	anded := ir.NewBinOp(fn.FreshName("mba.and"), ir.And, shifted2.Res, mask)
	eq0 := ir.NewICmp(fn.FreshName("mba.eq"), ir.EQ, anded.Res, zero)
	neZero := ir.NewICmp(fn.FreshName("mba.ne"), ir.NE, c.X, zero)
	and := ir.NewBinOp(fn.FreshName("mba.and"), ir.And, eq0.Res, neZero.Res)

	bb.InsertBefore(c, shifted1, xored, shifted2, anded, eq0, neZero, and)
	return and.Res
}

// -- x==0 --

func emitXEqZeroV1(bb *ir.BasicBlock, c *ir.ICmp, width int) *ir.Register {
	fn := bb.Parent
	it := c.X.Type().(*ir.IntType)
	zero := ir.NewConstInt(it, 0)
	shiftAmt := ir.NewConstInt(it, int64(width-1))

	neg := ir.NewBinOp(fn.FreshName("mba.neg"), ir.Sub, zero, c.X)
	or := ir.NewBinOp(fn.FreshName("mba.or"), ir.Or, c.X, neg.Res)
	shr := ir.NewBinOp(fn.FreshName("mba.lshr"), ir.LShr, or.Res, shiftAmt)
	eq0 := ir.NewICmp(fn.FreshName("mba.eq"), ir.EQ, shr.Res, zero)

	bb.InsertBefore(c, neg, or, shr, eq0)
	return eq0.Res
}

func emitXEqZeroV2(bb *ir.BasicBlock, c *ir.ICmp, width int) *ir.Register {
	fn := bb.Parent
	it := c.X.Type().(*ir.IntType)
	one := ir.NewConstInt(it, 1)

	sub := ir.NewBinOp(fn.FreshName("mba.sub"), ir.Sub, c.X, one)
	uge := ir.NewICmp(fn.FreshName("mba.uge"), ir.UGE, sub.Res, c.X)

	bb.InsertBefore(c, sub, uge)
	return uge.Res
}

// -- x+y --

func emitAddV1(bb *ir.BasicBlock, b *ir.BinOp) *ir.Register {
	fn := bb.Parent
	it := b.X.Type().(*ir.IntType)
	one := ir.NewConstInt(it, 1)

	xorxy := ir.NewBinOp(fn.FreshName("mba.xor"), ir.Xor, b.X, b.Y)
	andxy := ir.NewBinOp(fn.FreshName("mba.and"), ir.And, b.X, b.Y)
	carry := ir.NewBinOp(fn.FreshName("mba.shl"), ir.Shl, andxy.Res, one)
	sum := ir.NewBinOp(fn.FreshName("mba.add"), ir.Add, xorxy.Res, carry.Res)

	bb.InsertBefore(b, xorxy, andxy, carry, sum)
	return sum.Res
}

func emitAddV2(bb *ir.BasicBlock, b *ir.BinOp) *ir.Register {
	fn := bb.Parent
	orxy := ir.NewBinOp(fn.FreshName("mba.or"), ir.Or, b.X, b.Y)
	andxy := ir.NewBinOp(fn.FreshName("mba.and"), ir.And, b.X, b.Y)
	sum := ir.NewBinOp(fn.FreshName("mba.add"), ir.Add, orxy.Res, andxy.Res)

	bb.InsertBefore(b, orxy, andxy, sum)
	return sum.Res
}

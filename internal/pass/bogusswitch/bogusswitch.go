// Package bogusswitch inflates an annotated function's switches with
// cloned duplicate cases, and rewires a fraction of the stores that feed
// the switch's condition to target them instead of the case they cloned
// from, so the duplicates are reached at run time.
//
// Ported from original_source/pass/bogus-switch/BogusSwitch.cpp's
// duplicateSwitchBlocks/remapCaseVarStoreInstructions, with the
// commented-out annotation-name check in the C++ left out entirely
// (this package relies on passbase's tag gate instead).
package bogusswitch

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tliron/commonlog"

	"irobfus/internal/errors"
	"irobfus/internal/ir"
	"irobfus/internal/passbase"
)

var log = commonlog.GetLogger("bogus-switch")

// switchCaseTargetPart and storeInstRemappingPart are BogusSwitch.cpp's
// switchCaseTargetPart/storeInstRemappingPart constants, unchanged.
const (
	switchCaseTargetPart   = 0.7
	storeInstRemappingPart = 0.5
)

// Pass builds the bogus-switch passbase.Pass, drawing duplicate case
// values from rng.
func Pass(rng *rand.Rand) passbase.Pass {
	return passbase.Pass{
		Name: "bogus-switch",
		Tag:  "bogus-switch",
		Run: func(fn *ir.Function) (bool, error) {
			return run(fn, rng)
		},
	}
}

func run(fn *ir.Function, rng *rand.Rand) (bool, error) {
	changed := false
	var firstErr error

	// Snapshot: blocks appended while inflating one switch must not be
	// revisited as if they carried their own switch to inflate.
	blocks := append([]*ir.BasicBlock(nil), fn.Blocks...)
	for _, bb := range blocks {
		sw, ok := bb.Term().(*ir.Switch)
		if !ok {
			continue
		}
		ok2, err := inflateSwitch(fn, bb, sw, rng)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok2 {
			changed = true
		}
	}

	if changed {
		fn.RebuildCFG()
		ir.BuildUses(fn)
	}
	return changed, firstErr
}

// inflateSwitch duplicates a ceil(0.7*numCases) prefix of sw's cases and
// remaps half the stores that set sw's case variable to the originals'
// values over to the duplicates.
func inflateSwitch(fn *ir.Function, bb *ir.BasicBlock, sw *ir.Switch, rng *rand.Rand) (bool, error) {
	caseVar, err := findCaseVar(bb, sw)
	if err != nil {
		return false, err
	}

	targetCount := int(math.Ceil(float64(len(sw.Cases)) * switchCaseTargetPart))
	if targetCount > len(sw.Cases) {
		targetCount = len(sw.Cases)
	}

	changed := false
	for i := 0; i < targetCount; i++ {
		targetCase := sw.Cases[i]

		vm := ir.NewValueMap()
		dupName := fn.FreshName(targetCase.Target.Name + ".duplicate")
		dup := ir.CloneBlock(targetCase.Target, dupName, vm)
		ir.RemapBlockRefs(dup, vm)
		fn.Blocks = append(fn.Blocks, dup)

		dupVal := generateCaseValue(sw, rng)
		sw.AddCase(dupVal, dup)

		remapCaseVarStores(fn, caseVar, targetCase.Val, dupVal)
		changed = true

		log.Debugf("%s: switch in %s: case %d -> duplicate case %d (%s)",
			fn.Name, bb.Name, targetCase.Val, dupVal, dupName)
	}
	return changed, nil
}

// findCaseVar recovers the pointer operand the switch's condition was
// loaded from: the instruction immediately preceding the switch must be
// exactly the Load that produced sw.Cond (BogusSwitch.cpp's
// instBeforeSwitch == switchInst->getCondition() check).
func findCaseVar(bb *ir.BasicBlock, sw *ir.Switch) (ir.Value, error) {
	if len(bb.Instrs) < 2 {
		return nil, noCaseVarErr(bb)
	}
	load, ok := bb.Instrs[len(bb.Instrs)-2].(*ir.Load)
	if !ok || ir.Value(load.Res) != sw.Cond {
		return nil, noCaseVarErr(bb)
	}
	return load.Addr, nil
}

func noCaseVarErr(bb *ir.BasicBlock) error {
	return errors.New("bogus-switch", errors.ErrorNoCaseVariable,
		fmt.Sprintf("switch in block %s has no load-backed case variable", bb.Name),
		errors.Location{Function: bb.Parent.Name, Block: bb.Name})
}

// generateCaseValue picks a case value not already used by sw, preferring
// the plausible len(sw.Cases) before falling back to random 31-bit values,
// exactly as BogusSwitch.cpp's generateCaseValue does.
func generateCaseValue(sw *ir.Switch, rng *rand.Rand) int64 {
	candidate := int64(len(sw.Cases))
	for sw.HasCaseValue(candidate) {
		candidate = int64(rng.Int31())
	}
	return candidate
}

// remapCaseVarStores rewrites floor(0.5*n) of the Store instructions in
// fn that write targetVal to caseVar, so they write dupVal instead,
// mirroring remapCaseVarStoreInstructions's function-wide, block-ordered
// scan (which in the C++ runs after the duplicate block has already been
// spliced into F, so a clone's own stores are eligible too).
func remapCaseVarStores(fn *ir.Function, caseVar ir.Value, targetVal, dupVal int64) {
	var stores []*ir.Store
	for _, bb := range fn.Blocks {
		for _, instr := range bb.Instrs {
			st, ok := instr.(*ir.Store)
			if !ok || st.Addr != caseVar {
				continue
			}
			c, ok := st.Val.(*ir.ConstInt)
			if !ok || c.Val != targetVal {
				continue
			}
			stores = append(stores, st)
		}
	}

	countToRemap := int(math.Floor(float64(len(stores)) * storeInstRemappingPart))
	for i := 0; i < countToRemap; i++ {
		orig := stores[i].Val.(*ir.ConstInt)
		stores[i].Val = ir.NewConstInt(orig.Typ, dupVal)
	}
}

// Package flatten replaces an annotated function's natural control-flow
// graph with an infinite loop around a dispatch switch whose case values
// encode the next block to execute.
//
// Ported from original_source/pass/flatten/Flatten.cpp's core algorithm
// (the entry-block split, the loopStart/defaultSwitchBlock/loopEnd
// skeleton, per-terminator caseVar rewriting, and demotion-then-phi-
// elimination for SSA repair). The historical dead code paths the C++
// carries (re-splitting the entry block a second time, renaming the
// first four blocks to literal debug names) are not reproduced — spec.md
// §9 calls those out as superseded debug scaffolding.
package flatten

import (
	"fmt"

	"github.com/tliron/commonlog"

	"irobfus/internal/errors"
	"irobfus/internal/ir"
	"irobfus/internal/passbase"
)

var log = commonlog.GetLogger("flatten")

// Pass builds the flatten passbase.Pass.
func Pass() passbase.Pass {
	return passbase.Pass{
		Name: "flatten",
		Tag:  "flatten",
		Run:  Run,
	}
}

// Run flattens fn in place. Single-block functions are left untouched
// (spec.md §4.5 "Single-block functions are left untouched").
func Run(fn *ir.Function) (bool, error) {
	if len(fn.Blocks) < 2 {
		return false, nil
	}
	for _, bb := range fn.Blocks {
		if _, ok := bb.Term().(*ir.Invoke); ok {
			return false, errors.New("flatten", errors.ErrorExceptionEdge,
				fmt.Sprintf("function %s has an invoke terminator, exception edges not supported", fn.Name),
				errors.Location{Function: fn.Name, Block: bb.Name})
		}
	}

	orig := append([]*ir.BasicBlock(nil), fn.Blocks...)
	entry := orig[0]
	entry.Name = "entry"
	rest := orig[1:]

	splitBlock, s0, err := splitEntry(fn, entry)
	if err != nil {
		return false, err
	}

	loopStart := fn.NewBlock("loopStart")
	defaultSwitchBlock := fn.NewBlock("defaultSwitchBlock")
	loopEnd := fn.NewBlock("loopEnd")

	b := ir.NewBuilder(fn)
	b.SetBlock(defaultSwitchBlock)
	b.Jump(loopEnd)
	b.SetBlock(loopEnd)
	b.Jump(loopStart)

	// caseVar must live in entry; build it directly and prepend it
	// rather than relying on the builder's current insertion block.
	caseVarAlloca := ir.NewAlloca(fn.FreshName("caseVar"), ir.I32)
	entry.Prepend(caseVarAlloca)
	caseVar := ir.Value(caseVarAlloca.Res)

	b.SetBlock(loopStart)
	loaded := b.Load("caseVar.val", ir.I32, caseVar)
	dispatch := b.Switch(loaded, defaultSwitchBlock)

	remaining := make([]*ir.BasicBlock, 0, len(rest)+1)
	if splitBlock != nil {
		remaining = append(remaining, splitBlock)
	}
	remaining = append(remaining, rest...)

	idxOf := map[*ir.BasicBlock]int64{}
	for i, bb := range remaining {
		idxOf[bb] = int64(i)
	}

	// Step 7: initialize caseVar with idx(S0) before entry's terminator,
	// then retarget entry to the dispatch loop.
	initStore := ir.NewStore(caseVar, ir.NewConstInt(ir.I32, idxOf[s0]))
	entry.InsertBefore(entry.Term(), initStore)
	entry.SetTerm(ir.NewJump(loopStart))

	for _, bb := range remaining {
		if err := rewriteTerminator(fn, bb, caseVar, loopEnd, idxOf); err != nil {
			return false, err
		}
		dispatch.AddCase(idxOf[bb], bb)
	}

	fn.Blocks = append([]*ir.BasicBlock{entry, loopStart, defaultSwitchBlock, loopEnd}, remaining...)
	fn.RebuildCFG()
	ir.BuildUses(fn)

	// Step 11 before step 10 (see DESIGN.md): eliminate phis first so a
	// value that fed a phi edge from some predecessor isn't demoted as if
	// the phi itself, rather than that predecessor, were its user.
	eliminatePhis(fn)
	demoteCrossBlockValues(fn)

	fn.RebuildCFG()
	ir.BuildUses(fn)

	log.Debugf("%s: flattened into %d dispatch cases", fn.Name, len(remaining))
	return true, nil
}

// splitEntry implements spec.md §4.5 step 1: if entry ends in a
// conditional branch or switch, its last two instructions (the compare
// and the terminator) are moved into a fresh successor block, and entry
// is left ending in an unconditional branch to it.
func splitEntry(fn *ir.Function, entry *ir.BasicBlock) (split *ir.BasicBlock, s0 *ir.BasicBlock, err error) {
	switch term := entry.Term().(type) {
	case *ir.Jump:
		return nil, term.Target, nil
	case *ir.CondBr, *ir.Switch:
		n := len(entry.Instrs)
		moveCount := 2
		if n < moveCount {
			moveCount = n
		}
		moved := append([]ir.Instruction(nil), entry.Instrs[n-moveCount:]...)
		entry.Instrs = entry.Instrs[:n-moveCount]

		splitBlock := fn.NewBlock(fn.FreshName("flatten.split"))
		for _, in := range moved {
			splitBlock.Append(in)
		}
		entry.SetTerm(ir.NewJump(splitBlock))
		return splitBlock, splitBlock, nil
	default:
		return nil, nil, errors.New("flatten", errors.ErrorUnknownTerminator,
			fmt.Sprintf("entry block of %s ends in a terminator flatten cannot split", fn.Name),
			errors.Location{Function: fn.Name, Block: entry.Name})
	}
}

// rewriteTerminator implements spec.md §4.5 step 8: compute the caseVar
// update for bb's original terminator, insert it before that terminator,
// then retarget bb to loopEnd (except for Ret, which already exits).
func rewriteTerminator(fn *ir.Function, bb *ir.BasicBlock, caseVar ir.Value, loopEnd *ir.BasicBlock, idxOf map[*ir.BasicBlock]int64) error {
	term := bb.Term()
	switch t := term.(type) {
	case *ir.Ret:
		return nil
	case *ir.Jump:
		store := ir.NewStore(caseVar, ir.NewConstInt(ir.I32, idxOf[t.Target]))
		bb.InsertBefore(t, store)
		bb.SetTerm(ir.NewJump(loopEnd))
		return nil
	case *ir.CondBr:
		trueIdx := ir.NewConstInt(ir.I32, idxOf[t.True])
		falseIdx := ir.NewConstInt(ir.I32, idxOf[t.False])
		sel := ir.NewSelect(fn.FreshName("flatten.sel"), t.Cond, trueIdx, falseIdx)
		store := ir.NewStore(caseVar, sel.Res)
		bb.InsertBefore(t, sel, store)
		bb.SetTerm(ir.NewJump(loopEnd))
		return nil
	case *ir.Switch:
		instrs := []ir.Instruction{ir.NewStore(caseVar, ir.NewConstInt(ir.I32, idxOf[t.Default]))}
		for _, c := range t.Cases {
			load := ir.NewLoad(fn.FreshName("flatten.cur"), ir.I32, caseVar)
			caseConst := ir.NewConstInt(t.Cond.Type().(*ir.IntType), c.Val)
			cmp := ir.NewICmp(fn.FreshName("flatten.eq"), ir.EQ, t.Cond, caseConst)
			sel := ir.NewSelect(fn.FreshName("flatten.sel"), cmp.Res, ir.NewConstInt(ir.I32, idxOf[c.Target]), load.Res)
			store := ir.NewStore(caseVar, sel.Res)
			instrs = append(instrs, load, cmp, sel, store)
		}
		bb.InsertBefore(t, instrs...)
		bb.SetTerm(ir.NewJump(loopEnd))
		return nil
	default:
		return errors.New("flatten", errors.ErrorUnknownTerminator,
			fmt.Sprintf("block %s in %s ends in an unsupported terminator kind", bb.Name, fn.Name),
			errors.Location{Function: fn.Name, Block: bb.Name})
	}
}

// eliminatePhis demotes every remaining Phi to a stack slot (spec.md
// §4.5 step 11), before the generic cross-block demotion pass runs.
func eliminatePhis(fn *ir.Function) {
	for _, bb := range fn.Blocks {
		for _, p := range bb.Phis() {
			ir.DemotePhi(fn, p)
		}
	}
}

// demoteCrossBlockValues implements spec.md §4.5 step 10: every register
// whose uses escape its own defining block is replaced by a stack slot,
// except Alloca results in the entry block (already globally live).
func demoteCrossBlockValues(fn *ir.Function) {
	for _, bb := range fn.Blocks {
		snapshot := append([]ir.Instruction(nil), bb.Instrs...)
		for _, instr := range snapshot {
			reg := instr.Result()
			if reg == nil {
				continue
			}
			if _, isAlloca := instr.(*ir.Alloca); isAlloca && bb == fn.Entry() {
				continue
			}
			crossBlock := false
			for _, u := range reg.Uses {
				if u.Block() != bb {
					crossBlock = true
					break
				}
			}
			if crossBlock {
				ir.DemoteToStack(fn, reg)
			}
		}
	}
}

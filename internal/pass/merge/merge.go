// Package merge fuses N annotated internal functions with potentially
// different signatures into one void-returning dispatch function whose
// first argument selects which original function's body to execute, and
// rewrites all call sites.
//
// Module-level, unlike C4-C6: it must see every "function-merge"
// candidate at once before deciding anything, so (like
// internal/pass/annotation) it isn't built on passbase's per-function
// tag gate. Grounded on
// original_source/pass/function-merge/FunctionMerge.cpp's
// build-signature / clone-each-body / rewrite-call-sites / erase-
// orphans structure.
package merge

import (
	"fmt"

	"github.com/tliron/commonlog"

	"irobfus/internal/errors"
	"irobfus/internal/ir"
)

var log = commonlog.GetLogger("function-merge")

const mergeTag = "function-merge"

// descriptor records where one source function's result pointer and
// arguments land in the merged function's parameter list (spec.md §4.6
// step 3).
type descriptor struct {
	caseIdx     int64
	argOffset   int
	argNum      int
	retType     ir.Type
	resultParam *ir.Param
	argParams   []*ir.Param
}

// Run scans m for functions eligible for merging and, if at least two
// qualify, fuses them into a single "merged" function. Returns
// changed=false with a T0605 error if fewer than two are eligible.
func Run(m *ir.Module) (bool, error) {
	candidates := eligibleFunctions(m)
	if len(candidates) < 2 {
		return false, errors.New("function-merge", errors.ErrorTooFewFunctions,
			fmt.Sprintf("only %d eligible function(s) carry %q", len(candidates), mergeTag),
			errors.Location{Function: m.Name})
	}

	merged := buildMergedFunction(m, candidates)
	descs := buildDescriptors(merged, candidates)

	clonedEntries := make([]*ir.BasicBlock, len(candidates))
	dispatch := merged.Entry().Term().(*ir.Switch)
	for i, src := range candidates {
		clonedEntries[i] = cloneBody(merged, src, descs[i])
		dispatch.AddCase(descs[i].caseIdx, clonedEntries[i])
	}
	merged.RebuildCFG()
	ir.BuildUses(merged)

	erasable := make([]bool, len(candidates))
	for i, src := range candidates {
		erasable[i] = rewriteCallSites(m, src, merged, descs[i])
	}

	m.Functions = append(m.Functions, merged)

	for i, src := range candidates {
		if !erasable[i] {
			log.Debugf("%s: kept, still referenced by an invoke", src.Name)
			continue
		}
		removeAnnotationEntries(m, src)
		m.RemoveFunction(src)
		log.Debugf("%s: erased, folded into %s case %d", src.Name, merged.Name, descs[i].caseIdx)
	}

	log.Debugf("merged %d functions into %s", len(candidates), merged.Name)
	return true, nil
}

func eligibleFunctions(m *ir.Module) []*ir.Function {
	var out []*ir.Function
	for _, fn := range m.Functions {
		if !fn.HasAnnotation(mergeTag) {
			continue
		}
		if fn.Linkage != ir.LinkageInternal {
			log.Debugf("%s: skipping, not internal linkage", fn.Name)
			continue
		}
		if fn.Sig.Variadic {
			log.Debugf("%s: skipping, variadic", fn.Name)
			continue
		}
		if !fn.IsDefinition() {
			log.Debugf("%s: skipping, declaration only", fn.Name)
			continue
		}
		if fn.IsIntrinsic() {
			log.Debugf("%s: skipping, intrinsic", fn.Name)
			continue
		}
		out = append(out, fn)
	}
	return out
}

// buildMergedFunction builds the merged signature (spec.md §4.6 step 1)
// and its entry block's default-returning switch (step 2).
func buildMergedFunction(m *ir.Module, fns []*ir.Function) *ir.Function {
	params := []ir.Type{ir.I32}
	for _, f := range fns {
		params = append(params, ir.NewPointer(f.Sig.Ret))
		params = append(params, f.Sig.Params...)
	}
	sig := &ir.FuncType{Ret: ir.Void, Params: params}

	merged := ir.NewFunction(uniqueMergedName(m), sig)
	merged.Linkage = ir.LinkageInternal

	entry := merged.NewBlock("entry")
	defaultBlk := merged.NewBlock("default")

	b := ir.NewBuilder(merged)
	b.SetBlock(defaultBlk)
	b.Ret(nil)

	b.SetBlock(entry)
	b.Switch(merged.Params[0], defaultBlk)

	return merged
}

func uniqueMergedName(m *ir.Module) string {
	name := "merged"
	for i := 1; m.FuncByName(name) != nil; i++ {
		name = fmt.Sprintf("merged.%d", i)
	}
	return name
}

// buildDescriptors computes argOffset_i/argNum_i for every source
// function in selection order (spec.md §4.6 step 3).
func buildDescriptors(merged *ir.Function, fns []*ir.Function) []descriptor {
	descs := make([]descriptor, len(fns))
	offset := 1
	for i, f := range fns {
		argNum := 1 + len(f.Sig.Params)
		descs[i] = descriptor{
			caseIdx:     int64(i),
			argOffset:   offset,
			argNum:      argNum,
			retType:     f.Sig.Ret,
			resultParam: merged.Params[offset],
			argParams:   merged.Params[offset+1 : offset+argNum],
		}
		offset += argNum
	}
	return descs
}

// cloneBody clones src's body into merged, mapping src's own parameters
// to the merged function's corresponding interleaved slots, and rewrites
// non-void returns through the result pointer (spec.md §4.6 step 4).
// Attributes are stripped for the duration of the clone (step 4a/4c).
func cloneBody(merged *ir.Function, src *ir.Function, d descriptor) *ir.BasicBlock {
	savedAttrs := src.Attrs
	src.Attrs = nil
	defer func() { src.Attrs = savedAttrs }()

	vm := ir.NewValueMap()
	for i, p := range src.Params {
		vm.Params[p] = d.argParams[i]
	}

	prefix := fmt.Sprintf("f%d.", d.caseIdx)
	var clonedEntry *ir.BasicBlock
	for _, bb := range src.Blocks {
		nb := ir.CloneBlock(bb, merged.FreshName(prefix+bb.Name), vm)
		merged.Blocks = append(merged.Blocks, nb)
		if clonedEntry == nil {
			clonedEntry = nb
		}
	}
	for _, bb := range src.Blocks {
		ir.RemapBlockRefs(vm.Blocks[bb], vm)
	}

	rewriteReturns(vm, src, d)
	return clonedEntry
}

// rewriteReturns implements spec.md §4.6 step 4e: a non-void `ret v`
// becomes `store v, result_ptr; ret void`; a void return is left as is.
func rewriteReturns(vm *ir.ValueMap, src *ir.Function, d descriptor) {
	_, isVoid := d.retType.(*ir.VoidType)
	if isVoid {
		return
	}
	for _, bb := range src.Blocks {
		nb := vm.Blocks[bb]
		term, ok := nb.Term().(*ir.Ret)
		if !ok || term.Val == nil {
			continue
		}
		store := ir.NewStore(d.resultParam, term.Val)
		nb.InsertBefore(term, store)
		nb.SetTerm(ir.NewRet(nil))
	}
}

// rewriteCallSites rewrites every ordinary (non-invoke) call to src
// anywhere in the module into a call to merged, per spec.md §4.6 step 5.
// It returns whether src has no remaining non-invoke uses and can
// therefore be erased (step 6); a function with any invoke user is kept
// alive, rewritten calls and all (spec.md §4.6 "Invariants").
func rewriteCallSites(m *ir.Module, src, merged *ir.Function, d descriptor) bool {
	// merged is not in m.Functions yet, but its cloned bodies may call src.
	callers := append(append([]*ir.Function(nil), m.Functions...), merged)
	erasable := true
	for _, caller := range callers {
		for _, bb := range caller.Blocks {
			if inv, ok := bb.Term().(*ir.Invoke); ok && inv.Callee == src {
				erasable = false
			}
		}
	}

	for _, caller := range callers {
		changed := false
		snapshot := map[*ir.BasicBlock][]ir.Instruction{}
		for _, bb := range caller.Blocks {
			snapshot[bb] = append([]ir.Instruction(nil), bb.Instrs...)
		}
		for _, bb := range caller.Blocks {
			for _, instr := range snapshot[bb] {
				call, ok := instr.(*ir.Call)
				if !ok || call.Callee != src {
					continue
				}
				rewriteOneCall(caller, bb, call, merged, d)
				changed = true
			}
		}
		if changed {
			ir.BuildUses(caller)
		}
	}
	return erasable
}

// rewriteOneCall implements spec.md §4.6 step 5b/5c for a single call site.
func rewriteOneCall(caller *ir.Function, bb *ir.BasicBlock, call *ir.Call, merged *ir.Function, d descriptor) {
	args := make([]ir.Value, len(merged.Params))
	args[0] = ir.NewConstInt(ir.I32, d.caseIdx)
	for i := 1; i < len(args); i++ {
		args[i] = nullValueFor(merged.Params[i].Type())
	}

	_, isVoid := d.retType.(*ir.VoidType)
	var pre []ir.Instruction
	var resultSlot ir.Value
	if isVoid {
		resultSlot = &ir.ConstNull{Typ: ir.NewPointer(d.retType)}
	} else {
		alloca := ir.NewAlloca(caller.FreshName("merge.result"), d.retType)
		pre = append(pre, alloca)
		resultSlot = alloca.Res
	}
	args[d.argOffset] = resultSlot

	for j := 0; j < d.argNum-1; j++ {
		args[d.argOffset+1+j] = call.Args[j]
	}

	mergedCall := ir.NewCall("", merged, args)
	pre = append(pre, mergedCall)

	var loadReg *ir.Register
	if !isVoid {
		load := ir.NewLoad(caller.FreshName("merge.result.val"), d.retType, resultSlot)
		pre = append(pre, load)
		loadReg = load.Res
	}

	bb.InsertBefore(call, pre...)

	if call.Res != nil && loadReg != nil {
		for _, user := range append([]ir.Instruction(nil), call.Res.Uses...) {
			user.RewriteOperands(func(v ir.Value) ir.Value {
				if v == ir.Value(call.Res) {
					return loadReg
				}
				return v
			})
		}
	}
	bb.Remove(call)
}

// nullValueFor builds the "null-value constant of the appropriate type"
// spec.md §4.6 step 5b asks for at every merged-argument slot a given
// call site doesn't occupy.
func nullValueFor(t ir.Type) ir.Value {
	if it, ok := t.(*ir.IntType); ok {
		return ir.NewConstInt(it, 0)
	}
	return &ir.ConstNull{Typ: t}
}

func removeAnnotationEntries(m *ir.Module, src *ir.Function) {
	out := m.Annotations[:0]
	for _, e := range m.Annotations {
		if e.Target != src {
			out = append(out, e)
		}
	}
	m.Annotations = out
}

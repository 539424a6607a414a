package ir

// ValueMap tracks the correspondence between original and cloned
// values/blocks during a structural clone, the way a block-rewriting
// pass threads a rewritten-block map through recursive calls.
type ValueMap struct {
	Regs   map[*Register]*Register
	Blocks map[*BasicBlock]*BasicBlock
	// Params substitutes a source function's parameters for some other
	// value, used by internal/pass/merge to point a cloned callee body
	// at the merged function's interleaved parameter list instead of the
	// callee's own (since Param isn't a Register, it needs its own map).
	Params map[*Param]Value
}

func NewValueMap() *ValueMap {
	return &ValueMap{
		Regs:   map[*Register]*Register{},
		Blocks: map[*BasicBlock]*BasicBlock{},
		Params: map[*Param]Value{},
	}
}

func (vm *ValueMap) mapValue(v Value) Value {
	if r, ok := v.(*Register); ok {
		if mapped, ok := vm.Regs[r]; ok {
			return mapped
		}
	}
	if p, ok := v.(*Param); ok {
		if mapped, ok := vm.Params[p]; ok {
			return mapped
		}
	}
	return v
}

// CloneBlock deep-copies a single block's instruction list into a new,
// unattached block named newName. Branch targets and phi predecessors
// are left pointing at the ORIGINAL blocks; call RemapBlockRefs once
// every block in the region has been cloned and vm.Blocks is complete.
func CloneBlock(b *BasicBlock, newName string, vm *ValueMap) *BasicBlock {
	nb := &BasicBlock{Name: newName, Parent: b.Parent}
	vm.Blocks[b] = nb

	for _, instr := range b.Instrs {
		clone := cloneInstr(instr, vm)
		nb.Append(clone)
		if orig, new := instr.Result(), clone.Result(); orig != nil && new != nil {
			vm.Regs[orig] = new
		}
	}
	return nb
}

// RemapBlockRefs rewrites every branch target, switch case target, and
// phi predecessor in b to its cloned counterpart in vm.Blocks, leaving
// references to blocks outside the cloned region untouched.
func RemapBlockRefs(b *BasicBlock, vm *ValueMap) {
	remap := func(bb *BasicBlock) *BasicBlock {
		if nb, ok := vm.Blocks[bb]; ok {
			return nb
		}
		return bb
	}
	for _, instr := range b.Instrs {
		switch t := instr.(type) {
		case *Jump:
			t.Target = remap(t.Target)
		case *CondBr:
			t.True = remap(t.True)
			t.False = remap(t.False)
		case *Switch:
			t.Default = remap(t.Default)
			for i := range t.Cases {
				t.Cases[i].Target = remap(t.Cases[i].Target)
			}
		case *Invoke:
			t.Normal = remap(t.Normal)
			t.Unwind = remap(t.Unwind)
		case *Phi:
			for i := range t.Incoming {
				t.Incoming[i].Pred = remap(t.Incoming[i].Pred)
			}
		}
	}
}

// CloneFunctionBody clones every block of src into a fresh set of blocks
// attached to dst (dst must already exist with the right signature), and
// appends them to dst.Blocks in the same order. Returns the value map so
// callers can look up the cloned counterpart of any block or register.
// Param references are left as they are (the map it builds starts with
// no Params entries); merge, which needs them remapped, calls CloneBlock
// and RemapBlockRefs itself with a pre-filled ValueMap.Params.
func CloneFunctionBody(src, dst *Function, namePrefix string) *ValueMap {
	vm := NewValueMap()
	for _, b := range src.Blocks {
		nb := CloneBlock(b, namePrefix+b.Name, vm)
		dst.Blocks = append(dst.Blocks, nb)
	}
	for _, b := range src.Blocks {
		RemapBlockRefs(vm.Blocks[b], vm)
	}
	dst.RebuildCFG()
	BuildUses(dst)
	return vm
}

func cloneInstr(instr Instruction, vm *ValueMap) Instruction {
	switch i := instr.(type) {
	case *Alloca:
		return NewAlloca(i.Res.Name(), i.ElemType)
	case *Load:
		return NewLoad(i.Res.Name(), i.Res.Type(), vm.mapValue(i.Addr))
	case *Store:
		return NewStore(vm.mapValue(i.Addr), vm.mapValue(i.Val))
	case *BinOp:
		return NewBinOp(i.Res.Name(), i.Op, vm.mapValue(i.X), vm.mapValue(i.Y))
	case *ICmp:
		return NewICmp(i.Res.Name(), i.Pred, vm.mapValue(i.X), vm.mapValue(i.Y))
	case *Select:
		return NewSelect(i.Res.Name(), vm.mapValue(i.Cond), vm.mapValue(i.X), vm.mapValue(i.Y))
	case *Conv:
		return NewConv(i.Res.Name(), i.Kind, vm.mapValue(i.X), i.ToType)
	case *Call:
		args := make([]Value, len(i.Args))
		for j, a := range i.Args {
			args[j] = vm.mapValue(a)
		}
		name := ""
		if i.Res != nil {
			name = i.Res.Name()
		}
		return NewCall(name, i.Callee, args)
	case *Phi:
		np := NewPhi(i.Res.Name(), i.Res.Type())
		for _, e := range i.Incoming {
			np.AddIncoming(e.Pred, vm.mapValue(e.Val))
		}
		return np
	case *Jump:
		return NewJump(i.Target)
	case *CondBr:
		return NewCondBr(vm.mapValue(i.Cond), i.True, i.False)
	case *Switch:
		cases := make([]SwitchCase, len(i.Cases))
		copy(cases, i.Cases)
		return NewSwitch(vm.mapValue(i.Cond), i.Default, cases)
	case *Ret:
		if i.Val == nil {
			return NewRet(nil)
		}
		return NewRet(vm.mapValue(i.Val))
	case *Unreachable:
		return &Unreachable{}
	case *Invoke:
		args := make([]Value, len(i.Args))
		for j, a := range i.Args {
			args[j] = vm.mapValue(a)
		}
		name := ""
		if i.Res != nil {
			name = i.Res.Name()
		}
		return NewInvoke(name, i.Callee, args, i.Normal, i.Unwind)
	default:
		panic("ir: cloneInstr: unhandled instruction kind")
	}
}

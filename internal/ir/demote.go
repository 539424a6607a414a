package ir

import "fmt"

// DemoteToStack inserts a store of reg to a freshly allocated stack slot
// immediately after reg's definition, and replaces every use of reg that
// follows that store (in any block) with a load from the slot. This is
// the SSA-to-stack-slots step flatten performs once it has built the
// dispatch loop and eliminated phis with DemotePhi (see flatten.Run),
// since a stack slot is the only thing that can carry a value across the
// merged dispatch block's back-edges.
func DemoteToStack(f *Function, reg *Register) {
	if len(reg.Uses) == 0 {
		return
	}
	entry := f.Entry()
	slot := NewAlloca(f.FreshName(reg.Name()+".slot"), reg.Type())
	entry.Instrs = append([]Instruction{slot}, entry.Instrs...)
	slot.setBlock(entry)

	defBlock := reg.Def.Block()
	store := NewStore(slot.Res, reg)
	insertAfter(defBlock, reg.Def, store)

	for _, user := range append([]Instruction(nil), reg.Uses...) {
		if user.Block() == defBlock && !comesBefore(defBlock, store, user) {
			continue
		}
		load := NewLoad(f.FreshName(reg.Name()), reg.Type(), slot.Res)
		insertBefore(user.Block(), user, load)
		user.RewriteOperands(func(v Value) Value {
			if v == Value(reg) {
				return load.Res
			}
			return v
		})
	}
	BuildUses(f)
}

// DemotePhi replaces a Phi with a stack slot: a store is inserted at the
// end of each incoming predecessor (before its terminator), and the phi
// itself is replaced in place by a load at the top of its block. Passes
// call this once they've rewritten the CFG enough that the phi's
// dominance invariant no longer holds (flatten's dispatch loop is the
// motivating case: every original block now has the same single
// predecessor, the dispatcher, so the phi can't be kept as-is).
func DemotePhi(f *Function, p *Phi) {
	block := p.Block()
	entry := f.Entry()
	slot := NewAlloca(f.FreshName(p.Res.Name()+".slot"), p.Res.Type())
	entry.Instrs = append([]Instruction{slot}, entry.Instrs...)
	slot.setBlock(entry)

	for _, e := range p.Incoming {
		store := NewStore(slot.Res, e.Val)
		term := e.Pred.Term()
		insertBefore(e.Pred, term.(Instruction), store)
	}

	load := NewLoad(f.FreshName(p.Res.Name()), p.Res.Type(), slot.Res)
	removeInstr(block, p)
	block.Instrs = append([]Instruction{load}, block.Instrs...)
	load.setBlock(block)

	for _, user := range append([]Instruction(nil), p.Res.Uses...) {
		user.RewriteOperands(func(v Value) Value {
			if v == Value(p.Res) {
				return load.Res
			}
			return v
		})
	}
	BuildUses(f)
}

func insertAfter(b *BasicBlock, after, instr Instruction) {
	for i, in := range b.Instrs {
		if in == after {
			tail := append([]Instruction{instr}, b.Instrs[i+1:]...)
			b.Instrs = append(b.Instrs[:i+1:i+1], tail...)
			instr.setBlock(b)
			return
		}
	}
	panic(fmt.Sprintf("ir: insertAfter: instruction not found in block %s", b.Name))
}

func insertBefore(b *BasicBlock, before, instr Instruction) {
	for i, in := range b.Instrs {
		if in == before {
			tail := append([]Instruction{instr}, b.Instrs[i:]...)
			b.Instrs = append(b.Instrs[:i:i], tail...)
			instr.setBlock(b)
			return
		}
	}
	panic(fmt.Sprintf("ir: insertBefore: instruction not found in block %s", b.Name))
}

func removeInstr(b *BasicBlock, instr Instruction) {
	for i, in := range b.Instrs {
		if in == instr {
			b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
			return
		}
	}
}

func comesBefore(b *BasicBlock, a, c Instruction) bool {
	ai, ci := -1, -1
	for i, in := range b.Instrs {
		if in == a {
			ai = i
		}
		if in == c {
			ci = i
		}
	}
	return ai >= 0 && ci >= 0 && ai < ci
}

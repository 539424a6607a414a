package ir

// Effect classifies an instruction's interaction with memory, the way
// the teacher toolchain's per-instruction GetEffects() distinguished
// pure arithmetic from storage/memory-touching operations. Here the
// only distinction kept is "may this be freely duplicated or reordered".
// No pass calls Effects or IsDuplicable: bogus-switch's case cloning and
// merge's body cloning copy instructions without consulting it.
type Effect int

const (
	// Pure instructions have no observable effect beyond producing
	// their result: safe to duplicate (bogus-switch) or clone into a
	// merged function body (merge) without changing behavior.
	Pure Effect = iota
	// Mem instructions read or write through a pointer.
	Mem
	// Unknown instructions (calls to unknown functions) may do anything.
	Unknown
)

// Effects reports instr's effect classification.
func Effects(instr Instruction) Effect {
	switch instr.(type) {
	case *Alloca, *BinOp, *ICmp, *Select, *Conv, *Phi:
		return Pure
	case *Load, *Store:
		return Mem
	case *Call, *Invoke:
		return Unknown
	default:
		return Unknown
	}
}

// IsDuplicable reports whether instr can be safely cloned in place: only
// Pure instructions qualify (a Store executed twice could corrupt state).
func IsDuplicable(instr Instruction) bool {
	return Effects(instr) == Pure
}

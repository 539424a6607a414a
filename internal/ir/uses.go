package ir

// BuildUses (re)computes every Register's Uses referrer list from
// scratch by walking every instruction's operands, mirroring go/ssa's
// buildReferrers. Passes that rewrite operands in bulk (flatten, merge,
// bogus-switch) call this once after they're done rather than keeping
// referrer lists incrementally consistent mid-transform.
func BuildUses(f *Function) {
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			if r := instr.Result(); r != nil {
				r.Uses = r.Uses[:0]
			}
		}
	}
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			for _, operand := range instr.Operands() {
				if r, ok := operand.(*Register); ok {
					r.Uses = append(r.Uses, instr)
				}
			}
		}
	}
}

// ReplaceAllUses rewrites every recorded use of old to new across f and
// returns the number of operand sites rewritten. Requires BuildUses to
// have been run since old's referrer list was last invalidated.
func ReplaceAllUses(old *Register, new Value) int {
	n := 0
	for _, instr := range old.Uses {
		instr.RewriteOperands(func(v Value) Value {
			if v == Value(old) {
				n++
				return new
			}
			return v
		})
	}
	old.Uses = nil
	return n
}

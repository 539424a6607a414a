package ir

import "fmt"

// Module is a whole translation unit: a set of functions plus the global
// annotation table a front end emitted for them (spec.md §3's
// llvm.global.annotations array).
type Module struct {
	Name      string
	Functions []*Function
	Globals   []*Global

	// Annotations is the harvested form of the llvm.global.annotations
	// array: one entry per struct element, in array order. Populated by
	// internal/irtext on load, or directly by tests; internal/pass/annotation
	// turns it into per-Function metadata.
	Annotations []*AnnotationEntry
}

// AnnotationEntry is one element of the annotation array: a function
// being annotated, and the annotation string attached to it.
type AnnotationEntry struct {
	Target *Function
	Text   string
}

// FuncByName returns the function named n, or nil.
func (m *Module) FuncByName(n string) *Function {
	for _, f := range m.Functions {
		if f.Name == n {
			return f
		}
	}
	return nil
}

// RemoveFunction deletes f from the module's function list. Callers are
// responsible for having already rewritten or erased every use of f
// (see internal/pass/merge's deferred-erasure discipline).
func (m *Module) RemoveFunction(f *Function) {
	out := m.Functions[:0]
	for _, g := range m.Functions {
		if g != f {
			out = append(out, g)
		}
	}
	m.Functions = out
}

// Global is a module-level data definition other than a function.
// Neither internal/irtext nor any pass fills Module.Globals; the
// annotation array is held in Module.Annotations, and that is what the
// printer prints.
type Global struct {
	Name string
	Typ  Type
	Init Constant
}

// MetadataNode is a lightweight key/value bag attached to a Function,
// modeled on LLVM's own metadata-node attachment mechanism. The
// annotation pass attaches one "annotation" node per function
// holding the raw tag strings.
type MetadataNode struct {
	Kind   string
	Values []string
}

// Linkage mirrors LLVM's linkage vocabulary at the granularity the core's
// passes actually inspect: function-merge (and, per spec.md §3's general
// Function invariant) only ever touches internally-linked definitions.
type Linkage string

const (
	LinkageInternal Linkage = "internal"
	LinkageExternal Linkage = "external"
)

// Function is a module-level function: a signature, its basic blocks in
// layout order (Blocks[0] is the entry block), and any metadata attached
// to it by earlier passes.
type Function struct {
	Name     string
	Sig      *FuncType
	Params   []*Param
	Blocks   []*BasicBlock
	Metadata []*MetadataNode

	// Linkage and Attrs are read by internal/pass/merge's eligibility
	// check and attribute-stripping window (spec.md §4.6 steps 4a/4c).
	Linkage Linkage
	Attrs   []string

	nextReg int
}

// NewFunction creates an empty function with no blocks. Linkage defaults
// to external; callers that want a function eligible for function-merge
// must set Linkage = LinkageInternal explicitly.
func NewFunction(name string, sig *FuncType) *Function {
	f := &Function{Name: name, Sig: sig, Linkage: LinkageExternal}
	for i, pt := range sig.Params {
		f.Params = append(f.Params, NewParam(fmt.Sprintf("arg%d", i), pt))
	}
	return f
}

// IsDefinition reports whether f has a body (at least one basic block),
// as opposed to a declaration only.
func (f *Function) IsDefinition() bool { return len(f.Blocks) > 0 }

// IsIntrinsic reports whether f is a compiler intrinsic by name
// convention (spec.md §4.6's "not compiler intrinsics" eligibility
// clause), mirroring LLVM's "llvm." name prefix.
func (f *Function) IsIntrinsic() bool {
	return len(f.Name) >= 5 && f.Name[:5] == "llvm."
}

// NewBlock appends a fresh, empty basic block to f and returns it.
func (f *Function) NewBlock(name string) *BasicBlock {
	if name == "" {
		name = fmt.Sprintf("bb%d", len(f.Blocks))
	}
	bb := &BasicBlock{Name: name, Parent: f}
	f.Blocks = append(f.Blocks, bb)
	return bb
}

// Entry returns the function's entry block, or nil if it has none.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// FreshName returns a register name guaranteed unused so far in f,
// derived from hint (mirrors go/ssa's numberRegisters idiom, but
// name-based rather than purely positional so printed IR stays readable
// after passes insert new values).
func (f *Function) FreshName(hint string) string {
	f.nextReg++
	return fmt.Sprintf("%s.%d", hint, f.nextReg)
}

// AddMetadata attaches a metadata node of the given kind to f.
func (f *Function) AddMetadata(kind string, values ...string) {
	f.Metadata = append(f.Metadata, &MetadataNode{Kind: kind, Values: values})
}

// Annotations returns the values of every "annotation" metadata
// node attached to f, in attachment order.
func (f *Function) Annotations() []string {
	var tags []string
	for _, m := range f.Metadata {
		if m.Kind == AnnotationMetadataKind {
			tags = append(tags, m.Values...)
		}
	}
	return tags
}

// HasAnnotation reports whether f carries the exact annotation tag.
func (f *Function) HasAnnotation(tag string) bool {
	for _, t := range f.Annotations() {
		if t == tag {
			return true
		}
	}
	return false
}

// AnnotationMetadataKind is the metadata kind the annotation harvester
// attaches tags under.
const AnnotationMetadataKind = "annotation"

// BasicBlock is a maximal straight-line sequence of instructions ending
// in exactly one Terminator.
type BasicBlock struct {
	Name     string
	Parent   *Function
	Instrs   []Instruction
	Preds    []*BasicBlock
	Succs    []*BasicBlock
}

// Term returns the block's terminator, or nil if the block is
// (transiently, mid-construction) missing one.
func (b *BasicBlock) Term() Terminator {
	if len(b.Instrs) == 0 {
		return nil
	}
	t, _ := b.Instrs[len(b.Instrs)-1].(Terminator)
	return t
}

// Append adds instr to the end of b's instruction list and sets its
// parent block.
func (b *BasicBlock) Append(instr Instruction) {
	instr.setBlock(b)
	b.Instrs = append(b.Instrs, instr)
}

// SetTerm replaces b's terminator (if any) with term, appending it if
// the block has none yet.
func (b *BasicBlock) SetTerm(term Terminator) {
	if t := b.Term(); t != nil {
		b.Instrs[len(b.Instrs)-1] = term
		term.setBlock(b)
		return
	}
	b.Append(term)
}

// InsertBefore splices instrs into b immediately before the existing
// instruction "before", setting their parent block. Used by passes that
// rewrite a single instruction into a short replacement sequence (mba's
// catalogue substitutions, flatten's caseVar updates, merge's call-site
// rewriting).
func (b *BasicBlock) InsertBefore(before Instruction, instrs ...Instruction) {
	for i, in := range b.Instrs {
		if in == before {
			tail := append([]Instruction{}, instrs...)
			tail = append(tail, b.Instrs[i:]...)
			b.Instrs = append(b.Instrs[:i:i], tail...)
			for _, n := range instrs {
				n.setBlock(b)
			}
			return
		}
	}
}

// Prepend inserts instr at the very start of b's instruction list,
// setting its parent block. Used by flatten to place the caseVar alloca
// ahead of whatever the entry block already contained (spec.md §4.5 step
// 4: "Allocate in the entry block a stack slot caseVar").
func (b *BasicBlock) Prepend(instr Instruction) {
	instr.setBlock(b)
	b.Instrs = append([]Instruction{instr}, b.Instrs...)
}

// Remove deletes instr from b's instruction list.
func (b *BasicBlock) Remove(instr Instruction) {
	out := b.Instrs[:0]
	for _, in := range b.Instrs {
		if in != instr {
			out = append(out, in)
		}
	}
	b.Instrs = out
}

// Phis returns the leading run of Phi instructions in b, in order.
func (b *BasicBlock) Phis() []*Phi {
	var phis []*Phi
	for _, instr := range b.Instrs {
		p, ok := instr.(*Phi)
		if !ok {
			break
		}
		phis = append(phis, p)
	}
	return phis
}

// RebuildCFG recomputes Preds/Succs for every block in f from its
// terminators, mirroring go/ssa's buildDomTree-adjacent CFG bookkeeping.
// Passes that change terminators call this once they're done rewriting.
func (f *Function) RebuildCFG() {
	for _, b := range f.Blocks {
		b.Preds = nil
		b.Succs = nil
	}
	for _, b := range f.Blocks {
		term := b.Term()
		if term == nil {
			continue
		}
		for _, s := range term.Successors() {
			b.Succs = append(b.Succs, s)
			s.Preds = append(s.Preds, b)
		}
	}
}

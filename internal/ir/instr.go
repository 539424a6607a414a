package ir

import (
	"fmt"
	"strings"
)

// Instruction is implemented by every instruction kind. Operands returns
// the instruction's operand values (for traversal); RewriteOperands lets
// a pass substitute operands in place without type-switching on every
// instruction kind (the C1 "iterating uses" / "rewrite operands" helper
// surface spec.md §6 describes).
type Instruction interface {
	Block() *BasicBlock
	setBlock(*BasicBlock)
	Operands() []Value
	RewriteOperands(f func(Value) Value)
	Result() *Register // nil if the instruction produces no value
	String() string
}

// Terminator is the subset of Instruction that ends a BasicBlock.
type Terminator interface {
	Instruction
	Successors() []*BasicBlock
}

// instrBase factors the Block()/setBlock() bookkeeping every instruction needs.
type instrBase struct {
	block *BasicBlock
}

func (b *instrBase) Block() *BasicBlock    { return b.block }
func (b *instrBase) setBlock(bb *BasicBlock) { b.block = bb }

func reg(name string, typ Type, def Instruction) *Register {
	return &Register{name: name, typ: typ, Def: def}
}

// -- value-defining instructions --

// Alloca allocates a stack slot of ElemType and yields a pointer to it.
type Alloca struct {
	instrBase
	Res      *Register
	ElemType Type
}

func NewAlloca(name string, elemType Type) *Alloca {
	a := &Alloca{ElemType: elemType}
	a.Res = reg(name, NewPointer(elemType), a)
	return a
}
func (a *Alloca) Result() *Register            { return a.Res }
func (a *Alloca) Operands() []Value            { return nil }
func (a *Alloca) RewriteOperands(func(Value) Value) {}
func (a *Alloca) String() string {
	return fmt.Sprintf("%s = alloca %s", a.Res.Ident(), a.ElemType)
}

// Load reads the value stored at Addr.
type Load struct {
	instrBase
	Res  *Register
	Addr Value
}

func NewLoad(name string, elemType Type, addr Value) *Load {
	l := &Load{Addr: addr}
	l.Res = reg(name, elemType, l)
	return l
}
func (l *Load) Result() *Register { return l.Res }
func (l *Load) Operands() []Value { return []Value{l.Addr} }
func (l *Load) RewriteOperands(f func(Value) Value) { l.Addr = f(l.Addr) }
func (l *Load) String() string {
	return fmt.Sprintf("%s = load %s, %s", l.Res.Ident(), l.Res.Type(), l.Addr.Ident())
}

// Store writes Val to Addr. No result.
type Store struct {
	instrBase
	Addr Value
	Val  Value
}

func NewStore(addr, val Value) *Store { return &Store{Addr: addr, Val: val} }
func (s *Store) Result() *Register    { return nil }
func (s *Store) Operands() []Value    { return []Value{s.Addr, s.Val} }
func (s *Store) RewriteOperands(f func(Value) Value) {
	s.Addr = f(s.Addr)
	s.Val = f(s.Val)
}
func (s *Store) String() string {
	return fmt.Sprintf("store %s, %s", s.Val.Ident(), s.Addr.Ident())
}

// BinOpKind enumerates arithmetic/bitwise binary operators.
type BinOpKind int

const (
	Add BinOpKind = iota
	Sub
	Mul
	And
	Or
	Xor
	Shl
	LShr
	AShr
)

var binOpNames = map[BinOpKind]string{
	Add: "add", Sub: "sub", Mul: "mul", And: "and", Or: "or",
	Xor: "xor", Shl: "shl", LShr: "lshr", AShr: "ashr",
}

// BinOp is a binary arithmetic or bitwise instruction.
type BinOp struct {
	instrBase
	Res  *Register
	Op   BinOpKind
	X, Y Value
}

func NewBinOp(name string, op BinOpKind, x, y Value) *BinOp {
	b := &BinOp{Op: op, X: x, Y: y}
	b.Res = reg(name, x.Type(), b)
	return b
}
func (b *BinOp) Result() *Register { return b.Res }
func (b *BinOp) Operands() []Value { return []Value{b.X, b.Y} }
func (b *BinOp) RewriteOperands(f func(Value) Value) {
	b.X = f(b.X)
	b.Y = f(b.Y)
}
func (b *BinOp) String() string {
	return fmt.Sprintf("%s = %s %s, %s", b.Res.Ident(), binOpNames[b.Op], b.X.Ident(), b.Y.Ident())
}

// ICmpPred enumerates integer comparison predicates.
type ICmpPred int

const (
	EQ ICmpPred = iota
	NE
	SGT
	SGE
	SLT
	SLE
	UGT
	UGE
	ULT
	ULE
)

var icmpNames = map[ICmpPred]string{
	EQ: "eq", NE: "ne", SGT: "sgt", SGE: "sge", SLT: "slt", SLE: "sle",
	UGT: "ugt", UGE: "uge", ULT: "ult", ULE: "ule",
}

// ICmp compares X and Y, yielding an i1.
type ICmp struct {
	instrBase
	Res  *Register
	Pred ICmpPred
	X, Y Value
}

func NewICmp(name string, pred ICmpPred, x, y Value) *ICmp {
	c := &ICmp{Pred: pred, X: x, Y: y}
	c.Res = reg(name, I1, c)
	return c
}
func (c *ICmp) Result() *Register { return c.Res }
func (c *ICmp) Operands() []Value { return []Value{c.X, c.Y} }
func (c *ICmp) RewriteOperands(f func(Value) Value) {
	c.X = f(c.X)
	c.Y = f(c.Y)
}
func (c *ICmp) String() string {
	return fmt.Sprintf("%s = icmp %s %s, %s", c.Res.Ident(), icmpNames[c.Pred], c.X.Ident(), c.Y.Ident())
}

// Select picks X or Y based on Cond.
type Select struct {
	instrBase
	Res        *Register
	Cond, X, Y Value
}

func NewSelect(name string, cond, x, y Value) *Select {
	s := &Select{Cond: cond, X: x, Y: y}
	s.Res = reg(name, x.Type(), s)
	return s
}
func (s *Select) Result() *Register { return s.Res }
func (s *Select) Operands() []Value { return []Value{s.Cond, s.X, s.Y} }
func (s *Select) RewriteOperands(f func(Value) Value) {
	s.Cond = f(s.Cond)
	s.X = f(s.X)
	s.Y = f(s.Y)
}
func (s *Select) String() string {
	return fmt.Sprintf("%s = select %s, %s, %s", s.Res.Ident(), s.Cond.Ident(), s.X.Ident(), s.Y.Ident())
}

// ConvKind enumerates integer conversion kinds.
type ConvKind int

const (
	ZExt ConvKind = iota
	SExt
	Trunc
)

var convNames = map[ConvKind]string{ZExt: "zext", SExt: "sext", Trunc: "trunc"}

// Conv widens/narrows X to ToType.
type Conv struct {
	instrBase
	Res    *Register
	Kind   ConvKind
	X      Value
	ToType Type
}

func NewConv(name string, kind ConvKind, x Value, toType Type) *Conv {
	c := &Conv{Kind: kind, X: x, ToType: toType}
	c.Res = reg(name, toType, c)
	return c
}
func (c *Conv) Result() *Register { return c.Res }
func (c *Conv) Operands() []Value { return []Value{c.X} }
func (c *Conv) RewriteOperands(f func(Value) Value) { c.X = f(c.X) }
func (c *Conv) String() string {
	return fmt.Sprintf("%s = %s %s to %s", c.Res.Ident(), convNames[c.Kind], c.X.Ident(), c.ToType)
}

// Call invokes Callee with Args. Non-exception-carrying: control always
// returns to the instruction following it.
type Call struct {
	instrBase
	Res    *Register // nil for void calls
	Callee *Function
	Args   []Value
}

func NewCall(name string, callee *Function, args []Value) *Call {
	c := &Call{Callee: callee, Args: args}
	if _, void := callee.Sig.Ret.(*VoidType); !void {
		c.Res = reg(name, callee.Sig.Ret, c)
	}
	return c
}
func (c *Call) Result() *Register { return c.Res }
func (c *Call) Operands() []Value { return c.Args }
func (c *Call) RewriteOperands(f func(Value) Value) {
	for i, a := range c.Args {
		c.Args[i] = f(a)
	}
}
func (c *Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.Ident()
	}
	prefix := ""
	if c.Res != nil {
		prefix = c.Res.Ident() + " = "
	}
	return fmt.Sprintf("%scall @%s(%s)", prefix, c.Callee.Name, strings.Join(parts, ", "))
}

// PhiEdge is one incoming edge of a Phi.
type PhiEdge struct {
	Pred *BasicBlock
	Val  Value
}

// Phi is an SSA join. Eliminated by flatten (spec.md §4.5 step 11).
type Phi struct {
	instrBase
	Res      *Register
	Incoming []PhiEdge
}

func NewPhi(name string, typ Type) *Phi {
	p := &Phi{}
	p.Res = reg(name, typ, p)
	return p
}
func (p *Phi) Result() *Register { return p.Res }
func (p *Phi) Operands() []Value {
	vs := make([]Value, len(p.Incoming))
	for i, e := range p.Incoming {
		vs[i] = e.Val
	}
	return vs
}
func (p *Phi) RewriteOperands(f func(Value) Value) {
	for i := range p.Incoming {
		p.Incoming[i].Val = f(p.Incoming[i].Val)
	}
}
func (p *Phi) AddIncoming(pred *BasicBlock, v Value) {
	p.Incoming = append(p.Incoming, PhiEdge{Pred: pred, Val: v})
}
func (p *Phi) String() string {
	parts := make([]string, len(p.Incoming))
	for i, e := range p.Incoming {
		parts[i] = fmt.Sprintf("[%s, %%%s]", e.Val.Ident(), e.Pred.Name)
	}
	return fmt.Sprintf("%s = phi %s %s", p.Res.Ident(), p.Res.Type(), strings.Join(parts, ", "))
}

// -- terminators --

// Jump is an unconditional branch.
type Jump struct {
	instrBase
	Target *BasicBlock
}

func NewJump(target *BasicBlock) *Jump          { return &Jump{Target: target} }
func (j *Jump) Result() *Register               { return nil }
func (j *Jump) Operands() []Value                { return nil }
func (j *Jump) RewriteOperands(func(Value) Value) {}
func (j *Jump) Successors() []*BasicBlock        { return []*BasicBlock{j.Target} }
func (j *Jump) String() string                   { return fmt.Sprintf("br label %%%s", j.Target.Name) }

// CondBr is a two-way conditional branch.
type CondBr struct {
	instrBase
	Cond        Value
	True, False *BasicBlock
}

func NewCondBr(cond Value, t, f *BasicBlock) *CondBr { return &CondBr{Cond: cond, True: t, False: f} }
func (c *CondBr) Result() *Register                 { return nil }
func (c *CondBr) Operands() []Value                 { return []Value{c.Cond} }
func (c *CondBr) RewriteOperands(f func(Value) Value) { c.Cond = f(c.Cond) }
func (c *CondBr) Successors() []*BasicBlock         { return []*BasicBlock{c.True, c.False} }
func (c *CondBr) String() string {
	return fmt.Sprintf("br %s, label %%%s, label %%%s", c.Cond.Ident(), c.True.Name, c.False.Name)
}

// SwitchCase is one case of a Switch.
type SwitchCase struct {
	Val    int64
	Target *BasicBlock
}

// Switch is a multi-way branch on an integer value.
type Switch struct {
	instrBase
	Cond    Value
	Default *BasicBlock
	Cases   []SwitchCase
}

func NewSwitch(cond Value, def *BasicBlock, cases []SwitchCase) *Switch {
	return &Switch{Cond: cond, Default: def, Cases: cases}
}
func (s *Switch) Result() *Register { return nil }
func (s *Switch) Operands() []Value { return []Value{s.Cond} }
func (s *Switch) RewriteOperands(f func(Value) Value) { s.Cond = f(s.Cond) }
func (s *Switch) Successors() []*BasicBlock {
	succs := make([]*BasicBlock, 0, len(s.Cases)+1)
	succs = append(succs, s.Default)
	for _, c := range s.Cases {
		succs = append(succs, c.Target)
	}
	return succs
}
func (s *Switch) String() string {
	parts := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		parts[i] = fmt.Sprintf("%d: label %%%s", c.Val, c.Target.Name)
	}
	return fmt.Sprintf("switch %s, label %%%s [%s]", s.Cond.Ident(), s.Default.Name, strings.Join(parts, ", "))
}

// AddCase appends the case (v, target). It does not check v against the
// existing cases; callers pick an unused value (see HasCaseValue).
func (s *Switch) AddCase(v int64, target *BasicBlock) {
	s.Cases = append(s.Cases, SwitchCase{Val: v, Target: target})
}

// HasCaseValue reports whether v already labels one of the switch's cases.
func (s *Switch) HasCaseValue(v int64) bool {
	for _, c := range s.Cases {
		if c.Val == v {
			return true
		}
	}
	return false
}

// Ret returns from the function. Val is nil for a void return.
type Ret struct {
	instrBase
	Val Value
}

func NewRet(val Value) *Ret        { return &Ret{Val: val} }
func (r *Ret) Result() *Register   { return nil }
func (r *Ret) Operands() []Value {
	if r.Val == nil {
		return nil
	}
	return []Value{r.Val}
}
func (r *Ret) RewriteOperands(f func(Value) Value) {
	if r.Val != nil {
		r.Val = f(r.Val)
	}
}
func (r *Ret) Successors() []*BasicBlock { return nil }
func (r *Ret) String() string {
	if r.Val == nil {
		return "ret void"
	}
	return fmt.Sprintf("ret %s", r.Val.Ident())
}

// Unreachable marks a program point control can never reach.
type Unreachable struct{ instrBase }

func (*Unreachable) Result() *Register                { return nil }
func (*Unreachable) Operands() []Value                { return nil }
func (*Unreachable) RewriteOperands(func(Value) Value) {}
func (*Unreachable) Successors() []*BasicBlock         { return nil }
func (*Unreachable) String() string                    { return "unreachable" }

// Invoke is a call that carries exception edges: Normal on ordinary
// return, Unwind on an exception. Passes that spec.md says must refuse
// functions with exception edges (flatten) look for this terminator.
type Invoke struct {
	instrBase
	Res            *Register
	Callee         *Function
	Args           []Value
	Normal, Unwind *BasicBlock
}

// NewInvoke builds an Invoke terminator. Flatten refuses any function
// containing one (spec.md §4.5); function-merge may still clone one as
// part of a callee body it isn't otherwise restricted from touching.
func NewInvoke(name string, callee *Function, args []Value, normal, unwind *BasicBlock) *Invoke {
	inv := &Invoke{Callee: callee, Args: args, Normal: normal, Unwind: unwind}
	if _, void := callee.Sig.Ret.(*VoidType); !void {
		inv.Res = reg(name, callee.Sig.Ret, inv)
	}
	return inv
}

func (i *Invoke) Result() *Register { return i.Res }
func (i *Invoke) Operands() []Value { return i.Args }
func (i *Invoke) RewriteOperands(f func(Value) Value) {
	for j, a := range i.Args {
		i.Args[j] = f(a)
	}
}
func (i *Invoke) Successors() []*BasicBlock { return []*BasicBlock{i.Normal, i.Unwind} }
func (i *Invoke) String() string {
	prefix := ""
	if i.Res != nil {
		prefix = i.Res.Ident() + " = "
	}
	return fmt.Sprintf("%sinvoke @%s to label %%%s unwind label %%%s", prefix, i.Callee.Name, i.Normal.Name, i.Unwind.Name)
}

package ir

import "fmt"

// Value is anything an instruction can take as an operand: a register
// defined by some instruction, a function parameter, or a constant.
type Value interface {
	Type() Type
	Ident() string
}

// Register is the SSA value produced by a value-defining instruction.
// Uses is this register's referrer list, maintained by BuildUses and
// ReplaceAllUses (mirrors golang.org/x/tools' go/ssa buildReferrers idiom).
type Register struct {
	name string
	typ  Type
	Def  Instruction
	Uses []Instruction
}

func (r *Register) Type() Type     { return r.typ }
func (r *Register) Ident() string  { return "%" + r.name }
func (r *Register) Name() string   { return r.name }
func (r *Register) SetName(n string) { r.name = n }

// Param is a function parameter.
type Param struct {
	name string
	typ  Type
}

func NewParam(name string, typ Type) *Param { return &Param{name: name, typ: typ} }
func (p *Param) Type() Type                 { return p.typ }
func (p *Param) Ident() string              { return "%" + p.name }
func (p *Param) Name() string               { return p.name }

// Constant is implemented by every constant value.
type Constant interface {
	Value
	constant()
}

// ConstInt is an integer constant.
type ConstInt struct {
	Typ *IntType
	Val int64
}

func NewConstInt(t *IntType, v int64) *ConstInt { return &ConstInt{Typ: t, Val: v} }
func (c *ConstInt) Type() Type                  { return c.Typ }
func (c *ConstInt) Ident() string               { return fmt.Sprintf("%d", c.Val) }
func (*ConstInt) constant()                     {}

// ConstNull is the null pointer constant of some pointer type.
type ConstNull struct {
	Typ Type
}

func (c *ConstNull) Type() Type    { return c.Typ }
func (c *ConstNull) Ident() string { return "null" }
func (*ConstNull) constant()       {}

// ConstString is a string literal constant of type i8*. Annotation text
// is not stored as a ConstString: Module.Annotations (module.go) holds it
// directly as AnnotationEntry.Text (DESIGN.md records the simplification
// of skipping the separate string-global indirection spec.md's data
// model describes).
type ConstString struct {
	Val string
}

func (c *ConstString) Type() Type    { return NewPointer(I8) }
func (c *ConstString) Ident() string { return fmt.Sprintf("%q", c.Val) }
func (*ConstString) constant()       {}

// ConstArray is an array constant.
type ConstArray struct {
	Typ   *ArrayType
	Elems []Constant
}

func (c *ConstArray) Type() Type    { return c.Typ }
func (c *ConstArray) Ident() string { return "<array>" }
func (*ConstArray) constant()       {}

// ConstStruct is a struct constant; Fields[0] is conventionally the
// "annotated value" and Fields[1] the annotation text for elements of
// the llvm.global.annotations array (spec.md §3).
type ConstStruct struct {
	Typ    *StructType
	Fields []Constant
}

func (c *ConstStruct) Type() Type    { return c.Typ }
func (c *ConstStruct) Ident() string { return "<struct>" }
func (*ConstStruct) constant()       {}

// FuncRef is the address-of-function constant used wherever a function
// is referenced as a value (the annotation array's target operand, a
// call callee, ...).
type FuncRef struct {
	Fn *Function
}

func (c *FuncRef) Type() Type    { return NewPointer(c.Fn.Sig) }
func (c *FuncRef) Ident() string { return "@" + c.Fn.Name }
func (*FuncRef) constant()       {}

// Package ir implements the typed, SSA-based intermediate representation
// the transformation passes in this module rewrite. It plays the role
// spec.md calls "external": a host front end would normally populate a
// Module, and a host back end would lower one to machine code; here the
// package also provides a small textual form (see internal/irtext) so the
// module is runnable and testable end to end.
package ir

import (
	"fmt"
	"strings"
)

// Type is implemented by every IR type.
type Type interface {
	String() string
	irType()
}

// IntType is an integer type of a fixed bit width.
type IntType struct {
	Bits int
}

func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }
func (*IntType) irType()          {}

var (
	I1  = &IntType{Bits: 1}
	I8  = &IntType{Bits: 8}
	I16 = &IntType{Bits: 16}
	I32 = &IntType{Bits: 32}
	I64 = &IntType{Bits: 64}
)

// VoidType is the type of instructions and functions that produce no value.
type VoidType struct{}

func (*VoidType) String() string { return "void" }
func (*VoidType) irType()        {}

// Void is the singleton void type.
var Void = &VoidType{}

// PointerType is a pointer to Elem.
type PointerType struct {
	Elem Type
}

func (t *PointerType) String() string { return t.Elem.String() + "*" }
func (*PointerType) irType()          {}

// NewPointer returns a pointer type to elem.
func NewPointer(elem Type) *PointerType { return &PointerType{Elem: elem} }

// ArrayType is a fixed-length array of Elem.
type ArrayType struct {
	Elem Type
	Len  int
}

func (t *ArrayType) String() string { return fmt.Sprintf("[%d x %s]", t.Len, t.Elem) }
func (*ArrayType) irType()          {}

// StructType is a named aggregate of Fields, in order.
type StructType struct {
	Name   string
	Fields []Type
}

func (t *StructType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}
func (*StructType) irType() {}

// FuncType is a function signature.
type FuncType struct {
	Ret      Type
	Params   []Type
	Variadic bool
}

func (t *FuncType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	va := ""
	if t.Variadic {
		va = ", ..."
	}
	return fmt.Sprintf("%s (%s%s)", t.Ret, strings.Join(parts, ", "), va)
}
func (*FuncType) irType() {}

// Bits reports the bit width of an integer type, and ok=false otherwise.
func Bits(t Type) (int, bool) {
	it, ok := t.(*IntType)
	if !ok {
		return 0, false
	}
	return it.Bits, true
}

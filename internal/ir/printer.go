package ir

import (
	"fmt"
	"strings"
)

// Printer renders a Module as a human-readable debug dump, mirroring
// LLVM's own disassembly format closely enough to be recognizable while
// staying small. Its output is not the syntax internal/irtext reads
// (functions print as "define", operands carry no types), so it is not
// parsed back.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter creates a new IR printer.
func NewPrinter() *Printer {
	return &Printer{}
}

// Print returns the textual representation of an entire module.
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

// PrintFunction returns the textual representation of a single function.
func PrintFunction(f *Function) string {
	p := NewPrinter()
	p.printFunction(f)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printModule(m *Module) {
	p.writeLine("; module %s", m.Name)
	p.writeLine("")

	if len(m.Annotations) > 0 {
		p.writeLine("@llvm.global.annotations = [")
		p.indent++
		for _, a := range m.Annotations {
			p.writeLine("{ @%s, %q },", a.Target.Name, a.Text)
		}
		p.indent--
		p.writeLine("]")
		p.writeLine("")
	}

	for _, fn := range m.Functions {
		p.printFunction(fn)
		p.writeLine("")
	}
}

func (p *Printer) printFunction(f *Function) {
	params := make([]string, len(f.Params))
	for i, param := range f.Params {
		params[i] = fmt.Sprintf("%s %s", param.Type(), param.Ident())
	}
	for _, md := range f.Metadata {
		p.writeLine("; %s: %s", md.Kind, strings.Join(md.Values, ", "))
	}
	p.writeLine("define %s @%s(%s) {", f.Sig.Ret, f.Name, strings.Join(params, ", "))
	p.indent++
	for _, bb := range f.Blocks {
		p.printBlock(bb)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printBlock(b *BasicBlock) {
	p.output.WriteString(b.Name)
	p.output.WriteString(":\n")
	p.indent++
	for _, instr := range b.Instrs {
		p.writeLine("%s", instr.String())
	}
	p.indent--
}

// Package irtext is a minimal textual assembler for internal/ir.Module,
// read with participle the same way a struct-tag-driven grammar reads
// source text. It exists because the real front end that would
// normally populate a Module is out of scope; this package plays the
// role LLVM's llvm-as plays alongside the core passes: generic IR-text
// assembly, not a source-language compiler.
//
// internal/ir/printer.go remains a write-only debug dump (it drops type
// annotations irtext's grammar needs to reconstruct typed values, e.g.
// a bare integer register's width) — irtext defines its own explicitly
// typed syntax instead of trying to parse printer.go's output back in.
package irtext

import "github.com/alecthomas/participle/v2/lexer"

// Lexer tokenizes irtext source. Modeled on a "Root" state of ordered
// regexp rules, with two
// IR-specific additions: Reg for "%name" register/param references and
// At for "@name" function references, so the grammar never has to glue
// a punctuation token back onto an identifier.
var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `;[^\n]*`, nil},
		{"String", `"(\\.|[^"\\])*"`, nil},
		{"Arrow", `->`, nil},
		{"At", `@[A-Za-z_][A-Za-z0-9_.]*`, nil},
		{"Reg", `%[A-Za-z_][A-Za-z0-9_.]*`, nil},
		{"Int", `-?[0-9]+`, nil},
		{"Ident", `[A-Za-z_][A-Za-z0-9_]*`, nil},
		{"Punct", `[{}\[\]():,*=]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

// Package pipeline drives a named sequence of passes over a Module: the
// "reasonable outer pipeline" spec.md leaves to a caller, since the core
// transforms never decide their own ordering.
package pipeline

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// specLexer tokenizes a pipeline spec string. Same "Root" stateful-rules
// shape as internal/irtext.Lexer, trimmed to just what a comma/star-
// separated pass list needs.
var specLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Int", `[0-9]+`, nil},
		{"Ident", `[A-Za-z][A-Za-z0-9-]*`, nil},
		{"Punct", `[,*]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

type specGrammar struct {
	Refs []*passRef `@@ ("," @@)*`
}

type passRef struct {
	Name   string `@Ident`
	Repeat int    `("*" @Int)?`
}

var specParser = participle.MustBuild[specGrammar](
	participle.Lexer(specLexer),
	participle.Elide("Whitespace"),
)

// ParseSpec expands a pipeline spec string such as
// "annotation, mba*2, flatten, function-merge" into the flat, ordered
// pass-name list pipeline.Run expects. A pass name with no "*count"
// suffix runs once.
func ParseSpec(s string) ([]string, error) {
	g, err := specParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("pipeline: invalid pipeline spec: %w", err)
	}
	var passes []string
	for _, ref := range g.Refs {
		n := ref.Repeat
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			passes = append(passes, ref.Name)
		}
	}
	return passes, nil
}

package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irobfus/internal/ir"
)

func buildLeafFunc(name string) *ir.Function {
	fn := ir.NewFunction(name, &ir.FuncType{Ret: ir.Void})
	bb := fn.NewBlock("entry")
	bb.SetTerm(ir.NewRet(nil))
	return fn
}

// TestHarvestAttachesEveryTargetedFunction covers spec.md scenario 5: a
// function named twice in the annotation array ends up with both tags,
// in encounter order.
func TestHarvestAttachesEveryTargetedFunction(t *testing.T) {
	fn := buildLeafFunc("both")
	other := buildLeafFunc("untouched")

	m := &ir.Module{
		Name:      "m",
		Functions: []*ir.Function{fn, other},
		Annotations: []*ir.AnnotationEntry{
			{Target: fn, Text: "flatten"},
			{Target: fn, Text: "mba"},
		},
	}

	Harvest(m)

	require.Len(t, fn.Annotations(), 2)
	assert.Equal(t, []string{"flatten", "mba"}, fn.Annotations())
	assert.True(t, fn.HasAnnotation("flatten"))
	assert.True(t, fn.HasAnnotation("mba"))
	assert.Empty(t, other.Annotations())
}

// TestHarvestIgnoresNonFunctionTargets covers spec.md §4.1's "non-function
// annotated value" edge case: a nil Target produces no metadata and no error.
func TestHarvestIgnoresNonFunctionTargets(t *testing.T) {
	m := &ir.Module{
		Name: "m",
		Annotations: []*ir.AnnotationEntry{
			{Target: nil, Text: "flatten"},
		},
	}
	assert.NotPanics(t, func() { Harvest(m) })
}

// TestHarvestIsIdempotent: running the harvester twice does not duplicate
// metadata children (spec.md §8 "Universal" idempotence property, applied
// to the harvester itself).
func TestHarvestIsIdempotent(t *testing.T) {
	fn := buildLeafFunc("once")
	m := &ir.Module{
		Name:      "m",
		Functions: []*ir.Function{fn},
		Annotations: []*ir.AnnotationEntry{
			{Target: fn, Text: "mba"},
		},
	}
	Harvest(m)
	Harvest(m)
	assert.Equal(t, []string{"mba"}, fn.Annotations())
}

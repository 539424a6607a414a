package pipeline

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irobfus/internal/ir"
	"irobfus/internal/irtext"
)

const sampleSrc = `
module demo

func internal @addone(i32 %x) -> i32 {
entry:
  %v = add i32 %x, 1
  %cmp = icmp sgt i32 %v, 0
  br %cmp, label pos, label neg
pos:
  ret i32 %v
neg:
  ret i32 0
}

annotate @addone "mba"
annotate @addone "flatten"
`

func TestParseSpecExpandsRepeatCounts(t *testing.T) {
	passes, err := ParseSpec("annotation, mba*2, flatten")
	require.NoError(t, err)
	assert.Equal(t, []string{"annotation", "mba", "mba", "flatten"}, passes)
}

func TestParseSpecRejectsMalformedInput(t *testing.T) {
	_, err := ParseSpec("mba, ,flatten")
	assert.Error(t, err)
}

func TestRunAppliesAnnotationThenFlatten(t *testing.T) {
	mod, err := irtext.Parse("demo.irtext", sampleSrc)
	require.NoError(t, err)

	fn := mod.FuncByName("addone")
	require.NotNil(t, fn)
	blocksBefore := len(fn.Blocks)

	rng := rand.New(rand.NewSource(1))
	err = Run(mod, []string{"annotation", "mba", "flatten"}, Config{}, rng)
	require.NoError(t, err)

	assert.True(t, fn.HasAnnotation("flatten"))
	// flatten rewrites a multi-block function into the loop/dispatch
	// skeleton, so the block count must have changed from the original
	// three-block shape.
	assert.NotEqual(t, blocksBefore, len(fn.Blocks))
}

func TestRunRejectsUnknownPassName(t *testing.T) {
	mod, err := irtext.Parse("demo.irtext", sampleSrc)
	require.NoError(t, err)

	err = Run(mod, []string{"not-a-real-pass"}, Config{}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

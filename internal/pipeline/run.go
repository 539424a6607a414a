package pipeline

import (
	"fmt"
	"math/rand"

	"github.com/tliron/commonlog"

	"irobfus/internal/ir"
)

var log = commonlog.GetLogger("pipeline")

// Config controls how a pipeline run reacts to a pass-local error.
type Config struct {
	// StopOnError aborts the whole run on a step's first error instead
	// of logging it and continuing to the next step (spec.md §7:
	// "re-raise... per configuration").
	StopOnError bool
}

// Run drives passes, named in order, over mod. Module-level passes
// (annotation, function-merge) see mod once; function-level passes
// (mba, flatten, bogus-switch) run once per eligible function. rng is
// shared across every pass in the run, so seeding it once in the caller
// (spec.md §5) makes the whole run reproducible.
func Run(mod *ir.Module, passes []string, cfg Config, rng *rand.Rand) error {
	for _, name := range passes {
		ctor, ok := Registry[name]
		if !ok {
			return fmt.Errorf("pipeline: unknown pass %q", name)
		}
		step := ctor(rng)
		if err := step.RunModule(mod, cfg); err != nil {
			return fmt.Errorf("pipeline: %s: %w", step.Name(), err)
		}
	}
	return nil
}

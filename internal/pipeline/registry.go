package pipeline

import (
	"math/rand"

	"irobfus/internal/ir"
	"irobfus/internal/pass/annotation"
	"irobfus/internal/pass/bogusswitch"
	"irobfus/internal/pass/flatten"
	"irobfus/internal/pass/mba"
	"irobfus/internal/pass/merge"
	"irobfus/internal/passbase"
)

// Step is one named unit of work a pipeline run drives over a Module:
// either a module-level pass (annotation, function-merge) or a
// passbase.Pass wrapped to run once per eligible function.
type Step interface {
	Name() string
	RunModule(m *ir.Module, cfg Config) error
}

// Constructor builds one pipeline Step, drawing any randomized choices
// (mba/bogus-switch variant selection) from rng. rng is shared across
// every Constructor call in a run, mirroring spec.md §5's single seeded
// source threaded through the whole pipeline.
type Constructor func(rng *rand.Rand) Step

// Registry maps a pass name (as it appears in a pipeline spec string) to
// its Constructor — the "small registry mapping a pass name to a
// constructor" spec.md's Design Notes ask for, in place of a plug-in
// callback ABI.
var Registry = map[string]Constructor{
	"annotation": func(*rand.Rand) Step {
		return moduleStep{name: "annotation", run: func(m *ir.Module) error {
			annotation.Harvest(m)
			return nil
		}}
	},
	"function-merge": func(*rand.Rand) Step {
		return moduleStep{name: "function-merge", run: func(m *ir.Module) error {
			_, err := merge.Run(m)
			return err
		}}
	},
	"mba": func(rng *rand.Rand) Step {
		return functionStep{pass: mba.Pass(rng)}
	},
	"flatten": func(*rand.Rand) Step {
		return functionStep{pass: flatten.Pass()}
	},
	"bogus-switch": func(rng *rand.Rand) Step {
		return functionStep{pass: bogusswitch.Pass(rng)}
	},
}

// moduleStep wraps a pass (annotation, function-merge) that must see the
// whole Module at once rather than one function at a time.
type moduleStep struct {
	name string
	run  func(*ir.Module) error
}

func (s moduleStep) Name() string { return s.name }

func (s moduleStep) RunModule(m *ir.Module, cfg Config) error {
	if err := s.run(m); err != nil {
		log.Debugf("%s: %v", s.name, err)
		if cfg.StopOnError {
			return err
		}
	}
	return nil
}

// functionStep wraps a passbase.Pass, running it once over every
// function in the module that is both annotation-tagged for it and
// structurally eligible (spec.md §3's Function invariant: internal
// linkage, not variadic, a definition).
type functionStep struct {
	pass passbase.Pass
}

func (s functionStep) Name() string { return s.pass.Name }

func (s functionStep) RunModule(m *ir.Module, cfg Config) error {
	res := &passbase.Result{Pass: s.pass.Name, Errors: map[string]error{}}
	for _, fn := range m.Functions {
		if !eligible(fn) || !fn.HasAnnotation(s.pass.Tag) {
			continue
		}
		res.Attempted = append(res.Attempted, fn.Name)
		changed, err := s.pass.Run(fn)
		if err != nil {
			res.Errors[fn.Name] = err
			log.Debugf("%s: %s: %v", s.pass.Name, fn.Name, err)
			if cfg.StopOnError {
				return err
			}
			continue
		}
		if changed {
			res.Changed = append(res.Changed, fn.Name)
		}
	}
	log.Debugf("%s", res.Summary())
	return nil
}

// eligible reports whether fn is a candidate for a function-level pass
// at all: it must be a definition (not a bare declaration), not
// variadic, and internally linked — spec.md §3's general Function
// invariant, not just function-merge's own eligibility check.
func eligible(fn *ir.Function) bool {
	return fn.IsDefinition() && !fn.Sig.Variadic && fn.Linkage == ir.LinkageInternal
}

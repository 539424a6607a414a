// Package passbase provides the common skeleton every annotation-driven
// pass in this module runs on: find the functions carrying a given tag,
// run a transform over each one, report progress the way the teacher
// toolchain's OptimizationPipeline does.
//
// The original C++ passes this module's transforms are based on share
// this skeleton through a common base class (BaseAnnotatedPass) that
// each concrete pass subclasses. Go has no inheritance, so the skeleton
// here is a higher-order function instead: a pass is a name, a required
// annotation tag, and a per-function Transform; RunOnModule does the
// iteration.
package passbase

import (
	"fmt"

	"irobfus/internal/ir"
)

// Transform rewrites a single function in place. It returns whether it
// changed anything, and an error if the function could not be
// transformed (e.g. T0601 for an invoke terminator).
type Transform func(fn *ir.Function) (changed bool, err error)

// Pass is one annotation-gated, function-level transformation.
type Pass struct {
	// Name identifies the pass in logs and in pipeline specs (e.g. "mba").
	Name string
	// Tag is the annotation string a function must carry for this pass
	// to run on it (e.g. "mba", "bogus-switch", "flatten").
	Tag string
	// Run is the per-function transform.
	Run Transform
}

// Result summarizes what happened when a Pass ran over a Module.
type Result struct {
	Pass      string
	Attempted []string // names of functions the tag matched
	Changed   []string // subset that were actually rewritten
	Errors    map[string]error
}

// Applied reports whether the pass changed anything at all.
func (r *Result) Applied() bool { return len(r.Changed) > 0 }

// RunOnModule runs p over every function in m carrying p's tag, in
// module order, and aggregates the outcome. A per-function error does
// not stop the pass from attempting the remaining functions; all errors
// are returned together in Result.Errors.
func RunOnModule(p Pass, m *ir.Module) *Result {
	res := &Result{Pass: p.Name, Errors: map[string]error{}}
	for _, fn := range m.Functions {
		if !fn.HasAnnotation(p.Tag) {
			continue
		}
		res.Attempted = append(res.Attempted, fn.Name)
		changed, err := p.Run(fn)
		if err != nil {
			res.Errors[fn.Name] = err
			continue
		}
		if changed {
			res.Changed = append(res.Changed, fn.Name)
		}
	}
	return res
}

// Summary renders a one-line human-readable progress report, in the
// style of the teacher toolchain's pipeline status lines.
func (r *Result) Summary() string {
	if len(r.Attempted) == 0 {
		return fmt.Sprintf("%s: no matching functions", r.Pass)
	}
	return fmt.Sprintf("%s: %d/%d functions changed, %d errors",
		r.Pass, len(r.Changed), len(r.Attempted), len(r.Errors))
}

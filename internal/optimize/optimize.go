// Package optimize runs IR-to-IR passes over normalized methods. Every pass
// keeps the method normalized; the pipeline repeats the passes until none
// changes the method or the round limit is hit.
package optimize

import (
	"fmt"
	"strconv"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/trace"
)

// DefaultMaxRounds bounds the pipeline when Options.MaxRounds is not set.
const DefaultMaxRounds = 8

// Pass is one optimization. Run reports whether it changed the method.
type Pass struct {
	Name string
	Run  func(m *ir.Method) bool
}

// Passes returns all passes in pipeline order.
func Passes() []Pass {
	return []Pass{
		{Name: "constant-folding", Run: foldConstants},
		{Name: "combine-rotations", Run: combineRotations},
		{Name: "propagate-moves", Run: propagateMoves},
		{Name: "eliminate-dead-code", Run: eliminateDeadCode},
		{Name: "simplify-branches", Run: simplifyBranches},
	}
}

// Select returns the named passes in pipeline order. A nil list selects all
// passes, an empty one none.
func Select(names []string) ([]Pass, error) {
	all := Passes()
	if names == nil {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		known := false
		for _, p := range all {
			if p.Name == name {
				known = true
				break
			}
		}
		if !known {
			return nil, diag.CodeErrorf(diag.OptUnknownPass, name, "Unknown optimization pass")
		}
		want[name] = true
	}
	out := make([]Pass, 0, len(want))
	for _, p := range all {
		if want[p.Name] {
			out = append(out, p)
		}
	}
	return out, nil
}

// Options configures Method.
type Options struct {
	// Passes names the passes to run; nil runs all of them.
	Passes    []string
	MaxRounds int
	Tracer    trace.Tracer
	Reporter  diag.Reporter
}

// Method optimizes m in place and returns the number of rounds run.
func Method(m *ir.Method, opts Options) (int, error) {
	passes, err := Select(opts.Passes)
	if err != nil {
		return 0, err
	}
	t := opts.Tracer
	if t == nil {
		t = trace.Nop
	}
	limit := opts.MaxRounds
	if limit <= 0 {
		limit = DefaultMaxRounds
	}

	rounds, fixed := 0, false
	for !fixed && rounds < limit {
		rounds++
		fixed = true
		for _, p := range passes {
			span := trace.Begin(t, trace.ScopePass, p.Name, 0)
			changed := p.Run(m)
			span.WithExtra("method", m.Name).
				WithExtra("round", strconv.Itoa(rounds)).
				WithExtra("instructions", strconv.Itoa(m.CountInstrs())).
				End(changedDetail(changed))
			fixed = fixed && !changed
		}
	}
	if !fixed && opts.Reporter != nil {
		opts.Reporter.Report(diag.NewWarning(diag.OptNoFixed, m.Name,
			fmt.Sprintf("stopped after %d rounds without reaching a fixed point", limit)))
	}
	if err := ir.ValidateMethod(m, ir.ValidateOptions{Normalized: true}); err != nil {
		return rounds, diag.Errorf(diag.StageOptimizer, m.Name, "%v", err)
	}
	return rounds, nil
}

func changedDetail(changed bool) string {
	if changed {
		return "changed"
	}
	return ""
}

// Package normalize turns a mapped method into the machine-mappable subset
// of the IR: no calls, phis, comparisons, intrinsic operations or lifetime
// markers remain, stack allocations and globals are addressed from hidden
// uniforms and parameters are read from the uniform stream.
package normalize

import (
	"fmt"
	"strconv"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/lower"
	"vc4c/internal/trace"
)

// Names of the hidden parameters added by normalization. They are passed as
// uniforms after the declared parameters.
const (
	StackBaseParam  = "%stack_base"
	GlobalDataParam = "%global_data"
)

// Context carries the module-level state steps consult.
type Context struct {
	// Module resolves callees and globals. It may be nil for methods that
	// neither call other methods nor use globals.
	Module   *ir.Module
	Tracer   trace.Tracer
	Reporter diag.Reporter
}

func (nc *Context) tracer() trace.Tracer {
	if nc == nil || nc.Tracer == nil {
		return trace.Nop
	}
	return nc.Tracer
}

func (nc *Context) module() *ir.Module {
	if nc == nil {
		return nil
	}
	return nc.Module
}

// Step is one normalization step.
type Step struct {
	Name string
	Run  func(m *ir.Method, nc *Context) error
}

// Steps returns the normalization steps in the order they must run.
func Steps() []Step {
	return []Step{
		{Name: "inline-methods", Run: inlineMethods},
		{Name: "lower-method-calls", Run: lowerMethodCalls},
		{Name: "lower-intrinsic-ops", Run: lowerIntrinsicOps},
		{Name: "eliminate-phi", Run: eliminatePhi},
		{Name: "lower-comparisons", Run: lowerComparisons},
		{Name: "lay-out-stack", Run: layOutStack},
		{Name: "resolve-globals", Run: resolveGlobals},
		{Name: "load-parameters", Run: loadParameters},
	}
}

// Method runs all steps on m and validates the result.
func Method(m *ir.Method, nc *Context) error {
	t := nc.tracer()
	for _, step := range Steps() {
		span := trace.Begin(t, trace.ScopePass, step.Name, 0)
		if err := step.Run(m, nc); err != nil {
			span.End("failed")
			return err
		}
		span.WithExtra("method", m.Name).WithExtra("instructions", strconv.Itoa(m.CountInstrs())).End("")
	}
	if err := ir.ValidateMethod(m, ir.ValidateOptions{Normalized: true}); err != nil {
		return diag.CodeErrorf(diag.NormInvalidIR, m.Name, "%v", err)
	}
	return nil
}

// rewrite calls fn for every instruction of the given kind. fn returns the
// walker to continue from, positioned after the code it produced.
func rewrite(m *ir.Method, kind ir.InstrKind, fn func(it ir.Walker) (ir.Walker, error)) error {
	for i := 0; i < len(m.Blocks); i++ {
		for it := m.Blocks[i].Begin(); !it.AtEnd(); {
			if it.Get().Kind != kind {
				it = it.Next()
				continue
			}
			next, err := fn(it)
			if err != nil {
				return err
			}
			it = next
		}
	}
	return nil
}

func lowerMethodCalls(m *ir.Method, _ *Context) error {
	return rewrite(m, ir.InstrCall, func(it ir.Walker) (ir.Walker, error) {
		name := it.Get().Call.Name
		next, lowered, err := lower.LowerMethodCall(it, m)
		if err != nil {
			return next, err
		}
		if !lowered {
			return next, diag.CodeErrorf(diag.NormUnsupported, name, "Call to undefined method %s", lower.Demangle(name))
		}
		return next, nil
	})
}

func lowerIntrinsicOps(m *ir.Method, _ *Context) error {
	return rewrite(m, ir.InstrIntrinsic, func(it ir.Walker) (ir.Walker, error) {
		return lower.LowerIntrinsicOp(it, m)
	})
}

func lowerComparisons(m *ir.Method, _ *Context) error {
	return rewrite(m, ir.InstrCompare, func(it ir.Walker) (ir.Walker, error) {
		return lower.LowerComparison(it, m)
	})
}

// entry returns a walker just after the label of the entry block.
func entry(m *ir.Method) ir.Walker {
	return m.Blocks[0].Begin().Next()
}

func literal(v int) ir.Value {
	return ir.IntValue(int64(v), ir.TypeInt32)
}

// freshName returns base, or base with a numeric suffix if a local of that
// name exists.
func freshName(m *ir.Method, base string) string {
	name := base
	for i := 1; ; i++ {
		if _, taken := m.LocalByName(name); !taken {
			return name
		}
		name = fmt.Sprintf("%s.%d", base, i)
	}
}

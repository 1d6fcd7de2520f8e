package frontend

import (
	"fmt"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/trace"
)

// Node is one instruction as emitted by a front end.
type Node interface {
	// Map appends the IR for the node to the end of m. It reports false when
	// the node was elided and nothing was emitted.
	Map(m *ir.Method, mc *MapContext) (bool, error)
	// Locals lists every local the node reads or writes.
	Locals() []ir.LocalID
}

// LifetimePolicy decides what happens to lifetime intrinsics whose pointer
// cannot be traced back to a stack allocation.
type LifetimePolicy uint8

const (
	// LifetimeWarn drops the marker and reports a warning.
	LifetimeWarn LifetimePolicy = iota
	// LifetimeFail fails the compilation of the method.
	LifetimeFail
)

func (p LifetimePolicy) String() string {
	if p == LifetimeFail {
		return "fail"
	}
	return "warn"
}

// ParseLifetimePolicy converts a configuration string.
func ParseLifetimePolicy(s string) (LifetimePolicy, error) {
	switch s {
	case "warn", "":
		return LifetimeWarn, nil
	case "fail":
		return LifetimeFail, nil
	}
	return LifetimeWarn, fmt.Errorf("invalid lifetime policy %q (expected: warn|fail)", s)
}

// MapContext carries what nodes need besides the method. A nil context
// traces nothing, drops warnings and uses LifetimeWarn.
type MapContext struct {
	Tracer   trace.Tracer
	Reporter diag.Reporter
	Lifetime LifetimePolicy
}

func (mc *MapContext) lifetime() LifetimePolicy {
	if mc == nil {
		return LifetimeWarn
	}
	return mc.Lifetime
}

func (mc *MapContext) debug(format string, args ...any) {
	if mc == nil || !trace.Enabled(mc.Tracer, trace.ScopeNode) {
		return
	}
	trace.Point(mc.Tracer, trace.ScopeNode, "map", fmt.Sprintf(format, args...))
}

func (mc *MapContext) warn(m *ir.Method, code diag.Code, construct, msg string) {
	if mc == nil || mc.Reporter == nil {
		return
	}
	mc.Reporter.Report(diag.NewWarning(code, m.Name, msg).WithConstruct(construct))
}

// collect returns the locals among vals.
func collect(vals ...ir.Value) []ir.LocalID {
	var out []ir.LocalID
	for _, v := range vals {
		if v.IsLocal() {
			out = append(out, v.Local)
		}
		for _, e := range v.Elems {
			if e.IsLocal() {
				out = append(out, e.Local)
			}
		}
	}
	return out
}

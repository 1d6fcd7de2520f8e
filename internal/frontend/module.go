package frontend

import (
	"errors"
	"fmt"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/trace"
)

// Method is a method as delivered by a front end. Parameters, locals and
// stack allocations are declared on IR; the body is still a list of nodes.
type Method struct {
	IR    *ir.Method
	Nodes []Node
}

// NewMethod starts a frontend method.
func NewMethod(name string, ret ir.DataType, kernel bool) *Method {
	m := ir.NewMethod(name, ret)
	m.Kernel = kernel
	return &Method{IR: m}
}

// Add appends nodes to the body.
func (fm *Method) Add(nodes ...Node) *Method {
	fm.Nodes = append(fm.Nodes, nodes...)
	return fm
}

// Check verifies that every local a node refers to is declared by the
// method.
func (fm *Method) Check() error {
	var errs []error
	for i, n := range fm.Nodes {
		for _, id := range n.Locals() {
			if id < 0 || int(id) >= len(fm.IR.Locals) {
				errs = append(errs, diag.CodeErrorf(diag.ParseUnknownValue, fmt.Sprintf("node %d", i),
					"Reference to undeclared local %d", id))
			}
		}
	}
	return errors.Join(errs...)
}

// Map appends the IR of all nodes to fm.IR in order. It stops at the first
// node that fails.
func (fm *Method) Map(mc *MapContext) error {
	var t trace.Tracer = trace.Nop
	if mc != nil && mc.Tracer != nil {
		t = mc.Tracer
	}
	span := trace.Begin(t, trace.ScopeModule, "map:"+fm.IR.Name, 0)
	elided := 0
	for _, n := range fm.Nodes {
		mapped, err := n.Map(fm.IR, mc)
		if err != nil {
			span.End("failed")
			return err
		}
		if !mapped {
			elided++
		}
	}
	span.WithExtra("nodes", fmt.Sprint(len(fm.Nodes))).WithExtra("elided", fmt.Sprint(elided)).End("")
	return nil
}

// Module is a frontend compilation unit.
type Module struct {
	Name    string
	Methods []*Method
	Globals []ir.Global
}

// FindMethod returns the method called name, or nil.
func (mod *Module) FindMethod(name string) *Method {
	for _, fm := range mod.Methods {
		if fm.IR.Name == name {
			return fm
		}
	}
	return nil
}

// IRModule wraps the IR of all methods. The methods are shared, not copied.
func (mod *Module) IRModule() *ir.Module {
	out := &ir.Module{Name: mod.Name, Globals: mod.Globals}
	for _, fm := range mod.Methods {
		out.Methods = append(out.Methods, fm.IR)
	}
	return out
}

// Kernels returns the methods marked as kernels.
func (mod *Module) Kernels() []*Method {
	var out []*Method
	for _, fm := range mod.Methods {
		if fm.IR.Kernel {
			out = append(out, fm)
		}
	}
	return out
}

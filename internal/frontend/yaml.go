package frontend

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// ModuleSpec is the textual form of a frontend module:
//
//	name: copy
//	types:
//	  pair: "{i8, i32}"
//	methods:
//	  - name: copy
//	    kernel: true
//	    params:
//	      - {name: "%in", type: "i32 addrspace(1)*"}
//	    body:
//	      - {node: load, dst: "%v", type: i32, args: ["%in"]}
//	      - {node: return}
type ModuleSpec struct {
	Name    string            `json:"name"`
	Types   map[string]string `json:"types,omitempty"`
	Globals []GlobalSpec      `json:"globals,omitempty"`
	Methods []MethodSpec      `json:"methods"`
}

// GlobalSpec declares a module global. Init is a typed value.
type GlobalSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Init     string `json:"init,omitempty"`
	Constant bool   `json:"constant,omitempty"`
}

// MethodSpec declares one method.
type MethodSpec struct {
	Name    string      `json:"name"`
	Kernel  bool        `json:"kernel,omitempty"`
	Returns string      `json:"returns,omitempty"`
	Params  []LocalSpec `json:"params,omitempty"`
	Locals  []LocalSpec `json:"locals,omitempty"`
	Stack   []LocalSpec `json:"stack,omitempty"`
	Body    []NodeSpec  `json:"body"`
}

// LocalSpec declares a parameter, local or stack allocation. For stack
// allocations Type is the allocated type.
type LocalSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Decorations []string `json:"decorations,omitempty"`
	Align       int      `json:"align,omitempty"`
}

// NodeSpec is one body entry. Which fields matter depends on Node.
type NodeSpec struct {
	Node string `json:"node"`
	// Dst is declared with Type if it is not a known local yet.
	Dst  string   `json:"dst,omitempty"`
	Type string   `json:"type,omitempty"`
	Op   string   `json:"op,omitempty"`
	Name string   `json:"name,omitempty"`
	Args []string `json:"args,omitempty"`
	// Labels are the branch targets, or the label a "label" node opens.
	Labels   []string          `json:"labels,omitempty"`
	Cases    map[string]string `json:"cases,omitempty"`
	Default  string            `json:"default,omitempty"`
	Incoming []IncomingSpec    `json:"incoming,omitempty"`
	Float    bool              `json:"float,omitempty"`
	Deco     []string          `json:"deco,omitempty"`
}

// IncomingSpec is one phi option.
type IncomingSpec struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LoadYAML reads a module from a file.
func LoadYAML(path string) (*Module, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.CodeErrorf(diag.IOLoadError, path, "%v", err)
	}
	return ParseYAML(buf)
}

// ParseYAML decodes and resolves a module.
func ParseYAML(buf []byte) (*Module, error) {
	var spec ModuleSpec
	if err := yaml.UnmarshalStrict(buf, &spec); err != nil {
		return nil, diag.CodeErrorf(diag.ParseBadInput, "yaml", "%v", err)
	}
	return spec.Build()
}

// Build resolves all names of the spec into a frontend module. The bodies
// are not mapped yet.
func (spec *ModuleSpec) Build() (*Module, error) {
	ts := NewTypes()
	// named types may refer to each other; resolve until nothing changes
	pending := make(map[string]string, len(spec.Types))
	for name, body := range spec.Types {
		pending[strings.TrimPrefix(name, "%")] = body
	}
	for len(pending) > 0 {
		progress := false
		var last error
		for name, body := range pending {
			if err := ts.Define(name, body); err != nil {
				last = err
				continue
			}
			delete(pending, name)
			progress = true
		}
		if !progress {
			return nil, last
		}
	}

	mod := &Module{Name: spec.Name}
	globals := map[string]ir.Global{}
	for _, gs := range spec.Globals {
		if err := checkName("global", gs.Name); err != nil {
			return nil, err
		}
		t, err := ts.Parse(gs.Type)
		if err != nil {
			return nil, err
		}
		g := ir.Global{Name: strings.TrimPrefix(gs.Name, "@"), Type: t, Init: ir.ZeroInitOf(t), Constant: gs.Constant}
		if gs.Init != "" {
			vs := &Values{Types: ts, Method: ir.NewMethod("", ir.TypeVoid)}
			if g.Init, err = vs.Parse(gs.Init); err != nil {
				return nil, err
			}
		}
		globals[g.Name] = g
		mod.Globals = append(mod.Globals, g)
	}

	for i := range spec.Methods {
		fm, err := spec.Methods[i].build(ts, globals)
		if err != nil {
			return nil, err
		}
		mod.Methods = append(mod.Methods, fm)
	}
	return mod, nil
}

func (ms *MethodSpec) build(ts *Types, globals map[string]ir.Global) (*Method, error) {
	ret := ir.TypeVoid
	if ms.Returns != "" {
		var err error
		if ret, err = ts.Parse(ms.Returns); err != nil {
			return nil, err
		}
	}
	if err := checkName("method", ms.Name); err != nil {
		return nil, err
	}
	for what, specs := range map[string][]LocalSpec{"params": ms.Params, "locals": ms.Locals, "stack": ms.Stack} {
		if err := checkLocals(ms.Name+" "+what, specs); err != nil {
			return nil, err
		}
	}
	fm := NewMethod(ms.Name, ret, ms.Kernel)
	m := fm.IR
	for _, p := range ms.Params {
		t, err := ts.Parse(p.Type)
		if err != nil {
			return nil, err
		}
		deco, err := parseParamDecorations(p.Decorations)
		if err != nil {
			return nil, err
		}
		m.AddParam(localName(p.Name), t, deco)
	}
	for _, l := range ms.Locals {
		t, err := ts.Parse(l.Type)
		if err != nil {
			return nil, err
		}
		m.FindOrCreateLocal(t, localName(l.Name))
	}
	for _, s := range ms.Stack {
		t, err := ts.Parse(s.Type)
		if err != nil {
			return nil, err
		}
		m.AddStackAllocation(localName(s.Name), t, s.Align)
	}

	b := &bodyBuilder{m: m, types: ts, values: &Values{Types: ts, Method: m, Globals: globals}}
	for i := range ms.Body {
		n, err := b.node(&ms.Body[i])
		if err != nil {
			return nil, fmt.Errorf("method %s, body entry %d: %w", ms.Name, i, err)
		}
		fm.Add(n)
	}
	return fm, nil
}

// checkName rejects names that YAML 1.1 turned into booleans: an unquoted
// n, y, on, off, yes or no arrives here as "false" or "true".
func checkName(what, name string) error {
	switch name {
	case "true", "false":
		return diag.CodeErrorf(diag.ParseBadInput, what,
			"Name decodes as boolean %s; quote it or write it with a %% prefix", name)
	}
	return nil
}

func checkLocals(what string, specs []LocalSpec) error {
	for _, l := range specs {
		if err := checkName(what, l.Name); err != nil {
			return err
		}
	}
	return nil
}

// checkNodeNames applies checkName to every name a body entry declares or
// jumps to.
func checkNodeNames(ns *NodeSpec) error {
	names := append([]string{ns.Dst, ns.Default}, ns.Labels...)
	for _, label := range ns.Cases {
		names = append(names, label)
	}
	for _, in := range ns.Incoming {
		names = append(names, in.Label)
	}
	for _, name := range names {
		if err := checkName(ns.Node, name); err != nil {
			return err
		}
	}
	return nil
}

func localName(name string) string {
	if strings.HasPrefix(name, "%") {
		return name
	}
	return "%" + name
}

func parseParamDecorations(names []string) (ir.ParamDecorations, error) {
	var deco ir.ParamDecorations
	for _, n := range names {
		switch n {
		case "zext":
			deco |= ir.ParamZeroExtend
		case "sext":
			deco |= ir.ParamSignExtend
		case "volatile":
			deco |= ir.ParamVolatile
		case "readonly":
			deco |= ir.ParamReadOnly
		default:
			return 0, diag.CodeErrorf(diag.ParseBadInput, n, "Unknown parameter decoration")
		}
	}
	return deco, nil
}

func parseDecorations(names []string) (ir.Decorations, error) {
	var deco ir.Decorations
	for _, n := range names {
		switch n {
		case "unsigned":
			deco |= ir.DecoUnsignedResult
		case "volatile":
			deco |= ir.DecoVolatile
		default:
			return 0, diag.CodeErrorf(diag.ParseBadInput, n, "Unknown decoration")
		}
	}
	return deco, nil
}

type bodyBuilder struct {
	m      *ir.Method
	types  *Types
	values *Values
}

func (b *bodyBuilder) args(ns *NodeSpec, want int) ([]ir.Value, error) {
	if want >= 0 && len(ns.Args) != want {
		return nil, diag.CodeErrorf(diag.ParseArity, ns.Node, "Expected %d arguments, got %d", want, len(ns.Args))
	}
	out := make([]ir.Value, 0, len(ns.Args))
	for _, a := range ns.Args {
		v, err := b.values.Parse(a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// dst resolves the destination, declaring it if a type is given.
func (b *bodyBuilder) dst(ns *NodeSpec) (ir.Value, error) {
	if ns.Dst == "" {
		return ir.NoValue, nil
	}
	name := localName(ns.Dst)
	if id, ok := b.m.LocalByName(name); ok {
		return b.m.ValueOf(id), nil
	}
	if ns.Type == "" {
		return ir.NoValue, diag.CodeErrorf(diag.ParseUnknownValue, name, "Destination is neither declared nor typed")
	}
	t, err := b.types.Parse(ns.Type)
	if err != nil {
		return ir.NoValue, err
	}
	return b.m.ValueOf(b.m.FindOrCreateLocal(t, name)), nil
}

func (b *bodyBuilder) label(name string) ir.LocalID {
	return b.m.FindOrCreateLocal(ir.TypeLabel, localName(name))
}

func (b *bodyBuilder) node(ns *NodeSpec) (Node, error) {
	if err := checkNodeNames(ns); err != nil {
		return nil, err
	}
	deco, err := parseDecorations(ns.Deco)
	if err != nil {
		return nil, err
	}
	dst, err := b.dst(ns)
	if err != nil {
		return nil, err
	}
	switch ns.Node {
	case "move", "bitcast", "load", "store":
		args, err := b.args(ns, 1)
		if err != nil {
			return nil, err
		}
		mode := map[string]CopyMode{"move": CopyMove, "bitcast": CopyBitcast, "load": CopyLoad, "store": CopyStore}[ns.Node]
		return &Copy{Dst: dst, Src: args[0], Mode: mode, Deco: deco}, nil
	case "op":
		args, err := b.args(ns, -1)
		if err != nil {
			return nil, err
		}
		return &Operator{Op: ns.Op, Dst: dst, Args: args, Deco: deco}, nil
	case "index":
		args, err := b.args(ns, -1)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, diag.CodeErrorf(diag.ParseArity, ns.Node, "Index calculation needs a container and at least one index")
		}
		return &IndexOf{Dst: dst, Container: args[0], Indices: args[1:]}, nil
	case "compare":
		args, err := b.args(ns, 2)
		if err != nil {
			return nil, err
		}
		return &Comparison{Dst: dst, Pred: ir.Predicate(ns.Op), Left: args[0], Right: args[1], Float: ns.Float, Deco: deco}, nil
	case "insert":
		args, err := b.args(ns, 3)
		if err != nil {
			return nil, err
		}
		return &ContainerInsertion{Dst: dst, Container: args[0], Value: args[1], Index: args[2]}, nil
	case "extract":
		args, err := b.args(ns, 2)
		if err != nil {
			return nil, err
		}
		return &ContainerExtraction{Dst: dst, Container: args[0], Index: args[1]}, nil
	case "select":
		args, err := b.args(ns, 3)
		if err != nil {
			return nil, err
		}
		return &Selection{Dst: dst, Cond: args[0], True: args[1], False: args[2]}, nil
	case "shuffle":
		args, err := b.args(ns, 3)
		if err != nil {
			return nil, err
		}
		return &ShuffleVector{Dst: dst, First: args[0], Second: args[1], Mask: args[2]}, nil
	case "call":
		args, err := b.args(ns, -1)
		if err != nil {
			return nil, err
		}
		ret := dst.Type
		if dst.IsNone() {
			ret = ir.TypeVoid
		}
		return &CallSite{Dst: dst, Name: ns.Name, ReturnType: ret, Args: args, Deco: deco}, nil
	case "return":
		args, err := b.args(ns, -1)
		if err != nil {
			return nil, err
		}
		if len(args) > 1 {
			return nil, diag.CodeErrorf(diag.ParseArity, ns.Node, "Return takes at most one value")
		}
		if len(args) == 0 {
			return &ValueReturn{Value: ir.NoValue}, nil
		}
		return &ValueReturn{Value: args[0]}, nil
	case "label":
		if len(ns.Labels) != 1 {
			return nil, diag.CodeErrorf(diag.ParseArity, ns.Node, "Label node names exactly one label")
		}
		return &Label{Label: b.label(ns.Labels[0])}, nil
	case "br":
		switch len(ns.Labels) {
		case 1:
			return Jump(b.label(ns.Labels[0])), nil
		case 2:
			args, err := b.args(ns, 1)
			if err != nil {
				return nil, err
			}
			return &Branch{Cond: args[0], Then: b.label(ns.Labels[0]), Else: b.label(ns.Labels[1])}, nil
		}
		return nil, diag.CodeErrorf(diag.ParseArity, ns.Node, "Branch takes one or two labels")
	case "switch":
		args, err := b.args(ns, 1)
		if err != nil {
			return nil, err
		}
		sw := &Switch{Cond: args[0], Default: localName(ns.Default), Cases: make(map[int64]string, len(ns.Cases))}
		for k, label := range ns.Cases {
			v, err := strconv.ParseInt(k, 0, 64)
			if err != nil {
				return nil, diag.CodeErrorf(diag.ParseBadInput, k, "Invalid switch case")
			}
			sw.Cases[v] = localName(label)
		}
		return sw, nil
	case "phi":
		p := &PhiNode{Dst: dst}
		for _, in := range ns.Incoming {
			v, err := b.values.Parse(in.Value)
			if err != nil {
				return nil, err
			}
			p.Incoming = append(p.Incoming, ir.PhiIncoming{Label: b.label(in.Label), Value: v})
		}
		return p, nil
	}
	return nil, diag.CodeErrorf(diag.ParseBadInput, ns.Node, "Unknown node kind")
}

package normalize

import (
	"strings"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// inlineMethods replaces calls to methods of the module by their bodies.
// The hardware has no call stack, so every call must be inlined.
//
//  1. Reject recursion reachable from m
//  2. Split the calling block after the call
//  3. Copy the callee blocks in between, with fresh locals
//  4. Replace the call by argument moves and a jump into the copy;
//     returns in the copy move the result and jump back
func inlineMethods(m *ir.Method, nc *Context) error {
	mod := nc.module()
	if mod == nil {
		return nil
	}
	if err := checkRecursion(mod, m.Name, nil); err != nil {
		return err
	}
	for i := 0; i < len(m.Blocks); i++ {
		for it := m.Blocks[i].Begin(); !it.AtEnd(); it = it.Next() {
			ins := it.Get()
			if ins.Kind != ir.InstrCall {
				continue
			}
			callee := mod.FindMethod(ins.Call.Name)
			if callee == nil || callee == m {
				continue
			}
			if err := inlineCall(m, it, callee); err != nil {
				return err
			}
			// continue scanning in the first copied block
			break
		}
	}
	return nil
}

func checkRecursion(mod *ir.Module, name string, stack []string) error {
	for _, s := range stack {
		if s == name {
			return diag.CodeErrorf(diag.NormUnsupported, strings.Join(append(stack, name), " -> "), "Recursive method calls cannot be inlined")
		}
	}
	m := mod.FindMethod(name)
	if m == nil {
		return nil
	}
	stack = append(stack, name)
	seen := map[string]bool{}
	var err error
	m.ForEach(func(w ir.Walker) {
		ins := w.Get()
		if err != nil || ins.Kind != ir.InstrCall || seen[ins.Call.Name] {
			return
		}
		seen[ins.Call.Name] = true
		err = checkRecursion(mod, ins.Call.Name, stack)
	})
	return err
}

type inliner struct {
	m      *ir.Method
	callee *ir.Method
	prefix string
	locals map[ir.LocalID]ir.LocalID
}

func inlineCall(m *ir.Method, it ir.Walker, callee *ir.Method) error {
	call := it.Get()
	if len(call.Call.Args) != len(callee.Params) {
		return diag.CodeErrorf(diag.ParseArity, m.FormatInstr(call),
			"Invalid numbers of method arguments: Got %d, expected %d", len(call.Call.Args), len(callee.Params))
	}
	in := &inliner{m: m, callee: callee, prefix: "%" + strings.TrimPrefix(callee.Name, "%"), locals: map[ir.LocalID]ir.LocalID{}}
	in.declare()

	caller := it.Block()
	after := m.FindOrCreateLocal(ir.TypeLabel, freshName(m, in.prefix+".after"))
	// every edge out of the caller block now leaves from the split-off part
	renamePhiPredecessor(m, caller.Label(), after)
	next := it.Next()
	it.Erase()
	tail := m.SplitBlock(next, after)

	at := caller.End()
	for i, p := range callee.Params {
		at = at.Emit(ir.NewMove(m.ValueOf(in.locals[p]), call.Call.Args[i]))
	}
	at.Emit(ir.NewBranch(in.locals[callee.Blocks[0].Label()], ir.CondAlways, ir.BoolTrue))

	prev := caller
	for _, cb := range callee.Blocks {
		nb := m.InsertBlockAfter(prev, in.locals[cb.Label()])
		end := nb.End()
		for cit := cb.Begin().Next(); !cit.AtEnd(); cit = cit.Next() {
			ins := cit.Get()
			if ins.Kind == ir.InstrReturn {
				if !ins.Return.Value.IsNone() && !call.Dst.IsNone() {
					end = end.Emit(ir.NewMove(call.Dst, in.value(ins.Return.Value)))
				}
				end = end.Emit(ir.NewBranch(tail.Label(), ir.CondAlways, ir.BoolTrue))
				continue
			}
			end = end.Emit(in.instr(ins))
		}
		prev = nb
	}
	return nil
}

// declare creates a fresh local in the caller for every local of the callee.
func (in *inliner) declare() {
	for _, l := range in.callee.Locals {
		base := in.prefix + "." + strings.TrimLeft(l.Name, "%@")
		var id ir.LocalID
		switch l.Kind {
		case ir.LocalStack:
			id = in.m.AddStackAllocation(freshName(in.m, base), l.AllocatedType(), l.Align)
		case ir.LocalGlobal:
			id = in.m.AddGlobalRef(l.Global, l.Type)
		case ir.LocalLabel:
			id = in.m.FindOrCreateLocal(ir.TypeLabel, freshName(in.m, base))
		default:
			// parameters become plain locals written by the argument moves
			id = in.m.FindOrCreateLocal(l.Type, freshName(in.m, base))
		}
		in.locals[l.ID] = id
	}
	for _, l := range in.callee.Locals {
		if ref := l.Reference(); ref.Local != ir.NoLocalID {
			in.m.SetReference(in.locals[l.ID], in.locals[ref.Local], ref.Offset)
		}
	}
}

func (in *inliner) value(v ir.Value) ir.Value {
	if v.IsLocal() {
		v.Local = in.locals[v.Local]
	}
	if len(v.Elems) > 0 {
		elems := make([]ir.Value, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = in.value(e)
		}
		v.Elems = elems
	}
	return v
}

func (in *inliner) instr(ins *ir.Instr) *ir.Instr {
	c := ins.Clone()
	c.Dst = in.value(c.Dst)
	for i, a := range c.Args() {
		c.SetArg(i, in.value(a))
	}
	switch c.Kind {
	case ir.InstrBranch:
		c.Branch.Target = in.locals[c.Branch.Target]
	case ir.InstrLabel:
		c.Label.Label = in.locals[c.Label.Label]
	case ir.InstrPhi:
		for i := range c.Phi.Incoming {
			c.Phi.Incoming[i].Label = in.locals[c.Phi.Incoming[i].Label]
		}
	case ir.InstrLifetime:
		c.Lifetime.Alloc = in.locals[c.Lifetime.Alloc]
	}
	return c
}

func renamePhiPredecessor(m *ir.Method, from, to ir.LocalID) {
	m.ForEach(func(w ir.Walker) {
		ins := w.Get()
		if ins.Kind != ir.InstrPhi {
			return
		}
		for i := range ins.Phi.Incoming {
			if ins.Phi.Incoming[i].Label == from {
				ins.Phi.Incoming[i].Label = to
			}
		}
	})
}

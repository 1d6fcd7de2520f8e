package ir

import (
	"fmt"
	"io"
	"strings"
)

// DumpModule writes a human-readable representation of a module.
func DumpModule(w io.Writer, mod *Module) error {
	if w == nil || mod == nil {
		return nil
	}
	if len(mod.Globals) > 0 {
		fmt.Fprintf(w, "globals=%d\n", len(mod.Globals))
		for _, g := range mod.Globals {
			flags := ""
			if g.Constant {
				flags = " const"
			}
			fmt.Fprintf(w, "  @%s: %s%s = %s\n", g.Name, g.Type, flags, g.Init)
		}
	}
	fmt.Fprintf(w, "methods=%d\n", len(mod.Methods))
	for _, m := range mod.Methods {
		if err := DumpMethod(w, m); err != nil {
			return err
		}
	}
	return nil
}

// DumpMethod writes one method, block by block.
func DumpMethod(w io.Writer, m *Method) error {
	if w == nil || m == nil {
		return nil
	}
	kind := "func"
	if m.Kernel {
		kind = "kernel"
	}
	params := make([]string, len(m.Params))
	for i, id := range m.Params {
		l := m.Local(id)
		params[i] = fmt.Sprintf("%s %s", l.Type, l.Name)
		if l.Param != 0 {
			params[i] += " (" + l.Param.String() + ")"
		}
	}
	fmt.Fprintf(w, "\n%s %s(%s) -> %s\n", kind, m.Name, strings.Join(params, ", "), m.ReturnType)

	var stack []string
	for _, l := range m.Locals {
		if l.Kind == LocalStack {
			stack = append(stack, fmt.Sprintf("%s: %s align %d", l.Name, l.AllocatedType(), l.Align))
		}
	}
	if len(stack) > 0 {
		fmt.Fprintf(w, "  stack:\n")
		for _, s := range stack {
			fmt.Fprintf(w, "    %s\n", s)
		}
	}

	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			ins := it.Get()
			if ins.Kind == InstrLabel {
				fmt.Fprintf(w, "%s:\n", m.localName(ins.Label.Label))
				continue
			}
			if _, err := fmt.Fprintf(w, "  %s\n", m.FormatInstr(ins)); err != nil {
				return err
			}
		}
	}
	return nil
}

// FormatInstr renders a single instruction in assembler-like syntax.
func (m *Method) FormatInstr(ins *Instr) string {
	var sb strings.Builder
	mnemonic := ins.Kind.String()
	var operands []string
	v := m.FormatValue

	switch ins.Kind {
	case InstrOp:
		mnemonic = ins.Op.Code.Name
		operands = append(operands, v(ins.Dst))
		for _, a := range ins.Op.Args {
			operands = append(operands, v(a))
		}
	case InstrMove:
		mnemonic = "mov"
		operands = append(operands, v(ins.Dst), v(ins.Move.Src))
	case InstrLoadImm:
		operands = append(operands, v(ins.Dst), ins.LoadImm.Value.String())
	case InstrCompare:
		mnemonic = "icmp"
		if ins.Compare.Float {
			mnemonic = "fcmp"
		}
		mnemonic += " " + string(ins.Compare.Pred)
		operands = append(operands, v(ins.Dst), v(ins.Compare.Left), v(ins.Compare.Right))
	case InstrMemory:
		mnemonic = ins.Memory.Op.String()
		if ins.Memory.Op == MemRead {
			operands = append(operands, v(ins.Dst))
		}
		for _, a := range ins.Args() {
			operands = append(operands, v(a))
		}
	case InstrBranch:
		operands = append(operands, m.localName(ins.Branch.Target))
		if ins.Cond != CondAlways {
			operands = append(operands, v(ins.Branch.Cond))
		}
	case InstrLabel:
		return m.localName(ins.Label.Label) + ":"
	case InstrPhi:
		operands = append(operands, v(ins.Dst))
		for _, in := range ins.Phi.Incoming {
			operands = append(operands, fmt.Sprintf("[%s, %s]", m.localName(in.Label), v(in.Value)))
		}
	case InstrCall:
		mnemonic = "call " + ins.Call.Name
		if !ins.Dst.IsNone() {
			operands = append(operands, v(ins.Dst))
		}
		for _, a := range ins.Call.Args {
			operands = append(operands, v(a))
		}
	case InstrIntrinsic:
		mnemonic = "intrinsic " + ins.Intrinsic.Name
		operands = append(operands, v(ins.Dst))
		for _, a := range ins.Intrinsic.Args {
			operands = append(operands, v(a))
		}
	case InstrLifetime:
		mnemonic = "lifetime.start"
		if ins.Lifetime.End {
			mnemonic = "lifetime.end"
		}
		if ins.Lifetime.Alloc == NoLocalID {
			operands = append(operands, "?"+v(ins.Lifetime.Ptr))
		} else {
			operands = append(operands, m.localName(ins.Lifetime.Alloc))
		}
	case InstrBarrier:
		operands = append(operands, fmt.Sprintf("scope=%d", ins.Barrier.Scope), fmt.Sprintf("semantics=0x%x", uint32(ins.Barrier.Semantics)))
	case InstrReturn:
		if !ins.Return.Value.IsNone() {
			operands = append(operands, v(ins.Return.Value))
		}
	case InstrRotate:
		mnemonic = "rot"
		operands = append(operands, v(ins.Dst), v(ins.Rotate.Src), v(ins.Rotate.Offset))
	}

	sb.WriteString(mnemonic)
	if ins.SetFlags {
		sb.WriteString(".setf")
	}
	if ins.Cond != CondAlways {
		sb.WriteString(".")
		sb.WriteString(ins.Cond.String())
	}
	if len(operands) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(operands, ", "))
	}
	var extra []string
	if ins.Pack != PackNop {
		extra = append(extra, "pack "+ins.Pack.String())
	}
	if ins.Unpack != UnpackNop {
		extra = append(extra, "unpack "+ins.Unpack.String())
	}
	if ins.Deco != DecoNone {
		extra = append(extra, ins.Deco.String())
	}
	if len(extra) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(extra, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

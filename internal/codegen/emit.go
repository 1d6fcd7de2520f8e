package codegen

import (
	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// EndLabel names the position of the thread end every return jumps to.
const EndLabel = "%end_of_function"

// branchDelaySlots is the number of instructions executed after a branch
// before the jump takes effect.
const branchDelaySlots = 3

type emitter struct {
	m    *ir.Method
	regs map[ir.LocalID]ir.Register
	out  []MachineInstr
}

func (e *emitter) push(mi *MachineInstr) { e.out = append(e.out, *mi) }

func (e *emitter) register(v ir.Value) (ir.Register, error) {
	switch {
	case v.IsLocal():
		if r, ok := e.regs[v.Local]; ok {
			return r, nil
		}
		return ir.RegNop, nil
	case v.IsRegister():
		return v.Reg, nil
	case v.IsNone():
		return ir.RegNop, nil
	}
	return ir.Register{}, diag.CodeErrorf(diag.CodegenUnsupported, e.m.FormatValue(v), "value has no register")
}

func (e *emitter) operand(mi *MachineInstr, v ir.Value) (Operand, error) {
	if v.IsLiteral() {
		if mi.HasImm && mi.Imm != v.Lit.Bits {
			return Operand{}, diag.CodeErrorf(diag.CodegenUnsupported, e.m.FormatValue(v), "second immediate in one instruction")
		}
		if _, ok := SmallImmediate(v.Lit.Bits); !ok {
			return Operand{}, diag.CodeErrorf(diag.CodegenUnsupported, e.m.FormatValue(v), "literal is no small immediate")
		}
		mi.Imm, mi.HasImm = v.Lit.Bits, true
		return Operand{Reg: ir.RegNop, Imm: true}, nil
	}
	r, err := e.register(v)
	return Operand{Reg: r}, err
}

// emitMethod translates every instruction of the prepared method.
func (e *emitter) emitMethod() error {
	last := e.m.Blocks[len(e.m.Blocks)-1].Last().Get()
	for _, b := range e.m.Blocks {
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			ins := it.Get()
			if err := e.emit(ins, ins == last); err != nil {
				return err
			}
		}
	}
	e.push(&MachineInstr{Kind: kindLabel, Label: EndLabel})
	e.push(&MachineInstr{Kind: KindThreadEnd, Add: nopSlot(), Mul: nopSlot()})
	e.push(newNop())
	e.push(newNop())
	return nil
}

func (e *emitter) emit(ins *ir.Instr, last bool) error {
	switch ins.Kind {
	case ir.InstrNop:
		return nil
	case ir.InstrLabel:
		e.push(&MachineInstr{Kind: kindLabel, Label: e.m.Local(ins.Label.Label).Name})
		return nil
	case ir.InstrBarrier:
		// memory accesses complete in order
		e.push(newNop())
		return nil
	case ir.InstrOp:
		return e.emitALU(ins, ins.Op.Code, ins.Op.Args)
	case ir.InstrMove:
		return e.emitALU(ins, ir.OpOr, []ir.Value{ins.Move.Src})
	case ir.InstrLoadImm:
		dst, err := e.register(ins.Dst)
		if err != nil {
			return err
		}
		mi := &MachineInstr{Kind: KindLoadImm, Add: nopSlot(), Mul: nopSlot(), Imm: ins.LoadImm.Value.Bits, HasImm: true}
		mi.Add.Dst, mi.Add.Cond = dst, ins.Cond
		mi.SetFlags, mi.Pack = ins.SetFlags, ins.Pack
		e.push(mi)
		return nil
	case ir.InstrRotate:
		return e.emitRotate(ins)
	case ir.InstrMemory:
		return e.emitMemory(ins)
	case ir.InstrBranch:
		return e.emitBranch(ins)
	case ir.InstrReturn:
		if !ins.Return.Value.IsNone() {
			if err := e.emitMove(ir.Acc(0), ins.Return.Value); err != nil {
				return err
			}
		}
		if !last {
			e.pushBranch(EndLabel, ir.CondAlways)
		}
		return nil
	}
	return diag.CodeErrorf(diag.CodegenUnsupported, e.m.FormatInstr(ins), "%s instructions must be normalized away", ins.Kind)
}

func (e *emitter) emitMove(dst ir.Register, src ir.Value) error {
	mi := newALU()
	a, err := e.operand(mi, src)
	if err != nil {
		return err
	}
	mi.Add = Slot{Op: ir.OpOr, Dst: dst, A: a, B: a, Cond: ir.CondAlways}
	e.push(mi)
	return nil
}

func (e *emitter) emitALU(ins *ir.Instr, code ir.OpCode, args []ir.Value) error {
	dst, err := e.register(ins.Dst)
	if err != nil {
		return err
	}
	mi := newALU()
	mi.SetFlags, mi.Pack, mi.Unpack = ins.SetFlags, ins.Pack, ins.Unpack
	slot := Slot{Op: code, Dst: dst, Cond: ins.Cond}
	if slot.A, err = e.operand(mi, args[0]); err != nil {
		return err
	}
	slot.B = slot.A
	if len(args) > 1 {
		if slot.B, err = e.operand(mi, args[1]); err != nil {
			return err
		}
	}
	if err := e.fitReadPorts(mi, &slot); err != nil {
		return err
	}
	if code.OnAdd() {
		mi.Add = slot
	} else {
		mi.Mul = slot
	}
	e.push(mi)
	return nil
}

// fitReadPorts moves an operand through the scratch accumulator when both
// operands need the same register file port.
func (e *emitter) fitReadPorts(mi *MachineInstr, slot *Slot) error {
	if portsFit([]Operand{slot.A, slot.B}, mi.HasImm) {
		return nil
	}
	// unpacking only applies to file A reads, so the other operand moves
	op := &slot.B
	if op.Imm || (mi.Unpack != ir.UnpackNop && slot.B.Reg.File == ir.FileA) {
		op = &slot.A
	}
	if op.Imm {
		return diag.CodeErrorf(diag.CodegenUnsupported, e.m.Name, "operands %s and %s do not fit the read ports", slot.A.Reg, slot.B.Reg)
	}
	mov := newALU()
	mov.Add = Slot{Op: ir.OpOr, Dst: ir.RegScratch, A: *op, B: *op, Cond: ir.CondAlways}
	e.push(mov)
	*op = Operand{Reg: ir.RegScratch}
	return nil
}

// portsFit reports whether the operands can be read in one instruction:
// one register of file A, one of file B or the small immediate, and
// accumulators without limit.
func portsFit(ops []Operand, imm bool) bool {
	var fileA, fileB, flexible []ir.Register
	seen := map[ir.Register]bool{}
	for _, op := range ops {
		if op.Imm || op.Reg.IsAccumulator() || op.Reg.IsNop() || seen[op.Reg] {
			continue
		}
		seen[op.Reg] = true
		switch op.Reg.File {
		case ir.FileA:
			fileA = append(fileA, op.Reg)
		case ir.FileB:
			fileB = append(fileB, op.Reg)
		default:
			flexible = append(flexible, op.Reg)
		}
	}
	usedB := len(fileB)
	if imm {
		usedB++
	}
	if len(fileA) > 1 || usedB > 1 {
		return false
	}
	return len(flexible) <= (1-len(fileA))+(1-usedB)
}

func (e *emitter) emitRotate(ins *ir.Instr) error {
	if ins.Cond != ir.CondAlways || ins.SetFlags || ins.Unpack != ir.UnpackNop {
		return diag.CodeErrorf(diag.CodegenUnsupported, e.m.FormatInstr(ins), "conditional or flag-setting rotation")
	}
	dst, err := e.register(ins.Dst)
	if err != nil {
		return err
	}
	mi := newALU()
	mi.Pack = ins.Pack
	if lit, ok := ins.Rotate.Offset.LiteralValue(); ok {
		n := lit.SignedInt() % ir.NativeVectorWidth
		if n < 0 {
			n += ir.NativeVectorWidth
		}
		mi.Rotation = uint8(n) //nolint:gosec // 0..15
	} else {
		off, err := e.register(ins.Rotate.Offset)
		if err != nil {
			return err
		}
		rep := newALU()
		rep.Add = Slot{Op: ir.OpOr, Dst: ir.RegReplicateAll, A: Operand{Reg: off}, B: Operand{Reg: off}, Cond: ir.CondAlways}
		e.push(rep)
		mi.Rotation = RotateByR5
	}
	src, err := e.register(ins.Rotate.Src)
	if err != nil {
		return err
	}
	if !src.IsAccumulator() || src.Num > ir.RegScratch.Num {
		mov := newALU()
		mov.Add = Slot{Op: ir.OpOr, Dst: ir.RegScratch, A: Operand{Reg: src}, B: Operand{Reg: src}, Cond: ir.CondAlways}
		e.push(mov)
		src = ir.RegScratch
	}
	mi.Mul = Slot{Op: ir.OpV8Min, Dst: dst, A: Operand{Reg: src}, B: Operand{Reg: src}, Cond: ir.CondAlways}
	e.push(mi)
	return nil
}

func elementBytes(t ir.DataType) int {
	if t.IsPointerType() {
		return 4
	}
	return (t.ScalarBitCount() + 7) / 8
}

func (e *emitter) emitMemory(ins *ir.Instr) error {
	if ins.Cond != ir.CondAlways {
		return diag.CodeErrorf(diag.CodegenUnsupported, e.m.FormatInstr(ins), "conditional memory access")
	}
	acc := MemoryAccess{Op: ins.Memory.Op, Dst: ir.RegNop, Src: ir.RegNop, Count: ir.RegNop, ElemBytes: 1, Elems: 1}
	var err error
	if acc.Addr, err = e.register(ins.Memory.Addr); err != nil {
		return err
	}
	switch ins.Memory.Op {
	case ir.MemRead:
		if acc.Dst, err = e.register(ins.Dst); err != nil {
			return err
		}
		acc.ElemBytes, acc.Elems = elementBytes(ins.Dst.Type), max(1, ins.Dst.Type.VectorWidth())
	case ir.MemWrite:
		if acc.Src, err = e.register(ins.Memory.Src); err != nil {
			return err
		}
		acc.ElemBytes, acc.Elems = elementBytes(ins.Memory.Src.Type), max(1, ins.Memory.Src.Type.VectorWidth())
	default:
		if acc.Src, err = e.register(ins.Memory.Src); err != nil {
			return err
		}
		if acc.Count, err = e.register(ins.Memory.Count); err != nil {
			return err
		}
	}
	e.push(&MachineInstr{Kind: KindMemory, Add: nopSlot(), Mul: nopSlot(), Memory: acc})
	return nil
}

// emitBranch replicates a branch condition from lane 0 over all lanes and
// sets the flags from it, since the branch tests the flags of all lanes.
func (e *emitter) emitBranch(ins *ir.Instr) error {
	target := e.m.Local(ins.Branch.Target).Name
	if ins.Cond == ir.CondAlways {
		e.pushBranch(target, ir.CondAlways)
		return nil
	}
	cond, err := e.register(ins.Branch.Cond)
	if err != nil {
		return err
	}
	rep := newALU()
	rep.Add = Slot{Op: ir.OpOr, Dst: ir.RegReplicateAll, A: Operand{Reg: cond}, B: Operand{Reg: cond}, Cond: ir.CondAlways}
	e.push(rep)
	flags := newALU()
	flags.Add = Slot{Op: ir.OpOr, Dst: ir.RegNop, A: Operand{Reg: ir.RegAcc5}, B: Operand{Reg: ir.RegAcc5}, Cond: ir.CondAlways}
	flags.SetFlags = true
	e.push(flags)
	e.pushBranch(target, ins.Cond)
	return nil
}

func (e *emitter) pushBranch(label string, cc ir.ConditionCode) {
	e.push(&MachineInstr{Kind: KindBranch, Add: nopSlot(), Mul: nopSlot(), Label: label, BranchCond: cc})
	for range branchDelaySlots {
		e.push(newNop())
	}
}

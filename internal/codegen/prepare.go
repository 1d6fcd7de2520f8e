package codegen

import (
	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/lower"
)

// prepare rewrites the method into the shape the emitter maps one to one:
//
//  1. Undefined and zero-initialized operands become the literal zero
//  2. Constant containers are built lane by lane in a fresh local
//  3. Moves of literals that are no small immediate become load immediates
//  4. ALU operations keep at most one distinct small immediate, other
//     literals are loaded into locals first
//  5. Operands of memory accesses, branches and returns are never literals
func prepare(m *ir.Method) error {
	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			ins := it.Get()
			for i, a := range ins.Args() {
				v, err := materializeContainer(it, m, a)
				if err != nil {
					return err
				}
				if !v.Equal(a) {
					ins.SetArg(i, v)
				}
			}
		}
	}
	// second walk, so the lane insertions emitted above are covered too
	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			ins := it.Get()
			switch ins.Kind {
			case ir.InstrMove:
				it = prepareMove(it, ins)
			case ir.InstrOp:
				prepareOp(it, m, ins)
			case ir.InstrRotate:
				it = prepareRotate(it, ins)
			case ir.InstrMemory, ir.InstrReturn:
				loadLiterals(it, m, ins)
			case ir.InstrBranch:
				if ins.Cond != ir.CondAlways {
					loadLiterals(it, m, ins)
				}
			}
		}
	}
	return nil
}

func materializeContainer(it ir.Walker, m *ir.Method, v ir.Value) (ir.Value, error) {
	switch {
	case v.IsUndefined(), v.IsZeroInit():
		return ir.Lit(ir.IntLiteral(0), v.Type), nil
	case !v.IsContainer():
		return v, nil
	}
	if lit, ok := v.LiteralValue(); ok {
		return ir.Lit(lit, v.Type), nil
	}
	tmp := m.AddNewLocal(v.Type, "container")
	at := it.Emit(ir.NewMove(tmp, ir.Lit(ir.IntLiteral(0), v.Type)))
	var err error
	for i, e := range v.Elems {
		if e.IsUndefined() || e.HasLiteral(ir.IntLiteral(0)) {
			continue
		}
		if e.IsContainer() {
			return v, diag.CodeErrorf(diag.CodegenUnsupported, v.String(), "Nested containers cannot be held in a register")
		}
		if at, err = lower.InsertVectorInsertion(at, m, tmp, ir.IntValue(int64(i), ir.TypeInt32), e); err != nil {
			return v, err
		}
	}
	return tmp, nil
}

func prepareMove(it ir.Walker, ins *ir.Instr) ir.Walker {
	src := ins.Move.Src
	if !src.IsLiteral() {
		return it
	}
	if _, small := SmallImmediate(src.Lit.Bits); small {
		return it
	}
	ldi := ir.NewLoadImm(ins.Dst, src.Lit)
	ldi.Cond, ldi.SetFlags, ldi.Pack, ldi.Deco = ins.Cond, ins.SetFlags, ins.Pack, ins.Deco
	return it.Replace(ldi)
}

func prepareOp(it ir.Walker, m *ir.Method, ins *ir.Instr) {
	var imm *uint32
	for i, a := range ins.Op.Args {
		if !a.IsLiteral() {
			continue
		}
		bits := a.Lit.Bits
		if _, small := SmallImmediate(bits); small && (imm == nil || *imm == bits) {
			imm = &bits
			continue
		}
		tmp := m.AddNewLocal(a.Type, "imm")
		it.Emit(ir.NewLoadImm(tmp, a.Lit))
		ins.Op.Args[i] = tmp
	}
}

func prepareRotate(it ir.Walker, ins *ir.Instr) ir.Walker {
	if src := ins.Rotate.Src; src.IsLiteral() {
		// every lane holds the same value
		mov := ir.NewMove(ins.Dst, src)
		mov.Cond, mov.SetFlags, mov.Pack = ins.Cond, ins.SetFlags, ins.Pack
		return prepareMove(it.Replace(mov), mov)
	}
	if lit, ok := ins.Rotate.Offset.LiteralValue(); ok && lit.SignedInt()%ir.NativeVectorWidth == 0 {
		mov := ir.NewMove(ins.Dst, ins.Rotate.Src)
		mov.Cond, mov.SetFlags, mov.Pack = ins.Cond, ins.SetFlags, ins.Pack
		return it.Replace(mov)
	}
	return it
}

// loadLiterals replaces every literal operand of ins by a local holding it.
func loadLiterals(it ir.Walker, m *ir.Method, ins *ir.Instr) {
	for i, a := range ins.Args() {
		if !a.IsLiteral() {
			continue
		}
		t := a.Type
		if t.IsVoidType() || t.IsLabelType() {
			t = ir.TypeInt32
		}
		tmp := m.AddNewLocal(t, "imm")
		it.Emit(ir.NewLoadImm(tmp, a.Lit))
		ins.SetArg(i, tmp)
	}
}

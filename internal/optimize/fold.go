package optimize

import (
	"math"

	"vc4c/internal/ir"
)

// foldConstants evaluates operations on constant operands at compile time
// and turns operations with an identity operand into moves.
func foldConstants(m *ir.Method) bool {
	changed := false
	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			ins := it.Get()
			if ins.Kind != ir.InstrOp || ins.SetFlags || ins.Unpack != ir.UnpackNop || !ins.Dst.IsLocal() {
				continue
			}
			var repl *ir.Instr
			if v, ok := evaluate(ins); ok {
				repl = ir.NewMove(ins.Dst, constant(v, ins.Dst.Type))
			} else if src, ok := identityOperand(ins); ok && ins.Pack == ir.PackNop {
				repl = ir.NewMove(ins.Dst, src.WithType(ins.Dst.Type))
			}
			if repl == nil {
				continue
			}
			repl.Cond = ins.Cond
			repl.Deco = ins.Deco
			it = it.Replace(repl)
			changed = true
		}
	}
	return changed
}

// evaluate computes an operation whose operands are all constant.
func evaluate(ins *ir.Instr) (uint32, bool) {
	code := ins.Op.Code
	if code.IsNop() {
		return 0, false
	}
	var lits [2]uint32
	for i, a := range ins.Op.Args {
		l, ok := a.LiteralValue()
		if !ok || i >= len(lits) {
			return 0, false
		}
		lits[i] = l.UnsignedInt()
	}
	return ins.Pack.Apply(code.Apply(lits[0], lits[1])), true
}

// identityOperand returns x for op(x, e) and op(e, x) with e the identity of
// a commutative op. Float additions are left alone, -0 + 0 is +0.
func identityOperand(ins *ir.Instr) (ir.Value, bool) {
	code := ins.Op.Code
	// mul24 by one still truncates to 24 bits
	if len(ins.Op.Args) != 2 || code == ir.OpFAdd || code == ir.OpFSub || code == ir.OpMul24 {
		return ir.NoValue, false
	}
	a, b := ins.Op.Args[0], ins.Op.Args[1]
	if code.IsIdempotent() && a.Equal(b) && a.IsLocal() {
		return a, true
	}
	id, ok := code.RightIdentity()
	if !ok {
		return ir.NoValue, false
	}
	switch {
	case b.HasLiteral(id) && !a.IsRegister():
		return a, true
	case code.IsCommutative() && a.HasLiteral(id) && !b.IsRegister():
		return b, true
	}
	return ir.NoValue, false
}

func constant(bits uint32, t ir.DataType) ir.Value {
	if t.IsFloatingType() {
		return ir.Lit(ir.FloatLiteral(math.Float32frombits(bits)), t)
	}
	return ir.Lit(ir.UintLiteral(bits), t)
}

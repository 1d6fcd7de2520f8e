package lower

import (
	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

const signBit = 0x80000000

// LowerComparison replaces the comparison under it with a flag-setting ALU
// operation and two conditional moves of true and false. The returned walker
// points after the replacement.
func LowerComparison(it ir.Walker, m *ir.Method) (ir.Walker, error) {
	ins := it.Get()
	cmp, dst := ins.Compare, ins.Dst
	it = it.Erase()
	if cmp.Float {
		return lowerFloatComparison(it, m, cmp, dst)
	}
	return lowerIntComparison(it, m, cmp, dst)
}

func isSignedPredicate(p ir.Predicate) bool {
	switch p {
	case ir.CmpSGT, ir.CmpSGE, ir.CmpSLT, ir.CmpSLE:
		return true
	}
	return false
}

func lowerIntComparison(it ir.Walker, m *ir.Method, cmp ir.CompareInstr, dst ir.Value) (ir.Walker, error) {
	signed := isSignedPredicate(cmp.Pred)
	width := cmp.Left.Type.ScalarBitCount()
	left, right := cmp.Left, cmp.Right
	var err error
	if width < 32 {
		if left, it, err = normalizeOperand(it, m, left, signed); err != nil {
			return it, err
		}
		if right, it, err = normalizeOperand(it, m, right, signed); err != nil {
			return it, err
		}
	}

	if l, ok := left.LiteralValue(); ok {
		if r, ok := right.LiteralValue(); ok {
			res, err := evalIntPredicate(cmp.Pred, l.Bits, r.Bits)
			if err != nil {
				return it, err
			}
			return it.Emit(ir.NewMove(dst, ir.Lit(ir.BoolLiteral(res), dst.Type))), nil
		}
	}

	if signed {
		// flipping the sign bit maps signed order onto unsigned order
		left, it = flipSign(it, m, left)
		right, it = flipSign(it, m, right)
	}

	var cc ir.ConditionCode
	switch cmp.Pred {
	case ir.CmpEQ:
		it = it.Emit(ir.NewOp(ir.OpXor, ir.NopValue, left, right).WithSetFlags())
		cc = ir.CondZeroSet
	case ir.CmpNE:
		it = it.Emit(ir.NewOp(ir.OpXor, ir.NopValue, left, right).WithSetFlags())
		cc = ir.CondZeroClear
	case ir.CmpULT, ir.CmpSLT:
		it = it.Emit(ir.NewOp(ir.OpSub, ir.NopValue, left, right).WithSetFlags())
		cc = ir.CondCarrySet
	case ir.CmpUGE, ir.CmpSGE:
		it = it.Emit(ir.NewOp(ir.OpSub, ir.NopValue, left, right).WithSetFlags())
		cc = ir.CondCarryClear
	case ir.CmpUGT, ir.CmpSGT:
		it = it.Emit(ir.NewOp(ir.OpSub, ir.NopValue, right, left).WithSetFlags())
		cc = ir.CondCarrySet
	case ir.CmpULE, ir.CmpSLE:
		it = it.Emit(ir.NewOp(ir.OpSub, ir.NopValue, right, left).WithSetFlags())
		cc = ir.CondCarryClear
	default:
		return it, diag.Errorf(diag.StageLowering, string(cmp.Pred), "Unsupported integer comparison")
	}
	return emitFlagResult(it, dst, cc), nil
}

func lowerFloatComparison(it ir.Walker, m *ir.Method, cmp ir.CompareInstr, dst ir.Value) (ir.Walker, error) {
	left, right := cmp.Left, cmp.Right
	var cc ir.ConditionCode
	switch cmp.Pred {
	case ir.CmpFOEQ, ir.CmpFUEQ:
		it = it.Emit(ir.NewOp(ir.OpFSub, ir.NopValue, left, right).WithSetFlags())
		cc = ir.CondZeroSet
	case ir.CmpFONE, ir.CmpFUNE:
		it = it.Emit(ir.NewOp(ir.OpFSub, ir.NopValue, left, right).WithSetFlags())
		cc = ir.CondZeroClear
	case ir.CmpFOLT, ir.CmpFULT:
		it = it.Emit(ir.NewOp(ir.OpFSub, ir.NopValue, left, right).WithSetFlags())
		cc = ir.CondNegativeSet
	case ir.CmpFOGE, ir.CmpFUGE:
		it = it.Emit(ir.NewOp(ir.OpFSub, ir.NopValue, left, right).WithSetFlags())
		cc = ir.CondNegativeClear
	case ir.CmpFOGT, ir.CmpFUGT:
		it = it.Emit(ir.NewOp(ir.OpFSub, ir.NopValue, right, left).WithSetFlags())
		cc = ir.CondNegativeSet
	case ir.CmpFOLE, ir.CmpFULE:
		it = it.Emit(ir.NewOp(ir.OpFSub, ir.NopValue, right, left).WithSetFlags())
		cc = ir.CondNegativeClear
	default:
		return it, diag.Errorf(diag.StageLowering, "fcmp "+string(cmp.Pred), "Unsupported floating-point comparison")
	}
	return emitFlagResult(it, dst, cc), nil
}

func emitFlagResult(it ir.Walker, dst ir.Value, cc ir.ConditionCode) ir.Walker {
	it = it.Emit(ir.NewMove(dst, ir.Lit(ir.BoolLiteral(true), dst.Type)).WithCond(cc))
	return it.Emit(ir.NewMove(dst, ir.Lit(ir.BoolLiteral(false), dst.Type)).WithCond(cc.Invert()))
}

// normalizeOperand widens a narrow comparison operand to 32 bits so that the
// upper bits of the lane do not affect the result.
func normalizeOperand(it ir.Walker, m *ir.Method, v ir.Value, signed bool) (ir.Value, ir.Walker, error) {
	wideType := ir.TypeInt32
	if v.Type.IsVectorType() {
		wideType = ir.TypeInt32.MustVector(v.Type.VectorWidth())
	}
	if lit, ok := v.LiteralValue(); ok && !v.IsContainer() {
		bits := v.Type.ScalarBitCount()
		if signed {
			return ir.IntValue(lit.SignExtend(bits), wideType), it, nil
		}
		return ir.Lit(ir.UintLiteral(lit.Bits&v.Type.ScalarWidthMask()), wideType), it, nil
	}
	wide := m.AddNewLocal(wideType, "cmp_operand")
	var err error
	if signed {
		it, err = InsertSignExtension(it, m, v, wide, true, ir.CondAlways, false)
	} else {
		it, err = InsertZeroExtension(it, m, v, wide, true, ir.CondAlways, false)
	}
	return wide, it, err
}

func flipSign(it ir.Walker, m *ir.Method, v ir.Value) (ir.Value, ir.Walker) {
	if lit, ok := v.LiteralValue(); ok && !v.IsContainer() {
		return ir.Lit(ir.UintLiteral(lit.Bits^signBit), v.Type), it
	}
	flipped := m.AddNewLocal(v.Type, "cmp_flipped")
	it = it.Emit(ir.NewOp(ir.OpXor, flipped, v, ir.Lit(ir.UintLiteral(signBit), ir.TypeInt32)))
	return flipped, it
}

func evalIntPredicate(p ir.Predicate, a, b uint32) (bool, error) {
	sa, sb := int32(a), int32(b) //nolint:gosec // reinterpretation
	switch p {
	case ir.CmpEQ:
		return a == b, nil
	case ir.CmpNE:
		return a != b, nil
	case ir.CmpUGT:
		return a > b, nil
	case ir.CmpUGE:
		return a >= b, nil
	case ir.CmpULT:
		return a < b, nil
	case ir.CmpULE:
		return a <= b, nil
	case ir.CmpSGT:
		return sa > sb, nil
	case ir.CmpSGE:
		return sa >= sb, nil
	case ir.CmpSLT:
		return sa < sb, nil
	case ir.CmpSLE:
		return sa <= sb, nil
	}
	return false, diag.Errorf(diag.StageLowering, string(p), "Unsupported integer comparison")
}

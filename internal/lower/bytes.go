package lower

import (
	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// InsertByteSwap reverses the byte order of every element of src.
func InsertByteSwap(it ir.Walker, m *ir.Method, src, dst ir.Value) (ir.Walker, error) {
	t := src.Type
	width := t.VectorWidth()
	tmp := func(name string) ir.Value { return m.AddNewLocal(ir.TypeInt32.MustVector(width), name) }
	lit := func(v uint32) ir.Value { return ir.Lit(ir.UintLiteral(v), ir.TypeInt32) }

	switch t.ScalarBitCount() {
	case 16:
		// 0xAABB -> 0xBBAA
		hi := tmp("bswap_hi")
		it = it.Emit(ir.NewOp(ir.OpShr, hi, src, lit(8)))
		hiMasked := tmp("bswap_hi")
		it = it.Emit(ir.NewOp(ir.OpAnd, hiMasked, hi, lit(0xFF)))
		lo := tmp("bswap_lo")
		it = it.Emit(ir.NewOp(ir.OpShl, lo, src, lit(8)))
		loMasked := tmp("bswap_lo")
		it = it.Emit(ir.NewOp(ir.OpAnd, loMasked, lo, lit(0xFF00)))
		return it.Emit(ir.NewOp(ir.OpOr, dst, hiMasked, loMasked)), nil
	case 32:
		// 0xAABBCCDD -> 0xDDCCBBAA
		b0 := tmp("bswap_b0")
		it = it.Emit(ir.NewOp(ir.OpShl, b0, src, lit(24)))
		b1 := tmp("bswap_b1")
		it = it.Emit(ir.NewOp(ir.OpShl, b1, src, lit(8)))
		b1Masked := tmp("bswap_b1")
		it = it.Emit(ir.NewOp(ir.OpAnd, b1Masked, b1, lit(0xFF0000)))
		b2 := tmp("bswap_b2")
		it = it.Emit(ir.NewOp(ir.OpShr, b2, src, lit(8)))
		b2Masked := tmp("bswap_b2")
		it = it.Emit(ir.NewOp(ir.OpAnd, b2Masked, b2, lit(0xFF00)))
		b3 := tmp("bswap_b3")
		it = it.Emit(ir.NewOp(ir.OpShr, b3, src, lit(24)))
		lower := tmp("bswap_or")
		it = it.Emit(ir.NewOp(ir.OpOr, lower, b3, b2Masked))
		upper := tmp("bswap_or")
		it = it.Emit(ir.NewOp(ir.OpOr, upper, b1Masked, b0))
		return it.Emit(ir.NewOp(ir.OpOr, dst, lower, upper)), nil
	}
	return it, diag.Errorf(diag.StageLowering, t.String(), "Byte swap is only supported for 16 and 32 bit integers")
}

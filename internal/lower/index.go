package lower

import (
	"math/bits"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// InsertCalculateIndices writes the address of an element of the aggregate
// base points to. The first index steps over whole pointees, the following
// ones descend into arrays, vectors and structs:
//
//	dst = base + Σ index_i * sizeof(type at level i)
//
// Constant indices are folded. dst is recorded as derived from base.
func InsertCalculateIndices(it ir.Walker, m *ir.Method, base ir.Value, indices []ir.Value, dst ir.Value) (ir.Walker, error) {
	if !base.Type.IsPointerType() {
		return it, diag.Errorf(diag.StageNormalization, base.String(), "Index calculation on a non-pointer value")
	}
	constOffset := 0
	var terms []ir.Value
	cur := base.Type
	var err error
	for level, index := range indices {
		var elem ir.DataType
		switch {
		case level == 0:
			elem = cur.Pointee()
		case cur.Kind == ir.KindStruct:
			lit, ok := index.LiteralValue()
			if !ok {
				return it, diag.Errorf(diag.StageNormalization, cur.String(), "Struct member index must be constant")
			}
			member := int(lit.SignedInt())
			if member < 0 || member >= len(cur.Complex().Fields) {
				return it, diag.Errorf(diag.StageNormalization, cur.String(), "Struct has no member %d", member)
			}
			constOffset += cur.FieldOffset(member)
			cur = cur.Complex().Fields[member]
			continue
		case cur.Kind == ir.KindArray || cur.IsVectorType():
			elem = cur.ElementType()
		default:
			return it, diag.Errorf(diag.StageNormalization, cur.String(), "Cannot index into this type")
		}

		stride := elem.ByteSize()
		if lit, ok := index.LiteralValue(); ok {
			constOffset += int(lit.SignedInt()) * stride
		} else if stride != 0 {
			term := m.AddNewLocal(ir.TypeInt32, "index_offset")
			if it, err = insertMultiplyByConstant(it, m, index, stride, term); err != nil {
				return it, err
			}
			terms = append(terms, term)
		}
		cur = elem
	}

	acc := base
	for _, term := range terms {
		sum := m.AddNewLocal(base.Type, "index_sum")
		it = it.Emit(ir.NewOp(ir.OpAdd, sum, acc, term))
		acc = sum
	}
	if constOffset != 0 {
		it = it.Emit(ir.NewOp(ir.OpAdd, dst, acc, ir.IntValue(int64(constOffset), ir.TypeInt32)))
	} else {
		it = it.Emit(ir.NewMove(dst, acc))
	}

	if base.IsLocal() && dst.IsLocal() {
		offset := constOffset
		if len(terms) > 0 {
			offset = ir.AnyOffset
		}
		m.SetReference(dst.Local, base.Local, offset)
	}
	return it, nil
}

// insertMultiplyByConstant writes v*factor modulo 2^32. mul24 only sees the
// low 24 bits of v, so the top byte is multiplied separately:
//
//	v*f = mul24(v, f) + (mul24(v >> 24, f) << 24)
//
// which keeps negative and large indices exact.
func insertMultiplyByConstant(it ir.Walker, m *ir.Method, v ir.Value, factor int, dst ir.Value) (ir.Walker, error) {
	switch {
	case factor == 1:
		return it.Emit(ir.NewMove(dst, v)), nil
	case factor > 0 && factor&(factor-1) == 0:
		shift := bits.TrailingZeros(uint(factor))
		return it.Emit(ir.NewOp(ir.OpShl, dst, v, ir.IntValue(int64(shift), ir.TypeInt32))), nil
	case factor <= 0 || factor >= 1<<24:
		return it, diag.Errorf(diag.StageNormalization, v.String(), "Element size %d is too large for index calculation", factor)
	}
	f := ir.IntValue(int64(factor), ir.TypeInt32)
	lo := m.AddNewLocal(ir.TypeInt32, "index_lo")
	it = it.Emit(ir.NewOp(ir.OpMul24, lo, v, f))
	top := m.AddNewLocal(ir.TypeInt32, "index_top")
	it = it.Emit(ir.NewOp(ir.OpShr, top, v, ir.IntValue(24, ir.TypeInt32)))
	hi := m.AddNewLocal(ir.TypeInt32, "index_hi")
	it = it.Emit(ir.NewOp(ir.OpMul24, hi, top, f))
	shifted := m.AddNewLocal(ir.TypeInt32, "index_hi")
	it = it.Emit(ir.NewOp(ir.OpShl, shifted, hi, ir.IntValue(24, ir.TypeInt32)))
	return it.Emit(ir.NewOp(ir.OpAdd, dst, lo, shifted)), nil
}

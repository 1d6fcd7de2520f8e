package lower

import (
	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// Direction of a vector rotation.
type Direction uint8

const (
	// RotateUp moves lane i to lane i+offset.
	RotateUp Direction = iota
	// RotateDown moves lane i+offset to lane i.
	RotateDown
)

// InsertVectorRotation writes src rotated by offset lanes into dst. The
// hardware only rotates upwards; downward rotations by a constant are
// converted, dynamic ones compute 16 - offset first.
func InsertVectorRotation(it ir.Walker, m *ir.Method, src, offset, dst ir.Value, dir Direction) (ir.Walker, error) {
	if src.IsLiteral() || src.IsUndefined() || src.IsZeroInit() {
		// every lane holds the same value
		return it.Emit(ir.NewMove(dst, src)), nil
	}
	if lit, ok := offset.LiteralValue(); ok {
		n := int64(lit.SignedInt()) % ir.NativeVectorWidth
		if n < 0 {
			n += ir.NativeVectorWidth
		}
		if dir == RotateDown {
			n = (ir.NativeVectorWidth - n) % ir.NativeVectorWidth
		}
		if n == 0 {
			return it.Emit(ir.NewMove(dst, src)), nil
		}
		return it.Emit(ir.NewRotate(dst, src, ir.IntValue(n, ir.TypeInt8))), nil
	}
	if dir == RotateDown {
		up := m.AddNewLocal(ir.TypeInt32, "rotation_offset")
		it = it.Emit(ir.NewOp(ir.OpSub, up, ir.IntValue(ir.NativeVectorWidth, ir.TypeInt32), offset))
		offset = up
	}
	return it.Emit(ir.NewRotate(dst, src, offset)), nil
}

// InsertVectorExtraction writes element index of container into lane 0 of
// dst.
func InsertVectorExtraction(it ir.Walker, m *ir.Method, container, index, dst ir.Value) (ir.Walker, error) {
	lit, isConst := index.LiteralValue()
	if isConst {
		idx := int(lit.SignedInt())
		switch {
		case container.IsContainer():
			if idx < 0 || idx >= len(container.Elems) {
				return it, diag.Errorf(diag.StageLowering, container.String(), "Element index %d is out of range", idx)
			}
			return it.Emit(ir.NewMove(dst, container.Elems[idx])), nil
		case container.IsZeroInit():
			return it.Emit(ir.NewMove(dst, ir.Lit(ir.IntLiteral(0), dst.Type))), nil
		case container.IsUndefined():
			return it.Emit(ir.NewMove(dst, ir.UndefinedOf(dst.Type))), nil
		case idx == 0 || !container.Type.IsVectorType():
			return it.Emit(ir.NewMove(dst, container)), nil
		}
	}
	return InsertVectorRotation(it, m, container, index, dst, RotateDown)
}

// InsertVectorInsertion writes value into element index of container, which
// must be a local. The other lanes are kept.
func InsertVectorInsertion(it ir.Walker, m *ir.Method, container, index, value ir.Value) (ir.Walker, error) {
	if !container.IsLocal() && !container.IsRegister() {
		return it, diag.Errorf(diag.StageLowering, container.String(), "Cannot insert into a constant container")
	}
	src := value
	if value.IsLocal() || value.IsRegister() {
		lit, isConst := index.LiteralValue()
		if !isConst || lit.SignedInt() != 0 {
			rotated := m.AddNewLocal(container.Type, "vector_insert")
			var err error
			if it, err = InsertVectorRotation(it, m, value, index, rotated, RotateUp); err != nil {
				return it, err
			}
			src = rotated
		}
	}
	it = it.Emit(ir.NewOp(ir.OpSub, ir.NopValue, ir.ElementNumber, index).WithSetFlags())
	return it.Emit(ir.NewMove(container, src).WithCond(ir.CondZeroSet).AddDecorations(ir.DecoElementInsertion)), nil
}

// InsertReplication writes lane 0 of src into every lane of dst through the
// replication register r5.
func InsertReplication(it ir.Walker, src, dst ir.Value) ir.Walker {
	it = it.Emit(ir.NewMove(ir.RegValue(ir.RegReplicateAll, src.Type), src))
	return it.Emit(ir.NewMove(dst, ir.RegValue(ir.RegAcc5, dst.Type)))
}

// InsertVectorShuffle writes the lanes of first and second selected by mask
// into dst. Mask elements below the width of first select from first, the
// others from second. The mask must be constant; undefined elements leave the
// lane zero.
func InsertVectorShuffle(it ir.Walker, m *ir.Method, dst, first, second, mask ir.Value) (ir.Walker, error) {
	var err error
	firstWidth := first.Type.VectorWidth()
	pick := func(idx int) (ir.Value, int) {
		if idx < firstWidth {
			return first, idx
		}
		return second, idx - firstWidth
	}

	if lit, ok := mask.LiteralValue(); ok {
		// all lanes take the same element
		src, idx := pick(int(lit.SignedInt()))
		elem := m.AddNewLocal(dst.Type.ElementType(), "shuffle_elem")
		if it, err = InsertVectorExtraction(it, m, src, ir.IntValue(int64(idx), ir.TypeInt32), elem); err != nil {
			return it, err
		}
		return InsertReplication(it, elem, dst), nil
	}
	if !mask.IsContainer() {
		return it, diag.Errorf(diag.StageLowering, mask.String(), "Shuffling with a non-constant mask is not supported")
	}

	result := m.AddNewLocal(dst.Type, "shuffle_result")
	it = it.Emit(ir.NewMove(result, ir.Lit(ir.IntLiteral(0), dst.Type)))
	for i, e := range mask.Elems {
		if e.IsUndefined() {
			continue
		}
		lit, ok := e.LiteralValue()
		if !ok {
			return it, diag.Errorf(diag.StageLowering, mask.String(), "Shuffling with a non-constant mask is not supported")
		}
		src, idx := pick(int(lit.SignedInt()))
		if src.IsUndefined() {
			continue
		}
		elem := m.AddNewLocal(dst.Type.ElementType(), "shuffle_elem")
		if it, err = InsertVectorExtraction(it, m, src, ir.IntValue(int64(idx), ir.TypeInt32), elem); err != nil {
			return it, err
		}
		if it, err = InsertVectorInsertion(it, m, result, ir.IntValue(int64(i), ir.TypeInt32), elem); err != nil {
			return it, err
		}
	}
	return it.Emit(ir.NewMove(dst, result)), nil
}

// Package lower expands type conversions, vector accesses and operations
// without a native opcode into primitive instructions.
//
// Every Insert function emits its code before the walker it is given and
// returns a walker positioned after the emitted code, so calls can be chained.
package lower

import (
	"vc4c/internal/diag"
	"vc4c/internal/ir"

	"golang.org/x/exp/constraints"
)

// InsertBitcast reinterprets src as the type of dst. Pointer to pointer casts
// also record dst as an alias of src.
func InsertBitcast(it ir.Walker, m *ir.Method, src, dst ir.Value, deco ir.Decorations) (ir.Walker, error) {
	var err error
	srcWidth, dstWidth := src.Type.VectorWidth(), dst.Type.VectorWidth()
	switch {
	case src.IsUndefined():
		it = it.Emit(ir.NewMove(dst, ir.UndefinedOf(dst.Type)).AddDecorations(deco))
	case src.IsZeroInit():
		it = it.Emit(ir.NewMove(dst, ir.Lit(ir.IntLiteral(0), dst.Type)).AddDecorations(deco))
	case srcWidth > dstWidth:
		it, err = insertCombiningBitcast(it, m, src, dst, deco)
	case srcWidth < dstWidth:
		it, err = insertSplittingBitcast(it, m, src, dst, deco)
	default:
		it = it.Emit(ir.NewMove(dst, src).AddDecorations(deco))
	}
	if err != nil {
		return it, err
	}
	if src.Type.IsPointerType() && dst.Type.IsPointerType() && src.IsLocal() && dst.IsLocal() {
		m.SetReference(dst.Local, src.Local, 0)
	}
	return it, nil
}

func bitcastFactor(src, dst ir.Value) (narrow, wide int, err error) {
	srcBits, dstBits := src.Type.ScalarBitCount(), dst.Type.ScalarBitCount()
	narrow, wide = min(srcBits, dstBits), max(srcBits, dstBits)
	if wide > 32 || narrow == 0 || wide%narrow != 0 {
		return 0, 0, diag.Errorf(diag.StageLowering, src.Type.String()+" to "+dst.Type.String(),
			"Bit-casts between these element sizes are not supported")
	}
	return narrow, wide, nil
}

func intVector(width int) ir.DataType {
	return ir.TypeInt32.MustVector(max(width, 1))
}

// insertCombiningBitcast handles casts to fewer, wider elements. The source
// lanes are masked, shifted into position and rotated so lane j*factor of the
// combined vector holds destination element j; the elements are then moved
// into their lanes.
func insertCombiningBitcast(it ir.Walker, m *ir.Method, src, dst ir.Value, deco ir.Decorations) (ir.Walker, error) {
	srcBits, _, err := bitcastFactor(src, dst)
	if err != nil {
		return it, err
	}
	sizeFactor := dst.Type.ScalarBitCount() / srcBits
	wide := intVector(src.Type.VectorWidth())

	masked := m.AddNewLocal(wide, "bitcast_masked")
	it = it.Emit(ir.NewOp(ir.OpAnd, masked, src, ir.Lit(ir.UintLiteral(src.Type.ScalarWidthMask()), ir.TypeInt32)))

	combined := masked
	for i := 1; i < sizeFactor; i++ {
		shifted := m.AddNewLocal(wide, "bitcast_shifted")
		it = it.Emit(ir.NewOp(ir.OpShl, shifted, masked, ir.IntValue(int64(i*srcBits), ir.TypeInt32)))
		rotated := m.AddNewLocal(wide, "bitcast_rotated")
		if it, err = InsertVectorRotation(it, m, shifted, ir.IntValue(int64(i), ir.TypeInt32), rotated, RotateDown); err != nil {
			return it, err
		}
		next := m.AddNewLocal(wide, "bitcast_combined")
		it = it.Emit(ir.NewOp(ir.OpOr, next, combined, rotated))
		combined = next
	}

	if !dst.Type.IsVectorType() {
		return it.Emit(ir.NewMove(dst, combined.WithType(dst.Type)).AddDecorations(deco)), nil
	}
	result := m.AddNewLocal(dst.Type, "bitcast_result")
	it = it.Emit(ir.NewMove(result, ir.Lit(ir.IntLiteral(0), dst.Type)))
	elemType := dst.Type.ElementType()
	for i := 0; i < dst.Type.VectorWidth(); i++ {
		elem := m.AddNewLocal(elemType, "bitcast_elem")
		if it, err = InsertVectorExtraction(it, m, combined, ir.IntValue(int64(i*sizeFactor), ir.TypeInt32), elem); err != nil {
			return it, err
		}
		if it, err = InsertVectorInsertion(it, m, result, ir.IntValue(int64(i), ir.TypeInt32), elem); err != nil {
			return it, err
		}
	}
	return it.Emit(ir.NewMove(dst, result).AddDecorations(deco)), nil
}

// insertSplittingBitcast handles casts to more, narrower elements: copy i of
// the source is shifted right by i element sizes and masked, destination lane
// j then takes element j/factor of copy j%factor.
func insertSplittingBitcast(it ir.Walker, m *ir.Method, src, dst ir.Value, deco ir.Decorations) (ir.Walker, error) {
	dstBits, _, err := bitcastFactor(src, dst)
	if err != nil {
		return it, err
	}
	sizeFactor := src.Type.ScalarBitCount() / dstBits
	wide := intVector(src.Type.VectorWidth())
	mask := ir.Lit(ir.UintLiteral(dst.Type.ScalarWidthMask()), ir.TypeInt32)

	parts := make([]ir.Value, sizeFactor)
	for i := range parts {
		part := m.AddNewLocal(wide, "bitcast_part")
		if i == 0 {
			it = it.Emit(ir.NewOp(ir.OpAnd, part, src, mask))
		} else {
			shifted := m.AddNewLocal(wide, "bitcast_shifted")
			it = it.Emit(ir.NewOp(ir.OpShr, shifted, src, ir.IntValue(int64(i*dstBits), ir.TypeInt32)))
			it = it.Emit(ir.NewOp(ir.OpAnd, part, shifted, mask))
		}
		parts[i] = part
	}

	result := m.AddNewLocal(dst.Type, "bitcast_result")
	it = it.Emit(ir.NewMove(result, ir.Lit(ir.IntLiteral(0), dst.Type)))
	elemType := dst.Type.ElementType()
	for i := 0; i < dst.Type.VectorWidth(); i++ {
		elem := m.AddNewLocal(elemType, "bitcast_elem")
		if it, err = InsertVectorExtraction(it, m, parts[i%sizeFactor], ir.IntValue(int64(i/sizeFactor), ir.TypeInt32), elem); err != nil {
			return it, err
		}
		if it, err = InsertVectorInsertion(it, m, result, ir.IntValue(int64(i), ir.TypeInt32), elem); err != nil {
			return it, err
		}
	}
	return it.Emit(ir.NewMove(dst, result).AddDecorations(deco)), nil
}

// InsertZeroExtension writes src zero-extended to the width of dst. With
// allowLiteral unset the mask is loaded into a temporary instead of being
// used as an immediate operand. The result is always decorated unsigned.
func InsertZeroExtension(it ir.Walker, m *ir.Method, src, dst ir.Value, allowLiteral bool, cond ir.ConditionCode, setFlags bool) (ir.Walker, error) {
	srcBits, dstBits := src.Type.ScalarBitCount(), dst.Type.ScalarBitCount()
	var ins *ir.Instr
	switch {
	case srcBits == 32 && dstBits <= 32:
		pack, err := truncatingPack(dst)
		if err != nil {
			return it, err
		}
		ins = ir.NewMove(dst, src).WithPack(pack)
	case srcBits >= 32 && dstBits >= 32:
		ins = ir.NewMove(dst, src)
	case dstBits == 32 && src.HasRegisterIn(ir.FileA|ir.FileAcc) && srcBits == 8:
		ins = ir.NewMove(dst, src).WithUnpack(ir.UnpackCharToIntZext)
	case allowLiteral:
		ins = ir.NewOp(ir.OpAnd, dst, src, ir.Lit(ir.UintLiteral(src.Type.ScalarWidthMask()), ir.TypeInt32))
	default:
		mask := m.AddNewLocal(ir.TypeInt32, "zext_mask")
		it = it.Emit(ir.NewLoadImm(mask, ir.UintLiteral(src.Type.ScalarWidthMask())))
		ins = ir.NewOp(ir.OpAnd, dst, src, mask)
	}
	ins.WithCond(cond).AddDecorations(ir.DecoUnsignedResult)
	if setFlags {
		ins.WithSetFlags()
	}
	return it.Emit(ins), nil
}

func truncatingPack(dst ir.Value) (ir.PackMode, error) {
	switch dst.Type.ScalarBitCount() {
	case 8:
		return ir.PackIntToCharTruncate, nil
	case 16:
		return ir.PackIntToShortTruncate, nil
	case 32:
		return ir.PackNop, nil
	}
	return ir.PackNop, diag.Errorf(diag.StageGeneral, dst.Type.String(), "Invalid type-width for zero-extension")
}

// InsertSignExtension writes src sign-extended to the width of dst. Narrow
// values are extended to the full 32-bit lane.
func InsertSignExtension(it ir.Walker, m *ir.Method, src, dst ir.Value, allowLiteral bool, cond ir.ConditionCode, setFlags bool) (ir.Walker, error) {
	srcBits, dstBits := src.Type.ScalarBitCount(), dst.Type.ScalarBitCount()
	switch {
	case srcBits >= 32 && dstBits >= 32:
		ins := ir.NewMove(dst, src).WithCond(cond)
		if setFlags {
			ins.WithSetFlags()
		}
		return it.Emit(ins), nil
	case dstBits == 32 && src.HasRegisterIn(ir.FileA|ir.FileAcc) && srcBits == 16:
		ins := ir.NewMove(dst, src).WithUnpack(ir.UnpackShortToIntSext).WithCond(cond)
		if setFlags {
			ins.WithSetFlags()
		}
		return it.Emit(ins), nil
	}

	var diff ir.Value
	if allowLiteral {
		diff = ir.IntValue(int64(32-srcBits), ir.TypeInt8)
	} else {
		diff = m.AddNewLocal(ir.TypeInt32, "sext_shift")
		it = it.Emit(ir.NewLoadImm(diff, ir.IntLiteral(int64(32-srcBits))))
	}
	shifted := m.AddNewLocal(ir.TypeInt32.MustVector(dst.Type.VectorWidth()), "sext_shifted")
	it = it.Emit(ir.NewOp(ir.OpShl, shifted, src, diff).WithCond(cond))
	asr := ir.NewOp(ir.OpAsr, dst, shifted, diff).WithCond(cond)
	if setFlags {
		asr.WithSetFlags()
	}
	return it.Emit(asr), nil
}

// Saturate clamps v into the range of T.
func Saturate[T constraints.Integer](v int64) T {
	var zero T
	signed := ^zero < 0
	size := 0
	for bit := T(1); bit != 0; bit <<= 1 {
		size++
	}
	var lo, hi int64
	switch {
	case signed:
		lo, hi = -1<<(size-1), 1<<(size-1)-1
	case size >= 64:
		lo, hi = 0, 1<<63-1
	default:
		lo, hi = 0, 1<<size-1
	}
	return T(min(max(v, lo), hi))
}

// InsertSaturation writes src clamped to the integer range of dst.
// srcSigned tells how src is read, dstSigned which range it is clamped to.
// Constant sources are folded; otherwise a saturating pack mode is used
// where the hardware has one.
func InsertSaturation(it ir.Walker, m *ir.Method, src, dst ir.Value, srcSigned, dstSigned bool) (ir.Walker, error) {
	if !dst.Type.IsSimpleType() || dst.Type.IsFloatingType() {
		return it, diag.Errorf(diag.StageLowering, dst.Type.String(), "Invalid target type for saturation")
	}
	srcBits, dstBits := src.Type.ScalarBitCount(), dst.Type.ScalarBitCount()

	if lit, ok := src.LiteralValue(); ok && (src.IsLiteral() || src.IsZeroInit() || src.IsContainer()) {
		v := lit.ZeroExtend(srcBits)
		if srcSigned {
			v = lit.SignExtend(srcBits)
		}
		var out int64
		switch {
		case dstBits == 8 && dstSigned:
			out = int64(Saturate[int8](v))
		case dstBits == 8:
			out = int64(Saturate[uint8](v))
		case dstBits == 16 && dstSigned:
			out = int64(Saturate[int16](v))
		case dstBits == 16:
			out = int64(Saturate[uint16](v))
		case dstBits == 32 && dstSigned:
			out = int64(Saturate[int32](v))
		case dstBits == 32:
			out = int64(Saturate[uint32](v))
		default:
			return it, diag.Errorf(diag.StageLowering, dst.Type.String(), "Invalid target type for saturation")
		}
		mov := ir.NewMove(dst, ir.Lit(ir.IntLiteral(out), dst.Type))
		if !dstSigned {
			mov.AddDecorations(ir.DecoUnsignedResult)
		}
		return it.Emit(mov), nil
	}

	supported := dstBits == 8 && !dstSigned || dstBits == 16 && dstSigned || dstBits == 32
	if !supported {
		return it, diag.Errorf(diag.StageLowering, dst.Type.String(), "Saturation to this type is not yet supported")
	}
	// the pack modes read a signed 32-bit lane
	if !srcSigned && srcBits < 32 {
		wide := m.AddNewLocal(ir.TypeInt32.MustVector(src.Type.VectorWidth()), "sat_zext")
		var err error
		if it, err = InsertZeroExtension(it, m, src, wide, true, ir.CondAlways, false); err != nil {
			return it, err
		}
		src = wide
	}
	switch {
	case dstBits == 8:
		return it.Emit(ir.NewMove(dst, src).WithPack(ir.PackIntToUnsignedCharSaturate).AddDecorations(ir.DecoUnsignedResult)), nil
	case dstBits == 16:
		return it.Emit(ir.NewMove(dst, src).WithPack(ir.PackIntToSignedShortSaturate)), nil
	}
	return it.Emit(ir.NewMove(dst, src).WithPack(ir.Pack32Saturate)), nil
}

// InsertTruncate writes src truncated to the width of dst.
func InsertTruncate(it ir.Walker, m *ir.Method, src, dst ir.Value) (ir.Walker, error) {
	if dst.Type.ScalarBitCount() >= src.Type.ScalarBitCount() {
		return it.Emit(ir.NewMove(dst, src)), nil
	}
	return it.Emit(ir.NewOp(ir.OpAnd, dst, src, ir.Lit(ir.UintLiteral(dst.Type.ScalarWidthMask()), ir.TypeInt32))), nil
}

// InsertFloatingPointConversion converts between half and single precision.
func InsertFloatingPointConversion(it ir.Walker, m *ir.Method, src, dst ir.Value) (ir.Walker, error) {
	srcBits, dstBits := src.Type.ScalarBitCount(), dst.Type.ScalarBitCount()
	switch {
	case srcBits == dstBits:
		return it.Emit(ir.NewMove(dst, src)), nil
	case srcBits == 16 && dstBits == 32:
		return it.Emit(ir.NewOp(ir.OpFMul, dst, src, ir.FloatOne).WithUnpack(ir.UnpackHalfToFloat)), nil
	case srcBits == 32 && dstBits == 16:
		return it.Emit(ir.NewOp(ir.OpFMul, dst, src, ir.FloatOne).WithPack(ir.PackFloatToHalfTruncate)), nil
	}
	return it, diag.Errorf(diag.StageLowering, src.Type.String()+" to "+dst.Type.String(), "Unsupported floating-point conversion")
}

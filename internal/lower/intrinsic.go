package lower

import (
	"math/bits"
	"sync"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

type intrinsicLowering func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error)

type intrinsicDesc struct {
	arity int
	lower intrinsicLowering
}

var intrinsicTable = sync.OnceValue(func() map[string]intrinsicDesc {
	return map[string]intrinsicDesc{
		"lshr": {2, lowerLogicalShift},
		"ashr": {2, lowerArithmeticShift},
		"mul":  {2, lowerMultiply},
		"udiv": {2, lowerUnsignedDivision},
		"urem": {2, lowerUnsignedRemainder},
		"fdiv": {2, lowerFloatDivision},
		"sext": {1, func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
			return InsertSignExtension(it, m, args[0], dst, true, ir.CondAlways, false)
		}},
		"zext": {1, func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
			return InsertZeroExtension(it, m, args[0], dst, true, ir.CondAlways, false)
		}},
		"trunc": {1, func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
			return InsertTruncate(it, m, args[0], dst)
		}},
		"fptrunc": {1, func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
			return InsertFloatingPointConversion(it, m, args[0], dst)
		}},
		"fpext": {1, func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
			return InsertFloatingPointConversion(it, m, args[0], dst)
		}},
		"fptosi": {1, lowerFloatToInt},
		"fptoui": {1, lowerFloatToInt},
		"sitofp": {1, lowerSignedToFloat},
		"uitofp": {1, lowerUnsignedToFloat},
		"fneg": {1, func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
			return it.Emit(ir.NewOp(ir.OpXor, dst, args[0], ir.Lit(ir.UintLiteral(signBit), ir.TypeInt32))), nil
		}},
		"neg": {1, func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
			return it.Emit(ir.NewOp(ir.OpSub, dst, ir.IntZero, args[0])), nil
		}},
		"ptrtoint":      {1, lowerPlainMove},
		"inttoptr":      {1, lowerPlainMove},
		"addrspacecast": {1, lowerPlainMove},
	}
})

// LowerIntrinsicOp replaces the intrinsic operation under it with native
// instructions. Unknown operations fail with a lowering error.
func LowerIntrinsicOp(it ir.Walker, m *ir.Method) (ir.Walker, error) {
	ins := it.Get()
	name, dst, args := ins.Intrinsic.Name, ins.Dst, ins.Intrinsic.Args
	desc, ok := intrinsicTable()[name]
	if !ok {
		return it, diag.CodeErrorf(diag.LowerUnknownIntrinsic, m.FormatInstr(ins), "Unsupported operation %q", name)
	}
	if len(args) != desc.arity {
		return it, diag.CodeErrorf(diag.LowerUnsupportedShape, m.FormatInstr(ins), "Operation %s takes %d operands, got %d", name, desc.arity, len(args))
	}
	return desc.lower(it.Erase(), m, dst, args)
}

// IsKnownIntrinsic reports whether LowerIntrinsicOp can handle name.
func IsKnownIntrinsic(name string) bool {
	_, ok := intrinsicTable()[name]
	return ok
}

func lowerPlainMove(it ir.Walker, _ *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	return it.Emit(ir.NewMove(dst, args[0])), nil
}

func lowerLogicalShift(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	src := args[0]
	if src.Type.ScalarBitCount() < 32 {
		wide := m.AddNewLocal(ir.TypeInt32.MustVector(src.Type.VectorWidth()), "lshr_operand")
		var err error
		if it, err = InsertZeroExtension(it, m, src, wide, true, ir.CondAlways, false); err != nil {
			return it, err
		}
		src = wide
	}
	return it.Emit(ir.NewOp(ir.OpShr, dst, src, args[1])), nil
}

func lowerArithmeticShift(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	src := args[0]
	if src.Type.ScalarBitCount() < 32 {
		wide := m.AddNewLocal(ir.TypeInt32.MustVector(src.Type.VectorWidth()), "ashr_operand")
		var err error
		if it, err = InsertSignExtension(it, m, src, wide, true, ir.CondAlways, false); err != nil {
			return it, err
		}
		src = wide
	}
	return it.Emit(ir.NewOp(ir.OpAsr, dst, src, args[1])), nil
}

// powerOfTwo returns log2 of a constant power of two operand.
func powerOfTwo(v ir.Value) (int, bool) {
	lit, ok := v.LiteralValue()
	if !ok || lit.Kind == ir.LitFloat || lit.Bits == 0 || lit.Bits&(lit.Bits-1) != 0 {
		return 0, false
	}
	return bits.TrailingZeros32(lit.Bits), true
}

// lowerMultiply builds a 32-bit product from 24-bit multiplications:
//
//	a*b = lo(a)*lo(b) + ((hi(a)*lo(b) + lo(a)*hi(b)) << 24)
//
// where lo takes the low 24 bits and hi the upper 8.
func lowerMultiply(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	a, b := args[0], args[1]
	if shift, ok := powerOfTwo(b); ok {
		return it.Emit(ir.NewOp(ir.OpShl, dst, a, ir.IntValue(int64(shift), ir.TypeInt32))), nil
	}
	if shift, ok := powerOfTwo(a); ok {
		return it.Emit(ir.NewOp(ir.OpShl, dst, b, ir.IntValue(int64(shift), ir.TypeInt32))), nil
	}
	if dst.Type.ScalarBitCount() <= 16 {
		// both factors fit 24 bits after truncation of the product
		return it.Emit(ir.NewOp(ir.OpMul24, dst, a, b)), nil
	}
	t := ir.TypeInt32.MustVector(dst.Type.VectorWidth())
	lo := m.AddNewLocal(t, "mul_lo")
	it = it.Emit(ir.NewOp(ir.OpMul24, lo, a, b))
	aHi := m.AddNewLocal(t, "mul_a_hi")
	it = it.Emit(ir.NewOp(ir.OpShr, aHi, a, ir.IntValue(24, ir.TypeInt32)))
	bHi := m.AddNewLocal(t, "mul_b_hi")
	it = it.Emit(ir.NewOp(ir.OpShr, bHi, b, ir.IntValue(24, ir.TypeInt32)))
	cross1 := m.AddNewLocal(t, "mul_cross")
	it = it.Emit(ir.NewOp(ir.OpMul24, cross1, aHi, b))
	cross2 := m.AddNewLocal(t, "mul_cross")
	it = it.Emit(ir.NewOp(ir.OpMul24, cross2, a, bHi))
	cross := m.AddNewLocal(t, "mul_cross")
	it = it.Emit(ir.NewOp(ir.OpAdd, cross, cross1, cross2))
	shifted := m.AddNewLocal(t, "mul_hi")
	it = it.Emit(ir.NewOp(ir.OpShl, shifted, cross, ir.IntValue(24, ir.TypeInt32)))
	return it.Emit(ir.NewOp(ir.OpAdd, dst, lo, shifted)), nil
}

func lowerUnsignedDivision(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	shift, ok := powerOfTwo(args[1])
	if !ok {
		return it, diag.Errorf(diag.StageLowering, m.FormatValue(args[1]), "Division is only supported by constant powers of two")
	}
	return lowerLogicalShift(it, m, dst, []ir.Value{args[0], ir.IntValue(int64(shift), ir.TypeInt32)})
}

func lowerUnsignedRemainder(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	if _, ok := powerOfTwo(args[1]); !ok {
		return it, diag.Errorf(diag.StageLowering, m.FormatValue(args[1]), "Remainder is only supported by constant powers of two")
	}
	lit, _ := args[1].LiteralValue()
	return it.Emit(ir.NewOp(ir.OpAnd, dst, args[0], ir.Lit(ir.UintLiteral(lit.Bits-1), ir.TypeInt32))), nil
}

// lowerFloatDivision multiplies by the reciprocal computed by the special
// function unit. The result is approximate.
func lowerFloatDivision(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	it = it.Emit(ir.NewMove(ir.RegValue(ir.RegSFURecip, args[1].Type), args[1]))
	return it.Emit(ir.NewOp(ir.OpFMul, dst, args[0], ir.RegValue(ir.RegAcc4, args[1].Type))), nil
}

func lowerFloatToInt(it ir.Walker, _ *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	return it.Emit(ir.NewOp(ir.OpFToI, dst, args[0])), nil
}

func lowerSignedToFloat(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	src := args[0]
	if src.Type.ScalarBitCount() < 32 {
		wide := m.AddNewLocal(ir.TypeInt32.MustVector(src.Type.VectorWidth()), "itof_operand")
		var err error
		if it, err = InsertSignExtension(it, m, src, wide, true, ir.CondAlways, false); err != nil {
			return it, err
		}
		src = wide
	}
	return it.Emit(ir.NewOp(ir.OpIToF, dst, src)), nil
}

func lowerUnsignedToFloat(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	src := args[0]
	if src.Type.ScalarBitCount() < 32 {
		wide := m.AddNewLocal(ir.TypeInt32.MustVector(src.Type.VectorWidth()), "itof_operand")
		var err error
		if it, err = InsertZeroExtension(it, m, src, wide, true, ir.CondAlways, false); err != nil {
			return it, err
		}
		src = wide
	}
	return it.Emit(ir.NewOp(ir.OpIToF, dst, src)), nil
}

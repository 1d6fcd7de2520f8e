package lower

import (
	"strconv"
	"strings"
	"sync"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

type builtin struct {
	arity int
	lower intrinsicLowering
}

func nativeOp(op ir.OpCode) intrinsicLowering {
	return func(it ir.Walker, _ *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
		return it.Emit(ir.NewOp(op, dst, args...)), nil
	}
}

var builtinTable = sync.OnceValue(func() map[string]builtin {
	return map[string]builtin{
		"clz":          {1, nativeOp(ir.OpClz)},
		"min":          {2, nativeOp(ir.OpMin)},
		"max":          {2, nativeOp(ir.OpMax)},
		"fmin":         {2, nativeOp(ir.OpFMin)},
		"fmax":         {2, nativeOp(ir.OpFMax)},
		"mul24":        {2, nativeOp(ir.OpMul24)},
		"mad24":        {3, lowerMultiplyAdd(ir.OpMul24, ir.OpAdd)},
		"mad":          {3, lowerMultiplyAdd(ir.OpFMul, ir.OpFAdd)},
		"fma":          {3, lowerMultiplyAdd(ir.OpFMul, ir.OpFAdd)},
		"abs":          {1, lowerIntegerAbs},
		"fabs":         {1, lowerFloatAbs},
		"native_recip": {1, lowerReciprocal},
		"half_recip":   {1, lowerReciprocal},
	}
})

func lowerMultiplyAdd(mul, add ir.OpCode) intrinsicLowering {
	return func(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
		prod := m.AddNewLocal(dst.Type, "mad_product")
		it = it.Emit(ir.NewOp(mul, prod, args[0], args[1]))
		return it.Emit(ir.NewOp(add, dst, prod, args[2])), nil
	}
}

func lowerIntegerAbs(it ir.Walker, m *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	negated := m.AddNewLocal(args[0].Type, "abs_neg")
	it = it.Emit(ir.NewOp(ir.OpSub, negated, ir.IntZero, args[0]))
	return it.Emit(ir.NewOp(ir.OpMax, dst, args[0], negated).AddDecorations(ir.DecoUnsignedResult)), nil
}

func lowerFloatAbs(it ir.Walker, _ *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	return it.Emit(ir.NewOp(ir.OpAnd, dst, args[0], ir.Lit(ir.UintLiteral(^uint32(signBit)), ir.TypeInt32))), nil
}

func lowerReciprocal(it ir.Walker, _ *ir.Method, dst ir.Value, args []ir.Value) (ir.Walker, error) {
	it = it.Emit(ir.NewMove(ir.RegValue(ir.RegSFURecip, args[0].Type), args[0]))
	return it.Emit(ir.NewMove(dst, ir.RegValue(ir.RegAcc4, dst.Type))), nil
}

// Demangle strips Itanium name mangling from a builtin name, e.g.
// "_Z3clzj" becomes "clz". Unmangled names are returned unchanged.
func Demangle(name string) string {
	if !strings.HasPrefix(name, "_Z") {
		return name
	}
	rest := name[2:]
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	length, err := strconv.Atoi(rest[:n])
	if err != nil || n+length > len(rest) {
		return name
	}
	return rest[n : n+length]
}

// mangledArgs returns the argument part of a mangled name, e.g. "Dv4_h"
// for "_Z17convert_uchar4_satDv4_h", or "" for unmangled names.
func mangledArgs(name string) string {
	base := Demangle(name)
	if base == name {
		return ""
	}
	_, rest, _ := strings.Cut(name[2:], base)
	return rest
}

// firstArgSigned reports whether the first mangled argument is a signed
// integer. Names without argument types count as signed.
func firstArgSigned(name string) bool {
	args := mangledArgs(name)
	// vector arguments: Dv<N>_<element>
	if rest, ok := strings.CutPrefix(args, "Dv"); ok {
		if _, elem, found := strings.Cut(rest, "_"); found {
			args = elem
		}
	}
	if args == "" {
		return true
	}
	return !strings.ContainsRune("htjm", rune(args[0]))
}

// saturatingConversion parses convert_<type>[N]_sat[_rt?] and returns the
// destination element width and signedness.
func saturatingConversion(name string) (bits int, signed, ok bool) {
	rest, found := strings.CutPrefix(name, "convert_")
	if !found {
		return 0, false, false
	}
	parts := strings.Split(rest, "_")
	if len(parts) < 2 || parts[1] != "sat" {
		return 0, false, false
	}
	if len(parts) == 3 && !strings.HasPrefix(parts[2], "rt") || len(parts) > 3 {
		return 0, false, false
	}
	typ := strings.TrimRight(parts[0], "0123456789")
	signed = !strings.HasPrefix(typ, "u")
	switch strings.TrimPrefix(typ, "u") {
	case "char":
		return 8, signed, true
	case "short":
		return 16, signed, true
	case "int":
		return 32, signed, true
	}
	return 0, false, false
}

// LowerMethodCall expands calls to known builtins in place. It reports false
// when the callee is not a builtin and the call was left alone.
func LowerMethodCall(it ir.Walker, m *ir.Method) (ir.Walker, bool, error) {
	ins := it.Get()
	name := Demangle(ins.Call.Name)
	dst, args := ins.Dst, ins.Call.Args

	if _, signed, ok := saturatingConversion(name); ok {
		if len(args) != 1 {
			return it, false, arityError(m, ins, len(args), 1)
		}
		it = it.Erase()
		src := args[0]
		// floats are converted to a signed int first
		srcSigned := src.Type.IsFloatingType() || firstArgSigned(ins.Call.Name)
		var err error
		if src.Type.IsFloatingType() {
			asInt := m.AddNewLocal(ir.TypeInt32.MustVector(src.Type.VectorWidth()), "convert_int")
			it = it.Emit(ir.NewOp(ir.OpFToI, asInt, src))
			src = asInt
		}
		it, err = InsertSaturation(it, m, src, dst, srcSigned, signed)
		return it, true, err
	}

	b, ok := builtinTable()[name]
	if !ok {
		return it.Next(), false, nil
	}
	if len(args) != b.arity {
		return it, false, arityError(m, ins, len(args), b.arity)
	}
	it, err := b.lower(it.Erase(), m, dst, args)
	return it, true, err
}

func arityError(m *ir.Method, ins *ir.Instr, got, want int) error {
	return diag.CodeErrorf(diag.ParseArity, m.FormatInstr(ins), "Invalid numbers of method arguments: Got %d, expected %d", got, want)
}

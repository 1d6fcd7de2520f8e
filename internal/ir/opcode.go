package ir

import (
	"math"
	"math/bits"
	"sync"
)

// noALU marks an opcode that is not available on one of the ALUs.
const noALU = 0xFF

// OpCode is a native ALU operation. Add and Mul hold the encoding on the add
// and mul ALU respectively.
type OpCode struct {
	Name     string
	Add      uint8
	Mul      uint8
	Operands uint8
	FloatIn  bool
	FloatOut bool
}

var (
	OpNop     = OpCode{Name: "nop", Add: 0, Mul: 0}
	OpFAdd    = OpCode{Name: "fadd", Add: 1, Mul: noALU, Operands: 2, FloatIn: true, FloatOut: true}
	OpFSub    = OpCode{Name: "fsub", Add: 2, Mul: noALU, Operands: 2, FloatIn: true, FloatOut: true}
	OpFMin    = OpCode{Name: "fmin", Add: 3, Mul: noALU, Operands: 2, FloatIn: true, FloatOut: true}
	OpFMax    = OpCode{Name: "fmax", Add: 4, Mul: noALU, Operands: 2, FloatIn: true, FloatOut: true}
	OpFMinAbs = OpCode{Name: "fminabs", Add: 5, Mul: noALU, Operands: 2, FloatIn: true, FloatOut: true}
	OpFMaxAbs = OpCode{Name: "fmaxabs", Add: 6, Mul: noALU, Operands: 2, FloatIn: true, FloatOut: true}
	OpFToI    = OpCode{Name: "ftoi", Add: 7, Mul: noALU, Operands: 1, FloatIn: true}
	OpIToF    = OpCode{Name: "itof", Add: 8, Mul: noALU, Operands: 1, FloatOut: true}
	OpAdd     = OpCode{Name: "add", Add: 12, Mul: noALU, Operands: 2}
	OpSub     = OpCode{Name: "sub", Add: 13, Mul: noALU, Operands: 2}
	OpShr     = OpCode{Name: "shr", Add: 14, Mul: noALU, Operands: 2}
	OpAsr     = OpCode{Name: "asr", Add: 15, Mul: noALU, Operands: 2}
	OpRor     = OpCode{Name: "ror", Add: 16, Mul: noALU, Operands: 2}
	OpShl     = OpCode{Name: "shl", Add: 17, Mul: noALU, Operands: 2}
	OpMin     = OpCode{Name: "min", Add: 18, Mul: noALU, Operands: 2}
	OpMax     = OpCode{Name: "max", Add: 19, Mul: noALU, Operands: 2}
	OpAnd     = OpCode{Name: "and", Add: 20, Mul: noALU, Operands: 2}
	OpOr      = OpCode{Name: "or", Add: 21, Mul: noALU, Operands: 2}
	OpXor     = OpCode{Name: "xor", Add: 22, Mul: noALU, Operands: 2}
	OpNot     = OpCode{Name: "not", Add: 23, Mul: noALU, Operands: 1}
	OpClz     = OpCode{Name: "clz", Add: 24, Mul: noALU, Operands: 1}
	OpV8Adds  = OpCode{Name: "v8adds", Add: 30, Mul: 6, Operands: 2}
	OpV8Subs  = OpCode{Name: "v8subs", Add: 31, Mul: 7, Operands: 2}
	OpFMul    = OpCode{Name: "fmul", Add: noALU, Mul: 1, Operands: 2, FloatIn: true, FloatOut: true}
	OpMul24   = OpCode{Name: "mul24", Add: noALU, Mul: 2, Operands: 2}
	OpV8Muld  = OpCode{Name: "v8muld", Add: noALU, Mul: 3, Operands: 2}
	OpV8Min   = OpCode{Name: "v8min", Add: noALU, Mul: 4, Operands: 2}
	OpV8Max   = OpCode{Name: "v8max", Add: noALU, Mul: 5, Operands: 2}
)

var opCodeTable = sync.OnceValue(func() map[string]OpCode {
	all := []OpCode{
		OpFAdd, OpFSub, OpFMin, OpFMax, OpFMinAbs, OpFMaxAbs, OpFToI, OpIToF,
		OpAdd, OpSub, OpShr, OpAsr, OpRor, OpShl, OpMin, OpMax, OpAnd, OpOr,
		OpXor, OpNot, OpClz, OpV8Adds, OpV8Subs, OpFMul, OpMul24, OpV8Muld,
		OpV8Min, OpV8Max,
	}
	table := make(map[string]OpCode, len(all))
	for _, op := range all {
		table[op.Name] = op
	}
	return table
})

// FindOpCode resolves a native opcode by name; unknown names yield OpNop.
func FindOpCode(name string) OpCode {
	if op, ok := opCodeTable()[name]; ok {
		return op
	}
	return OpNop
}

func (op OpCode) IsNop() bool { return op.Name == OpNop.Name }
func (op OpCode) OnAdd() bool { return op.Add != noALU }
func (op OpCode) OnMul() bool { return op.Mul != noALU }

// IsCommutative reports whether the operands may be swapped.
func (op OpCode) IsCommutative() bool {
	switch op.Name {
	case "fadd", "fmin", "fmax", "fminabs", "fmaxabs", "add", "min", "max", "and", "or", "xor",
		"v8adds", "fmul", "mul24", "v8muld", "v8min", "v8max":
		return true
	}
	return false
}

// IsIdempotent reports whether op(x, x) == x, which makes op usable as a move.
func (op OpCode) IsIdempotent() bool {
	switch op.Name {
	case "and", "or", "min", "max", "fmin", "fmax", "v8min", "v8max":
		return true
	}
	return false
}

// RightIdentity returns the literal e with op(x, e) == x.
func (op OpCode) RightIdentity() (Literal, bool) {
	switch op.Name {
	case "add", "sub", "or", "xor", "shl", "shr", "asr", "ror":
		return IntLiteral(0), true
	case "fadd", "fsub":
		return FloatLiteral(0), true
	case "fmul":
		return FloatLiteral(1), true
	case "mul24":
		return IntLiteral(1), true
	case "and":
		return UintLiteral(0xFFFFFFFF), true
	}
	return Literal{}, false
}

// Apply computes op on the 32-bit lane values a and b the way the ALU does.
// b is ignored for unary operations.
func (op OpCode) Apply(a, b uint32) uint32 {
	fa, fb := math.Float32frombits(a), math.Float32frombits(b)
	f := func(v float32) uint32 { return math.Float32bits(v) }
	switch op.Name {
	case "fadd":
		return f(fa + fb)
	case "fsub":
		return f(fa - fb)
	case "fmin":
		return f(min(fa, fb))
	case "fmax":
		return f(max(fa, fb))
	case "fminabs":
		return f(min(abs32(fa), abs32(fb)))
	case "fmaxabs":
		return f(max(abs32(fa), abs32(fb)))
	case "ftoi":
		if math.IsNaN(float64(fa)) || fa >= math.MaxInt32 || fa < math.MinInt32 {
			return 0
		}
		return uint32(int32(fa)) //nolint:gosec // reinterpretation
	case "itof":
		return f(float32(int32(a))) //nolint:gosec // reinterpretation
	case "add":
		return a + b
	case "sub":
		return a - b
	case "shr":
		return a >> (b & 31)
	case "asr":
		return uint32(int32(a) >> (b & 31)) //nolint:gosec // reinterpretation
	case "ror":
		return bits.RotateLeft32(a, -int(b&31))
	case "shl":
		return a << (b & 31)
	case "min":
		return uint32(min(int32(a), int32(b))) //nolint:gosec // reinterpretation
	case "max":
		return uint32(max(int32(a), int32(b))) //nolint:gosec // reinterpretation
	case "and":
		return a & b
	case "or":
		return a | b
	case "xor":
		return a ^ b
	case "not":
		return ^a
	case "clz":
		return uint32(bits.LeadingZeros32(a)) //nolint:gosec // 0..32
	case "fmul":
		return f(fa * fb)
	case "mul24":
		return (a & 0xFFFFFF) * (b & 0xFFFFFF)
	case "v8adds":
		return perByte(a, b, func(x, y uint32) uint32 { return min(x+y, 255) })
	case "v8subs":
		return perByte(a, b, func(x, y uint32) uint32 {
			if y > x {
				return 0
			}
			return x - y
		})
	case "v8muld":
		return perByte(a, b, func(x, y uint32) uint32 { return (x*y + 127) / 255 })
	case "v8min":
		return perByte(a, b, func(x, y uint32) uint32 { return min(x, y) })
	case "v8max":
		return perByte(a, b, func(x, y uint32) uint32 { return max(x, y) })
	}
	return 0
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func perByte(a, b uint32, fn func(x, y uint32) uint32) uint32 {
	var out uint32
	for shift := 0; shift < 32; shift += 8 {
		x := (a >> shift) & 0xFF
		y := (b >> shift) & 0xFF
		out |= (fn(x, y) & 0xFF) << shift
	}
	return out
}

func (op OpCode) String() string { return op.Name }

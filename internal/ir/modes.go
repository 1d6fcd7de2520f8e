package ir

import (
	"math"
	"strings"
)

// PackMode is the conversion the ALU applies when writing its result.
type PackMode uint8

const (
	PackNop PackMode = iota
	// Pack32Saturate clamps the result to the signed 32-bit range.
	Pack32Saturate
	PackIntToShortTruncate
	PackIntToCharTruncate
	PackIntToSignedShortSaturate
	PackIntToUnsignedCharSaturate
	PackFloatToHalfTruncate
)

func (p PackMode) String() string {
	switch p {
	case PackNop:
		return ""
	case Pack32Saturate:
		return "32sat"
	case PackIntToShortTruncate:
		return "16a"
	case PackIntToCharTruncate:
		return "8a"
	case PackIntToSignedShortSaturate:
		return "16asat"
	case PackIntToUnsignedCharSaturate:
		return "8asat"
	case PackFloatToHalfTruncate:
		return "16af"
	}
	return "pack?"
}

// Apply packs a 32-bit lane value. The result is zero-extended to 32 bits.
func (p PackMode) Apply(v uint32) uint32 {
	switch p {
	case PackIntToShortTruncate:
		return v & 0xFFFF
	case PackIntToCharTruncate:
		return v & 0xFF
	case PackIntToSignedShortSaturate:
		return uint32(uint16(int16(clamp(int64(int32(v)), math.MinInt16, math.MaxInt16)))) //nolint:gosec // clamped
	case PackIntToUnsignedCharSaturate:
		return uint32(clamp(int64(int32(v)), 0, math.MaxUint8)) //nolint:gosec // clamped
	case PackFloatToHalfTruncate:
		return uint32(Float32ToHalf(math.Float32frombits(v)))
	}
	return v
}

func clamp(v, lo, hi int64) int64 {
	return min(max(v, lo), hi)
}

// UnpackMode is the conversion applied to an operand read from register
// file A (or an accumulator).
type UnpackMode uint8

const (
	UnpackNop UnpackMode = iota
	UnpackShortToIntSext
	UnpackHalfToFloat
	UnpackCharToIntZext
)

func (u UnpackMode) String() string {
	switch u {
	case UnpackNop:
		return ""
	case UnpackShortToIntSext:
		return "16a"
	case UnpackHalfToFloat:
		return "16af"
	case UnpackCharToIntZext:
		return "8a"
	}
	return "unpack?"
}

// Apply unpacks a 32-bit lane value.
func (u UnpackMode) Apply(v uint32) uint32 {
	switch u {
	case UnpackShortToIntSext:
		return uint32(int32(int16(v))) //nolint:gosec // reinterpretation
	case UnpackHalfToFloat:
		return math.Float32bits(HalfToFloat32(uint16(v))) //nolint:gosec // low half
	case UnpackCharToIntZext:
		return v & 0xFF
	}
	return v
}

// ConditionCode predicates the write of an instruction on the lane flags.
type ConditionCode uint8

const (
	CondAlways ConditionCode = iota
	CondNever
	CondZeroSet
	CondZeroClear
	CondNegativeSet
	CondNegativeClear
	CondCarrySet
	CondCarryClear
)

// Invert returns the condition that holds exactly when c does not.
func (c ConditionCode) Invert() ConditionCode {
	switch c {
	case CondAlways:
		return CondNever
	case CondNever:
		return CondAlways
	case CondZeroSet:
		return CondZeroClear
	case CondZeroClear:
		return CondZeroSet
	case CondNegativeSet:
		return CondNegativeClear
	case CondNegativeClear:
		return CondNegativeSet
	case CondCarrySet:
		return CondCarryClear
	case CondCarryClear:
		return CondCarrySet
	}
	return c
}

// Holds evaluates c against a single lane's flags.
func (c ConditionCode) Holds(zero, negative, carry bool) bool {
	switch c {
	case CondAlways:
		return true
	case CondZeroSet:
		return zero
	case CondZeroClear:
		return !zero
	case CondNegativeSet:
		return negative
	case CondNegativeClear:
		return !negative
	case CondCarrySet:
		return carry
	case CondCarryClear:
		return !carry
	}
	return false
}

func (c ConditionCode) String() string {
	switch c {
	case CondAlways:
		return ""
	case CondNever:
		return "never"
	case CondZeroSet:
		return "ifz"
	case CondZeroClear:
		return "ifzc"
	case CondNegativeSet:
		return "ifn"
	case CondNegativeClear:
		return "ifnc"
	case CondCarrySet:
		return "ifc"
	case CondCarryClear:
		return "ifcc"
	}
	return "cond?"
}

// Decorations are extra facts attached to an instruction.
type Decorations uint8

const (
	DecoNone Decorations = 0
	// DecoUnsignedResult marks results that must be treated as unsigned.
	DecoUnsignedResult Decorations = 1 << iota
	// DecoVolatile forbids removing or reordering the instruction.
	DecoVolatile
	// DecoElementInsertion marks the conditional move of a lane insertion.
	DecoElementInsertion
)

func (d Decorations) Has(f Decorations) bool { return d&f == f }

func (d Decorations) String() string {
	var parts []string
	if d.Has(DecoUnsignedResult) {
		parts = append(parts, "unsigned")
	}
	if d.Has(DecoVolatile) {
		parts = append(parts, "volatile")
	}
	if d.Has(DecoElementInsertion) {
		parts = append(parts, "element_insertion")
	}
	return strings.Join(parts, ",")
}

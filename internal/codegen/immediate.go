package codegen

import "math"

// floatImmediates are the float values of small immediates 32-47.
var floatImmediates = [16]float32{
	1, 2, 4, 8, 16, 32, 64, 128,
	1.0 / 256, 1.0 / 128, 1.0 / 64, 1.0 / 32, 1.0 / 16, 1.0 / 8, 1.0 / 4, 1.0 / 2,
}

// SmallImmediate returns the encoding of a 32-bit value as a small
// immediate: integers -16..15 and the powers of two 2^-8..2^7.
func SmallImmediate(bits uint32) (uint8, bool) {
	v := int32(bits) //nolint:gosec // reinterpretation
	switch {
	case v >= 0 && v <= 15:
		return uint8(v), true
	case v >= -16 && v < 0:
		return uint8(32 + v), true //nolint:gosec // 16..31
	}
	for i, f := range floatImmediates {
		if math.Float32bits(f) == bits {
			return uint8(32 + i), true //nolint:gosec // 32..47
		}
	}
	return 0, false
}

// SmallImmediateValue decodes a small immediate.
func SmallImmediateValue(code uint8) (uint32, bool) {
	switch {
	case code <= 15:
		return uint32(code), true
	case code <= 31:
		return uint32(int32(code) - 32), true //nolint:gosec // reinterpretation
	case code <= 47:
		return math.Float32bits(floatImmediates[code-32]), true
	}
	return 0, false
}

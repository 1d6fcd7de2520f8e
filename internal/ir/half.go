package ir

import "math"

// Float32ToHalf converts to IEEE-754 binary16, truncating extra mantissa bits.
func Float32ToHalf(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int((b >> 23) & 0xFF)
	mant := b & 0x7FFFFF

	switch {
	case exp == 0xFF:
		if mant != 0 {
			return sign | 0x7E00
		}
		return sign | 0x7C00
	case exp-127 > 15:
		return sign | 0x7C00
	case exp-127 >= -14:
		return sign | uint16(exp-127+15)<<10 | uint16(mant>>13) //nolint:gosec // ranges checked
	case exp-127 >= -24:
		// subnormal half
		mant |= 0x800000
		shift := uint(-14-(exp-127)) + 13
		return sign | uint16(mant>>shift) //nolint:gosec // fits 10 bits
	}
	return sign
}

// HalfToFloat32 converts an IEEE-754 binary16 value to float32.
func HalfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1F
	mant := uint32(h & 0x3FF)

	switch {
	case exp == 0x1F:
		return math.Float32frombits(sign | 0x7F800000 | mant<<13)
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// normalize the subnormal
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3FF
		return math.Float32frombits(sign | e<<23 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}

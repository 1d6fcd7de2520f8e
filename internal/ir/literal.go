package ir

import (
	"fmt"
	"math"
)

// LiteralKind selects how the bit pattern of a Literal is interpreted.
type LiteralKind uint8

const (
	// LitInt is a two's complement integer.
	LitInt LiteralKind = iota
	// LitFloat is an IEEE-754 single precision value.
	LitFloat
	// LitBool is a boolean, stored as 0 or 1.
	LitBool
)

// Literal is an immediate constant. The machine is 32 bits wide, wider
// constants are truncated on construction.
type Literal struct {
	Kind LiteralKind
	Bits uint32
}

// IntLiteral builds an integer literal from its (possibly negative) value.
func IntLiteral(v int64) Literal {
	return Literal{Kind: LitInt, Bits: uint32(uint64(v) & 0xFFFFFFFF)}
}

// UintLiteral builds an integer literal from an unsigned bit pattern.
func UintLiteral(v uint32) Literal {
	return Literal{Kind: LitInt, Bits: v}
}

// FloatLiteral builds a float literal.
func FloatLiteral(f float32) Literal {
	return Literal{Kind: LitFloat, Bits: math.Float32bits(f)}
}

// BoolLiteral builds a boolean literal.
func BoolLiteral(b bool) Literal {
	if b {
		return Literal{Kind: LitBool, Bits: 1}
	}
	return Literal{Kind: LitBool}
}

func (l Literal) SignedInt() int32    { return int32(l.Bits) } //nolint:gosec // reinterpretation
func (l Literal) UnsignedInt() uint32 { return l.Bits }
func (l Literal) Float() float32      { return math.Float32frombits(l.Bits) }
func (l Literal) IsTrue() bool        { return l.Bits != 0 }

// ZeroExtend interprets the low bits of the literal as an unsigned value of
// the given width.
func (l Literal) ZeroExtend(bits int) int64 {
	if bits <= 0 || bits >= 32 {
		return int64(l.Bits)
	}
	return int64(l.Bits & (1<<bits - 1))
}

// SignExtend interprets the low bits of the literal as a signed value of the
// given width.
func (l Literal) SignExtend(bits int) int64 {
	if bits <= 0 || bits >= 32 {
		return int64(l.SignedInt())
	}
	shift := 32 - bits
	return int64(int32(l.Bits<<shift) >> shift) //nolint:gosec // reinterpretation
}

func (l Literal) String() string {
	switch l.Kind {
	case LitFloat:
		return fmt.Sprintf("%g", l.Float())
	case LitBool:
		if l.IsTrue() {
			return "true"
		}
		return "false"
	}
	if l.SignedInt() < 0 && l.SignedInt() > -65536 {
		return fmt.Sprintf("%d", l.SignedInt())
	}
	if l.Bits > 0xFFFF {
		return fmt.Sprintf("0x%x", l.Bits)
	}
	return fmt.Sprintf("%d", l.Bits)
}

package ir

import (
	"fmt"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	// ValueNone is the absent value, e.g. the output of a store.
	ValueNone ValueKind = iota
	ValueLiteral
	ValueLocal
	ValueRegister
	// ValueUndefined is a don't-care value.
	ValueUndefined
	// ValueZeroInit is an all-zero aggregate or vector.
	ValueZeroInit
	// ValueContainer is a constant vector or array given per element.
	ValueContainer
)

// Value is an operand of an instruction. Values are immutable once built;
// the Elems slice of a container is never modified in place.
type Value struct {
	Kind  ValueKind
	Type  DataType
	Lit   Literal
	Local LocalID
	Reg   Register
	Elems []Value
}

var (
	// NoValue is the absent operand.
	NoValue = Value{Kind: ValueNone, Local: NoLocalID, Type: TypeVoid}

	IntZero   = Lit(IntLiteral(0), TypeInt32)
	IntOne    = Lit(IntLiteral(1), TypeInt32)
	FloatOne  = Lit(FloatLiteral(1), TypeFloat)
	BoolTrue  = Lit(BoolLiteral(true), TypeBool)
	BoolFalse = Lit(BoolLiteral(false), TypeBool)
	Undef     = Value{Kind: ValueUndefined, Local: NoLocalID, Type: TypeInt32}
	// NopValue is the hardware nop register; writes are discarded.
	NopValue = RegValue(RegNop, TypeInt32)
	// ElementNumber reads the lane index in every lane.
	ElementNumber = RegValue(RegElementNumber, TypeInt32.MustVector(NativeVectorWidth))
)

// Lit wraps a literal.
func Lit(l Literal, t DataType) Value {
	return Value{Kind: ValueLiteral, Type: t, Lit: l, Local: NoLocalID}
}

// IntValue is a shorthand for an integer literal of type t.
func IntValue(v int64, t DataType) Value {
	return Lit(IntLiteral(v), t)
}

// LocalValue references a local of the owning method.
func LocalValue(id LocalID, t DataType) Value {
	return Value{Kind: ValueLocal, Type: t, Local: id}
}

// RegValue references a physical register.
func RegValue(r Register, t DataType) Value {
	return Value{Kind: ValueRegister, Type: t, Reg: r, Local: NoLocalID}
}

// UndefinedOf returns an undefined value of type t.
func UndefinedOf(t DataType) Value {
	return Value{Kind: ValueUndefined, Type: t, Local: NoLocalID}
}

// ZeroInitOf returns the zero initializer of type t.
func ZeroInitOf(t DataType) Value {
	return Value{Kind: ValueZeroInit, Type: t, Local: NoLocalID}
}

// Container returns a constant vector or array.
func Container(t DataType, elems ...Value) Value {
	return Value{Kind: ValueContainer, Type: t, Elems: elems, Local: NoLocalID}
}

func (v Value) IsNone() bool      { return v.Kind == ValueNone }
func (v Value) IsLiteral() bool   { return v.Kind == ValueLiteral }
func (v Value) IsLocal() bool     { return v.Kind == ValueLocal }
func (v Value) IsRegister() bool  { return v.Kind == ValueRegister }
func (v Value) IsUndefined() bool { return v.Kind == ValueUndefined }
func (v Value) IsZeroInit() bool  { return v.Kind == ValueZeroInit }
func (v Value) IsContainer() bool { return v.Kind == ValueContainer }

func (v Value) HasLocal(id LocalID) bool {
	return v.Kind == ValueLocal && v.Local == id
}

// HasRegisterIn reports whether v is a register of one of the given files.
func (v Value) HasRegisterIn(files RegisterFile) bool {
	return v.Kind == ValueRegister && v.Reg.File&files != 0
}

// LiteralValue returns the constant held by v. Zero initializers and
// containers whose elements are all the same literal count as constants.
func (v Value) LiteralValue() (Literal, bool) {
	switch v.Kind {
	case ValueLiteral:
		return v.Lit, true
	case ValueZeroInit:
		return IntLiteral(0), true
	case ValueContainer:
		if len(v.Elems) == 0 {
			return Literal{}, false
		}
		first, ok := v.Elems[0].LiteralValue()
		if !ok {
			return Literal{}, false
		}
		for _, e := range v.Elems[1:] {
			l, ok := e.LiteralValue()
			if !ok || l.Bits != first.Bits {
				return Literal{}, false
			}
		}
		return first, true
	}
	return Literal{}, false
}

// HasLiteral reports whether v is the given constant.
func (v Value) HasLiteral(l Literal) bool {
	got, ok := v.LiteralValue()
	return ok && got.Bits == l.Bits
}

// WithType returns v viewed as type t.
func (v Value) WithType(t DataType) Value {
	v.Type = t
	return v
}

// Equal compares two values structurally, including their types.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || !v.Type.Equal(o.Type) {
		return false
	}
	switch v.Kind {
	case ValueLiteral:
		return v.Lit == o.Lit
	case ValueLocal:
		return v.Local == o.Local
	case ValueRegister:
		return v.Reg == o.Reg
	case ValueContainer:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
	}
	return true
}

// SameStorage reports whether v and o denote the same location or constant,
// ignoring the type they are viewed with.
func (v Value) SameStorage(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueLocal:
		return v.Local == o.Local
	case ValueRegister:
		return v.Reg == o.Reg
	case ValueLiteral:
		return v.Lit.Bits == o.Lit.Bits
	}
	return v.Equal(o)
}

// String renders v without resolving local names; Method.FormatValue gives
// the readable form.
func (v Value) String() string {
	return v.format(nil)
}

func (v Value) format(m *Method) string {
	switch v.Kind {
	case ValueNone:
		return "-"
	case ValueLiteral:
		return v.Type.String() + " " + v.Lit.String()
	case ValueLocal:
		if m != nil && int(v.Local) < len(m.Locals) && v.Local >= 0 {
			return m.Locals[v.Local].Name
		}
		return fmt.Sprintf("%%L%d", v.Local)
	case ValueRegister:
		return v.Reg.String()
	case ValueUndefined:
		return v.Type.String() + " undef"
	case ValueZeroInit:
		return v.Type.String() + " zeroinitializer"
	case ValueContainer:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			if e.Kind == ValueLiteral {
				parts[i] = e.Lit.String()
			} else {
				parts[i] = e.format(m)
			}
		}
		return v.Type.String() + " [" + strings.Join(parts, ", ") + "]"
	}
	return "?"
}

package ir

import (
	"fmt"
	"strings"

	"fortio.org/safecast"
)

// TypeKind enumerates the shapes a DataType can take.
type TypeKind uint8

const (
	KindVoid TypeKind = iota
	KindLabel
	KindInt
	KindFloat
	KindPointer
	KindArray
	KindStruct
)

func (k TypeKind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindLabel:
		return "label"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindPointer:
		return "pointer"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("TypeKind(%d)", k)
	}
}

// Hardware limits of a single vector register.
const (
	NativeVectorWidth  = 16
	VectorRegisterBits = 512
)

// AddressSpace of the memory a pointer refers to.
type AddressSpace uint8

const (
	AddrPrivate AddressSpace = iota
	AddrGlobal
	AddrConstant
	AddrLocal
)

// ComplexType holds the extra shape of pointer, array and struct types.
type ComplexType struct {
	Elem   DataType // pointee or array element
	Len    int      // array length
	Space  AddressSpace
	Name   string     // struct name
	Fields []DataType // struct members
	Packed bool
}

// DataType describes the type of a value. Scalars and vectors are fully
// described by Kind, Bits and Width; pointers, arrays and structs carry their
// shape in a shared ComplexType.
type DataType struct {
	Kind  TypeKind
	Bits  uint8 // scalar bit width; 1 for booleans
	Width uint8 // number of vector lanes, 1 for scalars
	cplx  *ComplexType
}

var (
	TypeVoid   = DataType{Kind: KindVoid, Width: 1}
	TypeLabel  = DataType{Kind: KindLabel, Width: 1}
	TypeBool   = DataType{Kind: KindInt, Bits: 1, Width: 1}
	TypeInt8   = DataType{Kind: KindInt, Bits: 8, Width: 1}
	TypeInt16  = DataType{Kind: KindInt, Bits: 16, Width: 1}
	TypeInt32  = DataType{Kind: KindInt, Bits: 32, Width: 1}
	TypeInt64  = DataType{Kind: KindInt, Bits: 64, Width: 1}
	TypeHalf   = DataType{Kind: KindFloat, Bits: 16, Width: 1}
	TypeFloat  = DataType{Kind: KindFloat, Bits: 32, Width: 1}
	TypeDouble = DataType{Kind: KindFloat, Bits: 64, Width: 1}
)

// IntType returns the scalar integer type of the given width.
func IntType(bits int) DataType {
	return DataType{Kind: KindInt, Bits: uint8(bits), Width: 1} //nolint:gosec // widths are 1..64
}

// PointerTo returns a pointer to elem in the given address space.
func PointerTo(elem DataType, space AddressSpace) DataType {
	return DataType{Kind: KindPointer, Bits: 32, Width: 1, cplx: &ComplexType{Elem: elem, Space: space}}
}

// ArrayOf returns an array of n elements.
func ArrayOf(elem DataType, n int) DataType {
	return DataType{Kind: KindArray, Width: 1, cplx: &ComplexType{Elem: elem, Len: n}}
}

// StructOf returns a (possibly packed) struct type.
func StructOf(name string, packed bool, fields ...DataType) DataType {
	return DataType{Kind: KindStruct, Width: 1, cplx: &ComplexType{Name: name, Fields: fields, Packed: packed}}
}

func (t DataType) ScalarBitCount() int { return int(t.Bits) }
func (t DataType) VectorWidth() int    { return int(t.Width) }

func (t DataType) IsVectorType() bool { return t.Width > 1 }

// IsScalarType reports whether t is a single-lane integer, float or pointer.
func (t DataType) IsScalarType() bool {
	return t.Width == 1 && (t.Kind == KindInt || t.Kind == KindFloat || t.Kind == KindPointer)
}

// IsSimpleType reports whether t is an integer or float scalar or vector.
func (t DataType) IsSimpleType() bool {
	return t.Kind == KindInt || t.Kind == KindFloat
}

func (t DataType) IsFloatingType() bool { return t.Kind == KindFloat }
func (t DataType) IsPointerType() bool  { return t.Kind == KindPointer }
func (t DataType) IsLabelType() bool    { return t.Kind == KindLabel }
func (t DataType) IsVoidType() bool     { return t.Kind == KindVoid }

// ElementType returns the type of a single element: the lane type for vectors,
// the element for arrays and the pointee for pointers.
func (t DataType) ElementType() DataType {
	switch t.Kind {
	case KindPointer, KindArray:
		return t.cplx.Elem
	}
	e := t
	e.Width = 1
	return e
}

// Pointee is the element type of a pointer. It panics for non-pointers.
func (t DataType) Pointee() DataType {
	if t.Kind != KindPointer {
		panic(fmt.Sprintf("ir: %s is not a pointer", t))
	}
	return t.cplx.Elem
}

// Complex exposes the aggregate shape, nil for scalars and vectors.
func (t DataType) Complex() *ComplexType { return t.cplx }

// ToVectorType returns t with the given number of lanes.
func (t DataType) ToVectorType(width int) (DataType, error) {
	if !t.IsSimpleType() && t.Kind != KindPointer {
		return DataType{}, fmt.Errorf("cannot vectorize %s", t)
	}
	if width < 1 || width > NativeVectorWidth || width*int(t.Bits) > VectorRegisterBits {
		return DataType{}, fmt.Errorf("vector of %d x %d bits exceeds the vector register", width, t.Bits)
	}
	w, err := safecast.Convert[uint8](width)
	if err != nil {
		return DataType{}, err
	}
	v := t
	v.Width = w
	return v, nil
}

// MustVector is ToVectorType for widths known to be valid.
func (t DataType) MustVector(width int) DataType {
	v, err := t.ToVectorType(width)
	if err != nil {
		panic(err)
	}
	return v
}

// ScalarWidthMask is the mask selecting the bits of a single element.
func (t DataType) ScalarWidthMask() uint32 {
	if t.Bits >= 32 {
		return 0xFFFFFFFF
	}
	return uint32(1)<<t.Bits - 1
}

// Equal compares types structurally.
func (t DataType) Equal(o DataType) bool {
	if t.Kind != o.Kind || t.Bits != o.Bits || t.Width != o.Width {
		return false
	}
	if t.cplx == o.cplx {
		return true
	}
	if t.cplx == nil || o.cplx == nil {
		return false
	}
	a, b := t.cplx, o.cplx
	if a.Len != b.Len || a.Space != b.Space || a.Name != b.Name || a.Packed != b.Packed || len(a.Fields) != len(b.Fields) {
		return false
	}
	if (t.Kind == KindPointer || t.Kind == KindArray) && !a.Elem.Equal(b.Elem) {
		return false
	}
	for i := range a.Fields {
		if !a.Fields[i].Equal(b.Fields[i]) {
			return false
		}
	}
	return true
}

// ByteSize is the number of bytes a value of t occupies in memory.
func (t DataType) ByteSize() int {
	switch t.Kind {
	case KindVoid, KindLabel:
		return 0
	case KindPointer:
		return 4
	case KindArray:
		return t.cplx.Len * t.cplx.Elem.ByteSize()
	case KindStruct:
		size := 0
		for _, f := range t.cplx.Fields {
			if !t.cplx.Packed {
				size = alignUp(size, f.Alignment())
			}
			size += f.ByteSize()
		}
		if !t.cplx.Packed {
			size = alignUp(size, t.Alignment())
		}
		return size
	}
	elem := (int(t.Bits) + 7) / 8
	width := int(t.Width)
	if width == 3 {
		width = 4
	}
	return elem * width
}

// Alignment is the natural alignment of t in bytes.
func (t DataType) Alignment() int {
	switch t.Kind {
	case KindPointer:
		return 4
	case KindArray:
		return t.cplx.Elem.Alignment()
	case KindStruct:
		if t.cplx.Packed {
			return 1
		}
		align := 1
		for _, f := range t.cplx.Fields {
			align = max(align, f.Alignment())
		}
		return align
	case KindVoid, KindLabel:
		return 1
	}
	return max(1, t.ByteSize())
}

// FieldOffset is the byte offset of struct member i.
func (t DataType) FieldOffset(i int) int {
	if t.Kind != KindStruct {
		panic(fmt.Sprintf("ir: %s is not a struct", t))
	}
	off := 0
	for j, f := range t.cplx.Fields {
		if !t.cplx.Packed {
			off = alignUp(off, f.Alignment())
		}
		if j == i {
			return off
		}
		off += f.ByteSize()
	}
	panic(fmt.Sprintf("ir: struct %s has no member %d", t, i))
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

func (t DataType) String() string {
	var base string
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindLabel:
		return "label"
	case KindInt:
		base = fmt.Sprintf("i%d", t.Bits)
	case KindFloat:
		switch t.Bits {
		case 16:
			base = "half"
		case 64:
			base = "double"
		default:
			base = "float"
		}
	case KindPointer:
		base = t.cplx.Elem.String() + "*"
		if t.cplx.Space != AddrPrivate {
			base = fmt.Sprintf("%s addrspace(%d)*", t.cplx.Elem, t.cplx.Space)
		}
	case KindArray:
		return fmt.Sprintf("[%d x %s]", t.cplx.Len, t.cplx.Elem)
	case KindStruct:
		if t.cplx.Name != "" {
			return "%" + t.cplx.Name
		}
		parts := make([]string, len(t.cplx.Fields))
		for i, f := range t.cplx.Fields {
			parts[i] = f.String()
		}
		if t.cplx.Packed {
			return "<{" + strings.Join(parts, ", ") + "}>"
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	if t.Width > 1 {
		return fmt.Sprintf("<%d x %s>", t.Width, base)
	}
	return base
}

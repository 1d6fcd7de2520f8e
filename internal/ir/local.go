package ir

import "strings"

// LocalID indexes Method.Locals.
type LocalID int32

// NoLocalID marks the absence of a local.
const NoLocalID LocalID = -1

// AnyOffset is the Reference offset used when the offset into the referenced
// local is not a compile-time constant.
const AnyOffset = -1

// LocalKind distinguishes the storage classes of a local.
type LocalKind uint8

const (
	// LocalPlain is an SSA-like temporary.
	LocalPlain LocalKind = iota
	// LocalParam is a method parameter.
	LocalParam
	// LocalStack is a stack allocation; its type is a pointer to the
	// allocated type.
	LocalStack
	// LocalGlobal refers to a module-level global by name.
	LocalGlobal
	// LocalLabel names a basic block.
	LocalLabel
)

func (k LocalKind) String() string {
	switch k {
	case LocalParam:
		return "param"
	case LocalStack:
		return "stack"
	case LocalGlobal:
		return "global"
	case LocalLabel:
		return "label"
	default:
		return "local"
	}
}

// ParamDecorations carry the frontend attributes of a parameter.
type ParamDecorations uint8

const (
	ParamZeroExtend ParamDecorations = 1 << iota
	ParamSignExtend
	ParamVolatile
	ParamReadOnly
)

func (d ParamDecorations) Has(f ParamDecorations) bool { return d&f == f }

func (d ParamDecorations) String() string {
	var parts []string
	if d.Has(ParamZeroExtend) {
		parts = append(parts, "zext")
	}
	if d.Has(ParamSignExtend) {
		parts = append(parts, "sext")
	}
	if d.Has(ParamVolatile) {
		parts = append(parts, "volatile")
	}
	if d.Has(ParamReadOnly) {
		parts = append(parts, "readonly")
	}
	return strings.Join(parts, " ")
}

// Reference is the weak alias relation of a local: the local is derived from
// Local at byte Offset (AnyOffset if unknown).
type Reference struct {
	Local  LocalID
	Offset int
}

// Local is a named storage location owned by a Method.
type Local struct {
	ID    LocalID
	Name  string
	Type  DataType
	Kind  LocalKind
	Param ParamDecorations
	// Align is the requested alignment of a stack allocation.
	Align int
	// Global is the module global a LocalGlobal stands for.
	Global string

	ref Reference
}

// Reference returns the alias relation of the local. The zero relation has
// Local == NoLocalID.
func (l *Local) Reference() Reference { return l.ref }

// AllocatedType is the type a stack allocation reserves space for.
func (l *Local) AllocatedType() DataType {
	if l.Kind != LocalStack {
		return TypeVoid
	}
	return l.Type.Pointee()
}

func (l *Local) IsParam() bool { return l.Kind == LocalParam }
func (l *Local) IsStack() bool { return l.Kind == LocalStack }
func (l *Local) IsLabel() bool { return l.Kind == LocalLabel }

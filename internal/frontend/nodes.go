package frontend

import (
	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/lower"
)

// CopyMode selects what a Copy node does.
type CopyMode uint8

const (
	CopyMove CopyMode = iota
	CopyBitcast
	CopyLoad  // Dst = *Src
	CopyStore // *Dst = Src
)

// Copy moves, reinterprets, loads or stores a value.
type Copy struct {
	Dst, Src ir.Value
	Mode     CopyMode
	Deco     ir.Decorations
}

func (c *Copy) Locals() []ir.LocalID { return collect(c.Dst, c.Src) }

func (c *Copy) Map(m *ir.Method, mc *MapContext) (bool, error) {
	switch c.Mode {
	case CopyBitcast:
		mc.debug("Generating bit-cast from %s into %s", m.FormatValue(c.Src), m.FormatValue(c.Dst))
		if _, err := lower.InsertBitcast(m.AppendToEnd(), m, c.Src, c.Dst, c.Deco); err != nil {
			return false, err
		}
	case CopyLoad:
		mc.debug("Generating reading from %s into %s", m.FormatValue(c.Src), m.FormatValue(c.Dst))
		m.Append(ir.NewRead(c.Dst, c.Src).AddDecorations(c.Deco))
	case CopyStore:
		mc.debug("Generating writing of %s into %s", m.FormatValue(c.Src), m.FormatValue(c.Dst))
		m.Append(ir.NewWrite(c.Dst, c.Src).AddDecorations(c.Deco))
	default:
		mc.debug("Generating copy of %s into %s", m.FormatValue(c.Src), m.FormatValue(c.Dst))
		m.Append(ir.NewMove(c.Dst, c.Src).AddDecorations(c.Deco))
	}
	return true, nil
}

// Operator applies the unary or binary operation Op. Operations the
// hardware has an opcode for are emitted directly, the others are left as
// intrinsic operations for lowering.
type Operator struct {
	Op   string
	Dst  ir.Value
	Args []ir.Value
	Deco ir.Decorations
}

// UnaryOperator is a shorthand for a one-operand Operator.
func UnaryOperator(op string, dst, arg ir.Value) *Operator {
	return &Operator{Op: op, Dst: dst, Args: []ir.Value{arg}}
}

// BinaryOperator is a shorthand for a two-operand Operator.
func BinaryOperator(op string, dst, left, right ir.Value) *Operator {
	return &Operator{Op: op, Dst: dst, Args: []ir.Value{left, right}}
}

func (o *Operator) Locals() []ir.LocalID { return collect(append([]ir.Value{o.Dst}, o.Args...)...) }

func (o *Operator) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating operation %s with %d operands into %s", o.Op, len(o.Args), m.FormatValue(o.Dst))
	if len(o.Args) == 0 || len(o.Args) > 2 {
		return false, diag.CodeErrorf(diag.ParseArity, o.Op, "Operations take one or two operands, got %d", len(o.Args))
	}
	if op := ir.FindOpCode(o.Op); !op.IsNop() {
		if int(op.Operands) != len(o.Args) {
			return false, diag.CodeErrorf(diag.ParseArity, o.Op, "Operation takes %d operands, got %d", op.Operands, len(o.Args))
		}
		m.Append(ir.NewOp(op, o.Dst, o.Args...).AddDecorations(o.Deco))
	} else {
		m.Append(ir.NewIntrinsic(o.Op, o.Dst, o.Args...).AddDecorations(o.Deco))
	}
	return true, nil
}

// IndexOf calculates the address of an element, like getelementptr.
type IndexOf struct {
	Dst       ir.Value
	Container ir.Value
	Indices   []ir.Value
}

func (x *IndexOf) Locals() []ir.LocalID {
	return collect(append([]ir.Value{x.Dst, x.Container}, x.Indices...)...)
}

func (x *IndexOf) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating calculating index of %s into %s", m.FormatValue(x.Container), m.FormatValue(x.Dst))
	_, err := lower.InsertCalculateIndices(m.AppendToEnd(), m, x.Container, x.Indices, x.Dst)
	return err == nil, err
}

// Comparison compares two values into a boolean.
type Comparison struct {
	Dst         ir.Value
	Pred        ir.Predicate
	Left, Right ir.Value
	Float       bool
	Deco        ir.Decorations
}

func (c *Comparison) Locals() []ir.LocalID { return collect(c.Dst, c.Left, c.Right) }

func (c *Comparison) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating comparison %s with %s and %s into %s", c.Pred, m.FormatValue(c.Left), m.FormatValue(c.Right), m.FormatValue(c.Dst))
	m.Append(ir.NewCompare(c.Pred, c.Dst, c.Left, c.Right, c.Float).AddDecorations(c.Deco))
	return true, nil
}

// ContainerInsertion writes Container with element Index replaced by Value
// into Dst.
type ContainerInsertion struct {
	Dst, Container, Value, Index ir.Value
}

func (c *ContainerInsertion) Locals() []ir.LocalID {
	return collect(c.Dst, c.Container, c.Value, c.Index)
}

func (c *ContainerInsertion) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating insertion of %s at %s into %s", m.FormatValue(c.Value), m.FormatValue(c.Index), m.FormatValue(c.Dst))
	if !c.Container.Type.IsVectorType() && !c.Index.HasLiteral(ir.IntLiteral(0)) {
		return false, diag.CodeErrorf(diag.NormUnimplementedContainer, m.FormatValue(c.Container),
			"Container insertion into arrays is not yet implemented")
	}
	dst := c.Dst.WithType(c.Container.Type)
	m.Append(ir.NewMove(dst, c.Container))
	_, err := lower.InsertVectorInsertion(m.AppendToEnd(), m, dst, c.Index, c.Value)
	return err == nil, err
}

// ContainerExtraction writes element Index of Container into Dst.
type ContainerExtraction struct {
	Dst, Container, Index ir.Value
}

func (c *ContainerExtraction) Locals() []ir.LocalID { return collect(c.Dst, c.Container, c.Index) }

func (c *ContainerExtraction) Map(m *ir.Method, mc *MapContext) (bool, error) {
	elem := c.Container.Type.ElementType()
	mc.debug("Generating extraction of %s at %s from %s", elem, m.FormatValue(c.Index), m.FormatValue(c.Container))
	if !c.Container.Type.IsVectorType() && !c.Index.HasLiteral(ir.IntLiteral(0)) {
		return false, diag.CodeErrorf(diag.NormUnimplementedContainer, m.FormatValue(c.Container),
			"Container extraction from arrays is not yet implemented")
	}
	_, err := lower.InsertVectorExtraction(m.AppendToEnd(), m, c.Container, c.Index, c.Dst.WithType(elem))
	return err == nil, err
}

// ValueReturn leaves the method. Value is NoValue for void returns.
type ValueReturn struct {
	Value ir.Value
}

func (r *ValueReturn) Locals() []ir.LocalID { return collect(r.Value) }

func (r *ValueReturn) Map(m *ir.Method, mc *MapContext) (bool, error) {
	if r.Value.IsNone() {
		mc.debug("Generating return nothing")
	} else {
		mc.debug("Generating return of %s", m.FormatValue(r.Value))
	}
	m.Append(ir.NewReturn(r.Value))
	return true, nil
}

// ShuffleVector mixes the lanes of First and Second as selected by Mask.
type ShuffleVector struct {
	Dst, First, Second, Mask ir.Value
}

func (s *ShuffleVector) Locals() []ir.LocalID { return collect(s.Dst, s.First, s.Second, s.Mask) }

func (s *ShuffleVector) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating operations mixing %s and %s into %s", m.FormatValue(s.First), m.FormatValue(s.Second), m.FormatValue(s.Dst))
	_, err := lower.InsertVectorShuffle(m.AppendToEnd(), m, s.Dst, s.First, s.Second, s.Mask)
	return err == nil, err
}

// Label opens a basic block.
type Label struct {
	Label ir.LocalID
}

func (l *Label) Locals() []ir.LocalID { return []ir.LocalID{l.Label} }

func (l *Label) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating label %s", m.Local(l.Label).Name)
	m.Append(ir.NewLabel(l.Label))
	return true, nil
}

// PhiNode selects a value by the block control came from.
type PhiNode struct {
	Dst      ir.Value
	Incoming []ir.PhiIncoming
}

func (p *PhiNode) Locals() []ir.LocalID {
	out := collect(p.Dst)
	for _, in := range p.Incoming {
		out = append(out, in.Label)
		out = append(out, collect(in.Value)...)
	}
	return out
}

func (p *PhiNode) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating Phi-Node with %d options into %s", len(p.Incoming), m.FormatValue(p.Dst))
	m.Append(ir.NewPhi(p.Dst, p.Incoming))
	return true, nil
}

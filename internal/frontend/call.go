package frontend

import (
	"strings"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/lower"
)

// CallSite calls a method or intrinsic. Dst is NoValue for calls whose
// result is unused.
type CallSite struct {
	Dst        ir.Value
	Name       string
	ReturnType ir.DataType
	Args       []ir.Value
	Deco       ir.Decorations
}

// NewCallSiteFor builds a call to a known method, checking the number of
// arguments against its parameters.
func NewCallSiteFor(dst ir.Value, callee *ir.Method, args []ir.Value) (*CallSite, error) {
	if len(callee.Params) != len(args) {
		return nil, diag.CodeErrorf(diag.ParseArity, callee.Name,
			"Invalid numbers of method arguments: Got %d, expected %d", len(args), len(callee.Params))
	}
	return &CallSite{Dst: dst, Name: callee.Name, ReturnType: callee.ReturnType, Args: args}, nil
}

func (c *CallSite) Locals() []ir.LocalID {
	return append(collect(c.Dst), collect(c.Args...)...)
}

func (c *CallSite) output() ir.Value {
	if c.Dst.IsNone() {
		return ir.RegValue(ir.RegNop, c.ReturnType)
	}
	return c.Dst
}

func (c *CallSite) arg(i int) (ir.Value, error) {
	if i >= len(c.Args) {
		return ir.NoValue, diag.CodeErrorf(diag.ParseArity, c.Name,
			"Invalid numbers of method arguments: Got %d, expected at least %d", len(c.Args), i+1)
	}
	return c.Args[i], nil
}

func (c *CallSite) Map(m *ir.Method, mc *MapContext) (bool, error) {
	name := c.Name
	switch {
	case strings.HasPrefix(name, "llvm.lifetime.start"), strings.HasPrefix(name, "llvm.lifetime.end"):
		return c.mapLifetime(m, mc)
	case strings.HasPrefix(name, "llvm.fmuladd"):
		mc.debug("Converting intrinsic method call '%s' to operations", name)
		if len(c.Args) != 3 {
			return false, c.arityError(3)
		}
		tmp := m.AddNewLocal(c.ReturnType, "fmuladd")
		m.Append(ir.NewOp(ir.OpFMul, tmp, c.Args[0], c.Args[1]))
		m.Append(ir.NewOp(ir.OpFAdd, c.output(), tmp, c.Args[2]))
		return true, nil
	case strings.HasPrefix(name, "llvm.memcpy"):
		// memcpy(dest, src, len, [align,] isvolatile)
		mc.debug("Intrinsifying llvm.memcpy function-call")
		if len(c.Args) < 3 {
			return false, c.arityError(3)
		}
		m.Append(ir.NewCopy(c.Args[0], c.Args[1], c.Args[2]))
		return true, nil
	case strings.HasPrefix(name, "llvm.memset"):
		return c.mapMemset(m, mc)
	case strings.HasPrefix(name, "llvm.bswap"):
		mc.debug("Intrinsifying llvm.bswap with manual byte-swapping")
		src, err := c.arg(0)
		if err != nil {
			return false, err
		}
		_, err = lower.InsertByteSwap(m.AppendToEnd(), m, src, c.output())
		return err == nil, err
	}

	switch base := lower.Demangle(name); {
	case strings.HasPrefix(base, "shuffle2"):
		if len(c.Args) != 3 {
			return false, c.arityError(3)
		}
		mc.debug("Intrinsifying OpenCL shuffle2 function with %s, %s and mask %s",
			m.FormatValue(c.Args[0]), m.FormatValue(c.Args[1]), m.FormatValue(c.Args[2]))
		_, err := lower.InsertVectorShuffle(m.AppendToEnd(), m, c.output(), c.Args[0], c.Args[1], c.Args[2])
		return err == nil, err
	case strings.HasPrefix(base, "mem_fence"), strings.HasPrefix(base, "read_mem_fence"), strings.HasPrefix(base, "write_mem_fence"):
		mc.debug("Intrinsifying '%s' with memory barrier", base)
		scope := ir.ScopeWorkGroup
		if len(c.Args) > 0 {
			if lit, ok := c.Args[0].LiteralValue(); ok {
				scope = ir.MemoryScope(lit.UnsignedInt())
			}
		}
		m.Append(ir.NewBarrier(scope, ir.SemanticsAcquireRelease))
		return true, nil
	}

	mc.debug("Generating immediate call to %s -> %s", name, c.ReturnType)
	m.Append(ir.NewCall(c.output(), name, c.Args...).AddDecorations(c.Deco))
	return true, nil
}

func (c *CallSite) arityError(want int) error {
	return diag.CodeErrorf(diag.ParseArity, c.Name,
		"Invalid numbers of method arguments: Got %d, expected %d", len(c.Args), want)
}

// mapLifetime handles llvm.lifetime.{start,end}(size, ptr). The pointer may
// be a bit-cast of the allocation or an index calculation at offset 0.
func (c *CallSite) mapLifetime(m *ir.Method, mc *MapContext) (bool, error) {
	if len(c.Args) != 2 {
		return false, c.arityError(2)
	}
	size, ptr := c.Args[0], c.Args[1]
	end := strings.HasPrefix(c.Name, "llvm.lifetime.end")

	alloc := resolveStackAllocation(m, ptr)
	if alloc == ir.NoLocalID {
		// a size of -1 means variable sized
		if lit, ok := size.LiteralValue(); ok && lit.SignedInt() > 0 {
			return false, diag.CodeErrorf(diag.NormUnresolvedLifetime, m.FormatValue(ptr),
				"Cannot start life-time of object not located on stack")
		}
		if mc.lifetime() == LifetimeFail {
			return false, diag.CodeErrorf(diag.NormUnresolvedLifetime, m.FormatValue(ptr),
				"Cannot resolve the stack allocation of a life-time intrinsic")
		}
		mc.warn(m, diag.NormUnresolvedLifetime, m.FormatValue(ptr), "Dropping life-time intrinsic on unresolved pointer")
		return false, nil
	}
	mc.debug("Converting life-time intrinsic to life-time instruction")
	m.Append(ir.NewLifetime(alloc, m.ValueOf(alloc), end))
	return true, nil
}

// resolveStackAllocation looks through a single move or an alias relation
// for the stack allocation ptr points into.
func resolveStackAllocation(m *ir.Method, ptr ir.Value) ir.LocalID {
	if !ptr.IsLocal() {
		return ir.NoLocalID
	}
	if m.Local(ptr.Local).IsStack() {
		return ptr.Local
	}
	if w := m.SingleWriter(ptr.Local); w != nil && w.Kind == ir.InstrMove && w.Move.Src.IsLocal() {
		if src := w.Move.Src.Local; m.Local(src).IsStack() {
			return src
		}
	}
	if ref := m.Local(ptr.Local).Reference(); ref.Local != ir.NoLocalID && ref.Offset == 0 && m.Local(ref.Local).IsStack() {
		return ref.Local
	}
	return ir.NoLocalID
}

// mapMemset handles memset(dest, val, len, [align,] isvolatile). A volatile
// fill through a parameter makes the parameter volatile.
func (c *CallSite) mapMemset(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Intrinsifying llvm.memset with DMA writes")
	if len(c.Args) < 3 {
		return false, c.arityError(4)
	}
	addr, fill, count := c.Args[0], c.Args[1], c.Args[2]
	if len(c.Args) >= 4 {
		isVolatile := c.Args[len(c.Args)-1]
		if lit, ok := isVolatile.LiteralValue(); ok && isVolatile.Type.ScalarBitCount() == 1 && lit.IsTrue() && addr.IsLocal() {
			if base := m.Local(m.Base(addr.Local)); base.IsParam() {
				base.Param |= ir.ParamVolatile
			}
		}
	}
	m.Append(ir.NewFill(addr, fill, count))
	return true, nil
}

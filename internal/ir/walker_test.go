package ir_test

import (
	"strings"
	"testing"

	"vc4c/internal/ir"
)

func newTestMethod() (*ir.Method, ir.Value, ir.Value) {
	m := ir.NewMethod("test", ir.TypeVoid)
	a := m.AddNewLocal(ir.TypeInt32, "a")
	b := m.AddNewLocal(ir.TypeInt32, "b")
	return m, a, b
}

func kinds(b *ir.Block) []ir.InstrKind {
	var out []ir.InstrKind
	for _, ins := range b.Instrs() {
		out = append(out, ins.Kind)
	}
	return out
}

func TestWalkerEmplaceInsertsBeforeCursor(t *testing.T) {
	m, a, b := newTestMethod()
	m.Append(ir.NewMove(a, ir.IntOne))
	m.Append(ir.NewReturn(ir.NoValue))

	// position on the return and insert before it
	it := m.Blocks[0].Last()
	it = it.Emplace(ir.NewOp(ir.OpAdd, b, a, a))
	if it.Get().Kind != ir.InstrOp {
		t.Fatalf("walker should point at inserted instruction, got %s", it.Get().Kind)
	}
	it = it.Next()
	if it.Get().Kind != ir.InstrReturn {
		t.Fatalf("expected return after inserted op, got %s", it.Get().Kind)
	}

	got := kinds(m.Blocks[0])
	want := []ir.InstrKind{ir.InstrLabel, ir.InstrMove, ir.InstrOp, ir.InstrReturn}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("instr %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWalkerEmitKeepsPosition(t *testing.T) {
	m, a, b := newTestMethod()
	it := m.AppendToEnd()
	it = it.Emit(ir.NewMove(a, ir.IntOne))
	it = it.Emit(ir.NewMove(b, ir.IntZero))
	if !it.AtEnd() {
		t.Fatal("Emit at the end should leave the walker at the end")
	}
	if n := m.Blocks[0].Len(); n != 3 {
		t.Fatalf("expected 3 instructions, got %d", n)
	}
}

func TestWalkerEraseInvalidatesCursor(t *testing.T) {
	m, a, b := newTestMethod()
	m.Append(ir.NewMove(a, ir.IntOne))
	m.Append(ir.NewMove(b, a))

	it := m.Blocks[0].Begin().Next()
	stale := it
	next := it.Erase()
	if next.Get().Kind != ir.InstrMove || !next.Get().Dst.Equal(b) {
		t.Fatalf("Erase should return walker at the following instruction")
	}
	if stale.IsValid() {
		t.Fatal("erased position must be reported invalid")
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("using a stale cursor must panic")
		}
		if !strings.Contains(r.(string), "stale cursor") {
			t.Fatalf("unexpected panic: %v", r)
		}
	}()
	stale.Get()
}

func TestWalkerPrevAndReplace(t *testing.T) {
	m, a, _ := newTestMethod()
	m.Append(ir.NewMove(a, ir.IntOne))
	it := m.Blocks[0].End()
	if !it.HasPrev() {
		t.Fatal("end walker of non-empty block has a previous instruction")
	}
	it = it.Prev()
	it.Replace(ir.NewMove(a, ir.IntZero))
	if !m.Blocks[0].Last().Get().Move.Src.Equal(ir.IntZero) {
		t.Fatal("Replace did not swap the instruction")
	}
	first := m.Blocks[0].Begin()
	if first.HasPrev() {
		t.Fatal("label has no predecessor in its block")
	}
}

func TestAppendLabelOpensBlock(t *testing.T) {
	m, a, _ := newTestMethod()
	next := m.FindOrCreateLocal(ir.TypeLabel, "%next")
	m.Append(ir.NewBranch(next, ir.CondAlways, ir.BoolTrue))
	m.Append(ir.NewLabel(next))
	m.Append(ir.NewMove(a, ir.IntOne))

	if len(m.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(m.Blocks))
	}
	if m.Blocks[1].Label() != next {
		t.Fatal("second block should be labelled %next")
	}
	if m.FindBlock(next) != m.Blocks[1] {
		t.Fatal("FindBlock did not find the new block")
	}

	// NextInMethod crosses the block boundary
	it := m.Blocks[0].Last()
	it = it.NextInMethod()
	if it.Block() != m.Blocks[1] || it.Get().Kind != ir.InstrLabel {
		t.Fatal("NextInMethod should continue at the next block's label")
	}
}

func TestReferenceAndBase(t *testing.T) {
	m := ir.NewMethod("refs", ir.TypeVoid)
	alloc := m.AddStackAllocation("%buf", ir.ArrayOf(ir.TypeInt32, 4), 4)
	cast := m.AddNewLocal(ir.PointerTo(ir.TypeInt8, ir.AddrPrivate), "cast")
	gep := m.AddNewLocal(ir.PointerTo(ir.TypeInt8, ir.AddrPrivate), "gep")

	m.SetReference(cast.Local, alloc, 0)
	m.SetReference(gep.Local, cast.Local, 4)

	if got := m.Base(gep.Local); got != alloc {
		t.Fatalf("Base = %d, want %d", got, alloc)
	}
	if ref := m.Local(gep.Local).Reference(); ref.Local != cast.Local || ref.Offset != 4 {
		t.Fatalf("unexpected reference %+v", ref)
	}
	// a cycle must not hang
	m.SetReference(alloc, gep.Local, 0)
	_ = m.Base(gep.Local)
}

func TestSingleWriter(t *testing.T) {
	m, a, b := newTestMethod()
	m.Append(ir.NewMove(a, ir.IntOne))
	m.Append(ir.NewMove(b, a))
	m.Append(ir.NewMove(b, ir.IntZero).WithCond(ir.CondZeroSet))

	if w := m.SingleWriter(a.Local); w == nil || !w.Move.Src.Equal(ir.IntOne) {
		t.Fatal("a has exactly one writer")
	}
	if w := m.SingleWriter(b.Local); w != nil {
		t.Fatal("b has two writers")
	}
	if r := m.Readers(a.Local); len(r) != 1 {
		t.Fatalf("a has one reader, got %d", len(r))
	}
}

func TestSplitBlockMovesTail(t *testing.T) {
	m, a, b := newTestMethod()
	m.Append(ir.NewMove(a, ir.IntOne))
	m.Append(ir.NewMove(b, a))
	m.Append(ir.NewReturn(ir.NoValue))
	tail := m.FindOrCreateLocal(ir.TypeLabel, "%tail")

	at := m.Blocks[0].Begin().Next().Next()
	nb := m.SplitBlock(at, tail)
	if len(m.Blocks) != 2 || m.Blocks[1] != nb || nb.Label() != tail {
		t.Fatalf("split block must follow the original")
	}
	if got := kinds(m.Blocks[0]); len(got) != 2 {
		t.Fatalf("original keeps label and first move, got %v", got)
	}
	if got := kinds(nb); len(got) != 3 || got[1] != ir.InstrMove || got[2] != ir.InstrReturn {
		t.Fatalf("unexpected tail %v", got)
	}

	mid := m.FindOrCreateLocal(ir.TypeLabel, "%mid")
	m.InsertBlockAfter(m.Blocks[0], mid)
	if m.Blocks[1].Label() != mid || m.Blocks[2] != nb {
		t.Fatalf("inserted block must sit between the halves")
	}
	if err := ir.ValidateMethod(m, ir.ValidateOptions{}); err != nil {
		t.Fatal(err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m, a, b := newTestMethod()
	m.Append(ir.NewMove(a, ir.IntOne))
	m.Append(ir.NewReturn(b))

	c := m.Clone()
	c.Blocks[0].Last().Emplace(ir.NewOp(ir.OpAdd, b, a, a))
	c.Local(a.Local).Name = "%renamed"
	c.AddNewLocal(ir.TypeInt32, "x")

	if m.CountInstrs() == c.CountInstrs() {
		t.Fatal("insertion in the clone changed the original")
	}
	if m.Local(a.Local).Name == "%renamed" || len(m.Locals) == len(c.Locals) {
		t.Fatal("clone shares locals with the original")
	}
	if _, ok := c.LocalByName(m.Local(b.Local).Name); !ok {
		t.Fatal("clone lost the local names")
	}
}

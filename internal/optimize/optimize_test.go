package optimize_test

import (
	"testing"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/optimize"
)

func runPass(t *testing.T, name string, m *ir.Method) bool {
	t.Helper()
	passes, err := optimize.Select([]string{name})
	if err != nil || len(passes) != 1 {
		t.Fatalf("select %s: %v", name, err)
	}
	return passes[0].Run(m)
}

func i32(v int64) ir.Value { return ir.IntValue(v, ir.TypeInt32) }

func body(m *ir.Method) []*ir.Instr {
	var out []*ir.Instr
	m.ForEach(func(w ir.Walker) {
		if ins := w.Get(); ins.Kind != ir.InstrLabel {
			out = append(out, ins)
		}
	})
	return out
}

func TestSelect(t *testing.T) {
	all, err := optimize.Select(nil)
	if err != nil || len(all) != len(optimize.Passes()) {
		t.Fatal("nil selects every pass")
	}
	none, err := optimize.Select([]string{})
	if err != nil || len(none) != 0 {
		t.Fatal("empty list selects nothing")
	}
	some, err := optimize.Select([]string{"simplify-branches", "constant-folding"})
	if err != nil || len(some) != 2 || some[0].Name != "constant-folding" {
		t.Fatal("selection must keep pipeline order")
	}
	if _, err := optimize.Select([]string{"loop-unrolling"}); diag.CodeOf(err) != diag.OptUnknownPass {
		t.Fatalf("expected unknown pass error, got %v", err)
	}
}

func TestConstantFolding(t *testing.T) {
	m := ir.NewMethod("fold", ir.TypeVoid)
	x := m.AddNewLocal(ir.TypeInt32, "x")
	a := m.AddNewLocal(ir.TypeInt32, "a")
	b := m.AddNewLocal(ir.TypeInt32, "b")
	c := m.AddNewLocal(ir.TypeInt32, "c")
	d := m.AddNewLocal(ir.TypeInt8, "d")
	f := m.AddNewLocal(ir.TypeFloat, "f")
	e := m.AddNewLocal(ir.TypeInt32, "e")
	m.Append(ir.NewOp(ir.OpAdd, a, i32(3), i32(4)))
	m.Append(ir.NewOp(ir.OpShl, b, x, i32(0)))
	m.Append(ir.NewOp(ir.OpMul24, c, x, i32(1)))
	m.Append(ir.NewOp(ir.OpAdd, d, i32(250), i32(10)).WithPack(ir.PackIntToCharTruncate))
	m.Append(ir.NewOp(ir.OpFMul, f, ir.Lit(ir.FloatLiteral(1), ir.TypeFloat), x))
	m.Append(ir.NewOp(ir.OpMax, e, x, x))

	if !runPass(t, "constant-folding", m) {
		t.Fatal("expected changes")
	}
	got := body(m)
	if got[0].Kind != ir.InstrMove || got[0].Move.Src.Lit.SignedInt() != 7 {
		t.Fatalf("add of constants: %s", m.FormatInstr(got[0]))
	}
	if got[1].Kind != ir.InstrMove || !got[1].Move.Src.HasLocal(x.Local) {
		t.Fatalf("shift by zero: %s", m.FormatInstr(got[1]))
	}
	if got[2].Kind != ir.InstrOp {
		t.Fatal("mul24 by one truncates and must stay")
	}
	if got[3].Kind != ir.InstrMove || got[3].Move.Src.Lit.UnsignedInt() != 4 {
		t.Fatalf("pack mode must apply to folded constants: %s", m.FormatInstr(got[3]))
	}
	if got[4].Kind != ir.InstrMove || !got[4].Move.Src.HasLocal(x.Local) {
		t.Fatalf("fmul by one: %s", m.FormatInstr(got[4]))
	}
	if got[5].Kind != ir.InstrMove || !got[5].Move.Src.HasLocal(x.Local) {
		t.Fatalf("max(x, x): %s", m.FormatInstr(got[5]))
	}
	if runPass(t, "constant-folding", m) {
		t.Fatal("second run must not change anything")
	}
}

func TestConstantFoldingKeepsFlagSetters(t *testing.T) {
	m := ir.NewMethod("flags", ir.TypeVoid)
	a := m.AddNewLocal(ir.TypeInt32, "a")
	m.Append(ir.NewOp(ir.OpSub, a, i32(3), i32(4)).WithSetFlags())
	if runPass(t, "constant-folding", m) {
		t.Fatal("flag-setting operations must not be folded")
	}
}

func TestCombineRotations(t *testing.T) {
	m := ir.NewMethod("rot", ir.TypeVoid)
	vec := ir.TypeInt32.MustVector(16)
	x := m.AddNewLocal(vec, "x")
	t1 := m.AddNewLocal(vec, "t1")
	y := m.AddNewLocal(vec, "y")
	t2 := m.AddNewLocal(vec, "t2")
	z := m.AddNewLocal(vec, "z")
	t3 := m.AddNewLocal(vec, "t3")
	w := m.AddNewLocal(vec, "w")
	off := func(n int64) ir.Value { return ir.IntValue(n, ir.TypeInt8) }

	m.Append(ir.NewRotate(t1, x, off(3)))
	m.Append(ir.NewRotate(y, t1, off(5)))
	m.Append(ir.NewRotate(t2, x, off(3)))
	m.Append(ir.NewRotate(z, t2, off(13)))
	m.Append(ir.NewRotate(t3, x, off(1)))
	m.Append(ir.NewMove(x, i32(0)))
	m.Append(ir.NewRotate(w, t3, off(1)))

	if !runPass(t, "combine-rotations", m) {
		t.Fatal("expected changes")
	}
	got := body(m)
	if got[1].Kind != ir.InstrRotate || !got[1].Rotate.Src.HasLocal(x.Local) || got[1].Rotate.Offset.Lit.SignedInt() != 8 {
		t.Fatalf("3 + 5: %s", m.FormatInstr(got[1]))
	}
	if got[3].Kind != ir.InstrMove || !got[3].Move.Src.HasLocal(x.Local) {
		t.Fatalf("3 + 13 is a full turn: %s", m.FormatInstr(got[3]))
	}
	if !got[6].Rotate.Src.HasLocal(t3.Local) {
		t.Fatal("source written in between, must not combine")
	}
}

func TestPropagateMoves(t *testing.T) {
	m := ir.NewMethod("moves", ir.TypeVoid)
	a := m.AddNewLocal(ir.TypeInt32, "a")
	b := m.AddNewLocal(ir.TypeInt32, "b")
	c := m.AddNewLocal(ir.TypeInt32, "c")
	d := m.AddNewLocal(ir.TypeInt32, "d")
	k := m.AddNewLocal(ir.TypeInt32, "k")
	out := m.AddParam("%out", ir.PointerTo(ir.TypeInt32, ir.AddrGlobal), 0)
	m.Append(ir.NewMove(b, a))
	m.Append(ir.NewOp(ir.OpAdd, c, b, i32(1)))
	m.Append(ir.NewMove(a, i32(5)))
	m.Append(ir.NewOp(ir.OpAdd, d, b, i32(1)))
	m.Append(ir.NewMove(k, i32(9)))
	m.Append(ir.NewWrite(m.ValueOf(out), k))

	if !runPass(t, "propagate-moves", m) {
		t.Fatal("expected changes")
	}
	got := body(m)
	if !got[1].Op.Args[0].HasLocal(a.Local) {
		t.Fatal("read before the source changes must use the source")
	}
	if !got[3].Op.Args[0].HasLocal(b.Local) {
		t.Fatal("read after the source changes must keep the copy")
	}
	if !got[5].Memory.Src.HasLocal(k.Local) {
		t.Fatal("memory operands take no literals")
	}
}

func TestEliminateDeadCode(t *testing.T) {
	m := ir.NewMethod("dce", ir.TypeVoid)
	out := m.AddParam("%out", ir.PointerTo(ir.TypeInt32, ir.AddrGlobal), 0)
	unused := m.AddNewLocal(ir.TypeInt32, "unused")
	used := m.AddNewLocal(ir.TypeInt32, "used")
	m.Append(ir.NewMove(m.ValueOf(out), ir.RegValue(ir.RegUniform, ir.TypeInt32)))
	m.Append(ir.NewOp(ir.OpAdd, unused, i32(1), i32(2)))
	m.Append(ir.NewOp(ir.OpAdd, used, i32(1), i32(2)))
	m.Append(ir.NewOp(ir.OpSub, ir.NopValue, used, i32(1)).WithSetFlags())
	m.Append(ir.NewNop())
	m.Append(ir.NewWrite(m.ValueOf(out), used))
	m.Append(ir.NewReturn(ir.NoValue))

	if !runPass(t, "eliminate-dead-code", m) {
		t.Fatal("expected changes")
	}
	kinds := []ir.InstrKind{}
	for _, ins := range body(m) {
		kinds = append(kinds, ins.Kind)
	}
	want := []ir.InstrKind{ir.InstrMove, ir.InstrOp, ir.InstrOp, ir.InstrMemory, ir.InstrReturn}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("got %v, want %v", kinds, want)
		}
	}
}

func TestSimplifyBranches(t *testing.T) {
	m := ir.NewMethod("branches", ir.TypeVoid)
	next := m.FindOrCreateLocal(ir.TypeLabel, "%next")
	dead := m.FindOrCreateLocal(ir.TypeLabel, "%dead")
	end := m.FindOrCreateLocal(ir.TypeLabel, "%end")
	x := m.AddNewLocal(ir.TypeInt32, "x")

	m.Append(ir.NewBranch(end, ir.CondNever, ir.BoolTrue))
	m.Append(ir.NewBranch(next, ir.CondAlways, ir.BoolTrue))
	m.Append(ir.NewLabel(next))
	m.Append(ir.NewBranch(end, ir.CondAlways, ir.BoolTrue))
	m.Append(ir.NewMove(x, i32(1)))
	m.Append(ir.NewLabel(dead))
	m.Append(ir.NewMove(x, i32(2)))
	m.Append(ir.NewLabel(end))
	m.Append(ir.NewReturn(ir.NoValue))

	if !runPass(t, "simplify-branches", m) {
		t.Fatal("expected changes")
	}
	if m.FindBlock(dead) != nil {
		t.Fatal("unreachable block must be removed")
	}
	if m.Blocks[0].Len() != 1 {
		t.Fatal("entry keeps only its label: never-branch and jump to the next block go")
	}
	if m.FindBlock(next).Len() != 2 {
		t.Fatal("code after the jump must be removed")
	}
	// %end follows %next now, so the jump goes on the next run
	if !runPass(t, "simplify-branches", m) || m.FindBlock(next).Len() != 1 {
		t.Fatal("jump to the following block must be removed")
	}
	if err := ir.ValidateMethod(m, ir.ValidateOptions{Normalized: true}); err != nil {
		t.Fatal(err)
	}
}

func TestMethodRunsToFixedPoint(t *testing.T) {
	m := ir.NewMethod("pipeline", ir.TypeVoid)
	out := m.AddParam("%out", ir.PointerTo(ir.TypeInt32, ir.AddrGlobal), 0)
	a := m.AddNewLocal(ir.TypeInt32, "a")
	b := m.AddNewLocal(ir.TypeInt32, "b")
	c := m.AddNewLocal(ir.TypeInt32, "c")
	m.Append(ir.NewMove(m.ValueOf(out), ir.RegValue(ir.RegUniform, m.Local(out).Type)))
	m.Append(ir.NewMove(a, i32(2)))
	m.Append(ir.NewOp(ir.OpAdd, b, a, i32(3)))
	m.Append(ir.NewOp(ir.OpMul24, c, b, i32(4)))
	m.Append(ir.NewWrite(m.ValueOf(out), c))
	m.Append(ir.NewReturn(ir.NoValue))

	rounds, err := optimize.Method(m, optimize.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rounds != 4 {
		t.Fatalf("expected 4 rounds, got %d", rounds)
	}
	got := body(m)
	if len(got) != 4 || got[1].Kind != ir.InstrMove || got[1].Move.Src.Lit.SignedInt() != 20 || !got[1].Dst.Equal(c) {
		t.Fatalf("unexpected result, %d instructions", len(got))
	}
}

func TestMethodReportsMissingFixedPoint(t *testing.T) {
	m := ir.NewMethod("limit", ir.TypeVoid)
	out := m.AddParam("%out", ir.PointerTo(ir.TypeInt32, ir.AddrGlobal), 0)
	a := m.AddNewLocal(ir.TypeInt32, "a")
	b := m.AddNewLocal(ir.TypeInt32, "b")
	m.Append(ir.NewMove(a, i32(2)))
	m.Append(ir.NewOp(ir.OpAdd, b, a, i32(3)))
	m.Append(ir.NewWrite(m.ValueOf(out), b))
	m.Append(ir.NewReturn(ir.NoValue))

	bag := diag.NewBag(10)
	rounds, err := optimize.Method(m, optimize.Options{MaxRounds: 1, Reporter: &diag.BagReporter{Bag: bag}})
	if err != nil {
		t.Fatal(err)
	}
	if rounds != 1 || !bag.HasWarnings() {
		t.Fatal("hitting the round limit must warn")
	}
}

package frontend_test

import (
	"strings"
	"testing"

	"vc4c/internal/diag"
	"vc4c/internal/frontend"
	"vc4c/internal/ir"
)

func body(m *ir.Method) []*ir.Instr {
	var out []*ir.Instr
	m.ForEach(func(w ir.Walker) {
		if w.Get().Kind != ir.InstrLabel {
			out = append(out, w.Get())
		}
	})
	return out
}

func mapNode(t *testing.T, m *ir.Method, n frontend.Node, mc *frontend.MapContext) bool {
	t.Helper()
	ok, err := n.Map(m, mc)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	return ok
}

func TestSelectionWritesBothOptionsUnderOppositeFlags(t *testing.T) {
	m := ir.NewMethod("sel", ir.TypeVoid)
	cond := m.AddNewLocal(ir.TypeBool, "c")
	dst := m.AddNewLocal(ir.TypeInt32, "d")
	mapNode(t, m, &frontend.Selection{Dst: dst, Cond: cond, True: ir.IntValue(7, ir.TypeInt32), False: ir.IntZero}, nil)

	got := body(m)
	if len(got) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(got))
	}
	if !got[0].SetFlags || got[0].Kind != ir.InstrMove || !got[0].Move.Src.Equal(cond) {
		t.Fatalf("first instruction must set flags from the condition: %s", m.FormatInstr(got[0]))
	}
	if got[1].Cond != ir.CondZeroClear || !got[1].Move.Src.HasLiteral(ir.IntLiteral(7)) {
		t.Fatalf("true option must be written if the flag is clear: %s", m.FormatInstr(got[1]))
	}
	if got[2].Cond != ir.CondZeroSet || got[1].Cond.Invert() != got[2].Cond {
		t.Fatalf("false option must use the inverted condition: %s", m.FormatInstr(got[2]))
	}
}

func TestSelectionReplicatesScalarConditionForVectors(t *testing.T) {
	m := ir.NewMethod("sel", ir.TypeVoid)
	vec := ir.TypeInt32.MustVector(4)
	cond := m.AddNewLocal(ir.TypeBool, "c")
	a := m.AddNewLocal(vec, "a")
	b := m.AddNewLocal(vec, "b")
	dst := m.AddNewLocal(vec, "d")
	mapNode(t, m, &frontend.Selection{Dst: dst, Cond: cond, True: a, False: b}, nil)

	got := body(m)
	n := len(got)
	if n < 3 {
		t.Fatalf("too few instructions: %d", n)
	}
	if !got[n-3].SetFlags {
		t.Fatalf("replication must set the flags: %s", m.FormatInstr(got[n-3]))
	}
	if got[n-2].Cond != ir.CondZeroClear || got[n-1].Cond != ir.CondZeroSet {
		t.Fatalf("unexpected conditions %s / %s", got[n-2].Cond, got[n-1].Cond)
	}
}

func TestSwitchComparesCasesInOrder(t *testing.T) {
	m := ir.NewMethod("sw", ir.TypeVoid)
	cond := m.AddNewLocal(ir.TypeInt32, "x")
	mapNode(t, m, &frontend.Switch{
		Cond:    cond,
		Default: "%other",
		Cases:   map[int64]string{3: "%three", 1: "%one", -2: "%minus"},
	}, nil)

	got := body(m)
	if len(got) != 7 {
		t.Fatalf("expected 3 compare/branch pairs and a default branch, got %d", len(got))
	}
	wantValues := []int32{-2, 1, 3}
	wantLabels := []string{"%minus", "%one", "%three"}
	for i := range wantValues {
		cmp, br := got[2*i], got[2*i+1]
		if cmp.Kind != ir.InstrCompare || cmp.Compare.Pred != ir.CmpEQ {
			t.Fatalf("case %d: expected eq comparison, got %s", i, m.FormatInstr(cmp))
		}
		if lit, _ := cmp.Compare.Right.LiteralValue(); lit.SignedInt() != wantValues[i] {
			t.Fatalf("case %d: compares against %d, want %d", i, lit.SignedInt(), wantValues[i])
		}
		if !cmp.Compare.Right.Type.Equal(ir.TypeInt32) {
			t.Fatalf("case literal must have the condition type, got %s", cmp.Compare.Right.Type)
		}
		if br.Kind != ir.InstrBranch || br.Branch.Cond.Local != cmp.Dst.Local || br.Cond != ir.CondZeroClear {
			t.Fatalf("case %d: branch does not test the comparison: %s", i, m.FormatInstr(br))
		}
		if name := m.Local(br.Branch.Target).Name; name != wantLabels[i] {
			t.Fatalf("case %d: jumps to %s, want %s", i, name, wantLabels[i])
		}
	}
	last := got[6]
	if last.Cond != ir.CondAlways || m.Local(last.Branch.Target).Name != "%other" {
		t.Fatalf("expected unconditional jump to default, got %s", m.FormatInstr(last))
	}
	if !m.Local(last.Branch.Target).IsLabel() {
		t.Fatalf("default target must be a label")
	}
}

func TestBranchShapes(t *testing.T) {
	m := ir.NewMethod("br", ir.TypeVoid)
	then := m.FindOrCreateLocal(ir.TypeLabel, "%then")
	els := m.FindOrCreateLocal(ir.TypeLabel, "%else")
	cond := m.AddNewLocal(ir.TypeBool, "c")

	mapNode(t, m, frontend.Jump(then), nil)
	mapNode(t, m, &frontend.Branch{Cond: cond, Then: then, Else: els}, nil)
	got := body(m)
	if len(got) != 3 {
		t.Fatalf("expected 3 branches, got %d", len(got))
	}
	if got[0].Cond != ir.CondAlways {
		t.Fatalf("jump must be unconditional")
	}
	if got[1].Branch.Target != then || got[1].Cond != ir.CondZeroClear {
		t.Fatalf("true edge: %s", m.FormatInstr(got[1]))
	}
	if got[2].Branch.Target != els || got[2].Cond != ir.CondZeroSet {
		t.Fatalf("false edge: %s", m.FormatInstr(got[2]))
	}
}

func TestLifetimeResolvesStackAllocation(t *testing.T) {
	m := ir.NewMethod("life", ir.TypeVoid)
	buf := m.AddStackAllocation("%buf", ir.ArrayOf(ir.TypeInt32, 4), 4)
	ptr := m.AddNewLocal(ir.PointerTo(ir.TypeInt8, ir.AddrPrivate), "cast")
	m.Append(ir.NewMove(ptr, m.ValueOf(buf)))

	size := ir.IntValue(16, ir.TypeInt64)
	if !mapNode(t, m, &frontend.CallSite{Name: "llvm.lifetime.start.p0i8", Args: []ir.Value{size, ptr}}, nil) {
		t.Fatalf("resolved lifetime must be mapped")
	}
	mapNode(t, m, &frontend.CallSite{Name: "llvm.lifetime.end.p0i8", Args: []ir.Value{size, m.ValueOf(buf)}}, nil)

	got := body(m)
	start, end := got[1], got[2]
	if start.Kind != ir.InstrLifetime || start.Lifetime.Alloc != buf || start.Lifetime.End {
		t.Fatalf("bad lifetime start: %s", m.FormatInstr(start))
	}
	if end.Kind != ir.InstrLifetime || end.Lifetime.Alloc != buf || !end.Lifetime.End {
		t.Fatalf("bad lifetime end: %s", m.FormatInstr(end))
	}
}

func TestLifetimePolicies(t *testing.T) {
	newMethod := func() (*ir.Method, ir.Value) {
		m := ir.NewMethod("life", ir.TypeVoid)
		p := m.AddParam("%p", ir.PointerTo(ir.TypeInt8, ir.AddrGlobal), 0)
		return m, m.ValueOf(p)
	}
	call := func(size int64, ptr ir.Value) *frontend.CallSite {
		return &frontend.CallSite{Name: "llvm.lifetime.start", Args: []ir.Value{ir.IntValue(size, ir.TypeInt64), ptr}}
	}

	t.Run("warn", func(t *testing.T) {
		m, ptr := newMethod()
		bag := diag.NewBag(10)
		mc := &frontend.MapContext{Reporter: &diag.BagReporter{Bag: bag}}
		if mapNode(t, m, call(-1, ptr), mc) {
			t.Fatalf("unresolved lifetime must be elided")
		}
		if len(body(m)) != 0 {
			t.Fatalf("nothing must be emitted")
		}
		if !bag.HasWarnings() || bag.Items()[0].Code != diag.NormUnresolvedLifetime {
			t.Fatalf("expected a warning, got %v", bag.Items())
		}
	})
	t.Run("fail", func(t *testing.T) {
		m, ptr := newMethod()
		_, err := call(-1, ptr).Map(m, &frontend.MapContext{Lifetime: frontend.LifetimeFail})
		if diag.CodeOf(err) != diag.NormUnresolvedLifetime {
			t.Fatalf("expected unresolved lifetime error, got %v", err)
		}
	})
	t.Run("sized", func(t *testing.T) {
		m, ptr := newMethod()
		_, err := call(8, ptr).Map(m, nil)
		if err == nil || !strings.Contains(err.Error(), "not located on stack") {
			t.Fatalf("expected error for sized object off the stack, got %v", err)
		}
		if st, _ := diag.StageOf(err); st != diag.StageNormalization {
			t.Fatalf("expected normalization stage, got %s", st)
		}
	})
	t.Run("parse", func(t *testing.T) {
		if p, err := frontend.ParseLifetimePolicy("fail"); err != nil || p != frontend.LifetimeFail {
			t.Fatalf("fail: %v %v", p, err)
		}
		if _, err := frontend.ParseLifetimePolicy("ignore"); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestMemsetMarksVolatileParameter(t *testing.T) {
	for _, tc := range []struct {
		name     string
		last     ir.Value
		volatile bool
	}{
		{"volatile", ir.BoolTrue, true},
		{"not volatile", ir.BoolFalse, false},
		{"alignment only", ir.IntValue(1, ir.TypeInt32), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := ir.NewMethod("fill", ir.TypeVoid)
			out := m.AddParam("%out", ir.PointerTo(ir.TypeInt8, ir.AddrGlobal), 0)
			args := []ir.Value{m.ValueOf(out), ir.IntValue(0, ir.TypeInt8), ir.IntValue(16, ir.TypeInt32), tc.last}
			mapNode(t, m, &frontend.CallSite{Name: "llvm.memset.p1i8.i32", Args: args}, nil)
			if got := m.Local(out).Param.Has(ir.ParamVolatile); got != tc.volatile {
				t.Fatalf("volatile = %v, want %v", got, tc.volatile)
			}
			ins := body(m)[0]
			if ins.Kind != ir.InstrMemory || ins.Memory.Op != ir.MemFill {
				t.Fatalf("expected fill, got %s", m.FormatInstr(ins))
			}
		})
	}
}

func TestFmulAddSplitsIntoTwoOperations(t *testing.T) {
	m := ir.NewMethod("fma", ir.TypeVoid)
	a := m.AddNewLocal(ir.TypeFloat, "a")
	dst := m.AddNewLocal(ir.TypeFloat, "d")
	mapNode(t, m, &frontend.CallSite{Dst: dst, Name: "llvm.fmuladd.f32", ReturnType: ir.TypeFloat, Args: []ir.Value{a, a, ir.FloatOne}}, nil)
	got := body(m)
	if len(got) != 2 || got[0].Op.Code != ir.OpFMul || got[1].Op.Code != ir.OpFAdd {
		t.Fatalf("expected fmul + fadd, got %d instructions", len(got))
	}
	if !got[1].Op.Args[0].Equal(got[0].Dst) || !got[1].Dst.Equal(dst) {
		t.Fatalf("fadd must consume the product and write the destination")
	}
}

func TestArityErrors(t *testing.T) {
	callee := ir.NewMethod("callee", ir.TypeInt32)
	callee.AddParam("%a", ir.TypeInt32, 0)
	if _, err := frontend.NewCallSiteFor(ir.NoValue, callee, nil); diag.CodeOf(err) != diag.ParseArity {
		t.Fatalf("expected arity error, got %v", err)
	}
	cs, err := frontend.NewCallSiteFor(ir.NoValue, callee, []ir.Value{ir.IntOne})
	if err != nil || cs.ReturnType != callee.ReturnType {
		t.Fatalf("unexpected %v", err)
	}

	m := ir.NewMethod("op", ir.TypeVoid)
	dst := m.AddNewLocal(ir.TypeInt32, "d")
	_, err = frontend.UnaryOperator("add", dst, ir.IntOne).Map(m, nil)
	if diag.CodeOf(err) != diag.ParseArity {
		t.Fatalf("expected arity error for add with one operand, got %v", err)
	}
	if !mapNode(t, m, frontend.BinaryOperator("udiv", dst, dst, ir.IntOne), nil) {
		t.Fatalf("non-native operation must be accepted")
	}
	if got := body(m); got[0].Kind != ir.InstrIntrinsic || got[0].Intrinsic.Name != "udiv" {
		t.Fatalf("expected intrinsic operation, got %s", m.FormatInstr(got[0]))
	}
}

func TestContainerAccessOnArraysIsUnimplemented(t *testing.T) {
	m := ir.NewMethod("arr", ir.TypeVoid)
	arr := m.AddNewLocal(ir.ArrayOf(ir.TypeInt32, 4), "arr")
	dst := m.AddNewLocal(ir.TypeInt32, "d")
	_, err := (&frontend.ContainerExtraction{Dst: dst, Container: arr, Index: ir.IntOne}).Map(m, nil)
	if diag.CodeOf(err) != diag.NormUnimplementedContainer {
		t.Fatalf("expected unimplemented container error, got %v", err)
	}
	_, err = (&frontend.ContainerInsertion{Dst: arr, Container: arr, Value: dst, Index: ir.IntOne}).Map(m, nil)
	if diag.CodeOf(err) != diag.NormUnimplementedContainer {
		t.Fatalf("expected unimplemented container error, got %v", err)
	}
}

func TestMethodCheckRejectsUndeclaredLocals(t *testing.T) {
	fm := frontend.NewMethod("k", ir.TypeVoid, true)
	fm.Add(&frontend.Copy{Dst: ir.LocalValue(42, ir.TypeInt32), Src: ir.IntOne})
	if err := fm.Check(); diag.CodeOf(err) != diag.ParseUnknownValue {
		t.Fatalf("expected unknown value, got %v", err)
	}
}

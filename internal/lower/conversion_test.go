package lower_test

import (
	"strings"
	"testing"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/lower"
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

func TestSaturateGeneric(t *testing.T) {
	if got := lower.Saturate[uint8](300); got != 255 {
		t.Errorf("Saturate[uint8](300) = %d", got)
	}
	if got := lower.Saturate[uint8](-5); got != 0 {
		t.Errorf("Saturate[uint8](-5) = %d", got)
	}
	if got := lower.Saturate[int16](40000); got != 32767 {
		t.Errorf("Saturate[int16](40000) = %d", got)
	}
	if got := lower.Saturate[int8](-200); got != -128 {
		t.Errorf("Saturate[int8](-200) = %d", got)
	}
	if got := lower.Saturate[uint32](-1); got != 0 {
		t.Errorf("Saturate[uint32](-1) = %d", got)
	}
	// idempotent
	for _, v := range []int64{-70000, -129, -1, 0, 127, 128, 255, 256, 70000} {
		once := lower.Saturate[int8](v)
		if twice := lower.Saturate[int8](int64(once)); twice != once {
			t.Errorf("saturating %d twice gave %d then %d", v, once, twice)
		}
	}
}

func TestSaturationOfLiterals(t *testing.T) {
	tests := []struct {
		name      string
		src       ir.Value
		dst       ir.DataType
		srcSigned bool
		signed    bool
		want      int32
	}{
		{"300 to uchar", ir.IntValue(300, ir.TypeInt32), ir.TypeInt8, true, false, 255},
		{"-5 to uchar", ir.IntValue(-5, ir.TypeInt32), ir.TypeInt8, true, false, 0},
		{"40000 to short", ir.IntValue(40000, ir.TypeInt32), ir.TypeInt16, true, true, 32767},
		{"-40000 to short", ir.IntValue(-40000, ir.TypeInt32), ir.TypeInt16, true, true, -32768},
		{"-1 to uint", ir.IntValue(-1, ir.TypeInt32), ir.TypeInt32, true, false, 0},
		{"i8 -1 to char", ir.Lit(ir.UintLiteral(0xFF), ir.TypeInt8), ir.TypeInt8, true, true, -1},
		{"uchar 255 to uchar", ir.Lit(ir.UintLiteral(0xFF), ir.TypeInt8), ir.TypeInt8, false, false, 255},
		{"uchar 255 to char", ir.Lit(ir.UintLiteral(0xFF), ir.TypeInt8), ir.TypeInt8, false, true, 127},
		{"UINT_MAX to uint", ir.Lit(ir.UintLiteral(0xFFFFFFFF), ir.TypeInt32), ir.TypeInt32, false, false, -1},
		{"UINT_MAX to int", ir.Lit(ir.UintLiteral(0xFFFFFFFF), ir.TypeInt32), ir.TypeInt32, false, true, 0x7FFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ir.NewMethod("sat", ir.TypeVoid)
			dst := m.AddNewLocal(tt.dst, "dst")
			if _, err := lower.InsertSaturation(m.AppendToEnd(), m, tt.src, dst, tt.srcSigned, tt.signed); err != nil {
				t.Fatal(err)
			}
			ins := body(m)
			if len(ins) != 1 || ins[0].Kind != ir.InstrMove {
				t.Fatalf("expected a single move, got %d instructions", len(ins))
			}
			if got := ins[0].Move.Src.Lit.SignedInt(); got != tt.want {
				t.Fatalf("saturated to %d, want %d", got, tt.want)
			}
			if !tt.signed && !ins[0].Deco.Has(ir.DecoUnsignedResult) {
				t.Fatal("unsigned saturation must decorate the result")
			}
		})
	}
}

func TestSaturationIsIdempotent(t *testing.T) {
	for _, tc := range []struct {
		dst    ir.DataType
		signed bool
	}{
		{ir.TypeInt8, false},
		{ir.TypeInt8, true},
		{ir.TypeInt16, false},
		{ir.TypeInt16, true},
		{ir.TypeInt32, false},
		{ir.TypeInt32, true},
	} {
		for _, v := range []int64{-70000, -300, -5, 0, 200, 300, 70000} {
			m := ir.NewMethod("sat", ir.TypeVoid)
			once := m.AddNewLocal(tc.dst, "once")
			twice := m.AddNewLocal(tc.dst, "twice")
			it, err := lower.InsertSaturation(m.AppendToEnd(), m, ir.IntValue(v, ir.TypeInt32), once, true, tc.signed)
			if err != nil {
				t.Fatal(err)
			}
			first := body(m)[0].Move.Src
			if _, err = lower.InsertSaturation(it, m, first, twice, tc.signed, tc.signed); err != nil {
				t.Fatal(err)
			}
			second := body(m)[1].Move.Src
			if first.Lit.Bits != second.Lit.Bits {
				t.Errorf("%s signed=%v: saturating %d gave %#x, then %#x", tc.dst, tc.signed, v, first.Lit.Bits, second.Lit.Bits)
			}
		}
	}
}

func TestSaturationZeroExtendsUnsignedSources(t *testing.T) {
	m := ir.NewMethod("sat", ir.TypeVoid)
	src := m.AddNewLocal(ir.TypeInt16, "src")
	dst := m.AddNewLocal(ir.TypeInt8, "dst")
	if _, err := lower.InsertSaturation(m.AppendToEnd(), m, src, dst, false, false); err != nil {
		t.Fatal(err)
	}
	ins := body(m)
	if len(ins) != 2 || !ins[0].Deco.Has(ir.DecoUnsignedResult) || ins[1].Pack != ir.PackIntToUnsignedCharSaturate {
		t.Fatalf("expected zero-extension then a saturating move, got %d instructions", len(ins))
	}
}

func TestSaturationPackModes(t *testing.T) {
	m := ir.NewMethod("sat", ir.TypeVoid)
	src := m.AddNewLocal(ir.TypeInt32, "src")
	u8 := m.AddNewLocal(ir.TypeInt8, "u8")
	s16 := m.AddNewLocal(ir.TypeInt16, "s16")
	it := m.AppendToEnd()
	var err error
	if it, err = lower.InsertSaturation(it, m, src, u8, true, false); err != nil {
		t.Fatal(err)
	}
	if _, err = lower.InsertSaturation(it, m, src, s16, true, true); err != nil {
		t.Fatal(err)
	}
	ins := body(m)
	if ins[0].Pack != ir.PackIntToUnsignedCharSaturate || !ins[0].Deco.Has(ir.DecoUnsignedResult) {
		t.Errorf("uchar saturation: pack %v deco %v", ins[0].Pack, ins[0].Deco)
	}
	if ins[1].Pack != ir.PackIntToSignedShortSaturate {
		t.Errorf("short saturation: pack %v", ins[1].Pack)
	}
}

func TestSaturationUnsupported(t *testing.T) {
	m := ir.NewMethod("sat", ir.TypeVoid)
	src := m.AddNewLocal(ir.TypeInt32, "src")
	for _, tc := range []struct {
		dst    ir.DataType
		signed bool
	}{
		{ir.TypeInt8, true},
		{ir.TypeInt16, false},
	} {
		dst := m.AddNewLocal(tc.dst, "dst")
		_, err := lower.InsertSaturation(m.AppendToEnd(), m, src, dst, true, tc.signed)
		if err == nil || !strings.Contains(err.Error(), "not yet supported") {
			t.Fatalf("%s signed=%v: expected unsupported error, got %v", tc.dst, tc.signed, err)
		}
		if stage, _ := diag.StageOf(err); stage != diag.StageLowering {
			t.Fatalf("unexpected stage %s", stage)
		}
	}
	fdst := m.AddNewLocal(ir.TypeFloat, "f")
	if _, err := lower.InsertSaturation(m.AppendToEnd(), m, src, fdst, true, true); err == nil {
		t.Fatal("saturation to float must fail")
	}
}

func TestZeroExtensionPaths(t *testing.T) {
	m := ir.NewMethod("zext", ir.TypeVoid)
	// locals only, each case emits into its own method
	wide := m.AddNewLocal(ir.TypeInt32, "wide")
	narrow := m.AddNewLocal(ir.TypeInt8, "narrow")
	short := m.AddNewLocal(ir.TypeInt16, "short")

	t.Run("32 to 16 uses truncating pack", func(t *testing.T) {
		m2 := ir.NewMethod("a", ir.TypeVoid)
		if _, err := lower.InsertZeroExtension(m2.AppendToEnd(), m2, wide, short, true, ir.CondAlways, false); err != nil {
			t.Fatal(err)
		}
		ins := body(m2)[0]
		if ins.Kind != ir.InstrMove || ins.Pack != ir.PackIntToShortTruncate {
			t.Fatalf("got %s pack %v", ins.Kind, ins.Pack)
		}
	})
	t.Run("register char uses unpack", func(t *testing.T) {
		m2 := ir.NewMethod("b", ir.TypeVoid)
		reg := ir.RegValue(ir.RegA(3), ir.TypeInt8)
		if _, err := lower.InsertZeroExtension(m2.AppendToEnd(), m2, reg, wide, true, ir.CondAlways, false); err != nil {
			t.Fatal(err)
		}
		ins := body(m2)[0]
		if ins.Unpack != ir.UnpackCharToIntZext || !ins.Deco.Has(ir.DecoUnsignedResult) {
			t.Fatalf("got unpack %v deco %v", ins.Unpack, ins.Deco)
		}
	})
	t.Run("literal mask", func(t *testing.T) {
		m2 := ir.NewMethod("c", ir.TypeVoid)
		if _, err := lower.InsertZeroExtension(m2.AppendToEnd(), m2, narrow, wide, true, ir.CondZeroSet, true); err != nil {
			t.Fatal(err)
		}
		ins := body(m2)[0]
		if ins.Op.Code != ir.OpAnd || !ins.Op.Args[1].HasLiteral(ir.UintLiteral(0xFF)) {
			t.Fatalf("expected and with 0xFF, got %s", m2.FormatInstr(ins))
		}
		if ins.Cond != ir.CondZeroSet || !ins.SetFlags {
			t.Fatal("condition and flags must be kept")
		}
	})
	t.Run("mask in temporary", func(t *testing.T) {
		m2 := ir.NewMethod("d", ir.TypeVoid)
		if _, err := lower.InsertZeroExtension(m2.AppendToEnd(), m2, narrow, wide, false, ir.CondAlways, false); err != nil {
			t.Fatal(err)
		}
		ins := body(m2)
		if len(ins) != 2 || ins[0].Kind != ir.InstrLoadImm || ins[0].LoadImm.Value.Bits != 0xFF {
			t.Fatalf("expected ldi of the mask first")
		}
		if !ins[1].Op.Args[1].Equal(ins[0].Dst) {
			t.Fatal("and must use the loaded mask")
		}
	})
}

func TestSignExtension(t *testing.T) {
	m := ir.NewMethod("sext", ir.TypeVoid)
	src := m.AddNewLocal(ir.TypeInt8, "src")
	dst := m.AddNewLocal(ir.TypeInt32, "dst")
	if _, err := lower.InsertSignExtension(m.AppendToEnd(), m, src, dst, true, ir.CondZeroClear, true); err != nil {
		t.Fatal(err)
	}
	ins := body(m)
	if len(ins) != 2 || ins[0].Op.Code != ir.OpShl || ins[1].Op.Code != ir.OpAsr {
		t.Fatalf("expected shl then asr")
	}
	if !ins[0].Op.Args[1].HasLiteral(ir.IntLiteral(24)) || !ins[1].Op.Args[1].HasLiteral(ir.IntLiteral(24)) {
		t.Fatal("shift distance must be 24")
	}
	if ins[0].SetFlags || !ins[1].SetFlags {
		t.Fatal("only the final shift sets flags")
	}
	if ins[0].Cond != ir.CondZeroClear || ins[1].Cond != ir.CondZeroClear {
		t.Fatal("both shifts are conditional")
	}

	m2 := ir.NewMethod("sext16", ir.TypeVoid)
	reg := ir.RegValue(ir.Acc(1), ir.TypeInt16)
	if _, err := lower.InsertSignExtension(m2.AppendToEnd(), m2, reg, dst, true, ir.CondAlways, false); err != nil {
		t.Fatal(err)
	}
	if got := body(m2)[0].Unpack; got != ir.UnpackShortToIntSext {
		t.Fatalf("accumulator short must use unpack, got %v", got)
	}
}

func TestTruncateAndFloatConversion(t *testing.T) {
	m := ir.NewMethod("conv", ir.TypeVoid)
	wide := m.AddNewLocal(ir.TypeInt32, "wide")
	narrow := m.AddNewLocal(ir.TypeInt16, "narrow")
	it, err := lower.InsertTruncate(m.AppendToEnd(), m, wide, narrow)
	if err != nil {
		t.Fatal(err)
	}
	half := m.AddNewLocal(ir.TypeHalf, "h")
	float := m.AddNewLocal(ir.TypeFloat, "f")
	if it, err = lower.InsertFloatingPointConversion(it, m, half, float); err != nil {
		t.Fatal(err)
	}
	if _, err = lower.InsertFloatingPointConversion(it, m, float, half); err != nil {
		t.Fatal(err)
	}
	ins := body(m)
	if ins[0].Op.Code != ir.OpAnd || !ins[0].Op.Args[1].HasLiteral(ir.UintLiteral(0xFFFF)) {
		t.Errorf("truncate: %s", m.FormatInstr(ins[0]))
	}
	if ins[1].Op.Code != ir.OpFMul || ins[1].Unpack != ir.UnpackHalfToFloat {
		t.Errorf("fpext: %s", m.FormatInstr(ins[1]))
	}
	if ins[2].Op.Code != ir.OpFMul || ins[2].Pack != ir.PackFloatToHalfTruncate {
		t.Errorf("fptrunc: %s", m.FormatInstr(ins[2]))
	}

	double := m.AddNewLocal(ir.TypeDouble, "d")
	if _, err := lower.InsertFloatingPointConversion(m.AppendToEnd(), m, double, float); err == nil {
		t.Fatal("double conversion must fail")
	}
}

func TestBitcastSimpleCases(t *testing.T) {
	m := ir.NewMethod("cast", ir.TypeVoid)
	alloc := m.AddStackAllocation("%buf", ir.ArrayOf(ir.TypeInt32, 4), 4)
	ptr := m.AddNewLocal(ir.PointerTo(ir.TypeInt8, ir.AddrPrivate), "ptr")
	it, err := lower.InsertBitcast(m.AppendToEnd(), m, m.ValueOf(alloc), ptr, ir.DecoNone)
	if err != nil {
		t.Fatal(err)
	}
	if ref := m.Local(ptr.Local).Reference(); ref.Local != alloc || ref.Offset != 0 {
		t.Fatalf("pointer bitcast must record the alias, got %+v", ref)
	}

	v := m.AddNewLocal(ir.TypeFloat.MustVector(4), "v")
	u := m.AddNewLocal(ir.TypeInt32.MustVector(4), "u")
	if it, err = lower.InsertBitcast(it, m, v, u, ir.DecoNone); err != nil {
		t.Fatal(err)
	}
	if _, err = lower.InsertBitcast(it, m, ir.UndefinedOf(v.Type), u, ir.DecoNone); err != nil {
		t.Fatal(err)
	}
	ins := body(m)
	if len(ins) != 3 {
		t.Fatalf("expected 3 moves, got %d", len(ins))
	}
	for _, in := range ins {
		if in.Kind != ir.InstrMove {
			t.Fatalf("expected move, got %s", in.Kind)
		}
	}
	if !ins[2].Move.Src.IsUndefined() {
		t.Fatal("undefined source stays undefined")
	}
}

func TestBitcastCombiningShape(t *testing.T) {
	m := ir.NewMethod("cast", ir.TypeVoid)
	src := m.AddNewLocal(ir.TypeInt16.MustVector(4), "src")
	dst := m.AddNewLocal(ir.TypeInt32.MustVector(2), "dst")
	if _, err := lower.InsertBitcast(m.AppendToEnd(), m, src, dst, ir.DecoNone); err != nil {
		t.Fatal(err)
	}
	ins := body(m)
	var rotations, inserts int
	for _, in := range ins {
		switch {
		case in.Kind == ir.InstrRotate:
			rotations++
		case in.Deco.Has(ir.DecoElementInsertion):
			inserts++
		}
	}
	// one rotation for the shifted copy, one each for extracting lane 2 and
	// inserting at lane 1
	if rotations != 3 {
		t.Errorf("expected 3 rotations, got %d", rotations)
	}
	if inserts != 2 {
		t.Errorf("expected 2 lane insertions, got %d", inserts)
	}
	last := ins[len(ins)-1]
	if last.Kind != ir.InstrMove || !last.Dst.Equal(dst) {
		t.Fatal("result must be moved into the destination last")
	}
}

func TestBitcastUnsupportedWidth(t *testing.T) {
	m := ir.NewMethod("cast", ir.TypeVoid)
	src := m.AddNewLocal(ir.TypeInt32.MustVector(2), "src")
	dst := m.AddNewLocal(ir.TypeInt64, "dst")
	if _, err := lower.InsertBitcast(m.AppendToEnd(), m, src, dst, ir.DecoNone); err == nil {
		t.Fatal("64-bit elements cannot be combined")
	}
}

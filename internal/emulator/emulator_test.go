package emulator_test

import (
	"errors"
	"math"
	"testing"

	"vc4c/internal/codegen"
	"vc4c/internal/emulator"
	"vc4c/internal/ir"
)

func nopSlot() codegen.Slot {
	return codegen.Slot{Op: ir.OpNop, Dst: ir.RegNop, A: codegen.Operand{Reg: ir.RegNop}, B: codegen.Operand{Reg: ir.RegNop}, Cond: ir.CondNever}
}

func nop() codegen.MachineInstr {
	return codegen.MachineInstr{Kind: codegen.KindALU, Add: nopSlot(), Mul: nopSlot()}
}

func mov(dst, src ir.Register) codegen.MachineInstr {
	mi := nop()
	mi.Add = codegen.Slot{Op: ir.OpOr, Dst: dst, A: codegen.Operand{Reg: src}, B: codegen.Operand{Reg: src}}
	return mi
}

func movImm(dst ir.Register, v uint32) codegen.MachineInstr {
	mi := nop()
	imm := codegen.Operand{Imm: true}
	mi.Add = codegen.Slot{Op: ir.OpOr, Dst: dst, A: imm, B: imm}
	mi.Imm, mi.HasImm = v, true
	return mi
}

func rotate(dst, src ir.Register, n uint8) codegen.MachineInstr {
	mi := nop()
	mi.Mul = codegen.Slot{Op: ir.OpV8Min, Dst: dst, A: codegen.Operand{Reg: src}, B: codegen.Operand{Reg: src}}
	mi.Rotation = n
	return mi
}

func end() []codegen.MachineInstr {
	return []codegen.MachineInstr{{Kind: codegen.KindThreadEnd, Add: nopSlot(), Mul: nopSlot()}, nop(), nop()}
}

func program(code ...codegen.MachineInstr) *codegen.Program {
	return &codegen.Program{Method: "test", Instrs: append(code, end()...)}
}

func fault(t *testing.T, err error, want emulator.FaultCode) {
	t.Helper()
	var f *emulator.Fault
	if !errors.As(err, &f) || f.Code != want {
		t.Fatalf("err = %v, want %s", err, want)
	}
}

func TestRotation(t *testing.T) {
	prog := program(
		mov(ir.RegAcc0, ir.RegElementNumber),
		nop(),
		rotate(ir.RegAcc1, ir.RegAcc0, 1),
	)
	st, err := emulator.New(prog, emulator.Config{}).Run()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range st.Acc[1] {
		if want := uint32((i + 15) % 16); v != want {
			t.Errorf("lane %d = %d, want %d", i, v, want)
		}
	}

	_, err = emulator.New(program(mov(ir.RegAcc0, ir.RegElementNumber), rotate(ir.RegAcc1, ir.RegAcc0, 1)), emulator.Config{}).Run()
	fault(t, err, emulator.FaultHazard)
}

func TestBranchDelaySlots(t *testing.T) {
	prog := program(
		codegen.MachineInstr{Kind: codegen.KindBranch, Target: 5, BranchCond: ir.CondAlways},
		movImm(ir.RegAcc0, 1),
		movImm(ir.RegAcc0, 2),
		movImm(ir.RegAcc2, 3),
		movImm(ir.RegAcc1, 4),
	)
	st, err := emulator.New(prog, emulator.Config{}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if st.Acc[0][0] != 2 || st.Acc[2][0] != 3 || st.Acc[1][0] != 0 {
		t.Fatalf("r0 = %d, r1 = %d, r2 = %d", st.Acc[0][0], st.Acc[1][0], st.Acc[2][0])
	}
	if !st.Finished || st.Steps != 7 {
		t.Fatalf("finished = %v after %d steps", st.Finished, st.Steps)
	}
}

func TestConditionalBranchTestsAllLanes(t *testing.T) {
	setf := mov(ir.RegNop, ir.RegElementNumber)
	setf.SetFlags = true
	prog := program(
		setf,
		codegen.MachineInstr{Kind: codegen.KindBranch, Target: 6, BranchCond: ir.CondZeroClear},
		nop(), nop(), nop(),
		movImm(ir.RegAcc0, 9),
	)
	st, err := emulator.New(prog, emulator.Config{}).Run()
	if err != nil {
		t.Fatal(err)
	}
	// lane 0 is zero, so not all lanes take the branch
	if st.Acc[0][0] != 9 {
		t.Fatal("branch taken")
	}
}

func TestFlagsAndConditions(t *testing.T) {
	sub := nop()
	sub.Add = codegen.Slot{Op: ir.OpSub, Dst: ir.RegNop, A: codegen.Operand{Reg: ir.RegElementNumber}, B: codegen.Operand{Imm: true}}
	sub.Imm, sub.HasImm, sub.SetFlags = 4, true, true
	carry := movImm(ir.RegAcc0, 1)
	carry.Add.Cond = ir.CondCarrySet
	zero := movImm(ir.RegAcc1, 1)
	zero.Add.Cond = ir.CondZeroSet

	st, err := emulator.New(program(sub, carry, zero), emulator.Config{}).Run()
	if err != nil {
		t.Fatal(err)
	}
	for i := range emulator.Lanes {
		if got, want := st.Acc[0][i] == 1, i < 4; got != want {
			t.Errorf("lane %d: carry write = %v", i, got)
		}
		if got, want := st.Acc[1][i] == 1, i == 4; got != want {
			t.Errorf("lane %d: zero write = %v", i, got)
		}
	}
}

func TestReciprocalLatency(t *testing.T) {
	four := codegen.MachineInstr{Kind: codegen.KindLoadImm, Add: nopSlot(), Mul: nopSlot(), Imm: math.Float32bits(4), HasImm: true}
	four.Add.Dst, four.Add.Cond = ir.RegAcc0, ir.CondAlways
	start := mov(ir.RegSFURecip, ir.RegAcc0)
	result := mov(ir.RegAcc1, ir.RegAcc4)

	st, err := emulator.New(program(four, start, nop(), nop(), result), emulator.Config{}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if got := math.Float32frombits(st.Acc[1][3]); got != 0.25 {
		t.Fatalf("1/4 = %v", got)
	}

	_, err = emulator.New(program(four, start, nop(), result), emulator.Config{}).Run()
	fault(t, err, emulator.FaultHazard)
}

func TestPackAndUnpack(t *testing.T) {
	load := codegen.MachineInstr{Kind: codegen.KindLoadImm, Add: nopSlot(), Mul: nopSlot(), Imm: 0x1234FFFE, HasImm: true}
	load.Add.Dst, load.Add.Cond = ir.RegA(0), ir.CondAlways
	sext := mov(ir.RegAcc0, ir.RegA(0))
	sext.Unpack = ir.UnpackShortToIntSext
	sat := movImm(ir.RegA(1), 0xFFFFFFF0)
	sat.Pack = ir.PackIntToUnsignedCharSaturate

	st, err := emulator.New(program(load, nop(), sext, sat), emulator.Config{}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if got := int32(st.Acc[0][0]); got != -2 { //nolint:gosec // reinterpretation
		t.Fatalf("sign extended = %d", got)
	}
	if got := st.A[1][0]; got != 0 {
		t.Fatalf("saturated = %d", got)
	}
}

func TestMemory(t *testing.T) {
	addr := movImm(ir.RegAcc0, 8)
	read := codegen.MachineInstr{Kind: codegen.KindMemory, Add: nopSlot(), Mul: nopSlot(), Memory: codegen.MemoryAccess{
		Op: ir.MemRead, Dst: ir.RegAcc1, Addr: ir.RegAcc0, Src: ir.RegNop, Count: ir.RegNop, ElemBytes: 2, Elems: 3,
	}}
	to := movImm(ir.RegAcc2, 0)
	write := codegen.MachineInstr{Kind: codegen.KindMemory, Add: nopSlot(), Mul: nopSlot(), Memory: codegen.MemoryAccess{
		Op: ir.MemWrite, Addr: ir.RegAcc2, Src: ir.RegAcc1, ElemBytes: 1, Elems: 3,
	}}
	mem := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0xA0, 0x02, 0xB0, 0x03, 0xC0}
	st, err := emulator.New(program(addr, read, to, write), emulator.Config{Memory: mem}).Run()
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0xA001, 0xB002, 0xC003, 0}
	for i, w := range want {
		if st.Acc[1][i] != w {
			t.Errorf("lane %d = %#x, want %#x", i, st.Acc[1][i], w)
		}
	}
	if mem[0] != 0x01 || mem[1] != 0x02 || mem[2] != 0x03 || mem[3] != 0 {
		t.Fatalf("memory = % x", mem[:4])
	}

	_, err = emulator.New(program(movImm(ir.RegAcc0, 15), read), emulator.Config{Memory: mem}).Run()
	fault(t, err, emulator.FaultOutOfBounds)
}

func TestUniformsAndLimits(t *testing.T) {
	both := nop()
	both.Add = codegen.Slot{Op: ir.OpAdd, Dst: ir.RegAcc0, A: codegen.Operand{Reg: ir.RegUniform}, B: codegen.Operand{Reg: ir.RegUniform}}
	st, err := emulator.New(program(both), emulator.Config{Uniforms: []uint32{21, 99}}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if st.Acc[0][7] != 42 || st.UniformsRead != 1 {
		t.Fatalf("r0 = %d after %d uniforms", st.Acc[0][7], st.UniformsRead)
	}

	_, err = emulator.New(program(both), emulator.Config{}).Run()
	fault(t, err, emulator.FaultNoUniform)

	loop := &codegen.Program{Instrs: []codegen.MachineInstr{
		{Kind: codegen.KindBranch, Target: 0, BranchCond: ir.CondAlways}, nop(), nop(), nop(),
	}}
	_, err = emulator.New(loop, emulator.Config{MaxSteps: 50}).Run()
	fault(t, err, emulator.FaultStepLimit)
}

func TestSetup(t *testing.T) {
	prog := &codegen.Program{
		Params: []codegen.Param{
			{Name: "a", Uniforms: 1},
			{Name: "v", Uniforms: 2},
			{Name: "%global_data", Uniforms: 1},
			{Name: "%stack_base", Uniforms: 1},
		},
		GlobalData:     []byte{1, 2, 3},
		StackFrameSize: 16,
	}
	mem, uniforms, err := emulator.Setup(prog, make([]byte, 5), 7, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(mem) != 48 || mem[16] != 1 || mem[18] != 3 {
		t.Fatalf("memory = % x", mem)
	}
	want := []uint32{7, 8, 0, 16, 32}
	if len(uniforms) != len(want) {
		t.Fatalf("uniforms = %v", uniforms)
	}
	for i := range want {
		if uniforms[i] != want[i] {
			t.Fatalf("uniforms = %v, want %v", uniforms, want)
		}
	}
}

package codegen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// Encoder turns a program into its binary or textual form.
type Encoder interface {
	Encode(p *Program) ([]byte, error)
}

// Assemble concatenates the encodings of programs.
func Assemble(enc Encoder, progs ...*Program) ([]byte, error) {
	var buf bytes.Buffer
	for _, p := range progs {
		out, err := enc.Encode(p)
		if err != nil {
			return nil, err
		}
		buf.Write(out)
	}
	return buf.Bytes(), nil
}

// Signals of the ALU and special instruction formats.
const (
	sigNone       = 1
	sigThreadEnd  = 3
	sigSmallImm   = 13
	sigLoadImm    = 14
	sigBranch     = 15
	ldiMemory     = 7 // reserved load immediate mode carrying a memory access
	rotationBase  = 48
	waddrAccBase  = 32
	muxFileA      = 6
	muxFileB      = 7
	branchAlways  = 15
	instrBytes    = 8
	branchPCAhead = 4
)

// BinaryEncoder produces little-endian 64-bit QPU instruction words.
// Memory accesses use a reserved load immediate mode the host loader
// expands into VPM and DMA sequences.
type BinaryEncoder struct{}

func (BinaryEncoder) Encode(p *Program) ([]byte, error) {
	out := make([]byte, 0, len(p.Instrs)*instrBytes)
	for i := range p.Instrs {
		word, err := EncodeInstr(&p.Instrs[i], i)
		if err != nil {
			return nil, diag.CodeErrorf(diag.CodegenUnsupported, fmt.Sprintf("%s@%d", p.Method, i), "%v", err)
		}
		out = binary.LittleEndian.AppendUint64(out, word)
	}
	return out, nil
}

func condCode(c ir.ConditionCode) uint64 {
	switch c {
	case ir.CondNever:
		return 0
	case ir.CondAlways:
		return 1
	case ir.CondZeroSet:
		return 2
	case ir.CondZeroClear:
		return 3
	case ir.CondNegativeSet:
		return 4
	case ir.CondNegativeClear:
		return 5
	case ir.CondCarrySet:
		return 6
	}
	return 7
}

func branchCode(c ir.ConditionCode) uint64 {
	switch c {
	case ir.CondZeroSet:
		return 0
	case ir.CondZeroClear:
		return 1
	case ir.CondNegativeSet:
		return 4
	case ir.CondNegativeClear:
		return 5
	case ir.CondCarrySet:
		return 8
	case ir.CondCarryClear:
		return 9
	}
	return branchAlways
}

func packCode(p ir.PackMode) uint64 {
	switch p {
	case ir.PackIntToShortTruncate, ir.PackFloatToHalfTruncate:
		return 1
	case ir.PackIntToCharTruncate:
		return 4
	case ir.Pack32Saturate:
		return 8
	case ir.PackIntToSignedShortSaturate:
		return 9
	case ir.PackIntToUnsignedCharSaturate:
		return 12
	}
	return 0
}

func unpackCode(u ir.UnpackMode) uint64 {
	switch u {
	case ir.UnpackShortToIntSext, ir.UnpackHalfToFloat:
		return 1
	case ir.UnpackCharToIntZext:
		return 4
	}
	return 0
}

// waddr returns the write address of r and the file it must be written
// through, FileA|FileB when either works.
func waddr(r ir.Register) (uint64, ir.RegisterFile, error) {
	switch {
	case r.IsAccumulator():
		if r.Num > ir.RegScratch.Num {
			return 0, 0, fmt.Errorf("accumulator %s is not writable", r)
		}
		return waddrAccBase + uint64(r.Num), ir.FileA | ir.FileB, nil
	case r.File == ir.FileA, r.File == ir.FileB:
		return uint64(r.Num), r.File, nil
	}
	return uint64(r.Num), ir.FileA | ir.FileB, nil
}

// writeSwap returns the write addresses of both slots and whether the add
// ALU writes through file B.
func writeSwap(add, mul ir.Register) (uint64, uint64, bool, error) {
	wa, fa, err := waddr(add)
	if err != nil {
		return 0, 0, false, err
	}
	wm, fm, err := waddr(mul)
	if err != nil {
		return 0, 0, false, err
	}
	swap := fa == ir.FileB || fm == ir.FileA
	if (swap && (fa == ir.FileA || fm == ir.FileB)) || (!swap && (fa == ir.FileB || fm == ir.FileA)) {
		return 0, 0, false, fmt.Errorf("%s and %s are written through the same file", add, mul)
	}
	return wa, wm, swap, nil
}

// readPorts assigns the two raddr fields to the operands of an instruction.
type readPorts struct {
	a, b      uint64
	usedA     bool
	usedB     bool
	immediate bool
}

func (p *readPorts) mux(op Operand) (uint64, error) {
	if op.Imm {
		return muxFileB, nil
	}
	r := op.Reg
	if r.IsAccumulator() {
		return uint64(r.Num), nil
	}
	num := uint64(r.Num)
	useA := func() (uint64, error) {
		if p.usedA && p.a != num {
			return 0, fmt.Errorf("second file A read of %s", r)
		}
		p.a, p.usedA = num, true
		return muxFileA, nil
	}
	useB := func() (uint64, error) {
		if p.immediate || (p.usedB && p.b != num) {
			return 0, fmt.Errorf("second file B read of %s", r)
		}
		p.b, p.usedB = num, true
		return muxFileB, nil
	}
	switch r.File {
	case ir.FileA:
		return useA()
	case ir.FileB:
		return useB()
	}
	switch {
	case p.usedA && p.a == num:
		return muxFileA, nil
	case p.usedB && p.b == num:
		return muxFileB, nil
	case !p.usedA:
		return useA()
	}
	return useB()
}

// EncodeInstr encodes the instruction at index i of its program.
func EncodeInstr(mi *MachineInstr, i int) (uint64, error) {
	switch mi.Kind {
	case KindBranch:
		return encodeBranch(mi, i), nil
	case KindLoadImm:
		wa, wm, swap, err := writeSwap(mi.Add.Dst, ir.RegNop)
		if err != nil {
			return 0, err
		}
		word := uint64(sigLoadImm)<<60 | packCode(mi.Pack)<<52 |
			condCode(mi.Add.Cond)<<49 | wa<<38 | wm<<32 | uint64(mi.Imm)
		return word | flag(mi.SetFlags)<<45 | flag(swap)<<44, nil
	case KindMemory:
		return encodeMemory(mi)
	case KindALU, KindThreadEnd:
		return encodeALU(mi)
	}
	return 0, fmt.Errorf("cannot encode %s instruction", mi.Kind)
}

func flag(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func encodeBranch(mi *MachineInstr, i int) uint64 {
	offset := int64(mi.Target-(i+branchPCAhead)) * instrBytes
	wa, _, _ := waddr(ir.RegNop)
	return uint64(sigBranch)<<60 | branchCode(mi.BranchCond)<<52 | 1<<51 |
		wa<<38 | wa<<32 | uint64(uint32(int32(offset))) //nolint:gosec // branch range fits 32 bits
}

func encodeALU(mi *MachineInstr) (uint64, error) {
	sig := uint64(sigNone)
	ports := readPorts{}
	switch {
	case mi.Kind == KindThreadEnd:
		sig = sigThreadEnd
	case mi.HasImm && mi.Rotation != 0:
		return 0, fmt.Errorf("rotation and small immediate in one instruction")
	case mi.HasImm:
		code, ok := SmallImmediate(mi.Imm)
		if !ok {
			return 0, fmt.Errorf("%#x is no small immediate", mi.Imm)
		}
		sig, ports.b, ports.immediate = sigSmallImm, uint64(code), true
	case mi.Rotation == RotateByR5:
		sig, ports.b, ports.immediate = sigSmallImm, rotationBase, true
	case mi.Rotation != 0:
		sig, ports.b, ports.immediate = sigSmallImm, rotationBase+uint64(mi.Rotation), true
	}
	add, mul := mi.Add, mi.Mul
	if !add.Used() {
		add = nopSlot()
	}
	if !mul.Used() {
		mul = nopSlot()
	}
	var muxes [4]uint64
	for k, op := range []Operand{add.A, add.B, mul.A, mul.B} {
		// idle slots read nothing
		if (k < 2 && !mi.Add.Used()) || (k >= 2 && !mi.Mul.Used()) {
			continue
		}
		m, err := ports.mux(op)
		if err != nil {
			return 0, err
		}
		muxes[k] = m
	}
	wa, wm, swap, err := writeSwap(add.Dst, mul.Dst)
	if err != nil {
		return 0, err
	}
	raddrA := uint64(ir.RegNop.Num)
	if ports.usedA {
		raddrA = ports.a
	}
	raddrB := uint64(ir.RegNop.Num)
	if ports.usedB || ports.immediate {
		raddrB = ports.b
	}
	word := sig<<60 | unpackCode(mi.Unpack)<<57 | packCode(mi.Pack)<<52 |
		condCode(add.Cond)<<49 | condCode(mul.Cond)<<46 | flag(mi.SetFlags)<<45 | flag(swap)<<44 |
		wa<<38 | wm<<32 | uint64(mul.Op.Mul&0x7)<<29 | uint64(add.Op.Add&0x1F)<<24 |
		raddrA<<18 | raddrB<<12 | muxes[0]<<9 | muxes[1]<<6 | muxes[2]<<3 | muxes[3]
	return word, nil
}

// regCode packs a register into eight bits: the file in the top two and
// the number in the low six.
func regCode(r ir.Register) uint64 {
	var file uint64
	switch r.File {
	case ir.FileA:
		file = 1
	case ir.FileB:
		file = 2
	case ir.FileA | ir.FileB:
		file = 3
	}
	return file<<6 | uint64(r.Num&0x3F)
}

func encodeMemory(mi *MachineInstr) (uint64, error) {
	acc := mi.Memory
	var log2 uint64
	switch acc.ElemBytes {
	case 1:
	case 2:
		log2 = 1
	case 4:
		log2 = 2
	default:
		return 0, fmt.Errorf("element size %d", acc.ElemBytes)
	}
	if acc.Elems < 1 || acc.Elems > ir.NativeVectorWidth {
		return 0, fmt.Errorf("%d elements", acc.Elems)
	}
	return uint64(sigLoadImm)<<60 | ldiMemory<<57 | uint64(acc.Op&0x3)<<54 | log2<<51 |
		uint64(acc.Elems-1)<<46 | regCode(acc.Dst)<<24 | regCode(acc.Addr)<<16 |
		regCode(acc.Src)<<8 | regCode(acc.Count), nil
}

// TextEncoder renders a program as readable assembly, one instruction per
// line.
type TextEncoder struct{}

func (TextEncoder) Encode(p *Program) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "// %s\n", p.Method)
	labels := make(map[int][]string, len(p.Labels))
	for name, idx := range p.Labels {
		labels[idx] = append(labels[idx], name)
	}
	for i := range p.Instrs {
		names := labels[i]
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "%s:\n", name)
		}
		fmt.Fprintf(&sb, "  %s\n", p.Instrs[i].String())
	}
	return []byte(sb.String()), nil
}

func (s Slot) format(mi *MachineInstr) string {
	var sb strings.Builder
	sb.WriteString(s.Op.Name)
	if s.Cond != ir.CondAlways {
		sb.WriteString("." + s.Cond.String())
	}
	operand := func(op Operand) string {
		if op.Imm {
			return fmt.Sprintf("%#x", mi.Imm)
		}
		return op.Reg.String()
	}
	fmt.Fprintf(&sb, " %s, %s", s.Dst, operand(s.A))
	if s.Op.Operands != 1 && !s.IsMove() {
		sb.WriteString(", " + operand(s.B))
	}
	return sb.String()
}

func (mi *MachineInstr) String() string {
	var parts []string
	switch mi.Kind {
	case KindBranch:
		cc := "always"
		if mi.BranchCond != ir.CondAlways {
			cc = "all." + mi.BranchCond.String()
		}
		return fmt.Sprintf("br.%s %s (%d)", cc, mi.Label, mi.Target)
	case KindThreadEnd:
		return "thrend"
	case KindLoadImm:
		s := fmt.Sprintf("ldi %s, %#x", mi.Add.Dst, mi.Imm)
		if mi.Add.Cond != ir.CondAlways {
			s = fmt.Sprintf("ldi.%s %s, %#x", mi.Add.Cond, mi.Add.Dst, mi.Imm)
		}
		parts = append(parts, s)
	case KindMemory:
		acc := mi.Memory
		switch acc.Op {
		case ir.MemRead:
			parts = append(parts, fmt.Sprintf("read %s, [%s] (%dx%d)", acc.Dst, acc.Addr, acc.Elems, acc.ElemBytes))
		case ir.MemWrite:
			parts = append(parts, fmt.Sprintf("write [%s], %s (%dx%d)", acc.Addr, acc.Src, acc.Elems, acc.ElemBytes))
		default:
			parts = append(parts, fmt.Sprintf("%s [%s], %s, %s", acc.Op, acc.Addr, acc.Src, acc.Count))
		}
	case KindALU:
		if mi.IsNop() {
			return "nop"
		}
		for _, s := range mi.Slots() {
			parts = append(parts, s.format(mi))
		}
	}
	out := strings.Join(parts, "; ")
	if mi.SetFlags {
		out += " setf"
	}
	if mi.Pack != ir.PackNop {
		out += " pack." + mi.Pack.String()
	}
	if mi.Unpack != ir.UnpackNop {
		out += " unpack." + mi.Unpack.String()
	}
	switch {
	case mi.Rotation == RotateByR5:
		out += " rot.r5"
	case mi.Rotation != 0:
		out += fmt.Sprintf(" rot.%d", mi.Rotation)
	}
	return out
}

// Package codegen turns a normalized method into QPU machine instructions:
// registers are allocated over the accumulators and the two register files,
// operand conflicts and hazards are fixed up, independent add and mul
// operations are paired and labels are resolved to instruction indices.
package codegen

import "vc4c/internal/ir"

// Kind selects the instruction format of a MachineInstr.
type Kind uint8

const (
	KindALU Kind = iota
	KindLoadImm
	KindBranch
	KindMemory
	KindThreadEnd

	// kindLabel marks a label position while generating; it never appears in
	// a Program.
	kindLabel
)

func (k Kind) String() string {
	switch k {
	case KindALU:
		return "alu"
	case KindLoadImm:
		return "ldi"
	case KindBranch:
		return "br"
	case KindMemory:
		return "mem"
	case KindThreadEnd:
		return "thrend"
	case kindLabel:
		return "label"
	}
	return "kind?"
}

// RotateByR5 as rotation rotates the mul ALU inputs by lane 0 of r5.
const RotateByR5 = 16

// Operand is an ALU input: a register, or the small immediate of the
// instruction.
type Operand struct {
	Reg ir.Register
	Imm bool
}

// Slot is the operation of one of the two ALUs.
type Slot struct {
	Op   ir.OpCode
	Dst  ir.Register
	A, B Operand
	Cond ir.ConditionCode
}

// Used reports whether the slot performs an operation.
func (s Slot) Used() bool { return s.Op.Name != "" && !s.Op.IsNop() }

// IsMove reports whether the slot copies A unchanged.
func (s Slot) IsMove() bool {
	return (s.Op == ir.OpOr || s.Op == ir.OpV8Min) && s.A == s.B
}

func nopSlot() Slot {
	return Slot{Op: ir.OpNop, Dst: ir.RegNop, A: Operand{Reg: ir.RegNop}, B: Operand{Reg: ir.RegNop}, Cond: ir.CondNever}
}

// MemoryAccess is a memory operation. Element i of the accessed value is
// lane i of Dst (reads) or Src (writes) and lives at the address in lane 0
// of Addr plus i times ElemBytes. Copies and fills move Count bytes.
type MemoryAccess struct {
	Op        ir.MemOp
	Dst       ir.Register
	Addr      ir.Register
	Src       ir.Register
	Count     ir.Register
	ElemBytes int
	Elems     int
}

// MachineInstr is a single QPU instruction.
type MachineInstr struct {
	Kind     Kind
	Add, Mul Slot
	// SetFlags updates the flags from the add ALU result, or from the mul
	// ALU if the add ALU is idle.
	SetFlags bool
	// Pack applies to the result written by the only used slot.
	Pack ir.PackMode
	// Unpack applies to every operand read from register file A.
	Unpack ir.UnpackMode
	// Rotation of the mul ALU inputs in lanes, or RotateByR5.
	Rotation uint8
	// Imm is the small immediate read by operands with Imm set, or the
	// value of a load immediate.
	Imm    uint32
	HasImm bool

	// Branches jump to Target when BranchCond holds in all lanes. Three
	// delay slots follow every branch.
	Target     int
	BranchCond ir.ConditionCode
	Label      string

	Memory MemoryAccess
}

func newALU() *MachineInstr {
	return &MachineInstr{Kind: KindALU, Add: nopSlot(), Mul: nopSlot()}
}

func newNop() *MachineInstr { return newALU() }

// IsNop reports whether the instruction has no effect.
func (mi *MachineInstr) IsNop() bool {
	return mi.Kind == KindALU && !mi.Add.Used() && !mi.Mul.Used() && !mi.SetFlags
}

// Slots returns the used ALU slots.
func (mi *MachineInstr) Slots() []*Slot {
	var out []*Slot
	if mi.Kind != KindALU {
		return nil
	}
	if mi.Add.Used() {
		out = append(out, &mi.Add)
	}
	if mi.Mul.Used() {
		out = append(out, &mi.Mul)
	}
	return out
}

// Reads returns the registers the instruction reads, without duplicates.
func (mi *MachineInstr) Reads() []ir.Register {
	var regs []ir.Register
	add := func(r ir.Register) {
		if r.IsNop() {
			return
		}
		for _, have := range regs {
			if have == r {
				return
			}
		}
		regs = append(regs, r)
	}
	switch mi.Kind {
	case KindALU:
		for _, s := range mi.Slots() {
			if !s.A.Imm {
				add(s.A.Reg)
			}
			if !s.B.Imm {
				add(s.B.Reg)
			}
		}
		if mi.Rotation == RotateByR5 {
			add(ir.RegAcc5)
		}
	case KindMemory:
		add(mi.Memory.Addr)
		switch mi.Memory.Op {
		case ir.MemWrite, ir.MemCopy, ir.MemFill:
			add(mi.Memory.Src)
		}
		switch mi.Memory.Op {
		case ir.MemCopy, ir.MemFill:
			add(mi.Memory.Count)
		}
	}
	return regs
}

// Writes returns the registers the instruction writes. Writing the
// replication or SFU registers counts as writing r5 or r4.
func (mi *MachineInstr) Writes() []ir.Register {
	var regs []ir.Register
	add := func(r ir.Register) {
		switch r {
		case ir.RegNop:
			return
		case ir.RegReplicateAll:
			regs = append(regs, r, ir.RegAcc5)
		case ir.RegSFURecip:
			regs = append(regs, r, ir.RegAcc4)
		default:
			regs = append(regs, r)
		}
	}
	switch mi.Kind {
	case KindALU:
		for _, s := range mi.Slots() {
			add(s.Dst)
		}
	case KindLoadImm:
		add(mi.Add.Dst)
	case KindMemory:
		if mi.Memory.Op == ir.MemRead {
			add(mi.Memory.Dst)
		}
	}
	return regs
}

// Param is a value the method reads from the uniform stream at entry.
type Param struct {
	Name string
	// Uniforms is the number of uniforms read, one per lane of vectors.
	Uniforms int
}

// Program is the generated code of one method.
type Program struct {
	Method string
	Kernel bool
	Instrs []MachineInstr
	// Labels maps label names to instruction indices.
	Labels map[string]int
	// Params are the parameters in uniform order, hidden ones included.
	Params         []Param
	StackFrameSize int
	// GlobalData is the initial content of the global data segment.
	GlobalData []byte
	// Registers records the register of every local, for dumps.
	Registers map[string]string
}

package ir

// InstrKind enumerates the instruction kinds of the IR.
type InstrKind uint8

const (
	// InstrNop does nothing.
	InstrNop InstrKind = iota
	// InstrOp is a native ALU operation.
	InstrOp
	// InstrMove copies a value.
	InstrMove
	// InstrLoadImm loads a 32-bit constant into every lane.
	InstrLoadImm
	// InstrCompare is a typed comparison producing a boolean.
	InstrCompare
	// InstrMemory reads, writes, copies or fills memory.
	InstrMemory
	// InstrBranch jumps to a label when its condition holds.
	InstrBranch
	// InstrLabel starts a basic block.
	InstrLabel
	// InstrPhi selects a value by predecessor block.
	InstrPhi
	// InstrCall calls another method by name.
	InstrCall
	// InstrIntrinsic is an operation without a native opcode, lowered later.
	InstrIntrinsic
	// InstrLifetime marks the start or end of a stack allocation's lifetime.
	InstrLifetime
	// InstrBarrier is a memory barrier.
	InstrBarrier
	// InstrReturn leaves the method.
	InstrReturn
	// InstrRotate rotates the lanes of a vector upwards.
	InstrRotate
)

func (k InstrKind) String() string {
	switch k {
	case InstrNop:
		return "nop"
	case InstrOp:
		return "op"
	case InstrMove:
		return "move"
	case InstrLoadImm:
		return "ldi"
	case InstrCompare:
		return "cmp"
	case InstrMemory:
		return "memory"
	case InstrBranch:
		return "br"
	case InstrLabel:
		return "label"
	case InstrPhi:
		return "phi"
	case InstrCall:
		return "call"
	case InstrIntrinsic:
		return "intrinsic"
	case InstrLifetime:
		return "lifetime"
	case InstrBarrier:
		return "barrier"
	case InstrReturn:
		return "ret"
	case InstrRotate:
		return "rotate"
	}
	return "unknown"
}

// Instr is a single IR instruction. Kind selects which payload is valid; the
// common fields apply to every kind that writes Dst.
type Instr struct {
	Kind InstrKind

	Dst      Value
	Cond     ConditionCode
	SetFlags bool
	Pack     PackMode
	Unpack   UnpackMode
	Deco     Decorations

	Op        OpInstr
	Move      MoveInstr
	LoadImm   LoadImmInstr
	Compare   CompareInstr
	Memory    MemoryInstr
	Branch    BranchInstr
	Label     LabelInstr
	Phi       PhiInstr
	Call      CallInstr
	Intrinsic IntrinsicInstr
	Lifetime  LifetimeInstr
	Barrier   BarrierInstr
	Return    ReturnInstr
	Rotate    RotateInstr
}

// OpInstr is an ALU operation with one or two operands.
type OpInstr struct {
	Code OpCode
	Args []Value
}

// MoveInstr copies Src into Dst.
type MoveInstr struct {
	Src Value
}

// LoadImmInstr loads Value into every lane of Dst.
type LoadImmInstr struct {
	Value Literal
}

// Predicate names a comparison.
type Predicate string

const (
	CmpEQ  Predicate = "eq"
	CmpNE  Predicate = "ne"
	CmpUGT Predicate = "ugt"
	CmpUGE Predicate = "uge"
	CmpULT Predicate = "ult"
	CmpULE Predicate = "ule"
	CmpSGT Predicate = "sgt"
	CmpSGE Predicate = "sge"
	CmpSLT Predicate = "slt"
	CmpSLE Predicate = "sle"

	CmpFOEQ Predicate = "oeq"
	CmpFONE Predicate = "one"
	CmpFOLT Predicate = "olt"
	CmpFOLE Predicate = "ole"
	CmpFOGT Predicate = "ogt"
	CmpFOGE Predicate = "oge"
	CmpFUEQ Predicate = "ueq"
	CmpFUNE Predicate = "une"
	CmpFULT Predicate = "ult"
	CmpFULE Predicate = "ule"
	CmpFUGT Predicate = "ugt"
	CmpFUGE Predicate = "uge"
	CmpFORD Predicate = "ord"
	CmpFUNO Predicate = "uno"
)

// CompareInstr writes Left <Pred> Right into the boolean Dst.
type CompareInstr struct {
	Pred  Predicate
	Left  Value
	Right Value
	Float bool
}

// MemOp selects the memory access of a MemoryInstr.
type MemOp uint8

const (
	// MemRead loads from Addr into Dst.
	MemRead MemOp = iota
	// MemWrite stores Src to Addr.
	MemWrite
	// MemCopy copies Count bytes from Src to Addr.
	MemCopy
	// MemFill sets Count bytes at Addr to the byte Src.
	MemFill
)

func (o MemOp) String() string {
	switch o {
	case MemRead:
		return "read"
	case MemWrite:
		return "write"
	case MemCopy:
		return "copy"
	case MemFill:
		return "fill"
	}
	return "mem?"
}

// MemoryInstr accesses memory. Addr is the source address for reads and the
// destination address otherwise.
type MemoryInstr struct {
	Op    MemOp
	Addr  Value
	Src   Value
	Count Value
}

// BranchInstr jumps to Target when Instr.Cond holds for the flags set from
// Cond. Unconditional branches use CondAlways and BoolTrue.
type BranchInstr struct {
	Target LocalID
	Cond   Value
}

// LabelInstr opens the block named by Label.
type LabelInstr struct {
	Label LocalID
}

// PhiIncoming is the value a phi takes when control arrives from Label.
type PhiIncoming struct {
	Label LocalID
	Value Value
}

// PhiInstr selects one of Incoming by predecessor.
type PhiInstr struct {
	Incoming []PhiIncoming
}

// CallInstr calls the method Name.
type CallInstr struct {
	Name string
	Args []Value
}

// IntrinsicInstr is an operation named Name that has no native opcode.
type IntrinsicInstr struct {
	Name string
	Args []Value
}

// LifetimeInstr delimits the lifetime of the stack allocation Alloc. Alloc is
// NoLocalID when the pointer could not be traced to an allocation.
type LifetimeInstr struct {
	Alloc LocalID
	Ptr   Value
	End   bool
}

// MemoryScope is the scope of a memory barrier.
type MemoryScope uint32

const (
	ScopeCrossDevice MemoryScope = iota
	ScopeDevice
	ScopeWorkGroup
	ScopeSubGroup
	ScopeInvocation
)

// MemorySemantics is the ordering requested by a memory barrier.
type MemorySemantics uint32

const (
	SemanticsNone           MemorySemantics = 0
	SemanticsAcquire        MemorySemantics = 0x2
	SemanticsRelease        MemorySemantics = 0x4
	SemanticsAcquireRelease MemorySemantics = 0x8
)

// BarrierInstr orders memory accesses.
type BarrierInstr struct {
	Scope     MemoryScope
	Semantics MemorySemantics
}

// ReturnInstr leaves the method, returning Value unless it is NoValue.
type ReturnInstr struct {
	Value Value
}

// RotateInstr writes Src rotated up by Offset lanes into Dst: lane i of
// the result is lane (i - Offset) mod 16 of Src.
type RotateInstr struct {
	Src    Value
	Offset Value
}

func newInstr(kind InstrKind, dst Value) *Instr {
	return &Instr{Kind: kind, Dst: dst}
}

// NewOp builds an ALU operation.
func NewOp(code OpCode, dst Value, args ...Value) *Instr {
	ins := newInstr(InstrOp, dst)
	ins.Op = OpInstr{Code: code, Args: args}
	return ins
}

// NewMove builds a move.
func NewMove(dst, src Value) *Instr {
	ins := newInstr(InstrMove, dst)
	ins.Move = MoveInstr{Src: src}
	return ins
}

// NewLoadImm builds a load of a 32-bit immediate.
func NewLoadImm(dst Value, lit Literal) *Instr {
	ins := newInstr(InstrLoadImm, dst)
	ins.LoadImm = LoadImmInstr{Value: lit}
	return ins
}

// NewCompare builds a comparison.
func NewCompare(pred Predicate, dst, left, right Value, isFloat bool) *Instr {
	ins := newInstr(InstrCompare, dst)
	ins.Compare = CompareInstr{Pred: pred, Left: left, Right: right, Float: isFloat}
	return ins
}

// NewRead builds a memory load of dst from addr.
func NewRead(dst, addr Value) *Instr {
	ins := newInstr(InstrMemory, dst)
	ins.Memory = MemoryInstr{Op: MemRead, Addr: addr, Src: NoValue, Count: NoValue}
	return ins
}

// NewWrite builds a memory store of val to addr.
func NewWrite(addr, val Value) *Instr {
	ins := newInstr(InstrMemory, NoValue)
	ins.Memory = MemoryInstr{Op: MemWrite, Addr: addr, Src: val, Count: NoValue}
	return ins
}

// NewCopy builds a copy of count bytes from src to dst.
func NewCopy(dst, src, count Value) *Instr {
	ins := newInstr(InstrMemory, NoValue)
	ins.Memory = MemoryInstr{Op: MemCopy, Addr: dst, Src: src, Count: count}
	return ins
}

// NewFill builds a fill of count bytes at addr with the byte val.
func NewFill(addr, val, count Value) *Instr {
	ins := newInstr(InstrMemory, NoValue)
	ins.Memory = MemoryInstr{Op: MemFill, Addr: addr, Src: val, Count: count}
	return ins
}

// NewBranch builds a branch to target taken when cc holds for cond.
func NewBranch(target LocalID, cc ConditionCode, cond Value) *Instr {
	ins := newInstr(InstrBranch, NoValue)
	ins.Cond = cc
	ins.Branch = BranchInstr{Target: target, Cond: cond}
	return ins
}

// NewLabel builds a block label.
func NewLabel(label LocalID) *Instr {
	ins := newInstr(InstrLabel, NoValue)
	ins.Label = LabelInstr{Label: label}
	return ins
}

// NewPhi builds a phi node.
func NewPhi(dst Value, incoming []PhiIncoming) *Instr {
	ins := newInstr(InstrPhi, dst)
	ins.Phi = PhiInstr{Incoming: incoming}
	return ins
}

// NewCall builds a method call; dst may be NoValue.
func NewCall(dst Value, name string, args ...Value) *Instr {
	ins := newInstr(InstrCall, dst)
	ins.Call = CallInstr{Name: name, Args: args}
	return ins
}

// NewIntrinsic builds an intrinsic operation.
func NewIntrinsic(name string, dst Value, args ...Value) *Instr {
	ins := newInstr(InstrIntrinsic, dst)
	ins.Intrinsic = IntrinsicInstr{Name: name, Args: args}
	return ins
}

// NewLifetime builds a lifetime boundary.
func NewLifetime(alloc LocalID, ptr Value, end bool) *Instr {
	ins := newInstr(InstrLifetime, NoValue)
	ins.Lifetime = LifetimeInstr{Alloc: alloc, Ptr: ptr, End: end}
	return ins
}

// NewBarrier builds a memory barrier.
func NewBarrier(scope MemoryScope, sem MemorySemantics) *Instr {
	ins := newInstr(InstrBarrier, NoValue)
	ins.Barrier = BarrierInstr{Scope: scope, Semantics: sem}
	return ins
}

// NewReturn builds a return; pass NoValue for void.
func NewReturn(v Value) *Instr {
	ins := newInstr(InstrReturn, NoValue)
	ins.Return = ReturnInstr{Value: v}
	return ins
}

// NewRotate builds a vector rotation of src up by offset lanes.
func NewRotate(dst, src, offset Value) *Instr {
	ins := newInstr(InstrRotate, dst)
	ins.Rotate = RotateInstr{Src: src, Offset: offset}
	return ins
}

// NewNop builds a no-op.
func NewNop() *Instr {
	return newInstr(InstrNop, NoValue)
}

// WithCond sets the condition code and returns the instruction.
func (ins *Instr) WithCond(cc ConditionCode) *Instr {
	ins.Cond = cc
	return ins
}

// WithSetFlags makes the instruction update the lane flags.
func (ins *Instr) WithSetFlags() *Instr {
	ins.SetFlags = true
	return ins
}

// WithPack sets the pack mode.
func (ins *Instr) WithPack(p PackMode) *Instr {
	ins.Pack = p
	return ins
}

// WithUnpack sets the unpack mode.
func (ins *Instr) WithUnpack(u UnpackMode) *Instr {
	ins.Unpack = u
	return ins
}

// AddDecorations adds d to the decorations.
func (ins *Instr) AddDecorations(d Decorations) *Instr {
	ins.Deco |= d
	return ins
}

// Output returns the value written by the instruction and whether there is
// one.
func (ins *Instr) Output() (Value, bool) {
	switch ins.Kind {
	case InstrOp, InstrMove, InstrLoadImm, InstrCompare, InstrPhi, InstrCall, InstrIntrinsic, InstrRotate:
		return ins.Dst, !ins.Dst.IsNone()
	case InstrMemory:
		if ins.Memory.Op == MemRead {
			return ins.Dst, !ins.Dst.IsNone()
		}
	}
	return NoValue, false
}

// Args returns the values read by the instruction, in operand order.
func (ins *Instr) Args() []Value {
	switch ins.Kind {
	case InstrOp:
		return ins.Op.Args
	case InstrMove:
		return []Value{ins.Move.Src}
	case InstrCompare:
		return []Value{ins.Compare.Left, ins.Compare.Right}
	case InstrMemory:
		args := []Value{ins.Memory.Addr}
		if !ins.Memory.Src.IsNone() {
			args = append(args, ins.Memory.Src)
		}
		if !ins.Memory.Count.IsNone() {
			args = append(args, ins.Memory.Count)
		}
		return args
	case InstrBranch:
		return []Value{ins.Branch.Cond}
	case InstrPhi:
		vals := make([]Value, len(ins.Phi.Incoming))
		for i, in := range ins.Phi.Incoming {
			vals[i] = in.Value
		}
		return vals
	case InstrCall:
		return ins.Call.Args
	case InstrIntrinsic:
		return ins.Intrinsic.Args
	case InstrLifetime:
		return []Value{ins.Lifetime.Ptr}
	case InstrReturn:
		if ins.Return.Value.IsNone() {
			return nil
		}
		return []Value{ins.Return.Value}
	case InstrRotate:
		return []Value{ins.Rotate.Src, ins.Rotate.Offset}
	}
	return nil
}

// SetArg replaces operand i (in Args order).
func (ins *Instr) SetArg(i int, v Value) {
	switch ins.Kind {
	case InstrOp:
		ins.Op.Args[i] = v
	case InstrMove:
		ins.Move.Src = v
	case InstrCompare:
		if i == 0 {
			ins.Compare.Left = v
		} else {
			ins.Compare.Right = v
		}
	case InstrMemory:
		switch {
		case i == 0:
			ins.Memory.Addr = v
		case i == 1 && !ins.Memory.Src.IsNone():
			ins.Memory.Src = v
		default:
			ins.Memory.Count = v
		}
	case InstrBranch:
		ins.Branch.Cond = v
	case InstrPhi:
		ins.Phi.Incoming[i].Value = v
	case InstrCall:
		ins.Call.Args[i] = v
	case InstrIntrinsic:
		ins.Intrinsic.Args[i] = v
	case InstrLifetime:
		ins.Lifetime.Ptr = v
	case InstrReturn:
		ins.Return.Value = v
	case InstrRotate:
		if i == 0 {
			ins.Rotate.Src = v
		} else {
			ins.Rotate.Offset = v
		}
	}
}

// Reads reports whether the instruction reads local id.
func (ins *Instr) Reads(id LocalID) bool {
	for _, a := range ins.Args() {
		if readsLocal(a, id) {
			return true
		}
	}
	return false
}

func readsLocal(v Value, id LocalID) bool {
	if v.HasLocal(id) {
		return true
	}
	for _, e := range v.Elems {
		if readsLocal(e, id) {
			return true
		}
	}
	return false
}

// Writes reports whether the instruction writes local id.
func (ins *Instr) Writes(id LocalID) bool {
	out, ok := ins.Output()
	return ok && out.HasLocal(id)
}

// Locals returns every local the instruction reads or writes, including
// branch targets and labels. Duplicates are removed.
func (ins *Instr) Locals() []LocalID {
	var ids []LocalID
	add := func(id LocalID) {
		if id == NoLocalID {
			return
		}
		for _, have := range ids {
			if have == id {
				return
			}
		}
		ids = append(ids, id)
	}
	var visit func(v Value)
	visit = func(v Value) {
		if v.IsLocal() {
			add(v.Local)
		}
		for _, e := range v.Elems {
			visit(e)
		}
	}
	if out, ok := ins.Output(); ok {
		visit(out)
	}
	for _, a := range ins.Args() {
		visit(a)
	}
	switch ins.Kind {
	case InstrBranch:
		add(ins.Branch.Target)
	case InstrLabel:
		add(ins.Label.Label)
	case InstrPhi:
		for _, in := range ins.Phi.Incoming {
			add(in.Label)
		}
	case InstrLifetime:
		add(ins.Lifetime.Alloc)
	}
	return ids
}

// IsConditional reports whether the write of the instruction depends on the
// flags.
func (ins *Instr) IsConditional() bool {
	return ins.Cond != CondAlways
}

// HasSideEffects reports whether the instruction does more than write Dst.
func (ins *Instr) HasSideEffects() bool {
	if ins.SetFlags || ins.Deco.Has(DecoVolatile) {
		return true
	}
	switch ins.Kind {
	case InstrMemory, InstrBranch, InstrLabel, InstrCall, InstrLifetime, InstrBarrier, InstrReturn:
		return true
	}
	if ins.Dst.IsRegister() && !ins.Dst.Reg.IsNop() {
		return true
	}
	for _, a := range ins.Args() {
		// reading a uniform consumes it
		if a.IsRegister() && a.Reg == RegUniform {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the operand slices so the copy can be
// modified independently.
func (ins *Instr) Clone() *Instr {
	c := *ins
	c.Op.Args = append([]Value(nil), ins.Op.Args...)
	c.Phi.Incoming = append([]PhiIncoming(nil), ins.Phi.Incoming...)
	c.Call.Args = append([]Value(nil), ins.Call.Args...)
	c.Intrinsic.Args = append([]Value(nil), ins.Intrinsic.Args...)
	return &c
}

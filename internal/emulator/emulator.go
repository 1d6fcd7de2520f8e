// Package emulator executes generated programs on a model of a single QPU:
// sixteen lanes, the accumulators, both register files, per-lane flags and a
// flat byte memory. Tests use it to check the behavior of compiled code.
package emulator

import (
	"vc4c/internal/codegen"
	"vc4c/internal/ir"
)

// Lanes is the number of SIMD lanes.
const Lanes = ir.NativeVectorWidth

// DefaultMaxSteps bounds a run when Config.MaxSteps is not set.
const DefaultMaxSteps = 100_000

// Vector is the content of one register.
type Vector [Lanes]uint32

// Splat returns a vector holding v in every lane.
func Splat(v uint32) Vector {
	var out Vector
	for i := range out {
		out[i] = v
	}
	return out
}

// Config is the input of a run.
type Config struct {
	// Uniforms are consumed in order by reads of the uniform register.
	Uniforms []uint32
	// Memory is modified in place.
	Memory   []byte
	MaxSteps int
}

// State is the machine state.
type State struct {
	Acc  [6]Vector
	A, B [ir.GeneralRegisters]Vector

	Zero, Negative, Carry [Lanes]bool

	Memory []byte
	PC     int
	Steps  int
	// UniformsRead counts the consumed uniforms.
	UniformsRead int
	Finished     bool
}

// Reg returns the content of a storage register.
func (s *State) Reg(r ir.Register) Vector {
	switch {
	case r.IsAccumulator():
		return s.Acc[r.Num]
	case r.File == ir.FileA && r.IsGeneralPurpose():
		return s.A[r.Num]
	case r.File == ir.FileB && r.IsGeneralPurpose():
		return s.B[r.Num]
	}
	return Vector{}
}

// Emulator runs one program once.
type Emulator struct {
	prog *codegen.Program
	cfg  Config
	st   State

	// branch and end countdowns in instructions, zero when idle
	branchIn, branchTo int
	endIn              int

	prevWrites []ir.Register
	// sfuAge counts the instructions since the last SFU start.
	sfuAge int
}

// New prepares a run of prog.
func New(prog *codegen.Program, cfg Config) *Emulator {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	return &Emulator{prog: prog, cfg: cfg, st: State{Memory: cfg.Memory}, sfuAge: -1}
}

// Run executes the program until its thread end and returns the final
// state. A fault returns the state reached so far together with the error.
func (e *Emulator) Run() (*State, error) {
	for !e.st.Finished {
		if e.st.Steps >= e.cfg.MaxSteps {
			return &e.st, e.fault(FaultStepLimit, "no thread end after %d steps", e.cfg.MaxSteps)
		}
		if e.st.PC < 0 || e.st.PC >= len(e.prog.Instrs) {
			return &e.st, e.fault(FaultBadPC, "program has %d instructions", len(e.prog.Instrs))
		}
		mi := &e.prog.Instrs[e.st.PC]
		if err := e.checkHazards(mi); err != nil {
			return &e.st, err
		}
		if err := e.execute(mi); err != nil {
			return &e.st, err
		}
		e.prevWrites = mi.Writes()
		if e.sfuAge >= 0 {
			e.sfuAge++
		}
		for _, w := range e.prevWrites {
			if w == ir.RegSFURecip {
				e.sfuAge = 0
			}
		}
		e.st.Steps++
		e.advance()
	}
	return &e.st, nil
}

func (e *Emulator) advance() {
	next := e.st.PC + 1
	if e.branchIn > 0 {
		if e.branchIn--; e.branchIn == 0 {
			next = e.branchTo
		}
	}
	if e.endIn > 0 {
		if e.endIn--; e.endIn == 0 {
			e.st.Finished = true
		}
	}
	e.st.PC = next
}

// checkHazards rejects reads of values the hardware has not written back
// yet.
func (e *Emulator) checkHazards(mi *codegen.MachineInstr) error {
	reads := mi.Reads()
	for _, r := range reads {
		for _, w := range e.prevWrites {
			if r != w {
				continue
			}
			if r.IsGeneralPurpose() {
				return e.fault(FaultHazard, "%s is read right after it is written", r)
			}
			if mi.Rotation != 0 && r.IsAccumulator() {
				return e.fault(FaultHazard, "%s is rotated right after it is written", r)
			}
		}
		if r == ir.RegAcc4 && e.sfuAge >= 0 && e.sfuAge < 2 {
			return e.fault(FaultHazard, "r4 is read %d instructions after the SFU start", e.sfuAge+1)
		}
	}
	return nil
}

func (e *Emulator) execute(mi *codegen.MachineInstr) error {
	switch mi.Kind {
	case codegen.KindALU:
		return e.executeALU(mi)
	case codegen.KindLoadImm:
		v := Splat(mi.Imm)
		if mi.Pack != ir.PackNop {
			v = pack(v, mi.Pack)
		}
		if err := e.write(mi.Add.Dst, v, mi.Add.Cond); err != nil {
			return err
		}
		if mi.SetFlags {
			e.setFlags(v, ir.OpOr, v, v)
		}
		return nil
	case codegen.KindBranch:
		if e.branchTaken(mi.BranchCond) {
			e.branchIn, e.branchTo = 4, mi.Target
		}
		return nil
	case codegen.KindMemory:
		return e.executeMemory(&mi.Memory)
	case codegen.KindThreadEnd:
		e.endIn = 3
		return nil
	}
	return e.fault(FaultUnsupported, "instruction kind %s", mi.Kind)
}

func (e *Emulator) branchTaken(cc ir.ConditionCode) bool {
	if cc == ir.CondAlways {
		return true
	}
	for i := range Lanes {
		if !cc.Holds(e.st.Zero[i], e.st.Negative[i], e.st.Carry[i]) {
			return false
		}
	}
	return true
}

package codegen

import "vc4c/internal/ir"

// sfuLatency is the number of instructions between starting an SFU
// operation and reading its result from r4.
const sfuLatency = 2

// insertHazardNops delays instructions whose operands are not ready yet:
//
//  1. A file A or B register written by the previous instruction
//  2. An accumulator rotated by the mul ALU and written by the previous
//     instruction, r5 included for rotations by r5
//  3. r4 within two instructions of starting an SFU operation
func insertHazardNops(code []MachineInstr) []MachineInstr {
	out := make([]MachineInstr, 0, len(code))
	for i := range code {
		if code[i].Kind != kindLabel {
			for stalls(out, &code[i]) {
				out = append(out, *newNop())
			}
		}
		out = append(out, code[i])
	}
	return out
}

// previous returns the n-th emitted instruction before the end, skipping
// label markers.
func previous(out []MachineInstr, n int) *MachineInstr {
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Kind == kindLabel {
			continue
		}
		if n--; n == 0 {
			return &out[i]
		}
	}
	return nil
}

func stalls(out []MachineInstr, mi *MachineInstr) bool {
	reads := mi.Reads()
	if prev := previous(out, 1); prev != nil {
		for _, w := range prev.Writes() {
			for _, r := range reads {
				if r != w {
					continue
				}
				if r.IsGeneralPurpose() {
					return true
				}
				if mi.Rotation != 0 && r.IsAccumulator() && rotates(mi, r) {
					return true
				}
			}
		}
	}
	if !readsReg(reads, ir.RegAcc4) {
		return false
	}
	for n := 1; n <= sfuLatency; n++ {
		if prev := previous(out, n); prev != nil && readsReg(prev.Writes(), ir.RegSFURecip) {
			return true
		}
	}
	return false
}

// rotates reports whether r is rotated by mi: a mul operand, or r5 holding
// the rotation offset.
func rotates(mi *MachineInstr, r ir.Register) bool {
	if mi.Rotation == RotateByR5 && r == ir.RegAcc5 {
		return true
	}
	return (!mi.Mul.A.Imm && mi.Mul.A.Reg == r) || (!mi.Mul.B.Imm && mi.Mul.B.Reg == r)
}

func readsReg(regs []ir.Register, r ir.Register) bool {
	for _, have := range regs {
		if have == r {
			return true
		}
	}
	return false
}

package codegen

import "vc4c/internal/ir"

// pairInstructions merges adjacent ALU instructions that each use one ALU
// into a single dual-issue instruction. Labels end a pairing window since
// both instructions must execute on every path.
func pairInstructions(code []MachineInstr) []MachineInstr {
	out := make([]MachineInstr, 0, len(code))
	for i := 0; i < len(code); i++ {
		if i+1 < len(code) {
			if merged, ok := pair(code[i], code[i+1]); ok {
				out = append(out, merged)
				i++
				continue
			}
		}
		out = append(out, code[i])
	}
	return out
}

// single returns the only used slot of an ALU instruction and whether it is
// the add slot.
func single(mi *MachineInstr) (Slot, bool, bool) {
	if mi.Kind != KindALU || mi.Pack != ir.PackNop || mi.Unpack != ir.UnpackNop || mi.Rotation != 0 {
		return Slot{}, false, false
	}
	switch {
	case mi.Add.Used() && !mi.Mul.Used():
		return mi.Add, true, true
	case mi.Mul.Used() && !mi.Add.Used():
		return mi.Mul, false, true
	}
	return Slot{}, false, false
}

// toOther moves a plain register copy to the other ALU.
func toOther(s Slot, onAdd bool) (Slot, bool) {
	if !s.IsMove() {
		return s, false
	}
	if onAdd {
		s.Op = ir.OpV8Min
	} else {
		s.Op = ir.OpOr
	}
	return s, true
}

func pair(x, y MachineInstr) (MachineInstr, bool) {
	sx, xAdd, okx := single(&x)
	sy, yAdd, oky := single(&y)
	if !okx || !oky {
		return MachineInstr{}, false
	}
	if xAdd == yAdd {
		// the flag setter has to stay on the add ALU
		switch {
		case !y.SetFlags:
			if s, ok := toOther(sy, yAdd); ok {
				sy, yAdd = s, !yAdd
			}
		case !x.SetFlags:
			if s, ok := toOther(sx, xAdd); ok {
				sx, xAdd = s, !xAdd
			}
		}
		if xAdd == yAdd {
			return MachineInstr{}, false
		}
	}
	if (x.SetFlags && (y.SetFlags || !xAdd || sy.Cond != ir.CondAlways)) || (y.SetFlags && !yAdd) {
		return MachineInstr{}, false
	}
	if x.HasImm && y.HasImm && x.Imm != y.Imm {
		return MachineInstr{}, false
	}
	if !writesCompatible(sx.Dst, sy.Dst) {
		return MachineInstr{}, false
	}
	written := x.Writes()
	for _, r := range y.Reads() {
		for _, w := range written {
			if r == w {
				return MachineInstr{}, false
			}
		}
	}
	if readsUniform(sx) && readsUniform(sy) {
		return MachineInstr{}, false
	}
	imm := x.HasImm || y.HasImm
	if !portsFit([]Operand{sx.A, sx.B, sy.A, sy.B}, imm) {
		return MachineInstr{}, false
	}

	merged := *newALU()
	merged.SetFlags = x.SetFlags || y.SetFlags
	merged.HasImm = imm
	if x.HasImm {
		merged.Imm = x.Imm
	} else {
		merged.Imm = y.Imm
	}
	if xAdd {
		merged.Add, merged.Mul = sx, sy
	} else {
		merged.Add, merged.Mul = sy, sx
	}
	return merged, true
}

// writesCompatible reports whether both destinations can be written in one
// instruction: one write per register file and no special registers.
func writesCompatible(a, b ir.Register) bool {
	if a.IsNop() || b.IsNop() {
		return true
	}
	if a == b || a.IsSpecial() || b.IsSpecial() {
		return false
	}
	return a.IsAccumulator() || b.IsAccumulator() || a.File != b.File
}

func readsUniform(s Slot) bool {
	return (!s.A.Imm && s.A.Reg == ir.RegUniform) || (!s.B.Imm && s.B.Reg == ir.RegUniform)
}

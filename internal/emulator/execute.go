package emulator

import (
	"encoding/binary"
	"math"

	"vc4c/internal/codegen"
	"vc4c/internal/ir"
)

// operandReader reads the ALU inputs of one instruction. The uniform stream
// advances at most once per instruction.
type operandReader struct {
	e       *Emulator
	mi      *codegen.MachineInstr
	uniform *uint32
}

func (r *operandReader) read(op codegen.Operand) (Vector, error) {
	if op.Imm {
		return Splat(r.mi.Imm), nil
	}
	reg := op.Reg
	var v Vector
	switch {
	case reg.IsAccumulator():
		v = r.e.st.Acc[reg.Num]
	case reg.IsGeneralPurpose() && reg.File == ir.FileA:
		v = r.e.st.A[reg.Num]
		if r.mi.Unpack != ir.UnpackNop {
			for i := range v {
				v[i] = r.mi.Unpack.Apply(v[i])
			}
		}
	case reg.IsGeneralPurpose():
		v = r.e.st.B[reg.Num]
	case reg == ir.RegNop:
	case reg == ir.RegElementNumber:
		for i := range v {
			v[i] = uint32(i) //nolint:gosec // lane index
		}
	case reg == ir.RegUniform:
		if r.uniform == nil {
			if r.e.st.UniformsRead >= len(r.e.cfg.Uniforms) {
				return v, r.e.fault(FaultNoUniform, "%d uniforms consumed", r.e.st.UniformsRead)
			}
			u := r.e.cfg.Uniforms[r.e.st.UniformsRead]
			r.e.st.UniformsRead++
			r.uniform = &u
		}
		v = Splat(*r.uniform)
	default:
		return v, r.e.fault(FaultUnsupported, "%s is not readable", reg)
	}
	return v, nil
}

// rotate moves lane i to lane (i + n) mod 16.
func rotate(v Vector, n int) Vector {
	var out Vector
	for i := range out {
		out[(i+n)%Lanes] = v[i]
	}
	return out
}

func apply(code ir.OpCode, a, b Vector) Vector {
	var out Vector
	for i := range out {
		out[i] = code.Apply(a[i], b[i])
	}
	return out
}

func pack(v Vector, mode ir.PackMode) Vector {
	for i := range v {
		v[i] = mode.Apply(v[i])
	}
	return v
}

type slotResult struct {
	slot  codegen.Slot
	value Vector
	a, b  Vector
}

func (e *Emulator) executeALU(mi *codegen.MachineInstr) error {
	rd := &operandReader{e: e, mi: mi}
	var results []slotResult
	for k, slot := range []codegen.Slot{mi.Add, mi.Mul} {
		if !slot.Used() {
			continue
		}
		a, err := rd.read(slot.A)
		if err != nil {
			return err
		}
		b, err := rd.read(slot.B)
		if err != nil {
			return err
		}
		if k == 1 && mi.Rotation != 0 {
			n := int(mi.Rotation)
			if mi.Rotation == codegen.RotateByR5 {
				n = int(e.st.Acc[5][0] % Lanes)
			}
			if !slot.A.Imm {
				a = rotate(a, n)
			}
			if !slot.B.Imm {
				b = rotate(b, n)
			}
		}
		results = append(results, slotResult{slot: slot, value: apply(slot.Op, a, b), a: a, b: b})
	}
	if len(results) > 0 && mi.Pack != ir.PackNop {
		results[0].value = pack(results[0].value, mi.Pack)
	}
	// conditions test the flags from before this instruction
	for _, res := range results {
		if err := e.write(res.slot.Dst, res.value, res.slot.Cond); err != nil {
			return err
		}
	}
	if mi.SetFlags && len(results) > 0 {
		e.setFlags(results[0].value, results[0].slot.Op, results[0].a, results[0].b)
	}
	return nil
}

func (e *Emulator) setFlags(v Vector, code ir.OpCode, a, b Vector) {
	for i := range v {
		if code.FloatOut {
			f := math.Float32frombits(v[i])
			e.st.Zero[i], e.st.Negative[i] = f == 0, f < 0
		} else {
			e.st.Zero[i], e.st.Negative[i] = v[i] == 0, int32(v[i]) < 0 //nolint:gosec // sign
		}
		switch code {
		case ir.OpSub:
			e.st.Carry[i] = a[i] < b[i]
		case ir.OpAdd:
			e.st.Carry[i] = uint64(a[i])+uint64(b[i]) > math.MaxUint32
		default:
			e.st.Carry[i] = false
		}
	}
}

func (e *Emulator) write(dst ir.Register, v Vector, cc ir.ConditionCode) error {
	if dst.IsNop() || cc == ir.CondNever {
		return nil
	}
	var target *Vector
	switch {
	case dst.IsAccumulator():
		target = &e.st.Acc[dst.Num]
	case dst.IsGeneralPurpose() && dst.File == ir.FileA:
		target = &e.st.A[dst.Num]
	case dst.IsGeneralPurpose():
		target = &e.st.B[dst.Num]
	case dst == ir.RegReplicateAll:
		v = Splat(v[0])
		target = &e.st.Acc[5]
	case dst == ir.RegSFURecip:
		for i := range v {
			v[i] = math.Float32bits(1 / math.Float32frombits(v[i]))
		}
		target = &e.st.Acc[4]
	default:
		return e.fault(FaultUnsupported, "%s is not writable", dst)
	}
	for i := range v {
		if cc.Holds(e.st.Zero[i], e.st.Negative[i], e.st.Carry[i]) {
			target[i] = v[i]
		}
	}
	return nil
}

func (e *Emulator) bytesAt(addr uint32, n int) ([]byte, error) {
	end := uint64(addr) + uint64(n) //nolint:gosec // n is small
	if end > uint64(len(e.st.Memory)) {
		return nil, e.fault(FaultOutOfBounds, "%d bytes at %#x outside %d bytes of memory", n, addr, len(e.st.Memory))
	}
	return e.st.Memory[addr:end], nil
}

func load(b []byte) uint32 {
	var buf [4]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint32(buf[:])
}

func store(b []byte, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	copy(b, buf[:len(b)])
}

// executeMemory accesses the elements of a value at consecutive addresses
// from lane 0 of the address register. A scalar read fills all lanes.
func (e *Emulator) executeMemory(acc *codegen.MemoryAccess) error {
	addr := e.st.Reg(acc.Addr)[0]
	switch acc.Op {
	case ir.MemRead:
		var v Vector
		for i := range acc.Elems {
			b, err := e.bytesAt(addr+uint32(i*acc.ElemBytes), acc.ElemBytes) //nolint:gosec // in range
			if err != nil {
				return err
			}
			v[i] = load(b)
		}
		if acc.Elems == 1 {
			v = Splat(v[0])
		}
		return e.write(acc.Dst, v, ir.CondAlways)
	case ir.MemWrite:
		v := e.st.Reg(acc.Src)
		for i := range acc.Elems {
			b, err := e.bytesAt(addr+uint32(i*acc.ElemBytes), acc.ElemBytes) //nolint:gosec // in range
			if err != nil {
				return err
			}
			store(b, v[i])
		}
		return nil
	case ir.MemCopy:
		n := int(e.st.Reg(acc.Count)[0])
		dst, err := e.bytesAt(addr, n)
		if err != nil {
			return err
		}
		src, err := e.bytesAt(e.st.Reg(acc.Src)[0], n)
		if err != nil {
			return err
		}
		copy(dst, src)
		return nil
	case ir.MemFill:
		n := int(e.st.Reg(acc.Count)[0])
		dst, err := e.bytesAt(addr, n)
		if err != nil {
			return err
		}
		fill := byte(e.st.Reg(acc.Src)[0])
		for i := range dst {
			dst[i] = fill
		}
		return nil
	}
	return e.fault(FaultUnsupported, "memory operation %s", acc.Op)
}

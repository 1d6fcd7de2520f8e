package normalize

import (
	"encoding/binary"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// GlobalLayout returns the byte offset of every global of mod in the global
// data segment and the size of the segment.
func GlobalLayout(mod *ir.Module) (map[string]int, int) {
	offsets := make(map[string]int, len(mod.Globals))
	size := 0
	for _, g := range mod.Globals {
		size = alignTo(size, g.Type.Alignment())
		offsets[g.Name] = size
		size += g.Type.ByteSize()
	}
	return offsets, alignTo(size, 4)
}

// GlobalData returns the initial contents of the global data segment.
func GlobalData(mod *ir.Module) ([]byte, error) {
	offsets, size := GlobalLayout(mod)
	buf := make([]byte, size)
	for _, g := range mod.Globals {
		if err := encodeValue(buf[offsets[g.Name]:], g.Init, g.Type); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeValue(buf []byte, v ir.Value, t ir.DataType) error {
	switch {
	case v.IsNone(), v.IsUndefined(), v.IsZeroInit():
		return nil
	case v.IsContainer():
		for i, e := range v.Elems {
			var off int
			elem := t.ElementType()
			switch t.Kind {
			case ir.KindStruct:
				off, elem = t.FieldOffset(i), t.Complex().Fields[i]
			default:
				off = i * elem.ByteSize()
			}
			if err := encodeValue(buf[off:], e, elem); err != nil {
				return err
			}
		}
		return nil
	case v.IsLiteral():
		bits := v.Lit.UnsignedInt()
		switch t.ByteSize() {
		case 1:
			buf[0] = byte(bits)
		case 2:
			binary.LittleEndian.PutUint16(buf, uint16(bits))
		case 4:
			binary.LittleEndian.PutUint32(buf, bits)
		case 8:
			binary.LittleEndian.PutUint64(buf, uint64(v.Lit.SignExtend(32)))
		default:
			// a literal filling a whole vector
			for off := 0; off+4 <= t.ByteSize(); off += 4 {
				binary.LittleEndian.PutUint32(buf[off:], bits)
			}
		}
		return nil
	}
	return diag.CodeErrorf(diag.NormUnsupported, v.String(), "Global initializer must be constant")
}

// resolveGlobals computes the address of every global the method uses from
// the hidden global data parameter.
func resolveGlobals(m *ir.Method, nc *Context) error {
	var used []*ir.Local
	for _, l := range m.Locals {
		if l.Kind == ir.LocalGlobal {
			used = append(used, l)
		}
	}
	if len(used) == 0 {
		return nil
	}
	mod := nc.module()
	if mod == nil {
		return diag.CodeErrorf(diag.NormUnsupported, used[0].Name, "Global used without a module")
	}
	offsets, _ := GlobalLayout(mod)
	base := m.AddParam(freshName(m, GlobalDataParam), ir.PointerTo(ir.TypeInt8, ir.AddrGlobal), 0)
	at := entry(m)
	for _, l := range used {
		off, ok := offsets[l.Global]
		if !ok {
			return diag.CodeErrorf(diag.ParseUnknownValue, l.Name, "Unknown global %s", l.Global)
		}
		at = at.Emit(ir.NewOp(ir.OpAdd, m.ValueOf(l.ID), m.ValueOf(base), literal(off)))
		l.Kind = ir.LocalPlain
	}
	return nil
}

package optimize

import "vc4c/internal/ir"

// combineRotations merges a rotation of a rotated value into one rotation of
// the original source, when both offsets are constant and the original
// source is not written in between. A total offset of zero becomes a move.
func combineRotations(m *ir.Method) bool {
	changed := false
	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			ins := it.Get()
			if ins.Kind != ir.InstrRotate || ins.IsConditional() || !ins.Rotate.Src.IsLocal() {
				continue
			}
			outer, ok := rotationOffset(ins)
			if !ok {
				continue
			}
			inner := innerRotation(it, ins.Rotate.Src.Local)
			if inner == nil {
				continue
			}
			offset, _ := rotationOffset(inner)
			total := (offset + outer) % ir.NativeVectorWidth
			var repl *ir.Instr
			if total == 0 {
				repl = ir.NewMove(ins.Dst, inner.Rotate.Src)
			} else {
				repl = ir.NewRotate(ins.Dst, inner.Rotate.Src, ir.IntValue(int64(total), ir.TypeInt8))
			}
			repl.SetFlags = ins.SetFlags
			repl.Pack = ins.Pack
			repl.Deco = ins.Deco
			it = it.Replace(repl)
			changed = true
		}
	}
	return changed
}

func rotationOffset(ins *ir.Instr) (int, bool) {
	lit, ok := ins.Rotate.Offset.LiteralValue()
	if !ok {
		return 0, false
	}
	n := int(lit.SignedInt()) % ir.NativeVectorWidth
	if n < 0 {
		n += ir.NativeVectorWidth
	}
	return n, true
}

// innerRotation walks back from it to the unconditional rotation writing
// src, in the same block. It gives up if anything else writes src, or the
// source of that rotation, in between.
func innerRotation(it ir.Walker, src ir.LocalID) *ir.Instr {
	var between []*ir.Instr
	for it.HasPrev() {
		it = it.Prev()
		ins := it.Get()
		if !ins.Writes(src) {
			between = append(between, ins)
			continue
		}
		if ins.Kind != ir.InstrRotate || ins.IsConditional() || ins.Pack != ir.PackNop || ins.Unpack != ir.UnpackNop {
			return nil
		}
		if _, ok := rotationOffset(ins); !ok || !ins.Rotate.Src.IsLocal() || ins.Rotate.Src.Local == src {
			return nil
		}
		for _, other := range between {
			if other.Writes(ins.Rotate.Src.Local) {
				return nil
			}
		}
		return ins
	}
	return nil
}

package optimize

import "vc4c/internal/ir"

// propagateMoves replaces reads of the destination of a plain move by its
// source, up to the next write of either in the same block. The move itself
// stays; dead code elimination drops it once nothing reads it.
func propagateMoves(m *ir.Method) bool {
	changed := false
	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			mov := it.Get()
			if !isPlainMove(mov) {
				continue
			}
			dst, src := mov.Dst.Local, mov.Move.Src
			for next := it.Next(); !next.AtEnd(); next = next.Next() {
				ins := next.Get()
				if replaceReads(ins, dst, src) {
					changed = true
				}
				if ins.Writes(dst) || (src.IsLocal() && ins.Writes(src.Local)) {
					break
				}
			}
		}
	}
	return changed
}

func isPlainMove(ins *ir.Instr) bool {
	if ins.Kind != ir.InstrMove || ins.IsConditional() || ins.SetFlags ||
		ins.Pack != ir.PackNop || ins.Unpack != ir.UnpackNop || !ins.Dst.IsLocal() {
		return false
	}
	src := ins.Move.Src
	switch {
	case src.IsLocal():
		return src.Local != ins.Dst.Local
	case src.IsLiteral():
		return true
	}
	return false
}

// replaceReads rewrites the operands of ins reading dst to read src.
func replaceReads(ins *ir.Instr, dst ir.LocalID, src ir.Value) bool {
	if src.IsLiteral() && !acceptsLiteral(ins) {
		return false
	}
	changed := false
	for i, a := range ins.Args() {
		if !a.IsLocal() || a.Local != dst {
			continue
		}
		ins.SetArg(i, src.WithType(a.Type))
		changed = true
	}
	return changed
}

func acceptsLiteral(ins *ir.Instr) bool {
	switch ins.Kind {
	case ir.InstrOp, ir.InstrMove:
		return ins.Unpack == ir.UnpackNop
	}
	return false
}

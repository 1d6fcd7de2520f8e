package optimize

import "vc4c/internal/ir"

// eliminateDeadCode removes instructions without side effects whose result
// is never read, and nops.
func eliminateDeadCode(m *ir.Method) bool {
	read := map[ir.LocalID]bool{}
	m.ForEach(func(w ir.Walker) {
		for _, a := range w.Get().Args() {
			markRead(read, a)
		}
	})

	changed := false
	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); {
			if isDead(it.Get(), read) {
				it = it.Erase()
				changed = true
				continue
			}
			it = it.Next()
		}
	}
	return changed
}

func markRead(read map[ir.LocalID]bool, v ir.Value) {
	if v.IsLocal() {
		read[v.Local] = true
	}
	for _, e := range v.Elems {
		markRead(read, e)
	}
}

func isDead(ins *ir.Instr, read map[ir.LocalID]bool) bool {
	if ins.Kind == ir.InstrNop {
		return true
	}
	if ins.HasSideEffects() {
		return false
	}
	out, ok := ins.Output()
	if !ok {
		return false
	}
	if out.IsRegister() {
		// only writes to the nop register get here
		return true
	}
	return out.IsLocal() && !read[out.Local]
}

package normalize

import (
	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// eliminatePhi replaces phi nodes by moves at the end of the predecessors.
// The moves are placed before the first branch of the predecessor, so they
// run on every edge leaving it; the destination of a phi is written by the
// phi only, so the extra writes on the other edges are never observed.
// Blocks with several phis copy through temporaries first, so a phi reading
// the destination of another one still sees the old value.
func eliminatePhi(m *ir.Method, _ *Context) error {
	for _, b := range m.Blocks {
		var phis []*ir.Instr
		for it := b.Begin().Next(); !it.AtEnd(); {
			if it.Get().Kind != ir.InstrPhi {
				it = it.Next()
				continue
			}
			phis = append(phis, it.Get())
			it = it.Erase()
		}
		if len(phis) == 0 {
			continue
		}

		// predecessor label -> moves in phi order
		type copyOp struct{ dst, src ir.Value }
		edges := map[ir.LocalID][]copyOp{}
		var order []ir.LocalID
		for _, phi := range phis {
			for _, in := range phi.Phi.Incoming {
				if in.Value.IsUndefined() {
					continue
				}
				if _, ok := edges[in.Label]; !ok {
					order = append(order, in.Label)
				}
				edges[in.Label] = append(edges[in.Label], copyOp{dst: phi.Dst, src: in.Value})
			}
		}

		for _, label := range order {
			pred := m.FindBlock(label)
			if pred == nil {
				return diag.CodeErrorf(diag.NormInvalidIR, m.Local(label).Name, "Phi refers to a missing predecessor block")
			}
			at := beforeTerminator(pred)
			ops := edges[label]
			if len(phis) == 1 {
				for _, op := range ops {
					at = at.Emit(ir.NewMove(op.dst, op.src))
				}
				continue
			}
			temps := make([]ir.Value, len(ops))
			for i, op := range ops {
				temps[i] = m.AddNewLocal(op.dst.Type, "phi")
				at = at.Emit(ir.NewMove(temps[i], op.src))
			}
			for i, op := range ops {
				at = at.Emit(ir.NewMove(op.dst, temps[i]))
			}
		}
	}
	return nil
}

// beforeTerminator returns a walker at the first branch or return of b, or
// at its end if control falls through.
func beforeTerminator(b *ir.Block) ir.Walker {
	for it := b.Begin().Next(); !it.AtEnd(); it = it.Next() {
		switch it.Get().Kind {
		case ir.InstrBranch, ir.InstrReturn:
			return it
		}
	}
	return b.End()
}

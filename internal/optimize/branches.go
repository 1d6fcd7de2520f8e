package optimize

import "vc4c/internal/ir"

// simplifyBranches cleans up the control flow of a normalized method.
//
//  1. Drop branches that never jump
//  2. Drop instructions after an unconditional branch or return
//  3. Drop branches to the block that directly follows
//  4. Remove blocks no branch targets and no block falls into
func simplifyBranches(m *ir.Method) bool {
	changed := false
	for i, b := range m.Blocks {
		for it := b.Begin().Next(); !it.AtEnd(); {
			ins := it.Get()
			if ins.Kind == ir.InstrBranch && ins.Cond == ir.CondNever {
				it = it.Erase()
				changed = true
				continue
			}
			if endsFlow(ins) {
				for next := it.Next(); !next.AtEnd(); {
					next = next.Erase()
					changed = true
				}
				break
			}
			it = it.Next()
		}

		if i+1 < len(m.Blocks) {
			follow := m.Blocks[i+1].Label()
			// drop trailing jumps to the next block, conditional ones too:
			// both outcomes continue there
			for b.Len() > 1 {
				last := b.Last()
				ins := last.Get()
				if ins.Kind != ir.InstrBranch || ins.Branch.Target != follow {
					break
				}
				last.Erase()
				changed = true
			}
		}
	}
	return removeUnreachableBlocks(m) || changed
}

func endsFlow(ins *ir.Instr) bool {
	switch ins.Kind {
	case ir.InstrReturn:
		return true
	case ir.InstrBranch:
		return ins.Cond == ir.CondAlways
	}
	return false
}

func removeUnreachableBlocks(m *ir.Method) bool {
	changed := false
	for {
		targets := map[ir.LocalID]bool{}
		m.ForEach(func(w ir.Walker) {
			if ins := w.Get(); ins.Kind == ir.InstrBranch {
				targets[ins.Branch.Target] = true
			}
		})
		var dead *ir.Block
		for i := 1; i < len(m.Blocks); i++ {
			b := m.Blocks[i]
			prev := m.Blocks[i-1]
			if targets[b.Label()] || !endsFlow(prev.Last().Get()) {
				continue
			}
			dead = b
			break
		}
		if dead == nil {
			return changed
		}
		m.RemoveBlock(dead)
		changed = true
	}
}

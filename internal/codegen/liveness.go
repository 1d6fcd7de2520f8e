package codegen

import "vc4c/internal/ir"

// interval is the range of linear instruction positions a local must keep
// its register in.
type interval struct {
	local      ir.LocalID
	start, end int
	read       bool
}

func (iv *interval) extend(pos int) {
	iv.start = min(iv.start, pos)
	iv.end = max(iv.end, pos)
}

// successors returns the blocks control may reach from b: branch targets,
// and the next block unless b ends in an unconditional jump or a return.
func successors(m *ir.Method, idx int) []int {
	b := m.Blocks[idx]
	var out []int
	falls := true
	for it := b.Begin(); !it.AtEnd(); it = it.Next() {
		ins := it.Get()
		switch ins.Kind {
		case ir.InstrBranch:
			if t := m.FindBlock(ins.Branch.Target); t != nil {
				out = append(out, m.BlockIndex(t))
			}
			falls = ins.Cond != ir.CondAlways
		case ir.InstrReturn:
			falls = false
		default:
			falls = true
		}
	}
	if falls && idx+1 < len(m.Blocks) {
		out = append(out, idx+1)
	}
	return out
}

func valueLocals(v ir.Value, fn func(ir.LocalID)) {
	if v.IsLocal() {
		fn(v.Local)
	}
	for _, e := range v.Elems {
		valueLocals(e, fn)
	}
}

// kills reports the local ins overwrites completely, if any.
func kills(ins *ir.Instr) (ir.LocalID, bool) {
	out, ok := ins.Output()
	if !ok || !out.IsLocal() || ins.IsConditional() {
		return ir.NoLocalID, false
	}
	return out.Local, true
}

// analyzeLiveness computes the live interval of every local over the
// linearized method with an iterative backward dataflow over the blocks.
//
//  1. Per block: locals read before being overwritten, and overwritten ones
//  2. Live-in and live-out sets until nothing changes
//  3. Walk every block backwards from its live-out set and extend the
//     interval of every live local over each position
func analyzeLiveness(m *ir.Method) map[ir.LocalID]*interval {
	n := len(m.Blocks)
	nloc := len(m.Locals)
	use := make([][]bool, n)
	def := make([][]bool, n)
	succ := make([][]int, n)
	for i, b := range m.Blocks {
		use[i], def[i] = make([]bool, nloc), make([]bool, nloc)
		succ[i] = successors(m, i)
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			ins := it.Get()
			for _, a := range ins.Args() {
				valueLocals(a, func(id ir.LocalID) {
					if !def[i][id] {
						use[i][id] = true
					}
				})
			}
			if id, ok := kills(ins); ok {
				def[i][id] = true
			}
		}
	}

	liveIn := make([][]bool, n)
	liveOut := make([][]bool, n)
	for i := range n {
		liveIn[i], liveOut[i] = make([]bool, nloc), make([]bool, nloc)
	}
	for changed := true; changed; {
		changed = false
		for i := n - 1; i >= 0; i-- {
			for _, s := range succ[i] {
				for id, live := range liveIn[s] {
					if live && !liveOut[i][id] {
						liveOut[i][id] = true
						changed = true
					}
				}
			}
			for id := range nloc {
				in := use[i][id] || (liveOut[i][id] && !def[i][id])
				if in && !liveIn[i][id] {
					liveIn[i][id] = true
					changed = true
				}
			}
		}
	}

	intervals := map[ir.LocalID]*interval{}
	touch := func(id ir.LocalID, pos int) *interval {
		iv := intervals[id]
		if iv == nil {
			iv = &interval{local: id, start: pos, end: pos}
			intervals[id] = iv
		}
		iv.extend(pos)
		return iv
	}
	pos := 0
	for i, b := range m.Blocks {
		first, last := pos, pos+b.Len()-1
		pos += b.Len()
		live := append([]bool(nil), liveOut[i]...)
		for id, l := range live {
			if l {
				touch(ir.LocalID(id), last)
			}
		}
		p := last
		for it := b.Last(); ; it = it.Prev() {
			ins := it.Get()
			if out, ok := ins.Output(); ok && out.IsLocal() {
				touch(out.Local, p)
			}
			if id, ok := kills(ins); ok {
				live[id] = false
			}
			for _, a := range ins.Args() {
				valueLocals(a, func(id ir.LocalID) {
					touch(id, p).read = true
					live[id] = true
				})
			}
			if !it.HasPrev() {
				break
			}
			p--
		}
		for id, l := range live {
			if l {
				touch(ir.LocalID(id), first)
			}
		}
	}
	return intervals
}

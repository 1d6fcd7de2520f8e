package codegen

import (
	"golang.org/x/exp/slices"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// constraint collects what the instructions touching a local demand of its
// register.
type constraint struct {
	fileA bool // unpacked operand or packed result
	accum bool // rotation source
	// partners are the locals read by the same instructions.
	partners []ir.LocalID
	// readsA and readsB count co-read special registers pinned to one file.
	readsA, readsB int
}

func collectConstraints(m *ir.Method) map[ir.LocalID]*constraint {
	cons := map[ir.LocalID]*constraint{}
	get := func(id ir.LocalID) *constraint {
		c := cons[id]
		if c == nil {
			c = &constraint{}
			cons[id] = c
		}
		return c
	}
	m.ForEach(func(it ir.Walker) {
		ins := it.Get()
		if ins.Pack != ir.PackNop && ins.Dst.IsLocal() {
			get(ins.Dst.Local).fileA = true
		}
		if ins.Kind == ir.InstrRotate && ins.Rotate.Src.IsLocal() {
			get(ins.Rotate.Src.Local).accum = true
		}
		var locals []ir.LocalID
		var pinnedA, pinnedB int
		for _, a := range ins.Args() {
			switch {
			case a.IsLocal():
				if ins.Unpack != ir.UnpackNop {
					get(a.Local).fileA = true
				}
				if !slices.Contains(locals, a.Local) {
					locals = append(locals, a.Local)
				}
			case a.IsRegister() && a.Reg.File == ir.FileA:
				pinnedA++
			case a.IsRegister() && a.Reg.File == ir.FileB:
				pinnedB++
			}
		}
		for _, id := range locals {
			c := get(id)
			c.readsA += pinnedA
			c.readsB += pinnedB
			for _, other := range locals {
				if other != id && !slices.Contains(c.partners, other) {
					c.partners = append(c.partners, other)
				}
			}
		}
	})
	return cons
}

// allocator hands out physical registers to live intervals.
type allocator struct {
	assigned map[ir.LocalID]ir.Register
	busy     map[ir.Register]bool
	cons     map[ir.LocalID]*constraint
}

// allocateRegisters assigns a register to every local with a linear scan
// over the live intervals ordered by start position. Locals that are never
// read write to the nop register. There is no spilling.
func allocateRegisters(m *ir.Method, intervals map[ir.LocalID]*interval) (map[ir.LocalID]ir.Register, error) {
	a := &allocator{
		assigned: make(map[ir.LocalID]ir.Register, len(intervals)),
		busy:     map[ir.Register]bool{},
		cons:     collectConstraints(m),
	}
	order := make([]*interval, 0, len(intervals))
	for _, iv := range intervals {
		if !iv.read {
			a.assigned[iv.local] = ir.RegNop
			continue
		}
		order = append(order, iv)
	}
	slices.SortStableFunc(order, func(x, y *interval) bool {
		if x.start != y.start {
			return x.start < y.start
		}
		return x.local < y.local
	})

	var active []*interval
	for _, iv := range order {
		kept := active[:0]
		for _, act := range active {
			if act.end <= iv.start {
				delete(a.busy, a.assigned[act.local])
				continue
			}
			kept = append(kept, act)
		}
		active = kept

		reg, ok := a.pick(iv)
		if !ok {
			return nil, diag.CodeErrorf(diag.CodegenRegistersExhausted, m.Local(iv.local).Name,
				"no register left in %s with %d values live", m.Name, len(active))
		}
		a.assigned[iv.local] = reg
		a.busy[reg] = true
		active = append(active, iv)
	}
	return a.assigned, nil
}

// longLived is the interval length from which values that are no rotation
// source leave the accumulators to short-lived ones.
const longLived = 12

// pick chooses the register for a local: accumulators for short-lived
// values and rotation sources, otherwise the register file its co-read
// partners use less.
func (a *allocator) pick(iv *interval) (ir.Register, bool) {
	c := a.cons[iv.local]
	if c == nil {
		c = &constraint{}
	}
	if !c.fileA && (c.accum || iv.end-iv.start < longLived) {
		if r, ok := a.freeAccumulator(); ok {
			return r, true
		}
	}
	useA, useB := c.readsA, c.readsB
	for _, p := range c.partners {
		if r, ok := a.assigned[p]; ok && a.busy[r] {
			switch r.File {
			case ir.FileA:
				useA++
			case ir.FileB:
				useB++
			}
		}
	}
	files := []func(int) ir.Register{ir.RegA, ir.RegB}
	switch {
	case c.fileA:
		files = files[:1]
	case useA > useB:
		files[0], files[1] = files[1], files[0]
	}
	for _, file := range files {
		for n := range ir.GeneralRegisters {
			if r := file(n); !a.busy[r] {
				return r, true
			}
		}
	}
	if !c.fileA {
		return a.freeAccumulator()
	}
	return ir.Register{}, false
}

func (a *allocator) freeAccumulator() (ir.Register, bool) {
	for n := range ir.AllocatableAccums {
		if r := ir.Acc(n); !a.busy[r] {
			return r, true
		}
	}
	return ir.Register{}, false
}

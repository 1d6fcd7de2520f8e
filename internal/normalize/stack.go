package normalize

import (
	"golang.org/x/exp/slices"

	"vc4c/internal/ir"
)

type frameSlot struct {
	id          ir.LocalID
	size, align int
	first, last int // first and last instruction using the allocation
	offset      int
}

func (s *frameSlot) overlaps(o *frameSlot) bool {
	return s.first <= o.last && o.first <= s.last
}

// layOutStack assigns every stack allocation an offset in the frame of the
// method and removes the lifetime markers.
//
//  1. Live range of each allocation from its markers; without markers it
//     lives in the whole method
//  2. Place allocations largest first at the lowest aligned offset not
//     used by an allocation with an overlapping live range
//  3. Compute the addresses from the hidden stack base at method entry
func layOutStack(m *ir.Method, _ *Context) error {
	var slots []*frameSlot
	byID := map[ir.LocalID]*frameSlot{}
	for _, l := range m.Locals {
		if !l.IsStack() {
			continue
		}
		s := &frameSlot{id: l.ID, size: l.AllocatedType().ByteSize(), align: max(l.Align, 1), first: -1, last: -1}
		slots = append(slots, s)
		byID[l.ID] = s
	}

	pos := 0
	end := m.CountInstrs()
	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); {
			ins := it.Get()
			if ins.Kind != ir.InstrLifetime {
				pos++
				it = it.Next()
				continue
			}
			if s := byID[ins.Lifetime.Alloc]; s != nil {
				if ins.Lifetime.End {
					s.last = max(s.last, pos-1)
				} else if s.first < 0 || pos < s.first {
					s.first = pos
				}
			}
			it = it.Erase()
		}
	}
	if len(slots) == 0 {
		return nil
	}
	for _, s := range slots {
		if s.first < 0 || s.last < 0 || s.last < s.first {
			s.first, s.last = 0, end
		}
	}

	placed := make([]*frameSlot, 0, len(slots))
	order := slices.Clone(slots)
	slices.SortStableFunc(order, func(a, b *frameSlot) bool { return a.size > b.size })
	frame := 0
	for _, s := range order {
		s.offset = lowestFreeOffset(s, placed)
		placed = append(placed, s)
		frame = max(frame, s.offset+s.size)
	}
	m.StackFrameSize = alignTo(frame, 16)

	base := m.AddParam(freshName(m, StackBaseParam), ir.PointerTo(ir.TypeInt8, ir.AddrPrivate), 0)
	at := entry(m)
	for _, s := range slots {
		at = at.Emit(ir.NewOp(ir.OpAdd, m.ValueOf(s.id), m.ValueOf(base), literal(s.offset)))
		m.Local(s.id).Kind = ir.LocalPlain
	}
	return nil
}

func lowestFreeOffset(s *frameSlot, placed []*frameSlot) int {
	off := 0
	for {
		off = alignTo(off, s.align)
		moved := false
		for _, p := range placed {
			if !s.overlaps(p) || off >= p.offset+p.size || p.offset >= off+s.size {
				continue
			}
			off = p.offset + p.size
			moved = true
		}
		if !moved {
			return off
		}
	}
}

func alignTo(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

package ir

import "fmt"

const (
	endPos  int32 = -1
	nilNode int32 = -1
)

type node struct {
	ins        *Instr
	prev, next int32
	dead       bool
}

// Block is a basic block. Instructions live in an arena of nodes linked by
// index; erased nodes are never reused, so a Walker pointing at an erased
// instruction is detected instead of silently reading a different one.
type Block struct {
	method     *Method
	nodes      []node
	head, tail int32
	size       int
}

func newBlock(m *Method, label *Instr) *Block {
	b := &Block{method: m, head: nilNode, tail: nilNode}
	b.End().Emplace(label)
	return b
}

// Method returns the owning method.
func (b *Block) Method() *Method { return b.method }

// Label returns the local naming the block.
func (b *Block) Label() LocalID {
	if b.head == nilNode {
		return NoLocalID
	}
	ins := b.nodes[b.head].ins
	if ins.Kind != InstrLabel {
		return NoLocalID
	}
	return ins.Label.Label
}

// Len is the number of live instructions, label included.
func (b *Block) Len() int { return b.size }

// Begin returns a walker at the first instruction (the label).
func (b *Block) Begin() Walker {
	if b.head == nilNode {
		return Walker{blk: b, pos: endPos}
	}
	return Walker{blk: b, pos: b.head}
}

// End returns a walker past the last instruction.
func (b *Block) End() Walker { return Walker{blk: b, pos: endPos} }

// Last returns a walker at the last instruction.
func (b *Block) Last() Walker {
	return Walker{blk: b, pos: b.tail}
}

// Instrs returns a snapshot of the live instructions in order.
func (b *Block) Instrs() []*Instr {
	out := make([]*Instr, 0, b.size)
	for i := b.head; i != nilNode; i = b.nodes[i].next {
		out = append(out, b.nodes[i].ins)
	}
	return out
}

// Walker is a cursor into a block. It is the only way to mutate the
// instruction list. A walker stays valid across insertions; erasing the
// instruction it points at invalidates it and any further use panics.
// Only one walker may mutate a block at a time.
type Walker struct {
	blk *Block
	pos int32
}

// Block returns the block the walker moves in.
func (w Walker) Block() *Block { return w.blk }

// AtEnd reports whether the walker is past the last instruction.
func (w Walker) AtEnd() bool { return w.pos == endPos }

// IsValid reports whether the walker can be used.
func (w Walker) IsValid() bool {
	return w.blk != nil && (w.pos == endPos || !w.blk.nodes[w.pos].dead)
}

func (w Walker) check() {
	if w.blk == nil {
		panic("ir: walker without block")
	}
	if w.pos != endPos && w.blk.nodes[w.pos].dead {
		panic(fmt.Sprintf("ir: stale cursor: instruction %d of block %s was erased", w.pos, w.blk.method.localName(w.blk.Label())))
	}
}

// Get returns the instruction under the cursor.
func (w Walker) Get() *Instr {
	w.check()
	if w.pos == endPos {
		panic("ir: walker is at the end of the block")
	}
	return w.blk.nodes[w.pos].ins
}

// Next advances to the next instruction of the block.
func (w Walker) Next() Walker {
	w.check()
	if w.pos == endPos {
		return w
	}
	return Walker{blk: w.blk, pos: w.blk.nodes[w.pos].next}
}

// HasPrev reports whether there is an instruction before the cursor.
func (w Walker) HasPrev() bool {
	w.check()
	if w.pos == endPos {
		return w.blk.tail != nilNode
	}
	return w.blk.nodes[w.pos].prev != nilNode
}

// Prev moves to the previous instruction of the block.
func (w Walker) Prev() Walker {
	if !w.HasPrev() {
		panic("ir: walker is at the start of the block")
	}
	if w.pos == endPos {
		return Walker{blk: w.blk, pos: w.blk.tail}
	}
	return Walker{blk: w.blk, pos: w.blk.nodes[w.pos].prev}
}

// Emplace inserts ins before the cursor and returns a walker at ins.
func (w Walker) Emplace(ins *Instr) Walker {
	w.check()
	b := w.blk
	idx := int32(len(b.nodes)) //nolint:gosec // blocks stay far below 2^31 instructions
	n := node{ins: ins, prev: nilNode, next: nilNode}
	if w.pos == endPos {
		n.prev = b.tail
	} else {
		n.prev = b.nodes[w.pos].prev
		n.next = w.pos
	}
	b.nodes = append(b.nodes, n)
	if n.prev != nilNode {
		b.nodes[n.prev].next = idx
	} else {
		b.head = idx
	}
	if n.next != nilNode {
		b.nodes[n.next].prev = idx
	} else {
		b.tail = idx
	}
	b.size++
	return Walker{blk: b, pos: idx}
}

// Emit inserts ins before the cursor and returns a walker at the same
// position as w, i.e. just after ins.
func (w Walker) Emit(ins *Instr) Walker {
	return w.Emplace(ins).Next()
}

// Replace swaps the instruction under the cursor.
func (w Walker) Replace(ins *Instr) Walker {
	w.check()
	if w.pos == endPos {
		panic("ir: cannot replace at the end of the block")
	}
	w.blk.nodes[w.pos].ins = ins
	return w
}

// Erase removes the instruction under the cursor and returns a walker at the
// following instruction. w itself becomes stale.
func (w Walker) Erase() Walker {
	w.check()
	if w.pos == endPos {
		panic("ir: cannot erase at the end of the block")
	}
	b := w.blk
	n := &b.nodes[w.pos]
	if n.prev != nilNode {
		b.nodes[n.prev].next = n.next
	} else {
		b.head = n.next
	}
	if n.next != nilNode {
		b.nodes[n.next].prev = n.prev
	} else {
		b.tail = n.prev
	}
	next := n.next
	n.dead = true
	n.ins = nil
	b.size--
	return Walker{blk: b, pos: next}
}

// NextInMethod advances to the next instruction, continuing in the following
// block when this one is exhausted. At the end of the method it returns a
// walker at the end of the last block.
func (w Walker) NextInMethod() Walker {
	next := w.Next()
	for next.AtEnd() {
		b := next.blk.method.blockAfter(next.blk)
		if b == nil {
			return next
		}
		next = b.Begin()
	}
	return next
}

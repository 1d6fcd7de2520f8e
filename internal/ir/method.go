package ir

import (
	"fmt"
	"strings"
)

// StartLabel names the implicit entry block of every method.
const StartLabel = "%start_of_function"

// Method is a kernel or function. It owns its locals and basic blocks.
type Method struct {
	Name       string
	ReturnType DataType
	Kernel     bool
	Params     []LocalID
	Locals     []*Local
	Blocks     []*Block
	// StackFrameSize is the number of bytes of stack used by one work-item,
	// set when the stack allocations are laid out.
	StackFrameSize int

	names map[string]LocalID
	temps int
}

// NewMethod creates an empty method holding only the entry block.
func NewMethod(name string, ret DataType) *Method {
	m := &Method{Name: name, ReturnType: ret, names: map[string]LocalID{}}
	start := m.addLocal(StartLabel, TypeLabel, LocalLabel)
	m.Blocks = append(m.Blocks, newBlock(m, NewLabel(start)))
	return m
}

func (m *Method) addLocal(name string, t DataType, kind LocalKind) LocalID {
	id := LocalID(len(m.Locals)) //nolint:gosec // bounded by the instruction count
	m.Locals = append(m.Locals, &Local{ID: id, Name: name, Type: t, Kind: kind, ref: Reference{Local: NoLocalID}})
	m.names[name] = id
	return id
}

// Clone returns a deep copy of m. Locals keep their IDs.
func (m *Method) Clone() *Method {
	c := &Method{
		Name:           m.Name,
		ReturnType:     m.ReturnType,
		Kernel:         m.Kernel,
		Params:         append([]LocalID(nil), m.Params...),
		StackFrameSize: m.StackFrameSize,
		names:          make(map[string]LocalID, len(m.names)),
		temps:          m.temps,
	}
	for name, id := range m.names {
		c.names[name] = id
	}
	c.Locals = make([]*Local, len(m.Locals))
	for i, l := range m.Locals {
		cl := *l
		c.Locals[i] = &cl
	}
	c.Blocks = make([]*Block, len(m.Blocks))
	for i, b := range m.Blocks {
		cb := &Block{method: c, nodes: make([]node, len(b.nodes)), head: b.head, tail: b.tail, size: b.size}
		for j, n := range b.nodes {
			cb.nodes[j] = n
			if !n.dead {
				cb.nodes[j].ins = n.ins.Clone()
			}
		}
		c.Blocks[i] = cb
	}
	return c
}

// AddParam declares a parameter. Parameters are passed in declaration order.
func (m *Method) AddParam(name string, t DataType, deco ParamDecorations) LocalID {
	id := m.addLocal(name, t, LocalParam)
	m.Locals[id].Param = deco
	m.Params = append(m.Params, id)
	return id
}

// AddStackAllocation declares a stack allocation of the given type; the
// local itself is a pointer to it.
func (m *Method) AddStackAllocation(name string, allocated DataType, align int) LocalID {
	id := m.addLocal(name, PointerTo(allocated, AddrPrivate), LocalStack)
	m.Locals[id].Align = max(align, allocated.Alignment())
	return id
}

// AddGlobalRef declares a local standing for the module global named
// global.
func (m *Method) AddGlobalRef(global string, t DataType) LocalID {
	name := "@" + global
	if id, ok := m.names[name]; ok {
		return id
	}
	id := m.addLocal(name, t, LocalGlobal)
	m.Locals[id].Global = global
	return id
}

// AddNewLocal creates a fresh temporary whose name starts with prefix.
func (m *Method) AddNewLocal(t DataType, prefix string) Value {
	if !strings.HasPrefix(prefix, "%") {
		prefix = "%" + prefix
	}
	for {
		m.temps++
		name := fmt.Sprintf("%s.%d", prefix, m.temps)
		if _, taken := m.names[name]; !taken {
			return LocalValue(m.addLocal(name, t, LocalPlain), t)
		}
	}
}

// FindOrCreateLocal returns the local named name, declaring it with type t
// if it does not exist. Labels are created with LocalLabel kind.
func (m *Method) FindOrCreateLocal(t DataType, name string) LocalID {
	if id, ok := m.names[name]; ok {
		return id
	}
	kind := LocalPlain
	if t.IsLabelType() {
		kind = LocalLabel
	}
	return m.addLocal(name, t, kind)
}

// LocalByName looks up a local.
func (m *Method) LocalByName(name string) (LocalID, bool) {
	id, ok := m.names[name]
	return id, ok
}

// Local returns the local with the given id.
func (m *Method) Local(id LocalID) *Local {
	if id < 0 || int(id) >= len(m.Locals) {
		panic(fmt.Sprintf("ir: method %s has no local %d", m.Name, id))
	}
	return m.Locals[id]
}

// ValueOf references local id with its declared type.
func (m *Method) ValueOf(id LocalID) Value {
	return LocalValue(id, m.Local(id).Type)
}

func (m *Method) localName(id LocalID) string {
	if id < 0 || int(id) >= len(m.Locals) {
		return fmt.Sprintf("%%L%d", id)
	}
	return m.Locals[id].Name
}

// SetReference records that local id is derived from ref at offset. This is
// the only way to change the alias relation.
func (m *Method) SetReference(id, ref LocalID, offset int) {
	if id == ref {
		return
	}
	m.Local(id).ref = Reference{Local: ref, Offset: offset}
}

// Base follows the alias relation of id to its root. Cycles are cut.
func (m *Method) Base(id LocalID) LocalID {
	cur := id
	for steps := 0; steps < len(m.Locals); steps++ {
		next := m.Local(cur).ref.Local
		if next == NoLocalID {
			return cur
		}
		cur = next
	}
	return cur
}

// Writers returns all instructions writing local id.
func (m *Method) Writers(id LocalID) []*Instr {
	var out []*Instr
	m.ForEach(func(w Walker) {
		if w.Get().Writes(id) {
			out = append(out, w.Get())
		}
	})
	return out
}

// SingleWriter returns the only instruction writing id, or nil if there is
// none or more than one.
func (m *Method) SingleWriter(id LocalID) *Instr {
	ws := m.Writers(id)
	if len(ws) != 1 {
		return nil
	}
	return ws[0]
}

// Readers returns all instructions reading local id.
func (m *Method) Readers(id LocalID) []*Instr {
	var out []*Instr
	m.ForEach(func(w Walker) {
		if w.Get().Reads(id) {
			out = append(out, w.Get())
		}
	})
	return out
}

// ForEach calls fn with a walker at every instruction of the method. fn must
// not mutate the method.
func (m *Method) ForEach(fn func(Walker)) {
	for _, b := range m.Blocks {
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			fn(it)
		}
	}
}

// Begin returns a walker at the first instruction of the method.
func (m *Method) Begin() Walker {
	return m.Blocks[0].Begin()
}

// AppendToEnd returns a walker at the end of the last block.
func (m *Method) AppendToEnd() Walker {
	return m.Blocks[len(m.Blocks)-1].End()
}

// Append adds ins at the end of the method. A label opens a new block.
func (m *Method) Append(ins *Instr) {
	if ins.Kind == InstrLabel {
		m.Blocks = append(m.Blocks, newBlock(m, ins))
		return
	}
	m.AppendToEnd().Emplace(ins)
}

// FindBlock returns the block started by label, or nil.
func (m *Method) FindBlock(label LocalID) *Block {
	for _, b := range m.Blocks {
		if b.Label() == label {
			return b
		}
	}
	return nil
}

func (m *Method) blockAfter(b *Block) *Block {
	for i, cur := range m.Blocks {
		if cur == b && i+1 < len(m.Blocks) {
			return m.Blocks[i+1]
		}
	}
	return nil
}

// BlockIndex returns the position of b in the method, or -1.
func (m *Method) BlockIndex(b *Block) int {
	for i, cur := range m.Blocks {
		if cur == b {
			return i
		}
	}
	return -1
}

// RemoveBlock drops b from the method.
func (m *Method) RemoveBlock(b *Block) {
	if i := m.BlockIndex(b); i >= 0 {
		m.Blocks = append(m.Blocks[:i], m.Blocks[i+1:]...)
	}
}

// CountInstrs returns the number of instructions including labels.
func (m *Method) CountInstrs() int {
	n := 0
	for _, b := range m.Blocks {
		n += b.Len()
	}
	return n
}

// IsEmpty reports whether the method holds nothing but its entry label.
func (m *Method) IsEmpty() bool {
	return len(m.Blocks) == 1 && m.Blocks[0].Len() <= 1
}

// FormatValue renders v using local names.
func (m *Method) FormatValue(v Value) string {
	return v.format(m)
}

// SplitBlock moves the instructions from it to the end of its block into a
// new block opened by label, placed right after the old one. Walkers into
// the moved instructions become stale.
func (m *Method) SplitBlock(it Walker, label LocalID) *Block {
	nb := newBlock(m, NewLabel(label))
	for w := it; !w.AtEnd(); {
		nb.End().Emplace(w.Get())
		w = w.Erase()
	}
	m.insertBlock(m.BlockIndex(it.blk)+1, nb)
	return nb
}

// InsertBlockAfter creates an empty block opened by label right after b.
func (m *Method) InsertBlockAfter(b *Block, label LocalID) *Block {
	nb := newBlock(m, NewLabel(label))
	m.insertBlock(m.BlockIndex(b)+1, nb)
	return nb
}

func (m *Method) insertBlock(at int, b *Block) {
	m.Blocks = append(m.Blocks, nil)
	copy(m.Blocks[at+1:], m.Blocks[at:])
	m.Blocks[at] = b
}

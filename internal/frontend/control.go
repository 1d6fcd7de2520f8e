package frontend

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"vc4c/internal/ir"
	"vc4c/internal/lower"
)

// Selection writes True into Dst if Cond holds and False otherwise.
type Selection struct {
	Dst         ir.Value
	Cond        ir.Value
	True, False ir.Value
}

func (s *Selection) Locals() []ir.LocalID { return collect(s.Dst, s.Cond, s.True, s.False) }

// Map sets the flags from the condition and writes both options under
// complementary conditions, so Dst is written exactly once in every lane.
func (s *Selection) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating moves for selection %s or %s according to %s",
		m.FormatValue(s.True), m.FormatValue(s.False), m.FormatValue(s.Cond))
	if !s.Cond.Type.IsVectorType() && (s.True.Type.IsVectorType() || s.False.Type.IsVectorType()) {
		// a scalar condition selects whole vectors
		it := lower.InsertReplication(m.AppendToEnd(), s.Cond, ir.NopValue)
		it.Prev().Get().WithSetFlags()
	} else {
		m.Append(ir.NewMove(ir.NopValue, s.Cond).WithSetFlags())
	}
	m.Append(ir.NewMove(s.Dst.WithType(s.True.Type), s.True).WithCond(ir.CondZeroClear))
	m.Append(ir.NewMove(s.Dst.WithType(s.False.Type), s.False).WithCond(ir.CondZeroSet))
	return true, nil
}

// Branch jumps to Then, or for conditional branches to Then if Cond is true
// and Else otherwise. Unconditional branches have Cond set to BoolTrue.
type Branch struct {
	Cond       ir.Value
	Then, Else ir.LocalID
}

// Jump is an unconditional branch to label.
func Jump(label ir.LocalID) *Branch {
	return &Branch{Cond: ir.BoolTrue, Then: label, Else: ir.NoLocalID}
}

func (b *Branch) Locals() []ir.LocalID {
	out := append(collect(b.Cond), b.Then)
	if b.Else != ir.NoLocalID {
		out = append(out, b.Else)
	}
	return out
}

func (b *Branch) Map(m *ir.Method, mc *MapContext) (bool, error) {
	if b.Cond.Equal(ir.BoolTrue) || b.Else == ir.NoLocalID {
		mc.debug("Generating unconditional branch to %s", m.Local(b.Then).Name)
		m.Append(ir.NewBranch(b.Then, ir.CondAlways, ir.BoolTrue))
		return true, nil
	}
	mc.debug("Generating branch on condition %s to either %s or %s",
		m.FormatValue(b.Cond), m.Local(b.Then).Name, m.Local(b.Else).Name)
	m.Append(ir.NewBranch(b.Then, ir.CondZeroClear, b.Cond))
	m.Append(ir.NewBranch(b.Else, ir.CondZeroSet, b.Cond))
	return true, nil
}

// Switch jumps to the label of the case equal to Cond, or to Default.
type Switch struct {
	Cond    ir.Value
	Default string
	Cases   map[int64]string
}

func (s *Switch) Locals() []ir.LocalID { return collect(s.Cond) }

// Map emits one comparison and conditional branch per case, in ascending
// case order, followed by the jump to the default label.
func (s *Switch) Map(m *ir.Method, mc *MapContext) (bool, error) {
	mc.debug("Generating branches for switch on %s with %d options and the default %s",
		m.FormatValue(s.Cond), len(s.Cases), s.Default)
	values := maps.Keys(s.Cases)
	slices.Sort(values)
	for _, v := range values {
		tmp := m.AddNewLocal(ir.TypeBool, "switch")
		m.Append(ir.NewCompare(ir.CmpEQ, tmp, s.Cond, ir.IntValue(v, s.Cond.Type), false))
		m.Append(ir.NewBranch(m.FindOrCreateLocal(ir.TypeLabel, s.Cases[v]), ir.CondZeroClear, tmp))
	}
	m.Append(ir.NewBranch(m.FindOrCreateLocal(ir.TypeLabel, s.Default), ir.CondAlways, ir.BoolTrue))
	return true, nil
}

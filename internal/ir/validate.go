package ir

import (
	"errors"
	"fmt"
)

// ValidateOptions selects the invariants that must hold at a pipeline stage.
type ValidateOptions struct {
	// Normalized requires that no phi, comparison, intrinsic or lifetime
	// instruction remains.
	Normalized bool
}

// Validate checks module invariants.
// Returns error if any invariant is violated.
func Validate(mod *Module, opts ValidateOptions) error {
	if mod == nil {
		return nil
	}
	var errs []error
	for _, m := range mod.Methods {
		if err := ValidateMethod(m, opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateMethod checks the invariants of a single method.
func ValidateMethod(m *Method, opts ValidateOptions) error {
	if m == nil {
		return nil
	}
	var errs []error

	// 1. Every block starts with its label
	if err := validateLabels(m); err != nil {
		errs = append(errs, err)
	}

	// 2. Referenced locals are declared and branch targets exist
	if err := validateLocals(m); err != nil {
		errs = append(errs, err)
	}

	// 3. Types respect the vector register
	if err := validateTypes(m); err != nil {
		errs = append(errs, err)
	}

	// 4. Operand shapes
	if err := validateOperands(m, opts); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("method %s: %w", m.Name, err)
	}
	return nil
}

func validateLabels(m *Method) error {
	var errs []error
	if len(m.Blocks) == 0 {
		return errors.New("method has no blocks")
	}
	seen := make(map[LocalID]bool)
	for i, b := range m.Blocks {
		label := b.Label()
		if label == NoLocalID {
			errs = append(errs, fmt.Errorf("block %d does not start with a label", i))
			continue
		}
		if seen[label] {
			errs = append(errs, fmt.Errorf("label %s starts more than one block", m.localName(label)))
		}
		seen[label] = true
		first := true
		for it := b.Begin(); !it.AtEnd(); it = it.Next() {
			if !first && it.Get().Kind == InstrLabel {
				errs = append(errs, fmt.Errorf("block %s: label in the middle of the block", m.localName(label)))
			}
			first = false
		}
	}
	return errors.Join(errs...)
}

func validateLocals(m *Method) error {
	var errs []error
	exists := func(id LocalID) bool {
		return id >= 0 && int(id) < len(m.Locals)
	}
	m.ForEach(func(w Walker) {
		ins := w.Get()
		for _, id := range ins.Locals() {
			if !exists(id) {
				errs = append(errs, fmt.Errorf("%s: local L%d does not exist", ins.Kind, id))
			}
		}
		if ins.Kind == InstrBranch && exists(ins.Branch.Target) {
			if m.FindBlock(ins.Branch.Target) == nil {
				errs = append(errs, fmt.Errorf("branch target %s does not exist", m.localName(ins.Branch.Target)))
			}
		}
	})
	return errors.Join(errs...)
}

func validateTypes(m *Method) error {
	var errs []error
	check := func(t DataType, what string) {
		if t.Width > NativeVectorWidth || int(t.Width)*int(t.Bits) > VectorRegisterBits {
			errs = append(errs, fmt.Errorf("%s: type %s exceeds the vector register", what, t))
		}
	}
	for _, l := range m.Locals {
		check(l.Type, l.Name)
	}
	return errors.Join(errs...)
}

func validateOperands(m *Method, opts ValidateOptions) error {
	var errs []error
	m.ForEach(func(w Walker) {
		ins := w.Get()
		switch ins.Kind {
		case InstrOp:
			if want := int(ins.Op.Code.Operands); want != 0 && len(ins.Op.Args) != want {
				errs = append(errs, fmt.Errorf("%s: expected %d operands, got %d", m.FormatInstr(ins), want, len(ins.Op.Args)))
			}
			if ins.Dst.IsNone() {
				errs = append(errs, fmt.Errorf("%s: operation without output", m.FormatInstr(ins)))
			}
		case InstrMove, InstrLoadImm, InstrRotate, InstrCompare, InstrPhi:
			if ins.Dst.IsNone() {
				errs = append(errs, fmt.Errorf("%s: missing output", m.FormatInstr(ins)))
			}
		case InstrMemory:
			if ins.Memory.Op == MemRead && ins.Dst.IsNone() {
				errs = append(errs, fmt.Errorf("%s: read without output", m.FormatInstr(ins)))
			}
		}
		if opts.Normalized {
			switch ins.Kind {
			case InstrPhi, InstrCompare, InstrIntrinsic, InstrLifetime:
				errs = append(errs, fmt.Errorf("%s: not allowed after normalization", m.FormatInstr(ins)))
			}
		}
	})
	return errors.Join(errs...)
}

package codegen

import (
	"strconv"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/trace"
)

// Options configures Generate.
type Options struct {
	// Pairing merges independent add and mul ALU instructions.
	Pairing bool
	Tracer  trace.Tracer
}

// Generate translates the normalized method m into a Program. The method is
// rewritten in place while preparing operands.
//
//  1. Prepare literals and containers for the instruction formats
//  2. Compute live intervals and allocate registers
//  3. Emit machine instructions with read port fix-ups
//  4. Pair instructions, then insert nops for hazards
//  5. Resolve labels to instruction indices
func Generate(m *ir.Method, opts Options) (*Program, error) {
	t := opts.Tracer
	if t == nil {
		t = trace.Nop
	}
	phase := func(name string, fn func() error) error {
		span := trace.Begin(t, trace.ScopePass, name, 0)
		err := fn()
		span.WithExtra("method", m.Name).End(errDetail(err))
		return err
	}

	var (
		regs map[ir.LocalID]ir.Register
		code []MachineInstr
	)
	err := phase("prepare", func() error {
		if err := prepare(m); err != nil {
			return err
		}
		return ir.ValidateMethod(m, ir.ValidateOptions{Normalized: true})
	})
	if err != nil {
		return nil, asCodegenError(m, err)
	}
	err = phase("allocate-registers", func() error {
		var err error
		regs, err = allocateRegisters(m, analyzeLiveness(m))
		return err
	})
	if err != nil {
		return nil, err
	}
	err = phase("emit", func() error {
		e := &emitter{m: m, regs: regs}
		if err := e.emitMethod(); err != nil {
			return err
		}
		code = e.out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opts.Pairing {
		_ = phase("pair-instructions", func() error {
			code = pairInstructions(code)
			return nil
		})
	}
	_ = phase("insert-hazard-nops", func() error {
		code = insertHazardNops(code)
		return nil
	})

	prog := &Program{
		Method:         m.Name,
		Kernel:         m.Kernel,
		StackFrameSize: m.StackFrameSize,
		Registers:      make(map[string]string, len(regs)),
	}
	for _, id := range m.Params {
		p := m.Local(id)
		prog.Params = append(prog.Params, Param{Name: p.Name, Uniforms: max(1, p.Type.VectorWidth())})
	}
	ids := maps.Keys(regs)
	slices.Sort(ids)
	for _, id := range ids {
		prog.Registers[m.Local(id).Name] = regs[id].String()
	}
	err = phase("resolve-labels", func() error {
		var err error
		prog.Instrs, prog.Labels, err = resolveLabels(code)
		return err
	})
	if err != nil {
		return nil, err
	}
	trace.Point(t, trace.ScopeModule, "codegen", m.Name+": "+strconv.Itoa(len(prog.Instrs))+" instructions")
	return prog, nil
}

// resolveLabels drops the label markers and points every branch at the
// index of the instruction following its label.
func resolveLabels(code []MachineInstr) ([]MachineInstr, map[string]int, error) {
	labels := map[string]int{}
	out := make([]MachineInstr, 0, len(code))
	for _, mi := range code {
		if mi.Kind == kindLabel {
			labels[mi.Label] = len(out)
			continue
		}
		out = append(out, mi)
	}
	for i := range out {
		if out[i].Kind != KindBranch {
			continue
		}
		idx, ok := labels[out[i].Label]
		if !ok {
			return nil, nil, diag.CodeErrorf(diag.CodegenUnresolvedLabel, out[i].Label, "branch at %d jumps to an unknown label", i)
		}
		out[i].Target = idx
	}
	return out, labels, nil
}

func asCodegenError(m *ir.Method, err error) error {
	if _, ok := diag.StageOf(err); ok {
		return err
	}
	return diag.Errorf(diag.StageCodegen, m.Name, "%v", err)
}

func errDetail(err error) string {
	if err != nil {
		return err.Error()
	}
	return ""
}

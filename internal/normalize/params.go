package normalize

import (
	"fortio.org/safecast"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
	"vc4c/internal/lower"
)

// loadParameters reads every parameter from the uniform stream at method
// entry, in parameter order. Vector parameters take one uniform per lane.
// Narrow parameters decorated as zero- or sign-extended are extended to the
// full register.
func loadParameters(m *ir.Method, _ *Context) error {
	at := entry(m)
	var err error
	for _, id := range m.Params {
		p := m.Local(id)
		v := m.ValueOf(id)
		if p.Type.IsVectorType() {
			if at, err = loadVectorParameter(at, m, v); err != nil {
				return err
			}
			continue
		}
		at = at.Emit(ir.NewMove(v, ir.RegValue(ir.RegUniform, p.Type)))
		if p.Type.IsPointerType() || p.Type.IsFloatingType() || p.Type.ScalarBitCount() >= 32 {
			continue
		}
		wide := v.WithType(ir.TypeInt32)
		switch {
		case p.Param.Has(ir.ParamSignExtend):
			at, err = lower.InsertSignExtension(at, m, v, wide, true, ir.CondAlways, false)
		case p.Param.Has(ir.ParamZeroExtend):
			at, err = lower.InsertZeroExtension(at, m, v, wide, true, ir.CondAlways, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func loadVectorParameter(at ir.Walker, m *ir.Method, v ir.Value) (ir.Walker, error) {
	elem := v.Type.ElementType()
	if elem.ScalarBitCount() > 32 {
		return at, diag.CodeErrorf(diag.NormUnsupported, m.FormatValue(v), "Parameters wider than 32 bits per lane are not supported")
	}
	for lane := range v.Type.VectorWidth() {
		idx, err := safecast.Convert[int64](lane)
		if err != nil {
			return at, err
		}
		tmp := m.AddNewLocal(elem, "param")
		at = at.Emit(ir.NewMove(tmp, ir.RegValue(ir.RegUniform, elem)))
		if at, err = lower.InsertVectorInsertion(at, m, v, ir.IntValue(idx, ir.TypeInt32), tmp); err != nil {
			return at, err
		}
	}
	return at, nil
}

package frontend

import (
	"math"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"vc4c/internal/diag"
	"vc4c/internal/ir"
)

// Types resolves type names written in LLVM syntax: i32, float, <4 x i16>,
// [8 x i8], {i8, i32}, <{i8, i32}>, i32 addrspace(1)*, %name.
type Types struct {
	named map[string]ir.DataType
}

// NewTypes returns a resolver without named types.
func NewTypes() *Types {
	return &Types{named: map[string]ir.DataType{}}
}

// Define declares a named struct type from its body, e.g. Define("pair",
// "{i8, i32}").
func (ts *Types) Define(name, body string) error {
	t, err := ts.Parse(body)
	if err != nil {
		return err
	}
	if t.Kind == ir.KindStruct {
		fields := t.Complex().Fields
		t = ir.StructOf(name, t.Complex().Packed, fields...)
	}
	ts.named[name] = t
	return nil
}

// Parse resolves a type name.
func (ts *Types) Parse(s string) (ir.DataType, error) {
	sc := &scanner{src: s}
	t, err := ts.parse(sc)
	if err != nil {
		return ir.DataType{}, err
	}
	if sc.skipSpace(); !sc.done() {
		return ir.DataType{}, sc.errorf("trailing input")
	}
	return t, nil
}

func (ts *Types) parse(sc *scanner) (ir.DataType, error) {
	sc.skipSpace()
	var t ir.DataType
	var err error
	switch {
	case sc.accept("<{"):
		t, err = ts.parseStruct(sc, "}>", true)
	case sc.accept("<"):
		t, err = ts.parseSized(sc, ">", true)
	case sc.accept("["):
		t, err = ts.parseSized(sc, "]", false)
	case sc.accept("{"):
		t, err = ts.parseStruct(sc, "}", false)
	case sc.accept("%"):
		name := sc.ident()
		named, ok := ts.named[name]
		if !ok {
			return ir.DataType{}, diag.CodeErrorf(diag.ParseUnknownType, "%"+name, "Unknown named type")
		}
		t = named
	default:
		t, err = scalarType(sc)
	}
	if err != nil {
		return ir.DataType{}, err
	}
	return pointerSuffix(sc, t)
}

func scalarType(sc *scanner) (ir.DataType, error) {
	name := sc.ident()
	switch name {
	case "void":
		return ir.TypeVoid, nil
	case "label":
		return ir.TypeLabel, nil
	case "half":
		return ir.TypeHalf, nil
	case "float":
		return ir.TypeFloat, nil
	case "double":
		return ir.TypeDouble, nil
	}
	if bits, ok := strings.CutPrefix(name, "i"); ok {
		if n, err := strconv.Atoi(bits); err == nil {
			switch n {
			case 1, 8, 16, 32, 64:
				return ir.IntType(n), nil
			}
		}
	}
	return ir.DataType{}, diag.CodeErrorf(diag.ParseUnknownType, name, "Unknown type")
}

func (ts *Types) parseSized(sc *scanner, closing string, vector bool) (ir.DataType, error) {
	sc.skipSpace()
	n, err := sc.integer()
	if err != nil {
		return ir.DataType{}, err
	}
	sc.skipSpace()
	if !sc.accept("x") {
		return ir.DataType{}, sc.errorf("expected 'x'")
	}
	elem, err := ts.parse(sc)
	if err != nil {
		return ir.DataType{}, err
	}
	sc.skipSpace()
	if !sc.accept(closing) {
		return ir.DataType{}, sc.errorf("expected %q", closing)
	}
	count, err := safecast.Convert[int](n)
	if err != nil {
		return ir.DataType{}, sc.errorf("size out of range")
	}
	if !vector {
		return ir.ArrayOf(elem, count), nil
	}
	v, err := elem.ToVectorType(count)
	if err != nil {
		return ir.DataType{}, diag.CodeErrorf(diag.ParseUnknownType, sc.src, "%v", err)
	}
	return v, nil
}

func (ts *Types) parseStruct(sc *scanner, closing string, packed bool) (ir.DataType, error) {
	var fields []ir.DataType
	for {
		sc.skipSpace()
		if sc.accept(closing) {
			return ir.StructOf("", packed, fields...), nil
		}
		if len(fields) > 0 && !sc.accept(",") {
			return ir.DataType{}, sc.errorf("expected ',' or %q", closing)
		}
		f, err := ts.parse(sc)
		if err != nil {
			return ir.DataType{}, err
		}
		fields = append(fields, f)
	}
}

func pointerSuffix(sc *scanner, t ir.DataType) (ir.DataType, error) {
	for {
		sc.skipSpace()
		space := ir.AddrPrivate
		if sc.accept("addrspace(") {
			n, err := sc.integer()
			if err != nil {
				return ir.DataType{}, err
			}
			if !sc.accept(")") {
				return ir.DataType{}, sc.errorf("expected ')'")
			}
			as, err := safecast.Convert[uint8](n)
			if err != nil || ir.AddressSpace(as) > ir.AddrLocal {
				return ir.DataType{}, sc.errorf("unknown address space %d", n)
			}
			space = ir.AddressSpace(as)
			sc.skipSpace()
			if !sc.accept("*") {
				return ir.DataType{}, sc.errorf("expected '*' after address space")
			}
		} else if !sc.accept("*") {
			return t, nil
		}
		t = ir.PointerTo(t, space)
	}
}

// Values resolves operands against the locals of a method:
//
//	%x                        declared local
//	@g                        module global
//	true, false               i1 constants
//	i32 -7, float 1.5         typed literals
//	i32 undef                 undefined value
//	<2 x i32> zeroinitializer zero value
//	<4 x i16> [1, 2, 3, 4]    constant vector or array
type Values struct {
	Types   *Types
	Method  *ir.Method
	Globals map[string]ir.Global
}

// Parse resolves one operand.
func (vs *Values) Parse(s string) (ir.Value, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "true":
		return ir.BoolTrue, nil
	case s == "false":
		return ir.BoolFalse, nil
	case strings.HasPrefix(s, "%"):
		id, ok := vs.Method.LocalByName(s)
		if !ok {
			return ir.NoValue, diag.CodeErrorf(diag.ParseUnknownValue, s, "Unknown local")
		}
		return vs.Method.ValueOf(id), nil
	case strings.HasPrefix(s, "@"):
		g, ok := vs.Globals[s[1:]]
		if !ok {
			return ir.NoValue, diag.CodeErrorf(diag.ParseUnknownValue, s, "Unknown global")
		}
		id := vs.Method.AddGlobalRef(g.Name, ir.PointerTo(g.Type, ir.AddrGlobal))
		return vs.Method.ValueOf(id), nil
	}

	sc := &scanner{src: s}
	t, err := vs.Types.parse(sc)
	if err != nil {
		return ir.NoValue, err
	}
	sc.skipSpace()
	rest := strings.TrimSpace(sc.rest())
	switch {
	case rest == "undef":
		return ir.UndefinedOf(t), nil
	case rest == "zeroinitializer":
		return ir.ZeroInitOf(t), nil
	case strings.HasPrefix(rest, "%"):
		v, err := vs.Parse(rest)
		if err != nil {
			return ir.NoValue, err
		}
		return v.WithType(t), nil
	case strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]"):
		return vs.container(t, rest[1:len(rest)-1])
	}
	lit, err := parseLiteral(rest, t)
	if err != nil {
		return ir.NoValue, err
	}
	return ir.Lit(lit, t), nil
}

func (vs *Values) container(t ir.DataType, body string) (ir.Value, error) {
	elem := t.ElementType()
	var elems []ir.Value
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case part == "undef":
			elems = append(elems, ir.UndefinedOf(elem))
		case strings.HasPrefix(part, "%"):
			v, err := vs.Parse(part)
			if err != nil {
				return ir.NoValue, err
			}
			elems = append(elems, v)
		default:
			lit, err := parseLiteral(part, elem)
			if err != nil {
				return ir.NoValue, err
			}
			elems = append(elems, ir.Lit(lit, elem))
		}
	}
	want := t.VectorWidth()
	if t.Kind == ir.KindArray {
		want = t.Complex().Len
	}
	if len(elems) != want {
		return ir.NoValue, diag.CodeErrorf(diag.ParseBadInput, body, "Expected %d elements, got %d", want, len(elems))
	}
	return ir.Container(t, elems...), nil
}

func parseLiteral(s string, t ir.DataType) (ir.Literal, error) {
	switch {
	case t.IsFloatingType():
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return ir.Literal{}, diag.CodeErrorf(diag.ParseBadInput, s, "Invalid floating-point literal")
		}
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return ir.Literal{}, diag.CodeErrorf(diag.ParseBadInput, s, "Literal does not fit a 32-bit float")
		}
		return ir.FloatLiteral(float32(f)), nil
	case t.ScalarBitCount() == 1 && (s == "true" || s == "false"):
		return ir.BoolLiteral(s == "true"), nil
	}
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		// wide constants keep their low 32 bits
		return ir.UintLiteral(uint32(u & math.MaxUint32)), nil
	}
	i, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return ir.Literal{}, diag.CodeErrorf(diag.ParseBadInput, s, "Invalid integer literal")
	}
	return ir.IntLiteral(i), nil
}

type scanner struct {
	src string
	pos int
}

func (sc *scanner) done() bool   { return sc.pos >= len(sc.src) }
func (sc *scanner) rest() string { return sc.src[sc.pos:] }

func (sc *scanner) skipSpace() {
	for !sc.done() && (sc.src[sc.pos] == ' ' || sc.src[sc.pos] == '\t') {
		sc.pos++
	}
}

func (sc *scanner) accept(tok string) bool {
	if strings.HasPrefix(sc.rest(), tok) {
		sc.pos += len(tok)
		return true
	}
	return false
}

func (sc *scanner) ident() string {
	start := sc.pos
	for !sc.done() {
		c := sc.src[sc.pos]
		if c != '_' && c != '.' && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			break
		}
		sc.pos++
	}
	return sc.src[start:sc.pos]
}

func (sc *scanner) integer() (int64, error) {
	start := sc.pos
	for !sc.done() && sc.src[sc.pos] >= '0' && sc.src[sc.pos] <= '9' {
		sc.pos++
	}
	n, err := strconv.ParseInt(sc.src[start:sc.pos], 10, 32)
	if err != nil {
		return 0, sc.errorf("expected a number")
	}
	return n, nil
}

func (sc *scanner) errorf(format string, args ...any) error {
	return diag.CodeErrorf(diag.ParseUnknownType, sc.src, "At offset %d: "+format, append([]any{sc.pos}, args...)...)
}

package frontend_test

import (
	"strings"
	"testing"

	"vc4c/internal/diag"
	"vc4c/internal/frontend"
	"vc4c/internal/ir"
)

func TestParseTypes(t *testing.T) {
	ts := frontend.NewTypes()
	if err := ts.Define("pair", "{i8, i32}"); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		in, want string
	}{
		{"i32", "i32"},
		{"i1", "i1"},
		{"float", "float"},
		{"<4 x i16>", "<4 x i16>"},
		{"[8 x i8]", "[8 x i8]"},
		{"i32 addrspace(1)*", "i32 addrspace(1)*"},
		{"i8**", "i8**"},
		{"%pair", "%pair"},
	} {
		got, err := ts.Parse(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Errorf("%s: got %s, want %s", tc.in, got, tc.want)
		}
	}

	packed, err := ts.Parse("<{i8, i32}>")
	if err != nil {
		t.Fatal(err)
	}
	if !packed.Complex().Packed || packed.ByteSize() != 5 {
		t.Fatalf("packed struct: packed=%v size=%d", packed.Complex().Packed, packed.ByteSize())
	}
	ptr, _ := ts.Parse("float addrspace(3)*")
	if ptr.Complex().Space != ir.AddrLocal || !ptr.Pointee().Equal(ir.TypeFloat) {
		t.Fatalf("pointer: %s", ptr)
	}

	for _, bad := range []string{"i7", "<17 x i32>", "%missing", "[4 i8]", "i32 addrspace(9)*", "float junk"} {
		if _, err := ts.Parse(bad); err == nil {
			t.Errorf("%s: expected error", bad)
		} else if st, _ := diag.StageOf(err); st != diag.StageParser {
			t.Errorf("%s: stage %s, want parser", bad, st)
		}
	}
}

func TestParseValues(t *testing.T) {
	m := ir.NewMethod("v", ir.TypeVoid)
	x := m.AddParam("%x", ir.TypeInt32, 0)
	vs := &frontend.Values{Types: frontend.NewTypes(), Method: m}

	v, err := vs.Parse("%x")
	if err != nil || !v.HasLocal(x) {
		t.Fatalf("local: %v %v", v, err)
	}
	if v, _ = vs.Parse("i32 -7"); !v.IsLiteral() || v.Lit.SignedInt() != -7 {
		t.Fatalf("negative literal: %v", v)
	}
	if v, _ = vs.Parse("i32 0xFFFFFFFF"); v.Lit.UnsignedInt() != 0xFFFFFFFF {
		t.Fatalf("hex literal: %v", v)
	}
	if v, _ = vs.Parse("float 1.5"); v.Lit.Float() != 1.5 {
		t.Fatalf("float literal: %v", v)
	}
	if v, _ = vs.Parse("true"); !v.Equal(ir.BoolTrue) {
		t.Fatalf("true: %v", v)
	}
	if v, _ = vs.Parse("<2 x i32> undef"); !v.IsUndefined() || v.Type.VectorWidth() != 2 {
		t.Fatalf("undef: %v", v)
	}
	if v, _ = vs.Parse("i8* %x"); !v.HasLocal(x) || !v.Type.IsPointerType() {
		t.Fatalf("retyped local: %v", v)
	}
	v, err = vs.Parse("<4 x i16> [1, 2, undef, 4]")
	if err != nil || !v.IsContainer() || len(v.Elems) != 4 || !v.Elems[2].IsUndefined() {
		t.Fatalf("container: %v %v", v, err)
	}

	for _, bad := range []string{"%y", "@g", "i32 abc", "<2 x i32> [1]", "float x"} {
		if _, err := vs.Parse(bad); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

const copyKernel = `
name: example
types:
  pair: "{i8, i32}"
globals:
  - name: table
    type: "[4 x i32]"
    init: "[4 x i32] [1, 2, 3, 4]"
    constant: true
methods:
  - name: copy
    kernel: true
    params:
      - {name: "%in", type: "i32 addrspace(1)*", decorations: [readonly]}
      - {name: "%out", type: "i32 addrspace(1)*"}
      - {name: "%n", type: "i32"}
    body:
      - {node: load, dst: "%v", type: i32, args: ["%in"]}
      - {node: compare, op: slt, dst: "%small", type: i1, args: ["%v", "%n"]}
      - {node: br, args: ["%small"], labels: ["%then", "%done"]}
      - {node: label, labels: ["%then"]}
      - {node: op, op: add, dst: "%w", type: i32, args: ["%v", "i32 1"]}
      - {node: br, labels: ["%done"]}
      - {node: label, labels: ["%done"]}
      - {node: phi, dst: "%r", type: i32, incoming: [{label: "%start_of_function", value: "%v"}, {label: "%then", value: "%w"}]}
      - {node: store, dst: "%out", args: ["%r"]}
      - {node: return}
`

func TestParseYAMLModule(t *testing.T) {
	mod, err := frontend.ParseYAML([]byte(copyKernel))
	if err != nil {
		t.Fatal(err)
	}
	if mod.Name != "example" || len(mod.Methods) != 1 || len(mod.Kernels()) != 1 {
		t.Fatalf("unexpected module shape: %+v", mod)
	}
	if len(mod.Globals) != 1 || !mod.Globals[0].Init.IsContainer() || !mod.Globals[0].Constant {
		t.Fatalf("global not resolved: %+v", mod.Globals)
	}
	fm := mod.FindMethod("copy")
	if fm == nil || len(fm.Nodes) != 10 {
		t.Fatalf("expected 10 nodes")
	}
	if err := fm.Check(); err != nil {
		t.Fatal(err)
	}
	in, _ := fm.IR.LocalByName("%in")
	if !fm.IR.Local(in).Param.Has(ir.ParamReadOnly) {
		t.Fatalf("decoration lost")
	}
	if err := fm.Map(nil); err != nil {
		t.Fatal(err)
	}
	if len(fm.IR.Blocks) != 3 {
		t.Fatalf("expected entry, then and done blocks, got %d", len(fm.IR.Blocks))
	}
	if err := ir.ValidateMethod(fm.IR, ir.ValidateOptions{}); err != nil {
		t.Fatalf("mapped method is invalid: %v", err)
	}
	irMod := mod.IRModule()
	if irMod.FindMethod("copy") != fm.IR {
		t.Fatalf("IR module must share the methods")
	}
}

func TestParseYAMLErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown node":    "name: m\nmethods:\n  - name: k\n    body:\n      - {node: frobnicate}\n",
		"untyped dst":     "name: m\nmethods:\n  - name: k\n    body:\n      - {node: move, dst: \"%x\", args: [\"i32 1\"]}\n",
		"unknown field":   "name: m\nbogus: 1\nmethods: []\n",
		"bad type":        "name: m\nmethods:\n  - name: k\n    params:\n      - {name: a, type: i3}\n    body: []\n",
		"bad case":        "name: m\nmethods:\n  - name: k\n    params: [{name: x, type: i32}]\n    body:\n      - {node: switch, args: [\"%x\"], default: d, cases: {abc: l}}\n",
		"move arity":      "name: m\nmethods:\n  - name: k\n    locals: [{name: x, type: i32}]\n    body:\n      - {node: move, dst: \"%x\", args: []}\n",
		"cyclic types":    "name: m\ntypes:\n  a: \"{%b}\"\n  b: \"{%a}\"\nmethods: []\n",
		"bad decoration":  "name: m\nmethods:\n  - name: k\n    params: [{name: x, type: i32, decorations: [fast]}]\n    body: []\n",
		"undeclared load": "name: m\nmethods:\n  - name: k\n    body:\n      - {node: load, dst: \"%v\", type: i32, args: [\"%nowhere\"]}\n",
	} {
		if _, err := frontend.ParseYAML([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseYAMLBooleanNames(t *testing.T) {
	for name, src := range map[string]string{
		"param n":    "name: m\nmethods:\n  - name: k\n    params: [{name: n, type: i32}]\n    body: []\n",
		"param on":   "name: m\nmethods:\n  - name: k\n    params: [{name: on, type: i32}]\n    body: []\n",
		"local yes":  "name: m\nmethods:\n  - name: k\n    locals: [{name: yes, type: i32}]\n    body: []\n",
		"stack off":  "name: m\nmethods:\n  - name: k\n    stack: [{name: off, type: i32}]\n    body: []\n",
		"dst y":      "name: m\nmethods:\n  - name: k\n    body:\n      - {node: move, dst: y, type: i32, args: [\"i32 1\"]}\n",
		"label no":   "name: m\nmethods:\n  - name: k\n    body:\n      - {node: br, labels: [no]}\n",
		"default on": "name: m\nmethods:\n  - name: k\n    params: [{name: x, type: i32}]\n    body:\n      - {node: switch, args: [\"%x\"], default: on, cases: {}}\n",
	} {
		_, err := frontend.ParseYAML([]byte(src))
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if diag.CodeOf(err) != diag.ParseBadInput || !strings.Contains(err.Error(), "quote it") {
			t.Errorf("%s: %v", name, err)
		}
	}

	mod, err := frontend.ParseYAML([]byte("name: m\nmethods:\n  - name: k\n    params: [{name: \"n\", type: i32}, {name: \"%on\", type: i32}]\n    body: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"%n", "%on"} {
		if _, ok := mod.Methods[0].IR.LocalByName(want); !ok {
			t.Errorf("quoted name %s not declared", want)
		}
	}
}

func TestParseYAMLSwitch(t *testing.T) {
	src := `
name: m
methods:
  - name: k
    kernel: true
    params: [{name: x, type: i32}]
    body:
      - {node: switch, args: ["%x"], default: other, cases: {"0x10": sixteen, "2": two}}
      - {node: label, labels: [two]}
      - {node: br, labels: [other]}
      - {node: label, labels: [sixteen]}
      - {node: br, labels: [other]}
      - {node: label, labels: [other]}
      - {node: return}
`
	mod, err := frontend.ParseYAML([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	fm := mod.Methods[0]
	if err := fm.Map(nil); err != nil {
		t.Fatal(err)
	}
	entry := fm.IR.Blocks[0].Instrs()
	// label, 2 x (compare, branch), default branch
	if len(entry) != 6 {
		t.Fatalf("expected 6 entry instructions, got %d", len(entry))
	}
	if lit, _ := entry[1].Compare.Right.LiteralValue(); lit.SignedInt() != 2 {
		t.Fatalf("first case must be 2, got %d", lit.SignedInt())
	}
	if lit, _ := entry[3].Compare.Right.LiteralValue(); lit.SignedInt() != 16 {
		t.Fatalf("second case must be 16, got %d", lit.SignedInt())
	}
}

package kcache_test

import (
	"os"
	"path/filepath"
	"testing"

	"vc4c/internal/codegen"
	"vc4c/internal/ir"
	"vc4c/internal/kcache"
)

func sample() *codegen.Program {
	add := codegen.MachineInstr{Kind: codegen.KindALU}
	add.Add = codegen.Slot{Op: ir.OpAdd, Dst: ir.RegA(3), A: codegen.Operand{Reg: ir.RegUniform}, B: codegen.Operand{Imm: true}, Cond: ir.CondZeroSet}
	add.Mul = codegen.Slot{Op: ir.OpNop, Dst: ir.RegNop, Cond: ir.CondNever}
	add.Imm, add.HasImm, add.Pack = 7, true, ir.PackIntToUnsignedCharSaturate
	return &codegen.Program{
		Method:     "sum",
		Kernel:     true,
		Instrs:     []codegen.MachineInstr{add, {Kind: codegen.KindThreadEnd}},
		Labels:     map[string]int{"%end_of_function": 1},
		Params:     []codegen.Param{{Name: "v", Uniforms: 4}},
		GlobalData: []byte{1, 2, 3},
		Registers:  map[string]string{"%x": "ra3"},
	}
}

func TestKeyOf(t *testing.T) {
	a := kcache.KeyOf([]byte("ab"), []byte("c"))
	if a != kcache.KeyOf([]byte("ab"), []byte("c")) {
		t.Fatal("key is not deterministic")
	}
	if a == kcache.KeyOf([]byte("a"), []byte("bc")) {
		t.Fatal("part boundaries do not change the key")
	}
	if len(a.String()) != 32 {
		t.Fatalf("key string %q", a)
	}
}

func TestPutGet(t *testing.T) {
	c, err := kcache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := kcache.KeyOf([]byte("sum"))
	if _, ok, err := c.Get(key); ok || err != nil {
		t.Fatalf("empty cache hit: %v", err)
	}
	want := sample()
	if err := c.Put(key, want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("miss after put: %v", err)
	}
	if got.Method != want.Method || !got.Kernel || len(got.Instrs) != 2 || got.Labels["%end_of_function"] != 1 {
		t.Fatalf("got %+v", got)
	}
	if got.Instrs[0].Add != want.Instrs[0].Add || got.Instrs[0].Pack != want.Instrs[0].Pack || got.Instrs[0].Imm != 7 {
		t.Fatalf("instruction changed: %+v", got.Instrs[0])
	}
	if got.Params[0] != want.Params[0] || string(got.GlobalData) != "\x01\x02\x03" || got.Registers["%x"] != "ra3" {
		t.Fatalf("metadata changed: %+v", got)
	}

	if err := c.DropAll(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Fatal("hit after DropAll")
	}
}

func TestCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := kcache.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	key := kcache.KeyOf([]byte("x"))
	if err := c.Put(key, sample()); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, key.String()[:2], key.String()+".mpz")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(key); ok || err == nil {
		t.Fatal("corrupt entry was read")
	}
}

func TestNilCache(t *testing.T) {
	var c *kcache.Cache
	if err := c.Put(kcache.Key{}, sample()); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(kcache.Key{}); ok || err != nil {
		t.Fatal("nil cache hit")
	}
}

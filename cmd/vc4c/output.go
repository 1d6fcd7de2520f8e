package main

import (
	"github.com/vmihailenco/msgpack/v5"

	"vc4c/internal/codegen"
)

// encodePrograms serializes progs in the format named by the output
// extension.
func encodePrograms(ext string, progs []*codegen.Program) ([]byte, error) {
	switch ext {
	case ".bin":
		return codegen.Assemble(codegen.BinaryEncoder{}, progs...)
	case ".s", ".asm":
		return codegen.Assemble(codegen.TextEncoder{}, progs...)
	default:
		return msgpack.Marshal(progs)
	}
}

// Package frontend holds the instruction nodes produced by the LLVM and
// SPIR-V front ends and maps them onto the compiler IR.
//
// A front end declares the parameters, locals and stack allocations of a
// method on an ir.Method and records the method body as a list of Nodes.
// Map appends the IR for each node to the end of the method. Besides
// straight translation, mapping resolves lifetime intrinsics to stack
// allocations, expands the LLVM and OpenCL intrinsics that have an inline
// form, and desugars selections, conditional branches and switches into
// the flag-driven form the hardware supports.
//
// LoadYAML reads a textual dump of a frontend module; the compiler CLI and
// the tests use it as input.
package frontend

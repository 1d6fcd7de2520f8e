// Package diag defines the error and diagnostic model shared by all compiler
// stages.
//
// # Errors
//
// A stage that cannot handle a construct returns a *CompilationError. The
// error names the Stage (parser, normalization, lowering, optimizer, codegen
// or general), a stable Code and the textual form of the construct. There is
// no partial success: the method being compiled is abandoned as a whole.
//
// # Diagnostics
//
// The driver turns every failed method into a Diagnostic and collects them in
// a Bag. Warnings (for example an unresolved lifetime pointer under the
// "warn" policy) are sent through a Reporter while compilation continues.
//
// Codes are grouped by stage:
//
//   - VC1xxx – input and arity errors
//   - VC2xxx – normalization
//   - VC3xxx – type and intrinsic lowering
//   - VC4xxx – optimizer
//   - VC5xxx – code generation
//   - VC6xxx – observability
//   - VC9xxx – general
//
// Report renders a bag, coloured when writing to a terminal.
package diag

// Package trace records what the compiler is doing: which kernels are being
// compiled, which passes run on them and, at the debug level, every frontend
// node that gets mapped.
//
// # Usage
//
//	vc4c compile --trace=- --trace-level=phase kernels.yaml
//
// # Tracers
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to a file or stderr
//   - RingTracer: the last N events, dumped when a kernel fails
//   - MultiTracer: fans out to several tracers
//
// WithSession stamps events with the ID of a compilation run so that the
// output of kernels compiled in parallel can be told apart.
//
// # Levels and scopes
//
// A level admits all scopes up to a bound:
//
//   - LevelPhase: ScopeDriver and ScopePass
//   - LevelDetail: adds ScopeModule (one kernel)
//   - LevelDebug: adds ScopeNode (single frontend nodes and instructions)
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "normalize", parentID)
//	defer span.End("")
package trace

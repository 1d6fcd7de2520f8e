// Package driver runs the compilation pipeline over frontend modules:
// mapping, normalization, optimization and code generation, with
// diagnostics, tracing, timings and the kernel cache around them.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vc4c/internal/codegen"
	"vc4c/internal/config"
	"vc4c/internal/diag"
	"vc4c/internal/frontend"
	"vc4c/internal/ir"
	"vc4c/internal/kcache"
	"vc4c/internal/normalize"
	"vc4c/internal/observ"
	"vc4c/internal/optimize"
	"vc4c/internal/trace"
)

const defaultMaxDiagnostics = 100

// Options configures a compilation. The zero value compiles with the
// default configuration, no cache and no tracing.
type Options struct {
	Config *config.Config
	Tracer trace.Tracer
	Timer  *observ.Timer
	Cache  *kcache.Cache
	Sink   ProgressSink
	// StopAfter ends the pipeline after the given stage. Empty runs it to
	// the end.
	StopAfter Stage
}

// MethodResult is the outcome for one method. IR is the method as left by
// the last stage run; it is nil for programs read from the cache.
type MethodResult struct {
	Name    string
	IR      *ir.Method
	Program *codegen.Program
	Cached  bool
	Err     error
}

// ModuleResult collects the methods of a module in declaration order.
type ModuleResult struct {
	Session string
	Methods []MethodResult
	Bag     *diag.Bag
}

// Programs returns the programs of the methods that compiled.
func (r *ModuleResult) Programs() []*codegen.Program {
	var out []*codegen.Program
	for _, mr := range r.Methods {
		if mr.Program != nil {
			out = append(out, mr.Program)
		}
	}
	return out
}

// Failed reports whether any method failed.
func (r *ModuleResult) Failed() bool {
	for _, mr := range r.Methods {
		if mr.Err != nil {
			return true
		}
	}
	return false
}

type compilation struct {
	cfg      config.Config
	opts     Options
	tracer   trace.Tracer
	reporter *diag.BagReporter
	// module is a snapshot of the mapped module. Inlining reads callees
	// from it while the methods themselves are rewritten in parallel.
	module     *ir.Module
	globalData []byte
	// keyBase is the part of the cache key shared by all methods.
	keyBase []byte
}

func newCompilation(opts Options, session string) *compilation {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	limit := cfg.Compile.MaxDiagnostics
	if limit <= 0 {
		limit = defaultMaxDiagnostics
	}
	t := opts.Tracer
	if t == nil {
		t = trace.Nop
	}
	if session != "" {
		t = trace.WithSession(t, session)
	}
	if opts.StopAfter == "" {
		opts.StopAfter = StageCodegen
	}
	return &compilation{
		cfg:      cfg,
		opts:     opts,
		tracer:   t,
		reporter: &diag.BagReporter{Bag: diag.NewBag(limit)},
	}
}

func (c *compilation) event(method string, stage Stage, status Status, err error, elapsed time.Duration) {
	if c.opts.Sink == nil {
		return
	}
	c.opts.Sink.OnEvent(Event{Method: method, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

// phase runs fn as a timed and traced stage of method. The span is a child
// of the span carried by ctx.
func (c *compilation) phase(ctx context.Context, method string, stage Stage, fn func() error) error {
	c.event(method, stage, StatusWorking, nil, 0)
	idx := c.opts.Timer.Begin(string(stage))
	span := trace.BeginFrom(ctx, c.tracer, trace.ScopePass, string(stage)).WithExtra("method", method)
	err := fn()
	span.End(errDetail(err))
	c.opts.Timer.End(idx, method)
	return err
}

func (c *compilation) mapContext() *frontend.MapContext {
	return &frontend.MapContext{Tracer: c.tracer, Reporter: c.reporter, Lifetime: c.cfg.Lifetime()}
}

func (c *compilation) mapMethod(ctx context.Context, fm *frontend.Method) error {
	return c.phase(ctx, fm.IR.Name, StageMap, func() error {
		if err := fm.Check(); err != nil {
			return diag.Errorf(diag.StageParser, fm.IR.Name, "%v", err)
		}
		return fm.Map(c.mapContext())
	})
}

func (c *compilation) fingerprint() string {
	cc := c.cfg.Compile
	return fmt.Sprintf("optimize=%t passes=%s rounds=%d lifetime=%s pairing=%t",
		cc.Optimize, strings.Join(cc.Passes, ","), cc.MaxRounds, cc.LifetimeRes, cc.PairInstructions)
}

// prepareModule snapshots the mapped module and everything derived from it
// that the methods share.
func (c *compilation) prepareModule(mod *ir.Module) error {
	c.module = mod.Clone()
	data, err := normalize.GlobalData(c.module)
	if err != nil {
		return err
	}
	c.globalData = data
	if c.opts.Cache != nil && c.opts.StopAfter == StageCodegen {
		var buf bytes.Buffer
		if err := ir.DumpModule(&buf, c.module); err != nil {
			return err
		}
		buf.WriteString(c.fingerprint())
		c.keyBase = buf.Bytes()
	}
	return nil
}

// compile runs the stages after mapping on m.
func (c *compilation) compile(ctx context.Context, m *ir.Method) MethodResult {
	res := MethodResult{Name: m.Name, IR: m}
	start := time.Now()
	span := trace.BeginFrom(ctx, c.tracer, trace.ScopeModule, m.Name)
	defer func() {
		span.WithExtra("cached", fmt.Sprint(res.Cached)).End(errDetail(res.Err))
	}()
	ctx = trace.WithSpan(ctx, span)
	fail := func(stage Stage, err error) MethodResult {
		res.Err = err
		c.reporter.Report(diag.FromError(m.Name, err))
		c.event(m.Name, stage, StatusError, err, time.Since(start))
		trace.Point(c.tracer, trace.ScopeDriver, "failed", m.Name+": "+err.Error())
		return res
	}
	if err := ctx.Err(); err != nil {
		return fail(StageNormalize, err)
	}

	var key kcache.Key
	if c.keyBase != nil {
		key = kcache.KeyOf(c.keyBase, []byte(m.Name))
		prog, ok, err := c.opts.Cache.Get(key)
		if err != nil {
			c.reporter.Report(diag.NewWarning(diag.CacheError, m.Name, err.Error()))
		}
		if ok {
			res.IR, res.Program, res.Cached = nil, prog, true
			c.event(m.Name, StageCodegen, StatusCached, nil, time.Since(start))
			return res
		}
	}

	err := c.phase(ctx, m.Name, StageNormalize, func() error {
		return normalize.Method(m, &normalize.Context{Module: c.module, Tracer: c.tracer, Reporter: c.reporter})
	})
	if err != nil {
		return fail(StageNormalize, err)
	}
	if c.opts.StopAfter == StageNormalize {
		c.event(m.Name, StageNormalize, StatusDone, nil, time.Since(start))
		return res
	}

	if c.cfg.Compile.Optimize {
		err = c.phase(ctx, m.Name, StageOptimize, func() error {
			_, err := optimize.Method(m, optimize.Options{
				Passes:    c.cfg.Compile.Passes,
				MaxRounds: c.cfg.Compile.MaxRounds,
				Tracer:    c.tracer,
				Reporter:  c.reporter,
			})
			return err
		})
		if err != nil {
			return fail(StageOptimize, err)
		}
	}
	if c.opts.StopAfter == StageOptimize {
		c.event(m.Name, StageOptimize, StatusDone, nil, time.Since(start))
		return res
	}

	err = c.phase(ctx, m.Name, StageCodegen, func() error {
		prog, err := codegen.Generate(m, codegen.Options{Pairing: c.cfg.Compile.PairInstructions, Tracer: c.tracer})
		if err != nil {
			return err
		}
		prog.GlobalData = c.globalData
		res.Program = prog
		return nil
	})
	if err != nil {
		return fail(StageCodegen, err)
	}
	if c.keyBase != nil {
		if err := c.opts.Cache.Put(key, res.Program); err != nil {
			c.reporter.Report(diag.NewWarning(diag.CacheError, m.Name, err.Error()))
		}
	}
	c.event(m.Name, StageCodegen, StatusDone, nil, time.Since(start))
	return res
}

// CompileMethod compiles a method that neither calls other methods nor
// uses globals. The nodes are mapped into fm.IR, so a method can be
// compiled once.
func CompileMethod(ctx context.Context, fm *frontend.Method, opts Options) (*codegen.Program, error) {
	res, err := CompileModule(ctx, &frontend.Module{Name: fm.IR.Name, Methods: []*frontend.Method{fm}}, opts)
	if err != nil {
		return nil, err
	}
	mr := res.Methods[0]
	return mr.Program, mr.Err
}

// CompileModule compiles the kernels of mod, or every method if none is
// marked as kernel. Calls to other methods are inlined, so those need no
// program of their own.
//
//  1. Map every method, in order
//  2. Snapshot the mapped module for inlining and lay out the globals
//  3. Compile the selected methods in parallel, at most Jobs at a time
//
// A method that fails is reported in the bag and does not stop the others.
// The returned error is reserved for failures of the module as a whole.
func CompileModule(ctx context.Context, mod *frontend.Module, opts Options) (*ModuleResult, error) {
	session := uuid.NewString()
	c := newCompilation(opts, session)
	span := trace.Begin(c.tracer, trace.ScopeDriver, "compile-module", 0).WithExtra("module", mod.Name)
	result := &ModuleResult{Session: session, Bag: c.reporter.Bag}
	ctx = trace.WithSpan(ctx, span)

	targets := mod.Kernels()
	if len(targets) == 0 {
		targets = mod.Methods
	}
	for _, fm := range targets {
		c.event(fm.IR.Name, StageMap, StatusQueued, nil, 0)
	}

	// methods that fail to map are left out of the snapshot, so calling
	// them fails too
	mapped := make(map[*frontend.Method]error, len(mod.Methods))
	irMod := &ir.Module{Name: mod.Name, Globals: mod.Globals}
	for _, fm := range mod.Methods {
		err := c.mapMethod(ctx, fm)
		if err != nil {
			c.reporter.Report(diag.FromError(fm.IR.Name, err))
		} else {
			irMod.Methods = append(irMod.Methods, fm.IR)
		}
		mapped[fm] = err
	}
	if err := c.prepareModule(irMod); err != nil {
		span.End(err.Error())
		return nil, err
	}

	result.Methods = make([]MethodResult, len(targets))
	jobs := c.cfg.Compile.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(targets))))
	for i, fm := range targets {
		if err := mapped[fm]; err != nil {
			result.Methods[i] = MethodResult{Name: fm.IR.Name, IR: fm.IR, Err: err}
			c.event(fm.IR.Name, StageMap, StatusError, err, 0)
			continue
		}
		if c.opts.StopAfter == StageMap {
			result.Methods[i] = MethodResult{Name: fm.IR.Name, IR: fm.IR}
			c.event(fm.IR.Name, StageMap, StatusDone, nil, 0)
			continue
		}
		g.Go(func() error {
			// indices are unique per goroutine
			result.Methods[i] = c.compile(gctx, fm.IR)
			return nil
		})
	}
	_ = g.Wait()

	result.Bag.Sort()
	failed := 0
	for _, mr := range result.Methods {
		if mr.Err != nil {
			failed++
		}
	}
	span.WithExtra("methods", fmt.Sprint(len(targets))).WithExtra("failed", fmt.Sprint(failed)).End("")
	c.event("", c.opts.StopAfter, StatusDone, nil, 0)
	return result, nil
}

func errDetail(err error) string {
	if err != nil {
		return err.Error()
	}
	return ""
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vc4c/internal/codegen"
	"vc4c/internal/config"
	"vc4c/internal/diag"
	"vc4c/internal/driver"
	"vc4c/internal/frontend"
	"vc4c/internal/kcache"
	"vc4c/internal/observ"
	"vc4c/internal/trace"
)

// errReported ends a command whose diagnostics were already printed.
var errReported = errors.New("compilation failed")

func isExitError(err error) bool {
	return errors.Is(err, errReported)
}

var compileCmd = &cobra.Command{
	Use:   "compile [flags] <module.yaml>",
	Short: "Compile the kernels of a module",
	Long: `Compile maps, normalizes, optimizes and assembles every kernel of a module.
The output format follows the extension of -o: .bin holds the instruction
words, .s or .asm the assembly listing, anything else the msgpack encoded
programs. Without -o the listing goes to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: compileExecution,
}

func init() {
	compileCmd.Flags().StringP("output", "o", "", "output file")
	compileCmd.Flags().String("progress", "auto", "show per-kernel progress (auto|on|off)")
	compileCmd.Flags().Bool("no-cache", false, "bypass the kernel cache")
}

func compileExecution(cmd *cobra.Command, args []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	progressValue, err := cmd.Flags().GetString("progress")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}
	mode, err := readUIMode(progressValue)
	if err != nil {
		return err
	}

	mod, err := frontend.LoadYAML(args[0])
	if err != nil {
		return err
	}
	cfg := settingsFrom(cmd)
	opts, err := compileOptions(cmd, &cfg, !noCache)
	if err != nil {
		return err
	}

	var res *driver.ModuleResult
	if shouldUseTUI(mode) {
		res, err = runCompileWithUI(cmd.Context(), filepath.Base(args[0]), targetNames(mod), mod, opts)
	} else {
		res, err = driver.CompileModule(cmd.Context(), mod, opts)
	}
	if err != nil {
		return err
	}
	if err := finish(cmd, res, opts.Timer); err != nil {
		return err
	}
	return writePrograms(cmd, output, res.Programs())
}

// compileOptions assembles the driver options shared by compile and dump.
func compileOptions(cmd *cobra.Command, cfg *config.Config, useCache bool) (driver.Options, error) {
	opts := driver.Options{Config: cfg, Tracer: tracerFrom(cmd)}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return opts, err
	}
	if timings {
		opts.Timer = observ.NewTimer()
	}
	if useCache && cfg.Cache.Enabled {
		cache, err := kcache.Open(cfg.Cache.Dir)
		if err != nil {
			return opts, fmt.Errorf("kernel cache: %w", err)
		}
		opts.Cache = cache
	}
	return opts, nil
}

// finish prints diagnostics and timings and turns errors into errReported.
func finish(cmd *cobra.Command, res *driver.ModuleResult, timer *observ.Timer) error {
	stderr := cmd.ErrOrStderr()
	res.Bag.Dedup()
	if err := diag.Report(stderr, res.Bag, diag.ReportOpts{Color: !colorDisabled(), Construct: true}); err != nil {
		return err
	}
	printTimings(stderr, timer)
	if !res.Bag.HasErrors() {
		return nil
	}
	// a ring-only tracer has printed nothing so far
	if ring, ok := tracerFrom(cmd).(*trace.RingTracer); ok {
		fmt.Fprintf(stderr, "trace: last events of session %s\n", res.Session)
		if err := ring.Dump(stderr, trace.FormatText); err != nil {
			return err
		}
	}
	return errReported
}

func targetNames(mod *frontend.Module) []string {
	targets := mod.Kernels()
	if len(targets) == 0 {
		targets = mod.Methods
	}
	names := make([]string, len(targets))
	for i, fm := range targets {
		names[i] = fm.IR.Name
	}
	return names
}

func writePrograms(cmd *cobra.Command, output string, progs []*codegen.Program) error {
	if output == "" {
		out, err := codegen.Assemble(codegen.TextEncoder{}, progs...)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	data, err := encodePrograms(strings.ToLower(filepath.Ext(output)), progs)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

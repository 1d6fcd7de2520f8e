// Command vc4c compiles frontend modules into VideoCore IV QPU programs.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vc4c/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "vc4c",
	Short:         "OpenCL C compiler back end for the VideoCore IV GPU",
	Long:          `vc4c lowers frontend modules of OpenCL kernels into QPU machine code`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyColorMode(cmd); err != nil {
			return err
		}
		if cmd == versionCmd {
			return nil
		}
		if err := setupProfiling(cmd); err != nil {
			return err
		}
		return setupTracing(cmd, args)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown(cmd)
	},
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to vc4c.toml (default: searched upwards from the module)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("timings", false, "print phase timings to stderr")
	flags.Int("jobs", 0, "methods compiled in parallel (0 uses the configuration)")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "", "trace storage (stream|ring|both)")
	flags.String("trace-format", "", "trace format (auto|text|ndjson)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval")
	flags.String("cpu-profile", "", "write a CPU profile of the compiler")
	flags.String("mem-profile", "", "write a heap profile on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace")
}

// main runs the root command. Any error exits with status 1.
func main() {
	if err := rootCmd.Execute(); err != nil {
		if !isExitError(err) {
			color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "error: ")
			os.Stderr.WriteString(err.Error() + "\n")
		}
		shutdown(rootCmd)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func applyColorMode(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stderr)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

func colorDisabled() bool {
	return color.NoColor
}

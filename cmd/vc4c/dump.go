package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vc4c/internal/codegen"
	"vc4c/internal/driver"
	"vc4c/internal/frontend"
	"vc4c/internal/ir"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] <module.yaml>",
	Short: "Print the kernels of a module after a compilation stage",
	Args:  cobra.ExactArgs(1),
	RunE:  dumpExecution,
}

func init() {
	dumpCmd.Flags().String("stage", "asm", "stage to stop after (ir|normalized|optimized|asm)")
}

func dumpExecution(cmd *cobra.Command, args []string) error {
	stageValue, err := cmd.Flags().GetString("stage")
	if err != nil {
		return err
	}
	stage, ok := driver.ParseStage(stageValue)
	if !ok {
		return fmt.Errorf("invalid --stage value %q (expected ir|normalized|optimized|asm)", stageValue)
	}

	mod, err := frontend.LoadYAML(args[0])
	if err != nil {
		return err
	}
	cfg := settingsFrom(cmd)
	opts, err := compileOptions(cmd, &cfg, false)
	if err != nil {
		return err
	}
	opts.StopAfter = stage
	res, err := driver.CompileModule(cmd.Context(), mod, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, mr := range res.Methods {
		if mr.Err != nil {
			continue
		}
		if mr.Program != nil {
			text, err := codegen.TextEncoder{}.Encode(mr.Program)
			if err != nil {
				return err
			}
			if _, err := out.Write(text); err != nil {
				return err
			}
			continue
		}
		if err := ir.DumpMethod(out, mr.IR); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return finish(cmd, res, opts.Timer)
}

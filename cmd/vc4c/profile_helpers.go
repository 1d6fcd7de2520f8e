package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vc4c/internal/prof"
)

var activeProfile *prof.Session

// setupProfiling starts the profiles requested by the persistent flags.
func setupProfiling(cmd *cobra.Command) error {
	root := cmd.Root().PersistentFlags()
	var opts prof.Options
	for flag, target := range map[string]*string{
		"cpu-profile":   &opts.CPU,
		"mem-profile":   &opts.Heap,
		"runtime-trace": &opts.Trace,
	} {
		v, err := root.GetString(flag)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*target = v
	}
	if opts == (prof.Options{}) {
		return nil
	}
	s, err := prof.Start(opts)
	if err != nil {
		return err
	}
	activeProfile = s
	return nil
}

func stopProfiling(cmd *cobra.Command) {
	if err := activeProfile.Stop(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
	}
	activeProfile = nil
}

// shutdown releases what the pre-run hook set up. It runs after successful
// commands and on the error path, which skips PersistentPostRun.
func shutdown(cmd *cobra.Command) {
	stopProfiling(cmd)
	closeTracing(cmd)
}

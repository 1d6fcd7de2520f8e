package main

import (
	"fmt"
	"io"

	"vc4c/internal/observ"
)

// printTimings writes the phase table of timer, if timings were requested.
func printTimings(out io.Writer, timer *observ.Timer) {
	if out == nil || timer == nil {
		return
	}
	if len(timer.Report().Phases) == 0 {
		return
	}
	fmt.Fprint(out, timer.Summary())
}

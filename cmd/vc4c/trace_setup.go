package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vc4c/internal/trace"
)

var (
	activeTracer    trace.Tracer
	activeHeartbeat *trace.Heartbeat
)

// setupTracing loads the configuration, overrides its [trace] section with
// the trace flags that were set and attaches the resulting tracer to the
// command context.
func setupTracing(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd, args)
	if err != nil {
		return err
	}
	root := cmd.Root().PersistentFlags()
	overrides := []struct {
		flag   string
		target *string
	}{
		{"trace", &cfg.Trace.Output},
		{"trace-level", &cfg.Trace.Level},
		{"trace-mode", &cfg.Trace.Mode},
		{"trace-format", &cfg.Trace.Format},
	}
	for _, o := range overrides {
		if !root.Changed(o.flag) {
			continue
		}
		v, err := root.GetString(o.flag)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", o.flag, err)
		}
		*o.target = v
	}
	// an explicit output without a level traces phases
	if root.Changed("trace") && !root.Changed("trace-level") && cfg.Trace.Level == "off" {
		cfg.Trace.Level = "phase"
	}

	tc, err := cfg.Tracer()
	if err != nil {
		return fmt.Errorf("invalid trace configuration: %w", err)
	}
	if tc.RingSize, err = root.GetInt("trace-ring-size"); err != nil {
		return fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	if tc.Heartbeat, err = root.GetDuration("trace-heartbeat"); err != nil {
		return fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	tracer, err := trace.New(tc)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	activeTracer = tracer
	if tc.Heartbeat > 0 && tracer.Enabled() {
		activeHeartbeat = trace.StartHeartbeat(tracer, tc.Heartbeat)
	}
	storeSettings(cmd, cfg, tracer)
	return nil
}

// closeTracing stops the heartbeat and flushes the tracer.
func closeTracing(cmd *cobra.Command) {
	if activeHeartbeat != nil {
		activeHeartbeat.Stop()
		activeHeartbeat = nil
	}
	if activeTracer == nil {
		return
	}
	if err := activeTracer.Flush(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
	}
	if err := activeTracer.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
	}
	activeTracer = nil
}

// tracerFrom returns the tracer set up for cmd.
func tracerFrom(cmd *cobra.Command) trace.Tracer {
	return trace.FromContext(cmd.Context())
}

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"vc4c/internal/config"
	"vc4c/internal/trace"
)

type settingsKey struct{}

// loadSettings reads --config, or the vc4c.toml found upwards from the
// directory of the module argument, and applies the flag overrides.
func loadSettings(cmd *cobra.Command, args []string) (config.Config, error) {
	root := cmd.Root().PersistentFlags()
	path, err := root.GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	var cfg config.Config
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		start := "."
		if len(args) > 0 {
			start = filepath.Dir(args[0])
		}
		cfg, _, err = config.LoadFrom(start)
	}
	if err != nil {
		return config.Config{}, err
	}
	if root.Changed("jobs") {
		if cfg.Compile.Jobs, err = root.GetInt("jobs"); err != nil {
			return config.Config{}, fmt.Errorf("failed to get jobs flag: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func storeSettings(cmd *cobra.Command, cfg config.Config, tracer trace.Tracer) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = trace.WithTracer(context.WithValue(ctx, settingsKey{}, cfg), tracer)
	cmd.SetContext(ctx)
}

// settingsFrom returns the configuration stored by the pre-run hook.
func settingsFrom(cmd *cobra.Command) config.Config {
	if cfg, ok := cmd.Context().Value(settingsKey{}).(config.Config); ok {
		return cfg
	}
	return config.Default()
}

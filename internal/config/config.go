// Package config loads vc4c.toml. Keys missing from the file keep their
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"vc4c/internal/frontend"
	"vc4c/internal/optimize"
	"vc4c/internal/trace"
)

// FileName is the name Find looks for.
const FileName = "vc4c.toml"

type Config struct {
	Compile CompileConfig `toml:"compile"`
	Trace   TraceConfig   `toml:"trace"`
	Cache   CacheConfig   `toml:"cache"`
}

type CompileConfig struct {
	// Jobs limits the methods compiled in parallel; 0 uses GOMAXPROCS.
	Jobs int `toml:"jobs"`
	// Optimize disables the optimization pipeline when false.
	Optimize bool `toml:"optimize"`
	// Passes names the optimization passes to run; unset runs all.
	Passes           []string `toml:"passes"`
	MaxRounds        int      `toml:"max-optimization-rounds"`
	LifetimeRes      string   `toml:"lifetime-resolution"`
	PairInstructions bool     `toml:"pair-instructions"`
	MaxDiagnostics   int      `toml:"max-diagnostics"`
}

type TraceConfig struct {
	Level  string `toml:"level"`
	Mode   string `toml:"mode"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

type CacheConfig struct {
	Enabled bool `toml:"enabled"`
	// Dir defaults to $XDG_CACHE_HOME/vc4c.
	Dir string `toml:"dir"`
}

// Default returns the configuration used without a vc4c.toml.
func Default() Config {
	return Config{
		Compile: CompileConfig{
			Optimize:         true,
			MaxRounds:        optimize.DefaultMaxRounds,
			LifetimeRes:      frontend.LifetimeWarn.String(),
			PairInstructions: true,
			MaxDiagnostics:   100,
		},
		Trace: TraceConfig{
			Level:  "off",
			Mode:   "stream",
			Format: "auto",
		},
	}
}

// Find walks up from startDir and returns the first vc4c.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFrom loads the vc4c.toml found from startDir, or the defaults when
// there is none. The returned path is empty in the latter case.
func LoadFrom(startDir string) (Config, string, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return Default(), "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate names the first invalid key.
func (c *Config) Validate() error {
	if c.Compile.Jobs < 0 {
		return fmt.Errorf("[compile].jobs must not be negative, got %d", c.Compile.Jobs)
	}
	if c.Compile.MaxRounds < 0 {
		return fmt.Errorf("[compile].max-optimization-rounds must not be negative, got %d", c.Compile.MaxRounds)
	}
	if c.Compile.MaxDiagnostics < 0 {
		return fmt.Errorf("[compile].max-diagnostics must not be negative, got %d", c.Compile.MaxDiagnostics)
	}
	if _, err := frontend.ParseLifetimePolicy(c.Compile.LifetimeRes); err != nil {
		return fmt.Errorf("[compile].lifetime-resolution: %w", err)
	}
	if _, err := optimize.Select(c.Compile.Passes); c.Compile.Passes != nil && err != nil {
		return fmt.Errorf("[compile].passes: %w", err)
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		return fmt.Errorf("[trace].level: %w", err)
	}
	if _, err := trace.ParseMode(c.Trace.Mode); err != nil {
		return fmt.Errorf("[trace].mode: %w", err)
	}
	if _, err := trace.ParseFormat(c.Trace.Format); err != nil {
		return fmt.Errorf("[trace].format: %w", err)
	}
	return nil
}

// Lifetime returns the parsed lifetime resolution policy.
func (c *Config) Lifetime() frontend.LifetimePolicy {
	p, _ := frontend.ParseLifetimePolicy(c.Compile.LifetimeRes)
	return p
}

// Tracer converts the [trace] section. Output "-" writes to stderr.
func (c *Config) Tracer() (trace.Config, error) {
	level, err := trace.ParseLevel(c.Trace.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(c.Trace.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	format, err := trace.ParseFormat(c.Trace.Format)
	if err != nil {
		return trace.Config{}, err
	}
	out := c.Trace.Output
	if out == "" {
		out = "-"
	}
	return trace.Config{Level: level, Mode: mode, Format: format, OutputPath: out}, nil
}

package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultRingSize = 4096

// Tracer receives trace events. Kernels are compiled in parallel, so every
// implementation must be goroutine-safe.
type Tracer interface {
	Emit(ev *Event)
	// Flush writes buffered events.
	Flush() error
	// Close flushes and releases the output.
	Close() error
	Level() Level
	// Enabled reports Level() > LevelOff.
	Enabled() bool
}

// StorageMode selects where events go.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1 // written as they happen
	ModeRing                          // last events kept in memory
	ModeBoth
)

var modeNames = map[StorageMode]string{ModeStream: "stream", ModeRing: "ring", ModeBoth: "both"}

func (m StorageMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode accepts stream, ring and both in any case.
func ParseMode(s string) (StorageMode, error) {
	for mode, name := range modeNames {
		if strings.EqualFold(s, name) {
			return mode, nil
		}
	}
	return ModeRing, fmt.Errorf("invalid storage mode: %q (expected: stream|ring|both)", s)
}

// Config describes the tracer built by New.
type Config struct {
	Level      Level
	Mode       StorageMode
	Format     Format        // FormatAuto picks by the extension of OutputPath
	Output     io.Writer     // takes precedence over OutputPath
	OutputPath string        // "-" or empty writes to stderr
	RingSize   int           // default 4096
	Heartbeat  time.Duration // 0 disables the heartbeat
}

func (cfg Config) format() Format {
	if cfg.Format != FormatAuto {
		return cfg.Format
	}
	switch filepath.Ext(cfg.OutputPath) {
	case ".ndjson", ".jsonl":
		return FormatNDJSON
	}
	return FormatText
}

// New builds the tracer described by cfg. LevelOff yields Nop.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = defaultRingSize
	}
	if cfg.Mode == ModeRing {
		return NewRingTracer(cfg.RingSize, cfg.Level), nil
	}
	if cfg.Mode != ModeStream && cfg.Mode != ModeBoth {
		return nil, fmt.Errorf("unknown storage mode: %v", cfg.Mode)
	}
	w, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	stream := NewStreamTracer(w, cfg.Level, cfg.format())
	if cfg.Mode == ModeStream {
		return stream, nil
	}
	return NewMultiTracer(cfg.Level, stream, NewRingTracer(cfg.RingSize, cfg.Level)), nil
}

func openOutput(cfg Config) (io.Writer, error) {
	switch {
	case cfg.Output != nil:
		return cfg.Output, nil
	case cfg.OutputPath == "" || cfg.OutputPath == "-":
		return os.Stderr, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace output: %w", err)
	}
	return f, nil
}

func isStdStream(w io.Writer) bool {
	return w == os.Stderr || w == os.Stdout
}

// sessionTracer stamps events with the ID of one compilation run.
type sessionTracer struct {
	Tracer
	session string
}

// WithSession wraps t so that events without a session carry the given
// one. A disabled t yields Nop.
func WithSession(t Tracer, session string) Tracer {
	if t == nil || !t.Enabled() {
		return Nop
	}
	return sessionTracer{Tracer: t, session: session}
}

func (t sessionTracer) Emit(ev *Event) {
	if ev.Session == "" {
		ev.Session = t.session
	}
	t.Tracer.Emit(ev)
}

// Ring finds the ring buffer behind t, looking through session and multi
// tracers.
func Ring(t Tracer) *RingTracer {
	switch tr := t.(type) {
	case *RingTracer:
		return tr
	case sessionTracer:
		return Ring(tr.Tracer)
	case *MultiTracer:
		for _, inner := range tr.tracers {
			if r := Ring(inner); r != nil {
				return r
			}
		}
	}
	return nil
}

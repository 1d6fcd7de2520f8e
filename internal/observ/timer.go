// Package observ measures where compilation time goes.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type run struct {
	stage string
	owner string
	start time.Time
	dur   time.Duration
	done  bool
}

// Timer records stage runs. Kernels compiled in parallel share one timer;
// a nil *Timer ignores every call.
type Timer struct {
	mu   sync.Mutex
	runs []run
}

func NewTimer() *Timer { return &Timer{} }

// Begin opens a run of stage and returns the handle for End.
func (t *Timer) Begin(stage string) int {
	if t == nil {
		return -1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs = append(t.runs, run{stage: stage, start: time.Now()})
	return len(t.runs) - 1
}

// End closes the run, attributing it to owner (usually a method name).
func (t *Timer) End(handle int, owner string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if handle < 0 || handle >= len(t.runs) || t.runs[handle].done {
		return
	}
	r := &t.runs[handle]
	r.dur, r.owner, r.done = time.Since(r.start), owner, true
}

// StageReport sums the runs of one stage.
type StageReport struct {
	Name    string  `json:"name" msgpack:"name"`
	TotalMS float64 `json:"total_ms" msgpack:"total_ms"`
	MaxMS   float64 `json:"max_ms" msgpack:"max_ms"`
	Count   int     `json:"count" msgpack:"count"`
	// Slowest owns the longest run.
	Slowest string `json:"slowest,omitempty" msgpack:"slowest,omitempty"`
}

// Report lists stages in the order they first ran. TotalMS adds up the
// runs, so it exceeds wall time when kernels compile in parallel.
type Report struct {
	TotalMS float64       `json:"total_ms" msgpack:"total_ms"`
	Phases  []StageReport `json:"phases" msgpack:"phases"`
}

func (t *Timer) Report() Report {
	var rep Report
	if t == nil {
		return rep
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := map[string]int{}
	for _, r := range t.runs {
		if !r.done {
			continue
		}
		i, ok := pos[r.stage]
		if !ok {
			i = len(rep.Phases)
			pos[r.stage] = i
			rep.Phases = append(rep.Phases, StageReport{Name: r.stage})
		}
		ms := millis(r.dur)
		s := &rep.Phases[i]
		s.Count++
		s.TotalMS += ms
		if s.Count == 1 || ms > s.MaxMS {
			s.MaxMS, s.Slowest = ms, r.owner
		}
		rep.TotalMS += ms
	}
	return rep
}

// Summary renders Report as a table.
func (t *Timer) Summary() string {
	rep := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, s := range rep.Phases {
		fmt.Fprintf(&sb, "  %-12s %9.3f ms", s.Name, s.TotalMS)
		if s.Count > 1 {
			fmt.Fprintf(&sb, "  x%-3d max %.3f ms", s.Count, s.MaxMS)
		}
		if s.Slowest != "" {
			fmt.Fprintf(&sb, "  (%s)", s.Slowest)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-12s %9.3f ms\n", "total", rep.TotalMS)
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

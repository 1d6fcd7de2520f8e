package trace_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"vc4c/internal/trace"
)

func TestLevelGatesScopes(t *testing.T) {
	tests := []struct {
		level trace.Level
		scope trace.Scope
		want  bool
	}{
		{trace.LevelOff, trace.ScopeDriver, false},
		{trace.LevelError, trace.ScopeDriver, false},
		{trace.LevelPhase, trace.ScopePass, true},
		{trace.LevelPhase, trace.ScopeModule, false},
		{trace.LevelDetail, trace.ScopeModule, true},
		{trace.LevelDetail, trace.ScopeNode, false},
		{trace.LevelDebug, trace.ScopeNode, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tt.level, tt.scope, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := trace.ParseLevel("DEBUG"); err != nil || l != trace.LevelDebug {
		t.Fatalf("ParseLevel(DEBUG) = %v, %v", l, err)
	}
	if _, err := trace.ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestStreamTextSpansAndPoints(t *testing.T) {
	var buf bytes.Buffer
	tr := trace.WithSession(trace.NewStreamTracer(&buf, trace.LevelDebug, trace.FormatText), "run-1")

	span := trace.Begin(tr, trace.ScopePass, "normalize", 0)
	trace.Point(tr, trace.ScopeNode, "map", "Generating label %start")
	span.WithExtra("steps", "8").WithExtra("kernel", "k").End("ok")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "→ normalize") {
		t.Errorf("begin line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "• map (Generating label %start)") {
		t.Errorf("point line: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "← normalize (ok) {kernel=k, steps=8}") {
		t.Errorf("end line: %q", lines[2])
	}
}

func TestNDJSONCarriesSession(t *testing.T) {
	var buf bytes.Buffer
	tr := trace.WithSession(trace.NewStreamTracer(&buf, trace.LevelPhase, trace.FormatNDJSON), "abc")
	trace.Point(tr, trace.ScopeDriver, "compile", "")
	trace.Point(tr, trace.ScopeNode, "dropped", "")

	var ev map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("expected exactly one JSON event: %v (%q)", err, buf.String())
	}
	if ev["session"] != "abc" || ev["kind"] != "point" || ev["scope"] != "driver" {
		t.Fatalf("unexpected event %v", ev)
	}
}

func TestRingKeepsLastEvents(t *testing.T) {
	ring := trace.NewRingTracer(2, trace.LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		trace.Point(ring, trace.ScopeNode, name, "")
	}
	snap := ring.Snapshot()
	if len(snap) != 2 || snap[0].Name != "b" || snap[1].Name != "c" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestNewPicksTracer(t *testing.T) {
	tr, err := trace.New(trace.Config{Level: trace.LevelOff})
	if err != nil || tr.Enabled() {
		t.Fatal("LevelOff must give a disabled tracer")
	}
	var buf bytes.Buffer
	tr, err = trace.New(trace.Config{Level: trace.LevelPhase, Mode: trace.ModeBoth, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	if trace.Ring(trace.WithSession(tr, "s")) == nil {
		t.Fatal("ModeBoth must include a ring buffer")
	}
	trace.Point(tr, trace.ScopeDriver, "x", "")
	if buf.Len() == 0 {
		t.Fatal("stream half received nothing")
	}
}

func TestSpanParentsThroughContext(t *testing.T) {
	ring := trace.NewRingTracer(16, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)
	if trace.FromContext(ctx) != ring || trace.FromContext(context.Background()) != trace.Nop {
		t.Fatal("tracer not carried by the context")
	}

	module := trace.Begin(ring, trace.ScopeDriver, "compile-module", 0)
	ctx = trace.WithSpan(ctx, module)
	kernel := trace.BeginFrom(ctx, ring, trace.ScopeModule, "sum")
	// node spans are gated at this level and must not become parents
	node := trace.BeginFrom(trace.WithSpan(ctx, kernel), ring, trace.ScopeNode, "ignored")
	if node.ID() != 0 || trace.ParentID(trace.WithSpan(ctx, node)) != module.ID() {
		t.Fatal("disabled span replaced the parent")
	}
	kernel.End("")
	module.End("")

	events := ring.Snapshot()
	if len(events) != 4 {
		t.Fatalf("got %d events", len(events))
	}
	if events[1].Name != "sum" || events[1].ParentID != module.ID() {
		t.Fatalf("kernel span = %+v", events[1])
	}
}

func TestHeartbeat(t *testing.T) {
	if trace.StartHeartbeat(trace.Nop, time.Millisecond) != nil {
		t.Fatal("heartbeat on a disabled tracer")
	}
	ring := trace.NewRingTracer(64, trace.LevelPhase)
	h := trace.StartHeartbeat(ring, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	h.Stop()
	h.Stop()
	beats := ring.Snapshot()
	if len(beats) == 0 || beats[0].Kind != trace.KindHeartbeat || !strings.HasPrefix(beats[0].Detail, "#1 after") {
		t.Fatalf("beats = %+v", beats)
	}
}

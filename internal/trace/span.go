package trace

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

// goroutineID parses the ID from the "goroutine N [...]" header of the
// current stack. Kernels compiled in parallel are told apart by it.
func goroutineID() uint64 {
	var buf [64]byte
	line := buf[:runtime.Stack(buf[:], false)]
	line = bytes.TrimPrefix(line, []byte("goroutine "))
	if i := bytes.IndexByte(line, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(line[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}

// Span is one begin/end pair. Spans of disabled scopes have ID 0 and emit
// nothing.
type Span struct {
	tracer  Tracer
	begin   Event
	started time.Time
	extra   map[string]string
}

// Begin emits the start of a span. parent is the ID of the enclosing span,
// or 0.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if !Enabled(t, scope) {
		return &Span{tracer: Nop}
	}
	now := time.Now()
	s := &Span{
		tracer:  t,
		started: now,
		begin: Event{
			Time:     now,
			Kind:     KindSpanBegin,
			Scope:    scope,
			SpanID:   spanCounter.Add(1),
			ParentID: parent,
			GID:      goroutineID(),
			Name:     name,
		},
	}
	ev := s.begin
	ev.Seq = NextSeq()
	t.Emit(&ev)
	return s
}

func (s *Span) live() bool {
	return s != nil && s.tracer != nil && s.tracer.Enabled()
}

// End emits the end of the span with detail and the collected extras, and
// returns its duration.
func (s *Span) End(detail string) time.Duration {
	if !s.live() {
		return 0
	}
	now := time.Now()
	ev := s.begin
	ev.Time, ev.Seq, ev.Kind = now, NextSeq(), KindSpanEnd
	ev.Detail, ev.Extra = detail, s.extra
	s.tracer.Emit(&ev)
	return now.Sub(s.started)
}

// WithExtra records a key-value pair for the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if !s.live() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// ID returns the span ID, 0 for disabled spans.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.begin.SpanID
}

// Point emits an instant event. Callers building expensive detail strings
// should check Enabled first.
func Point(t Tracer, scope Scope, name, detail string) {
	if !Enabled(t, scope) {
		return
	}
	t.Emit(&Event{
		Time:   time.Now(),
		Kind:   KindPoint,
		Scope:  scope,
		GID:    goroutineID(),
		Name:   name,
		Detail: detail,
	})
}

// Enabled reports whether t would emit events of the given scope.
func Enabled(t Tracer, scope Scope) bool {
	return t != nil && t.Enabled() && t.Level().ShouldEmit(scope)
}

package trace

import (
	"fmt"
	"strings"
	"time"
)

// Kind tells span boundaries from instant events.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string { return lookupName(kindNames[:], int(k)) }

// Scope is the granularity of an event, coarsest first.
type Scope uint8

const (
	// ScopeDriver is a whole compilation run.
	ScopeDriver Scope = iota + 1
	// ScopePass is one pipeline stage of one kernel.
	ScopePass
	// ScopeModule is everything done for one kernel.
	ScopeModule
	// ScopeNode is a single frontend node or instruction.
	ScopeNode
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopePass:   "pass",
	ScopeModule: "module",
	ScopeNode:   "node",
}

func (s Scope) String() string { return lookupName(scopeNames[:], int(s)) }

// Level is the tracing verbosity. Each level admits the scopes of the one
// below it plus one more.
type Level uint8

const (
	LevelOff Level = iota
	// LevelError records nothing by itself; failures reach the output
	// through the ring dump.
	LevelError
	LevelPhase
	LevelDetail
	LevelDebug
)

var levelNames = [...]string{
	LevelOff:    "off",
	LevelError:  "error",
	LevelPhase:  "phase",
	LevelDetail: "detail",
	LevelDebug:  "debug",
}

func (l Level) String() string { return lookupName(levelNames[:], int(l)) }

// ParseLevel accepts the level names in any case. Empty means off.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelOff, nil
	}
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(l), nil //nolint:gosec // index of a five-entry table
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// widest scope each level lets through
var levelScopes = [...]Scope{
	LevelPhase:  ScopePass,
	LevelDetail: ScopeModule,
	LevelDebug:  ScopeNode,
}

// ShouldEmit reports whether events of scope are recorded at l.
func (l Level) ShouldEmit(scope Scope) bool {
	if int(l) >= len(levelScopes) {
		return false
	}
	return scope != 0 && scope <= levelScopes[l]
}

// admits is the filter the tracers apply. Heartbeats pass at any level.
func (l Level) admits(ev *Event) bool {
	return ev.Kind == KindHeartbeat || l.ShouldEmit(ev.Scope)
}

func lookupName(names []string, i int) string {
	if i >= 0 && i < len(names) && names[i] != "" {
		return names[i]
	}
	return "unknown"
}

// Event is one trace record.
type Event struct {
	Time  time.Time
	Seq   uint64 // stamped by the tracer that stores the event
	Kind  Kind
	Scope Scope
	// SpanID and ParentID are zero for points outside any span.
	SpanID   uint64
	ParentID uint64
	GID      uint64
	Session  string
	Name     string
	Detail   string
	Extra    map[string]string
}

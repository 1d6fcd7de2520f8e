package trace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Format is the encoding of stream output.
type Format uint8

const (
	FormatAuto Format = iota
	FormatText
	FormatNDJSON
)

// ParseFormat accepts auto, text, ndjson and json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson)", s)
}

// FormatEvent renders ev as one line, newline included.
func FormatEvent(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return appendJSON(nil, ev)
	}
	return appendText(make([]byte, 0, 96), ev)
}

var glyphs = [...]string{
	KindSpanBegin: "→ ",
	KindSpanEnd:   "← ",
	KindPoint:     "• ",
	KindHeartbeat: "♡ ",
}

// appendText writes
//
//	#seq   [scope]   → name (detail) {k=v, ...}
//
// indenting events that have a parent span.
func appendText(b []byte, ev *Event) []byte {
	b = append(b, '#')
	seq := strconv.FormatUint(ev.Seq, 10)
	b = append(b, seq...)
	for i := len(seq); i < 6; i++ {
		b = append(b, ' ')
	}
	b = append(b, " ["...)
	b = append(b, ev.Scope.String()...)
	b = append(b, "] "...)
	if ev.ParentID != 0 {
		b = append(b, "  "...)
	}
	if int(ev.Kind) < len(glyphs) {
		b = append(b, glyphs[ev.Kind]...)
	}
	b = append(b, ev.Name...)
	if ev.Detail != "" {
		b = append(b, " ("...)
		b = append(b, ev.Detail...)
		b = append(b, ')')
	}
	if len(ev.Extra) > 0 {
		keys := maps.Keys(ev.Extra)
		slices.Sort(keys)
		b = append(b, " {"...)
		for i, k := range keys {
			if i > 0 {
				b = append(b, ", "...)
			}
			b = append(b, k...)
			b = append(b, '=')
			b = append(b, ev.Extra[k]...)
		}
		b = append(b, '}')
	}
	return append(b, '\n')
}

type jsonEvent struct {
	Time     string            `json:"time"`
	Seq      uint64            `json:"seq"`
	Kind     string            `json:"kind"`
	Scope    string            `json:"scope"`
	SpanID   uint64            `json:"span_id,omitempty"`
	ParentID uint64            `json:"parent_id,omitempty"`
	GID      uint64            `json:"gid,omitempty"`
	Session  string            `json:"session,omitempty"`
	Name     string            `json:"name"`
	Detail   string            `json:"detail,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

func appendJSON(b []byte, ev *Event) []byte {
	data, err := json.Marshal(jsonEvent{
		Time:     ev.Time.UTC().Format(time.RFC3339Nano),
		Seq:      ev.Seq,
		Kind:     ev.Kind.String(),
		Scope:    ev.Scope.String(),
		SpanID:   ev.SpanID,
		ParentID: ev.ParentID,
		GID:      ev.GID,
		Session:  ev.Session,
		Name:     ev.Name,
		Detail:   ev.Detail,
		Extra:    ev.Extra,
	})
	if err != nil {
		return b
	}
	b = append(b, data...)
	return append(b, '\n')
}

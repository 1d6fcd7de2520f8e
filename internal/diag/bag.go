package diag

import "sort"

// Bag collects the diagnostics of one compilation, up to a limit. Items past
// the limit are counted but not kept, so HasErrors still sees them.
type Bag struct {
	items   []Diagnostic
	limit   int
	dropped int
	// worst is the highest severity ever added, kept or not
	worst Severity
	seen  bool
}

// NewBag returns a bag holding at most limit diagnostics. A limit of zero
// or less keeps everything.
func NewBag(limit int) *Bag {
	return &Bag{items: make([]Diagnostic, 0, max(limit, 0)), limit: limit}
}

// Add stores d and reports whether it was kept.
func (b *Bag) Add(d Diagnostic) bool {
	if !b.seen || d.Severity > b.worst {
		b.worst, b.seen = d.Severity, true
	}
	if b.limit > 0 && len(b.items) >= b.limit {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) HasErrors() bool {
	return b.seen && b.worst >= SevError
}

func (b *Bag) HasWarnings() bool {
	return b.seen && b.worst >= SevWarning
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Dropped is the number of diagnostics rejected by the limit.
func (b *Bag) Dropped() int {
	return b.dropped
}

// Items returns the kept diagnostics. The slice must not be modified.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Sort orders diagnostics by method, severity (errors first) and code so the
// output does not depend on the order parallel workers finished in.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Method != dj.Method {
			return di.Method < dj.Method
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}

type dedupKey struct {
	code    Code
	method  string
	message string
}

// Dedup drops repeated diagnostics, keeping the first of each.
func (b *Bag) Dedup() {
	seen := make(map[dedupKey]struct{}, len(b.items))
	kept := b.items[:0]
	for _, d := range b.items {
		k := dedupKey{d.Code, d.Method, d.Message}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, d)
	}
	b.items = kept
}

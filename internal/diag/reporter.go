package diag

import "sync"

// Reporter receives diagnostics from the compilation stages.
type Reporter interface {
	Report(d Diagnostic)
}

// BagReporter adds to a Bag. Safe for use by parallel method compilations.
type BagReporter struct {
	Bag *Bag
	mu  sync.Mutex
}

func (r *BagReporter) Report(d Diagnostic) {
	if r == nil || r.Bag == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Bag.Add(d)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Diagnostic) {}

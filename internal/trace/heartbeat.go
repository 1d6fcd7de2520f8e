package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits an event at a fixed interval while a compilation runs.
// Heartbeats without span ends in between point at a kernel stuck in a
// pass, usually an optimization loop that never reaches its fixed point.
type Heartbeat struct {
	tracer Tracer
	start  time.Time
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// StartHeartbeat starts the heartbeat goroutine. It returns nil, which
// Stop accepts, when t is disabled or interval is not positive.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer: t,
		start:  time.Now(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run(interval)
	return h
}

func (h *Heartbeat) run(interval time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for beat := 1; ; beat++ {
		select {
		case now := <-ticker.C:
			h.tracer.Emit(&Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				GID:    goroutineID(),
				Name:   "heartbeat",
				Detail: "#" + strconv.Itoa(beat) + " after " + now.Sub(h.start).Round(time.Millisecond).String(),
			})
		case <-h.stop:
			return
		}
	}
}

// Stop ends the heartbeat and waits for the goroutine to exit. It may be
// called more than once.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}

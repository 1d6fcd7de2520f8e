package driver

import "time"

// Stage is a step of the per-method pipeline.
type Stage string

const (
	// StageMap appends the IR of the frontend nodes.
	StageMap Stage = "map"
	// StageNormalize lowers the IR into the machine-mappable form.
	StageNormalize Stage = "normalize"
	// StageOptimize runs the optimization passes.
	StageOptimize Stage = "optimize"
	// StageCodegen allocates registers and emits machine code.
	StageCodegen Stage = "codegen"
)

// ParseStage accepts the stage names and the dump aliases of the CLI.
func ParseStage(s string) (Stage, bool) {
	switch s {
	case "map", "ir":
		return StageMap, true
	case "normalize", "normalized":
		return StageNormalize, true
	case "optimize", "optimized":
		return StageOptimize, true
	case "codegen", "asm", "":
		return StageCodegen, true
	}
	return "", false
}

// Status is the progress of one method.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusCached  Status = "cached"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress for a method, or for the whole module when Method
// is empty.
type Event struct {
	Method  string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Methods compiled in parallel call
// OnEvent concurrently.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(evt Event) { f(evt) }

package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"vc4c/internal/driver"
	"vc4c/internal/frontend"
	"vc4c/internal/ui"
)

type compileOutcome struct {
	result *driver.ModuleResult
	err    error
}

// runCompileWithUI compiles mod in the background while the progress view
// renders its events on stderr.
func runCompileWithUI(ctx context.Context, title string, methods []string, mod *frontend.Module, opts driver.Options) (*driver.ModuleResult, error) {
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan compileOutcome, 1)

	go func() {
		opts.Sink = driver.ChannelSink{Ch: events}
		res, err := driver.CompileModule(ctx, mod, opts)
		outcomeCh <- compileOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, methods, events)
	_, uiErr := tea.NewProgram(model, tea.WithOutput(os.Stderr)).Run()
	// the view may quit early, the compilation must still be able to send
	go func() {
		for range events { //nolint:revive // drain
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}

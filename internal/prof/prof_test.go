package prof_test

import (
	"os"
	"path/filepath"
	"testing"

	"vc4c/internal/prof"
)

func TestSessionWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	opts := prof.Options{
		CPU:   filepath.Join(dir, "cpu.pprof"),
		Heap:  filepath.Join(dir, "heap.pprof"),
		Trace: filepath.Join(dir, "run.trace"),
	}
	s, err := prof.Start(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	for _, path := range []string{opts.CPU, opts.Heap, opts.Trace} {
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("%s: %v", path, err)
		}
	}
}

func TestStartFailsOnBadPath(t *testing.T) {
	if _, err := prof.Start(prof.Options{Trace: filepath.Join(t.TempDir(), "missing", "run.trace")}); err == nil {
		t.Fatal("trace into a missing directory started")
	}
}

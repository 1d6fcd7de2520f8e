package observ_test

import (
	"strings"
	"sync"
	"testing"

	"vc4c/internal/observ"
)

func TestReportSumsStages(t *testing.T) {
	tm := observ.NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.End(tm.Begin("optimize"), "k")
		}()
	}
	wg.Wait()
	tm.End(tm.Begin("codegen"), "sum")
	tm.Begin("unfinished")

	rep := tm.Report()
	if len(rep.Phases) != 2 {
		t.Fatalf("expected 2 stages, got %+v", rep.Phases)
	}
	if rep.Phases[0].Name != "optimize" || rep.Phases[0].Count != 4 {
		t.Fatalf("unexpected first stage %+v", rep.Phases[0])
	}
	if rep.Phases[1].Slowest != "sum" || rep.Phases[1].MaxMS != rep.Phases[1].TotalMS {
		t.Fatalf("single run: %+v", rep.Phases[1])
	}
	if s := tm.Summary(); !strings.Contains(s, "x4") || !strings.Contains(s, "total") || !strings.Contains(s, "(sum)") {
		t.Fatalf("summary:\n%s", s)
	}
}

func TestEndTwiceKeepsFirst(t *testing.T) {
	tm := observ.NewTimer()
	h := tm.Begin("map")
	tm.End(h, "a")
	tm.End(h, "b")
	if got := tm.Report().Phases[0]; got.Count != 1 || got.Slowest != "a" {
		t.Fatalf("got %+v", got)
	}
}

func TestNilTimerIsInert(t *testing.T) {
	var tm *observ.Timer
	tm.End(tm.Begin("x"), "")
	if len(tm.Report().Phases) != 0 {
		t.Fatal("nil timer must report nothing")
	}
}

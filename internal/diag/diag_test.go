package diag_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"vc4c/internal/diag"
)

func TestCompilationErrorMessage(t *testing.T) {
	err := diag.Errorf(diag.StageLowering, "<3 x i16> %x", "Saturation to this type is not yet supported")
	want := "lowering: Saturation to this type is not yet supported: <3 x i16> %x"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	wrapped := fmt.Errorf("method foo: %w", err)
	stage, ok := diag.StageOf(wrapped)
	if !ok || stage != diag.StageLowering {
		t.Fatalf("StageOf = %v, %v", stage, ok)
	}
	if diag.CodeOf(wrapped) != diag.LowerUnsupportedType {
		t.Fatalf("CodeOf = %v", diag.CodeOf(wrapped))
	}
}

func TestCodeStage(t *testing.T) {
	tests := []struct {
		code diag.Code
		want diag.Stage
	}{
		{diag.ParseArity, diag.StageParser},
		{diag.NormUnimplementedContainer, diag.StageNormalization},
		{diag.LowerUnknownIntrinsic, diag.StageLowering},
		{diag.CodegenRegistersExhausted, diag.StageCodegen},
		{diag.CacheError, diag.StageGeneral},
	}
	for _, tt := range tests {
		if got := tt.code.Stage(); got != tt.want {
			t.Errorf("%s.Stage() = %s, want %s", tt.code.ID(), got, tt.want)
		}
	}
	err := diag.CodeErrorf(diag.ParseArity, "call @f", "Got %d, expected %d", 1, 2)
	if stage, _ := diag.StageOf(err); stage != diag.StageParser {
		t.Fatalf("stage from code = %s", stage)
	}
}

func TestStageOfPlainError(t *testing.T) {
	if _, ok := diag.StageOf(errors.New("boom")); ok {
		t.Fatal("plain errors carry no stage")
	}
	if diag.CodeOf(errors.New("boom")) != diag.GeneralError {
		t.Fatal("plain errors map to the general code")
	}
}

func TestBagSortAndReport(t *testing.T) {
	bag := diag.NewBag(8)
	bag.Add(diag.NewWarning(diag.NormUnresolvedLifetime, "kern_b", "lifetime pointer unresolved"))
	bag.Add(diag.FromError("kern_b", diag.Errorf(diag.StageCodegen, "", "out of registers")))
	bag.Add(diag.FromError("kern_a", diag.CodeErrorf(diag.ParseArity, "call @f", "Got 1, expected 2")))
	bag.Sort()

	if !bag.HasErrors() || !bag.HasWarnings() {
		t.Fatal("bag holds both errors and warnings")
	}

	var buf bytes.Buffer
	if err := diag.Report(&buf, bag, diag.ReportOpts{Construct: true}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"kern_a: ERROR VC1001: Got 1, expected 2",
		"    call @f",
		"kern_b: ERROR VC5002: out of registers",
		"kern_b: WARNING VC2002: lifetime pointer unresolved",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestBagLimitAndDedup(t *testing.T) {
	bag := diag.NewBag(2)
	d := diag.NewError(diag.GeneralError, "k", "x")
	if !bag.Add(d) || !bag.Add(d) {
		t.Fatal("bag accepts up to its limit")
	}
	if bag.Add(d) {
		t.Fatal("bag must reject past its limit")
	}
	bag.Dedup()
	if bag.Len() != 1 {
		t.Fatalf("Dedup left %d items", bag.Len())
	}
}

func TestBagCountsDroppedErrors(t *testing.T) {
	bag := diag.NewBag(1)
	bag.Add(diag.NewWarning(diag.NormUnresolvedLifetime, "k", "w"))
	if bag.Add(diag.NewError(diag.GeneralError, "k", "e")) {
		t.Fatal("second diagnostic kept past the limit")
	}
	if !bag.HasErrors() || bag.Dropped() != 1 {
		t.Fatalf("HasErrors=%v Dropped=%d", bag.HasErrors(), bag.Dropped())
	}
	var buf bytes.Buffer
	if err := diag.Report(&buf, bag, diag.ReportOpts{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "1 more diagnostics not shown") {
		t.Fatalf("report:\n%s", buf.String())
	}
}

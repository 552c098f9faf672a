package validate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateSkimGood(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "DY_M50_skim_0.root")
	if err := WriteSidecar(out, map[string]int{"Events": 1500}, nil); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	n, err := Validate(out, "skim")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if n != 1500 {
		t.Errorf("nevents = %d, want 1500", n)
	}
}

func TestValidateSkimMissingTree(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "DY_M50_skim_0.root")
	if err := WriteSidecar(out, map[string]int{"LuminosityBlocks": 3}, nil); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	n, err := Validate(out, "skim")
	if n != -1 {
		t.Errorf("nevents = %d, want -1", n)
	}
	if err == nil {
		t.Fatal("expected error for missing Events tree")
	}
}

func TestValidateSkimZeroEntries(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "DY_M50_skim_0.root")
	if err := WriteSidecar(out, map[string]int{"Events": 0}, nil); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	n, _ := Validate(out, "skim")
	if n != -1 {
		t.Errorf("nevents = %d, want -1 for zero entries", n)
	}
}

func TestValidateAnalysisGood(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "DY_M50_mutau_0.root")
	if err := WriteSidecar(out, map[string]int{"tree": 1}, []int{4200, 3900, 3500}); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	n, err := Validate(out, "mutau")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if n != 4200 {
		t.Errorf("nevents = %d, want 4200 (cutflow bin 1)", n)
	}
}

func TestValidateAnalysisEmptyCutflow(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "DY_M50_mutau_0.root")
	if err := WriteSidecar(out, map[string]int{"tree": 1}, nil); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	n, err := Validate(out, "mutau")
	if n != -1 || err == nil {
		t.Errorf("got (%d, %v), want (-1, non-nil)", n, err)
	}
}

func TestValidateAnalysisMissingTree(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "DY_M50_mutau_0.root")
	if err := WriteSidecar(out, map[string]int{}, []int{100}); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	n, err := Validate(out, "mutau")
	if n != -1 || err == nil {
		t.Errorf("got (%d, %v), want (-1, non-nil)", n, err)
	}
}

func TestValidateMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "does_not_exist_0.root")
	n, err := Validate(out, "skim")
	if n != -1 || err == nil {
		t.Errorf("got (%d, %v), want (-1, non-nil)", n, err)
	}
}

func TestValidateCorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bad_0.root")
	if err := os.WriteFile(SidecarPath(out), []byte("{not json"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	n, err := Validate(out, "skim")
	if n != -1 || err == nil {
		t.Errorf("got (%d, %v), want (-1, non-nil)", n, err)
	}
}

func TestIsSkim(t *testing.T) {
	cases := map[string]bool{
		"skim":      true,
		"Skim":      true,
		"preskim_v2": true,
		"mutau":     false,
		"analyse":   false,
	}
	for channel, want := range cases {
		if got := isSkim(channel); got != want {
			t.Errorf("isSkim(%q) = %v, want %v", channel, got, want)
		}
	}
}

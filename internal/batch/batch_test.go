package batch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewUnknownSystem(t *testing.T) {
	_, err := New("SGE")
	if err == nil {
		t.Fatal("expected error for unimplemented system")
	}
	var ni *NotImplemented
	if e, ok := err.(*NotImplemented); ok {
		ni = e
	}
	if ni == nil {
		t.Fatalf("expected *NotImplemented, got %T: %v", err, err)
	}
	if ni.System != "SGE" {
		t.Errorf("System = %q, want SGE", ni.System)
	}
}

func TestNewKnownSystems(t *testing.T) {
	for _, name := range []string{"HTCondor", "SLURM"} {
		a, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if a.System() != name {
			t.Errorf("System() = %q, want %q", a.System(), name)
		}
	}
}

func TestClusterIDPattern(t *testing.T) {
	out := "Submitting job(s).\n1 job(s) submitted to cluster 4821.\n"
	m := clusterIDPattern.FindStringSubmatch(out)
	if m == nil || m[1] != "4821" {
		t.Fatalf("got %v, want cluster id 4821", m)
	}
}

func TestSbatchIDPattern(t *testing.T) {
	out := "Submitted batch job 998877\n"
	m := sbatchIDPattern.FindStringSubmatch(out)
	if m == nil || m[1] != "998877" {
		t.Fatalf("got %v, want job id 998877", m)
	}
}

func TestCondorStatus(t *testing.T) {
	cases := map[int]Status{
		condorIdle:              StatusQueued,
		condorRunning:           StatusRunning,
		condorTransferringOutput: StatusRunning,
		condorCompleted:         StatusDone,
		condorHeld:              StatusFailed,
		condorRemoved:           StatusFailed,
	}
	for code, want := range cases {
		if got := condorStatus(code); got != want {
			t.Errorf("condorStatus(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestSlurmState(t *testing.T) {
	cases := map[string]Status{
		"PD": StatusQueued,
		"R":  StatusRunning,
		"CG": StatusRunning,
		"CD": StatusDone,
		"F":  StatusFailed,
	}
	for code, want := range cases {
		if got := slurmState(code); got != want {
			t.Errorf("slurmState(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestSplitArrayID(t *testing.T) {
	id, task := splitArrayID("1234_5")
	if id != "1234" || task != 5 {
		t.Errorf("got (%s, %d), want (1234, 5)", id, task)
	}
	id, task = splitArrayID("1234")
	if id != "1234" || task != 0 {
		t.Errorf("got (%s, %d), want (1234, 0)", id, task)
	}
}

func TestTaskArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "joblist.txt")
	content := "run.sh -i a.root -o out0.root\nrun.sh -i b.root -o out1.root\n"
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := TaskArgs(path, 2)
	if err != nil {
		t.Fatalf("TaskArgs: %v", err)
	}
	want := "run.sh -i b.root -o out1.root"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := TaskArgs(path, 3); err == nil {
		t.Error("expected error for out-of-range task id")
	}
	if _, err := TaskArgs(path, 0); err == nil {
		t.Error("expected error for task id < 1")
	}
}

func TestCountLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "joblist.txt")
	content := "cmd1\ncmd2\n\ncmd3\n"
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	n, err := countLines(path)
	if err != nil {
		t.Fatalf("countLines: %v", err)
	}
	if n != 3 {
		t.Errorf("countLines = %d, want 3", n)
	}
}

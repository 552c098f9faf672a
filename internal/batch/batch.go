// Package batch implements the submit/query capability set (spec.md
// §4.2, component C2 BatchAdapter) over real batch scheduler CLIs
// (HTCondor, SLURM), matching the teacher's "shell out, parse stdout"
// idiom for driving external tools.
package batch

import (
	"context"
	"errors"
	"fmt"
)

// Status is a job's queue state as reported by the batch scheduler.
type Status string

const (
	StatusQueued  Status = "q"
	StatusRunning Status = "r"
	StatusDone    Status = "d"
	StatusFailed  Status = "f"
)

// Job describes one live or terminal batch job, as reported by the
// scheduler's query command.
type Job struct {
	ID     string
	TaskID int
	Status Status
	// Args is the per-task argument string. HTCondor exposes it via a
	// submit-file attribute on each task; SLURM exposes it only through
	// the task's corresponding line in the job's joblist file, so the
	// Jobs caller may need to pair a Job with its JobList to recover it.
	Args string
}

// Options carries submission parameters common to both schedulers.
type Options struct {
	Name      string            // job name (for scheduler accounting / logs)
	Queue     string            // queue or job flavor (HTCondor) / partition (SLURM)
	Time      string            // maximum wall time, e.g. "4:00:00"
	ExtraOpts []string          // extra raw CLI options passed through to the submit command
	Env       map[string]string // extra environment variables forwarded to each task
	DryRun    bool              // build the submit invocation but never execute it
}

// NotImplemented is returned by the New constructor when asked for a
// batch system with no implemented variant.
type NotImplemented struct {
	System string
}

func (e *NotImplemented) Error() string {
	return fmt.Sprintf("batch: submission for system %q has not been implemented", e.System)
}

// ExecFail wraps a non-zero exit from an external scheduler CLI.
type ExecFail struct {
	Cmd    string
	Output string
	Err    error
}

func (e *ExecFail) Error() string {
	return fmt.Sprintf("batch command failed: %s: %v\n%s", e.Cmd, e.Err, e.Output)
}

func (e *ExecFail) Unwrap() error { return e.Err }

var errNoSuchJob = errors.New("batch: no such job")

// Adapter is the uniform capability set for a batch scheduler backend.
type Adapter interface {
	// System returns the scheduler's identifying name ("HTCondor", "SLURM").
	System() string

	// Submit submits script (a submit-file or batch script template)
	// against joblistPath (the list of per-task commands) and returns
	// the scheduler-assigned batch id.
	Submit(ctx context.Context, script, joblistPath string, opts Options) (string, error)

	// Jobs returns live/terminal state for the given batch ids. A nil
	// or empty ids queries the whole queue owned by the current user.
	Jobs(ctx context.Context, ids []string) ([]Job, error)
}

// New constructs the Adapter for the named system. Supported names are
// "HTCondor" and "SLURM" (case-sensitive, matching the on-disk config
// value). Any other name yields *NotImplemented immediately, matching
// the original tooling's fail-fast behavior for unknown schedulers.
func New(system string) (Adapter, error) {
	switch system {
	case "HTCondor":
		return NewHTCondor(), nil
	case "SLURM":
		return NewSLURM(), nil
	default:
		return nil, &NotImplemented{System: system}
	}
}

package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// HTCondor drives the real condor_submit / condor_q CLIs.
type HTCondor struct {
	submitCmd string
	queueCmd  string
}

var _ Adapter = (*HTCondor)(nil)

// NewHTCondor returns an HTCondor adapter using the condor_submit and
// condor_q binaries from $PATH.
func NewHTCondor() *HTCondor {
	return &HTCondor{submitCmd: "condor_submit", queueCmd: "condor_q"}
}

func (h *HTCondor) System() string { return "HTCondor" }

var clusterIDPattern = regexp.MustCompile(`cluster (\d+)`)

func (h *HTCondor) Submit(ctx context.Context, script, joblistPath string, opts Options) (string, error) {
	args := []string{script}
	args = append(args, htcondorOptArgs(opts)...)
	// joblistPath is passed to the submit description via a macro so
	// the .sub template can reference it as $(joblist).
	args = append(args, fmt.Sprintf("joblist=%s", joblistPath))

	if opts.DryRun {
		return "", nil
	}

	cmd := exec.CommandContext(ctx, h.submitCmd, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &ExecFail{Cmd: h.submitCmd + " " + strings.Join(args, " "), Output: string(out), Err: err}
	}

	m := clusterIDPattern.FindStringSubmatch(string(out))
	if m == nil {
		return "", fmt.Errorf("batch: could not parse cluster id from condor_submit output: %s", out)
	}
	return m[1], nil
}

func htcondorOptArgs(opts Options) []string {
	var args []string
	if opts.Name != "" {
		args = append(args, "-batch-name", opts.Name)
	}
	if opts.Queue != "" {
		args = append(args, "-append", fmt.Sprintf("+JobFlavour=%q", opts.Queue))
	}
	for k, v := range opts.Env {
		args = append(args, "-append", fmt.Sprintf("environment=%s=%s", k, v))
	}
	args = append(args, opts.ExtraOpts...)
	return args
}

type condorClassAd struct {
	ClusterId int    `json:"ClusterId"`
	ProcId    int    `json:"ProcId"`
	JobStatus int    `json:"JobStatus"`
	Args      string `json:"Args"`
}

// HTCondor JobStatus codes, per the ClassAd attribute of the same name.
const (
	condorIdle               = 1
	condorRunning            = 2
	condorRemoved            = 3
	condorCompleted          = 4
	condorHeld               = 5
	condorTransferringOutput = 6
	condorSuspended          = 7
)

func condorStatus(code int) Status {
	switch code {
	case condorIdle:
		return StatusQueued
	case condorRunning, condorTransferringOutput, condorSuspended:
		return StatusRunning
	case condorCompleted:
		return StatusDone
	case condorHeld, condorRemoved:
		return StatusFailed
	default:
		return StatusQueued
	}
}

func (h *HTCondor) Jobs(ctx context.Context, ids []string) ([]Job, error) {
	args := []string{"-json"}
	for _, id := range ids {
		args = append(args, id)
	}

	cmd := exec.CommandContext(ctx, h.queueCmd, args...)
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = string(ee.Stderr)
		}
		return nil, &ExecFail{Cmd: h.queueCmd + " " + strings.Join(args, " "), Output: stderr, Err: err}
	}

	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, nil
	}

	var ads []condorClassAd
	if err := json.Unmarshal([]byte(trimmed), &ads); err != nil {
		return nil, fmt.Errorf("batch: parse condor_q -json output: %w", err)
	}

	jobs := make([]Job, 0, len(ads))
	for _, ad := range ads {
		jobs = append(jobs, Job{
			ID:     strconv.Itoa(ad.ClusterId),
			TaskID: ad.ProcId,
			Status: condorStatus(ad.JobStatus),
			Args:   ad.Args,
		})
	}
	return jobs, nil
}

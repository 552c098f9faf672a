package batch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// SLURM drives the real sbatch / squeue CLIs.
type SLURM struct {
	submitCmd string
	queueCmd  string
}

var _ Adapter = (*SLURM)(nil)

// NewSLURM returns a SLURM adapter using the sbatch and squeue binaries
// from $PATH.
func NewSLURM() *SLURM {
	return &SLURM{submitCmd: "sbatch", queueCmd: "squeue"}
}

func (s *SLURM) System() string { return "SLURM" }

var sbatchIDPattern = regexp.MustCompile(`Submitted batch job (\d+)`)

func (s *SLURM) Submit(ctx context.Context, script, joblistPath string, opts Options) (string, error) {
	nTasks, err := countLines(joblistPath)
	if err != nil {
		return "", fmt.Errorf("batch: count tasks in joblist %s: %w", joblistPath, err)
	}

	args := []string{fmt.Sprintf("--array=1-%d", nTasks)}
	args = append(args, slurmOptArgs(opts)...)
	args = append(args, script, joblistPath)

	if opts.DryRun {
		return "", nil
	}

	cmd := exec.CommandContext(ctx, s.submitCmd, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &ExecFail{Cmd: s.submitCmd + " " + strings.Join(args, " "), Output: string(out), Err: err}
	}

	m := sbatchIDPattern.FindStringSubmatch(string(out))
	if m == nil {
		return "", fmt.Errorf("batch: could not parse job id from sbatch output: %s", out)
	}
	return m[1], nil
}

func slurmOptArgs(opts Options) []string {
	var args []string
	if opts.Name != "" {
		args = append(args, "--job-name", opts.Name)
	}
	if opts.Queue != "" {
		args = append(args, "--partition", opts.Queue)
	}
	if opts.Time != "" {
		args = append(args, "--time", opts.Time)
	}
	for k, v := range opts.Env {
		args = append(args, "--export", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, opts.ExtraOpts...)
	return args
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}

func slurmState(code string) Status {
	switch code {
	case "PD":
		return StatusQueued
	case "R", "CG":
		return StatusRunning
	case "CD":
		return StatusDone
	default:
		return StatusFailed
	}
}

func (s *SLURM) Jobs(ctx context.Context, ids []string) ([]Job, error) {
	args := []string{"-h", "-o", "%i|%t"}
	if len(ids) > 0 {
		args = append(args, "-j", strings.Join(ids, ","))
	}

	cmd := exec.CommandContext(ctx, s.queueCmd, args...)
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = string(ee.Stderr)
		}
		return nil, &ExecFail{Cmd: s.queueCmd + " " + strings.Join(args, " "), Output: stderr, Err: err}
	}

	var jobs []Job
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		id, taskID := splitArrayID(parts[0])
		jobs = append(jobs, Job{
			ID:     id,
			TaskID: taskID,
			Status: slurmState(parts[1]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("batch: parse squeue output: %w", err)
	}
	return jobs, nil
}

// splitArrayID parses a squeue array job identifier of the form
// "1234_5" into its parent job id and 1-based task index.
func splitArrayID(raw string) (id string, taskID int) {
	parts := strings.SplitN(raw, "_", 2)
	if len(parts) != 2 {
		return raw, 0
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return parts[0], 0
	}
	return parts[0], n
}

// TaskArgs recovers the per-task argument string for a SLURM array
// task by reading the task_id-th line (1-based) of joblist, since
// squeue exposes no per-task argument attribute (spec.md §4.2, §4.7
// step 1).
func TaskArgs(joblistPath string, taskID int) (string, error) {
	if taskID < 1 {
		return "", fmt.Errorf("batch: task id must be >= 1, got %d", taskID)
	}
	f, err := os.Open(joblistPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if line == taskID {
			return sc.Text(), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("batch: joblist %s has no line %d", joblistPath, taskID)
}

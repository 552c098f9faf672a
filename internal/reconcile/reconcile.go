// Package reconcile implements the Reconciler (spec.md §4.7, component
// C7): cross-checking storage, the batch queue, and output-file
// validation to classify each chunk of a prior attempt as SUCCESS,
// PEND, FAIL, or MISS, and to compute the resubmission plan.
package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"anabatch/internal/batch"
	"anabatch/internal/jobconfig"
	"anabatch/internal/storage"
	"anabatch/internal/validate"
)

// Status is a chunk's classification after reconciliation.
type Status int

const (
	StatusSuccess Status = iota
	StatusPend
	StatusFail
	StatusMiss
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusPend:
		return "PEND"
	case StatusFail:
		return "FAIL"
	case StatusMiss:
		return "MISS"
	default:
		return "UNKNOWN"
	}
}

// InvariantViolation is raised when the cross-check discovers a state
// that should be structurally impossible (an output or job referring
// to a chunk index absent from chunk_map, a chunk counted more than
// once, or a chunk's file claimed by more than one resubmission
// bucket). Per spec.md §7, this is the only error class that aborts
// the whole run rather than one chunk's iteration.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("reconcile: invariant violation: %s", e.Reason)
}

// Result is the outcome of a Reconcile call.
type Result struct {
	Good              []int            // chunk indices classified SUCCESS
	Pend              []int            // chunk indices classified PEND
	Fail              []int            // chunk indices classified FAIL
	Miss              []int            // chunk indices classified MISS
	ResubFiles        []string         // files belonging to FAIL ∪ MISS chunks
	ChunkMapSurviving map[int][]string // SUCCESS and PEND indices only
	NProcessedEvents  int64
	NDASEvents        int64
}

// Options configures a Reconcile call.
type Options struct {
	// LiveJobs is the batch system's current queue (may be pre-fetched
	// by the caller, e.g. when checkqueue semantics dictate reuse of a
	// previous query instead of a fresh one).
	LiveJobs []batch.Job
	// JobListPath is old config's on-disk joblist, needed to recover a
	// SLURM pending task's arguments (spec.md §4.7 step 1).
	JobListPath string
	// System names the batch system ("HTCondor" or "SLURM"), selecting
	// which pending-argument recovery path applies.
	System string
	// Validate runs output-file validation concurrently up to
	// Concurrency workers (default 8, spec.md §5).
	Concurrency int
}

var (
	skimArgsPattern     = regexp.MustCompile(`-i (\S[^ ]*\.root(?:\s+\S+\.root)*)`)
	analysisArgsPattern = regexp.MustCompile(`-t \w*_(\d+)`)
)

// Reconcile runs the five-step algorithm of spec.md §4.7 against a
// prior attempt's config. st lists output files under old.OutDir.
func Reconcile(ctx context.Context, old *jobconfig.Config, st storage.Adapter, opts Options) (*Result, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	pendChunks, err := pendingChunks(old, opts)
	if err != nil {
		return nil, err
	}

	var goodChunks, badChunks []int
	var resubFiles []string
	var nProcessed int64

	if isSkim(old.Channel) {
		goodChunks, badChunks, resubFiles, nProcessed, err = reconcileSkim(ctx, old, st, pendChunks, opts)
	} else {
		goodChunks, badChunks, resubFiles, nProcessed, err = reconcileAnalysis(ctx, old, st, pendChunks, opts)
	}
	if err != nil {
		return nil, err
	}

	var missChunks []int
	chunkSet := make(map[int]bool, len(old.ChunkMap))
	for idx := range old.ChunkMap {
		chunkSet[idx] = true
	}
	classified := make(map[int]bool, len(old.ChunkMap))
	for _, idx := range goodChunks {
		classified[idx] = true
	}
	for _, idx := range pendChunks {
		classified[idx] = true
	}
	for _, idx := range badChunks {
		classified[idx] = true
	}
	for idx := range chunkSet {
		if !classified[idx] {
			missChunks = append(missChunks, idx)
			resubFiles = append(resubFiles, old.ChunkMap[idx]...)
		}
	}

	surviving := make(map[int][]string)
	for _, idx := range goodChunks {
		surviving[idx] = old.ChunkMap[idx]
	}
	for _, idx := range pendChunks {
		surviving[idx] = old.ChunkMap[idx]
	}

	sort.Ints(goodChunks)
	sort.Ints(pendChunks)
	sort.Ints(badChunks)
	sort.Ints(missChunks)
	sort.Strings(resubFiles)

	ndasEvents := old.NEvents

	return &Result{
		Good:              goodChunks,
		Pend:              pendChunks,
		Fail:              badChunks,
		Miss:              missChunks,
		ResubFiles:        resubFiles,
		ChunkMapSurviving: surviving,
		NProcessedEvents:  nProcessed,
		NDASEvents:        ndasEvents,
	}, nil
}

func isSkim(channel string) bool {
	return strings.Contains(strings.ToLower(channel), "skim")
}

// pendingChunks implements spec.md §4.7 step 1: find which chunks have
// a job currently queued or running, recovering the chunk identity
// from the job's per-task argument string.
func pendingChunks(old *jobconfig.Config, opts Options) ([]int, error) {
	var pend []int
	for _, job := range opts.LiveJobs {
		if !inJobIDs(job.ID, old.JobIDs) {
			continue
		}
		if job.Status != batch.StatusQueued && job.Status != batch.StatusRunning {
			continue
		}

		args := job.Args
		var err error
		if opts.System != "HTCondor" {
			args, err = batch.TaskArgs(opts.JobListPath, job.TaskID)
			if err != nil {
				return nil, fmt.Errorf("reconcile: recover args for pending job %s.%d: %w", job.ID, job.TaskID, err)
			}
		}

		idx, err := pendingChunkIndex(old, args)
		if err != nil {
			return nil, err
		}
		if idx >= 0 {
			pend = append(pend, idx)
		}
	}
	return pend, nil
}

func inJobIDs(id string, ids []string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func pendingChunkIndex(old *jobconfig.Config, args string) (int, error) {
	if isSkim(old.Channel) {
		m := skimArgsPattern.FindStringSubmatch(args)
		if m == nil {
			return -1, nil
		}
		infiles := strings.Fields(m[1])
		if len(infiles) == 0 {
			return -1, &InvariantViolation{Reason: fmt.Sprintf("did not find any root files in job args %q", args)}
		}
		for idx, files := range old.ChunkMap {
			if allIn(infiles, files) && len(files) == len(infiles) {
				return idx, nil
			}
		}
		return -1, &InvariantViolation{Reason: fmt.Sprintf(
			"could not match pending job's input files %v to any chunk in chunk_map", infiles)}
	}

	m := analysisArgsPattern.FindStringSubmatch(args)
	if m == nil {
		return -1, nil
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return -1, fmt.Errorf("reconcile: parse chunk index from job args %q: %w", args, err)
	}
	if _, ok := old.ChunkMap[idx]; !ok {
		return -1, &InvariantViolation{Reason: fmt.Sprintf("pending job references impossible chunk %d", idx)}
	}
	return idx, nil
}

func allIn(needles, haystack []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}

// reconcileSkim implements spec.md §4.7 steps 2-4 for the skim channel
// variant: a chunk is SUCCESS iff every one of its files appears among
// validated-good outputs.
func reconcileSkim(ctx context.Context, old *jobconfig.Config, st storage.Adapter, pendChunks []int, opts Options) (good, bad []int, resub []string, nProcessed int64, err error) {
	pattern := "*" + old.Postfix + ".root"
	names, err := st.List(ctx, old.OutDir, pattern)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("reconcile: list skim outputs: %w", err)
	}

	pendSet := toSet(pendChunks)

	nevents, _, _, err := validateOutputs(ctx, st, old.OutDir, names, old.Channel, opts.Concurrency)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	// Map each output file to its owning chunk's input file, skip
	// pending chunks, and bucket the rest by validation outcome.
	goodInputs := make(map[string]bool)
	badInputs := make(map[string]bool)
	for _, n := range names {
		infile := strings.TrimSuffix(filepath.Base(n), old.Postfix+".root") + ".root"
		ichunk, fmatch := matchSkimChunk(old.ChunkMap, infile)
		if ichunk < 0 || pendSet[ichunk] {
			continue
		}
		full := filepath.Join(old.OutDir, n)
		if nevents[full] < 0 {
			badInputs[fmatch] = true
		} else {
			nProcessed += int64(nevents[full])
			goodInputs[fmatch] = true
		}
	}

	resubSeen := make(map[string]bool)
	for ichunk, files := range old.ChunkMap {
		if pendSet[ichunk] {
			continue
		}
		allGood := true
		for _, f := range files {
			if !goodInputs[f] {
				allGood = false
				break
			}
		}
		if allGood {
			good = append(good, ichunk)
			continue
		}
		isBad := false
		for _, f := range files {
			if resubSeen[f] {
				return nil, nil, nil, 0, &InvariantViolation{Reason: fmt.Sprintf(
					"file %q claimed by chunk %d more than once", f, ichunk)}
			}
			resubSeen[f] = true
			if badInputs[f] {
				isBad = true
			}
		}
		if isBad {
			bad = append(bad, ichunk)
			resub = append(resub, files...)
		}
		// else: left unclassified here, folded into MISS (and its files
		// into resub) by the caller.
	}

	return good, bad, resub, nProcessed, nil
}

func matchSkimChunk(chunkMap map[int][]string, infile string) (int, string) {
	for idx, files := range chunkMap {
		for _, f := range files {
			if strings.Contains(f, infile) {
				return idx, f
			}
		}
	}
	return -1, ""
}

// reconcileAnalysis implements spec.md §4.7 steps 2-4 for the analysis
// channel variant: a chunk is SUCCESS iff its numbered output validates.
func reconcileAnalysis(ctx context.Context, old *jobconfig.Config, st storage.Adapter, pendChunks []int, opts Options) (good, bad []int, resub []string, nProcessed int64, err error) {
	pattern := "*" + old.Postfix + "_[0-9]*.root"
	outputExp := regexp.MustCompile(regexp.QuoteMeta(old.Postfix) + `_(\d+)\.root$`)

	names, err := st.List(ctx, old.OutDir, pattern)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("reconcile: list analysis outputs: %w", err)
	}

	pendSet := toSet(pendChunks)
	nevents, _, _, err := validateOutputs(ctx, st, old.OutDir, names, old.Channel, opts.Concurrency)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	goodSet := make(map[int]bool)
	badSet := make(map[int]bool)
	for _, n := range names {
		m := outputExp.FindStringSubmatch(n)
		if m == nil {
			continue
		}
		idx, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			continue
		}
		if _, ok := old.ChunkMap[idx]; !ok {
			return nil, nil, nil, 0, &InvariantViolation{Reason: fmt.Sprintf(
				"output file %q references impossible chunk %d", n, idx)}
		}
		if pendSet[idx] {
			continue
		}
		full := filepath.Join(old.OutDir, n)
		if nevents[full] < 0 {
			badSet[idx] = true
		} else {
			nProcessed += int64(nevents[full])
			goodSet[idx] = true
		}
	}

	for idx := range old.ChunkMap {
		count := 0
		if goodSet[idx] {
			count++
		}
		if pendSet[idx] {
			count++
		}
		if badSet[idx] {
			count++
		}
		if count > 1 {
			return nil, nil, nil, 0, &InvariantViolation{Reason: fmt.Sprintf(
				"chunk %d counted %d times across good/pend/bad", idx, count)}
		}
		if goodSet[idx] {
			good = append(good, idx)
		} else if badSet[idx] {
			bad = append(bad, idx)
			resub = append(resub, old.ChunkMap[idx]...)
		}
		// pending and missing chunks handled by caller / step 4
	}

	return good, bad, resub, nProcessed, nil
}

func toSet(xs []int) map[int]bool {
	m := make(map[int]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

// validateOutputs runs FileValidator over names (relative to outDir)
// through a bounded worker pool (spec.md §4.7, §5), returning each
// output's event count keyed by its full storage path.
func validateOutputs(ctx context.Context, st storage.Adapter, outDir string, names []string, channel string, concurrency int) (nevents map[string]int, good, bad []string, err error) {
	nevents = make(map[string]int, len(names))
	if len(names) == 0 {
		return nevents, nil, nil, nil
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)
	results := make([]int, len(names))

	for i, name := range names {
		i, name := i, name
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, nil, nil, fmt.Errorf("reconcile: acquire validation slot: %w", err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			full := filepath.Join(outDir, name)
			n, _ := validate.Validate(full, channel)
			results[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	for i, name := range names {
		full := filepath.Join(outDir, name)
		nevents[full] = results[i]
		if results[i] < 0 {
			bad = append(bad, name)
		} else {
			good = append(good, name)
		}
	}
	return nevents, good, bad, nil
}

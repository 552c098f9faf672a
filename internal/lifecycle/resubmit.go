package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"anabatch/internal/batch"
	"anabatch/internal/chunkplan"
	"anabatch/internal/home"
	"anabatch/internal/jobconfig"
	"anabatch/internal/reconcile"
)

var attemptTryPattern = regexp.MustCompile(`_try(\d+)\.json$`)

// latestAttempt finds the highest-try JobConfig for a Dataset, by
// lexicographic+numeric sort of jobconfig_<postfix>_try*.json file
// names (spec.md §5 "Ordering guarantees"). Returns nil, "" if the
// Dataset has never been submitted.
func latestAttempt(jobDir home.JobDir, postfix string) (*jobconfig.Config, string, error) {
	matches, err := filepath.Glob(jobDir.GlobConfigs(postfix))
	if err != nil {
		return nil, "", fmt.Errorf("lifecycle: glob attempt configs: %w", err)
	}
	if len(matches) == 0 {
		return nil, "", nil
	}

	best := matches[0]
	bestTry := tryNumber(best)
	for _, m := range matches[1:] {
		if try := tryNumber(m); try > bestTry {
			best, bestTry = m, try
		}
	}

	jc, err := jobconfig.Read(best)
	if err != nil {
		return nil, "", fmt.Errorf("lifecycle: read attempt config %s: %w", best, err)
	}
	return jc, best, nil
}

func tryNumber(path string) int {
	m := attemptTryPattern.FindStringSubmatch(path)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// reconcileOne runs the Reconciler against a Dataset's latest attempt,
// querying the batch system for job_ids if it has any. An
// *reconcile.InvariantViolation panics rather than returning, so the
// top-level Submit/Resubmit/Status/Hadd/Clean loop can abort the whole
// call with one recover (spec.md §7).
func (d *Driver) reconcileOne(ctx context.Context, jc *jobconfig.Config, joblistPath string, opts Options) *reconcile.Result {
	var live []batch.Job
	if len(jc.JobIDs) > 0 {
		err := retryOnce(ctx, d.backoff, func() error {
			var innerErr error
			live, innerErr = d.batch.Jobs(ctx, jc.JobIDs)
			return innerErr
		})
		if err != nil {
			panic(fmt.Errorf("lifecycle: query batch queue: %w", err))
		}
	}

	result, err := reconcile.Reconcile(ctx, jc, d.storage, reconcile.Options{
		LiveJobs:    live,
		JobListPath: joblistPath,
		System:      jc.ExtraOpts["system"],
		Concurrency: opts.Concurrency,
	})
	if err != nil {
		if iv, ok := err.(*reconcile.InvariantViolation); ok {
			panic(iv)
		}
		panic(fmt.Errorf("lifecycle: reconcile: %w", err))
	}
	return result
}

// Resubmit locates each Dataset's most recent JobConfig, reconciles
// it, and — if any chunk needs resubmission — replans the deltas with
// fixed indices from chunk_map_surviving, writes a try=k+1 JobConfig,
// and submits only the new chunks (spec.md §4.8 `resubmit`).
func (d *Driver) Resubmit(ctx context.Context, t Target, opts Options) (results []DatasetResult, err error) {
	defer func() { err = recoverInvariantViolation(recover(), err) }()

	cfg, err := d.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := d.resolveAll(ctx, cfg, t)
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		res := d.resubmitOne(ctx, ref, t.Tag, opts)
		results = append(results, res)
		if res.Err != nil {
			d.logger.Warn("resubmit failed for dataset", "dataset", ref.ds.Name, "error", res.Err)
		}
	}
	return results, nil
}

func (d *Driver) resubmitOne(ctx context.Context, ref datasetRef, tag string, opts Options) DatasetResult {
	result := DatasetResult{Era: ref.era, Channel: ref.channel, Dataset: ref.ds.Name}

	postfix := home.Postfix(ref.channel, tag)
	jobDir := d.home.JobDir(ref.era, ref.channel, ref.ds.Name)

	old, _, err := latestAttempt(jobDir, postfix)
	if err != nil {
		result.Err = err
		return result
	}
	if old == nil {
		result.Err = fmt.Errorf("lifecycle: dataset %s has never been submitted", ref.ds.Name)
		return result
	}
	result.Try = old.Try

	joblistPath := filepath.Join(old.CfgDir, old.JobList)
	rec := d.reconcileOne(ctx, old, joblistPath, opts)

	if len(rec.ResubFiles) == 0 {
		result.NoOp = true
		return result
	}

	nfpj := chunkplan.EffectiveNFilesPerJob(opts.NFilesPerJob, perSampleNFiles(ref.ds), old.NFilesPerJob, opts.Split)
	newChunks := chunkplan.Plan(rec.ResubFiles, nfpj, rec.ChunkMapSurviving)

	mergedMap := make(map[int][]string, len(rec.ChunkMapSurviving)+len(newChunks))
	for idx, files := range rec.ChunkMapSurviving {
		mergedMap[idx] = files
	}
	for _, c := range newChunks {
		mergedMap[c.Index] = c.Files
	}
	mergedChunks := make([]int, 0, len(mergedMap))
	for idx := range mergedMap {
		mergedChunks = append(mergedChunks, idx)
	}
	sort.Ints(mergedChunks)

	next := *old
	next.Try = old.Try + 1
	next.Time = d.now()
	next.CfgName = filepath.Base(jobDir.ConfigPath(postfix, next.Try))
	next.JobList = filepath.Base(jobDir.ArgListPath(postfix, next.Try))
	next.NChunks = len(mergedChunks)
	next.Chunks = mergedChunks
	next.ChunkMap = mergedMap
	next.JobIDs = append([]string(nil), old.JobIDs...)
	next.InternalID = jobconfig.NewInternalID()

	if err := d.submitChunks(ctx, &next, newChunks, opts); err != nil {
		result.Err = err
		return result
	}
	result.Try = next.Try
	if len(next.JobIDs) > len(old.JobIDs) {
		result.BatchID = next.JobIDs[len(next.JobIDs)-1]
	}

	if err := jobconfig.Write(jobDir.ConfigPath(postfix, next.Try), &next, d.warn); err != nil {
		result.Err = fmt.Errorf("lifecycle: write resubmit config: %w", err)
		return result
	}
	return result
}

// Status runs the Reconciler in read-only mode and returns its
// classification counts for each resolved Dataset (spec.md §4.8
// `status`).
func (d *Driver) Status(ctx context.Context, t Target) (reports []StatusReport, err error) {
	defer func() { err = recoverInvariantViolation(recover(), err) }()

	cfg, err := d.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := d.resolveAll(ctx, cfg, t)
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		reports = append(reports, d.statusOne(ctx, ref, t.Tag))
	}
	return reports, nil
}

func (d *Driver) statusOne(ctx context.Context, ref datasetRef, tag string) StatusReport {
	report := StatusReport{Era: ref.era, Channel: ref.channel, Dataset: ref.ds.Name}

	postfix := home.Postfix(ref.channel, tag)
	jobDir := d.home.JobDir(ref.era, ref.channel, ref.ds.Name)

	old, _, err := latestAttempt(jobDir, postfix)
	if err != nil {
		report.Err = err
		return report
	}
	if old == nil {
		report.Err = fmt.Errorf("lifecycle: dataset %s has never been submitted", ref.ds.Name)
		return report
	}
	report.Try = old.Try

	joblistPath := filepath.Join(old.CfgDir, old.JobList)
	report.Result = d.reconcileOne(ctx, old, joblistPath, Options{})
	return report
}

// isSkimChannel reports whether channel is the skim variant (spec.md
// §3: case-insensitive "skim" substring).
func isSkimChannel(channel string) bool {
	return strings.Contains(strings.ToLower(channel), "skim")
}

// Package lifecycle implements the LifecycleDriver: the top-level flow
// that turns a dataset declaration into a durable JobConfig, submits
// its chunks, and on resubmission runs the Reconciler, plans the diff,
// and submits again — preserving chunk identity across attempts.
//
// Driver does not contain reconciliation or chunking logic itself — it
// only wires SampleResolver, ChunkPlanner, JobConfig, StorageAdapter,
// BatchAdapter, and Reconciler together, matching the teacher's
// orchestrator-as-pure-wiring convention.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"anabatch/internal/batch"
	"anabatch/internal/chunkplan"
	"anabatch/internal/config"
	"anabatch/internal/home"
	"anabatch/internal/jobconfig"
	"anabatch/internal/logging"
	"anabatch/internal/reconcile"
	"anabatch/internal/sample"
	"anabatch/internal/storage"
)

// ErrUnknownChannel is returned when a target names a channel absent
// from the configuration store.
var ErrUnknownChannel = errors.New("lifecycle: unknown channel")

// ErrSkimHaddUnsupported is returned by Hadd for the skim channel,
// which produces one output per input file rather than one per
// chunk and so has nothing sensible to merge (spec.md §4.8).
var ErrSkimHaddUnsupported = errors.New("lifecycle: skim channel does not support hadd")

// ErrResubNeeded is returned by Hadd and Clean when the dataset still
// has chunks needing resubmission and force was not requested.
var ErrResubNeeded = errors.New("lifecycle: chunks still need resubmission; pass Force to override")

// Target selects the (era, channel) × Dataset set an operation runs
// against, plus the sample-resolution filters from spec.md §6's common
// flag set (`-y ERA+ -c CHANNEL+ -s FILTER* -x VETO* --dtype DT+ -t TAG`).
type Target struct {
	Eras      []string
	Channels  []string
	Filters   []string
	Vetoes    []string
	DataTypes []string
	Tag       string
}

// Options carries the submit/resubmit-shared knobs from spec.md §6
// (`-n NFPJ --split N -d`).
type Options struct {
	NFilesPerJob int  // 0 = use config default / per-sample value
	Split        int  // integer divisor applied after NFilesPerJob resolution
	DryRun       bool // build the submission but never call BatchAdapter.Submit
	Force        bool // override the resub-needed gate for Hadd/Clean
	Concurrency  int  // Reconciler validation pool size, 0 = default
}

// Driver is the LifecycleDriver: submit, resubmit, status, hadd, clean.
type Driver struct {
	home    home.Dir
	store   config.Store
	samples *sample.Resolver
	storage storage.Adapter
	batch   batch.Adapter
	logger  *slog.Logger
	now     func() time.Time
	backoff time.Duration
}

// New constructs a Driver. samples, st, and ba are the collaborating
// capabilities; home is the on-disk layout root; store persists the
// user configuration.
func New(homeDir home.Dir, store config.Store, samples *sample.Resolver, st storage.Adapter, ba batch.Adapter, logger *slog.Logger) *Driver {
	logger = logging.Default(logger).With("component", "lifecycle")
	return &Driver{
		home:    homeDir,
		store:   store,
		samples: samples,
		storage: st,
		batch:   ba,
		logger:  logger,
		now:     time.Now,
		backoff: 2 * time.Second,
	}
}

// DatasetResult is one Dataset's outcome from Submit or Resubmit.
type DatasetResult struct {
	Era     string
	Channel string
	Dataset string
	Try     int
	BatchID string
	NoOp    bool // Resubmit found nothing to resubmit
	Err     error
}

// StatusReport is one Dataset's read-only reconciliation snapshot.
type StatusReport struct {
	Era     string
	Channel string
	Dataset string
	Try     int
	Result  *reconcile.Result
	Err     error
}

// HaddResult is one Dataset's merge outcome.
type HaddResult struct {
	Era     string
	Channel string
	Dataset string
	Archive string
	Skipped bool // skim channel, or resub still needed without Force
	Err     error
}

// CleanResult is one Dataset's cleanup outcome.
type CleanResult struct {
	Era        string
	Channel    string
	Dataset    string
	RemovedDir bool // the whole job directory was removed, not just its contents
	Err        error
}

// datasetRef bundles one resolved dataset with the (era, channel) it
// was resolved under, since sample.Dataset itself carries neither.
type datasetRef struct {
	era     string
	channel string
	ds      sample.Dataset
}

// resolveAll resolves every (era, channel) pair in t against the
// configured channel/era catalogues.
func (d *Driver) resolveAll(ctx context.Context, cfg *config.Config, t Target) ([]datasetRef, error) {
	var refs []datasetRef
	for _, era := range t.Eras {
		if _, ok := cfg.Eras[era]; !ok {
			return nil, fmt.Errorf("lifecycle: unknown era %q", era)
		}
		for _, channel := range t.Channels {
			if _, ok := cfg.Channels[channel]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
			}
			datasets, err := d.samples.Resolve(era, channel, t.Filters, t.Vetoes, t.DataTypes)
			if err != nil {
				return nil, fmt.Errorf("lifecycle: resolve %s/%s: %w", era, channel, err)
			}
			for _, ds := range datasets {
				refs = append(refs, datasetRef{era: era, channel: channel, ds: ds})
			}
		}
	}
	return refs, nil
}

// loadConfig loads the user configuration, bootstrapping it if absent.
func (d *Driver) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := d.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: load config: %w", err)
	}
	if cfg == nil {
		if err := config.Bootstrap(ctx, d.store); err != nil {
			return nil, fmt.Errorf("lifecycle: bootstrap config: %w", err)
		}
		cfg = config.DefaultConfig()
	}
	return cfg, nil
}

// Submit resolves every (era, channel) × Dataset in t, partitions its
// input files into chunks, writes a try=1 JobConfig, and submits it
// (spec.md §4.8 `submit`). Per-dataset fatal errors abort only that
// dataset; an InvariantViolation anywhere aborts the whole call.
func (d *Driver) Submit(ctx context.Context, t Target, opts Options) (results []DatasetResult, err error) {
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
		res := d.submitOne(ctx, cfg, ref, t.Tag, opts)
		results = append(results, res)
		if res.Err != nil {
			d.logger.Warn("submit failed for dataset", "dataset", ref.ds.Name, "error", res.Err)
		}
	}
	return results, nil
}

func (d *Driver) submitOne(ctx context.Context, cfg *config.Config, ref datasetRef, tag string, opts Options) DatasetResult {
	result := DatasetResult{Era: ref.era, Channel: ref.channel, Dataset: ref.ds.Name, Try: 1}

	channelCfg := cfg.Channels[ref.channel]
	jobDir := d.home.JobDir(ref.era, ref.channel, ref.ds.Name)
	if err := jobDir.EnsureExists(); err != nil {
		result.Err = err
		return result
	}

	postfix := home.Postfix(ref.channel, tag)
	outDir := storage.ExpandPath(cfg.Directories.OutDir, d.home.Root())

	files, err := d.listInputFiles(ctx, ref.ds.Paths)
	if err != nil {
		result.Err = fmt.Errorf("lifecycle: list input files for %s: %w", ref.ds.Name, err)
		return result
	}
	if len(files) == 0 {
		result.Err = fmt.Errorf("lifecycle: dataset %s resolved to no input files", ref.ds.Name)
		return result
	}

	nfpj := chunkplan.EffectiveNFilesPerJob(opts.NFilesPerJob, perSampleNFiles(ref.ds), cfg.Defaults.NFilesPerJob, opts.Split)
	chunks := chunkplan.Plan(files, nfpj, nil)

	jc := &jobconfig.Config{
		Time:         d.now(),
		Group:        ref.ds.Group,
		Paths:        ref.ds.Paths,
		Name:         ref.ds.Name,
		NEvents:      ref.ds.DeclaredEventCount,
		DataType:     ref.ds.DataType,
		Channel:      ref.channel,
		Module:       channelCfg.Module,
		ExtraOpts:    mergeOpts(map[string]string{"system": d.batch.System(), "queue": cfg.Defaults.Queue}, mergeOpts(channelCfg.ExtraOpts, ref.ds.PerSampleOpts)),
		JobName:      jobconfig.NewJobName(),
		Tag:          tag,
		Postfix:      postfix,
		Try:          1,
		OutDir:       outDir,
		JobDir:       jobDir.Root(),
		CfgDir:       jobDir.ConfigDir(),
		LogDir:       jobDir.LogDir(),
		CfgName:      filepath.Base(jobDir.ConfigPath(postfix, 1)),
		JobList:      filepath.Base(jobDir.ArgListPath(postfix, 1)),
		NFiles:       len(files),
		Files:        files,
		NFilesPerJob: nfpj,
		NChunks:      len(chunks),
		Chunks:       chunkIndices(chunks),
		ChunkMap:     chunkMap(chunks),
		InternalID:   jobconfig.NewInternalID(),
	}

	if err := d.submitChunks(ctx, jc, chunks, opts); err != nil {
		result.Err = err
		return result
	}
	if len(jc.JobIDs) > 0 {
		result.BatchID = jc.JobIDs[len(jc.JobIDs)-1]
	}

	cfgPath := jobDir.ConfigPath(postfix, jc.Try)
	if err := jobconfig.Write(cfgPath, jc, d.warn); err != nil {
		result.Err = fmt.Errorf("lifecycle: write job config: %w", err)
		return result
	}
	return result
}

// submitChunks writes the joblist and a submission script for chunks,
// calls BatchAdapter.Submit, and appends the returned id to jc.JobIDs.
// The attempt's JobConfig is written by the caller only after Submit
// returns, so aborting before that leaves the joblist and script but no
// config for this try: a later Resubmit works from the previous try's
// config (a first submit leaves the dataset looking never submitted),
// and an id already returned by Submit is not recorded anywhere.
func (d *Driver) submitChunks(ctx context.Context, jc *jobconfig.Config, chunks []chunkplan.Chunk, opts Options) error {
	joblistPath := filepath.Join(jc.CfgDir, jc.JobList)
	if err := writeJoblist(joblistPath, jc.Channel, jc.Postfix, chunks); err != nil {
		return fmt.Errorf("lifecycle: write job list: %w", err)
	}

	scriptPath := filepath.Join(jc.CfgDir, "run"+jc.Postfix+"_try"+strconv.Itoa(jc.Try)+".sh")
	if err := writeRunScript(scriptPath, jc.Module); err != nil {
		return fmt.Errorf("lifecycle: write run script: %w", err)
	}

	if opts.DryRun {
		return nil
	}

	var id string
	err := retryOnce(ctx, d.backoff, func() error {
		var submitErr error
		id, submitErr = d.batch.Submit(ctx, scriptPath, joblistPath, batch.Options{
			Name:  jc.JobName,
			Queue: jc.ExtraOpts["queue"],
		})
		return submitErr
	})
	if err != nil {
		return fmt.Errorf("lifecycle: batch submit: %w", err)
	}
	jc.JobIDs = append(jc.JobIDs, id)
	return nil
}

// perSampleNFiles recovers a per-sample nfiles_per_job override, if set.
func perSampleNFiles(ds sample.Dataset) int {
	v, ok := ds.PerSampleOpts["nfiles_per_job"]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mergeOpts(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func chunkIndices(chunks []chunkplan.Chunk) []int {
	idx := make([]int, len(chunks))
	for i, c := range chunks {
		idx[i] = c.Index
	}
	sort.Ints(idx)
	return idx
}

func chunkMap(chunks []chunkplan.Chunk) map[int][]string {
	m := make(map[int][]string, len(chunks))
	for _, c := range chunks {
		m[c.Index] = c.Files
	}
	return m
}

// writeJoblist writes one per-task command line per chunk, in
// ascending chunk-index order (spec.md §5 ordering guarantees).
// Analysis channels get `-t <channel>_<index>`; skim channels get
// `-i <file...>`, matching the argument shapes the Reconciler's
// pending-job regexes recover identity from.
func writeJoblist(path, channel, postfix string, chunks []chunkplan.Chunk) error {
	sorted := append([]chunkplan.Chunk(nil), chunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var b strings.Builder
	for _, c := range sorted {
		if strings.Contains(strings.ToLower(channel), "skim") {
			fmt.Fprintf(&b, "anabatch run -i %s\n", strings.Join(c.Files, " "))
		} else {
			fmt.Fprintf(&b, "anabatch run -t %s_%d\n", channel, c.Index)
		}
	}
	return writeFileAtomic(path, []byte(b.String()), 0o640)
}

// writeRunScript writes the thin wrapper the batch scheduler executes
// per task: it re-invokes the anabatch binary with the task's line
// from the joblist, letting `anabatch run` (spec.md §6) host the
// module-execution logic that lives outside this engine.
func writeRunScript(path, module string) error {
	content := fmt.Sprintf("#!/bin/sh\n# module=%s\nexec \"$@\"\n", module)
	return writeFileAtomic(path, []byte(content), 0o750)
}

func (d *Driver) warn(msg string) {
	d.logger.Warn(msg)
}

// listInputFiles lists every *.root file directly under each of paths
// via StorageAdapter, returning full paths. Input files are not
// re-sorted here; ChunkPlanner sorts before partitioning.
func (d *Driver) listInputFiles(ctx context.Context, paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		names, err := d.storage.List(ctx, p, "*.root")
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			files = append(files, filepath.Join(p, n))
		}
	}
	return files, nil
}

// writeFileAtomic writes data to path via a temp file + rename, the
// same atomic-write idiom used for JobConfig and the user config store.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place for %s: %w", path, err)
	}
	return nil
}

// recoverInvariantViolation converts a recovered *reconcile.InvariantViolation
// panic back into an error, aborting the whole call (spec.md §7). Any
// other recovered value is a genuine bug and is re-panicked.
func recoverInvariantViolation(r any, existing error) error {
	if r == nil {
		return existing
	}
	if iv, ok := r.(*reconcile.InvariantViolation); ok {
		return iv
	}
	panic(r)
}

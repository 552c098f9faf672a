package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"anabatch/internal/config"
	"anabatch/internal/home"
	"anabatch/internal/jobconfig"
	"anabatch/internal/storage"
)

// Hadd reconciles each Dataset, refuses to merge while chunks still
// need resubmission (unless Force), and merges the SUCCESS chunks'
// outputs into a single archive per Dataset (spec.md §4.8 `hadd`).
// The skim channel produces one output per input file rather than one
// per chunk, so it is not merged: its result is marked Skipped with Err
// set to ErrSkimHaddUnsupported and a warning is logged, while the other
// Datasets are still processed and Hadd itself returns no error.
func (d *Driver) Hadd(ctx context.Context, t Target, opts Options) (results []HaddResult, err error) {
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
		results = append(results, d.haddOne(ctx, cfg, ref, t.Tag, opts))
	}
	return results, nil
}

func (d *Driver) haddOne(ctx context.Context, cfg *config.Config, ref datasetRef, tag string, opts Options) HaddResult {
	result := HaddResult{Era: ref.era, Channel: ref.channel, Dataset: ref.ds.Name}

	if isSkimChannel(ref.channel) {
		result.Skipped = true
		result.Err = ErrSkimHaddUnsupported
		d.logger.Warn("hadd skipped: skim channel has no per-chunk merge target", "dataset", ref.ds.Name)
		return result
	}

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

	joblistPath := filepath.Join(old.CfgDir, old.JobList)
	rec := d.reconcileOne(ctx, old, joblistPath, opts)

	if len(rec.ResubFiles) > 0 && !opts.Force {
		result.Skipped = true
		result.Err = ErrResubNeeded
		return result
	}

	var sources []string
	for _, idx := range rec.Good {
		sources = append(sources, filepath.Join(old.OutDir, fmt.Sprintf("%s%s_%d.root", old.Name, old.Postfix, idx)))
	}
	if len(sources) == 0 {
		result.Err = fmt.Errorf("lifecycle: no successful chunks to merge for %s", ref.ds.Name)
		return result
	}

	picoDir := storage.ExpandPath(cfg.Directories.PicoDir, d.home.Root())
	archive := filepath.Join(picoDir, old.Name+"_"+old.Channel+old.Tag+".root")

	err = retryOnce(ctx, d.backoff, func() error {
		return d.storage.Hadd(ctx, sources, archive)
	})
	if err != nil {
		result.Err = fmt.Errorf("lifecycle: hadd: %w", err)
		return result
	}
	result.Archive = archive
	return result
}

// Clean reconciles each Dataset (same gate as Hadd), then removes
// per-chunk outputs, per-attempt configs, and log files. If nothing
// remains under the Dataset's job directory afterward, the whole
// directory is removed (spec.md §4.8 `clean`).
func (d *Driver) Clean(ctx context.Context, t Target, opts Options) (results []CleanResult, err error) {
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
		results = append(results, d.cleanOne(ctx, ref, t.Tag, opts))
	}
	return results, nil
}

func (d *Driver) cleanOne(ctx context.Context, ref datasetRef, tag string, opts Options) CleanResult {
	result := CleanResult{Era: ref.era, Channel: ref.channel, Dataset: ref.ds.Name}

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

	joblistPath := filepath.Join(old.CfgDir, old.JobList)
	rec := d.reconcileOne(ctx, old, joblistPath, opts)
	if len(rec.ResubFiles) > 0 && !opts.Force {
		result.Err = ErrResubNeeded
		return result
	}

	if err := d.archiveConfig(ref, old); err != nil {
		result.Err = fmt.Errorf("lifecycle: archive config: %w", err)
		return result
	}

	if err := d.removeOutputs(ctx, old); err != nil {
		result.Err = fmt.Errorf("lifecycle: remove outputs: %w", err)
		return result
	}
	if err := os.RemoveAll(old.CfgDir); err != nil {
		result.Err = fmt.Errorf("lifecycle: remove config directory: %w", err)
		return result
	}
	if err := os.RemoveAll(old.LogDir); err != nil {
		result.Err = fmt.Errorf("lifecycle: remove log directory: %w", err)
		return result
	}

	entries, err := os.ReadDir(jobDir.Root())
	if err == nil && len(entries) == 0 {
		if err := os.Remove(jobDir.Root()); err == nil {
			result.RemovedDir = true
		}
	}
	return result
}

// removeOutputs deletes every chunk's output file via StorageAdapter.
// Analysis channels write one file per chunk index; skim channels
// write one file per input file, named after the input with the
// channel postfix appended.
func (d *Driver) removeOutputs(ctx context.Context, old *jobconfig.Config) error {
	for idx, files := range old.ChunkMap {
		if isSkimChannel(old.Channel) {
			for _, f := range files {
				base := filepath.Base(f)
				name := strings.TrimSuffix(base, filepath.Ext(base)) + old.Postfix + ".root"
				if err := d.storage.Remove(ctx, filepath.Join(old.OutDir, name)); err != nil {
					return err
				}
			}
			continue
		}
		name := fmt.Sprintf("%s%s_%d.root", old.Name, old.Postfix, idx)
		if err := d.storage.Remove(ctx, filepath.Join(old.OutDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// archiveConfig gzip-compresses the retired attempt's JobConfig into
// <home>/archive/<era>/<channel>/<dataset>/, preserving an audit trail
// outside the per-dataset job directory so the directory itself can
// still be removed once empty.
func (d *Driver) archiveConfig(ref datasetRef, old *jobconfig.Config) error {
	src := filepath.Join(old.CfgDir, old.CfgName)
	raw, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", src, err)
	}

	archiveDir := filepath.Join(d.home.Root(), "archive", ref.era, ref.channel, ref.ds.Name)
	if err := os.MkdirAll(archiveDir, 0o750); err != nil {
		return fmt.Errorf("create archive directory %s: %w", archiveDir, err)
	}

	dst := filepath.Join(archiveDir, old.CfgName+".gz")
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(raw); err != nil {
		gw.Close()
		return fmt.Errorf("compress %s: %w", dst, err)
	}
	return gw.Close()
}

// Package home manages the anabatch home directory and per-job directory
// layouts described in spec.md §6.
//
// Two layouts live here:
//
//   - Dir: the application home directory, holding the user configuration
//     store (era/channel settings).
//   - JobDir: the per-(era,channel,dataset) job directory, holding
//     per-attempt configs, per-task job lists, and logs.
//
// Layout:
//
//	<home>/
//	  config.json                        (user config store)
//	  jobs/<era>/<channel>/<dataset>/
//	    config/
//	      jobconfig_<postfix>_try<k>.json
//	      jobarglist_<postfix>_try<k>.txt
//	    log/
//	      ...<job_id>.<task_id>.log
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents the anabatch application home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/anabatch
//   - macOS:   ~/Library/Application Support/anabatch
//   - Windows: %APPDATA%/anabatch
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "anabatch")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the user config store file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.json")
}

// JobsRoot returns the root directory under which all per-dataset job
// directories live.
func (d Dir) JobsRoot() string {
	return filepath.Join(d.root, "jobs")
}

// JobDir returns the per-(era,channel,dataset) job directory.
func (d Dir) JobDir(era, channel, dataset string) JobDir {
	return JobDir{root: filepath.Join(d.JobsRoot(), era, channel, dataset)}
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}

// JobDir is the on-disk layout for one dataset's submission history
// under one (era, channel) pair.
type JobDir struct {
	root string
}

// Root returns the job directory path.
func (j JobDir) Root() string { return j.root }

// ConfigDir returns the directory holding per-attempt JobConfig and
// job-arglist files.
func (j JobDir) ConfigDir() string { return filepath.Join(j.root, "config") }

// LogDir returns the directory holding per-task batch log files.
func (j JobDir) LogDir() string { return filepath.Join(j.root, "log") }

// EnsureExists creates the job directory's config and log subdirectories.
func (j JobDir) EnsureExists() error {
	for _, dir := range []string{j.ConfigDir(), j.LogDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create job directory %s: %w", dir, err)
		}
	}
	return nil
}

// Postfix returns the deterministic suffix `_<channel><tag>` used to tag
// outputs and configs (spec.md glossary: Postfix).
func Postfix(channel, tag string) string {
	return "_" + channel + tag
}

// ConfigPath returns the path to a specific attempt's JobConfig file.
func (j JobDir) ConfigPath(postfix string, try int) string {
	return filepath.Join(j.ConfigDir(), fmt.Sprintf("jobconfig%s_try%d.json", postfix, try))
}

// ArgListPath returns the path to a specific attempt's job-arglist file.
func (j JobDir) ArgListPath(postfix string, try int) string {
	return filepath.Join(j.ConfigDir(), fmt.Sprintf("jobarglist%s_try%d.txt", postfix, try))
}

// GlobConfigs returns the glob pattern matching all attempt JobConfig
// files for a given postfix, for lexicographic+numeric discovery of
// attempt history (spec.md §5 ordering guarantees).
func (j JobDir) GlobConfigs(postfix string) string {
	return filepath.Join(j.ConfigDir(), fmt.Sprintf("jobconfig%s_try*.json", postfix))
}

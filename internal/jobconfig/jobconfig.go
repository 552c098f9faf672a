// Package jobconfig implements the JobConfig record (spec.md §3, §4.6,
// component C6): a durable, atomically-written snapshot of one
// submission attempt.
package jobconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
)

// Config is one submission attempt's durable snapshot, written after
// every attempt with a filename that encodes Try so history is
// preserved (spec.md §3). Field order mirrors the schema in spec.md §3
// exactly.
type Config struct {
	Time      time.Time         `json:"time"`
	Group     string            `json:"group"`
	Paths     []string          `json:"paths"`
	Name      string            `json:"name"`
	NEvents   int64             `json:"nevents"`
	DataType  string            `json:"data_type"`
	Channel   string            `json:"channel"`
	Module    string            `json:"module"`
	ExtraOpts map[string]string `json:"extra_opts,omitempty"`

	JobName string `json:"job_name"`
	JobTag  string `json:"job_tag"`
	Tag     string `json:"tag"`
	Postfix string `json:"postfix"`

	Try int `json:"try"`

	JobIDs []string `json:"job_ids"`

	OutDir string `json:"outdir"`
	JobDir string `json:"jobdir"`
	CfgDir string `json:"cfgdir"`
	LogDir string `json:"logdir"`

	CfgName string `json:"cfgname"`
	JobList string `json:"joblist"`

	NFiles       int              `json:"nfiles"`
	Files        []string         `json:"files"`
	NFilesPerJob int              `json:"nfiles_per_job"`
	NChunks      int              `json:"nchunks"`
	Chunks       []int            `json:"chunks"`
	ChunkMap     map[int][]string `json:"chunk_map"`

	// InternalID is a uuid v7 (time-sortable) correlation id for log
	// and attempt-history cross-referencing. It does not replace any
	// on-disk key named in spec.md §3 and is purely additive.
	InternalID string `json:"internal_id"`
}

// ErrInvariantViolation marks a Config that fails its own structural
// invariants (spec.md §3): chunk_map keys must equal chunks, the file
// count must equal the sum of chunk_map file counts, and chunk indices
// must be unique.
type ErrInvariantViolation struct {
	Reason string
}

func (e *ErrInvariantViolation) Error() string {
	return fmt.Sprintf("jobconfig: invariant violation: %s", e.Reason)
}

// NewJobName returns a two-word petname, used as the default job_name
// when the user supplies none.
func NewJobName() string {
	return petname.Generate(2, "_")
}

// NewInternalID returns a time-sortable correlation id for a new attempt.
func NewInternalID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Validate checks the structural invariants from spec.md §3.
func (c *Config) Validate() error {
	if len(c.ChunkMap) != len(c.Chunks) {
		return &ErrInvariantViolation{Reason: fmt.Sprintf(
			"chunk_map has %d entries but chunks has %d indices", len(c.ChunkMap), len(c.Chunks))}
	}
	seen := make(map[int]bool, len(c.Chunks))
	for _, idx := range c.Chunks {
		if seen[idx] {
			return &ErrInvariantViolation{Reason: fmt.Sprintf("duplicate chunk index %d", idx)}
		}
		seen[idx] = true
		if _, ok := c.ChunkMap[idx]; !ok {
			return &ErrInvariantViolation{Reason: fmt.Sprintf("chunk index %d has no chunk_map entry", idx)}
		}
	}
	var sumFiles int
	for _, files := range c.ChunkMap {
		sumFiles += len(files)
	}
	if sumFiles != len(c.Files) {
		return &ErrInvariantViolation{Reason: fmt.Sprintf(
			"|files| = %d but chunk_map files sum to %d", len(c.Files), sumFiles)}
	}
	return nil
}

// Write atomically persists c to path: marshal indent, write to a
// temp file, round-trip validate, rename into place. If path already
// exists (the same attempt was written before), it is overwritten
// after emitting a warning via the warn callback, matching spec.md
// §4.6 ("emit a warning but overwrite"). warn may be nil.
func Write(path string, c *Config, warn func(msg string)) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && warn != nil {
		warn(fmt.Sprintf("jobconfig: overwriting existing attempt config at %s", path))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("jobconfig: create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("jobconfig: marshal %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o640); err != nil {
		return fmt.Errorf("jobconfig: write temp file for %s: %w", path, err)
	}

	check, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("jobconfig: read back temp file for %s: %w", path, err)
	}
	var verify Config
	if err := json.Unmarshal(check, &verify); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("jobconfig: round-trip validation failed for %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("jobconfig: rename into place for %s: %w", path, err)
	}
	return nil
}

// Read loads a Config from path.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobconfig: read %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("jobconfig: parse %s: %w", path, err)
	}
	return &c, nil
}

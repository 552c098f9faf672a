// Package config persists the user configuration store: a small set of
// known top-level keys (defaults, directories) plus two open maps
// (channels, eras), matching the "dynamic configuration dict" design
// note (spec.md §9) — represented as a tagged record rather than an
// untyped map so that known keys are type-checked, while channels and
// eras stay free-form enough for users to add their own without a
// schema migration.
//
// The Store is only loaded and saved; it does not inspect datasets, plan
// chunks, or manage job lifecycle.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/theory/jsonpath"
)

// Store persists and loads the user configuration.
type Store interface {
	// Load reads the configuration. Returns nil if none exists.
	Load(ctx context.Context) (*Config, error)

	// Save persists the configuration.
	Save(ctx context.Context, cfg *Config) error
}

// Config is the user configuration store (spec.md §6, §9): a tagged
// record with known top-level keys plus two open maps.
type Config struct {
	Defaults    Defaults                 `json:"defaults"`
	Directories Directories              `json:"directories"`
	Channels    map[string]ChannelConfig `json:"channels"`
	Eras        map[string]EraConfig     `json:"eras"`
}

// Defaults holds scalar settings that apply to every submission unless
// overridden per-channel or on the CLI.
type Defaults struct {
	System       string `json:"system"` // "HTCondor" or "SLURM"
	Queue        string `json:"queue"`
	NFilesPerJob int    `json:"nfiles_per_job"`
	StorageRoot  string `json:"storage_root"`
}

// Directories holds the on-disk layout templates (spec.md §6).
type Directories struct {
	JobDir  string `json:"jobdir"`
	LogDir  string `json:"logdir"`
	OutDir  string `json:"outdir"`
	PicoDir string `json:"picodir"`
}

// ChannelConfig describes a named processing mode.
type ChannelConfig struct {
	Module    string            `json:"module"`
	ExtraOpts map[string]string `json:"extra_opts,omitempty"`
}

// EraConfig describes a named sample catalogue.
type EraConfig struct {
	CatalogueDir string `json:"cataloguedir"`
}

// ErrUnknownKey is returned when Set/Remove is given a VAR that
// does not name a known top-level field.
type ErrUnknownKey struct {
	Key string
}

func (e *ErrUnknownKey) Error() string {
	return fmt.Sprintf("config: unknown key %q", e.Key)
}

// Get resolves a dotted VAR path against cfg using JSONPath (spec.md §6
// `get VAR`), e.g. "defaults.system" or "channels.mutau.module". An
// empty path dumps the whole config.
func Get(cfg *Config, path string) (any, error) {
	doc, err := toAny(cfg)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return doc, nil
	}

	query := "$." + path
	p, err := jsonpath.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("config: parse path %q: %w", path, err)
	}
	results := p.Select(doc)
	if len(results) == 0 {
		return nil, fmt.Errorf("config: %q not found", path)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// Set upserts a scalar field or a map entry (spec.md §6 `set VAR [KEY]
// VALUE`). VAR selects a known top-level field:
//
//	set defaults.system HTCondor       -> scalar field
//	set defaults.nfiles_per_job 5      -> scalar field, parsed as int
//	set channels mutau ModuleMuTau      -> channels[mutau].Module
//	set eras 2018 /store/catalogues/2018 -> eras[2018].CatalogueDir
func Set(cfg *Config, varName, key, value string) error {
	switch varName {
	case "defaults.system":
		cfg.Defaults.System = value
	case "defaults.queue":
		cfg.Defaults.Queue = value
	case "defaults.storage_root":
		cfg.Defaults.StorageRoot = value
	case "defaults.nfiles_per_job":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: defaults.nfiles_per_job must be an integer: %w", err)
		}
		cfg.Defaults.NFilesPerJob = n
	case "directories.jobdir":
		cfg.Directories.JobDir = value
	case "directories.logdir":
		cfg.Directories.LogDir = value
	case "directories.outdir":
		cfg.Directories.OutDir = value
	case "directories.picodir":
		cfg.Directories.PicoDir = value
	case "channels":
		if key == "" {
			return fmt.Errorf("config: set channels requires a KEY naming the channel")
		}
		if cfg.Channels == nil {
			cfg.Channels = make(map[string]ChannelConfig)
		}
		cfg.Channels[key] = ChannelConfig{Module: value}
	case "eras":
		if key == "" {
			return fmt.Errorf("config: set eras requires a KEY naming the era")
		}
		if cfg.Eras == nil {
			cfg.Eras = make(map[string]EraConfig)
		}
		cfg.Eras[key] = EraConfig{CatalogueDir: value}
	default:
		if strings.HasPrefix(varName, "channels.") && key != "" {
			name := strings.TrimPrefix(varName, "channels.")
			cc := cfg.Channels[name]
			if cc.ExtraOpts == nil {
				cc.ExtraOpts = make(map[string]string)
			}
			cc.ExtraOpts[key] = value
			cfg.Channels[name] = cc
			return nil
		}
		return &ErrUnknownKey{Key: varName}
	}
	return nil
}

// Remove deletes a known top-level field (resetting it to its zero
// value) or a map entry keyed by key (spec.md §6 `rm VAR [KEY]`).
func Remove(cfg *Config, varName, key string) error {
	switch varName {
	case "channels":
		delete(cfg.Channels, key)
	case "eras":
		delete(cfg.Eras, key)
	case "defaults.system":
		cfg.Defaults.System = ""
	case "defaults.queue":
		cfg.Defaults.Queue = ""
	case "defaults.storage_root":
		cfg.Defaults.StorageRoot = ""
	case "defaults.nfiles_per_job":
		cfg.Defaults.NFilesPerJob = 0
	case "directories.jobdir":
		cfg.Directories.JobDir = ""
	case "directories.logdir":
		cfg.Directories.LogDir = ""
	case "directories.outdir":
		cfg.Directories.OutDir = ""
	case "directories.picodir":
		cfg.Directories.PicoDir = ""
	default:
		return &ErrUnknownKey{Key: varName}
	}
	return nil
}

// SetChannel upserts a named channel with validation (spec.md §6
// `channel KEY VALUE`): the module name must be non-empty and, when
// exists reports it unknown, Set fails rather than silently accepting
// a typo.
func SetChannel(cfg *Config, name, module string, exists func(module string) bool) error {
	if module == "" {
		return fmt.Errorf("config: channel module name must not be empty")
	}
	if exists != nil && !exists(module) {
		return fmt.Errorf("config: module %q does not exist", module)
	}
	if cfg.Channels == nil {
		cfg.Channels = make(map[string]ChannelConfig)
	}
	cc := cfg.Channels[name]
	cc.Module = module
	cfg.Channels[name] = cc
	return nil
}

// SetEra upserts a named era with validation (spec.md §6 `era KEY
// VALUE`): the catalogue directory must resolve via resolves.
func SetEra(cfg *Config, name, catalogueDir string, resolves func(dir string) bool) error {
	if catalogueDir == "" {
		return fmt.Errorf("config: era catalogue directory must not be empty")
	}
	if resolves != nil && !resolves(catalogueDir) {
		return fmt.Errorf("config: catalogue directory %q does not resolve", catalogueDir)
	}
	if cfg.Eras == nil {
		cfg.Eras = make(map[string]EraConfig)
	}
	cfg.Eras[name] = EraConfig{CatalogueDir: catalogueDir}
	return nil
}

// toAny round-trips cfg through JSON into a plain map/slice document,
// the shape github.com/theory/jsonpath queries against.
func toAny(cfg *Config) (any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return doc, nil
}

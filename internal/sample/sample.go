// Package sample implements SampleResolver (spec.md §4.3, component
// C3): resolving an (era, channel, filters, vetoes, data_types) query
// against a per-era sample catalogue into a list of Datasets.
package sample

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Dataset describes one resolved sample (spec.md §3).
type Dataset struct {
	Name               string            `json:"name"`
	Group              string            `json:"group"`
	Paths              []string          `json:"paths"`
	DataType           string            `json:"data_type"`
	DeclaredEventCount int64             `json:"declared_event_count"`
	PerSampleOpts      map[string]string `json:"per_sample_opts,omitempty"`
}

// catalogue is the on-disk shape of one era's sample list.
type catalogue struct {
	Datasets []Dataset `json:"datasets"`
}

// Resolver loads per-era sample catalogues from local JSON list files
// and answers Resolve queries against them. Catalogues are memoised
// per era; an fsnotify watch invalidates a memoised entry when its
// backing file changes underneath a long-lived driver process.
type Resolver struct {
	dir     string
	logger  *slog.Logger
	mu      sync.Mutex
	cache   map[string][]Dataset
	watcher *fsnotify.Watcher
	watched map[string]bool
	closed  bool
}

// NewResolver creates a Resolver loading catalogues from dir (one file
// per era, named "<era>.json").
func NewResolver(dir string, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sample: create catalogue watcher: %w", err)
	}
	r := &Resolver{
		dir:     dir,
		logger:  logger,
		cache:   make(map[string][]Dataset),
		watcher: watcher,
		watched: make(map[string]bool),
	}
	go r.watchLoop()
	return r, nil
}

// Close releases the catalogue watcher.
func (r *Resolver) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.watcher.Close()
}

func (r *Resolver) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				r.invalidate(event.Name)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("catalogue watcher error", "error", err)
		}
	}
}

func (r *Resolver) invalidate(path string) {
	era := eraFromPath(r.dir, path)
	if era == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[era]; ok {
		delete(r.cache, era)
		r.logger.Info("catalogue invalidated", "era", era, "path", path)
	}
}

func eraFromPath(dir, path string) string {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	if ext != ".json" {
		return ""
	}
	return name[:len(name)-len(ext)]
}

func (r *Resolver) catalogueForEra(era string) ([]Dataset, error) {
	r.mu.Lock()
	if cached, ok := r.cache[era]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	path := filepath.Join(r.dir, era+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sample: load catalogue for era %s: %w", era, err)
	}
	var cat catalogue
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("sample: parse catalogue %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.watched[path] && !r.closed {
		if err := r.watcher.Add(path); err != nil {
			r.logger.Warn("failed to watch catalogue", "path", path, "error", err)
		} else {
			r.watched[path] = true
		}
	}
	r.cache[era] = cat.Datasets
	return cat.Datasets, nil
}

// Resolve returns the Datasets for era matching filters and data
// types, with vetoes excluded. filters and vetoes are glob patterns
// applied to Dataset.Name; an empty filters list matches everything.
// dataTypes restricts the result to the given set (empty = no
// restriction). channel is accepted for parity with the original
// resolution call and future per-channel catalogue variants, but the
// local-list catalogue format resolved here does not vary by channel.
func (r *Resolver) Resolve(era, channel string, filters, vetoes, dataTypes []string) ([]Dataset, error) {
	all, err := r.catalogueForEra(era)
	if err != nil {
		return nil, err
	}

	dtSet := make(map[string]bool, len(dataTypes))
	for _, dt := range dataTypes {
		dtSet[dt] = true
	}

	out := make([]Dataset, 0, len(all))
	for _, ds := range all {
		if !matchesAny(filters, ds.Name) {
			continue
		}
		if matchesAny(vetoes, ds.Name) {
			continue
		}
		if len(dtSet) > 0 && !dtSet[ds.DataType] {
			continue
		}
		out = append(out, ds)
	}
	return out, nil
}

func matchesAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

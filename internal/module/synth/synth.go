// Package synth provides stand-in Modules for the analysis and skim
// channel variants. No third-party library in the example pack (or the
// wider reachable ecosystem) implements the actual physics analysis
// code this engine schedules — that code is an external collaborator,
// named only by string in config (spec.md §4.6's Module field). These
// two Modules stand in for it the same way the teacher's chatterbox
// ingester stands in for a real log source: synthetic, deterministic
// output good enough to drive the rest of the pipeline (Reconciler,
// FileValidator, hadd) end to end.
package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"anabatch/internal/module"
	"anabatch/internal/validate"
)

const defaultEventsPerFile = 1000

// NewAnalysis constructs the analysis-variant stand-in Module. Params
// recognizes "events_per_file" (default 1000).
func NewAnalysis(params map[string]string) (module.Module, error) {
	n, err := eventsPerFile(params)
	if err != nil {
		return nil, err
	}
	return analysisModule{eventsPerFile: n}, nil
}

// NewSkim constructs the skim-variant stand-in Module. Params
// recognizes "events_per_file" (default 1000).
func NewSkim(params map[string]string) (module.Module, error) {
	n, err := eventsPerFile(params)
	if err != nil {
		return nil, err
	}
	return skimModule{eventsPerFile: n}, nil
}

func eventsPerFile(params map[string]string) (int, error) {
	v, ok := params["events_per_file"]
	if !ok || v == "" {
		return defaultEventsPerFile, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("synth: events_per_file must be an integer: %w", err)
	}
	return n, nil
}

// analysisModule writes one output file for the whole chunk, named
// "<name><postfix>_<index>.root", with a sidecar "tree"/"cutflow"
// contract (spec.md §4.4).
type analysisModule struct {
	eventsPerFile int
}

func (m analysisModule) Run(ctx context.Context, opts module.Options) error {
	total := m.eventsPerFile * len(opts.Files)
	if opts.MaxEvents > 0 && total > opts.MaxEvents {
		total = opts.MaxEvents
	}
	name := fmt.Sprintf("%s%s_%d.root", opts.Name, opts.Postfix, opts.ChunkIndex)
	return writeOutput(opts.OutDir, name, map[string]int{"tree": total}, []int{total})
}

// skimModule writes one output file per input file, named
// "<input-base><postfix>.root", with a sidecar "Events" contract.
type skimModule struct {
	eventsPerFile int
}

func (m skimModule) Run(ctx context.Context, opts module.Options) error {
	n := m.eventsPerFile
	if opts.MaxEvents > 0 && n > opts.MaxEvents {
		n = opts.MaxEvents
	}
	for _, f := range opts.Files {
		base := filepath.Base(f)
		name := trimExt(base) + opts.Postfix + ".root"
		if err := writeOutput(opts.OutDir, name, map[string]int{"Events": n}, nil); err != nil {
			return err
		}
	}
	return nil
}

func trimExt(base string) string {
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

func writeOutput(outDir, name string, trees map[string]int, cutflow []int) error {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("synth: create output directory %s: %w", outDir, err)
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, []byte("synthetic output\n"), 0o640); err != nil {
		return fmt.Errorf("synth: write %s: %w", path, err)
	}
	return validate.WriteSidecar(path, trees, cutflow)
}

// Package module defines the pluggable analysis-code boundary
// (spec.md §4.6's "Module" field): the named unit of work a chunk's
// task line ultimately runs. The physics/analysis logic itself is
// external to this engine — a channel's config names a Module, and
// `anabatch run` looks it up in a Registry and calls it with the
// chunk's resolved input files.
//
// This mirrors the teacher's ingester Factory pattern (a string-keyed
// map of constructors wired explicitly in main, not self-registering
// via init): RegisterFactory/buildFactories in cmd/gastrolog/main.go.
package module

import "context"

// Options carries everything a Module needs to process one chunk (or,
// for the skim variant, one input file) and write its output.
type Options struct {
	Files      []string          // this task's input files
	ChunkIndex int               // analysis variant: the chunk index; skim: unused
	Name       string            // dataset name
	Channel    string            // channel name
	Postfix    string            // "_<channel><tag>"
	OutDir     string            // directory outputs are written to
	DataType   string            // dataset data_type
	ExtraOpts  map[string]string // channel/per-sample extra options
	MaxEvents  int               // cap on events written, 0 = unlimited (debug runs)
}

// Module processes one task's assigned input files and writes its
// output file(s) under Options.OutDir, following the naming convention
// for its channel variant (spec.md §6: one output per chunk for
// analysis channels, one output per input file for skim channels).
type Module interface {
	Run(ctx context.Context, opts Options) error
}

// Factory constructs a Module from channel-level parameters.
type Factory func(params map[string]string) (Module, error)

// Registry maps a config-file Module name to its Factory, the same
// shape as the teacher's orchestrator.Factories.Ingesters map.
type Registry map[string]Factory

// Lookup resolves name against the registry.
func (r Registry) Lookup(name string) (Factory, bool) {
	f, ok := r[name]
	return f, ok
}

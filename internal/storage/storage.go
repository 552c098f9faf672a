// Package storage implements the uniform ls/cp/rm/mkdir/hadd capability
// set (spec.md §4.1, component C1 StorageAdapter) over local, mounted,
// and URL-prefixed remote trees.
//
// Paths containing the sentinel "$PATH" are expanded against the
// adapter's root before any operation runs; the sentinel is engine-private
// and must never reach a shell verbatim (spec.md §9).
package storage

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IOError is returned when ensure=true and the target path does not exist.
type IOError struct {
	Path string
}

func (e *IOError) Error() string { return fmt.Sprintf("path does not exist: %s", e.Path) }

// ExecFail is returned when an external tool invoked by the adapter
// exits with a non-zero status.
type ExecFail struct {
	Cmd    string
	Output string
	Err    error
}

func (e *ExecFail) Error() string {
	return fmt.Sprintf("command failed: %s: %v\n%s", e.Cmd, e.Err, e.Output)
}

func (e *ExecFail) Unwrap() error { return e.Err }

var errNotImplemented = errors.New("storage: operation not implemented by this adapter")

// Adapter is the uniform capability set every storage backend implements.
// Implementations: local (mounted filesystem), s3, azblob, gcs. A
// "user-defined" variant can be added by implementing this interface.
type Adapter interface {
	// Root returns the adapter's root path, used to resolve the $PATH
	// sentinel.
	Root() string

	// Exists reports whether path exists. If ensure is true and the path
	// is missing, Exists returns an *IOError instead of (false, nil).
	Exists(ctx context.Context, path string, ensure bool) (bool, error)

	// List returns entries directly under path matching the shell-style
	// glob pattern (empty pattern = "*").
	List(ctx context.Context, path, pattern string) ([]string, error)

	// Copy copies src to dst. Either may be a local or adapter-native path.
	Copy(ctx context.Context, src, dst string) error

	// Remove deletes path (recursively, if a directory).
	Remove(ctx context.Context, path string) error

	// Mkdir creates path and any missing parents.
	Mkdir(ctx context.Context, path string) error

	// Chmod sets path's permission bits. Adapters with no permission
	// model (most object stores) treat this as a no-op.
	Chmod(ctx context.Context, path string, mode string) error

	// Hadd merges sources into a single target file. Adapters whose
	// target is a remote URL stage the merge into a local temp
	// directory first, then copy the result to target.
	Hadd(ctx context.Context, sources []string, target string) error
}

// ExpandPath replaces the $PATH sentinel in path with root. It never
// invokes a shell, so shell expansion can never observe the sentinel
// (spec.md §9).
func ExpandPath(path, root string) string {
	return strings.ReplaceAll(path, "$PATH", root)
}

// MatchGlob reports whether name matches a shell-style glob pattern
// (*, ?, [...]) using doublestar semantics. An empty pattern matches
// everything.
func MatchGlob(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, name)
	if err != nil {
		return false
	}
	return ok
}

// FilterGlob returns the subset of names matching pattern.
func FilterGlob(pattern string, names []string) []string {
	if pattern == "" {
		return names
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if MatchGlob(pattern, n) {
			out = append(out, n)
		}
	}
	return out
}

// runExternal shells out to an external CLI tool. It runs the real
// `hadd` binary from the analysis software stack, both for the local
// adapter's Hadd and for the staged merge of the remote adapters; their
// other operations go through the cloud SDKs. The batch adapters use the
// same external-tool-wrapper idiom for condor_submit and sbatch.
func runExternal(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ExecFail{Cmd: name + " " + strings.Join(args, " "), Output: string(out), Err: err}
	}
	return nil
}

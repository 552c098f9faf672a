package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Local is a StorageAdapter over a locally mounted filesystem path
// (including network filesystems mounted into the local tree).
type Local struct {
	root string
}

var _ Adapter = (*Local)(nil)

// NewLocal creates a Local adapter rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) Root() string { return l.root }

func (l *Local) resolve(path string) string {
	return ExpandPath(path, l.root)
}

func (l *Local) Exists(ctx context.Context, path string, ensure bool) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		if ensure {
			return false, &IOError{Path: path}
		}
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

func (l *Local) List(ctx context.Context, path, pattern string) ([]string, error) {
	full := l.resolve(path)
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return FilterGlob(pattern, names), nil
}

func (l *Local) Copy(ctx context.Context, src, dst string) error {
	srcPath := l.resolve(src)
	dstPath := l.resolve(dst)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o750); err != nil {
		return fmt.Errorf("mkdir parent of %s: %w", dst, err)
	}
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

func (l *Local) Remove(ctx context.Context, path string) error {
	if err := os.RemoveAll(l.resolve(path)); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (l *Local) Mkdir(ctx context.Context, path string) error {
	if err := os.MkdirAll(l.resolve(path), 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func (l *Local) Chmod(ctx context.Context, path string, mode string) error {
	m, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return fmt.Errorf("chmod %s: invalid mode %q: %w", path, mode, err)
	}
	if err := os.Chmod(l.resolve(path), os.FileMode(m)); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// Hadd merges sources into target using the real `hadd` tool from the
// analysis software stack, matching the original system's use of an
// external merge binary rather than a reimplementation of the ROOT file
// format (spec.md §4.1, §6).
func (l *Local) Hadd(ctx context.Context, sources []string, target string) error {
	targetPath := l.resolve(target)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o750); err != nil {
		return fmt.Errorf("mkdir parent of hadd target: %w", err)
	}
	args := append([]string{"-f", targetPath}, resolveAll(l, sources)...)
	return runExternal(ctx, "hadd", args...)
}

func resolveAll(l *Local, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = l.resolve(p)
	}
	return out
}

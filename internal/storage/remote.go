package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// stageAndHadd implements the common remote-hadd shape shared by every
// remote adapter (spec.md §4.1: "hadd may stage into a temporary
// directory when target is a remote URL, then copy"): download sources
// to a local temp directory, run the real `hadd` tool, upload the
// result, clean up. download and upload are adapter-specific callbacks.
func stageAndHadd(ctx context.Context, sources []string, target string, download func(ctx context.Context, src, localPath string) error, upload func(ctx context.Context, localPath, dst string) error) error {
	tmpDir, err := os.MkdirTemp("", "anabatch-hadd-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	localSources := make([]string, 0, len(sources))
	for i, src := range sources {
		localPath := filepath.Join(tmpDir, fmt.Sprintf("in-%04d.root", i))
		if err := download(ctx, src, localPath); err != nil {
			return fmt.Errorf("stage %s: %w", src, err)
		}
		localSources = append(localSources, localPath)
	}

	localTarget := filepath.Join(tmpDir, "merged.root")
	args := append([]string{"-f", localTarget}, localSources...)
	if err := runExternal(ctx, "hadd", args...); err != nil {
		return err
	}

	if err := upload(ctx, localTarget, target); err != nil {
		return fmt.Errorf("upload merged result to %s: %w", target, err)
	}
	return nil
}

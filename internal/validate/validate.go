// Package validate implements FileValidator (spec.md §4.4, component
// C4): deciding whether a produced output file is good or corrupt by
// its event count.
//
// No third-party library in the example pack (or the wider reachable
// ecosystem) reads the ROOT TTree/TH1 format the original analysis
// tooling inspects, so this package reads a minimal self-describing
// JSON sidecar written next to each output file instead
// (`<output>.meta.json`), standing in for the real tree inspection
// while preserving the same event-count contract.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissingEvents is returned when a skim output's sidecar has no
// "Events" tree, or it has zero entries.
var ErrMissingEvents = errors.New("validate: no Events tree, or zero entries")

// ErrMissingTree is returned when an analysis output's sidecar has no
// "tree" tree recorded.
var ErrMissingTree = errors.New("validate: no tree tree recorded")

// ErrEmptyCutflow is returned when an analysis output's sidecar has no
// cutflow bins at all.
var ErrEmptyCutflow = errors.New("validate: cutflow is empty")

// ErrZeroEvents is returned when the recovered event count is zero.
var ErrZeroEvents = errors.New("validate: zero events")

// sidecar is the on-disk shape of an output file's metadata sidecar.
type sidecar struct {
	Trees   map[string]int `json:"trees"`
	Cutflow []int          `json:"cutflow"`
}

// SidecarPath returns the metadata sidecar path for an output file.
func SidecarPath(outputPath string) string {
	return outputPath + ".meta.json"
}

// Validate opens the sidecar for outputPath and returns its event
// count. channel determines which contract applies: skim channels
// (case-insensitive "skim" substring) require a non-empty "Events"
// tree; all other channels are treated as the analysis variant and
// require a "tree" tree plus a non-empty cutflow, whose first bin
// holds the event count.
//
// A return of nevents ≥ 0 with a nil error means the file is good.
// Any failure — missing sidecar, corrupt JSON, missing tree, zero
// entries — returns (-1, err) with err describing the reason; callers
// that only care about good/bad should test nevents < 0, not err.
func Validate(outputPath, channel string) (int, error) {
	path := SidecarPath(outputPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return -1, fmt.Errorf("validate %s: %w", outputPath, err)
	}

	var doc sidecar
	if err := json.Unmarshal(data, &doc); err != nil {
		return -1, fmt.Errorf("validate %s: corrupt sidecar: %w", outputPath, err)
	}

	if isSkim(channel) {
		n, ok := doc.Trees["Events"]
		if !ok || n < 1 {
			return -1, fmt.Errorf("validate %s: %w", outputPath, ErrMissingEvents)
		}
		return n, nil
	}

	if _, ok := doc.Trees["tree"]; !ok {
		return -1, fmt.Errorf("validate %s: %w", outputPath, ErrMissingTree)
	}
	if len(doc.Cutflow) == 0 {
		return -1, fmt.Errorf("validate %s: %w", outputPath, ErrEmptyCutflow)
	}
	n := doc.Cutflow[0]
	if n < 1 {
		return -1, fmt.Errorf("validate %s: %w", outputPath, ErrZeroEvents)
	}
	return n, nil
}

func isSkim(channel string) bool {
	return strings.Contains(strings.ToLower(channel), "skim")
}

// WriteSidecar writes a metadata sidecar for outputPath, used by tests
// and by any tooling that produces synthetic output files.
func WriteSidecar(outputPath string, trees map[string]int, cutflow []int) error {
	doc := sidecar{Trees: trees, Cutflow: cutflow}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal sidecar for %s: %w", outputPath, err)
	}
	return os.WriteFile(SidecarPath(outputPath), data, 0o640)
}

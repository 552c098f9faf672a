package jobconfig

import (
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Time:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Group:        "DY",
		Paths:        []string{"/store/DY_M50"},
		Name:         "DY_M50",
		Channel:      "mutau",
		Module:       "ModuleMuTau",
		JobTag:       "",
		Tag:          "_v1",
		Postfix:      "_mutau_v1",
		Try:          1,
		JobIDs:       []string{"1001"},
		OutDir:       "$PATH/DY_M50",
		JobDir:       "$PATH/jobs/DY_M50",
		CfgDir:       "$PATH/jobs/DY_M50/config",
		LogDir:       "$PATH/jobs/DY_M50/log",
		CfgName:      "jobconfig_mutau_v1_try1.json",
		JobList:      "jobarglist_mutau_v1_try1.txt",
		NFiles:       3,
		Files:        []string{"a.root", "b.root", "c.root"},
		NFilesPerJob: 2,
		NChunks:      2,
		Chunks:       []int{0, 1},
		ChunkMap: map[int][]string{
			0: {"a.root", "b.root"},
			1: {"c.root"},
		},
		InternalID: NewInternalID(),
	}
}

func TestValidateOK(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateDuplicateIndex(t *testing.T) {
	c := validConfig()
	c.Chunks = []int{0, 0}
	if err := c.Validate(); err == nil {
		t.Fatal("expected invariant violation for duplicate chunk index")
	}
}

func TestValidateMismatchedFileSum(t *testing.T) {
	c := validConfig()
	c.Files = append(c.Files, "d.root")
	if err := c.Validate(); err == nil {
		t.Fatal("expected invariant violation for |files| mismatch")
	}
}

func TestValidateChunkMapKeysMismatch(t *testing.T) {
	c := validConfig()
	c.Chunks = []int{0, 1, 2}
	if err := c.Validate(); err == nil {
		t.Fatal("expected invariant violation for chunk_map/chunks mismatch")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobconfig_mutau_v1_try1.json")
	c := validConfig()

	if err := Write(path, c, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Name != c.Name || got.NChunks != c.NChunks {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if len(got.ChunkMap) != 2 {
		t.Errorf("chunk_map round trip: got %d entries, want 2", len(got.ChunkMap))
	}
}

func TestWriteRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobconfig_bad_try1.json")
	c := validConfig()
	c.Chunks = []int{0, 0}

	if err := Write(path, c, nil); err == nil {
		t.Fatal("expected Write to reject an invalid config")
	}
}

func TestWriteOverwritesWithWarning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobconfig_mutau_v1_try1.json")
	c := validConfig()

	if err := Write(path, c, nil); err != nil {
		t.Fatalf("first Write: %v", err)
	}

	var warned bool
	c.JobIDs = append(c.JobIDs, "1002")
	if err := Write(path, c, func(msg string) { warned = true }); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if !warned {
		t.Error("expected warn callback to be invoked on overwrite")
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.JobIDs) != 2 {
		t.Errorf("JobIDs = %v, want 2 entries after overwrite", got.JobIDs)
	}
}

func TestNewJobName(t *testing.T) {
	name := NewJobName()
	if name == "" {
		t.Fatal("expected non-empty petname")
	}
}

func TestNewInternalID(t *testing.T) {
	a := NewInternalID()
	b := NewInternalID()
	if a == b {
		t.Fatal("expected distinct internal ids")
	}
}

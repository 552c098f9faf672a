package lifecycle_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anabatch/internal/batch"
	"anabatch/internal/config"
	"anabatch/internal/config/memory"
	"anabatch/internal/home"
	"anabatch/internal/lifecycle"
	"anabatch/internal/sample"
	"anabatch/internal/storage"
	"anabatch/internal/validate"
)

// fakeBatch is a minimal in-memory batch.Adapter: Submit hands out
// incrementing ids, Jobs reports whatever the test preloads.
type fakeBatch struct {
	nextID int
	submit []submission
	live   []batch.Job
}

type submission struct {
	script, joblist string
	opts            batch.Options
}

func (f *fakeBatch) System() string { return "HTCondor" }

func (f *fakeBatch) Submit(ctx context.Context, script, joblistPath string, opts batch.Options) (string, error) {
	f.nextID++
	id := strconv.Itoa(f.nextID)
	f.submit = append(f.submit, submission{script, joblistPath, opts})
	return id, nil
}

func (f *fakeBatch) Jobs(ctx context.Context, ids []string) ([]batch.Job, error) {
	return f.live, nil
}

func writeCatalogue(t *testing.T, dir, era string, datasets ...sample.Dataset) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	doc := struct {
		Datasets []sample.Dataset `json:"datasets"`
	}{Datasets: datasets}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, era+".json"), data, 0o640))
}

func writeAnalysisOutput(t *testing.T, outDir, name, postfix string, idx, nevents int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(outDir, 0o750))
	path := filepath.Join(outDir, name+postfix+"_"+strconv.Itoa(idx)+".root")
	require.NoError(t, os.WriteFile(path, []byte("root"), 0o640))
	require.NoError(t, validate.WriteSidecar(path, map[string]int{"tree": 1}, []int{nevents}))
}

// setup builds a Driver wired against a local home directory, a single
// "2018"/"mutau" dataset resolving to two input files (giving two
// chunks at nfiles_per_job=1), and a fakeBatch.
func setup(t *testing.T) (*lifecycle.Driver, home.Dir, *fakeBatch, string) {
	t.Helper()
	root := t.TempDir()
	homeDir := home.New(root)
	require.NoError(t, homeDir.EnsureExists())

	samplesDir := filepath.Join(root, "samples")
	require.NoError(t, os.MkdirAll(samplesDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(samplesDir, "a.root"), []byte("a"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(samplesDir, "b.root"), []byte("b"), 0o640))

	catalogueDir := filepath.Join(root, "catalogues")
	writeCatalogue(t, catalogueDir, "2018", sample.Dataset{
		Name:               "DY_M50",
		Group:              "DY",
		Paths:              []string{samplesDir},
		DataType:           "mc",
		DeclaredEventCount: 2000,
	})

	resolver, err := sample.NewResolver(catalogueDir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { resolver.Close() })

	local := storage.NewLocal(root)

	store := memory.NewStore()
	cfg := config.DefaultConfig()
	cfg.Defaults.NFilesPerJob = 1
	cfg.Channels["mutau"] = config.ChannelConfig{Module: "ModuleMuTau"}
	cfg.Channels["skim"] = config.ChannelConfig{Module: "ModuleSkim"}
	cfg.Eras["2018"] = config.EraConfig{CatalogueDir: catalogueDir}
	require.NoError(t, store.Save(context.Background(), cfg))

	fb := &fakeBatch{}
	driver := lifecycle.New(homeDir, store, resolver, local, fb, nil)
	return driver, homeDir, fb, root
}

func target() lifecycle.Target {
	return lifecycle.Target{Eras: []string{"2018"}, Channels: []string{"mutau"}, Tag: "_v1"}
}

func TestSubmitWritesJobConfigAndSubmitsChunks(t *testing.T) {
	driver, homeDir, fb, _ := setup(t)

	results, err := driver.Submit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].Try)
	assert.NotEmpty(t, results[0].BatchID)

	// Two input files at nfiles_per_job=1 => two chunks => one array
	// submit whose single joblist file has one line per chunk.
	assert.Len(t, fb.submit, 1)

	jobDir := homeDir.JobDir("2018", "mutau", "DY_M50")
	cfgPath := jobDir.ConfigPath(home.Postfix("mutau", "_v1"), 1)
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"try\": 1")
}

func TestSubmitDryRunSkipsBatchSubmit(t *testing.T) {
	driver, _, fb, _ := setup(t)

	results, err := driver.Submit(context.Background(), target(), lifecycle.Options{DryRun: true})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)
	assert.Empty(t, results[0].BatchID)
	assert.Empty(t, fb.submit)
}

func TestResubmitNoOpWhenEverythingSucceeded(t *testing.T) {
	driver, _, fb, root := setup(t)

	_, err := driver.Submit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)

	outDir := filepath.Join(root, "out")
	postfix := home.Postfix("mutau", "_v1")
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 0, 1000)
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 1, 1000)
	fb.live = nil // nothing left queued or running

	results, err := driver.Resubmit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].NoOp)
}

func TestResubmitReplansMissingChunk(t *testing.T) {
	driver, _, fb, root := setup(t)

	_, err := driver.Submit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)

	outDir := filepath.Join(root, "out")
	postfix := home.Postfix("mutau", "_v1")
	// Only chunk 0 produced an output; chunk 1 is missing entirely.
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 0, 1000)
	fb.live = nil

	results, err := driver.Resubmit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.False(t, results[0].NoOp)
	assert.Equal(t, 2, results[0].Try)
	assert.NotEmpty(t, results[0].BatchID)
}

func TestStatusReportsClassificationWithoutSubmitting(t *testing.T) {
	driver, _, fb, root := setup(t)

	_, err := driver.Submit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)

	outDir := filepath.Join(root, "out")
	postfix := home.Postfix("mutau", "_v1")
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 0, 1000)
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 1, 1000)
	fb.live = nil
	submitsBefore := len(fb.submit)

	reports, err := driver.Status(context.Background(), target())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.NoError(t, reports[0].Err)
	require.NotNil(t, reports[0].Result)
	assert.Len(t, reports[0].Result.Good, 2)
	assert.Len(t, fb.submit, submitsBefore)
}

func TestHaddMergesSuccessfulChunks(t *testing.T) {
	if _, err := exec.LookPath("hadd"); err != nil {
		t.Skip("hadd binary not available in this environment")
	}
	driver, _, fb, root := setup(t)

	_, err := driver.Submit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)

	outDir := filepath.Join(root, "out")
	postfix := home.Postfix("mutau", "_v1")
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 0, 1000)
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 1, 1000)
	fb.live = nil

	results, err := driver.Hadd(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.False(t, results[0].Skipped)
	assert.FileExists(t, results[0].Archive)
}

func TestHaddRefusesWhileResubNeeded(t *testing.T) {
	driver, _, fb, _ := setup(t)

	_, err := driver.Submit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)
	fb.live = nil // both chunks MISS: nothing validated yet

	results, err := driver.Hadd(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, lifecycle.ErrResubNeeded)
	assert.True(t, results[0].Skipped)
}

func TestCleanRemovesJobDirectoryWhenEmpty(t *testing.T) {
	driver, homeDir, fb, root := setup(t)

	_, err := driver.Submit(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)

	outDir := filepath.Join(root, "out")
	postfix := home.Postfix("mutau", "_v1")
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 0, 1000)
	writeAnalysisOutput(t, outDir, "DY_M50", postfix, 1, 1000)
	fb.live = nil

	results, err := driver.Clean(context.Background(), target(), lifecycle.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].RemovedDir)

	jobDir := homeDir.JobDir("2018", "mutau", "DY_M50")
	_, statErr := os.Stat(jobDir.Root())
	assert.True(t, os.IsNotExist(statErr))

	archiveDir := filepath.Join(homeDir.Root(), "archive", "2018", "mutau", "DY_M50")
	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHaddSkipsSkimChannel(t *testing.T) {
	driver, _, _, _ := setup(t)
	// isSkimChannel short-circuits before touching disk, so no prior
	// submit is needed for this dataset/channel pair.
	results, err := driver.Hadd(context.Background(), lifecycle.Target{
		Eras: []string{"2018"}, Channels: []string{"skim"}, Tag: "_v1",
	}, lifecycle.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.ErrorIs(t, results[0].Err, lifecycle.ErrSkimHaddUnsupported)
}

func TestSubmitUnknownChannelErrors(t *testing.T) {
	driver, _, _, _ := setup(t)
	_, err := driver.Submit(context.Background(), lifecycle.Target{
		Eras: []string{"2018"}, Channels: []string{"doesnotexist"}, Tag: "_v1",
	}, lifecycle.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrUnknownChannel)
}

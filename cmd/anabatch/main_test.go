package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anabatch/internal/batch"
	"anabatch/internal/config"
	"anabatch/internal/config/file"
	"anabatch/internal/home"
	"anabatch/internal/lifecycle"
	"anabatch/internal/logging"
	"anabatch/internal/module"
	"anabatch/internal/module/synth"
	"anabatch/internal/sample"
	"anabatch/internal/storage"
)

// newTestApp builds an application the same way bootstrapApp does,
// without touching the process's os.Args or $HOME.
func newTestApp(t *testing.T) *application {
	t.Helper()
	root := t.TempDir()
	homeDir := home.New(root)
	require.NoError(t, homeDir.EnsureExists())

	store := file.NewStore(homeDir.ConfigPath())
	logger := logging.Discard()

	catalogueDir := filepath.Join(root, "catalogues")
	require.NoError(t, os.MkdirAll(catalogueDir, 0o750))
	samples, err := sample.NewResolver(catalogueDir, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = samples.Close() })

	storageAdapter := storage.NewLocal(root)
	ba, err := batch.New("HTCondor")
	require.NoError(t, err)

	app := &application{
		home:           homeDir,
		store:          store,
		samples:        samples,
		storageAdapter: storageAdapter,
		modules:        module.Registry{"analysis": synth.NewAnalysis, "skim": synth.NewSkim},
		logger:         logger,
	}
	app.driver = lifecycle.New(homeDir, store, samples, storageAdapter, ba, logger)
	return app
}

func TestLoadConfigBootstrapsOnFirstRun(t *testing.T) {
	app := newTestApp(t)
	cfg, err := app.loadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HTCondor", cfg.Defaults.System)

	again, err := app.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, cfg.Defaults.Queue, again.Defaults.Queue)
}

func TestChannelCommandValidatesModule(t *testing.T) {
	app := newTestApp(t)
	_, err := app.loadConfig(context.Background())
	require.NoError(t, err)

	cmd := newChannelCmd(app)
	cmd.SetArgs([]string{"mychan", "bogus"})
	err = cmd.Execute()
	assert.Error(t, err)

	cmd2 := newChannelCmd(app)
	cmd2.SetArgs([]string{"mychan", "skim"})
	require.NoError(t, cmd2.Execute())

	cfg, err := app.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "skim", cfg.Channels["mychan"].Module)
}

func TestRunDebugModeWritesOneOutputPerInputFile(t *testing.T) {
	app := newTestApp(t)
	cfg, err := app.loadConfig(context.Background())
	require.NoError(t, err)
	cfg.Channels["skim"] = config.ChannelConfig{Module: "skim"}
	require.NoError(t, app.store.Save(context.Background(), cfg))

	outDir := t.TempDir()
	cmd := newRunCmd(app)
	cmd.SetArgs([]string{
		"-i", "/data/sampleA.root", "-i", "/data/sampleB.root",
		"-c", "skim", "-o", outDir,
	})
	require.NoError(t, cmd.Execute())

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	// one .root output plus one .json sidecar per input file
	assert.Len(t, entries, 4)
}

func TestRunDebugModeUnknownChannel(t *testing.T) {
	app := newTestApp(t)
	_, err := app.loadConfig(context.Background())
	require.NoError(t, err)

	cmd := newRunCmd(app)
	cmd.SetArgs([]string{"-i", "/data/a.root", "-c", "doesnotexist", "-o", t.TempDir()})
	assert.Error(t, cmd.Execute())
}

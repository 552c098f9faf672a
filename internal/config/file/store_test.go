package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"anabatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(dir string) *Store {
	return NewStore(filepath.Join(dir, "config.json"))
}

func TestStoreLoadMissingFileReturnsNil(t *testing.T) {
	s := newTestStore(t.TempDir())
	cfg, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestStoreSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(dir)
	ctx := context.Background()

	cfg := &config.Config{
		Defaults: config.Defaults{System: "HTCondor", Queue: "espresso", NFilesPerJob: 10},
		Channels: map[string]config.ChannelConfig{"mutau": {Module: "ModuleMuTau"}},
		Eras:     map[string]config.EraConfig{"2018": {CatalogueDir: "/store/catalogues/2018"}},
	}
	require.NoError(t, s.Save(ctx, cfg))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "HTCondor", got.Defaults.System)
	assert.Equal(t, "ModuleMuTau", got.Channels["mutau"].Module)
	assert.Equal(t, "/store/catalogues/2018", got.Eras["2018"].CatalogueDir)
}

func TestStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "subdir", "nested")
	configPath := filepath.Join(dir, "config.json")

	s := NewStore(configPath)
	require.NoError(t, s.Save(context.Background(), &config.Config{}))

	_, err := os.Stat(configPath)
	require.NoError(t, err, "config file should exist")
}

func TestStoreInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{invalid}"), 0o640))

	s := newTestStore(dir)
	_, err := s.Load(context.Background())
	assert.Error(t, err)
}

func TestStoreUnversionedFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	data := `{"channels": {"mutau": {"module": "ModuleMuTau"}}}`
	require.NoError(t, os.WriteFile(configPath, []byte(data), 0o640))

	s := newTestStore(dir)
	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unversioned")
}

func TestStoreJSONIsHumanReadable(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	s := newTestStore(dir)
	require.NoError(t, s.Save(context.Background(), &config.Config{
		Defaults: config.Defaults{System: "SLURM"},
	}))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "\n")
	assert.Contains(t, content, `"version"`)
}

func TestStoreReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1 := newTestStore(dir)
	require.NoError(t, s1.Save(ctx, &config.Config{
		Channels: map[string]config.ChannelConfig{"skim": {Module: "ModuleSkim"}},
	}))

	s2 := newTestStore(dir)
	got, err := s2.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ModuleSkim", got.Channels["skim"].Module)
}

func TestStoreSaveOverwritesPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := newTestStore(dir)

	require.NoError(t, s.Save(ctx, &config.Config{Defaults: config.Defaults{Queue: "espresso"}}))
	require.NoError(t, s.Save(ctx, &config.Config{Defaults: config.Defaults{Queue: "workday"}}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "workday", got.Defaults.Queue)
}

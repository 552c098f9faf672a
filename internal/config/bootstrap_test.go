package config_test

import (
	"context"
	"testing"

	"anabatch/internal/config"
	"anabatch/internal/config/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "HTCondor", cfg.Defaults.System)
	assert.NotZero(t, cfg.Defaults.NFilesPerJob)
	assert.Empty(t, cfg.Channels)
	assert.Empty(t, cfg.Eras)
}

func TestBootstrap(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg, "expected nil before bootstrap")

	require.NoError(t, config.Bootstrap(ctx, s))

	cfg, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, config.DefaultConfig().Defaults, cfg.Defaults)
}

package config

import "context"

// DefaultConfig returns the bootstrap configuration for first-run: a
// single HTCondor default with no channels or eras configured, so that
// `anabatch list` has something sensible to print before the user has
// run any `set`/`channel`/`era` commands.
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			System:       "HTCondor",
			Queue:        "espresso",
			NFilesPerJob: 10,
		},
		Directories: Directories{
			JobDir:  "$PATH/jobs",
			LogDir:  "$PATH/jobs/%s/log",
			OutDir:  "$PATH/out",
			PicoDir: "$PATH/pico",
		},
		Channels: make(map[string]ChannelConfig),
		Eras:     make(map[string]EraConfig),
	}
}

// Bootstrap writes the default configuration to store. Call this when
// Load returns nil (no config exists yet).
func Bootstrap(ctx context.Context, store Store) error {
	return store.Save(ctx, DefaultConfig())
}

// Command anabatch drives cluster batch processing of scientific event
// files: submitting, reconciling, merging and cleaning up per-dataset
// analysis jobs, with a pluggable Module as the actual per-task work.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

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

// application bundles the constructed collaborators every sub-command
// needs, mirroring the teacher's cmd/gastrolog/main.go dependency-
// injection shape (a single struct built once in main, passed by
// pointer into each cobra command's closure).
type application struct {
	home           home.Dir
	store          config.Store
	samples        *sample.Resolver
	storageAdapter storage.Adapter
	modules        module.Registry
	driver         *lifecycle.Driver
	logger         *slog.Logger
}

// loadConfig loads the user config, bootstrapping defaults on first run.
func (app *application) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := app.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("anabatch: load config: %w", err)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
		if err := app.store.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("anabatch: bootstrap config: %w", err)
		}
	}
	return cfg, nil
}

func main() {
	if len(os.Args) > 1 {
		os.Args[1] = resolvePrefix(os.Args[1])
	}

	handler := logging.NewComponentFilterHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.LevelInfo,
	)
	logger := logging.Default(slog.New(handler))

	if err := run(logger); err != nil {
		logger.Error("anabatch failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	root := &cobra.Command{
		Use:           "anabatch",
		Short:         "Cluster batch orchestrator for analysis event files",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("home", "", "home directory (default $ANABATCH_HOME, else anabatch under the user config directory)")
	root.PersistentFlags().StringP("output", "o", "table", "output format: table or json")

	app, err := bootstrapApp(logger)
	if err != nil {
		return err
	}

	root.AddCommand(
		newListCmd(app),
		newGetCmd(app),
		newSetCmd(app),
		newRmCmd(app),
		newChannelCmd(app),
		newEraCmd(app),
		newRunCmd(app),
		newSubmitCmd(app),
		newResubmitCmd(app),
		newStatusCmd(app),
		newHaddCmd(app),
		newCleanCmd(app),
	)

	return root.Execute()
}

// bootstrapApp constructs the application's collaborators. The home
// directory flag is parsed ahead of cobra's own parse pass (a small,
// deliberate duplication, same as the teacher's settings.go resolving
// --config before the rest of the flag set exists) since every other
// constructor needs it.
func bootstrapApp(logger *slog.Logger) (*application, error) {
	homeDir, err := resolveHomeFlag()
	if err != nil {
		return nil, err
	}
	if err := homeDir.EnsureExists(); err != nil {
		return nil, fmt.Errorf("anabatch: create home directory: %w", err)
	}

	store := file.NewStore(homeDir.ConfigPath())

	app := &application{
		home:    homeDir,
		store:   store,
		modules: module.Registry{"analysis": synth.NewAnalysis, "skim": synth.NewSkim},
		logger:  logger,
	}

	cfg, err := app.loadConfig(context.Background())
	if err != nil {
		return nil, err
	}

	catalogueDir := filepath.Join(homeDir.Root(), "catalogues")
	if err := os.MkdirAll(catalogueDir, 0o750); err != nil {
		return nil, fmt.Errorf("anabatch: create catalogue directory: %w", err)
	}
	samples, err := sample.NewResolver(catalogueDir, logger)
	if err != nil {
		return nil, fmt.Errorf("anabatch: construct sample resolver: %w", err)
	}
	app.samples = samples

	storageRoot := cfg.Defaults.StorageRoot
	if storageRoot == "" {
		storageRoot = homeDir.Root()
	}
	app.storageAdapter = storage.NewLocal(storageRoot)

	ba, err := batch.New(cfg.Defaults.System)
	if err != nil {
		return nil, fmt.Errorf("anabatch: construct batch adapter: %w", err)
	}

	app.driver = lifecycle.New(homeDir, store, samples, app.storageAdapter, ba, logger)

	return app, nil
}

// resolveHomeFlag pre-scans os.Args for --home, since the application's
// collaborators must exist before cobra's own flag parsing runs (every
// sub-command shares the same application instance).
func resolveHomeFlag() (home.Dir, error) {
	for i, a := range os.Args {
		if a == "--home" && i+1 < len(os.Args) {
			return home.New(os.Args[i+1]), nil
		}
		if strings.HasPrefix(a, "--home=") {
			return home.New(strings.TrimPrefix(a, "--home=")), nil
		}
	}
	if v := os.Getenv("ANABATCH_HOME"); v != "" {
		return home.New(v), nil
	}
	return home.Default()
}

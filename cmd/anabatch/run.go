package main

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"

	"anabatch/internal/chunkplan"
	"anabatch/internal/home"
	"anabatch/internal/jobconfig"
	"anabatch/internal/module"
)

var runTaskPattern = regexp.MustCompile(`^(.*)_(\d+)$`)

// newRunCmd builds the "run" sub-command (spec.md §6): execute a
// Module in-process, either as the real per-task command a batch
// script invokes (`-t CHANNEL_INDEX`, reading the JobConfig that lives
// alongside the task) or as a quick interactive debug run over an
// explicit file list (`-i FILES`).
func newRunCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the module in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(app, cmd)
		},
	}
	cmd.Flags().StringP("task", "t", "", "CHANNEL_INDEX naming a chunk in the JobConfig found in the current directory")
	cmd.Flags().StringSliceP("input", "i", nil, "explicit input file list (quick debug mode)")
	cmd.Flags().StringP("out-dir", "o", ".", "output directory (quick debug mode)")
	cmd.Flags().StringP("channel", "c", "", "channel, to resolve the module name (quick debug mode)")
	cmd.Flags().IntP("nfiles-per-job", "n", 0, "group debug input into chunks of N files (quick debug mode)")
	cmd.Flags().IntP("split", "S", 0, "divide the effective files-per-job by N")
	cmd.Flags().IntP("max-events", "m", 0, "cap the number of events the module writes (0 = unlimited)")
	cmd.Flags().BoolP("print", "p", false, "print the execution plan without running the module")
	return cmd
}

func runRun(app *application, cmd *cobra.Command) error {
	task, _ := cmd.Flags().GetString("task")
	if task != "" {
		return runTask(app, cmd, task)
	}
	return runDebug(app, cmd)
}

// runTask is the real per-task entry point: the batch script invokes
// `anabatch run -t <channel>_<index>` from the job's config directory.
func runTask(app *application, cmd *cobra.Command, task string) error {
	m := runTaskPattern.FindStringSubmatch(task)
	if m == nil {
		return fmt.Errorf("anabatch: -t must be CHANNEL_INDEX, got %q", task)
	}
	channel, index := m[1], m[2]
	idx, err := strconv.Atoi(index)
	if err != nil {
		return fmt.Errorf("anabatch: bad chunk index in %q: %w", task, err)
	}

	matches, err := filepath.Glob("jobconfig_*" + channel + "*_try*.json")
	if err != nil || len(matches) == 0 {
		matches, err = filepath.Glob("jobconfig*.json")
	}
	if err != nil {
		return fmt.Errorf("anabatch: glob job configs: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("anabatch: no jobconfig_*.json found in current directory")
	}

	jc, err := jobconfig.Read(matches[len(matches)-1])
	if err != nil {
		return fmt.Errorf("anabatch: read job config: %w", err)
	}

	files, ok := jc.ChunkMap[idx]
	if !ok {
		return fmt.Errorf("anabatch: chunk index %d not present in job config", idx)
	}

	factory, ok := app.modules.Lookup(jc.Module)
	if !ok {
		return fmt.Errorf("anabatch: unknown module %q", jc.Module)
	}
	mod, err := factory(jc.ExtraOpts)
	if err != nil {
		return fmt.Errorf("anabatch: construct module %q: %w", jc.Module, err)
	}

	print, _ := cmd.Flags().GetBool("print")
	maxEvents, _ := cmd.Flags().GetInt("max-events")
	opts := module.Options{
		Files: files, ChunkIndex: idx, Name: jc.Name, Channel: jc.Channel,
		Postfix: jc.Postfix, OutDir: jc.OutDir, DataType: jc.DataType, ExtraOpts: jc.ExtraOpts,
		MaxEvents: maxEvents,
	}
	if print {
		fmt.Fprintf(cmd.OutOrStdout(), "module=%s chunk=%d files=%v outdir=%s\n", jc.Module, idx, files, jc.OutDir)
		return nil
	}
	return mod.Run(cmd.Context(), opts)
}

// runDebug resolves the module for -c CHANNEL and runs it directly
// over -i FILES, splitting into chunks of -n files the same way
// ChunkPlanner would for a real submission.
func runDebug(app *application, cmd *cobra.Command) error {
	files, _ := cmd.Flags().GetStringSlice("input")
	if len(files) == 0 {
		return fmt.Errorf("anabatch: run requires -t CHANNEL_INDEX or -i FILES")
	}
	channel, _ := cmd.Flags().GetString("channel")
	if channel == "" {
		return fmt.Errorf("anabatch: -i requires -c CHANNEL to resolve the module")
	}
	outDir, _ := cmd.Flags().GetString("out-dir")
	nfpj, _ := cmd.Flags().GetInt("nfiles-per-job")
	split, _ := cmd.Flags().GetInt("split")
	print, _ := cmd.Flags().GetBool("print")
	maxEvents, _ := cmd.Flags().GetInt("max-events")

	cfg, err := app.loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	channelCfg, ok := cfg.Channels[channel]
	if !ok {
		return fmt.Errorf("anabatch: unknown channel %q", channel)
	}
	factory, ok := app.modules.Lookup(channelCfg.Module)
	if !ok {
		return fmt.Errorf("anabatch: unknown module %q", channelCfg.Module)
	}
	mod, err := factory(channelCfg.ExtraOpts)
	if err != nil {
		return fmt.Errorf("anabatch: construct module %q: %w", channelCfg.Module, err)
	}

	effective := chunkplan.EffectiveNFilesPerJob(nfpj, 0, cfg.Defaults.NFilesPerJob, split)
	chunks := chunkplan.Plan(files, effective, nil)
	postfix := home.Postfix(channel, "")

	for _, c := range chunks {
		opts := module.Options{
			Files: c.Files, ChunkIndex: c.Index, Channel: channel,
			Postfix: postfix, OutDir: outDir, ExtraOpts: channelCfg.ExtraOpts,
			MaxEvents: maxEvents,
		}
		if print {
			fmt.Fprintf(cmd.OutOrStdout(), "chunk=%d files=%v\n", c.Index, c.Files)
			continue
		}
		if err := mod.Run(cmd.Context(), opts); err != nil {
			return fmt.Errorf("anabatch: run chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"anabatch/internal/config"
)

var errDASNotSupported = errors.New("anabatch: DAS remote-catalogue lookups are not implemented; only local sample lists are supported")

func newListCmd(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Dump the configuration store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := config.Get(cfg, "")
			if err != nil {
				return err
			}
			return newPrinter(outputFormat(cmd)).json(doc)
		},
	}
}

func newGetCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get VAR",
		Short: "Print a config key, or samples/files/nevents for the selected era x channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(app, cmd, args[0])
		},
	}
	addTargetFlags(cmd)
	cmd.Flags().Bool("unique", false, "de-duplicate list output")
	cmd.Flags().IntP("limit", "L", 0, "limit output to the first N rows (0 = unlimited)")
	cmd.Flags().BoolP("list", "l", false, "print one value per line instead of a table/JSON blob")
	cmd.Flags().StringP("write", "w", "", "write output to PATH instead of stdout")
	cmd.Flags().BoolP("das", "D", false, "resolve via the DAS remote catalogue instead of the local sample list")
	cmd.Flags().Bool("dasfiles", false, "list DAS file names instead of dataset names")
	return cmd
}

func runGet(app *application, cmd *cobra.Command, varName string) error {
	das, _ := cmd.Flags().GetBool("das")
	dasFiles, _ := cmd.Flags().GetBool("dasfiles")
	if das || dasFiles {
		return errDASNotSupported
	}

	switch varName {
	case "samples", "files", "nevents":
		return runGetDatasetVar(app, cmd, varName)
	default:
		cfg, err := app.loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		val, err := config.Get(cfg, varName)
		if err != nil {
			return err
		}
		return writeGetResult(cmd, fmt.Sprintf("%v", val))
	}
}

func runGetDatasetVar(app *application, cmd *cobra.Command, varName string) error {
	t := targetFromCmd(cmd)
	cfg, err := app.loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	var lines []string
	for _, era := range t.Eras {
		for _, channel := range t.Channels {
			if _, ok := cfg.Channels[channel]; !ok {
				return fmt.Errorf("anabatch: unknown channel %q", channel)
			}
			datasets, err := app.samples.Resolve(era, channel, t.Filters, t.Vetoes, t.DataTypes)
			if err != nil {
				return err
			}
			for _, ds := range datasets {
				switch varName {
				case "samples":
					lines = append(lines, ds.Name)
				case "files":
					for _, p := range ds.Paths {
						names, err := app.storageAdapter.List(cmd.Context(), p, "*.root")
						if err != nil {
							return err
						}
						for _, n := range names {
							lines = append(lines, filepath.Join(p, n))
						}
					}
				case "nevents":
					lines = append(lines, fmt.Sprintf("%s\t%d", ds.Name, ds.DeclaredEventCount))
				}
			}
		}
	}

	unique, _ := cmd.Flags().GetBool("unique")
	if unique {
		lines = dedupe(lines)
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit > 0 && len(lines) > limit {
		lines = lines[:limit]
	}

	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return writeGetResult(cmd, out)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func writeGetResult(cmd *cobra.Command, s string) error {
	writePath, _ := cmd.Flags().GetString("write")
	if writePath != "" {
		return os.WriteFile(writePath, []byte(s+"\n"), 0o640)
	}
	fmt.Fprintln(cmd.OutOrStdout(), s)
	return nil
}

func newSetCmd(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "set VAR [KEY] VALUE",
		Short: "Upsert a scalar config field or a map entry",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			varName, key, value := splitSetArgs(args)
			return app.mutateConfig(cmd.Context(), func(cfg *config.Config) error {
				return config.Set(cfg, varName, key, value)
			})
		},
	}
}

func splitSetArgs(args []string) (varName, key, value string) {
	if len(args) == 2 {
		return args[0], "", args[1]
	}
	return args[0], args[1], args[2]
}

func newRmCmd(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "rm VAR [KEY]",
		Short: "Delete a config field or map entry",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			return app.mutateConfig(cmd.Context(), func(cfg *config.Config) error {
				return config.Remove(cfg, args[0], key)
			})
		},
	}
}

func newChannelCmd(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "channel KEY VALUE",
		Short: "Upsert a named channel, validating that its module exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.mutateConfig(cmd.Context(), func(cfg *config.Config) error {
				return config.SetChannel(cfg, args[0], args[1], func(module string) bool {
					_, ok := app.modules.Lookup(module)
					return ok
				})
			})
		},
	}
}

func newEraCmd(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "era KEY VALUE",
		Short: "Upsert a named era, validating that its catalogue directory resolves",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.mutateConfig(cmd.Context(), func(cfg *config.Config) error {
				return config.SetEra(cfg, args[0], args[1], func(dir string) bool {
					entries, err := os.ReadDir(dir)
					if err != nil {
						return false
					}
					for _, e := range entries {
						if filepath.Ext(e.Name()) == ".json" {
							return true
						}
					}
					return false
				})
			})
		},
	}
}

// mutateConfig loads the store, applies mutate, and saves the result.
func (app *application) mutateConfig(ctx context.Context, mutate func(*config.Config) error) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := mutate(cfg); err != nil {
		return err
	}
	return app.store.Save(ctx, cfg)
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	if f == "" {
		return "table"
	}
	return f
}

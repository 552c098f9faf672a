package main

import (
	"github.com/spf13/cobra"

	"anabatch/internal/lifecycle"
)

// addTargetFlags registers the common dataset-selection flags shared
// by get/submit/resubmit/status/hadd/clean (spec.md §6: "-y ERA+ -c
// CHANNEL+ -s FILTER* -x VETO* --dtype DT+ -t TAG -v").
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("era", "y", nil, "era(s) to operate on (required)")
	cmd.Flags().StringSliceP("channel", "c", nil, "channel(s) to operate on (required)")
	cmd.Flags().StringSliceP("filter", "s", nil, "dataset name glob filter(s)")
	cmd.Flags().StringSliceP("veto", "x", nil, "dataset name glob veto(s)")
	cmd.Flags().StringSlice("dtype", nil, "data type restriction(s)")
	cmd.Flags().StringP("tag", "t", "", "tag suffix appended to the channel postfix")
	cmd.Flags().BoolP("verbose", "v", false, "verbose output")
}

func targetFromCmd(cmd *cobra.Command) lifecycle.Target {
	eras, _ := cmd.Flags().GetStringSlice("era")
	channels, _ := cmd.Flags().GetStringSlice("channel")
	filters, _ := cmd.Flags().GetStringSlice("filter")
	vetoes, _ := cmd.Flags().GetStringSlice("veto")
	dtypes, _ := cmd.Flags().GetStringSlice("dtype")
	tag, _ := cmd.Flags().GetString("tag")
	return lifecycle.Target{
		Eras:      eras,
		Channels:  channels,
		Filters:   filters,
		Vetoes:    vetoes,
		DataTypes: dtypes,
		Tag:       tag,
	}
}

// addSubmitFlags registers the submit/resubmit-shared knobs (spec.md
// §6: "-n NFPJ --split N ... -d").
func addSubmitFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("nfiles-per-job", "n", 0, "override files-per-job (0 = config/per-sample default)")
	cmd.Flags().Int("split", 0, "divide the effective files-per-job by N (0 = no split)")
	cmd.Flags().BoolP("dry-run", "d", false, "build the submission but do not submit")
}

func optionsFromCmd(cmd *cobra.Command) lifecycle.Options {
	nfpj, _ := cmd.Flags().GetInt("nfiles-per-job")
	split, _ := cmd.Flags().GetInt("split")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	return lifecycle.Options{
		NFilesPerJob: nfpj,
		Split:        split,
		DryRun:       dryRun,
	}
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"anabatch/internal/lifecycle"
)

func newSubmitCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit new jobs for each dataset matching the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := app.driver.Submit(cmd.Context(), targetFromCmd(cmd), optionsFromCmd(cmd))
			if err != nil {
				return err
			}
			return printDatasetResults(cmd, results)
		},
	}
	addTargetFlags(cmd)
	addSubmitFlags(cmd)
	return cmd
}

func newResubmitCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resubmit",
		Short: "Reconcile each dataset and resubmit failed/missing chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFromCmd(cmd)
			watch, _ := cmd.Flags().GetDuration("watch")
			if watch > 0 {
				maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
				return app.driver.Watch(cmd.Context(), targetFromCmd(cmd), opts, watch, maxAttempts)
			}
			results, err := app.driver.Resubmit(cmd.Context(), targetFromCmd(cmd), opts)
			if err != nil {
				return err
			}
			return printDatasetResults(cmd, results)
		},
	}
	addTargetFlags(cmd)
	addSubmitFlags(cmd)
	cmd.Flags().Duration("watch", 0, "poll and resubmit on this interval until every dataset settles")
	cmd.Flags().Int("max-attempts", 0, "stop --watch after this many rounds without settling (0 = no ceiling)")
	return cmd
}

func newStatusCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the read-only reconciliation state for each dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := app.driver.Status(cmd.Context(), targetFromCmd(cmd))
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit > 0 && len(reports) > limit {
				reports = reports[:limit]
			}
			return printStatusReports(cmd, reports)
		},
	}
	addTargetFlags(cmd)
	cmd.Flags().IntP("limit", "l", 0, "limit output to the first N datasets (0 = unlimited)")
	return cmd
}

func newHaddCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hadd",
		Short: "Merge each dataset's completed chunk outputs into one file",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFromCmd(cmd)
			force, _ := cmd.Flags().GetBool("force")
			opts.Force = force
			results, err := app.driver.Hadd(cmd.Context(), targetFromCmd(cmd), opts)
			if err != nil {
				return err
			}
			return printHaddResults(cmd, results)
		},
	}
	addTargetFlags(cmd)
	addSubmitFlags(cmd)
	cmd.Flags().BoolP("force", "f", false, "merge even if chunks are still pending or failed")
	return cmd
}

func newCleanCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Archive and remove a dataset's retired job directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := app.driver.Clean(cmd.Context(), targetFromCmd(cmd), optionsFromCmd(cmd))
			if err != nil {
				return err
			}
			return printCleanResults(cmd, results)
		},
	}
	addTargetFlags(cmd)
	return cmd
}

func printDatasetResults(cmd *cobra.Command, results []lifecycle.DatasetResult) error {
	if outputFormat(cmd) == "json" {
		return newPrinter("json").json(results)
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = classificationColor("FAIL") + ": " + r.Err.Error()
		} else if r.NoOp {
			status = classificationColor("PEND") + " (nothing to do)"
		} else {
			status = classificationColor("SUCCESS")
		}
		rows = append(rows, []string{r.Era, r.Channel, r.Dataset, strconv.Itoa(r.Try), r.BatchID, status})
	}
	newPrinter(outputFormat(cmd)).table([]string{"era", "channel", "dataset", "try", "batch", "status"}, rows)
	return nil
}

func printStatusReports(cmd *cobra.Command, reports []lifecycle.StatusReport) error {
	if outputFormat(cmd) == "json" {
		return newPrinter("json").json(reports)
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		if r.Err != nil {
			rows = append(rows, []string{r.Era, r.Channel, r.Dataset, strconv.Itoa(r.Try), classificationColor("FAIL"), r.Err.Error()})
			continue
		}
		word := classificationColor("SUCCESS")
		detail := fmt.Sprintf("good=%d pend=%d fail=%d miss=%d", len(r.Result.Good), len(r.Result.Pend), len(r.Result.Fail), len(r.Result.Miss))
		if len(r.Result.Fail) > 0 || len(r.Result.Miss) > 0 {
			word = classificationColor("FAIL")
		} else if len(r.Result.Pend) > 0 {
			word = classificationColor("PEND")
		}
		rows = append(rows, []string{r.Era, r.Channel, r.Dataset, strconv.Itoa(r.Try), word, detail})
	}
	newPrinter(outputFormat(cmd)).table([]string{"era", "channel", "dataset", "try", "status", "detail"}, rows)
	return nil
}

func printHaddResults(cmd *cobra.Command, results []lifecycle.HaddResult) error {
	if outputFormat(cmd) == "json" {
		return newPrinter("json").json(results)
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := classificationColor("SUCCESS")
		detail := r.Archive
		if r.Err != nil {
			status = classificationColor("FAIL")
			detail = r.Err.Error()
		} else if r.Skipped {
			status = classificationColor("PEND")
			detail = "skipped"
		}
		rows = append(rows, []string{r.Era, r.Channel, r.Dataset, status, detail})
	}
	newPrinter(outputFormat(cmd)).table([]string{"era", "channel", "dataset", "status", "detail"}, rows)
	return nil
}

func printCleanResults(cmd *cobra.Command, results []lifecycle.CleanResult) error {
	if outputFormat(cmd) == "json" {
		return newPrinter("json").json(results)
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := classificationColor("SUCCESS")
		detail := "contents removed"
		if r.Err != nil {
			status = classificationColor("FAIL")
			detail = r.Err.Error()
		} else if r.RemovedDir {
			detail = "directory removed"
		}
		rows = append(rows, []string{r.Era, r.Channel, r.Dataset, status, detail})
	}
	newPrinter(outputFormat(cmd)).table([]string{"era", "channel", "dataset", "status", "detail"}, rows)
	return nil
}

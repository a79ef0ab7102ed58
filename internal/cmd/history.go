// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotandev/watpatch/internal/errors"
	"github.com/dotandev/watpatch/internal/history"
)

var (
	historyLimitFlag  int
	historyFailedFlag bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded patch runs",
	Long: `List runs recorded in the history database, newest first.

Recording is enabled by setting history_path in .watpatch.toml or the
WATPATCH_HISTORY_PATH environment variable.`,
	Example: `  WATPATCH_HISTORY_PATH=~/.watpatch/history.db watpatch history --limit 5`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if activeConfig.HistoryPath == "" {
			return errors.WrapConfigError("history", fmt.Errorf("no history_path configured"))
		}
		store, err := history.Open(activeConfig.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()

		params := history.ListParams{Limit: historyLimitFlag}
		if historyFailedFlag {
			params.Status = history.StatusFailed
		}
		runs, err := store.List(cmd.Context(), params)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
		for _, run := range runs {
			status := okColor.Sprint(run.Status)
			if run.Status != history.StatusOK {
				status = warnColor.Sprint(run.Status)
			}
			fmt.Fprintf(out, "#%-4d %s  %-6s %s -> %s\n",
				run.ID, run.Timestamp.Local().Format(time.DateTime), status, run.Input, outputOrDash(run))
			if run.ErrorMsg != "" {
				fmt.Fprintf(out, "      %s\n", run.ErrorMsg)
				continue
			}
			fmt.Fprintf(out, "      type id %s, table index %d, replaced %s\n",
				run.TypeID, run.TableIndex, formatReplacements(run.Replacements))
		}
		return nil
	},
}

func outputOrDash(run history.Run) string {
	if run.DryRun {
		return "(dry run)"
	}
	if run.Output == "" {
		return "-"
	}
	return run.Output
}

func init() {
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Maximum number of runs to show")
	historyCmd.Flags().BoolVar(&historyFailedFlag, "failed", false, "Only show failed runs")
	rootCmd.AddCommand(historyCmd)
}

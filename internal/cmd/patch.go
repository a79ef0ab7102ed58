// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dotandev/watpatch/internal/history"
	"github.com/dotandev/watpatch/internal/logger"
	"github.com/dotandev/watpatch/internal/patch"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func patchExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input, output := args[0], args[1]

	report, err := patch.Patch(ctx, input, output, patch.Options{
		Profile: activeProfile,
		DryRun:  DryRunFlag,
	})
	recordRun(ctx, report, err)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report, activeProfile)
	return nil
}

func printReport(w io.Writer, report *patch.Report, p *patch.Profile) {
	if report.DryRun {
		okColor.Fprintf(w, "dry run: %s would be patched\n", report.Input)
	} else {
		okColor.Fprintf(w, "patched %s -> %s\n", report.Input, report.Output)
	}

	fmt.Fprintf(w, "  Profile:        %s\n", report.Profile)
	if report.Facts.HasTypeID() {
		fmt.Fprintf(w, "  Type id:        %s (line %d)\n", report.Facts.TypeID, report.Facts.TypeLine)
	}
	if report.Facts.HasTableIndex() {
		fmt.Fprintf(w, "  Table index:    %d of %d (line %d)\n", report.Facts.TableIndex, report.Facts.TableLen, report.Facts.SegmentLine)
	}
	fmt.Fprintf(w, "  Replaced:       %s\n", formatReplacements(report.Stats.Replacements))
	fmt.Fprintf(w, "  Lines:          %d read, %d written, %d discarded\n",
		report.Stats.LinesRead, report.Stats.LinesWritten, report.Stats.LinesDiscarded)
	dimColor.Fprintf(w, "  sha256:         %s -> %s\n", short(report.InputSHA256), short(report.OutputSHA256))

	for _, name := range report.Stats.Missing(p) {
		warnColor.Fprintf(w, "  warning: no header for target %s; passed through\n", name)
	}
}

func formatReplacements(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%d)", name, counts[name]))
	}
	return strings.Join(parts, ", ")
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

// recordRun stores the outcome when a history database is configured. A
// failure to record never fails the patch.
func recordRun(ctx context.Context, report *patch.Report, runErr error) {
	if activeConfig == nil || activeConfig.HistoryPath == "" || report == nil {
		return
	}
	store, err := history.Open(activeConfig.HistoryPath)
	if err != nil {
		logger.Logger.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()

	run := &history.Run{
		Input:          report.Input,
		Output:         report.Output,
		Profile:        report.Profile,
		Status:         history.StatusOK,
		TypeID:         report.Facts.TypeID,
		TableIndex:     report.Facts.TableIndex,
		Replacements:   report.Stats.Replacements,
		LinesDiscarded: report.Stats.LinesDiscarded,
		InputSHA256:    report.InputSHA256,
		OutputSHA256:   report.OutputSHA256,
		DryRun:         report.DryRun,
		Duration:       report.Duration,
	}
	if runErr != nil {
		run.Status = history.StatusFailed
		run.ErrorMsg = runErr.Error()
	}
	if err := store.Save(ctx, run); err != nil {
		logger.Logger.Warn("failed to record run", "error", err)
	}
}

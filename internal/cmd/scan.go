// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/watpatch/internal/patch"
)

var scanCmd = &cobra.Command{
	Use:   "scan <input.wat>",
	Short: "Run the first pass only and print the scanned facts",
	Long: `Scan a module's text form for the callback type id and the table slot of the
sentinel function without writing anything. Exits non-zero when either fact
is missing, exactly as a full patch would.

Examples:
  watpatch scan dotnet.wat
  watpatch scan --profile mine.yaml dotnet.wat`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		facts, err := patch.ScanFile(cmd.Context(), args[0], activeProfile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		okColor.Fprintf(out, "%s matches profile %s\n", args[0], activeProfile.Name)
		if facts.HasTypeID() {
			fmt.Fprintf(out, "  Type id:        %s (line %d)\n", facts.TypeID, facts.TypeLine)
		}
		if facts.HasTableIndex() {
			fmt.Fprintf(out, "  Table index:    %d of %d (line %d)\n", facts.TableIndex, facts.TableLen, facts.SegmentLine)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

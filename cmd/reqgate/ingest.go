package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidentops/reqgate/internal/index"
)

func ingestCmd() *cobra.Command {
	var (
		requirementsPath string
		baseline         string
		strict           bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a requirements file and print the baseline handle",
		Long: `Ingest builds an index baseline from a requirements file and prints the
resulting handle, record count, and any non-fatal findings as JSON.

Examples:
  reqgate ingest -r requirements.json
  reqgate ingest -r requirements.jsonl --baseline org/compliance@1.0.0 --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadRequirements(requirementsPath)
			if err != nil {
				return err
			}

			idx := index.New()
			baselineID := baseline
			if baselineID == "" && len(records) > 0 {
				baselineID = records[0].PolicyBaseline.ID
			}
			handle, err := idx.Ingest(baselineID, records, strict)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return printJSON(handle)
		},
	}

	cmd.Flags().StringVarP(&requirementsPath, "requirements", "r", "", "Requirements file (JSON array or JSONL)")
	cmd.Flags().StringVar(&baseline, "baseline", "", "Baseline id to ingest under (default: first record's baseline)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject incomplete rubrics at ingest")
	_ = cmd.MarkFlagRequired("requirements")

	return cmd
}

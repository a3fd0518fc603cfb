package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evidentops/reqgate/internal/index"
)

func validateCmd() *cobra.Command {
	var (
		requirementsPath string
		strict           bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a requirements file for integrity issues",
		Long: `Validate runs the ingest integrity checks without building an index:
duplicate uids, unknown statuses, incomplete baselines, supersession cycles,
and multiple active records per key.

Examples:
  reqgate validate -r requirements.json
  reqgate validate -r requirements.jsonl --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadRequirements(requirementsPath)
			if err != nil {
				return err
			}

			issues := index.ValidateIntegrity(records, strict)
			if len(issues) == 0 {
				fmt.Printf("%d records, no issues\n", len(records))
				return nil
			}

			failed := false
			for _, issue := range issues {
				fmt.Fprintf(os.Stderr, "%s: %s: %s (record %s)\n",
					issue.Severity, issue.Field, issue.Message, issue.RecordUID)
				if issue.Severity == index.SeverityError {
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("%d records, %d issues", len(records), len(issues))
			}
			fmt.Printf("%d records, %d warnings\n", len(records), len(issues))
			return nil
		},
	}

	cmd.Flags().StringVarP(&requirementsPath, "requirements", "r", "", "Requirements file (JSON array or JSONL)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat incomplete rubrics as errors and warn on mixed policy baselines")
	_ = cmd.MarkFlagRequired("requirements")

	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evidentops/reqgate/internal/index"
	"github.com/evidentops/reqgate/pkg/types"
)

func queryCmd() *cobra.Command {
	var (
		requirementsPath string
		baseline         string
		subtypes         []string
		anySubtype       bool
		status           string
		limit            int
		offset           int
		strict           bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ingest a requirements file and list matching records",
		Long: `Query builds an in-memory index from a requirements file and prints the
matching records as JSON, in ascending uid order.

Multiple --subtype flags require all of the given subtypes; --any-subtype
switches to matching any of them.

Examples:
  reqgate query -r requirements.json --subtype security
  reqgate query -r requirements.json --subtype security --subtype crypto --any-subtype
  reqgate query -r requirements.json --status active --limit 20 --offset 40`,
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
			for _, warning := range handle.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s: %s\n", warning.Field, warning.Message)
			}

			matched, err := idx.Query(index.Filter{
				Baseline:   handle.Handle,
				Subtypes:   subtypes,
				AnySubtype: anySubtype,
				Status:     types.RequirementStatus(status),
				Limit:      limit,
				Offset:     offset,
			})
			if err != nil {
				return err
			}
			return printJSON(matched)
		},
	}

	cmd.Flags().StringVarP(&requirementsPath, "requirements", "r", "", "Requirements file (JSON array or JSONL)")
	cmd.Flags().StringVar(&baseline, "baseline", "", "Baseline id to ingest under (default: first record's baseline)")
	cmd.Flags().StringArrayVar(&subtypes, "subtype", nil, "Subtype filter, repeatable")
	cmd.Flags().BoolVar(&anySubtype, "any-subtype", false, "Match any given subtype instead of all")
	cmd.Flags().StringVar(&status, "status", "", "Status filter: active, obsolete, draft")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to return (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Records to skip")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject incomplete rubrics at ingest")
	_ = cmd.MarkFlagRequired("requirements")

	return cmd
}

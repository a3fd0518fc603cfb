package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evidentops/reqgate/internal/config"
	"github.com/evidentops/reqgate/internal/gate"
	"github.com/evidentops/reqgate/internal/index"
	"github.com/evidentops/reqgate/internal/ledger"
	"github.com/evidentops/reqgate/internal/ledger/sqlstore"
	"github.com/evidentops/reqgate/internal/orchestrator"
	"github.com/evidentops/reqgate/internal/policy"
	"github.com/evidentops/reqgate/pkg/types"
)

// runSummary is the JSON printed after a completed gate run.
type runSummary struct {
	RunID     string         `json:"run_id"`
	ReportRef string         `json:"report_ref"`
	Evaluated int            `json:"evaluated"`
	ByStatus  map[string]int `json:"by_status"`
}

func runCmd() *cobra.Command {
	var (
		configPath       string
		requirementsPath string
		factsPath        string
		contextPath      string
		baseline         string
		subtypes         []string
		anySubtype       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate requirements against a facts document",
		Long: `Run executes the full gate pipeline: ingest requirements, compose engine
inputs with the facts document, evaluate through the configured policy
engine, write a SARIF report, and append the evidence trail to the ledger.

The exit code is non-zero when any requirement fails.

With a facts directory, default.json is the fallback document and each other
<subtype>.json supplies the facts for requirements carrying that subtype.

Examples:
  reqgate run -c reqgate.yaml -r requirements.json -f facts.json
  reqgate run -c reqgate.yaml -r requirements.json -f facts/
  reqgate run -c reqgate.yaml -r requirements.json -f facts.json --subtype security`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			records, err := loadRequirements(requirementsPath)
			if err != nil {
				return err
			}
			facts, factsBySubtype, err := loadFactsSet(factsPath)
			if err != nil {
				return err
			}

			var runContext map[string]any
			if contextPath != "" {
				// #nosec G304 -- path is an operator-provided input file.
				raw, err := os.ReadFile(contextPath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &runContext); err != nil {
					return fmt.Errorf("parse %s: %w", contextPath, err)
				}
			}

			idx := index.New()
			baselineID := baseline
			if baselineID == "" && len(records) > 0 {
				baselineID = records[0].PolicyBaseline.ID
			}
			handle, err := idx.Ingest(baselineID, records, cfg.Run.Strict)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			for _, warning := range handle.Warnings {
				logger.Warn("ingest finding",
					zap.String("field", warning.Field),
					zap.String("message", warning.Message),
					zap.String("record_uid", warning.RecordUID))
			}

			sources := make([]policy.Source, len(cfg.Bundles))
			for i, b := range cfg.Bundles {
				sources[i] = policy.Source{ID: b.ID, Path: b.Path}
			}
			registry, err := policy.NewRegistry(sources)
			if err != nil {
				return fmt.Errorf("load bundles: %w", err)
			}

			store, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			lgr := ledger.New(store, logger, *cfg.Engine.DecisionLogRetries)

			orch := orchestrator.New(
				policy.NewExecEngine(cfg.Engine.Binary),
				registry, lgr, logger,
				orchestrator.Options{
					CallTimeout: cfg.Engine.CallTimeout,
					Workers:     cfg.Run.Workers,
					Combine:     cfg.Run.Combine,
				})

			g := gate.New(idx, registry, orch, lgr, logger, gate.GateOptions{
				Verbose:      cfg.Report.Verbose,
				AgentVersion: facts.Agent.Version,
			})

			ctx := cmd.Context()
			if cfg.Run.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Run.Timeout)
				defer cancel()
			}

			res, err := g.Run(ctx, gate.RunRequest{
				Baseline:       handle.Handle,
				Subtypes:       subtypes,
				AnySubtype:     anySubtype,
				Status:         types.RequirementActive,
				Facts:          facts,
				FactsBySubtype: factsBySubtype,
				Context:        runContext,
			})
			if err != nil {
				return err
			}

			summary := runSummary{
				RunID:     res.RunID,
				ReportRef: res.ReportRef,
				Evaluated: len(res.Results),
				ByStatus:  map[string]int{},
			}
			failed := 0
			for _, r := range res.Results {
				summary.ByStatus[string(r.Decision.Status)]++
				if r.Decision.Status == types.StatusFail {
					failed++
				}
			}
			if err := printJSON(summary); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d requirement(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "reqgate.yaml", "Config file")
	cmd.Flags().StringVarP(&requirementsPath, "requirements", "r", "", "Requirements file (JSON array or JSONL)")
	cmd.Flags().StringVarP(&factsPath, "facts", "f", "", "Facts document (JSON file) or directory of per-subtype documents")
	cmd.Flags().StringVar(&contextPath, "context", "", "Optional evaluation context (JSON object)")
	cmd.Flags().StringVar(&baseline, "baseline", "", "Baseline id to ingest under (default: first record's baseline)")
	cmd.Flags().StringArrayVar(&subtypes, "subtype", nil, "Subtype filter, repeatable")
	cmd.Flags().BoolVar(&anySubtype, "any-subtype", false, "Match any given subtype instead of all")
	_ = cmd.MarkFlagRequired("requirements")
	_ = cmd.MarkFlagRequired("facts")

	return cmd
}

func openStore(cfg config.Config) (ledger.Store, error) {
	if cfg.LedgerDB != "" {
		return sqlstore.OpenSQLite(cfg.LedgerDB)
	}
	return ledger.OpenFS(cfg.LedgerDir)
}

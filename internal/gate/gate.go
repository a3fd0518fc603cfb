// Package gate runs the full compliance pipeline for one facts document:
// query the requirement index, compose engine inputs, evaluate, map to a
// SARIF report, and record the evidence trail in the ledger.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/evidentops/reqgate/internal/canon"
	"github.com/evidentops/reqgate/internal/compose"
	"github.com/evidentops/reqgate/internal/index"
	"github.com/evidentops/reqgate/internal/ledger"
	"github.com/evidentops/reqgate/internal/orchestrator"
	"github.com/evidentops/reqgate/internal/policy"
	"github.com/evidentops/reqgate/internal/sarif"
	"github.com/evidentops/reqgate/pkg/types"
)

var ErrNoRequirements = errors.New("no requirements matched the run filter")

type Gate struct {
	index        *index.Index
	registry     *policy.Registry
	orchestrator *orchestrator.Orchestrator
	ledger       *ledger.Ledger
	log          *zap.Logger

	verbose      bool
	agentVersion string
	now          func() time.Time
}

type GateOptions struct {
	Verbose      bool
	AgentVersion string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func New(idx *index.Index, registry *policy.Registry, orch *orchestrator.Orchestrator, lgr *ledger.Ledger, logger *zap.Logger, opts GateOptions) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		index:        idx,
		registry:     registry,
		orchestrator: orch,
		ledger:       lgr,
		log:          logger,
		verbose:      opts.Verbose,
		agentVersion: opts.AgentVersion,
		now:          opts.Now,
	}
}

// RunRequest selects the requirements to evaluate and carries the facts
// document they are evaluated against. FactsBySubtype overrides the default
// facts document for requirements carrying a matching subtype; the first
// subtype in record order with an entry wins.
type RunRequest struct {
	Baseline       string
	Subtypes       []string
	AnySubtype     bool
	Status         types.RequirementStatus
	Facts          types.Facts
	FactsBySubtype map[string]types.Facts
	Context        map[string]any
}

func (r RunRequest) factsFor(rec types.Requirement) types.Facts {
	for _, subtype := range rec.Subtypes {
		if facts, ok := r.FactsBySubtype[subtype]; ok {
			return facts
		}
	}
	return r.Facts
}

// RunResult is one completed gate run: the report artifact as persisted, its
// ledger reference, and the per-requirement results and events behind it.
type RunResult struct {
	RunID     string
	ReportRef string
	Artifact  []byte
	Report    sarif.Report
	Results   []orchestrator.Result
	Events    []types.VerificationEvent
}

// Run executes the pipeline end to end. The same requirement set, facts, and
// engine behavior produce the same report content in the same order; only
// minted evaluation identifiers differ between runs. Report and event writes
// are hard failures; decision-log writes already happened best-effort inside
// evaluation.
func (g *Gate) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	records, err := g.index.Query(index.Filter{
		Baseline:   req.Baseline,
		Subtypes:   req.Subtypes,
		AnySubtype: req.AnySubtype,
		Status:     req.Status,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("query requirements: %w", err)
	}
	if len(records) == 0 {
		return RunResult{}, fmt.Errorf("%w: baseline %s", ErrNoRequirements, req.Baseline)
	}

	inputs := make([]compose.Input, 0, len(records))
	for _, rec := range records {
		in, err := compose.Compose(rec, req.factsFor(rec), req.Context, g.registry)
		if err != nil {
			return RunResult{}, fmt.Errorf("compose %s: %w", rec.UID, err)
		}
		inputs = append(inputs, in)
	}

	results := g.orchestrator.EvaluateAll(ctx, inputs)

	items := make([]sarif.Item, len(results))
	for i, res := range results {
		items[i] = sarif.Item{
			Requirement:  res.Input.Requirement,
			Decision:     res.Decision,
			Facts:        res.Input.Facts,
			EvaluationID: res.EvaluationID,
			Timestamp:    res.Timestamp,
		}
	}

	// Facts documents may carry float metric values, which the canonical
	// encoding rejects; the digest covers the compact encoding of the full
	// facts set instead. Map keys marshal sorted, so the bytes are stable.
	factsRaw, err := json.Marshal(struct {
		Default   types.Facts            `json:"default"`
		BySubtype map[string]types.Facts `json:"by_subtype,omitempty"`
	}{req.Facts, req.FactsBySubtype})
	if err != nil {
		return RunResult{}, fmt.Errorf("digest facts: %w", err)
	}
	factsDigest := canon.DigestWithPrefix(factsRaw)

	generatedAt := g.now().UTC().Format(time.RFC3339)
	report, err := sarif.MapRun(items, g.runProvenance(results), generatedAt, sarif.Options{
		Verbose:      g.verbose,
		AgentVersion: g.agentVersion,
		FactsDigest:  factsDigest,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("map report: %w", err)
	}

	artifact, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return RunResult{}, fmt.Errorf("encode report: %w", err)
	}
	artifact = append(artifact, '\n')

	runID := ulid.Make().String()
	ref, err := g.ledger.WriteReport(runID, artifact)
	if err != nil {
		return RunResult{}, fmt.Errorf("persist report %s: %w", runID, err)
	}

	events := make([]types.VerificationEvent, 0, len(results))
	var failed []string
	for _, res := range results {
		event := types.VerificationEvent{
			Schema:         types.VerificationEventSchema,
			EventID:        res.EvaluationID,
			RequirementUID: res.Input.Requirement.UID,
			Target:         res.Input.Facts.Target,
			DecisionSummary: types.DecisionSummary{
				Status:     res.Decision.Status,
				Score:      res.Decision.Score,
				Confidence: res.Decision.Confidence,
			},
			Timestamp: res.Timestamp,
			ReportRef: ref,
		}
		if err := g.ledger.AppendEvent(event); err != nil {
			failed = append(failed, res.Input.Requirement.UID)
			g.log.Error("verification event write failed",
				zap.String("requirement_uid", res.Input.Requirement.UID),
				zap.String("evaluation_id", res.EvaluationID),
				zap.Error(err))
			continue
		}
		events = append(events, event)
	}

	out := RunResult{
		RunID:     runID,
		ReportRef: ref,
		Artifact:  artifact,
		Report:    report,
		Results:   results,
		Events:    events,
	}
	if len(failed) > 0 {
		return out, fmt.Errorf("%w: requirements %s", ledger.ErrEventWrite, strings.Join(failed, ", "))
	}

	g.log.Info("gate run complete",
		zap.String("run_id", runID),
		zap.Int("requirements", len(records)),
		zap.String("report_ref", ref))
	return out, nil
}

// runProvenance picks the tool identity for the report: the first decision
// carrying a full provenance stamp, so engine-failure runs still identify the
// bundle they targeted.
func (g *Gate) runProvenance(results []orchestrator.Result) types.PolicyProvenance {
	for _, res := range results {
		if res.Decision.Policy.Hash != "" {
			return res.Decision.Policy
		}
	}
	for _, res := range results {
		for _, rubric := range res.Input.Requirement.Rubrics {
			if ref, ok := g.registry.Resolve(rubric); ok {
				return ref.Provenance()
			}
		}
	}
	return types.PolicyProvenance{}
}

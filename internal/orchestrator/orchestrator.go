// Package orchestrator drives policy evaluation: it invokes the external
// engine per rubric, enforces deadlines, validates output against the
// decision contract, and appends one decision-log entry per evaluation call.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/evidentops/reqgate/internal/compose"
	"github.com/evidentops/reqgate/internal/decision"
	"github.com/evidentops/reqgate/internal/ledger"
	"github.com/evidentops/reqgate/internal/policy"
	"github.com/evidentops/reqgate/pkg/types"
)

type Orchestrator struct {
	engine   policy.Engine
	registry *policy.Registry
	ledger   *ledger.Ledger
	log      *zap.Logger

	callTimeout time.Duration
	workers     int
	combine     string

	now func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

type Options struct {
	CallTimeout time.Duration
	Workers     int
	Combine     string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Result is one completed requirement evaluation. The evaluation identifier
// joins the decision log, the report result, and the verification event.
type Result struct {
	Input        compose.Input
	Decision     types.Decision
	EvaluationID string
	Timestamp    string
}

func New(engine policy.Engine, registry *policy.Registry, lgr *ledger.Ledger, logger *zap.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Combine == "" {
		opts.Combine = decision.CombineFirstWins
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		engine:      engine,
		registry:    registry,
		ledger:      lgr,
		log:         logger,
		callTimeout: opts.CallTimeout,
		workers:     opts.Workers,
		combine:     opts.Combine,
		now:         opts.Now,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
}

// mintID returns a fresh, sortable, never-reused evaluation identifier.
func (o *Orchestrator) mintID() string {
	o.entropyMu.Lock()
	defer o.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(o.now().UTC()), o.entropy).String()
}

// EvaluateAll runs every composed input through the engine. Independent
// requirements evaluate in parallel; results come back in input order so
// reports stay reproducible regardless of completion order. Cancelling ctx
// aborts in-flight calls, which are recorded as inconclusive with reason
// "cancelled"; entries already appended to the ledger remain valid.
func (o *Orchestrator) EvaluateAll(ctx context.Context, inputs []compose.Input) []Result {
	results := make([]Result, len(inputs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.Evaluate(ctx, inputs[i])
			}
		}()
	}
	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// Evaluate runs one requirement through every rubric entry in list order and
// folds the per-rubric decisions with the configured combination strategy.
// Engine failures never propagate: they become synthetic inconclusive or
// blocked decisions so one misbehaving rule cannot halt a run.
func (o *Orchestrator) Evaluate(ctx context.Context, in compose.Input) Result {
	evaluationID := o.mintID()
	timestamp := o.now().UTC().Format(time.RFC3339)
	req := in.Requirement

	var decisions []types.Decision
	// The log keeps the first rubric's raw output; later rubrics are
	// reconstructible from their criteria in the combined decision.
	var rawFirst json.RawMessage
	for i, rubric := range req.Rubrics {
		d, raw := o.evaluateRubric(ctx, in, i, rubric)
		decisions = append(decisions, d)
		if i == 0 {
			rawFirst = raw
		}
	}

	final := decision.Combine(decisions, o.combine)
	evaluationsTotal.WithLabelValues(string(final.Status)).Inc()

	entry := types.DecisionLogEntry{
		EvaluationID: evaluationID,
		Timestamp:    timestamp,
		Requirement:  req,
		Facts:        in.Facts,
		Context:      in.Context,
		RawOutput:    rawFirst,
		Decision:     final,
		Policy:       final.Policy,
	}
	if err := o.ledger.AppendDecisionLog(entry); err != nil {
		// Audit-best-effort: the gate result stands even when the log write
		// exhausts its retries.
		decisionLogFailures.Inc()
		o.log.Error("decision log entry dropped",
			zap.String("evaluation_id", evaluationID),
			zap.String("requirement_uid", req.UID),
			zap.Error(err))
	}

	return Result{Input: in, Decision: final, EvaluationID: evaluationID, Timestamp: timestamp}
}

func (o *Orchestrator) evaluateRubric(ctx context.Context, in compose.Input, idx int, rubric types.Rubric) (types.Decision, json.RawMessage) {
	if err := ctx.Err(); err != nil {
		return decision.Cancelled(o.registry.ProvenanceFor(rubric)), nil
	}

	if !in.Resolves(idx) {
		return decision.Blocked(
			o.registry.ProvenanceFor(rubric),
			fmt.Sprintf("rubric %d does not resolve to an evaluable policy entry point", idx),
		), nil
	}
	ref, _ := o.registry.Resolve(rubric)
	prov := ref.Provenance()

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	raw, err := o.engine.Evaluate(callCtx, in.EvaluationInput, ref)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return decision.Cancelled(prov), nil
		case errors.Is(err, context.DeadlineExceeded):
			engineTimeouts.Inc()
			o.log.Warn("engine call timed out",
				zap.String("requirement_uid", in.Requirement.UID),
				zap.String("query", ref.Query()))
			return decision.Timeout(prov, o.callTimeout), nil
		default:
			o.log.Warn("engine call failed",
				zap.String("requirement_uid", in.Requirement.UID),
				zap.Error(err))
			return decision.EngineFailure(prov, err), nil
		}
	}

	d, err := decision.Validate(raw)
	if err != nil {
		schemaViolations.Inc()
		o.log.Warn("engine output rejected",
			zap.String("requirement_uid", in.Requirement.UID),
			zap.Error(err))
		return decision.SchemaViolation(prov, err), raw
	}
	return d, raw
}

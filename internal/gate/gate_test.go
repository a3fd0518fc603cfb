package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evidentops/reqgate/internal/index"
	"github.com/evidentops/reqgate/internal/ledger"
	"github.com/evidentops/reqgate/internal/orchestrator"
	"github.com/evidentops/reqgate/internal/policy"
	"github.com/evidentops/reqgate/internal/sarif"
	"github.com/evidentops/reqgate/pkg/types"
)

type scriptedEngine struct {
	statusByUID map[string]types.DecisionStatus
}

func (e *scriptedEngine) Evaluate(_ context.Context, input types.EvaluationInput, ref policy.Ref) (json.RawMessage, error) {
	status, ok := e.statusByUID[input.Requirement.UID]
	if !ok {
		status = types.StatusPass
	}
	prov := ref.Provenance()
	score := 1.0
	if status != types.StatusPass {
		score = 0.25
	}
	raw, _ := json.Marshal(map[string]any{
		"status":     status,
		"score":      score,
		"confidence": 0.9,
		"criteria":   []map[string]any{},
		"reasons":    []string{fmt.Sprintf("scripted %s", status)},
		"policy": map[string]string{
			"bundle": prov.Bundle, "revision": prov.Revision, "hash": prov.Hash,
		},
	})
	return raw, nil
}

type eventFailStore struct {
	*ledger.InMemoryStore
}

func (s *eventFailStore) AppendEvent(types.VerificationEvent) error {
	return fmt.Errorf("events partition unavailable")
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
}

func testRequirement(uid string, subtypes ...string) types.Requirement {
	return types.Requirement{
		Schema:   types.RequirementSchema,
		UID:      uid,
		Key:      "REQ-" + uid,
		Subtypes: subtypes,
		Status:   types.RequirementActive,
		PolicyBaseline: types.PolicyBaseline{
			ID: "baseline-1", Version: "1.0.0", ContentHash: "sha256:bb",
		},
		Rubrics: []types.Rubric{
			{Engine: "opa", Bundle: "gates", Package: "gates.core", Rule: "decision"},
		},
		Text: "requirement " + uid,
	}
}

func testFacts() types.Facts {
	return types.Facts{
		Schema: types.FactsSchema,
		Agent:  types.Agent{Name: "scanner", Version: "2.1"},
		Target: types.Target{Repo: "git.example.com/app", Commit: "abc123"},
	}
}

func newTestGate(t *testing.T, engine policy.Engine, store ledger.Store) *Gate {
	t.Helper()
	return newTestGateWith(t, engine, store, []types.Requirement{
		testRequirement("r-001", "security"),
		testRequirement("r-002", "security", "crypto"),
		testRequirement("r-003", "reliability"),
	})
}

func newTestGateWith(t *testing.T, engine policy.Engine, store ledger.Store, records []types.Requirement) *Gate {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".manifest"),
		[]byte(`{"revision":"2026.08"}`), 0o600))
	registry, err := policy.NewRegistry([]policy.Source{{ID: "gates", Path: dir}})
	require.NoError(t, err)

	idx := index.New()
	_, err = idx.Ingest("baseline-1", records, false)
	require.NoError(t, err)

	lgr := ledger.New(store, zap.NewNop(), 0)
	orch := orchestrator.New(engine, registry, lgr, zap.NewNop(), orchestrator.Options{
		Workers: 4,
		Now:     fixedClock,
	})
	return New(idx, registry, orch, lgr, zap.NewNop(), GateOptions{
		AgentVersion: "scanner/2.1",
		Now:          fixedClock,
	})
}

func TestRunEndToEnd(t *testing.T) {
	store := ledger.NewInMemoryStore()
	engine := &scriptedEngine{statusByUID: map[string]types.DecisionStatus{
		"r-002": types.StatusFail,
	}}
	g := newTestGate(t, engine, store)

	res, err := g.Run(context.Background(), RunRequest{
		Baseline: "baseline-1",
		Facts:    testFacts(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, "reports/"+res.RunID+".sarif.json", res.ReportRef)

	// Report artifact persisted exactly as returned.
	stored, ok := store.Report(res.RunID)
	require.True(t, ok)
	require.Equal(t, res.Artifact, stored)

	// Pass results are omitted; only the failing requirement surfaces.
	require.Len(t, res.Report.Runs, 1)
	run := res.Report.Runs[0]
	require.Len(t, run.Tool.Driver.Rules, 3)
	require.Len(t, run.Results, 1)
	require.Equal(t, "r-002", run.Results[0].RuleID)
	require.Equal(t, sarif.LevelError, run.Results[0].Level)

	// One event per evaluated requirement, sharing its evaluation id and
	// pointing back at the persisted report.
	require.Len(t, res.Events, 3)
	events := store.Events()
	require.Len(t, events, 3)
	for i, event := range events {
		require.Equal(t, res.Results[i].EvaluationID, event.EventID)
		require.Equal(t, res.ReportRef, event.ReportRef)
		require.Equal(t, "git.example.com/app", event.Target.Repo)
	}

	// Full decision trail: one decision-log entry per requirement.
	require.Len(t, store.DecisionLogs(), 3)
}

func TestRunSelectsFactsBySubtype(t *testing.T) {
	store := ledger.NewInMemoryStore()
	g := newTestGate(t, &scriptedEngine{}, store)

	cryptoFacts := testFacts()
	cryptoFacts.Target.Repo = "git.example.com/crypto-scan"

	res, err := g.Run(context.Background(), RunRequest{
		Baseline: "baseline-1",
		Facts:    testFacts(),
		FactsBySubtype: map[string]types.Facts{
			"crypto": cryptoFacts,
		},
	})
	require.NoError(t, err)

	byUID := map[string]types.Facts{}
	for _, r := range res.Results {
		byUID[r.Input.Requirement.UID] = r.Input.Facts
	}
	// r-002 carries the crypto subtype; the others fall back to the default.
	require.Equal(t, "git.example.com/crypto-scan", byUID["r-002"].Target.Repo)
	require.Equal(t, "git.example.com/app", byUID["r-001"].Target.Repo)
	require.Equal(t, "git.example.com/app", byUID["r-003"].Target.Repo)

	// Events record the target each requirement was actually evaluated against.
	event, ok := store.GetEvent(byEventUID(t, res, "r-002"))
	require.True(t, ok)
	require.Equal(t, "git.example.com/crypto-scan", event.Target.Repo)
}

func byEventUID(t *testing.T, res RunResult, uid string) string {
	t.Helper()
	for _, r := range res.Results {
		if r.Input.Requirement.UID == uid {
			return r.EvaluationID
		}
	}
	t.Fatalf("no result for %s", uid)
	return ""
}

func TestRunSubtypeFilter(t *testing.T) {
	store := ledger.NewInMemoryStore()
	g := newTestGate(t, &scriptedEngine{}, store)

	res, err := g.Run(context.Background(), RunRequest{
		Baseline: "baseline-1",
		Subtypes: []string{"security", "crypto"},
		Facts:    testFacts(),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	require.Equal(t, "r-002", res.Results[0].Input.Requirement.UID)
}

var ulidPattern = regexp.MustCompile(`[0-9A-HJKMNP-TV-Z]{26}`)

func TestRunIsDeterministic(t *testing.T) {
	engine := &scriptedEngine{statusByUID: map[string]types.DecisionStatus{
		"r-001": types.StatusFail,
		"r-003": types.StatusConditionalPass,
	}}

	first := runOnce(t, engine)
	second := runOnce(t, engine)

	// Identical inputs give identical artifacts apart from minted ids.
	normalize := func(b []byte) string {
		return ulidPattern.ReplaceAllString(string(b), "<id>")
	}
	require.Equal(t, normalize(first), normalize(second))
}

func runOnce(t *testing.T, engine policy.Engine) []byte {
	t.Helper()
	store := ledger.NewInMemoryStore()
	g := newTestGate(t, engine, store)
	res, err := g.Run(context.Background(), RunRequest{
		Baseline: "baseline-1",
		Facts:    testFacts(),
	})
	require.NoError(t, err)
	return res.Artifact
}

func TestRunNoMatches(t *testing.T) {
	store := ledger.NewInMemoryStore()
	g := newTestGate(t, &scriptedEngine{}, store)

	_, err := g.Run(context.Background(), RunRequest{
		Baseline: "baseline-1",
		Subtypes: []string{"nonexistent"},
		Facts:    testFacts(),
	})
	require.ErrorIs(t, err, ErrNoRequirements)
}

func TestRunMissingTarget(t *testing.T) {
	store := ledger.NewInMemoryStore()
	g := newTestGate(t, &scriptedEngine{}, store)

	_, err := g.Run(context.Background(), RunRequest{
		Baseline: "baseline-1",
		Facts:    types.Facts{Schema: types.FactsSchema},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing target")
}

func TestRunEventWriteFailureIsItemized(t *testing.T) {
	store := &eventFailStore{InMemoryStore: ledger.NewInMemoryStore()}
	g := newTestGate(t, &scriptedEngine{}, store)

	res, err := g.Run(context.Background(), RunRequest{
		Baseline: "baseline-1",
		Facts:    testFacts(),
	})
	require.ErrorIs(t, err, ledger.ErrEventWrite)
	require.Contains(t, err.Error(), "r-001")
	require.Contains(t, err.Error(), "r-002")
	require.Contains(t, err.Error(), "r-003")

	// The report was still persisted before events failed.
	_, ok := store.Report(res.RunID)
	require.True(t, ok)
	require.Empty(t, res.Events)
}

func TestRunUnresolvableRubricYieldsBlockedResult(t *testing.T) {
	store := ledger.NewInMemoryStore()
	broken := testRequirement("r-100", "security")
	broken.Rubrics[0].Bundle = "no-such-bundle"
	g := newTestGateWith(t, &scriptedEngine{}, store, []types.Requirement{
		testRequirement("r-001", "security"),
		broken,
	})

	res, err := g.Run(context.Background(), RunRequest{
		Baseline: "baseline-1",
		Facts:    testFacts(),
	})
	require.NoError(t, err)

	// The passing requirement is omitted; the blocked one surfaces as a
	// warning needing triage, stamped with a loaded bundle's hash.
	require.Len(t, res.Report.Runs, 1)
	run := res.Report.Runs[0]
	require.Len(t, run.Results, 1)
	result := run.Results[0]
	require.Equal(t, "r-100", result.RuleID)
	require.Equal(t, sarif.LevelWarning, result.Level)
	require.Equal(t, "needed", result.Properties["triage"])
	require.NotEmpty(t, result.Properties["policy_hash"])
	require.Contains(t, result.Message.Text, "does not resolve")

	// The full trail still exists for both requirements.
	require.Len(t, res.Events, 2)
	require.Len(t, store.DecisionLogs(), 2)
}

func TestRunCancelledStillProducesReport(t *testing.T) {
	store := ledger.NewInMemoryStore()
	g := newTestGate(t, &scriptedEngine{}, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := g.Run(ctx, RunRequest{
		Baseline: "baseline-1",
		Facts:    testFacts(),
	})
	require.NoError(t, err)

	// Every evaluation is recorded inconclusive, not dropped.
	require.Len(t, res.Report.Runs, 1)
	run := res.Report.Runs[0]
	require.Len(t, run.Results, 3)
	for _, result := range run.Results {
		require.Equal(t, sarif.LevelWarning, result.Level)
		require.Equal(t, "needed", result.Properties["triage"])
		require.NotEmpty(t, result.Properties["policy_hash"])
		require.Contains(t, result.Message.Text, "cancelled")
	}

	_, ok := store.Report(res.RunID)
	require.True(t, ok)
	require.Len(t, store.DecisionLogs(), 3)
}

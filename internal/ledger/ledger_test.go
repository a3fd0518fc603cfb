package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evidentops/reqgate/pkg/types"
)

type flakyStore struct {
	*InMemoryStore
	decisionFailures int
	eventFails       bool
	reportFails      bool
}

func (s *flakyStore) AppendDecisionLog(entry types.DecisionLogEntry) error {
	if s.decisionFailures > 0 {
		s.decisionFailures--
		return errors.New("disk full")
	}
	return s.InMemoryStore.AppendDecisionLog(entry)
}

func (s *flakyStore) AppendEvent(event types.VerificationEvent) error {
	if s.eventFails {
		return errors.New("disk full")
	}
	return s.InMemoryStore.AppendEvent(event)
}

func (s *flakyStore) WriteReport(id string, artifact []byte) (string, error) {
	if s.reportFails {
		return "", errors.New("disk full")
	}
	return s.InMemoryStore.WriteReport(id, artifact)
}

func testEntry(id string) types.DecisionLogEntry {
	return types.DecisionLogEntry{
		EvaluationID: id,
		Timestamp:    "2026-08-30T12:00:00Z",
		Requirement:  types.Requirement{UID: "R01"},
		Decision:     types.Decision{Status: types.StatusFail},
	}
}

func testEvent(id string) types.VerificationEvent {
	return types.VerificationEvent{
		Schema:         types.VerificationEventSchema,
		EventID:        id,
		RequirementUID: "R01",
		Timestamp:      "2026-08-30T12:00:00Z",
	}
}

func TestAppendDecisionLogRetriesThenSucceeds(t *testing.T) {
	store := &flakyStore{InMemoryStore: NewInMemoryStore(), decisionFailures: 2}
	l := New(store, zap.NewNop(), 2)
	l.backoff = 0

	require.NoError(t, l.AppendDecisionLog(testEntry("e1")))
	require.Len(t, store.DecisionLogs(), 1)
}

func TestAppendDecisionLogExhaustsRetries(t *testing.T) {
	store := &flakyStore{InMemoryStore: NewInMemoryStore(), decisionFailures: 10}
	l := New(store, zap.NewNop(), 1)
	l.backoff = 0

	err := l.AppendDecisionLog(testEntry("e1"))
	require.ErrorIs(t, err, ErrDecisionLogWrite)
}

func TestRecordOrderingAndCrossRef(t *testing.T) {
	store := NewInMemoryStore()
	l := New(store, zap.NewNop(), 0)

	err := l.Record("eval-1", testEntry("eval-1"), []byte(`{}`), testEvent("eval-1"))
	require.NoError(t, err)

	_, ok := store.GetDecisionLog("eval-1")
	require.True(t, ok)

	event, ok := store.GetEvent("eval-1")
	require.True(t, ok)
	require.Equal(t, "reports/eval-1.sarif.json", event.ReportRef)

	_, ok = store.Report("eval-1")
	require.True(t, ok)
}

func TestRecordSwallowsDecisionLogFailure(t *testing.T) {
	store := &flakyStore{InMemoryStore: NewInMemoryStore(), decisionFailures: 10}
	l := New(store, zap.NewNop(), 0)
	l.backoff = 0

	// Decision log is audit-best-effort; report and event still land.
	err := l.Record("eval-1", testEntry("eval-1"), []byte(`{}`), testEvent("eval-1"))
	require.NoError(t, err)
	_, ok := store.GetEvent("eval-1")
	require.True(t, ok)
}

func TestRecordReportFailureIsHard(t *testing.T) {
	store := &flakyStore{InMemoryStore: NewInMemoryStore(), reportFails: true}
	l := New(store, zap.NewNop(), 0)

	err := l.Record("eval-1", testEntry("eval-1"), []byte(`{}`), testEvent("eval-1"))
	require.ErrorIs(t, err, ErrReportWrite)
}

func TestRecordEventFailureIsHard(t *testing.T) {
	store := &flakyStore{InMemoryStore: NewInMemoryStore(), eventFails: true}
	l := New(store, zap.NewNop(), 0)

	// Decision log and report are durable by the time the event write fails;
	// the caller must still be told the trace chain is broken.
	err := l.Record("eval-1", testEntry("eval-1"), []byte(`{}`), testEvent("eval-1"))
	require.ErrorIs(t, err, ErrEventWrite)
	_, ok := store.Report("eval-1")
	require.True(t, ok)
}

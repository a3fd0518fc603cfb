// Package ledger is the evidence ledger: three append-only, cross-linked
// stores (verification events, decision logs, generated reports) unified by
// one sortable evaluation identifier. Correction is only by appending a new,
// cross-referencing record; no update or delete exists.
package ledger

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evidentops/reqgate/pkg/types"
)

// Store is one physical backing for the three ledger partitions. A write to
// one partition never blocks or corrupts another.
type Store interface {
	AppendDecisionLog(entry types.DecisionLogEntry) error
	WriteReport(id string, artifact []byte) (ref string, err error)
	AppendEvent(event types.VerificationEvent) error

	GetDecisionLog(evaluationID string) (types.DecisionLogEntry, bool)
	GetEvent(eventID string) (types.VerificationEvent, bool)
}

// Ledger wraps a Store with the write policy the gate requires: decision-log
// appends are audit-best-effort with bounded retry, report and event writes
// are hard failures because they break the trace chain.
type Ledger struct {
	store   Store
	log     *zap.Logger
	retries int
	backoff time.Duration
}

func New(store Store, logger *zap.Logger, retries int) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 0 {
		retries = 0
	}
	return &Ledger{store: store, log: logger, retries: retries, backoff: 50 * time.Millisecond}
}

// AppendDecisionLog appends one decision-log entry, retrying with exponential
// backoff up to the configured attempt budget. The caller decides whether an
// exhausted error is fatal; for evaluation it is not.
func (l *Ledger) AppendDecisionLog(entry types.DecisionLogEntry) error {
	var err error
	for attempt := 0; attempt <= l.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(l.backoff << (attempt - 1))
		}
		if err = l.store.AppendDecisionLog(entry); err == nil {
			return nil
		}
		l.log.Warn("decision log append failed",
			zap.String("evaluation_id", entry.EvaluationID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return fmt.Errorf("%w: %s", ErrDecisionLogWrite, err)
}

// Record persists one evaluation's full trail in order: decision log first
// (cheapest, most essential), then the report artifact, then the verification
// event referencing the report. A decision-log failure is logged and
// swallowed; report and event failures are returned.
func (l *Ledger) Record(evaluationID string, entry types.DecisionLogEntry, report []byte, event types.VerificationEvent) error {
	if err := l.AppendDecisionLog(entry); err != nil {
		l.log.Warn("decision log entry lost", zap.String("evaluation_id", evaluationID), zap.Error(err))
	}

	ref, err := l.store.WriteReport(evaluationID, report)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrReportWrite, evaluationID, err)
	}

	if event.ReportRef == "" {
		event.ReportRef = ref
	}
	if err := l.store.AppendEvent(event); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrEventWrite, evaluationID, err)
	}
	return nil
}

// WriteReport stores one report artifact, returning its stable handle.
func (l *Ledger) WriteReport(id string, artifact []byte) (string, error) {
	ref, err := l.store.WriteReport(id, artifact)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrReportWrite, id, err)
	}
	return ref, nil
}

// AppendEvent appends one verification event. Failure is a hard error.
func (l *Ledger) AppendEvent(event types.VerificationEvent) error {
	if err := l.store.AppendEvent(event); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrEventWrite, event.EventID, err)
	}
	return nil
}

func (l *Ledger) GetDecisionLog(evaluationID string) (types.DecisionLogEntry, bool) {
	return l.store.GetDecisionLog(evaluationID)
}

func (l *Ledger) GetEvent(eventID string) (types.VerificationEvent, bool) {
	return l.store.GetEvent(eventID)
}

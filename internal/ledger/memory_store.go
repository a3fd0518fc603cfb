package ledger

import (
	"fmt"
	"sync"

	"github.com/evidentops/reqgate/pkg/types"
)

// InMemoryStore backs the ledger for tests and dry runs.
type InMemoryStore struct {
	mu sync.Mutex

	decisions []types.DecisionLogEntry
	events    []types.VerificationEvent
	reports   map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[string][]byte)}
}

func (s *InMemoryStore) AppendDecisionLog(entry types.DecisionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, entry)
	return nil
}

func (s *InMemoryStore) AppendEvent(event types.VerificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) WriteReport(id string, artifact []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; ok {
		return "", fmt.Errorf("report %s already exists", id)
	}
	body := make([]byte, len(artifact))
	copy(body, artifact)
	s.reports[id] = body
	return "reports/" + id + ".sarif.json", nil
}

func (s *InMemoryStore) GetDecisionLog(evaluationID string) (types.DecisionLogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.decisions {
		if entry.EvaluationID == evaluationID {
			return entry, true
		}
	}
	return types.DecisionLogEntry{}, false
}

func (s *InMemoryStore) GetEvent(eventID string) (types.VerificationEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.EventID == eventID {
			return event, true
		}
	}
	return types.VerificationEvent{}, false
}

// DecisionLogs returns a copy of all appended decision-log entries in order.
func (s *InMemoryStore) DecisionLogs() []types.DecisionLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DecisionLogEntry, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// Events returns a copy of all appended verification events in order.
func (s *InMemoryStore) Events() []types.VerificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.VerificationEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Report returns a stored report artifact by id.
func (s *InMemoryStore) Report(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.reports[id]
	return body, ok
}

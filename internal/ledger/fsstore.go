package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/evidentops/reqgate/pkg/types"
)

const (
	eventsFile    = "events/events.jsonl"
	decisionsFile = "decision_logs/decisions.jsonl"
	reportsDir    = "reports"
)

// FSStore keeps the ledger on disk as one JSON object per line per store:
//
//	<dir>/events/events.jsonl
//	<dir>/decision_logs/decisions.jsonl
//	<dir>/reports/<id>.sarif.json
//
// Producers never rewrite a line; consumers read the files as an immutable,
// replayable audit trail. Each partition has its own lock.
type FSStore struct {
	dir string

	eventsMu    sync.Mutex
	decisionsMu sync.Mutex
	reportsMu   sync.Mutex
}

func OpenFS(dir string) (*FSStore, error) {
	for _, sub := range []string{filepath.Dir(eventsFile), filepath.Dir(decisionsFile), reportsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, err
		}
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Dir() string { return s.dir }

func (s *FSStore) AppendDecisionLog(entry types.DecisionLogEntry) error {
	s.decisionsMu.Lock()
	defer s.decisionsMu.Unlock()
	return appendLine(filepath.Join(s.dir, decisionsFile), entry)
}

func (s *FSStore) AppendEvent(event types.VerificationEvent) error {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	return appendLine(filepath.Join(s.dir, eventsFile), event)
}

// WriteReport writes one report artifact named by its run identifier and
// returns the path relative to the ledger root as the stable handle.
func (s *FSStore) WriteReport(id string, artifact []byte) (string, error) {
	if id == "" {
		return "", fmt.Errorf("report id is required")
	}
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()

	rel := filepath.Join(reportsDir, id+".sarif.json")
	path := filepath.Join(s.dir, rel)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("report %s already exists", id)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, artifact, 0o640); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return rel, nil
}

func (s *FSStore) GetDecisionLog(evaluationID string) (types.DecisionLogEntry, bool) {
	s.decisionsMu.Lock()
	defer s.decisionsMu.Unlock()

	var found types.DecisionLogEntry
	ok := scanLines(filepath.Join(s.dir, decisionsFile), func(line []byte) bool {
		var entry types.DecisionLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return false
		}
		if entry.EvaluationID == evaluationID {
			found = entry
			return true
		}
		return false
	})
	return found, ok
}

func (s *FSStore) GetEvent(eventID string) (types.VerificationEvent, bool) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	var found types.VerificationEvent
	ok := scanLines(filepath.Join(s.dir, eventsFile), func(line []byte) bool {
		var event types.VerificationEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return false
		}
		if event.EventID == eventID {
			found = event
			return true
		}
		return false
	})
	return found, ok
}

// ReadReport returns a stored report artifact by its handle.
func (s *FSStore) ReadReport(ref string) ([]byte, error) {
	// #nosec G304 -- ref is a handle minted by WriteReport under the ledger root.
	return os.ReadFile(filepath.Join(s.dir, ref))
}

func appendLine(path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	// #nosec G304 -- path is derived from the operator-configured ledger dir.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(body, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func scanLines(path string, match func([]byte) bool) bool {
	// #nosec G304 -- path is derived from the operator-configured ledger dir.
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if match(scanner.Bytes()) {
			return true
		}
	}
	return false
}

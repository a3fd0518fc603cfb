// Package sqlstore backs the evidence ledger with SQLite when indexed lookup
// by evaluation identifier matters more than a replayable file trail. Primary
// keys enforce the same append-only semantics as the JSONL store.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/evidentops/reqgate/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS decision_logs (
	evaluation_id TEXT PRIMARY KEY,
	ts            TEXT NOT NULL,
	body_json     BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	event_id   TEXT PRIMARY KEY,
	ts         TEXT NOT NULL,
	report_ref TEXT NOT NULL,
	body_json  BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS reports (
	report_id TEXT PRIMARY KEY,
	artifact  BLOB NOT NULL
);
`

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) AppendDecisionLog(entry types.DecisionLogEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO decision_logs (evaluation_id, ts, body_json) VALUES (?, ?, ?)`,
		entry.EvaluationID, entry.Timestamp, body,
	)
	return err
}

func (s *Store) AppendEvent(event types.VerificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO events (event_id, ts, report_ref, body_json) VALUES (?, ?, ?, ?)`,
		event.EventID, event.Timestamp, event.ReportRef, body,
	)
	return err
}

func (s *Store) WriteReport(id string, artifact []byte) (string, error) {
	if id == "" {
		return "", fmt.Errorf("report id is required")
	}
	if _, err := s.db.Exec(
		`INSERT INTO reports (report_id, artifact) VALUES (?, ?)`, id, artifact,
	); err != nil {
		return "", err
	}
	return "reports/" + id + ".sarif.json", nil
}

func (s *Store) GetDecisionLog(evaluationID string) (types.DecisionLogEntry, bool) {
	var body []byte
	row := s.db.QueryRow(`SELECT body_json FROM decision_logs WHERE evaluation_id = ?`, evaluationID)
	if err := row.Scan(&body); err != nil {
		return types.DecisionLogEntry{}, false
	}
	var entry types.DecisionLogEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return types.DecisionLogEntry{}, false
	}
	return entry, true
}

func (s *Store) GetEvent(eventID string) (types.VerificationEvent, bool) {
	var body []byte
	row := s.db.QueryRow(`SELECT body_json FROM events WHERE event_id = ?`, eventID)
	if err := row.Scan(&body); err != nil {
		return types.VerificationEvent{}, false
	}
	var event types.VerificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return types.VerificationEvent{}, false
	}
	return event, true
}

// ReadReport returns a mirrored report artifact by id.
func (s *Store) ReadReport(id string) ([]byte, bool) {
	var artifact []byte
	row := s.db.QueryRow(`SELECT artifact FROM reports WHERE report_id = ?`, id)
	if err := row.Scan(&artifact); err != nil {
		return nil, false
	}
	return artifact, true
}

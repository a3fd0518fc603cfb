package types

import "encoding/json"

const VerificationEventSchema = "verification_event/1"

// VerificationEvent is the append-only audit record linking a requirement, a
// target, a decision summary, and the report that carries the full result.
type VerificationEvent struct {
	Schema          string          `json:"schema"`
	EventID         string          `json:"event_id"`
	RequirementUID  string          `json:"requirement_uid"`
	Target          Target          `json:"target"`
	DecisionSummary DecisionSummary `json:"decision_summary"`
	Timestamp       string          `json:"timestamp"`
	ReportRef       string          `json:"report_ref"`
}

type DecisionSummary struct {
	Status     DecisionStatus `json:"status"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
}

// DecisionLogEntry records one evaluation call attempt in full: the composed
// input, the raw engine output (absent on process failure), and the final
// decision. One entry is appended per attempt, success or not.
type DecisionLogEntry struct {
	EvaluationID string           `json:"evaluation_id"`
	Timestamp    string           `json:"timestamp"`
	Requirement  Requirement      `json:"requirement"`
	Facts        Facts            `json:"facts"`
	Context      map[string]any   `json:"context"`
	RawOutput    json.RawMessage  `json:"raw_output,omitempty"`
	Decision     Decision         `json:"decision"`
	Policy       PolicyProvenance `json:"policy"`
}

package types

const FactsSchema = "facts/1"

const (
	EvidenceCodeSpan = "code_span"
	EvidenceArtifact = "artifact"
	EvidenceLog      = "log"
	EvidenceMetric   = "metric"
)

// Facts are typed, agent-produced observations about a target revision.
// They carry evidence pointers and observed values, never a verdict.
type Facts struct {
	Schema   string         `json:"schema,omitempty"`
	Agent    Agent          `json:"agent,omitempty"`
	Target   Target         `json:"target"`
	Evidence []Evidence     `json:"evidence,omitempty"`
	Facts    map[string]any `json:"facts,omitempty"`
}

type Agent struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Target is the code revision/build under evaluation.
type Target struct {
	Repo   string `json:"repo"`
	Commit string `json:"commit"`
	Build  string `json:"build,omitempty"`
}

func (t Target) Empty() bool {
	return t.Repo == "" && t.Commit == "" && t.Build == ""
}

// Evidence is a URI-addressable pointer supporting a fact or criterion outcome.
type Evidence struct {
	Type      string `json:"type"`
	URI       string `json:"uri"`
	StartLine *int   `json:"startLine,omitempty"`
	EndLine   *int   `json:"endLine,omitempty"`
	Note      string `json:"note,omitempty"`
}

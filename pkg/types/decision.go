package types

const DecisionSchema = "decision/1"

type DecisionStatus string

const (
	StatusPass            DecisionStatus = "pass"
	StatusFail            DecisionStatus = "fail"
	StatusConditionalPass DecisionStatus = "conditional_pass"
	StatusInconclusive    DecisionStatus = "inconclusive"
	StatusNotApplicable   DecisionStatus = "not_applicable"
	StatusBlocked         DecisionStatus = "blocked"
	StatusWaived          DecisionStatus = "waived"
)

func ValidDecisionStatus(s DecisionStatus) bool {
	switch s {
	case StatusPass, StatusFail, StatusConditionalPass, StatusInconclusive,
		StatusNotApplicable, StatusBlocked, StatusWaived:
		return true
	}
	return false
}

// StatusSeverity ranks statuses for combination strategies: higher means worse.
func StatusSeverity(s DecisionStatus) int {
	switch s {
	case StatusPass:
		return 0
	case StatusNotApplicable:
		return 1
	case StatusWaived:
		return 2
	case StatusConditionalPass:
		return 3
	case StatusInconclusive:
		return 4
	case StatusBlocked:
		return 5
	case StatusFail:
		return 6
	}
	return 4
}

// Decision is the structured verdict for one requirement evaluation.
// Immutable once logged.
type Decision struct {
	Status     DecisionStatus   `json:"status"`
	Score      float64          `json:"score"`
	Confidence float64          `json:"confidence"`
	Criteria   []Criterion      `json:"criteria"`
	Reasons    []string         `json:"reasons"`
	Policy     PolicyProvenance `json:"policy"`
}

type Criterion struct {
	ID       string         `json:"id"`
	Status   DecisionStatus `json:"status"`
	Weight   int            `json:"weight"`
	Message  string         `json:"message,omitempty"`
	Evidence []int          `json:"evidence,omitempty"`
}

type PolicyProvenance struct {
	Bundle   string `json:"bundle"`
	Revision string `json:"revision"`
	Hash     string `json:"hash"`
}

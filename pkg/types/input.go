package types

// EvaluationInput is the wire triple handed to the policy engine.
type EvaluationInput struct {
	Requirement Requirement    `json:"requirement"`
	Facts       Facts          `json:"facts"`
	Context     map[string]any `json:"context"`
}

package types

const RequirementSchema = "requirement/1"

type RequirementStatus string

const (
	RequirementActive   RequirementStatus = "active"
	RequirementObsolete RequirementStatus = "obsolete"
	RequirementDraft    RequirementStatus = "draft"
)

func ValidRequirementStatus(s RequirementStatus) bool {
	switch s {
	case RequirementActive, RequirementObsolete, RequirementDraft:
		return true
	}
	return false
}

// Requirement is one normalized requirement record. Records are immutable once
// published in a baseline; supersession appends a new record with a SupersededBy
// back-reference on the old one.
type Requirement struct {
	Schema         string            `json:"schema,omitempty"`
	UID            string            `json:"uid"`
	Key            string            `json:"key"`
	Subtypes       []string          `json:"subtypes"`
	Status         RequirementStatus `json:"status"`
	PolicyBaseline PolicyBaseline    `json:"policy_baseline"`
	Rubrics        []Rubric          `json:"rubrics"`
	Text           string            `json:"text"`
	Attrs          map[string]any    `json:"attrs,omitempty"`
	SupersededBy   *string           `json:"superseded_by,omitempty"`
}

type PolicyBaseline struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	ContentHash string `json:"hash"`
}

// Rubric names one evaluation entry point in the policy engine.
type Rubric struct {
	Engine  string `json:"engine"`
	Bundle  string `json:"bundle"`
	Package string `json:"package"`
	Rule    string `json:"rule"`
}

func (r Rubric) Complete() bool {
	return r.Engine != "" && r.Bundle != "" && r.Package != "" && r.Rule != ""
}

// HasSubtype reports whether the requirement carries the given classification tag.
func (r Requirement) HasSubtype(subtype string) bool {
	for _, s := range r.Subtypes {
		if s == subtype {
			return true
		}
	}
	return false
}

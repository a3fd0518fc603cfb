// Package decision enforces the decision/1 contract on raw engine output and
// builds the synthetic decisions the orchestrator substitutes on failure.
package decision

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/evidentops/reqgate/pkg/types"
)

var ErrSchemaViolation = errors.New("decision violates decision/1 contract")

// rawDecision distinguishes absent fields from zero values.
type rawDecision struct {
	Status     *types.DecisionStatus   `json:"status"`
	Score      *float64                `json:"score"`
	Confidence *float64                `json:"confidence"`
	Criteria   *[]types.Criterion      `json:"criteria"`
	Reasons    *[]string               `json:"reasons"`
	Policy     *types.PolicyProvenance `json:"policy"`
}

// Validate parses raw engine output and enforces the decision contract:
// required fields, the closed status set, score/confidence in [0,1], and
// non-negative criterion weights. A missing score is derived from criteria.
func Validate(raw json.RawMessage) (types.Decision, error) {
	var parsed rawDecision
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.Decision{}, fmt.Errorf("%w: %s", ErrSchemaViolation, err)
	}

	if parsed.Status == nil {
		return types.Decision{}, fmt.Errorf("%w: missing status", ErrSchemaViolation)
	}
	if !types.ValidDecisionStatus(*parsed.Status) {
		return types.Decision{}, fmt.Errorf("%w: status %q outside closed set", ErrSchemaViolation, *parsed.Status)
	}
	if parsed.Criteria == nil {
		return types.Decision{}, fmt.Errorf("%w: missing criteria", ErrSchemaViolation)
	}
	if parsed.Reasons == nil {
		return types.Decision{}, fmt.Errorf("%w: missing reasons", ErrSchemaViolation)
	}
	if parsed.Policy == nil {
		return types.Decision{}, fmt.Errorf("%w: missing policy provenance", ErrSchemaViolation)
	}
	if parsed.Policy.Bundle == "" || parsed.Policy.Revision == "" || parsed.Policy.Hash == "" {
		return types.Decision{}, fmt.Errorf("%w: policy provenance requires bundle, revision, hash", ErrSchemaViolation)
	}

	for i, c := range *parsed.Criteria {
		if c.Weight < 0 {
			return types.Decision{}, fmt.Errorf("%w: criteria[%d] has negative weight", ErrSchemaViolation, i)
		}
		if !types.ValidDecisionStatus(c.Status) {
			return types.Decision{}, fmt.Errorf("%w: criteria[%d] status %q outside closed set", ErrSchemaViolation, i, c.Status)
		}
	}

	d := types.Decision{
		Status:   *parsed.Status,
		Criteria: *parsed.Criteria,
		Reasons:  *parsed.Reasons,
		Policy:   *parsed.Policy,
	}

	if parsed.Score != nil {
		if *parsed.Score < 0 || *parsed.Score > 1 {
			return types.Decision{}, fmt.Errorf("%w: score %v outside [0,1]", ErrSchemaViolation, *parsed.Score)
		}
		d.Score = *parsed.Score
	} else {
		d.Score = DeriveScore(d.Criteria)
	}

	if parsed.Confidence != nil {
		if *parsed.Confidence < 0 || *parsed.Confidence > 1 {
			return types.Decision{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrSchemaViolation, *parsed.Confidence)
		}
		d.Confidence = *parsed.Confidence
	}

	return d, nil
}

// DeriveScore computes the weighted share of passing criteria:
// sum(weights of pass criteria) / sum(all weights). Zero total weight gives 0.
func DeriveScore(criteria []types.Criterion) float64 {
	total, passing := 0, 0
	for _, c := range criteria {
		total += c.Weight
		if c.Status == types.StatusPass {
			passing += c.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return float64(passing) / float64(total)
}

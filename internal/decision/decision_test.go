package decision

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evidentops/reqgate/pkg/types"
)

const validDecision = `{
	"status": "pass",
	"score": 1.0,
	"confidence": 0.9,
	"criteria": [
		{"id": "c1", "status": "pass", "weight": 1, "message": "ok"}
	],
	"reasons": ["all criteria satisfied"],
	"policy": {"bundle": "org/compliance", "revision": "rev-1", "hash": "sha256:abc"}
}`

func TestValidateAcceptsContractOutput(t *testing.T) {
	d, err := Validate(json.RawMessage(validDecision))
	require.NoError(t, err)
	require.Equal(t, types.StatusPass, d.Status)
	require.Equal(t, 1.0, d.Score)
	require.Equal(t, 0.9, d.Confidence)
	require.Len(t, d.Criteria, 1)
}

func TestValidateRejectsUnknownStatus(t *testing.T) {
	raw := `{"status":"maybe","criteria":[],"reasons":[],"policy":{"bundle":"b","revision":"r","hash":"h"}}`
	_, err := Validate(json.RawMessage(raw))
	require.ErrorIs(t, err, ErrSchemaViolation)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"status":   `{"criteria":[],"reasons":[],"policy":{"bundle":"b","revision":"r","hash":"h"}}`,
		"criteria": `{"status":"pass","reasons":[],"policy":{"bundle":"b","revision":"r","hash":"h"}}`,
		"reasons":  `{"status":"pass","criteria":[],"policy":{"bundle":"b","revision":"r","hash":"h"}}`,
		"policy":   `{"status":"pass","criteria":[],"reasons":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(json.RawMessage(raw))
			require.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestValidateRejectsOutOfRangeScore(t *testing.T) {
	raw := `{"status":"pass","score":1.5,"criteria":[],"reasons":[],"policy":{"bundle":"b","revision":"r","hash":"h"}}`
	_, err := Validate(json.RawMessage(raw))
	require.ErrorIs(t, err, ErrSchemaViolation)

	raw = `{"status":"pass","confidence":-0.1,"criteria":[],"reasons":[],"policy":{"bundle":"b","revision":"r","hash":"h"}}`
	_, err = Validate(json.RawMessage(raw))
	require.ErrorIs(t, err, ErrSchemaViolation)
}

func TestValidateRejectsNegativeWeight(t *testing.T) {
	raw := `{"status":"fail","criteria":[{"id":"c1","status":"fail","weight":-1}],"reasons":[],"policy":{"bundle":"b","revision":"r","hash":"h"}}`
	_, err := Validate(json.RawMessage(raw))
	require.ErrorIs(t, err, ErrSchemaViolation)
}

func TestValidateDerivesMissingScoreFromWeights(t *testing.T) {
	// Criterion A passes with weight 3, criterion B fails with weight 4: 3/7.
	raw := `{
		"status": "fail",
		"criteria": [
			{"id": "A", "status": "pass", "weight": 3, "message": "encryption enabled"},
			{"id": "B", "status": "fail", "weight": 4, "message": "no audit trail"}
		],
		"reasons": ["audit trail missing"],
		"policy": {"bundle": "org/compliance", "revision": "rev-1", "hash": "sha256:abc"}
	}`
	d, err := Validate(json.RawMessage(raw))
	require.NoError(t, err)
	require.Equal(t, types.StatusFail, d.Status)
	require.InDelta(t, 3.0/7.0, d.Score, 1e-9)
}

func TestDeriveScoreZeroWeights(t *testing.T) {
	require.Equal(t, 0.0, DeriveScore(nil))
	require.Equal(t, 0.0, DeriveScore([]types.Criterion{{Status: types.StatusPass, Weight: 0}}))
}

func TestSyntheticTimeout(t *testing.T) {
	prov := types.PolicyProvenance{Bundle: "b", Revision: "r", Hash: "h"}
	d := Timeout(prov, 5*time.Second)
	require.Equal(t, types.StatusInconclusive, d.Status)
	require.Equal(t, 0.0, d.Confidence)
	require.Contains(t, d.Reasons[0], "timeout")
	require.Equal(t, prov, d.Policy)
}

func TestSyntheticCancelled(t *testing.T) {
	d := Cancelled(types.PolicyProvenance{})
	require.Equal(t, types.StatusInconclusive, d.Status)
	require.Contains(t, d.Reasons[0], "cancelled")
}

func TestSyntheticSchemaViolation(t *testing.T) {
	d := SchemaViolation(types.PolicyProvenance{}, ErrSchemaViolation)
	require.Equal(t, types.StatusInconclusive, d.Status)
	require.Contains(t, d.Reasons[0], "SchemaViolation")
}

func TestCombineFirstWins(t *testing.T) {
	// The combination strategy for multiple rubrics is deliberately
	// configurable; first-wins is the documented default.
	decisions := []types.Decision{
		{Status: types.StatusPass, Score: 1},
		{Status: types.StatusFail, Score: 0},
	}
	got := Combine(decisions, CombineFirstWins)
	require.Equal(t, types.StatusPass, got.Status)
}

func TestCombineAllMustPass(t *testing.T) {
	decisions := []types.Decision{
		{Status: types.StatusPass, Score: 1},
		{Status: types.StatusFail, Score: 0, Reasons: []string{"criterion missed"}},
		{Status: types.StatusConditionalPass, Score: 0.5},
	}
	got := Combine(decisions, CombineAllMustPass)
	require.Equal(t, types.StatusFail, got.Status)
}

func TestCombineWeightedMerge(t *testing.T) {
	decisions := []types.Decision{
		{Status: types.StatusPass, Score: 1, Confidence: 0.8},
		{Status: types.StatusConditionalPass, Score: 0.5, Confidence: 0.6},
	}
	got := Combine(decisions, CombineWeightedMerge)
	require.Equal(t, types.StatusConditionalPass, got.Status)
	require.InDelta(t, 0.75, got.Score, 1e-9)
	require.InDelta(t, 0.7, got.Confidence, 1e-9)
}

func TestCombineEmpty(t *testing.T) {
	got := Combine(nil, CombineFirstWins)
	require.Equal(t, types.StatusInconclusive, got.Status)
}

package decision

import "github.com/evidentops/reqgate/pkg/types"

const (
	CombineFirstWins     = "first-wins"
	CombineAllMustPass   = "all-must-pass"
	CombineWeightedMerge = "weighted-merge"
)

// Combine folds per-rubric decisions into one requirement decision. With a
// single entry every strategy is the identity. Unknown strategies fall back
// to first-wins.
func Combine(decisions []types.Decision, strategy string) types.Decision {
	if len(decisions) == 0 {
		return types.Decision{Status: types.StatusInconclusive, Criteria: []types.Criterion{}, Reasons: []string{"no rubric produced a decision"}}
	}
	if len(decisions) == 1 {
		return decisions[0]
	}

	switch strategy {
	case CombineAllMustPass:
		return worstOf(decisions)
	case CombineWeightedMerge:
		merged := worstOf(decisions)
		var score, confidence float64
		for _, d := range decisions {
			score += d.Score
			confidence += d.Confidence
		}
		merged.Score = score / float64(len(decisions))
		merged.Confidence = confidence / float64(len(decisions))
		return merged
	default:
		return decisions[0]
	}
}

// worstOf picks the decision with the worst status, earliest entry winning ties
// so that combination stays deterministic in rubric list order.
func worstOf(decisions []types.Decision) types.Decision {
	worst := decisions[0]
	for _, d := range decisions[1:] {
		if types.StatusSeverity(d.Status) > types.StatusSeverity(worst.Status) {
			worst = d
		}
	}
	return worst
}

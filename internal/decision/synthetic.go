package decision

import (
	"fmt"
	"time"

	"github.com/evidentops/reqgate/pkg/types"
)

// synthetic builds the decision the orchestrator substitutes when the engine
// cannot produce a usable one. Confidence is always 0: nothing was evaluated.
func synthetic(status types.DecisionStatus, reason string, prov types.PolicyProvenance) types.Decision {
	return types.Decision{
		Status:     status,
		Score:      0,
		Confidence: 0,
		Criteria:   []types.Criterion{},
		Reasons:    []string{reason},
		Policy:     prov,
	}
}

func Timeout(prov types.PolicyProvenance, deadline time.Duration) types.Decision {
	return synthetic(types.StatusInconclusive,
		fmt.Sprintf("engine call exceeded %s timeout", deadline), prov)
}

func Cancelled(prov types.PolicyProvenance) types.Decision {
	return synthetic(types.StatusInconclusive, "cancelled", prov)
}

func SchemaViolation(prov types.PolicyProvenance, err error) types.Decision {
	return synthetic(types.StatusInconclusive, "SchemaViolation: "+err.Error(), prov)
}

func EngineFailure(prov types.PolicyProvenance, err error) types.Decision {
	return synthetic(types.StatusInconclusive, "engine failure: "+err.Error(), prov)
}

func Blocked(prov types.PolicyProvenance, reason string) types.Decision {
	return synthetic(types.StatusBlocked, reason, prov)
}

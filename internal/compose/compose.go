// Package compose builds the {requirement, facts, context} triple handed to
// the policy engine. It is pure: no I/O, no clock, no engine calls.
package compose

import (
	"errors"
	"fmt"

	"github.com/evidentops/reqgate/pkg/types"
)

var ErrMissingTarget = errors.New("facts document is missing target")

// Resolver reports whether a rubric names an evaluable entry point in the
// configured bundle set.
type Resolver interface {
	Resolvable(types.Rubric) bool
}

// Input is a composed evaluation input plus resolution state for each rubric.
// An unresolvable rubric marks its entry blocked instead of raising.
type Input struct {
	types.EvaluationInput
	// Unresolved holds the indices of rubrics that do not resolve.
	Unresolved []int
}

// Blocked reports whether no rubric at all can be evaluated.
func (in Input) Blocked() bool {
	return len(in.Unresolved) == len(in.Requirement.Rubrics)
}

func (in Input) Resolves(rubricIdx int) bool {
	for _, i := range in.Unresolved {
		if i == rubricIdx {
			return false
		}
	}
	return true
}

// Compose validates facts and assembles the engine input. Context is attached
// verbatim; it is opaque to this layer.
func Compose(req types.Requirement, facts types.Facts, ctx map[string]any, resolver Resolver) (Input, error) {
	if facts.Target.Empty() {
		return Input{}, fmt.Errorf("%w: requirement %s", ErrMissingTarget, req.UID)
	}
	if ctx == nil {
		ctx = map[string]any{}
	}

	in := Input{
		EvaluationInput: types.EvaluationInput{
			Requirement: req,
			Facts:       facts,
			Context:     ctx,
		},
	}
	for i, rubric := range req.Rubrics {
		if resolver == nil || !resolver.Resolvable(rubric) {
			in.Unresolved = append(in.Unresolved, i)
		}
	}
	return in, nil
}

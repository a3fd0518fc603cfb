package index

import "errors"

var (
	ErrDuplicateUID      = errors.New("duplicate requirement uid in baseline")
	ErrUnresolvedRubric  = errors.New("rubric entry missing required fields")
	ErrSupersessionCycle = errors.New("supersession chain contains a cycle")
	ErrUnknownBaseline   = errors.New("baseline not found")
	ErrInvalidRecord     = errors.New("invalid requirement record")
)

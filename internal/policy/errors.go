package policy

import "errors"

var (
	ErrEngineFailed    = errors.New("policy engine invocation failed")
	ErrMalformedOutput = errors.New("policy engine output is malformed")
)

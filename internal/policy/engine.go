package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/evidentops/reqgate/pkg/types"
)

// Engine is the capability interface for the external policy evaluator. The
// orchestrator only composes its input and parses its output, so the engine
// can be a subprocess, an in-process evaluator, or a remote service.
type Engine interface {
	Evaluate(ctx context.Context, input types.EvaluationInput, ref Ref) (json.RawMessage, error)
}

// ExecEngine invokes the OPA binary as a subprocess:
//
//	opa eval --bundle <dir> --format json --stdin-input data.<package>.<rule>
type ExecEngine struct {
	Binary string
}

func NewExecEngine(binary string) *ExecEngine {
	if binary == "" {
		binary = "opa"
	}
	return &ExecEngine{Binary: binary}
}

func (e *ExecEngine) Evaluate(ctx context.Context, input types.EvaluationInput, ref Ref) (json.RawMessage, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation input: %w", err)
	}

	// #nosec G204 -- binary and bundle path are operator-configured.
	cmd := exec.CommandContext(ctx, e.Binary,
		"eval",
		"--bundle", ref.Bundle.Path,
		"--format", "json",
		"--stdin-input",
		ref.Query(),
	)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrEngineFailed, err, strings.TrimSpace(stderr.String()))
	}

	return extractDecision(stdout.Bytes())
}

// extractDecision unwraps the eval envelope:
// {"result":[{"expressions":[{"value":<decision>}]}]}
func extractDecision(raw []byte) (json.RawMessage, error) {
	var envelope struct {
		Result []struct {
			Expressions []struct {
				Value json.RawMessage `json:"value"`
			} `json:"expressions"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedOutput, err)
	}
	if len(envelope.Result) == 0 || len(envelope.Result[0].Expressions) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrMalformedOutput)
	}
	value := envelope.Result[0].Expressions[0].Value
	if len(value) == 0 || string(value) == "null" {
		return nil, fmt.Errorf("%w: undefined decision", ErrMalformedOutput)
	}
	return value, nil
}

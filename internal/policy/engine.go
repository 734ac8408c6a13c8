// Package policy wraps an OPA/Rego evaluator, grounded on the teacher's
// policy/engine.go, repurposed from tool-call allow/block/require_approval
// decisions to gating whether a stage may issue a web-search tool call at
// all (independent of the guardrail's runtime budget latch).
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine evaluates the websearch policy for a given invocation context.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from the given Rego module source.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.websearch_policy.decision"),
		rego.Module("websearch_policy.rego", policyContent),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// Evaluate returns "allow" or "block" for the given input, defaulting to
// "allow" if the module produces no result.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "allow", nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// DefaultPolicy blocks web-search for the debate_challenger and synthesizer
// roles and allows it everywhere else.
const DefaultPolicy = `
package websearch_policy

default decision = "allow"

decision = "block" {
	input.agent_name == "debate_challenger"
}

decision = "block" {
	input.agent_name == "synthesizer"
}
`

// Package policy evaluates relay eligibility with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// RelayInput describes one candidate recipient of a relayed reply.
type RelayInput struct {
	Recipient      string   `json:"recipient"`
	Sender         string   `json:"sender"`
	OriginalSender string   `json:"original_sender"`
	Chain          []string `json:"chain"`
	StrictAcyclic  bool     `json:"strict_acyclic"`
}

// Allowed applies the built-in relay rule without OPA.
func (in RelayInput) Allowed() bool {
	if in.Recipient == in.Sender || in.Recipient == in.OriginalSender {
		return false
	}
	if in.StrictAcyclic {
		for _, name := range in.Chain {
			if name == in.Recipient {
				return false
			}
		}
	}
	return true
}

func (in RelayInput) toMap() map[string]interface{} {
	chain := make([]interface{}, 0, len(in.Chain))
	for _, c := range in.Chain {
		chain = append(chain, c)
	}
	return map[string]interface{}{
		"recipient":       in.Recipient,
		"sender":          in.Sender,
		"original_sender": in.OriginalSender,
		"chain":           chain,
		"strict_acyclic":  in.StrictAcyclic,
	}
}

// Engine is the OPA relay policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares policyContent, which must define data.relay_policy.allow.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.relay_policy.allow"),
		rego.Module("relay_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// AllowRelay reports whether the reply may be forwarded to in.Recipient.
func (e *Engine) AllowRelay(ctx context.Context, in RelayInput) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, fmt.Errorf("relay policy produced no decision")
	}

	allow, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("relay policy returned %T, want bool", results[0].Expressions[0].Value)
	}
	return allow, nil
}

// DefaultPolicy never echoes a reply to its author or its original sender.
// With strict_acyclic set, agents already on the provenance chain are skipped too.
const DefaultPolicy = `
package relay_policy

default allow = false

allow {
	input.recipient != input.sender
	input.recipient != input.original_sender
	not on_chain
}

on_chain {
	input.strict_acyclic
	input.chain[_] == input.recipient
}
`

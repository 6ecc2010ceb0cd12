// Package policy guards assembled pipelines with an embedded Rego policy.
// A violating pipeline is rejected before any provisioning side effect.
package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/clusterfleet/infra-provisioner/internal/pipeline"
	"github.com/open-policy-agent/opa/rego"
)

//go:embed pipeline.rego
var policyContent string

type Guard struct {
	allowQuery      rego.PreparedEvalQuery
	violationsQuery rego.PreparedEvalQuery
}

type Result struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

func NewGuard() (*Guard, error) {
	ctx := context.Background()

	allowQuery, err := rego.New(
		rego.Query("data.pipeline.allow"),
		rego.Module("pipeline.rego", policyContent),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	violationsQuery, err := rego.New(
		rego.Query("data.pipeline.violations"),
		rego.Module("pipeline.rego", policyContent),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare violations query: %w", err)
	}

	return &Guard{
		allowQuery:      allowQuery,
		violationsQuery: violationsQuery,
	}, nil
}

// Check evaluates the assembled pipeline against the policy.
func (g *Guard) Check(ctx context.Context, spec *pipeline.Spec) (*Result, error) {
	input := projection(spec)

	results, err := g.allowQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 {
		return &Result{
			Allowed:    false,
			Violations: []string{"policy evaluation returned no results"},
		}, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return &Result{
			Allowed:    false,
			Violations: []string{"policy evaluation returned non-boolean result"},
		}, nil
	}

	result := &Result{Allowed: allowed}
	if !allowed {
		violations, err := g.violations(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to get violations: %w", err)
		}
		result.Violations = violations
	}

	return result, nil
}

func (g *Guard) violations(ctx context.Context, input map[string]any) ([]string, error) {
	results, err := g.violationsQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate violations: %w", err)
	}
	if len(results) == 0 {
		return []string{"unknown policy violation"}, nil
	}

	var violations []string
	switch value := results[0].Expressions[0].Value.(type) {
	case []any:
		for _, violation := range value {
			if str, ok := violation.(string); ok {
				violations = append(violations, str)
			}
		}
	case map[string]any:
		// Rego sets surface as maps.
		for violation := range value {
			violations = append(violations, violation)
		}
	}

	if len(violations) == 0 {
		return []string{"policy validation failed but no specific violations found"}, nil
	}

	return violations, nil
}

// projection reduces a pipeline spec to the structural facts the policy
// reasons about.
func projection(spec *pipeline.Spec) map[string]any {
	nodes := make([]any, 0, len(spec.Nodes))
	for _, node := range spec.Nodes {
		nodes = append(nodes, map[string]any{
			"kind": string(node.NodeKind()),
			"name": node.NodeName(),
		})
	}

	return map[string]any{
		"name":        spec.Name,
		"tenant_id":   spec.TenantID,
		"environment": spec.Environment,
		"nodes":       nodes,
	}
}

// Package policy builds predicate specifications from Rego policies
// evaluated in-process with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Predicate prepares a Rego query once and returns a predicate-shaped
// closure suitable for spec.Satisfies. The checked value is passed as the
// policy input; the predicate holds when the query evaluates to an allow.
// Evaluation errors count as non-matching, consistent with check failure
// being ordinary control flow.
//
// Parameters:
//
//	query string: The Rego query, e.g. "data.specs.allow".
//	module string: The Rego module source defining the query's rules.
//
// Returns:
//
//	func(any) bool: The prepared predicate.
//	error: An error if the policy does not compile.
func Predicate(query, module string) (func(any) bool, error) {
	pq, err := rego.New(
		rego.Query(query),
		rego.Module("policy.rego", module),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}
	return func(v any) bool {
		rs, err := pq.Eval(context.Background(), rego.EvalInput(v))
		if err != nil {
			return false
		}
		return rs.Allowed()
	}, nil
}

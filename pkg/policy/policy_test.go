package policy

import (
	"testing"

	"github.com/typefence/typefence/pkg/compile"
	"github.com/typefence/typefence/pkg/spec"
)

const adultPolicy = `package specs

allow if input.age >= 18
`

func TestPredicate(t *testing.T) {
	t.Parallel()

	pred, err := Predicate("data.specs.allow", adultPolicy)
	if err != nil {
		t.Fatalf("Predicate failed: %v", err)
	}
	if !pred(map[string]any{"age": 21}) {
		t.Error("allowed input must match")
	}
	if pred(map[string]any{"age": 17}) {
		t.Error("denied input must not match")
	}
	if pred("not an object") {
		t.Error("evaluation failure must count as non-matching")
	}
}

func TestPredicateAsSpecification(t *testing.T) {
	t.Parallel()

	pred, err := Predicate("data.specs.allow", adultPolicy)
	if err != nil {
		t.Fatalf("Predicate failed: %v", err)
	}
	tree, err := spec.Parse(spec.Satisfies(pred), nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ck, err := compile.Compile(tree, compile.ModeSample)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !ck.Check(map[string]any{"age": 30}) {
		t.Error("policy-backed checker must accept allowed input")
	}
	if ck.Check(map[string]any{"age": 10}) {
		t.Error("policy-backed checker must reject denied input")
	}
}

func TestPredicateBadPolicy(t *testing.T) {
	t.Parallel()

	if _, err := Predicate("data.specs.allow", "package specs\n\nallow if {"); err == nil {
		t.Error("expected an error for a policy that does not compile")
	}
}

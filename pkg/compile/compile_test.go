package compile

import (
	"testing"

	"github.com/typefence/typefence/pkg/spec"
)

func mustParse(t *testing.T, raw any, reg *spec.Registry) *spec.Tree {
	t.Helper()
	tree, err := spec.Parse(raw, reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return tree
}

func mustCompile(t *testing.T, raw any, mode Mode) *Checker {
	t.Helper()
	ck, err := Compile(mustParse(t, raw, nil), mode)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return ck
}

func TestCheckAtomic(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Of[int](), ModeSample)
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "matching int", value: 3, want: true},
		{name: "float is not int", value: 3.0, want: false},
		{name: "string is not int", value: "3", want: false},
		{name: "nil is not int", value: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ck.Check(tt.value); got != tt.want {
				t.Errorf("Check(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCheckNoneAndAny(t *testing.T) {
	t.Parallel()

	none := mustCompile(t, spec.None, ModeSample)
	if !none.Check(nil) {
		t.Error("None must accept nil")
	}
	if none.Check(0) {
		t.Error("None must reject non-nil values")
	}

	anything := mustCompile(t, spec.Any, ModeSample)
	for _, v := range []any{nil, 0, "x", []any{1}, map[string]any{}} {
		if !anything.Check(v) {
			t.Errorf("Any must accept %#v", v)
		}
	}
}

func TestCheckInterfaceAtomic(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Of[error](), ModeSample)
	var err error = &testError{}
	if !ck.Check(err) {
		t.Error("value implementing the interface must pass")
	}
	if ck.Check("not an error") {
		t.Error("value not implementing the interface must fail")
	}
}

type testError struct{}

func (*testError) Error() string { return "test" }

func TestCheckLiteral(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Values(1, 2, 3), ModeSample)
	if !ck.Check(2) {
		t.Error("Check(2) must be true")
	}
	if ck.Check(4) {
		t.Error("Check(4) must be false")
	}
	if ck.Check("2") {
		t.Error("literal membership is type-sensitive")
	}
}

func TestCheckUnion(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Union(spec.Of[int](), spec.Of[string]()), ModeSample)
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "int alternative", value: 3, want: true},
		{name: "string alternative", value: "x", want: true},
		{name: "no alternative", value: 3.0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ck.Check(tt.value); got != tt.want {
				t.Errorf("Check(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestUnionAgreesWithAlternatives(t *testing.T) {
	t.Parallel()

	intCk := mustCompile(t, spec.Of[int](), ModeSample)
	strCk := mustCompile(t, spec.Of[string](), ModeSample)
	union := mustCompile(t, spec.Union(spec.Of[int](), spec.Of[string]()), ModeSample)

	for _, v := range []any{1, "x", 2.5, true, nil, []any{1}} {
		want := intCk.Check(v) || strCk.Check(v)
		if got := union.Check(v); got != want {
			t.Errorf("union.Check(%#v) = %v, want %v", v, got, want)
		}
	}
}

func TestIgnorableAbsorption(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Union(spec.Of[int](), spec.Any), ModeSample)
	for _, v := range []any{nil, 1, "x", 4.2, map[int]int{1: 2}} {
		if !ck.Check(v) {
			t.Errorf("absorbed union must accept %#v", v)
		}
	}
}

func TestContainerShallowRejection(t *testing.T) {
	t.Parallel()

	sampled := false
	ck := mustCompile(t, spec.Slice(spec.Satisfies(func(any) bool {
		sampled = true
		return true
	})), ModeSample)

	for _, v := range []any{42, "xs", map[string]any{}, nil} {
		if ck.Check(v) {
			t.Errorf("non-slice %#v must fail the shallow stage", v)
		}
	}
	if sampled {
		t.Error("deep stage must not run when the shallow stage fails")
	}
}

func TestEmptyContainerVacuity(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Slice(spec.Of[int]()), ModeSample)
	if !ck.Check([]any{}) {
		t.Error("empty container must pass the deep stage vacuously")
	}

	mp := mustCompile(t, spec.Map(spec.Of[string](), spec.Of[int]()), ModeSample)
	if !mp.Check(map[string]any{}) {
		t.Error("empty map must pass the deep stage vacuously")
	}
}

func TestCheckSliceSampling(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Slice(spec.Of[int]()), ModeSample)
	if !ck.Check([]any{1, 2, 3}) {
		t.Error("all-valid slice must pass")
	}
	// Single-element containers make the sampled check deterministic.
	if ck.Check([]any{"x"}) {
		t.Error("single bad element must be sampled and rejected")
	}
}

func TestSampledCoverageConvergence(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Slice(spec.Of[int]()), ModeSample)
	value := []any{1, "bad", 3, 4, 5}

	// One call may miss the bad element; across many calls the sampled
	// positions cover the container. P(miss 200 times) = (4/5)^200.
	detected := false
	for i := 0; i < 200; i++ {
		if !ck.Check(value) {
			detected = true
			break
		}
	}
	if !detected {
		t.Error("repeated sampled checks failed to detect the bad element")
	}
}

func TestExhaustiveModeIsDeterministic(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Slice(spec.Of[int]()), ModeExhaustive)
	if !ck.Check([]any{1, 2, 3}) {
		t.Error("all-valid slice must pass exhaustively")
	}
	if ck.Check([]any{1, "bad", 3, 4, 5}) {
		t.Error("exhaustive mode must always find the bad element")
	}
}

func TestCheckTuple(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Tuple(spec.Of[int](), spec.Of[string]()), ModeExhaustive)
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "matching tuple", value: []any{1, "x"}, want: true},
		{name: "wrong length", value: []any{1}, want: false},
		{name: "wrong position type", value: []any{"x", 1}, want: false},
		{name: "not a sequence", value: 7, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ck.Check(tt.value); got != tt.want {
				t.Errorf("Check(%#v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCheckMap(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Map(spec.Of[string](), spec.Of[int]()), ModeExhaustive)
	if !ck.Check(map[string]any{"a": 1, "b": 2}) {
		t.Error("conforming map must pass")
	}
	if ck.Check(map[string]any{"a": "x"}) {
		t.Error("bad value must fail")
	}
	if ck.Check([]any{1}) {
		t.Error("non-map must fail shallow")
	}
}

func TestCheckRecord(t *testing.T) {
	t.Parallel()

	raw := spec.Record([]string{"name", "age"}, []any{spec.Of[string](), spec.Of[int]()})
	ck := mustCompile(t, raw, ModeExhaustive)
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "conforming record", value: map[string]any{"name": "ada", "age": 36}, want: true},
		{name: "extra fields allowed", value: map[string]any{"name": "ada", "age": 36, "x": 1}, want: true},
		{name: "missing field", value: map[string]any{"name": "ada"}, want: false},
		{name: "bad field type", value: map[string]any{"name": "ada", "age": "36"}, want: false},
		{name: "non-map", value: "ada", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ck.Check(tt.value); got != tt.want {
				t.Errorf("Check(%#v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCheckConcreteSliceType(t *testing.T) {
	t.Parallel()

	ck := mustCompile(t, spec.Of[[]int](), ModeSample)
	if !ck.Check([]int{1, 2, 3}) {
		t.Error("concrete slice type must pass")
	}
	if ck.Check([]string{"x"}) {
		t.Error("different concrete slice type must fail shallow")
	}
}

func TestCyclicSpecificationTerminates(t *testing.T) {
	t.Parallel()

	reg := spec.NewRegistry()
	reg.Register("node", spec.Record(
		[]string{"name", "kids"},
		[]any{spec.Of[string](), spec.Slice("node")},
	))
	tree, err := spec.Parse("node", reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ck, err := Compile(tree, ModeExhaustive)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	leaf := map[string]any{"name": "leaf", "kids": []any{}}
	root := map[string]any{"name": "root", "kids": []any{leaf}}
	if !ck.Check(root) {
		t.Error("matching recursive value must pass")
	}

	bad := map[string]any{"name": "root", "kids": []any{map[string]any{"name": 7, "kids": []any{}}}}
	if ck.Check(bad) {
		t.Error("nonconforming nested node must fail")
	}
}

func TestCheckCyclicValueTerminates(t *testing.T) {
	t.Parallel()

	reg := spec.NewRegistry()
	reg.Register("node", spec.Record(
		[]string{"name", "kids"},
		[]any{spec.Of[string](), spec.Slice("node")},
	))
	tree, err := spec.Parse("node", reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// A value that refers back to itself conforms coinductively: every
	// reachable position satisfies its node, the cycle closes on an
	// already-visited pair.
	cyclic := map[string]any{"name": "root"}
	cyclic["kids"] = []any{cyclic}

	for _, mode := range []Mode{ModeSample, ModeExhaustive} {
		ck, err := Compile(tree, mode)
		if err != nil {
			t.Fatalf("Compile(%v) failed: %v", mode, err)
		}
		if !ck.Check(cyclic) {
			t.Errorf("mode %v: conforming cyclic value must pass", mode)
		}
	}

	// A cyclic value with a bad field must still fail under exhaustive
	// traversal, and must terminate rather than recurse forever.
	bad := map[string]any{"name": 7}
	bad["kids"] = []any{bad}
	ck, err := Compile(tree, ModeExhaustive)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if ck.Check(bad) {
		t.Error("cyclic value with a bad field must fail exhaustively")
	}
}

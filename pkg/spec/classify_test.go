package spec

import (
	"errors"
	"reflect"
	"testing"

	tferr "github.com/typefence/typefence/pkg/err"
)

func TestClassifySigns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  any
		sign Sign
	}{
		{name: "any sentinel", raw: Any, sign: SignIgnorable},
		{name: "none sentinel", raw: None, sign: SignAtomic},
		{name: "plain type", raw: Of[int](), sign: SignAtomic},
		{name: "empty interface type", raw: Of[any](), sign: SignIgnorable},
		{name: "interface with methods", raw: Of[error](), sign: SignAtomic},
		{name: "slice type", raw: Of[[]int](), sign: SignContainer},
		{name: "map type", raw: Of[map[string]int](), sign: SignContainer},
		{name: "array type", raw: Of[[4]byte](), sign: SignContainer},
		{name: "union marker", raw: Union(Of[int](), Of[string]()), sign: SignUnion},
		{name: "slice marker", raw: Slice(Of[int]()), sign: SignContainer},
		{name: "map marker", raw: Map(Of[string](), Of[int]()), sign: SignContainer},
		{name: "tuple marker", raw: Tuple(Of[int](), Of[string]()), sign: SignContainer},
		{name: "record marker", raw: Record([]string{"a"}, []any{Of[int]()}), sign: SignContainer},
		{name: "literal marker", raw: Values(1, 2, 3), sign: SignLiteral},
		{name: "predicate marker", raw: Satisfies(func(any) bool { return true }), sign: SignPredicate},
		{name: "bare predicate func", raw: func(any) bool { return true }, sign: SignPredicate},
		{name: "deferred name", raw: "node", sign: SignForward},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tree, err := Classify(tt.raw, nil)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if got := tree.Node(tree.Root()).Sign; got != tt.sign {
				t.Errorf("expected sign %v, got %v", tt.sign, got)
			}
		})
	}
}

func TestClassifyContainerShape(t *testing.T) {
	t.Parallel()

	tree, err := Classify(Of[map[string][]int](), nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	root := tree.Node(tree.Root())
	if root.Kind != reflect.Map || root.Arity != ArityKeyValue {
		t.Fatalf("expected key/value map container, got kind %v arity %v", root.Kind, root.Arity)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Children))
	}
	key := tree.Node(root.Children[0])
	if !key.IsAtomic() || key.Type != Of[string]() {
		t.Errorf("expected atomic string key, got %v %v", key.Sign, key.Type)
	}
	val := tree.Node(root.Children[1])
	if !val.IsContainer() || val.Arity != ArityVariadic {
		t.Errorf("expected variadic value container, got %v %v", val.Sign, val.Arity)
	}
}

func TestClassifyFixedArity(t *testing.T) {
	t.Parallel()

	tree, err := Classify(Tuple(Of[int](), Of[string](), Of[bool]()), nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	root := tree.Node(tree.Root())
	if root.Arity != ArityFixed || root.Length != 3 || len(root.Children) != 3 {
		t.Errorf("expected fixed arity 3, got arity %v length %d children %d",
			root.Arity, root.Length, len(root.Children))
	}
}

func TestClassifyUnsupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  any
	}{
		{name: "nil specification", raw: nil},
		{name: "arbitrary struct", raw: struct{ X int }{}},
		{name: "arbitrary scalar", raw: 42},
		{name: "wrong function shape", raw: func(int) bool { return true }},
		{name: "empty union", raw: Union()},
		{name: "empty literal", raw: Values()},
		{name: "nil predicate", raw: Satisfies(nil)},
		{name: "record arity mismatch", raw: Record([]string{"a", "b"}, []any{Of[int]()})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Classify(tt.raw, nil); !errors.Is(err, tferr.ErrUnsupportedSpecification) {
				t.Errorf("expected ErrUnsupportedSpecification, got %v", err)
			}
		})
	}
}

// Package spec provides the specification model, sign classification and
// reduction for typefence specifications.
package spec

import (
	"fmt"
	"reflect"
	"strings"
)

// Sign represents the canonical category of a specification node
type Sign string

const (
	SignAtomic    Sign = "atomic"
	SignUnion     Sign = "union"
	SignContainer Sign = "container"
	SignLiteral   Sign = "literal"
	SignPredicate Sign = "predicate"
	SignForward   Sign = "forward"
	SignIgnorable Sign = "ignorable"
)

// Arity tags a container node with its child discipline
type Arity string

const (
	// ArityVariadic marks a homogeneous variable-length container with a
	// single element child (slices).
	ArityVariadic Arity = "variadic"
	// ArityKeyValue marks a homogeneous mapping with a key child and a
	// value child.
	ArityKeyValue Arity = "keyvalue"
	// ArityFixed marks a fixed-length tuple with one child per position.
	ArityFixed Arity = "fixed"
	// ArityRecord marks a string-keyed mapping with one child per named
	// field.
	ArityRecord Arity = "record"
)

// Handle addresses a node inside a Tree arena. Back-edges in cyclic
// specifications are plain handle equality.
type Handle int32

// NoHandle is the zero-value-adjacent sentinel for "no node".
const NoHandle Handle = -1

// Node is the normalized tree unit. Exactly one variant payload is
// populated, selected by Sign.
type Node struct {
	Sign Sign

	// Type is the checked type for atomic nodes (nil means "only the nil
	// value"), or the optional concrete base type for containers.
	Type reflect.Type
	// Kind is the required value kind for containers (Slice, Array, Map).
	Kind reflect.Kind

	Arity    Arity
	Length   int      // required length for ArityFixed
	Children []Handle // container children or union alternatives
	Fields   []string // record field names, parallel to Children

	Values []any          // literal alternatives, first-seen order
	Pred   func(any) bool // predicate payload

	Name  string // forward reference name
	scope *Registry
}

// Tree is an arena of specification nodes. Trees are immutable once
// published by Parse; mutating a raw specification object after first use
// is undefined behavior.
type Tree struct {
	nodes []Node
	root  Handle
}

// Root returns the handle of the tree's root node.
func (t *Tree) Root() Handle { return t.root }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns a pointer to the node addressed by h. The pointer stays
// valid for the lifetime of the tree.
//
// Parameters:
//
//	h Handle: The handle to dereference.
//
// Returns:
//
//	*Node: The addressed node.
func (t *Tree) Node(h Handle) *Node {
	return &t.nodes[h]
}

// add appends a node to the arena and returns its handle.
func (t *Tree) add(n Node) Handle {
	t.nodes = append(t.nodes, n)
	return Handle(len(t.nodes) - 1)
}

// IsAtomic returns true if the node is an atomic type check.
func (n *Node) IsAtomic() bool { return n.Sign == SignAtomic }

// IsUnion returns true if the node is a union of alternatives.
func (n *Node) IsUnion() bool { return n.Sign == SignUnion }

// IsContainer returns true if the node is a container check.
func (n *Node) IsContainer() bool { return n.Sign == SignContainer }

// IsIgnorable returns true if the node matches every value.
func (n *Node) IsIgnorable() bool { return n.Sign == SignIgnorable }

// validateArity checks that the node's child count agrees with its arity
// tag. Unreachable for trees produced by Classify; kept as a defensive
// invariant check in the reducer.
func (n *Node) validateArity() error {
	if n.Sign != SignContainer {
		return nil
	}
	switch n.Arity {
	case ArityVariadic:
		if len(n.Children) != 1 {
			return arityError(1, len(n.Children))
		}
	case ArityKeyValue:
		if len(n.Children) != 2 {
			return arityError(2, len(n.Children))
		}
	case ArityFixed:
		if len(n.Children) != n.Length {
			return arityError(n.Length, len(n.Children))
		}
	case ArityRecord:
		if len(n.Children) != len(n.Fields) {
			return arityError(len(n.Fields), len(n.Children))
		}
	}
	return nil
}

// Describe returns a human-readable rendering of the subtree rooted at h,
// used by diagnostics. Cyclic subtrees render back-edges as "...".
//
// Parameters:
//
//	h Handle: The root of the subtree to render.
//
// Returns:
//
//	string: The rendered specification.
func (t *Tree) Describe(h Handle) string {
	return t.describe(h, make(map[Handle]bool))
}

func (t *Tree) describe(h Handle, seen map[Handle]bool) string {
	if seen[h] {
		return "..."
	}
	seen[h] = true
	defer delete(seen, h)

	n := t.Node(h)
	switch n.Sign {
	case SignIgnorable:
		return "any"
	case SignAtomic:
		if n.Type == nil {
			return "nil"
		}
		return n.Type.String()
	case SignPredicate:
		return "predicate"
	case SignForward:
		return "ref(" + n.Name + ")"
	case SignLiteral:
		parts := make([]string, 0, len(n.Values))
		for _, v := range n.Values {
			parts = append(parts, fmt.Sprintf("%#v", v))
		}
		return "literal{" + strings.Join(parts, ", ") + "}"
	case SignUnion:
		parts := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			parts = append(parts, t.describe(c, seen))
		}
		return "union<" + strings.Join(parts, " | ") + ">"
	case SignContainer:
		return t.describeContainer(n, seen)
	}
	return "invalid"
}

func (t *Tree) describeContainer(n *Node, seen map[Handle]bool) string {
	switch n.Arity {
	case ArityVariadic:
		elem := "any"
		if len(n.Children) == 1 {
			elem = t.describe(n.Children[0], seen)
		}
		base := "slice"
		if n.Type != nil {
			base = n.Type.String()
			return base
		}
		return base + "<" + elem + ">"
	case ArityKeyValue:
		if n.Type != nil {
			return n.Type.String()
		}
		key, val := "any", "any"
		if len(n.Children) == 2 {
			key = t.describe(n.Children[0], seen)
			val = t.describe(n.Children[1], seen)
		}
		return "map<" + key + ", " + val + ">"
	case ArityFixed:
		parts := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			parts = append(parts, t.describe(c, seen))
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case ArityRecord:
		parts := make([]string, 0, len(n.Fields))
		for i, f := range n.Fields {
			parts = append(parts, f+": "+t.describe(n.Children[i], seen))
		}
		return "record{" + strings.Join(parts, ", ") + "}"
	}
	return "container"
}

// subtreeEqual reports whether the subtrees rooted at a and b are
// structurally identical. Pairwise cycle guard keyed by handle pairs keeps
// the comparison terminating on back-edges.
func (t *Tree) subtreeEqual(a, b Handle, seen map[[2]Handle]bool) bool {
	if a == b {
		return true
	}
	key := [2]Handle{a, b}
	if seen[key] {
		// Both walks closed a cycle at the same relative position.
		return true
	}
	seen[key] = true

	na, nb := t.Node(a), t.Node(b)
	if na.Sign != nb.Sign {
		return false
	}
	switch na.Sign {
	case SignIgnorable:
		return true
	case SignAtomic:
		return na.Type == nb.Type
	case SignPredicate:
		return reflect.ValueOf(na.Pred).Pointer() == reflect.ValueOf(nb.Pred).Pointer()
	case SignForward:
		return na.Name == nb.Name && na.scope == nb.scope
	case SignLiteral:
		if len(na.Values) != len(nb.Values) {
			return false
		}
		for i := range na.Values {
			if !LiteralEqual(na.Values[i], nb.Values[i]) {
				return false
			}
		}
		return true
	case SignUnion:
		if len(na.Children) != len(nb.Children) {
			return false
		}
		for i := range na.Children {
			if !t.subtreeEqual(na.Children[i], nb.Children[i], seen) {
				return false
			}
		}
		return true
	case SignContainer:
		if na.Arity != nb.Arity || na.Kind != nb.Kind || na.Type != nb.Type || na.Length != nb.Length {
			return false
		}
		if len(na.Fields) != len(nb.Fields) {
			return false
		}
		for i := range na.Fields {
			if na.Fields[i] != nb.Fields[i] {
				return false
			}
		}
		if len(na.Children) != len(nb.Children) {
			return false
		}
		for i := range na.Children {
			if !t.subtreeEqual(na.Children[i], nb.Children[i], seen) {
				return false
			}
		}
		return true
	}
	return false
}

// LiteralEqual compares two literal values by value equality, falling back
// to deep equality for values whose type is not comparable with ==.
// go-cmp is deliberately not used here: literal payloads are arbitrary
// caller values and cmp panics on unexported fields it has no options for.
func LiteralEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

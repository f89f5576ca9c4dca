package spec

import (
	"sort"

	tferr "github.com/typefence/typefence/pkg/err"
)

// Parse classifies and reduces a raw specification in one step. The
// returned tree is the canonical identity object for compilation caching:
// parse a specification once and reuse the tree.
//
// Parameters:
//
//	raw any: The raw specification object.
//	reg *Registry: The resolution scope for forward references (may be nil).
//
// Returns:
//
//	*Tree: The reduced, canonical tree.
//	error: An error if classification or reduction fails.
func Parse(raw any, reg *Registry) (*Tree, error) {
	t, err := Classify(raw, reg)
	if err != nil {
		return nil, err
	}
	if err := Reduce(t, reg); err != nil {
		return nil, err
	}
	return t, nil
}

// Reduce rewrites a classified tree into canonical form: nested unions are
// flattened and deduplicated, ignorable branches are recognized, forward
// references are resolved (legal cycles become back-edges), and literal
// sets are canonicalized. A container whose children are all ignorable
// does not itself become ignorable: it keeps its shallow check and drops
// only the vacuous deep stage (records keep their children, which assert
// field presence). Fails with ErrUnresolvedForwardReference when a named
// reference has no entry in its scope.
//
// Parameters:
//
//	t *Tree: The tree to reduce in place.
//	reg *Registry: The fallback resolution scope for forward references.
//
// Returns:
//
//	error: An error if reduction fails.
func Reduce(t *Tree, reg *Registry) error {
	r := &reducer{
		t:          t,
		reg:        reg,
		reduced:    make(map[Handle]Handle),
		inProgress: make(map[Handle]bool),
		resolving:  make(map[string]Handle),
	}
	root, err := r.reduce(t.root)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

// reducer rewrites nodes bottom-up. inProgress is the cycle guard keyed by
// node handle; resolving maps forward names under resolution to the handle
// their back-edges must land on.
type reducer struct {
	t          *Tree
	reg        *Registry
	reduced    map[Handle]Handle
	inProgress map[Handle]bool
	resolving  map[string]Handle
}

func (r *reducer) reduce(h Handle) (Handle, error) {
	if final, ok := r.reduced[h]; ok {
		return final, nil
	}
	if r.inProgress[h] {
		// Back-edge: a descendant refers to an ancestor still being
		// reduced. Preserved as-is.
		return h, nil
	}
	r.inProgress[h] = true
	defer delete(r.inProgress, h)

	n := r.t.Node(h)
	switch n.Sign {
	case SignIgnorable, SignAtomic, SignPredicate:
		r.reduced[h] = h
		return h, nil
	case SignLiteral:
		return r.reduceLiteral(h)
	case SignForward:
		return r.reduceForward(h)
	case SignUnion:
		return r.reduceUnion(h)
	case SignContainer:
		return r.reduceContainer(h)
	}
	return NoHandle, tferr.ErrUnsupported("unknown sign in reducer")
}

// reduceLiteral deduplicates literal values by value equality, keeping
// first-seen order for reproducible diagnostics.
func (r *reducer) reduceLiteral(h Handle) (Handle, error) {
	n := r.t.Node(h)
	kept := n.Values[:0:0]
	for _, v := range n.Values {
		dup := false
		for _, k := range kept {
			if LiteralEqual(v, k) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, v)
		}
	}
	n.Values = kept
	r.reduced[h] = h
	return h, nil
}

// reduceForward resolves a named reference by classifying the registered
// raw specification into the same arena and inlining the result into the
// forward's slot, so back-edges created by a closing cycle stay valid.
func (r *reducer) reduceForward(h Handle) (Handle, error) {
	n := r.t.Node(h)
	name := n.Name
	if back, ok := r.resolving[name]; ok {
		// The cycle closes on a name already under resolution.
		r.reduced[h] = back
		return back, nil
	}
	scope := n.scope
	if scope == nil {
		scope = r.reg
	}
	if scope == nil {
		return NoHandle, tferr.ErrUnresolved(name)
	}
	raw, ok := scope.Lookup(name)
	if !ok {
		return NoHandle, tferr.ErrUnresolved(name)
	}

	r.resolving[name] = h
	c := &classifier{t: r.t, reg: scope}
	ch, err := c.classify(raw)
	if err != nil {
		return NoHandle, err
	}
	rh, err := r.reduce(ch)
	if err != nil {
		return NoHandle, err
	}
	delete(r.resolving, name)

	// A resolution that lands on another forward means the reference
	// chain is a cycle of names with no structure anchoring it: it never
	// closes on a real node and can never be checked.
	if r.t.Node(rh).Sign == SignForward {
		return NoHandle, tferr.ErrUnresolved(name)
	}

	// A union alternative that is a back-edge to this very forward adds
	// nothing (x matches U iff x matches U) and would recurse forever at
	// check time; drop it.
	if rn := r.t.Node(rh); rn.Sign == SignUnion {
		kept := make([]Handle, 0, len(rn.Children))
		for _, ch := range rn.Children {
			if ch != h {
				kept = append(kept, ch)
			}
		}
		if len(kept) == 0 {
			return NoHandle, tferr.ErrUnresolved(name)
		}
		if len(kept) == 1 {
			rh = kept[0]
		} else {
			rn.Children = kept
		}
	}

	// Inline into the forward's own slot; rh and h now alias the same
	// content and both handles stay valid.
	r.t.nodes[h] = r.t.nodes[rh]
	r.reduced[h] = h
	return h, nil
}

// signWeight orders union alternatives cheapest-check-first. The ordering
// is a documented, stable heuristic; correctness does not depend on it.
func signWeight(s Sign) int {
	switch s {
	case SignIgnorable:
		return 0
	case SignLiteral:
		return 1
	case SignAtomic:
		return 2
	case SignContainer:
		return 3
	case SignPredicate:
		return 4
	}
	return 5
}

func (r *reducer) reduceUnion(h Handle) (Handle, error) {
	n := r.t.Node(h)

	// Reduce alternatives, flattening one level of nested unions. A
	// back-edge into a union still in progress is kept unflattened.
	flat := make([]Handle, 0, len(n.Children))
	for _, ch := range n.Children {
		rh, err := r.reduce(ch)
		if err != nil {
			return NoHandle, err
		}
		cn := r.t.Node(rh)
		if cn.Sign == SignUnion && !r.inProgress[rh] {
			flat = append(flat, cn.Children...)
		} else {
			flat = append(flat, rh)
		}
	}

	// An ignorable alternative absorbs the whole union.
	for _, ch := range flat {
		if r.t.Node(ch).IsIgnorable() {
			r.t.nodes[h] = Node{Sign: SignIgnorable}
			r.reduced[h] = h
			return h, nil
		}
	}

	// Deduplicate structurally identical alternatives, first-seen order.
	kept := make([]Handle, 0, len(flat))
	for _, ch := range flat {
		dup := false
		for _, k := range kept {
			if r.t.subtreeEqual(ch, k, make(map[[2]Handle]bool)) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, ch)
		}
	}

	if len(kept) == 1 {
		// Collapse a single-alternative union into its sole child. The
		// slot content is aliased so back-edges to h stay meaningful.
		r.t.nodes[h] = r.t.nodes[kept[0]]
		r.reduced[h] = kept[0]
		return kept[0], nil
	}

	// Cheapest-first evaluation order, stable within equal weights.
	sort.SliceStable(kept, func(i, j int) bool {
		return signWeight(r.t.Node(kept[i]).Sign) < signWeight(r.t.Node(kept[j]).Sign)
	})

	n = r.t.Node(h)
	n.Children = kept
	r.reduced[h] = h
	return h, nil
}

func (r *reducer) reduceContainer(h Handle) (Handle, error) {
	n := r.t.Node(h)
	if err := n.validateArity(); err != nil {
		return NoHandle, err
	}

	children := make([]Handle, len(n.Children))
	allIgnorable := true
	for i, ch := range n.Children {
		rh, err := r.reduce(ch)
		if err != nil {
			return NoHandle, err
		}
		children[i] = rh
		if !r.t.Node(rh).IsIgnorable() {
			allIgnorable = false
		}
	}
	n = r.t.Node(h)
	n.Children = children

	// When every child accepts everything the deep stage is vacuous and
	// is dropped, leaving a shallow-only check. Records keep their
	// children: field presence is still asserted.
	if allIgnorable && n.Arity != ArityRecord {
		n.Children = nil
	}

	r.reduced[h] = h
	return h, nil
}

// arityError adapts the err package constructor for use from node.go.
func arityError(want, got int) error {
	return tferr.ErrArity(want, got)
}

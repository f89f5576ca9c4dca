// Package compile synthesizes cached O(1) checking procedures from reduced
// specification trees.
package compile

import (
	"math/rand"
	"reflect"
	"sync"
	"time"

	tferr "github.com/typefence/typefence/pkg/err"
	"github.com/typefence/typefence/pkg/spec"
)

// Mode selects the container deep-stage strategy
type Mode string

const (
	// ModeSample checks one pseudo-randomly chosen element per container
	// per call, the O(1) default.
	ModeSample Mode = "sample"
	// ModeExhaustive checks every element, the opt-in strict override.
	ModeExhaustive Mode = "exhaustive"
)

// Checker is a compiled checking procedure paired with the tree it was
// synthesized from. Checkers are immutable and safe for concurrent use.
type Checker struct {
	fn     checkFn
	tree   *spec.Tree
	mode   Mode
	cyclic bool
}

// Check reports whether the value conforms to the specification. Failure
// is ordinary control flow, never an error. Under ModeSample a single call
// may accept a container holding nonconforming elements; repeated calls
// sample different positions, so coverage approaches full traversal in
// expectation.
//
// Parameters:
//
//	v any: The value to check.
//
// Returns:
//
//	bool: True if the value conforms.
func (c *Checker) Check(v any) bool {
	var seen map[visit]bool
	if c.cyclic {
		// Only recursive specifications can loop through a value cycle,
		// so only they pay for the guard.
		seen = make(map[visit]bool)
	}
	return c.fn(v, seen)
}

// Tree returns the reduced tree the checker was compiled from, retained
// for violation reporting.
func (c *Checker) Tree() *spec.Tree { return c.tree }

// Mode returns the deep-stage strategy the checker was compiled with.
func (c *Checker) Mode() Mode { return c.mode }

// checkFn is the synthesized per-node check. seen is the value-cycle guard
// for recursive specifications; it is nil for acyclic trees.
type checkFn func(v any, seen map[visit]bool) bool

// visit keys the cycle guard: node handle plus value identity for values
// with pointer semantics.
type visit struct {
	h   spec.Handle
	ptr uintptr
}

// visitKey builds a cycle-guard key for values with pointer identity.
// Scalars cannot participate in reference cycles and are not guarded.
func visitKey(h spec.Handle, v any) (visit, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return visit{h: h, ptr: rv.Pointer()}, true
	default:
		return visit{}, false
	}
}

// Shared sampling source; any uniform source is acceptable and callers
// must not assume determinism.
var (
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
	rngMu sync.Mutex
)

func randIntn(n int) int {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Intn(n)
}

func constTrue(any, map[visit]bool) bool { return true }

// Compile synthesizes a checker from a reduced tree. Prefer
// Cache.GetOrCompile, which memoizes the result per tree identity.
//
// Parameters:
//
//	t *spec.Tree: The reduced specification tree.
//	mode Mode: The deep-stage strategy.
//
// Returns:
//
//	*Checker: The compiled checker.
//	error: An error if the tree contains an unresolved forward reference.
func Compile(t *spec.Tree, mode Mode) (*Checker, error) {
	s := &synth{
		t:          t,
		mode:       mode,
		slots:      make([]checkFn, t.Len()),
		inProgress: make([]bool, t.Len()),
	}
	fn, err := s.emit(t.Root())
	if err != nil {
		return nil, err
	}
	return &Checker{fn: fn, tree: t, mode: mode, cyclic: s.cyclic}, nil
}

// synth compiles nodes in fixed-point fashion over a per-tree slot table.
// A node already on the compilation stack is broken out of via a lazy
// indirection that dereferences its slot at call time.
type synth struct {
	t          *spec.Tree
	mode       Mode
	slots      []checkFn
	inProgress []bool
	cyclic     bool
}

func (s *synth) emit(h spec.Handle) (checkFn, error) {
	if fn := s.slots[h]; fn != nil {
		return fn, nil
	}
	if s.inProgress[h] {
		s.cyclic = true
		slots := s.slots
		return func(v any, seen map[visit]bool) bool { return slots[h](v, seen) }, nil
	}
	s.inProgress[h] = true
	defer func() { s.inProgress[h] = false }()

	n := s.t.Node(h)
	var fn checkFn
	var err error
	switch n.Sign {
	case spec.SignIgnorable:
		// No check is generated at all for ignorable nodes.
		fn = constTrue
	case spec.SignAtomic:
		fn = emitAtomic(n)
	case spec.SignLiteral:
		fn = emitLiteral(n)
	case spec.SignPredicate:
		pred := n.Pred
		fn = func(v any, _ map[visit]bool) bool { return pred(v) }
	case spec.SignUnion:
		fn, err = s.emitUnion(n)
	case spec.SignContainer:
		fn, err = s.emitContainer(h, n)
	case spec.SignForward:
		// The reducer guarantees forwards never reach synthesis.
		err = tferr.ErrUnresolved(n.Name)
	default:
		err = tferr.ErrUnsupported("unknown sign in synthesizer")
	}
	if err != nil {
		return nil, err
	}
	s.slots[h] = fn
	return fn, nil
}

// emitAtomic emits an instance check: exact type identity for concrete
// types, implementation for interface types, nil identity when no type is
// stored (the None sentinel).
func emitAtomic(n *spec.Node) checkFn {
	typ := n.Type
	if typ == nil {
		return func(v any, _ map[visit]bool) bool { return v == nil }
	}
	if typ.Kind() == reflect.Interface {
		return func(v any, _ map[visit]bool) bool {
			if v == nil {
				return false
			}
			return reflect.TypeOf(v).Implements(typ)
		}
	}
	return func(v any, _ map[visit]bool) bool { return reflect.TypeOf(v) == typ }
}

// emitLiteral emits a membership check. Comparable values are probed
// through a hash set; values whose type does not support == fall back to a
// deep-equality scan.
func emitLiteral(n *spec.Node) checkFn {
	hashed := make(map[any]struct{}, len(n.Values))
	var rest []any
	for _, val := range n.Values {
		if val == nil || reflect.TypeOf(val).Comparable() {
			hashed[val] = struct{}{}
		} else {
			rest = append(rest, val)
		}
	}
	return func(v any, _ map[visit]bool) bool {
		if v == nil || reflect.TypeOf(v).Comparable() {
			if _, ok := hashed[v]; ok {
				return true
			}
		}
		for _, o := range rest {
			if spec.LiteralEqual(v, o) {
				return true
			}
		}
		return false
	}
}

// emitUnion emits a short-circuiting first-success-wins check. The reducer
// already ordered alternatives cheapest-first.
func (s *synth) emitUnion(n *spec.Node) (checkFn, error) {
	alts := make([]checkFn, 0, len(n.Children))
	for _, ch := range n.Children {
		fn, err := s.emit(ch)
		if err != nil {
			return nil, err
		}
		alts = append(alts, fn)
	}
	return func(v any, seen map[visit]bool) bool {
		for _, alt := range alts {
			if alt(v, seen) {
				return true
			}
		}
		return false
	}, nil
}

func (s *synth) emitContainer(h spec.Handle, n *spec.Node) (checkFn, error) {
	children := make([]checkFn, 0, len(n.Children))
	for _, ch := range n.Children {
		fn, err := s.emit(ch)
		if err != nil {
			return nil, err
		}
		children = append(children, fn)
	}

	var fn checkFn
	switch n.Arity {
	case spec.ArityVariadic:
		fn = s.emitVariadic(n, children)
	case spec.ArityFixed:
		fn = s.emitFixed(n, children)
	case spec.ArityKeyValue:
		fn = s.emitKeyValue(n, children)
	case spec.ArityRecord:
		fn = s.emitRecord(n, children)
	default:
		return nil, tferr.ErrUnsupported("unknown container arity")
	}
	return guardCycles(h, fn), nil
}

// guardCycles wraps a container check with the value-cycle guard.
// Containers are the only sign that descends into sub-values, so guarding
// them is sufficient: a revisit of the same node on the same value is a
// closed cycle and is treated as satisfied, same as in the reporter.
func guardCycles(h spec.Handle, fn checkFn) checkFn {
	return func(v any, seen map[visit]bool) bool {
		if seen != nil {
			if key, ok := visitKey(h, v); ok {
				if seen[key] {
					return true
				}
				seen[key] = true
				defer delete(seen, key)
			}
		}
		return fn(v, seen)
	}
}

// shallowValue runs the shallow stage shared by all container arities and
// returns the reflected value on success.
func shallowValue(v any, kind reflect.Kind, base reflect.Type) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != kind {
		return reflect.Value{}, false
	}
	if base != nil && rv.Type() != base {
		return reflect.Value{}, false
	}
	return rv, true
}

func (s *synth) emitVariadic(n *spec.Node, children []checkFn) checkFn {
	kind, base := n.Kind, n.Type
	exhaustive := s.mode == ModeExhaustive
	var elem checkFn
	if len(children) == 1 {
		elem = children[0]
	}
	return func(v any, seen map[visit]bool) bool {
		rv, ok := shallowValue(v, kind, base)
		if !ok {
			return false
		}
		if elem == nil {
			return true
		}
		ln := rv.Len()
		if ln == 0 {
			// Nothing to sample; empty containers pass vacuously.
			return true
		}
		if exhaustive {
			for i := 0; i < ln; i++ {
				if !elem(rv.Index(i).Interface(), seen) {
					return false
				}
			}
			return true
		}
		return elem(rv.Index(randIntn(ln)).Interface(), seen)
	}
}

func (s *synth) emitFixed(n *spec.Node, children []checkFn) checkFn {
	kind, base, length := n.Kind, n.Type, n.Length
	exhaustive := s.mode == ModeExhaustive
	return func(v any, seen map[visit]bool) bool {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() {
			return false
		}
		k := rv.Kind()
		if k != reflect.Slice && k != reflect.Array {
			return false
		}
		if kind == reflect.Array && k != reflect.Array {
			return false
		}
		if base != nil && rv.Type() != base {
			return false
		}
		if rv.Len() != length {
			return false
		}
		if len(children) == 0 || length == 0 {
			return true
		}
		if exhaustive {
			for i := 0; i < length; i++ {
				if !children[i](rv.Index(i).Interface(), seen) {
					return false
				}
			}
			return true
		}
		// One pseudo-randomly chosen position per call, not all of them.
		i := randIntn(length)
		return children[i](rv.Index(i).Interface(), seen)
	}
}

func (s *synth) emitKeyValue(n *spec.Node, children []checkFn) checkFn {
	kind, base := n.Kind, n.Type
	exhaustive := s.mode == ModeExhaustive
	var key, val checkFn
	if len(children) == 2 {
		key, val = children[0], children[1]
	}
	return func(v any, seen map[visit]bool) bool {
		rv, ok := shallowValue(v, kind, base)
		if !ok {
			return false
		}
		if key == nil || rv.Len() == 0 {
			return true
		}
		if exhaustive {
			it := rv.MapRange()
			for it.Next() {
				if !key(it.Key().Interface(), seen) || !val(it.Value().Interface(), seen) {
					return false
				}
			}
			return true
		}
		// Go map iteration starts at a random bucket, so the first entry
		// is a uniform-enough O(1) sample of one key and its value.
		it := rv.MapRange()
		if !it.Next() {
			return true
		}
		return key(it.Key().Interface(), seen) && val(it.Value().Interface(), seen)
	}
}

func (s *synth) emitRecord(n *spec.Node, children []checkFn) checkFn {
	base := n.Type
	fields := n.Fields
	exhaustive := s.mode == ModeExhaustive
	return func(v any, seen map[visit]bool) bool {
		rv, ok := shallowValue(v, reflect.Map, base)
		if !ok {
			return false
		}
		kt := rv.Type().Key()
		if !reflect.TypeOf("").AssignableTo(kt) {
			return false
		}
		if len(fields) == 0 {
			return true
		}
		if exhaustive {
			for i, f := range fields {
				fv := rv.MapIndex(reflect.ValueOf(f).Convert(kt))
				if !fv.IsValid() || !children[i](fv.Interface(), seen) {
					return false
				}
			}
			return true
		}
		i := randIntn(len(fields))
		fv := rv.MapIndex(reflect.ValueOf(fields[i]).Convert(kt))
		if !fv.IsValid() {
			return false
		}
		return children[i](fv.Interface(), seen)
	}
}

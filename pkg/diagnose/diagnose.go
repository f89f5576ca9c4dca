// Package diagnose produces precise violation reports for values rejected
// by a compiled checker. Unlike the checking hot path it traverses
// containers exhaustively; it runs only on the failure path, where clarity
// outweighs speed.
package diagnose

import (
	"fmt"
	"reflect"

	"github.com/typefence/typefence/pkg/spec"
)

// Violation names the first nested position that breaks the specification.
type Violation struct {
	Path string // element path from the root value, e.g. $.user.ids[3]
	Want string // rendering of the specification at that position
	Got  any    // the offending value (nil for a missing record field)
	Note string // extra context, e.g. "required field is missing"
}

// Diagnostic is the outcome of an exhaustive re-check. A nil Violation
// means the value conforms; Explain never errors, it reports no violation
// when invoked on a conforming value.
type Diagnostic struct {
	Violation *Violation
}

// Empty reports whether no violation was found.
func (d Diagnostic) Empty() bool { return d.Violation == nil }

// String renders the diagnostic for a user-facing error message.
func (d Diagnostic) String() string {
	if d.Violation == nil {
		return "no violation"
	}
	v := d.Violation
	if v.Note != "" {
		return fmt.Sprintf("value at %s does not match %s: %s", v.Path, v.Want, v.Note)
	}
	return fmt.Sprintf("value at %s does not match %s: got %#v", v.Path, v.Want, v.Got)
}

// Explain re-derives failure from the root with full traversal and stops
// at the first node whose shallow-or-deep test fails. It does not trust
// the checker's boolean: the walk is independent, so a sampling-accepted
// value can still be reported precisely once a later call rejects it.
//
// Parameters:
//
//	t *spec.Tree: The reduced specification tree.
//	value any: The value the checker rejected.
//
// Returns:
//
//	Diagnostic: The violation found, or an empty diagnostic if the value
//	conforms after all.
func Explain(t *spec.Tree, value any) Diagnostic {
	w := &walker{t: t, visiting: make(map[visit]bool)}
	return Diagnostic{Violation: w.check(t.Root(), value, "$")}
}

// visit keys the cycle guard: node handle plus value identity for values
// with pointer semantics. Guarding on both sides keeps the walk
// terminating on cyclic specifications applied to cyclic values.
type visit struct {
	h   spec.Handle
	ptr uintptr
}

type walker struct {
	t        *spec.Tree
	visiting map[visit]bool
}

func (w *walker) check(h spec.Handle, v any, path string) *Violation {
	if vs, ok := visitKey(h, v); ok {
		if w.visiting[vs] {
			// Cycle through the same node on the same value; treat the
			// back-edge as satisfied.
			return nil
		}
		w.visiting[vs] = true
		defer delete(w.visiting, vs)
	}

	n := w.t.Node(h)
	switch n.Sign {
	case spec.SignIgnorable:
		return nil
	case spec.SignAtomic:
		if atomicMatches(n, v) {
			return nil
		}
		return w.violation(h, v, path)
	case spec.SignLiteral:
		for _, lit := range n.Values {
			if spec.LiteralEqual(v, lit) {
				return nil
			}
		}
		return w.violation(h, v, path)
	case spec.SignPredicate:
		if n.Pred(v) {
			return nil
		}
		return w.violation(h, v, path)
	case spec.SignUnion:
		for _, ch := range n.Children {
			if w.check(ch, v, path) == nil {
				return nil
			}
		}
		// Every alternative failed; the union node itself is the first
		// failing position.
		return w.violation(h, v, path)
	case spec.SignContainer:
		return w.checkContainer(h, v, path)
	}
	return w.violation(h, v, path)
}

func (w *walker) violation(h spec.Handle, v any, path string) *Violation {
	return &Violation{Path: path, Want: w.t.Describe(h), Got: v}
}

func (w *walker) checkContainer(h spec.Handle, v any, path string) *Violation {
	n := w.t.Node(h)
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return w.violation(h, v, path)
	}

	switch n.Arity {
	case spec.ArityVariadic:
		if rv.Kind() != reflect.Slice || (n.Type != nil && rv.Type() != n.Type) {
			return w.violation(h, v, path)
		}
		if len(n.Children) == 0 {
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			p := fmt.Sprintf("%s[%d]", path, i)
			if viol := w.check(n.Children[0], rv.Index(i).Interface(), p); viol != nil {
				return viol
			}
		}
		return nil
	case spec.ArityFixed:
		k := rv.Kind()
		if k != reflect.Slice && k != reflect.Array {
			return w.violation(h, v, path)
		}
		if n.Kind == reflect.Array && k != reflect.Array {
			return w.violation(h, v, path)
		}
		if n.Type != nil && rv.Type() != n.Type {
			return w.violation(h, v, path)
		}
		if rv.Len() != n.Length {
			viol := w.violation(h, v, path)
			viol.Note = fmt.Sprintf("want length %d, got %d", n.Length, rv.Len())
			return viol
		}
		for i, ch := range n.Children {
			p := fmt.Sprintf("%s[%d]", path, i)
			if viol := w.check(ch, rv.Index(i).Interface(), p); viol != nil {
				return viol
			}
		}
		return nil
	case spec.ArityKeyValue:
		if rv.Kind() != reflect.Map || (n.Type != nil && rv.Type() != n.Type) {
			return w.violation(h, v, path)
		}
		if len(n.Children) != 2 {
			return nil
		}
		it := rv.MapRange()
		for it.Next() {
			kv := it.Key().Interface()
			p := fmt.Sprintf("%s[key %#v]", path, kv)
			if viol := w.check(n.Children[0], kv, p); viol != nil {
				return viol
			}
			p = fmt.Sprintf("%s[%#v]", path, kv)
			if viol := w.check(n.Children[1], it.Value().Interface(), p); viol != nil {
				return viol
			}
		}
		return nil
	case spec.ArityRecord:
		if rv.Kind() != reflect.Map || (n.Type != nil && rv.Type() != n.Type) {
			return w.violation(h, v, path)
		}
		kt := rv.Type().Key()
		if !reflect.TypeOf("").AssignableTo(kt) {
			return w.violation(h, v, path)
		}
		for i, field := range n.Fields {
			p := path + "." + field
			fv := rv.MapIndex(reflect.ValueOf(field).Convert(kt))
			if !fv.IsValid() {
				return &Violation{
					Path: p,
					Want: w.t.Describe(n.Children[i]),
					Note: "required field is missing",
				}
			}
			if viol := w.check(n.Children[i], fv.Interface(), p); viol != nil {
				return viol
			}
		}
		return nil
	}
	return w.violation(h, v, path)
}

// atomicMatches mirrors the synthesizer's atomic check.
func atomicMatches(n *spec.Node, v any) bool {
	if n.Type == nil {
		return v == nil
	}
	if v == nil {
		return false
	}
	if n.Type.Kind() == reflect.Interface {
		return reflect.TypeOf(v).Implements(n.Type)
	}
	return reflect.TypeOf(v) == n.Type
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

package spec

import (
	"reflect"
	"sync"
)

// anyMarker and noneMarker are the builtin sentinel types recognized by
// identity in the first classification rule.
type anyMarker struct{}
type noneMarker struct{}

var (
	// Any is the sentinel specification that matches every value.
	Any = anyMarker{}
	// None is the sentinel specification that matches only the nil value.
	None = noneMarker{}
)

// Composite marker shapes: each carries an origin (its concrete Go type)
// plus argument specifications, mirroring the "origin + arguments"
// classification rule. Markers are plain values; construct them with the
// functions below rather than literally.

type unionMarker struct{ alts []any }
type sliceMarker struct{ elem any }
type mapMarker struct{ key, val any }
type tupleMarker struct{ elems []any }
type recordMarker struct {
	fields []string
	specs  []any
}
type literalMarker struct{ values []any }
type predicateMarker struct{ fn func(any) bool }

// Union builds a specification matched by any of the alternatives.
func Union(alts ...any) any { return unionMarker{alts: alts} }

// Slice builds a homogeneous variable-length container specification over
// slice values.
func Slice(elem any) any { return sliceMarker{elem: elem} }

// Map builds a homogeneous key/value container specification over map
// values.
func Map(key, val any) any { return mapMarker{key: key, val: val} }

// Tuple builds a fixed-length container specification over slice or array
// values, one element specification per position.
func Tuple(elems ...any) any { return tupleMarker{elems: elems} }

// Record builds a string-keyed container specification with one element
// specification per named field. Field order is preserved for
// deterministic diagnostics.
//
// Parameters:
//
//	fields []string: The field names, in declaration order.
//	specs []any: The per-field specifications, parallel to fields.
//
// Returns:
//
//	any: The record marker.
func Record(fields []string, specs []any) any {
	return recordMarker{fields: fields, specs: specs}
}

// RecordFields exposes the marker's field names and per-field
// specifications, letting schema front-ends merge record shapes without
// reaching into the marker type.
func (m recordMarker) RecordFields() ([]string, []any) {
	return m.fields, m.specs
}

// Values builds a literal specification matched by equality against any of
// the given values.
func Values(vs ...any) any { return literalMarker{values: vs} }

// Satisfies builds a predicate specification from a caller-supplied
// function. The function is called directly; no further recursion happens
// below a predicate.
func Satisfies(fn func(any) bool) any { return predicateMarker{fn: fn} }

// Of returns the reflect.Type for T, the usual way to write an atomic
// specification for a concrete Go type.
func Of[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Registry is a resolution scope for forward references. Entries are
// written during setup and read during reduction; the zero value is not
// usable, construct with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewRegistry creates an empty forward-reference resolution scope.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]any)}
}

// Register binds a name to a raw specification. Later registrations for
// the same name overwrite earlier ones; rebinding a name after a
// specification using it has been parsed is undefined behavior.
//
// Parameters:
//
//	name string: The reference name.
//	raw any: The raw specification the name resolves to.
func (r *Registry) Register(name string, raw any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = raw
}

// Lookup resolves a name to its registered raw specification.
//
// Parameters:
//
//	name string: The reference name.
//
// Returns:
//
//	any: The registered raw specification, if any.
//	bool: True if the name is registered.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw, ok := r.entries[name]
	return raw, ok
}

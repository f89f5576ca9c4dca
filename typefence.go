// Package typefence attaches declarative type specifications to the
// parameters and results of a function and verifies conformance at call
// time in O(1) per call. Each distinct specification is compiled once into
// an efficient checking procedure, cached, and reused for the lifetime of
// the process; container contents are verified by bounded random sampling
// so checking cost never depends on input size.
package typefence

import (
	"fmt"
	"reflect"

	"github.com/typefence/typefence/pkg/compile"
	"github.com/typefence/typefence/pkg/diagnose"
	tferr "github.com/typefence/typefence/pkg/err"
	"github.com/typefence/typefence/pkg/spec"
)

// Config controls how wrapped functions check their values.
type Config struct {
	// Mode selects the container deep-stage strategy; the zero value
	// means compile.ModeSample.
	Mode compile.Mode
	// Disabled turns Wrap into a pass-through: the function is returned
	// unchanged and nothing is compiled.
	Disabled bool
}

// Annotations binds raw specifications to the positions of a function. A
// nil entry leaves that position unchecked; a shorter slice leaves the
// trailing positions unchecked.
type Annotations struct {
	Params   []any
	Results  []any
	Registry *spec.Registry
}

// ViolationError is the panic payload raised by a wrapped function when a
// checked position rejects its value.
type ViolationError struct {
	Position string // e.g. "parameter 0", "result 1"
	Diag     diagnose.Diagnostic
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("typefence: %s: %s", e.Position, e.Diag.String())
}

// position pairs a compiled checker with the argument or result index it
// guards.
type position struct {
	index int
	ck    *compile.Checker
	tree  *spec.Tree
}

// Wrap compiles the annotations against the cache and returns a function
// of the same type that checks annotated positions on every call. All
// specification errors surface here, at decoration time; a value violation
// at call time panics with *ViolationError.
//
// Parameters:
//
//	cache *compile.Cache: The process-scoped compilation cache.
//	fn F: The function to wrap.
//	ann Annotations: Raw specifications per parameter and result position.
//	cfg Config: Checking mode and kill switch.
//
// Returns:
//
//	F: The wrapped function (or fn itself when disabled).
//	error: An error if an annotation is invalid for the signature or a
//	specification fails to compile.
func Wrap[F any](cache *compile.Cache, fn F, ann Annotations, cfg Config) (F, error) {
	if cfg.Disabled {
		return fn, nil
	}
	var zero F
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return zero, fmt.Errorf("%w: not a function: %T", tferr.ErrBadAnnotation, fn)
	}
	if len(ann.Params) > ft.NumIn() {
		return zero, fmt.Errorf("%w: %d parameter specifications for %d parameters", tferr.ErrBadAnnotation, len(ann.Params), ft.NumIn())
	}
	if len(ann.Results) > ft.NumOut() {
		return zero, fmt.Errorf("%w: %d result specifications for %d results", tferr.ErrBadAnnotation, len(ann.Results), ft.NumOut())
	}

	mode := cfg.Mode
	if mode == "" {
		mode = compile.ModeSample
	}

	params, err := compilePositions(cache, ann.Params, ann.Registry, mode)
	if err != nil {
		return zero, err
	}
	results, err := compilePositions(cache, ann.Results, ann.Registry, mode)
	if err != nil {
		return zero, err
	}

	wrapper := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		for _, p := range params {
			v := args[p.index].Interface()
			if !p.ck.Check(v) {
				panic(&ViolationError{
					Position: fmt.Sprintf("parameter %d", p.index),
					Diag:     diagnose.Explain(p.tree, v),
				})
			}
		}
		var out []reflect.Value
		if ft.IsVariadic() {
			out = fv.CallSlice(args)
		} else {
			out = fv.Call(args)
		}
		for _, p := range results {
			v := out[p.index].Interface()
			if !p.ck.Check(v) {
				panic(&ViolationError{
					Position: fmt.Sprintf("result %d", p.index),
					Diag:     diagnose.Explain(p.tree, v),
				})
			}
		}
		return out
	})
	return wrapper.Interface().(F), nil
}

// MustWrap is Wrap panicking on decoration-time errors.
func MustWrap[F any](cache *compile.Cache, fn F, ann Annotations, cfg Config) F {
	wrapped, err := Wrap(cache, fn, ann, cfg)
	if err != nil {
		panic(err)
	}
	return wrapped
}

// compilePositions parses and compiles each non-nil raw specification,
// recording the position it guards. Parsing happens once per position; the
// resulting tree is the cache identity for all later calls.
func compilePositions(cache *compile.Cache, raws []any, reg *spec.Registry, mode compile.Mode) ([]position, error) {
	out := make([]position, 0, len(raws))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		tree, err := spec.Parse(raw, reg)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		ck, err := cache.GetOrCompile(tree, mode)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		out = append(out, position{index: i, ck: ck, tree: tree})
	}
	return out, nil
}

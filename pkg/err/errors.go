// Package err defines common errors for the typefence project.
package err

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedSpecification reports a raw specification whose shape
	// matches no classification rule. Raised at compile time.
	ErrUnsupportedSpecification = errors.New("unsupported specification")
	// ErrUnresolvedForwardReference reports a named reference that cannot
	// be resolved in its registry scope. Raised at compile time.
	ErrUnresolvedForwardReference = errors.New("unresolved forward reference")
	// ErrMalformedContainerArity reports a container node whose child
	// count disagrees with its arity tag. Indicates an internal
	// classifier/reducer inconsistency and is not recoverable.
	ErrMalformedContainerArity = errors.New("malformed container arity")
	// ErrBadAnnotation reports a wrapper annotation that does not fit the
	// wrapped function's signature.
	ErrBadAnnotation = errors.New("annotation does not fit function signature")
)

// ErrUnsupported returns an error for a raw specification that matched no
// classification rule.
//
// Parameters:
//
//	desc string: A description of the offending raw specification.
//
// Returns:
//
//	error: The formatted error wrapping ErrUnsupportedSpecification.
func ErrUnsupported(desc string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedSpecification, desc)
}

// ErrUnresolved returns an error for a forward reference that has no entry
// in its resolution scope.
//
// Parameters:
//
//	name string: The unresolved reference name.
//
// Returns:
//
//	error: The formatted error wrapping ErrUnresolvedForwardReference.
func ErrUnresolved(name string) error {
	return fmt.Errorf("%w: %q", ErrUnresolvedForwardReference, name)
}

// ErrArity returns an error for a container whose child count disagrees
// with its arity tag.
//
// Parameters:
//
//	want int: The child count required by the arity tag.
//	got int: The actual child count.
//
// Returns:
//
//	error: The formatted error wrapping ErrMalformedContainerArity.
func ErrArity(want, got int) error {
	return fmt.Errorf("%w: want %d children, got %d", ErrMalformedContainerArity, want, got)
}

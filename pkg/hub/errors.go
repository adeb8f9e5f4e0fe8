package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable wraps network, transport and non-2xx
	// failures talking to the registry.
	//
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamMalformed wraps responses that could not be decoded, or
	// listings that never terminate.
	//
	ErrUpstreamMalformed = errors.New("upstream malformed")
)

// FieldMappingError names the field of a repository document that is either
// missing or of an unexpected type.
//
type FieldMappingError struct {
	Field string
	Err   error
}

func (e *FieldMappingError) Error() string {
	return fmt.Sprintf("field '%s': %v", e.Field, e.Err)
}

func (e *FieldMappingError) Unwrap() error {
	return e.Err
}

var errMissing = errors.New("missing")

package indexing

import (
	"errors"
	"fmt"
)

// ErrMalformedIndex is returned (wrapped) when an artifact does not have the
// {docs: [...]} shape or a record lacks a required field.
var ErrMalformedIndex = errors.New("malformed search index")

// MalformedIndexError carries the location of a shape violation.
type MalformedIndexError struct {
	Path   string // JSON path, e.g. "$.docs.3.location"
	Reason string
}

func (e *MalformedIndexError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedIndex, e.Reason)
	}
	return fmt.Sprintf("%s at %s: %s", ErrMalformedIndex, e.Path, e.Reason)
}

func (e *MalformedIndexError) Unwrap() error {
	return ErrMalformedIndex
}

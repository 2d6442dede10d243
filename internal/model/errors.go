package model

import (
	"errors"
	"fmt"
)

// ErrEngineUnavailable is returned by NewEngine whenever no usable engine could
// be produced. The feature should be treated as disabled.
var ErrEngineUnavailable = errors.New("engine unavailable")

// ResourceLoadError reports a model or label resource that is missing or corrupt.
type ResourceLoadError struct {
	Resource string
	Cause    error
}

func (e *ResourceLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load %s: %v", e.Resource, e.Cause)
	}
	return fmt.Sprintf("load %s", e.Resource)
}

func (e *ResourceLoadError) Unwrap() error {
	return e.Cause
}

// BufferError reports an image buffer that is zero-sized or cannot be addressed.
type BufferError struct {
	Reason string
	Cause  error
}

func (e *BufferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("image buffer: %s: %v", e.Reason, e.Cause)
	}
	return "image buffer: " + e.Reason
}

func (e *BufferError) Unwrap() error {
	return e.Cause
}

// ShapeMismatchError reports a length that does not match what the model or
// label set requires.
type ShapeMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: want %d, got %d", e.What, e.Want, e.Got)
}

// IsClientError reports whether err was caused by the submitted image or
// tensor rather than by the engine itself.
func IsClientError(err error) bool {
	var be *BufferError
	var se *ShapeMismatchError
	return errors.As(err, &be) || errors.As(err, &se)
}

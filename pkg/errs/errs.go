// Package errs defines the typed error taxonomy shared by the inference
// pipeline, the prediction store and the analytics layer.
//
// Every error type is a plain struct implementing error, so callers match
// them with errors.As and classify arbitrary wrapped errors with KindOf:
//
//	switch errs.KindOf(err) {
//	case errs.KindUnknownCategory, errs.KindInvalidInput:
//	    // report a validation failure to the caller
//	case errs.KindStorage:
//	    // the backing store is unavailable
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers that only need to decide how to
// report it.
type Kind string

const (
	KindNone             Kind = ""
	KindUnknownCategory  Kind = "unknown_category"
	KindInvalidInput     Kind = "invalid_input"
	KindArtifactMismatch Kind = "artifact_mismatch"
	KindInference        Kind = "inference"
	KindStorage          Kind = "storage"
	KindInternal         Kind = "internal"
)

// UnknownCategoryError reports a categorical label outside the fitted
// vocabulary of an encoder.
type UnknownCategoryError struct {
	Field string
	Value string
	Known []string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown %s %q (expected one of: %s)", e.Field, e.Value, strings.Join(e.Known, ", "))
}

// InputTypeError reports a missing, non-numeric or out-of-range input field.
type InputTypeError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InputTypeError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// ArtifactMismatchError reports model artifacts that disagree with each
// other on feature count or order. It is fatal at startup.
type ArtifactMismatchError struct {
	Component string
	Reason    string
}

func (e *ArtifactMismatchError) Error() string {
	return fmt.Sprintf("artifact mismatch in %s: %s", e.Component, e.Reason)
}

// InferenceError reports a classifier that rejected its input.
type InferenceError struct {
	Model  string
	Reason string
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference failed (%s): %s: %v", e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("inference failed (%s): %s", e.Model, e.Reason)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// StorageError reports a backing store that could not be read or written.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for op. A nil err stays nil and an
// error that already is a StorageError is returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Mismatch is shorthand for building an ArtifactMismatchError.
func Mismatch(component, format string, args ...any) error {
	return &ArtifactMismatchError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// KindOf classifies err by the taxonomy errors anywhere in its chain. When
// the chain holds more than one, the kind is chosen by fixed precedence:
// unknown category, invalid input, artifact mismatch, inference, storage.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		unknown  *UnknownCategoryError
		input    *InputTypeError
		mismatch *ArtifactMismatchError
		infer    *InferenceError
		storage  *StorageError
	)

	switch {
	case errors.As(err, &unknown):
		return KindUnknownCategory
	case errors.As(err, &input):
		return KindInvalidInput
	case errors.As(err, &mismatch):
		return KindArtifactMismatch
	case errors.As(err, &infer):
		return KindInference
	case errors.As(err, &storage):
		return KindStorage
	default:
		return KindInternal
	}
}

// IsValidation reports whether err is a client-facing input validation
// failure.
func IsValidation(err error) bool {
	k := KindOf(err)
	return k == KindUnknownCategory || k == KindInvalidInput
}

// FieldOf returns the offending input field for validation errors.
func FieldOf(err error) string {
	var unknown *UnknownCategoryError
	if errors.As(err, &unknown) {
		return unknown.Field
	}
	var input *InputTypeError
	if errors.As(err, &input) {
		return input.Field
	}
	return ""
}

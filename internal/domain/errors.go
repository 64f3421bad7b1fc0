package domain

import (
	"errors"
	"fmt"
)

// KeyPrefix namespaces every key blockrisk writes to a shared KV store.
const KeyPrefix = "blockrisk:"

var (
	// ErrDatasetNotFound signals that no dataset has been generated yet.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrEmptyDataset signals a dataset too small to split and fit.
	ErrEmptyDataset = errors.New("dataset has too few rows")
	// ErrSchemaMismatch signals stored columns that differ from the feature schema.
	ErrSchemaMismatch = errors.New("feature schema mismatch")

	// ErrArtifactNotFound signals a missing model artifact file.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrArtifactLoadFailed signals a missing or unreadable model artifact.
	ErrArtifactLoadFailed = errors.New("model artifact load failed")

	// ErrServiceUnavailable signals a prediction attempted while no model is ready.
	ErrServiceUnavailable = errors.New("model not loaded")
	// ErrInvalidInput signals a malformed or non-numeric prediction payload.
	ErrInvalidInput = errors.New("invalid input")
)

// UnavailableError wraps ErrServiceUnavailable with the artifact path the server tried to load.
type UnavailableError struct {
	ArtifactPath string
	Cause        error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (path checked: %s): %v", ErrServiceUnavailable.Error(), e.ArtifactPath, e.Cause)
	}
	return fmt.Sprintf("%s (path checked: %s)", ErrServiceUnavailable.Error(), e.ArtifactPath)
}

func (e *UnavailableError) Unwrap() error { return ErrServiceUnavailable }

// NewUnavailable creates a service unavailable error carrying the artifact path.
func NewUnavailable(artifactPath string, cause error) error {
	return &UnavailableError{ArtifactPath: artifactPath, Cause: cause}
}

// InvalidInputError wraps ErrInvalidInput with the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidInput.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidInput.Error(), e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// NewInvalidInput creates an invalid input error for a field (field may be empty).
func NewInvalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

package rag

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrEmptyInput        = errors.New("empty input")
)

// EmbeddingServiceError reports a failed, timed out or malformed call to the
// embedding provider.
type EmbeddingServiceError struct {
	Op  string
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// StoreWriteError reports that fragments or cache entries could not be
// persisted. Nothing from the failed call was written.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write: %s: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// StoreReadError reports a failed similarity query.
type StoreReadError struct {
	Op  string
	Err error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("store read: %s: %v", e.Op, e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }

// GenerationError reports a failed call to the generation model.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// CheckDimension returns an error wrapping ErrDimensionMismatch unless vector
// has exactly dimensions elements.
func CheckDimension(vector []float64, dimensions int) error {
	if len(vector) != dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dimensions)
	}
	return nil
}

// CheckQuery validates the arguments of a similarity query.
func CheckQuery(vector []float64, dimensions int, minSimilarity float64, limit int) error {
	if err := CheckDimension(vector, dimensions); err != nil {
		return err
	}
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, limit)
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return fmt.Errorf("%w: min similarity must be within [0,1], got %g", ErrInvalidArgument, minSimilarity)
	}
	return nil
}

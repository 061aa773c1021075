package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound           = errors.New("resource not found")
	ErrEvaluationNotFound = fmt.Errorf("%w: evaluation", ErrNotFound)

	// ErrSpecValidation marks a malformed scenario document. Callers map it to a
	// client error and never run estimators.
	ErrSpecValidation = errors.New("scenario spec validation failed")

	// ErrDataContract marks a dataset that lacks a column or violates a record
	// invariant required by the requested estimator family.
	ErrDataContract = errors.New("data contract violated")

	// ErrEstimation marks numerical degeneracy. Estimators report it through
	// sentinel values instead of returning it; it is only surfaced by callers
	// that explicitly require a non-degenerate estimate.
	ErrEstimation = errors.New("estimation degenerate")

	ErrInsufficientData = errors.New("insufficient data for analysis")
)

// DataContractError names the column (and row, when known) that broke the contract
type DataContractError struct {
	Column string
	Row    int // -1 when the violation is not row specific
	Reason string
}

func (e *DataContractError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("data contract violated at row %d, column %q: %s", e.Row, e.Column, e.Reason)
	}
	return fmt.Sprintf("data contract violated for column %q: %s", e.Column, e.Reason)
}

func (e *DataContractError) Is(target error) bool {
	return target == ErrDataContract
}

// NewDataContractError builds a column-level contract violation
func NewDataContractError(column, reason string) error {
	return &DataContractError{Column: column, Row: -1, Reason: reason}
}

// NewRowContractError builds a row-level contract violation
func NewRowContractError(row int, column, reason string) error {
	return &DataContractError{Column: column, Row: row, Reason: reason}
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsSpecValidationError(err error) bool {
	return errors.Is(err, ErrSpecValidation)
}

func IsDataContractError(err error) bool {
	return errors.Is(err, ErrDataContract)
}

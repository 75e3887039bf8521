/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Sentinels classify; structured errors carry the offending values and
  unwrap to their sentinel so callers can use errors.Is / errors.As.

ERROR CATEGORIES:
  1. Lookup errors - unknown teacher, vacation record
  2. Validation errors - negative inputs, inverted ranges
  3. Ledger rule violations - overlap, balance, status transitions
  4. Data errors - empty salary history, unreadable reference tables

USAGE:
    var ib *generic.InsufficientBalanceError
    if errors.As(err, &ib) {
        log.Printf("short by %d days", ib.Requested-ib.Available)
    }

SEE ALSO:
  - api/handlers.go: maps these errors to HTTP status codes
  - vacation/ledger.go: raises the ledger rule violations
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced teacher or record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for negative amounts, unknown enum values
	// and similar boundary validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRange is returned when a date or year range is inverted.
	ErrInvalidRange = errors.New("invalid range")

	// ErrOverlappingPeriod is returned when a leave range intersects an
	// existing non-cancelled record of the same teacher.
	ErrOverlappingPeriod = errors.New("overlapping period")

	// ErrInsufficientBalance is returned when requested days exceed remaining days.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidStatusTransition is returned when a record's status forbids the operation.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrNoHistoricalData is returned when a payout has no salary history to average.
	ErrNoHistoricalData = errors.New("no historical salary data")

	// ErrDataUnavailable is returned when reference tables cannot be read.
	ErrDataUnavailable = errors.New("reference data unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "teacher", "vacation"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InputError describes a rejected input field.
type InputError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// RangeError describes an inverted or incomplete range.
type RangeError struct {
	What   string
	From   string
	To     string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid %s %s..%s: %s", e.What, e.From, e.To, e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// OverlapError names the existing record a new leave range collides with.
type OverlapError struct {
	TeacherID  int64
	Requested  Period
	ExistingID int64
	Existing   Period
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("teacher %d: %s overlaps vacation %d %s",
		e.TeacherID, e.Requested, e.ExistingID, e.Existing)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingPeriod }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	TeacherID int64
	Year      int
	Requested int
	Available int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %d days, only %d remaining in %d",
		e.Requested, e.Available, e.Year)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// StatusTransitionError reports an operation refused by the record status.
type StatusTransitionError struct {
	VacationID int64
	Status     VacationStatus
	Action     string
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("vacation %d: cannot %s in status %s", e.VacationID, e.Action, e.Status)
}

func (e *StatusTransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// NoHistoricalDataError names the empty lookback window.
type NoHistoricalDataError struct {
	TeacherID int64
	Window    Period
}

func (e *NoHistoricalDataError) Error() string {
	return fmt.Sprintf("teacher %d: no salary calculations in %s", e.TeacherID, e.Window)
}

func (e *NoHistoricalDataError) Unwrap() error { return ErrNoHistoricalData }

// DataUnavailableError names the reference table that could not be read.
type DataUnavailableError struct {
	Table string
	Err   error
}

func (e *DataUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("reference table %s unavailable", e.Table)
	}
	return fmt.Sprintf("reference table %s unavailable: %v", e.Table, e.Err)
}

func (e *DataUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDataUnavailable}
	}
	return []error{ErrDataUnavailable, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidRange)
}

// IsConflict returns true if the request is valid but refused by ledger state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOverlappingPeriod) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidStatusTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

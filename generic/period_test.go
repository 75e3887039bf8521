package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
)

func july(day int) generic.Date { return generic.NewDate(2025, time.July, day) }

// =============================================================================
// PERIOD TESTS
// =============================================================================

func TestNewPeriod_RejectsInvertedRange(t *testing.T) {
	_, err := generic.NewPeriod(july(10), july(1))

	var rangeErr *generic.RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.ErrorIs(t, err, generic.ErrInvalidRange)
	assert.Equal(t, "2025-07-10", rangeErr.From)
}

func TestPeriod_DaysIsInclusive(t *testing.T) {
	p, err := generic.NewPeriod(july(1), july(14))
	require.NoError(t, err)
	assert.Equal(t, 14, p.Days())

	single, err := generic.NewPeriod(july(1), july(1))
	require.NoError(t, err)
	assert.Equal(t, 1, single.Days())
}

func TestPeriod_Overlaps_InclusiveBoundaries(t *testing.T) {
	// GIVEN: An existing leave July 1..14
	existing := generic.Period{Start: july(1), End: july(14)}

	// THEN: Sharing the last day overlaps, starting the next day does not
	assert.True(t, existing.Overlaps(generic.Period{Start: july(14), End: july(20)}))
	assert.False(t, existing.Overlaps(generic.Period{Start: july(15), End: july(20)}))
	assert.True(t, existing.Overlaps(generic.Period{Start: july(3), End: july(5)}))
	assert.False(t, existing.Overlaps(generic.Period{
		Start: generic.NewDate(2025, time.June, 20),
		End:   generic.NewDate(2025, time.June, 30),
	}))
}

func TestPeriod_TouchesYear(t *testing.T) {
	crossing := generic.Period{
		Start: generic.NewDate(2024, time.December, 28),
		End:   generic.NewDate(2025, time.January, 5),
	}
	assert.True(t, crossing.TouchesYear(2024))
	assert.True(t, crossing.TouchesYear(2025))
	assert.False(t, crossing.TouchesYear(2023))
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestInsufficientBalanceError_Message(t *testing.T) {
	err := &generic.InsufficientBalanceError{TeacherID: 7, Year: 2025, Requested: 20, Available: 12}

	assert.Contains(t, err.Error(), "requested 20 days, only 12 remaining")
	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance))
	assert.True(t, generic.IsConflict(err))
	assert.False(t, generic.IsClientError(err))
}

func TestDataUnavailableError_UnwrapsBoth(t *testing.T) {
	cause := errors.New("connection refused")
	err := &generic.DataUnavailableError{Table: "experience_bonuses", Err: cause}

	assert.ErrorIs(t, err, generic.ErrDataUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "experience_bonuses")
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, generic.IsNotFound(&generic.NotFoundError{Kind: "teacher", ID: 1}))
	assert.True(t, generic.IsClientError(&generic.InputError{Field: "hours_worked", Value: -3, Reason: "negative"}))
	assert.True(t, generic.IsClientError(&generic.RangeError{What: "transfer", From: "2025", To: "2024"}))
	assert.True(t, generic.IsConflict(&generic.StatusTransitionError{VacationID: 1, Status: generic.StatusPaid, Action: "cancel"}))
	assert.False(t, generic.IsNotFound(errors.New("boom")))
}

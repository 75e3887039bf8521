/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Teacher registration and lookup
- Salary calculation, saving and history
- Leave scheduling, status changes and payment
- Error to HTTP status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/generic/store"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/reference"
	"github.com/warp/payroll-engine/stats"
	"github.com/warp/payroll-engine/vacation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testToday = generic.NewDate(2025, time.October, 1)

func testClock() generic.Date { return testToday }

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *store.Memory
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	m := store.NewMemory()
	engine := payroll.NewEngine(reference.Defaults(), m, payroll.WithClock(testClock))
	ledger := vacation.NewLedger(m, engine, vacation.WithClock(testClock))
	h := NewHandler(m, engine, ledger, stats.NewAggregator(m), nil)
	mt := metrics.New()
	return &testServer{
		handler: h,
		router:  NewRouter(h, RouterOptions{Metrics: mt}),
		store:   m,
		metrics: mt,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// addTeacher registers an assistant with one year of experience: 28 leave
// days and a 20/hour rate.
func (s *testServer) addTeacher(t *testing.T) int64 {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/teachers", map[string]any{
		"name":             "Olga Petrova",
		"position":         "assistant",
		"experience_years": 1,
		"hourly_rate":      "20",
		"hire_date":        "2024-09-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[generic.TeacherProfile](t, rec).ID
}

// saveHistory stores a 2000.00 gross calculation on the 25th of each of the
// previous twelve months.
func (s *testServer) saveHistory(t *testing.T, teacherID int64) {
	t.Helper()
	for k := 12; k >= 1; k-- {
		month := testToday.Time.AddDate(0, -k, 0)
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/salary?save=true", teacherID), map[string]any{
			"hours_worked":     "100",
			"calculation_date": generic.NewDate(month.Year(), month.Month(), 25).String(),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

// =============================================================================
// TEACHERS
// =============================================================================

func TestCreateTeacher_RoundTrip(t *testing.T) {
	// GIVEN: An empty server
	s := newTestServer(t)

	// WHEN: A teacher is registered and fetched
	id := s.addTeacher(t)
	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d", id), nil)

	// THEN: The stored profile comes back
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[generic.TeacherProfile](t, rec)
	assert.Equal(t, "Olga Petrova", got.Name)
	assert.Equal(t, "assistant", got.Position)
	assert.True(t, got.HourlyRate.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "2024-09-01", got.HireDate.String())

	list := decodeBody[[]generic.TeacherProfile](t, s.do(t, http.MethodGet, "/api/teachers", nil))
	assert.Len(t, list, 1)
}

func TestCreateTeacher_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing name", map[string]any{"position": "teacher"}, "name"},
		{"negative rate", map[string]any{"name": "A", "hourly_rate": "-1"}, "hourly_rate"},
		{"bad hire date", map[string]any{"name": "A", "hire_date": "yesterday"}, "hire_date"},
		{"experience out of range", map[string]any{"name": "A", "experience_years": 99}, "experience_years"},
		{"malformed json", "{", "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/teachers", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, "invalid_input", resp.Code)
			assert.Contains(t, resp.Details, tt.field)
		})
	}
}

func TestGetTeacher_NotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/teachers/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/teachers/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYROLL
// =============================================================================

func TestCalculateSalary_PreviewDoesNotSave(t *testing.T) {
	// GIVEN: A teacher
	s := newTestServer(t)
	id := s.addTeacher(t)

	// WHEN: A salary is calculated without save
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/salary", id), map[string]any{
		"hours_worked":     "100",
		"calculation_date": "2025-09-25",
	})

	// THEN: The breakdown is returned and nothing is stored
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	calc := decodeBody[generic.SalaryCalculation](t, rec)
	assert.Zero(t, calc.ID)
	assert.Equal(t, "2000.00", calc.BaseSalary.StringFixed(2))
	assert.Equal(t, "2000.00", calc.GrossSalary.StringFixed(2))
	assert.Equal(t, "260.00", calc.TaxAmount.StringFixed(2))
	assert.Equal(t, "1740.00", calc.NetSalary.StringFixed(2))
	assert.True(t, calc.GrossSalary.Equal(calc.ComponentSum()))

	history := decodeBody[[]generic.SalaryCalculation](t,
		s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/calculations", id), nil))
	assert.Empty(t, history)
}

func TestCalculateSalary_SaveAppendsHistory(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/salary?save=true", id), map[string]any{
		"hours_worked":     "100",
		"tax_rate_percent": "10",
		"calculation_date": "2025-09-25",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decodeBody[generic.SalaryCalculation](t, rec)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "200.00", saved.TaxAmount.StringFixed(2))

	history := decodeBody[[]generic.SalaryCalculation](t,
		s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/calculations?from=2025-09-01&to=2025-09-30", id), nil))
	require.Len(t, history, 1)
	assert.Equal(t, saved.ID, history[0].ID)
}

func TestCalculateSalary_Rejections(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/salary", id), map[string]any{"hours_worked": "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/teachers/99/salary", map[string]any{"hours_worked": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/salary?save=maybe", id), map[string]any{"hours_worked": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCalculations_InvertedRange(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/calculations?from=2025-09-30&to=2025-09-01", id), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteVacationPay_NeedsHistory(t *testing.T) {
	// GIVEN: A teacher with no saved calculations
	s := newTestServer(t)
	id := s.addTeacher(t)
	body := map[string]any{"start_date": "2025-11-03", "end_date": "2025-11-09"}

	// WHEN: Vacation pay is quoted
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/vacation-pay", id), body)

	// THEN: There is nothing to average
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "no_historical_data", decodeBody[ErrorResponse](t, rec).Code)

	// WHEN: A year of history is saved
	s.saveHistory(t, id)
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/vacation-pay", id), body)

	// THEN: The payout covers seven days
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payout := decodeBody[payroll.VacationPayout](t, rec)
	assert.Equal(t, 7, payout.VacationDays)
	assert.True(t, payout.GrossVacationPay.IsPositive())
}

func TestQuoteSickLeave(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)
	s.saveHistory(t, id)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/sick-leave", id), map[string]any{
		"start_date":      "2025-10-06",
		"end_date":        "2025-10-10",
		"is_work_related": true,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payout := decodeBody[payroll.SickLeavePayout](t, rec)
	assert.Equal(t, 100, payout.PaymentPercentage)
}

func TestQuotes_InvertedRange(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)

	for _, path := range []string{"vacation-pay", "sick-leave"} {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/%s", id, path), map[string]any{
			"start_date": "2025-10-10",
			"end_date":   "2025-10-01",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGetStatistics(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)
	s.saveHistory(t, id)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/statistics?year=2025", id), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ys := decodeBody[stats.YearlyStatistics](t, rec)
	assert.Equal(t, 2025, ys.Year)
	assert.Equal(t, 9, ys.MonthsWithData)
	assert.Equal(t, "18000.00", ys.TotalGross.StringFixed(2))
}

// =============================================================================
// LEAVE
// =============================================================================

func (s *testServer) schedule(t *testing.T, teacherID int64, start, end string) generic.VacationRecord {
	t.Helper()
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/vacations", teacherID), map[string]any{
		"start_date": start,
		"end_date":   end,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[generic.VacationRecord](t, rec)
}

func TestScheduleVacation_Lifecycle(t *testing.T) {
	// GIVEN: A teacher with salary history
	s := newTestServer(t)
	id := s.addTeacher(t)
	s.saveHistory(t, id)

	// WHEN: A vacation is scheduled, used and paid
	v := s.schedule(t, id, "2025-10-06", "2025-10-12")
	assert.Equal(t, generic.StatusScheduled, v.Status)
	assert.Equal(t, 7, v.DaysCount)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/vacations/%d/use", v.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, generic.StatusUsed, decodeBody[StatusChangeResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/vacations/%d/pay", v.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The record is paid on today's date and the balance reflects it
	got := decodeBody[generic.VacationRecord](t, s.do(t, http.MethodGet, fmt.Sprintf("/api/vacations/%d", v.ID), nil))
	assert.Equal(t, generic.StatusPaid, got.Status)
	require.NotNil(t, got.PaymentDate)
	assert.Equal(t, testToday.String(), got.PaymentDate.String())

	bal := decodeBody[vacation.Balance](t, s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/vacation-balance?year=2025", id), nil))
	assert.Equal(t, 28, bal.Entitlement)
	assert.Equal(t, 7, bal.Used)
	assert.Equal(t, 21, bal.Remaining)

	audit := decodeBody[[]generic.AuditEntry](t, s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/audit", id), nil))
	require.Len(t, audit, 3)
	assert.Equal(t, generic.AuditVacationScheduled, audit[0].Action)
}

func TestScheduleVacation_Conflicts(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)
	s.schedule(t, id, "2025-10-06", "2025-10-12")

	tests := []struct {
		name   string
		start  string
		end    string
		status int
		code   string
	}{
		{"overlap", "2025-10-12", "2025-10-14", http.StatusConflict, "overlapping_period"},
		{"over balance", "2025-11-01", "2025-11-30", http.StatusConflict, "insufficient_balance"},
		{"inverted", "2025-11-10", "2025-11-01", http.StatusBadRequest, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/vacations", id), map[string]any{
				"start_date": tt.start,
				"end_date":   tt.end,
			})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCancelVacation_RefusalStatuses(t *testing.T) {
	// GIVEN: A cancelled vacation
	s := newTestServer(t)
	id := s.addTeacher(t)
	v := s.schedule(t, id, "2025-10-06", "2025-10-12")
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/vacations/%d/cancel", v.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: It is cancelled again
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/vacations/%d/cancel", v.ID), nil)

	// THEN: The status forbids it
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decodeBody[ErrorResponse](t, rec).Code)

	// AND: An unknown id is not found
	rec = s.do(t, http.MethodPost, "/api/vacations/999/use", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTeacherVacations_Filters(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)
	kept := s.schedule(t, id, "2025-10-06", "2025-10-08")
	dropped := s.schedule(t, id, "2025-11-03", "2025-11-05")
	s.do(t, http.MethodPost, fmt.Sprintf("/api/vacations/%d/cancel", dropped.ID), nil)

	active := decodeBody[[]generic.VacationRecord](t, s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/vacations", id), nil))
	require.Len(t, active, 1)
	assert.Equal(t, kept.ID, active[0].ID)

	all := decodeBody[[]generic.VacationRecord](t, s.do(t, http.MethodGet,
		fmt.Sprintf("/api/teachers/%d/vacations?year=2025&include_cancelled=true", id), nil))
	assert.Len(t, all, 2)

	none := decodeBody[[]generic.VacationRecord](t, s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/vacations?year=2024", id), nil))
	assert.Empty(t, none)
}

func TestListCurrentVacations(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)
	s.schedule(t, id, "2025-09-29", "2025-10-03")
	s.schedule(t, id, "2025-12-01", "2025-12-03")

	now := decodeBody[[]generic.VacationRecord](t, s.do(t, http.MethodGet, "/api/vacations/current", nil))
	assert.Len(t, now, 1)

	withFuture := decodeBody[[]generic.VacationRecord](t, s.do(t, http.MethodGet, "/api/vacations/current?include_future=true", nil))
	assert.Len(t, withFuture, 2)

	rec := s.do(t, http.MethodGet, "/api/vacations/current?past_days=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransfers(t *testing.T) {
	// GIVEN: A teacher with an untouched 2024 allotment
	s := newTestServer(t)
	id := s.addTeacher(t)

	// WHEN: Five days are carried into 2025
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/transfers", id), map[string]any{
		"from_year": 2024, "to_year": 2025, "days": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: The transfer is listed and 2025 gains the days
	transfers := decodeBody[[]generic.VacationTransfer](t, s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/transfers", id), nil))
	require.Len(t, transfers, 1)
	assert.Equal(t, 5, transfers[0].DaysCount)

	bal := decodeBody[vacation.Balance](t, s.do(t, http.MethodGet, fmt.Sprintf("/api/teachers/%d/vacation-balance?year=2025", id), nil))
	assert.Equal(t, 5, bal.TransferredIn)
	assert.Equal(t, 33, bal.Remaining)

	// AND: Backwards and oversized transfers are refused
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/transfers", id), map[string]any{
		"from_year": 2025, "to_year": 2024, "days": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/teachers/%d/transfers", id), map[string]any{
		"from_year": 2024, "to_year": 2025, "days": 100,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// STATISTICS, REFERENCE, INFRASTRUCTURE
// =============================================================================

func TestStatsEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.addTeacher(t)
	s.saveHistory(t, id)
	s.schedule(t, id, "2025-10-06", "2025-10-08")

	rec := s.do(t, http.MethodGet, "/api/stats/payroll?year=2025&month=9", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[stats.PayrollReport](t, rec)
	require.Len(t, report.Teachers, 1)

	rec = s.do(t, http.MethodGet, "/api/stats/vacations?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	vs := decodeBody[stats.VacationStatistics](t, rec)
	assert.Equal(t, 2025, vs.Year)
}

func TestGetReference(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/reference", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody[reference.Document](t, rec)
	assert.True(t, doc.Positions["professor"].Equal(decimal.RequireFromString("1.5")))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(t, http.MethodGet, "/api/teachers/7", nil)
	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/teachers/{id}`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&generic.NotFoundError{Kind: "teacher", ID: 1}, http.StatusNotFound},
		{&generic.InputError{Field: "days"}, http.StatusBadRequest},
		{&generic.RangeError{What: "period"}, http.StatusBadRequest},
		{&generic.OverlapError{}, http.StatusConflict},
		{&generic.InsufficientBalanceError{}, http.StatusConflict},
		{&generic.StatusTransitionError{}, http.StatusConflict},
		{&generic.NoHistoricalDataError{}, http.StatusUnprocessableEntity},
		{&generic.DataUnavailableError{Table: "vacation_days"}, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", &generic.NotFoundError{}), http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			status, _, _ := statusFor(tt.err)
			assert.Equal(t, tt.status, status, tt.err.Error())
		})
	}
}

func TestResetDatabase(t *testing.T) {
	s := newTestServer(t)
	s.addTeacher(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	teachers, err := s.store.ListTeachers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, teachers)
}

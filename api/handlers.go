/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the Compensation Engine, Leave Ledger and Statistics Aggregator
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic. No business rule lives here.

ENDPOINTS:
  Teachers:
    GET    /api/teachers                          List teachers
    POST   /api/teachers                          Register teacher
    GET    /api/teachers/{id}                     Teacher profile

  Payroll:
    POST   /api/teachers/{id}/salary              Calculate (?save=true appends to history)
    GET    /api/teachers/{id}/calculations        Saved history (?from&to)
    POST   /api/teachers/{id}/vacation-pay        Quote a vacation payout
    POST   /api/teachers/{id}/sick-leave          Quote a sick-leave payout
    GET    /api/teachers/{id}/statistics          Yearly breakdown (?year)

  Leave:
    GET    /api/teachers/{id}/vacations           Records (?year&include_cancelled)
    POST   /api/teachers/{id}/vacations           Schedule
    GET    /api/teachers/{id}/vacation-balance    Balance (?year)
    GET    /api/teachers/{id}/transfers           Carry-overs
    POST   /api/teachers/{id}/transfers           Carry days into a later year
    GET    /api/teachers/{id}/audit               Ledger audit trail
    GET    /api/vacations/current                 Running now (?include_future&past_days)
    GET    /api/vacations/{id}                    One record
    POST   /api/vacations/{id}/cancel|use|pay     Status transitions

  Statistics & reference:
    GET    /api/stats/vacations                   Leave statistics (?year)
    GET    /api/stats/payroll                     Monthly payroll (?year&month)
    GET    /api/reference                         Current rate tables

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, inverted ranges
  - 404: Teacher or record not found
  - 409: Overlap, insufficient balance, refused status change
  - 422: No salary history to average
  - 503: Reference tables unavailable
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/stats"
	"github.com/warp/payroll-engine/vacation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the handlers need: the transactional store plus
// Reset for demo scenarios.
type Store interface {
	generic.TxStore
	Reset(ctx context.Context) error
}

// Statistics serves the cross-teacher reports, cached or not.
type Statistics interface {
	VacationYear(ctx context.Context, year int) (*stats.VacationStatistics, error)
	MonthlyPayroll(ctx context.Context, year, month int) (*stats.PayrollReport, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Store
	Engine *payroll.Engine
	Ledger *vacation.Ledger
	Stats  Statistics

	logger   *zap.Logger
	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler over the given services.
func NewHandler(store Store, engine *payroll.Engine, ledger *vacation.Ledger, st Statistics, l *zap.Logger) *Handler {
	return &Handler{
		Store:    store,
		Engine:   engine,
		Ledger:   ledger,
		Stats:    st,
		logger:   logger.OrNop(l),
		validate: validator.New(),
	}
}

// =============================================================================
// TEACHER HANDLERS
// =============================================================================

// ListTeachers returns all teachers sorted by name.
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if teachers == nil {
		teachers = []generic.TeacherProfile{}
	}
	writeJSON(w, http.StatusOK, teachers)
}

// GetTeacher returns a single teacher.
func (h *Handler) GetTeacher(w http.ResponseWriter, r *http.Request) {
	teacher, ok := h.teacherFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, teacher)
}

// CreateTeacher registers a teacher.
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if !h.decode(w, r, &req) {
		return
	}
	tp, err := req.toProfile()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.Store.SaveTeacher(r.Context(), &tp); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("teacher created", zap.Int64("teacher_id", tp.ID), zap.String("position", tp.Position))
	writeJSON(w, http.StatusCreated, tp)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// CalculateSalary computes one period's salary. With ?save=true the result
// is appended to the teacher's history and 201 is returned.
func (h *Handler) CalculateSalary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SalaryRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toInputs()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	ctx := r.Context()
	calc, err := h.Engine.CalculateSalary(ctx, id, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	save, err := queryBool(r, "save")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if !save {
		writeJSON(w, http.StatusOK, calc)
		return
	}
	if _, err := h.Engine.SaveCalculation(ctx, calc); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, calc)
}

// ListCalculations returns saved calculations in [from, to]. The window
// defaults to the current year up to today.
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	teacher, ok := h.teacherFromPath(w, r)
	if !ok {
		return
	}
	today := h.Engine.Today()
	from, err := queryDate(r, "from", generic.StartOfYear(today.Year()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	to, err := queryDate(r, "to", today)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := generic.NewPeriod(from, to); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	calcs, err := h.Store.ListSalaryCalculations(r.Context(), teacher.ID, from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if calcs == nil {
		calcs = []generic.SalaryCalculation{}
	}
	writeJSON(w, http.StatusOK, calcs)
}

// QuoteVacationPay prices a vacation period without recording anything.
func (h *Handler) QuoteVacationPay(w http.ResponseWriter, r *http.Request) {
	id, start, end, _, ok := h.payoutRequest(w, r)
	if !ok {
		return
	}
	payout, err := h.Engine.CalculateVacationPay(r.Context(), id, start, end)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

// QuoteSickLeave prices a sick-leave period.
func (h *Handler) QuoteSickLeave(w http.ResponseWriter, r *http.Request) {
	id, start, end, workRelated, ok := h.payoutRequest(w, r)
	if !ok {
		return
	}
	payout, err := h.Engine.CalculateSickLeave(r.Context(), id, start, end, workRelated)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (h *Handler) payoutRequest(w http.ResponseWriter, r *http.Request) (int64, generic.Date, generic.Date, bool, bool) {
	id, ok := h.pathID(w, r)
	if !ok {
		return 0, generic.Date{}, generic.Date{}, false, false
	}
	var req PayoutRequest
	if !h.decode(w, r, &req) {
		return 0, generic.Date{}, generic.Date{}, false, false
	}
	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return 0, generic.Date{}, generic.Date{}, false, false
	}
	return id, start, end, req.IsWorkRelated, true
}

// GetStatistics returns a teacher's yearly breakdown.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	year, err := queryInt(r, "year", h.Engine.Today().Year())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	ys, err := h.Engine.GetTeacherStatistics(r.Context(), id, year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ys)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ListTeacherVacations returns a teacher's leave records.
func (h *Handler) ListTeacherVacations(w http.ResponseWriter, r *http.Request) {
	teacher, ok := h.teacherFromPath(w, r)
	if !ok {
		return
	}
	var year *int
	if r.URL.Query().Get("year") != "" {
		y, err := queryInt(r, "year", 0)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		year = &y
	}
	includeCancelled, err := queryBool(r, "include_cancelled")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	records, err := h.Ledger.ListTeacherVacations(r.Context(), teacher.ID, year, includeCancelled)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

// ScheduleVacation books a leave period.
func (h *Handler) ScheduleVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ScheduleVacationRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	ctx := r.Context()
	vid, err := h.Ledger.ScheduleVacation(ctx, vacation.ScheduleRequest{
		TeacherID:    id,
		StartDate:    start,
		EndDate:      end,
		VacationType: generic.VacationType(req.VacationType),
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	record, err := h.Ledger.GetVacation(ctx, vid)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// GetVacationBalance itemizes a teacher's leave days for a year.
func (h *Handler) GetVacationBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	year, err := queryInt(r, "year", h.Engine.Today().Year())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	b, err := h.Ledger.Balance(r.Context(), id, year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListTransfers returns a teacher's carry-overs.
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	teacher, ok := h.teacherFromPath(w, r)
	if !ok {
		return
	}
	transfers, err := h.Ledger.ListTransfers(r.Context(), teacher.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if transfers == nil {
		transfers = []generic.VacationTransfer{}
	}
	writeJSON(w, http.StatusOK, transfers)
}

// CreateTransfer carries unused days into a later year.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	tid, err := h.Ledger.TransferVacationDays(r.Context(), id, req.FromYear, req.ToYear, req.Days)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: tid})
}

// GetAuditTrail returns the teacher's ledger audit entries, oldest first.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	teacher, ok := h.teacherFromPath(w, r)
	if !ok {
		return
	}
	entries, err := h.Ledger.AuditTrail(r.Context(), teacher.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []generic.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListCurrentVacations returns records running today.
func (h *Handler) ListCurrentVacations(w http.ResponseWriter, r *http.Request) {
	includeFuture, err := queryBool(r, "include_future")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	pastDays, err := queryInt(r, "past_days", 0)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	records, err := h.Ledger.ListCurrentVacations(r.Context(), includeFuture, pastDays)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

// GetVacation returns one leave record.
func (h *Handler) GetVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	record, err := h.Ledger.GetVacation(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// CancelVacation moves a scheduled record to cancelled.
func (h *Handler) CancelVacation(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, generic.StatusCancelled, h.Ledger.CancelVacation)
}

// MarkVacationUsed moves a scheduled record to used.
func (h *Handler) MarkVacationUsed(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, generic.StatusUsed, h.Ledger.MarkVacationAsUsed)
}

// changeStatus runs a ledger transition. A refusal becomes 404 when the
// record is missing and 409 otherwise.
func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, to generic.VacationStatus,
	transition func(context.Context, int64) (bool, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	changed, err := transition(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if changed {
		writeJSON(w, http.StatusOK, StatusChangeResponse{VacationID: id, Status: to})
		return
	}

	record, err := h.Ledger.GetVacation(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeDomainError(w, r, &generic.StatusTransitionError{
		VacationID: id,
		Status:     record.Status,
		Action:     "move to " + string(to),
	})
}

// PayVacation prices a scheduled or used record and marks it paid.
func (h *Handler) PayVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payment, err := h.Ledger.CalculateVacationPayment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// =============================================================================
// STATISTICS & REFERENCE HANDLERS
// =============================================================================

// GetVacationStatistics returns leave statistics for a year.
func (h *Handler) GetVacationStatistics(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", h.Engine.Today().Year())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	vs, err := h.Stats.VacationYear(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// GetMonthlyPayroll returns per-teacher sums for one month.
func (h *Handler) GetMonthlyPayroll(w http.ResponseWriter, r *http.Request) {
	today := h.Engine.Today()
	year, err := queryInt(r, "year", today.Year())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	month, err := queryInt(r, "month", int(today.Month()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	report, err := h.Stats.MonthlyPayroll(r.Context(), year, month)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetReference returns the rate tables the engine computes with.
func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Tables().Document())
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors to HTTP status, message and code.
func statusFor(err error) (int, string, string) {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound, "Not found", "not_found"
	case generic.IsClientError(err):
		return http.StatusBadRequest, "Invalid request", "invalid_input"
	case errors.Is(err, generic.ErrOverlappingPeriod):
		return http.StatusConflict, "Leave period overlaps an existing record", "overlapping_period"
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusConflict, "Insufficient vacation balance", "insufficient_balance"
	case errors.Is(err, generic.ErrInvalidStatusTransition):
		return http.StatusConflict, "Operation not allowed in the current status", "invalid_status_transition"
	case errors.Is(err, generic.ErrNoHistoricalData):
		return http.StatusUnprocessableEntity, "No salary history to average", "no_historical_data"
	case errors.Is(err, generic.ErrDataUnavailable):
		return http.StatusServiceUnavailable, "Reference data unavailable", "data_unavailable"
	default:
		return http.StatusInternalServerError, "Internal error", "internal"
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, message, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

// decode reads a JSON body into dst and validates its struct tags. It
// writes the 400 response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeDomainError(w, r, &generic.InputError{Field: "body", Value: nil, Reason: "invalid JSON: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			h.writeDomainError(w, r, &generic.InputError{
				Field:  toSnake(fe.Field()),
				Value:  fe.Value(),
				Reason: "failed " + fe.Tag(),
			})
			return false
		}
		h.writeDomainError(w, r, fmt.Errorf("%w: %v", generic.ErrInvalidInput, err))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeDomainError(w, r, &generic.InputError{Field: "id", Value: raw, Reason: "expected a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) teacherFromPath(w http.ResponseWriter, r *http.Request) (*generic.TeacherProfile, bool) {
	id, ok := h.pathID(w, r)
	if !ok {
		return nil, false
	}
	teacher, err := h.Store.FindTeacherByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return nil, false
	}
	if teacher == nil {
		h.writeDomainError(w, r, &generic.NotFoundError{Kind: "teacher", ID: id})
		return nil, false
	}
	return teacher, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &generic.InputError{Field: key, Value: raw, Reason: "expected an integer"}
	}
	return v, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &generic.InputError{Field: key, Value: raw, Reason: "expected true or false"}
	}
	return v, nil
}

func queryDate(r *http.Request, key string, fallback generic.Date) (generic.Date, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := generic.ParseDate(raw)
	if err != nil {
		return generic.Date{}, &generic.InputError{Field: key, Value: raw, Reason: "expected YYYY-MM-DD or DD.MM.YYYY"}
	}
	return d, nil
}

func parseRange(startRaw, endRaw string) (generic.Date, generic.Date, error) {
	start, err := generic.ParseDate(startRaw)
	if err != nil {
		return generic.Date{}, generic.Date{}, &generic.InputError{Field: "start_date", Value: startRaw, Reason: "expected YYYY-MM-DD or DD.MM.YYYY"}
	}
	end, err := generic.ParseDate(endRaw)
	if err != nil {
		return generic.Date{}, generic.Date{}, &generic.InputError{Field: "end_date", Value: endRaw, Reason: "expected YYYY-MM-DD or DD.MM.YYYY"}
	}
	return start, end, nil
}

func nonNil(records []generic.VacationRecord) []generic.VacationRecord {
	if records == nil {
		return []generic.VacationRecord{}
	}
	return records
}

// toSnake turns a Go field name into its JSON key, e.g. FromYear -> from_year.
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

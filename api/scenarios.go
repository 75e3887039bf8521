/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario registers teachers, saves a
	salary history and drives the leave ledger through its operations so
	payouts and statistics have something to work with.

AVAILABLE SCENARIOS:

	basic-staff:       Three teachers with a year of saved payroll
	vacation-season:   Scheduled, used, paid and cancelled leave plus a carry-over
	young-specialist:  A first-year assistant with a short salary history

HOW SCENARIOS WORK:
 1. Reset database (clear all data, keep rate tables)
 2. Register teachers
 3. Save monthly salary calculations, dated relative to today
 4. Optionally schedule and move leave records through the ledger

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "vacation-season"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
	Cached statistics are not flushed; they expire after the cache TTL.

SEE ALSO:
  - handlers.go: Handler and error mapping
  - reference/defaults.go: the rate tables the scenarios assume
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/vacation"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-staff",
		Name:        "Basic Staff",
		Description: "A professor, a senior teacher and an assistant with twelve months of saved payroll",
		Category:    "payroll",
	},
	{
		ID:          "vacation-season",
		Name:        "Vacation Season",
		Description: "Leave in every status, a vacation payout and days carried over from last year",
		Category:    "leave",
	},
	{
		ID:          "young-specialist",
		Name:        "Young Specialist",
		Description: "First-year assistant: young specialist bonus, extra leave days, three months of history",
		Category:    "payroll",
	},
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"basic-staff":      h.loadBasicStaffScenario,
		"vacation-season":  h.loadVacationSeasonScenario,
		"young-specialist": h.loadYoungSpecialistScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Unknown scenario", Code: "unknown_scenario", Details: req.ScenarioID})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all teachers, payroll history and leave records.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadBasicStaffScenario(ctx context.Context) error {
	today := h.Engine.Today()
	staff := []generic.TeacherProfile{
		{
			Name:                  "Irina Volkova",
			Position:              "professor",
			AcademicDegree:        "doctor",
			ExperienceYears:       22,
			QualificationCategory: "highest",
			HourlyRate:            decimal.RequireFromString("1200"),
			IsUnionMember:         true,
			HireDate:              today.AddYears(-22),
		},
		{
			Name:                  "Pavel Orlov",
			Position:              "senior teacher",
			AcademicDegree:        "candidate",
			ExperienceYears:       8,
			QualificationCategory: "first",
			HourlyRate:            decimal.RequireFromString("850"),
			HireDate:              today.AddYears(-8),
		},
		{
			Name:              "Daria Smirnova",
			Position:          "assistant",
			ExperienceYears:   1,
			HourlyRate:        decimal.RequireFromString("500"),
			IsYoungSpecialist: true,
			IsUnionMember:     true,
			HireDate:          today.AddYears(-1),
		},
	}
	for i := range staff {
		if _, err := h.Store.SaveTeacher(ctx, &staff[i]); err != nil {
			return fmt.Errorf("save teacher %s: %w", staff[i].Name, err)
		}
		if err := h.saveHistory(ctx, staff[i].ID, 12, decimal.NewFromInt(144)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadVacationSeasonScenario(ctx context.Context) error {
	today := h.Engine.Today()
	teacher := generic.TeacherProfile{
		Name:                  "Elena Kuznetsova",
		Position:              "teacher",
		AcademicDegree:        "candidate",
		ExperienceYears:       12,
		QualificationCategory: "first",
		HourlyRate:            decimal.RequireFromString("900"),
		IsUnionMember:         true,
		HireDate:              today.AddYears(-12),
	}
	if _, err := h.Store.SaveTeacher(ctx, &teacher); err != nil {
		return fmt.Errorf("save teacher: %w", err)
	}
	if err := h.saveHistory(ctx, teacher.ID, 12, decimal.NewFromInt(144)); err != nil {
		return err
	}

	// Taken two months ago and paid out.
	past, err := h.schedule(ctx, teacher.ID, today.AddDays(-60), today.AddDays(-47), generic.VacationMain, "summer break")
	if err != nil {
		return err
	}
	if _, err := h.Ledger.MarkVacationAsUsed(ctx, past); err != nil {
		return fmt.Errorf("mark vacation %d used: %w", past, err)
	}
	if _, err := h.Ledger.CalculateVacationPayment(ctx, past); err != nil {
		return fmt.Errorf("pay vacation %d: %w", past, err)
	}

	// Booked for next month.
	if _, err := h.schedule(ctx, teacher.ID, today.AddDays(30), today.AddDays(39), generic.VacationMain, ""); err != nil {
		return err
	}

	// Booked and then withdrawn.
	withdrawn, err := h.schedule(ctx, teacher.ID, today.AddDays(90), today.AddDays(94), generic.VacationStudy, "conference")
	if err != nil {
		return err
	}
	if _, err := h.Ledger.CancelVacation(ctx, withdrawn); err != nil {
		return fmt.Errorf("cancel vacation %d: %w", withdrawn, err)
	}

	if _, err := h.Ledger.TransferVacationDays(ctx, teacher.ID, today.Year()-1, today.Year(), 5); err != nil {
		return fmt.Errorf("transfer days: %w", err)
	}
	return nil
}

func (h *Handler) loadYoungSpecialistScenario(ctx context.Context) error {
	today := h.Engine.Today()
	teacher := generic.TeacherProfile{
		Name:              "Artem Lebedev",
		Position:          "assistant",
		ExperienceYears:   0,
		HourlyRate:        decimal.RequireFromString("450"),
		IsYoungSpecialist: true,
		IsUnionMember:     true,
		HireDate:          today.AddDays(-100),
	}
	if _, err := h.Store.SaveTeacher(ctx, &teacher); err != nil {
		return fmt.Errorf("save teacher: %w", err)
	}
	if err := h.saveHistory(ctx, teacher.ID, 3, decimal.NewFromInt(120)); err != nil {
		return err
	}
	_, err := h.schedule(ctx, teacher.ID, today.AddDays(14), today.AddDays(27), generic.VacationMain, "first vacation")
	return err
}

// saveHistory saves one calculation on the 25th of each of the previous
// months, oldest first.
func (h *Handler) saveHistory(ctx context.Context, teacherID int64, months int, hours decimal.Decimal) error {
	today := h.Engine.Today()
	first := generic.StartOfMonth(today.Year(), today.Month())
	for k := months; k >= 1; k-- {
		month := generic.DateOf(first.Time.AddDate(0, -k, 0))
		in := payroll.PeriodInputs{
			HoursWorked:     hours,
			CalculationDate: generic.StartOfMonth(month.Year(), month.Month()).AddDays(24),
		}
		if k%4 == 0 {
			in.SickLeaveHours = decimal.NewFromInt(8)
			in.HoursWorked = hours.Sub(in.SickLeaveHours)
		}
		calc, err := h.Engine.CalculateSalary(ctx, teacherID, in)
		if err != nil {
			return fmt.Errorf("calculate salary for teacher %d: %w", teacherID, err)
		}
		if _, err := h.Engine.SaveCalculation(ctx, calc); err != nil {
			return fmt.Errorf("save salary for teacher %d: %w", teacherID, err)
		}
	}
	return nil
}

func (h *Handler) schedule(ctx context.Context, teacherID int64, start, end generic.Date, vtype generic.VacationType, notes string) (int64, error) {
	id, err := h.Ledger.ScheduleVacation(ctx, vacation.ScheduleRequest{
		TeacherID:    teacherID,
		StartDate:    start,
		EndDate:      end,
		VacationType: vtype,
		Notes:        notes,
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s..%s for teacher %d: %w", start, end, teacherID, err)
	}
	return id, nil
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request bodies carry
  validator/v10 tags and are checked before any domain call. Responses
  reuse the domain records where they already carry JSON tags.

NAMING CONVENTION:
  - *Request:  request body types from clients
  - *Response: response wrappers
  - *DTO:      response types with no domain counterpart

TYPES:
  Teachers:   CreateTeacherRequest
  Payroll:    SalaryRequest, PayoutRequest
  Leave:      ScheduleVacationRequest, TransferRequest, StatusChangeResponse
  Scenarios:  ScenarioDTO, LoadScenarioRequest
  Errors:     ErrorResponse

SEE ALSO:
  - handlers.go: uses these types
  - generic/types.go: the records returned as-is
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// TEACHERS
// =============================================================================

// CreateTeacherRequest is the request to register a teacher.
type CreateTeacherRequest struct {
	Name                  string          `json:"name" validate:"required,max=200"`
	Position              string          `json:"position" validate:"max=100"`
	AcademicDegree        string          `json:"academic_degree" validate:"max=100"`
	ExperienceYears       int             `json:"experience_years" validate:"gte=0,lte=80"`
	QualificationCategory string          `json:"qualification_category" validate:"max=100"`
	HourlyRate            decimal.Decimal `json:"hourly_rate"`
	IsYoungSpecialist     bool            `json:"is_young_specialist"`
	IsUnionMember         bool            `json:"is_union_member"`
	HireDate              string          `json:"hire_date"`
	BirthDate             string          `json:"birth_date"`
}

func (req CreateTeacherRequest) toProfile() (generic.TeacherProfile, error) {
	tp := generic.TeacherProfile{
		Name:                  req.Name,
		Position:              req.Position,
		AcademicDegree:        req.AcademicDegree,
		ExperienceYears:       req.ExperienceYears,
		QualificationCategory: req.QualificationCategory,
		HourlyRate:            req.HourlyRate,
		IsYoungSpecialist:     req.IsYoungSpecialist,
		IsUnionMember:         req.IsUnionMember,
	}
	if req.HireDate != "" {
		d, err := generic.ParseDate(req.HireDate)
		if err != nil {
			return tp, &generic.InputError{Field: "hire_date", Value: req.HireDate, Reason: "expected YYYY-MM-DD or DD.MM.YYYY"}
		}
		tp.HireDate = d
	}
	if req.BirthDate != "" {
		d, err := generic.ParseDate(req.BirthDate)
		if err != nil {
			return tp, &generic.InputError{Field: "birth_date", Value: req.BirthDate, Reason: "expected YYYY-MM-DD or DD.MM.YYYY"}
		}
		tp.BirthDate = &d
	}
	return tp, tp.Validate()
}

// =============================================================================
// PAYROLL
// =============================================================================

// SalaryRequest holds one period's inputs. Omitted amounts are zero; an
// omitted tax rate uses the configured default.
type SalaryRequest struct {
	HoursWorked     decimal.Decimal  `json:"hours_worked"`
	SickLeaveHours  decimal.Decimal  `json:"sick_leave_hours"`
	AbsenceHours    decimal.Decimal  `json:"absence_hours"`
	Bonus           decimal.Decimal  `json:"bonus"`
	TaxRatePercent  *decimal.Decimal `json:"tax_rate_percent"`
	VacationPay     decimal.Decimal  `json:"vacation_pay"`
	CalculationDate string           `json:"calculation_date"`
}

func (req SalaryRequest) toInputs() (payroll.PeriodInputs, error) {
	in := payroll.PeriodInputs{
		HoursWorked:    req.HoursWorked,
		SickLeaveHours: req.SickLeaveHours,
		AbsenceHours:   req.AbsenceHours,
		Bonus:          req.Bonus,
		TaxRatePercent: req.TaxRatePercent,
		VacationPay:    req.VacationPay,
	}
	if req.CalculationDate != "" {
		d, err := generic.ParseDate(req.CalculationDate)
		if err != nil {
			return in, err
		}
		in.CalculationDate = d
	}
	return in, nil
}

// PayoutRequest prices a vacation or sick-leave period.
type PayoutRequest struct {
	StartDate     string `json:"start_date" validate:"required"`
	EndDate       string `json:"end_date" validate:"required"`
	IsWorkRelated bool   `json:"is_work_related"`
}

// =============================================================================
// LEAVE
// =============================================================================

// ScheduleVacationRequest books a leave period. VacationType defaults to main.
type ScheduleVacationRequest struct {
	StartDate    string `json:"start_date" validate:"required"`
	EndDate      string `json:"end_date" validate:"required"`
	VacationType string `json:"vacation_type"`
	Notes        string `json:"notes" validate:"max=1000"`
}

// TransferRequest carries unused days into a later year.
type TransferRequest struct {
	FromYear int `json:"from_year" validate:"required,gte=1900,lte=9999"`
	ToYear   int `json:"to_year" validate:"required,gte=1900,lte=9999"`
	Days     int `json:"days"`
}

// CreatedResponse returns the id of a new row.
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// StatusChangeResponse reports an accepted cancel or mark-used.
type StatusChangeResponse struct {
	VacationID int64                  `json:"vacation_id"`
	Status     generic.VacationStatus `json:"status"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"` // "payroll" or "leave"
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

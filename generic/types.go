/*
Package generic provides the shared vocabulary of the payroll engine.

PURPOSE:
  Records, dates, money helpers, errors and repository interfaces used by
  every other package. Nothing here performs I/O or knows the rate tables.

KEY CONCEPTS IN THIS FILE (types.go):
  - TeacherProfile: the employee record payroll is computed from
  - SalaryCalculation: one immutable payroll run for one teacher
  - VacationRecord / VacationTransfer: leave ledger rows
  - RoundMoney: the single rounding rule for currency amounts

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. Validation at the boundary: records are checked once when built
  3. Append-only history: saved calculations are never edited

SEE ALSO:
  - time.go: Date and Clock
  - store.go: repository interfaces
  - errors.go: error kinds
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// RoundMoney rounds half away from zero to 2 decimal places (ROUND_HALF_UP).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns d * pct / 100.
func Percent(d, pct decimal.Decimal) decimal.Decimal {
	return d.Mul(pct).Div(decimal.NewFromInt(100))
}

var validate = validator.New()

// =============================================================================
// TEACHER PROFILE
// =============================================================================

type TeacherProfile struct {
	ID                    int64           `json:"id" db:"id"`
	Name                  string          `json:"name" db:"full_name" validate:"required,max=200"`
	Position              string          `json:"position" db:"position" validate:"max=100"`
	AcademicDegree        string          `json:"academic_degree" db:"academic_degree" validate:"max=100"`
	ExperienceYears       int             `json:"experience_years" db:"experience_years" validate:"gte=0,lte=80"`
	QualificationCategory string          `json:"qualification_category" db:"qualification_category" validate:"max=100"`
	HourlyRate            decimal.Decimal `json:"hourly_rate" db:"hourly_rate"`
	IsYoungSpecialist     bool            `json:"is_young_specialist" db:"is_young_specialist"`
	IsUnionMember         bool            `json:"is_union_member" db:"is_union_member"`
	HireDate              Date            `json:"hire_date" db:"hire_date"`
	BirthDate             *Date           `json:"birth_date,omitempty" db:"birth_date"`
}

// Validate rejects profiles that would make payroll undefined.
func (t TeacherProfile) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InputError{Field: strings.ToLower(fe.Field()), Value: fe.Value(), Reason: "failed " + fe.Tag()}
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if t.HourlyRate.IsNegative() {
		return &InputError{Field: "hourly_rate", Value: t.HourlyRate, Reason: "must not be negative"}
	}
	return nil
}

// =============================================================================
// SALARY CALCULATION
// =============================================================================

// SalaryCalculation is one payroll run. Inputs, a snapshot of the teacher's
// name and rate, and every derived component are stored together so the
// record stays meaningful after the profile or rate tables change.
type SalaryCalculation struct {
	ID              int64  `json:"id" db:"id"`
	TeacherID       int64  `json:"teacher_id" db:"teacher_id"`
	TeacherName     string `json:"teacher_name" db:"teacher_name"`
	CalculationDate Date   `json:"calculation_date" db:"calculation_date"`

	// Inputs
	HourlyRate     decimal.Decimal `json:"hourly_rate" db:"hourly_rate"`
	HoursWorked    decimal.Decimal `json:"hours_worked" db:"hours_worked"`
	SickLeaveHours decimal.Decimal `json:"sick_leave_hours" db:"sick_leave_hours"`
	AbsenceHours   decimal.Decimal `json:"absence_hours" db:"absence_hours"`
	Bonus          decimal.Decimal `json:"bonus" db:"bonus"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent" db:"tax_rate_percent"`
	VacationPay    decimal.Decimal `json:"vacation_pay" db:"vacation_pay"`

	// Derived
	BaseSalary              decimal.Decimal `json:"base_salary" db:"base_salary"`
	PositionBonus           decimal.Decimal `json:"position_bonus" db:"position_bonus"`
	DegreeBonus             decimal.Decimal `json:"degree_bonus" db:"degree_bonus"`
	ExperienceBonus         decimal.Decimal `json:"experience_bonus" db:"experience_bonus"`
	CategoryBonus           decimal.Decimal `json:"category_bonus" db:"category_bonus"`
	YoungSpecialistBonus    decimal.Decimal `json:"young_specialist_bonus" db:"young_specialist_bonus"`
	SickLeavePay            decimal.Decimal `json:"sick_leave_pay" db:"sick_leave_pay"`
	GrossSalary             decimal.Decimal `json:"gross_salary" db:"gross_salary"`
	TaxAmount               decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	UnionContribution       decimal.Decimal `json:"union_contribution" db:"union_contribution"`
	NetSalary               decimal.Decimal `json:"net_salary" db:"net_salary"`
	VacationDaysEntitlement int             `json:"vacation_days_entitlement" db:"vacation_days_entitlement"`
}

// ComponentSum is the sum gross salary is made of. VacationPay is carried
// alongside and is not part of it.
func (c SalaryCalculation) ComponentSum() decimal.Decimal {
	return decimal.Sum(c.BaseSalary,
		c.PositionBonus,
		c.DegreeBonus,
		c.ExperienceBonus,
		c.CategoryBonus,
		c.YoungSpecialistBonus,
		c.SickLeavePay,
		c.Bonus,
	)
}

// =============================================================================
// VACATION LEDGER RECORDS
// =============================================================================

type VacationType string

const (
	VacationMain   VacationType = "main"
	VacationStudy  VacationType = "study"
	VacationUnpaid VacationType = "unpaid"
)

// ParseVacationType maps "" to main and rejects unknown values.
func ParseVacationType(s string) (VacationType, error) {
	switch VacationType(strings.ToLower(strings.TrimSpace(s))) {
	case "", VacationMain:
		return VacationMain, nil
	case VacationStudy:
		return VacationStudy, nil
	case VacationUnpaid:
		return VacationUnpaid, nil
	}
	return "", &InputError{Field: "vacation_type", Value: s, Reason: "expected main, study or unpaid"}
}

type VacationStatus string

const (
	StatusScheduled VacationStatus = "scheduled"
	StatusUsed      VacationStatus = "used"
	StatusPaid      VacationStatus = "paid"
	StatusCancelled VacationStatus = "cancelled"
)

// CountsAgainstBalance is true for every status except cancelled.
func (s VacationStatus) CountsAgainstBalance() bool {
	return s == StatusScheduled || s == StatusUsed || s == StatusPaid
}

type VacationRecord struct {
	ID            int64           `json:"id" db:"id"`
	TeacherID     int64           `json:"teacher_id" db:"teacher_id"`
	StartDate     Date            `json:"start_date" db:"start_date"`
	EndDate       Date            `json:"end_date" db:"end_date"`
	DaysCount     int             `json:"days_count" db:"days_count"`
	VacationType  VacationType    `json:"vacation_type" db:"vacation_type"`
	Status        VacationStatus  `json:"status" db:"status"`
	PaymentAmount decimal.Decimal `json:"payment_amount" db:"payment_amount"`
	PaymentDate   *Date           `json:"payment_date,omitempty" db:"payment_date"`
	Notes         string          `json:"notes" db:"notes"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

func (v VacationRecord) Period() Period {
	return Period{Start: v.StartDate, End: v.EndDate}
}

type VacationTransfer struct {
	ID           int64  `json:"id" db:"id"`
	TeacherID    int64  `json:"teacher_id" db:"teacher_id"`
	FromYear     int    `json:"from_year" db:"from_year"`
	ToYear       int    `json:"to_year" db:"to_year"`
	DaysCount    int    `json:"days_count" db:"days_count"`
	TransferDate Date   `json:"transfer_date" db:"transfer_date"`
	Notes        string `json:"notes" db:"notes"`
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditAction string

const (
	AuditVacationScheduled AuditAction = "vacation_scheduled"
	AuditVacationCancelled AuditAction = "vacation_cancelled"
	AuditVacationUsed      AuditAction = "vacation_used"
	AuditVacationPaid      AuditAction = "vacation_paid"
	AuditDaysTransferred   AuditAction = "days_transferred"
)

// AuditEntry records what changed in the ledger and when.
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    AuditAction    `json:"action"`
	TeacherID int64          `json:"teacher_id"`
	RecordID  int64          `json:"record_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func NewAuditEntry(at time.Time, action AuditAction, teacherID, recordID int64, payload map[string]any) AuditEntry {
	return AuditEntry{
		ID:        uuid.New(),
		Timestamp: at.UTC(),
		Action:    action,
		TeacherID: teacherID,
		RecordID:  recordID,
		Payload:   payload,
	}
}

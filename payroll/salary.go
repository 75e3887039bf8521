package payroll

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/reference"
)

var (
	// StandardTaxRate is the income tax percent on vacation and sick-leave
	// payouts, and on salary when neither the caller nor the engine sets one.
	StandardTaxRate = decimal.NewFromInt(13)

	unionRatePercent       = decimal.NewFromInt(1)
	sickHoursPayFactor     = decimal.RequireFromString("0.8")
	youngSpecialistPercent = decimal.NewFromInt(10)
	one                    = decimal.NewFromInt(1)
)

const (
	youngSpecialistExtraDays = 3
	experienceExtraDaysAfter = 5
)

// PeriodInputs are the per-period figures payroll is computed from.
type PeriodInputs struct {
	HoursWorked    decimal.Decimal
	SickLeaveHours decimal.Decimal
	AbsenceHours   decimal.Decimal
	Bonus          decimal.Decimal
	// TaxRatePercent defaults to the engine's standard rate when nil.
	TaxRatePercent *decimal.Decimal
	// CalculationDate defaults to today when zero.
	CalculationDate generic.Date
	// VacationPay is carried into the record as given; it is priced by
	// CalculateVacationPay and does not enter gross salary.
	VacationPay decimal.Decimal
}

func (in PeriodInputs) validate() error {
	checks := []struct {
		field string
		value decimal.Decimal
	}{
		{"hours_worked", in.HoursWorked},
		{"sick_leave_hours", in.SickLeaveHours},
		{"absence_hours", in.AbsenceHours},
		{"bonus", in.Bonus},
		{"vacation_pay", in.VacationPay},
	}
	for _, c := range checks {
		if c.value.IsNegative() {
			return &generic.InputError{Field: c.field, Value: c.value, Reason: "must not be negative"}
		}
	}
	if in.TaxRatePercent != nil && in.TaxRatePercent.IsNegative() {
		return &generic.InputError{Field: "tax_rate_percent", Value: *in.TaxRatePercent, Reason: "must not be negative"}
	}
	return nil
}

// Compute turns a teacher profile and one period's inputs into a salary
// breakdown. It performs no I/O.
//
// Components are summed exactly. Tax and union dues are rounded from the
// exact gross, then gross and net are rounded once for the record. The
// stored components are rounded separately, so they may sum to a cent or
// two away from gross.
func Compute(t generic.TeacherProfile, in PeriodInputs, tables *reference.RateTables) (*generic.SalaryCalculation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	taxRate := StandardTaxRate
	if in.TaxRatePercent != nil {
		taxRate = *in.TaxRatePercent
	}

	base := in.HoursWorked.Mul(t.HourlyRate)
	position := base.Mul(tables.PositionCoefficient(t.Position).Sub(one))
	degree := generic.Percent(base, tables.DegreeBonusPercent(t.AcademicDegree))
	experience := generic.Percent(base, tables.ExperienceBonusPercent(t.ExperienceYears))
	category := generic.Percent(base, tables.QualificationBonusPercent(t.QualificationCategory))
	young := decimal.Zero
	if t.IsYoungSpecialist {
		young = generic.Percent(base, youngSpecialistPercent)
	}
	sick := in.SickLeaveHours.Mul(t.HourlyRate).Mul(sickHoursPayFactor)
	gross := decimal.Sum(base, position, degree, experience, category, young, sick, in.Bonus)

	tax, union, net := deductions(gross, taxRate, t.IsUnionMember)

	return &generic.SalaryCalculation{
		TeacherID:       t.ID,
		TeacherName:     t.Name,
		CalculationDate: in.CalculationDate,
		HourlyRate:      t.HourlyRate,
		HoursWorked:     in.HoursWorked,
		SickLeaveHours:  in.SickLeaveHours,
		AbsenceHours:    in.AbsenceHours,
		Bonus:           in.Bonus,
		TaxRatePercent:  taxRate,
		VacationPay:     in.VacationPay,

		BaseSalary:           generic.RoundMoney(base),
		PositionBonus:        generic.RoundMoney(position),
		DegreeBonus:          generic.RoundMoney(degree),
		ExperienceBonus:      generic.RoundMoney(experience),
		CategoryBonus:        generic.RoundMoney(category),
		YoungSpecialistBonus: generic.RoundMoney(young),
		SickLeavePay:         generic.RoundMoney(sick),

		GrossSalary:       generic.RoundMoney(gross),
		TaxAmount:         tax,
		UnionContribution: union,
		NetSalary:         net,

		VacationDaysEntitlement: VacationEntitlement(t, tables),
	}, nil
}

// deductions returns tax and union dues rounded from gross, and net rounded
// once after both are taken off.
func deductions(gross, taxRatePercent decimal.Decimal, unionMember bool) (tax, union, net decimal.Decimal) {
	tax = generic.RoundMoney(generic.Percent(gross, taxRatePercent))
	union = decimal.Zero
	if unionMember {
		union = generic.RoundMoney(generic.Percent(gross, unionRatePercent))
	}
	return tax, union, generic.RoundMoney(gross.Sub(tax).Sub(union))
}

// VacationEntitlement is the teacher's annual paid-leave days: the position's
// base days, plus extra days for a degree, plus extra days after five years
// of experience, plus three for young specialists.
func VacationEntitlement(t generic.TeacherProfile, tables *reference.RateTables) int {
	a := tables.Allotment(t.Position)
	days := a.BaseDays
	if t.AcademicDegree != "" {
		days += a.ExtraDaysForDegree
	}
	if t.ExperienceYears >= experienceExtraDaysAfter {
		days += a.ExtraDaysForExperience
	}
	if t.IsYoungSpecialist {
		days += youngSpecialistExtraDays
	}
	return days
}

// SickLeavePercentage is the share of average earnings paid for sick leave.
func SickLeavePercentage(t generic.TeacherProfile, isWorkRelated bool) int {
	switch {
	case isWorkRelated:
		return 100
	case t.IsYoungSpecialist:
		return 85
	case t.ExperienceYears < 5:
		return 80
	case t.ExperienceYears < 8:
		return 85
	case t.ExperienceYears < 15:
		return 90
	default:
		return 100
	}
}

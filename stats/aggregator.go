/*
Package stats is the Statistics Aggregator.

PURPOSE:
  Read-only reporting over saved salary history and leave records. Nothing
  here writes; every figure is derived from the stores on each call (or
  from the Cached decorator in cache.go).

KEY OPERATIONS:
  TeacherYear    one teacher's year, broken down by month
  VacationYear   leave taken across all teachers, by start month
  MonthlyPayroll per-teacher sums for one month

EMPTY DATA:
  A year without data is not an error. TeacherYear always returns twelve
  months, zeroed where nothing was saved.

SEE ALSO:
  - cache.go: redis-backed decorator
  - payroll/engine.go: GetTeacherStatistics delegates here
*/
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// CalculationReader is the salary history the teacher statistics need.
type CalculationReader interface {
	ListSalaryCalculations(ctx context.Context, teacherID int64, from, to generic.Date) ([]generic.SalaryCalculation, error)
	ListCalculationsInRange(ctx context.Context, from, to generic.Date) ([]generic.SalaryCalculation, error)
}

// Repository is everything the Aggregator reads.
type Repository interface {
	CalculationReader
	ListVacationsInRange(ctx context.Context, from, to generic.Date, filter generic.VacationFilter) ([]generic.VacationRecord, error)
}

// =============================================================================
// TEACHER YEAR
// =============================================================================

type MonthStatistics struct {
	Month        int             `json:"month"`
	MonthName    string          `json:"month_name"`
	Calculations int             `json:"calculations"`
	GrossSalary  decimal.Decimal `json:"gross_salary"`
	NetSalary    decimal.Decimal `json:"net_salary"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	VacationPay  decimal.Decimal `json:"vacation_pay"`
	SickLeavePay decimal.Decimal `json:"sick_leave_pay"`
	HoursWorked  decimal.Decimal `json:"hours_worked"`
}

func (m *MonthStatistics) add(c generic.SalaryCalculation) {
	m.Calculations++
	m.GrossSalary = m.GrossSalary.Add(c.GrossSalary)
	m.NetSalary = m.NetSalary.Add(c.NetSalary)
	m.TaxAmount = m.TaxAmount.Add(c.TaxAmount)
	m.VacationPay = m.VacationPay.Add(c.VacationPay)
	m.SickLeavePay = m.SickLeavePay.Add(c.SickLeavePay)
	m.HoursWorked = m.HoursWorked.Add(c.HoursWorked)
}

// YearlyStatistics is one teacher's year. Averages are taken over the
// months that have at least one calculation.
type YearlyStatistics struct {
	TeacherID         int64             `json:"teacher_id"`
	TeacherName       string            `json:"teacher_name"`
	Year              int               `json:"year"`
	MonthsWithData    int               `json:"months_with_data"`
	TotalGross        decimal.Decimal   `json:"total_gross"`
	TotalNet          decimal.Decimal   `json:"total_net"`
	TotalTax          decimal.Decimal   `json:"total_tax"`
	TotalVacationPay  decimal.Decimal   `json:"total_vacation_pay"`
	TotalSickLeavePay decimal.Decimal   `json:"total_sick_leave_pay"`
	TotalHours        decimal.Decimal   `json:"total_hours"`
	AvgMonthlyGross   decimal.Decimal   `json:"avg_monthly_gross"`
	AvgMonthlyNet     decimal.Decimal   `json:"avg_monthly_net"`
	Months            []MonthStatistics `json:"months"`
}

func emptyMonths() []MonthStatistics {
	months := make([]MonthStatistics, 12)
	for i := range months {
		months[i] = MonthStatistics{
			Month:        i + 1,
			MonthName:    time.Month(i + 1).String(),
			GrossSalary:  decimal.Zero,
			NetSalary:    decimal.Zero,
			TaxAmount:    decimal.Zero,
			VacationPay:  decimal.Zero,
			SickLeavePay: decimal.Zero,
			HoursWorked:  decimal.Zero,
		}
	}
	return months
}

// TeacherStatistics computes YearlyStatistics from salary history.
type TeacherStatistics struct {
	repo CalculationReader
}

func NewTeacherStatistics(repo CalculationReader) *TeacherStatistics {
	return &TeacherStatistics{repo: repo}
}

func (s *TeacherStatistics) TeacherYear(ctx context.Context, teacher generic.TeacherProfile, year int) (*YearlyStatistics, error) {
	yp := generic.YearPeriod(year)
	calcs, err := s.repo.ListSalaryCalculations(ctx, teacher.ID, yp.Start, yp.End)
	if err != nil {
		return nil, fmt.Errorf("salary history for teacher %d in %d: %w", teacher.ID, year, err)
	}
	return summarizeYear(teacher, year, calcs), nil
}

func summarizeYear(teacher generic.TeacherProfile, year int, calcs []generic.SalaryCalculation) *YearlyStatistics {
	ys := &YearlyStatistics{
		TeacherID:         teacher.ID,
		TeacherName:       teacher.Name,
		Year:              year,
		TotalGross:        decimal.Zero,
		TotalNet:          decimal.Zero,
		TotalTax:          decimal.Zero,
		TotalVacationPay:  decimal.Zero,
		TotalSickLeavePay: decimal.Zero,
		TotalHours:        decimal.Zero,
		AvgMonthlyGross:   decimal.Zero,
		AvgMonthlyNet:     decimal.Zero,
		Months:            emptyMonths(),
	}

	for _, c := range calcs {
		if c.CalculationDate.Year() != year {
			continue
		}
		ys.Months[c.CalculationDate.Month()-1].add(c)
	}

	for _, m := range ys.Months {
		if m.Calculations == 0 {
			continue
		}
		ys.MonthsWithData++
		ys.TotalGross = ys.TotalGross.Add(m.GrossSalary)
		ys.TotalNet = ys.TotalNet.Add(m.NetSalary)
		ys.TotalTax = ys.TotalTax.Add(m.TaxAmount)
		ys.TotalVacationPay = ys.TotalVacationPay.Add(m.VacationPay)
		ys.TotalSickLeavePay = ys.TotalSickLeavePay.Add(m.SickLeavePay)
		ys.TotalHours = ys.TotalHours.Add(m.HoursWorked)
	}

	if ys.MonthsWithData > 0 {
		n := decimal.NewFromInt(int64(ys.MonthsWithData))
		ys.AvgMonthlyGross = generic.RoundMoney(ys.TotalGross.Div(n))
		ys.AvgMonthlyNet = generic.RoundMoney(ys.TotalNet.Div(n))
	}
	return ys
}

// =============================================================================
// AGGREGATOR - cross-teacher reports
// =============================================================================

type Aggregator struct {
	*TeacherStatistics
	repo Repository
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{TeacherStatistics: NewTeacherStatistics(repo), repo: repo}
}

type VacationMonth struct {
	Month         int             `json:"month"`
	MonthName     string          `json:"month_name"`
	Vacations     int             `json:"vacations"`
	Days          int             `json:"days"`
	TotalPayments decimal.Decimal `json:"total_payments"`
}

// VacationStatistics covers every non-cancelled leave record starting in
// the year.
type VacationStatistics struct {
	Year               int             `json:"year"`
	TotalVacations     int             `json:"total_vacations"`
	TotalDays          int             `json:"total_days"`
	TotalPayments      decimal.Decimal `json:"total_payments"`
	AvgDaysPerVacation decimal.Decimal `json:"avg_days_per_vacation"`
	AvgPayment         decimal.Decimal `json:"avg_payment"`
	Months             []VacationMonth `json:"months"`
}

func (a *Aggregator) VacationYear(ctx context.Context, year int) (*VacationStatistics, error) {
	yp := generic.YearPeriod(year)
	records, err := a.repo.ListVacationsInRange(ctx, yp.Start, yp.End, generic.VacationFilter{})
	if err != nil {
		return nil, fmt.Errorf("vacations in %d: %w", year, err)
	}

	vs := &VacationStatistics{
		Year:               year,
		TotalPayments:      decimal.Zero,
		AvgDaysPerVacation: decimal.Zero,
		AvgPayment:         decimal.Zero,
		Months:             make([]VacationMonth, 12),
	}
	for i := range vs.Months {
		vs.Months[i] = VacationMonth{Month: i + 1, MonthName: time.Month(i + 1).String(), TotalPayments: decimal.Zero}
	}

	for _, v := range records {
		if v.Status == generic.StatusCancelled || v.StartDate.Year() != year {
			continue
		}
		vs.TotalVacations++
		vs.TotalDays += v.DaysCount
		vs.TotalPayments = vs.TotalPayments.Add(v.PaymentAmount)

		m := &vs.Months[v.StartDate.Month()-1]
		m.Vacations++
		m.Days += v.DaysCount
		m.TotalPayments = m.TotalPayments.Add(v.PaymentAmount)
	}

	if vs.TotalVacations > 0 {
		n := decimal.NewFromInt(int64(vs.TotalVacations))
		vs.AvgDaysPerVacation = decimal.NewFromInt(int64(vs.TotalDays)).Div(n).Round(1)
		vs.AvgPayment = generic.RoundMoney(vs.TotalPayments.Div(n))
	}
	return vs, nil
}

type TeacherPayroll struct {
	TeacherID    int64           `json:"teacher_id"`
	TeacherName  string          `json:"teacher_name"`
	Calculations int             `json:"calculations"`
	HoursWorked  decimal.Decimal `json:"hours_worked"`
	GrossSalary  decimal.Decimal `json:"gross_salary"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	UnionDues    decimal.Decimal `json:"union_contribution"`
	NetSalary    decimal.Decimal `json:"net_salary"`
}

func (p *TeacherPayroll) add(c generic.SalaryCalculation) {
	p.Calculations++
	p.HoursWorked = p.HoursWorked.Add(c.HoursWorked)
	p.GrossSalary = p.GrossSalary.Add(c.GrossSalary)
	p.TaxAmount = p.TaxAmount.Add(c.TaxAmount)
	p.UnionDues = p.UnionDues.Add(c.UnionContribution)
	p.NetSalary = p.NetSalary.Add(c.NetSalary)
}

func newTeacherPayroll(id int64, name string) TeacherPayroll {
	return TeacherPayroll{
		TeacherID:   id,
		TeacherName: name,
		HoursWorked: decimal.Zero,
		GrossSalary: decimal.Zero,
		TaxAmount:   decimal.Zero,
		UnionDues:   decimal.Zero,
		NetSalary:   decimal.Zero,
	}
}

// PayrollReport is the data of a monthly payroll sheet. Teachers are
// ordered by name.
type PayrollReport struct {
	Year     int              `json:"year"`
	Month    int              `json:"month"`
	Teachers []TeacherPayroll `json:"teachers"`
	Totals   TeacherPayroll   `json:"totals"`
}

func (a *Aggregator) MonthlyPayroll(ctx context.Context, year, month int) (*PayrollReport, error) {
	if month < 1 || month > 12 {
		return nil, &generic.InputError{Field: "month", Value: month, Reason: "must be between 1 and 12"}
	}
	from := generic.StartOfMonth(year, time.Month(month))
	to := generic.EndOfMonth(year, time.Month(month))

	calcs, err := a.repo.ListCalculationsInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("payroll for %d-%02d: %w", year, month, err)
	}

	byTeacher := make(map[int64]*TeacherPayroll)
	for _, c := range calcs {
		p, ok := byTeacher[c.TeacherID]
		if !ok {
			tp := newTeacherPayroll(c.TeacherID, c.TeacherName)
			p = &tp
			byTeacher[c.TeacherID] = p
		}
		p.add(c)
	}

	report := &PayrollReport{
		Year:     year,
		Month:    month,
		Teachers: make([]TeacherPayroll, 0, len(byTeacher)),
		Totals:   newTeacherPayroll(0, "total"),
	}
	for _, p := range byTeacher {
		report.Teachers = append(report.Teachers, *p)
	}
	sort.Slice(report.Teachers, func(i, j int) bool {
		if report.Teachers[i].TeacherName != report.Teachers[j].TeacherName {
			return report.Teachers[i].TeacherName < report.Teachers[j].TeacherName
		}
		return report.Teachers[i].TeacherID < report.Teachers[j].TeacherID
	})
	for _, c := range calcs {
		report.Totals.add(c)
	}
	return report, nil
}

package payroll

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/metrics"
)

// Average daily earnings windows. The fallback applies when the window
// holds no weekdays at all.
const (
	vacationLookbackDays     = 365
	vacationFallbackWorkdays = 250
	sickLookbackDays         = 180
	sickFallbackWorkdays     = 126
)

// Earnings is the average-daily-earnings basis of a payout.
type Earnings struct {
	Window             generic.Period  `json:"window"`
	Calculations       int             `json:"calculations"`
	TotalGross         decimal.Decimal `json:"total_gross"`
	WorkingDays        int             `json:"working_days"`
	AverageDailySalary decimal.Decimal `json:"avg_daily_salary"`
}

type VacationPayout struct {
	TeacherID         int64           `json:"teacher_id"`
	TeacherName       string          `json:"teacher_name"`
	StartDate         generic.Date    `json:"start_date"`
	EndDate           generic.Date    `json:"end_date"`
	VacationDays      int             `json:"vacation_days"`
	Entitlement       int             `json:"entitlement"`
	OverEntitlement   bool            `json:"over_entitlement"`
	Earnings          Earnings        `json:"earnings"`
	GrossVacationPay  decimal.Decimal `json:"gross_vacation_pay"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	UnionContribution decimal.Decimal `json:"union_contribution"`
	NetVacationPay    decimal.Decimal `json:"net_vacation_pay"`
}

type SickLeavePayout struct {
	TeacherID         int64           `json:"teacher_id"`
	TeacherName       string          `json:"teacher_name"`
	StartDate         generic.Date    `json:"start_date"`
	EndDate           generic.Date    `json:"end_date"`
	SickDays          int             `json:"sick_days"`
	IsWorkRelated     bool            `json:"is_work_related"`
	PaymentPercentage int             `json:"payment_percentage"`
	Earnings          Earnings        `json:"earnings"`
	GrossSickPay      decimal.Decimal `json:"gross_sick_pay"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	UnionContribution decimal.Decimal `json:"union_contribution"`
	NetSickPay        decimal.Decimal `json:"net_sick_pay"`
}

// =============================================================================
// VACATION PAY
// =============================================================================

// CalculateVacationPay prices a leave period from the average daily gross
// over [start-365, start]. Requesting more days than the entitlement is
// allowed; it is logged and flagged on the payout.
func (e *Engine) CalculateVacationPay(ctx context.Context, teacherID int64, start, end generic.Date) (*VacationPayout, error) {
	payout, err := e.calculateVacationPay(ctx, teacherID, start, end)
	e.metrics.ObserveCalculation("vacation_pay", metrics.Outcome(err, isRejection))
	return payout, err
}

func (e *Engine) calculateVacationPay(ctx context.Context, teacherID int64, start, end generic.Date) (*VacationPayout, error) {
	teacher, err := e.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return nil, err
	}

	days := period.Days()
	entitlement := VacationEntitlement(*teacher, e.tables)
	if days > entitlement {
		e.logger.Warn("vacation longer than entitlement",
			zap.Int64("teacher_id", teacherID),
			zap.Int("requested_days", days),
			zap.Int("entitlement", entitlement))
	}

	earnings, err := e.averageDailyEarnings(ctx, teacherID, start, vacationLookbackDays, vacationFallbackWorkdays)
	if err != nil {
		return nil, err
	}

	gross := generic.RoundMoney(earnings.AverageDailySalary.Mul(decimal.NewFromInt(int64(days))))
	tax, union, net := deductions(gross, StandardTaxRate, teacher.IsUnionMember)

	e.logger.Info("vacation pay calculated",
		zap.Int64("teacher_id", teacherID),
		zap.Int("days", days),
		zap.String("gross", gross.StringFixed(2)))

	return &VacationPayout{
		TeacherID:         teacher.ID,
		TeacherName:       teacher.Name,
		StartDate:         start,
		EndDate:           end,
		VacationDays:      days,
		Entitlement:       entitlement,
		OverEntitlement:   days > entitlement,
		Earnings:          *earnings,
		GrossVacationPay:  gross,
		TaxAmount:         tax,
		UnionContribution: union,
		NetVacationPay:    net,
	}, nil
}

// =============================================================================
// SICK LEAVE
// =============================================================================

// CalculateSickLeave prices a sick-leave period from the average daily gross
// over [start-180, start], scaled by SickLeavePercentage.
func (e *Engine) CalculateSickLeave(ctx context.Context, teacherID int64, start, end generic.Date, isWorkRelated bool) (*SickLeavePayout, error) {
	payout, err := e.calculateSickLeave(ctx, teacherID, start, end, isWorkRelated)
	e.metrics.ObserveCalculation("sick_leave", metrics.Outcome(err, isRejection))
	return payout, err
}

func (e *Engine) calculateSickLeave(ctx context.Context, teacherID int64, start, end generic.Date, isWorkRelated bool) (*SickLeavePayout, error) {
	teacher, err := e.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return nil, err
	}

	earnings, err := e.averageDailyEarnings(ctx, teacherID, start, sickLookbackDays, sickFallbackWorkdays)
	if err != nil {
		return nil, err
	}

	days := period.Days()
	percentage := SickLeavePercentage(*teacher, isWorkRelated)
	gross := generic.RoundMoney(generic.Percent(
		earnings.AverageDailySalary.Mul(decimal.NewFromInt(int64(days))),
		decimal.NewFromInt(int64(percentage)),
	))
	tax, union, net := deductions(gross, StandardTaxRate, teacher.IsUnionMember)

	e.logger.Info("sick leave calculated",
		zap.Int64("teacher_id", teacherID),
		zap.Int("days", days),
		zap.Int("percentage", percentage),
		zap.String("gross", gross.StringFixed(2)))

	return &SickLeavePayout{
		TeacherID:         teacher.ID,
		TeacherName:       teacher.Name,
		StartDate:         start,
		EndDate:           end,
		SickDays:          days,
		IsWorkRelated:     isWorkRelated,
		PaymentPercentage: percentage,
		Earnings:          *earnings,
		GrossSickPay:      gross,
		TaxAmount:         tax,
		UnionContribution: union,
		NetSickPay:        net,
	}, nil
}

// =============================================================================
// AVERAGE DAILY EARNINGS
// =============================================================================

func (e *Engine) averageDailyEarnings(ctx context.Context, teacherID int64, anchor generic.Date, lookback, fallbackWorkdays int) (*Earnings, error) {
	window := generic.Lookback(anchor, lookback)

	calcs, err := e.repo.ListSalaryCalculations(ctx, teacherID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("salary history for teacher %d: %w", teacherID, err)
	}
	if len(calcs) == 0 {
		return nil, &generic.NoHistoricalDataError{TeacherID: teacherID, Window: window}
	}

	total := decimal.Zero
	for _, c := range calcs {
		total = total.Add(c.GrossSalary)
	}

	workdays := generic.CountWorkdays(window.Start, window.End)
	if workdays == 0 {
		workdays = fallbackWorkdays
	}

	return &Earnings{
		Window:             window,
		Calculations:       len(calcs),
		TotalGross:         total,
		WorkingDays:        workdays,
		AverageDailySalary: generic.RoundMoney(total.Div(decimal.NewFromInt(int64(workdays)))),
	}, nil
}

/*
Package payroll is the Compensation Engine.

PURPOSE:
  Turns a teacher profile plus a reporting period's inputs into a
  gross/net salary breakdown, prices vacation and sick-leave payouts from
  salary history, and computes paid-leave entitlement.

KEY OPERATIONS:
  CalculateSalary       salary breakdown for one period (not persisted)
  SaveCalculation       append a calculation to history
  CalculateVacationPay  payout from the trailing 365-day average
  CalculateSickLeave    payout from the trailing 180-day average
  GetTeacherStatistics  yearly breakdown from saved history

DEPENDENCIES:
  Rate tables are injected as an immutable *reference.RateTables. History
  and profiles come through the Repository interface. "Today" comes from an
  injected generic.Clock.

SEE ALSO:
  - salary.go: the pure Compute function and entitlement rules
  - payout.go: average-daily-earnings payouts
  - vacation/ledger.go: the main caller of CalculateVacationPay
*/
package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/reference"
	"github.com/warp/payroll-engine/stats"
)

// Repository is the persistence the engine reads and appends to.
type Repository interface {
	generic.TeacherStore
	generic.CalculationStore
}

// StatisticsProvider computes yearly statistics for one teacher.
type StatisticsProvider interface {
	TeacherYear(ctx context.Context, teacher generic.TeacherProfile, year int) (*stats.YearlyStatistics, error)
}

// CalculationObserver is told about every saved calculation, e.g. to drop
// cached statistics.
type CalculationObserver interface {
	CalculationSaved(ctx context.Context, teacherID int64, on generic.Date)
}

type Engine struct {
	tables   *reference.RateTables
	repo     Repository
	stats    StatisticsProvider
	observer CalculationObserver
	logger   *zap.Logger
	metrics  *metrics.Metrics
	clock    generic.Clock
	taxRate  decimal.Decimal
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = logger.OrNop(l) } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithClock(c generic.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithStatistics replaces the uncached statistics computation. If p also
// implements CalculationObserver it is notified of saved calculations.
func WithStatistics(p StatisticsProvider) Option {
	return func(e *Engine) {
		e.stats = p
		if o, ok := p.(CalculationObserver); ok {
			e.observer = o
		}
	}
}

// WithDefaultTaxRate sets the tax percent used when salary inputs carry
// none. Payouts always use StandardTaxRate.
func WithDefaultTaxRate(pct decimal.Decimal) Option {
	return func(e *Engine) { e.taxRate = pct }
}

func NewEngine(tables *reference.RateTables, repo Repository, opts ...Option) *Engine {
	e := &Engine{
		tables:  tables,
		repo:    repo,
		logger:  zap.NewNop(),
		clock:   generic.Today,
		taxRate: StandardTaxRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.stats == nil {
		e.stats = stats.NewTeacherStatistics(repo)
	}
	return e
}

// Tables returns the rate tables the engine was built with.
func (e *Engine) Tables() *reference.RateTables { return e.tables }

// Today returns the engine clock's date.
func (e *Engine) Today() generic.Date { return e.clock() }

// =============================================================================
// SALARY
// =============================================================================

// CalculateSalary computes, but does not save, one period's salary.
func (e *Engine) CalculateSalary(ctx context.Context, teacherID int64, in PeriodInputs) (*generic.SalaryCalculation, error) {
	calc, err := e.calculateSalary(ctx, teacherID, in)
	e.metrics.ObserveCalculation("salary", metrics.Outcome(err, isRejection))
	return calc, err
}

func (e *Engine) calculateSalary(ctx context.Context, teacherID int64, in PeriodInputs) (*generic.SalaryCalculation, error) {
	teacher, err := e.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if in.CalculationDate.IsZero() {
		in.CalculationDate = e.clock()
	}
	if in.TaxRatePercent == nil {
		rate := e.taxRate
		in.TaxRatePercent = &rate
	}

	calc, err := Compute(*teacher, in, e.tables)
	if err != nil {
		return nil, err
	}

	e.logger.Info("salary calculated",
		zap.Int64("teacher_id", teacherID),
		zap.String("calculation_date", calc.CalculationDate.String()),
		zap.String("gross", calc.GrossSalary.StringFixed(2)),
		zap.String("net", calc.NetSalary.StringFixed(2)))
	return calc, nil
}

// SaveCalculation appends a calculation to the teacher's history.
func (e *Engine) SaveCalculation(ctx context.Context, calc *generic.SalaryCalculation) (int64, error) {
	if calc == nil {
		return 0, &generic.InputError{Field: "calculation", Value: nil, Reason: "required"}
	}
	if calc.CalculationDate.IsZero() {
		return 0, &generic.InputError{Field: "calculation_date", Value: "", Reason: "required"}
	}
	if _, err := e.teacher(ctx, calc.TeacherID); err != nil {
		return 0, err
	}

	id, err := e.repo.InsertSalaryCalculation(ctx, calc)
	if err != nil {
		return 0, fmt.Errorf("save calculation: %w", err)
	}
	calc.ID = id

	if e.observer != nil {
		e.observer.CalculationSaved(ctx, calc.TeacherID, calc.CalculationDate)
	}
	e.logger.Info("salary calculation saved",
		zap.Int64("teacher_id", calc.TeacherID),
		zap.Int64("calculation_id", id))
	return id, nil
}

// =============================================================================
// ENTITLEMENT & STATISTICS
// =============================================================================

// VacationEntitlementFor returns the teacher's annual paid-leave days.
func (e *Engine) VacationEntitlementFor(ctx context.Context, teacherID int64) (int, error) {
	teacher, err := e.teacher(ctx, teacherID)
	if err != nil {
		return 0, err
	}
	return VacationEntitlement(*teacher, e.tables), nil
}

// GetTeacherStatistics returns the teacher's yearly breakdown. A year
// without saved calculations yields zeroed statistics.
func (e *Engine) GetTeacherStatistics(ctx context.Context, teacherID int64, year int) (*stats.YearlyStatistics, error) {
	teacher, err := e.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return e.stats.TeacherYear(ctx, *teacher, year)
}

func (e *Engine) teacher(ctx context.Context, id int64) (*generic.TeacherProfile, error) {
	t, err := e.repo.FindTeacherByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find teacher %d: %w", id, err)
	}
	if t == nil {
		return nil, &generic.NotFoundError{Kind: "teacher", ID: id}
	}
	return t, nil
}

func isRejection(err error) bool {
	return generic.IsClientError(err) || generic.IsNotFound(err) || generic.IsConflict(err) ||
		errors.Is(err, generic.ErrNoHistoricalData)
}

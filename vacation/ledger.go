/*
Package vacation is the Leave Ledger.

PURPOSE:
  Schedules, cancels, completes and pays leave records, carries unused days
  between years, and answers "how many days are left". Every mutation is
  checked against the current ledger state and written in the same
  transaction as the check.

STATE MACHINE:
  scheduled -> used -> paid
  scheduled -> paid
  scheduled -> cancelled

  Only scheduled records can be cancelled or marked used. Payment is
  allowed from scheduled or used. cancelled and paid are terminal.

REFUSALS VS FAILURES:
  CancelVacation and MarkVacationAsUsed report a refused transition as
  (false, nil); an error from them always means the store failed.
  Every other operation returns typed errors from generic/errors.go.

BALANCE:
  remaining(year) = max(0, entitlement - used(year) + in(year) - out(year))

  used(year) sums days of every non-cancelled record whose start or end
  date falls in the year. Entitlement comes from the Compensation Engine.

CONCURRENCY:
  Check-then-write operations hold a per-teacher mutex and run inside
  TxStore.WithTx. Calls into the Compensation Engine happen before the
  transaction opens; inside it only the transactional store is used.

SEE ALSO:
  - payroll/payout.go: prices a record in CalculateVacationPayment
  - generic/store.go: VacationStore, TransferStore, AuditLog
*/
package vacation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
)

// Compensation is the part of the Compensation Engine the ledger needs.
type Compensation interface {
	VacationEntitlementFor(ctx context.Context, teacherID int64) (int, error)
	CalculateVacationPay(ctx context.Context, teacherID int64, start, end generic.Date) (*payroll.VacationPayout, error)
}

// ChangeObserver is told about every record the ledger changes, e.g. to
// drop cached statistics.
type ChangeObserver interface {
	VacationChanged(ctx context.Context, v generic.VacationRecord)
}

type Ledger struct {
	store    generic.TxStore
	comp     Compensation
	observer ChangeObserver
	logger   *zap.Logger
	metrics  *metrics.Metrics
	clock    generic.Clock
	now      func() time.Time
	locks    teacherLocks
}

type Option func(*Ledger)

func WithLogger(l *zap.Logger) Option { return func(lg *Ledger) { lg.logger = logger.OrNop(l) } }

func WithMetrics(m *metrics.Metrics) Option { return func(lg *Ledger) { lg.metrics = m } }

func WithClock(c generic.Clock) Option { return func(lg *Ledger) { lg.clock = c } }

func WithObserver(o ChangeObserver) Option { return func(lg *Ledger) { lg.observer = o } }

func NewLedger(store generic.TxStore, comp Compensation, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		comp:   comp,
		logger: zap.NewNop(),
		clock:  generic.Today,
		now:    func() time.Time { return time.Now().UTC() },
		locks:  teacherLocks{m: make(map[int64]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// PER-TEACHER LOCKS
// =============================================================================

type teacherLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

// lock blocks until the teacher's mutex is held and returns its unlock.
func (t *teacherLocks) lock(teacherID int64) func() {
	t.mu.Lock()
	mu, ok := t.m[teacherID]
	if !ok {
		mu = &sync.Mutex{}
		t.m[teacherID] = mu
	}
	t.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// =============================================================================
// SCHEDULE
// =============================================================================

type ScheduleRequest struct {
	TeacherID    int64
	StartDate    generic.Date
	EndDate      generic.Date
	VacationType generic.VacationType
	Notes        string
}

// ScheduleVacation inserts a scheduled record. It fails with InvalidRange,
// then OverlappingPeriod, then InsufficientBalance for the start year.
func (l *Ledger) ScheduleVacation(ctx context.Context, req ScheduleRequest) (int64, error) {
	id, err := l.scheduleVacation(ctx, req)
	l.metrics.ObserveLedgerOperation("schedule", metrics.Outcome(err, isRejection))
	return id, err
}

func (l *Ledger) scheduleVacation(ctx context.Context, req ScheduleRequest) (int64, error) {
	period, err := generic.NewPeriod(req.StartDate, req.EndDate)
	if err != nil {
		return 0, err
	}
	vtype, err := generic.ParseVacationType(string(req.VacationType))
	if err != nil {
		return 0, err
	}

	unlock := l.locks.lock(req.TeacherID)
	defer unlock()

	entitlement, err := l.comp.VacationEntitlementFor(ctx, req.TeacherID)
	if err != nil {
		return 0, err
	}

	days := period.Days()
	year := period.Start.Year()
	now := l.now()
	record := generic.VacationRecord{
		TeacherID:    req.TeacherID,
		StartDate:    period.Start,
		EndDate:      period.End,
		DaysCount:    days,
		VacationType: vtype,
		Status:       generic.StatusScheduled,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		existing, err := tx.ListVacationRecords(ctx, req.TeacherID, generic.VacationFilter{})
		if err != nil {
			return fmt.Errorf("list vacations for teacher %d: %w", req.TeacherID, err)
		}
		for _, v := range existing {
			if v.Period().Overlaps(period) {
				return &generic.OverlapError{TeacherID: req.TeacherID, Requested: period, ExistingID: v.ID, Existing: v.Period()}
			}
		}

		bal, err := balance(ctx, tx, req.TeacherID, year, entitlement)
		if err != nil {
			return err
		}
		if days > bal.Remaining {
			return &generic.InsufficientBalanceError{TeacherID: req.TeacherID, Year: year, Requested: days, Available: bal.Remaining}
		}

		id, err := tx.InsertVacationRecord(ctx, &record)
		if err != nil {
			return fmt.Errorf("insert vacation: %w", err)
		}
		record.ID = id

		return tx.AppendAudit(ctx, generic.NewAuditEntry(now, generic.AuditVacationScheduled, req.TeacherID, id, map[string]any{
			"start_date":    period.Start.String(),
			"end_date":      period.End.String(),
			"days":          days,
			"vacation_type": string(vtype),
		}))
	})
	if err != nil {
		return 0, err
	}

	l.changed(ctx, record)
	l.logger.Info("vacation scheduled",
		zap.Int64("teacher_id", req.TeacherID),
		zap.Int64("vacation_id", record.ID),
		zap.String("start_date", period.Start.String()),
		zap.String("end_date", period.End.String()),
		zap.Int("days", days))
	return record.ID, nil
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

// CancelVacation moves a scheduled record to cancelled. It returns false,
// without changing anything, for unknown ids and every other status.
func (l *Ledger) CancelVacation(ctx context.Context, vacationID int64) (bool, error) {
	ok, err := l.transition(ctx, vacationID, generic.StatusCancelled, generic.AuditVacationCancelled)
	l.metrics.ObserveLedgerOperation("cancel", refusalOutcome(ok, err))
	return ok, err
}

// MarkVacationAsUsed moves a scheduled record to used. It returns false,
// without changing anything, for unknown ids and every other status.
func (l *Ledger) MarkVacationAsUsed(ctx context.Context, vacationID int64) (bool, error) {
	ok, err := l.transition(ctx, vacationID, generic.StatusUsed, generic.AuditVacationUsed)
	l.metrics.ObserveLedgerOperation("mark_used", refusalOutcome(ok, err))
	return ok, err
}

func (l *Ledger) transition(ctx context.Context, vacationID int64, to generic.VacationStatus, action generic.AuditAction) (bool, error) {
	current, err := l.store.GetVacationRecord(ctx, vacationID)
	if err != nil {
		return false, fmt.Errorf("get vacation %d: %w", vacationID, err)
	}
	if current == nil {
		l.logger.Warn("vacation not found", zap.Int64("vacation_id", vacationID), zap.String("to", string(to)))
		return false, nil
	}

	unlock := l.locks.lock(current.TeacherID)
	defer unlock()

	var (
		refused bool
		record  generic.VacationRecord
	)
	now := l.now()
	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		v, err := tx.GetVacationRecord(ctx, vacationID)
		if err != nil {
			return fmt.Errorf("get vacation %d: %w", vacationID, err)
		}
		if v == nil || v.Status != generic.StatusScheduled {
			refused = true
			if v != nil {
				record = *v
			}
			return nil
		}
		if err := tx.UpdateVacationRecordStatus(ctx, vacationID, to, now); err != nil {
			return fmt.Errorf("update vacation %d: %w", vacationID, err)
		}
		record = *v
		record.Status = to
		record.UpdatedAt = now
		return tx.AppendAudit(ctx, generic.NewAuditEntry(now, action, v.TeacherID, vacationID, map[string]any{
			"from": string(generic.StatusScheduled),
			"to":   string(to),
		}))
	})
	if err != nil {
		return false, err
	}
	if refused {
		l.logger.Warn("vacation status change refused",
			zap.Int64("vacation_id", vacationID),
			zap.String("status", string(record.Status)),
			zap.String("to", string(to)))
		return false, nil
	}

	l.changed(ctx, record)
	l.logger.Info("vacation status changed",
		zap.Int64("teacher_id", record.TeacherID),
		zap.Int64("vacation_id", vacationID),
		zap.String("status", string(to)))
	return true, nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// VacationPayment is a priced and recorded leave payout.
type VacationPayment struct {
	VacationID  int64        `json:"vacation_id"`
	PaymentDate generic.Date `json:"payment_date"`
	DaysCount   int          `json:"days_count"`
	*payroll.VacationPayout
}

// CalculateVacationPayment prices a scheduled or used record, stores the
// gross amount and moves the record to paid with today's payment date.
func (l *Ledger) CalculateVacationPayment(ctx context.Context, vacationID int64) (*VacationPayment, error) {
	p, err := l.calculateVacationPayment(ctx, vacationID)
	l.metrics.ObserveLedgerOperation("pay", metrics.Outcome(err, isRejection))
	return p, err
}

func (l *Ledger) calculateVacationPayment(ctx context.Context, vacationID int64) (*VacationPayment, error) {
	v, err := l.GetVacation(ctx, vacationID)
	if err != nil {
		return nil, err
	}
	if !payable(v.Status) {
		return nil, &generic.StatusTransitionError{VacationID: vacationID, Status: v.Status, Action: "calculate payment"}
	}

	unlock := l.locks.lock(v.TeacherID)
	defer unlock()

	payout, err := l.comp.CalculateVacationPay(ctx, v.TeacherID, v.StartDate, v.EndDate)
	if err != nil {
		return nil, err
	}

	today := l.clock()
	now := l.now()
	var record generic.VacationRecord
	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		cur, err := tx.GetVacationRecord(ctx, vacationID)
		if err != nil {
			return fmt.Errorf("get vacation %d: %w", vacationID, err)
		}
		if cur == nil {
			return &generic.NotFoundError{Kind: "vacation", ID: vacationID}
		}
		if !payable(cur.Status) {
			return &generic.StatusTransitionError{VacationID: vacationID, Status: cur.Status, Action: "calculate payment"}
		}
		if err := tx.UpdateVacationPayment(ctx, vacationID, payout.GrossVacationPay, today, now); err != nil {
			return fmt.Errorf("record payment for vacation %d: %w", vacationID, err)
		}
		record = *cur
		record.Status = generic.StatusPaid
		record.PaymentAmount = payout.GrossVacationPay
		record.PaymentDate = &today
		record.UpdatedAt = now
		return tx.AppendAudit(ctx, generic.NewAuditEntry(now, generic.AuditVacationPaid, cur.TeacherID, vacationID, map[string]any{
			"from":         string(cur.Status),
			"gross":        payout.GrossVacationPay.StringFixed(2),
			"net":          payout.NetVacationPay.StringFixed(2),
			"payment_date": today.String(),
		}))
	})
	if err != nil {
		return nil, err
	}

	l.changed(ctx, record)
	l.logger.Info("vacation paid",
		zap.Int64("teacher_id", record.TeacherID),
		zap.Int64("vacation_id", vacationID),
		zap.String("gross", payout.GrossVacationPay.StringFixed(2)))

	return &VacationPayment{
		VacationID:     vacationID,
		PaymentDate:    today,
		DaysCount:      record.DaysCount,
		VacationPayout: payout,
	}, nil
}

func payable(s generic.VacationStatus) bool {
	return s == generic.StatusScheduled || s == generic.StatusUsed
}

// =============================================================================
// TRANSFERS
// =============================================================================

// TransferVacationDays carries unused days from fromYear into toYear.
func (l *Ledger) TransferVacationDays(ctx context.Context, teacherID int64, fromYear, toYear, days int) (int64, error) {
	id, err := l.transferVacationDays(ctx, teacherID, fromYear, toYear, days)
	l.metrics.ObserveLedgerOperation("transfer", metrics.Outcome(err, isRejection))
	return id, err
}

func (l *Ledger) transferVacationDays(ctx context.Context, teacherID int64, fromYear, toYear, days int) (int64, error) {
	if fromYear >= toYear {
		return 0, &generic.RangeError{What: "transfer years", From: fmt.Sprint(fromYear), To: fmt.Sprint(toYear), Reason: "source year must precede target year"}
	}
	if days <= 0 {
		return 0, &generic.InputError{Field: "days", Value: days, Reason: "must be positive"}
	}

	unlock := l.locks.lock(teacherID)
	defer unlock()

	entitlement, err := l.comp.VacationEntitlementFor(ctx, teacherID)
	if err != nil {
		return 0, err
	}

	now := l.now()
	transfer := generic.VacationTransfer{
		TeacherID:    teacherID,
		FromYear:     fromYear,
		ToYear:       toYear,
		DaysCount:    days,
		TransferDate: l.clock(),
		Notes:        fmt.Sprintf("transfer %d days from %d to %d", days, fromYear, toYear),
	}

	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		bal, err := balance(ctx, tx, teacherID, fromYear, entitlement)
		if err != nil {
			return err
		}
		if days > bal.Remaining {
			return &generic.InsufficientBalanceError{TeacherID: teacherID, Year: fromYear, Requested: days, Available: bal.Remaining}
		}

		id, err := tx.InsertVacationTransfer(ctx, &transfer)
		if err != nil {
			return fmt.Errorf("insert transfer: %w", err)
		}
		transfer.ID = id

		return tx.AppendAudit(ctx, generic.NewAuditEntry(now, generic.AuditDaysTransferred, teacherID, id, map[string]any{
			"from_year": fromYear,
			"to_year":   toYear,
			"days":      days,
		}))
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("vacation days transferred",
		zap.Int64("teacher_id", teacherID),
		zap.Int64("transfer_id", transfer.ID),
		zap.Int("from_year", fromYear),
		zap.Int("to_year", toYear),
		zap.Int("days", days))
	return transfer.ID, nil
}

// =============================================================================
// BALANCE
// =============================================================================

// Balance itemizes a teacher's leave days for one year.
type Balance struct {
	TeacherID      int64 `json:"teacher_id"`
	Year           int   `json:"year"`
	Entitlement    int   `json:"entitlement"`
	Used           int   `json:"used"`
	TransferredIn  int   `json:"transferred_in"`
	TransferredOut int   `json:"transferred_out"`
	Remaining      int   `json:"remaining"`
}

// GetTeacherRemainingVacationDays returns the days still available in the
// year. It is never negative.
func (l *Ledger) GetTeacherRemainingVacationDays(ctx context.Context, teacherID int64, year int) (int, error) {
	b, err := l.Balance(ctx, teacherID, year)
	if err != nil {
		return 0, err
	}
	return b.Remaining, nil
}

func (l *Ledger) Balance(ctx context.Context, teacherID int64, year int) (*Balance, error) {
	entitlement, err := l.comp.VacationEntitlementFor(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return balance(ctx, l.store, teacherID, year, entitlement)
}

type balanceReader interface {
	ListVacationRecords(ctx context.Context, teacherID int64, filter generic.VacationFilter) ([]generic.VacationRecord, error)
	ListVacationTransfers(ctx context.Context, teacherID int64) ([]generic.VacationTransfer, error)
}

func balance(ctx context.Context, s balanceReader, teacherID int64, year, entitlement int) (*Balance, error) {
	records, err := s.ListVacationRecords(ctx, teacherID, generic.VacationFilter{Year: &year})
	if err != nil {
		return nil, fmt.Errorf("list vacations for teacher %d: %w", teacherID, err)
	}
	transfers, err := s.ListVacationTransfers(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list transfers for teacher %d: %w", teacherID, err)
	}

	b := &Balance{TeacherID: teacherID, Year: year, Entitlement: entitlement}
	for _, v := range records {
		if v.Status.CountsAgainstBalance() {
			b.Used += v.DaysCount
		}
	}
	for _, t := range transfers {
		if t.ToYear == year {
			b.TransferredIn += t.DaysCount
		}
		if t.FromYear == year {
			b.TransferredOut += t.DaysCount
		}
	}
	b.Remaining = max(0, b.Entitlement-b.Used+b.TransferredIn-b.TransferredOut)
	return b, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) GetVacation(ctx context.Context, vacationID int64) (*generic.VacationRecord, error) {
	v, err := l.store.GetVacationRecord(ctx, vacationID)
	if err != nil {
		return nil, fmt.Errorf("get vacation %d: %w", vacationID, err)
	}
	if v == nil {
		return nil, &generic.NotFoundError{Kind: "vacation", ID: vacationID}
	}
	return v, nil
}

// ListTeacherVacations returns a teacher's records, optionally limited to
// those touching a year.
func (l *Ledger) ListTeacherVacations(ctx context.Context, teacherID int64, year *int, includeCancelled bool) ([]generic.VacationRecord, error) {
	return l.store.ListVacationRecords(ctx, teacherID, generic.VacationFilter{Year: year, IncludeCancelled: includeCancelled})
}

// farFuture bounds "still running or upcoming" queries.
var farFuture = generic.NewDate(9999, time.December, 31)

// ListCurrentVacations returns every teacher's non-cancelled records that
// are running today. includeFuture adds upcoming ones; pastDays extends the
// window back to records that ended within that many days.
func (l *Ledger) ListCurrentVacations(ctx context.Context, includeFuture bool, pastDays int) ([]generic.VacationRecord, error) {
	if pastDays < 0 {
		return nil, &generic.InputError{Field: "past_days", Value: pastDays, Reason: "must not be negative"}
	}
	today := l.clock()
	from := today.AddDays(-pastDays)
	to := today
	if includeFuture {
		to = farFuture
	}
	return l.store.ListVacationsInRange(ctx, from, to, generic.VacationFilter{})
}

func (l *Ledger) ListTransfers(ctx context.Context, teacherID int64) ([]generic.VacationTransfer, error) {
	return l.store.ListVacationTransfers(ctx, teacherID)
}

// AuditTrail returns a teacher's ledger audit entries, oldest first.
func (l *Ledger) AuditTrail(ctx context.Context, teacherID int64) ([]generic.AuditEntry, error) {
	return l.store.QueryAudit(ctx, generic.AuditFilter{TeacherID: &teacherID})
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Ledger) changed(ctx context.Context, v generic.VacationRecord) {
	if l.observer != nil {
		l.observer.VacationChanged(ctx, v)
	}
}

func isRejection(err error) bool {
	return generic.IsClientError(err) || generic.IsNotFound(err) || generic.IsConflict(err) ||
		errors.Is(err, generic.ErrNoHistoricalData)
}

func refusalOutcome(ok bool, err error) string {
	if err == nil && !ok {
		return metrics.OutcomeRejected
	}
	return metrics.Outcome(err, nil)
}

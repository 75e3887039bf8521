/*
store.go - Repository interfaces between the engine and the database

PURPOSE:
  Defines the narrow interfaces the Compensation Engine, Leave Ledger and
  Statistics Aggregator depend on. Different implementations can use
  SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  TeacherStore:     teacher profiles
  CalculationStore: salary calculation history (append-only)
  VacationStore:    leave records and their status changes
  TransferStore:    carry-over of unused days between years
  AuditLog:         append-only record of ledger mutations
  TxStore:          all of the above plus WithTx for atomic check-then-write

NOT FOUND CONVENTION:
  Single-row getters return (nil, nil) when the row does not exist. The
  caller decides whether absence is an error (NotFoundError) or a
  refusal (CancelVacation returns false).

IMPLEMENTATIONS:
  - store/sqlstore: sqlite3 and postgres through sqlx
  - generic/store/memory.go: in-memory for testing

SEE ALSO:
  - vacation/ledger.go: uses WithTx around balance checks
  - payroll/engine.go: reads teachers and calculation history
*/
package generic

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPOSITORIES
// =============================================================================

type TeacherStore interface {
	// FindTeacherByID returns nil, nil when the teacher does not exist.
	FindTeacherByID(ctx context.Context, id int64) (*TeacherProfile, error)
	ListTeachers(ctx context.Context) ([]TeacherProfile, error)
	// SaveTeacher inserts when ID is zero, otherwise replaces the profile.
	SaveTeacher(ctx context.Context, t *TeacherProfile) (int64, error)
}

type CalculationStore interface {
	InsertSalaryCalculation(ctx context.Context, c *SalaryCalculation) (int64, error)
	// ListSalaryCalculations returns a teacher's calculations dated in
	// [from, to], ordered by calculation date.
	ListSalaryCalculations(ctx context.Context, teacherID int64, from, to Date) ([]SalaryCalculation, error)
	// ListCalculationsInRange is ListSalaryCalculations across all teachers.
	ListCalculationsInRange(ctx context.Context, from, to Date) ([]SalaryCalculation, error)
}

// VacationFilter narrows record listings. Cancelled records are excluded
// unless IncludeCancelled is set.
type VacationFilter struct {
	// Year keeps records whose start or end date falls in the year.
	Year             *int
	IncludeCancelled bool
}

func (f VacationFilter) Match(v VacationRecord) bool {
	if !f.IncludeCancelled && v.Status == StatusCancelled {
		return false
	}
	if f.Year != nil && !v.Period().TouchesYear(*f.Year) {
		return false
	}
	return true
}

type VacationStore interface {
	InsertVacationRecord(ctx context.Context, v *VacationRecord) (int64, error)
	// GetVacationRecord returns nil, nil when the record does not exist.
	GetVacationRecord(ctx context.Context, id int64) (*VacationRecord, error)
	// ListVacationRecords returns a teacher's records ordered by start date.
	ListVacationRecords(ctx context.Context, teacherID int64, filter VacationFilter) ([]VacationRecord, error)
	// ListVacationsInRange returns every teacher's records intersecting [from, to].
	ListVacationsInRange(ctx context.Context, from, to Date, filter VacationFilter) ([]VacationRecord, error)
	UpdateVacationRecordStatus(ctx context.Context, id int64, status VacationStatus, at time.Time) error
	// UpdateVacationPayment stores the payout and moves the record to paid.
	UpdateVacationPayment(ctx context.Context, id int64, amount decimal.Decimal, paidOn Date, at time.Time) error
}

type TransferStore interface {
	InsertVacationTransfer(ctx context.Context, t *VacationTransfer) (int64, error)
	ListVacationTransfers(ctx context.Context, teacherID int64) ([]VacationTransfer, error)
}

// =============================================================================
// AUDIT LOG - Separate from ledger rows, tracks what changed when
// =============================================================================

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	TeacherID *int64
	Actions   []AuditAction
	From      *time.Time
	To        *time.Time
}

func (f AuditFilter) Match(e AuditEntry) bool {
	if f.TeacherID != nil && e.TeacherID != *f.TeacherID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// STORE - Everything the services need
// =============================================================================

type Store interface {
	TeacherStore
	CalculationStore
	VacationStore
	TransferStore
	AuditLog
}

// TxStore wraps Store with transaction support.
// Use this when a balance check and the write it guards must be atomic.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

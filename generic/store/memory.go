// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TxStore. Every public method takes the mutex;
// the unexported tables type does the work and is also what WithTx hands
// to its callback, so writes inside a transaction do not re-lock.
type Memory struct {
	mu sync.RWMutex
	t  *tables
}

type tables struct {
	teachers     map[int64]generic.TeacherProfile
	calculations []generic.SalaryCalculation
	vacations    map[int64]generic.VacationRecord
	transfers    []generic.VacationTransfer
	audit        []generic.AuditEntry
	seq          sequences
}

type sequences struct {
	teacher, calculation, vacation, transfer int64
}

var _ generic.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

func newTables() *tables {
	return &tables{
		teachers:  make(map[int64]generic.TeacherProfile),
		vacations: make(map[int64]generic.VacationRecord),
	}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.t.clone()
	if err := fn(m.t); err != nil {
		m.t = snapshot
		return err
	}
	return nil
}

// Reset drops all data. Used by demo scenarios.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = newTables()
	return nil
}

func (t *tables) clone() *tables {
	c := &tables{
		teachers:     make(map[int64]generic.TeacherProfile, len(t.teachers)),
		calculations: append([]generic.SalaryCalculation{}, t.calculations...),
		vacations:    make(map[int64]generic.VacationRecord, len(t.vacations)),
		transfers:    append([]generic.VacationTransfer{}, t.transfers...),
		audit:        append([]generic.AuditEntry{}, t.audit...),
		seq:          t.seq,
	}
	for k, v := range t.teachers {
		c.teachers[k] = v
	}
	for k, v := range t.vacations {
		c.vacations[k] = v
	}
	return c
}

// =============================================================================
// LOCKING WRAPPERS
// =============================================================================

func (m *Memory) FindTeacherByID(ctx context.Context, id int64) (*generic.TeacherProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.FindTeacherByID(ctx, id)
}

func (m *Memory) ListTeachers(ctx context.Context) ([]generic.TeacherProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListTeachers(ctx)
}

func (m *Memory) SaveTeacher(ctx context.Context, tp *generic.TeacherProfile) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveTeacher(ctx, tp)
}

func (m *Memory) InsertSalaryCalculation(ctx context.Context, c *generic.SalaryCalculation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.InsertSalaryCalculation(ctx, c)
}

func (m *Memory) ListSalaryCalculations(ctx context.Context, teacherID int64, from, to generic.Date) ([]generic.SalaryCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListSalaryCalculations(ctx, teacherID, from, to)
}

func (m *Memory) ListCalculationsInRange(ctx context.Context, from, to generic.Date) ([]generic.SalaryCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListCalculationsInRange(ctx, from, to)
}

func (m *Memory) InsertVacationRecord(ctx context.Context, v *generic.VacationRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.InsertVacationRecord(ctx, v)
}

func (m *Memory) GetVacationRecord(ctx context.Context, id int64) (*generic.VacationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetVacationRecord(ctx, id)
}

func (m *Memory) ListVacationRecords(ctx context.Context, teacherID int64, f generic.VacationFilter) ([]generic.VacationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListVacationRecords(ctx, teacherID, f)
}

func (m *Memory) ListVacationsInRange(ctx context.Context, from, to generic.Date, f generic.VacationFilter) ([]generic.VacationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListVacationsInRange(ctx, from, to, f)
}

func (m *Memory) UpdateVacationRecordStatus(ctx context.Context, id int64, status generic.VacationStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.UpdateVacationRecordStatus(ctx, id, status, at)
}

func (m *Memory) UpdateVacationPayment(ctx context.Context, id int64, amount decimal.Decimal, paidOn generic.Date, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.UpdateVacationPayment(ctx, id, amount, paidOn, at)
}

func (m *Memory) InsertVacationTransfer(ctx context.Context, tr *generic.VacationTransfer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.InsertVacationTransfer(ctx, tr)
}

func (m *Memory) ListVacationTransfers(ctx context.Context, teacherID int64) ([]generic.VacationTransfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListVacationTransfers(ctx, teacherID)
}

func (m *Memory) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.AppendAudit(ctx, e)
}

func (m *Memory) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.QueryAudit(ctx, f)
}

// =============================================================================
// TABLES - Unlocked implementation
// =============================================================================

func (t *tables) FindTeacherByID(_ context.Context, id int64) (*generic.TeacherProfile, error) {
	tp, ok := t.teachers[id]
	if !ok {
		return nil, nil
	}
	return &tp, nil
}

func (t *tables) ListTeachers(_ context.Context) ([]generic.TeacherProfile, error) {
	result := make([]generic.TeacherProfile, 0, len(t.teachers))
	for _, tp := range t.teachers {
		result = append(result, tp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (t *tables) SaveTeacher(_ context.Context, tp *generic.TeacherProfile) (int64, error) {
	if tp.ID == 0 {
		t.seq.teacher++
		tp.ID = t.seq.teacher
	} else if tp.ID > t.seq.teacher {
		t.seq.teacher = tp.ID
	}
	t.teachers[tp.ID] = *tp
	return tp.ID, nil
}

func (t *tables) InsertSalaryCalculation(_ context.Context, c *generic.SalaryCalculation) (int64, error) {
	t.seq.calculation++
	c.ID = t.seq.calculation
	t.calculations = append(t.calculations, *c)
	return c.ID, nil
}

func (t *tables) ListSalaryCalculations(_ context.Context, teacherID int64, from, to generic.Date) ([]generic.SalaryCalculation, error) {
	window := generic.Period{Start: from, End: to}
	var result []generic.SalaryCalculation
	for _, c := range t.calculations {
		if c.TeacherID == teacherID && window.Contains(c.CalculationDate) {
			result = append(result, c)
		}
	}
	sortCalculations(result)
	return result, nil
}

func (t *tables) ListCalculationsInRange(_ context.Context, from, to generic.Date) ([]generic.SalaryCalculation, error) {
	window := generic.Period{Start: from, End: to}
	var result []generic.SalaryCalculation
	for _, c := range t.calculations {
		if window.Contains(c.CalculationDate) {
			result = append(result, c)
		}
	}
	sortCalculations(result)
	return result, nil
}

func sortCalculations(cs []generic.SalaryCalculation) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].CalculationDate.Equal(cs[j].CalculationDate) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].CalculationDate.Before(cs[j].CalculationDate)
	})
}

func (t *tables) InsertVacationRecord(_ context.Context, v *generic.VacationRecord) (int64, error) {
	t.seq.vacation++
	v.ID = t.seq.vacation
	t.vacations[v.ID] = *v
	return v.ID, nil
}

func (t *tables) GetVacationRecord(_ context.Context, id int64) (*generic.VacationRecord, error) {
	v, ok := t.vacations[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (t *tables) ListVacationRecords(_ context.Context, teacherID int64, f generic.VacationFilter) ([]generic.VacationRecord, error) {
	var result []generic.VacationRecord
	for _, v := range t.vacations {
		if v.TeacherID == teacherID && f.Match(v) {
			result = append(result, v)
		}
	}
	sortVacations(result)
	return result, nil
}

func (t *tables) ListVacationsInRange(_ context.Context, from, to generic.Date, f generic.VacationFilter) ([]generic.VacationRecord, error) {
	window := generic.Period{Start: from, End: to}
	var result []generic.VacationRecord
	for _, v := range t.vacations {
		if v.Period().Overlaps(window) && f.Match(v) {
			result = append(result, v)
		}
	}
	sortVacations(result)
	return result, nil
}

func sortVacations(vs []generic.VacationRecord) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].StartDate.Equal(vs[j].StartDate) {
			return vs[i].ID < vs[j].ID
		}
		return vs[i].StartDate.Before(vs[j].StartDate)
	})
}

func (t *tables) UpdateVacationRecordStatus(_ context.Context, id int64, status generic.VacationStatus, at time.Time) error {
	v, ok := t.vacations[id]
	if !ok {
		return &generic.NotFoundError{Kind: "vacation", ID: id}
	}
	v.Status = status
	v.UpdatedAt = at
	t.vacations[id] = v
	return nil
}

func (t *tables) UpdateVacationPayment(_ context.Context, id int64, amount decimal.Decimal, paidOn generic.Date, at time.Time) error {
	v, ok := t.vacations[id]
	if !ok {
		return &generic.NotFoundError{Kind: "vacation", ID: id}
	}
	v.Status = generic.StatusPaid
	v.PaymentAmount = amount
	v.PaymentDate = &paidOn
	v.UpdatedAt = at
	t.vacations[id] = v
	return nil
}

func (t *tables) InsertVacationTransfer(_ context.Context, tr *generic.VacationTransfer) (int64, error) {
	t.seq.transfer++
	tr.ID = t.seq.transfer
	t.transfers = append(t.transfers, *tr)
	return tr.ID, nil
}

func (t *tables) ListVacationTransfers(_ context.Context, teacherID int64) ([]generic.VacationTransfer, error) {
	var result []generic.VacationTransfer
	for _, tr := range t.transfers {
		if tr.TeacherID == teacherID {
			result = append(result, tr)
		}
	}
	return result, nil
}

func (t *tables) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	t.audit = append(t.audit, e)
	return nil
}

func (t *tables) QueryAudit(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var result []generic.AuditEntry
	for _, e := range t.audit {
		if f.Match(e) {
			result = append(result, e)
		}
	}
	return result, nil
}

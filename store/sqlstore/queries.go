package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/generic"
)

// queries implements generic.Store over a database or a transaction.
// Statements are written with "?" and rebound for the driver.
type queries struct {
	q      sqlx.ExtContext
	driver string
}

var _ generic.Store = (*queries)(nil)

func (q *queries) rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(q.driver), query)
}

// insert runs a named INSERT ... RETURNING id built from arg's db tags.
func (q *queries) insert(ctx context.Context, query string, arg any) (int64, error) {
	bound, args, err := sqlx.Named(query+" RETURNING id", arg)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := q.q.QueryRowxContext(ctx, q.rebind(bound), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// exec runs an UPDATE and reports a missing row as NotFoundError.
func (q *queries) exec(ctx context.Context, kind string, id int64, query string, args ...any) error {
	res, err := q.q.ExecContext(ctx, q.rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &generic.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// =============================================================================
// TEACHERS
// =============================================================================

const teacherColumns = `id, full_name, position, academic_degree, experience_years,
	qualification_category, hourly_rate, is_young_specialist, is_union_member,
	hire_date, birth_date`

func (q *queries) FindTeacherByID(ctx context.Context, id int64) (*generic.TeacherProfile, error) {
	var tp generic.TeacherProfile
	err := sqlx.GetContext(ctx, q.q, &tp, q.rebind("SELECT "+teacherColumns+" FROM teachers WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load teacher %d: %w", id, err)
	}
	return &tp, nil
}

func (q *queries) ListTeachers(ctx context.Context) ([]generic.TeacherProfile, error) {
	teachers := []generic.TeacherProfile{}
	if err := sqlx.SelectContext(ctx, q.q, &teachers, "SELECT "+teacherColumns+" FROM teachers ORDER BY full_name, id"); err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	return teachers, nil
}

const insertTeacher = `INSERT INTO teachers
	(full_name, position, academic_degree, experience_years, qualification_category,
	 hourly_rate, is_young_specialist, is_union_member, hire_date, birth_date)
	VALUES (:full_name, :position, :academic_degree, :experience_years, :qualification_category,
	 :hourly_rate, :is_young_specialist, :is_union_member, :hire_date, :birth_date)`

const insertTeacherWithID = `INSERT INTO teachers
	(id, full_name, position, academic_degree, experience_years, qualification_category,
	 hourly_rate, is_young_specialist, is_union_member, hire_date, birth_date)
	VALUES (:id, :full_name, :position, :academic_degree, :experience_years, :qualification_category,
	 :hourly_rate, :is_young_specialist, :is_union_member, :hire_date, :birth_date)`

const updateTeacher = `UPDATE teachers SET
	full_name = :full_name, position = :position, academic_degree = :academic_degree,
	experience_years = :experience_years, qualification_category = :qualification_category,
	hourly_rate = :hourly_rate, is_young_specialist = :is_young_specialist,
	is_union_member = :is_union_member, hire_date = :hire_date, birth_date = :birth_date
	WHERE id = :id`

// SaveTeacher inserts when ID is zero. A non-zero ID replaces the profile,
// or inserts it under that ID when no such row exists.
func (q *queries) SaveTeacher(ctx context.Context, tp *generic.TeacherProfile) (int64, error) {
	if tp.ID == 0 {
		id, err := q.insert(ctx, insertTeacher, tp)
		if err != nil {
			return 0, fmt.Errorf("failed to insert teacher: %w", err)
		}
		tp.ID = id
		return id, nil
	}

	bound, args, err := sqlx.Named(updateTeacher, tp)
	if err != nil {
		return 0, err
	}
	res, err := q.q.ExecContext(ctx, q.rebind(bound), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update teacher %d: %w", tp.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return tp.ID, err
	}

	if _, err := q.insert(ctx, insertTeacherWithID, tp); err != nil {
		return 0, fmt.Errorf("failed to insert teacher %d: %w", tp.ID, err)
	}
	if q.driver == config.DriverPostgres {
		_, err := q.q.ExecContext(ctx,
			"SELECT setval(pg_get_serial_sequence('teachers', 'id'), (SELECT MAX(id) FROM teachers))")
		if err != nil {
			return 0, fmt.Errorf("failed to advance teacher sequence: %w", err)
		}
	}
	return tp.ID, nil
}

// =============================================================================
// SALARY CALCULATIONS
// =============================================================================

const calculationColumns = `id, teacher_id, teacher_name, calculation_date,
	hourly_rate, hours_worked, sick_leave_hours, absence_hours, bonus, tax_rate_percent, vacation_pay,
	base_salary, position_bonus, degree_bonus, experience_bonus, category_bonus,
	young_specialist_bonus, sick_leave_pay, gross_salary, tax_amount, union_contribution,
	net_salary, vacation_days_entitlement`

const insertCalculation = `INSERT INTO salary_calculations
	(teacher_id, teacher_name, calculation_date,
	 hourly_rate, hours_worked, sick_leave_hours, absence_hours, bonus, tax_rate_percent, vacation_pay,
	 base_salary, position_bonus, degree_bonus, experience_bonus, category_bonus,
	 young_specialist_bonus, sick_leave_pay, gross_salary, tax_amount, union_contribution,
	 net_salary, vacation_days_entitlement)
	VALUES (:teacher_id, :teacher_name, :calculation_date,
	 :hourly_rate, :hours_worked, :sick_leave_hours, :absence_hours, :bonus, :tax_rate_percent, :vacation_pay,
	 :base_salary, :position_bonus, :degree_bonus, :experience_bonus, :category_bonus,
	 :young_specialist_bonus, :sick_leave_pay, :gross_salary, :tax_amount, :union_contribution,
	 :net_salary, :vacation_days_entitlement)`

func (q *queries) InsertSalaryCalculation(ctx context.Context, c *generic.SalaryCalculation) (int64, error) {
	id, err := q.insert(ctx, insertCalculation, c)
	if err != nil {
		return 0, fmt.Errorf("failed to insert salary calculation: %w", err)
	}
	c.ID = id
	return id, nil
}

func (q *queries) ListSalaryCalculations(ctx context.Context, teacherID int64, from, to generic.Date) ([]generic.SalaryCalculation, error) {
	query := "SELECT " + calculationColumns + ` FROM salary_calculations
		WHERE teacher_id = ? AND calculation_date BETWEEN ? AND ?
		ORDER BY calculation_date, id`
	return q.selectCalculations(ctx, query, teacherID, from, to)
}

func (q *queries) ListCalculationsInRange(ctx context.Context, from, to generic.Date) ([]generic.SalaryCalculation, error) {
	query := "SELECT " + calculationColumns + ` FROM salary_calculations
		WHERE calculation_date BETWEEN ? AND ?
		ORDER BY calculation_date, id`
	return q.selectCalculations(ctx, query, from, to)
}

func (q *queries) selectCalculations(ctx context.Context, query string, args ...any) ([]generic.SalaryCalculation, error) {
	var calcs []generic.SalaryCalculation
	if err := sqlx.SelectContext(ctx, q.q, &calcs, q.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query salary calculations: %w", err)
	}
	return calcs, nil
}

// =============================================================================
// LEAVE RECORDS
// =============================================================================

const vacationColumns = `id, teacher_id, start_date, end_date, days_count, vacation_type,
	status, payment_amount, payment_date, notes, created_at, updated_at`

const insertVacation = `INSERT INTO teacher_vacations
	(teacher_id, start_date, end_date, days_count, vacation_type, status,
	 payment_amount, payment_date, notes, created_at, updated_at)
	VALUES (:teacher_id, :start_date, :end_date, :days_count, :vacation_type, :status,
	 :payment_amount, :payment_date, :notes, :created_at, :updated_at)`

func (q *queries) InsertVacationRecord(ctx context.Context, v *generic.VacationRecord) (int64, error) {
	id, err := q.insert(ctx, insertVacation, v)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vacation: %w", err)
	}
	v.ID = id
	return id, nil
}

func (q *queries) GetVacationRecord(ctx context.Context, id int64) (*generic.VacationRecord, error) {
	var v generic.VacationRecord
	err := sqlx.GetContext(ctx, q.q, &v, q.rebind("SELECT "+vacationColumns+" FROM teacher_vacations WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vacation %d: %w", id, err)
	}
	return &v, nil
}

func (q *queries) ListVacationRecords(ctx context.Context, teacherID int64, f generic.VacationFilter) ([]generic.VacationRecord, error) {
	where, args := vacationFilter(f)
	query := "SELECT " + vacationColumns + " FROM teacher_vacations WHERE teacher_id = ?" + where +
		" ORDER BY start_date, id"
	return q.selectVacations(ctx, query, append([]any{teacherID}, args...)...)
}

func (q *queries) ListVacationsInRange(ctx context.Context, from, to generic.Date, f generic.VacationFilter) ([]generic.VacationRecord, error) {
	where, args := vacationFilter(f)
	query := "SELECT " + vacationColumns + " FROM teacher_vacations WHERE start_date <= ? AND end_date >= ?" + where +
		" ORDER BY start_date, id"
	return q.selectVacations(ctx, query, append([]any{to, from}, args...)...)
}

// vacationFilter renders generic.VacationFilter as extra AND clauses.
func vacationFilter(f generic.VacationFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if !f.IncludeCancelled {
		clauses = append(clauses, "status <> ?")
		args = append(args, generic.StatusCancelled)
	}
	if f.Year != nil {
		first, last := generic.StartOfYear(*f.Year), generic.EndOfYear(*f.Year)
		clauses = append(clauses, "(start_date BETWEEN ? AND ? OR end_date BETWEEN ? AND ?)")
		args = append(args, first, last, first, last)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func (q *queries) selectVacations(ctx context.Context, query string, args ...any) ([]generic.VacationRecord, error) {
	var vs []generic.VacationRecord
	if err := sqlx.SelectContext(ctx, q.q, &vs, q.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query vacations: %w", err)
	}
	return vs, nil
}

func (q *queries) UpdateVacationRecordStatus(ctx context.Context, id int64, status generic.VacationStatus, at time.Time) error {
	return q.exec(ctx, "vacation", id,
		"UPDATE teacher_vacations SET status = ?, updated_at = ? WHERE id = ?",
		status, at, id)
}

func (q *queries) UpdateVacationPayment(ctx context.Context, id int64, amount decimal.Decimal, paidOn generic.Date, at time.Time) error {
	return q.exec(ctx, "vacation", id,
		"UPDATE teacher_vacations SET status = ?, payment_amount = ?, payment_date = ?, updated_at = ? WHERE id = ?",
		generic.StatusPaid, amount, paidOn, at, id)
}

// =============================================================================
// TRANSFERS
// =============================================================================

const insertTransfer = `INSERT INTO vacation_days_transfer
	(teacher_id, from_year, to_year, days_count, transfer_date, notes)
	VALUES (:teacher_id, :from_year, :to_year, :days_count, :transfer_date, :notes)`

func (q *queries) InsertVacationTransfer(ctx context.Context, t *generic.VacationTransfer) (int64, error) {
	id, err := q.insert(ctx, insertTransfer, t)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vacation transfer: %w", err)
	}
	t.ID = id
	return id, nil
}

func (q *queries) ListVacationTransfers(ctx context.Context, teacherID int64) ([]generic.VacationTransfer, error) {
	var ts []generic.VacationTransfer
	err := sqlx.SelectContext(ctx, q.q, &ts, q.rebind(`
		SELECT id, teacher_id, from_year, to_year, days_count, transfer_date, notes
		FROM vacation_days_transfer WHERE teacher_id = ? ORDER BY id`), teacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vacation transfers: %w", err)
	}
	return ts, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type auditRow struct {
	ID        uuid.UUID      `db:"id"`
	CreatedAt time.Time      `db:"created_at"`
	Action    string         `db:"action"`
	TeacherID int64          `db:"teacher_id"`
	RecordID  int64          `db:"record_id"`
	Payload   sql.NullString `db:"payload"`
}

func (q *queries) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	var payload sql.NullString
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := q.q.ExecContext(ctx, q.rebind(`
		INSERT INTO audit_log (id, created_at, action, teacher_id, record_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)`),
		e.ID, e.Timestamp, e.Action, e.TeacherID, e.RecordID, payload)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (q *queries) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.TeacherID != nil {
		clauses = append(clauses, "teacher_id = ?")
		args = append(args, *f.TeacherID)
	}
	if len(f.Actions) > 0 {
		marks := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			marks[i] = "?"
			args = append(args, a)
		}
		clauses = append(clauses, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To.UTC())
	}

	query := "SELECT id, created_at, action, teacher_id, record_id, payload FROM audit_log"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq"

	var rows []auditRow
	if err := sqlx.SelectContext(ctx, q.q, &rows, q.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	entries := make([]generic.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := generic.AuditEntry{
			ID:        r.ID,
			Timestamp: r.CreatedAt.UTC(),
			Action:    generic.AuditAction(r.Action),
			TeacherID: r.TeacherID,
			RecordID:  r.RecordID,
		}
		if r.Payload.Valid && r.Payload.String != "" {
			if err := json.Unmarshal([]byte(r.Payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

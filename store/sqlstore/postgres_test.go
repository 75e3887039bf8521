package sqlstore_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/reference"
	"github.com/warp/payroll-engine/store/sqlstore"
)

func newPostgresMock(t *testing.T) (*sqlstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlstore.NewFromDB(sqlx.NewDb(db, "postgres")), mock
}

var vacationRowColumns = []string{"id", "teacher_id", "start_date", "end_date", "days_count", "vacation_type",
	"status", "payment_amount", "payment_date", "notes", "created_at", "updated_at"}

func TestPostgres_FindTeacherMissingIsNilNil(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}))

	got, err := s.FindTeacherByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertVacationReturnsID(t *testing.T) {
	s, mock := newPostgresMock(t)
	now := time.Date(2025, time.October, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO teacher_vacations").
		WithArgs(int64(1), "2025-07-01", "2025-07-14", 14, "main", "scheduled",
			sqlmock.AnyArg(), nil, "", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	v := generic.VacationRecord{
		TeacherID:    1,
		StartDate:    generic.NewDate(2025, time.July, 1),
		EndDate:      generic.NewDate(2025, time.July, 14),
		DaysCount:    14,
		VacationType: generic.VacationMain,
		Status:       generic.StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := s.InsertVacationRecord(context.Background(), &v)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(7), v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListVacationsRendersFilter(t *testing.T) {
	s, mock := newPostgresMock(t)
	created := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(vacationRowColumns).
		AddRow(3, 1, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC),
			14, "main", "paid", "1400.0000", time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), "", created, created)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE teacher_id = $1 AND status <> $2 AND (start_date BETWEEN $3 AND $4 OR end_date BETWEEN $5 AND $6) ORDER BY start_date, id")).
		WithArgs(int64(1), "cancelled", "2025-01-01", "2025-12-31", "2025-01-01", "2025-12-31").
		WillReturnRows(rows)

	year := 2025
	vs, err := s.ListVacationRecords(context.Background(), 1, generic.VacationFilter{Year: &year})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, generic.StatusPaid, vs[0].Status)
	assert.True(t, vs[0].PaymentAmount.Equal(d("1400")))
	require.NotNil(t, vs[0].PaymentDate)
	assert.Equal(t, "2025-07-01", vs[0].PaymentDate.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateMissingRowIsNotFound(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE teacher_vacations SET status = $1, updated_at = $2 WHERE id = $3")).
		WithArgs("used", sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateVacationRecordStatus(context.Background(), 3, generic.StatusUsed, time.Now())
	assert.True(t, generic.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A transaction whose callback writes and then fails
	s, mock := newPostgresMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	// WHEN: WithTx runs it
	err := s.WithTx(context.Background(), func(tx generic.Store) error {
		if err := tx.AppendAudit(context.Background(),
			generic.NewAuditEntry(time.Now(), generic.AuditVacationScheduled, 1, 2, map[string]any{"days": 3})); err != nil {
			return err
		}
		return boom
	})

	// THEN: The callback error is returned and the transaction rolled back
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WithTxCommits(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO vacation_days_transfer")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx generic.Store) error {
		_, err := tx.InsertVacationTransfer(context.Background(), &generic.VacationTransfer{
			TeacherID: 1, FromYear: 2024, ToYear: 2025, DaysCount: 2,
			TransferDate: generic.NewDate(2025, time.January, 10),
		})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ResetTruncates(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE audit_log, vacation_days_transfer, teacher_vacations, salary_calculations, teachers RESTART IDENTITY CASCADE")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Reset(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReferenceFailureNamesTable(t *testing.T) {
	// GIVEN: The first reference query fails
	s, mock := newPostgresMock(t)
	mock.ExpectQuery("FROM position_coefficients").
		WillReturnError(errors.New(`relation "position_coefficients" does not exist`))

	// WHEN: The rate tables are loaded
	_, err := reference.Load(context.Background(), s)

	// THEN: The error is a DataUnavailableError for that table
	var du *generic.DataUnavailableError
	require.True(t, errors.As(err, &du))
	assert.Equal(t, reference.TablePositions, du.Table)
	assert.ErrorIs(t, err, generic.ErrDataUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

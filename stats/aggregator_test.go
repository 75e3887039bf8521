package stats_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/generic/store"
	"github.com/warp/payroll-engine/stats"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func saveCalc(t *testing.T, m *store.Memory, teacherID int64, name string, on generic.Date, gross, net, tax string) {
	t.Helper()
	_, err := m.InsertSalaryCalculation(context.Background(), &generic.SalaryCalculation{
		TeacherID:         teacherID,
		TeacherName:       name,
		CalculationDate:   on,
		HoursWorked:       d("160"),
		GrossSalary:       d(gross),
		NetSalary:         d(net),
		TaxAmount:         d(tax),
		UnionContribution: decimal.Zero,
		VacationPay:       decimal.Zero,
		SickLeavePay:      d("10"),
	})
	require.NoError(t, err)
}

func saveVacation(t *testing.T, m *store.Memory, teacherID int64, start, end generic.Date, status generic.VacationStatus, paid string) {
	t.Helper()
	_, err := m.InsertVacationRecord(context.Background(), &generic.VacationRecord{
		TeacherID:     teacherID,
		StartDate:     start,
		EndDate:       end,
		DaysCount:     generic.Period{Start: start, End: end}.Days(),
		VacationType:  generic.VacationMain,
		Status:        status,
		PaymentAmount: d(paid),
	})
	require.NoError(t, err)
}

var anna = generic.TeacherProfile{ID: 1, Name: "Anna"}

func TestTeacherYear_EmptyYearIsZeroStructure(t *testing.T) {
	// GIVEN: No saved calculations
	// WHEN: Statistics for 2025 are requested
	// THEN: Twelve zeroed months and zero totals, no error
	m := store.NewMemory()
	ys, err := stats.NewTeacherStatistics(m).TeacherYear(context.Background(), anna, 2025)
	require.NoError(t, err)

	assert.Equal(t, 2025, ys.Year)
	assert.Equal(t, "Anna", ys.TeacherName)
	assert.Equal(t, 0, ys.MonthsWithData)
	assert.True(t, ys.TotalGross.IsZero())
	assert.True(t, ys.AvgMonthlyGross.IsZero())
	require.Len(t, ys.Months, 12)
	assert.Equal(t, "January", ys.Months[0].MonthName)
	assert.Equal(t, 12, ys.Months[11].Month)
	for _, month := range ys.Months {
		assert.Equal(t, 0, month.Calculations)
		assert.True(t, month.NetSalary.IsZero())
	}
}

func TestTeacherYear_SumsByMonthAndAveragesOverMonthsWithData(t *testing.T) {
	// GIVEN: Two calculations in March, one in May, one in the previous year
	//        and one for another teacher
	m := store.NewMemory()
	saveCalc(t, m, 1, "Anna", generic.NewDate(2025, time.March, 15), "1000", "870", "130")
	saveCalc(t, m, 1, "Anna", generic.NewDate(2025, time.March, 31), "500", "435", "65")
	saveCalc(t, m, 1, "Anna", generic.NewDate(2025, time.May, 1), "1001", "870.87", "130.13")
	saveCalc(t, m, 1, "Anna", generic.NewDate(2024, time.December, 31), "9999", "9999", "0")
	saveCalc(t, m, 2, "Boris", generic.NewDate(2025, time.March, 15), "7777", "7777", "0")

	// WHEN: 2025 statistics are computed
	ys, err := stats.NewTeacherStatistics(m).TeacherYear(context.Background(), anna, 2025)
	require.NoError(t, err)

	// THEN: Monthly sums, totals and averages over the two months with data
	assert.Equal(t, 2, ys.MonthsWithData)
	assert.Equal(t, 2, ys.Months[2].Calculations)
	assert.True(t, ys.Months[2].GrossSalary.Equal(d("1500")))
	assert.True(t, ys.Months[2].SickLeavePay.Equal(d("20")))
	assert.True(t, ys.Months[2].HoursWorked.Equal(d("320")))
	assert.True(t, ys.Months[4].NetSalary.Equal(d("870.87")))

	assert.True(t, ys.TotalGross.Equal(d("2501")), ys.TotalGross.String())
	assert.True(t, ys.TotalNet.Equal(d("2175.87")))
	assert.True(t, ys.TotalTax.Equal(d("325.13")))
	assert.True(t, ys.TotalHours.Equal(d("480")))
	assert.True(t, ys.AvgMonthlyGross.Equal(d("1250.5")))
	assert.True(t, ys.AvgMonthlyNet.Equal(d("1087.94")), ys.AvgMonthlyNet.String())
}

func TestVacationYear_CountsNonCancelledByStartMonth(t *testing.T) {
	// GIVEN: Leave records across two teachers, one cancelled, one starting
	//        in the previous year
	m := store.NewMemory()
	saveVacation(t, m, 1, generic.NewDate(2025, time.July, 1), generic.NewDate(2025, time.July, 14), generic.StatusPaid, "14000")
	saveVacation(t, m, 2, generic.NewDate(2025, time.July, 20), generic.NewDate(2025, time.July, 29), generic.StatusScheduled, "0")
	saveVacation(t, m, 1, generic.NewDate(2025, time.August, 1), generic.NewDate(2025, time.August, 5), generic.StatusCancelled, "0")
	saveVacation(t, m, 1, generic.NewDate(2024, time.December, 28), generic.NewDate(2025, time.January, 4), generic.StatusUsed, "0")

	// WHEN: 2025 leave statistics are computed
	vs, err := stats.NewAggregator(m).VacationYear(context.Background(), 2025)
	require.NoError(t, err)

	// THEN: Only the two July records count
	assert.Equal(t, 2, vs.TotalVacations)
	assert.Equal(t, 24, vs.TotalDays)
	assert.True(t, vs.TotalPayments.Equal(d("14000")))
	assert.True(t, vs.AvgDaysPerVacation.Equal(d("12")))
	assert.True(t, vs.AvgPayment.Equal(d("7000")))
	assert.Equal(t, 2, vs.Months[6].Vacations)
	assert.Equal(t, 0, vs.Months[7].Vacations)
	assert.Equal(t, 0, vs.Months[0].Vacations)
}

func TestMonthlyPayroll_GroupsByTeacherSortedByName(t *testing.T) {
	m := store.NewMemory()
	saveCalc(t, m, 2, "Boris", generic.NewDate(2025, time.March, 10), "2000", "1740", "260")
	saveCalc(t, m, 1, "Anna", generic.NewDate(2025, time.March, 1), "1000", "870", "130")
	saveCalc(t, m, 1, "Anna", generic.NewDate(2025, time.March, 31), "1000", "870", "130")
	saveCalc(t, m, 1, "Anna", generic.NewDate(2025, time.April, 1), "1000", "870", "130")

	report, err := stats.NewAggregator(m).MonthlyPayroll(context.Background(), 2025, 3)
	require.NoError(t, err)

	require.Len(t, report.Teachers, 2)
	assert.Equal(t, "Anna", report.Teachers[0].TeacherName)
	assert.Equal(t, 2, report.Teachers[0].Calculations)
	assert.True(t, report.Teachers[0].GrossSalary.Equal(d("2000")))
	assert.Equal(t, "Boris", report.Teachers[1].TeacherName)
	assert.Equal(t, 3, report.Totals.Calculations)
	assert.True(t, report.Totals.NetSalary.Equal(d("3480")))
}

func TestMonthlyPayroll_RejectsBadMonth(t *testing.T) {
	_, err := stats.NewAggregator(store.NewMemory()).MonthlyPayroll(context.Background(), 2025, 13)
	require.Error(t, err)
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// CACHED
// =============================================================================

type fakeCache struct {
	values  map[string][]byte
	gets    int
	deleted []string
	failGet bool
}

func newFakeCache() *fakeCache { return &fakeCache{values: map[string][]byte{}} }

func (f *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	f.gets++
	if f.failGet {
		return false, errors.New("connection refused")
	}
	raw, ok := f.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (f *fakeCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.values[key] = raw
	return nil
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
		f.deleted = append(f.deleted, k)
	}
	return nil
}

func TestCached_ServesHitUntilCalculationSaved(t *testing.T) {
	// GIVEN: A cached aggregator with one calculation saved
	ctx := context.Background()
	m := store.NewMemory()
	saveCalc(t, m, 1, "Anna", generic.NewDate(2025, time.March, 15), "1000", "870", "130")
	cache := newFakeCache()
	c := stats.NewCached(stats.NewAggregator(m), cache, time.Minute, nil, nil)

	first, err := c.TeacherYear(ctx, anna, 2025)
	require.NoError(t, err)
	assert.Contains(t, cache.values, "stats:teacher:1:2025")

	// WHEN: Another calculation lands without notifying the cache
	saveCalc(t, m, 1, "Anna", generic.NewDate(2025, time.April, 15), "1000", "870", "130")

	// THEN: The cached value is served
	second, err := c.TeacherYear(ctx, anna, 2025)
	require.NoError(t, err)
	assert.True(t, second.TotalGross.Equal(first.TotalGross))

	// WHEN: The save is reported
	c.CalculationSaved(ctx, 1, generic.NewDate(2025, time.April, 15))

	// THEN: The year is recomputed
	third, err := c.TeacherYear(ctx, anna, 2025)
	require.NoError(t, err)
	assert.True(t, third.TotalGross.Equal(d("2000")))
	assert.Contains(t, cache.deleted, "stats:payroll:2025:04")
}

func TestCached_FallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	saveVacation(t, m, 1, generic.NewDate(2025, time.July, 1), generic.NewDate(2025, time.July, 14), generic.StatusScheduled, "0")
	cache := newFakeCache()
	cache.failGet = true
	c := stats.NewCached(stats.NewAggregator(m), cache, time.Minute, nil, nil)

	vs, err := c.VacationYear(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, vs.TotalVacations)
}

func TestCached_VacationChangedDropsBothYears(t *testing.T) {
	cache := newFakeCache()
	c := stats.NewCached(stats.NewAggregator(store.NewMemory()), cache, time.Minute, nil, nil)

	c.VacationChanged(context.Background(), generic.VacationRecord{
		StartDate: generic.NewDate(2024, time.December, 28),
		EndDate:   generic.NewDate(2025, time.January, 4),
	})
	assert.ElementsMatch(t, []string{"stats:vacations:2024", "stats:vacations:2025"}, cache.deleted)
}

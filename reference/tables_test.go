package reference_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/reference"
)

func intp(v int) *int { return &v }

// =============================================================================
// LOOKUP TESTS
// =============================================================================

func TestRateTables_LookupsAreCaseInsensitive(t *testing.T) {
	rt := reference.Defaults()

	assert.Equal(t, "1.1", rt.PositionCoefficient("Teacher").String())
	assert.Equal(t, "1.1", rt.PositionCoefficient("  TEACHER ").String())
	assert.Equal(t, "10", rt.DegreeBonusPercent("Candidate").String())
	assert.Equal(t, "15", rt.QualificationBonusPercent("Highest").String())
	assert.Equal(t, 42, rt.Allotment("Senior Teacher").BaseDays)
}

func TestRateTables_UnknownKeysUseDefaults(t *testing.T) {
	rt := reference.Defaults()

	assert.True(t, rt.PositionCoefficient("janitor").Equal(decimal.NewFromInt(1)))
	assert.True(t, rt.DegreeBonusPercent("").IsZero())
	assert.True(t, rt.DegreeBonusPercent("master").IsZero())
	assert.True(t, rt.QualificationBonusPercent("").IsZero())
	assert.Equal(t, reference.VacationAllotment{BaseDays: 28}, rt.Allotment("janitor"))
}

func TestRateTables_DefaultBracketsExclusiveAndExhaustive(t *testing.T) {
	// GIVEN: The default experience brackets
	// WHEN: Looking up every experience from 0 to 60 years
	// THEN: Exactly one bracket contains each value
	brackets := reference.DefaultDocument().Experience

	for years := 0; years <= 60; years++ {
		matches := 0
		for _, b := range brackets {
			if b.Contains(years) {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "years=%d", years)
	}

	rt := reference.Defaults()
	assert.Equal(t, "0", rt.ExperienceBonusPercent(2).String())
	assert.Equal(t, "5", rt.ExperienceBonusPercent(5).String())
	assert.Equal(t, "5", rt.ExperienceBonusPercent(9).String())
	assert.Equal(t, "20", rt.ExperienceBonusPercent(45).String())
}

func TestNewRateTables_RejectsOverlappingBrackets(t *testing.T) {
	doc := reference.Document{
		Experience: []reference.ExperienceBracket{
			{MinYears: 0, MaxYears: intp(5), Percent: decimal.Zero},
			{MinYears: 3, MaxYears: intp(10), Percent: decimal.NewFromInt(5)},
		},
	}
	_, err := reference.NewRateTables(doc)
	assert.ErrorIs(t, err, generic.ErrDataUnavailable)
}

func TestNewRateTables_UnboundedBracketMustBeLast(t *testing.T) {
	doc := reference.Document{
		Experience: []reference.ExperienceBracket{
			{MinYears: 0, Percent: decimal.Zero},
			{MinYears: 0, MaxYears: intp(10), Percent: decimal.NewFromInt(5)},
		},
	}
	_, err := reference.NewRateTables(doc)
	assert.ErrorIs(t, err, generic.ErrDataUnavailable)
}

func TestNewRateTables_SortsBrackets(t *testing.T) {
	doc := reference.Document{
		Experience: []reference.ExperienceBracket{
			{MinYears: 10, Percent: decimal.NewFromInt(10)},
			{MinYears: 0, MaxYears: intp(10), Percent: decimal.NewFromInt(1)},
		},
	}
	rt, err := reference.NewRateTables(doc)
	require.NoError(t, err)
	assert.Equal(t, "1", rt.ExperienceBonusPercent(4).String())
	assert.Equal(t, "10", rt.ExperienceBonusPercent(12).String())
}

// =============================================================================
// LOAD TESTS
// =============================================================================

// failingSource serves the default tables except one that errors.
type failingSource struct {
	reference.Document
	failOn string
}

func (f failingSource) ExperienceBonuses(ctx context.Context) ([]reference.ExperienceBracket, error) {
	if f.failOn == reference.TableExperience {
		return nil, errors.New("table locked")
	}
	return f.Document.ExperienceBonuses(ctx)
}

func (f failingSource) VacationAllotments(ctx context.Context) (map[string]reference.VacationAllotment, error) {
	if f.failOn == reference.TableVacationDays {
		return nil, errors.New("table locked")
	}
	return f.Document.VacationAllotments(ctx)
}

func TestLoad_AllOrNothing(t *testing.T) {
	// GIVEN: A source whose vacation_days table fails
	// WHEN: Loading
	// THEN: No tables are returned and the error names the table
	src := failingSource{Document: reference.DefaultDocument(), failOn: reference.TableVacationDays}

	rt, err := reference.Load(context.Background(), src)

	assert.Nil(t, rt)
	var unavailable *generic.DataUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, reference.TableVacationDays, unavailable.Table)
	assert.ErrorIs(t, err, generic.ErrDataUnavailable)
}

func TestLoad_FromDocument(t *testing.T) {
	rt, err := reference.Load(context.Background(), reference.DefaultDocument())
	require.NoError(t, err)
	assert.Equal(t, "1.5", rt.PositionCoefficient("professor").String())
}

func TestFileSource_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	content := `
position_coefficients:
  Teacher: 1.1
degree_bonuses:
  candidate: 10
experience_bonuses:
  - {min_years: 0, max_years: 5, percent: 0}
  - {min_years: 5, percent: "5"}
qualification_bonuses:
  highest: 15
vacation_days:
  teacher: {base_days: 42, extra_days_degree: 3, extra_days_experience: 3}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rt, err := reference.Load(context.Background(), reference.NewFileSource(path))
	require.NoError(t, err)

	assert.Equal(t, "1.1", rt.PositionCoefficient("teacher").String())
	assert.Equal(t, "5", rt.ExperienceBonusPercent(7).String())
	assert.Equal(t, 42, rt.Allotment("teacher").BaseDays)
}

func TestFileSource_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	content := `{"position_coefficients":{"professor":1.5},"experience_bonuses":[{"min_years":0,"percent":2}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rt, err := reference.Load(context.Background(), reference.NewFileSource(path))
	require.NoError(t, err)
	assert.Equal(t, "1.5", rt.PositionCoefficient("Professor").String())
	assert.Equal(t, "2", rt.ExperienceBonusPercent(30).String())
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := reference.Load(context.Background(), reference.NewFileSource(filepath.Join(t.TempDir(), "nope.yaml")))

	var unavailable *generic.DataUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, reference.TablePositions, unavailable.Table)
}

package reference

import "github.com/shopspring/decimal"

func intp(v int) *int { return &v }

func pct(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// DefaultDocument returns the built-in institutional tables. They seed an
// empty database and back the demo scenarios.
func DefaultDocument() Document {
	return Document{
		Positions: map[string]decimal.Decimal{
			"assistant":           decimal.RequireFromString("1.0"),
			"teacher":             decimal.RequireFromString("1.1"),
			"senior teacher":      decimal.RequireFromString("1.2"),
			"associate professor": decimal.RequireFromString("1.35"),
			"professor":           decimal.RequireFromString("1.5"),
			"department head":     decimal.RequireFromString("1.6"),
		},
		Degrees: map[string]decimal.Decimal{
			"candidate": pct(10),
			"doctor":    pct(20),
		},
		Experience: []ExperienceBracket{
			{MinYears: 0, MaxYears: intp(3), Percent: pct(0)},
			{MinYears: 3, MaxYears: intp(5), Percent: pct(3)},
			{MinYears: 5, MaxYears: intp(10), Percent: pct(5)},
			{MinYears: 10, MaxYears: intp(15), Percent: pct(10)},
			{MinYears: 15, MaxYears: intp(20), Percent: pct(15)},
			{MinYears: 20, Percent: pct(20)},
		},
		Qualifications: map[string]decimal.Decimal{
			"second":  pct(5),
			"first":   pct(10),
			"highest": pct(15),
		},
		VacationDays: map[string]VacationAllotment{
			"assistant":           {BaseDays: 28, ExtraDaysForDegree: 0, ExtraDaysForExperience: 3},
			"teacher":             {BaseDays: 42, ExtraDaysForDegree: 3, ExtraDaysForExperience: 3},
			"senior teacher":      {BaseDays: 42, ExtraDaysForDegree: 3, ExtraDaysForExperience: 3},
			"associate professor": {BaseDays: 56},
			"professor":           {BaseDays: 56},
			"department head":     {BaseDays: 56},
		},
	}
}

// Defaults builds RateTables from DefaultDocument.
func Defaults() *RateTables {
	rt, err := NewRateTables(DefaultDocument())
	if err != nil {
		panic("reference: invalid default tables: " + err.Error())
	}
	return rt
}

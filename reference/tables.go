// Package reference holds the institutional rate tables payroll is computed
// from, and the loaders that read them.
package reference

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// TABLE ROWS
// =============================================================================

// ExperienceBracket applies Percent to experience in [MinYears, MaxYears).
// A nil MaxYears is unbounded above.
type ExperienceBracket struct {
	MinYears int             `json:"min_years" yaml:"min_years" db:"min_years"`
	MaxYears *int            `json:"max_years,omitempty" yaml:"max_years,omitempty" db:"max_years"`
	Percent  decimal.Decimal `json:"percent" yaml:"percent" db:"bonus_percent"`
}

func (b ExperienceBracket) Contains(years int) bool {
	if b.MaxYears == nil {
		return years >= b.MinYears
	}
	return years >= b.MinYears && years < *b.MaxYears
}

// VacationAllotment is the per-position leave entitlement rule.
type VacationAllotment struct {
	BaseDays               int `json:"base_days" yaml:"base_days" db:"base_days"`
	ExtraDaysForDegree     int `json:"extra_days_degree" yaml:"extra_days_degree" db:"extra_days_degree"`
	ExtraDaysForExperience int `json:"extra_days_experience" yaml:"extra_days_experience" db:"extra_days_experience"`
}

// DefaultAllotment applies to positions missing from the table.
var DefaultAllotment = VacationAllotment{BaseDays: 28}

// =============================================================================
// RATE TABLES
// =============================================================================

// RateTables is an immutable snapshot of the five reference tables. Keys are
// stored lowercased and every lookup lowercases its argument.
type RateTables struct {
	positions      map[string]decimal.Decimal
	degrees        map[string]decimal.Decimal
	experience     []ExperienceBracket
	qualifications map[string]decimal.Decimal
	allotments     map[string]VacationAllotment
}

// NewRateTables copies the given tables and validates the experience brackets.
func NewRateTables(doc Document) (*RateTables, error) {
	brackets := append([]ExperienceBracket(nil), doc.Experience...)
	sort.SliceStable(brackets, func(i, j int) bool { return brackets[i].MinYears < brackets[j].MinYears })
	if err := validateBrackets(brackets); err != nil {
		return nil, err
	}

	rt := &RateTables{
		positions:      lowerKeys(doc.Positions),
		degrees:        lowerKeys(doc.Degrees),
		experience:     brackets,
		qualifications: lowerKeys(doc.Qualifications),
		allotments:     make(map[string]VacationAllotment, len(doc.VacationDays)),
	}
	for k, v := range doc.VacationDays {
		rt.allotments[normalize(k)] = v
	}
	return rt, nil
}

// validateBrackets requires ascending, non-overlapping brackets with the
// unbounded bracket (if any) last.
func validateBrackets(brackets []ExperienceBracket) error {
	for i, b := range brackets {
		if b.MinYears < 0 {
			return &generic.DataUnavailableError{Table: TableExperience, Err: fmt.Errorf("bracket %d: negative min_years", i)}
		}
		if b.MaxYears == nil {
			if i != len(brackets)-1 {
				return &generic.DataUnavailableError{Table: TableExperience, Err: fmt.Errorf("bracket %d: unbounded bracket must be last", i)}
			}
			continue
		}
		if *b.MaxYears <= b.MinYears {
			return &generic.DataUnavailableError{Table: TableExperience, Err: fmt.Errorf("bracket %d: max_years %d <= min_years %d", i, *b.MaxYears, b.MinYears)}
		}
		if i+1 < len(brackets) && brackets[i+1].MinYears < *b.MaxYears {
			return &generic.DataUnavailableError{Table: TableExperience, Err: fmt.Errorf("brackets %d and %d overlap", i, i+1)}
		}
	}
	return nil
}

func normalize(key string) string { return strings.ToLower(strings.TrimSpace(key)) }

func lowerKeys(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[normalize(k)] = v
	}
	return out
}

// =============================================================================
// LOOKUPS
// =============================================================================

// PositionCoefficient returns 1.0 for unknown positions.
func (rt *RateTables) PositionCoefficient(position string) decimal.Decimal {
	if c, ok := rt.positions[normalize(position)]; ok {
		return c
	}
	return decimal.NewFromInt(1)
}

// DegreeBonusPercent returns 0 for an empty or unknown degree.
func (rt *RateTables) DegreeBonusPercent(degree string) decimal.Decimal {
	if degree == "" {
		return decimal.Zero
	}
	return rt.degrees[normalize(degree)]
}

// ExperienceBonusPercent returns the percent of the first bracket containing
// years, or 0 when no bracket matches.
func (rt *RateTables) ExperienceBonusPercent(years int) decimal.Decimal {
	for _, b := range rt.experience {
		if b.Contains(years) {
			return b.Percent
		}
	}
	return decimal.Zero
}

// QualificationBonusPercent returns 0 for an empty or unknown category.
func (rt *RateTables) QualificationBonusPercent(category string) decimal.Decimal {
	if category == "" {
		return decimal.Zero
	}
	return rt.qualifications[normalize(category)]
}

// Allotment returns DefaultAllotment for unknown positions.
func (rt *RateTables) Allotment(position string) VacationAllotment {
	if a, ok := rt.allotments[normalize(position)]; ok {
		return a
	}
	return DefaultAllotment
}

// Document exports a copy of the tables, e.g. for the API or for seeding a store.
func (rt *RateTables) Document() Document {
	doc := Document{
		Positions:      copyDecimals(rt.positions),
		Degrees:        copyDecimals(rt.degrees),
		Experience:     append([]ExperienceBracket(nil), rt.experience...),
		Qualifications: copyDecimals(rt.qualifications),
		VacationDays:   make(map[string]VacationAllotment, len(rt.allotments)),
	}
	for k, v := range rt.allotments {
		doc.VacationDays[k] = v
	}
	return doc
}

func copyDecimals(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

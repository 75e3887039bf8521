package reference

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// Table names, used in DataUnavailable errors and as SQL table names.
const (
	TablePositions      = "position_coefficients"
	TableDegrees        = "academic_degree_bonuses"
	TableExperience     = "experience_bonuses"
	TableQualifications = "qualification_bonuses"
	TableVacationDays   = "vacation_days"
)

// Source reads the five reference tables.
type Source interface {
	PositionCoefficients(ctx context.Context) (map[string]decimal.Decimal, error)
	DegreeBonuses(ctx context.Context) (map[string]decimal.Decimal, error)
	ExperienceBonuses(ctx context.Context) ([]ExperienceBracket, error)
	QualificationBonuses(ctx context.Context) (map[string]decimal.Decimal, error)
	VacationAllotments(ctx context.Context) (map[string]VacationAllotment, error)
}

// Document is the plain form of the tables: the rates file schema, the API
// response and an in-memory Source.
type Document struct {
	Positions      map[string]decimal.Decimal   `json:"position_coefficients" yaml:"position_coefficients"`
	Degrees        map[string]decimal.Decimal   `json:"degree_bonuses" yaml:"degree_bonuses"`
	Experience     []ExperienceBracket          `json:"experience_bonuses" yaml:"experience_bonuses"`
	Qualifications map[string]decimal.Decimal   `json:"qualification_bonuses" yaml:"qualification_bonuses"`
	VacationDays   map[string]VacationAllotment `json:"vacation_days" yaml:"vacation_days"`
}

var _ Source = Document{}

func (d Document) PositionCoefficients(context.Context) (map[string]decimal.Decimal, error) {
	return d.Positions, nil
}

func (d Document) DegreeBonuses(context.Context) (map[string]decimal.Decimal, error) {
	return d.Degrees, nil
}

func (d Document) ExperienceBonuses(context.Context) ([]ExperienceBracket, error) {
	return d.Experience, nil
}

func (d Document) QualificationBonuses(context.Context) (map[string]decimal.Decimal, error) {
	return d.Qualifications, nil
}

func (d Document) VacationAllotments(context.Context) (map[string]VacationAllotment, error) {
	return d.VacationDays, nil
}

// Load reads every table from src and builds RateTables. It is
// all-or-nothing: the first failing table aborts the load with a
// DataUnavailableError naming it.
func Load(ctx context.Context, src Source) (*RateTables, error) {
	var (
		doc Document
		err error
	)
	if doc.Positions, err = src.PositionCoefficients(ctx); err != nil {
		return nil, unavailable(TablePositions, err)
	}
	if doc.Degrees, err = src.DegreeBonuses(ctx); err != nil {
		return nil, unavailable(TableDegrees, err)
	}
	if doc.Experience, err = src.ExperienceBonuses(ctx); err != nil {
		return nil, unavailable(TableExperience, err)
	}
	if doc.Qualifications, err = src.QualificationBonuses(ctx); err != nil {
		return nil, unavailable(TableQualifications, err)
	}
	if doc.VacationDays, err = src.VacationAllotments(ctx); err != nil {
		return nil, unavailable(TableVacationDays, err)
	}
	return NewRateTables(doc)
}

func unavailable(table string, err error) error {
	return &generic.DataUnavailableError{Table: table, Err: err}
}

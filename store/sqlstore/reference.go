package sqlstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/reference"
)

// =============================================================================
// REFERENCE SOURCE (reference.Source interface)
// =============================================================================

var _ reference.Source = (*Store)(nil)

type rateRow struct {
	Name  string          `db:"name"`
	Value decimal.Decimal `db:"amount"`
}

type allotmentRow struct {
	Position string `db:"position"`
	reference.VacationAllotment
}

func (s *Store) rateMap(ctx context.Context, query string) (map[string]decimal.Decimal, error) {
	var rows []rateRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Value
	}
	return out, nil
}

func (s *Store) PositionCoefficients(ctx context.Context) (map[string]decimal.Decimal, error) {
	return s.rateMap(ctx, "SELECT position AS name, coefficient AS amount FROM "+reference.TablePositions)
}

func (s *Store) DegreeBonuses(ctx context.Context) (map[string]decimal.Decimal, error) {
	return s.rateMap(ctx, "SELECT degree AS name, bonus_percent AS amount FROM "+reference.TableDegrees)
}

func (s *Store) QualificationBonuses(ctx context.Context) (map[string]decimal.Decimal, error) {
	return s.rateMap(ctx, "SELECT category AS name, bonus_percent AS amount FROM "+reference.TableQualifications)
}

func (s *Store) ExperienceBonuses(ctx context.Context) ([]reference.ExperienceBracket, error) {
	var brackets []reference.ExperienceBracket
	err := sqlx.SelectContext(ctx, s.db, &brackets,
		"SELECT min_years, max_years, bonus_percent FROM "+reference.TableExperience+" ORDER BY min_years")
	if err != nil {
		return nil, err
	}
	return brackets, nil
}

func (s *Store) VacationAllotments(ctx context.Context) (map[string]reference.VacationAllotment, error) {
	var rows []allotmentRow
	err := sqlx.SelectContext(ctx, s.db, &rows,
		"SELECT position, base_days, extra_days_degree, extra_days_experience FROM "+reference.TableVacationDays)
	if err != nil {
		return nil, err
	}
	out := make(map[string]reference.VacationAllotment, len(rows))
	for _, r := range rows {
		out[r.Position] = r.VacationAllotment
	}
	return out, nil
}

// SeedReference writes doc into the reference tables when they are empty.
// It reports whether anything was written; populated tables are left alone.
func (s *Store) SeedReference(ctx context.Context, doc reference.Document) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, s.db, &count, "SELECT COUNT(*) FROM "+reference.TablePositions); err != nil {
		return false, fmt.Errorf("failed to count %s: %w", reference.TablePositions, err)
	}
	if count > 0 {
		return false, nil
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		exec := func(table, query string, args ...any) error {
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("failed to seed %s: %w", table, err)
			}
			return nil
		}

		for _, k := range sortedKeys(doc.Positions) {
			if err := exec(reference.TablePositions,
				"INSERT INTO "+reference.TablePositions+" (position, coefficient) VALUES (?, ?)", k, doc.Positions[k]); err != nil {
				return err
			}
		}
		for _, k := range sortedKeys(doc.Degrees) {
			if err := exec(reference.TableDegrees,
				"INSERT INTO "+reference.TableDegrees+" (degree, bonus_percent) VALUES (?, ?)", k, doc.Degrees[k]); err != nil {
				return err
			}
		}
		for _, b := range doc.Experience {
			if err := exec(reference.TableExperience,
				"INSERT INTO "+reference.TableExperience+" (min_years, max_years, bonus_percent) VALUES (?, ?, ?)",
				b.MinYears, b.MaxYears, b.Percent); err != nil {
				return err
			}
		}
		for _, k := range sortedKeys(doc.Qualifications) {
			if err := exec(reference.TableQualifications,
				"INSERT INTO "+reference.TableQualifications+" (category, bonus_percent) VALUES (?, ?)", k, doc.Qualifications[k]); err != nil {
				return err
			}
		}
		positions := make([]string, 0, len(doc.VacationDays))
		for k := range doc.VacationDays {
			positions = append(positions, k)
		}
		sort.Strings(positions)
		for _, k := range positions {
			a := doc.VacationDays[k]
			if err := exec(reference.TableVacationDays,
				"INSERT INTO "+reference.TableVacationDays+" (position, base_days, extra_days_degree, extra_days_experience) VALUES (?, ?, ?, ?)",
				k, a.BaseDays, a.ExtraDaysForDegree, a.ExtraDaysForExperience); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

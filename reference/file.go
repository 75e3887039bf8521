/*
file.go - Rate tables from a YAML or JSON file

PURPOSE:
  Lets payroll administrators maintain the rate tables as a versioned file
  instead of database rows. The file is parsed once, on first use.

SCHEMA (YAML; JSON uses the same keys):
  position_coefficients:
    teacher: 1.1
    professor: 1.5
  degree_bonuses:
    candidate: 10
  experience_bonuses:
    - {min_years: 0, max_years: 3, percent: 0}
    - {min_years: 3, max_years: 5, percent: 3}
    - {min_years: 5, percent: 5}
  qualification_bonuses:
    highest: 15
  vacation_days:
    teacher: {base_days: 42, extra_days_degree: 3, extra_days_experience: 3}

USAGE:
  tables, err := reference.Load(ctx, reference.NewFileSource("rates.yaml"))

SEE ALSO:
  - source.go: Load and the Document schema
  - store/sqlstore: the database-backed Source
*/
package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FileSource implements Source over a rates file.
type FileSource struct {
	Path string

	once sync.Once
	doc  Document
	err  error
}

var _ Source = (*FileSource)(nil)

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// ParseDocument decodes a rates document. JSON is chosen by the .json
// extension, everything else is read as YAML.
func ParseDocument(name string, data []byte) (Document, error) {
	var doc Document
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("parse %s: %w", name, err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return doc, nil
}

func (f *FileSource) document() (Document, error) {
	f.once.Do(func() {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			f.err = fmt.Errorf("read rates file: %w", err)
			return
		}
		f.doc, f.err = ParseDocument(f.Path, data)
	})
	return f.doc, f.err
}

func (f *FileSource) PositionCoefficients(ctx context.Context) (map[string]decimal.Decimal, error) {
	doc, err := f.document()
	if err != nil {
		return nil, err
	}
	return doc.PositionCoefficients(ctx)
}

func (f *FileSource) DegreeBonuses(ctx context.Context) (map[string]decimal.Decimal, error) {
	doc, err := f.document()
	if err != nil {
		return nil, err
	}
	return doc.DegreeBonuses(ctx)
}

func (f *FileSource) ExperienceBonuses(ctx context.Context) ([]ExperienceBracket, error) {
	doc, err := f.document()
	if err != nil {
		return nil, err
	}
	return doc.ExperienceBonuses(ctx)
}

func (f *FileSource) QualificationBonuses(ctx context.Context) (map[string]decimal.Decimal, error) {
	doc, err := f.document()
	if err != nil {
		return nil, err
	}
	return doc.QualificationBonuses(ctx)
}

func (f *FileSource) VacationAllotments(ctx context.Context) (map[string]VacationAllotment, error) {
	doc, err := f.document()
	if err != nil {
		return nil, err
	}
	return doc.VacationAllotments(ctx)
}

package sqlstore

import (
	"strings"

	"github.com/warp/payroll-engine/config"
)

// schema uses {{...}} placeholders for the types that differ between
// dialects. Dates are DATE in both; sqlite stores them as ISO text, which
// sorts and compares correctly.
const schema = `
-- Teachers
CREATE TABLE IF NOT EXISTS teachers (
	id {{id}},
	full_name TEXT NOT NULL,
	position TEXT NOT NULL DEFAULT '',
	academic_degree TEXT NOT NULL DEFAULT '',
	experience_years INTEGER NOT NULL DEFAULT 0 CHECK (experience_years >= 0),
	qualification_category TEXT NOT NULL DEFAULT '',
	hourly_rate {{money}} NOT NULL,
	is_young_specialist BOOLEAN NOT NULL DEFAULT FALSE,
	is_union_member BOOLEAN NOT NULL DEFAULT FALSE,
	hire_date DATE,
	birth_date DATE
);

-- Salary calculations (append-only)
CREATE TABLE IF NOT EXISTS salary_calculations (
	id {{id}},
	teacher_id BIGINT NOT NULL REFERENCES teachers(id),
	teacher_name TEXT NOT NULL,
	calculation_date DATE NOT NULL,
	hourly_rate {{money}} NOT NULL,
	hours_worked {{money}} NOT NULL,
	sick_leave_hours {{money}} NOT NULL,
	absence_hours {{money}} NOT NULL,
	bonus {{money}} NOT NULL,
	tax_rate_percent {{money}} NOT NULL,
	vacation_pay {{money}} NOT NULL,
	base_salary {{money}} NOT NULL,
	position_bonus {{money}} NOT NULL,
	degree_bonus {{money}} NOT NULL,
	experience_bonus {{money}} NOT NULL,
	category_bonus {{money}} NOT NULL,
	young_specialist_bonus {{money}} NOT NULL,
	sick_leave_pay {{money}} NOT NULL,
	gross_salary {{money}} NOT NULL,
	tax_amount {{money}} NOT NULL,
	union_contribution {{money}} NOT NULL,
	net_salary {{money}} NOT NULL,
	vacation_days_entitlement INTEGER NOT NULL,
	created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_salary_calculations_teacher_date
	ON salary_calculations(teacher_id, calculation_date);
CREATE INDEX IF NOT EXISTS idx_salary_calculations_date
	ON salary_calculations(calculation_date);

-- Leave records
CREATE TABLE IF NOT EXISTS teacher_vacations (
	id {{id}},
	teacher_id BIGINT NOT NULL REFERENCES teachers(id),
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	days_count INTEGER NOT NULL CHECK (days_count > 0),
	vacation_type TEXT NOT NULL DEFAULT 'main',
	status TEXT NOT NULL DEFAULT 'scheduled',
	payment_amount {{money}} NOT NULL DEFAULT 0,
	payment_date DATE,
	notes TEXT NOT NULL DEFAULT '',
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL,
	CHECK (end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS idx_teacher_vacations_teacher_dates
	ON teacher_vacations(teacher_id, start_date, end_date);
CREATE INDEX IF NOT EXISTS idx_teacher_vacations_status
	ON teacher_vacations(status);

-- Carry-over of unused days
CREATE TABLE IF NOT EXISTS vacation_days_transfer (
	id {{id}},
	teacher_id BIGINT NOT NULL REFERENCES teachers(id),
	from_year INTEGER NOT NULL,
	to_year INTEGER NOT NULL,
	days_count INTEGER NOT NULL CHECK (days_count > 0),
	transfer_date DATE NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	CHECK (to_year > from_year)
);

CREATE INDEX IF NOT EXISTS idx_vacation_days_transfer_teacher
	ON vacation_days_transfer(teacher_id);

-- Audit log (append-only)
CREATE TABLE IF NOT EXISTS audit_log (
	seq {{id}},
	id {{uuid}} NOT NULL UNIQUE,
	created_at {{ts}} NOT NULL,
	action TEXT NOT NULL,
	teacher_id BIGINT NOT NULL,
	record_id BIGINT NOT NULL,
	payload {{json}}
);

CREATE INDEX IF NOT EXISTS idx_audit_log_teacher
	ON audit_log(teacher_id, created_at);

-- Reference tables
CREATE TABLE IF NOT EXISTS position_coefficients (
	position TEXT PRIMARY KEY,
	coefficient {{money}} NOT NULL
);

CREATE TABLE IF NOT EXISTS academic_degree_bonuses (
	degree TEXT PRIMARY KEY,
	bonus_percent {{money}} NOT NULL
);

CREATE TABLE IF NOT EXISTS experience_bonuses (
	min_years INTEGER PRIMARY KEY,
	max_years INTEGER,
	bonus_percent {{money}} NOT NULL
);

CREATE TABLE IF NOT EXISTS qualification_bonuses (
	category TEXT PRIMARY KEY,
	bonus_percent {{money}} NOT NULL
);

CREATE TABLE IF NOT EXISTS vacation_days (
	position TEXT PRIMARY KEY,
	base_days INTEGER NOT NULL,
	extra_days_degree INTEGER NOT NULL DEFAULT 0,
	extra_days_experience INTEGER NOT NULL DEFAULT 0
);
`

var dialects = map[string]*strings.Replacer{
	config.DriverSQLite: strings.NewReplacer(
		"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{money}}", "TEXT",
		"{{uuid}}", "TEXT",
		"{{json}}", "TEXT",
		"{{ts}}", "TIMESTAMP",
	),
	config.DriverPostgres: strings.NewReplacer(
		"{{id}}", "BIGSERIAL PRIMARY KEY",
		"{{money}}", "NUMERIC(14,4)",
		"{{uuid}}", "UUID",
		"{{json}}", "JSONB",
		"{{ts}}", "TIMESTAMPTZ",
	),
}

func renderSchema(driver string) string {
	r, ok := dialects[driver]
	if !ok {
		r = dialects[config.DriverSQLite]
	}
	return r.Replace(schema)
}

// splitStatements breaks the schema on ";" into single statements.
func splitStatements(s string) []string {
	var out []string
	for _, stmt := range strings.Split(s, ";") {
		if strings.TrimSpace(stripComments(stmt)) != "" {
			out = append(out, strings.TrimSpace(stmt))
		}
	}
	return out
}

func stripComments(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

package sqlstore

import (
	"bufio"
	_ "embed"
	"strings"

	"github.com/warp/trialdb/trial"
)

// SQLiteDDL contains the SQLite schema.
//
//go:embed schema/sqlite.sql
var SQLiteDDL string

// PostgresDDL contains the PostgreSQL schema.
//
//go:embed schema/postgres.sql
var PostgresDDL string

// columns lists the columns each relation must expose. Used to detect a
// pre-existing relation that CREATE TABLE IF NOT EXISTS silently kept.
var columns = map[string][]string{
	trial.RelationProject:   {"project_id"},
	trial.RelationCondition: {"condition_name"},
	trial.RelationTreatment: {"treatment_id"},
	trial.RelationSubject:   {"project_id", "subject_id", "condition_name", "treatment_id", "age", "sex"},
	trial.RelationSample:    {"sample_id", "project_id", "subject_id", "sample_type", "time_from_treatment_start", "response"},
	trial.RelationCellCount: {"sample_id", "b_cell", "cd8_t_cell", "cd4_t_cell", "nk_cell", "monocyte"},
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}

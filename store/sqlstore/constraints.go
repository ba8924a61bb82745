package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/trialdb/trial"
)

// checkKey fills every placeholder of a constraint check. All check writes
// are rolled back before EnsureSchema commits.
const checkKey = "__trialdb_schema_check__"

// constraintCheck is a write that a compatible schema rejects with want.
// The setup statements insert the parents the write needs so that only
// the constraint under test can fire.
type constraintCheck struct {
	relation string
	name     string
	setup    []string
	stmt     string
	want     Violation
}

const (
	checkProject   = "INSERT INTO project (project_id) VALUES (?)"
	checkCondition = "INSERT INTO disease_condition (condition_name) VALUES (?)"
	checkTreatment = "INSERT INTO treatment (treatment_id) VALUES (?)"
)

func checkSubject(treatment, age, sex string) string {
	return fmt.Sprintf(`INSERT INTO subject (project_id, subject_id, condition_name, treatment_id, age, sex)
		VALUES (?, ?, ?, %s, %s, %s)`, treatment, age, sex)
}

func checkSample(response string) string {
	return fmt.Sprintf(`INSERT INTO sample (sample_id, project_id, subject_id, sample_type, time_from_treatment_start, response)
		VALUES (?, ?, ?, 'PBMC', NULL, %s)`, response)
}

func checkCellCount(values [5]string) string {
	return fmt.Sprintf(`INSERT INTO cell_count (sample_id, b_cell, cd8_t_cell, cd4_t_cell, nk_cell, monocyte)
		VALUES (?, %s)`, strings.Join(values[:], ", "))
}

var (
	validSubject   = checkSubject("NULL", "1", "'M'")
	validSample    = checkSample("NULL")
	validCellCount = checkCellCount([5]string{"0", "0", "0", "0", "0"})
)

// constraintChecks lists the keys, foreign keys, CHECK and NOT NULL
// constraints every relation must enforce.
func constraintChecks() []constraintCheck {
	withSubject := []string{checkProject, checkCondition, validSubject}
	withSample := []string{checkProject, checkCondition, validSubject, validSample}
	withCellCount := []string{checkProject, checkCondition, validSubject, validSample, validCellCount}

	checks := []constraintCheck{
		{trial.RelationProject, "primary key", []string{checkProject}, checkProject, UniqueViolation},
		{trial.RelationCondition, "primary key", []string{checkCondition}, checkCondition, UniqueViolation},
		{trial.RelationTreatment, "primary key", []string{checkTreatment}, checkTreatment, UniqueViolation},

		{trial.RelationSubject, "project reference", []string{checkCondition}, validSubject, ForeignKeyViolation},
		{trial.RelationSubject, "condition reference", []string{checkProject}, validSubject, ForeignKeyViolation},
		{trial.RelationSubject, "treatment reference", []string{checkProject, checkCondition}, checkSubject("?", "1", "'M'"), ForeignKeyViolation},
		{trial.RelationSubject, "age >= 0", []string{checkProject, checkCondition}, checkSubject("NULL", "-1", "'M'"), CheckViolation},
		{trial.RelationSubject, "sex in (M, F)", []string{checkProject, checkCondition}, checkSubject("NULL", "1", "'X'"), CheckViolation},
		{trial.RelationSubject, "sex not null", []string{checkProject, checkCondition}, checkSubject("NULL", "1", "NULL"), NotNullViolation},
		{trial.RelationSubject, "primary key", withSubject, validSubject, UniqueViolation},

		{trial.RelationSample, "subject reference", nil, validSample, ForeignKeyViolation},
		{trial.RelationSample, "response in (y, n)", withSubject, checkSample("'x'"), CheckViolation},
		{trial.RelationSample, "primary key", withSample, validSample, UniqueViolation},

		{trial.RelationCellCount, "sample reference", nil, validCellCount, ForeignKeyViolation},
		{trial.RelationCellCount, "primary key", withCellCount, validCellCount, UniqueViolation},
	}

	for i, column := range columns[trial.RelationCellCount][1:] {
		negative := [5]string{"0", "0", "0", "0", "0"}
		negative[i] = "-1"
		missing := [5]string{"0", "0", "0", "0", "0"}
		missing[i] = "NULL"
		checks = append(checks,
			constraintCheck{trial.RelationCellCount, column + " >= 0", withSample, checkCellCount(negative), CheckViolation},
			constraintCheck{trial.RelationCellCount, column + " not null", withSample, checkCellCount(missing), NotNullViolation},
		)
	}
	return checks
}

// checkConstraints runs every constraint check inside its own savepoint of
// tx. A write that succeeds, or fails for another reason, means a
// pre-existing relation does not match the schema.
func (s *Store) checkConstraints(ctx context.Context, tx *sql.Tx) error {
	for _, c := range constraintChecks() {
		if err := s.runCheck(ctx, tx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) runCheck(ctx context.Context, tx *sql.Tx, c constraintCheck) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT schema_check"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	err := s.execCheck(ctx, tx, c)

	if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT schema_check"); rbErr != nil {
		return errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
	}
	if _, relErr := tx.ExecContext(ctx, "RELEASE SAVEPOINT schema_check"); relErr != nil {
		return errors.Join(err, fmt.Errorf("release savepoint: %w", relErr))
	}
	return err
}

func (s *Store) execCheck(ctx context.Context, tx *sql.Tx, c constraintCheck) error {
	for _, stmt := range c.setup {
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(stmt), checkArgs(stmt)...); err != nil {
			return fmt.Errorf("relation %s is incompatible: checking %s: %w", c.relation, c.name, err)
		}
	}

	_, err := tx.ExecContext(ctx, s.dialect.Rebind(c.stmt), checkArgs(c.stmt)...)
	if err == nil {
		return fmt.Errorf("relation %s does not enforce %s", c.relation, c.name)
	}
	if got := s.dialect.Classify(err); got != c.want {
		return fmt.Errorf("relation %s: %s rejected as %s, want %s: %w", c.relation, c.name, got, c.want, err)
	}
	return nil
}

func checkArgs(stmt string) []any {
	args := make([]any, strings.Count(stmt, "?"))
	for i := range args {
		args[i] = checkKey
	}
	return args
}

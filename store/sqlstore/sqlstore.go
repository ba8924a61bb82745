/*
Package sqlstore implements trial.Store on top of database/sql.

PURPOSE:
  One implementation of the schema, upsert and insert statements shared by
  every relational engine. Engine packages (store/sqlite, store/postgres)
  open the connection and supply a Dialect for DDL, placeholders and error
  classification.

WRITE SEMANTICS:
  Reference entities:  INSERT ... ON CONFLICT DO NOTHING
  Subject:             INSERT ... ON CONFLICT (project_id, subject_id) DO UPDATE
  Sample / CellCount:  plain INSERT; unique violations become DuplicateKeyError

  Foreign keys and CHECK constraints are enforced by the engine at write
  time; their violations become *trial.ConstraintError.

SCHEMA:
  EnsureSchema runs the namespace statements and the embedded DDL inside one
  transaction, then checks every relation for its expected columns and
  replays writes each key, foreign key, CHECK and NOT NULL constraint must
  reject, each inside a savepoint that is rolled back. Any failure is a
  *trial.ConfigurationError.

CONCURRENCY:
  WithTx is serialized with a mutex. The design assumes one writer per run.

SEE ALSO:
  - trial/store.go: Interface definitions
  - schema/*.sql: Dialect DDL
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/warp/trialdb/trial"
)

// Store implements trial.Store for any database/sql engine.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
}

var _ trial.Store = (*Store)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the engine dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SCHEMA MANAGER
// =============================================================================

// EnsureSchema creates the namespace and relations if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &trial.ConfigurationError{Op: "begin schema transaction", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range s.dialect.Namespace() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &trial.ConfigurationError{Op: "create namespace", Err: err}
		}
	}
	for _, stmt := range SplitStatements(s.dialect.DDL()) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &trial.ConfigurationError{Op: "create schema", Err: fmt.Errorf("%s: %w", firstLine(stmt), err)}
		}
	}
	for _, relation := range trial.Relations {
		if err := checkColumns(ctx, tx, relation); err != nil {
			return &trial.ConfigurationError{Op: "check schema", Err: err}
		}
	}
	if err := s.checkConstraints(ctx, tx); err != nil {
		return &trial.ConfigurationError{Op: "check schema", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &trial.ConfigurationError{Op: "commit schema", Err: err}
	}
	return nil
}

func checkColumns(ctx context.Context, tx *sql.Tx, relation string) error {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 0",
		strings.Join(columns[relation], ", "), relation)
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("relation %s is incompatible: %w", relation, err)
	}
	return rows.Close()
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}

// =============================================================================
// TRANSACTIONAL WRITES (trial.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(trial.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&txWriter{tx: sqlTx, s: s}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

type txWriter struct {
	tx *sql.Tx
	s  *Store
}

func (w *txWriter) UpsertProject(ctx context.Context, id string) error {
	return w.s.exec(ctx, w.tx, trial.RelationProject, id,
		`INSERT INTO project (project_id) VALUES (?)
		 ON CONFLICT (project_id) DO NOTHING`, id)
}

func (w *txWriter) UpsertCondition(ctx context.Context, name string) error {
	return w.s.exec(ctx, w.tx, trial.RelationCondition, name,
		`INSERT INTO disease_condition (condition_name) VALUES (?)
		 ON CONFLICT (condition_name) DO NOTHING`, name)
}

func (w *txWriter) UpsertTreatment(ctx context.Context, id string) error {
	return w.s.exec(ctx, w.tx, trial.RelationTreatment, id,
		`INSERT INTO treatment (treatment_id) VALUES (?)
		 ON CONFLICT (treatment_id) DO NOTHING`, id)
}

func (w *txWriter) UpsertSubject(ctx context.Context, subj trial.Subject) error {
	query := `
		INSERT INTO subject (project_id, subject_id, condition_name, treatment_id, age, sex)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, subject_id) DO UPDATE SET
			condition_name = excluded.condition_name,
			treatment_id = excluded.treatment_id,
			age = excluded.age,
			sex = excluded.sex
	`
	return w.s.exec(ctx, w.tx, trial.RelationSubject, subj.Key().String(), query,
		subj.ProjectID,
		subj.SubjectID,
		subj.ConditionName,
		nullString(subj.TreatmentID),
		subj.Age,
		string(subj.Sex),
	)
}

func (w *txWriter) InsertSample(ctx context.Context, sample trial.Sample) error {
	query := `
		INSERT INTO sample
		(sample_id, project_id, subject_id, sample_type, time_from_treatment_start, response)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	return w.s.exec(ctx, w.tx, trial.RelationSample, sample.SampleID, query,
		sample.SampleID,
		sample.ProjectID,
		sample.SubjectID,
		sample.SampleType,
		nullInt(sample.TimeFromTreatmentStart),
		nullString(string(sample.Response)),
	)
}

func (w *txWriter) InsertCellCount(ctx context.Context, c trial.CellCount) error {
	query := `
		INSERT INTO cell_count
		(sample_id, b_cell, cd8_t_cell, cd4_t_cell, nk_cell, monocyte)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	return w.s.exec(ctx, w.tx, trial.RelationCellCount, c.SampleID, query,
		c.SampleID, c.BCell, c.CD8TCell, c.CD4TCell, c.NKCell, c.Monocyte)
}

func (s *Store) exec(ctx context.Context, db execer, relation, key, query string, args ...any) error {
	if _, err := db.ExecContext(ctx, s.dialect.Rebind(query), args...); err != nil {
		return s.classify(err, relation, key)
	}
	return nil
}

// classify converts engine errors into trial error types.
func (s *Store) classify(err error, relation, key string) error {
	switch v := s.dialect.Classify(err); v {
	case UniqueViolation:
		return &trial.DuplicateKeyError{Relation: relation, Key: key}
	case ForeignKeyViolation, CheckViolation, NotNullViolation:
		return &trial.ConstraintError{Relation: relation, Key: key, Constraint: v.String(), Err: err}
	}
	return fmt.Errorf("failed to write %s %q: %w", relation, key, err)
}

// =============================================================================
// READS (trial.Reader)
// =============================================================================

// Counts returns the row count of every relation.
func (s *Store) Counts(ctx context.Context) (trial.Counts, error) {
	var c trial.Counts
	targets := map[string]*int64{
		trial.RelationProject:   &c.Projects,
		trial.RelationCondition: &c.Conditions,
		trial.RelationTreatment: &c.Treatments,
		trial.RelationSubject:   &c.Subjects,
		trial.RelationSample:    &c.Samples,
		trial.RelationCellCount: &c.CellCounts,
	}
	for _, relation := range trial.Relations {
		if err := s.count(ctx, s.db, relation, targets[relation]); err != nil {
			return trial.Counts{}, err
		}
	}
	return c, nil
}

func (s *Store) count(ctx context.Context, db querier, relation string, dst *int64) error {
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+relation).Scan(dst)
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", relation, err)
	}
	return nil
}

// GetSubject retrieves a subject by composite key.
func (s *Store) GetSubject(ctx context.Context, key trial.SubjectKey) (*trial.Subject, error) {
	var (
		subj      trial.Subject
		treatment sql.NullString
		sex       string
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT project_id, subject_id, condition_name, treatment_id, age, sex
		FROM subject
		WHERE project_id = ? AND subject_id = ?`),
		key.ProjectID, key.SubjectID,
	).Scan(&subj.ProjectID, &subj.SubjectID, &subj.ConditionName, &treatment, &subj.Age, &sex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject %s: %w", key, trial.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject %s: %w", key, err)
	}
	subj.TreatmentID = treatment.String
	subj.Sex = trial.Sex(strings.TrimSpace(sex))
	return &subj, nil
}

// GetSample retrieves a sample by id.
func (s *Store) GetSample(ctx context.Context, id string) (*trial.Sample, error) {
	var (
		sample   trial.Sample
		timeFrom sql.NullInt64
		response sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT sample_id, project_id, subject_id, sample_type, time_from_treatment_start, response
		FROM sample
		WHERE sample_id = ?`), id,
	).Scan(&sample.SampleID, &sample.ProjectID, &sample.SubjectID, &sample.SampleType, &timeFrom, &response)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sample %q: %w", id, trial.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sample %q: %w", id, err)
	}
	if timeFrom.Valid {
		v := int(timeFrom.Int64)
		sample.TimeFromTreatmentStart = &v
	}
	sample.Response = trial.Response(strings.TrimSpace(response.String))
	return &sample, nil
}

// GetCellCount retrieves the cell counts of a sample.
func (s *Store) GetCellCount(ctx context.Context, id string) (*trial.CellCount, error) {
	var c trial.CellCount
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT sample_id, b_cell, cd8_t_cell, cd4_t_cell, nk_cell, monocyte
		FROM cell_count
		WHERE sample_id = ?`), id,
	).Scan(&c.SampleID, &c.BCell, &c.CD8TCell, &c.CD4TCell, &c.NKCell, &c.Monocyte)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cell count %q: %w", id, trial.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cell count %q: %w", id, err)
	}
	return &c, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

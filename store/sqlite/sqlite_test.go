package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trialdb/store/sqlite"
	"github.com/warp/trialdb/store/sqlstore"
	"github.com/warp/trialdb/trial"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func intPtr(v int) *int { return &v }

func row(index int, sample string) trial.Row {
	return trial.Row{
		Index:                  index,
		Project:                "prj1",
		Subject:                "sbj1",
		Condition:              "melanoma",
		Age:                    45,
		Sex:                    "M",
		Treatment:              "tr1",
		Sample:                 sample,
		SampleType:             "PBMC",
		TimeFromTreatmentStart: intPtr(0),
		Response:               "y",
		BCell:                  100,
		CD8TCell:               200,
		CD4TCell:               150,
		NKCell:                 50,
		Monocyte:               30,
	}
}

func load(t *testing.T, s *sqlite.Store, rows ...trial.Row) error {
	t.Helper()
	_, err := trial.NewLoader(s).Load(context.Background(), rows, trial.Normalize(rows))
	return err
}

func counts(t *testing.T, s *sqlite.Store) trial.Counts {
	t.Helper()
	c, err := trial.NewVerifier(s).Verify(context.Background())
	require.NoError(t, err)
	return c
}

// =============================================================================
// SCHEMA
// =============================================================================

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Equal(t, trial.Counts{}, counts(t, s))
}

func TestEnsureSchema_IncompatibleRelation(t *testing.T) {
	// GIVEN: A pre-existing "sample" table with the wrong shape
	// THEN: ConfigurationError, nothing else created

	s, err := sqlite.New(sqlite.MemoryPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB().Exec(`CREATE TABLE sample (x INTEGER)`)
	require.NoError(t, err)

	err = s.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, trial.ErrConfiguration)

	var n int
	require.NoError(t, s.DB().QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'project'`).Scan(&n))
	assert.Zero(t, n, "schema creation is atomic")
}

func TestEnsureSchema_RelationMissingConstraints(t *testing.T) {
	// GIVEN: A pre-existing relation with the right columns but a missing constraint
	// WHEN: Ensuring the schema
	// THEN: ConfigurationError naming the relation, and nothing is committed

	tests := []struct {
		name     string
		ddl      string
		relation string
	}{
		{
			name: "cell_count without checks",
			ddl: `CREATE TABLE cell_count (
				sample_id TEXT PRIMARY KEY REFERENCES sample(sample_id),
				b_cell INTEGER NOT NULL,
				cd8_t_cell INTEGER NOT NULL,
				cd4_t_cell INTEGER NOT NULL,
				nk_cell INTEGER NOT NULL,
				monocyte INTEGER NOT NULL
			)`,
			relation: "cell_count",
		},
		{
			name: "cell_count without not null",
			ddl: `CREATE TABLE cell_count (
				sample_id TEXT PRIMARY KEY REFERENCES sample(sample_id),
				b_cell INTEGER CHECK (b_cell >= 0),
				cd8_t_cell INTEGER CHECK (cd8_t_cell >= 0),
				cd4_t_cell INTEGER CHECK (cd4_t_cell >= 0),
				nk_cell INTEGER CHECK (nk_cell >= 0),
				monocyte INTEGER CHECK (monocyte >= 0)
			)`,
			relation: "cell_count",
		},
		{
			name: "subject without project reference",
			ddl: `CREATE TABLE subject (
				project_id TEXT NOT NULL,
				subject_id TEXT NOT NULL,
				condition_name TEXT NOT NULL REFERENCES disease_condition(condition_name),
				treatment_id TEXT REFERENCES treatment(treatment_id),
				age INTEGER NOT NULL CHECK (age >= 0),
				sex TEXT NOT NULL CHECK (sex IN ('M', 'F')),
				PRIMARY KEY (project_id, subject_id)
			)`,
			relation: "subject",
		},
		{
			name: "subject without sex check",
			ddl: `CREATE TABLE subject (
				project_id TEXT NOT NULL REFERENCES project(project_id),
				subject_id TEXT NOT NULL,
				condition_name TEXT NOT NULL REFERENCES disease_condition(condition_name),
				treatment_id TEXT REFERENCES treatment(treatment_id),
				age INTEGER NOT NULL CHECK (age >= 0),
				sex TEXT NOT NULL,
				PRIMARY KEY (project_id, subject_id)
			)`,
			relation: "subject",
		},
		{
			name: "sample without primary key",
			ddl: `CREATE TABLE sample (
				sample_id TEXT,
				project_id TEXT NOT NULL,
				subject_id TEXT NOT NULL,
				sample_type TEXT NOT NULL,
				time_from_treatment_start INTEGER,
				response TEXT CHECK (response IN ('y', 'n')),
				FOREIGN KEY (project_id, subject_id) REFERENCES subject(project_id, subject_id)
			)`,
			relation: "sample",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := sqlite.New(sqlite.MemoryPath)
			require.NoError(t, err)
			defer s.Close()

			_, err = s.DB().Exec(tt.ddl)
			require.NoError(t, err)

			err = s.EnsureSchema(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, trial.ErrConfiguration)
			assert.Contains(t, err.Error(), "relation "+tt.relation)

			var n int
			require.NoError(t, s.DB().QueryRow(
				`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'project'`).Scan(&n))
			assert.Zero(t, n, "schema creation is atomic")
			require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM `+tt.relation).Scan(&n))
			assert.Zero(t, n, "constraint checks leave no rows")
		})
	}
}

func TestEnsureSchema_ConstraintChecksLeaveNoRows(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Equal(t, trial.Counts{}, counts(t, s))

	r := row(1, "s1")
	r.Monocyte = -5
	assert.ErrorIs(t, load(t, s, r), trial.ErrConstraintViolation)
	assert.Equal(t, trial.Counts{}, counts(t, s))
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clinical_trial.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.FileExists(t, path)
}

func TestNew_FileURIWithQuery(t *testing.T) {
	// GIVEN: A "file:" URI that already carries a query string
	// WHEN: Opening it and ensuring the schema
	// THEN: Foreign keys are on, so the constraint checks pass and orphans are rejected

	path := filepath.Join(t.TempDir(), "uri.db")
	s, err := sqlite.New("file:" + path + "?cache=shared")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	assert.FileExists(t, path)

	err = s.WithTx(ctx, func(w trial.Writer) error {
		return w.InsertSample(ctx, trial.Sample{
			SampleID: "orphan", ProjectID: "prj1", SubjectID: "sbj1", SampleType: "PBMC",
		})
	})
	assert.ErrorIs(t, err, trial.ErrConstraintViolation)
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := sqlite.New("")
	assert.ErrorIs(t, err, trial.ErrConfiguration)
}

// =============================================================================
// LOAD SEMANTICS
// =============================================================================

func TestLoad_ExampleScenario(t *testing.T) {
	s := newStore(t)
	require.NoError(t, load(t, s, row(1, "s1")))

	assert.Equal(t, trial.Counts{
		Projects: 1, Conditions: 1, Treatments: 1,
		Subjects: 1, Samples: 1, CellCounts: 1,
	}, counts(t, s))

	ctx := context.Background()
	subj, err := s.GetSubject(ctx, trial.SubjectKey{ProjectID: "prj1", SubjectID: "sbj1"})
	require.NoError(t, err)
	assert.Equal(t, "tr1", subj.TreatmentID)
	assert.Equal(t, trial.SexMale, subj.Sex)

	sample, err := s.GetSample(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, trial.ResponseYes, sample.Response)
	require.NotNil(t, sample.TimeFromTreatmentStart)
	assert.Equal(t, 0, *sample.TimeFromTreatmentStart)

	cc, err := s.GetCellCount(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 530, cc.Total())
}

func TestLoad_OptionalFieldsStoredAsNull(t *testing.T) {
	s := newStore(t)
	r := row(1, "s1")
	r.Treatment = trial.NoTreatment
	r.Response = ""
	r.TimeFromTreatmentStart = nil
	require.NoError(t, load(t, s, r))

	ctx := context.Background()
	subj, err := s.GetSubject(ctx, r.SubjectKey())
	require.NoError(t, err)
	assert.Empty(t, subj.TreatmentID)
	assert.Zero(t, counts(t, s).Treatments)

	sample, err := s.GetSample(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sample.TimeFromTreatmentStart)
	assert.Equal(t, trial.ResponseNone, sample.Response)

	var nulls int
	require.NoError(t, s.DB().QueryRow(
		`SELECT COUNT(*) FROM sample WHERE response IS NULL AND time_from_treatment_start IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestLoad_SubjectLastWriteWins(t *testing.T) {
	s := newStore(t)
	second := row(2, "s2")
	second.Age = 46
	second.Sex = "F"
	require.NoError(t, load(t, s, row(1, "s1"), second))

	subj, err := s.GetSubject(context.Background(), second.SubjectKey())
	require.NoError(t, err)
	assert.Equal(t, 46, subj.Age)
	assert.Equal(t, trial.SexFemale, subj.Sex)
	assert.EqualValues(t, 1, counts(t, s).Subjects)
}

func TestLoad_RerunDuplicateSample_RollsBack(t *testing.T) {
	// GIVEN: s1 committed by a previous run
	// WHEN: A second run adds s2 and then s1 again
	// THEN: DuplicateKeyError and s2 is not visible

	s := newStore(t)
	require.NoError(t, load(t, s, row(1, "s1")))
	before := counts(t, s)

	fresh := row(1, "s2")
	fresh.Project = "prj2"
	err := load(t, s, fresh, row(2, "s1"))
	require.Error(t, err)

	var dup *trial.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, trial.RelationSample, dup.Relation)
	assert.Equal(t, "s1", dup.Key)

	assert.Equal(t, before, counts(t, s))
	_, err = s.GetSample(context.Background(), "s2")
	assert.ErrorIs(t, err, trial.ErrNotFound)
}

func TestLoad_RerunReferenceEntities_NoDuplicates(t *testing.T) {
	s := newStore(t)
	require.NoError(t, load(t, s, row(1, "s1")))
	require.NoError(t, load(t, s, row(1, "s2")))

	c := counts(t, s)
	assert.EqualValues(t, 1, c.Projects)
	assert.EqualValues(t, 1, c.Conditions)
	assert.EqualValues(t, 1, c.Treatments)
	assert.EqualValues(t, 2, c.Samples)
}

func TestLoad_NegativeCount_ConstraintViolation(t *testing.T) {
	s := newStore(t)
	bad := row(2, "s2")
	bad.NKCell = -5

	err := load(t, s, row(1, "s1"), bad)
	require.Error(t, err)

	var cErr *trial.ConstraintError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, trial.RelationCellCount, cErr.Relation)
	assert.Equal(t, "check", cErr.Constraint)
	assert.Equal(t, trial.Counts{}, counts(t, s))
}

func TestLoad_InvalidSexAndResponse_ConstraintViolation(t *testing.T) {
	for name, mutate := range map[string]func(*trial.Row){
		"sex":                func(r *trial.Row) { r.Sex = "X" },
		"lowercase sex":      func(r *trial.Row) { r.Sex = "m" },
		"response":           func(r *trial.Row) { r.Response = "maybe" },
		"uppercase response": func(r *trial.Row) { r.Response = "Y" },
		"age":                func(r *trial.Row) { r.Age = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			r := row(1, "s1")
			mutate(&r)
			assert.ErrorIs(t, load(t, s, r), trial.ErrConstraintViolation)
			assert.Equal(t, trial.Counts{}, counts(t, s))
		})
	}
}

func TestWriter_ForeignKeysEnforced(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(w trial.Writer) error {
		return w.InsertSample(ctx, trial.Sample{
			SampleID: "orphan", ProjectID: "prj1", SubjectID: "sbj1", SampleType: "PBMC",
		})
	})
	var cErr *trial.ConstraintError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "foreign key", cErr.Constraint)
}

func TestWithTx_CallbackErrorRollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(w trial.Writer) error {
		require.NoError(t, w.UpsertProject(ctx, "prj1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, counts(t, s).Projects)
}

// =============================================================================
// DIALECT
// =============================================================================

func TestDialect_ClassifyFallsBackToMessage(t *testing.T) {
	d := sqlite.Dialect{}
	assert.Equal(t, sqlstore.UniqueViolation, d.Classify(errors.New("UNIQUE constraint failed: sample.sample_id")))
	assert.Equal(t, sqlstore.CheckViolation, d.Classify(errors.New("CHECK constraint failed: monocyte >= 0")))
	assert.Equal(t, sqlstore.NoViolation, d.Classify(errors.New("disk I/O error")))
	assert.Equal(t, sqlstore.NoViolation, d.Classify(nil))
}

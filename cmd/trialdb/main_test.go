package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trialdb/config"
	"github.com/warp/trialdb/store/sqlite"
	"github.com/warp/trialdb/trial"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const csvHeader = "project,subject,condition,age,sex,treatment,response,sample,sample_type,time_from_treatment_start,b_cell,cd8_t_cell,cd4_t_cell,nk_cell,monocyte\n"

type workspace struct {
	dir    string
	dbPath string
}

// newWorkspace isolates a test in a temp dir with a SQLite database path.
func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	w := workspace{dir: dir, dbPath: filepath.Join(dir, "data", "trial.db")}
	t.Setenv(config.EnvDriver, config.DriverSQLite)
	t.Setenv(config.EnvSQLitePath, w.dbPath)
	t.Setenv(config.EnvLogMode, "prod")
	t.Setenv(config.EnvInput, "")
	return w
}

func (w workspace) writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(w.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(csvHeader+body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func dbCounts(t *testing.T, path string) trial.Counts {
	t.Helper()
	s, err := sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	return c
}

// =============================================================================
// LOAD COMMAND
// =============================================================================

func TestLoad_EndToEnd(t *testing.T) {
	// GIVEN: Three rows, two for the same subject, one with no treatment
	// WHEN: Running the default command
	// THEN: Progress and final counts are printed and the database matches

	w := newWorkspace(t)
	input := w.writeCSV(t, "cell-count.csv",
		"prj1,sbj1,melanoma,45,M,tr1,y,s1,PBMC,0,100,200,150,50,30\n"+
			"prj1,sbj1,melanoma,45,M,tr1,y,s2,PBMC,7,110,210,160,60,40\n"+
			"prj1,sbj2,healthy,30,F,none,,s3,PBMC,,10,20,30,40,50\n")

	out, err := run(t, "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Parsed 3 rows")
	assert.Contains(t, out, "Data loaded successfully!")
	assert.Contains(t, out, "Subjects loaded: 2")
	assert.Contains(t, out, "Samples loaded: 3")

	assert.Equal(t, trial.Counts{
		Projects: 1, Conditions: 2, Treatments: 1,
		Subjects: 2, Samples: 3, CellCounts: 3,
	}, dbCounts(t, w.dbPath))
}

func TestLoad_DefaultInputPath(t *testing.T) {
	w := newWorkspace(t)
	w.writeCSV(t, "cell-count.csv", "prj1,sbj1,melanoma,45,M,tr1,y,s1,PBMC,0,1,2,3,4,5\n")

	out, err := run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Samples loaded: 1")
}

func TestLoad_RerunSameFile_DuplicateKeyExit4(t *testing.T) {
	w := newWorkspace(t)
	input := w.writeCSV(t, "cell-count.csv", "prj1,sbj1,melanoma,45,M,tr1,y,s1,PBMC,0,1,2,3,4,5\n")

	_, err := run(t, "--input", input)
	require.NoError(t, err)
	before := dbCounts(t, w.dbPath)

	_, err = run(t, "--input", input)
	require.Error(t, err)
	assert.ErrorIs(t, err, trial.ErrDuplicateKey)
	assert.Equal(t, exitIntegrity, exitCodeFor(err))
	assert.Equal(t, before, dbCounts(t, w.dbPath))
}

func TestLoad_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		body string
		args func(input string) []string
		want int
	}{
		{
			name: "missing input",
			args: func(string) []string { return []string{"--input", "does-not-exist.csv"} },
			want: exitConfig,
		},
		{
			name: "malformed age",
			body: "prj1,sbj1,melanoma,old,M,tr1,y,s1,PBMC,0,1,2,3,4,5\n",
			args: func(input string) []string { return []string{"--input", input} },
			want: exitValidation,
		},
		{
			name: "negative count",
			body: "prj1,sbj1,melanoma,45,M,tr1,y,s1,PBMC,0,1,2,3,4,-5\n",
			args: func(input string) []string { return []string{"--input", input} },
			want: exitIntegrity,
		},
		{
			name: "unknown flag",
			args: func(string) []string { return []string{"--nope"} },
			want: exitConfig,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorkspace(t)
			input := w.writeCSV(t, fmt.Sprintf("in-%d.csv", i), tt.body)

			_, err := run(t, tt.args(input)...)
			require.Error(t, err)
			assert.Equal(t, tt.want, exitCodeFor(err), err.Error())
		})
	}
}

func TestLoad_InputErrorsLeaveStoreUntouched(t *testing.T) {
	// GIVEN: A database path that does not exist yet
	// WHEN: The input is missing or fails to parse
	// THEN: The run fails without creating the database or its directory

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing input", want: exitConfig},
		{name: "malformed row", body: "prj1,sbj1,melanoma,old,M,tr1,y,s1,PBMC,0,1,2,3,4,5\n", want: exitValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorkspace(t)
			input := "does-not-exist.csv"
			if tt.body != "" {
				input = w.writeCSV(t, "in.csv", tt.body)
			}

			out, err := run(t, "--input", input)
			require.Error(t, err)
			assert.Equal(t, tt.want, exitCodeFor(err))
			assert.NotContains(t, out, "Schema ready")

			_, statErr := os.Stat(w.dbPath)
			assert.ErrorIs(t, statErr, os.ErrNotExist)
			_, statErr = os.Stat(filepath.Dir(w.dbPath))
			assert.ErrorIs(t, statErr, os.ErrNotExist)
		})
	}
}

func TestLoad_UnknownDriver(t *testing.T) {
	newWorkspace(t)
	t.Setenv(config.EnvDriver, "oracle")

	_, err := run(t)
	assert.Equal(t, exitConfig, exitCodeFor(err))
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, exitOK, exitCodeFor(nil))
	assert.Equal(t, exitFailure, exitCodeFor(errors.New("disk full")))
	assert.Equal(t, exitValidation, exitCodeFor(&trial.LoadError{Row: 3, Err: &trial.ValidationError{Row: 3}}))
	assert.Equal(t, exitIntegrity, exitCodeFor(&trial.LoadError{Row: 1, Err: &trial.ConstraintError{Constraint: "check"}}))
	assert.Equal(t, exitConfig, exitCodeFor(withCode(exitConfig, errors.New("bad flag"))))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

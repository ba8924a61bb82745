/*
main.go - trialdb entry point

PURPOSE:
  Loads a clinical-trial cell-count CSV into a normalized relational
  database, and optionally serves the loaded data over HTTP.

COMMANDS:
  trialdb          Schema -> parse -> normalize -> load -> verify
  trialdb serve    HTTP server (greeting, summary, samples, metrics)

FLAGS:
  --config   YAML config file (default: trialdb.yaml, optional)
  --input    Input CSV path or s3://bucket/key (overrides config)

ENVIRONMENT:
  DB_USER, DB_PASS, TRIALDB_DRIVER, TRIALDB_SQLITE_PATH, TRIALDB_DSN,
  TRIALDB_INPUT, TRIALDB_HTTP_ADDR, TRIALDB_LOG_MODE, TRIALDB_S3_*
  See config/config.go.

EXIT CODES:
  0  success
  1  unexpected or store failure
  2  configuration error (missing input, unreachable store, bad schema)
  3  validation error (malformed row)
  4  duplicate key or constraint violation

SEE ALSO:
  - load.go: Default command
  - serve.go: HTTP server
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

const (
	exitOK         = 0
	exitFailure    = 1
	exitConfig     = 2
	exitValidation = 3
	exitIntegrity  = 4
)

// codedError pins an exit code on an error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

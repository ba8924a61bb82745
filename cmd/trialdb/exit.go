package main

import (
	"errors"

	"github.com/warp/trialdb/trial"
)

// exitCodeFor picks the process exit code for err.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case errors.Is(err, trial.ErrConfiguration):
		return exitConfig
	case errors.Is(err, trial.ErrValidation):
		return exitValidation
	case errors.Is(err, trial.ErrDuplicateKey), errors.Is(err, trial.ErrConstraintViolation):
		return exitIntegrity
	}
	return exitFailure
}

package cli

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitInput   = 2
	ExitUsage   = 3
	ExitDB      = 4
)

// cliError carries the exit code a failure maps to.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

func inputError(err error) error {
	return &cliError{code: ExitInput, err: err}
}

func usageError(err error) error {
	return &cliError{code: ExitUsage, err: err}
}

func dbError(err error) error {
	return &cliError{code: ExitDB, err: fmt.Errorf("database: %w", err)}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ExitFailure
}

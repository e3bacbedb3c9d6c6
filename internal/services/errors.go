package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrUnavailable   = errors.New("external service unavailable")
	ErrMalformed     = errors.New("malformed service response")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrDatabase      = errors.New("database error")
	ErrIntegrity     = errors.New("data integrity error")
)

// Wrap builds an error message that includes pipeline context while tagging it
// with the provided marker for later exit-code classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsMarked reports whether err already carries one of the taxonomy
// sentinels, meaning it needs no further classification.
func IsMarked(err error) bool {
	for _, marker := range []error{
		ErrConfiguration, ErrUnavailable, ErrMalformed, ErrValidation,
		ErrNotFound, ErrTimeout, ErrTransient, ErrDatabase, ErrIntegrity,
	} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// Exit codes surfaced by the orchestrator CLI.
const (
	ExitOK            = 0
	ExitConfiguration = 2
	ExitUnavailable   = 3
	ExitDatabase      = 4
)

// ExitCode maps a pipeline error to the process exit code the orchestrator
// should report.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return ExitConfiguration
	case errors.Is(err, ErrDatabase), errors.Is(err, ErrIntegrity):
		return ExitDatabase
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return ExitUnavailable
	default:
		return 1
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

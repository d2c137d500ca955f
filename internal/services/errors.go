package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnavailable       = errors.New("unavailable")
	ErrConnectivityFatal = errors.New("connectivity fatal")
	ErrStorageExhausted  = errors.New("storage exhausted")
	ErrTimeout           = errors.New("timeout")
	ErrConfiguration     = errors.New("configuration error")
	ErrValidation        = errors.New("validation error")
	ErrTransient         = errors.New("transient failure")
)

// Process exit codes reported by the daemon.
const (
	ExitOK           = 0
	ExitStartup      = 2
	ExitConnectivity = 3
	ExitStorage      = 4
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
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

// ConnectivityFatalError reports that the upstream source stayed unreachable
// for the configured number of consecutive attempts.
type ConnectivityFatalError struct {
	Attempts int
	LastErr  error
}

func (e *ConnectivityFatalError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("source unreachable after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("source unreachable after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ConnectivityFatalError) Unwrap() []error {
	if e.LastErr == nil {
		return []error{ErrConnectivityFatal}
	}
	return []error{ErrConnectivityFatal, e.LastErr}
}

// ExitCode maps the error that ended a daemon run to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConnectivityFatal):
		return ExitConnectivity
	case errors.Is(err, ErrStorageExhausted):
		return ExitStorage
	default:
		return ExitStartup
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

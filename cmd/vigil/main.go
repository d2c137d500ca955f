package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"vigil/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// daemonError marks errors returned by a daemon run so main can map them to
// the documented exit codes.
type daemonError struct{ err error }

func (e *daemonError) Error() string { return e.err.Error() }
func (e *daemonError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var de *daemonError
	if errors.As(err, &de) {
		return services.ExitCode(de.err)
	}
	return 1
}

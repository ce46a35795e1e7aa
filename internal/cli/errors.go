package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
)

// PrintError prints an error to stderr with appropriate formatting.
// If the error is a MigrationError, it uses the user-friendly format.
// Otherwise, it prints a simple error message.
func PrintError(err error) {
	if migErr := migerrors.AsMigrationError(err); migErr != nil {
		fmt.Fprintln(os.Stderr, migErr.UserMessage())
		if verbose {
			fmt.Fprintf(os.Stderr, "\nCode: %s\n", migErr.Code)
			if migErr.Cause != nil {
				fmt.Fprintf(os.Stderr, "Cause: %v\n", migErr.Cause)
			}
		}
		// Validation reports every problem, not just the first.
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap()[1:] {
				if me := migerrors.AsMigrationError(e); me != nil {
					fmt.Fprintf(os.Stderr, "\nError: %s\n", me.What)
				}
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// ExitCode maps an error returned by Execute to a process exit status:
// 0 success, 1 completed with errors, 2 fatal, 130 interrupted.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if migErr := migerrors.AsMigrationError(err); migErr != nil {
		return migErr.ExitCode()
	}
	if errors.Is(err, context.Canceled) {
		return migerrors.CategoryInterrupted.ExitCode()
	}
	return migerrors.CategoryFatal.ExitCode()
}

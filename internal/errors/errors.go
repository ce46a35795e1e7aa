// Package errors provides structured error types for the migrator.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for the migrator.
const (
	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"

	// Checkpoint errors
	CodeCheckpointVersion    Code = "CHECKPOINT_VERSION_MISMATCH"
	CodeCheckpointUnreadable Code = "CHECKPOINT_UNREADABLE"

	// Run errors
	CodeIntegrityBelowThreshold Code = "INTEGRITY_BELOW_THRESHOLD"
	CodePhaseFailed             Code = "PHASE_FAILED"
	CodeRunCompletedWithErrors  Code = "RUN_COMPLETED_WITH_ERRORS"
	CodeInterrupted             Code = "INTERRUPTED"
	CodeRunInProgress           Code = "RUN_IN_PROGRESS"

	// Source errors
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
)

// Category groups error codes for exit status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryUsage
	CategoryDegraded
	CategoryFatal
	CategoryInterrupted
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeConfigInvalid:           CategoryUsage,
	CodeConfigMissing:           CategoryUsage,
	CodeCheckpointVersion:       CategoryFatal,
	CodeCheckpointUnreadable:    CategoryFatal,
	CodeIntegrityBelowThreshold: CategoryFatal,
	CodePhaseFailed:             CategoryFatal,
	CodeRunCompletedWithErrors:  CategoryDegraded,
	CodeInterrupted:             CategoryInterrupted,
	CodeRunInProgress:           CategoryUsage,
	CodeSourceUnavailable:       CategoryFatal,
}

// ExitCode returns the process exit status for a category.
func (c Category) ExitCode() int {
	switch c {
	case CategoryDegraded:
		return 1
	case CategoryUsage, CategoryFatal:
		return 2
	case CategoryInterrupted:
		return 130
	default:
		return 1
	}
}

// MigrationError is the structured error type for the migrator.
type MigrationError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *MigrationError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category.
func (e *MigrationError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// ExitCode returns the process exit status for this error.
func (e *MigrationError) ExitCode() int {
	return e.Category().ExitCode()
}

// MarshalJSON implements json.Marshaler.
func (e *MigrationError) MarshalJSON() ([]byte, error) {
	type alias MigrationError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a MigrationError with the same code.
func (e *MigrationError) Is(target error) bool {
	t, ok := target.(*MigrationError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *MigrationError) WithCause(err error) *MigrationError {
	return &MigrationError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *MigrationError {
	return &MigrationError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check the config file and fix the invalid field",
	}
}

// ErrConfigMissing returns an error for missing configuration.
func ErrConfigMissing(field string) *MigrationError {
	return &MigrationError{
		Code: CodeConfigMissing,
		What: fmt.Sprintf("missing required configuration: %s", field),
		Why:  "This field is required but not set in configuration",
		Fix:  fmt.Sprintf("Add '%s' to the config file or set it through the environment", field),
	}
}

// ErrCheckpointVersion returns an error for a checkpoint written by an
// incompatible format version.
func ErrCheckpointVersion(path, got, want string) *MigrationError {
	return &MigrationError{
		Code: CodeCheckpointVersion,
		What: fmt.Sprintf("checkpoint %s has version %q, expected %q", path, got, want),
		Why:  "Checkpoints are never migrated between format versions",
		Fix:  "Delete the checkpoint and start a fresh run",
	}
}

// ErrCheckpointUnreadable returns an error for a checkpoint that cannot be
// read or parsed.
func ErrCheckpointUnreadable(path string) *MigrationError {
	return &MigrationError{
		Code: CodeCheckpointUnreadable,
		What: fmt.Sprintf("cannot read checkpoint %s", path),
		Fix:  "Check the file, or run without --resume",
	}
}

// ErrIntegrityBelowThreshold returns an error when verification scores the
// tree below the configured threshold.
func ErrIntegrityBelowThreshold(score, threshold float64) *MigrationError {
	return &MigrationError{
		Code: CodeIntegrityBelowThreshold,
		What: fmt.Sprintf("integrity score %.2f is below threshold %.2f", score, threshold),
		Why:  "Integrity verification is configured to halt on failure",
		Fix:  "Review the integrity report, fix the source content, or lower advanced.integrity_verification.threshold",
	}
}

// ErrPhaseFailed returns an error for a phase that aborted the run.
func ErrPhaseFailed(phase string) *MigrationError {
	return &MigrationError{
		Code: CodePhaseFailed,
		What: fmt.Sprintf("phase %s failed", phase),
		Fix:  "Fix the cause and rerun with --resume to skip completed phases",
	}
}

// ErrRunCompletedWithErrors returns an error for a run that finished but
// recorded errors.
func ErrRunCompletedWithErrors(count int) *MigrationError {
	return &MigrationError{
		Code: CodeRunCompletedWithErrors,
		What: fmt.Sprintf("migration completed with %d error(s)", count),
		Fix:  "See the report for the affected pages",
	}
}

// ErrInterrupted returns an error for a run stopped by a signal.
func ErrInterrupted() *MigrationError {
	return &MigrationError{
		Code: CodeInterrupted,
		What: "migration interrupted",
		Fix:  "Rerun with --resume to continue from the last checkpoint",
	}
}

// ErrRunInProgress returns an error when another process is already running
// against the same checkpoint.
func ErrRunInProgress(checkpointPath string, pid int) *MigrationError {
	return &MigrationError{
		Code: CodeRunInProgress,
		What: fmt.Sprintf("another migration (pid %d) is using checkpoint %s", pid, checkpointPath),
		Fix:  "Wait for it to finish, or point migration.checkpoint_path elsewhere",
	}
}

// ErrSourceUnavailable returns an error when the source content cannot be
// fetched.
func ErrSourceUnavailable(source string) *MigrationError {
	return &MigrationError{
		Code: CodeSourceUnavailable,
		What: fmt.Sprintf("cannot load content from %s", source),
		Fix:  "Check the source URL and credentials",
	}
}

// AsMigrationError attempts to convert an error to a MigrationError.
// Returns nil if the error is not a MigrationError.
func AsMigrationError(err error) *MigrationError {
	var me *MigrationError
	if stderrors.As(err, &me) {
		return me
	}
	return nil
}

// Wrap wraps a generic error into a MigrationError with unknown code.
func Wrap(err error, what string) *MigrationError {
	return &MigrationError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}

// Package errors provides centralized error definitions and error handling
// utilities for speckit. It defines domain-specific errors, error
// constructors with context wrapping, and classification helpers used to map
// failures onto process exit codes.
//
// # Error Types
//
// Domain-specific errors represent failures from specific subsystems:
//   - PrerequisiteError: required upstream artifact missing or unready
//   - DocumentError: structural violation in the task document
//   - ConflictError: the task document changed on disk mid-run
//   - ExecutionError: an external executor reported or caused a task failure
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewDocumentError("duplicate task identifier", errors.ErrDuplicateTaskID).WithLine(42)
//
//	err := errors.NewExecutionError("task failed", cause).WithTaskID("T012").WithPhase("User Story 1")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrUnknownDependency) { ... }
//
//	var docErr *errors.DocumentError
//	if errors.As(err, &docErr) { ... }
//
//	os.Exit(errors.ExitCode(err))
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Exit codes reported by the implement command.
const (
	ExitOK           = 0
	ExitPrerequisite = 1
	ExitExecution    = 2
	ExitMalformed    = 3
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Task document sentinel errors
var (
	// ErrTaskOutsidePhase indicates a task line appeared before any phase header.
	ErrTaskOutsidePhase = New("task line outside any phase")
	// ErrDuplicateTaskID indicates the same task identifier was defined twice.
	ErrDuplicateTaskID = New("duplicate task identifier")
	// ErrUnknownDependency indicates a dependency reference to an identifier
	// not defined earlier in the document (forward, cross-phase, or missing).
	ErrUnknownDependency = New("dependency references an identifier not yet defined")
	// ErrStoryTagMismatch indicates a task's story tag contradicts its phase.
	ErrStoryTagMismatch = New("story tag does not match owning phase")
	// ErrMalformedTaskLine indicates a line that starts like a task but cannot be parsed.
	ErrMalformedTaskLine = New("malformed task line")
	// ErrTaskNotFound indicates a task identifier is not present in the document.
	ErrTaskNotFound = New("task not found")
)

// Prerequisite sentinel errors
var (
	// ErrSpecMissing indicates the feature specification is absent or empty.
	ErrSpecMissing = New("specification not found")
	// ErrPlanMissing indicates the implementation plan is absent or empty.
	ErrPlanMissing = New("plan not found")
	// ErrTasksMissing indicates the task list document is absent.
	ErrTasksMissing = New("task list not found")
	// ErrChecklistIncomplete indicates one or more checklists have unchecked items.
	ErrChecklistIncomplete = New("checklist incomplete")
	// ErrFeatureDirNotFound indicates no feature directory could be resolved.
	ErrFeatureDirNotFound = New("feature directory not found")
	// ErrRunLocked indicates another orchestrator run holds the feature lock.
	ErrRunLocked = New("another run is in progress")
)

// Scheduling and execution sentinel errors
var (
	// ErrDependencyCycle indicates a circular dependency between tasks.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrTaskFailed indicates the external executor reported task failure.
	ErrTaskFailed = New("task failed")
	// ErrExecutorUnavailable indicates the executor command could not be run at all.
	ErrExecutorUnavailable = New("executor unavailable")
	// ErrDocumentModified indicates the task document changed on disk since parse.
	ErrDocumentModified = New("document modified since parse")
	// ErrRunAborted indicates the run stopped before all tasks were dispatched.
	ErrRunAborted = New("run aborted")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// SpeckitError is the base interface for all speckit errors.
// It extends the standard error interface with classification methods.
type SpeckitError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PrerequisiteError reports a missing or unready upstream artifact.
// It aborts the run before any task executes and maps to exit code 1.
//
// Example:
//
//	err := errors.NewPrerequisiteError("spec.md is required", errors.ErrSpecMissing).
//		WithArtifact("spec.md").
//		WithHelp("run the specify command to create it")
type PrerequisiteError struct {
	baseError
	Artifact string
	Path     string
	Help     string
}

// NewPrerequisiteError creates a new PrerequisiteError.
func NewPrerequisiteError(message string, cause error) *PrerequisiteError {
	return &PrerequisiteError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithArtifact names the missing artifact.
func (e *PrerequisiteError) WithArtifact(name string) *PrerequisiteError {
	e.Artifact = name
	return e
}

// WithPath records the path that was checked.
func (e *PrerequisiteError) WithPath(path string) *PrerequisiteError {
	e.Path = path
	return e
}

// WithHelp attaches a remediation hint shown to the user.
func (e *PrerequisiteError) WithHelp(help string) *PrerequisiteError {
	e.Help = help
	return e
}

// Error returns the formatted error message.
func (e *PrerequisiteError) Error() string {
	var parts []string
	if e.Artifact != "" {
		parts = append(parts, fmt.Sprintf("artifact=%s", e.Artifact))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "prerequisite error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("prerequisite error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PrerequisiteError) Is(target error) bool {
	if _, ok := target.(*PrerequisiteError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DocumentError reports a structural violation in the task document.
// Parsing stops at the first violation and no task executes; maps to exit
// code 3.
//
// Example:
//
//	err := errors.NewDocumentError("dependency T020 not defined", errors.ErrUnknownDependency).
//		WithLine(17).
//		WithTaskID("T012")
type DocumentError struct {
	baseError
	Line    int
	TaskID  string
	Section string
}

// NewDocumentError creates a new DocumentError.
func NewDocumentError(message string, cause error) *DocumentError {
	return &DocumentError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithLine records the 1-based document line of the violation.
func (e *DocumentError) WithLine(line int) *DocumentError {
	e.Line = line
	return e
}

// WithTaskID records the task identifier involved.
func (e *DocumentError) WithTaskID(id string) *DocumentError {
	e.TaskID = id
	return e
}

// WithSection records the phase or section name containing the violation.
func (e *DocumentError) WithSection(name string) *DocumentError {
	e.Section = name
	return e
}

// Error returns the formatted error message.
func (e *DocumentError) Error() string {
	var parts []string
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line=%d", e.Line))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Section != "" {
		parts = append(parts, fmt.Sprintf("section=%q", e.Section))
	}

	prefix := "malformed document"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("malformed document [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DocumentError) Is(target error) bool {
	if _, ok := target.(*DocumentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConflictError reports that the persisted task document was modified by
// another writer between parse time and a status write. The affected write
// fails; states recorded by earlier writes are unaffected.
type ConflictError struct {
	baseError
	Path string
}

// NewConflictError creates a new ConflictError.
func NewConflictError(message string, cause error) *ConflictError {
	return &ConflictError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithPath records the document path.
func (e *ConflictError) WithPath(path string) *ConflictError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *ConflictError) Error() string {
	prefix := "concurrent modification"
	if e.Path != "" {
		prefix = fmt.Sprintf("concurrent modification [path=%s]", e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConflictError) Is(target error) bool {
	if _, ok := target.(*ConflictError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ExecutionError reports a task execution failure, either an outcome the
// external executor reported or a transport failure reaching it. Recoverable
// at the run level: the task's story halts, independent stories continue.
//
// Example:
//
//	err := errors.NewExecutionError("executor reported failure", errors.ErrTaskFailed).
//		WithTaskID("T012").
//		WithPhase("Phase 3: User Story 1").
//		WithStory("US1")
type ExecutionError struct {
	baseError
	TaskID string
	Phase  string
	Story  string
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(message string, cause error) *ExecutionError {
	return &ExecutionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTaskID records the failing task's identifier.
func (e *ExecutionError) WithTaskID(id string) *ExecutionError {
	e.TaskID = id
	return e
}

// WithPhase records the owning phase name.
func (e *ExecutionError) WithPhase(name string) *ExecutionError {
	e.Phase = name
	return e
}

// WithStory records the owning story label.
func (e *ExecutionError) WithStory(label string) *ExecutionError {
	e.Story = label
	return e
}

// WithRetryable marks the error as a transient transport failure.
func (e *ExecutionError) WithRetryable(r bool) *ExecutionError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *ExecutionError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Story != "" {
		parts = append(parts, fmt.Sprintf("story=%s", e.Story))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%q", e.Phase))
	}

	prefix := "execution error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("execution error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ExecutionError) Is(target error) bool {
	if _, ok := target.(*ExecutionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError reports invalid input or configuration.
type ValidationError struct {
	baseError
	Field string
	Value string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, value, reason string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    reason,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Field: field,
		Value: value,
	}
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation error [field=%s, value=%q]: %s", e.Field, e.Value, e.message)
	}
	return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err is transient and worth retrying.
func IsRetryable(err error) bool {
	var se SpeckitError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether err is safe to show end users verbatim.
func IsUserFacing(err error) bool {
	var se SpeckitError
	if errors.As(err, &se) {
		return se.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity of err, defaulting to SeverityError for
// unclassified errors.
func GetSeverity(err error) Severity {
	var se SpeckitError
	if errors.As(err, &se) {
		return se.Severity()
	}
	return SeverityError
}

// ExitCode maps an error to the implement command's exit code contract.
// nil maps to 0, prerequisite failures to 1, malformed documents to 3, and
// everything that happened during execution to 2.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var preErr *PrerequisiteError
	if errors.As(err, &preErr) {
		return ExitPrerequisite
	}
	var docErr *DocumentError
	if errors.As(err, &docErr) {
		return ExitMalformed
	}
	return ExitExecution
}

// Wrap wraps an error with a message, preserving the error chain.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message, preserving the error chain.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

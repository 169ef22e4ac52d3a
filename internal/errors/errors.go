// Package errors provides structured error types for crew.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for crew.
const (
	// Workspace errors
	CodeNotInitialized     Code = "WORKSPACE_NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "WORKSPACE_ALREADY_INITIALIZED"

	// Coordination errors. These are expected, frequent conditions in a
	// multi-agent workspace and are returned, not panicked.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeNotReady          Code = "NOT_READY"
	CodeLockConflict      Code = "LOCK_CONFLICT"
	CodeCycleDetected     Code = "CYCLE_DETECTED"

	// Document errors
	CodeEntityNotFound  Code = "ENTITY_NOT_FOUND"
	CodeCorruptDocument Code = "CORRUPT_DOCUMENT"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeNotInitialized:     CategoryBadRequest,
	CodeAlreadyInitialized: CategoryConflict,
	CodeInvalidTransition:  CategoryBadRequest,
	CodeNotReady:           CategoryConflict,
	CodeLockConflict:       CategoryConflict,
	CodeCycleDetected:      CategoryBadRequest,
	CodeEntityNotFound:     CategoryNotFound,
	CodeCorruptDocument:    CategoryInternal,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	default:
		return 500
	}
}

// CrewError is the structured error type for crew.
type CrewError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *CrewError) Error() string {
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
func (e *CrewError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *CrewError) UserMessage() string {
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

// Category returns the error category for HTTP status mapping.
func (e *CrewError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *CrewError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *CrewError) MarshalJSON() ([]byte, error) {
	type alias CrewError
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

// Is reports whether target is a CrewError with the same code.
func (e *CrewError) Is(target error) bool {
	t, ok := target.(*CrewError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *CrewError) WithCause(err error) *CrewError {
	return &CrewError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrNotInitialized returns an error for an uninitialized crew workspace.
func ErrNotInitialized() *CrewError {
	return &CrewError{
		Code: CodeNotInitialized,
		What: "crew is not initialized in this directory",
		Why:  "No .crew/ directory found in the current path or its parents",
		Fix:  "Run 'crew init' to initialize crew in this directory",
	}
}

// ErrAlreadyInitialized returns an error when crew is already initialized.
func ErrAlreadyInitialized(path string) *CrewError {
	return &CrewError{
		Code: CodeAlreadyInitialized,
		What: "crew is already initialized",
		Why:  fmt.Sprintf("Found existing .crew/ directory at %s", path),
		Fix:  "Use 'crew init --force' to reinitialize, or remove .crew/ manually",
	}
}

// ErrInvalidTransition returns an error for a status edge not in the allowed
// graph. The rejected source/target pair is always named; transitions are
// never silently coerced.
func ErrInvalidTransition(entityID, from, to string) *CrewError {
	return &CrewError{
		Code: CodeInvalidTransition,
		What: fmt.Sprintf("invalid transition for %s: %s -> %s", entityID, from, to),
		Why:  "The requested status change is not an allowed edge in the lifecycle graph",
		Fix:  fmt.Sprintf("Check 'crew show %s' for the current status and valid next states", entityID),
	}
}

// ErrNotReady returns an error when a task's dependencies are incomplete.
func ErrNotReady(taskID string, unmet []string) *CrewError {
	return &CrewError{
		Code: CodeNotReady,
		What: fmt.Sprintf("task %s is not ready to start", taskID),
		Why:  fmt.Sprintf("Incomplete dependencies: %s", strings.Join(unmet, ", ")),
		Fix:  "Complete the blocking tasks first, or run 'crew deps' to inspect the graph",
	}
}

// ErrLockConflict returns an error when requested paths are held by another
// live owner.
func ErrLockConflict(taskID string, paths []string) *CrewError {
	return &CrewError{
		Code: CodeLockConflict,
		What: fmt.Sprintf("task %s could not acquire file locks", taskID),
		Why:  fmt.Sprintf("Paths held by other tasks: %s", strings.Join(paths, ", ")),
		Fix:  "Retry later, or run 'crew lock status' to see the holders",
	}
}

// ErrCycleDetected returns an error when a dependency edit would create a
// cycle.
func ErrCycleDetected(taskID string, cycle []string) *CrewError {
	return &CrewError{
		Code: CodeCycleDetected,
		What: fmt.Sprintf("dependency edit on %s would create a cycle", taskID),
		Why:  fmt.Sprintf("Cycle path: %s", strings.Join(cycle, " -> ")),
		Fix:  "Remove one of the dependencies in the cycle",
	}
}

// ErrEntityNotFound returns an error when a referenced document is missing.
func ErrEntityNotFound(kind, id string) *CrewError {
	return &CrewError{
		Code: CodeEntityNotFound,
		What: fmt.Sprintf("%s %s not found", kind, id),
		Why:  fmt.Sprintf("No %s document with this ID exists in the workspace", kind),
		Fix:  "Run 'crew status' to list known entities",
	}
}

// ErrCorruptDocument returns an error when a document cannot be parsed.
// This is a local, recoverable condition: derived data can be rebuilt from
// the surviving documents.
func ErrCorruptDocument(path string, cause error) *CrewError {
	return &CrewError{
		Code:  CodeCorruptDocument,
		What:  fmt.Sprintf("document %s is unreadable", path),
		Why:   "The document exists but could not be parsed",
		Fix:   "Restore the document from version control, or remove it and rebuild indexes",
		Cause: cause,
	}
}

// Is reports whether err is a CrewError carrying the given code.
func Is(err error, code Code) bool {
	ce := AsCrewError(err)
	return ce != nil && ce.Code == code
}

// AsCrewError attempts to convert an error to a CrewError.
// Returns nil if the error is not a CrewError.
func AsCrewError(err error) *CrewError {
	var crewErr *CrewError
	if As(err, &crewErr) {
		return crewErr
	}
	return nil
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return asError(err, target)
}

// asError implements errors.As behavior.
func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if crewErr, ok := err.(*CrewError); ok {
		if t, ok := target.(**CrewError); ok {
			*t = crewErr
			return true
		}
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into a CrewError with unknown code.
func Wrap(err error, what string) *CrewError {
	return &CrewError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Formula and dependency errors.
//
// Errors raised while a field definition is being validated (lex, parse,
// bind, cycle check) are fatal to the definition and map to 400-class
// responses. Errors raised while evaluating a record are local to that cell:
// they are stored as the cell's value and never abort the surrounding pass.
// SchedulerInvariantError is the exception, it aborts the pass because it
// means the dependency graph and the evaluation order have diverged.

// LexError reports an invalid or unterminated token in formula source text.
type LexError struct {
	Offset  int
	Char    rune
	Message string
}

func (e *LexError) Error() string {
	if e.Char != 0 {
		return fmt.Sprintf("lex error at offset %d: %s (%q)", e.Offset, e.Message, e.Char)
	}
	return fmt.Sprintf("lex error at offset %d: %s", e.Offset, e.Message)
}

func (e *LexError) HTTPStatus() int { return http.StatusBadRequest }
func (e *LexError) Code() string    { return "LEX_ERROR" }

// ParseError reports a grammar violation in a token stream.
type ParseError struct {
	Expected string
	Found    string
	Offset   int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: expected %s, found %s", e.Offset, e.Expected, e.Found)
}

func (e *ParseError) HTTPStatus() int { return http.StatusBadRequest }
func (e *ParseError) Code() string    { return "PARSE_ERROR" }

// UnknownFieldError reports a {Field Name} reference that does not resolve
// against the table's field catalog.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Name)
}

func (e *UnknownFieldError) HTTPStatus() int { return http.StatusBadRequest }
func (e *UnknownFieldError) Code() string    { return "UNKNOWN_FIELD" }

// UnknownFunctionError reports a call to a function not present in the
// function library.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %q", e.Name)
}

func (e *UnknownFunctionError) HTTPStatus() int { return http.StatusBadRequest }
func (e *UnknownFunctionError) Code() string    { return "UNKNOWN_FUNCTION" }

// ArgumentError reports a function call whose arguments violate the
// function's arity or type contract.
type ArgumentError struct {
	Function string
	Expected string
	Got      string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Function, e.Expected, e.Got)
}

func (e *ArgumentError) HTTPStatus() int { return http.StatusBadRequest }
func (e *ArgumentError) Code() string    { return "ARGUMENT_ERROR" }

// TypeMismatchError reports an operator applied to operands of incompatible
// types. Numeric strings are deliberately not coerced.
type TypeMismatchError struct {
	Op    string
	Left  string
	Right string
}

func (e *TypeMismatchError) Error() string {
	if e.Right == "" {
		return fmt.Sprintf("type mismatch: operator %q cannot be applied to %s", e.Op, e.Left)
	}
	return fmt.Sprintf("type mismatch: operator %q cannot be applied to %s and %s", e.Op, e.Left, e.Right)
}

func (e *TypeMismatchError) HTTPStatus() int { return http.StatusBadRequest }
func (e *TypeMismatchError) Code() string    { return "TYPE_MISMATCH" }

// DivisionByZeroError reports a division by zero during evaluation.
type DivisionByZeroError struct{}

func (e *DivisionByZeroError) Error() string   { return "division by zero" }
func (e *DivisionByZeroError) HTTPStatus() int { return http.StatusBadRequest }
func (e *DivisionByZeroError) Code() string    { return "DIVISION_BY_ZERO" }

// CircularDependencyError rejects a field definition that would close a
// dependency cycle. Path lists the field ids around the cycle, starting and
// ending with the offending field.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

func (e *CircularDependencyError) HTTPStatus() int { return http.StatusBadRequest }
func (e *CircularDependencyError) Code() string    { return "CIRCULAR_DEPENDENCY" }

// LinkedFieldMissingError reports a lookup/rollup whose link or target field
// no longer resolves at evaluation time.
type LinkedFieldMissingError struct {
	FieldID string
}

func (e *LinkedFieldMissingError) Error() string {
	return fmt.Sprintf("linked field '%s' is missing", e.FieldID)
}

func (e *LinkedFieldMissingError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *LinkedFieldMissingError) Code() string    { return "LINKED_FIELD_MISSING" }

// TimeoutError reports an evaluation that exhausted its step budget or
// wall-clock deadline.
type TimeoutError struct {
	FieldID string
}

func (e *TimeoutError) Error() string {
	if e.FieldID != "" {
		return fmt.Sprintf("evaluation of field '%s' timed out", e.FieldID)
	}
	return "evaluation timed out"
}

func (e *TimeoutError) HTTPStatus() int { return http.StatusRequestTimeout }
func (e *TimeoutError) Code() string    { return "TIMEOUT" }

// SchedulerInvariantError indicates the recompute scheduler asked for a
// computed field before its dependencies were evaluated. This is a bug in the
// ordering logic, never a user error.
type SchedulerInvariantError struct {
	FieldID string
	Detail  string
}

func (e *SchedulerInvariantError) Error() string {
	return fmt.Sprintf("scheduler invariant violated for field '%s': %s", e.FieldID, e.Detail)
}

func (e *SchedulerInvariantError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *SchedulerInvariantError) Code() string    { return "SCHEDULER_INVARIANT" }

// IsCircularDependency checks if an error is a CircularDependencyError
func IsCircularDependency(err error) bool {
	var circular *CircularDependencyError
	return errors.As(err, &circular)
}

// IsSchedulerInvariant checks if an error is a SchedulerInvariantError
func IsSchedulerInvariant(err error) bool {
	var invariant *SchedulerInvariantError
	return errors.As(err, &invariant)
}

// IsTimeout checks if an error is a TimeoutError
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

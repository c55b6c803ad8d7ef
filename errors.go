package beacon

import (
	"errors"
	"fmt"
)

// Standard sentinel errors.
var (
	// ErrNotFound is returned when a requested model does not exist.
	ErrNotFound = errors.New("beacon: model not found")

	// ErrDefinition is matched by every DefinitionError.
	ErrDefinition = errors.New("beacon: invalid schema definition")

	// ErrMorphToNotImplemented is returned when a nested morphTo input
	// carries a create or update operation.
	ErrMorphToNotImplemented = errors.New("beacon: nested create and update are not implemented for morphTo relations")

	// ErrSubscriptionFiltered is returned by subscription resolvers that
	// withhold a broadcast from a subscriber.
	ErrSubscriptionFiltered = errors.New("beacon: broadcast filtered for subscriber")
)

// DefinitionError reports a schema or directive misconfiguration detected
// while the schema is built. Its message is shown to schema authors verbatim.
type DefinitionError struct {
	msg string
}

// Error returns the error string.
func (e *DefinitionError) Error() string {
	return e.msg
}

// Is reports whether the target error matches DefinitionError.
// This allows errors.Is(defErr, ErrDefinition) to return true.
func (e *DefinitionError) Is(err error) bool {
	return err == ErrDefinition
}

// NewDefinitionError returns a DefinitionError with a formatted message.
func NewDefinitionError(format string, args ...any) *DefinitionError {
	return &DefinitionError{msg: fmt.Sprintf(format, args...)}
}

// IsDefinitionError returns true if the error is a DefinitionError.
func IsDefinitionError(err error) bool {
	if err == nil {
		return false
	}
	var e *DefinitionError
	return errors.As(err, &e)
}

// NotFoundError reports a model that does not exist.
type NotFoundError struct {
	// Type is the model type name.
	Type string
	// Key is the key that was looked up, nil when unknown.
	Key any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("beacon: %s not found (id=%v)", e.Type, e.Key)
	}
	return fmt.Sprintf("beacon: %s not found", e.Type)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// NewNotFoundError returns a NotFoundError for a model of type typ looked
// up by key.
func NewNotFoundError(typ string, key any) *NotFoundError {
	return &NotFoundError{Type: typ, Key: key}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ValidationError holds the messages produced by validating one input
// argument. Path is the dotted argument path, e.g. "input.email".
type ValidationError struct {
	Path     string
	Messages []string
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("beacon: validation failed for %q", e.Path)
	}
	return fmt.Sprintf("beacon: validation failed for %q: %s", e.Path, e.Messages[0])
}

// NewValidationError returns a new ValidationError for the given argument path.
func NewValidationError(path string, messages ...string) *ValidationError {
	return &ValidationError{Path: path, Messages: messages}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("beacon: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// QueryError wraps a store read error with additional context.
type QueryError struct {
	Entity string // Model type being queried
	Op     string // Operation (e.g., "select", "count")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("beacon: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("beacon: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// MutationError wraps a store write error with additional context.
type MutationError struct {
	Entity string // Model type being mutated
	Op     string // Operation (e.g., "create", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("beacon: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// PrivacyError represents a privacy policy violation.
type PrivacyError struct {
	Entity string // Model type
	Op     string // Operation
	Rule   string // Rule that denied the operation
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("beacon: privacy denied %s on %s (rule: %s)", e.Op, e.Entity, e.Rule)
	}
	return fmt.Sprintf("beacon: privacy denied %s on %s", e.Op, e.Entity)
}

// NewPrivacyError returns a new PrivacyError.
func NewPrivacyError(entity, op, rule string) *PrivacyError {
	return &PrivacyError{Entity: entity, Op: op, Rule: rule}
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}

// ConstraintError reports a write the database rejected because it
// violated a constraint.
type ConstraintError struct {
	// Constraint is the kind of constraint, e.g. "unique".
	Constraint string
	Err        error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("beacon: %s constraint violated: %v", e.Constraint, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

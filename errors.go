package tangelo

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by this package is an *OpError whose
// Kind is one of these, so callers can use errors.Is.
var (
	// ErrCommunication indicates the tool or the OS could not be reached
	ErrCommunication = errors.New("communication error")

	// ErrConfig indicates a config file is missing, unreadable or malformed
	ErrConfig = errors.New("config error")

	// ErrWrite indicates a config file could not be persisted
	ErrWrite = errors.New("write error")

	// ErrProtocol indicates the tool answered in a way that cannot be
	// interpreted
	ErrProtocol = errors.New("protocol violation")

	// ErrUnknownInstance indicates an id that the registry does not track
	ErrUnknownInstance = errors.New("unknown instance")

	// ErrInvalidTransition indicates a forbidden mode transition
	ErrInvalidTransition = errors.New("invalid mode transition")
)

// OpError represents an error from a tangelo operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Path is the config path or instance id involved
	Path string
	// Kind is one of the Err* sentinels
	Kind error
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tangelo %s %q: %v", e.Op.String(), e.Path, e.Kind)
	}
	return fmt.Sprintf("tangelo %s %q: %v: %v", e.Op.String(), e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause for error chain inspection
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(op Operation, path string, kind, err error) *OpError {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// ErrorKind returns a short label for the kind of err, for logs and metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCommunication):
		return "communication"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrWrite):
		return "write"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrUnknownInstance):
		return "unknown_instance"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "other"
	}
}

// MultiError aggregates per-instance errors from a reconcile
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred; first: %v", len(m.Errors), m.Errors[0])
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

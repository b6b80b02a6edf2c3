package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// PluginError is the human-readable error raised by plugins and their lifecycle.
// The message is safe to show to end users.
type PluginError struct {
	Plugin  string
	Message string
}

func NewPluginError(plugin, msg string) error {
	return &PluginError{Plugin: plugin, Message: msg}
}

func (err PluginError) Error() string {
	if err.Plugin == "" {
		return err.Message
	}
	return err.Plugin + ": " + err.Message
}

// IsPluginError reports whether the cause of err is a *PluginError.
func IsPluginError(err error) bool {
	_, ok := errors.Cause(err).(*PluginError)
	return ok
}

// ErrNotFound is returned (possibly wrapped) by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// ErrForbidden is returned by services when the acting user lacks a capability.
var ErrForbidden = errors.New("permission denied")

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

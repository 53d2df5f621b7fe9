package core

import (
	"errors"
)

// Store errors
var (
	ErrRunNotFound       = errors.New("training: run not found")
	ErrRunNotOwned       = errors.New("training: run not owned by this worker")
	ErrRunStopped        = errors.New("training: run was stopped")
	ErrInvalidTransition = errors.New("training: invalid status transition")
	ErrDatasetNotFound   = errors.New("training: dataset not found")
	ErrTemplateNotFound  = errors.New("training: model template not found")
)

// ConfigError marks a configuration error: the run's inputs can never
// succeed as given (missing feature or target columns, unknown template,
// malformed hyperparameters).
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a configuration error from a message.
func NewConfigError(msg string) error {
	return &ConfigError{Err: errors.New(msg)}
}

// AsConfigError wraps err to mark it as a configuration error.
func AsConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Err: err}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

package cache

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned (wrapped) by constructors given nonsensical parameters.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ConfigError describes which parameter of which component was rejected.
type ConfigError struct {
	Component string
	Field     string
	Message   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", ErrInvalidConfiguration, e.Component, e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidConfiguration) succeed.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

func configError(component, field, message string) error {
	return &ConfigError{Component: component, Field: field, Message: message}
}

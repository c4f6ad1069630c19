package retention

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned, wrapped in a *ConfigError, whenever a
// policy or calendar is constructed from values it cannot honour.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrUnknownTier is returned for Tier values outside Daily, Weekly and Monthly.
var ErrUnknownTier = errors.New("unknown tier")

// ConfigError names the field and value that failed validation.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %q: %s", e.Field, fmt.Sprint(e.Value), e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

func invalid(field string, value any, reason string) error {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

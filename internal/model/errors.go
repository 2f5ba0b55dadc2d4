package model

import (
	"fmt"
)

// ConfigurationError indicates a feature record is missing a field its
// category requires. It is fatal to the single call, not to the process.
type ConfigurationError struct {
	Category Category
	Field    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required field %q for category %s", e.Field, e.Category)
}

// TransportError indicates a network or timeout failure talking to the
// scorer or the alert channel. Recovered locally, never propagated out of a
// pipeline run.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError indicates the scorer or store returned an
// unexpected shape. Treated identically to TransportError by callers.
type MalformedResponseError struct {
	Op     string
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Detail)
}

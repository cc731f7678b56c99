package config

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrInvalidYAML    = errors.New("invalid YAML syntax")
)

// ValidationError locates a validation failure within the config tree:
// which section (llm, engine, queue, ...) and optionally which field.
type ValidationError struct {
	Section string
	Field   string
	Err     error
}

func NewValidationError(section, field string, err error) *ValidationError {
	return &ValidationError{Section: section, Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("section '%s': %v", e.Section, e.Err)
	}
	return fmt.Sprintf("section '%s': field '%s': %v", e.Section, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// LoadError ties a loading failure to the file that caused it.
type LoadError struct {
	File string
	Err  error
}

func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

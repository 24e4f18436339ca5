package service

import (
	"fmt"
	"strings"
)

type ErrorType int

const (
	ErrFileNotFound ErrorType = iota
	ErrValidation
	ErrBusy
	ErrEngine
	ErrUnknown
)

// StudioError carries a category and optional key/value context so API
// handlers can map failures to status codes without string matching.
type StudioError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *StudioError {
	return &StudioError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *StudioError {
	return &StudioError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *StudioError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *StudioError) Unwrap() error {
	return e.Cause
}

func (e *StudioError) WithContext(key string, value any) *StudioError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrFileNotFound:
		return "FILE_NOT_FOUND"
	case ErrValidation:
		return "VALIDATION"
	case ErrBusy:
		return "BUSY"
	case ErrEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// TypeOf extracts the category from any error, defaulting to ErrUnknown.
func TypeOf(err error) ErrorType {
	if se, ok := err.(*StudioError); ok {
		return se.Type
	}
	return ErrUnknown
}

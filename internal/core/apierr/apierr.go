// Package apierr defines the error taxonomy shared by the search core and the HTTP layer.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidArgument marks malformed or contradictory request input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a direct collection or item lookup that did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrConfigurationConflict marks an inconsistent collection registry.
	ErrConfigurationConflict = errors.New("configuration conflict")
	// ErrBackendUnavailable marks a failed store query.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigurationConflict, fmt.Sprintf(format, args...))
}

// Backend wraps a store failure so that it keeps both the taxonomy and the cause.
func Backend(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, fmt.Sprintf(format, args...), err)
}

// Code returns the STAC API error code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "BadRequest"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrConfigurationConflict):
		return "ConfigurationConflict"
	case errors.Is(err, ErrBackendUnavailable):
		return "BackendUnavailable"
	default:
		return "InternalServerError"
	}
}

func Status(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write renders err as a JSON error document and returns the status written.
func Write(w http.ResponseWriter, err error) int {
	status := Status(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	}{Code: Code(err), Description: err.Error()})
	return status
}

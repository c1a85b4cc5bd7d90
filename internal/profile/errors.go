package profile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownProfile is returned when no profile has the requested name.
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrNoProfileDetected is returned when no profile's detect markers match.
	ErrNoProfileDetected = errors.New("could not detect statement format")
)

// ValidationError lists every problem found in a profile definition.
type ValidationError struct {
	Profile  string
	Problems []string
}

func (e *ValidationError) Error() string {
	name := e.Profile
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("profile %s is invalid: %s", name, strings.Join(e.Problems, "; "))
}

// UnknownError carries the requested name and close matches.
type UnknownError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown profile %q", e.Name)
	}
	return fmt.Sprintf("unknown profile %q (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *UnknownError) Unwrap() error { return ErrUnknownProfile }

package ux

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds a suggestion to errors that carry no error code of
// their own. Coded errors already list suggestions and pass through.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "Suggestions:") {
		return err
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "no such file or directory") {
		switch {
		case strings.Contains(errMsg, "autoheal.yaml"):
			return NewErrorWithSuggestion(err,
				"Create a configuration with 'autoheal config init'")
		case strings.Contains(errMsg, ".json"):
			return NewErrorWithSuggestion(err,
				"Check the path; incidents and fixes are read as JSON files")
		}
	}

	if strings.Contains(errMsg, "permission denied") {
		return NewErrorWithSuggestion(err,
			"Check file permissions for the store and patch directories")
	}

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no route to host") {
		return NewErrorWithSuggestion(err,
			"Check monitor.url and executor.url in autoheal.yaml and that the services are reachable")
	}

	if strings.Contains(errMsg, "API key") || strings.Contains(errMsg, "authentication") {
		return NewErrorWithSuggestion(err,
			"Set your API key environment variable (e.g., ANTHROPIC_API_KEY, OPENAI_API_KEY)")
	}

	if strings.Contains(errMsg, "test command") {
		return NewErrorWithSuggestion(err,
			"Set tests.command in autoheal.yaml, e.g. [\"node\", \"--test\", \"{file}\"]")
	}

	if strings.Contains(errMsg, "chrome") || strings.Contains(errMsg, "browser") {
		return NewErrorWithSuggestion(err,
			"Install Chrome or set browser.remote_url to a running DevTools endpoint")
	}

	return err
}

// FormatError provides consistent error formatting with context
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}

	enhanced := EnhanceError(err)
	if context != "" {
		return fmt.Errorf("%s: %w", context, enhanced)
	}
	return enhanced
}

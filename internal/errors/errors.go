package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Oracle response errors (PARSE-001 to PARSE-099)
	ErrCodeParseInvalidJSON   ErrorCode = "PARSE-001"
	ErrCodeParseNotObject     ErrorCode = "PARSE-002"
	ErrCodeParseInvalidField  ErrorCode = "PARSE-003"
	ErrCodeParseEmptyResponse ErrorCode = "PARSE-004"

	// Patch engine errors (PATCH-001 to PATCH-099)
	ErrCodePatchMismatch ErrorCode = "PATCH-001"
	ErrCodePatchRange    ErrorCode = "PATCH-002"
	ErrCodePatchOverlap  ErrorCode = "PATCH-003"
	ErrCodePatchNoFile   ErrorCode = "PATCH-004"

	// Validation errors (VALIDATE-001 to VALIDATE-099)
	ErrCodeValidationFailed ErrorCode = "VALIDATE-001"
	ErrCodeValidationNoTest ErrorCode = "VALIDATE-002"
	ErrCodeValidationRunner ErrorCode = "VALIDATE-003"

	// Deployment errors (DEPLOY-001 to DEPLOY-099)
	ErrCodeDeployPendingReview ErrorCode = "DEPLOY-001"
	ErrCodeDeployFailed        ErrorCode = "DEPLOY-002"
	ErrCodeDeployRolledBack    ErrorCode = "DEPLOY-003"
	ErrCodeDeployRecordMissing ErrorCode = "DEPLOY-004"

	// Oracle provider errors (ORACLE-001 to ORACLE-099)
	ErrCodeOracleNotFound  ErrorCode = "ORACLE-001"
	ErrCodeOracleConfig    ErrorCode = "ORACLE-002"
	ErrCodeOracleAuth      ErrorCode = "ORACLE-003"
	ErrCodeOracleAPI       ErrorCode = "ORACLE-004"
	ErrCodeOracleRateLimit ErrorCode = "ORACLE-005"
	ErrCodeOracleTimeout   ErrorCode = "ORACLE-006"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
	ErrCodeFileMarshal     ErrorCode = "IO-006"
)

// HealError represents an enhanced error with code, suggestions, and documentation
type HealError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *HealError) Error() string {
	var b strings.Builder

	// Error code and message
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	// Add cause if present
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	// Add suggestions
	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	// Add documentation link
	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *HealError) Unwrap() error {
	return e.Cause
}

// New creates a new HealError
func New(code ErrorCode, message string) *HealError {
	return &HealError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new HealError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *HealError {
	return &HealError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *HealError) WithSuggestion(suggestion string) *HealError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *HealError) WithSuggestions(suggestions ...string) *HealError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *HealError) WithDocs(url string) *HealError {
	e.DocsURL = url
	return e
}

// Code returns the ErrorCode of err if it is (or wraps) a HealError.
func Code(err error) (ErrorCode, bool) {
	for err != nil {
		if he, ok := err.(*HealError); ok {
			return he.Code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}

// Common error constructors for frequently used errors

// NewResponseParseError wraps a rejected oracle response.
func NewResponseParseError(code ErrorCode, cause error) *HealError {
	return Wrap(code, "fix oracle returned an unusable response", cause).
		WithSuggestion("Re-run the heal command; responses are never partially accepted").
		WithSuggestion("Check the oracle model follows the JSON schema in the system prompt").
		WithDocs("https://github.com/felixgeelhaar/autoheal#fix-response-contract")
}

// NewPatchMismatchError wraps a stale or hallucinated patch target.
func NewPatchMismatchError(cause error) *HealError {
	return Wrap(ErrCodePatchMismatch, "patch does not match the current source", cause).
		WithSuggestion("Regenerate the fix against the current revision of the routine").
		WithSuggestion("Run 'autoheal diff' to inspect the expected and actual text")
}

// NewPatchRangeError wraps a patch whose line range is outside its file.
func NewPatchRangeError(cause error) *HealError {
	return Wrap(ErrCodePatchRange, "patch line range is out of bounds", cause).
		WithSuggestion("Regenerate the fix; the oracle addressed lines that do not exist")
}

// NewValidationFailedError reports a fix whose generated tests did not pass.
func NewValidationFailedError(passed, total int) *HealError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("fix validation failed: %d/%d tests passed", passed, total)).
		WithSuggestion("Inspect the failures with 'autoheal validate --format json'").
		WithSuggestion("Unvalidated fixes are never deployed")
}

// NewOracleAuthError creates an oracle authentication error
func NewOracleAuthError(provider string) *HealError {
	return New(ErrCodeOracleAuth, fmt.Sprintf("authentication failed for oracle provider: %s", provider)).
		WithSuggestion(fmt.Sprintf("Set the %s_API_KEY environment variable", strings.ToUpper(provider))).
		WithSuggestion("Check if your API key is valid and not expired")
}

// NewOracleRateLimitError creates a rate limit error
func NewOracleRateLimitError(provider string, retryAfter string) *HealError {
	msg := fmt.Sprintf("rate limit exceeded for oracle provider: %s", provider)
	if retryAfter != "" {
		msg += fmt.Sprintf(" (retry after: %s)", retryAfter)
	}

	return New(ErrCodeOracleRateLimit, msg).
		WithSuggestion("Wait before retrying the request").
		WithSuggestion("Lower oracle.requests_per_minute in autoheal.yaml")
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(details string) *HealError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithSuggestion("Run 'autoheal config init' to write a valid default configuration").
		WithSuggestion("Run 'autoheal config validate' after each edit")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *HealError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *HealError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}

// Package exitcode maps command errors onto process exit codes so scripts
// can tell a rejected fix from a rolled back deployment.
package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/autoheal/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	Success      = 0
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationFailed means a fix did not apply or its tests failed.
	ValidationFailed = 3

	// DeployFailed means a rollout was rolled back or failed.
	DeployFailed = 4

	AuthError    = 5
	NetworkError = 6

	// PendingReview means a fix was held below the confidence gate.
	PendingReview = 7

	// ConfigError indicates a missing or invalid autoheal.yaml.
	ConfigError = 8

	// Interrupted follows the shell convention for SIGINT.
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode returns the exit code for err. Coded errors map by code
// family; anything else is matched on its message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if code, ok := errors.Code(err); ok {
		family, _, _ := strings.Cut(string(code), "-")
		switch {
		case code == errors.ErrCodeDeployPendingReview:
			return PendingReview
		case code == errors.ErrCodeOracleAuth:
			return AuthError
		case code == errors.ErrCodeOracleTimeout, code == errors.ErrCodeOracleRateLimit:
			return NetworkError
		case family == "VALIDATE", family == "PATCH":
			return ValidationFailed
		case family == "DEPLOY":
			return DeployFailed
		case family == "CONFIG":
			return ConfigError
		}
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") {
		return AuthError
	}
	if strings.Contains(errMsg, "api key") {
		return AuthError
	}

	if strings.Contains(errMsg, "network") || strings.Contains(errMsg, "connection") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}

	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ValidationFailed:
		return "Fix validation failed"
	case DeployFailed:
		return "Deployment rolled back or failed"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case PendingReview:
		return "Fix pending review"
	case ConfigError:
		return "Configuration error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}

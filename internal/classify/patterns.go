package classify

import "strings"

var (
	notFoundMarkers = []string{
		"not found",
		"no such element",
		"no element",
		"cannot find",
		"could not find",
		"unable to locate",
		"failed to find",
		"element not visible",
		"not attached",
		"detached",
	}

	timeoutMarkers = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}

	rateLimitMarkers = []string{
		"429",
		"too many requests",
		"rate limit",
		"rate-limit",
		"ratelimit",
		"rate_limit",
		"slow down",
		"try again later",
		"quota exceeded",
	}

	networkMarkers = []string{
		"net::err_",
		"connection refused",
		"connection reset",
		"connection closed",
		"econnrefused",
		"econnreset",
		"enotfound",
		"no such host",
		"dns",
		"socket hang up",
		"network error",
		"networkerror",
		"failed to fetch",
		"unexpected eof",
		"broken pipe",
		"tls handshake",
	}

	captchaMarkers = []string{
		"captcha",
		"recaptcha",
		"hcaptcha",
		"turnstile",
		"cf-chl",
		"verify you are human",
		"verify you're human",
		"are you a robot",
		"not a robot",
		"unusual traffic",
		"security check",
		"suspicious activity",
		"confirm your identity",
		"/checkpoint",
		"/challenge",
	}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func isNotFoundMessage(msg string) bool { return containsAny(msg, notFoundMarkers) }

func isTimeoutMessage(msg string) bool { return containsAny(msg, timeoutMarkers) }

func isRateLimitMessage(msg string) bool { return containsAny(msg, rateLimitMarkers) }

func isNetworkMessage(msg string) bool { return containsAny(msg, networkMarkers) }

func hasCaptchaMarker(s string) bool {
	return s != "" && containsAny(strings.ToLower(s), captchaMarkers)
}

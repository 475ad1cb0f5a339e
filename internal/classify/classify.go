// Package classify maps a runtime failure of an automation routine, plus
// the structural diff observed around it, to a coarse error category.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/autoheal/internal/snapshot"
)

// Category is the coarse failure taxonomy.
type Category string

const (
	SelectorNotFound   Category = "SELECTOR_NOT_FOUND"
	NetworkError       Category = "NETWORK_ERROR"
	RateLimited        Category = "RATE_LIMITED"
	DetectionSuspected Category = "DETECTION_SUSPECTED"
	Timeout            Category = "TIMEOUT"
	Unknown            Category = "UNKNOWN"
)

// Categories lists every category in decision order.
var Categories = []Category{SelectorNotFound, RateLimited, NetworkError, DetectionSuspected, Timeout, Unknown}

// Failure is the error raised by the automation routine.
type Failure struct {
	Name    string `json:"name"`
	Message string `json:"message"`

	// Selector is the selector the routine was waiting on, if known.
	Selector string `json:"selector,omitempty"`
}

// FromError builds a Failure from a Go error. Name is the dynamic type of
// the innermost wrapped error.
func FromError(err error, selector string) Failure {
	if err == nil {
		return Failure{Name: "Error", Selector: selector}
	}
	inner := err
	for {
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}
	name := strings.TrimPrefix(fmt.Sprintf("%T", inner), "*")
	return Failure{Name: name, Message: err.Error(), Selector: selector}
}

// String renders "Name: message".
func (f Failure) String() string {
	if f.Name == "" {
		return f.Message
	}
	return f.Name + ": " + f.Message
}

// Classification is the result of Classify.
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"confidenceSignals"`
}

// Signals recorded on a Classification.
const (
	SignalNotFoundMessage   = "message:not-found"
	SignalTimeoutMessage    = "message:timeout"
	SignalSelectorChanged   = "diff:failing-selector-changed"
	SignalAnySelectorChange = "diff:selector-changed"
	SignalRateLimitMessage  = "message:rate-limit"
	SignalHTTP429           = "network:http-429"
	SignalRateLimitConsole  = "console:rate-limit"
	SignalNetworkMessage    = "message:network"
	SignalCaptchaDiff       = "diff:captcha"
	SignalCaptchaPage       = "snapshot:captcha"
	SignalNoStructuralDiff  = "diff:none"
	SignalDiffUnavailable   = "diff:unavailable"
	SignalAfterUnavailable  = "snapshot:unavailable"
)

var baseConfidence = map[Category]float64{
	SelectorNotFound:   0.9,
	RateLimited:        0.85,
	NetworkError:       0.8,
	DetectionSuspected: 0.85,
	Timeout:            0.6,
	Unknown:            0.2,
}

const minConfidence = 0.1

// Classify applies the decision rules in order; the first match wins.
// diff and after may be nil, which lowers confidence but never fails.
func Classify(f Failure, diff *snapshot.DOMDiff, after *snapshot.DOMSnapshot) Classification {
	msg := strings.ToLower(f.Name + " " + f.Message)

	var missing []string
	penalty := 0.0
	if diff == nil {
		missing = append(missing, SignalDiffUnavailable)
		penalty += 0.2
	}
	if after == nil {
		missing = append(missing, SignalAfterUnavailable)
		penalty += 0.1
	}

	result := func(c Category, signals ...string) Classification {
		conf := baseConfidence[c] - penalty
		if conf < minConfidence {
			conf = minConfidence
		}
		return Classification{Category: c, Confidence: conf, Signals: append(signals, missing...)}
	}

	notFound := isNotFoundMessage(msg)
	timeout := isTimeoutMessage(msg)

	if notFound || timeout {
		if sig, ok := selectorChanged(diff, f.Selector); ok {
			first := SignalNotFoundMessage
			if !notFound {
				first = SignalTimeoutMessage
			}
			return result(SelectorNotFound, first, sig)
		}
	}

	if signals := rateLimitSignals(msg, after); len(signals) > 0 {
		return result(RateLimited, signals...)
	}

	if isNetworkMessage(msg) {
		return result(NetworkError, SignalNetworkMessage)
	}

	if signals := captchaSignals(diff, after); len(signals) > 0 {
		return result(DetectionSuspected, signals...)
	}

	if timeout && diff.Empty() {
		return result(Timeout, SignalTimeoutMessage, SignalNoStructuralDiff)
	}

	return result(Unknown)
}

func selectorChanged(diff *snapshot.DOMDiff, selector string) (string, bool) {
	if diff.Empty() {
		return "", false
	}
	if selector != "" {
		c, ok := diff.Change(selector)
		if ok && (c.Kind == snapshot.ChangeRemoved || c.Kind == snapshot.ChangeModified) {
			return SignalSelectorChanged, true
		}
		return "", false
	}
	if len(diff.Selectors(snapshot.ChangeRemoved, snapshot.ChangeModified)) > 0 {
		return SignalAnySelectorChange, true
	}
	return "", false
}

func rateLimitSignals(msg string, after *snapshot.DOMSnapshot) []string {
	var signals []string
	if isRateLimitMessage(msg) {
		signals = append(signals, SignalRateLimitMessage)
	}
	if after == nil {
		return signals
	}
	for _, req := range after.FailedRequests {
		if req.Status == 429 {
			signals = append(signals, SignalHTTP429)
			break
		}
	}
	for _, c := range after.Console {
		if isRateLimitMessage(strings.ToLower(c.Text)) {
			signals = append(signals, SignalRateLimitConsole)
			break
		}
	}
	return signals
}

func captchaSignals(diff *snapshot.DOMDiff, after *snapshot.DOMSnapshot) []string {
	var signals []string
	if diff != nil {
	changes:
		for _, c := range diff.Changes {
			if c.Kind == snapshot.ChangeRemoved {
				continue
			}
			if hasCaptchaMarker(c.Selector) {
				signals = append(signals, SignalCaptchaDiff)
				break
			}
			for _, d := range c.Details {
				if hasCaptchaMarker(d.After) {
					signals = append(signals, SignalCaptchaDiff)
					break changes
				}
			}
		}
	}
	if after != nil && snapshotHasCaptcha(after) {
		signals = append(signals, SignalCaptchaPage)
	}
	return signals
}

func snapshotHasCaptcha(s *snapshot.DOMSnapshot) bool {
	if hasCaptchaMarker(s.URL) {
		return true
	}
	for _, el := range s.Elements {
		if el.Missing {
			continue
		}
		if hasCaptchaMarker(el.Text) || hasCaptchaMarker(el.HTML) {
			return true
		}
	}
	return false
}

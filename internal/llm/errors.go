package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrThrottled marks rate-limit/overload responses from the model or search
// provider. These are the only errors the retry policy considers transient.
var ErrThrottled = errors.New("throttled")

// ErrMalformedOutput marks model completions that do not parse into the
// expected structured shape. Never retried: re-sending an ill-formed prompt
// is unlikely to self-correct.
var ErrMalformedOutput = errors.New("malformed model output")

// throttleIndicators are substrings of provider error messages that signal
// transient throttling rather than a permanent failure.
var throttleIndicators = []string{
	"rate limit",
	"rate_limit",
	"throttl",
	"too many requests",
	"overloaded",
	"quota exceeded",
	"429",
	"503",
	"service unavailable",
	"slow down",
}

// isThrottleError checks if an error indicates provider throttling.
func isThrottleError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range throttleIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

// wrapThrottleError tags throttling errors with ErrThrottled so callers can
// match with errors.Is. Other errors pass through unchanged.
func wrapThrottleError(err error) error {
	if err == nil {
		return nil
	}
	if isThrottleError(err) && !errors.Is(err, ErrThrottled) {
		return fmt.Errorf("%w: %v", ErrThrottled, err)
	}
	return err
}

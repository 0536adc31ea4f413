// Package retryx classifies provider failures and computes backoff delays.
//
// Everything here is pure: classification inspects the error's HTTP-like
// status and message, and delay computation is deterministic given a fixed
// random source. Side effects (sleeping, rotating) live in the executors.
package retryx

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// StatusError is an error carrying an HTTP-like status code. Provider
// adapters return it so the classifier can operate without depending on
// any vendor SDK error type.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "status " + strconv.Itoa(e.Status)
}

// HTTPStatus implements the statusCarrier contract used by the classifier.
func (e *StatusError) HTTPStatus() int { return e.Status }

type statusCarrier interface{ HTTPStatus() int }

// retryableStatuses are the HTTP statuses classified as transient.
var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// transientPatterns match error messages from providers and transports that
// do not expose a status code.
var transientPatterns = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"quota",
	"timeout",
	"timed out",
	"deadline exceeded",
	"overloaded",
	"network",
	"connection refused",
	"connection reset",
	"temporar",
	"service unavailable",
	"unavailable",
}

// rateLimitPatterns are the subset of transient failures that indicate a
// per-credential or per-model quota and therefore trigger rotation rather
// than same-credential retry.
var rateLimitPatterns = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"quota",
	"429",
}

// IsRetryable reports whether err is worth retrying at all, either on the
// same credential (transient) or on the next one (rate limited).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if sc, ok := carrier(err); ok {
		return retryableStatuses[sc.HTTPStatus()]
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsRateLimit reports whether err is a quota/rate-limit failure. These are
// the only failures that exhaust a credential in the rotation ledger.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if sc, ok := carrier(err); ok {
		return sc.HTTPStatus() == 429
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func carrier(err error) (statusCarrier, bool) {
	var sc statusCarrier
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}

// BackoffConfig bounds the exponential backoff schedule.
type BackoffConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultBackoff mirrors the provider-call defaults used across the service.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Delay returns min(base * 2^attempt + uniform(0, base), max) for the given
// zero-based attempt. rng may be nil, in which case the shared source is
// used; tests pass a seeded one.
func Delay(attempt int, cfg BackoffConfig, rng *rand.Rand) time.Duration {
	if cfg.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	// Shift-based power; clamp the exponent so the shift cannot overflow.
	exp := attempt
	if exp > 30 {
		exp = 30
	}
	d := cfg.BaseDelay << uint(exp)
	if d <= 0 || d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(cfg.BaseDelay)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(cfg.BaseDelay)))
	}
	total := d + jitter
	if total > cfg.MaxDelay {
		total = cfg.MaxDelay
	}
	return total
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case so retry loops can surface a distinct cancelled outcome.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

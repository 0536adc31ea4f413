package keyring

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/retryx"
)

// Operation is the unit of work executed under rotation. It receives the
// credential chosen for this attempt together with its ledger index.
type Operation[T any] func(ctx domain.Context, cred domain.Credential, index int) (T, error)

// ExecuteOptions tune one rotating execution.
type ExecuteOptions struct {
	Service string
	// IsRateLimit classifies an error as quota exhaustion for the current
	// credential. Defaults to retryx.IsRateLimit.
	IsRateLimit func(error) bool
	// MaxRetriesPerCredential is how many times the operation is attempted
	// on the same credential before rotating. Defaults to 1.
	MaxRetriesPerCredential int
	// SkipFirstCredentialProbe disables the final probe of credential 0
	// after a full exhaustion cycle.
	SkipFirstCredentialProbe bool
	// retryUnit is the fixed backoff unit between same-credential attempts
	// (delay = unit * attempt). Overridden by tests.
	retryUnit time.Duration
}

// WithRetryUnit returns a copy of o using the given backoff unit. Tests use
// a nanosecond unit to avoid sleeping.
func (o ExecuteOptions) WithRetryUnit(d time.Duration) ExecuteOptions {
	o.retryUnit = d
	return o
}

func (o ExecuteOptions) normalized() ExecuteOptions {
	if o.IsRateLimit == nil {
		o.IsRateLimit = retryx.IsRateLimit
	}
	if o.MaxRetriesPerCredential <= 0 {
		o.MaxRetriesPerCredential = 1
	}
	if o.retryUnit == 0 {
		o.retryUnit = 500 * time.Millisecond
	}
	return o
}

// Execute runs op with the current credential for the service, rotating on
// rate-limit failures. Non-quota errors propagate immediately without
// rotation. When every credential has been marked exhausted, credential 0 is
// probed exactly once more before the terminal ErrAllExhausted; a successful
// probe resets the ledger and its result is returned.
func Execute[T any](ctx domain.Context, r *Ring, opts ExecuteOptions, op Operation[T]) (T, error) {
	var zero T
	opts = opts.normalized()

	n := r.credentialCount(opts.Service)
	if n == 0 {
		return zero, fmt.Errorf("op=keyring.execute service=%s: no credentials: %w", opts.Service, domain.ErrInvalidArgument)
	}

	var lastErr error
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("op=keyring.execute service=%s: %w", opts.Service, domain.ErrCancelled)
		}
		next, err := r.Next(opts.Service)
		if err != nil {
			return zero, err
		}
		if next.AllExhausted {
			// The scan already wrapped a full cycle; fall through to the
			// terminal probe below rather than starting another lap here.
			break
		}
		// Advisory skip: a sibling worker already burned this credential.
		if r.coolingDown(ctx, opts.Service, next.Index) {
			r.MarkExhausted(ctx, opts.Service, next.Index, "cooling down (shared cache)")
			lastErr = domain.ErrUpstreamRateLimit
			continue
		}

		result, err := attempt(ctx, opts, op, next.Credential, next.Index)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrCancelled) {
			return zero, err
		}
		if !opts.IsRateLimit(err) {
			// Permanent or merely transient beyond its retry budget: no
			// rotation for non-quota failures.
			return zero, err
		}
		r.MarkExhausted(ctx, opts.Service, next.Index, err.Error())
	}

	if !opts.SkipFirstCredentialProbe {
		probe, err := r.Next(opts.Service)
		if err == nil {
			slog.Info("probing first credential after full exhaustion",
				slog.String("service", opts.Service),
				slog.Int("index", probe.Index))
			result, perr := op(ctx, probe.Credential, probe.Index)
			if perr == nil {
				r.Reset(opts.Service)
				return result, nil
			}
			lastErr = perr
		}
	}

	if lastErr == nil {
		lastErr = domain.ErrUpstreamRateLimit
	}
	return zero, fmt.Errorf("op=keyring.execute service=%s: last=%v: %w", opts.Service, lastErr, domain.ErrAllExhausted)
}

// attempt retries op on a single credential with fixed unit*attempt backoff.
func attempt[T any](ctx domain.Context, opts ExecuteOptions, op Operation[T], cred domain.Credential, index int) (T, error) {
	var zero T
	var lastErr error
	for a := 1; a <= opts.MaxRetriesPerCredential; a++ {
		result, err := op(ctx, cred, index)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if opts.IsRateLimit(err) {
			// Quota failures rotate; retrying the same credential would
			// just burn the window harder.
			return zero, err
		}
		if !retryx.IsRetryable(err) {
			return zero, err
		}
		if a < opts.MaxRetriesPerCredential {
			if serr := retryx.Sleep(ctx, opts.retryUnit*time.Duration(a)); serr != nil {
				return zero, fmt.Errorf("op=keyring.attempt: %w", domain.ErrCancelled)
			}
		}
	}
	return zero, lastErr
}

// Outcome is the non-throwing result shape for callers that prefer not to
// branch on errors for control flow.
type Outcome[T any] struct {
	Success      bool
	Result       T
	Err          error
	AllExhausted bool
	KeyIndex     int
}

// TryExecute wraps Execute; it never returns an error. KeyIndex is the
// ledger position after the call, whatever the outcome.
func TryExecute[T any](ctx domain.Context, r *Ring, opts ExecuteOptions, op Operation[T]) Outcome[T] {
	result, err := Execute(ctx, r, opts, op)
	out := Outcome[T]{Success: err == nil, Result: result, Err: err}
	if stats, ok := r.Snapshot(opts.Service); ok {
		out.KeyIndex = stats.CurrentIndex
	}
	if errors.Is(err, domain.ErrAllExhausted) {
		out.AllExhausted = true
	}
	return out
}

package keyring_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/retryx"
	"github.com/leadpilot/leadpilot/internal/service/keyring"
)

var fastOpts = keyring.ExecuteOptions{Service: "svc"}.WithRetryUnit(time.Nanosecond)

func rateLimited() error { return &retryx.StatusError{Status: 429, Message: "rate limited: 429"} }

func TestExecuteRotatesOnRateLimit(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", creds("k0", "k1", "k2"))

	var visited []int
	got, err := keyring.Execute(context.Background(), r, fastOpts,
		func(_ domain.Context, cred domain.Credential, index int) (string, error) {
			visited = append(visited, index)
			if index == 0 {
				return "", rateLimited()
			}
			return "ok:" + cred.Secret, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok:k1", got)
	assert.Equal(t, []int{0, 1}, visited)

	stats, _ := r.Snapshot("svc")
	assert.Equal(t, 1, stats.ExhaustedCount)
}

func TestExecuteNonQuotaErrorDoesNotRotate(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", creds("k0", "k1"))

	calls := 0
	_, err := keyring.Execute(context.Background(), r, fastOpts,
		func(_ domain.Context, _ domain.Credential, _ int) (string, error) {
			calls++
			return "", &retryx.StatusError{Status: 401, Message: "unauthorized"}
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not burn other credentials")
	stats, _ := r.Snapshot("svc")
	assert.Equal(t, 0, stats.ExhaustedCount)
}

func TestExecuteTransientRetriesSameCredential(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", creds("k0", "k1"))

	var visited []int
	opts := fastOpts
	opts.MaxRetriesPerCredential = 3
	got, err := keyring.Execute(context.Background(), r, opts,
		func(_ domain.Context, _ domain.Credential, index int) (string, error) {
			visited = append(visited, index)
			if len(visited) < 3 {
				return "", &retryx.StatusError{Status: 503, Message: "service unavailable"}
			}
			return "recovered", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, []int{0, 0, 0}, visited, "transient failures stay on the same credential")
}

func TestExecuteAllExhaustedProbeFails(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", creds("k0", "k1", "k2"))

	var visited []int
	_, err := keyring.Execute(context.Background(), r, fastOpts,
		func(_ domain.Context, _ domain.Credential, index int) (string, error) {
			visited = append(visited, index)
			return "", rateLimited()
		})
	require.ErrorIs(t, err, domain.ErrAllExhausted)
	// Three rotation attempts plus exactly one probe of credential 0.
	assert.Equal(t, []int{0, 1, 2, 0}, visited)
}

func TestExecuteAllExhaustedProbeSucceeds(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", creds("k0", "k1"))

	calls := 0
	got, err := keyring.Execute(context.Background(), r, fastOpts,
		func(_ domain.Context, cred domain.Credential, _ int) (string, error) {
			calls++
			if calls <= 2 {
				return "", rateLimited()
			}
			return "probe:" + cred.Secret, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "probe:k0", got)
	assert.Equal(t, 3, calls)

	// A successful probe resets the ledger rather than double-resetting.
	stats, _ := r.Snapshot("svc")
	assert.Equal(t, 0, stats.ExhaustedCount)
	assert.Equal(t, 0, stats.CurrentIndex)
}

func TestExecuteSkipFirstCredentialProbe(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", creds("k0", "k1"))

	opts := fastOpts
	opts.SkipFirstCredentialProbe = true
	calls := 0
	_, err := keyring.Execute(context.Background(), r, opts,
		func(_ domain.Context, _ domain.Credential, _ int) (string, error) {
			calls++
			return "", rateLimited()
		})
	require.ErrorIs(t, err, domain.ErrAllExhausted)
	assert.Equal(t, 2, calls)
}

func TestExecuteNoCredentials(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", nil)
	_, err := keyring.Execute(context.Background(), r, fastOpts,
		func(_ domain.Context, _ domain.Credential, _ int) (string, error) {
			t.Fatal("op must not run without credentials")
			return "", nil
		})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestExecuteCancellation(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", creds("k0", "k1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := keyring.Execute(ctx, r, fastOpts,
		func(_ domain.Context, _ domain.Credential, _ int) (string, error) {
			return "", rateLimited()
		})
	require.ErrorIs(t, err, domain.ErrCancelled)
}

func TestExecuteCooldownSkip(t *testing.T) {
	t.Parallel()
	cd := newRecordingCooldown()
	cd.cooling["svc/0"] = true
	r := keyring.New(keyring.WithCooldownStore(cd, time.Minute))
	r.Register("svc", creds("k0", "k1"))

	var visited []int
	got, err := keyring.Execute(context.Background(), r, fastOpts,
		func(_ domain.Context, cred domain.Credential, index int) (string, error) {
			visited = append(visited, index)
			return "ok:" + cred.Secret, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok:k1", got)
	assert.Equal(t, []int{1}, visited, "advisory-blocked credential is skipped without a call")
}

func TestTryExecuteNeverErrors(t *testing.T) {
	t.Parallel()
	r := keyring.New()
	r.Register("svc", creds("k0"))

	out := keyring.TryExecute(context.Background(), r, fastOpts,
		func(_ domain.Context, _ domain.Credential, _ int) (string, error) {
			return "", rateLimited()
		})
	assert.False(t, out.Success)
	assert.True(t, out.AllExhausted)
	require.Error(t, out.Err)

	out = keyring.TryExecute(context.Background(), r, fastOpts,
		func(_ domain.Context, _ domain.Credential, _ int) (string, error) {
			return "fine", nil
		})
	assert.True(t, out.Success)
	assert.Equal(t, "fine", out.Result)
	assert.NoError(t, out.Err)
}

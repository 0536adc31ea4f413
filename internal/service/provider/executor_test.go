package provider_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/retryx"
	"github.com/leadpilot/leadpilot/internal/service/provider"
)

// scriptedInvoker fails or succeeds per (credential, model) pair and records
// every call in order.
type scriptedInvoker struct {
	succeed map[string]string // "secret/model" -> response
	calls   []string
}

func (s *scriptedInvoker) Invoke(_ domain.Context, cred domain.Credential, model, _, _ string, _ int) (string, error) {
	key := cred.Secret + "/" + model
	s.calls = append(s.calls, key)
	if resp, ok := s.succeed[key]; ok {
		return resp, nil
	}
	return "", &retryx.StatusError{Status: 429, Message: "rate limited: 429"}
}

func identity(raw string) (string, error) { return raw, nil }

func fastExec(inv domain.ProviderInvoker, creds ...string) *provider.Executor {
	cs := make([]domain.Credential, 0, len(creds))
	for _, c := range creds {
		cs = append(cs, domain.Credential{Secret: c})
	}
	return provider.New(domain.ProviderStub, inv, cs,
		provider.WithMaxRetriesPerCombination(1),
		provider.WithBackoffUnit(time.Nanosecond))
}

func TestExecuteRotationScenario(t *testing.T) {
	t.Parallel()
	// Stub catalog is [stub-small, stub-large]. Everything rate-limits except
	// credential B on the second model.
	inv := &scriptedInvoker{succeed: map[string]string{"B/stub-large": "ok"}}
	exec := fastExec(inv, "A", "B", "C")

	var modelSwitches, keySwitches []string
	cb := provider.Callbacks{
		OnModelSwitch: func(from, to string) { modelSwitches = append(modelSwitches, from+">"+to) },
		OnKeySwitch:   func(index, total int) { keySwitches = append(keySwitches, fmt.Sprintf("%d/%d", index, total)) },
	}

	got, ok := provider.Execute(context.Background(), exec, provider.Prompt{User: "hi"}, identity, "fallback", cb)
	require.True(t, ok)
	assert.Equal(t, "ok", got)

	// Combination order: both models on A, the one-time start-model probe,
	// then B's models until the hit.
	assert.Equal(t, []string{
		"A/stub-small",
		"A/stub-large",
		"A/stub-small", // start-model probe after the full model lap
		"B/stub-small",
		"B/stub-large",
	}, inv.calls)
	assert.Equal(t, []string{"stub-small>stub-large"}, modelSwitches)
	assert.Equal(t, []string{"1/3"}, keySwitches)
}

func TestExecuteBoundedAttempts(t *testing.T) {
	t.Parallel()
	// Everything fails: at most C*M*R calls plus the two start probes.
	inv := &scriptedInvoker{}
	exec := fastExec(inv, "A", "B")

	cycles := 0
	got, ok := provider.Execute(context.Background(), exec, provider.Prompt{User: "hi"}, identity, "fallback",
		provider.Callbacks{OnFullCycleComplete: func() { cycles++ }})
	assert.False(t, ok)
	assert.Equal(t, "fallback", got)

	budget := 2 * 2 * 1 // creds * models * retries
	assert.LessOrEqual(t, len(inv.calls), budget+2)
	assert.Equal(t, budget+2, len(inv.calls), "both probes fire when everything fails")
	assert.Equal(t, 1, cycles)
	assert.Equal(t, 1, exec.Cycles())
}

func TestExecuteRetriesSameCombination(t *testing.T) {
	t.Parallel()
	// Transient 503s on the first combination, then success on the retry.
	calls := 0
	inv := &funcInvoker{fn: func(cred domain.Credential, model string) (string, error) {
		calls++
		if calls == 1 {
			return "", &retryx.StatusError{Status: 503, Message: "service unavailable"}
		}
		return "recovered", nil
	}}
	cs := []domain.Credential{{Secret: "A"}}
	exec := provider.New(domain.ProviderStub, inv, cs,
		provider.WithMaxRetriesPerCombination(2),
		provider.WithBackoffUnit(time.Nanosecond))

	var retries []string
	got, ok := provider.Execute(context.Background(), exec, provider.Prompt{User: "hi"}, identity, "",
		provider.Callbacks{OnRetry: func(model string, attempt, max int) {
			retries = append(retries, fmt.Sprintf("%s:%d/%d", model, attempt, max))
		}})
	require.True(t, ok)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, []string{"stub-small:1/2"}, retries)
	assert.Equal(t, 2, calls)
}

type funcInvoker struct {
	fn func(cred domain.Credential, model string) (string, error)
}

func (f *funcInvoker) Invoke(_ domain.Context, cred domain.Credential, model, _, _ string, _ int) (string, error) {
	return f.fn(cred, model)
}

func TestExecuteParseFailureNotRetried(t *testing.T) {
	t.Parallel()
	inv := &funcInvoker{fn: func(cred domain.Credential, model string) (string, error) {
		return "garbage from " + cred.Secret + "/" + model, nil
	}}
	cs := []domain.Credential{{Secret: "A"}}
	exec := provider.New(domain.ProviderStub, inv, cs,
		provider.WithMaxRetriesPerCombination(3),
		provider.WithBackoffUnit(time.Nanosecond))

	calls := 0
	parse := func(raw string) (string, error) {
		calls++
		return "", errors.New("not the shape I wanted")
	}
	retries := 0
	got, ok := provider.Execute(context.Background(), exec, provider.Prompt{User: "hi"}, parse, "fallback",
		provider.Callbacks{OnRetry: func(string, int, int) { retries++ }})
	assert.False(t, ok)
	assert.Equal(t, "fallback", got)
	// A parse failure is final for its combination: despite 3 retries being
	// allowed, no same-combination retry (and so no OnRetry) ever happens.
	assert.Equal(t, 0, retries)
	budget := 1 * 2 * 3
	assert.LessOrEqual(t, calls, budget+2)
}

func TestExecuteNoCredentials(t *testing.T) {
	t.Parallel()
	inv := &scriptedInvoker{}
	exec := provider.New(domain.ProviderStub, inv, nil)
	got, ok := provider.Execute(context.Background(), exec, provider.Prompt{User: "hi"}, identity, "fallback", provider.Callbacks{})
	assert.False(t, ok)
	assert.Equal(t, "fallback", got)
	assert.Empty(t, inv.calls)
}

func TestExecuteCancellation(t *testing.T) {
	t.Parallel()
	inv := &scriptedInvoker{}
	exec := fastExec(inv, "A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, ok := provider.Execute(ctx, exec, provider.Prompt{User: "hi"}, identity, "fallback", provider.Callbacks{})
	assert.False(t, ok)
	assert.Equal(t, "fallback", got)
	assert.Empty(t, inv.calls)
}

func TestExecuteTextAndCatalog(t *testing.T) {
	t.Parallel()
	inv := &scriptedInvoker{succeed: map[string]string{"A/stub-small": "  text  "}}
	exec := fastExec(inv, "A")
	got, ok := provider.ExecuteText(context.Background(), exec, provider.Prompt{User: "hi"}, "", provider.Callbacks{})
	require.True(t, ok)
	assert.Equal(t, "  text  ", got)

	models := provider.Models(domain.ProviderGroq)
	require.NotEmpty(t, models)
	// Returned slice is a copy; mutating it must not poison the catalog.
	models[0] = "mutated"
	assert.NotEqual(t, "mutated", provider.Models(domain.ProviderGroq)[0])
	assert.True(t, strings.HasPrefix(provider.Models(domain.ProviderStub)[0], "stub-"))
}

func TestUpdateCredentialsClamps(t *testing.T) {
	t.Parallel()
	inv := &scriptedInvoker{}
	exec := fastExec(inv, "A", "B", "C")
	// Burn a failing run so the ledger advances off origin.
	_, ok := provider.Execute(context.Background(), exec, provider.Prompt{User: "hi"}, identity, "", provider.Callbacks{})
	assert.False(t, ok)

	exec.UpdateCredentials([]domain.Credential{{Secret: "X"}})
	inv.succeed = map[string]string{"X/stub-small": "fresh"}
	inv.calls = nil
	got, ok := provider.Execute(context.Background(), exec, provider.Prompt{User: "hi"}, identity, "", provider.Callbacks{})
	require.True(t, ok)
	assert.Equal(t, "fresh", got)
}

package provider

import (
	"log/slog"
	"sync"
	"time"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/observability"
	"github.com/leadpilot/leadpilot/internal/retryx"
)

// Prompt is one chat request as seen by this executor.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Callbacks are progress notifications emitted while rotating. All fields
// are optional.
type Callbacks struct {
	OnRetry             func(model string, attempt, max int)
	OnModelSwitch       func(from, to string)
	OnKeySwitch         func(index, total int)
	OnFullCycleComplete func()
}

// ledger is the two-axis rotation state. Guarded by the executor mutex.
type ledger struct {
	credIdx    int
	modelIdx   int
	fullCycles int
	lastErr    string
}

// Executor rotates over (credential, model) pairs for one provider.
//
// The ledger is process-wide state shared by all requests to the provider.
// Every read and write goes through the executor mutex, so concurrent
// callers cannot corrupt it; they may advance each other's rotation
// position, which is acceptable because credentials are fungible here and
// attempt budgets are computed from counts, not positions.
type Executor struct {
	mu       sync.Mutex
	provider domain.Provider
	models   []string
	creds    []domain.Credential
	led      ledger
	invoker  domain.ProviderInvoker

	maxRetriesPerCombo int
	// backoffUnit is the fixed backoff unit between same-combination
	// attempts (delay = unit * attempt). Tests set it to zero.
	backoffUnit time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxRetriesPerCombination overrides the default of 2 attempts per
// (credential, model) pair.
func WithMaxRetriesPerCombination(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxRetriesPerCombo = n
		}
	}
}

// WithBackoffUnit overrides the 500ms backoff unit.
func WithBackoffUnit(d time.Duration) Option {
	return func(e *Executor) { e.backoffUnit = d }
}

// New constructs an executor for p using its fixed model catalog.
func New(p domain.Provider, invoker domain.ProviderInvoker, creds []domain.Credential, opts ...Option) *Executor {
	e := &Executor{
		provider:           p,
		models:             Models(p),
		creds:              append([]domain.Credential(nil), creds...),
		invoker:            invoker,
		maxRetriesPerCombo: 2,
		backoffUnit:        500 * time.Millisecond,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Provider returns the provider this executor rotates for.
func (e *Executor) Provider() domain.Provider { return e.provider }

// UpdateCredentials replaces the credential list, clamping ledger indices
// so an in-flight rotation never indexes out of range.
func (e *Executor) UpdateCredentials(creds []domain.Credential) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.creds = append([]domain.Credential(nil), creds...)
	if len(e.creds) == 0 {
		e.led.credIdx = 0
	} else if e.led.credIdx >= len(e.creds) {
		e.led.credIdx = 0
	}
	slog.Info("provider credentials updated",
		slog.String("provider", string(e.provider)),
		slog.Int("credentials", len(creds)))
}

// Reset clears the rotation ledger back to the origin.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.led = ledger{}
}

// Cycles returns how many full credential cycles the ledger has completed.
func (e *Executor) Cycles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.led.fullCycles
}

// snapshot copies rotation inputs under the lock.
func (e *Executor) snapshot() (creds []domain.Credential, models []string, startCred, startModel int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	creds = append([]domain.Credential(nil), e.creds...)
	models = append([]string(nil), e.models...)
	if len(creds) > 0 && e.led.credIdx < len(creds) {
		startCred = e.led.credIdx
	}
	if len(models) > 0 && e.led.modelIdx < len(models) {
		startModel = e.led.modelIdx
	}
	return creds, models, startCred, startModel
}

func (e *Executor) store(credIdx, modelIdx int, lastErr string, cycled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.led.credIdx = credIdx
	e.led.modelIdx = modelIdx
	if lastErr != "" {
		e.led.lastErr = lastErr
	}
	if cycled {
		e.led.fullCycles++
	}
}

// Execute rotates op over every (credential, model) combination for the
// executor's provider, retrying each combination up to the configured
// maximum with fixed unit*attempt backoff. parse is applied once per
// successful raw response; a parse failure counts as the final failure of
// that combination and is never retried here.
//
// Execute never fails loudly: with no credentials configured, with the
// context cancelled, or with the whole attempt budget
// (credentials × models × retries, plus the two start-probe calls) spent,
// it returns defaultValue and ok=false.
func Execute[T any](ctx domain.Context, e *Executor, prompt Prompt, parse func(raw string) (T, error), defaultValue T, cb Callbacks) (T, bool) {
	creds, models, startCred, startModel := e.snapshot()
	if len(creds) == 0 || len(models) == 0 {
		return defaultValue, false
	}

	budget := len(creds) * len(models) * e.maxRetriesPerCombo
	used := 0
	credIdx, modelIdx := startCred, startModel
	modelProbeDone := false
	cycleProbeDone := false
	announcedSwitches := make(map[string]struct{})
	lastErr := ""

	// call returns parseFailed=true when the provider answered but the
	// response did not parse; retrying the same combination cannot help then.
	call := func(cred domain.Credential, model string) (v T, ok bool, errText string, parseFailed bool) {
		start := time.Now()
		raw, err := e.invoker.Invoke(ctx, cred, model, prompt.System, prompt.User, prompt.MaxTokens)
		observability.ProviderRequestsTotal.WithLabelValues(string(e.provider), model).Inc()
		observability.ProviderRequestDuration.WithLabelValues(string(e.provider), model).Observe(time.Since(start).Seconds())
		if err != nil {
			return v, false, err.Error(), false
		}
		parsed, perr := parse(raw)
		if perr != nil {
			slog.Warn("provider response parse failed",
				slog.String("provider", string(e.provider)),
				slog.String("model", model),
				slog.Any("error", perr))
			return v, false, perr.Error(), true
		}
		return parsed, true, "", false
	}

	for used < budget {
		if ctx.Err() != nil {
			e.store(credIdx, modelIdx, "cancelled", false)
			return defaultValue, false
		}
		cred := creds[credIdx]
		model := models[modelIdx]

		comboOK := false
		var result T
		for attempt := 1; attempt <= e.maxRetriesPerCombo && used < budget; attempt++ {
			used++
			v, ok, errText, parseFailed := call(cred, model)
			if ok {
				result = v
				comboOK = true
				break
			}
			lastErr = errText
			if ctx.Err() != nil {
				e.store(credIdx, modelIdx, "cancelled", false)
				return defaultValue, false
			}
			if parseFailed {
				// Final failure for this combination; the model answered, it
				// just answered garbage.
				break
			}
			if attempt < e.maxRetriesPerCombo {
				if cb.OnRetry != nil {
					cb.OnRetry(model, attempt, e.maxRetriesPerCombo)
				}
				_ = retryx.Sleep(ctx, e.backoffUnit*time.Duration(attempt))
			}
		}
		if comboOK {
			e.store(credIdx, modelIdx, "", false)
			return result, true
		}

		nextModel := (modelIdx + 1) % len(models)
		if nextModel != startModel {
			// Plain model advance within the current lap. A transition is
			// announced once per call; later laps repeat the same pairs and
			// would spam the sink.
			key := models[modelIdx] + "\x00" + models[nextModel]
			if _, seen := announcedSwitches[key]; !seen {
				announcedSwitches[key] = struct{}{}
				if cb.OnModelSwitch != nil {
					cb.OnModelSwitch(models[modelIdx], models[nextModel])
				}
				observability.ModelSwitchesTotal.WithLabelValues(string(e.provider)).Inc()
			}
			modelIdx = nextModel
			continue
		}

		// One full lap over the models for this credential. Re-probe the
		// starting model once per call: a provider-wide blip may have just
		// cleared.
		if !modelProbeDone {
			modelProbeDone = true
			v, ok, errText, _ := call(cred, models[startModel])
			if ok {
				e.store(credIdx, startModel, "", false)
				return v, true
			}
			lastErr = errText
		}

		credIdx = (credIdx + 1) % len(creds)
		modelIdx = startModel
		if cb.OnKeySwitch != nil {
			cb.OnKeySwitch(credIdx, len(creds))
		}
		observability.KeySwitchesTotal.WithLabelValues(string(e.provider)).Inc()

		if credIdx == startCred {
			// Full credential cycle. Probe the starting combination once
			// before burning another lap of the budget.
			if !cycleProbeDone {
				cycleProbeDone = true
				v, ok, errText, _ := call(creds[startCred], models[startModel])
				if ok {
					e.store(startCred, startModel, "", false)
					return v, true
				}
				lastErr = errText
			}
			e.store(credIdx, modelIdx, lastErr, true)
			if cb.OnFullCycleComplete != nil {
				cb.OnFullCycleComplete()
			}
		}
	}

	slog.Error("provider rotation budget exhausted, returning default",
		slog.String("provider", string(e.provider)),
		slog.Int("attempts", used),
		slog.String("last_error", lastErr))
	observability.ProviderDefaultsTotal.WithLabelValues(string(e.provider)).Inc()
	e.store(credIdx, modelIdx, lastErr, false)
	return defaultValue, false
}

// ExecuteText is Execute specialized to a raw text response.
func ExecuteText(ctx domain.Context, e *Executor, prompt Prompt, defaultValue string, cb Callbacks) (string, bool) {
	return Execute(ctx, e, prompt, func(raw string) (string, error) { return raw, nil }, defaultValue, cb)
}

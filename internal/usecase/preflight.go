package usecase

import (
	"log/slog"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/service/keyring"
	"github.com/leadpilot/leadpilot/internal/service/provider"
)

// PreflightService verifies each configured provider has at least one
// working credential before the worker starts taking jobs. Probes run under
// key rotation, so quota-limited keys are skipped (and marked in the shared
// cooldown cache) the same way they would be at request time.
type PreflightService struct {
	Ring     *keyring.Ring
	Invokers map[domain.Provider]domain.ProviderInvoker
}

// NewPreflightService constructs a PreflightService.
func NewPreflightService(ring *keyring.Ring, invokers map[domain.Provider]domain.ProviderInvoker) PreflightService {
	return PreflightService{Ring: ring, Invokers: invokers}
}

// Run probes every provider that has credentials and an invoker. It returns
// per-provider results; a failed probe is worth logging but not fatal, since
// rotation may still recover at request time.
func (s PreflightService) Run(ctx domain.Context, creds map[domain.Provider][]domain.Credential) map[domain.Provider]error {
	out := make(map[domain.Provider]error)
	for p, cs := range creds {
		inv := s.Invokers[p]
		if inv == nil || len(cs) == 0 {
			continue
		}
		models := provider.Models(p)
		if len(models) == 0 {
			continue
		}
		s.Ring.Register(string(p), cs)
		model := models[0]
		o := keyring.TryExecute(ctx, s.Ring, keyring.ExecuteOptions{Service: string(p)},
			func(ctx domain.Context, cred domain.Credential, _ int) (string, error) {
				return inv.Invoke(ctx, cred, model, "You are a connectivity check.", "Reply with OK.", 8)
			})
		if o.Success {
			out[p] = nil
			slog.Info("credential preflight passed",
				slog.String("provider", string(p)),
				slog.Int("key_index", o.KeyIndex))
			continue
		}
		out[p] = o.Err
		slog.Warn("credential preflight failed",
			slog.String("provider", string(p)),
			slog.Bool("all_exhausted", o.AllExhausted),
			slog.Any("error", o.Err))
	}
	return out
}

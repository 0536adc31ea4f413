// Package keyring rotates per-service API credentials.
//
// A Ring owns one rotation ledger per registered service name. Callers never
// touch ledger state directly; Execute/TryExecute drive rotation, marking a
// credential exhausted on rate-limit failures and advancing to the next one
// until either an attempt succeeds, a non-quota error surfaces, or every
// credential has been tried.
package keyring

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/observability"
)

// CooldownStore is an optional advisory layer (e.g. Redis) shared between
// worker processes. A credential another worker just rate-limited can be
// skipped without burning a call on it. Implementations must fail open:
// store errors are treated as "not cooling down".
type CooldownStore interface {
	IsCoolingDown(ctx domain.Context, service string, index int) bool
	MarkCoolingDown(ctx domain.Context, service string, index int, reason string, ttl time.Duration)
}

// entry is the per-service rotation ledger. All fields are guarded by the
// Ring mutex; the ledger is never handed out by reference.
type entry struct {
	creds     []domain.Credential
	current   int
	start     int
	cycles    int
	exhausted map[int]struct{}
	lastErr   string
}

// Ring holds the rotation ledgers for all registered services.
// Safe for concurrent use; each operation locks the ring so two goroutines
// can never interleave reads and writes of one ledger.
type Ring struct {
	mu       sync.Mutex
	services map[string]*entry
	cooldown CooldownStore
	// cooldownTTL is how long a rate-limited credential stays advisory-blocked.
	cooldownTTL time.Duration
}

// Option configures a Ring.
type Option func(*Ring)

// WithCooldownStore attaches a shared cooldown store.
func WithCooldownStore(cs CooldownStore, ttl time.Duration) Option {
	return func(r *Ring) {
		r.cooldown = cs
		if ttl > 0 {
			r.cooldownTTL = ttl
		}
	}
}

// New constructs an empty Ring.
func New(opts ...Option) *Ring {
	r := &Ring{
		services:    make(map[string]*entry),
		cooldownTTL: time.Minute,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register creates or overwrites the ledger for service, resetting the
// rotation position to index 0.
func (r *Ring) Register(service string, creds []domain.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[service] = &entry{
		creds:     append([]domain.Credential(nil), creds...),
		exhausted: make(map[int]struct{}),
	}
	slog.Info("keyring service registered",
		slog.String("service", service),
		slog.Int("credentials", len(creds)))
}

// UpdateCredentials replaces the credential list in place, preserving the
// rotation position where possible. Swapping keys at runtime must not crash
// an in-flight rotation, so the current index is clamped instead of reset.
func (r *Ring) UpdateCredentials(service string, creds []domain.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[service]
	if !ok {
		r.services[service] = &entry{
			creds:     append([]domain.Credential(nil), creds...),
			exhausted: make(map[int]struct{}),
		}
		return
	}
	e.creds = append([]domain.Credential(nil), creds...)
	if len(e.creds) == 0 {
		e.current = 0
		e.start = 0
	} else {
		if e.current >= len(e.creds) {
			e.current = 0
		}
		if e.start >= len(e.creds) {
			e.start = 0
		}
	}
	// Exhaustion marks for indices that no longer exist are dropped.
	for i := range e.exhausted {
		if i >= len(e.creds) {
			delete(e.exhausted, i)
		}
	}
	slog.Info("keyring credentials updated",
		slog.String("service", service),
		slog.Int("credentials", len(creds)))
}

// Next is the result of fetching the next usable credential.
type Next struct {
	Credential domain.Credential
	Index      int
	// AllExhausted is set when every index was exhausted and the ledger
	// performed its optimistic reset back to index 0.
	AllExhausted bool
}

// Next scans forward from the current index, skipping exhausted entries and
// wrapping modulo the list length. When every index is exhausted it clears
// the exhaustion set and restarts at index 0 with AllExhausted set; rate
// limits may have expired since the marks were recorded.
func (r *Ring) Next(service string) (Next, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[service]
	if !ok {
		return Next{}, fmt.Errorf("op=keyring.next service=%s: %w", service, domain.ErrNotFound)
	}
	if len(e.creds) == 0 {
		return Next{}, fmt.Errorf("op=keyring.next service=%s: no credentials: %w", service, domain.ErrInvalidArgument)
	}
	n := len(e.creds)
	for i := 0; i < n; i++ {
		idx := (e.current + i) % n
		if _, bad := e.exhausted[idx]; bad {
			continue
		}
		e.current = idx
		return Next{Credential: e.creds[idx], Index: idx}, nil
	}
	// Optimistic reset.
	e.exhausted = make(map[int]struct{})
	e.current = 0
	e.cycles++
	slog.Warn("keyring all credentials exhausted, optimistic reset",
		slog.String("service", service),
		slog.Int("cycles", e.cycles))
	observability.CredentialCyclesTotal.WithLabelValues(service).Inc()
	return Next{Credential: e.creds[0], Index: 0, AllExhausted: true}, nil
}

// MarkExhausted records a rate-limited credential and advances the rotation
// position past it.
func (r *Ring) MarkExhausted(ctx domain.Context, service string, index int, reason string) {
	r.mu.Lock()
	e, ok := r.services[service]
	if !ok || len(e.creds) == 0 || index < 0 || index >= len(e.creds) {
		r.mu.Unlock()
		return
	}
	e.exhausted[index] = struct{}{}
	e.lastErr = reason
	e.current = (index + 1) % len(e.creds)
	cs, ttl := r.cooldown, r.cooldownTTL
	r.mu.Unlock()

	observability.CredentialExhaustedTotal.WithLabelValues(service).Inc()
	slog.Warn("credential exhausted",
		slog.String("service", service),
		slog.Int("index", index),
		slog.String("reason", reason))
	if cs != nil {
		cs.MarkCoolingDown(ctx, service, index, reason, ttl)
	}
}

// Reset clears exhaustion state and rotation position for service.
func (r *Ring) Reset(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[service]
	if !ok {
		return
	}
	e.exhausted = make(map[int]struct{})
	e.current = 0
	e.start = 0
	e.lastErr = ""
}

// Stats is a read-only snapshot of a ledger, used by tests and readiness
// reporting.
type Stats struct {
	Credentials    int
	CurrentIndex   int
	ExhaustedCount int
	Cycles         int
	LastError      string
}

// Snapshot returns ledger stats for service.
func (r *Ring) Snapshot(service string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[service]
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Credentials:    len(e.creds),
		CurrentIndex:   e.current,
		ExhaustedCount: len(e.exhausted),
		Cycles:         e.cycles,
		LastError:      e.lastErr,
	}, true
}

func (r *Ring) credentialCount(service string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[service]
	if !ok {
		return 0
	}
	return len(e.creds)
}

func (r *Ring) coolingDown(ctx domain.Context, service string, index int) bool {
	r.mu.Lock()
	cs := r.cooldown
	r.mu.Unlock()
	if cs == nil {
		return false
	}
	return cs.IsCoolingDown(ctx, service, index)
}

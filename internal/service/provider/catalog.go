// Package provider rotates LLM calls over the two-axis space of
// (credential, model) for one provider at a time.
//
// Unlike keyring, this executor never returns an error to the caller: when
// the attempt budget is spent it resolves to the caller's default value.
// The asymmetry is deliberate and visible in the signatures.
package provider

import "github.com/leadpilot/leadpilot/internal/domain"

// catalogs are the fixed, ordered model lists per provider. Order matters:
// rotation starts from the ledger position and walks the list in order.
var catalogs = map[domain.Provider][]string{
	domain.ProviderOpenAI: {
		"gpt-4o-mini",
		"gpt-4o",
		"gpt-4.1-mini",
	},
	domain.ProviderGroq: {
		"llama-3.3-70b-versatile",
		"llama-3.1-8b-instant",
		"gemma2-9b-it",
	},
	domain.ProviderOpenRouter: {
		"meta-llama/llama-3.3-70b-instruct:free",
		"google/gemini-2.0-flash-exp:free",
		"mistralai/mistral-small-3.1-24b-instruct:free",
	},
	domain.ProviderStub: {
		"stub-small",
		"stub-large",
	},
}

// Models returns the fixed model catalog for p. The returned slice is a
// copy; catalogs are immutable at runtime.
func Models(p domain.Provider) []string {
	return append([]string(nil), catalogs[p]...)
}

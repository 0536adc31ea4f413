// Package stub provides a fast, deterministic provider invoker for
// local development and tests.
package stub

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/leadpilot/leadpilot/internal/domain"
)

// Client is a deterministic domain.ProviderInvoker. It sniffs the prompt to
// decide whether an analysis fragment, a draft, or a judge verdict is
// expected.
type Client struct{}

func New() *Client { return &Client{} }

// Invoke returns canned responses keyed off the system prompt.
func (c *Client) Invoke(_ domain.Context, _ domain.Credential, _, systemPrompt, userPrompt string, _ int) (string, error) {
	// Simulate a tiny bit of processing latency to resemble real work
	time.Sleep(10 * time.Millisecond)

	switch {
	case strings.Contains(systemPrompt, "reviewer"):
		return "APPROVED: clear, specific, and within constraints", nil
	case strings.Contains(systemPrompt, "outreach copywriter"):
		payload := map[string]string{
			"subject":   "Quick question about your outbound process",
			"body":      "Hi there,\n\nI noticed your team is growing and thought a short chat about automating outreach could be useful. Would you be open to a 15-minute call next week? {{link}}\n\nBest,\nAlex",
			"rationale": "Leads with an observation, keeps the ask small, places the scheduling link at the close.",
		}
		b, _ := json.Marshal(payload)
		return string(b), nil
	default:
		// Analysis and free-text prompts get a terse factual blurb.
		if strings.Contains(userPrompt, "angle") {
			return "Open with their recent growth; tie the pitch to time saved on manual prospecting.", nil
		}
		return "The company sells B2B software and is actively hiring for sales roles, suggesting pipeline pressure.", nil
	}
}

// Package real implements a real provider invoker backed by
// OpenAI-compatible chat completion APIs.
package real

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	backoff "github.com/cenkalti/backoff/v4"

	"log/slog"

	"github.com/leadpilot/leadpilot/internal/adapter/ai/tokencount"
	"github.com/leadpilot/leadpilot/internal/config"
	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/retryx"
)

// Client implements domain.ProviderInvoker against one provider's
// OpenAI-compatible /chat/completions endpoint.
//
// Classification contract: a 429 comes back immediately as a
// retryx.StatusError so the rotation executors can react; transient 5xx and
// transport errors are absorbed by a short exponential backoff here before
// surfacing; 4xx other than 429 are permanent and never retried.
type Client struct {
	cfg      config.Config
	provider domain.Provider
	baseURL  string
	hc       *http.Client
	counter  *tokencount.Counter
}

// New constructs a client for p using the configured base URL and timeout.
func New(cfg config.Config, p domain.Provider) *Client {
	return &Client{
		cfg:      cfg,
		provider: p,
		baseURL:  cfg.BaseURL(p),
		hc:       &http.Client{Timeout: cfg.ChatTimeout},
		counter:  tokencount.NewCounter(),
	}
}

// getBackoffConfig returns a configured ExponentialBackOff based on the current environment.
func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// Invoke calls the chat completions endpoint once (with short transient
// retry) and returns the message content.
func (c *Client) Invoke(ctx domain.Context, cred domain.Credential, model, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if cred.Secret == "" {
		return "", fmt.Errorf("%w: empty credential for %s", domain.ErrInvalidArgument, c.provider)
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: no base URL for provider %s", domain.ErrInvalidArgument, c.provider)
	}

	// Keep prompt+completion inside the model context window.
	maxTokens = c.counter.ClampMaxTokens(model, systemPrompt+"\n"+userPrompt, maxTokens, c.cfg.ModelContextWindow)

	body := map[string]any{
		"model":       model,
		"temperature": 0.2,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	b, _ := json.Marshal(body)

	var out struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	op := func() error {
		// Recreate request each attempt to avoid reusing consumed bodies
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+cred.Secret)
		r.Header.Set("Content-Type", "application/json")
		if c.provider == domain.ProviderOpenRouter {
			if c.cfg.OpenRouterReferer != "" {
				r.Header.Set("HTTP-Referer", c.cfg.OpenRouterReferer)
			}
			r.Header.Set("X-Title", c.cfg.OpenRouterTitle)
		}
		resp, err := c.hc.Do(r)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrCancelled, err))
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("failed to read response body", slog.String("provider", string(c.provider)), slog.Any("error", err))
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			// Rate limits are the rotation executors' business; do not
			// burn the backoff budget here.
			slog.Warn("ai provider rate limited",
				slog.String("provider", string(c.provider)),
				slog.String("model", model),
				slog.Int("status", resp.StatusCode),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return backoff.Permanent(&retryx.StatusError{Status: resp.StatusCode, Message: "rate limited: 429"})
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			bodySnippet := snippet(bodyBytes, 512)
			slog.Warn("ai provider 4xx",
				slog.String("provider", string(c.provider)),
				slog.String("model", model),
				slog.Int("status", resp.StatusCode),
				slog.String("endpoint", c.baseURL+"/chat/completions"),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
				slog.String("body", bodySnippet))
			return backoff.Permanent(&retryx.StatusError{Status: resp.StatusCode, Message: fmt.Sprintf("chat status %d: %s", resp.StatusCode, bodySnippet)})
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			bodySnippet := snippet(bodyBytes, 512)
			slog.Error("ai provider non-2xx",
				slog.String("provider", string(c.provider)),
				slog.String("model", model),
				slog.Int("status", resp.StatusCode),
				slog.String("endpoint", c.baseURL+"/chat/completions"),
				slog.String("body", bodySnippet))
			return &retryx.StatusError{Status: resp.StatusCode, Message: fmt.Sprintf("chat status %d", resp.StatusCode)}
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("ai provider decode error",
				slog.String("provider", string(c.provider)),
				slog.String("model", model),
				slog.Any("error", err))
			return err
		}
		return nil
	}

	expo := c.getBackoffConfig()
	bo := backoff.WithContext(expo, ctx)
	if err := backoff.Retry(op, bo); err != nil {
		// Unwrap so callers classify the original status error.
		var se *retryx.StatusError
		if errors.As(err, &se) {
			return "", se
		}
		return "", fmt.Errorf("%s api failed: %w", c.provider, err)
	}

	if len(out.Choices) == 0 {
		slog.Error("ai provider returned empty choices", slog.String("provider", string(c.provider)), slog.String("model", model))
		return "", fmt.Errorf("empty choices from %s", c.provider)
	}
	if out.Model != "" && out.Model != model {
		slog.Warn("model substitution detected",
			slog.String("requested_model", model),
			slog.String("actual_model", out.Model),
			slog.String("provider", string(c.provider)))
	}
	return out.Choices[0].Message.Content, nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

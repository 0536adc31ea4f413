// Package tokencount provides token counting for LLM API calls.
//
// It uses tiktoken-go, a Go port of OpenAI's official tiktoken library.
// Prompt sizes feed into the max_tokens given to each provider call so a
// long lead context cannot starve the completion budget.
package tokencount

import (
	"strings"
	"sync"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// DefaultCounter is a global token counter instance.
var DefaultCounter = NewCounter()

// getEncodingForModel returns the tiktoken encoding for a model, falling
// back to cl100k_base for non-OpenAI model ids.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalizedModel := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalizedModel]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodingCache[normalizedModel]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalizedModel)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalizedModel] = enc
	return enc, nil
}

// CountTokens returns the token count of text for model. On encoding
// failure it estimates with the 4-chars-per-token heuristic rather than
// failing the call.
func (c *Counter) CountTokens(model, text string) int {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// ClampMaxTokens returns the completion budget for a prompt: requested,
// reduced so prompt+completion stays within the model context window.
func (c *Counter) ClampMaxTokens(model, prompt string, requested, contextWindow int) int {
	if contextWindow <= 0 {
		return requested
	}
	used := c.CountTokens(model, prompt)
	remaining := contextWindow - used
	if remaining < 1 {
		return 1
	}
	if requested > remaining {
		return remaining
	}
	return requested
}

// normalizeModelName maps provider-prefixed model ids (e.g.
// "meta-llama/llama-3.3-70b-instruct:free") onto names tiktoken knows.
func normalizeModelName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.Index(model, ":"); i >= 0 {
		model = model[:i]
	}
	return model
}

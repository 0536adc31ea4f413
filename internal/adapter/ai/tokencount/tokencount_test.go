package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "llama-3.3-70b-instruct", normalizeModelName("meta-llama/llama-3.3-70b-instruct:free"))
	assert.Equal(t, "gpt-4o-mini", normalizeModelName("gpt-4o-mini"))
	assert.Equal(t, "mixtral-8x7b", normalizeModelName("mistralai/mixtral-8x7b"))
}

func TestCountTokens(t *testing.T) {
	t.Parallel()
	c := NewCounter()
	n := c.CountTokens("gpt-4o-mini", "Hello, how are you today?")
	assert.Greater(t, n, 0)
	assert.Less(t, n, 25)

	// Unknown model ids fall back to cl100k_base rather than erroring.
	m := c.CountTokens("stub-small", "Hello, how are you today?")
	assert.Greater(t, m, 0)
}

func TestClampMaxTokens(t *testing.T) {
	t.Parallel()
	c := NewCounter()

	// Window disabled: requested passes through.
	assert.Equal(t, 500, c.ClampMaxTokens("gpt-4o-mini", "hi", 500, 0))

	// Plenty of room: requested unchanged.
	assert.Equal(t, 100, c.ClampMaxTokens("gpt-4o-mini", "hi", 100, 8192))

	// Tight window: completion shrinks to what is left.
	prompt := "word word word word word word word word word word"
	used := c.CountTokens("gpt-4o-mini", prompt)
	got := c.ClampMaxTokens("gpt-4o-mini", prompt, 1000, used+5)
	assert.Equal(t, 5, got)

	// Prompt alone overflows the window: never returns less than one token.
	assert.Equal(t, 1, c.ClampMaxTokens("gpt-4o-mini", prompt, 1000, 1))
}

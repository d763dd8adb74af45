package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnthropicGenerateFunc(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		_, err := NewAnthropicGenerateFunc(AnthropicConfig{})
		require.Error(t, err)
	})

	t.Run("explicit key wins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		fn, err := NewAnthropicGenerateFunc(AnthropicConfig{APIKey: "test-key"})
		require.NoError(t, err)
		assert.NotNil(t, fn)
	})

	t.Run("key from environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		fn, err := NewAnthropicGenerateFunc(AnthropicConfig{})
		require.NoError(t, err)
		assert.NotNil(t, fn)
	})
}

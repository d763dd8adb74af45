// Package llm provides model-backed implementations of ace.GenerateFunc.
package llm

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

const defaultMaxTokens = 2000

// AnthropicConfig configures the Anthropic-backed generator.
type AnthropicConfig struct {
	// APIKey falls back to ANTHROPIC_API_KEY when empty.
	APIKey string
	// Model defaults to claude-sonnet when empty.
	Model anthropic.Model
	// MaxTokens per response; defaults to 2000.
	MaxTokens int
	// Temperature for sampling. Zero means the API default.
	Temperature float64
}

// NewAnthropicGenerateFunc returns an ace.GenerateFunc backed by the
// Anthropic Messages API. The returned function is safe for concurrent
// use.
func NewAnthropicGenerateFunc(cfg AnthropicConfig) (ace.GenerateFunc, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return func(ctx context.Context, prompt string) (string, error) {
		logger := logging.GetLogger()

		params := anthropic.MessageNewParams{
			Model: model,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(prompt),
				),
			},
			MaxTokens: int64(maxTokens),
		}
		if cfg.Temperature > 0 {
			params.Temperature = anthropic.Float(cfg.Temperature)
		}

		message, err := client.Messages.New(ctx, params)
		if err != nil {
			var apiErr *anthropic.Error
			if stderrors.As(err, &apiErr) {
				logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
			}
			return "", errors.WithFields(
				errors.Wrap(err, errors.GenerationFailed, "failed to generate response"),
				errors.Fields{
					"model":      string(model),
					"max_tokens": maxTokens,
				})
		}
		if message == nil || len(message.Content) == 0 {
			return "", errors.New(errors.GenerationFailed, "received empty response from Anthropic API")
		}

		var text string
		for _, block := range message.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		if text == "" {
			return "", errors.New(errors.GenerationFailed, "response contained no text content")
		}
		return text, nil
	}, nil
}
